// Package memory records notifications in-memory for tests and dry runs.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/docwatch/internal/docs"
)

// Notifier stores published payloads for inspection.
type Notifier struct {
	mu       sync.RWMutex
	messages []Message
	err      error
}

var _ docs.Notifier = (*Notifier)(nil)

// Message captures one publish call.
type Message struct {
	Topic   string
	Payload any
}

// New returns a memory Notifier.
func New() *Notifier {
	return &Notifier{}
}

// FailWith makes every later Publish return err. Nil restores success.
func (n *Notifier) FailWith(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.err = err
}

// Publish records the message and returns a pseudo ID.
func (n *Notifier) Publish(_ context.Context, topic string, payload any) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return "", n.err
	}
	n.messages = append(n.messages, Message{Topic: topic, Payload: payload})
	return fmt.Sprintf("memory-%d", len(n.messages)), nil
}

// Messages returns the recorded publishes.
func (n *Notifier) Messages() []Message {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]Message, len(n.messages))
	copy(out, n.messages)
	return out
}
