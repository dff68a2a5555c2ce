// Package pubsub publishes outcome notifications to Google Cloud Pub/Sub.
package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"

	"github.com/JakeFAU/docwatch/internal/docs"
)

// Notifier publishes JSON payloads, keeping one publisher per topic.
type Notifier struct {
	client       *pubsub.Client
	defaultTopic string
	ownsClient   bool

	mu         sync.Mutex
	publishers map[string]*pubsub.Publisher
}

var _ docs.Notifier = (*Notifier)(nil)

// New wraps an existing client. Publish calls with an empty topic use
// defaultTopic.
func New(client *pubsub.Client, defaultTopic string) *Notifier {
	return &Notifier{
		client:       client,
		defaultTopic: defaultTopic,
		publishers:   make(map[string]*pubsub.Publisher),
	}
}

// Connect creates a client for projectID. Close releases it.
func Connect(ctx context.Context, projectID, defaultTopic string) (*Notifier, error) {
	if projectID == "" {
		return nil, errors.New("pubsub project id is required")
	}
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	n := New(client, defaultTopic)
	n.ownsClient = true
	return n, nil
}

// CheckTopic verifies that the topic exists. Topics report a state only when
// they have an ingestion source, so only an ingestion error counts as broken.
func (n *Notifier) CheckTopic(ctx context.Context, topic string) error {
	if topic == "" {
		topic = n.defaultTopic
	}
	name := topic
	if !strings.HasPrefix(name, "projects/") {
		name = fmt.Sprintf("projects/%s/topics/%s", n.client.Project(), topic)
	}
	t, err := n.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: name})
	if err != nil {
		return fmt.Errorf("get pubsub topic %q: %w", topic, err)
	}
	if t.State == pubsubpb.Topic_INGESTION_RESOURCE_ERROR {
		return fmt.Errorf("pubsub topic %q has an ingestion error", topic)
	}
	return nil
}

func (n *Notifier) publisher(topic string) *pubsub.Publisher {
	n.mu.Lock()
	defer n.mu.Unlock()
	p, ok := n.publishers[topic]
	if !ok {
		p = n.client.Publisher(topic)
		n.publishers[topic] = p
	}
	return p
}

// Publish marshals the payload to JSON and publishes it to the topic.
func (n *Notifier) Publish(ctx context.Context, topic string, payload any) (string, error) {
	if n.client == nil {
		return "", fmt.Errorf("pubsub client is not configured")
	}
	if topic == "" {
		topic = n.defaultTopic
	}
	if topic == "" {
		return "", fmt.Errorf("pubsub topic is not configured")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	msg := &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"content_type": "application/json"},
	}
	id, err := n.publisher(topic).Publish(ctx, msg).Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	return id, nil
}

// Close flushes and stops every publisher, and closes the client when the
// Notifier created it.
func (n *Notifier) Close() error {
	n.mu.Lock()
	for topic, p := range n.publishers {
		p.Stop()
		delete(n.publishers, topic)
	}
	n.mu.Unlock()
	if n.ownsClient {
		if err := n.client.Close(); err != nil {
			return fmt.Errorf("close pubsub client: %w", err)
		}
	}
	return nil
}
