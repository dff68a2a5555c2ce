package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNotifierRecordsMessages(t *testing.T) {
	t.Parallel()

	n := New()
	id, err := n.Publish(context.Background(), "outcomes", map[string]string{"k": "v"})
	require.NoError(t, err)
	require.Equal(t, "memory-1", id)

	msgs := n.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "outcomes", msgs[0].Topic)

	n.FailWith(errors.New("down"))
	_, err = n.Publish(context.Background(), "outcomes", nil)
	require.EqualError(t, err, "down")
	require.Len(t, n.Messages(), 1)
}
