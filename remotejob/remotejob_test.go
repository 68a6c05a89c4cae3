package remotejob

import (
	"context"
	"encoding/json"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
)

func newTestPublisher(t *testing.T) (*Publisher, *pstest.Server) {
	t.Helper()
	ctx := context.Background()
	srv := pstest.NewServer()
	t.Cleanup(func() { srv.Close() })

	conn, err := grpc.Dial(srv.Addr, grpc.WithInsecure())
	require.NoError(t, err)
	client, err := pubsub.NewClient(ctx, "test", option.WithGRPCConn(conn))
	require.NoError(t, err)
	_, err = client.CreateTopic(ctx, "events")
	require.NoError(t, err)

	return NewPublisherFromClient(client, "events"), srv
}

func TestPublish(t *testing.T) {
	p, srv := newTestPublisher(t)

	p.Publish(context.Background(), Event{Type: GalleryItemCreated, UserID: "ada", ItemID: "item1"})
	p.Publish(context.Background(), Event{Type: AccountDeleted, UserID: "ada"})
	require.NoError(t, p.Close())

	msgs := srv.Messages()
	require.Len(t, msgs, 2)
	types := map[EventType]Event{}
	for _, m := range msgs {
		var e Event
		require.NoError(t, json.Unmarshal(m.Data, &e))
		assert.Equal(t, string(e.Type), m.Attributes["type"])
		assert.False(t, e.At.IsZero())
		types[e.Type] = e
	}
	assert.Equal(t, "item1", types[GalleryItemCreated].ItemID)
	assert.Equal(t, "ada", types[AccountDeleted].UserID)
}

func TestPublisherWithoutTopic(t *testing.T) {
	p, err := NewPublisher(context.Background(), "test", "")
	require.NoError(t, err)

	p.Publish(context.Background(), Event{Type: AccountDeleted, UserID: "ada"})
	assert.NoError(t, p.Close())

	var nilPublisher *Publisher
	nilPublisher.Publish(context.Background(), Event{Type: AccountDeleted})
	assert.NoError(t, nilPublisher.Close())
}
