package pubsub_test

import (
	"context"
	"encoding/json"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/JakeFAU/article-archiver/internal/archive"
	pspub "github.com/JakeFAU/article-archiver/internal/publisher/pubsub"
)

func newFakeServer(t *testing.T) (*pstest.Server, []option.ClientOption) {
	t.Helper()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return srv, []option.ClientOption{option.WithGRPCConn(conn)}
}

func TestPublishArchivedEvent(t *testing.T) {
	ctx := context.Background()
	srv, opts := newFakeServer(t)

	admin, err := pubsub.NewClient(ctx, "project-id", opts...)
	require.NoError(t, err)
	_, err = admin.CreateTopic(ctx, "archived")
	require.NoError(t, err)

	pub, err := pspub.Connect(ctx, "project-id", "archived", zap.NewNop(), opts...)
	require.NoError(t, err)

	event := archive.ArchivedEvent{RecordID: "r1", ContentID: "c1", Title: "Paper"}
	id, err := pub.Publish(ctx, "archived", event)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	require.NoError(t, pub.Close())

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	var got archive.ArchivedEvent
	require.NoError(t, json.Unmarshal(msgs[0].Data, &got))
	assert.Equal(t, event, got)
}

func TestConnectMissingTopic(t *testing.T) {
	_, opts := newFakeServer(t)

	_, err := pspub.Connect(context.Background(), "project-id", "missing", zap.NewNop(), opts...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestPublishUnmarshalablePayload(t *testing.T) {
	pub := pspub.New(nil)
	_, err := pub.Publish(context.Background(), "archived", make(chan int))
	assert.Error(t, err)
}
