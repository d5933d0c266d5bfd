package http

import (
	"context"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wearesierraleone/frontend/internal/config"
	"github.com/wearesierraleone/frontend/internal/connectivity"
	"github.com/wearesierraleone/frontend/internal/db"
	"github.com/wearesierraleone/frontend/internal/flatfile"
	"github.com/wearesierraleone/frontend/internal/models"
	"github.com/wearesierraleone/frontend/internal/queue"
	"github.com/wearesierraleone/frontend/internal/remote"
	"github.com/wearesierraleone/frontend/internal/store"
	"github.com/wearesierraleone/frontend/internal/syncer"
)

// A device that queued a lot offline drains against the data server with
// its default write limits.
func TestDrain_BacklogAgainstDefaultLimits(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	tree, err := flatfile.Open(t.TempDir())
	require.NoError(t, err)
	router := gin.New()
	SetupDataRoutes(ctx, router, &Env{Tree: tree, Hub: &recordingHub{}}, nil, "*")
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	resolver, err := remote.NewResolver(config.ModeLocal, srv.URL, "")
	require.NoError(t, err)
	st := store.New(db.NewMemory(0))
	q := queue.New(st)
	client := remote.NewClient(resolver, time.Second, time.Second)
	engine, err := syncer.NewEngine(syncer.Context{
		Store:  st,
		Queue:  q,
		Status: connectivity.NewMonitor(connectivity.NewStaticStatus(true), client, connectivity.DefaultOptions()),
		Remote: client,
	}, syncer.WithRetryDelay(time.Hour))
	require.NoError(t, err)
	t.Cleanup(engine.Stop)

	const comments, posts = 40, 15
	for i := 0; i < comments; i++ {
		q.Enqueue(ctx, models.ItemComment, models.Comment{PostID: "post-1", Text: fmt.Sprintf("comment %d", i)})
	}
	for i := 0; i < posts; i++ {
		q.Enqueue(ctx, models.ItemPost, models.Post{Title: fmt.Sprintf("post %d", i), Body: "body", Status: models.PostPending})
	}

	var total syncer.Result
	for cycle := 0; cycle < 3; cycle++ {
		res := engine.Drain(ctx)
		require.True(t, res.Attempted)
		total.Delivered += res.Delivered
		total.Dropped += res.Dropped
		total.Retried += res.Retried
	}

	assert.Zero(t, total.Dropped)
	assert.Zero(t, total.Retried, "throttled writes keep their attempts")

	stored, err := tree.Comments("post-1")
	require.NoError(t, err)
	assert.Len(t, stored, comments)

	remaining := q.Drain(ctx)
	assert.Equal(t, comments+posts, total.Delivered+len(remaining))
	for _, item := range remaining {
		assert.Equal(t, models.ItemPost, item.Type)
		assert.Zero(t, item.SyncAttempts)
	}
}
