package actions

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/wearesierraleone/frontend/internal/config"
	"github.com/wearesierraleone/frontend/internal/connectivity"
	"github.com/wearesierraleone/frontend/internal/dataaccess"
	"github.com/wearesierraleone/frontend/internal/db"
	"github.com/wearesierraleone/frontend/internal/identity"
	"github.com/wearesierraleone/frontend/internal/models"
	"github.com/wearesierraleone/frontend/internal/queue"
	"github.com/wearesierraleone/frontend/internal/remote"
	"github.com/wearesierraleone/frontend/internal/store"
	"github.com/wearesierraleone/frontend/internal/syncer"
)

type stubStatus struct{ offline bool }

func (s *stubStatus) IsOffline() bool { return s.offline }

type call struct {
	Path string
	Body []byte
}

type stubSender struct {
	mu    sync.Mutex
	calls []call
	err   error
}

func (s *stubSender) PostJSON(_ context.Context, path string, body any) error {
	raw, _ := json.Marshal(body)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call{Path: path, Body: raw})
	return s.err
}

func (s *stubSender) Configured() bool { return true }

func newService(t *testing.T, offline bool) (*Service, *syncer.Context, *stubSender) {
	t.Helper()
	st := store.New(db.NewMemory(0))
	sender := &stubSender{}
	sc := &syncer.Context{
		Store:  st,
		Queue:  queue.New(st),
		Status: &stubStatus{offline: offline},
		Remote: sender,
	}
	return New(sc, identity.New(st)), sc, sender
}

func TestVote_OnlineDelivers(t *testing.T) {
	ctx := context.Background()
	svc, sc, sender := newService(t, false)

	vote, receipt, err := svc.Vote(ctx, "post-1", "upvote")
	require.NoError(t, err)
	assert.True(t, receipt.Delivered)
	assert.Equal(t, models.VoteUp, vote.Type)

	require.Len(t, sender.calls, 1)
	assert.Equal(t, "/upvote", sender.calls[0].Path)
	assert.Equal(t, 0, sc.Queue.Len(ctx))

	tally, _ := sc.Store.LocalVoteStats(ctx, "post-1")
	assert.Equal(t, 1, tally.Up)
}

func TestVote_Rules(t *testing.T) {
	ctx := context.Background()
	svc, _, sender := newService(t, false)

	_, _, err := svc.Vote(ctx, "post-1", "sideways")
	assert.True(t, models.IsValidationFault(err))

	_, _, err = svc.Vote(ctx, " ", "up")
	assert.True(t, models.IsValidationFault(err))

	_, _, err = svc.Vote(ctx, "post-1", "down")
	require.NoError(t, err)
	_, _, err = svc.Vote(ctx, "post-1", "up")
	assert.True(t, models.IsValidationFault(err), "one vote per device")

	require.Len(t, sender.calls, 1)
	assert.Equal(t, "/downvote", sender.calls[0].Path)
}

func TestVote_FailureQueues(t *testing.T) {
	ctx := context.Background()
	svc, sc, sender := newService(t, false)
	sender.err = models.NewNetworkFault("POST /upvote", errors.New("503"))

	_, receipt, err := svc.Vote(ctx, "post-1", "up")
	require.NoError(t, err)
	assert.True(t, receipt.Queued)

	items := sc.Queue.Drain(ctx)
	require.Len(t, items, 1)
	assert.Equal(t, models.ItemVote, items[0].Type)

	path, _ := syncer.Endpoint(items[0])
	assert.Equal(t, "/upvote", path)
}

func TestComment_OfflineQueuesAndAppliesLocally(t *testing.T) {
	ctx := context.Background()
	svc, sc, sender := newService(t, true)

	c, receipt, err := svc.Comment(ctx, "post-1", "  Test  ")
	require.NoError(t, err)
	assert.True(t, receipt.Queued)
	assert.Equal(t, "Test", c.Text)
	assert.Regexp(t, `^anon-\d+$`, c.AnonID)
	assert.Empty(t, sender.calls)

	local, _ := sc.Store.LocalComments(ctx, "post-1")
	require.Len(t, local, 1)

	items := sc.Queue.Drain(ctx)
	require.Len(t, items, 1)
	assert.Equal(t, models.ItemComment, items[0].Type)
	assert.Equal(t, 0, items[0].SyncAttempts)

	var queued models.Comment
	require.NoError(t, json.Unmarshal(items[0].Data, &queued))
	assert.Equal(t, "Test", queued.Text)
	assert.Empty(t, queued.Source)
}

func TestComment_Validation(t *testing.T) {
	ctx := context.Background()
	svc, sc, sender := newService(t, false)

	_, _, err := svc.Comment(ctx, "post-1", "   ")
	assert.True(t, models.IsValidationFault(err))
	_, _, err = svc.Reply(ctx, "post-1", "", "hi")
	assert.True(t, models.IsValidationFault(err))

	assert.Empty(t, sender.calls)
	assert.Equal(t, 0, sc.Queue.Len(ctx))
	local, _ := sc.Store.LocalComments(ctx, "post-1")
	assert.Empty(t, local)
}

func TestReplyAndFlag(t *testing.T) {
	ctx := context.Background()
	svc, sc, sender := newService(t, false)

	parent, _, err := svc.Comment(ctx, "post-1", "parent")
	require.NoError(t, err)
	reply, _, err := svc.Reply(ctx, "post-1", parent.ID, "child")
	require.NoError(t, err)
	assert.Equal(t, parent.ID, reply.ParentID)

	receipt, err := svc.Flag(ctx, "post-1", reply.ID)
	require.NoError(t, err)
	assert.True(t, receipt.Delivered)

	local, _ := sc.Store.LocalComments(ctx, "post-1")
	i := models.FindComment(local, reply.ID)
	require.GreaterOrEqual(t, i, 0)
	assert.Equal(t, models.CommentFlagged, local[i].Status)

	require.Len(t, sender.calls, 3)
	assert.JSONEq(t, `{"postId":"post-1","commentId":"`+reply.ID+`","action":"flag"}`, string(sender.calls[2].Body))
}

func TestSubmitPost(t *testing.T) {
	ctx := context.Background()
	svc, sc, sender := newService(t, false)

	_, _, err := svc.SubmitPost(ctx, models.Post{Title: "Bridge", Body: "Broken", ImageURL: "ftp://x/y.png"})
	assert.True(t, models.IsValidationFault(err))

	post, receipt, err := svc.SubmitPost(ctx, models.Post{Title: " Bridge ", Body: "Broken", ImageURL: "https://img.example.org/b.JPG", Status: models.PostApproved})
	require.NoError(t, err)
	assert.True(t, receipt.Delivered)
	assert.Equal(t, models.PostPending, post.Status, "clients cannot self-approve")
	assert.Equal(t, "Bridge", post.Title)

	require.Len(t, sender.calls, 1)
	assert.Equal(t, "/submit", sender.calls[0].Path)
	assert.NotContains(t, string(sender.calls[0].Body), "_timestamp")

	_, ok, _ := sc.Store.LocalPost(ctx, post.ID)
	assert.True(t, ok)
}

func TestReportAndSign(t *testing.T) {
	ctx := context.Background()
	svc, sc, sender := newService(t, false)

	r, err := svc.Report(ctx, "post-1", "spam")
	require.NoError(t, err)
	assert.NotEmpty(t, r.ID)
	assert.Regexp(t, `^anon-\d+$`, r.Reporter)

	_, err = svc.Report(ctx, "post-1", "")
	assert.True(t, models.IsValidationFault(err))

	sig, err := svc.Sign(ctx, "post-1", "Aminata")
	require.NoError(t, err)
	assert.Equal(t, r.Reporter, sig.AnonID, "same device, same id")

	require.Len(t, sender.calls, 2)
	assert.Equal(t, "/report", sender.calls[0].Path)
	assert.Equal(t, "/sign", sender.calls[1].Path)

	sender.err = models.NewNetworkFault("POST /sign", errors.New("refused"))
	_, err = svc.Sign(ctx, "post-2", "")
	assert.True(t, models.IsNetworkFault(err))
	assert.Equal(t, 0, sc.Queue.Len(ctx), "signatures are never queued")
}

func TestReport_Offline(t *testing.T) {
	svc, _, sender := newService(t, true)
	_, err := svc.Report(context.Background(), "post-1", "spam")
	assert.ErrorIs(t, err, syncer.ErrOffline)
	assert.Empty(t, sender.calls)
}

// An offline comment shows up locally at once, waits in the queue, and is
// delivered by the drain that follows reconnection.
func TestOfflineCommentIsSyncedAfterReconnect(t *testing.T) {
	ctx := context.Background()

	var mu sync.Mutex
	var received []string
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/comment" {
			body, _ := io.ReadAll(r.Body)
			mu.Lock()
			received = append(received, string(body))
			mu.Unlock()
			w.WriteHeader(http.StatusOK)
			return
		}
		http.NotFound(w, r)
	}))
	defer api.Close()

	resolver, err := remote.NewResolver(config.ModeLocal, api.URL, "")
	require.NoError(t, err)
	client := remote.NewClient(resolver, time.Second, time.Second)

	st := store.New(db.NewMemory(0))
	net := connectivity.NewStaticStatus(false)
	monitor := connectivity.NewMonitor(net, client, connectivity.Options{
		ReconnectDelay: 10 * time.Millisecond,
		StartupDelay:   10 * time.Millisecond,
		Interval:       time.Hour,
		TriggerRate:    rate.Inf,
	})

	notes := make(chan string, 4)
	sc := &syncer.Context{
		Store:  st,
		Queue:  queue.New(st),
		Status: monitor,
		Remote: client,
		Notifier: syncer.NotifierFunc(func(_ context.Context, msg string) {
			notes <- msg
		}),
	}
	engine, err := syncer.NewEngine(*sc)
	require.NoError(t, err)
	defer engine.Stop()
	monitor.SetDrainer(engine)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go monitor.Run(runCtx)

	svc := New(sc, identity.New(st))
	_, receipt, err := svc.Comment(ctx, "post-1", "Test")
	require.NoError(t, err)
	assert.True(t, receipt.Queued)

	comments := dataaccess.New(st, client).Comments(ctx, "post-1")
	require.Len(t, comments, 1)
	assert.Equal(t, "Test", comments[0].Text)

	items := sc.Queue.Drain(ctx)
	require.Len(t, items, 1)
	assert.Equal(t, models.ItemComment, items[0].Type)
	assert.Equal(t, 0, items[0].SyncAttempts)

	net.Set(true)

	select {
	case msg := <-notes:
		assert.Equal(t, "Synced 1 item", msg)
	case <-time.After(2 * time.Second):
		t.Fatal("no sync notification after reconnect")
	}
	assert.Equal(t, 0, sc.Queue.Len(ctx))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	assert.Contains(t, received[0], `"text":"Test"`)
}

func TestActions_SurviveCancelledCaller(t *testing.T) {
	backend, err := db.Open("sqlite://" + filepath.Join(t.TempDir(), "agent.db"))
	require.NoError(t, err)
	st := store.New(backend)
	t.Cleanup(func() { _ = st.Close() })
	sc := &syncer.Context{
		Store:  st,
		Queue:  queue.New(st),
		Status: &stubStatus{offline: true},
		Remote: &stubSender{},
	}
	svc := New(sc, identity.New(st))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c, receipt, err := svc.Comment(ctx, "post-1", "Test")
	require.NoError(t, err)
	assert.True(t, receipt.Queued)
	_, receipt, err = svc.Vote(ctx, "post-1", "up")
	require.NoError(t, err)
	assert.True(t, receipt.Queued)

	bg := context.Background()
	assert.Equal(t, 2, sc.Queue.Len(bg))
	local, err := st.LocalComments(bg, "post-1")
	require.NoError(t, err)
	require.Len(t, local, 1)
	assert.Equal(t, c.ID, local[0].ID)

	_, _, err = svc.Vote(bg, "post-1", "down")
	assert.True(t, models.IsValidationFault(err), "vote flag was persisted")
}

func TestVote_ConcurrentVotesOnePerDevice(t *testing.T) {
	svc, sc, _ := newService(t, true)
	ctx := context.Background()

	var accepted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := svc.Vote(ctx, "post-1", "up"); err == nil {
				accepted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), accepted.Load())
	assert.Equal(t, 1, sc.Queue.Len(ctx))
}
