package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/wearesierraleone/frontend/internal/flatfile"
	"github.com/wearesierraleone/frontend/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type event struct {
	Type string
	Data interface{}
}

type recordingHub struct {
	mu     sync.Mutex
	events []event
}

func (h *recordingHub) Publish(eventType string, data interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event{Type: eventType, Data: data})
}

func (h *recordingHub) types() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.events))
	for i, e := range h.events {
		out[i] = e.Type
	}
	return out
}

var fixedNow = time.Date(2025, 5, 10, 9, 30, 0, 0, time.UTC)

func newDataServer(t *testing.T) (*gin.Engine, *flatfile.Tree, *recordingHub) {
	t.Helper()
	tree, err := flatfile.Open(t.TempDir())
	require.NoError(t, err)
	hub := &recordingHub{}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	router := gin.New()
	env := &Env{Tree: tree, Hub: hub, Now: func() time.Time { return fixedNow }, WriteRate: rate.Inf}
	SetupDataRoutes(ctx, router, env, nil, "*")
	return router, tree, hub
}

func do(router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestCommonHeaders(t *testing.T) {
	router, _, _ := newDataServer(t)
	w := do(router, http.MethodGet, "/data/posts/index.json", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))
}

func TestSubmitAndServeData(t *testing.T) {
	router, _, hub := newDataServer(t)

	w := do(router, http.MethodPost, "/submit", models.Post{Title: "Road", Body: "Potholes", Status: models.PostApproved})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	postID := decode(t, w)["postId"].(string)
	assert.Regexp(t, `^post-`, postID)
	assert.Equal(t, []string{"new_post"}, hub.types())

	w = do(router, http.MethodGet, "/data/posts/index.json", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), postID+".json")

	w = do(router, http.MethodGet, "/data/posts/"+postID+".json", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"title": "Road"`)

	w = do(router, http.MethodPost, "/submit", models.Post{Title: " ", Body: "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, false, decode(t, w)["success"])
}

func TestPendingSubmitIsNotAnnounced(t *testing.T) {
	router, _, hub := newDataServer(t)
	w := do(router, http.MethodPost, "/submit", models.Post{Title: "Road", Body: "Potholes"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Empty(t, hub.types())

	w = do(router, http.MethodGet, "/data/posts/index.json", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestVoteEndpoints(t *testing.T) {
	router, tree, hub := newDataServer(t)

	w := do(router, http.MethodPost, "/upvote", map[string]string{"postId": "post-1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = do(router, http.MethodPost, "/downvote", map[string]string{"postId": "post-1"})
	require.Equal(t, http.StatusOK, w.Code)
	w = do(router, http.MethodPost, "/vote", map[string]string{"postId": "post-1", "type": "upvote"})
	require.Equal(t, http.StatusOK, w.Code)

	votes := decode(t, w)["votes"].(map[string]interface{})
	assert.Equal(t, float64(2), votes["up"])
	assert.Equal(t, float64(1), votes["down"])
	assert.Equal(t, []string{"vote", "vote", "vote"}, hub.types())

	w = do(router, http.MethodPost, "/vote", map[string]string{"postId": "post-1", "type": "sideways"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(router, http.MethodPost, "/upvote", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	tally, err := tree.Votes("post-1")
	require.NoError(t, err)
	assert.Equal(t, models.VoteTally{Up: 2, Down: 1}, tally)
}

func TestUpvotesCreatePetitionAtThreshold(t *testing.T) {
	router, tree, hub := newDataServer(t)
	require.NoError(t, tree.SavePost(models.Post{ID: "post-1", Title: "Fix the road", Body: "Potholes", Status: models.PostApproved}))

	for i := 0; i < models.PetitionThreshold-1; i++ {
		do(router, http.MethodPost, "/upvote", map[string]string{"postId": "post-1"})
	}
	_, ok, err := tree.Petition("post-1")
	require.NoError(t, err)
	assert.False(t, ok)

	do(router, http.MethodPost, "/upvote", map[string]string{"postId": "post-1"})
	p, ok, err := tree.Petition("post-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, models.PetitionOpen, p.State)
	assert.True(t, fixedNow.Add(models.DefaultPetitionDuration).Equal(*p.Deadline))
	assert.Contains(t, hub.types(), "petition")

	do(router, http.MethodPost, "/upvote", map[string]string{"postId": "post-1"})
	count := 0
	for _, typ := range hub.types() {
		if typ == "petition" {
			count++
		}
	}
	assert.Equal(t, 1, count, "petition is created once")
}

func TestCommentEndpoint(t *testing.T) {
	router, tree, hub := newDataServer(t)

	w := do(router, http.MethodPost, "/comment", map[string]string{"postId": "post-1", "text": " Hello "})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "Comment added successfully", body["message"])
	id := body["commentId"].(string)

	w = do(router, http.MethodPost, "/comment", map[string]string{"postId": "post-1", "parentId": id, "text": "reply"})
	require.Equal(t, http.StatusOK, w.Code)

	list, err := tree.Comments("post-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Hello", list[0].Text)
	assert.Equal(t, id, list[1].ParentID)

	w = do(router, http.MethodPost, "/comment", map[string]string{"postId": "post-1", "commentId": id, "action": "flag"})
	require.Equal(t, http.StatusOK, w.Code)
	list, _ = tree.Comments("post-1")
	assert.Equal(t, models.CommentFlagged, list[0].Status)

	w = do(router, http.MethodPost, "/comment", map[string]string{"postId": "post-1", "commentId": "nope", "action": "flag"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(router, http.MethodPost, "/comment", map[string]string{"postId": "post-1", "text": "  "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(router, http.MethodPost, "/comment", map[string]string{"postId": "../etc", "text": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Equal(t, []string{"comment", "comment", "comment_flagged"}, hub.types())
}

func TestPetitionEndpoints(t *testing.T) {
	router, _, _ := newDataServer(t)
	deadline := fixedNow.Add(24 * time.Hour)
	input := map[string]interface{}{
		"postId": "post-1",
		"petition": models.Petition{
			ID: "petition-1", Title: "Road", Goal: "Fix it", Deadline: &deadline,
		},
	}

	w := do(router, http.MethodPost, "/create-petition", input)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "petition-1", decode(t, w)["petitionId"])

	w = do(router, http.MethodPost, "/create-petition", input)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(router, http.MethodPost, "/create-petition", map[string]interface{}{
		"postId": "post-2", "petition": models.Petition{ID: "p2", Title: "t", Goal: "g"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code, "deadline is required")

	w = do(router, http.MethodPost, "/sign", models.Signature{PostID: "post-1", AnonID: "anon-1"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["signatures"])

	w = do(router, http.MethodPost, "/sign", models.Signature{PostID: "post-1", AnonID: "anon-1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(router, http.MethodPost, "/sign", models.Signature{PostID: "post-3", AnonID: "anon-1"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(router, http.MethodGet, "/data/signatures/post-1.json", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestReportEndpoint(t *testing.T) {
	router, _, _ := newDataServer(t)
	w := do(router, http.MethodPost, "/report", models.Report{PostID: "post-1", Reason: "spam"})
	require.Equal(t, http.StatusCreated, w.Code)
	id := decode(t, w)["reportId"].(string)

	w = do(router, http.MethodGet, fmt.Sprintf("/data/reports/report-%s.json", id), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(router, http.MethodPost, "/report", models.Report{PostID: "post-1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCommentEndpoint_ForestShapes(t *testing.T) {
	router, tree, _ := newDataServer(t)

	w := do(router, http.MethodPost, "/comment", map[string]interface{}{
		"postId": "post-1",
		"action": "add",
		"comment": map[string]string{"id": "c1", "text": "top"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	forest := []models.Comment{{
		ID: "c1", Text: "top", Status: models.CommentApproved,
		Replies: []models.Comment{{ID: "r1", Text: "reply", Status: models.CommentApproved}},
	}}
	w = do(router, http.MethodPost, "/comment", map[string]interface{}{"postId": "post-1", "comments": forest, "action": "reply"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(1), decode(t, w)["added"])

	forest[0].Replies[0].Status = models.CommentFlagged
	w = do(router, http.MethodPost, "/comment", map[string]interface{}{"postId": "post-1", "comments": forest, "action": "flag"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["updated"])

	list, err := tree.Comments("post-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	i := models.FindComment(list, "r1")
	require.GreaterOrEqual(t, i, 0)
	assert.Equal(t, "c1", list[i].ParentID)
	assert.Equal(t, models.CommentFlagged, list[i].Status)

	w = do(router, http.MethodPost, "/comment", map[string]interface{}{"postId": "post-1", "action": "add"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(router, http.MethodPost, "/comment", map[string]interface{}{"postId": "post-1", "action": "reply", "text": "orphan"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
