package handlers

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grove/internal/protocol"
	"grove/internal/router"
	"grove/internal/services"
	"grove/internal/store"
)

type env struct {
	t      *testing.T
	store  *store.Store
	router *router.Router
}

func newEnv(t *testing.T) *env {
	t.Helper()
	s := store.New()
	r, err := router.New(nil, Routes(s, services.NewLogNotifier(nil))...)
	require.NoError(t, err)
	return &env{t: t, store: s, router: r}
}

func (e *env) do(method, path, token string, body any) *protocol.Response {
	e.t.Helper()
	req := &protocol.Request{Method: method, Path: path, Headers: map[string]string{}}
	if token != "" {
		req.Headers[protocol.AuthHeader] = token
	}
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(e.t, err)
		req.Body = raw
	}
	return e.router.Route(req)
}

func (e *env) decode(resp *protocol.Response, v any) {
	e.t.Helper()
	require.NoError(e.t, json.Unmarshal(resp.Body, v))
}

func (e *env) registerAndLogin(username string, tags ...string) string {
	e.t.Helper()
	resp := e.do("POST", "/register", "", RegisterRequest{Username: username, Password: "pw", Tags: tags})
	require.Equal(e.t, protocol.StatusCreated, resp.Code)
	resp = e.do("POST", "/login", "", LoginRequest{Username: username, Password: "pw"})
	require.Equal(e.t, protocol.StatusOK, resp.Code)
	var out map[string]string
	e.decode(resp, &out)
	return out["token"]
}

func TestRegisterScenario(t *testing.T) {
	e := newEnv(t)

	resp := e.do("POST", "/register", "", RegisterRequest{Username: "alice", Password: "pw", Tags: []string{"art"}})
	assert.Equal(t, protocol.StatusCreated, resp.Code)

	resp = e.do("POST", "/register", "", RegisterRequest{Username: "alice", Password: "pw", Tags: []string{"art"}})
	assert.Equal(t, protocol.StatusConflict, resp.Code)
	assert.Contains(t, string(resp.Body), "already exists")
}

func TestLoginScenario(t *testing.T) {
	e := newEnv(t)
	e.do("POST", "/register", "", RegisterRequest{Username: "alice", Password: "correct"})

	resp := e.do("POST", "/login", "", LoginRequest{Username: "alice", Password: "wrong"})
	assert.Equal(t, protocol.StatusUnauthorized, resp.Code)

	resp = e.do("POST", "/login", "", LoginRequest{Username: "alice", Password: "correct"})
	require.Equal(t, protocol.StatusOK, resp.Code)
	var out map[string]string
	e.decode(resp, &out)
	assert.NotEmpty(t, out["token"])

	resp = e.do("POST", "/login", "", LoginRequest{Username: "alice", Password: "correct"})
	assert.Equal(t, protocol.StatusConflict, resp.Code)
}

func TestVoteScenario(t *testing.T) {
	e := newEnv(t)
	alice := e.registerAndLogin("alice")
	bob := e.registerAndLogin("bob")

	resp := e.do("POST", "/posts", alice, CreatePostRequest{Title: "Hi", Content: "World"})
	require.Equal(t, protocol.StatusCreated, resp.Code)
	var created map[string]uint64
	e.decode(resp, &created)
	assert.EqualValues(t, 1, created["id"])
	path := fmt.Sprintf("/posts/%d", created["id"])

	// The author cannot vote their own post.
	resp = e.do("POST", path+"/rate", alice, RateRequest{Vote: 1})
	assert.Equal(t, protocol.StatusForbidden, resp.Code)

	resp = e.do("POST", path+"/rate", bob, RateRequest{Vote: 1})
	assert.Equal(t, protocol.StatusOK, resp.Code)
	resp = e.do("POST", path+"/rate", bob, RateRequest{Vote: 1})
	assert.Equal(t, protocol.StatusConflict, resp.Code)

	resp = e.do("GET", path, bob, nil)
	require.Equal(t, protocol.StatusOK, resp.Code)
	var view struct {
		Upvotes   int `json:"upvotes"`
		Downvotes int `json:"downvotes"`
	}
	e.decode(resp, &view)
	assert.Equal(t, 1, view.Upvotes)
	assert.Equal(t, 0, view.Downvotes)
}

func TestAuthRequired(t *testing.T) {
	e := newEnv(t)
	for _, ep := range []struct{ method, path string }{
		{"GET", "/feed"},
		{"GET", "/blog"},
		{"GET", "/wallet"},
		{"GET", "/users"},
		{"POST", "/follow/alice"},
	} {
		resp := e.do(ep.method, ep.path, "", nil)
		assert.Equal(t, protocol.StatusUnauthorized, resp.Code, "%s %s", ep.method, ep.path)
	}

	resp := e.do("GET", "/feed", "bogus-token", nil)
	assert.Equal(t, protocol.StatusUnauthorized, resp.Code)
}

func TestFollowFeedAndRewinFlow(t *testing.T) {
	e := newEnv(t)
	alice := e.registerAndLogin("alice", "art")
	bob := e.registerAndLogin("bob", "art")

	resp := e.do("POST", "/posts", alice, CreatePostRequest{Title: "Hi", Content: "World"})
	require.Equal(t, protocol.StatusCreated, resp.Code)

	// Nothing in bob's feed until he follows alice.
	resp = e.do("GET", "/feed", bob, nil)
	require.Equal(t, protocol.StatusOK, resp.Code)
	assert.Equal(t, "[]", string(resp.Body))

	resp = e.do("POST", "/follow/alice", bob, nil)
	require.Equal(t, protocol.StatusOK, resp.Code)

	resp = e.do("GET", "/feed", bob, nil)
	var feed []struct {
		ID     uint64 `json:"id"`
		Author string `json:"author"`
	}
	e.decode(resp, &feed)
	require.Len(t, feed, 1)
	assert.Equal(t, "alice", feed[0].Author)

	resp = e.do("POST", fmt.Sprintf("/posts/%d/rewin", feed[0].ID), bob, nil)
	assert.Equal(t, protocol.StatusCreated, resp.Code)

	// The rewin shows up in bob's blog.
	resp = e.do("GET", "/blog/bob", alice, nil)
	var blog []struct {
		RewinOf uint64 `json:"rewin_of"`
	}
	e.decode(resp, &blog)
	require.Len(t, blog, 1)
	assert.Equal(t, feed[0].ID, blog[0].RewinOf)
}

func TestCommentAndSanitization(t *testing.T) {
	e := newEnv(t)
	alice := e.registerAndLogin("alice")
	bob := e.registerAndLogin("bob")

	resp := e.do("POST", "/posts", alice, CreatePostRequest{Title: "Hi", Content: "World"})
	require.Equal(t, protocol.StatusCreated, resp.Code)

	resp = e.do("POST", "/posts/1/comments", bob, CommentRequest{Content: "<script>alert(1)</script>nice"})
	require.Equal(t, protocol.StatusCreated, resp.Code)

	resp = e.do("GET", "/posts/1", bob, nil)
	var view struct {
		Comments []struct {
			Author  string `json:"author"`
			Content string `json:"content"`
		} `json:"comments"`
	}
	e.decode(resp, &view)
	require.Len(t, view.Comments, 1)
	assert.Equal(t, "bob", view.Comments[0].Author)
	assert.NotContains(t, view.Comments[0].Content, "<script>")
	assert.Contains(t, view.Comments[0].Content, "nice")
}

func TestUsersSharedTags(t *testing.T) {
	e := newEnv(t)
	alice := e.registerAndLogin("alice", "art", "go")
	e.registerAndLogin("bob", "go")
	e.registerAndLogin("carol", "music")

	resp := e.do("GET", "/users", alice, nil)
	require.Equal(t, protocol.StatusOK, resp.Code)
	var views []struct {
		Username string `json:"username"`
	}
	e.decode(resp, &views)
	require.Len(t, views, 1)
	assert.Equal(t, "bob", views[0].Username)
}

func TestWalletEndpoints(t *testing.T) {
	e := newEnv(t)
	alice := e.registerAndLogin("alice")

	resp := e.do("GET", "/wallet", alice, nil)
	require.Equal(t, protocol.StatusOK, resp.Code)
	var wallet struct {
		Balance float64 `json:"balance"`
	}
	e.decode(resp, &wallet)
	assert.Zero(t, wallet.Balance)

	resp = e.do("GET", "/wallet/btc", alice, nil)
	require.Equal(t, protocol.StatusOK, resp.Code)
	var btc map[string]float64
	e.decode(resp, &btc)
	assert.GreaterOrEqual(t, btc["rate"], 0.0)
	assert.LessOrEqual(t, btc["rate"], 1.0)
}

func TestTitleTooLongIsClientError(t *testing.T) {
	e := newEnv(t)
	alice := e.registerAndLogin("alice")
	resp := e.do("POST", "/posts", alice, CreatePostRequest{
		Title:   "this title is much too long for a post",
		Content: "body",
	})
	assert.Equal(t, protocol.StatusBadRequest, resp.Code)
}

func TestLogoutInvalidatesToken(t *testing.T) {
	e := newEnv(t)
	alice := e.registerAndLogin("alice")

	resp := e.do("POST", "/logout", alice, nil)
	require.Equal(t, protocol.StatusOK, resp.Code)

	resp = e.do("GET", "/wallet", alice, nil)
	assert.Equal(t, protocol.StatusUnauthorized, resp.Code)
}
