package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grove/internal/protocol"
)

func get(path string) *protocol.Request {
	return &protocol.Request{Method: "GET", Path: path, Headers: map[string]string{}}
}

func TestTypedExtraction(t *testing.T) {
	var gotID, gotN int64
	var gotStr string
	r, err := New(nil, Binding{
		Method: "GET",
		Path:   "/item/{id}/{str}/{n}",
		Params: []ParamKind{Int, String, Int},
		Handle: func(c *Context) *protocol.Response {
			gotID, gotStr, gotN = c.Int(0), c.Str(1), c.Int(2)
			return protocol.JSON(protocol.StatusOK, "ok")
		},
	})
	require.NoError(t, err)

	resp := r.Route(get("/item/32/ciaooo/10"))
	require.Equal(t, protocol.StatusOK, resp.Code)
	assert.Equal(t, int64(32), gotID)
	assert.Equal(t, "ciaooo", gotStr)
	assert.Equal(t, int64(10), gotN)

	// Same path, wrong method.
	resp = r.Route(&protocol.Request{Method: "POST", Path: "/item/32/ciaooo/10"})
	assert.Equal(t, protocol.StatusNotFound, resp.Code)
}

func TestIntPlaceholderRejectsNonDigits(t *testing.T) {
	r, err := New(nil, Binding{
		Method: "GET", Path: "/posts/{id}", Params: []ParamKind{Int},
		Handle: func(c *Context) *protocol.Response { return protocol.JSON(200, c.Int(0)) },
	})
	require.NoError(t, err)
	resp := r.Route(get("/posts/abc"))
	assert.Equal(t, protocol.StatusNotFound, resp.Code)
}

func TestFirstRegisteredWins(t *testing.T) {
	hit := ""
	mk := func(name string) HandlerFunc {
		return func(c *Context) *protocol.Response {
			hit = name
			return protocol.JSON(200, name)
		}
	}
	r, err := New(nil,
		Binding{Method: "GET", Path: "/u/{name}", Params: []ParamKind{String}, Handle: mk("first")},
		Binding{Method: "GET", Path: "/u/{other}", Params: []ParamKind{String}, Handle: mk("second")},
	)
	require.NoError(t, err)
	r.Route(get("/u/alice"))
	assert.Equal(t, "first", hit)
}

func TestBodyDecoding(t *testing.T) {
	type loginReq struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	var got loginReq
	r, err := New(nil, Binding{
		Method:  "POST",
		Path:    "/login",
		NewBody: func() any { return new(loginReq) },
		Handle: func(c *Context) *protocol.Response {
			got = *c.Body.(*loginReq)
			return protocol.JSON(200, "ok")
		},
	})
	require.NoError(t, err)

	req := &protocol.Request{Method: "POST", Path: "/login",
		Body: []byte(`{"username":"alice","password":"pw"}`)}
	resp := r.Route(req)
	require.Equal(t, protocol.StatusOK, resp.Code)
	assert.Equal(t, loginReq{"alice", "pw"}, got)

	// Malformed body is a client error, not a crash.
	req.Body = []byte(`{"username":`)
	resp = r.Route(req)
	assert.Equal(t, protocol.StatusBadRequest, resp.Code)
}

func TestHandlerPanicBecomes500(t *testing.T) {
	r, err := New(nil, Binding{
		Method: "GET", Path: "/boom",
		Handle: func(c *Context) *protocol.Response { panic("kaboom") },
	})
	require.NoError(t, err)
	resp := r.Route(get("/boom"))
	assert.Equal(t, protocol.StatusInternal, resp.Code)
}

func TestConstructionErrors(t *testing.T) {
	ok := func(c *Context) *protocol.Response { return protocol.JSON(200, nil) }

	cases := []struct {
		name string
		b    Binding
	}{
		{"placeholder without parameter", Binding{Method: "GET", Path: "/x/{id}", Handle: ok}},
		{"parameter without placeholder", Binding{Method: "GET", Path: "/x", Params: []ParamKind{Int}, Handle: ok}},
		{"malformed segment", Binding{Method: "GET", Path: "/x/{bad", Handle: ok}},
		{"relative path", Binding{Method: "GET", Path: "x", Handle: ok}},
		{"nil handler", Binding{Method: "GET", Path: "/x"}},
		{"unsupported kind", Binding{Method: "GET", Path: "/x/{v}", Params: []ParamKind{ParamKind(9)}, Handle: ok}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(nil, tc.b)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "binding GET")
		})
	}
}
