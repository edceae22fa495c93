// Package router maps (path template, method) pairs onto handlers. The
// binding table is built and validated once at startup; dispatch scans it
// in registration order and invokes the first match with typed path
// parameters and an optionally decoded JSON body.
package router

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"grove/internal/protocol"
)

// ParamKind is the type of one path placeholder. Placeholders bind
// positionally to the binding's declared parameter kinds.
type ParamKind int

const (
	Int ParamKind = iota
	String
)

// Context carries one request through a handler: the raw request, the
// typed path captures, and the decoded body when the binding declares one.
type Context struct {
	Request *protocol.Request
	Body    any
	args    []any
}

// Int returns the i-th path capture as an integer.
func (c *Context) Int(i int) int64 { return c.args[i].(int64) }

// Str returns the i-th path capture as a string.
func (c *Context) Str(i int) string { return c.args[i].(string) }

// HandlerFunc handles one routed request and always produces a response.
type HandlerFunc func(c *Context) *protocol.Response

// Binding declares one route: a method, a path template with {name}
// placeholders, the parameter kinds each placeholder captures, an optional
// body factory for JSON decoding, and the handler.
type Binding struct {
	Method string
	Path   string
	Params []ParamKind
	// NewBody, when non-nil, allocates the value the request body is
	// decoded into before the handler runs.
	NewBody func() any
	Handle  HandlerFunc
}

type compiled struct {
	Binding
	re *regexp.Regexp
}

// Router is the immutable dispatch table.
type Router struct {
	bindings []compiled
	log      *slog.Logger
}

var placeholderRe = regexp.MustCompile(`^\{(\w+)\}$`)
var literalRe = regexp.MustCompile(`^[A-Za-z0-9_.\-]+$`)

// New compiles and validates every binding. It fails fast, naming the
// binding that is malformed.
func New(log *slog.Logger, bindings ...Binding) (*Router, error) {
	if log == nil {
		log = slog.Default()
	}
	r := &Router{log: log}
	for _, b := range bindings {
		c, err := compile(b)
		if err != nil {
			return nil, fmt.Errorf("binding %s %s: %w", b.Method, b.Path, err)
		}
		r.bindings = append(r.bindings, c)
	}
	return r, nil
}

func compile(b Binding) (compiled, error) {
	if b.Handle == nil {
		return compiled{}, fmt.Errorf("nil handler")
	}
	if b.Method == "" {
		return compiled{}, fmt.Errorf("empty method")
	}
	if !strings.HasPrefix(b.Path, "/") {
		return compiled{}, fmt.Errorf("path must start with /")
	}
	var pattern strings.Builder
	pattern.WriteString("^")
	placeholders := 0
	for _, seg := range strings.Split(strings.TrimPrefix(b.Path, "/"), "/") {
		pattern.WriteString("/")
		if m := placeholderRe.FindStringSubmatch(seg); m != nil {
			if placeholders >= len(b.Params) {
				return compiled{}, fmt.Errorf("placeholder {%s} has no declared parameter", m[1])
			}
			switch b.Params[placeholders] {
			case Int:
				pattern.WriteString(`(\d+)`)
			case String:
				pattern.WriteString(`(\w+)`)
			default:
				return compiled{}, fmt.Errorf("unsupported parameter kind %d", b.Params[placeholders])
			}
			placeholders++
			continue
		}
		if !literalRe.MatchString(seg) {
			return compiled{}, fmt.Errorf("malformed segment %q", seg)
		}
		pattern.WriteString(regexp.QuoteMeta(seg))
	}
	if placeholders != len(b.Params) {
		return compiled{}, fmt.Errorf("%d parameters declared but %d placeholders in path",
			len(b.Params), placeholders)
	}
	pattern.WriteString("$")
	re, err := regexp.Compile(pattern.String())
	if err != nil {
		return compiled{}, err
	}
	return compiled{Binding: b, re: re}, nil
}

// Route dispatches the request to the first binding whose method and
// compiled matcher both match. Handler panics become 500 responses; an
// unmatched request yields 404.
func (r *Router) Route(req *protocol.Request) (resp *protocol.Response) {
	for i := range r.bindings {
		b := &r.bindings[i]
		if b.Method != req.Method {
			continue
		}
		m := b.re.FindStringSubmatch(req.Path)
		if m == nil {
			continue
		}
		ctx, errResp := b.buildContext(req, m[1:])
		if errResp != nil {
			return errResp
		}
		defer func() {
			if rec := recover(); rec != nil {
				r.log.Error("handler panic", "method", req.Method, "path", req.Path, "panic", rec)
				resp = protocol.Error(protocol.StatusInternal, "internal error")
			}
		}()
		return b.Handle(ctx)
	}
	return protocol.Error(protocol.StatusNotFound, "no route for "+req.Method+" "+req.Path)
}

func (b *compiled) buildContext(req *protocol.Request, captures []string) (*Context, *protocol.Response) {
	ctx := &Context{Request: req, args: make([]any, len(captures))}
	for i, raw := range captures {
		switch b.Params[i] {
		case Int:
			n, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return nil, protocol.Error(protocol.StatusBadRequest, "invalid integer parameter")
			}
			ctx.args[i] = n
		case String:
			ctx.args[i] = raw
		}
	}
	if b.NewBody != nil {
		target := b.NewBody()
		if err := json.Unmarshal(req.Body, target); err != nil {
			return nil, protocol.Error(protocol.StatusBadRequest, "malformed request body")
		}
		ctx.Body = target
	}
	return ctx, nil
}
