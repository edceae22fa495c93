// Package protocol implements the text wire format spoken by clients: an
// HTTP-shaped request (start line, header lines, blank line, optional body
// sized by Content-Length) answered by a bare status line and body, one
// request per connection.
package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// AuthHeader carries the session token on authenticated requests.
const AuthHeader = "auth-token"

var (
	ErrMalformedStartLine = errors.New("malformed start line")
	ErrMalformedHeader    = errors.New("malformed header line")
	ErrBadContentLength   = errors.New("invalid content-length")
)

// Request is one complete decoded wire request.
type Request struct {
	Method  string
	Path    string
	Headers map[string]string
	Body    []byte
}

// Header returns a header value by case-insensitive name.
func (r *Request) Header(name string) string {
	return r.Headers[strings.ToLower(name)]
}

// Decoder incrementally assembles one request from a connection's byte
// stream. Feed as many chunks as arrive; Complete reports when the message
// is whole.
type Decoder struct {
	buf         []byte
	headersDone bool
	bodyStart   int
	bodyLen     int
	req         Request
}

// Feed appends bytes and attempts to parse headers once the blank-line
// delimiter has arrived. It is safe to call after completion; surplus
// bytes are ignored.
func (d *Decoder) Feed(p []byte) error {
	d.buf = append(d.buf, p...)
	if d.headersDone {
		return nil
	}
	head, bodyStart, ok := splitHead(d.buf)
	if !ok {
		return nil // delimiter not here yet, keep accumulating
	}
	if err := d.parseHead(head); err != nil {
		return err
	}
	d.headersDone = true
	d.bodyStart = bodyStart
	return nil
}

// Complete reports whether the full message (headers plus any declared
// body) has arrived.
func (d *Decoder) Complete() bool {
	return d.headersDone && len(d.buf)-d.bodyStart >= d.bodyLen
}

// Request returns the decoded request. Only valid once Complete is true.
func (d *Decoder) Request() *Request {
	body := d.buf[d.bodyStart : d.bodyStart+d.bodyLen]
	d.req.Body = append([]byte(nil), body...)
	return &d.req
}

// splitHead locates the blank-line delimiter and returns the header block
// and the body offset. Both CRLF and bare LF delimiters are accepted.
func splitHead(buf []byte) (head []byte, bodyStart int, ok bool) {
	if i := bytes.Index(buf, []byte("\r\n\r\n")); i >= 0 {
		return buf[:i], i + 4, true
	}
	if i := bytes.Index(buf, []byte("\n\n")); i >= 0 {
		return buf[:i], i + 2, true
	}
	return nil, 0, false
}

func (d *Decoder) parseHead(head []byte) error {
	lines := strings.Split(string(head), "\n")
	start := strings.TrimRight(lines[0], "\r")
	fields := strings.Fields(start)
	if len(fields) != 2 {
		return fmt.Errorf("%w: %q", ErrMalformedStartLine, start)
	}
	d.req.Method = strings.ToUpper(fields[0])
	d.req.Path = fields[1]
	d.req.Headers = make(map[string]string, len(lines)-1)
	for _, line := range lines[1:] {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		name, value, found := strings.Cut(line, ":")
		if !found || name == "" {
			return fmt.Errorf("%w: %q", ErrMalformedHeader, line)
		}
		d.req.Headers[strings.ToLower(strings.TrimSpace(name))] = strings.TrimSpace(value)
	}
	if cl, present := d.req.Headers["content-length"]; present {
		n, err := strconv.Atoi(cl)
		if err != nil || n < 0 {
			return fmt.Errorf("%w: %q", ErrBadContentLength, cl)
		}
		d.bodyLen = n
	}
	return nil
}
