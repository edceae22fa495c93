package protocol

import (
	"encoding/json"
	"fmt"
)

// Status codes used on the wire.
const (
	StatusOK           = 200
	StatusCreated      = 201
	StatusBadRequest   = 400
	StatusUnauthorized = 401
	StatusForbidden    = 403
	StatusNotFound     = 404
	StatusConflict     = 409
	StatusInternal     = 500
)

var reasons = map[int]string{
	StatusOK:           "OK",
	StatusCreated:      "Created",
	StatusBadRequest:   "Bad Request",
	StatusUnauthorized: "Unauthorized",
	StatusForbidden:    "Forbidden",
	StatusNotFound:     "Not Found",
	StatusConflict:     "Conflict",
	StatusInternal:     "Internal Server Error",
}

// Response is the single response produced for a request. On the wire it is
// "CODE REASON\r\n\r\n" followed by the body; the connection close delimits
// the body, so no headers are emitted.
type Response struct {
	Code   int
	Reason string
	Body   []byte
}

// Encode renders the response into wire bytes.
func (r *Response) Encode() []byte {
	reason := r.Reason
	if reason == "" {
		reason = reasons[r.Code]
	}
	head := fmt.Sprintf("%d %s\r\n\r\n", r.Code, reason)
	out := make([]byte, 0, len(head)+len(r.Body))
	out = append(out, head...)
	return append(out, r.Body...)
}

// JSON builds a response with a JSON body.
func JSON(code int, v any) *Response {
	body, err := json.Marshal(v)
	if err != nil {
		return Error(StatusInternal, "encoding response failed")
	}
	return &Response{Code: code, Body: body}
}

// Error builds an error-envelope response.
func Error(code int, msg string) *Response {
	return JSON(code, map[string]string{"error": msg})
}

// StatusClass returns "2xx", "4xx" or "5xx" for metrics labels.
func (r *Response) StatusClass() string {
	return fmt.Sprintf("%dxx", r.Code/100)
}
