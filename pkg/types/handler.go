// Package types defines the application handler capability
package types

import (
	"context"
	"net/http"
)

// Request carries one inbound request to the application handler. Body is
// the raw request body; the serving shell never interprets it.
type Request struct {
	// Method is the HTTP method
	Method string

	// Path is the request target as sent by the client
	Path string

	// Proto is the protocol version, e.g. "HTTP/1.1"
	Proto string

	// Header contains the request headers
	Header http.Header

	// Body is the raw request body
	Body []byte

	// RemoteAddr is the client address of the connection
	RemoteAddr string
}

// Handler is the opaque application capability plugged into the serving
// shell: given a request, produce the complete response bytes, or fail.
// The returned bytes are written to the connection verbatim; the shell
// does not interpret them. A returned error is treated as a worker crash:
// the connection is closed without a response and the worker is replaced.
type Handler interface {
	Handle(ctx context.Context, req *Request) ([]byte, error)
}

// HandlerFunc adapts a function to the Handler interface
type HandlerFunc func(ctx context.Context, req *Request) ([]byte, error)

// Handle calls fn(ctx, req)
func (fn HandlerFunc) Handle(ctx context.Context, req *Request) ([]byte, error) {
	return fn(ctx, req)
}
