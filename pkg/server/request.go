package server

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/routecalc/prefork/pkg/types"
)

// readRequest parses one HTTP/1.x request off the connection into the raw
// form handed to the application handler. Header and body sizes are
// bounded; anything past the limits fails the read.
func readRequest(conn net.Conn, maxHeaderBytes int, maxBodyBytes int64) (*types.Request, error) {
	br := bufio.NewReaderSize(io.LimitReader(conn, int64(maxHeaderBytes)+maxBodyBytes+1), maxHeaderBytes)

	httpReq, err := http.ReadRequest(br)
	if err != nil {
		return nil, fmt.Errorf("reading request: %w", err)
	}
	defer httpReq.Body.Close()

	if httpReq.ContentLength > maxBodyBytes {
		return nil, fmt.Errorf("request body too large: %d bytes", httpReq.ContentLength)
	}

	body, err := io.ReadAll(io.LimitReader(httpReq.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading request body: %w", err)
	}
	if int64(len(body)) > maxBodyBytes {
		return nil, fmt.Errorf("request body too large: %d bytes", len(body))
	}

	return &types.Request{
		Method:     httpReq.Method,
		Path:       httpReq.URL.RequestURI(),
		Proto:      httpReq.Proto,
		Header:     httpReq.Header,
		Body:       body,
		RemoteAddr: conn.RemoteAddr().String(),
	}, nil
}
