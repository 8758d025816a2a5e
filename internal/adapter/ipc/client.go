package ipc

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"
)

const (
	dialTimeout         = 5 * time.Second
	responseReadTimeout = 30 * time.Second
)

// ServerError is returned by Call when the daemon answers ok=false.
type ServerError struct {
	Cmd     string
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("%s: %s", e.Cmd, e.Message)
}

// Client holds one connection to the daemon. Calls are serialized.
type Client struct {
	mu   sync.Mutex
	conn net.Conn
	dec  *json.Decoder
}

func Dial(ctx context.Context, socketPath string) (*Client, error) {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", socketPath, err)
	}
	return &Client{conn: conn, dec: json.NewDecoder(conn)}, nil
}

// Call sends cmd and decodes the response data into result, which may be
// nil. A daemon-side failure is returned as *ServerError.
func (c *Client) Call(ctx context.Context, cmd string, args map[string]any, result any) error {
	line, err := NewRequest(cmd, args)
	if err != nil {
		return fmt.Errorf("encoding %q request: %w", cmd, err)
	}
	resp, err := c.roundTrip(ctx, line)
	if err != nil {
		return fmt.Errorf("calling %q: %w", cmd, err)
	}
	if !resp.OK {
		return &ServerError{Cmd: cmd, Message: resp.Error}
	}
	if result != nil && len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, result); err != nil {
			return fmt.Errorf("decoding %q response: %w", cmd, err)
		}
	}
	return nil
}

// Raw sends a preformatted request line and returns the envelope as-is.
func (c *Client) Raw(ctx context.Context, line []byte) (Response, error) {
	return c.roundTrip(ctx, line)
}

func (c *Client) roundTrip(ctx context.Context, line []byte) (Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline := time.Now().Add(responseReadTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.conn.SetDeadline(deadline)

	if _, err := c.conn.Write(append(line, '\n')); err != nil {
		return Response{}, fmt.Errorf("writing request: %w", err)
	}
	var resp Response
	if err := c.dec.Decode(&resp); err != nil {
		return Response{}, fmt.Errorf("reading response: %w", err)
	}
	return resp, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}
