// Package client calls procedures over a pluggable link. The link speaks
// the wire convention; the client adds path handling, input encoding, and
// typed error decoding on top.
package client

import (
	"context"
	"fmt"
	"strings"

	"github.com/mefengl/note-orpc/internal/runtime/codec"
	"github.com/mefengl/note-orpc/internal/runtime/stream"
)

// Request is a single outgoing call.
type Request struct {
	Path        []string
	Input       any
	LastEventID string
	Header      map[string]string
}

// Response is the link-level result of a call. Exactly one of Body and
// Stream is populated on success.
type Response struct {
	Status int
	Body   []byte
	Stream *stream.Iterator
}

// Link delivers a request to a server and returns its raw response.
// Implementations exist per transport; HTTPLink is the standard one.
type Link interface {
	Call(ctx context.Context, req *Request) (*Response, error)
}

// CallOption customises a single call.
type CallOption func(*Request)

// WithLastEventID resumes an event stream after the given event.
func WithLastEventID(id string) CallOption {
	return func(r *Request) { r.LastEventID = id }
}

// WithHeader attaches transport metadata to the call.
func WithHeader(key, value string) CallOption {
	return func(r *Request) {
		if r.Header == nil {
			r.Header = map[string]string{}
		}
		r.Header[key] = value
	}
}

// Client is a thin, reusable front over a Link. It is safe for concurrent use.
type Client struct {
	link Link
}

// New returns a client speaking through link.
func New(link Link) *Client {
	return &Client{link: link}
}

func buildRequest(path string, input any, opts []CallOption) (*Request, error) {
	segments := splitPath(path)
	if len(segments) == 0 {
		return nil, fmt.Errorf("empty procedure path")
	}
	req := &Request{Path: segments, Input: input}
	for _, opt := range opts {
		opt(req)
	}
	return req, nil
}

func splitPath(path string) []string {
	var segments []string
	for _, segment := range strings.Split(path, "/") {
		if segment != "" {
			segments = append(segments, segment)
		}
	}
	return segments
}

// Call invokes a unary procedure and decodes its output into out. Wire
// errors come back as *rpcerrors.Error.
func (c *Client) Call(ctx context.Context, path string, input, out any, opts ...CallOption) error {
	req, err := buildRequest(path, input, opts)
	if err != nil {
		return err
	}

	resp, err := c.link.Call(ctx, req)
	if err != nil {
		return err
	}
	if resp.Stream != nil {
		resp.Stream.Close()
		return fmt.Errorf("procedure %q returned an event stream, use Stream", path)
	}

	return codec.DecodeResponse(resp.Status, resp.Body, out)
}

// Stream invokes a streaming procedure and returns its event iterator. The
// caller owns the iterator and must Close it.
func (c *Client) Stream(ctx context.Context, path string, input any, opts ...CallOption) (*stream.Iterator, error) {
	req, err := buildRequest(path, input, opts)
	if err != nil {
		return nil, err
	}

	resp, err := c.link.Call(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.Stream == nil {
		if err := codec.DecodeResponse(resp.Status, resp.Body, nil); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("procedure %q returned a unary response, use Call", path)
	}
	return resp.Stream, nil
}
