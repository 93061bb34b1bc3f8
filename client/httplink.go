package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	nethttp "net/http"
	"net/url"
	"strings"

	"github.com/mefengl/note-orpc/internal/runtime/codec"
	"github.com/mefengl/note-orpc/internal/runtime/jsoncodec"
	"github.com/mefengl/note-orpc/internal/runtime/stream"
)

// HTTPLink speaks the RPC convention over HTTP. BaseURL includes the
// procedure prefix, e.g. "http://localhost:8080/rpc".
type HTTPLink struct {
	BaseURL string

	// HTTPClient defaults to nethttp.DefaultClient.
	HTTPClient *nethttp.Client
}

// NewHTTPLink returns a link for the given base URL.
func NewHTTPLink(baseURL string) *HTTPLink {
	return &HTTPLink{BaseURL: baseURL}
}

func (l *HTTPLink) httpClient() *nethttp.Client {
	if l.HTTPClient != nil {
		return l.HTTPClient
	}
	return nethttp.DefaultClient
}

func (l *HTTPLink) callURL(path []string) string {
	escaped := make([]string, len(path))
	for i, segment := range path {
		escaped[i] = url.PathEscape(segment)
	}
	return strings.TrimSuffix(l.BaseURL, "/") + "/" + strings.Join(escaped, "/")
}

// Call sends one request and wraps the response, leaving wire errors to the
// Client to decode. Streaming responses hand body ownership to the iterator.
func (l *HTTPLink) Call(ctx context.Context, req *Request) (*Response, error) {
	var body io.Reader
	if req.Input != nil {
		payload, err := jsoncodec.Marshal(req.Input)
		if err != nil {
			return nil, fmt.Errorf("failed to encode input: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodPost, l.callURL(req.Path), body)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", codec.ContentTypeJSON)
	if req.LastEventID != "" {
		httpReq.Header.Set(codec.HeaderLastEventID, req.LastEventID)
	}
	for key, value := range req.Header {
		httpReq.Header.Set(key, value)
	}

	httpResp, err := l.httpClient().Do(httpReq)
	if err != nil {
		return nil, err
	}

	mediaType, _, _ := mime.ParseMediaType(httpResp.Header.Get("Content-Type"))
	if mediaType == stream.ContentType {
		it := stream.FromDecoder(stream.NewDecoder(httpResp.Body), httpResp.Body.Close)
		return &Response{Status: httpResp.StatusCode, Stream: it}, nil
	}

	defer httpResp.Body.Close()
	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, err
	}
	return &Response{Status: httpResp.StatusCode, Body: data}, nil
}
