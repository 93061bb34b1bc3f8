package http

import (
	"bufio"
	"context"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mefengl/note-orpc/internal/runtime/codec"
	"github.com/mefengl/note-orpc/internal/runtime/logging"
	"github.com/mefengl/note-orpc/internal/runtime/stream"
	"github.com/mefengl/note-orpc/transport"
)

func TestCapabilities(t *testing.T) {
	caps := Capabilities()
	assert.Equal(t, transport.HTTPCapabilities, caps)
	assert.Equal(t, "http", caps.Name)
	assert.True(t, caps.SupportsStreaming)
}

func TestTransportName(t *testing.T) {
	assert.Equal(t, "http", TransportName)
	assert.True(t, transport.DefaultRegistry.Has(TransportName))
}

func unaryCore(status int, body string) transport.Handler {
	return transport.HandlerFunc(func(ctx context.Context, req *codec.Request) (*codec.Response, bool) {
		if !strings.HasPrefix(req.URL.Path, "/rpc/") {
			return nil, false
		}
		header := nethttp.Header{}
		header.Set("Content-Type", codec.ContentTypeJSON)
		return &codec.Response{Status: status, Header: header, Body: []byte(body)}, true
	})
}

func TestHandlerServesMatchedCall(t *testing.T) {
	h := NewHandler(unaryCore(nethttp.StatusOK, `{"ok":true}`), 0, logging.Nop())
	srv := httptest.NewServer(h)
	defer srv.Close()

	resp, err := nethttp.Post(srv.URL+"/rpc/users/get", codec.ContentTypeJSON, strings.NewReader(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, nethttp.StatusOK, resp.StatusCode)
	assert.Equal(t, codec.ContentTypeJSON, resp.Header.Get("Content-Type"))

	var body strings.Builder
	_, err = bufio.NewReader(resp.Body).WriteTo(&body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, body.String())
}

func TestHandlerFallsThroughWhenUnmatched(t *testing.T) {
	h := NewHandler(unaryCore(nethttp.StatusOK, `{}`), 0, logging.Nop())
	srv := httptest.NewServer(h)
	defer srv.Close()

	resp, err := nethttp.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, nethttp.StatusNotFound, resp.StatusCode)
}

func TestHandlerCustomFallback(t *testing.T) {
	h := NewHandler(unaryCore(nethttp.StatusOK, `{}`), 0, logging.Nop())
	h.Fallback = nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.WriteHeader(nethttp.StatusTeapot)
	})
	srv := httptest.NewServer(h)
	defer srv.Close()

	resp, err := nethttp.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, nethttp.StatusTeapot, resp.StatusCode)
}

func TestHandlerServesEventStream(t *testing.T) {
	core := transport.HandlerFunc(func(ctx context.Context, req *codec.Request) (*codec.Response, bool) {
		it := stream.FromSlice([]stream.Event{
			{Data: 1, ID: "a"},
			{Data: 2, ID: "b"},
		})
		header := nethttp.Header{}
		header.Set("Content-Type", stream.ContentType)
		return &codec.Response{Status: nethttp.StatusOK, Header: header, Stream: it}, true
	})

	srv := httptest.NewServer(NewHandler(core, 0, logging.Nop()))
	defer srv.Close()

	resp, err := nethttp.Post(srv.URL+"/events", codec.ContentTypeJSON, strings.NewReader(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, stream.ContentType, resp.Header.Get("Content-Type"))

	dec := stream.NewDecoder(resp.Body)

	ev, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, "a", ev.ID)

	ev, err = dec.Next()
	require.NoError(t, err)
	assert.Equal(t, "b", ev.ID)

	_, err = dec.Next()
	assert.ErrorIs(t, err, stream.Done)
}

func TestBuildUsesConfiguredAddress(t *testing.T) {
	cfg := &mockConfig{httpServerAddress: "127.0.0.1:0"}

	tr, err := Build(context.Background(), cfg, unaryCore(nethttp.StatusOK, `{}`), logging.Nop())
	require.NoError(t, err)
	require.NotNil(t, tr.Server)
	assert.NoError(t, tr.Server.Close())
}

func TestServerStopsOnContextCancel(t *testing.T) {
	cfg := &mockConfig{httpServerAddress: "127.0.0.1:0"}

	tr, err := Build(context.Background(), cfg, unaryCore(nethttp.StatusOK, `{}`), logging.Nop())
	require.NoError(t, err)
	defer tr.Server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- tr.Server.Serve(ctx)
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop after cancellation")
	}
}

// Mock config for testing
type mockConfig struct {
	httpServerAddress string
	keepAlive         time.Duration
}

func (m *mockConfig) GetTransport() string              { return TransportName }
func (m *mockConfig) GetPrefix() string                 { return "" }
func (m *mockConfig) GetMaxBodyBytes() int64            { return 0 }
func (m *mockConfig) GetStreamKeepAlive() time.Duration { return m.keepAlive }
func (m *mockConfig) GetBusRequestTopic() string        { return "" }
func (m *mockConfig) GetBusReplyTopic() string          { return "" }
func (m *mockConfig) GetNATSURL() string                { return "" }
func (m *mockConfig) GetNATSSubjectPrefix() string      { return "" }
func (m *mockConfig) GetHTTPServerAddress() string      { return m.httpServerAddress }
