package bus

import (
	"context"
	nethttp "net/http"
	"strings"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mefengl/note-orpc/internal/runtime/codec"
	"github.com/mefengl/note-orpc/internal/runtime/logging"
	"github.com/mefengl/note-orpc/internal/runtime/stream"
	"github.com/mefengl/note-orpc/transport"
)

func TestCapabilities(t *testing.T) {
	caps := Capabilities()
	assert.Equal(t, transport.BusCapabilities, caps)
	assert.Equal(t, "bus", caps.Name)
}

func TestTransportName(t *testing.T) {
	assert.Equal(t, "bus", TransportName)
	assert.True(t, transport.DefaultRegistry.Has(TransportName))
}

type loopback struct {
	pubsub  *gochannel.GoChannel
	server  transport.Server
	replies <-chan *message.Message
	cancel  context.CancelFunc
}

// startLoopback builds a bus transport over a shared persistent pub/sub so
// the test can publish requests and observe replies directly.
func startLoopback(t *testing.T, core transport.Handler) *loopback {
	t.Helper()

	pubsub := gochannel.NewGoChannel(gochannel.Config{Persistent: true}, watermill.NopLogger{})
	original := PubSubFactory
	PubSubFactory = func(logger watermill.LoggerAdapter) *gochannel.GoChannel {
		return pubsub
	}
	t.Cleanup(func() { PubSubFactory = original })

	cfg := &mockConfig{requestTopic: "test.requests", replyTopic: "test.replies"}
	tr, err := Build(context.Background(), cfg, core, logging.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		_ = tr.Server.Serve(ctx)
	}()

	replies, err := pubsub.Subscribe(ctx, "test.replies")
	require.NoError(t, err)

	lb := &loopback{pubsub: pubsub, server: tr.Server, replies: replies, cancel: cancel}
	t.Cleanup(func() {
		lb.cancel()
		_ = lb.server.Close()
	})
	return lb
}

func (lb *loopback) request(t *testing.T, path, correlationID, payload string) {
	t.Helper()
	msg := message.NewMessage(watermill.NewUUID(), []byte(payload))
	middleware.SetCorrelationID(correlationID, msg)
	msg.Metadata[MetadataPath] = path
	msg.Metadata[MetadataReplyTo] = "test.replies"
	require.NoError(t, lb.pubsub.Publish("test.requests", msg))
}

func (lb *loopback) reply(t *testing.T) *message.Message {
	t.Helper()
	select {
	case msg := <-lb.replies:
		msg.Ack()
		return msg
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for reply")
		return nil
	}
}

func unaryCore() transport.Handler {
	return transport.HandlerFunc(func(ctx context.Context, req *codec.Request) (*codec.Response, bool) {
		if !strings.HasPrefix(req.URL.Path, "/users/") {
			return nil, false
		}
		header := nethttp.Header{}
		header.Set("Content-Type", codec.ContentTypeJSON)
		return &codec.Response{Status: nethttp.StatusOK, Header: header, Body: []byte(`{"name":"ada"}`)}, true
	})
}

func TestBusRequestReply(t *testing.T) {
	lb := startLoopback(t, unaryCore())

	lb.request(t, "users/get", "corr-1", `{"id":1}`)

	reply := lb.reply(t)
	assert.Equal(t, "corr-1", middleware.MessageCorrelationID(reply))
	assert.Equal(t, FrameResponse, reply.Metadata[MetadataFrame])
	assert.Equal(t, "200", reply.Metadata[MetadataStatus])
	assert.JSONEq(t, `{"name":"ada"}`, string(reply.Payload))
}

func TestBusUnmatchedPathRepliesError(t *testing.T) {
	lb := startLoopback(t, unaryCore())

	lb.request(t, "nowhere", "corr-2", `{}`)

	reply := lb.reply(t)
	assert.Equal(t, "corr-2", middleware.MessageCorrelationID(reply))
	assert.Equal(t, FrameError, reply.Metadata[MetadataFrame])
	assert.Equal(t, "404", reply.Metadata[MetadataStatus])
	assert.Contains(t, string(reply.Payload), "NOT_FOUND")
}

func TestBusStreamingReplies(t *testing.T) {
	core := transport.HandlerFunc(func(ctx context.Context, req *codec.Request) (*codec.Response, bool) {
		it := stream.FromSlice([]stream.Event{
			{Data: 1, ID: "a"},
			{Data: 2, ID: "b", Name: "tick"},
		})
		header := nethttp.Header{}
		header.Set("Content-Type", stream.ContentType)
		return &codec.Response{Status: nethttp.StatusOK, Header: header, Stream: it}, true
	})
	lb := startLoopback(t, core)

	lb.request(t, "events/watch", "corr-3", `{}`)

	first := lb.reply(t)
	assert.Equal(t, FrameEvent, first.Metadata[MetadataFrame])
	assert.Equal(t, "a", first.Metadata[MetadataEventID])
	assert.Equal(t, "1", string(first.Payload))

	second := lb.reply(t)
	assert.Equal(t, FrameEvent, second.Metadata[MetadataFrame])
	assert.Equal(t, "b", second.Metadata[MetadataEventID])
	assert.Equal(t, "tick", second.Metadata[MetadataEventName])

	done := lb.reply(t)
	assert.Equal(t, FrameDone, done.Metadata[MetadataFrame])
	assert.Equal(t, "corr-3", middleware.MessageCorrelationID(done))
}

func TestBusCarriesLastEventID(t *testing.T) {
	var seen string
	core := transport.HandlerFunc(func(ctx context.Context, req *codec.Request) (*codec.Response, bool) {
		seen = req.Header.Get(codec.HeaderLastEventID)
		return &codec.Response{Status: nethttp.StatusNoContent, Header: nethttp.Header{}}, true
	})
	lb := startLoopback(t, core)

	msg := message.NewMessage(watermill.NewUUID(), []byte(`{}`))
	middleware.SetCorrelationID("corr-4", msg)
	msg.Metadata[MetadataPath] = "events/watch"
	msg.Metadata[MetadataReplyTo] = "test.replies"
	msg.Metadata[MetadataLastEventID] = "evt-7"
	require.NoError(t, lb.pubsub.Publish("test.requests", msg))

	reply := lb.reply(t)
	assert.Equal(t, FrameResponse, reply.Metadata[MetadataFrame])
	assert.Equal(t, "evt-7", seen)
}

// Mock config for testing
type mockConfig struct {
	requestTopic string
	replyTopic   string
}

func (m *mockConfig) GetTransport() string              { return TransportName }
func (m *mockConfig) GetPrefix() string                 { return "" }
func (m *mockConfig) GetMaxBodyBytes() int64            { return 0 }
func (m *mockConfig) GetStreamKeepAlive() time.Duration { return 0 }
func (m *mockConfig) GetBusRequestTopic() string        { return m.requestTopic }
func (m *mockConfig) GetBusReplyTopic() string          { return m.replyTopic }
func (m *mockConfig) GetNATSURL() string                { return "" }
func (m *mockConfig) GetNATSSubjectPrefix() string      { return "" }
func (m *mockConfig) GetHTTPServerAddress() string      { return "" }
