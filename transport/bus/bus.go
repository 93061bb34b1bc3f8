// Package bus provides an in-process request/reply transport built on
// Watermill's Go channel pub/sub. Requests arrive as messages on the request
// topic and replies are published to the reply topic named by the request,
// correlated by the Watermill correlation identifier. Streaming procedures
// reply with one message per event followed by a terminal frame.
package bus

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/mefengl/note-orpc/internal/runtime/codec"
	"github.com/mefengl/note-orpc/internal/runtime/jsoncodec"
	"github.com/mefengl/note-orpc/internal/runtime/logging"
	"github.com/mefengl/note-orpc/internal/runtime/rpcerrors"
	"github.com/mefengl/note-orpc/internal/runtime/stream"
	"github.com/mefengl/note-orpc/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "bus"

// Metadata keys of the request/reply envelope.
const (
	MetadataPath        = "rpc_path"
	MetadataReplyTo     = "rpc_reply_to"
	MetadataLastEventID = "rpc_last_event_id"
	MetadataStatus      = "rpc_status"
	MetadataFrame       = "rpc_frame"
	MetadataEventID     = "rpc_event_id"
	MetadataEventName   = "rpc_event_name"
)

// Frame kinds carried in MetadataFrame on reply messages.
const (
	FrameResponse = "response"
	FrameEvent    = "event"
	FrameDone     = "done"
	FrameError    = "error"
)

// Default topics used when the config leaves them empty.
const (
	DefaultRequestTopic = "rpc.requests"
	DefaultReplyTopic   = "rpc.replies"
)

// PubSubFactory allows overriding the Go channel pub/sub creation for testing.
var PubSubFactory = func(logger watermill.LoggerAdapter) *gochannel.GoChannel {
	return gochannel.NewGoChannel(gochannel.Config{}, logger)
}

func init() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.BusCapabilities)
}

type server struct {
	pubsub       *gochannel.GoChannel
	handler      transport.Handler
	requestTopic string
	replyTopic   string
	logger       logging.ServiceLogger

	closeOnce sync.Once
	closeErr  error
}

// Serve consumes request messages until ctx is cancelled.
func (s *server) Serve(ctx context.Context) error {
	msgs, err := s.pubsub.Subscribe(ctx, s.requestTopic)
	if err != nil {
		return err
	}

	for msg := range msgs {
		s.process(ctx, msg)
		msg.Ack()
	}
	return ctx.Err()
}

func (s *server) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.pubsub.Close()
	})
	return s.closeErr
}

func (s *server) process(ctx context.Context, msg *message.Message) {
	header := http.Header{}
	header.Set("Content-Type", codec.ContentTypeJSON)
	if lastEventID := msg.Metadata[MetadataLastEventID]; lastEventID != "" {
		header.Set(codec.HeaderLastEventID, lastEventID)
	}

	req := &codec.Request{
		Method: http.MethodPost,
		URL:    &url.URL{Path: "/" + msg.Metadata[MetadataPath]},
		Header: header,
	}
	if len(msg.Payload) > 0 {
		req.Body = bytes.NewReader(msg.Payload)
	}

	replyTo := msg.Metadata[MetadataReplyTo]
	if replyTo == "" {
		replyTo = s.replyTopic
	}
	correlationID := middleware.MessageCorrelationID(msg)

	resp, matched := s.handler.Handle(ctx, req)
	if !matched {
		s.replyError(replyTo, correlationID, rpcerrors.New(rpcerrors.CodeNotFound, "no procedure matched"))
		return
	}

	if resp.Stream != nil {
		s.replyStream(ctx, replyTo, correlationID, resp)
		return
	}

	reply := s.newReply(correlationID, resp.Body)
	reply.Metadata[MetadataFrame] = FrameResponse
	reply.Metadata[MetadataStatus] = statusString(resp.Status)
	s.publish(replyTo, reply)
}

func (s *server) replyStream(ctx context.Context, replyTo, correlationID string, resp *codec.Response) {
	it := resp.Stream
	defer it.Close()

	for {
		ev, err := it.Next(ctx)
		if err != nil {
			if errors.Is(err, stream.Done) {
				done := s.newReply(correlationID, nil)
				done.Metadata[MetadataFrame] = FrameDone
				s.publish(replyTo, done)
				return
			}
			s.replyError(replyTo, correlationID, err)
			return
		}

		payload, marshalErr := jsoncodec.Marshal(ev.Data)
		if marshalErr != nil {
			s.replyError(replyTo, correlationID, marshalErr)
			return
		}
		reply := s.newReply(correlationID, payload)
		reply.Metadata[MetadataFrame] = FrameEvent
		if ev.ID != "" {
			reply.Metadata[MetadataEventID] = ev.ID
		}
		if ev.Name != "" {
			reply.Metadata[MetadataEventName] = ev.Name
		}
		s.publish(replyTo, reply)
	}
}

func (s *server) replyError(replyTo, correlationID string, err error) {
	rpcErr := rpcerrors.Classify(err)
	payload, marshalErr := jsoncodec.Marshal(rpcErr)
	if marshalErr != nil {
		payload, _ = jsoncodec.Marshal(rpcErr.Sanitized())
	}

	reply := s.newReply(correlationID, payload)
	reply.Metadata[MetadataFrame] = FrameError
	reply.Metadata[MetadataStatus] = statusString(rpcErr.Status)
	s.publish(replyTo, reply)
}

func (s *server) newReply(correlationID string, payload []byte) *message.Message {
	reply := message.NewMessage(watermill.NewUUID(), payload)
	if correlationID != "" {
		middleware.SetCorrelationID(correlationID, reply)
	}
	return reply
}

func (s *server) publish(topic string, reply *message.Message) {
	if err := s.pubsub.Publish(topic, reply); err != nil {
		s.logger.Error("failed to publish reply", err, logging.LogFields{
			"topic": topic,
		})
	}
}

func statusString(status int) string {
	return strconv.Itoa(status)
}

// Build creates a new in-process bus transport.
func Build(ctx context.Context, cfg transport.Config, handler transport.Handler, logger logging.ServiceLogger) (transport.Transport, error) {
	requestTopic := cfg.GetBusRequestTopic()
	if requestTopic == "" {
		requestTopic = DefaultRequestTopic
	}
	replyTopic := cfg.GetBusReplyTopic()
	if replyTopic == "" {
		replyTopic = DefaultReplyTopic
	}

	pubsub := PubSubFactory(logging.NewWatermillAdapter(logger))

	return transport.Transport{
		Server: &server{
			pubsub:       pubsub,
			handler:      handler,
			requestTopic: requestTopic,
			replyTopic:   replyTopic,
			logger:       logger,
		},
	}, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.BusCapabilities
}
