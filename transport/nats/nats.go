// Package nats provides a NATS Core request/reply transport for the RPC
// service. Procedure paths map onto dotted subjects under a configurable
// prefix. NATS replies are single messages, so streaming procedures are
// buffered into one response before replying.
package nats

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	natsgo "github.com/nats-io/nats.go"

	"github.com/mefengl/note-orpc/internal/runtime/codec"
	"github.com/mefengl/note-orpc/internal/runtime/jsoncodec"
	"github.com/mefengl/note-orpc/internal/runtime/logging"
	"github.com/mefengl/note-orpc/internal/runtime/rpcerrors"
	"github.com/mefengl/note-orpc/internal/runtime/stream"
	"github.com/mefengl/note-orpc/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "nats"

// Reply header carrying the response status code.
const HeaderStatus = "Rpc-Status"

// maxBufferedEvents caps how many stream events are collected into a single
// NATS reply before the stream is cut off.
const maxBufferedEvents = 1024

// ConnFactory allows overriding the connection creation for testing.
var ConnFactory = func(url string, opts ...natsgo.Option) (*natsgo.Conn, error) {
	return natsgo.Connect(url, opts...)
}

func init() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.NATSCapabilities)
}

// SubjectForPath renders a procedure path as a dotted subject under prefix.
// An empty prefix yields the bare dotted path.
func SubjectForPath(prefix string, path []string) string {
	subject := strings.Join(path, ".")
	if prefix == "" {
		return subject
	}
	return prefix + "." + subject
}

// PathForSubject recovers the procedure path from a dotted subject. It
// reports false when the subject does not live under prefix.
func PathForSubject(prefix, subject string) ([]string, bool) {
	if prefix != "" {
		rest, found := strings.CutPrefix(subject, prefix+".")
		if !found {
			return nil, false
		}
		subject = rest
	}
	if subject == "" {
		return nil, false
	}
	return strings.Split(subject, "."), true
}

type server struct {
	conn    *natsgo.Conn
	handler transport.Handler
	prefix  string
	logger  logging.ServiceLogger

	closeOnce sync.Once
}

// Serve subscribes under the configured prefix and answers requests until
// ctx is cancelled.
func (s *server) Serve(ctx context.Context) error {
	subject := ">"
	if s.prefix != "" {
		subject = s.prefix + ".>"
	}

	sub, err := s.conn.Subscribe(subject, func(msg *natsgo.Msg) {
		reply := s.process(ctx, msg)
		if reply == nil || msg.Reply == "" {
			return
		}
		if err := msg.RespondMsg(reply); err != nil {
			s.logger.Error("failed to respond to request", err, logging.LogFields{
				"subject": msg.Subject,
			})
		}
	})
	if err != nil {
		return err
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		s.logger.Error("failed to drain subscription", err, nil)
	}
	return ctx.Err()
}

func (s *server) Close() error {
	s.closeOnce.Do(func() {
		s.conn.Close()
	})
	return nil
}

// process answers one request message. It is split from Serve so the
// request/reply mapping can be exercised without a broker.
func (s *server) process(ctx context.Context, msg *natsgo.Msg) *natsgo.Msg {
	path, ok := PathForSubject(s.prefix, msg.Subject)
	if !ok {
		return s.errorReply(rpcerrors.New(rpcerrors.CodeNotFound, "subject outside the RPC prefix"))
	}

	header := http.Header{}
	header.Set("Content-Type", codec.ContentTypeJSON)
	if lastEventID := msg.Header.Get(codec.HeaderLastEventID); lastEventID != "" {
		header.Set(codec.HeaderLastEventID, lastEventID)
	}

	req := &codec.Request{
		Method: http.MethodPost,
		URL:    &url.URL{Path: "/" + strings.Join(path, "/")},
		Header: header,
	}
	if len(msg.Data) > 0 {
		req.Body = bytes.NewReader(msg.Data)
	}

	resp, matched := s.handler.Handle(ctx, req)
	if !matched {
		return s.errorReply(rpcerrors.New(rpcerrors.CodeNotFound, "no procedure matched"))
	}

	if resp.Stream != nil {
		return s.bufferedStreamReply(ctx, resp)
	}

	reply := natsgo.NewMsg("")
	reply.Header.Set(HeaderStatus, strconv.Itoa(resp.Status))
	reply.Data = resp.Body
	return reply
}

// bufferedStreamReply collects the whole event stream into a JSON array.
// NATS replies are one message, so incremental delivery is not possible.
func (s *server) bufferedStreamReply(ctx context.Context, resp *codec.Response) *natsgo.Msg {
	it := resp.Stream
	defer it.Close()

	var events []any
	for len(events) < maxBufferedEvents {
		ev, err := it.Next(ctx)
		if err != nil {
			if errors.Is(err, stream.Done) {
				break
			}
			return s.errorReply(err)
		}
		events = append(events, ev.Data)
	}

	payload, err := jsoncodec.Marshal(events)
	if err != nil {
		return s.errorReply(err)
	}

	reply := natsgo.NewMsg("")
	reply.Header.Set(HeaderStatus, strconv.Itoa(http.StatusOK))
	reply.Data = payload
	return reply
}

func (s *server) errorReply(err error) *natsgo.Msg {
	rpcErr := rpcerrors.Classify(err)
	payload, marshalErr := jsoncodec.Marshal(rpcErr)
	if marshalErr != nil {
		payload, _ = jsoncodec.Marshal(rpcErr.Sanitized())
	}

	reply := natsgo.NewMsg("")
	reply.Header.Set(HeaderStatus, strconv.Itoa(rpcErr.Status))
	reply.Data = payload
	return reply
}

// Build creates a new NATS transport.
func Build(ctx context.Context, cfg transport.Config, handler transport.Handler, logger logging.ServiceLogger) (transport.Transport, error) {
	url := cfg.GetNATSURL()
	if url == "" {
		return transport.Transport{}, errors.New("nats: URL is required")
	}

	conn, err := ConnFactory(url)
	if err != nil {
		return transport.Transport{}, err
	}

	return transport.Transport{
		Server: &server{
			conn:    conn,
			handler: handler,
			prefix:  cfg.GetNATSSubjectPrefix(),
			logger:  logger,
		},
	}, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.NATSCapabilities
}
