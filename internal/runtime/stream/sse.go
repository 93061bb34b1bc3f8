package stream

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/mefengl/note-orpc/internal/runtime/ids"
	"github.com/mefengl/note-orpc/internal/runtime/jsoncodec"
	"github.com/mefengl/note-orpc/internal/runtime/rpcerrors"
)

// Terminal frame names on the wire.
const (
	frameDone  = "done"
	frameError = "error"
)

// ContentType is the media type of an encoded event stream.
const ContentType = "text/event-stream"

// Encoder writes events as SSE frames: optional id/event/retry fields, a
// JSON data payload, and a blank-line delimiter.
type Encoder struct {
	w io.Writer
}

// NewEncoder returns an encoder writing frames to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// WriteEvent encodes a single event frame.
func (e *Encoder) WriteEvent(ev Event) error {
	var b strings.Builder
	if ev.ID != "" {
		fmt.Fprintf(&b, "id: %s\n", ev.ID)
	}
	if ev.Name != "" {
		fmt.Fprintf(&b, "event: %s\n", ev.Name)
	}
	if ev.Retry > 0 {
		fmt.Fprintf(&b, "retry: %d\n", ev.Retry.Milliseconds())
	}
	data, err := jsoncodec.Marshal(ev.Data)
	if err != nil {
		return err
	}
	fmt.Fprintf(&b, "data: %s\n\n", data)

	_, err = io.WriteString(e.w, b.String())
	return err
}

// WriteComment writes a payload-free comment frame. Used as the keep-alive
// marker; decoders skip it.
func (e *Encoder) WriteComment(text string) error {
	_, err := fmt.Fprintf(e.w, ": %s\n\n", text)
	return err
}

// WriteDone writes the normal end-of-stream marker.
func (e *Encoder) WriteDone() error {
	_, err := fmt.Fprintf(e.w, "event: %s\ndata: null\n\n", frameDone)
	return err
}

// WriteError writes the distinguished terminal error frame.
func (e *Encoder) WriteError(rpcErr *rpcerrors.Error) error {
	data, err := jsoncodec.Marshal(rpcErr)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(e.w, "event: %s\ndata: %s\n\n", frameError, data)
	return err
}

// Decoder reads SSE frames back into events. Comment frames are skipped;
// the done frame surfaces as Done and the error frame as an *rpcerrors.Error.
type Decoder struct {
	r *bufio.Reader
}

// NewDecoder returns a decoder reading frames from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Next reads the following event frame. An EOF before a terminal frame is
// reported as io.ErrUnexpectedEOF: a stream must end with done or error.
func (d *Decoder) Next() (Event, error) {
	var (
		ev        Event
		dataLines []string
		sawField  bool
	)

	for {
		line, err := d.r.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return Event{}, io.ErrUnexpectedEOF
			}
			return Event{}, err
		}
		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if !sawField {
				// Blank line after a comment-only (keep-alive) frame.
				continue
			}
			break
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "id":
			ev.ID = value
			sawField = true
		case "event":
			ev.Name = value
			sawField = true
		case "retry":
			if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
				ev.Retry = time.Duration(ms) * time.Millisecond
			}
			sawField = true
		case "data":
			dataLines = append(dataLines, value)
			sawField = true
		}
	}

	payload := strings.Join(dataLines, "\n")

	switch ev.Name {
	case frameDone:
		return Event{}, Done
	case frameError:
		wireErr := &rpcerrors.Error{}
		if err := jsoncodec.Unmarshal([]byte(payload), wireErr); err != nil || wireErr.Code == "" {
			return Event{}, rpcerrors.New(rpcerrors.CodeInternalServerError, "malformed stream error frame")
		}
		return Event{}, wireErr
	}

	if payload != "" {
		if err := jsoncodec.Unmarshal([]byte(payload), &ev.Data); err != nil {
			return Event{}, fmt.Errorf("orpc: malformed stream data frame: %w", err)
		}
	}
	return ev, nil
}

// FromDecoder adapts a decoder into an Iterator; closeFn releases the
// underlying connection.
func FromDecoder(d *Decoder, closeFn func() error) *Iterator {
	opts := []Option{}
	if closeFn != nil {
		opts = append(opts, WithClose(closeFn))
	}
	return New(func(ctx context.Context) (Event, error) {
		return d.Next()
	}, opts...)
}

// Pump drains the iterator into the encoder until completion, terminal
// error, or ctx cancellation, interleaving keep-alive comments while idle.
// Events without an id get a generated ULID so consumers always have a
// resumption cursor. The iterator is closed on every exit path. The returned
// error is non-nil only for transport-level failures (including ctx
// cancellation); a stream error is delivered on the wire and returns nil.
func Pump(ctx context.Context, it *Iterator, enc *Encoder, flush func(), keepAlive time.Duration) error {
	defer it.Close()

	if flush == nil {
		flush = func() {}
	}

	type pullResult struct {
		ev  Event
		err error
	}
	// stop lets the puller exit when Pump returns on a write failure; a
	// never-cancelled ctx must not strand it on the send.
	stop := make(chan struct{})
	defer close(stop)

	results := make(chan pullResult)
	go func() {
		for {
			ev, err := it.Next(ctx)
			select {
			case results <- pullResult{ev: ev, err: err}:
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	var keepAliveC <-chan time.Time
	if keepAlive > 0 {
		ticker := time.NewTicker(keepAlive)
		defer ticker.Stop()
		keepAliveC = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case r := <-results:
			if r.err != nil {
				if errors.Is(r.err, Done) {
					if err := enc.WriteDone(); err != nil {
						return err
					}
					flush()
					return nil
				}
				if errors.Is(r.err, ctx.Err()) && ctx.Err() != nil {
					return r.err
				}
				if err := enc.WriteError(rpcerrors.Classify(r.err)); err != nil {
					return err
				}
				flush()
				return nil
			}
			if r.ev.ID == "" {
				r.ev.ID = ids.CreateULID()
			}
			if err := enc.WriteEvent(r.ev); err != nil {
				return err
			}
			flush()
		case <-keepAliveC:
			if err := enc.WriteComment("ping"); err != nil {
				return err
			}
			flush()
		}
	}
}
