// Package stream implements the event-iterator model used for streaming
// responses: a lazy, cancelable, pull-based sequence of values with
// server-sent-event wire framing.
package stream

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Done is the terminal marker for a normally-completed stream. Next returns
// it after the last event; it is never delivered to the remote side as an
// error.
var Done = errors.New("orpc: stream done")

// ErrClosed is returned by Next after the iterator has been closed.
var ErrClosed = errors.New("orpc: stream is closed")

// Event is a single streamed value with its wire metadata. Name values
// "done" and "error" are reserved for the terminal frames and must not be
// used by producers.
type Event struct {
	Data  any
	ID    string
	Name  string
	Retry time.Duration
}

// NextFunc produces the next event. It returns Done when the sequence
// completes normally and any other error to terminate the stream with that
// error. Implementations must honor ctx cancellation while blocked.
type NextFunc func(ctx context.Context) (Event, error)

// Iterator is a lazy, non-restartable event sequence. It is pulled by a
// single consumer; Close may additionally be called from an abort path and
// releases the underlying source exactly once.
type Iterator struct {
	next NextFunc

	mu       sync.Mutex
	closed   bool
	closeFn  func() error
	closeErr error
}

// Option customises an Iterator under construction.
type Option func(*Iterator)

// WithClose registers the resource-release hook invoked exactly once when
// the iterator is closed, completes, or fails.
func WithClose(fn func() error) Option {
	return func(it *Iterator) { it.closeFn = fn }
}

// New builds an iterator around a producer function.
func New(next NextFunc, opts ...Option) *Iterator {
	if next == nil {
		panic("orpc: stream iterator requires a next function")
	}
	it := &Iterator{next: next}
	for _, opt := range opts {
		opt(it)
	}
	return it
}

// Next pulls the following event. A terminal result (Done or an error)
// closes the iterator before returning, so the source is released even when
// the consumer never calls Close.
func (it *Iterator) Next(ctx context.Context) (Event, error) {
	it.mu.Lock()
	closed := it.closed
	it.mu.Unlock()
	if closed {
		return Event{}, ErrClosed
	}

	if err := ctx.Err(); err != nil {
		it.Close()
		return Event{}, err
	}

	ev, err := it.next(ctx)
	if err != nil {
		it.Close()
		return Event{}, err
	}
	return ev, nil
}

// Close releases the underlying source. It is idempotent; concurrent calls
// observe a single release.
func (it *Iterator) Close() error {
	it.mu.Lock()
	defer it.mu.Unlock()
	if it.closed {
		return it.closeErr
	}
	it.closed = true
	if it.closeFn != nil {
		it.closeErr = it.closeFn()
	}
	return it.closeErr
}

// FromSlice returns an iterator yielding the given events then completing.
func FromSlice(events []Event, opts ...Option) *Iterator {
	i := 0
	return New(func(ctx context.Context) (Event, error) {
		if i >= len(events) {
			return Event{}, Done
		}
		ev := events[i]
		i++
		return ev, nil
	}, opts...)
}

// FromChannel returns an iterator fed by ch. Closing the channel completes
// the stream.
func FromChannel(ch <-chan Event, opts ...Option) *Iterator {
	return New(func(ctx context.Context) (Event, error) {
		select {
		case ev, ok := <-ch:
			if !ok {
				return Event{}, Done
			}
			return ev, nil
		case <-ctx.Done():
			return Event{}, ctx.Err()
		}
	}, opts...)
}

// MapError returns an iterator that rewrites terminal errors via fn before
// they reach the consumer. Done passes through untouched. The source
// iterator's release hook is chained.
func MapError(it *Iterator, fn func(error) error) *Iterator {
	return New(func(ctx context.Context) (Event, error) {
		ev, err := it.Next(ctx)
		if err != nil && !errors.Is(err, Done) {
			return Event{}, fn(err)
		}
		return ev, err
	}, WithClose(it.Close))
}
