// Package bodylimit enforces a per-call cap on request body size. The limit
// is applied incrementally as bytes stream in, not only via the declared
// length header: a declared length can be absent, zero, or understated.
package bodylimit

import (
	"fmt"
	"io"

	"github.com/mefengl/note-orpc/internal/runtime/rpcerrors"
)

// Trip builds the error returned when a body exceeds limit bytes.
func Trip(limit int64) *rpcerrors.Error {
	return rpcerrors.New(
		rpcerrors.CodePayloadTooLarge,
		fmt.Sprintf("request body exceeds limit of %d bytes", limit),
	)
}

// Check fast-rejects by declared length before any byte is read. declared is
// the Content-Length value, negative when absent.
func Check(declared, limit int64) error {
	if limit <= 0 {
		return nil
	}
	if declared > limit {
		return Trip(limit)
	}
	return nil
}

// Reader wraps r in a counting decorator that fails the read crossing the
// threshold. The counter is local to the returned reader and never shared
// across calls. limit <= 0 disables the guard.
func Reader(r io.Reader, limit int64) io.Reader {
	if limit <= 0 {
		return r
	}
	return &limitedReader{r: r, remaining: limit, limit: limit}
}

type limitedReader struct {
	r         io.Reader
	remaining int64
	limit     int64
	tripped   bool
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.tripped {
		return 0, Trip(l.limit)
	}

	// Read at most one byte past the budget so the crossing chunk, and only
	// the crossing chunk, observes the trip.
	budget := l.remaining + 1
	if int64(len(p)) > budget {
		p = p[:budget]
	}

	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	if l.remaining < 0 {
		l.tripped = true
		return 0, Trip(l.limit)
	}
	return n, err
}
