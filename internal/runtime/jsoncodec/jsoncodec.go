// Package jsoncodec centralises JSON handling so the serializer can be
// swapped in one place. Sonic in std-compatible mode keeps behaviour aligned
// with encoding/json while staying fast on large payloads.
package jsoncodec

import (
	"io"

	"github.com/bytedance/sonic"
)

var defaultConfig = sonic.ConfigStd

// RawMessage defers decoding of a JSON fragment, used by the wire codec to
// pass event payloads through without re-encoding.
type RawMessage []byte

// MarshalJSON returns the raw fragment as-is.
func (m RawMessage) MarshalJSON() ([]byte, error) {
	if len(m) == 0 {
		return []byte("null"), nil
	}
	return m, nil
}

// UnmarshalJSON stores a copy of the fragment.
func (m *RawMessage) UnmarshalJSON(data []byte) error {
	*m = append((*m)[:0], data...)
	return nil
}

func Marshal(v any) ([]byte, error) {
	return defaultConfig.Marshal(v)
}

func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return defaultConfig.MarshalIndent(v, prefix, indent)
}

func Unmarshal(data []byte, v any) error {
	return defaultConfig.Unmarshal(data, v)
}

func Encode(w io.Writer, v any) error {
	enc := defaultConfig.NewEncoder(w)
	return enc.Encode(v)
}

func Decode(r io.Reader, v any) error {
	dec := defaultConfig.NewDecoder(r)
	return dec.Decode(v)
}

// Valid reports whether data is a syntactically valid JSON document.
func Valid(data []byte) bool {
	return defaultConfig.Valid(data)
}

// Roundtrip re-types value into out by encoding and decoding it. It is how
// contracts coerce an already-decoded wire value into a concrete Go type.
func Roundtrip(value any, out any) error {
	data, err := Marshal(value)
	if err != nil {
		return err
	}
	return Unmarshal(data, out)
}
