package meta

// Meta is the per-call context bag threaded through the middleware chain.
// It is never mutated in place: every derivation clones and merges, so a
// step only ever observes additions made upstream of it.
type Meta map[string]any

func (m Meta) cloneWithExtra(extra int) Meta {
	size := len(m) + extra
	if size <= 0 {
		return Meta{}
	}

	cloned := make(Meta, size)
	for k, v := range m {
		cloned[k] = v
	}
	return cloned
}

// Clone returns a shallow copy of the bag.
func (m Meta) Clone() Meta {
	return m.cloneWithExtra(0)
}

// With returns a cloned bag containing the provided key/value pair.
func (m Meta) With(key string, value any) Meta {
	cloned := m.cloneWithExtra(1)
	cloned[key] = value
	return cloned
}

// WithAll returns a cloned bag merged with the supplied entries. Keys in
// entries override keys already present, so folding WithAll along a chain is
// associative in application order.
func (m Meta) WithAll(entries Meta) Meta {
	cloned := m.cloneWithExtra(len(entries))
	for k, v := range entries {
		cloned[k] = v
	}
	return cloned
}

// Get returns the value stored under key, reporting whether it was present.
func (m Meta) Get(key string) (any, bool) {
	v, ok := m[key]
	return v, ok
}

// GetString returns the value under key when it is a string.
func (m Meta) GetString(key string) (string, bool) {
	v, ok := m[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// New constructs a Meta from alternating key/value pairs.
func New(pairs ...any) Meta {
	md := make(Meta, len(pairs)/2)
	for i := 0; i < len(pairs)-1; i += 2 {
		key, ok := pairs[i].(string)
		if !ok {
			continue
		}
		md[key] = pairs[i+1]
	}
	return md
}
