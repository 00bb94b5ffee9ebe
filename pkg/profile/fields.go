package profile

import (
	"sort"

	"github.com/IGLOU-EU/go-wildcard/v2"
)

// Extractor pulls one JSON-serializable value out of a message for a
// single profile field.
type Extractor interface {
	Value(message map[string]any) any
}

// namedExtractor is implemented by extractors that fall back to their
// field's registered name when no explicit key was given, mirroring the
// name the field attribute was declared under.
type namedExtractor interface {
	setName(name string)
}

// Single returns one JSON value from the message, by default looking it
// up under the field's own name. Key, when set, overrides that lookup
// with a nested path.
type Single struct {
	Key  []string
	name string
}

func (s *Single) setName(name string) { s.name = name }

// Value implements Extractor.
func (s *Single) Value(message map[string]any) any {
	path := s.Key
	if len(path) == 0 {
		path = []string{s.name}
	}
	return lookup(message, path)
}

// Multi returns a JSON array built from the values at each given key.
type Multi struct {
	Keys [][]string
}

// Value implements Extractor.
func (m *Multi) Value(message map[string]any) any {
	values := make([]any, len(m.Keys))
	for i, path := range m.Keys {
		values[i] = lookup(message, path)
	}
	return values
}

// Wildcard returns every top-level value whose key matches a glob-style
// pattern, sorted by key for a deterministic encoding. Supplements Single
// and Multi for profiles that don't know their field's exact key ahead of
// time (e.g. any key ending in "_id").
type Wildcard struct {
	Pattern string
}

// Value implements Extractor.
func (w *Wildcard) Value(message map[string]any) any {
	keys := make([]string, 0, len(message))
	for k := range message {
		if wildcard.Match(w.Pattern, k) {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return nil
	}
	sort.Strings(keys)
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		out[k] = message[k]
	}
	return out
}

func lookup(message map[string]any, path []string) any {
	var cur any = message
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		v, ok := m[key]
		if !ok {
			return nil
		}
		cur = v
	}
	return cur
}
