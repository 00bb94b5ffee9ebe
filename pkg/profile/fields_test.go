package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSingle_DefaultsToFieldName(t *testing.T) {
	s := &Single{}
	s.setName("host")
	message := map[string]any{"host": "web01"}
	assert.Equal(t, "web01", s.Value(message))
}

func TestSingle_ExplicitKeyOverridesName(t *testing.T) {
	s := &Single{Key: []string{"source", "host"}}
	s.setName("host")
	message := map[string]any{"source": map[string]any{"host": "web01"}}
	assert.Equal(t, "web01", s.Value(message))
}

func TestSingle_MissingKeyReturnsNil(t *testing.T) {
	s := &Single{}
	s.setName("host")
	assert.Nil(t, s.Value(map[string]any{}))
}

func TestMulti_BuildsArrayFromEachKey(t *testing.T) {
	m := &Multi{Keys: [][]string{{"src"}, {"dst"}}}
	message := map[string]any{"src": "a", "dst": "b"}
	assert.Equal(t, []any{"a", "b"}, m.Value(message))
}

func TestWildcard_MatchesAndSortsKeys(t *testing.T) {
	w := &Wildcard{Pattern: "*_id"}
	message := map[string]any{
		"user_id": "u1",
		"host_id": "h1",
		"name":    "ignored",
	}
	got := w.Value(message)
	assert.Equal(t, map[string]any{"host_id": "h1", "user_id": "u1"}, got)
}

func TestWildcard_NoMatchesReturnsNil(t *testing.T) {
	w := &Wildcard{Pattern: "*_id"}
	assert.Nil(t, w.Value(map[string]any{"name": "x"}))
}
