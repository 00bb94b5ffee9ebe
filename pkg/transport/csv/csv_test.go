package csv

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransport_Process_ReadsHeaderFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "in.csv")
	require.NoError(t, os.WriteFile(path, []byte("host,user\nweb01,alice\nweb02,bob\n"), 0o644))

	tr := &Transport{File: path}
	messages, more, err := tr.Process(context.Background())
	require.NoError(t, err)
	assert.False(t, more)
	require.Len(t, messages, 2)
	assert.Equal(t, "web01", messages[0].Data["host"])
	assert.Equal(t, "alice", messages[0].Data["user"])
	assert.Equal(t, "bob", messages[1].Data["user"])
}

func TestTransport_Process_UsesExplicitHeadersWhenGiven(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "in.csv")
	require.NoError(t, os.WriteFile(path, []byte("web01,alice\n"), 0o644))

	tr := &Transport{File: path, Headers: []string{"host", "user"}}
	messages, _, err := tr.Process(context.Background())
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "web01", messages[0].Data["host"])
}

func TestTransport_Process_OnlyRunsOnce(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "in.csv")
	require.NoError(t, os.WriteFile(path, []byte("host\nweb01\n"), 0o644))

	tr := &Transport{File: path}
	_, _, err := tr.Process(context.Background())
	require.NoError(t, err)
	messages, more, err := tr.Process(context.Background())
	require.NoError(t, err)
	assert.False(t, more)
	assert.Empty(t, messages)
}
