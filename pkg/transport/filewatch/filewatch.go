// Package filewatch implements a transport that watches a directory for
// newly written JSON-lines files and emits one message per line, as they
// arrive - the hot-reload-capable sibling of the batch-oriented csv
// transport.
package filewatch

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"os"

	"github.com/fsnotify/fsnotify"

	"github.com/scrywarden/scrywarden/pkg/entry"
	"github.com/scrywarden/scrywarden/pkg/errs"
	tx "github.com/scrywarden/scrywarden/pkg/transport"
)

// Transport watches Dir for fsnotify Create/Write events on files ending
// in Suffix (".jsonl" by default), parsing the whole file as
// newline-delimited JSON objects on every such event; a file written in
// several steps is read, and its lines emitted, once per event.
type Transport struct {
	name   string
	Dir    string
	Suffix string
	Logger *slog.Logger
}

// New returns a directory-watching transport.
func New(name, dir, suffix string, logger *slog.Logger) *Transport {
	if suffix == "" {
		suffix = ".jsonl"
	}
	return &Transport{name: name, Dir: dir, Suffix: suffix, Logger: logger}
}

func (t *Transport) Name() string { return t.name }

// Run implements transport.Transport.
func (t *Transport) Run(ctx context.Context, out chan<- entry.PipelineEntry) {
	defer tx.Send(context.Background(), t.Logger, out, entry.NewTransportShutdownEntry(t.name))

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		if t.Logger != nil {
			t.Logger.ErrorContext(ctx, "filewatch: creating watcher failed", "error", errs.NewTransportError(t.name, err))
		}
		return
	}
	defer watcher.Close()

	if err := watcher.Add(t.Dir); err != nil {
		if t.Logger != nil {
			t.Logger.ErrorContext(ctx, "filewatch: watching directory failed", "dir", t.Dir, "error", err)
		}
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if !hasSuffix(ev.Name, t.Suffix) {
				continue
			}
			messages, err := t.readFile(ev.Name)
			if err != nil {
				if t.Logger != nil {
					t.Logger.WarnContext(ctx, "filewatch: reading file failed", "file", ev.Name, "error", err)
				}
				continue
			}
			for _, m := range messages {
				if !tx.Send(ctx, t.Logger, out, entry.NewMessageEntry(t.name, m)) {
					return
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			if t.Logger != nil {
				t.Logger.WarnContext(ctx, "filewatch: watcher error", "error", err)
			}
		}
	}
}

func (t *Transport) readFile(path string) ([]entry.Message, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var messages []entry.Message
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var data map[string]any
		if err := json.Unmarshal(line, &data); err != nil {
			if t.Logger != nil {
				t.Logger.WarnContext(context.Background(), "filewatch: skipping malformed line", "file", path, "error", err)
			}
			continue
		}
		messages = append(messages, tx.NewMessage(data))
	}
	return messages, scanner.Err()
}

func hasSuffix(name, suffix string) bool {
	if len(suffix) == 0 {
		return true
	}
	if len(name) < len(suffix) {
		return false
	}
	return name[len(name)-len(suffix):] == suffix
}
