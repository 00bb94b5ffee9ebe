// Package csv implements an ephemeral transport that reads a CSV file,
// yielding one message per row keyed by column header.
package csv

import (
	"context"
	"encoding/csv"
	"io"
	"log/slog"
	"os"

	"github.com/scrywarden/scrywarden/pkg/entry"
	"github.com/scrywarden/scrywarden/pkg/errs"
	tx "github.com/scrywarden/scrywarden/pkg/transport"
)

// Transport reads every row of a CSV file as one message, using either the
// file's own header row or a caller-supplied set of column names.
type Transport struct {
	File         string
	Headers      []string
	ProcessCheck int
	Logger       *slog.Logger

	done bool
}

// New returns a CSV file transport scheduled as Ephemeral.
func New(name, file string, headers []string, processCheck int, logger *slog.Logger) tx.Transport {
	t := &Transport{File: file, Headers: headers, ProcessCheck: processCheck, Logger: logger}
	return tx.NewEphemeral(name, t, logger)
}

// Process implements transport.Processor.
func (t *Transport) Process(ctx context.Context) ([]entry.Message, bool, error) {
	if t.done {
		return nil, false, nil
	}
	t.done = true

	f, err := os.Open(t.File)
	if err != nil {
		return nil, false, errs.NewTransportError(t.File, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	headers := t.Headers
	if len(headers) == 0 {
		headers, err = r.Read()
		if err != nil {
			return nil, false, errs.NewTransportError(t.File, err)
		}
	}

	var messages []entry.Message
	row := 0
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, errs.NewTransportError(t.File, err)
		}
		row++
		data := make(map[string]any, len(headers))
		for i, h := range headers {
			if i < len(record) {
				data[h] = record[i]
			}
		}
		messages = append(messages, tx.NewMessage(data))
		if t.ProcessCheck > 0 && row%t.ProcessCheck == 0 && t.Logger != nil {
			t.Logger.InfoContext(ctx, "rows read", "file", t.File, "count", row)
		}
	}
	return messages, false, nil
}
