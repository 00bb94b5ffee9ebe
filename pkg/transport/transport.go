// Package transport supplies messages into the pipeline. A Transport is a
// producer task: it runs until its context is cancelled or it has no more
// work of its own, sending zero or more messages and always finishing with
// exactly one shutdown entry so the coordinator can track its active
// transport set.
package transport

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/scrywarden/scrywarden/pkg/backoff"
	"github.com/scrywarden/scrywarden/pkg/entry"
)

// Transport produces messages for the pipeline.
type Transport interface {
	Name() string
	Run(ctx context.Context, out chan<- entry.PipelineEntry)
}

// Processor does one unit of a transport's work, returning the messages it
// produced (possibly none) and whether the transport has more work to do.
// Shapes (Ephemeral, Repeatable, Interval) call this repeatedly according
// to their own scheduling rule.
type Processor interface {
	Process(ctx context.Context) (messages []entry.Message, more bool, err error)
}

// Send delivers one entry to out, retrying with exponential backoff while
// the channel is full, until it succeeds or ctx is cancelled. A producer
// must never block forever on a full queue without the chance to notice
// shutdown.
func Send(ctx context.Context, logger *slog.Logger, out chan<- entry.PipelineEntry, e entry.PipelineEntry) bool {
	bo := backoff.NewExponentialBackoff(2, 1, false)
	for {
		select {
		case out <- e:
			return true
		case <-ctx.Done():
			return false
		default:
		}
		select {
		case out <- e:
			return true
		case <-ctx.Done():
			return false
		case <-time.After(bo.Next()):
			if logger != nil {
				logger.DebugContext(ctx, "queue full, backing off", "attempts", bo.Attempts())
			}
		}
	}
}

func newMessageID() uuid.UUID { return uuid.New() }

// NewMessage wraps raw extracted data as a queue-ready message, stamping it
// with a fresh ID and the current time.
func NewMessage(data map[string]any) entry.Message {
	return entry.Message{ID: newMessageID(), Data: data, Timestamp: time.Now()}
}
