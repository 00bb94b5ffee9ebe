package transport

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"github.com/scrywarden/scrywarden/pkg/entry"
)

// runner adapts a Processor into a Transport by running it according to a
// scheduling shape (Ephemeral, Repeatable, Interval).
type runner struct {
	name      string
	proc      Processor
	logger    *slog.Logger
	schedule  func(ctx context.Context, r *runner, out chan<- entry.PipelineEntry)
}

func (r *runner) Name() string { return r.name }

func (r *runner) Run(ctx context.Context, out chan<- entry.PipelineEntry) {
	defer Send(context.Background(), r.logger, out, entry.NewTransportShutdownEntry(r.name))
	r.schedule(ctx, r, out)
}

func (r *runner) emit(ctx context.Context, out chan<- entry.PipelineEntry, messages []entry.Message) bool {
	for _, m := range messages {
		if !Send(ctx, r.logger, out, entry.NewMessageEntry(r.name, m)) {
			return false
		}
	}
	return true
}

// NewEphemeral returns a transport that runs Process exactly once, sends
// whatever messages it produced, and shuts down - regardless of the
// reported `more` flag.
func NewEphemeral(name string, proc Processor, logger *slog.Logger) Transport {
	return &runner{name: name, proc: proc, logger: logger, schedule: func(ctx context.Context, r *runner, out chan<- entry.PipelineEntry) {
		messages, _, err := r.proc.Process(ctx)
		if err != nil {
			if r.logger != nil {
				r.logger.ErrorContext(ctx, "transport process failed", "transport", r.name, "error", err)
			}
			return
		}
		r.emit(ctx, out, messages)
	}}
}

// NewRepeatable returns a transport that loops calling Process until it
// reports no more work or ctx is cancelled. Every cycle yields to the
// scheduler once, even when Process produced nothing, so a transport that
// never sleeps still can't starve its sibling goroutines.
func NewRepeatable(name string, proc Processor, logger *slog.Logger) Transport {
	return &runner{name: name, proc: proc, logger: logger, schedule: func(ctx context.Context, r *runner, out chan<- entry.PipelineEntry) {
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			messages, more, err := r.proc.Process(ctx)
			if err != nil {
				if r.logger != nil {
					r.logger.ErrorContext(ctx, "transport process failed", "transport", r.name, "error", err)
				}
				return
			}
			if !r.emit(ctx, out, messages) {
				return
			}
			runtime.Gosched()
			if !more {
				return
			}
		}
	}}
}

// NewInterval returns a transport that calls Process repeatedly, sleeping
// up to `interval` after each cycle (interruptible by ctx cancellation),
// until Process reports no more work.
func NewInterval(name string, proc Processor, interval time.Duration, logger *slog.Logger) Transport {
	return &runner{name: name, proc: proc, logger: logger, schedule: func(ctx context.Context, r *runner, out chan<- entry.PipelineEntry) {
		for {
			messages, more, err := r.proc.Process(ctx)
			if err != nil {
				if r.logger != nil {
					r.logger.ErrorContext(ctx, "transport process failed", "transport", r.name, "error", err)
				}
				return
			}
			if !r.emit(ctx, out, messages) {
				return
			}
			if !more {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(interval):
			}
		}
	}}
}
