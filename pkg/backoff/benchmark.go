package backoff

import (
	"context"
	"log/slog"
	"time"
)

// Benchmark runs fn and logs its elapsed duration at debug level under the
// given label. It mirrors the teacher's pattern of wrapping expensive
// per-cycle work with a timing log statement.
func Benchmark(ctx context.Context, logger *slog.Logger, label string, fn func() error) error {
	start := time.Now()
	err := fn()
	elapsed := time.Since(start)
	if logger == nil {
		logger = slog.Default()
	}
	logger.DebugContext(ctx, "benchmark", "label", label, "elapsed", elapsed)
	return err
}
