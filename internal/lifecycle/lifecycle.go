package lifecycle

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var shuttingDown atomic.Bool

// SetShuttingDown sets the shutdown flag. Call when SIGTERM/SIGINT received.
// Health handler returns 503 with status shutting-down while true.
func SetShuttingDown(v bool) {
	shuttingDown.Store(v)
}

// IsShuttingDown returns true if the process is draining and should not receive new traffic.
func IsShuttingDown() bool {
	return shuttingDown.Load()
}

// Step is one named phase of graceful shutdown.
type Step struct {
	Name string
	Run  func(ctx context.Context) error
}

// Shutdown sets the shutdown flag, then runs steps in order under a single deadline of timeout.
// A failing step is logged and does not stop the ones after it. Returns the first failure.
func Shutdown(ctx context.Context, logger *zap.Logger, timeout time.Duration, steps ...Step) error {
	SetShuttingDown(true)

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var first error
	for _, s := range steps {
		start := time.Now()
		if err := s.Run(ctx); err != nil {
			logger.Warn("shutdown step failed", zap.String("step", s.Name), zap.Error(err))
			if first == nil {
				first = fmt.Errorf("%s: %w", s.Name, err)
			}
			continue
		}
		logger.Info("shutdown step complete", zap.String("step", s.Name), zap.Duration("duration", time.Since(start)))
	}
	return first
}
