package driftline

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// startSweepWorker periodically evicts idle sessions from the registry.
func (sim *Simulator) startSweepWorker(interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	sim.cancelSweep = cancel

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case now := <-ticker.C:
				if n := sim.registry.EvictIdle(now); n > 0 {
					sim.logger.Info("idle sessions evicted", zap.Int("count", n), zap.Int("live", sim.registry.Len()))
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}
