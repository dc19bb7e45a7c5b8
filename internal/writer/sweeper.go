package writer

import (
	"context"
	"log/slog"
	"time"
)

// StartSweeper sweeps the cache every interval until StopSweeper or Close is called.
// A rotation failure during a background sweep is recorded and returned by Err.
func (c *Cache) StartSweeper(ctx context.Context, interval time.Duration) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.sweeperStop != nil || c.closed || interval <= 0 {
		return
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	c.sweeperStop, c.sweeperDone = stop, done

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := c.Sweep(ctx, c.clock.Now()); err != nil {
					slog.Error("writer.Cache background sweep failed", "error", err)
					c.setAsyncErr(err)
				}
			}
		}
	}()
}

// StopSweeper stops the background sweeper and waits for an in-progress sweep to complete
func (c *Cache) StopSweeper() {
	c.mutex.Lock()
	stop, done := c.sweeperStop, c.sweeperDone
	c.sweeperStop, c.sweeperDone = nil, nil
	c.mutex.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}
