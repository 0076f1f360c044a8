package janitor

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/smithy-go"

	"github.com/nkiryanov/newsdesk/internal/logger"
)

// Pause of all workers after storage asked to slow down
const slowDownPause = 5 * time.Second

var throttleCodes = []string{"SlowDown", "Throttling", "ThrottlingException", "RequestLimitExceeded", "TooManyRequests"}

type Consumer struct {
	countWorkers int

	// Object storage may throttle deletes
	// If so, every worker waits until the time is up
	waitUntil atomic.Int64

	media  mediaService
	logger logger.Logger
}

func (c *Consumer) Consume(ctx context.Context, in <-chan string) <-chan struct{} {
	idleStopped := make(chan struct{})

	var wg sync.WaitGroup
	for range c.countWorkers {
		wg.Add(1)
		go func() {
			c.worker(ctx, in)
			wg.Done()
		}()
	}

	go func() {
		defer close(idleStopped)
		wg.Wait()
		c.logger.Debug("consumer stopped")
	}()

	return idleStopped
}

func (c *Consumer) worker(ctx context.Context, in <-chan string) {
	for {
		waitUntil := time.UnixMilli(c.waitUntil.Load())
		if waitUntil.After(time.Now()) {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Until(waitUntil)):
				continue
			}
		}

		select {
		case <-ctx.Done():
			return

		case key, ok := <-in:
			if !ok {
				c.logger.Debug("consumer worker stopped, input channel closed")
				return
			}

			err := c.media.RemoveMedia(ctx, key)
			switch {
			case err == nil:
				c.logger.Debug("orphaned media removed", "key", key)

			case isThrottled(err):
				c.logger.Info("storage throttled, pausing", "pause", slowDownPause)
				c.waitUntil.Store(time.Now().Add(slowDownPause).UnixMilli())

			default:
				c.logger.Error("failed to remove orphaned media", "key", key, "error", err)
			}
		}
	}
}

func isThrottled(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return slices.Contains(throttleCodes, apiErr.ErrorCode())
}
