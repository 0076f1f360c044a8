package janitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/newsdesk/internal/logger"
)

type fakeMedia struct {
	mu        sync.Mutex
	orphans   []string
	removed   []string
	removeErr error
	grace     time.Duration
}

func (f *fakeMedia) Orphans(_ context.Context, grace time.Duration) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.grace = grace
	orphans := f.orphans
	f.orphans = nil
	return orphans, nil
}

func (f *fakeMedia) RemoveMedia(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.removeErr != nil {
		return f.removeErr
	}
	f.removed = append(f.removed, keys...)
	return nil
}

func (f *fakeMedia) removedKeys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.removed...)
}

func TestJanitor(t *testing.T) {
	t.Run("removes orphans", func(t *testing.T) {
		media := &fakeMedia{orphans: []string{"a.jpg", "b.jpg", "c.mp4"}}
		j := New(Config{Interval: 10 * time.Millisecond, Grace: time.Minute, CountWorkers: 2}, logger.NewNoOpLogger(), media)

		ctx, cancel := context.WithCancel(t.Context())
		stopped := j.Process(ctx)

		require.Eventually(t, func() bool {
			return len(media.removedKeys()) == 3
		}, time.Second, 5*time.Millisecond)

		cancel()
		<-stopped

		require.ElementsMatch(t, []string{"a.jpg", "b.jpg", "c.mp4"}, media.removedKeys())
		require.Equal(t, time.Minute, media.grace)
	})

	t.Run("stops without ticks", func(t *testing.T) {
		j := New(Config{}, logger.NewNoOpLogger(), &fakeMedia{})

		ctx, cancel := context.WithCancel(t.Context())
		stopped := j.Process(ctx)
		cancel()

		select {
		case <-stopped:
		case <-time.After(time.Second):
			t.Fatal("janitor must stop when context is done")
		}
	})
}

func TestConsumer_Throttled(t *testing.T) {
	media := &fakeMedia{removeErr: fmt.Errorf("remove: %w", &smithy.GenericAPIError{Code: "SlowDown", Message: "Please reduce your request rate."})}
	c := &Consumer{countWorkers: 1, media: media, logger: logger.NewNoOpLogger()}

	ctx, cancel := context.WithCancel(t.Context())
	in := make(chan string)
	stopped := c.Consume(ctx, in)

	in <- "a.jpg"

	require.Eventually(t, func() bool {
		return time.UnixMilli(c.waitUntil.Load()).After(time.Now())
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-stopped
}

func TestIsThrottled(t *testing.T) {
	require.True(t, isThrottled(&smithy.GenericAPIError{Code: "SlowDown"}))
	require.False(t, isThrottled(&smithy.GenericAPIError{Code: "AccessDenied"}))
	require.False(t, isThrottled(errors.New("connection reset")))
}
