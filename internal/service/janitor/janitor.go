// Package janitor periodically removes news media objects no article references.
// Producer finds orphans on every tick, consumer workers remove them.
package janitor

import (
	"context"
	"time"

	"github.com/nkiryanov/newsdesk/internal/logger"
)

const (
	defaultCountWorkers = 4
	defaultInterval     = time.Hour
	defaultGrace        = 24 * time.Hour
)

type mediaService interface {
	Orphans(ctx context.Context, grace time.Duration) ([]string, error)
	RemoveMedia(ctx context.Context, keys ...string) error
}

type Config struct {
	// Zero means default
	Interval time.Duration

	// Objects younger than grace are kept: article referencing them may still be in flight
	Grace        time.Duration
	CountWorkers int
}

type Janitor struct {
	consumer *Consumer
	producer *Producer
}

func New(cfg Config, l logger.Logger, media mediaService) *Janitor {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.Grace <= 0 {
		cfg.Grace = defaultGrace
	}
	if cfg.CountWorkers <= 0 {
		cfg.CountWorkers = defaultCountWorkers
	}

	l = l.WithGroup("janitor")

	return &Janitor{
		consumer: &Consumer{
			countWorkers: cfg.CountWorkers,
			media:        media,
			logger:       l,
		},
		producer: &Producer{
			interval: cfg.Interval,
			grace:    cfg.Grace,
			media:    media,
			logger:   l,
		},
	}
}

func (j *Janitor) Process(ctx context.Context) <-chan struct{} {
	idleStopped := make(chan struct{})

	keys := make(chan string)

	producerStopped := j.producer.Produce(ctx, keys)
	consumerStopped := j.consumer.Consume(ctx, keys)

	go func() {
		defer close(idleStopped)
		defer close(keys)
		<-producerStopped
		<-consumerStopped
		j.consumer.logger.Debug("janitor stopped")
	}()

	return idleStopped
}
