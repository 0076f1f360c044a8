package janitor

import (
	"context"
	"time"

	"github.com/nkiryanov/newsdesk/internal/logger"
)

type Producer struct {
	interval time.Duration
	grace    time.Duration
	logger   logger.Logger
	media    mediaService
}

func (p *Producer) Produce(ctx context.Context, out chan<- string) <-chan struct{} {
	idleStopped := make(chan struct{})
	p.logger.Debug("starting producer", "interval", p.interval, "grace", p.grace)

	go func() {
		defer close(idleStopped)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				p.logger.Debug("producer stopped by context")
				return

			case <-ticker.C:
				orphans, err := p.media.Orphans(ctx, p.grace)
				if err != nil {
					p.logger.Error("failed to find orphaned media", "error", err)
					continue
				}
				if len(orphans) > 0 {
					p.logger.Info("orphaned media found", "count", len(orphans))
				}

				for _, key := range orphans {
					select {
					case <-ctx.Done():
						p.logger.Debug("producer stopped by context while sending keys")
						return
					case out <- key:
					}
				}
			}
		}
	}()

	return idleStopped
}
