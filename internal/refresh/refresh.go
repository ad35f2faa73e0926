// Package refresh keeps today's sales summary warm in the report cache so
// dashboards polling every few seconds read a recent aggregate.
package refresh

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"posbackoffice/backend/internal/domain"
)

// Summarizer recomputes and caches today's summary.
type Summarizer interface {
	RefreshTodaySummary(ctx context.Context) (domain.SalesSummary, error)
}

type Refresher struct {
	summarizer Summarizer
	interval   time.Duration
	timeout    time.Duration
	log        zerolog.Logger
}

func New(summarizer Summarizer, interval time.Duration, logger zerolog.Logger) *Refresher {
	timeout := interval
	if timeout <= 0 || timeout > 10*time.Second {
		timeout = 10 * time.Second
	}
	return &Refresher{
		summarizer: summarizer,
		interval:   interval,
		timeout:    timeout,
		log:        logger.With().Str("component", "refresh").Logger(),
	}
}

// Run refreshes once immediately, then on every tick until ctx is done.
// A non-positive interval disables the loop.
func (r *Refresher) Run(ctx context.Context) {
	if r.interval <= 0 {
		r.log.Info().Msg("report refresh disabled")
		return
	}

	r.log.Info().Dur("interval", r.interval).Msg("report refresh started")
	r.tick(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("report refresh stopped")
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Refresher) tick(ctx context.Context) {
	tickCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	started := time.Now()
	summary, err := r.summarizer.RefreshTodaySummary(tickCtx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		r.log.Warn().Err(err).Msg("report refresh failed")
		return
	}
	r.log.Debug().
		Str("store_id", summary.StoreID).
		Int64("transactions", summary.Transactions).
		Dur("took", time.Since(started)).
		Msg("report refreshed")
}
