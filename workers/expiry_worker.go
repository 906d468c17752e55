// workers/expiry_worker.go
package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"
)

// SessionExpirer is implemented by services.SessionService.
type SessionExpirer interface {
	ExpireStale(ctx context.Context) (int, error)
}

// ExpiryWorker periodically closes sessions whose partner never came back.
type ExpiryWorker struct {
	Sessions SessionExpirer
	Interval time.Duration
}

func NewExpiryWorker(sessions SessionExpirer, interval time.Duration) *ExpiryWorker {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &ExpiryWorker{Sessions: sessions, Interval: interval}
}

// Sweep runs one expiry pass.
func (w *ExpiryWorker) Sweep(ctx context.Context) {
	n, err := w.Sessions.ExpireStale(ctx)
	if err != nil {
		log.Error().Err(err).Msg("[Expiry] sweep failed")
		return
	}
	if n > 0 {
		log.Info().Int("expired", n).Msg("⌛ [Expiry] stale sessions closed")
	}
}

// Run schedules Sweep every Interval until ctx is done.
func (w *ExpiryWorker) Run(ctx context.Context) error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("creating scheduler: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(w.Interval),
		gocron.NewTask(func() { w.Sweep(ctx) }),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("scheduling expiry sweep: %w", err)
	}

	log.Info().Dur("interval", w.Interval).Msg("[Expiry] worker started")
	sched.Start()
	<-ctx.Done()
	return sched.Shutdown()
}
