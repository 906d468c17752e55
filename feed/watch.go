package feed

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Watch keeps a client view fresh: it subscribes first, then hydrates with one
// full refresh, then refreshes again on every matching event until ctx ends.
// Subscribing before the initial read can cause one redundant refresh but never
// a missed change. Refresh errors are logged and the watch keeps going; the
// next event retries.
func Watch(ctx context.Context, sub Subscriber, f Filter, refresh func(context.Context) error) error {
	signal := make(chan struct{}, 1)
	s := sub.Subscribe(f, func(Event) {
		select {
		case signal <- struct{}{}:
		default:
		}
	})
	defer s.Unsubscribe()

	if err := refresh(ctx); err != nil {
		log.Warn().Err(err).Str("couple_id", f.CoupleID).Msg("[Feed] initial refresh failed")
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-signal:
			if err := refresh(ctx); err != nil {
				log.Warn().Err(err).Str("couple_id", f.CoupleID).Msg("[Feed] refresh failed")
			}
		}
	}
}
