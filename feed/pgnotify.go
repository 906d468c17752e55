package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// PGNotifier publishes change events through postgres NOTIFY so every app
// instance listening on the channel sees them.
type PGNotifier struct {
	DB      *gorm.DB
	Channel string
}

func NewPGNotifier(db *gorm.DB, channel string) *PGNotifier {
	return &PGNotifier{DB: db, Channel: channel}
}

func (n *PGNotifier) Publish(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return n.DB.WithContext(ctx).Exec("SELECT pg_notify(?, ?)", n.Channel, string(payload)).Error
}

// PGListener relays postgres notifications into a local Broker.
type PGListener struct {
	DSN     string
	Channel string
	Broker  *Broker
	// RetryDelay is the pause before reconnecting after a dropped connection.
	RetryDelay time.Duration
}

func NewPGListener(dsn, channel string, broker *Broker) *PGListener {
	return &PGListener{DSN: dsn, Channel: channel, Broker: broker, RetryDelay: 5 * time.Second}
}

// Run listens until ctx is cancelled, reconnecting on errors. Notifications
// sent while disconnected are lost; clients recover on their next full read.
func (l *PGListener) Run(ctx context.Context) error {
	log.Info().Str("channel", l.Channel).Msg("[FeedListener] starting")
	for {
		err := l.listen(ctx)
		if ctx.Err() != nil {
			log.Info().Msg("[FeedListener] stopped")
			return nil
		}
		log.Error().Err(err).Dur("retry_in", l.RetryDelay).Msg("[FeedListener] connection lost")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(l.RetryDelay):
		}
	}
}

func (l *PGListener) listen(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, l.DSN)
	if err != nil {
		return fmt.Errorf("connecting listener: %w", err)
	}
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{l.Channel}.Sanitize()); err != nil {
		return fmt.Errorf("listen %s: %w", l.Channel, err)
	}

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		var e Event
		if err := json.Unmarshal([]byte(n.Payload), &e); err != nil {
			log.Warn().Err(err).Str("payload", n.Payload).Msg("[FeedListener] dropping malformed notification")
			continue
		}
		_ = l.Broker.Publish(ctx, e)
	}
}
