// handlers/stream.go
package handlers

import (
	"bufio"
	"encoding/json"
	"fmt"
	"time"

	"couple-games/feed"
	"couple-games/middleware"
	"couple-games/services"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

const streamKeepAlive = 15 * time.Second

// SetupStreamRoutes exposes the change feed as server-sent events. Each
// "changed" event only tells the client to refetch; it carries ids, not rows.
func SetupStreamRoutes(secured fiber.Router, subscriber feed.Subscriber) {
	secured.Get("/stream", streamHandler(subscriber, streamKeepAlive))
}

func streamHandler(subscriber feed.Subscriber, keepAlive time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		filter := feed.Filter{CoupleID: middleware.CoupleID(c)}
		if raw := c.Query("game"); raw != "" {
			gt, err := services.ParseGameType(raw)
			if err != nil {
				return respondError(c, err)
			}
			filter.GameType = gt
		}
		return streamChanges(c, subscriber, filter, middleware.UserID(c), keepAlive)
	}
}

func streamChanges(c *fiber.Ctx, subscriber feed.Subscriber, filter feed.Filter, userID string, keepAlive time.Duration) error {
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no") // nginx

	events := make(chan feed.Event, 1)
	// Subscribe before the first write: the client hydrates on "ready", and
	// anything that changes afterwards is already queued for it.
	sub := subscriber.Subscribe(filter, func(e feed.Event) {
		select {
		case events <- e:
		default:
		}
	})

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer sub.Unsubscribe()
		ticker := time.NewTicker(keepAlive)
		defer ticker.Stop()

		fmt.Fprintf(w, "event: ready\ndata: {\"couple_id\":%q}\n\n", filter.CoupleID)
		if err := w.Flush(); err != nil {
			return
		}
		log.Debug().Str("user_id", userID).Str("couple_id", filter.CoupleID).Msg("📡 [Stream] client connected")

		for {
			select {
			case e := <-events:
				payload, _ := json.Marshal(e)
				fmt.Fprintf(w, "event: changed\ndata: %s\n\n", payload)
			case <-ticker.C:
				w.WriteString(":\n\n")
			}
			if err := w.Flush(); err != nil {
				// Client disconnected
				log.Debug().Str("user_id", userID).Msg("📡 [Stream] client disconnected")
				return
			}
		}
	})
	return nil
}
