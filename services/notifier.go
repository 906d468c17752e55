// services/notifier.go
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"couple-games/models"
	"couple-games/utils"

	"github.com/rs/zerolog/log"
)

type NotificationKind string

const (
	NotifyInvite        NotificationKind = "game_invite"
	NotifyPartnerJoined NotificationKind = "partner_joined"
	NotifyYourTurn      NotificationKind = "your_turn"
	NotifyResultsReady  NotificationKind = "results_ready"
)

type Notification struct {
	RecipientID string           `json:"recipient_id"`
	Kind        NotificationKind `json:"kind"`
	CoupleID    string           `json:"couple_id"`
	SessionID   string           `json:"session_id"`
	GameType    models.GameType  `json:"game_type"`
}

// Notifier nudges the other participant. Delivery is best effort: failures
// are logged by the implementation and never reach game logic.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// NopNotifier drops every notification.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Notification) {}

// PushClient posts notifications to the push delivery service.
type PushClient struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func NewPushClient(baseURL, token string, client *http.Client) *PushClient {
	if client == nil {
		client = utils.HTTPClient
	}
	return &PushClient{
		BaseURL: baseURL,
		Token:   token,
		Client:  client,
	}
}

// Notify sends in the background and returns immediately.
func (c *PushClient) Notify(ctx context.Context, n Notification) {
	if n.RecipientID == "" {
		return
	}
	timeout := c.Client.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	go func() {
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		if err := c.Send(sendCtx, n); err != nil {
			log.Warn().Err(err).
				Str("recipient_id", n.RecipientID).
				Str("kind", string(n.Kind)).
				Str("session_id", n.SessionID).
				Msg("📭 [Push] notification not delivered")
		}
	}()
}

// Send calls POST /notifications on the push service.
func (c *PushClient) Send(ctx context.Context, n Notification) error {
	url := fmt.Sprintf("%s/notifications", c.BaseURL)

	jsonData, err := json.Marshal(n)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Service-Token", c.Token)

	resp, err := c.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("push service returned %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
