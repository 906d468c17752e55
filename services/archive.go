package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"couple-games/models"

	"github.com/rs/zerolog/log"
)

// SessionArchive is the history snapshot of a completed session.
type SessionArchive struct {
	Session     models.GameSession        `json:"session"`
	Responses   []models.ResponseRecord   `json:"responses"`
	Completions []models.CompletionRecord `json:"completions"`
	ArchivedAt  time.Time                 `json:"archived_at"`
}

// Archiver stores finished sessions for history views. Best effort.
type Archiver interface {
	Archive(ctx context.Context, a SessionArchive)
}

type NopArchiver struct{}

func (NopArchiver) Archive(context.Context, SessionArchive) {}

// ObjectPutter is the subset of the R2 client used by BucketArchiver.
type ObjectPutter interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
}

// BucketArchiver writes one JSON object per session.
type BucketArchiver struct {
	Bucket  ObjectPutter
	Timeout time.Duration
}

func NewBucketArchiver(bucket ObjectPutter) *BucketArchiver {
	return &BucketArchiver{Bucket: bucket, Timeout: 15 * time.Second}
}

func archiveKey(s models.GameSession) string {
	return fmt.Sprintf("sessions/%s/%s/%s.json", s.CoupleID, s.GameType, s.ID)
}

// Archive uploads in the background and returns immediately, so a slow
// bucket never holds up the request that completed the session.
func (b *BucketArchiver) Archive(ctx context.Context, a SessionArchive) {
	go func() {
		if err := b.Upload(context.WithoutCancel(ctx), a); err != nil {
			log.Warn().Err(err).Str("session_id", a.Session.ID).Msg("[Archive] upload failed")
			return
		}
		log.Debug().Str("session_id", a.Session.ID).Msg("[Archive] session archived")
	}()
}

// Upload writes the snapshot and waits for the bucket.
func (b *BucketArchiver) Upload(ctx context.Context, a SessionArchive) error {
	body, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encoding archive: %w", err)
	}
	putCtx, cancel := context.WithTimeout(ctx, b.Timeout)
	defer cancel()
	return b.Bucket.Put(putCtx, archiveKey(a.Session), body, "application/json")
}
