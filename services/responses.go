package services

import (
	"context"
	"fmt"
	"time"

	"couple-games/feed"
	"couple-games/models"
	"couple-games/storage"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
)

// ResponseService is the append-only response log.
type ResponseService struct {
	Store storage.ResponseStore
	Feed  feed.Publisher
	Now   func() time.Time
}

func NewResponseService(store storage.ResponseStore, publisher feed.Publisher) *ResponseService {
	return &ResponseService{Store: store, Feed: publisher, Now: time.Now}
}

type SubmitRequest struct {
	CoupleID         string
	SessionID        string
	ParticipantID    string
	GameType         models.GameType
	QuestionID       string
	Answer           string
	Meta             models.ResponseMeta
	Level            int
	ExperienceEarned int64
}

// Submit appends one record. The change event is published only after the
// write is acknowledged; on error the caller must not advance.
func (s *ResponseService) Submit(ctx context.Context, req SubmitRequest) (models.ResponseRecord, error) {
	rec := models.ResponseRecord{
		ID:                uuid.NewString(),
		CoupleID:          req.CoupleID,
		ParticipantID:     req.ParticipantID,
		GameType:          req.GameType,
		SessionID:         req.SessionID,
		QuestionID:        req.QuestionID,
		Answer:            req.Answer,
		ExperienceEarned:  req.ExperienceEarned,
		LevelAtSubmission: req.Level,
		Metadata:          datatypes.NewJSONType(req.Meta),
		CreatedAt:         s.Now(),
	}
	if err := s.Store.AppendResponse(ctx, &rec); err != nil {
		return models.ResponseRecord{}, fmt.Errorf("saving response for session %s: %w", req.SessionID, err)
	}

	publish(ctx, s.Feed, feed.Event{
		CoupleID:  rec.CoupleID,
		Topic:     feed.TopicResponses,
		Kind:      "insert",
		GameType:  rec.GameType,
		SessionID: rec.SessionID,
		ActorID:   rec.ParticipantID,
	})
	return rec, nil
}

// ReadForSession returns the whole log of a session, newest first.
func (s *ResponseService) ReadForSession(ctx context.Context, sessionID string) ([]models.ResponseRecord, error) {
	recs, err := s.Store.ListSessionResponses(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("reading responses for session %s: %w", sessionID, err)
	}
	return recs, nil
}

// ReadForCouple returns one participant's history for a game, newest first.
func (s *ResponseService) ReadForCouple(ctx context.Context, coupleID string, gameType models.GameType, participantID string) ([]models.ResponseRecord, error) {
	recs, err := s.Store.ListCoupleResponses(ctx, coupleID, gameType, participantID)
	if err != nil {
		return nil, fmt.Errorf("reading %s history for %s: %w", gameType, participantID, err)
	}
	return recs, nil
}

// SplitByParticipant groups a session log per participant, keeping order.
func SplitByParticipant(records []models.ResponseRecord) map[string][]models.ResponseRecord {
	out := make(map[string][]models.ResponseRecord)
	for _, r := range records {
		out[r.ParticipantID] = append(out[r.ParticipantID], r)
	}
	return out
}

// LatestByQuestion keeps the newest record per question from a newest-first list.
func LatestByQuestion(records []models.ResponseRecord) []models.ResponseRecord {
	seen := make(map[string]bool)
	var out []models.ResponseRecord
	for _, r := range records {
		if seen[r.QuestionID] {
			continue
		}
		seen[r.QuestionID] = true
		out = append(out, r)
	}
	return out
}

// publish announces a change. A failed publish is logged only: subscribers
// recover on their next full read.
func publish(ctx context.Context, p feed.Publisher, e feed.Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, e); err != nil {
		log.Warn().Err(err).Str("couple_id", e.CoupleID).Str("topic", string(e.Topic)).Msg("[Feed] publish failed")
	}
}
