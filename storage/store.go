// Package storage holds the persistence ports of the game core and their
// gorm (postgres) and in-memory implementations.
package storage

import (
	"context"
	"errors"
	"time"

	"couple-games/models"
)

var ErrNotFound = errors.New("not found")

// LevelFunc derives (level, experience still needed for next level) from a total.
type LevelFunc func(total int64) (level int, forNext int64)

// ExperienceDelta is one experience award. A non-empty GrantKey makes the
// award apply at most once per couple.
type ExperienceDelta struct {
	CoupleID string
	Amount   int64
	GrantKey string
	Reason   string
	Level    LevelFunc
	At       time.Time
}

type SessionStore interface {
	CreateSession(ctx context.Context, s *models.GameSession) error
	GetSession(ctx context.Context, id string) (models.GameSession, error)
	// FindOpenSessions returns pending/active sessions, newest first.
	FindOpenSessions(ctx context.Context, coupleID string, gameType models.GameType) ([]models.GameSession, error)
	// ActivateSession moves pending → active for partnerID. Reports false when the
	// session was not pending or already bound to another partner.
	ActivateSession(ctx context.Context, id, partnerID string, at time.Time) (bool, error)
	TouchSession(ctx context.Context, id string, at time.Time) error
	// CompleteSession moves pending/active → completed. Only one caller gets true.
	CompleteSession(ctx context.Context, id string, at time.Time) (bool, error)
	// ExpireSessions marks open sessions idle since before cutoff as expired and
	// returns them.
	ExpireSessions(ctx context.Context, cutoff, at time.Time) ([]models.GameSession, error)
}

type ResponseStore interface {
	AppendResponse(ctx context.Context, r *models.ResponseRecord) error
	// ListSessionResponses returns every record of the session, newest first.
	ListSessionResponses(ctx context.Context, sessionID string) ([]models.ResponseRecord, error)
	// ListCoupleResponses returns a participant's records for one game, newest first.
	ListCoupleResponses(ctx context.Context, coupleID string, gameType models.GameType, participantID string) ([]models.ResponseRecord, error)
}

type ProgressStore interface {
	GetProgress(ctx context.Context, coupleID string) (models.CoupleProgress, error)
	// AddExperience applies d in one read-modify-write and reports whether it
	// was applied (false when d.GrantKey was already used).
	AddExperience(ctx context.Context, d ExperienceDelta) (models.CoupleProgress, bool, error)
}

type RewardStore interface {
	// InsertCompletion inserts rec unless one exists for (session, participant).
	// When inserted, rec.CoinsEarned is credited in the same write.
	InsertCompletion(ctx context.Context, rec *models.CompletionRecord) (bool, error)
	GetCompletion(ctx context.Context, sessionID, participantID string) (models.CompletionRecord, error)
	ListSessionCompletions(ctx context.Context, sessionID string) ([]models.CompletionRecord, error)
	ListCoupleCompletions(ctx context.Context, coupleID string, gameType models.GameType) ([]models.CompletionRecord, error)

	AddCollectedItem(ctx context.Context, item *models.CollectedItem) (bool, error)
	ListCollectedItems(ctx context.Context, participantID, collectionID string) ([]string, error)
	HasCollectionBonus(ctx context.Context, participantID, collectionID string) (bool, error)
	// ClaimCollectionBonus writes the one-shot marker and credits the coins
	// together. Reports false if the marker already existed.
	ClaimCollectionBonus(ctx context.Context, b *models.CollectionBonus) (bool, error)

	GetWallet(ctx context.Context, participantID string) (models.CoinWallet, error)
}

// Store is everything the game core persists.
type Store interface {
	SessionStore
	ResponseStore
	ProgressStore
	RewardStore
	Ping(ctx context.Context) error
}

func completionCoinKey(sessionID, participantID string) string {
	return "completion:" + sessionID + ":" + participantID
}

func bonusCoinKey(participantID, collectionID string) string {
	return "collection:" + collectionID + ":" + participantID
}
