// services/rewards.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"couple-games/models"
	"couple-games/storage"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type RewardService struct {
	Store storage.RewardStore
	Now   func() time.Time
}

func NewRewardService(store storage.RewardStore) *RewardService {
	return &RewardService{Store: store, Now: time.Now}
}

type CompletionGrant struct {
	CoupleID      string
	ParticipantID string
	SessionID     string
	GameType      models.GameType
	Score         int
	Total         int
	Coins         int64
}

// GrantCompletion writes the completion record for one participant of a
// session and credits its coins, at most once per (session, participant).
// The read is a fast path; the insert itself refuses duplicates, so two
// clients completing together still produce one record and one credit.
func (s *RewardService) GrantCompletion(ctx context.Context, g CompletionGrant) (models.CompletionRecord, bool, error) {
	existing, err := s.Store.GetCompletion(ctx, g.SessionID, g.ParticipantID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return models.CompletionRecord{}, false, fmt.Errorf("checking completion %s/%s: %w", g.SessionID, g.ParticipantID, err)
	}

	rec := models.CompletionRecord{
		ID:             uuid.NewString(),
		CoupleID:       g.CoupleID,
		ParticipantID:  g.ParticipantID,
		GameType:       g.GameType,
		SessionID:      g.SessionID,
		Score:          g.Score,
		TotalQuestions: g.Total,
		CoinsEarned:    g.Coins,
		CompletedAt:    s.Now(),
	}
	inserted, err := s.Store.InsertCompletion(ctx, &rec)
	if err != nil {
		return models.CompletionRecord{}, false, fmt.Errorf("saving completion %s/%s: %w", g.SessionID, g.ParticipantID, err)
	}
	if !inserted {
		// Lost the race to the other client.
		existing, err := s.Store.GetCompletion(ctx, g.SessionID, g.ParticipantID)
		if err != nil {
			return models.CompletionRecord{}, false, fmt.Errorf("reloading completion %s/%s: %w", g.SessionID, g.ParticipantID, err)
		}
		return existing, false, nil
	}

	log.Info().
		Str("session_id", g.SessionID).
		Str("participant_id", g.ParticipantID).
		Int("score", g.Score).
		Int("total", g.Total).
		Int64("coins", g.Coins).
		Msg("🏁 [Rewards] completion recorded")
	return rec, true, nil
}

// SessionCompletions lists the completion records of a session.
func (s *RewardService) SessionCompletions(ctx context.Context, sessionID string) ([]models.CompletionRecord, error) {
	return s.Store.ListSessionCompletions(ctx, sessionID)
}

// History lists a couple's completions, newest first. Empty gameType means all games.
func (s *RewardService) History(ctx context.Context, coupleID string, gameType models.GameType) ([]models.CompletionRecord, error) {
	return s.Store.ListCoupleCompletions(ctx, coupleID, gameType)
}

// CollectItem records that participantID owns itemID of a collection.
func (s *RewardService) CollectItem(ctx context.Context, participantID, collectionID, itemID string) (bool, error) {
	col, ok := models.FindCollection(collectionID)
	if !ok {
		return false, ErrUnknownCollection
	}
	if !contains(col.ItemIDs, itemID) {
		return false, ErrUnknownItem
	}
	added, err := s.Store.AddCollectedItem(ctx, &models.CollectedItem{
		ParticipantID: participantID,
		CollectionID:  collectionID,
		ItemID:        itemID,
	})
	if err != nil {
		return false, fmt.Errorf("collecting %s/%s: %w", collectionID, itemID, err)
	}
	return added, nil
}

// CheckCollectionBonus grants the collection's one-time bonus when the
// participant owns every item and has not been bonused yet. The marker and the
// coin credit are written together, so a repeated check never pays twice.
func (s *RewardService) CheckCollectionBonus(ctx context.Context, participantID, collectionID string) (bool, error) {
	col, ok := models.FindCollection(collectionID)
	if !ok {
		return false, ErrUnknownCollection
	}

	already, err := s.Store.HasCollectionBonus(ctx, participantID, collectionID)
	if err != nil {
		return false, fmt.Errorf("checking bonus %s: %w", collectionID, err)
	}
	if already {
		return false, nil
	}

	owned, err := s.Store.ListCollectedItems(ctx, participantID, collectionID)
	if err != nil {
		return false, fmt.Errorf("listing collected items %s: %w", collectionID, err)
	}
	if !containsAll(owned, col.ItemIDs) {
		return false, nil
	}

	claimed, err := s.Store.ClaimCollectionBonus(ctx, &models.CollectionBonus{
		ParticipantID: participantID,
		CollectionID:  collectionID,
		Coins:         col.Bonus,
	})
	if err != nil {
		return false, fmt.Errorf("granting bonus %s: %w", collectionID, err)
	}
	if claimed {
		log.Info().
			Str("participant_id", participantID).
			Str("collection_id", collectionID).
			Int64("coins", col.Bonus).
			Msg("🎖️ [Rewards] collection bonus granted")
	}
	return claimed, nil
}

// Balance returns the participant's coin wallet.
func (s *RewardService) Balance(ctx context.Context, participantID string) (models.CoinWallet, error) {
	return s.Store.GetWallet(ctx, participantID)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func containsAll(have, want []string) bool {
	set := make(map[string]struct{}, len(have))
	for _, h := range have {
		set[h] = struct{}{}
	}
	for _, w := range want {
		if _, ok := set[w]; !ok {
			return false
		}
	}
	return true
}
