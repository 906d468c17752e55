package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"couple-games/models"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// GormStore persists the game core in postgres.
type GormStore struct {
	DB *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{DB: db}
}

// OpenPostgres connects with gorm and migrates every game table.
func OpenPostgres(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return NewGormStore(db), nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.GameSession{},
		&models.ResponseRecord{},
		&models.CompletionRecord{},
		&models.CoupleProgress{},
		&models.ExperienceGrant{},
		&models.CoinGrant{},
		&models.CoinWallet{},
		&models.CollectedItem{},
		&models.CollectionBonus{},
	); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}
	return nil
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// --- Sessions ---

func (s *GormStore) CreateSession(ctx context.Context, sess *models.GameSession) error {
	return s.DB.WithContext(ctx).Create(sess).Error
}

func (s *GormStore) GetSession(ctx context.Context, id string) (models.GameSession, error) {
	var sess models.GameSession
	err := s.DB.WithContext(ctx).First(&sess, "id = ?", id).Error
	return sess, notFound(err)
}

func (s *GormStore) FindOpenSessions(ctx context.Context, coupleID string, gameType models.GameType) ([]models.GameSession, error) {
	var sessions []models.GameSession
	err := s.DB.WithContext(ctx).
		Where("couple_id = ? AND game_type = ? AND status IN ?", coupleID, gameType,
			[]models.SessionStatus{models.SessionPending, models.SessionActive}).
		Order("created_at DESC").
		Find(&sessions).Error
	return sessions, err
}

func (s *GormStore) ActivateSession(ctx context.Context, id, partnerID string, at time.Time) (bool, error) {
	res := s.DB.WithContext(ctx).Model(&models.GameSession{}).
		Where("id = ? AND status = ? AND (partner_id IS NULL OR partner_id = ?)", id, models.SessionPending, partnerID).
		Updates(map[string]interface{}{
			"status":           models.SessionActive,
			"partner_id":       partnerID,
			"last_activity_at": at,
		})
	return res.RowsAffected == 1, res.Error
}

func (s *GormStore) TouchSession(ctx context.Context, id string, at time.Time) error {
	return s.DB.WithContext(ctx).Model(&models.GameSession{}).
		Where("id = ?", id).
		Update("last_activity_at", at).Error
}

func (s *GormStore) CompleteSession(ctx context.Context, id string, at time.Time) (bool, error) {
	res := s.DB.WithContext(ctx).Model(&models.GameSession{}).
		Where("id = ? AND status IN ?", id, []models.SessionStatus{models.SessionPending, models.SessionActive}).
		Updates(map[string]interface{}{
			"status":           models.SessionCompleted,
			"completed_at":     at,
			"last_activity_at": at,
		})
	return res.RowsAffected == 1, res.Error
}

func (s *GormStore) ExpireSessions(ctx context.Context, cutoff, at time.Time) ([]models.GameSession, error) {
	var expired []models.GameSession
	err := s.DB.WithContext(ctx).Model(&expired).
		Clauses(clause.Returning{}).
		Where("status IN ? AND last_activity_at < ?",
			[]models.SessionStatus{models.SessionPending, models.SessionActive}, cutoff).
		Updates(map[string]interface{}{
			"status":     models.SessionExpired,
			"updated_at": at,
		}).Error
	return expired, err
}

// --- Responses ---

func (s *GormStore) AppendResponse(ctx context.Context, r *models.ResponseRecord) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return s.DB.WithContext(ctx).Create(r).Error
}

func (s *GormStore) ListSessionResponses(ctx context.Context, sessionID string) ([]models.ResponseRecord, error) {
	var records []models.ResponseRecord
	err := s.DB.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at DESC").
		Find(&records).Error
	return records, err
}

func (s *GormStore) ListCoupleResponses(ctx context.Context, coupleID string, gameType models.GameType, participantID string) ([]models.ResponseRecord, error) {
	var records []models.ResponseRecord
	err := s.DB.WithContext(ctx).
		Where("couple_id = ? AND game_type = ? AND participant_id = ?", coupleID, gameType, participantID).
		Order("created_at DESC").
		Find(&records).Error
	return records, err
}

// --- Progress ---

func (s *GormStore) GetProgress(ctx context.Context, coupleID string) (models.CoupleProgress, error) {
	var prog models.CoupleProgress
	err := s.DB.WithContext(ctx).Where("couple_id = ?", coupleID).First(&prog).Error
	return prog, notFound(err)
}

// AddExperience records the grant and updates experience and level in one
// transaction. The progress row is locked for the update.
func (s *GormStore) AddExperience(ctx context.Context, d ExperienceDelta) (models.CoupleProgress, bool, error) {
	var (
		out     models.CoupleProgress
		applied bool
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if d.GrantKey != "" {
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.ExperienceGrant{
				ID:       uuid.NewString(),
				CoupleID: d.CoupleID,
				GrantKey: d.GrantKey,
				Amount:   d.Amount,
				Reason:   d.Reason,
			})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return tx.Where("couple_id = ?", d.CoupleID).First(&out).Error
			}
		}

		var prog models.CoupleProgress
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("couple_id = ?", d.CoupleID).First(&prog).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			prog = models.CoupleProgress{ID: uuid.NewString(), CoupleID: d.CoupleID, CurrentLevel: 1}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&prog).Error; err != nil {
				return err
			}
			err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("couple_id = ?", d.CoupleID).First(&prog).Error
		}
		if err != nil {
			return err
		}

		applyExperience(&prog, d)
		if err := tx.Save(&prog).Error; err != nil {
			return err
		}
		out = prog
		applied = true
		return nil
	})
	if err != nil {
		return models.CoupleProgress{}, false, err
	}
	return out, applied, nil
}

func applyExperience(prog *models.CoupleProgress, d ExperienceDelta) {
	prog.TotalExperience += d.Amount
	if d.GrantKey != "" {
		prog.GamesCompleted++
	}
	if d.Level == nil {
		return
	}
	level, forNext := d.Level(prog.TotalExperience)
	if level > prog.CurrentLevel {
		at := d.At
		prog.LastLevelUpAt = &at
	}
	prog.CurrentLevel = level
	prog.ExperienceForNextLevel = forNext
}

// --- Rewards ---

func creditCoins(tx *gorm.DB, participantID string, amount int64, reason models.CoinReason, key string) error {
	if amount <= 0 {
		return nil
	}
	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.CoinGrant{
		ID:            uuid.NewString(),
		ParticipantID: participantID,
		Amount:        amount,
		Reason:        reason,
		ReferenceKey:  key,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return nil
	}
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "participant_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"balance":    gorm.Expr("coin_wallets.balance + ?", amount),
			"updated_at": time.Now(),
		}),
	}).Create(&models.CoinWallet{ParticipantID: participantID, Balance: amount}).Error
}

func (s *GormStore) InsertCompletion(ctx context.Context, rec *models.CompletionRecord) (bool, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	inserted := false
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(rec)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		inserted = true
		return creditCoins(tx, rec.ParticipantID, rec.CoinsEarned, models.CoinReasonGameCompletion,
			completionCoinKey(rec.SessionID, rec.ParticipantID))
	})
	return inserted, err
}

func (s *GormStore) GetCompletion(ctx context.Context, sessionID, participantID string) (models.CompletionRecord, error) {
	var rec models.CompletionRecord
	err := s.DB.WithContext(ctx).
		Where("session_id = ? AND participant_id = ?", sessionID, participantID).
		First(&rec).Error
	return rec, notFound(err)
}

func (s *GormStore) ListSessionCompletions(ctx context.Context, sessionID string) ([]models.CompletionRecord, error) {
	var recs []models.CompletionRecord
	err := s.DB.WithContext(ctx).Where("session_id = ?", sessionID).Order("participant_id").Find(&recs).Error
	return recs, err
}

func (s *GormStore) ListCoupleCompletions(ctx context.Context, coupleID string, gameType models.GameType) ([]models.CompletionRecord, error) {
	var recs []models.CompletionRecord
	q := s.DB.WithContext(ctx).Where("couple_id = ?", coupleID)
	if gameType != "" {
		q = q.Where("game_type = ?", gameType)
	}
	err := q.Order("completed_at DESC").Find(&recs).Error
	return recs, err
}

func (s *GormStore) AddCollectedItem(ctx context.Context, item *models.CollectedItem) (bool, error) {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	res := s.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(item)
	return res.RowsAffected == 1, res.Error
}

func (s *GormStore) ListCollectedItems(ctx context.Context, participantID, collectionID string) ([]string, error) {
	var ids []string
	err := s.DB.WithContext(ctx).Model(&models.CollectedItem{}).
		Where("participant_id = ? AND collection_id = ?", participantID, collectionID).
		Order("item_id").
		Pluck("item_id", &ids).Error
	return ids, err
}

func (s *GormStore) HasCollectionBonus(ctx context.Context, participantID, collectionID string) (bool, error) {
	var count int64
	err := s.DB.WithContext(ctx).Model(&models.CollectionBonus{}).
		Where("participant_id = ? AND collection_id = ?", participantID, collectionID).
		Count(&count).Error
	return count > 0, err
}

func (s *GormStore) ClaimCollectionBonus(ctx context.Context, b *models.CollectionBonus) (bool, error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	claimed := false
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(b)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		claimed = true
		return creditCoins(tx, b.ParticipantID, b.Coins, models.CoinReasonCollectionBonus,
			bonusCoinKey(b.ParticipantID, b.CollectionID))
	})
	return claimed, err
}

func (s *GormStore) GetWallet(ctx context.Context, participantID string) (models.CoinWallet, error) {
	var w models.CoinWallet
	err := s.DB.WithContext(ctx).First(&w, "participant_id = ?", participantID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.CoinWallet{ParticipantID: participantID}, nil
	}
	return w, err
}
