package models

import (
	"time"
)

// CoinReason indicates why currency was credited
type CoinReason string

const (
	CoinReasonGameCompletion  CoinReason = "game_completion"
	CoinReasonCollectionBonus CoinReason = "collection_bonus"
)

// CoinGrant is one ledger entry. ReferenceKey is unique, so the same source
// (a session completion, a collection bonus) can credit at most once.
type CoinGrant struct {
	ID            string     `gorm:"primaryKey;type:uuid" json:"id"`
	ParticipantID string     `gorm:"index;not null" json:"participant_id"`
	Amount        int64      `gorm:"not null" json:"amount"`
	Reason        CoinReason `gorm:"type:varchar(32);not null" json:"reason"`
	ReferenceKey  string     `gorm:"uniqueIndex;not null" json:"reference_key"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

// CoinWallet mirrors the running balance of a participant.
type CoinWallet struct {
	ParticipantID string    `gorm:"primaryKey" json:"participant_id"`
	Balance       int64     `gorm:"not null;default:0" json:"balance"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
