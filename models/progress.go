package models

import (
	"time"
)

// CoupleProgress tracks cumulative experience for a couple (denormalized for reads).
// Level and ExperienceForNextLevel are derived from TotalExperience on every write.
type CoupleProgress struct {
	ID       string `gorm:"primaryKey;type:uuid" json:"id"`
	CoupleID string `gorm:"uniqueIndex;not null" json:"couple_id"`

	TotalExperience        int64 `json:"total_experience" gorm:"default:0"`
	CurrentLevel           int   `json:"current_level" gorm:"default:1"`
	ExperienceForNextLevel int64 `json:"experience_for_next_level" gorm:"default:0"`

	GamesCompleted int64 `json:"games_completed" gorm:"default:0"`

	LastLevelUpAt *time.Time `json:"last_level_up_at,omitempty"`

	Timestamps
}

func (CoupleProgress) TableName() string { return "couple_progress" }

// ExperienceGrant records that a keyed experience award was applied, so a
// repeated completion of the same session cannot add twice.
type ExperienceGrant struct {
	ID        string    `gorm:"primaryKey;type:uuid" json:"id"`
	CoupleID  string    `gorm:"uniqueIndex:ux_experience_grant,priority:1;not null" json:"couple_id"`
	GrantKey  string    `gorm:"uniqueIndex:ux_experience_grant,priority:2;not null" json:"grant_key"`
	Amount    int64     `json:"amount"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
