// models/completion.go
package models

import "time"

// CompletionRecord is the one-time scored outcome of a finished session for one
// participant. Paired games produce one per direction; (session, participant)
// is unique so a second completion attempt cannot insert again.
type CompletionRecord struct {
	ID             string    `gorm:"primaryKey;type:uuid" json:"id"`
	CoupleID       string    `gorm:"index;not null" json:"couple_id"`
	ParticipantID  string    `gorm:"uniqueIndex:ux_completion_session_participant,priority:2;not null" json:"participant_id"`
	GameType       GameType  `gorm:"type:varchar(32);not null" json:"game_type"`
	SessionID      string    `gorm:"uniqueIndex:ux_completion_session_participant,priority:1;type:varchar(96);not null" json:"session_id"`
	Score          int       `json:"score"`
	TotalQuestions int       `json:"total_questions"`
	CoinsEarned    int64     `gorm:"default:0" json:"coins_earned"`
	CompletedAt    time.Time `json:"completed_at"`
}

func (CompletionRecord) TableName() string { return "game_completions" }
