// models/response.go
package models

import (
	"time"

	"gorm.io/datatypes"
)

// ResponseMeta carries game-specific extras that travel with an answer.
type ResponseMeta struct {
	// Guess is the submitter's guess of the partner's own choice (guessing games).
	Guess string `json:"guess,omitempty"`
	// Prompt is the prompt text as rendered when the answer was given. Only used
	// to match legacy rows whose question id no longer exists.
	Prompt string `json:"prompt,omitempty"`
	// Skipped marks a declined truth-or-dare turn.
	Skipped bool `json:"skipped,omitempty"`
}

// ResponseRecord is one participant's immutable answer for one prompt of a
// session. The log is append-only; a later row for the same
// (session, participant, question) supersedes an earlier one.
type ResponseRecord struct {
	ID                string                           `gorm:"primaryKey;type:uuid" json:"id"`
	CoupleID          string                           `gorm:"index:idx_response_couple_game,priority:1;not null" json:"couple_id"`
	GameType          GameType                         `gorm:"index:idx_response_couple_game,priority:2;type:varchar(32);not null" json:"game_type"`
	ParticipantID     string                           `gorm:"index:idx_response_session_participant,priority:2;not null" json:"participant_id"`
	SessionID         string                           `gorm:"index:idx_response_session_participant,priority:1;type:varchar(96);not null" json:"session_id"`
	QuestionID        string                           `gorm:"type:varchar(96);not null" json:"question_id"`
	Answer            string                           `gorm:"type:text" json:"answer"`
	ExperienceEarned  int64                            `gorm:"default:0" json:"experience_earned"`
	LevelAtSubmission int                              `gorm:"default:1" json:"level_at_submission"`
	Metadata          datatypes.JSONType[ResponseMeta] `gorm:"type:jsonb" json:"metadata"`
	CreatedAt         time.Time                        `gorm:"index" json:"created_at"`
}

func (ResponseRecord) TableName() string { return "game_responses" }

// Meta returns the decoded metadata.
func (r ResponseRecord) Meta() ResponseMeta {
	return r.Metadata.Data()
}
