// models/session.go
package models

import (
	"time"

	"gorm.io/datatypes"
)

type GameType string

const (
	GameWouldYouRather    GameType = "would-you-rather"
	GamePartnerTrivia     GameType = "partner-trivia"
	GameCompatibilityQuiz GameType = "compatibility-quiz"
	GameTruthOrDare       GameType = "truth-or-dare"
)

// AllGameTypes lists every supported game in menu order.
var AllGameTypes = []GameType{
	GameWouldYouRather,
	GamePartnerTrivia,
	GameCompatibilityQuiz,
	GameTruthOrDare,
}

type SessionStatus string

const (
	SessionPending   SessionStatus = "pending"
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionExpired   SessionStatus = "expired" // soft expiry, set by the sweeper only
)

// Open reports whether the session can still receive answers.
func (s SessionStatus) Open() bool {
	return s == SessionPending || s == SessionActive
}

// GameSession is one round of a game between the two partners of a couple.
// Rows are never deleted; completed and expired sessions are history.
type GameSession struct {
	ID          string        `gorm:"primaryKey;type:varchar(96)" json:"id"`
	CoupleID    string        `gorm:"index:idx_session_couple_game_status,priority:1;not null" json:"couple_id"`
	GameType    GameType      `gorm:"index:idx_session_couple_game_status,priority:2;type:varchar(32);not null" json:"game_type"`
	Status      SessionStatus `gorm:"index:idx_session_couple_game_status,priority:3;type:varchar(16);not null;default:'pending'" json:"status"`
	InitiatorID string        `gorm:"not null" json:"initiator_id"`
	PartnerID   *string       `json:"partner_id,omitempty"` // nil until the invited partner joins

	// The agreed, ordered question set. Both clients render from these ids.
	QuestionIDs    datatypes.JSONSlice[string] `gorm:"type:jsonb" json:"question_ids"`
	TotalQuestions int                         `gorm:"not null" json:"total_questions"`
	Level          int                         `gorm:"default:1" json:"level"`
	Locale         string                      `gorm:"type:varchar(16)" json:"locale"`

	LastActivityAt time.Time  `gorm:"index" json:"last_activity_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsParticipant reports whether userID is one of the (up to) two players.
func (s *GameSession) IsParticipant(userID string) bool {
	if userID == "" {
		return false
	}
	return s.InitiatorID == userID || (s.PartnerID != nil && *s.PartnerID == userID)
}

// OtherParticipant returns the partner of userID, or "" if not yet known.
func (s *GameSession) OtherParticipant(userID string) string {
	if s.InitiatorID == userID {
		if s.PartnerID == nil {
			return ""
		}
		return *s.PartnerID
	}
	return s.InitiatorID
}

// HasQuestion reports whether questionID belongs to the agreed set.
func (s *GameSession) HasQuestion(questionID string) bool {
	for _, id := range s.QuestionIDs {
		if id == questionID {
			return true
		}
	}
	return false
}
