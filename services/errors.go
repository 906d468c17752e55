package services

import "errors"

var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrNotParticipant    = errors.New("not a participant of this session")
	ErrSessionClosed     = errors.New("session is no longer open")
	ErrSessionFull       = errors.New("session already has two participants")
	ErrSessionNotReady   = errors.New("both participants have not finished yet")
	ErrUnknownQuestion   = errors.New("question is not part of this session")
	ErrEmptyAnswer       = errors.New("answer is required")
	ErrMissingGuess      = errors.New("guess about partner is required")
	ErrInvalidGameType   = errors.New("unknown game type")
	ErrUnknownCollection = errors.New("unknown collection")
	ErrUnknownItem       = errors.New("item is not part of this collection")
)
