package services

import (
	"errors"
	"testing"

	"couple-games/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestViewMachineGuessingGame(t *testing.T) {
	m := NewViewMachine(models.GameWouldYouRather, 2)
	assert.Equal(t, ModeMenu, m.Mode)

	steps := []struct {
		ev   ViewEvent
		want ViewMode
	}{
		{EventStart, ModeAnswer},
		{EventAnswerAcked, ModeGuess},
		{EventGuessAcked, ModeAnswer},
		{EventPartnerDone, ModeAnswer},
		{EventAnswerAcked, ModeGuess},
		{EventGuessAcked, ModeWaiting},
		{EventPartnerDone, ModeResults},
		{EventReset, ModeMenu},
	}
	for _, s := range steps {
		got, err := m.Fire(s.ev, nil)
		require.NoError(t, err, s.ev)
		assert.Equal(t, s.want, got, s.ev)
	}
}

func TestViewMachineWithoutGuesses(t *testing.T) {
	m := NewViewMachine(models.GameCompatibilityQuiz, 1)
	_, err := m.Fire(EventStart, nil)
	require.NoError(t, err)
	mode, err := m.Fire(EventAnswerAcked, nil)
	require.NoError(t, err)
	assert.Equal(t, ModeWaiting, mode)
}

func TestViewMachineWriteFailed(t *testing.T) {
	m := NewViewMachine(models.GamePartnerTrivia, 3)
	_, err := m.Fire(EventStart, nil)
	require.NoError(t, err)

	boom := errors.New("timeout")
	mode, err := m.Fire(EventWriteFailed, boom)
	require.NoError(t, err)
	assert.Equal(t, ModeAnswer, mode)
	assert.ErrorIs(t, m.LastErr, boom)
	assert.Equal(t, 0, m.Question)
}

func TestViewMachineRejectsOutOfOrderEvents(t *testing.T) {
	m := NewViewMachine(models.GameWouldYouRather, 3)
	_, err := m.Fire(EventAnswerAcked, nil)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, ModeMenu, m.Mode)

	_, _ = m.Fire(EventStart, nil)
	_, err = m.Fire(EventGuessAcked, nil)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, ModeAnswer, m.Mode)
}

func TestViewMachineResume(t *testing.T) {
	m := NewViewMachine(models.GameWouldYouRather, 10)
	sess := models.GameSession{Status: models.SessionActive, TotalQuestions: 10}

	assert.Equal(t, ModeAnswer, m.Resume(SessionView{Session: sess, MyAnswered: 4}))
	assert.Equal(t, 4, m.Question)

	assert.Equal(t, ModeWaiting, m.Resume(SessionView{Session: sess, MyAnswered: 10}))

	sess.Status = models.SessionCompleted
	assert.Equal(t, ModeResults, m.Resume(SessionView{Session: sess, MyAnswered: 10}))

	sess.Status = models.SessionExpired
	assert.Equal(t, ModeMenu, m.Resume(SessionView{Session: sess}))
}
