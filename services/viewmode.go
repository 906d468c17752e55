package services

import (
	"errors"
	"fmt"

	"couple-games/models"
)

// ViewMode is what one client is showing. It lives next to the session state
// machine, not inside it: the session is shared, the view is per client.
type ViewMode string

const (
	ModeMenu    ViewMode = "menu"
	ModeAnswer  ViewMode = "answer"
	ModeGuess   ViewMode = "guess"
	ModeWaiting ViewMode = "waiting"
	ModeResults ViewMode = "results"
)

type ViewEvent string

const (
	EventStart       ViewEvent = "start"
	EventAnswerAcked ViewEvent = "answer_acked"
	EventGuessAcked  ViewEvent = "guess_acked"
	EventWriteFailed ViewEvent = "write_failed"
	EventPartnerDone ViewEvent = "partner_done"
	EventReset       ViewEvent = "reset"
)

var ErrInvalidTransition = errors.New("invalid view transition")

// ViewMachine moves a client through a session's prompts. It only advances on
// acknowledged writes; a failed write leaves it where it was so the user can
// retry the same prompt.
type ViewMachine struct {
	Mode         ViewMode
	Question     int
	Total        int
	RequireGuess bool
	// LastErr is the most recent write failure, cleared by the next ack.
	LastErr error
}

func NewViewMachine(gameType models.GameType, total int) *ViewMachine {
	rules, _ := RulesFor(gameType)
	return &ViewMachine{Mode: ModeMenu, Total: total, RequireGuess: rules.RequireGuess}
}

// Fire applies ev. err is only read for EventWriteFailed.
func (m *ViewMachine) Fire(ev ViewEvent, err error) (ViewMode, error) {
	switch ev {
	case EventReset:
		m.Mode, m.Question, m.LastErr = ModeMenu, 0, nil
		return m.Mode, nil
	case EventWriteFailed:
		if err == nil {
			err = errors.New("write failed")
		}
		m.LastErr = err
		return m.Mode, nil
	}

	switch {
	case m.Mode == ModeMenu && ev == EventStart:
		m.Question, m.LastErr = 0, nil
		m.Mode = ModeAnswer
		if m.Total <= 0 {
			m.Mode = ModeWaiting
		}
	case m.Mode == ModeAnswer && ev == EventAnswerAcked:
		m.LastErr = nil
		if m.RequireGuess {
			m.Mode = ModeGuess
		} else {
			m.next()
		}
	case m.Mode == ModeGuess && ev == EventGuessAcked:
		m.LastErr = nil
		m.next()
	case m.Mode == ModeWaiting && ev == EventPartnerDone:
		m.Mode = ModeResults
	case ev == EventPartnerDone:
		// Partner finishing early changes nothing until we are done too.
	default:
		return m.Mode, fmt.Errorf("%w: %s in %s", ErrInvalidTransition, ev, m.Mode)
	}
	return m.Mode, nil
}

func (m *ViewMachine) next() {
	m.Question++
	if m.Question >= m.Total {
		m.Mode = ModeWaiting
		return
	}
	m.Mode = ModeAnswer
}

// Resume rebuilds the machine from a server view, for a client that reopens a
// session midway.
func (m *ViewMachine) Resume(v SessionView) ViewMode {
	m.Total = v.Session.TotalQuestions
	m.LastErr = nil
	switch {
	case v.Session.Status == models.SessionCompleted:
		m.Question, m.Mode = m.Total, ModeResults
	case !v.Session.Status.Open():
		m.Question, m.Mode = 0, ModeMenu
	case v.MyAnswered >= m.Total:
		m.Question, m.Mode = m.Total, ModeWaiting
	default:
		m.Question, m.Mode = v.MyAnswered, ModeAnswer
	}
	return m.Mode
}
