package services

import (
	"strings"

	"couple-games/models"
)

type scoringMode int

const (
	// Each player answers for themselves and guesses the partner's answer;
	// scored in both directions independently.
	scoreGuesses scoringMode = iota
	// Both players answer; a prompt counts when the answers agree.
	scoreMatches
	// Turn based; a prompt counts when the turn was not skipped.
	scoreTurns
)

// GameRules describes how a game is played and scored.
type GameRules struct {
	Type         models.GameType
	mode         scoringMode
	RequireGuess bool

	// Coins are awarded to a participant whose score reaches CoinRatio of the total.
	Coins     int64
	CoinRatio float64
}

var gameRules = map[models.GameType]GameRules{
	models.GameWouldYouRather:    {Type: models.GameWouldYouRather, mode: scoreGuesses, RequireGuess: true, Coins: 5, CoinRatio: 0.7},
	models.GamePartnerTrivia:     {Type: models.GamePartnerTrivia, mode: scoreGuesses, RequireGuess: true, Coins: 5, CoinRatio: 0.7},
	models.GameCompatibilityQuiz: {Type: models.GameCompatibilityQuiz, mode: scoreMatches, Coins: 5, CoinRatio: 0.7},
	models.GameTruthOrDare:       {Type: models.GameTruthOrDare, mode: scoreTurns, Coins: 3, CoinRatio: 0.7},
}

// RulesFor returns the rules of a game type.
func RulesFor(gt models.GameType) (GameRules, bool) {
	r, ok := gameRules[gt]
	return r, ok
}

// CoinsFor returns the coins for score out of total: Coins when the score
// reaches the ratio (7 of 10 for the default 0.7), else 0.
func (r GameRules) CoinsFor(score, total int) int64 {
	if total <= 0 {
		return 0
	}
	if float64(score) >= r.CoinRatio*float64(total)-1e-9 {
		return r.Coins
	}
	return 0
}

// Normalize is the comparison form of free text: lowercased and trimmed.
// Anything else, accents and symbols included, must match exactly.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// AnswerSet indexes one participant's latest answer per question.
type AnswerSet struct {
	byID   map[string]models.ResponseRecord
	byText map[string]models.ResponseRecord
}

// NewAnswerSet builds the set from records ordered newest first, so the first
// record seen for a question wins.
func NewAnswerSet(records []models.ResponseRecord) AnswerSet {
	a := AnswerSet{
		byID:   make(map[string]models.ResponseRecord),
		byText: make(map[string]models.ResponseRecord),
	}
	for _, r := range records {
		if _, seen := a.byID[r.QuestionID]; !seen {
			a.byID[r.QuestionID] = r
		}
		if text := Normalize(r.Meta().Prompt); text != "" {
			if _, seen := a.byText[text]; !seen {
				a.byText[text] = r
			}
		}
	}
	return a
}

// Find matches a prompt by its structural id first. Only when no record has
// that id does it fall back to the prompt's normalized text, which breaks as
// soon as the wording changes.
func (a AnswerSet) Find(p Prompt) (models.ResponseRecord, bool) {
	if r, ok := a.byID[p.ID]; ok {
		return r, true
	}
	if text := Normalize(p.Text); text != "" {
		if r, ok := a.byText[text]; ok {
			return r, true
		}
	}
	return models.ResponseRecord{}, false
}

// Answered counts the prompts that have an answer.
func (a AnswerSet) Answered(prompts []Prompt) int {
	n := 0
	for _, p := range prompts {
		if _, ok := a.Find(p); ok {
			n++
		}
	}
	return n
}

// ScoreGuesses counts prompts where guesser's guess equals target's own answer.
func ScoreGuesses(prompts []Prompt, guesser, target AnswerSet) int {
	score := 0
	for _, p := range prompts {
		g, ok := guesser.Find(p)
		if !ok {
			continue
		}
		t, ok := target.Find(p)
		if !ok {
			continue
		}
		guess := Normalize(g.Meta().Guess)
		if guess != "" && guess == Normalize(t.Answer) {
			score++
		}
	}
	return score
}

// ScoreMatches counts prompts where both answers agree.
func ScoreMatches(prompts []Prompt, a, b AnswerSet) int {
	score := 0
	for _, p := range prompts {
		ra, ok := a.Find(p)
		if !ok {
			continue
		}
		rb, ok := b.Find(p)
		if !ok {
			continue
		}
		if ans := Normalize(ra.Answer); ans != "" && ans == Normalize(rb.Answer) {
			score++
		}
	}
	return score
}

// ScoreTurns counts turns that were taken rather than skipped.
func ScoreTurns(prompts []Prompt, a AnswerSet) int {
	score := 0
	for _, p := range prompts {
		if r, ok := a.Find(p); ok && !r.Meta().Skipped {
			score++
		}
	}
	return score
}

// ParticipantScore is one participant's result in a finished session.
type ParticipantScore struct {
	ParticipantID string `json:"participant_id"`
	Score         int    `json:"score"`
	Total         int    `json:"total"`
	Coins         int64  `json:"coins"`
}

// ScoreSession scores both participants. For guessing games the directions are
// swapped: initiator's score is how well they guessed the partner and vice versa.
func (r GameRules) ScoreSession(prompts []Prompt, initiatorID, partnerID string, initiator, partner AnswerSet) [2]ParticipantScore {
	total := len(prompts)
	var si, sp int
	switch r.mode {
	case scoreGuesses:
		si = ScoreGuesses(prompts, initiator, partner)
		sp = ScoreGuesses(prompts, partner, initiator)
	case scoreMatches:
		si = ScoreMatches(prompts, initiator, partner)
		sp = si
	case scoreTurns:
		si = ScoreTurns(prompts, initiator)
		sp = ScoreTurns(prompts, partner)
	}
	return [2]ParticipantScore{
		{ParticipantID: initiatorID, Score: si, Total: total, Coins: r.CoinsFor(si, total)},
		{ParticipantID: partnerID, Score: sp, Total: total, Coins: r.CoinsFor(sp, total)},
	}
}
