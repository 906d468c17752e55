package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"couple-games/models"
	"couple-games/storage"

	"github.com/rs/zerolog/log"
)

type Outcome string

const (
	OutcomeCorrect   Outcome = "correct"
	OutcomePartial   Outcome = "partial"
	OutcomeIncorrect Outcome = "incorrect"
)

// Base experience per outcome at tier 1.
var outcomeXP = map[Outcome]int64{
	OutcomeCorrect:   30,
	OutcomePartial:   20,
	OutcomeIncorrect: 10,
}

// LevelConfig: XP needed for *next* level (e.g., level 1 → 2 needs BaseXPPerLevel * 1^1.2)
const (
	BaseXPPerLevel = 100
	MaxLevel       = 200
)

// xpForNextLevel returns XP required to reach level+1 from current level
// e.g., xpForNextLevel(1) = XP to go from L1 → L2
func xpForNextLevel(currentLevel int) int64 {
	if currentLevel < 1 {
		currentLevel = 1
	}
	// L_n = floor(BaseXPPerLevel * n^1.2)
	return int64(float64(BaseXPPerLevel) * math.Pow(float64(currentLevel), 1.2))
}

// levelThresholds[i] is the cumulative experience needed to reach level i+1.
var levelThresholds = func() []int64 {
	t := make([]int64, MaxLevel)
	for lvl := 2; lvl <= MaxLevel; lvl++ {
		t[lvl-1] = t[lvl-2] + xpForNextLevel(lvl-1)
	}
	return t
}()

// ThresholdForLevel returns the cumulative experience at which level starts.
func ThresholdForLevel(level int) int64 {
	if level <= 1 {
		return 0
	}
	if level > MaxLevel {
		level = MaxLevel
	}
	return levelThresholds[level-1]
}

type LevelInfo struct {
	Level   int   `json:"level"`
	ForNext int64 `json:"for_next"`
}

// LevelForExperience returns the highest level whose threshold is <= total and
// the experience still missing for the level after it (0 at MaxLevel).
func LevelForExperience(total int64) LevelInfo {
	level := 1
	for level < MaxLevel && levelThresholds[level] <= total {
		level++
	}
	if level == MaxLevel {
		return LevelInfo{Level: level}
	}
	return LevelInfo{Level: level, ForNext: levelThresholds[level] - total}
}

func levelFunc(total int64) (int, int64) {
	info := LevelForExperience(total)
	return info.Level, info.ForNext
}

// ExperienceForResult is the reward for one finished game: tiered by outcome
// and scaled by +20% of base for every 5 levels, up to nine steps.
func ExperienceForResult(level int, outcome Outcome) int64 {
	base, ok := outcomeXP[outcome]
	if !ok {
		base = outcomeXP[OutcomeIncorrect]
	}
	if level < 1 {
		level = 1
	}
	step := (level - 1) / 5
	if step > 9 {
		step = 9
	}
	return base * int64(5+step) / 5
}

// OutcomeForAccuracy maps score/total onto an outcome tier.
func OutcomeForAccuracy(score, total int) Outcome {
	if total <= 0 {
		return OutcomeIncorrect
	}
	acc := float64(score) / float64(total)
	switch {
	case acc >= 0.8:
		return OutcomeCorrect
	case acc >= 0.5:
		return OutcomePartial
	default:
		return OutcomeIncorrect
	}
}

type ProgressionService struct {
	Store storage.ProgressStore
	Now   func() time.Time
}

func NewProgressionService(store storage.ProgressStore) *ProgressionService {
	return &ProgressionService{Store: store, Now: time.Now}
}

// Current returns the couple's progress, or a level-1 view if the couple has
// never finished a game. Nothing is written.
func (s *ProgressionService) Current(ctx context.Context, coupleID string) (models.CoupleProgress, error) {
	prog, err := s.Store.GetProgress(ctx, coupleID)
	if errors.Is(err, storage.ErrNotFound) {
		info := LevelForExperience(0)
		return models.CoupleProgress{
			CoupleID:               coupleID,
			CurrentLevel:           info.Level,
			ExperienceForNextLevel: info.ForNext,
		}, nil
	}
	if err != nil {
		return models.CoupleProgress{}, fmt.Errorf("loading progress for %s: %w", coupleID, err)
	}
	return prog, nil
}

// AddExperience adds amount to the couple's total and re-derives the level.
// On error nothing should be assumed granted.
func (s *ProgressionService) AddExperience(ctx context.Context, coupleID string, amount int64) (models.CoupleProgress, error) {
	prog, _, err := s.add(ctx, coupleID, amount, "", "manual")
	return prog, err
}

// AddSessionExperience is AddExperience keyed by session id: a second call for
// the same session is a no-op and reports applied=false.
func (s *ProgressionService) AddSessionExperience(ctx context.Context, coupleID, sessionID string, amount int64) (models.CoupleProgress, bool, error) {
	return s.add(ctx, coupleID, amount, "session:"+sessionID, "game_completed")
}

func (s *ProgressionService) add(ctx context.Context, coupleID string, amount int64, key, reason string) (models.CoupleProgress, bool, error) {
	if amount < 0 {
		amount = 0
	}
	prog, applied, err := s.Store.AddExperience(ctx, storage.ExperienceDelta{
		CoupleID: coupleID,
		Amount:   amount,
		GrantKey: key,
		Reason:   reason,
		Level:    levelFunc,
		At:       s.Now(),
	})
	if err != nil {
		return models.CoupleProgress{}, false, fmt.Errorf("adding experience for %s: %w", coupleID, err)
	}
	if applied {
		log.Info().
			Str("couple_id", coupleID).
			Int64("xp", amount).
			Int64("total_xp", prog.TotalExperience).
			Int("level", prog.CurrentLevel).
			Str("reason", reason).
			Msg("🎮 [Progression] XP awarded")
	}
	return prog, applied, nil
}
