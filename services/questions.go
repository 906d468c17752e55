// services/questions.go
package services

import (
	"fmt"
	"hash/fnv"
	"math/rand/v2"

	"couple-games/models"

	"github.com/gosimple/slug"
	"golang.org/x/text/language"
)

// QuestionsPerSession is the size of the agreed question set of a session.
const QuestionsPerSession = 10

// Prompt is one question as rendered to a player. ID is structural
// ({variant}-t{tier}-{index}) and identical across locales.
type Prompt struct {
	ID      string          `json:"id"`
	Variant models.GameType `json:"variant"`
	Tier    int             `json:"tier"`
	Text    string          `json:"text"`
	Options []string        `json:"options,omitempty"`
	Kind    string          `json:"kind,omitempty"` // truth | dare
}

var supportedLocales = []language.Tag{language.English, language.Spanish}

var localeMatcher = language.NewMatcher(supportedLocales)

// ResolveLocale maps any BCP 47 string to a supported content locale.
func ResolveLocale(locale string) language.Tag {
	tag, err := language.Parse(locale)
	if err != nil {
		return language.English
	}
	_, idx, _ := localeMatcher.Match(tag)
	return supportedLocales[idx]
}

// ParseGameType accepts loose input ("Would You Rather", "truth_or_dare").
func ParseGameType(raw string) (models.GameType, error) {
	s := slug.Make(raw)
	for _, gt := range models.AllGameTypes {
		if string(gt) == s {
			return gt, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidGameType, raw)
}

// TierForLevel maps couple level to difficulty tier: 1–4 → 1, 5–9 → 2, 10+ → 3.
func TierForLevel(level int) int {
	switch {
	case level >= 10:
		return 3
	case level >= 5:
		return 2
	default:
		return 1
	}
}

func questionID(variant models.GameType, tier, index int) string {
	return fmt.Sprintf("%s-t%d-%02d", variant, tier, index+1)
}

// contentFor returns the tiers of a variant in the requested locale, or in
// English when the variant has no translation.
func contentFor(variant models.GameType, loc language.Tag) [][]promptDef {
	byLocale := catalog[variant]
	if tiers, ok := byLocale[loc.String()]; ok {
		return tiers
	}
	return byLocale[language.English.String()]
}

// GetQuestions returns the ordered prompts for a level, locale and variant.
// Levels past the last authored tier get the highest tier. The result is
// never empty for a supported variant.
func GetQuestions(level int, locale string, variant models.GameType) []Prompt {
	if variant == "" {
		variant = models.GameWouldYouRather
	}
	tiers := contentFor(variant, ResolveLocale(locale))
	if len(tiers) == 0 {
		tiers = contentFor(models.GameWouldYouRather, language.English)
		variant = models.GameWouldYouRather
	}
	tier := TierForLevel(level)
	if tier > len(tiers) {
		tier = len(tiers)
	}

	defs := tiers[tier-1]
	out := make([]Prompt, 0, len(defs))
	for i, d := range defs {
		out = append(out, Prompt{
			ID:      questionID(variant, tier, i),
			Variant: variant,
			Tier:    tier,
			Text:    d.Text,
			Options: append([]string(nil), d.Options...),
			Kind:    d.Kind,
		})
	}
	return out
}

// LookupQuestion resolves a stored question id back to its prompt.
func LookupQuestion(variant models.GameType, locale, id string) (Prompt, bool) {
	tiers := contentFor(variant, ResolveLocale(locale))
	for t := range tiers {
		for i, d := range tiers[t] {
			if questionID(variant, t+1, i) == id {
				return Prompt{
					ID:      id,
					Variant: variant,
					Tier:    t + 1,
					Text:    d.Text,
					Options: append([]string(nil), d.Options...),
					Kind:    d.Kind,
				}, true
			}
		}
	}
	return Prompt{}, false
}

// Shuffle returns a copy of prompts in an order fixed by seed, so the same
// seed yields the same order on any client.
func Shuffle(prompts []Prompt, seed string) []Prompt {
	out := append([]Prompt(nil), prompts...)
	h := fnv.New64a()
	h.Write([]byte(seed))
	s := h.Sum64()
	r := rand.New(rand.NewPCG(s, s>>1|1))
	r.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}
