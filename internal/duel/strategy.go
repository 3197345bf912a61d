package duel

import "github.com/iKenshu/quodpot-game/internal/randutil"

// Strategy picks a spell on behalf of a participant
type Strategy interface {
	SelectAction(s *Session, participantID string) Spell
}

// StrategyFunc adapts a function to Strategy
type StrategyFunc func(s *Session, participantID string) Spell

func (f StrategyFunc) SelectAction(s *Session, participantID string) Spell {
	return f(s, participantID)
}

// RandomStrategy picks uniformly among the three spells
type RandomStrategy struct {
	rng *randutil.Locked
}

// NewRandomStrategy returns a strategy with a reproducible sequence for seed
func NewRandomStrategy(seed int64) *RandomStrategy {
	return &RandomStrategy{rng: randutil.NewLocked(seed)}
}

func (r *RandomStrategy) SelectAction(*Session, string) Spell {
	return Spells[r.rng.IntN(len(Spells))]
}
