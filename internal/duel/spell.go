package duel

import (
	"fmt"
	"strings"
)

// Spell is one of the three duel actions
type Spell string

const (
	Ignis Spell = "ignis"
	Aqua  Spell = "aqua"
	Virel Spell = "virel"
)

// Spells lists every valid spell
var Spells = []Spell{Ignis, Aqua, Virel}

// beats maps each spell to the one it defeats
var beats = map[Spell]Spell{
	Ignis: Virel,
	Virel: Aqua,
	Aqua:  Ignis,
}

// ParseSpell normalizes and validates a spell name
func ParseSpell(s string) (Spell, error) {
	spell := Spell(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := beats[spell]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownSpell, s)
	}
	return spell, nil
}

func (s Spell) String() string {
	return string(s)
}

// Beats reports whether s defeats other
func (s Spell) Beats(other Spell) bool {
	return beats[s] == other
}

// RoundResult is the outcome of a resolved round from side A's point of view
type RoundResult int

const (
	Tie RoundResult = iota
	SideAWins
	SideBWins
)

func (r RoundResult) String() string {
	switch r {
	case SideAWins:
		return "side_a_wins"
	case SideBWins:
		return "side_b_wins"
	default:
		return "tie"
	}
}

// Outcome applies the payoff table to a pair of casts
func Outcome(a, b Spell) RoundResult {
	switch {
	case a == b:
		return Tie
	case a.Beats(b):
		return SideAWins
	default:
		return SideBWins
	}
}
