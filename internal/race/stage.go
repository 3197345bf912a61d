package race

import (
	"strings"
	"unicode"
)

// Stage is one word-guessing puzzle for one participant
type Stage struct {
	Word         string
	AttemptsLeft int
	guessed      map[rune]bool
}

// NewStage starts a stage with the full attempt budget
func NewStage(word string, attempts int) *Stage {
	return &Stage{
		Word:         strings.ToUpper(word),
		AttemptsLeft: attempts,
		guessed:      make(map[rune]bool),
	}
}

// Revealed renders the word with "_" for hidden letters, letters separated
// by single spaces.
func (s *Stage) Revealed() string {
	var b strings.Builder
	for i, r := range []rune(s.Word) {
		if i > 0 {
			b.WriteByte(' ')
		}
		if s.guessed[r] {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Solved reports whether every letter has been guessed
func (s *Stage) Solved() bool {
	for _, r := range s.Word {
		if !s.guessed[r] {
			return false
		}
	}
	return true
}

// Failed reports whether the attempt budget is spent
func (s *Stage) Failed() bool {
	return s.AttemptsLeft <= 0
}

// Guess applies one letter. correct tells whether the letter is in the word;
// repeated letters change nothing.
func (s *Stage) Guess(letter rune) (correct, repeated bool) {
	letter = unicode.ToUpper(letter)
	correct = strings.ContainsRune(s.Word, letter)
	if s.guessed[letter] {
		return correct, true
	}

	s.guessed[letter] = true
	if !correct {
		s.AttemptsLeft--
	}
	return correct, false
}
