// Package words supplies the target words of race sessions.
package words

import (
	"bufio"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"

	"github.com/iKenshu/quodpot-game/internal/randutil"
)

// MinWords is the smallest usable bank
const MinWords = 10

var (
	ErrTooFewWords  = errors.New("word bank too small")
	ErrNotEnoughFor = errors.New("not enough distinct words")
)

//go:embed words.txt
var defaultWords string

// Source hands out the words of one session
type Source interface {
	SelectWords(count int) ([]string, error)
}

// Bank is a Source backed by an in-memory list of distinct upper-case words
type Bank struct {
	words []string
	rng   *randutil.Locked
}

// Default returns the bank built into the binary
func Default(seed int64) *Bank {
	bank, err := Parse(strings.NewReader(defaultWords), seed)
	if err != nil {
		panic(fmt.Sprintf("embedded word list: %v", err))
	}
	return bank
}

// Load reads a word list file, one word per line
func Load(path string, seed int64) (*Bank, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open word list: %w", err)
	}
	defer func() { _ = f.Close() }()

	bank, err := Parse(f, seed)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return bank, nil
}

// Parse reads one word per line. Blank lines and entries with anything but
// letters are skipped, and duplicates are kept once.
func Parse(r io.Reader, seed int64) (*Bank, error) {
	seen := make(map[string]bool)
	var words []string

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		word := strings.ToUpper(strings.TrimSpace(scanner.Text()))
		if word == "" || !isAlpha(word) || seen[word] {
			continue
		}
		seen[word] = true
		words = append(words, word)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read word list: %w", err)
	}
	if len(words) < MinWords {
		return nil, fmt.Errorf("%w: %d words, need at least %d", ErrTooFewWords, len(words), MinWords)
	}

	return &Bank{words: words, rng: randutil.NewLocked(seed)}, nil
}

func isAlpha(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

// Len returns the number of distinct words
func (b *Bank) Len() int {
	return len(b.words)
}

// SelectWords returns count distinct words in random order
func (b *Bank) SelectWords(count int) ([]string, error) {
	if count > len(b.words) {
		return nil, fmt.Errorf("%w: want %d, have %d", ErrNotEnoughFor, count, len(b.words))
	}

	perm := b.rng.Perm(len(b.words))
	out := make([]string, count)
	for i := range out {
		out[i] = b.words[perm[i]]
	}
	return out, nil
}

// Verify fails unless the source can fill a session of count stages
func Verify(src Source, count int) error {
	if _, err := src.SelectWords(count); err != nil {
		return fmt.Errorf("word source cannot fill %d stages: %w", count, err)
	}
	return nil
}
