package race

import (
	"sync"
	"time"

	"github.com/iKenshu/quodpot-game/internal/session"
)

// Progress is where a participant stands. Stage is 1-based.
type Progress struct {
	Stage   int
	Current *Stage
}

// Session is a race through a fixed sequence of words. The Manager holds
// mu around every mutation.
type Session struct {
	*session.Base

	mu       sync.Mutex
	words    []string
	attempts int
	progress map[string]*Progress
}

// NewSession creates a Waiting race over words
func NewSession(words []string, attempts int, now time.Time) *Session {
	return &Session{
		Base:     session.NewBase(GameType, now),
		words:    append([]string(nil), words...),
		attempts: attempts,
		progress: make(map[string]*Progress),
	}
}

// Words returns a copy of the target words in stage order
func (s *Session) Words() []string {
	return append([]string(nil), s.words...)
}

// StageCount is the number of stages in the race
func (s *Session) StageCount() int {
	return len(s.words)
}

// Progress returns a participant's position
func (s *Session) Progress(participantID string) (Progress, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.progress[participantID]
	if !ok {
		return Progress{}, false
	}
	return *p, true
}

// initStage gives the participant a fresh stage for their current index,
// starting at stage 1 when they have no progress yet.
func (s *Session) initStage(participantID string) *Progress {
	p, ok := s.progress[participantID]
	if !ok {
		p = &Progress{Stage: 1}
		s.progress[participantID] = p
	}
	p.Current = NewStage(s.words[p.Stage-1], s.attempts)
	return p
}

// stageStatus maps every stage to the connected participants standing on it
func (s *Session) stageStatus() map[int][]string {
	stages := make(map[int][]string, len(s.words))
	for i := 1; i <= len(s.words); i++ {
		stages[i] = []string{}
	}
	for _, p := range s.ConnectedParticipants() {
		if prog, ok := s.progress[p.ID]; ok {
			stages[prog.Stage] = append(stages[prog.Stage], p.Name)
		}
	}
	return stages
}
