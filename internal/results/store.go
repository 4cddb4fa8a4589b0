package results

import (
	"sync"
	"time"

	"glycoscope/internal/model"
)

// Store keeps a bounded ring of recent analysis results plus the
// latest result per subject for quick lookup.
type Store struct {
	mu     sync.RWMutex
	buf    []*model.AnalysisResult
	latest map[string]*model.AnalysisResult
	limit  int
}

func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = 1000
	}
	return &Store{limit: limit, latest: make(map[string]*model.AnalysisResult)}
}

func (s *Store) Add(result *model.AnalysisResult) {
	if result == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.buf) < s.limit {
		s.buf = append(s.buf, result)
	} else {
		copy(s.buf, s.buf[1:])
		s.buf[len(s.buf)-1] = result
	}
	s.latest[result.SubjectID] = result
}

func (s *Store) List(limit int) []*model.AnalysisResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.buf) {
		limit = len(s.buf)
	}
	out := make([]*model.AnalysisResult, 0, limit)
	for i := len(s.buf) - limit; i < len(s.buf); i++ {
		out = append(out, s.buf[i])
	}
	return out
}

func (s *Store) Since(ts time.Time) []*model.AnalysisResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.AnalysisResult, 0)
	for _, r := range s.buf {
		if !r.GeneratedAt.Before(ts) {
			out = append(out, r)
		}
	}
	return out
}

// Latest returns the most recent result for a subject.
func (s *Store) Latest(subjectID string) (*model.AnalysisResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.latest[subjectID]
	return r, ok
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = nil
	s.latest = make(map[string]*model.AnalysisResult)
}
