package transcript

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Store is an in-memory MessageSink keeping one entry list per model.
//
// Mutations for different models are independent; the single mutex only
// serializes concurrent access to the map itself and to each list.
type Store struct {
	mu      sync.Mutex
	entries map[string][]*Entry
}

func NewStore() *Store {
	return &Store{
		entries: map[string][]*Entry{},
	}
}

var _ MessageSink = (*Store)(nil)

func (s *Store) Append(model string, e *Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[model] = append(s.entries[model], e)
	log.Trace().Str("model", model).Str("kind", string(e.Kind)).Msg("transcript append")
}

func (s *Store) RemoveLast(model string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.entries[model]
	if len(list) == 0 {
		return
	}
	s.entries[model] = list[:len(list)-1]
}

func (s *Store) ReplaceLast(model string, e *Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.entries[model]
	if len(list) == 0 {
		s.entries[model] = append(list, e)
		return
	}
	list[len(list)-1] = e
}

func (s *Store) MutateLastText(model string, partial string, latencyMs float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.entries[model]
	if len(list) == 0 {
		return
	}
	last := list[len(list)-1]
	last.Text += partial
	last.LatencyMs = latencyMs
}

func (s *Store) LastEntry(model string) (*Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.entries[model]
	if len(list) == 0 {
		return nil, false
	}
	return list[len(list)-1], true
}

func (s *Store) Clear(model string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, model)
}

// Entries returns a snapshot of the model's transcript.
func (s *Store) Entries(model string) []*Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.entries[model]
	ret := make([]*Entry, len(list))
	copy(ret, list)
	return ret
}
