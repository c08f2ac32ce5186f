// Package memory is a process-local store for walks, territories and the
// Paws ledger. It backs local development and the HTTP tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/doteapp/dote/internal/core/domain"
)

// Store implements ports.WalkRepository, ports.TerritoryRepository and
// ports.CurrencyLedger.
type Store struct {
	mu          sync.RWMutex
	sessions    map[string]domain.WalkSession
	points      map[string]map[int]domain.WalkPoint
	territories map[string]domain.Territory
	credits     map[string]domain.PawsCredit // by session
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		sessions:    make(map[string]domain.WalkSession),
		points:      make(map[string]map[int]domain.WalkPoint),
		territories: make(map[string]domain.Territory),
		credits:     make(map[string]domain.PawsCredit),
	}
}

func (s *Store) CreateSession(ctx context.Context, session *domain.WalkSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.sessions {
		if existing.DogID == session.DogID && existing.Status == domain.WalkActive {
			return domain.ErrWalkInProgress
		}
	}
	s.sessions[session.ID] = *session
	return nil
}

func (s *Store) AppendPoints(ctx context.Context, points []domain.WalkPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range points {
		bySeq := s.points[p.SessionID]
		if bySeq == nil {
			bySeq = make(map[int]domain.WalkPoint)
			s.points[p.SessionID] = bySeq
		}
		if _, ok := bySeq[p.Seq]; !ok {
			bySeq[p.Seq] = p
		}
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*domain.WalkSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &session, nil
}

func (s *Store) ActiveSessionForDog(ctx context.Context, dogID string) (*domain.WalkSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, session := range s.sessions {
		if session.DogID == dogID && session.Status == domain.WalkActive {
			return &session, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Store) ListPoints(ctx context.Context, sessionID string) ([]domain.WalkPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bySeq := s.points[sessionID]
	out := make([]domain.WalkPoint, 0, len(bySeq))
	for _, p := range bySeq {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (s *Store) ListByDog(ctx context.Context, dogID string, offset, limit int) ([]domain.WalkSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.WalkSession
	for _, session := range s.sessions {
		if session.DogID == dogID {
			out = append(out, session)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) CancelSession(ctx context.Context, session *domain.WalkSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessions[session.ID].Status != domain.WalkActive {
		return domain.ErrSessionNotActive
	}
	s.sessions[session.ID] = *session
	return nil
}

// CompleteWalk applies the territory and the session under one lock.
func (s *Store) CompleteWalk(ctx context.Context, session *domain.WalkSession, t *domain.Territory, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessions[session.ID].Status != domain.WalkActive {
		return domain.ErrSessionNotActive
	}
	if t != nil {
		if err := s.saveLocked(t, expectedVersion); err != nil {
			return err
		}
	}
	s.sessions[session.ID] = *session
	return nil
}

func (s *Store) DogTotals(ctx context.Context, dogID string) (domain.DogTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var totals domain.DogTotals
	for _, session := range s.sessions {
		if session.DogID == dogID && session.Status == domain.WalkCompleted {
			totals.CompletedWalks++
			totals.TotalDistanceKm += session.DistanceKm
		}
	}
	return totals, nil
}

func (s *Store) CompletedSessionIDs(ctx context.Context, dogID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var completed []domain.WalkSession
	for _, session := range s.sessions {
		if session.DogID == dogID && session.Status == domain.WalkCompleted {
			completed = append(completed, session)
		}
	}
	sort.Slice(completed, func(i, j int) bool { return completed[i].StartedAt.Before(completed[j].StartedAt) })
	ids := make([]string, len(completed))
	for i, session := range completed {
		ids[i] = session.ID
	}
	return ids, nil
}

// Get returns nil, nil when the dog has no territory yet.
func (s *Store) Get(ctx context.Context, dogID string) (*domain.Territory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.territories[dogID]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (s *Store) Save(ctx context.Context, t *domain.Territory, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(t, expectedVersion)
}

func (s *Store) saveLocked(t *domain.Territory, expectedVersion int64) error {
	if s.territories[t.DogID].Version != expectedVersion {
		return domain.ErrVersionConflict
	}
	t.Version = expectedVersion + 1
	s.territories[t.DogID] = *t
	return nil
}

func (s *Store) TopByArea(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var entries []domain.LeaderboardEntry
	for _, t := range s.territories {
		if t.AreaKm2 > 0 {
			entries = append(entries, domain.LeaderboardEntry{DogID: t.DogID, AreaKm2: t.AreaKm2})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].AreaKm2 != entries[j].AreaKm2 {
			return entries[i].AreaKm2 > entries[j].AreaKm2
		}
		return entries[i].DogID < entries[j].DogID
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (s *Store) DogIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.territories))
	for id := range s.territories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// CreditCurrency ignores repeated credits for the same session.
func (s *Store) CreditCurrency(ctx context.Context, c domain.PawsCredit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.credits[c.SessionID]; !ok {
		s.credits[c.SessionID] = c
	}
	return nil
}

func (s *Store) Balance(ctx context.Context, userID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total int64
	for _, c := range s.credits {
		if c.UserID == userID {
			total += c.Amount
		}
	}
	return total, nil
}
