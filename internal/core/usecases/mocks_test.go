package usecases_test

import (
	"context"
	"sort"
	"sync"

	"github.com/doteapp/dote/internal/core/domain"
)

// --- In-memory TerritoryRepository ---

type memTerritoryRepo struct {
	mu        sync.Mutex
	byDog     map[string]domain.Territory
	getErr    error
	saveCalls int
}

func newMemTerritoryRepo() *memTerritoryRepo {
	return &memTerritoryRepo{byDog: make(map[string]domain.Territory)}
}

func (m *memTerritoryRepo) Get(ctx context.Context, dogID string) (*domain.Territory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	t, ok := m.byDog[dogID]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (m *memTerritoryRepo) Save(ctx context.Context, t *domain.Territory, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveLocked(t, expectedVersion)
}

func (m *memTerritoryRepo) saveLocked(t *domain.Territory, expectedVersion int64) error {
	m.saveCalls++
	if m.byDog[t.DogID].Version != expectedVersion {
		return domain.ErrVersionConflict
	}
	t.Version = expectedVersion + 1
	m.byDog[t.DogID] = *t
	return nil
}

func (m *memTerritoryRepo) TopByArea(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.LeaderboardEntry
	for _, t := range m.byDog {
		out = append(out, domain.LeaderboardEntry{DogID: t.DogID, AreaKm2: t.AreaKm2})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AreaKm2 > out[j].AreaKm2 })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memTerritoryRepo) DogIDs(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for id := range m.byDog {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// --- In-memory WalkRepository ---

type memWalkRepo struct {
	mu          sync.Mutex
	sessions    map[string]domain.WalkSession
	points      map[string][]domain.WalkPoint
	territories *memTerritoryRepo

	appendErr      error
	appendCalls    int
	completeCalls  int
	beforeComplete func(call int) error
}

func newMemWalkRepo(territories *memTerritoryRepo) *memWalkRepo {
	return &memWalkRepo{
		sessions:    make(map[string]domain.WalkSession),
		points:      make(map[string][]domain.WalkPoint),
		territories: territories,
	}
}

func (m *memWalkRepo) CreateSession(ctx context.Context, session *domain.WalkSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.DogID == session.DogID && s.Status == domain.WalkActive {
			return domain.ErrWalkInProgress
		}
	}
	m.sessions[session.ID] = *session
	return nil
}

func (m *memWalkRepo) AppendPoints(ctx context.Context, points []domain.WalkPoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendCalls++
	if m.appendErr != nil {
		return m.appendErr
	}
	for _, p := range points {
		m.points[p.SessionID] = append(m.points[p.SessionID], p)
	}
	return nil
}

func (m *memWalkRepo) GetSession(ctx context.Context, id string) (*domain.WalkSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &s, nil
}

func (m *memWalkRepo) ActiveSessionForDog(ctx context.Context, dogID string) (*domain.WalkSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.DogID == dogID && s.Status == domain.WalkActive {
			return &s, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memWalkRepo) ListPoints(ctx context.Context, sessionID string) ([]domain.WalkPoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.WalkPoint(nil), m.points[sessionID]...), nil
}

func (m *memWalkRepo) ListByDog(ctx context.Context, dogID string, offset, limit int) ([]domain.WalkSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.WalkSession
	for _, s := range m.sessions {
		if s.DogID == dogID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memWalkRepo) CancelSession(ctx context.Context, session *domain.WalkSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.ID] = *session
	return nil
}

func (m *memWalkRepo) CompleteWalk(ctx context.Context, session *domain.WalkSession, territory *domain.Territory, expectedVersion int64) error {
	m.mu.Lock()
	m.completeCalls++
	call := m.completeCalls
	hook := m.beforeComplete
	m.mu.Unlock()

	if hook != nil {
		if err := hook(call); err != nil {
			return err
		}
	}

	if territory != nil {
		if err := m.territories.Save(ctx, territory, expectedVersion); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.ID] = *session
	return nil
}

func (m *memWalkRepo) DogTotals(ctx context.Context, dogID string) (domain.DogTotals, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var totals domain.DogTotals
	for _, s := range m.sessions {
		if s.DogID == dogID && s.Status == domain.WalkCompleted {
			totals.CompletedWalks++
			totals.TotalDistanceKm += s.DistanceKm
		}
	}
	return totals, nil
}

func (m *memWalkRepo) CompletedSessionIDs(ctx context.Context, dogID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for id, s := range m.sessions {
		if s.DogID == dogID && s.Status == domain.WalkCompleted {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

// --- Reward, publisher and cache mocks ---

type mockRewards struct {
	mu         sync.Mutex
	rewards    []domain.Reward
	dispatchFn func(ctx context.Context, r domain.Reward) error
}

func (m *mockRewards) DispatchReward(ctx context.Context, r domain.Reward) error {
	m.mu.Lock()
	m.rewards = append(m.rewards, r)
	m.mu.Unlock()
	if m.dispatchFn != nil {
		return m.dispatchFn(ctx, r)
	}
	return nil
}

type mockPublisher struct {
	mu        sync.Mutex
	previews  []domain.PointUpdate
	completed []domain.WalkSession
}

func (m *mockPublisher) PublishPreview(ctx context.Context, u *domain.PointUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.previews = append(m.previews, *u)
	return nil
}

func (m *mockPublisher) PublishWalkCompleted(ctx context.Context, s *domain.WalkSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completed = append(m.completed, *s)
	return nil
}

func (m *mockPublisher) PublishCollarFix(ctx context.Context, fix *domain.CollarFix) error {
	return nil
}

type mockCache struct {
	mu      sync.Mutex
	data    map[string][]byte
	deleted []string
}

func newMockCache() *mockCache {
	return &mockCache{data: make(map[string][]byte)}
}

func (m *mockCache) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return v, nil
}

func (m *mockCache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *mockCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	m.deleted = append(m.deleted, key)
	return nil
}

// --- Ledger and notifier mocks ---

type mockLedger struct {
	credits  []domain.PawsCredit
	creditFn func(ctx context.Context, c domain.PawsCredit) error
}

func (m *mockLedger) CreditCurrency(ctx context.Context, c domain.PawsCredit) error {
	if m.creditFn != nil {
		if err := m.creditFn(ctx, c); err != nil {
			return err
		}
	}
	m.credits = append(m.credits, c)
	return nil
}

func (m *mockLedger) Balance(ctx context.Context, userID string) (int64, error) {
	var total int64
	for _, c := range m.credits {
		if c.UserID == userID {
			total += c.Amount
		}
	}
	return total, nil
}

type mockNotifier struct {
	progress []domain.TerritoryProgress
}

func (m *mockNotifier) NotifyProgress(ctx context.Context, p *domain.TerritoryProgress) error {
	m.progress = append(m.progress, *p)
	return nil
}
