package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/doteapp/dote/internal/core/domain"
	"github.com/doteapp/dote/internal/core/ports"
	"github.com/doteapp/dote/internal/pkg/geospatial"
	"github.com/doteapp/dote/internal/pkg/metrics"
	"github.com/doteapp/dote/internal/pkg/telemetry"
)

// Degenerate final hull policies.
const (
	DegenerateComplete = "complete"
	DegenerateReject   = "reject"
)

const maxCommitAttempts = 3

// Point sources used as metric labels.
const (
	SourceApp    = "app"
	SourceCollar = "collar"
)

// WalkConfig tunes the walk orchestrator.
type WalkConfig struct {
	Validator        geospatial.Validator
	PreviewEvery     int
	PointFlushBatch  int
	DegeneratePolicy string
	PawsPerKm2       float64
}

// DefaultWalkConfig previews on every point and flushes points in batches
// of 20.
func DefaultWalkConfig() WalkConfig {
	return WalkConfig{
		Validator:        geospatial.DefaultValidator(),
		PreviewEvery:     1,
		PointFlushBatch:  20,
		DegeneratePolicy: DegenerateComplete,
		PawsPerKm2:       1_000_000,
	}
}

// WalkService runs the walk state machine: it buffers GPS fixes of active
// walks, exposes a live hull preview and, when a walk ends, merges the
// final hull into the dog's territory and hands out the reward.
type WalkService struct {
	walks       ports.WalkRepository
	territories ports.TerritoryRepository
	rewards     ports.RewardDispatcher
	publisher   ports.EventPublisher
	cache       ports.CacheService
	cfg         WalkConfig
	logger      *slog.Logger

	mu       sync.Mutex
	sessions map[string]*walkState
	byDog    map[string]string
	dogLocks *keyedMutex
}

// walkState is the in-memory buffer of one active walk. mu serialises
// every operation on the walk.
type walkState struct {
	mu      sync.Mutex
	session domain.WalkSession
	points  []domain.WalkPoint
	flushed int
	preview domain.Polygon
	pending *pendingCommit
}

// pendingCommit is a merge computed against a given territory version. It
// survives a failed write so a retry can reuse it.
type pendingCommit struct {
	baseVersion int64
	hull        domain.Polygon
	result      geospatial.MergeResult
	mergeFailed bool
}

// NewWalkService creates a new WalkService. publisher, cache and rewards
// may be nil.
func NewWalkService(
	walks ports.WalkRepository,
	territories ports.TerritoryRepository,
	rewards ports.RewardDispatcher,
	publisher ports.EventPublisher,
	cache ports.CacheService,
	cfg WalkConfig,
	logger *slog.Logger,
) *WalkService {
	if cfg.PreviewEvery <= 0 {
		cfg.PreviewEvery = 1
	}
	if cfg.PointFlushBatch <= 0 {
		cfg.PointFlushBatch = 20
	}
	if cfg.PawsPerKm2 <= 0 {
		cfg.PawsPerKm2 = 1_000_000
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WalkService{
		walks:       walks,
		territories: territories,
		rewards:     rewards,
		publisher:   publisher,
		cache:       cache,
		cfg:         cfg,
		logger:      logger,
		sessions:    make(map[string]*walkState),
		byDog:       make(map[string]string),
		dogLocks:    newKeyedMutex(),
	}
}

// StartWalk opens a new active walk for a dog. A dog walks one walk at a
// time.
func (s *WalkService) StartWalk(ctx context.Context, dogID, walkerID string) (*domain.WalkSession, error) {
	if dogID == "" {
		return nil, &domain.InputError{Reason: "dog id is required"}
	}

	s.mu.Lock()
	_, walking := s.byDog[dogID]
	s.mu.Unlock()
	if walking {
		return nil, domain.ErrWalkInProgress
	}
	if _, err := s.walks.ActiveSessionForDog(ctx, dogID); err == nil {
		return nil, domain.ErrWalkInProgress
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("check active walk: %w", err)
	}

	session := domain.WalkSession{
		ID:        uuid.NewString(),
		DogID:     dogID,
		WalkerID:  walkerID,
		StartedAt: time.Now().UTC(),
		Status:    domain.WalkActive,
	}
	if err := s.walks.CreateSession(ctx, &session); err != nil {
		if errors.Is(err, domain.ErrWalkInProgress) {
			return nil, domain.ErrWalkInProgress
		}
		return nil, &domain.PersistenceError{Op: "create session", Err: err}
	}

	s.mu.Lock()
	s.sessions[session.ID] = &walkState{session: session}
	s.byDog[dogID] = session.ID
	s.mu.Unlock()

	metrics.WalksStarted.Inc()
	s.logger.Info("walk started", "session_id", session.ID, "dog_id", dogID)

	out := session
	return &out, nil
}

// AddWalkPoint appends a GPS fix to an active walk.
func (s *WalkService) AddWalkPoint(ctx context.Context, sessionID string, coord domain.Coordinate, at time.Time) (*domain.PointUpdate, error) {
	return s.addPoints(ctx, sessionID, []domain.GPSFix{{Location: coord, RecordedAt: at}}, SourceApp)
}

// AddWalkPoints appends a batch of GPS fixes to an active walk. The batch
// is applied as a whole: if any fix is out of range, or the walk is not
// active, none of them is recorded.
func (s *WalkService) AddWalkPoints(ctx context.Context, sessionID string, fixes []domain.GPSFix) (*domain.PointUpdate, error) {
	return s.addPoints(ctx, sessionID, fixes, SourceApp)
}

// AddWalkPointForDog routes a fix to the dog's active walk. It returns
// domain.ErrNotFound when the dog is not walking.
func (s *WalkService) AddWalkPointForDog(ctx context.Context, dogID string, coord domain.Coordinate, at time.Time) (*domain.PointUpdate, error) {
	s.mu.Lock()
	sessionID, ok := s.byDog[dogID]
	s.mu.Unlock()

	if !ok {
		session, err := s.walks.ActiveSessionForDog(ctx, dogID)
		if err != nil {
			return nil, fmt.Errorf("active walk for dog %s: %w", dogID, err)
		}
		sessionID = session.ID
	}
	return s.addPoints(ctx, sessionID, []domain.GPSFix{{Location: coord, RecordedAt: at}}, SourceCollar)
}

func (s *WalkService) addPoints(ctx context.Context, sessionID string, fixes []domain.GPSFix, source string) (*domain.PointUpdate, error) {
	if len(fixes) == 0 {
		return nil, &domain.InputError{Reason: "no points"}
	}
	for _, f := range fixes {
		if !f.Location.Valid() {
			return nil, domain.ErrInvalidCoordinate
		}
	}

	st, err := s.state(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.session.Status != domain.WalkActive {
		return nil, domain.ErrSessionNotActive
	}

	now := time.Now().UTC()
	previewAt := 0
	for _, f := range fixes {
		at := f.RecordedAt
		if at.IsZero() {
			at = now
		}
		n := len(st.points)
		if n > 0 {
			st.session.DistanceKm += geospatial.HaversineDistanceKm(st.points[n-1].Location, f.Location)
		}
		st.points = append(st.points, domain.WalkPoint{
			SessionID:  st.session.ID,
			DogID:      st.session.DogID,
			Seq:        n,
			Location:   f.Location,
			RecordedAt: at,
		})
		if n+1 >= 3 && (n+1-3)%s.cfg.PreviewEvery == 0 {
			previewAt = n + 1
		}
	}
	st.session.PointsCount = len(st.points)
	metrics.WalkPointsIngested.WithLabelValues(source).Add(float64(len(fixes)))

	// The preview reflects the last fix that was due one.
	if previewAt > 0 {
		hull := geospatial.BuildConvexHull(st.locationsUpTo(previewAt))
		if s.cfg.Validator.IsValidPolygon(hull) {
			st.preview = hull
		} else {
			st.preview = nil
		}
	}

	if len(st.points)-st.flushed >= s.cfg.PointFlushBatch {
		if err := s.flush(ctx, st); err != nil {
			s.logger.Warn("flush walk points failed, will retry", "session_id", sessionID, "pending", len(st.points)-st.flushed, "error", err)
		}
	}

	update := st.update()
	if previewAt > 0 && s.publisher != nil {
		_ = s.publisher.PublishPreview(ctx, update)
	}
	return update, nil
}

// EndWalk completes an active walk. Fewer than 3 points leave the walk
// active. The final hull always uses every recorded point.
func (s *WalkService) EndWalk(ctx context.Context, sessionID string) (*domain.WalkResult, error) {
	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanEndWalk,
		trace.WithAttributes(attribute.String(telemetry.AttrSessionID, sessionID)))
	defer span.End()

	st, err := s.state(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.session.Status != domain.WalkActive {
		return nil, domain.ErrSessionNotActive
	}
	if len(st.points) < 3 {
		return nil, domain.ErrWalkTooShort
	}
	if err := s.flush(ctx, st); err != nil {
		return nil, &domain.PersistenceError{Op: "append points", Err: err}
	}

	var (
		completed *domain.WalkSession
		result    *domain.WalkResult
	)
	hull := geospatial.BuildConvexHull(st.locations())
	if verr := s.cfg.Validator.Validate(hull); verr != nil {
		if s.cfg.DegeneratePolicy == DegenerateReject {
			return nil, &domain.DegenerateWalkError{Cause: verr}
		}
		s.logger.Info("walk hull degenerate, completing without territory", "session_id", sessionID, "error", verr)
		completed, result, err = s.commitWithoutTerritory(ctx, st)
	} else {
		completed, result, err = s.commitMerge(ctx, st, hull)
	}
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(
		attribute.String(telemetry.AttrDogID, completed.DogID),
		attribute.Float64(telemetry.AttrGainedKm2, result.TerritoryGainedKm2),
	)
	s.finish(st, *completed)
	s.afterCommit(ctx, completed)
	return result, nil
}

func (s *WalkService) commitWithoutTerritory(ctx context.Context, st *walkState) (*domain.WalkSession, *domain.WalkResult, error) {
	completed := st.completed(nil, 0, 0)
	if err := s.walks.CompleteWalk(ctx, &completed, nil, 0); err != nil {
		return nil, nil, &domain.PersistenceError{Op: "complete walk", Err: err}
	}
	return &completed, &domain.WalkResult{
		SessionID:  completed.ID,
		DistanceKm: completed.DistanceKm,
		Degenerate: true,
	}, nil
}

func (s *WalkService) commitMerge(ctx context.Context, st *walkState, hull domain.Polygon) (*domain.WalkSession, *domain.WalkResult, error) {
	dogID := st.session.DogID
	unlock := s.dogLocks.Lock(dogID)
	defer unlock()

	for attempt := 1; ; attempt++ {
		existing, err := s.territories.Get(ctx, dogID)
		if err != nil {
			return nil, nil, &domain.PersistenceError{Op: "load territory", Err: err}
		}
		var base int64
		if existing != nil {
			base = existing.Version
		}

		pc := st.pending
		if pc == nil || pc.baseVersion != base {
			pc = s.merge(ctx, dogID, existing, hull)
			pc.baseVersion = base
			st.pending = pc
		}

		gain := pc.result.IncrementalAreaKm2
		paws := int64(math.Floor(gain * s.cfg.PawsPerKm2))
		completed := st.completed(hull, gain, paws)

		var territory *domain.Territory
		if pc.result.Changed {
			territory = &domain.Territory{
				DogID:     dogID,
				Shape:     pc.result.Merged,
				AreaKm2:   pc.result.AreaKm2,
				Version:   base,
				UpdatedAt: time.Now().UTC(),
			}
		}

		err = s.walks.CompleteWalk(ctx, &completed, territory, base)
		if err == nil {
			result := &domain.WalkResult{
				SessionID:          completed.ID,
				DistanceKm:         completed.DistanceKm,
				TerritoryGainedKm2: gain,
				PawsEarned:         paws,
				MergeFailed:        pc.mergeFailed,
			}
			if pc.result.Changed {
				delta := pc.result.Delta(hull)
				result.Delta = &delta
			}
			return &completed, result, nil
		}
		if errors.Is(err, domain.ErrVersionConflict) && attempt < maxCommitAttempts {
			metrics.VersionConflicts.Inc()
			s.logger.Info("territory changed concurrently, merging again", "dog_id", dogID, "attempt", attempt)
			st.pending = nil
			continue
		}
		s.logger.Error("complete walk failed", "session_id", completed.ID, "dog_id", dogID, "error", err)
		return nil, nil, &domain.PersistenceError{Op: "complete walk", Err: err}
	}
}

func (s *WalkService) merge(ctx context.Context, dogID string, existing *domain.Territory, hull domain.Polygon) *pendingCommit {
	_, span := telemetry.Tracer().Start(ctx, telemetry.SpanMergeTerritory,
		trace.WithAttributes(attribute.String(telemetry.AttrDogID, dogID)))
	defer span.End()

	start := time.Now()
	res, err := geospatial.MergeTerritory(existing, hull)
	metrics.MergeDuration.Observe(time.Since(start).Seconds())

	pc := &pendingCommit{hull: hull, result: res}
	if err != nil {
		pc.mergeFailed = true
		metrics.MergeFailures.Inc()
		span.SetAttributes(attribute.Bool(telemetry.AttrMergeFault, true))
		s.logger.Warn("territory merge failed, keeping existing territory", "dog_id", dogID, "error", err)
	}
	return pc
}

// afterCommit runs the best-effort side effects of a completed walk.
func (s *WalkService) afterCommit(ctx context.Context, session *domain.WalkSession) {
	metrics.WalksFinished.WithLabelValues(string(domain.WalkCompleted)).Inc()
	metrics.AreaGainedKm2.Observe(session.TerritoryGainedKm2)

	if s.cache != nil {
		_ = s.cache.Delete(ctx, territoryCacheKey(session.DogID))
		_ = s.cache.Delete(ctx, statsCacheKey(session.DogID))
	}
	if s.publisher != nil {
		_ = s.publisher.PublishWalkCompleted(ctx, session)
	}
	if s.rewards != nil {
		reward := domain.Reward{
			SessionID:  session.ID,
			DogID:      session.DogID,
			WalkerID:   session.WalkerID,
			PawsEarned: session.PawsEarned,
			GainedKm2:  session.TerritoryGainedKm2,
			DistanceKm: session.DistanceKm,
		}
		if err := s.rewards.DispatchReward(ctx, reward); err != nil {
			s.logger.Error("dispatch reward failed", "session_id", session.ID, "paws", session.PawsEarned, "error", err)
		}
	}

	s.logger.Info("walk completed",
		"session_id", session.ID,
		"dog_id", session.DogID,
		"distance_km", session.DistanceKm,
		"gained_km2", session.TerritoryGainedKm2,
		"paws", session.PawsEarned,
	)
}

// CancelWalk aborts an active walk without territory or currency effects.
func (s *WalkService) CancelWalk(ctx context.Context, sessionID string) (*domain.WalkSession, error) {
	st, err := s.state(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.session.Status != domain.WalkActive {
		return nil, domain.ErrSessionNotActive
	}

	cancelled := st.session
	now := time.Now().UTC()
	cancelled.EndedAt = &now
	cancelled.Status = domain.WalkCancelled
	if err := s.walks.CancelSession(ctx, &cancelled); err != nil {
		return nil, &domain.PersistenceError{Op: "cancel session", Err: err}
	}

	s.finish(st, cancelled)
	metrics.WalksFinished.WithLabelValues(string(domain.WalkCancelled)).Inc()
	s.logger.Info("walk cancelled", "session_id", sessionID, "dog_id", cancelled.DogID)

	out := cancelled
	return &out, nil
}

// GetSession returns a walk, live state first.
func (s *WalkService) GetSession(ctx context.Context, sessionID string) (*domain.WalkSession, error) {
	s.mu.Lock()
	st := s.sessions[sessionID]
	s.mu.Unlock()

	if st != nil {
		st.mu.Lock()
		out := st.session
		st.mu.Unlock()
		return &out, nil
	}
	return s.walks.GetSession(ctx, sessionID)
}

// Path returns the recorded GPS fixes of a walk in order.
func (s *WalkService) Path(ctx context.Context, sessionID string) ([]domain.Coordinate, error) {
	s.mu.Lock()
	st := s.sessions[sessionID]
	s.mu.Unlock()

	if st != nil {
		st.mu.Lock()
		defer st.mu.Unlock()
		return st.locations(), nil
	}
	if _, err := s.walks.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	points, err := s.walks.ListPoints(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list points: %w", err)
	}
	out := make([]domain.Coordinate, len(points))
	for i, p := range points {
		out[i] = p.Location
	}
	return out, nil
}

// Preview returns the current live hull of an active walk.
func (s *WalkService) Preview(ctx context.Context, sessionID string) (*domain.PointUpdate, error) {
	st, err := s.state(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.update(), nil
}

// ListWalks returns a page of a dog's walks, newest first.
func (s *WalkService) ListWalks(ctx context.Context, dogID string, offset, limit int) ([]domain.WalkSession, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.walks.ListByDog(ctx, dogID, offset, limit)
}

// ActiveWalks reports how many walks are buffered in memory.
func (s *WalkService) ActiveWalks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// state returns the live state of an active walk, rebuilding it from the
// store when the walk was started before a restart.
func (s *WalkService) state(ctx context.Context, sessionID string) (*walkState, error) {
	s.mu.Lock()
	st := s.sessions[sessionID]
	s.mu.Unlock()
	if st != nil {
		return st, nil
	}

	session, err := s.walks.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", sessionID, err)
	}
	if session.Status != domain.WalkActive {
		return nil, domain.ErrSessionNotActive
	}
	points, err := s.walks.ListPoints(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list points of %s: %w", sessionID, err)
	}

	st = &walkState{session: *session, points: points, flushed: len(points)}
	st.session.PointsCount = len(points)
	st.session.DistanceKm = geospatial.PathLengthKm(st.locations())
	if len(points) >= 3 {
		if hull := geospatial.BuildConvexHull(st.locations()); s.cfg.Validator.IsValidPolygon(hull) {
			st.preview = hull
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing := s.sessions[sessionID]; existing != nil {
		return existing, nil
	}
	s.sessions[sessionID] = st
	s.byDog[session.DogID] = sessionID
	s.logger.Info("walk rehydrated from store", "session_id", sessionID, "points", len(points))
	return st, nil
}

// finish records the terminal session and drops the buffer. Callers hold
// st.mu.
func (s *WalkService) finish(st *walkState, terminal domain.WalkSession) {
	st.session = terminal
	st.points = nil
	st.flushed = 0
	st.preview = nil
	st.pending = nil

	s.mu.Lock()
	delete(s.sessions, terminal.ID)
	if s.byDog[terminal.DogID] == terminal.ID {
		delete(s.byDog, terminal.DogID)
	}
	s.mu.Unlock()
}

func (s *WalkService) flush(ctx context.Context, st *walkState) error {
	if st.flushed >= len(st.points) {
		return nil
	}
	batch := append([]domain.WalkPoint(nil), st.points[st.flushed:]...)
	if err := s.walks.AppendPoints(ctx, batch); err != nil {
		metrics.PointFlushErrors.Inc()
		return err
	}
	st.flushed = len(st.points)
	return nil
}

func (st *walkState) locations() []domain.Coordinate {
	return st.locationsUpTo(len(st.points))
}

// locationsUpTo returns the first n recorded positions.
func (st *walkState) locationsUpTo(n int) []domain.Coordinate {
	out := make([]domain.Coordinate, n)
	for i, p := range st.points[:n] {
		out[i] = p.Location
	}
	return out
}

func (st *walkState) update() *domain.PointUpdate {
	u := &domain.PointUpdate{
		SessionID:   st.session.ID,
		PointsCount: len(st.points),
		DistanceKm:  st.session.DistanceKm,
	}
	if st.preview != nil {
		u.Preview = append(domain.Polygon(nil), st.preview...)
		u.PreviewAreaKm2 = geospatial.PlanarPolygonAreaKm2(st.preview)
	}
	return u
}

func (st *walkState) completed(hull domain.Polygon, gainKm2 float64, paws int64) domain.WalkSession {
	out := st.session
	now := time.Now().UTC()
	out.EndedAt = &now
	out.Status = domain.WalkCompleted
	out.PointsCount = len(st.points)
	out.TerritoryGainedKm2 = gainKm2
	out.PawsEarned = paws
	out.Hull = hull
	return out
}

// IngestCollarFix feeds a collar fix into the dog's active walk. Fixes of
// dogs that are not walking and invalid fixes are dropped without error so
// the broker does not redeliver them.
func (s *WalkService) IngestCollarFix(ctx context.Context, fix *domain.CollarFix) error {
	_, err := s.AddWalkPointForDog(ctx, fix.DogID, fix.Location, fix.RecordedAt)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrInvalidInput):
		s.logger.Debug("collar fix dropped", "dog_id", fix.DogID, "reason", err)
		return nil
	default:
		return err
	}
}
