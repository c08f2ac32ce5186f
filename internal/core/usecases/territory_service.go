package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/doteapp/dote/internal/core/domain"
	"github.com/doteapp/dote/internal/core/ports"
	"github.com/doteapp/dote/internal/pkg/geospatial"
	"github.com/doteapp/dote/internal/pkg/metrics"
	"github.com/doteapp/dote/internal/pkg/telemetry"
)

func territoryCacheKey(dogID string) string { return "territory:" + dogID }
func statsCacheKey(dogID string) string     { return "territory:stats:" + dogID }

// TerritoryService serves the read side of territories and rebuilds them
// from stored walks.
type TerritoryService struct {
	territories ports.TerritoryRepository
	walks       ports.WalkRepository
	cache       ports.CacheService
	validator   geospatial.Validator
	logger      *slog.Logger

	rebuild func(dogID string, hulls []domain.Polygon) (*domain.Territory, int)
}

// NewTerritoryService creates a new TerritoryService.
func NewTerritoryService(
	territories ports.TerritoryRepository,
	walks ports.WalkRepository,
	cache ports.CacheService,
	validator geospatial.Validator,
	logger *slog.Logger,
) *TerritoryService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TerritoryService{
		territories: territories,
		walks:       walks,
		cache:       cache,
		validator:   validator,
		logger:      logger,
		rebuild:     geospatial.RebuildTerritory,
	}
}

// GetTerritory returns the dog's territory. A dog that never walked gets
// an empty territory rather than an error.
func (s *TerritoryService) GetTerritory(ctx context.Context, dogID string) (*domain.Territory, error) {
	cacheKey := territoryCacheKey(dogID)
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var t domain.Territory
			if err := json.Unmarshal(data, &t); err == nil {
				metrics.CacheHits.WithLabelValues("territory").Inc()
				return &t, nil
			}
		}
		metrics.CacheMisses.WithLabelValues("territory").Inc()
	}

	t, err := s.territories.Get(ctx, dogID)
	if err != nil {
		return nil, fmt.Errorf("get territory: %w", err)
	}
	if t == nil {
		t = &domain.Territory{DogID: dogID}
	}

	if s.cache != nil {
		if data, err := json.Marshal(t); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, 300)
		}
	}
	return t, nil
}

// Stats combines the merged territory size with walk totals.
func (s *TerritoryService) Stats(ctx context.Context, dogID string) (*domain.DogTerritoryStats, error) {
	cacheKey := statsCacheKey(dogID)
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var st domain.DogTerritoryStats
			if err := json.Unmarshal(data, &st); err == nil {
				return &st, nil
			}
		}
	}

	t, err := s.GetTerritory(ctx, dogID)
	if err != nil {
		return nil, err
	}
	totals, err := s.walks.DogTotals(ctx, dogID)
	if err != nil {
		return nil, fmt.Errorf("dog totals: %w", err)
	}

	stats := &domain.DogTerritoryStats{
		DogID:           dogID,
		AreaKm2:         t.AreaKm2,
		PolygonCount:    len(t.Shape),
		CompletedWalks:  totals.CompletedWalks,
		TotalDistanceKm: totals.TotalDistanceKm,
	}

	if s.cache != nil {
		if data, err := json.Marshal(stats); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, 120)
		}
	}
	return stats, nil
}

// ExportKML writes the dog's territory as KML.
func (s *TerritoryService) ExportKML(ctx context.Context, dogID string, w io.Writer) error {
	t, err := s.GetTerritory(ctx, dogID)
	if err != nil {
		return err
	}
	return geospatial.WriteTerritoryKML(w, t)
}

// Leaderboard ranks dogs by merged territory area.
func (s *TerritoryService) Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}

	cacheKey := fmt.Sprintf("leaderboard:territory:%d", limit)
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var entries []domain.LeaderboardEntry
			if err := json.Unmarshal(data, &entries); err == nil {
				return entries, nil
			}
		}
	}

	entries, err := s.territories.TopByArea(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("top territories: %w", err)
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}

	// Short TTL, territories move after every walk
	if s.cache != nil {
		if data, err := json.Marshal(entries); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, 60)
		}
	}
	return entries, nil
}

// Rebuild recomputes a dog's territory from the stored points of all its
// completed walks and replaces the stored one. Walks whose hull is not a
// valid polygon contribute nothing. If any valid hull fails to merge the
// stored territory is left as it is and an error wrapping
// domain.ErrMergeFailed is returned.
func (s *TerritoryService) Rebuild(ctx context.Context, dogID string) (*domain.Territory, error) {
	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanRebuild,
		trace.WithAttributes(attribute.String(telemetry.AttrDogID, dogID)))
	defer span.End()

	ids, err := s.walks.CompletedSessionIDs(ctx, dogID)
	if err != nil {
		return nil, fmt.Errorf("completed sessions: %w", err)
	}

	hulls := make([]domain.Polygon, 0, len(ids))
	for _, id := range ids {
		points, err := s.walks.ListPoints(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("list points of %s: %w", id, err)
		}
		coords := make([]domain.Coordinate, len(points))
		for i, p := range points {
			coords[i] = p.Location
		}
		hull := geospatial.BuildConvexHull(coords)
		if !s.validator.IsValidPolygon(hull) {
			continue
		}
		hulls = append(hulls, hull)
	}

	rebuilt, failed := s.rebuild(dogID, hulls)
	if failed > 0 {
		metrics.MergeFailures.Add(float64(failed))
		err := fmt.Errorf("%w: %d of %d walks of dog %s", domain.ErrMergeFailed, failed, len(hulls), dogID)
		span.RecordError(err)
		s.logger.Warn("rebuild incomplete, keeping stored territory", "dog_id", dogID, "failed", failed, "walks", len(hulls))
		return nil, err
	}

	existing, err := s.territories.Get(ctx, dogID)
	if err != nil {
		return nil, fmt.Errorf("get territory: %w", err)
	}
	var version int64
	if existing != nil {
		version = existing.Version
	}
	rebuilt.Version = version
	if err := s.territories.Save(ctx, rebuilt, version); err != nil {
		return nil, fmt.Errorf("save territory: %w", err)
	}

	if s.cache != nil {
		_ = s.cache.Delete(ctx, territoryCacheKey(dogID))
		_ = s.cache.Delete(ctx, statsCacheKey(dogID))
	}

	var before float64
	if existing != nil {
		before = existing.AreaKm2
	}
	s.logger.Info("territory rebuilt",
		"dog_id", dogID,
		"walks", len(ids),
		"merged", len(hulls),
		"area_before_km2", before,
		"area_after_km2", rebuilt.AreaKm2,
	)
	return rebuilt, nil
}

// RebuildAll rebuilds every stored territory and returns how many
// succeeded. It keeps going after individual failures.
func (s *TerritoryService) RebuildAll(ctx context.Context) (int, error) {
	dogs, err := s.territories.DogIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list dogs: %w", err)
	}

	var done int
	for _, dogID := range dogs {
		if ctx.Err() != nil {
			return done, ctx.Err()
		}
		if _, err := s.Rebuild(ctx, dogID); err != nil {
			s.logger.Error("rebuild failed", "dog_id", dogID, "error", err)
			continue
		}
		done++
	}
	return done, nil
}
