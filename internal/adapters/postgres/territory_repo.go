package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/doteapp/dote/internal/core/domain"
)

// TerritoryRepo implements ports.TerritoryRepository. Shapes are stored as
// PostGIS multipolygons and exchanged as GeoJSON.
type TerritoryRepo struct {
	db *DB
}

// NewTerritoryRepo creates a new TerritoryRepo.
func NewTerritoryRepo(db *DB) *TerritoryRepo {
	return &TerritoryRepo{db: db}
}

// Get returns nil, nil when the dog has no territory yet.
func (r *TerritoryRepo) Get(ctx context.Context, dogID string) (*domain.Territory, error) {
	var (
		t     domain.Territory
		shape []byte
	)
	err := r.db.Pool.QueryRow(ctx, `
		SELECT dog_id, ST_AsGeoJSON(shape, 15), area_km2, version, updated_at
		FROM territories WHERE dog_id = $1
	`, dogID).Scan(&t.DogID, &shape, &t.AreaKm2, &t.Version, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select territory: %w", err)
	}

	t.Shape, err = decodeShape(shape)
	if err != nil {
		return nil, fmt.Errorf("territory of %s: %w", dogID, err)
	}
	return &t, nil
}

// Save writes t when the stored version still equals expectedVersion.
func (r *TerritoryRepo) Save(ctx context.Context, t *domain.Territory, expectedVersion int64) error {
	return saveTerritory(ctx, r.db.Pool, t, expectedVersion)
}

// TopByArea ranks dogs by merged territory area.
func (r *TerritoryRepo) TopByArea(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT dog_id, area_km2 FROM territories
		WHERE area_km2 > 0
		ORDER BY area_km2 DESC, dog_id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.LeaderboardEntry
	for rows.Next() {
		var e domain.LeaderboardEntry
		if err := rows.Scan(&e.DogID, &e.AreaKm2); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// DogIDs lists every dog with a stored territory.
func (r *TerritoryRepo) DogIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT dog_id FROM territories ORDER BY dog_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// saveTerritory inserts the first version of a territory or updates it
// under an optimistic version check.
func saveTerritory(ctx context.Context, q execer, t *domain.Territory, expectedVersion int64) error {
	shape, err := encodeShape(t.Shape)
	if err != nil {
		return err
	}

	var sql string
	if expectedVersion == 0 {
		sql = `
			INSERT INTO territories (dog_id, shape, area_km2, version, updated_at)
			VALUES ($1, ST_Multi(ST_SetSRID(ST_GeomFromGeoJSON($2), 4326)), $3, $4 + 1, NOW())
			ON CONFLICT (dog_id) DO NOTHING`
	} else {
		sql = `
			UPDATE territories
			SET shape = ST_Multi(ST_SetSRID(ST_GeomFromGeoJSON($2), 4326)),
			    area_km2 = $3, version = version + 1, updated_at = NOW()
			WHERE dog_id = $1 AND version = $4`
	}

	tag, err := q.Exec(ctx, sql, t.DogID, shape, t.AreaKm2, expectedVersion)
	if err != nil {
		return fmt.Errorf("save territory: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrVersionConflict
	}
	t.Version = expectedVersion + 1
	return nil
}

func encodeShape(mp orb.MultiPolygon) (string, error) {
	if mp == nil {
		mp = orb.MultiPolygon{}
	}
	data, err := geojson.NewGeometry(mp).MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("encode shape: %w", err)
	}
	return string(data), nil
}

func decodeShape(data []byte) (orb.MultiPolygon, error) {
	if len(data) == 0 {
		return nil, nil
	}
	g, err := geojson.UnmarshalGeometry(data)
	if err != nil {
		return nil, fmt.Errorf("decode shape: %w", err)
	}
	switch shape := g.Geometry().(type) {
	case orb.MultiPolygon:
		return shape, nil
	case orb.Polygon:
		return orb.MultiPolygon{shape}, nil
	default:
		return nil, fmt.Errorf("decode shape: unexpected %s", g.Type)
	}
}
