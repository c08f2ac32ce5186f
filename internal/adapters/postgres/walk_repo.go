package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/doteapp/dote/internal/core/domain"
)

// WalkRepo implements ports.WalkRepository with pgx.
type WalkRepo struct {
	db *DB
}

// NewWalkRepo creates a new WalkRepo.
func NewWalkRepo(db *DB) *WalkRepo {
	return &WalkRepo{db: db}
}

const sessionColumns = `
	id, dog_id, walker_id, started_at, ended_at, status, distance_km,
	territory_gained_km2, points_count, paws_earned, hull`

// CreateSession inserts an active walk. The partial unique index on active
// walks turns a second walk of the same dog into domain.ErrWalkInProgress.
func (r *WalkRepo) CreateSession(ctx context.Context, s *domain.WalkSession) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO walk_sessions (id, dog_id, walker_id, started_at, status)
		VALUES ($1, $2, $3, $4, $5)
	`, s.ID, s.DogID, s.WalkerID, s.StartedAt, s.Status)
	if isUniqueViolation(err) {
		return domain.ErrWalkInProgress
	}
	return err
}

// AppendPoints inserts points using pgx.Batch. Already stored points are
// skipped so a retried flush is harmless.
func (r *WalkRepo) AppendPoints(ctx context.Context, points []domain.WalkPoint) error {
	if len(points) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, p := range points {
		batch.Queue(`
			INSERT INTO walk_points (session_id, seq, dog_id, location, recorded_at)
			VALUES ($1, $2, $3, ST_SetSRID(ST_MakePoint($4, $5), 4326)::geography, $6)
			ON CONFLICT (session_id, seq) DO NOTHING
		`, p.SessionID, p.Seq, p.DogID, p.Location.Longitude, p.Location.Latitude, p.RecordedAt)
	}
	br := r.db.Pool.SendBatch(ctx, batch)
	defer br.Close()
	for range points {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("batch exec: %w", err)
		}
	}
	return nil
}

// GetSession returns a walk by id.
func (r *WalkRepo) GetSession(ctx context.Context, id string) (*domain.WalkSession, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM walk_sessions WHERE id = $1`, id)
	s, err := scanSession(row)
	if err != nil {
		return nil, notFound(err)
	}
	return s, nil
}

// ActiveSessionForDog returns the dog's active walk.
func (r *WalkRepo) ActiveSessionForDog(ctx context.Context, dogID string) (*domain.WalkSession, error) {
	row := r.db.Pool.QueryRow(ctx, `
		SELECT `+sessionColumns+` FROM walk_sessions
		WHERE dog_id = $1 AND status = 'active'
	`, dogID)
	s, err := scanSession(row)
	if err != nil {
		return nil, notFound(err)
	}
	return s, nil
}

// ListPoints returns a walk's points in recording order.
func (r *WalkRepo) ListPoints(ctx context.Context, sessionID string) ([]domain.WalkPoint, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT session_id, seq, dog_id,
		       ST_Y(location::geometry) AS lat,
		       ST_X(location::geometry) AS lon,
		       recorded_at
		FROM walk_points WHERE session_id = $1 ORDER BY seq
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []domain.WalkPoint
	for rows.Next() {
		var p domain.WalkPoint
		if err := rows.Scan(&p.SessionID, &p.Seq, &p.DogID,
			&p.Location.Latitude, &p.Location.Longitude, &p.RecordedAt); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// ListByDog returns a page of a dog's walks, newest first.
func (r *WalkRepo) ListByDog(ctx context.Context, dogID string, offset, limit int) ([]domain.WalkSession, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+sessionColumns+` FROM walk_sessions
		WHERE dog_id = $1
		ORDER BY started_at DESC
		OFFSET $2 LIMIT $3
	`, dogID, offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []domain.WalkSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

// CancelSession stores a cancelled walk.
func (r *WalkRepo) CancelSession(ctx context.Context, s *domain.WalkSession) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE walk_sessions
		SET status = $2, ended_at = $3, distance_km = $4, points_count = $5
		WHERE id = $1 AND status = 'active'
	`, s.ID, s.Status, s.EndedAt, s.DistanceKm, s.PointsCount)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSessionNotActive
	}
	return nil
}

// CompleteWalk stores the completed session and the merged territory in
// one transaction.
func (r *WalkRepo) CompleteWalk(ctx context.Context, s *domain.WalkSession, t *domain.Territory, expectedVersion int64) error {
	hull, err := encodeHull(s.Hull)
	if err != nil {
		return err
	}

	return r.db.inTx(ctx, func(tx pgx.Tx) error {
		if t != nil {
			if err := saveTerritory(ctx, tx, t, expectedVersion); err != nil {
				return err
			}
		}

		tag, err := tx.Exec(ctx, `
			UPDATE walk_sessions
			SET status = $2, ended_at = $3, distance_km = $4, territory_gained_km2 = $5,
			    points_count = $6, paws_earned = $7, hull = $8
			WHERE id = $1 AND status = 'active'
		`, s.ID, s.Status, s.EndedAt, s.DistanceKm, s.TerritoryGainedKm2,
			s.PointsCount, s.PawsEarned, hull)
		if err != nil {
			return fmt.Errorf("complete session: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrSessionNotActive
		}
		return nil
	})
}

// DogTotals aggregates the dog's completed walks.
func (r *WalkRepo) DogTotals(ctx context.Context, dogID string) (domain.DogTotals, error) {
	var totals domain.DogTotals
	err := r.db.Pool.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(distance_km), 0)
		FROM walk_sessions WHERE dog_id = $1 AND status = 'completed'
	`, dogID).Scan(&totals.CompletedWalks, &totals.TotalDistanceKm)
	return totals, err
}

// CompletedSessionIDs lists the dog's completed walks, oldest first.
func (r *WalkRepo) CompletedSessionIDs(ctx context.Context, dogID string) ([]string, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id FROM walk_sessions
		WHERE dog_id = $1 AND status = 'completed'
		ORDER BY started_at
	`, dogID)
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

func scanSession(row pgx.Row) (*domain.WalkSession, error) {
	var (
		s    domain.WalkSession
		hull []byte
	)
	if err := row.Scan(
		&s.ID, &s.DogID, &s.WalkerID, &s.StartedAt, &s.EndedAt, &s.Status, &s.DistanceKm,
		&s.TerritoryGainedKm2, &s.PointsCount, &s.PawsEarned, &hull,
	); err != nil {
		return nil, err
	}
	if len(hull) > 0 {
		if err := json.Unmarshal(hull, &s.Hull); err != nil {
			return nil, fmt.Errorf("decode hull: %w", err)
		}
	}
	return &s, nil
}

func encodeHull(p domain.Polygon) ([]byte, error) {
	if len(p) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode hull: %w", err)
	}
	return data, nil
}
