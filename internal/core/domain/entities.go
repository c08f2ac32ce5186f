package domain

import (
	"time"

	"github.com/paulmach/orb"
)

// WalkStatus is the lifecycle state of a walk session.
type WalkStatus string

const (
	WalkActive    WalkStatus = "active"
	WalkCompleted WalkStatus = "completed"
	WalkCancelled WalkStatus = "cancelled"
)

// Terminal reports whether no further transitions are allowed.
func (s WalkStatus) Terminal() bool {
	return s == WalkCompleted || s == WalkCancelled
}

// WalkSession is a single recorded walk of one dog.
type WalkSession struct {
	ID                 string     `json:"id"`
	DogID              string     `json:"dog_id"`
	WalkerID           string     `json:"walker_id"`
	StartedAt          time.Time  `json:"started_at"`
	EndedAt            *time.Time `json:"ended_at,omitempty"`
	Status             WalkStatus `json:"status"`
	DistanceKm         float64    `json:"distance_km"`
	TerritoryGainedKm2 float64    `json:"territory_gained_km2"`
	PointsCount        int        `json:"points_count"`
	PawsEarned         int64      `json:"paws_earned"`
	Hull               Polygon    `json:"hull,omitempty"`
}

// WalkPoint is one GPS fix recorded during a walk. Points are append-only.
type WalkPoint struct {
	SessionID  string     `json:"session_id"`
	DogID      string     `json:"dog_id"`
	Seq        int        `json:"seq"`
	Location   Coordinate `json:"location"`
	RecordedAt time.Time  `json:"recorded_at"`
}

// GPSFix is one reported position. A zero RecordedAt means now.
type GPSFix struct {
	Location   Coordinate `json:"location"`
	RecordedAt time.Time  `json:"recorded_at"`
}

// Territory is the cumulative region conquered by a dog. It is owned by the
// dog rather than a user because dogs can have several co-owners.
type Territory struct {
	DogID     string           `json:"dog_id"`
	Shape     orb.MultiPolygon `json:"shape"`
	AreaKm2   float64          `json:"area_km2"`
	Version   int64            `json:"version"` // 0 = never persisted
	UpdatedAt time.Time        `json:"updated_at"`
}

// Empty reports whether the territory holds no polygons.
func (t *Territory) Empty() bool {
	return t == nil || len(t.Shape) == 0
}

// TerritoryDelta is the contribution of one walk to a territory.
type TerritoryDelta struct {
	NewPolygon         Polygon `json:"new_polygon"`
	IncrementalAreaKm2 float64 `json:"incremental_area_km2"`
}

// PointUpdate is returned after each accepted GPS fix.
type PointUpdate struct {
	SessionID      string  `json:"session_id"`
	PointsCount    int     `json:"points_count"`
	DistanceKm     float64 `json:"distance_km"`
	Preview        Polygon `json:"preview,omitempty"`
	PreviewAreaKm2 float64 `json:"preview_area_km2"`
}

// WalkResult summarises a finished walk.
type WalkResult struct {
	SessionID          string  `json:"session_id"`
	DistanceKm         float64 `json:"distance_km"`
	TerritoryGainedKm2 float64 `json:"territory_gained_km2"`
	PawsEarned         int64   `json:"paws_earned"`
	MergeFailed        bool    `json:"merge_failed,omitempty"`
	Degenerate         bool    `json:"degenerate,omitempty"`

	// Delta is set when the walk grew the territory.
	Delta *TerritoryDelta `json:"delta,omitempty"`
}

// Reward is handed to the reward dispatcher once a walk is committed.
type Reward struct {
	SessionID  string  `json:"session_id"`
	DogID      string  `json:"dog_id"`
	WalkerID   string  `json:"walker_id"`
	PawsEarned int64   `json:"paws_earned"`
	GainedKm2  float64 `json:"gained_km2"`
	DistanceKm float64 `json:"distance_km"`
}

// PawsCredit is one entry for the currency ledger.
type PawsCredit struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	Amount    int64  `json:"amount"`
	Reason    string `json:"reason"`
}

// TerritoryProgress is sent to the achievement evaluator after each walk.
type TerritoryProgress struct {
	DogID             string    `json:"dog_id"`
	WalkerID          string    `json:"walker_id"`
	SessionID         string    `json:"session_id"`
	TotalTerritoryKm2 float64   `json:"total_territory_km2"`
	TotalDistanceKm   float64   `json:"total_distance_km"`
	CompletedWalks    int       `json:"completed_walks"`
	GainedKm2         float64   `json:"gained_km2"`
	PawsEarned        int64     `json:"paws_earned"`
	At                time.Time `json:"at"`
}

// DogTotals aggregates completed walks of a dog.
type DogTotals struct {
	CompletedWalks  int     `json:"completed_walks"`
	TotalDistanceKm float64 `json:"total_distance_km"`
}

// DogTerritoryStats is the read model behind the stats endpoint.
type DogTerritoryStats struct {
	DogID           string  `json:"dog_id"`
	AreaKm2         float64 `json:"area_km2"`
	PolygonCount    int     `json:"polygon_count"`
	CompletedWalks  int     `json:"completed_walks"`
	TotalDistanceKm float64 `json:"total_distance_km"`
}

// LeaderboardEntry ranks dogs by merged territory area.
type LeaderboardEntry struct {
	Rank    int     `json:"rank"`
	DogID   string  `json:"dog_id"`
	AreaKm2 float64 `json:"area_km2"`
}

// CollarFix is a GPS fix pushed by a smart collar rather than the phone.
type CollarFix struct {
	DogID      string     `json:"dog_id"`
	Location   Coordinate `json:"location"`
	RecordedAt time.Time  `json:"recorded_at"`
}
