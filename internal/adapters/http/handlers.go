package http

import (
	"bytes"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/doteapp/dote/internal/core/domain"
	"github.com/doteapp/dote/internal/pkg/geospatial"
)

// maxPointsPerRequest bounds a buffered upload from the app.
const maxPointsPerRequest = 500

type startWalkRequest struct {
	DogID string `json:"dog_id"`
}

type pointRequest struct {
	Lat        *float64   `json:"lat"`
	Lon        *float64   `json:"lon"`
	RecordedAt *time.Time `json:"recorded_at,omitempty"`
}

// addPointsRequest accepts either a single fix or a batch the app buffered
// while offline.
type addPointsRequest struct {
	pointRequest
	Points []pointRequest `json:"points,omitempty"`
}

func (p pointRequest) coordinate() (domain.Coordinate, bool) {
	if p.Lat == nil || p.Lon == nil {
		return domain.Coordinate{}, false
	}
	return domain.Coordinate{Latitude: *p.Lat, Longitude: *p.Lon}, true
}

func (p pointRequest) at() time.Time {
	if p.RecordedAt == nil {
		return time.Time{}
	}
	return *p.RecordedAt
}

// walkResponse is a walk session with its path as an encoded polyline
// when requested with ?include=path.
type walkResponse struct {
	*domain.WalkSession
	Path string `json:"path,omitempty"`
}

// StartWalkHandler opens a walk for a dog on behalf of the current user.
func StartWalkHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req startWalkRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid JSON body")
		}
		if req.DogID == "" {
			return errBadRequest(c, "dog_id is required")
		}

		session, err := deps.Walks.StartWalk(c.UserContext(), req.DogID, currentUser(c))
		if err != nil {
			return writeDomainError(c, err)
		}

		c.Location("/v1/walks/" + session.ID)
		return c.Status(fiber.StatusCreated).JSON(session)
	}
}

// GetWalkHandler returns a single walk by ID.
func GetWalkHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		session, err := deps.Walks.GetSession(c.UserContext(), id)
		if err != nil {
			return writeDomainError(c, err)
		}

		resp := walkResponse{WalkSession: session}
		if c.Query("include") == "path" {
			path, err := deps.Walks.Path(c.UserContext(), id)
			if err != nil {
				return writeDomainError(c, err)
			}
			resp.Path = geospatial.EncodePath(path)
		}

		if session.Status == domain.WalkActive {
			c.Set("Cache-Control", "no-store")
		}
		return c.JSON(resp)
	}
}

// AddPointsHandler appends one or more GPS fixes to an active walk and
// returns the latest preview. A batch is recorded entirely or not at all.
func AddPointsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req addPointsRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid JSON body")
		}

		points := req.Points
		if len(points) == 0 {
			points = []pointRequest{req.pointRequest}
		}
		if len(points) > maxPointsPerRequest {
			return errBadRequest(c, "too many points (max 500)")
		}

		fixes := make([]domain.GPSFix, 0, len(points))
		for _, p := range points {
			coord, ok := p.coordinate()
			if !ok {
				return errBadRequest(c, "lat and lon are required")
			}
			fixes = append(fixes, domain.GPSFix{Location: coord, RecordedAt: p.at()})
		}

		update, err := deps.Walks.AddWalkPoints(c.UserContext(), c.Params("id"), fixes)
		if err != nil {
			return writeDomainError(c, err)
		}
		return c.JSON(update)
	}
}

// EndWalkHandler completes a walk and returns its result.
func EndWalkHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		result, err := deps.Walks.EndWalk(c.UserContext(), c.Params("id"))
		if err != nil {
			return writeDomainError(c, err)
		}
		return c.JSON(result)
	}
}

// CancelWalkHandler abandons a walk without touching the territory.
func CancelWalkHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		session, err := deps.Walks.CancelWalk(c.UserContext(), c.Params("id"))
		if err != nil {
			return writeDomainError(c, err)
		}
		return c.JSON(session)
	}
}

// DogWalksHandler lists a dog's walks, newest first.
func DogWalksHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		offset := c.QueryInt("offset", 0)
		limit := c.QueryInt("limit", 20)
		if offset < 0 {
			offset = 0
		}
		if limit <= 0 || limit > 50 {
			limit = 20
		}

		// One extra row tells whether another page exists.
		walks, err := deps.Walks.ListWalks(c.UserContext(), c.Params("id"), offset, limit+1)
		if err != nil {
			return writeDomainError(c, err)
		}
		pg := Pagination{Offset: offset, Limit: limit}
		if len(walks) > limit {
			walks = walks[:limit]
			pg.HasMore = true
		}
		if walks == nil {
			walks = []domain.WalkSession{}
		}

		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: walks, Pagination: pg})
	}
}

// TerritoryHandler returns the dog's territory as a GeoJSON feature.
func TerritoryHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		t, err := deps.Territories.GetTerritory(c.UserContext(), c.Params("id"))
		if err != nil {
			return writeDomainError(c, err)
		}
		data, err := geospatial.TerritoryFeature(t).MarshalJSON()
		if err != nil {
			return errInternal(c, "encode territory")
		}
		c.Set("Content-Type", "application/geo+json")
		return c.Send(data)
	}
}

// TerritoryKMLHandler exports the dog's territory as KML.
func TerritoryKMLHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		dogID := c.Params("id")
		var buf bytes.Buffer
		if err := deps.Territories.ExportKML(c.UserContext(), dogID, &buf); err != nil {
			return writeDomainError(c, err)
		}
		c.Set("Content-Type", "application/vnd.google-earth.kml+xml")
		c.Set("Content-Disposition", `attachment; filename="territory-`+dogID+`.kml"`)
		return c.Send(buf.Bytes())
	}
}

// DogStatsHandler returns territory and walk totals of a dog.
func DogStatsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		stats, err := deps.Territories.Stats(c.UserContext(), c.Params("id"))
		if err != nil {
			return writeDomainError(c, err)
		}
		return c.JSON(stats)
	}
}

// DogAreaHandler is the old area endpoint. It now reports the merged
// territory area, same as stats.
func DogAreaHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		dogID := c.Params("id")
		t, err := deps.Territories.GetTerritory(c.UserContext(), dogID)
		if err != nil {
			return writeDomainError(c, err)
		}
		return c.JSON(fiber.Map{"dog_id": dogID, "area_km2": t.AreaKm2})
	}
}

// LeaderboardHandler ranks dogs by territory size.
func LeaderboardHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit := c.QueryInt("limit", 10)
		if limit <= 0 || limit > 100 {
			return errBadRequest(c, "limit must be between 1 and 100")
		}
		entries, err := deps.Territories.Leaderboard(c.UserContext(), limit)
		if err != nil {
			return writeDomainError(c, err)
		}
		if entries == nil {
			entries = []domain.LeaderboardEntry{}
		}
		return c.JSON(entries)
	}
}

// BalanceHandler returns the Paws balance of the current user.
func BalanceHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Ledger == nil {
			return errInternal(c, "ledger not available")
		}
		uid := currentUser(c)
		balance, err := deps.Ledger.Balance(c.UserContext(), uid)
		if err != nil {
			return writeDomainError(c, err)
		}
		c.Set("Cache-Control", "private, no-store")
		return c.JSON(fiber.Map{"user_id": uid, "paws": balance})
	}
}
