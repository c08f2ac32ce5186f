package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	handler "github.com/doteapp/dote/internal/adapters/http"
	"github.com/doteapp/dote/internal/adapters/memory"
	"github.com/doteapp/dote/internal/core/domain"
	"github.com/doteapp/dote/internal/core/ports"
	"github.com/doteapp/dote/internal/core/usecases"
	"github.com/doteapp/dote/internal/pkg/geospatial"
)

// ---- Test doubles ----

// failingCompleteStore fails every walk commit.
type failingCompleteStore struct {
	*memory.Store
}

func (f failingCompleteStore) CompleteWalk(ctx context.Context, s *domain.WalkSession, t *domain.Territory, v int64) error {
	return errors.New("connection reset")
}

type mockPinger struct {
	err error
}

func (m mockPinger) Ping(ctx context.Context) error { return m.err }

// ---- Test helpers ----

func setupApp(deps *handler.Dependencies) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	handler.SetupRoutes(app, deps)
	return app
}

func makeDepsWith(walks ports.WalkRepository, store *memory.Store, opts ...func(*handler.Dependencies)) *handler.Dependencies {
	rewards := usecases.NewRewardService(store, nil, store, walks)
	d := &handler.Dependencies{
		Walks:       usecases.NewWalkService(walks, store, rewards, nil, nil, usecases.DefaultWalkConfig(), nil),
		Territories: usecases.NewTerritoryService(store, walks, nil, geospatial.DefaultValidator(), nil),
		Ledger:      store,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

func makeDeps(opts ...func(*handler.Dependencies)) *handler.Dependencies {
	store := memory.New()
	return makeDepsWith(store, store, opts...)
}

func readBody(t *testing.T, body io.Reader) []byte {
	t.Helper()
	b, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return b
}

// doJSON sends a request as user walker-1 unless headers say otherwise.
func doJSON(t *testing.T, app *fiber.App, method, path string, body interface{}, headers ...string) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "walker-1")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func square(lat, lon, size float64) []map[string]float64 {
	return []map[string]float64{
		{"lat": lat, "lon": lon},
		{"lat": lat, "lon": lon + size},
		{"lat": lat + size, "lon": lon + size},
		{"lat": lat + size, "lon": lon},
	}
}

func startWalk(t *testing.T, app *fiber.App, dogID string) string {
	t.Helper()
	resp := doJSON(t, app, "POST", "/v1/walks", map[string]string{"dog_id": dogID})
	if resp.StatusCode != 201 {
		t.Fatalf("start walk: expected 201, got %d: %s", resp.StatusCode, readBody(t, resp.Body))
	}
	var session domain.WalkSession
	decode(t, resp, &session)
	return session.ID
}

// walkSquare runs a full walk around a square and returns the result.
func walkSquare(t *testing.T, app *fiber.App, dogID string, lat, lon, size float64) domain.WalkResult {
	t.Helper()
	id := startWalk(t, app, dogID)
	resp := doJSON(t, app, "POST", "/v1/walks/"+id+"/points", map[string]interface{}{"points": square(lat, lon, size)})
	if resp.StatusCode != 200 {
		t.Fatalf("add points: expected 200, got %d: %s", resp.StatusCode, readBody(t, resp.Body))
	}
	resp = doJSON(t, app, "POST", "/v1/walks/"+id+"/end", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("end walk: expected 200, got %d: %s", resp.StatusCode, readBody(t, resp.Body))
	}
	var result domain.WalkResult
	decode(t, resp, &result)
	return result
}

func errorCode(t *testing.T, resp *http.Response) handler.APIError {
	t.Helper()
	var apiErr handler.APIError
	decode(t, resp, &apiErr)
	return apiErr
}

// ---- Walk handler tests ----

func TestWalkLifecycle(t *testing.T) {
	app := setupApp(makeDeps())

	id := startWalk(t, app, "rex")

	resp := doJSON(t, app, "POST", "/v1/walks/"+id+"/points", map[string]interface{}{"points": square(0, 0, 0.001)})
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var update domain.PointUpdate
	decode(t, resp, &update)
	if update.PointsCount != 4 || update.PreviewAreaKm2 <= 0 {
		t.Errorf("unexpected preview %+v", update)
	}

	resp = doJSON(t, app, "POST", "/v1/walks/"+id+"/end", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var result domain.WalkResult
	decode(t, resp, &result)
	if result.PawsEarned < 12380 || result.PawsEarned > 12400 {
		t.Errorf("unexpected paws %d", result.PawsEarned)
	}
	if result.Delta == nil || len(result.Delta.NewPolygon) != 4 {
		t.Errorf("expected the walk hull as delta, got %+v", result.Delta)
	}

	resp = doJSON(t, app, "GET", "/v1/walks/"+id, nil)
	var session domain.WalkSession
	decode(t, resp, &session)
	if session.Status != domain.WalkCompleted || session.WalkerID != "walker-1" {
		t.Errorf("unexpected session %+v", session)
	}

	resp = doJSON(t, app, "GET", "/v1/me/balance", nil)
	var balance struct {
		Paws int64 `json:"paws"`
	}
	decode(t, resp, &balance)
	if balance.Paws != result.PawsEarned {
		t.Errorf("expected balance %d, got %d", result.PawsEarned, balance.Paws)
	}
}

func TestStartWalk_RequiresUser(t *testing.T) {
	app := setupApp(makeDeps())

	req := httptest.NewRequest("POST", "/v1/walks", strings.NewReader(`{"dog_id":"rex"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 401 {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestStartWalk_MissingDog(t *testing.T) {
	app := setupApp(makeDeps())

	resp := doJSON(t, app, "POST", "/v1/walks", map[string]string{})
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestStartWalk_SecondWalkConflicts(t *testing.T) {
	app := setupApp(makeDeps())
	startWalk(t, app, "rex")

	resp := doJSON(t, app, "POST", "/v1/walks", map[string]string{"dog_id": "rex"})
	if resp.StatusCode != 409 {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
}

func TestAddPoint_InvalidCoordinate(t *testing.T) {
	app := setupApp(makeDeps())
	id := startWalk(t, app, "rex")

	resp := doJSON(t, app, "POST", "/v1/walks/"+id+"/points", map[string]float64{"lat": 91, "lon": 0})
	if resp.StatusCode != 422 {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
	if e := errorCode(t, resp); e.Code != "invalid_input" {
		t.Errorf("expected invalid_input, got %q", e.Code)
	}
}

func TestAddPoint_MissingLatLon(t *testing.T) {
	app := setupApp(makeDeps())
	id := startWalk(t, app, "rex")

	resp := doJSON(t, app, "POST", "/v1/walks/"+id+"/points", map[string]float64{"lat": 43.26})
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestAddPoints_BatchWithInvalidPointChangesNothing(t *testing.T) {
	app := setupApp(makeDeps())
	id := startWalk(t, app, "rex")

	batch := []map[string]float64{
		{"lat": 43.26, "lon": -2.93},
		{"lat": 43.26, "lon": -2.929},
		{"lat": 91, "lon": -2.929},
	}
	resp := doJSON(t, app, "POST", "/v1/walks/"+id+"/points", map[string]interface{}{"points": batch})
	if resp.StatusCode != 422 {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}

	resp = doJSON(t, app, "GET", "/v1/walks/"+id, nil)
	var session domain.WalkSession
	decode(t, resp, &session)
	if session.PointsCount != 0 || session.DistanceKm != 0 {
		t.Errorf("expected no points recorded, got %d points / %g km", session.PointsCount, session.DistanceKm)
	}
}

func TestAddPoints_BatchWithMissingLonChangesNothing(t *testing.T) {
	app := setupApp(makeDeps())
	id := startWalk(t, app, "rex")

	batch := []map[string]float64{
		{"lat": 43.26, "lon": -2.93},
		{"lat": 43.26},
	}
	resp := doJSON(t, app, "POST", "/v1/walks/"+id+"/points", map[string]interface{}{"points": batch})
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}

	resp = doJSON(t, app, "GET", "/v1/walks/"+id, nil)
	var session domain.WalkSession
	decode(t, resp, &session)
	if session.PointsCount != 0 {
		t.Errorf("expected no points recorded, got %d", session.PointsCount)
	}
}

func TestAddPoint_UnknownWalk(t *testing.T) {
	app := setupApp(makeDeps())

	resp := doJSON(t, app, "POST", "/v1/walks/nope/points", map[string]float64{"lat": 0, "lon": 0})
	if resp.StatusCode != 404 {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestEndWalk_TooShort(t *testing.T) {
	app := setupApp(makeDeps())
	id := startWalk(t, app, "rex")
	doJSON(t, app, "POST", "/v1/walks/"+id+"/points", map[string]float64{"lat": 0, "lon": 0})

	resp := doJSON(t, app, "POST", "/v1/walks/"+id+"/end", nil)
	if resp.StatusCode != 422 {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
	if e := errorCode(t, resp); e.Code != "walk_too_short" {
		t.Errorf("expected walk_too_short, got %q", e.Code)
	}

	// the walk is still active
	resp = doJSON(t, app, "GET", "/v1/walks/"+id, nil)
	var session domain.WalkSession
	decode(t, resp, &session)
	if session.Status != domain.WalkActive {
		t.Errorf("expected active walk, got %s", session.Status)
	}
	if cc := resp.Header.Get("Cache-Control"); cc != "no-store" {
		t.Errorf("expected no-store for an active walk, got %q", cc)
	}
}

func TestEndWalk_AfterCancelConflicts(t *testing.T) {
	app := setupApp(makeDeps())
	id := startWalk(t, app, "rex")

	resp := doJSON(t, app, "POST", "/v1/walks/"+id+"/cancel", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	resp = doJSON(t, app, "POST", "/v1/walks/"+id+"/end", nil)
	if resp.StatusCode != 409 {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
}

func TestEndWalk_PersistenceFailureIsRetryable(t *testing.T) {
	store := memory.New()
	app := setupApp(makeDepsWith(failingCompleteStore{store}, store))

	id := startWalk(t, app, "rex")
	doJSON(t, app, "POST", "/v1/walks/"+id+"/points", map[string]interface{}{"points": square(0, 0, 0.001)})

	resp := doJSON(t, app, "POST", "/v1/walks/"+id+"/end", nil)
	if resp.StatusCode != 503 {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
	if e := errorCode(t, resp); !e.Retryable {
		t.Error("expected retryable error")
	}
}

func TestGetWalk_NotFound(t *testing.T) {
	app := setupApp(makeDeps())

	resp := doJSON(t, app, "GET", "/v1/walks/missing", nil)
	if resp.StatusCode != 404 {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestGetWalk_IncludePath(t *testing.T) {
	app := setupApp(makeDeps())
	id := startWalk(t, app, "rex")
	doJSON(t, app, "POST", "/v1/walks/"+id+"/points", map[string]interface{}{"points": square(43.26, -2.93, 0.001)})
	doJSON(t, app, "POST", "/v1/walks/"+id+"/end", nil)

	resp := doJSON(t, app, "GET", "/v1/walks/"+id+"?include=path", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body struct {
		ID   string `json:"id"`
		Path string `json:"path"`
	}
	decode(t, resp, &body)
	if body.ID != id {
		t.Errorf("expected id %s, got %s", id, body.ID)
	}
	path, err := geospatial.DecodePath(body.Path)
	if err != nil {
		t.Fatalf("decode path: %v", err)
	}
	if len(path) != 4 {
		t.Errorf("expected 4 points, got %d", len(path))
	}
}

func TestDogWalks_Pagination(t *testing.T) {
	app := setupApp(makeDeps())
	for i := 0; i < 3; i++ {
		id := startWalk(t, app, "rex")
		doJSON(t, app, "POST", "/v1/walks/"+id+"/cancel", nil)
	}

	resp := doJSON(t, app, "GET", "/v1/dogs/rex/walks?limit=2", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var page struct {
		Data       []domain.WalkSession `json:"data"`
		Pagination handler.Pagination   `json:"pagination"`
	}
	decode(t, resp, &page)
	if len(page.Data) != 2 || !page.Pagination.HasMore {
		t.Errorf("expected 2 walks and more, got %d %+v", len(page.Data), page.Pagination)
	}
	if link := resp.Header.Get("Link"); !strings.Contains(link, `offset=2&limit=2>; rel="next"`) {
		t.Errorf("expected next link, got %s", link)
	}

	resp = doJSON(t, app, "GET", "/v1/dogs/rex/walks?offset=2&limit=2", nil)
	decode(t, resp, &page)
	if len(page.Data) != 1 || page.Pagination.HasMore {
		t.Errorf("expected last page of 1, got %d %+v", len(page.Data), page.Pagination)
	}
}

// ---- Territory handler tests ----

func TestTerritory_GeoJSON(t *testing.T) {
	app := setupApp(makeDeps())
	walkSquare(t, app, "rex", 43.26, -2.93, 0.002)

	resp := doJSON(t, app, "GET", "/v1/dogs/rex/territory", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/geo+json" {
		t.Errorf("unexpected content type %q", ct)
	}
	var feature struct {
		Type     string `json:"type"`
		Geometry struct {
			Type string `json:"type"`
		} `json:"geometry"`
		Properties map[string]interface{} `json:"properties"`
	}
	decode(t, resp, &feature)
	if feature.Type != "Feature" || feature.Geometry.Type != "MultiPolygon" {
		t.Errorf("unexpected feature %+v", feature)
	}
	if area, _ := feature.Properties["area_km2"].(float64); area <= 0 {
		t.Errorf("expected positive area, got %v", feature.Properties["area_km2"])
	}
}

func TestTerritory_NeverWalked(t *testing.T) {
	app := setupApp(makeDeps())

	resp := doJSON(t, app, "GET", "/v1/dogs/nobody/territory", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	body := string(readBody(t, resp.Body))
	if !strings.Contains(body, `"area_km2":0`) {
		t.Errorf("expected empty territory, got %s", body)
	}
}

func TestTerritory_KML(t *testing.T) {
	app := setupApp(makeDeps())
	walkSquare(t, app, "rex", 43.26, -2.93, 0.002)

	resp := doJSON(t, app, "GET", "/v1/dogs/rex/territory.kml", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "kml") {
		t.Errorf("unexpected content type %q", ct)
	}
	if body := string(readBody(t, resp.Body)); !strings.Contains(body, "<Polygon>") {
		t.Errorf("expected KML polygon, got %s", body)
	}
}

func TestDogStats(t *testing.T) {
	app := setupApp(makeDeps())
	walkSquare(t, app, "rex", 43.26, -2.93, 0.002)
	walkSquare(t, app, "rex", 43.30, -2.80, 0.001)

	resp := doJSON(t, app, "GET", "/v1/dogs/rex/stats", nil)
	var stats domain.DogTerritoryStats
	decode(t, resp, &stats)
	if stats.CompletedWalks != 2 || stats.PolygonCount != 2 || stats.AreaKm2 <= 0 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestDogArea_Deprecated(t *testing.T) {
	app := setupApp(makeDeps())
	res := walkSquare(t, app, "rex", 0, 0, 0.001)

	resp := doJSON(t, app, "GET", "/v1/dogs/rex/area", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Deprecation") != "true" {
		t.Error("expected Deprecation header")
	}
	if link := resp.Header.Get("Link"); !strings.Contains(link, "/v1/dogs/rex/stats") {
		t.Errorf("expected successor link, got %q", link)
	}
	var body struct {
		AreaKm2 float64 `json:"area_km2"`
	}
	decode(t, resp, &body)
	if math.Abs(body.AreaKm2-res.TerritoryGainedKm2) > 1e-12 {
		t.Errorf("expected merged area %g, got %g", res.TerritoryGainedKm2, body.AreaKm2)
	}
}

func TestLeaderboard(t *testing.T) {
	app := setupApp(makeDeps())
	walkSquare(t, app, "small", 43.26, -2.93, 0.001)
	walkSquare(t, app, "big", 43.30, -2.80, 0.003)

	resp := doJSON(t, app, "GET", "/v1/leaderboard/territory?limit=5", nil)
	var entries []domain.LeaderboardEntry
	decode(t, resp, &entries)
	if len(entries) != 2 || entries[0].DogID != "big" || entries[0].Rank != 1 {
		t.Errorf("unexpected leaderboard %+v", entries)
	}
}

func TestLeaderboard_BadLimit(t *testing.T) {
	app := setupApp(makeDeps())

	resp := doJSON(t, app, "GET", "/v1/leaderboard/territory?limit=500", nil)
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestETag_NotModified(t *testing.T) {
	app := setupApp(makeDeps())

	resp := doJSON(t, app, "GET", "/v1/leaderboard/territory", nil)
	etag := resp.Header.Get("ETag")
	if etag == "" {
		t.Fatal("expected ETag")
	}
	resp = doJSON(t, app, "GET", "/v1/leaderboard/territory", nil, "If-None-Match", etag)
	if resp.StatusCode != 304 {
		t.Fatalf("expected 304, got %d", resp.StatusCode)
	}
}

// ---- Auth ----

func TestAuth_JWTSubject(t *testing.T) {
	const secret = "test-secret"
	app := setupApp(makeDeps(func(d *handler.Dependencies) { d.JWTSecret = secret }))

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "walker-9"}).SignedString([]byte(secret))
	if err != nil {
		t.Fatal(err)
	}
	resp := doJSON(t, app, "POST", "/v1/walks", map[string]string{"dog_id": "rex"}, "Authorization", "Bearer "+token)
	if resp.StatusCode != 201 {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var session domain.WalkSession
	decode(t, resp, &session)
	if session.WalkerID != "walker-9" {
		t.Errorf("expected walker from token, got %q", session.WalkerID)
	}
}

func TestAuth_BadToken(t *testing.T) {
	app := setupApp(makeDeps(func(d *handler.Dependencies) { d.JWTSecret = "test-secret" }))

	token, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "walker-9"}).SignedString([]byte("other"))
	resp := doJSON(t, app, "POST", "/v1/walks", map[string]string{"dog_id": "rex"}, "Authorization", "Bearer "+token)
	if resp.StatusCode != 401 {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestAuth_HeaderIgnoredWithSecret(t *testing.T) {
	app := setupApp(makeDeps(func(d *handler.Dependencies) { d.JWTSecret = "test-secret" }))

	// doJSON sets X-User-ID, which must not count once tokens are on
	resp := doJSON(t, app, "POST", "/v1/walks", map[string]string{"dog_id": "rex"})
	if resp.StatusCode != 401 {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

// ---- GraphQL ----

func TestGraphQL_Territory(t *testing.T) {
	app := setupApp(makeDeps())
	walkSquare(t, app, "rex", 0, 0, 0.001)

	query := `{ territory(dog_id: "rex") { dog_id polygon_count version } walks(dog_id: "rex") { status paws_earned } }`
	resp := doJSON(t, app, "POST", "/graphql", map[string]string{"query": query})
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var result struct {
		Data struct {
			Territory struct {
				DogID        string `json:"dog_id"`
				PolygonCount int    `json:"polygon_count"`
				Version      int    `json:"version"`
			} `json:"territory"`
			Walks []struct {
				Status     string `json:"status"`
				PawsEarned int    `json:"paws_earned"`
			} `json:"walks"`
		} `json:"data"`
		Errors []interface{} `json:"errors"`
	}
	decode(t, resp, &result)
	if len(result.Errors) > 0 {
		t.Fatalf("graphql errors: %v", result.Errors)
	}
	if result.Data.Territory.PolygonCount != 1 || result.Data.Territory.Version != 1 {
		t.Errorf("unexpected territory %+v", result.Data.Territory)
	}
	if len(result.Data.Walks) != 1 || result.Data.Walks[0].Status != "completed" {
		t.Errorf("unexpected walks %+v", result.Data.Walks)
	}
}

// ---- Health handler tests ----

func TestHealth_Returns200(t *testing.T) {
	app := setupApp(makeDeps())

	resp := doJSON(t, app, "GET", "/v1/health", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result map[string]interface{}
	decode(t, resp, &result)
	if result["status"] != "healthy" {
		t.Errorf("expected healthy status, got %v", result["status"])
	}
	if result["active_walks"] != float64(0) {
		t.Errorf("expected 0 active walks, got %v", result["active_walks"])
	}
}

func TestReady_MemoryStore(t *testing.T) {
	app := setupApp(makeDeps(func(d *handler.Dependencies) { d.Cache = mockPinger{} }))

	resp := doJSON(t, app, "GET", "/v1/ready", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, readBody(t, resp.Body))
	}
}

func TestReady_CacheDown(t *testing.T) {
	app := setupApp(makeDeps(func(d *handler.Dependencies) {
		d.Cache = mockPinger{err: fmt.Errorf("dial tcp: connection refused")}
	}))

	resp := doJSON(t, app, "GET", "/v1/ready", nil)
	if resp.StatusCode != 503 {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
}

// ---- X-API-Version header ----

func TestAPIVersionHeader(t *testing.T) {
	app := setupApp(makeDeps())

	resp := doJSON(t, app, "GET", "/v1/health", nil)
	if v := resp.Header.Get("X-API-Version"); v != "1.0.0" {
		t.Errorf("expected X-API-Version 1.0.0, got %q", v)
	}
}

// TestAccessLogMiddleware verifies structured access logging does not
// interfere with the response.
func TestAccessLogMiddleware(t *testing.T) {
	app := fiber.New()
	app.Use(handler.AccessLogMiddleware())
	app.Get("/test", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
	})

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("X-Request-ID", "test-req-123")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
	if body := readBody(t, resp.Body); !strings.Contains(string(body), "ok") {
		t.Errorf("expected response body to contain 'ok', got %s", string(body))
	}
}
