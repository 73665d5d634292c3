package session

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func newTestApp(t *testing.T, blobs *fakeBlobs) *fiber.App {
	t.Helper()
	app := fiber.New()
	stubAuth := func(c *fiber.Ctx) error {
		c.Locals("user_id", "u1")
		return c.Next()
	}
	RegisterRoutes(app.Group("/sessions"), NewStore(blobs, nil), stubAuth)
	return app
}

func jsonRequest(method, target string, body any) *http.Request {
	encoded, _ := json.Marshal(body)
	req := httptest.NewRequest(method, target, bytes.NewReader(encoded))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestSessionsCRUDOverHTTP(t *testing.T) {
	fixedNow(t)
	blobs := newFakeBlobs()
	app := newTestApp(t, blobs)

	// empty store lists as no content
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/sessions/", nil))
	if err != nil || resp.StatusCode != http.StatusNoContent {
		t.Fatalf("empty list status: %v %d", err, resp.StatusCode)
	}

	resp, err = app.Test(jsonRequest(http.MethodPost, "/sessions/", savePayload{
		Name:   "Area 1",
		Points: onePoint(),
	}))
	if err != nil || resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status: %v %d", err, resp.StatusCode)
	}
	var meta SessionMeta
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		t.Fatalf("decode meta: %v", err)
	}
	if meta.Name != "Area 1" || meta.PointCount != 1 {
		t.Fatalf("unexpected meta: %+v", meta)
	}

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/sessions/"+meta.ID, nil))
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("load status: %v %d", err, resp.StatusCode)
	}
	var data SessionData
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if data.ID != meta.ID || data.SchemaVersion != CurrentSchemaVersion {
		t.Fatalf("unexpected session: %+v", data)
	}

	resp, err = app.Test(jsonRequest(http.MethodPatch, "/sessions/"+meta.ID+"/name", fiber.Map{"name": "Renamed"}))
	if err != nil || resp.StatusCode != http.StatusNoContent {
		t.Fatalf("rename status: %v %d", err, resp.StatusCode)
	}

	resp, err = app.Test(httptest.NewRequest(http.MethodDelete, "/sessions/"+meta.ID, nil))
	if err != nil || resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status: %v %d", err, resp.StatusCode)
	}
}

func TestCreateSessionComputesAreaWhenOmitted(t *testing.T) {
	fixedNow(t)
	app := newTestApp(t, newFakeBlobs())

	points := []TrackedPoint{
		{Point: LatLng{Lat: 0, Lng: 0}, Type: "manual", Timestamp: 1},
		{Point: LatLng{Lat: 0, Lng: 0.001}, Type: "manual", Timestamp: 2},
		{Point: LatLng{Lat: 0.001, Lng: 0.001}, Type: "manual", Timestamp: 3},
		{Point: LatLng{Lat: 0.001, Lng: 0}, Type: "manual", Timestamp: 4},
	}
	resp, err := app.Test(jsonRequest(http.MethodPost, "/sessions/", savePayload{Name: "Square", Points: points}))
	if err != nil || resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status: %v %d", err, resp.StatusCode)
	}
	var meta SessionMeta
	_ = json.NewDecoder(resp.Body).Decode(&meta)
	if meta.Area < 10000 || meta.Area > 14000 {
		t.Fatalf("expected computed area around 12300 m2, got %v", meta.Area)
	}
}

func TestLoadMissingSessionReturnsStorageErrorBody(t *testing.T) {
	app := newTestApp(t, newFakeBlobs())

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/sessions/missing-id", nil))
	if err != nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status: %v %d", err, resp.StatusCode)
	}
	var storageErr StorageError
	if err := json.NewDecoder(resp.Body).Decode(&storageErr); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if storageErr.Code != CodeSessionNotFound || storageErr.Retry {
		t.Fatalf("unexpected body: %+v", storageErr)
	}
}

func TestCreateSessionValidation(t *testing.T) {
	app := newTestApp(t, newFakeBlobs())

	resp, _ := app.Test(jsonRequest(http.MethodPost, "/sessions/", fiber.Map{"points": []any{}}))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected bad request for missing name, got %d", resp.StatusCode)
	}

	resp, _ = app.Test(jsonRequest(http.MethodPost, "/sessions/", fiber.Map{"name": "Area"}))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected bad request for empty points, got %d", resp.StatusCode)
	}

	req := httptest.NewRequest(http.MethodPost, "/sessions/", bytes.NewReader([]byte("{")))
	req.Header.Set("Content-Type", "application/json")
	resp, _ = app.Test(req)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected bad request for malformed json, got %d", resp.StatusCode)
	}
}

func TestHashEndpoint(t *testing.T) {
	app := newTestApp(t, newFakeBlobs())

	resp, err := app.Test(jsonRequest(http.MethodPost, "/sessions/hash", fiber.Map{"points": onePoint()}))
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("hash status: %v %d", err, resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	var result struct {
		Hash string `json:"hash"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Hash != GeneratePointsHash(onePoint()) {
		t.Fatalf("hash endpoint disagrees with the hasher: %s", result.Hash)
	}
}

func TestRemoveFromIndexEndpoint(t *testing.T) {
	fixedNow(t)
	blobs := newFakeBlobs()
	app := newTestApp(t, blobs)

	resp, err := app.Test(jsonRequest(http.MethodPost, "/sessions/", savePayload{Name: "Stale", Points: onePoint()}))
	if err != nil || resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: %v %d", err, resp.StatusCode)
	}
	var meta SessionMeta
	_ = json.NewDecoder(resp.Body).Decode(&meta)
	delete(blobs.objects, "users/u1/sessions/"+meta.ID+".json")

	resp, err = app.Test(httptest.NewRequest(http.MethodDelete, "/sessions/"+meta.ID+"/index", nil))
	if err != nil || resp.StatusCode != http.StatusNoContent {
		t.Fatalf("repair status: %v %d", err, resp.StatusCode)
	}

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/sessions/", nil))
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("list status: %v %d", err, resp.StatusCode)
	}
	var index UserSessionIndex
	_ = json.NewDecoder(resp.Body).Decode(&index)
	if len(index.Sessions) != 0 {
		t.Fatalf("expected repaired index, got %+v", index.Sessions)
	}
}

func TestUnauthenticatedRequest(t *testing.T) {
	app := fiber.New()
	passthrough := func(c *fiber.Ctx) error { return c.Next() }
	RegisterRoutes(app.Group("/sessions"), NewStore(newFakeBlobs(), nil), passthrough)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/sessions/", nil))
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v %d", err, resp.StatusCode)
	}
	var storageErr StorageError
	if err := json.NewDecoder(resp.Body).Decode(&storageErr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if storageErr.Code != CodeNotAuthenticated {
		t.Fatalf("unexpected code: %s", storageErr.Code)
	}
}

func TestDeleteAllEndpoint(t *testing.T) {
	fixedNow(t)
	blobs := newFakeBlobs()
	app := newTestApp(t, blobs)

	for _, name := range []string{"A", "B"} {
		resp, err := app.Test(jsonRequest(http.MethodPost, "/sessions/", savePayload{Name: name, Points: onePoint()}))
		if err != nil || resp.StatusCode != http.StatusCreated {
			t.Fatalf("create %s: %v %d", name, err, resp.StatusCode)
		}
	}

	resp, err := app.Test(httptest.NewRequest(http.MethodDelete, "/sessions/", nil))
	if err != nil || resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete all status: %v %d", err, resp.StatusCode)
	}

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/sessions/", nil))
	if err != nil || resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected empty store after delete all, got %d", resp.StatusCode)
	}
}
