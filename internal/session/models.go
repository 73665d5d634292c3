package session

// CurrentSchemaVersion is stamped into every session blob written by this code.
// Absent or zero means the blob predates versioning and needs migration.
const CurrentSchemaVersion = 1

// CurrentIndexVersion is the wrapped-index document version. The legacy v0
// index was a bare JSON array of meta entries.
const CurrentIndexVersion = 1

type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// TrackedPoint is one recorded perimeter point. Ordering within a session is
// significant: it drives both the rendered path and the points hash.
type TrackedPoint struct {
	Point     LatLng `json:"point"`
	Type      string `json:"type"` // "manual" or "auto"
	Timestamp int64  `json:"timestamp"`
}

// SessionData is the full per-session blob stored at users/{uid}/sessions/{id}.json.
type SessionData struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	CreatedAt     string         `json:"createdAt"`
	UpdatedAt     string         `json:"updatedAt"`
	SchemaVersion int            `json:"schemaVersion"`
	Points        []TrackedPoint `json:"points"`
	Area          float64        `json:"area"`
	Notes         string         `json:"notes,omitempty"`
}

// SessionMeta is the projection of SessionData carried in the index so the
// session list renders without fetching every blob.
type SessionMeta struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	CreatedAt  string  `json:"createdAt"`
	UpdatedAt  string  `json:"updatedAt"`
	Area       float64 `json:"area"`
	PointCount int     `json:"pointCount"`
}

// UserSessionIndex is the single per-user index document at users/{uid}/index.json.
type UserSessionIndex struct {
	Version      int           `json:"version"`
	LastModified string        `json:"lastModified"`
	Sessions     []SessionMeta `json:"sessions"`
}

// CurrentSessionState is client-side bookkeeping for unsaved-changes detection;
// it is never persisted as its own document.
type CurrentSessionState struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	LastSavedAt      string `json:"lastSavedAt"`
	PointsHashAtSave string `json:"pointsHashAtSave"`
}

// HasUnsavedChanges reports whether the live point sequence differs from the
// one captured at the last save.
func (s CurrentSessionState) HasUnsavedChanges(points []TrackedPoint) bool {
	return GeneratePointsHash(points) != s.PointsHashAtSave
}

// Meta projects the blob into its index entry.
func (d SessionData) Meta() SessionMeta {
	return SessionMeta{
		ID:         d.ID,
		Name:       d.Name,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
		Area:       d.Area,
		PointCount: len(d.Points),
	}
}
