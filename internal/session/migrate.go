package session

import "time"

// nowFn is swapped out in tests for deterministic timestamps.
var nowFn = time.Now

func nowISO() string {
	return nowFn().UTC().Format(time.RFC3339)
}

// MigrateSessionData normalizes an arbitrary decoded JSON value into the
// current blob shape. It never fails: any missing, null or mis-typed field
// gets an explicit default, and the result always carries
// CurrentSchemaVersion. Applying it to already-current data is a no-op apart
// from the defensive defaulting, so repeated application is stable.
func MigrateSessionData(raw any) SessionData {
	obj := asObject(raw)
	now := nowISO()

	data := SessionData{
		ID:            stringField(obj, "id", ""),
		Name:          stringField(obj, "name", "Unnamed Session"),
		CreatedAt:     stringField(obj, "createdAt", now),
		UpdatedAt:     stringField(obj, "updatedAt", now),
		SchemaVersion: CurrentSchemaVersion,
		Area:          floatField(obj, "area", 0),
		Notes:         stringField(obj, "notes", ""),
		Points:        []TrackedPoint{},
	}

	if entries, ok := obj["points"].([]any); ok {
		data.Points = make([]TrackedPoint, 0, len(entries))
		for _, entry := range entries {
			data.Points = append(data.Points, migratePoint(entry))
		}
	}
	return data
}

// migratePoint accepts both the current nested shape {point:{lat,lng},...} and
// the legacy flat shape {lat,lng,...}. Null entries become a defaulted point
// rather than being dropped, so the point count survives migration.
func migratePoint(raw any) TrackedPoint {
	obj := asObject(raw)
	point := TrackedPoint{
		Type:      stringField(obj, "type", "manual"),
		Timestamp: intField(obj, "timestamp", nowFn().UnixMilli()),
	}

	if _, ok := obj["point"]; ok {
		nested := asObject(obj["point"])
		point.Point.Lat = floatField(nested, "lat", 0)
		point.Point.Lng = floatField(nested, "lng", 0)
	} else {
		point.Point.Lat = floatField(obj, "lat", 0)
		point.Point.Lng = floatField(obj, "lng", 0)
	}
	return point
}

// MigrateIndex normalizes an arbitrary decoded JSON value into the current
// wrapped index shape. A legacy v0 index was a bare array of meta entries;
// both forms produce a CurrentIndexVersion document.
func MigrateIndex(raw any) UserSessionIndex {
	now := nowISO()
	index := UserSessionIndex{
		Version:      CurrentIndexVersion,
		LastModified: now,
		Sessions:     []SessionMeta{},
	}

	var entries []any
	switch v := raw.(type) {
	case []any:
		entries = v
	case map[string]any:
		index.LastModified = stringField(v, "lastModified", now)
		entries, _ = v["sessions"].([]any)
	default:
		return index
	}

	index.Sessions = make([]SessionMeta, 0, len(entries))
	for _, entry := range entries {
		index.Sessions = append(index.Sessions, migrateMeta(entry))
	}
	return index
}

func migrateMeta(raw any) SessionMeta {
	obj := asObject(raw)
	now := nowISO()

	createdAt := stringField(obj, "createdAt", now)
	return SessionMeta{
		ID:         stringField(obj, "id", ""),
		Name:       stringField(obj, "name", "Unnamed"),
		CreatedAt:  createdAt,
		UpdatedAt:  stringField(obj, "updatedAt", createdAt),
		Area:       floatField(obj, "area", 0),
		PointCount: int(intField(obj, "pointCount", 0)),
	}
}

// asObject returns raw as a map, or nil for anything else. Field extractors
// below tolerate a nil map, so callers never need to check.
func asObject(raw any) map[string]any {
	obj, _ := raw.(map[string]any)
	return obj
}

func stringField(obj map[string]any, key, fallback string) string {
	if v, ok := obj[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func floatField(obj map[string]any, key string, fallback float64) float64 {
	if v, ok := obj[key].(float64); ok {
		return v
	}
	return fallback
}

func intField(obj map[string]any, key string, fallback int64) int64 {
	switch v := obj[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	default:
		return fallback
	}
}
