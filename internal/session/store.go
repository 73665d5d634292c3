package session

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/ronpik/area-calc-sub000/internal/blob"
)

// Caller contract violations, distinct from the StorageError taxonomy.
var (
	ErrNoPoints  = errors.New("session must contain at least one point")
	ErrEmptyName = errors.New("session name required")
)

// EventSink receives best-effort notifications when a user's sessions change,
// so other devices of the same user can refresh. stream.Hub satisfies it.
type EventSink interface {
	Broadcast(userID string, payload []byte)
}

// Event is the payload published to the sink on every successful mutation.
type Event struct {
	Event     string `json:"event"`
	SessionID string `json:"sessionId"`
	Name      string `json:"name,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

// Store persists named sessions to per-user blob paths and keeps a
// denormalized index document next to them. The session blob is authoritative:
// every mutation writes the blob before the index, so a failed index write
// leaves an orphaned blob (harmless) rather than an index entry pointing at
// nothing. Index entries that do point at nothing surface as
// SESSION_NOT_FOUND on load and are repairable via RemoveFromIndex.
//
// Concurrent operations race last-writer-wins on the index; only the loading
// flag and last-error slot are guarded.
type Store struct {
	blobs  blob.Store
	events EventSink

	mu      sync.Mutex
	loading bool
	lastErr *StorageError
}

func NewStore(blobs blob.Store, events EventSink) *Store {
	return &Store{blobs: blobs, events: events}
}

func indexPath(userID string) string {
	return "users/" + userID + "/index.json"
}

func sessionPath(userID, sessionID string) string {
	return "users/" + userID + "/sessions/" + sessionID + ".json"
}

func sessionPrefix(userID string) string {
	return "users/" + userID + "/sessions/"
}

// FetchIndex returns the user's session index, nil when none exists yet.
// A corrupted index document reads as an empty current-version index; the
// stored bytes are left untouched until the next explicit index write.
func (s *Store) FetchIndex(ctx context.Context, userID string) (*UserSessionIndex, error) {
	if serr := s.begin(userID); serr != nil {
		return nil, serr
	}
	index, err := s.readIndex(ctx, userID)
	if err != nil {
		return nil, s.fail(err)
	}
	s.finish()
	return index, nil
}

// SaveNewSession creates a session blob under a fresh id and appends its meta
// entry to the index.
func (s *Store) SaveNewSession(ctx context.Context, userID, name string, points []TrackedPoint, area float64) (SessionMeta, error) {
	if len(points) == 0 {
		return SessionMeta{}, ErrNoPoints
	}
	if serr := s.begin(userID); serr != nil {
		return SessionMeta{}, serr
	}

	now := nowISO()
	data := SessionData{
		ID:            uuid.NewString(),
		Name:          name,
		CreatedAt:     now,
		UpdatedAt:     now,
		SchemaVersion: CurrentSchemaVersion,
		Points:        points,
		Area:          area,
	}
	if err := s.writeSession(ctx, userID, data); err != nil {
		return SessionMeta{}, s.fail(err)
	}

	index, err := s.readIndex(ctx, userID)
	if err != nil {
		return SessionMeta{}, s.fail(err)
	}
	if index == nil {
		index = &UserSessionIndex{Version: CurrentIndexVersion, Sessions: []SessionMeta{}}
	}
	meta := data.Meta()
	index.Sessions = append(index.Sessions, meta)
	if err := s.writeIndex(ctx, userID, index, now); err != nil {
		return SessionMeta{}, s.fail(err)
	}

	s.finish()
	s.notify(userID, Event{Event: "session-saved", SessionID: meta.ID, Name: meta.Name, UpdatedAt: meta.UpdatedAt})
	return meta, nil
}

// UpdateSession replaces the points and area of an existing session, keeping
// its id, name, notes and creation time, then syncs the index entry.
func (s *Store) UpdateSession(ctx context.Context, userID, sessionID string, points []TrackedPoint, area float64) (SessionMeta, error) {
	if len(points) == 0 {
		return SessionMeta{}, ErrNoPoints
	}
	if serr := s.begin(userID); serr != nil {
		return SessionMeta{}, serr
	}

	existing, err := s.readSession(ctx, userID, sessionID)
	if err != nil {
		return SessionMeta{}, s.fail(err)
	}

	existing.Points = points
	existing.Area = area
	existing.UpdatedAt = nowISO()
	if err := s.writeSession(ctx, userID, existing); err != nil {
		return SessionMeta{}, s.fail(err)
	}

	meta := existing.Meta()
	if err := s.patchIndex(ctx, userID, func(index *UserSessionIndex) {
		for i := range index.Sessions {
			if index.Sessions[i].ID == sessionID {
				index.Sessions[i] = meta
				return
			}
		}
		index.Sessions = append(index.Sessions, meta)
	}); err != nil {
		return SessionMeta{}, s.fail(err)
	}

	s.finish()
	s.notify(userID, Event{Event: "session-updated", SessionID: meta.ID, Name: meta.Name, UpdatedAt: meta.UpdatedAt})
	return meta, nil
}

// LoadSession fetches and migrates one session blob. A missing blob reports
// SESSION_NOT_FOUND specifically so the UI can offer RemoveFromIndex as a
// repair for stale index entries.
func (s *Store) LoadSession(ctx context.Context, userID, sessionID string) (SessionData, error) {
	if serr := s.begin(userID); serr != nil {
		return SessionData{}, serr
	}

	data, err := s.blobs.Read(ctx, sessionPath(userID, sessionID))
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return SessionData{}, s.fail(SessionNotFoundError())
		}
		return SessionData{}, s.fail(err)
	}

	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return SessionData{}, s.fail(err)
	}

	s.finish()
	return MigrateSessionData(raw), nil
}

// RenameSession rewrites the blob with the trimmed name and patches the
// matching index entry in place; the index is untouched beyond that entry.
func (s *Store) RenameSession(ctx context.Context, userID, sessionID, newName string) error {
	name := strings.TrimSpace(newName)
	if name == "" {
		return ErrEmptyName
	}
	if serr := s.begin(userID); serr != nil {
		return serr
	}

	existing, err := s.readSession(ctx, userID, sessionID)
	if err != nil {
		return s.fail(err)
	}
	existing.Name = name
	existing.UpdatedAt = nowISO()
	if err := s.writeSession(ctx, userID, existing); err != nil {
		return s.fail(err)
	}

	if err := s.patchIndex(ctx, userID, func(index *UserSessionIndex) {
		for i := range index.Sessions {
			if index.Sessions[i].ID == sessionID {
				index.Sessions[i].Name = name
				index.Sessions[i].UpdatedAt = existing.UpdatedAt
				return
			}
		}
	}); err != nil {
		return s.fail(err)
	}

	s.finish()
	s.notify(userID, Event{Event: "session-renamed", SessionID: sessionID, Name: name, UpdatedAt: existing.UpdatedAt})
	return nil
}

// DeleteSession removes the blob first, then filters the id out of the index.
func (s *Store) DeleteSession(ctx context.Context, userID, sessionID string) error {
	if serr := s.begin(userID); serr != nil {
		return serr
	}

	if err := s.blobs.Delete(ctx, sessionPath(userID, sessionID)); err != nil && !errors.Is(err, blob.ErrNotFound) {
		return s.fail(err)
	}

	if err := s.patchIndex(ctx, userID, func(index *UserSessionIndex) {
		index.Sessions = filterOut(index.Sessions, sessionID)
	}); err != nil {
		return s.fail(err)
	}

	s.finish()
	s.notify(userID, Event{Event: "session-deleted", SessionID: sessionID})
	return nil
}

// RemoveFromIndex drops an id from the index without touching its blob. This
// is the repair path for index entries whose blob no longer exists; the index
// is only rewritten when the entry was actually present.
func (s *Store) RemoveFromIndex(ctx context.Context, userID, sessionID string) error {
	if serr := s.begin(userID); serr != nil {
		return serr
	}

	index, err := s.readIndex(ctx, userID)
	if err != nil {
		return s.fail(err)
	}
	if index == nil {
		s.finish()
		return nil
	}

	remaining := filterOut(index.Sessions, sessionID)
	if len(remaining) == len(index.Sessions) {
		s.finish()
		return nil
	}
	index.Sessions = remaining
	if err := s.writeIndex(ctx, userID, index, nowISO()); err != nil {
		return s.fail(err)
	}

	s.finish()
	return nil
}

// DeleteAllSessions removes every blob under the user's session prefix and
// then the index document, tolerating its absence.
func (s *Store) DeleteAllSessions(ctx context.Context, userID string) error {
	if serr := s.begin(userID); serr != nil {
		return serr
	}

	paths, err := s.blobs.List(ctx, sessionPrefix(userID))
	if err != nil {
		return s.fail(err)
	}
	for _, path := range paths {
		if err := s.blobs.Delete(ctx, path); err != nil && !errors.Is(err, blob.ErrNotFound) {
			return s.fail(err)
		}
	}
	if err := s.blobs.Delete(ctx, indexPath(userID)); err != nil && !errors.Is(err, blob.ErrNotFound) {
		return s.fail(err)
	}

	s.finish()
	s.notify(userID, Event{Event: "sessions-cleared"})
	return nil
}

// Loading reports whether an operation is currently in flight.
func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// LastError returns the StorageError of the most recent failed operation, or
// nil. A new operation clears it.
func (s *Store) LastError() *StorageError {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Store) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = nil
}

func (s *Store) begin(userID string) *StorageError {
	s.mu.Lock()
	s.loading = true
	s.lastErr = nil
	s.mu.Unlock()

	if userID == "" {
		return s.fail(NotAuthenticatedError())
	}
	return nil
}

func (s *Store) finish() {
	s.mu.Lock()
	s.loading = false
	s.mu.Unlock()
}

func (s *Store) fail(err error) *StorageError {
	storageErr := MapStorageError(err)
	s.mu.Lock()
	s.lastErr = storageErr
	s.loading = false
	s.mu.Unlock()
	return storageErr
}

// readIndex returns nil for "no index yet". Unparseable or mis-shaped bytes
// read as an empty current-version index, leaving the stored document alone;
// the next explicit index write overwrites it.
func (s *Store) readIndex(ctx context.Context, userID string) (*UserSessionIndex, error) {
	data, err := s.blobs.Read(ctx, indexPath(userID))
	if errors.Is(err, blob.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	index := decodeIndex(data)
	return &index, nil
}

func decodeIndex(data []byte) UserSessionIndex {
	empty := UserSessionIndex{
		Version:      CurrentIndexVersion,
		LastModified: nowISO(),
		Sessions:     []SessionMeta{},
	}

	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return empty
	}
	switch v := raw.(type) {
	case map[string]any:
		if sessions, ok := v["sessions"]; ok {
			if _, isArray := sessions.([]any); !isArray {
				return empty
			}
		}
		return MigrateIndex(v)
	case []any:
		// legacy v0 index: a bare array of meta entries
		return MigrateIndex(v)
	default:
		return empty
	}
}

func (s *Store) readSession(ctx context.Context, userID, sessionID string) (SessionData, error) {
	data, err := s.blobs.Read(ctx, sessionPath(userID, sessionID))
	if err != nil {
		return SessionData{}, err
	}
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return SessionData{}, err
	}
	return MigrateSessionData(raw), nil
}

func (s *Store) writeSession(ctx context.Context, userID string, data SessionData) error {
	encoded, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return s.blobs.Write(ctx, sessionPath(userID, data.ID), encoded)
}

func (s *Store) writeIndex(ctx context.Context, userID string, index *UserSessionIndex, modifiedAt string) error {
	index.Version = CurrentIndexVersion
	index.LastModified = modifiedAt
	encoded, err := json.Marshal(index)
	if err != nil {
		return err
	}
	return s.blobs.Write(ctx, indexPath(userID), encoded)
}

// patchIndex applies a mutation to the current index (empty when absent) and
// rewrites it.
func (s *Store) patchIndex(ctx context.Context, userID string, mutate func(*UserSessionIndex)) error {
	index, err := s.readIndex(ctx, userID)
	if err != nil {
		return err
	}
	if index == nil {
		index = &UserSessionIndex{Version: CurrentIndexVersion, Sessions: []SessionMeta{}}
	}
	mutate(index)
	return s.writeIndex(ctx, userID, index, nowISO())
}

func filterOut(sessions []SessionMeta, sessionID string) []SessionMeta {
	remaining := sessions[:0:0]
	for _, meta := range sessions {
		if meta.ID != sessionID {
			remaining = append(remaining, meta)
		}
	}
	return remaining
}

func (s *Store) notify(userID string, event Event) {
	if s.events == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	s.events.Broadcast(userID, payload)
}
