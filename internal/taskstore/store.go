// Package taskstore implements the task record store: an in-memory map of
// task id to record, mirrored to one JSON file per task on disk.
package taskstore

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rferrer/taskpilot/internal/apperr"
	"github.com/rferrer/taskpilot/internal/index"
	"github.com/rferrer/taskpilot/internal/models"
	"github.com/rferrer/taskpilot/internal/storage"
)

// farFuture sorts undated tasks after every dated one.
var farFuture = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)

// EventCallback is called after a store mutation.
// kind is one of "created", "updated", "deleted".
type EventCallback func(kind, id string)

// Store coordinates the on-disk task files, the in-memory map, and the
// search index. All methods are safe for concurrent use.
type Store struct {
	files storage.Provider
	idx   index.TaskIndex // may be nil

	mu       sync.RWMutex
	tasks    map[string]models.TaskRecord
	pathToID map[string]string

	onChange EventCallback
}

// New creates a Store over the given file provider and search index.
// idx may be nil when no search index is configured (e.g. in tests).
func New(files storage.Provider, idx index.TaskIndex) *Store {
	return &Store{
		files:    files,
		idx:      idx,
		tasks:    make(map[string]models.TaskRecord),
		pathToID: make(map[string]string),
	}
}

// SetOnChange registers a callback fired after each mutation.
func (s *Store) SetOnChange(cb EventCallback) {
	s.onChange = cb
}

// LoadAll (re)builds the in-memory map by scanning the tasks directory.
// Corrupt files are skipped with a logged warning, not fatal. When two
// files claim the same id the canonical <id>.json file wins, regardless
// of scan order. The search index is brought in line with what was loaded.
func (s *Store) LoadAll() error {
	metas, err := s.files.List("")
	if err != nil {
		return fmt.Errorf("taskstore: scan: %w", err)
	}

	tasks := make(map[string]models.TaskRecord, len(metas))
	pathToID := make(map[string]string, len(metas))
	pathOf := make(map[string]string, len(metas))
	for _, m := range metas {
		data, err := s.files.Read(m.Path)
		if err != nil {
			slog.Warn("taskstore: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		rec, err := decodeRecord(m.Path, data)
		if err != nil {
			slog.Warn("taskstore: skipping corrupt task file", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		if prior, dup := pathOf[rec.ID]; dup {
			kept, ignored := prior, m.Path
			if m.Path == rec.ID+".json" {
				kept, ignored = m.Path, prior
				delete(pathToID, prior)
				tasks[rec.ID] = rec
				pathToID[m.Path] = rec.ID
				pathOf[rec.ID] = m.Path
			}
			slog.Warn("taskstore: duplicate task id",
				slog.String("id", rec.ID),
				slog.String("kept", kept),
				slog.String("ignored", ignored),
				slog.String("error", apperr.ErrAlreadyExists.Error()))
			continue
		}
		tasks[rec.ID] = rec
		pathToID[m.Path] = rec.ID
		pathOf[rec.ID] = m.Path
	}

	s.mu.Lock()
	s.tasks = tasks
	s.pathToID = pathToID
	s.mu.Unlock()

	s.reindexAll(tasks)
	return nil
}

// reindexAll upserts every loaded record and removes stale index entries.
func (s *Store) reindexAll(tasks map[string]models.TaskRecord) {
	if s.idx == nil {
		return
	}
	indexed, err := s.idx.AllIDs()
	if err != nil {
		slog.Warn("taskstore: index ids failed", slog.String("error", err.Error()))
		indexed = nil
	}
	for id, rec := range tasks {
		if err := s.idx.UpsertTask(index.RowFromRecord(rec)); err != nil {
			slog.Warn("taskstore: index upsert failed", slog.String("id", id), slog.String("error", err.Error()))
		}
	}
	for id := range indexed {
		if _, ok := tasks[id]; !ok {
			if err := s.idx.DeleteTask(id); err != nil {
				slog.Warn("taskstore: index delete failed", slog.String("id", id), slog.String("error", err.Error()))
			}
		}
	}
}

// Get returns the record for id, or apperr.ErrNotFound.
func (s *Store) Get(id string) (models.TaskRecord, error) {
	s.mu.RLock()
	rec, ok := s.tasks[id]
	s.mu.RUnlock()
	if !ok {
		return models.TaskRecord{}, apperr.ErrNotFound
	}
	return rec, nil
}

// All returns a copy of the id→record map, optionally filtered by status
// and priority (empty means no filter).
func (s *Store) All(status models.Status, priority models.Priority) map[string]models.TaskRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]models.TaskRecord, len(s.tasks))
	for id, rec := range s.tasks {
		if status != "" && rec.Status != status {
			continue
		}
		if priority != "" && rec.Priority != priority {
			continue
		}
		out[id] = rec
	}
	return out
}

// IDs returns every known task id.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.tasks))
	for id := range s.tasks {
		out = append(out, id)
	}
	return out
}

// List returns records filtered by status and priority (empty means no
// filter), sorted by priority rank ascending, then deadline ascending with
// undated tasks last, then id for determinism.
func (s *Store) List(status models.Status, priority models.Priority) []models.TaskRecord {
	s.mu.RLock()
	out := make([]models.TaskRecord, 0, len(s.tasks))
	for _, rec := range s.tasks {
		if status != "" && rec.Status != status {
			continue
		}
		if priority != "" && rec.Priority != priority {
			continue
		}
		out = append(out, rec)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		ri, rj := out[i].Priority.Rank(), out[j].Priority.Rank()
		if ri != rj {
			return ri < rj
		}
		di, dj := deadlineOf(out[i]), deadlineOf(out[j])
		if !di.Equal(dj) {
			return di.Before(dj)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func deadlineOf(rec models.TaskRecord) time.Time {
	if rec.Deadline == nil {
		return farFuture
	}
	return *rec.Deadline
}

// Save persists one record to its own file and refreshes the cache and
// the search index.
func (s *Store) Save(rec models.TaskRecord) error {
	s.mu.Lock()
	kind, err := s.saveLocked(rec)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.emit(kind, rec.ID)
	return nil
}

// saveLocked writes rec to <id>.json and refreshes the cache, the path map
// and the search index. A record first loaded from a file whose name does
// not match its id leaves that file behind once rewritten under the
// canonical name, so any prior path mapped to this id is deleted here.
// Caller holds s.mu; the returned kind is "created" or "updated".
func (s *Store) saveLocked(rec models.TaskRecord) (string, error) {
	if rec.ID == "" {
		return "", fmt.Errorf("taskstore: %w: record without id", apperr.ErrInvalid)
	}
	if rec.Notes == nil {
		rec.Notes = []models.Note{}
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", fmt.Errorf("taskstore: encode %s: %w", rec.ID, err)
	}
	path := rec.ID + ".json"
	if err := s.files.Write(path, data); err != nil {
		return "", err
	}
	for p, id := range s.pathToID {
		if id != rec.ID || p == path {
			continue
		}
		if err := s.files.Delete(p); err != nil {
			slog.Warn("taskstore: stale task file delete failed", slog.String("path", p), slog.String("error", err.Error()))
		}
		delete(s.pathToID, p)
	}

	_, existed := s.tasks[rec.ID]
	s.tasks[rec.ID] = rec
	s.pathToID[path] = rec.ID

	if s.idx != nil {
		if err := s.idx.UpsertTask(index.RowFromRecord(rec)); err != nil {
			slog.Warn("taskstore: index upsert failed", slog.String("id", rec.ID), slog.String("error", err.Error()))
		}
	}

	kind := "updated"
	if !existed {
		kind = "created"
	}
	return kind, nil
}

// UpdateRequest carries the optional fields of a task update. Nil fields
// are left unchanged.
type UpdateRequest struct {
	Status   *models.Status
	Progress *int
	Priority *models.Priority
	Note     string
}

// Update applies req to the record with the given id. Unknown ids return
// apperr.ErrNotFound; there is no upsert-on-miss. updated_at always
// strictly advances, and a non-empty note is appended. The whole
// read-modify-write holds the store lock, so concurrent updates to the
// same id never drop each other's changes.
func (s *Store) Update(id string, req UpdateRequest) (models.TaskRecord, error) {
	if req.Status != nil && !req.Status.Valid() {
		return models.TaskRecord{}, fmt.Errorf("taskstore: %w: status %q", apperr.ErrInvalid, *req.Status)
	}
	if req.Progress != nil && (*req.Progress < 0 || *req.Progress > 100) {
		return models.TaskRecord{}, fmt.Errorf("taskstore: %w: progress %d out of range", apperr.ErrInvalid, *req.Progress)
	}
	if req.Priority != nil && !req.Priority.Valid() {
		return models.TaskRecord{}, fmt.Errorf("taskstore: %w: priority %q", apperr.ErrInvalid, *req.Priority)
	}

	s.mu.Lock()
	rec, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return models.TaskRecord{}, apperr.ErrNotFound
	}

	now := time.Now()
	// updated_at must strictly advance even on coarse clocks.
	if !now.After(rec.UpdatedAt) {
		now = rec.UpdatedAt.Add(time.Nanosecond)
	}

	if req.Status != nil {
		rec.Status = *req.Status
	}
	if req.Progress != nil {
		rec.Progress = *req.Progress
	}
	if req.Priority != nil {
		rec.Priority = *req.Priority
	}
	if req.Note != "" {
		rec.Notes = append(rec.Notes, models.Note{Text: req.Note, Timestamp: now})
	}
	rec.UpdatedAt = now

	kind, err := s.saveLocked(rec)
	s.mu.Unlock()
	if err != nil {
		return models.TaskRecord{}, err
	}
	s.emit(kind, rec.ID)
	return rec, nil
}

// ReloadFile re-reads one task file after an external change and refreshes
// the cache and index. Returns the affected id and whether the record is new.
func (s *Store) ReloadFile(relPath string) (string, bool, error) {
	data, err := s.files.Read(relPath)
	if err != nil {
		return "", false, err
	}
	rec, err := decodeRecord(relPath, data)
	if err != nil {
		return "", false, err
	}

	s.mu.Lock()
	_, existed := s.tasks[rec.ID]
	s.tasks[rec.ID] = rec
	s.pathToID[relPath] = rec.ID
	s.mu.Unlock()

	if s.idx != nil {
		if err := s.idx.UpsertTask(index.RowFromRecord(rec)); err != nil {
			slog.Warn("taskstore: index upsert failed", slog.String("id", rec.ID), slog.String("error", err.Error()))
		}
	}
	return rec.ID, !existed, nil
}

// RemoveFile drops the record backed by relPath after an external delete.
// Returns the removed id, or empty when the path was unknown.
func (s *Store) RemoveFile(relPath string) string {
	s.mu.Lock()
	id, ok := s.pathToID[relPath]
	if ok {
		delete(s.pathToID, relPath)
		delete(s.tasks, id)
	}
	s.mu.Unlock()
	if !ok {
		return ""
	}

	if s.idx != nil {
		if err := s.idx.DeleteTask(id); err != nil {
			slog.Warn("taskstore: index delete failed", slog.String("id", id), slog.String("error", err.Error()))
		}
	}
	s.emit("deleted", id)
	return id
}

func (s *Store) emit(kind, id string) {
	if s.onChange != nil {
		s.onChange(kind, id)
	}
}

// decodeRecord parses a task file. The id inside the file wins over the
// filename-derived one; notes and enum fields are normalised and progress
// is clamped, so hand-edited files stay loadable.
func decodeRecord(path string, data []byte) (models.TaskRecord, error) {
	var rec models.TaskRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return models.TaskRecord{}, err
	}
	if rec.ID == "" {
		rec.ID = strings.TrimSuffix(filepath.Base(path), ".json")
	}
	if !rec.Status.Valid() {
		rec.Status = models.StatusPending
	}
	if !rec.Priority.Valid() {
		rec.Priority = models.PriorityMedium
	}
	if rec.Progress < 0 {
		rec.Progress = 0
	} else if rec.Progress > 100 {
		rec.Progress = 100
	}
	if rec.Notes == nil {
		rec.Notes = []models.Note{}
	}
	return rec, nil
}
