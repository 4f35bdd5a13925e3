package taskstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rferrer/taskpilot/internal/apperr"
	"github.com/rferrer/taskpilot/internal/models"
	"github.com/rferrer/taskpilot/internal/storage"
)

func testStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	files, err := storage.NewFS(dir)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	s := New(files, nil)
	if err := s.LoadAll(); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	return s, dir
}

func mustSave(t *testing.T, s *Store, rec models.TaskRecord) {
	t.Helper()
	if err := s.Save(rec); err != nil {
		t.Fatalf("Save %s: %v", rec.ID, err)
	}
}

func TestUpdateUnknownIDIsNotFound(t *testing.T) {
	s, _ := testStore(t)
	_, err := s.Update("deadbeef", UpdateRequest{Note: "hello"})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	// No upsert-on-miss.
	if _, err := s.Get("deadbeef"); !errors.Is(err, apperr.ErrNotFound) {
		t.Error("update on miss must not create a record")
	}
}

func TestUpdateAppliesOnlyProvidedFields(t *testing.T) {
	s, _ := testStore(t)
	rec := models.NewTaskRecord("write changelog", models.SourceManual)
	rec.Priority = models.PriorityLow
	rec.Progress = 25
	mustSave(t, s, rec)

	before := rec.UpdatedAt
	status := models.StatusCompleted
	got, err := s.Update(rec.ID, UpdateRequest{Status: &status})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Status != models.StatusCompleted {
		t.Errorf("status = %q", got.Status)
	}
	if got.Progress != 25 || got.Priority != models.PriorityLow {
		t.Errorf("unspecified fields changed: progress=%d priority=%q", got.Progress, got.Priority)
	}
	if !got.UpdatedAt.After(before) {
		t.Errorf("updated_at did not strictly increase: %v -> %v", before, got.UpdatedAt)
	}
	if got.CreatedAt != rec.CreatedAt {
		t.Error("created_at must be immutable")
	}
}

func TestUpdateAppendsNote(t *testing.T) {
	s, _ := testStore(t)
	rec := models.NewTaskRecord("review PR", models.SourceManual)
	mustSave(t, s, rec)

	_, _ = s.Update(rec.ID, UpdateRequest{Note: "first pass done"})
	got, err := s.Update(rec.ID, UpdateRequest{Note: "approved"})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(got.Notes) != 2 {
		t.Fatalf("len(notes) = %d, want 2", len(got.Notes))
	}
	if got.Notes[0].Text != "first pass done" || got.Notes[1].Text != "approved" {
		t.Errorf("notes out of order: %+v", got.Notes)
	}
}

func TestUpdateRejectsOutOfRangeProgress(t *testing.T) {
	s, _ := testStore(t)
	rec := models.NewTaskRecord("x", models.SourceManual)
	mustSave(t, s, rec)

	p := 150
	if _, err := s.Update(rec.ID, UpdateRequest{Progress: &p}); !errors.Is(err, apperr.ErrInvalid) {
		t.Errorf("err = %v, want ErrInvalid", err)
	}
	bad := models.Status("done")
	if _, err := s.Update(rec.ID, UpdateRequest{Status: &bad}); !errors.Is(err, apperr.ErrInvalid) {
		t.Errorf("err = %v, want ErrInvalid", err)
	}
}

func TestListFiltersAndSorts(t *testing.T) {
	s, _ := testStore(t)

	d1 := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	high := models.NewTaskRecord("urgent dated", models.SourceManual)
	high.Priority = models.PriorityHigh
	high.Deadline = &d2
	highEarly := models.NewTaskRecord("urgent earlier", models.SourceManual)
	highEarly.Priority = models.PriorityHigh
	highEarly.Deadline = &d1
	highUndated := models.NewTaskRecord("urgent undated", models.SourceManual)
	highUndated.Priority = models.PriorityHigh
	low := models.NewTaskRecord("someday", models.SourceManual)
	low.Priority = models.PriorityLow

	for _, r := range []models.TaskRecord{high, highEarly, highUndated, low} {
		mustSave(t, s, r)
	}

	got := s.List("", models.PriorityHigh)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].ID != highEarly.ID || got[1].ID != high.ID || got[2].ID != highUndated.ID {
		t.Errorf("order = %s %s %s", got[0].ID, got[1].ID, got[2].ID)
	}

	all := s.List("", "")
	if len(all) != 4 {
		t.Fatalf("len = %d, want 4", len(all))
	}
	if all[3].ID != low.ID {
		t.Errorf("low priority should sort last, got %s", all[3].ID)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s, dir := testStore(t)

	deadline := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	rec := models.NewTaskRecord("ship v2", models.SourceEmail)
	rec.Status = models.StatusInProgress
	rec.Progress = 40
	rec.Priority = models.PriorityHigh
	rec.Deadline = &deadline
	rec.Notes = []models.Note{{Text: "kickoff", Timestamp: time.Now().UTC()}}
	mustSave(t, s, rec)

	// Fresh store over the same directory.
	files, _ := storage.NewFS(dir)
	s2 := New(files, nil)
	if err := s2.LoadAll(); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	got, err := s2.Get(rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Description != rec.Description || got.Status != rec.Status ||
		got.Progress != rec.Progress || got.Priority != rec.Priority {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if got.Deadline == nil || !got.Deadline.Equal(deadline) {
		t.Errorf("deadline = %v", got.Deadline)
	}
	if len(got.Notes) != 1 || got.Notes[0].Text != "kickoff" {
		t.Errorf("notes = %+v", got.Notes)
	}
}

func TestLoadAllExplicitIDWins(t *testing.T) {
	dir := t.TempDir()
	// File named one thing, id field says another: the field wins.
	body := `{"id":"fieldid1","description":"from field","status":"pending","priority":"medium"}`
	if err := os.WriteFile(filepath.Join(dir, "filename1.json"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	// No id field: filename derives the id.
	if err := os.WriteFile(filepath.Join(dir, "derived1.json"), []byte(`{"description":"from name"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	files, _ := storage.NewFS(dir)
	s := New(files, nil)
	if err := s.LoadAll(); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}

	if _, err := s.Get("fieldid1"); err != nil {
		t.Error("expected record keyed by explicit id field")
	}
	if _, err := s.Get("derived1"); err != nil {
		t.Error("expected record keyed by filename")
	}
	if _, err := s.Get("filename1"); err == nil {
		t.Error("filename must not key a record that carries its own id")
	}
}

func TestLoadAllSkipsCorrupt(t *testing.T) {
	dir := t.TempDir()
	_ = os.WriteFile(filepath.Join(dir, "ok1.json"), []byte(`{"description":"fine"}`), 0o644)
	_ = os.WriteFile(filepath.Join(dir, "bad.json"), []byte(`{not json`), 0o644)

	files, _ := storage.NewFS(dir)
	s := New(files, nil)
	if err := s.LoadAll(); err != nil {
		t.Fatalf("LoadAll must not fail on corrupt files: %v", err)
	}
	if len(s.IDs()) != 1 {
		t.Errorf("len(ids) = %d, want 1", len(s.IDs()))
	}
}

func TestUpdateRemovesStaleRenamedFile(t *testing.T) {
	dir := t.TempDir()
	// A hand-renamed file whose name no longer matches its id. It sorts
	// after the canonical aaa11111.json a later save will create.
	body := `{"id":"aaa11111","description":"migrate database","status":"pending","priority":"medium"}`
	if err := os.WriteFile(filepath.Join(dir, "renamed.json"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	files, _ := storage.NewFS(dir)
	s := New(files, nil)
	if err := s.LoadAll(); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}

	status := models.StatusCompleted
	if _, err := s.Update("aaa11111", UpdateRequest{Status: &status}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "renamed.json")); !os.IsNotExist(err) {
		t.Errorf("stale renamed.json still on disk (stat err = %v)", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "aaa11111.json")); err != nil {
		t.Errorf("canonical aaa11111.json missing: %v", err)
	}

	// A fresh scan of the directory must see the update, not the old file.
	files2, _ := storage.NewFS(dir)
	s2 := New(files2, nil)
	if err := s2.LoadAll(); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	got, err := s2.Get("aaa11111")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != models.StatusCompleted {
		t.Errorf("status = %q, want completed", got.Status)
	}
	if len(s2.IDs()) != 1 {
		t.Errorf("len(ids) = %d, want 1", len(s2.IDs()))
	}
}

func TestLoadAllDuplicateIDPrefersCanonicalFile(t *testing.T) {
	dir := t.TempDir()
	// Canonical file scanned first, duplicate after.
	_ = os.WriteFile(filepath.Join(dir, "aaa11111.json"),
		[]byte(`{"id":"aaa11111","description":"current","status":"in_progress"}`), 0o644)
	_ = os.WriteFile(filepath.Join(dir, "zzz-copy.json"),
		[]byte(`{"id":"aaa11111","description":"stale copy","status":"pending"}`), 0o644)
	// Duplicate scanned first, canonical after.
	_ = os.WriteFile(filepath.Join(dir, "aaa-old.json"),
		[]byte(`{"id":"bbb22222","description":"stale copy","status":"pending"}`), 0o644)
	_ = os.WriteFile(filepath.Join(dir, "bbb22222.json"),
		[]byte(`{"id":"bbb22222","description":"current","status":"completed"}`), 0o644)

	files, _ := storage.NewFS(dir)
	s := New(files, nil)
	if err := s.LoadAll(); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}

	if len(s.IDs()) != 2 {
		t.Fatalf("len(ids) = %d, want 2", len(s.IDs()))
	}
	got, err := s.Get("aaa11111")
	if err != nil {
		t.Fatalf("Get aaa11111: %v", err)
	}
	if got.Description != "current" || got.Status != models.StatusInProgress {
		t.Errorf("aaa11111 loaded from wrong file: %+v", got)
	}
	got, err = s.Get("bbb22222")
	if err != nil {
		t.Fatalf("Get bbb22222: %v", err)
	}
	if got.Description != "current" || got.Status != models.StatusCompleted {
		t.Errorf("bbb22222 loaded from wrong file: %+v", got)
	}
}

func TestConcurrentUpdatesKeepEveryNote(t *testing.T) {
	s, _ := testStore(t)
	rec := models.NewTaskRecord("stress me", models.SourceManual)
	mustSave(t, s, rec)

	const workers = 8
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if _, err := s.Update(rec.ID, UpdateRequest{Note: fmt.Sprintf("note %d", n)}); err != nil {
				t.Errorf("Update %d: %v", n, err)
			}
		}(i)
	}
	wg.Wait()

	got, err := s.Get(rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got.Notes) != workers {
		t.Errorf("len(notes) = %d, want %d", len(got.Notes), workers)
	}
}

func TestLoadAllClampsProgress(t *testing.T) {
	dir := t.TempDir()
	_ = os.WriteFile(filepath.Join(dir, "hot1.json"), []byte(`{"description":"over","progress":250}`), 0o644)

	files, _ := storage.NewFS(dir)
	s := New(files, nil)
	_ = s.LoadAll()
	got, err := s.Get("hot1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Progress != 100 {
		t.Errorf("progress = %d, want clamped 100", got.Progress)
	}
}
