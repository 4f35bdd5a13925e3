package convlog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rferrer/taskpilot/internal/models"
)

func testLog(t *testing.T) *Log {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "conversation.jsonl"))
}

func TestAppendAndLoad(t *testing.T) {
	l := testLog(t)

	e1 := models.LogEntry{Timestamp: time.Now().UTC(), Query: "list tasks", Response: "1 task"}
	e2 := models.LogEntry{Timestamp: time.Now().UTC(), Query: "how do I cook rice", Response: "boil it"}
	if err := l.Append(e1); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := l.Append(e2); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := l.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Query != "list tasks" || got[1].Response != "boil it" {
		t.Errorf("entries = %+v", got)
	}
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	l := testLog(t)
	got, err := l.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("len = %d, want 0", len(got))
	}
}

func TestLoadSkipsCorruptLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.jsonl")
	content := `{"timestamp":"2025-01-01T00:00:00Z","query":"ok","response":"fine"}` + "\nnot json\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	l := New(path)
	got, err := l.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 1 || got[0].Query != "ok" {
		t.Errorf("entries = %+v", got)
	}
}

func TestSummaryTruncatesLongQueries(t *testing.T) {
	l := testLog(t)
	long := strings.Repeat("x", 90)
	_ = l.Append(models.LogEntry{Timestamp: time.Now(), Query: long, Response: "r"})

	sum := l.Summary()
	if !strings.Contains(sum, "(1 interactions)") {
		t.Errorf("summary = %q", sum)
	}
	if !strings.Contains(sum, strings.Repeat("x", 75)+"...") {
		t.Error("long query should be truncated with ellipsis")
	}
	if strings.Contains(sum, strings.Repeat("x", 76)) {
		t.Error("query should be cut at 75 chars")
	}
}
