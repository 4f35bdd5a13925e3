// Package convlog persists the conversation history as an append-only
// JSON-lines file. Each interaction appends exactly one line, so a crash
// can lose at most the entry being written.
package convlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/rferrer/taskpilot/internal/models"
)

// Log appends and reads conversation entries. Safe for concurrent use.
type Log struct {
	path string
	mu   sync.Mutex
}

// New creates a Log backed by the given file path. The file is created on
// first append.
func New(path string) *Log {
	return &Log{path: path}
}

// Append writes one entry as a single JSON line.
func (l *Log) Append(entry models.LogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("convlog: encode: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("convlog: open: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("convlog: write: %w", err)
	}
	return nil
}

// Load reads the full history. A missing file is an empty history; corrupt
// lines are skipped with a logged warning.
func (l *Log) Load() ([]models.LogEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("convlog: open: %w", err)
	}
	defer f.Close()

	var out []models.LogEntry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry models.LogEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			slog.Warn("convlog: skipping corrupt line", slog.String("error", err.Error()))
			continue
		}
		out = append(out, entry)
	}
	if err := sc.Err(); err != nil {
		return out, fmt.Errorf("convlog: scan: %w", err)
	}
	return out, nil
}

// Summary renders a numbered history of logged queries, truncated to 75
// characters each.
func (l *Log) Summary() string {
	entries, err := l.Load()
	if err != nil {
		return fmt.Sprintf("Conversation history unavailable: %v", err)
	}
	out := fmt.Sprintf("Conversation History (%d interactions):\n", len(entries))
	for i, e := range entries {
		q := e.Query
		if len(q) > 75 {
			q = q[:75] + "..."
		}
		out += fmt.Sprintf("%d. %s\n", i+1, q)
	}
	return out
}
