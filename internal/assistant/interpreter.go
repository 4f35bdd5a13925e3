// Package assistant classifies free-text user commands into task operations
// and falls through to the oracle for everything else.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rferrer/taskpilot/internal/apperr"
	"github.com/rferrer/taskpilot/internal/convlog"
	"github.com/rferrer/taskpilot/internal/mailbox"
	"github.com/rferrer/taskpilot/internal/models"
	"github.com/rferrer/taskpilot/internal/oracle"
	"github.com/rferrer/taskpilot/internal/taskstore"
)

var (
	statusTokenRe   = regexp.MustCompile(`(?i)status:\s*(pending|in[_ ]progress|completed)`)
	progressTokenRe = regexp.MustCompile(`(?i)progress:\s*(\d+)\s*%?`)
)

// MailRunner triggers one mail ingestion pass.
type MailRunner interface {
	Run(ctx context.Context) (mailbox.Result, error)
}

// Interpreter maps one input line to one response. It keeps no state
// across turns; every input is classified independently.
type Interpreter struct {
	store  *taskstore.Store
	oracle mailbox.Asker
	mail   MailRunner // may be nil when no mailbox is configured
	log    *convlog.Log
	logger *slog.Logger
}

// New creates the interpreter. mail may be nil; the fetch command then
// reports that no mailbox is configured.
func New(store *taskstore.Store, asker mailbox.Asker, mail MailRunner, log *convlog.Log, logger *slog.Logger) *Interpreter {
	return &Interpreter{store: store, oracle: asker, mail: mail, log: log, logger: logger}
}

// matcher pairs a predicate with its handler. Order in the matcher list is
// load-bearing: the first match wins.
type matcher struct {
	name   string
	match  func(lower string) bool
	handle func(ctx context.Context, raw, lower string) string
}

// Handle classifies input and returns the response. Matching is
// case-insensitive. Every branch appends to the conversation log.
func (it *Interpreter) Handle(ctx context.Context, input string) string {
	raw := strings.TrimSpace(input)
	lower := strings.ToLower(raw)

	response := ""
	for _, m := range it.matchers() {
		if m.match(lower) {
			it.logger.Debug("command matched", slog.String("rule", m.name))
			response = m.handle(ctx, raw, lower)
			break
		}
	}

	entry := models.LogEntry{Timestamp: time.Now(), Query: raw, Response: response}
	if err := it.log.Append(entry); err != nil {
		it.logger.Warn("conversation log append failed", slog.String("error", err.Error()))
	}
	return response
}

func (it *Interpreter) matchers() []matcher {
	return []matcher{
		{
			name: "fetch-email",
			match: func(lower string) bool {
				return strings.Contains(lower, "fetch tasks from email") ||
					strings.Contains(lower, "check email for tasks")
			},
			handle: it.handleFetch,
		},
		{
			name: "update-task",
			match: func(lower string) bool {
				return strings.HasPrefix(lower, "update task:")
			},
			handle: it.handleUpdate,
		},
		{
			name: "task-progress",
			match: func(lower string) bool {
				return strings.HasPrefix(lower, "task progress:") || strings.HasPrefix(lower, "progress:")
			},
			handle: it.handleProgress,
		},
		{
			name: "list-tasks",
			match: func(lower string) bool {
				if lower == "list tasks" || lower == "show tasks" {
					return true
				}
				return strings.HasPrefix(lower, "list") && strings.Contains(lower, "tasks")
			},
			handle: it.handleList,
		},
		{
			name: "known-id",
			match: func(lower string) bool {
				if !strings.Contains(lower, "task") && !strings.Contains(lower, "progress") {
					return false
				}
				return it.findKnownID(lower) != ""
			},
			handle: it.handleKnownID,
		},
		{
			name:   "oracle-fallback",
			match:  func(string) bool { return true },
			handle: it.handleOracle,
		},
	}
}

func (it *Interpreter) handleFetch(ctx context.Context, _, _ string) string {
	if it.mail == nil {
		return "No mailbox is configured."
	}
	res, err := it.mail.Run(ctx)
	if err != nil {
		it.logger.Error("mail ingestion failed", slog.String("error", err.Error()))
		return fmt.Sprintf("Could not fetch tasks from email: %v", err)
	}
	return res.Summary()
}

// handleUpdate parses "update task: <id>: <payload>". The payload may embed
// status: and progress:NN% tokens; the whole payload is appended as a note.
func (it *Interpreter) handleUpdate(_ context.Context, raw, _ string) string {
	rest := strings.TrimSpace(raw[len("update task:"):])
	id, payload := splitID(rest)
	if id == "" {
		return "Usage: update task: <id>: <update text>"
	}

	req := taskstore.UpdateRequest{Note: payload}
	if m := statusTokenRe.FindStringSubmatch(payload); m != nil {
		st := models.Status(strings.ReplaceAll(strings.ToLower(m[1]), " ", "_"))
		req.Status = &st
	}
	if m := progressTokenRe.FindStringSubmatch(payload); m != nil {
		// Free-text progress is clamped rather than rejected.
		p, _ := strconv.Atoi(m[1])
		if p > 100 {
			p = 100
		}
		req.Progress = &p
	}

	rec, err := it.store.Update(id, req)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return fmt.Sprintf("Task %s not found.", id)
		}
		it.logger.Error("task update failed", slog.String("id", id), slog.String("error", err.Error()))
		return fmt.Sprintf("Could not update task %s: %v", id, err)
	}
	return FormatTask(rec)
}

func (it *Interpreter) handleProgress(_ context.Context, raw, lower string) string {
	rest := raw
	switch {
	case strings.HasPrefix(lower, "task progress:"):
		rest = raw[len("task progress:"):]
	case strings.HasPrefix(lower, "progress:"):
		rest = raw[len("progress:"):]
	}
	id, _ := splitID(strings.TrimSpace(rest))
	if id == "" {
		return "Usage: task progress: <id>"
	}
	rec, err := it.store.Get(id)
	if err != nil {
		return fmt.Sprintf("Task %s not found.", id)
	}
	return FormatTask(rec)
}

func (it *Interpreter) handleList(_ context.Context, _, lower string) string {
	status, priority := parseFilters(lower)
	return FormatList(it.store.List(status, priority))
}

func (it *Interpreter) handleKnownID(_ context.Context, _, lower string) string {
	id := it.findKnownID(lower)
	rec, err := it.store.Get(id)
	if err != nil {
		return fmt.Sprintf("Task %s not found.", id)
	}
	return FormatTask(rec)
}

// handleOracle forwards the input to the oracle, with task context when
// the input mentions tasks. Oracle failures degrade to an error string so
// the caller never branches on error type.
func (it *Interpreter) handleOracle(ctx context.Context, raw, lower string) string {
	userText := raw
	if strings.Contains(lower, "task") {
		userText = "Current tasks:\n" + FormatList(it.store.List("", "")) + "\n\n" + raw
	}
	reply, err := it.oracle.Ask(ctx, oracle.AssistantPrompt, userText)
	if err != nil {
		it.logger.Error("oracle call failed", slog.String("error", err.Error()))
		return fmt.Sprintf("Error communicating with the assistant API: %v", err)
	}
	return reply
}

// findKnownID returns the first known task id appearing as a substring of
// the input, or empty.
func (it *Interpreter) findKnownID(lower string) string {
	for _, id := range it.store.IDs() {
		if strings.Contains(lower, strings.ToLower(id)) {
			return id
		}
	}
	return ""
}

// splitID separates a leading task id from the rest of a command payload.
// The id ends at the first colon or whitespace.
func splitID(s string) (string, string) {
	s = strings.TrimSpace(s)
	end := strings.IndexAny(s, ": \t")
	if end < 0 {
		return s, ""
	}
	id := s[:end]
	rest := strings.TrimSpace(strings.TrimPrefix(s[end:], ":"))
	return id, rest
}

// parseFilters pulls optional status/priority keywords out of a list command.
func parseFilters(lower string) (models.Status, models.Priority) {
	var status models.Status
	switch {
	case strings.Contains(lower, "in progress"), strings.Contains(lower, "in_progress"):
		status = models.StatusInProgress
	case strings.Contains(lower, "pending"):
		status = models.StatusPending
	case strings.Contains(lower, "completed"):
		status = models.StatusCompleted
	}
	var priority models.Priority
	switch {
	case strings.Contains(lower, "high"):
		priority = models.PriorityHigh
	case strings.Contains(lower, "medium"):
		priority = models.PriorityMedium
	case strings.Contains(lower, "low"):
		priority = models.PriorityLow
	}
	return status, priority
}
