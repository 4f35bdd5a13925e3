package mailbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/rferrer/taskpilot/internal/extract"
	"github.com/rferrer/taskpilot/internal/models"
	"github.com/rferrer/taskpilot/internal/oracle"
	"github.com/rferrer/taskpilot/internal/taskstore"
)

// meetingDomains are the video-conferencing hosts that mark an email as a
// meeting candidate.
var meetingDomains = []string{"meet.google.com", "zoom.us"}

// Cheap regex tier for structured hints embedded in email bodies, applied
// independently of the oracle.
var (
	deadlineRe = regexp.MustCompile(`(?i)deadline:\s*(\d{4}-\d{2}-\d{2})`)
	priorityRe = regexp.MustCompile(`(?i)priority:\s*(high|medium|low)`)
)

// Asker is the oracle dependency of the ingestor.
type Asker interface {
	Ask(ctx context.Context, systemPrompt, userText string) (string, error)
}

// CalendarSink receives detected meetings.
type CalendarSink interface {
	AddMeeting(ctx context.Context, m models.MeetingRecord) error
}

// Result summarises one ingestion run.
type Result struct {
	EmailsScanned int
	TasksAdded    int
	MeetingsFound int
}

// Summary renders the human-readable run summary.
func (r Result) Summary() string {
	return fmt.Sprintf("Scanned %d emails: added %d tasks, found %d meetings.",
		r.EmailsScanned, r.TasksAdded, r.MeetingsFound)
}

// Ingestor turns inbox messages into task records and meeting events.
type Ingestor struct {
	fetcher  Fetcher
	oracle   Asker
	store    *taskstore.Store
	calendar CalendarSink // may be nil
	logger   *slog.Logger
}

// NewIngestor wires the mail adapter. calendar may be nil when calendar
// sync is disabled.
func NewIngestor(fetcher Fetcher, asker Asker, store *taskstore.Store, calendar CalendarSink, logger *slog.Logger) *Ingestor {
	return &Ingestor{fetcher: fetcher, oracle: asker, store: store, calendar: calendar, logger: logger}
}

// Run fetches unseen mail and processes every message. Per-message failures
// degrade to skipped messages; only the fetch itself can fail the run.
func (ing *Ingestor) Run(ctx context.Context) (Result, error) {
	msgs, err := ing.fetcher.FetchUnseen(ctx)
	if err != nil {
		return Result{}, err
	}

	var res Result
	for _, msg := range msgs {
		res.EmailsScanned++
		ing.logger.Info("processing email",
			slog.Int("uid", int(msg.UID)),
			slog.String("subject", msg.Subject))

		if hasMeetingLink(msg.Body) {
			if ing.processMeeting(ctx, msg) {
				res.MeetingsFound++
			}
		}
		res.TasksAdded += ing.processTasks(ctx, msg)
	}
	return res, nil
}

func hasMeetingLink(body string) bool {
	for _, d := range meetingDomains {
		if strings.Contains(body, d) {
			return true
		}
	}
	return false
}

// processMeeting asks the oracle for meeting details. An empty object means
// no meeting was detected and is discarded, never persisted.
func (ing *Ingestor) processMeeting(ctx context.Context, msg Message) bool {
	reply, err := ing.oracle.Ask(ctx, oracle.MeetingExtractionPrompt, msg.Body)
	if err != nil {
		ing.logger.Warn("meeting extraction failed",
			slog.Int("uid", int(msg.UID)),
			slog.String("error", err.Error()))
		return false
	}

	var meeting models.MeetingRecord
	if err := extract.Object(reply, &meeting); err != nil {
		if !errors.Is(err, extract.ErrNoSpan) {
			ing.logger.Warn("meeting reply not decodable",
				slog.Int("uid", int(msg.UID)),
				slog.String("error", err.Error()))
		}
		return false
	}
	if meeting.Empty() {
		ing.logger.Debug("no meeting details in email", slog.Int("uid", int(msg.UID)))
		return false
	}

	if ing.calendar != nil {
		if err := ing.calendar.AddMeeting(ctx, meeting); err != nil {
			ing.logger.Warn("calendar insert failed",
				slog.Int("uid", int(msg.UID)),
				slog.String("error", err.Error()))
		}
	}
	return true
}

// taskCandidate mirrors the shape the task-extraction prompt asks for.
type taskCandidate struct {
	Title   string  `json:"title"`
	DueDate *string `json:"due_date"`
}

// processTasks asks the oracle for tasks in the email and saves each one,
// layering the regex hint tier for deadline and priority on top.
func (ing *Ingestor) processTasks(ctx context.Context, msg Message) int {
	reply, err := ing.oracle.Ask(ctx, oracle.TaskExtractionPrompt, msg.Body)
	if err != nil {
		ing.logger.Warn("task extraction failed",
			slog.Int("uid", int(msg.UID)),
			slog.String("error", err.Error()))
		return 0
	}

	var candidates []taskCandidate
	if err := extract.Array(reply, &candidates); err != nil {
		if !errors.Is(err, extract.ErrNoSpan) {
			ing.logger.Warn("task reply not decodable",
				slog.Int("uid", int(msg.UID)),
				slog.String("error", err.Error()))
		}
		return 0
	}

	hintDeadline, hintPriority := parseHints(msg.Body)

	added := 0
	for _, c := range candidates {
		title := strings.TrimSpace(c.Title)
		if title == "" {
			continue
		}
		rec := models.NewTaskRecord(title, models.SourceEmail)
		if c.DueDate != nil {
			if d, parseErr := time.Parse("2006-01-02", *c.DueDate); parseErr == nil {
				rec.Deadline = &d
			} else {
				ing.logger.Warn("dropping unparseable due date",
					slog.String("due_date", *c.DueDate),
					slog.String("title", title))
			}
		}
		if rec.Deadline == nil && hintDeadline != nil {
			rec.Deadline = hintDeadline
		}
		if hintPriority != "" {
			rec.Priority = hintPriority
		}
		if err := ing.store.Save(rec); err != nil {
			ing.logger.Warn("saving extracted task failed",
				slog.String("id", rec.ID),
				slog.String("error", err.Error()))
			continue
		}
		added++
	}
	return added
}

// parseHints runs the regex tier over a body and returns any structured
// deadline/priority hints.
func parseHints(body string) (*time.Time, models.Priority) {
	var deadline *time.Time
	if m := deadlineRe.FindStringSubmatch(body); m != nil {
		if d, err := time.Parse("2006-01-02", m[1]); err == nil {
			deadline = &d
		}
	}
	var priority models.Priority
	if m := priorityRe.FindStringSubmatch(body); m != nil {
		priority = models.Priority(strings.ToLower(m[1]))
	}
	return deadline, priority
}
