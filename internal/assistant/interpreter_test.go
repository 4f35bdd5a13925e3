package assistant

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rferrer/taskpilot/internal/convlog"
	"github.com/rferrer/taskpilot/internal/mailbox"
	"github.com/rferrer/taskpilot/internal/models"
	"github.com/rferrer/taskpilot/internal/storage"
	"github.com/rferrer/taskpilot/internal/taskstore"
)

type fakeAsker struct {
	reply    string
	err      error
	lastUser string
	calls    int
}

func (f *fakeAsker) Ask(_ context.Context, _, userText string) (string, error) {
	f.calls++
	f.lastUser = userText
	return f.reply, f.err
}

type fakeMail struct {
	result mailbox.Result
	err    error
	calls  int
}

func (f *fakeMail) Run(context.Context) (mailbox.Result, error) {
	f.calls++
	return f.result, f.err
}

func newTestInterpreter(t *testing.T, asker *fakeAsker, mail MailRunner) (*Interpreter, *taskstore.Store) {
	t.Helper()
	dir := t.TempDir()
	files, err := storage.NewFS(dir)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	store := taskstore.New(files, nil)
	if err := store.LoadAll(); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	log := convlog.New(filepath.Join(dir, "conversation.json"))
	it := New(store, asker, mail, log, slog.New(slog.DiscardHandler))
	return it, store
}

func mustSave(t *testing.T, s *taskstore.Store, rec models.TaskRecord) {
	t.Helper()
	if err := s.Save(rec); err != nil {
		t.Fatalf("Save %s: %v", rec.ID, err)
	}
}

func TestHandleUpdateCommand(t *testing.T) {
	asker := &fakeAsker{}
	it, store := newTestInterpreter(t, asker, nil)

	rec := models.NewTaskRecord("prepare quarterly report", models.SourceManual)
	rec.ID = "4f3a2b1c"
	mustSave(t, store, rec)

	resp := it.Handle(context.Background(), "update task: 4f3a2b1c: status: in_progress progress:40%")

	got, err := store.Get("4f3a2b1c")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != models.StatusInProgress {
		t.Errorf("status = %q, want in_progress", got.Status)
	}
	if got.Progress != 40 {
		t.Errorf("progress = %d, want 40", got.Progress)
	}
	if len(got.Notes) != 1 || !strings.Contains(got.Notes[0].Text, "status: in_progress") {
		t.Errorf("notes = %+v, want the raw update text appended", got.Notes)
	}
	if !got.UpdatedAt.After(rec.UpdatedAt) {
		t.Error("updated_at did not advance")
	}
	if !strings.Contains(resp, "4f3a2b1c") || !strings.Contains(resp, "40%") {
		t.Errorf("response %q does not show the updated task", resp)
	}
	if asker.calls != 0 {
		t.Error("update command must not call the oracle")
	}
}

func TestHandleUpdateUnknownTask(t *testing.T) {
	it, _ := newTestInterpreter(t, &fakeAsker{}, nil)
	resp := it.Handle(context.Background(), "update task: deadbeef: progress: 10")
	if !strings.Contains(resp, "deadbeef") || !strings.Contains(resp, "not found") {
		t.Errorf("response = %q, want a not-found message", resp)
	}
}

func TestHandleListWithPriorityFilter(t *testing.T) {
	it, store := newTestInterpreter(t, &fakeAsker{}, nil)

	high := models.NewTaskRecord("fix login outage", models.SourceEmail)
	high.Priority = models.PriorityHigh
	mustSave(t, store, high)
	for _, desc := range []string{"tidy backlog", "update docs"} {
		rec := models.NewTaskRecord(desc, models.SourceManual)
		rec.Priority = models.PriorityLow
		mustSave(t, store, rec)
	}

	resp := it.Handle(context.Background(), "list tasks high priority")
	if !strings.Contains(resp, "Tasks (1):") {
		t.Fatalf("response = %q, want exactly one task listed", resp)
	}
	if !strings.Contains(resp, "fix login outage") {
		t.Errorf("response = %q, want the high-priority task", resp)
	}
}

func TestHandleListEmpty(t *testing.T) {
	it, _ := newTestInterpreter(t, &fakeAsker{}, nil)
	if resp := it.Handle(context.Background(), "show tasks"); resp != "No tasks found." {
		t.Errorf("response = %q", resp)
	}
}

func TestHandleProgressQuery(t *testing.T) {
	it, store := newTestInterpreter(t, &fakeAsker{}, nil)
	rec := models.NewTaskRecord("ship release", models.SourceManual)
	rec.Progress = 75
	mustSave(t, store, rec)

	resp := it.Handle(context.Background(), "task progress: "+rec.ID)
	if !strings.Contains(resp, "75%") {
		t.Errorf("response = %q, want progress shown", resp)
	}
}

func TestHandleKnownIDMention(t *testing.T) {
	asker := &fakeAsker{reply: "should not be used"}
	it, store := newTestInterpreter(t, asker, nil)
	rec := models.NewTaskRecord("renew certificates", models.SourceManual)
	mustSave(t, store, rec)

	resp := it.Handle(context.Background(), "how is task "+rec.ID+" doing?")
	if !strings.Contains(resp, "renew certificates") {
		t.Errorf("response = %q, want the task rendered directly", resp)
	}
	if asker.calls != 0 {
		t.Error("known-id mention must bypass the oracle")
	}
}

func TestHandleFetchEmail(t *testing.T) {
	mail := &fakeMail{result: mailbox.Result{EmailsScanned: 3, TasksAdded: 2, MeetingsFound: 1}}
	it, _ := newTestInterpreter(t, &fakeAsker{}, mail)

	resp := it.Handle(context.Background(), "please fetch tasks from email")
	if mail.calls != 1 {
		t.Fatalf("mail.calls = %d, want 1", mail.calls)
	}
	if !strings.Contains(resp, "Scanned 3 emails") {
		t.Errorf("response = %q", resp)
	}
}

func TestHandleFetchWithoutMailbox(t *testing.T) {
	it, _ := newTestInterpreter(t, &fakeAsker{}, nil)
	resp := it.Handle(context.Background(), "check email for tasks")
	if !strings.Contains(resp, "No mailbox") {
		t.Errorf("response = %q", resp)
	}
}

func TestOracleFallbackIncludesTaskContext(t *testing.T) {
	asker := &fakeAsker{reply: "you have one open task"}
	it, store := newTestInterpreter(t, asker, nil)
	mustSave(t, store, models.NewTaskRecord("water the plants", models.SourceManual))

	resp := it.Handle(context.Background(), "what tasks should I do first?")
	if resp != "you have one open task" {
		t.Errorf("response = %q", resp)
	}
	if !strings.Contains(asker.lastUser, "water the plants") {
		t.Errorf("oracle prompt %q missing task context", asker.lastUser)
	}
}

func TestOracleFallbackFailureDegrades(t *testing.T) {
	asker := &fakeAsker{err: errors.New("connection refused")}
	it, _ := newTestInterpreter(t, asker, nil)

	resp := it.Handle(context.Background(), "tell me a joke")
	if !strings.Contains(resp, "connection refused") {
		t.Errorf("response = %q, want the failure surfaced as text", resp)
	}
}

func TestEveryBranchLogsConversation(t *testing.T) {
	asker := &fakeAsker{reply: "hi"}
	it, _ := newTestInterpreter(t, asker, nil)

	it.Handle(context.Background(), "list tasks")
	it.Handle(context.Background(), "hello there")

	entries, err := it.log.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	if entries[1].Query != "hello there" || entries[1].Response != "hi" {
		t.Errorf("entry = %+v", entries[1])
	}
}
