package assistant

import (
	"fmt"
	"strings"

	"github.com/rferrer/taskpilot/internal/models"
)

// lastNotesShown bounds how many notes the progress view renders. The
// stored notes list itself is never truncated.
const lastNotesShown = 3

// FormatTask renders the progress view for one task.
func FormatTask(rec models.TaskRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Task %s: %s\n", rec.ID, rec.Description)
	fmt.Fprintf(&b, "Status: %s | Progress: %d%% | Priority: %s", rec.Status, rec.Progress, rec.Priority)
	if rec.Deadline != nil {
		fmt.Fprintf(&b, " | Deadline: %s", rec.Deadline.Format("2006-01-02"))
	}
	b.WriteString("\n")

	if len(rec.Notes) > 0 {
		notes := rec.Notes
		if len(notes) > lastNotesShown {
			notes = notes[len(notes)-lastNotesShown:]
		}
		fmt.Fprintf(&b, "Notes (last %d):\n", len(notes))
		for _, n := range notes {
			fmt.Fprintf(&b, "  - [%s] %s\n", n.Timestamp.Format("2006-01-02 15:04"), n.Text)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatList renders a numbered task listing.
func FormatList(recs []models.TaskRecord) string {
	if len(recs) == 0 {
		return "No tasks found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Tasks (%d):\n", len(recs))
	for i, rec := range recs {
		fmt.Fprintf(&b, "%d. [%s] %s (%s, %d%%, %s", i+1, rec.ID, rec.Description, rec.Status, rec.Progress, rec.Priority)
		if rec.Deadline != nil {
			fmt.Fprintf(&b, ", due %s", rec.Deadline.Format("2006-01-02"))
		}
		b.WriteString(")\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
