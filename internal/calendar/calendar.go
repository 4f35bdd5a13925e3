// Package calendar inserts detected meetings into Google Calendar.
package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/rferrer/taskpilot/internal/models"
)

const reminderMinutes = 10

// Config locates the OAuth credentials for the calendar client.
type Config struct {
	CredentialsFile string
	TokenFile       string
	CalendarID      string
}

// Client wraps the Google Calendar service. It implements the
// mailbox.CalendarSink contract.
type Client struct {
	srv        *gcal.Service
	calendarID string
	logger     *slog.Logger
}

// NewClient builds an authenticated calendar client from a stored OAuth
// token. The interactive authorization flow is out of scope here; the token
// file must already exist (obtain it once with any standard OAuth helper).
func NewClient(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	b, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("calendar: read credentials: %w", err)
	}
	oauthCfg, err := google.ConfigFromJSON(b, gcal.CalendarEventsScope)
	if err != nil {
		return nil, fmt.Errorf("calendar: parse credentials: %w", err)
	}

	tok, err := tokenFromFile(cfg.TokenFile)
	if err != nil {
		return nil, fmt.Errorf("calendar: load token: %w", err)
	}

	srv, err := gcal.NewService(ctx, option.WithHTTPClient(oauthCfg.Client(ctx, tok)))
	if err != nil {
		return nil, fmt.Errorf("calendar: build service: %w", err)
	}

	id := cfg.CalendarID
	if id == "" {
		id = "primary"
	}
	return &Client{srv: srv, calendarID: id, logger: logger}, nil
}

// AddMeeting inserts one detected meeting as a calendar event. Meetings
// without both a date and a time cannot be scheduled and are skipped.
func (c *Client) AddMeeting(ctx context.Context, m models.MeetingRecord) error {
	if m.Date == "" || m.Time == "" {
		c.logger.Warn("meeting missing date or time, skipping calendar insert",
			slog.String("date", m.Date),
			slog.String("time", m.Time))
		return nil
	}

	start, err := time.ParseInLocation("2006-01-02 15:04", m.Date+" "+m.Time, time.Local)
	if err != nil {
		return fmt.Errorf("calendar: parse meeting time: %w", err)
	}
	end := start.Add(time.Hour)

	description := m.Description
	if description == "" && m.Link != "" {
		description = "Meeting Link: " + m.Link
	}

	event := &gcal.Event{
		Summary:     "Meeting",
		Description: description,
		Location:    m.Link,
		Start:       &gcal.EventDateTime{DateTime: start.Format(time.RFC3339)},
		End:         &gcal.EventDateTime{DateTime: end.Format(time.RFC3339)},
		Reminders: &gcal.EventReminders{
			UseDefault: false,
			Overrides: []*gcal.EventReminder{
				{Method: "popup", Minutes: reminderMinutes},
			},
			ForceSendFields: []string{"UseDefault"},
		},
	}

	created, err := c.srv.Events.Insert(c.calendarID, event).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("calendar: insert event: %w", err)
	}
	c.logger.Info("meeting added to calendar",
		slog.String("event_id", created.Id),
		slog.String("start", start.Format(time.RFC3339)))
	return nil
}

func tokenFromFile(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("decode token %s: %w", path, err)
	}
	return tok, nil
}
