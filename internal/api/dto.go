package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/rferrer/taskpilot/internal/index"
	"github.com/rferrer/taskpilot/internal/models"
)

// ChatRequest is the request body for a chat turn.
type ChatRequest struct {
	Message string `json:"message" example:"list tasks high priority"`
}

// ChatResponse wraps the assistant reply.
type ChatResponse struct {
	Response string `json:"response"`
}

// UpdateTaskRequest is the request body for updating a task. All fields are
// optional; absent fields leave the record untouched.
type UpdateTaskRequest struct {
	Status   *models.Status   `json:"status,omitempty" example:"in_progress"`
	Progress *int             `json:"progress,omitempty" example:"40"`
	Note     string           `json:"note,omitempty" example:"waiting on review"`
	Priority *models.Priority `json:"priority,omitempty" example:"high"`
}

// Validate checks field ranges before the request reaches the store.
func (r UpdateTaskRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Status, validation.By(optionalStatus)),
		validation.Field(&r.Progress, validation.Min(0), validation.Max(100)),
		validation.Field(&r.Priority, validation.By(optionalPriority)),
	)
}

func optionalStatus(v interface{}) error {
	s, _ := v.(*models.Status)
	if s == nil {
		return nil
	}
	if !s.Valid() {
		return validation.NewError("validation_status", "must be pending, in_progress or completed")
	}
	return nil
}

func optionalPriority(v interface{}) error {
	p, _ := v.(*models.Priority)
	if p == nil {
		return nil
	}
	if !p.Valid() {
		return validation.NewError("validation_priority", "must be high, medium or low")
	}
	return nil
}

// FetchResponse reports the outcome of a mail ingestion pass.
type FetchResponse struct {
	Message string `json:"message"`
}

// SearchResult is a single search hit (aliased from the index layer).
type SearchResult = index.SearchResult

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []SearchResult `json:"results"`
}
