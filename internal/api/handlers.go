package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/rferrer/taskpilot/internal/apperr"
	"github.com/rferrer/taskpilot/internal/index"
	"github.com/rferrer/taskpilot/internal/mailbox"
	"github.com/rferrer/taskpilot/internal/models"
	"github.com/rferrer/taskpilot/internal/taskstore"
)

// Chat handles one conversational turn.
type Chat interface {
	Handle(ctx context.Context, input string) string
}

// MailRunner triggers one mail ingestion pass.
type MailRunner interface {
	Run(ctx context.Context) (mailbox.Result, error)
}

// Handler holds API route handlers.
type Handler struct {
	store *taskstore.Store
	chat  Chat
	mail  MailRunner      // nil when no mailbox is configured
	idx   index.TaskIndex // nil when the search index is disabled
}

// NewHandler creates a new Handler. mail and idx may be nil.
func NewHandler(store *taskstore.Store, chat Chat, mail MailRunner, idx index.TaskIndex) *Handler {
	return &Handler{store: store, chat: chat, mail: mail, idx: idx}
}

// PostChat handles POST /api/chat.
//
//	@Summary		Send a message to the assistant
//	@Tags			chat
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ChatRequest	true	"Message to send"
//	@Success		200		{object}	ChatResponse
//	@Failure		400		{object}	ChatResponse
//	@Security		BearerAuth
//	@Router			/chat [post]
func (h *Handler) PostChat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Message == "" {
		writeJSON(w, http.StatusBadRequest, ChatResponse{Response: "No message provided"})
		return
	}
	writeJSON(w, http.StatusOK, ChatResponse{Response: h.chat.Handle(r.Context(), req.Message)})
}

// ListTasks handles GET /api/tasks.
//
//	@Summary		List all tasks keyed by id
//	@Tags			tasks
//	@Produce		json
//	@Param			status		query		string	false	"Filter by status"	Enums(pending, in_progress, completed)
//	@Param			priority	query		string	false	"Filter by priority"	Enums(high, medium, low)
//	@Success		200			{object}	map[string]models.TaskRecord
//	@Security		BearerAuth
//	@Router			/tasks [get]
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status := models.Status(q.Get("status"))
	priority := models.Priority(q.Get("priority"))
	writeJSON(w, http.StatusOK, h.store.All(status, priority))
}

// GetTask handles GET /api/tasks/{id}.
//
//	@Summary		Get a single task by id
//	@Tags			tasks
//	@Produce		json
//	@Param			id	path		string	true	"Task id"
//	@Success		200	{object}	models.TaskRecord
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/tasks/{id} [get]
func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := h.store.Get(id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorBody("task not found"))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// UpdateTask handles PUT /api/tasks/{id}.
//
//	@Summary		Update status, progress, priority or notes of a task
//	@Tags			tasks
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"Task id"
//	@Param			body	body		UpdateTaskRequest	true	"Fields to update"
//	@Success		200		{object}	models.TaskRecord
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/tasks/{id} [put]
func (h *Handler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	id := chi.URLParam(r, "id")

	var req UpdateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	rec, err := h.store.Update(id, taskstore.UpdateRequest{
		Status:   req.Status,
		Progress: req.Progress,
		Priority: req.Priority,
		Note:     req.Note,
	})
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			writeJSON(w, http.StatusNotFound, errorBody("task not found"))
		case errors.Is(err, apperr.ErrInvalid):
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		default:
			slog.Error("update task failed", slog.String("id", id), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// FetchEmailTasks handles POST /api/fetch-email-tasks.
//
//	@Summary		Scan the mailbox for new tasks and meetings
//	@Tags			mail
//	@Produce		json
//	@Success		200	{object}	FetchResponse
//	@Failure		502	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/fetch-email-tasks [post]
func (h *Handler) FetchEmailTasks(w http.ResponseWriter, r *http.Request) {
	if h.mail == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("no mailbox configured"))
		return
	}
	res, err := h.mail.Run(r.Context())
	if err != nil {
		slog.Error("mail ingestion failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadGateway, errorBody("mail ingestion failed"))
		return
	}
	writeJSON(w, http.StatusOK, FetchResponse{Message: res.Summary()})
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across tasks
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	if h.idx == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("search index disabled"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.idx.Search(q, limit)
	if err != nil {
		slog.Error("search failed", slog.String("query", q), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if results == nil {
		results = []SearchResult{}
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}
