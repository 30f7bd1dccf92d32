// Package handler exposes investigator edits over HTTP. Every mutating route
// is audited by the service it calls.
package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"casetrail/internal/casework/service"
	"casetrail/internal/changetrack/models"
	"casetrail/pkg/platform/httputil"
	request "casetrail/pkg/platform/middleware/request"
	"casetrail/pkg/platform/middleware/requesttime"
	"casetrail/pkg/platform/sentinel"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Service performs the audited edits.
type Service interface {
	CreateCase(ctx context.Context, id, name string, dynamic map[string]any) (*models.Case, error)
	UpdateCaseDynamicData(ctx context.Context, id string, patch map[string]any) (*models.Case, error)
	CreateTransaction(ctx context.Context, tx *models.Transaction) error
	AssignTransaction(ctx context.Context, id string, assignee *string) (*models.Transaction, error)
	CreateNote(ctx context.Context, note *models.Note) error
	UpdateNote(ctx context.Context, id string, update service.NoteUpdate) (*models.Note, error)
}

// Handler serves the casework routes.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs the handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the casework routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(request.RequestID)
		r.Use(request.Originator)
		r.Use(requesttime.Middleware)

		r.Post("/cases", h.HandleCreateCase)
		r.Patch("/cases/{id}/dynamic-data", h.HandleUpdateDynamicData)
		r.Post("/transactions", h.HandleCreateTransaction)
		r.Put("/transactions/{id}/assignee", h.HandleAssignTransaction)
		r.Post("/notes", h.HandleCreateNote)
		r.Patch("/notes/{id}", h.HandleUpdateNote)
	})
}

// CaseRequest is the body of POST /cases.
type CaseRequest struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	DynamicData map[string]any `json:"dynamicData"`
}

// CaseResponse renders a case with its computed dynamic properties.
type CaseResponse struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	DynamicData map[string]any `json:"dynamicData"`
}

// AssigneeRequest is the body of PUT /transactions/{id}/assignee. A null
// assignee unassigns the transaction.
type AssigneeRequest struct {
	Assignee *string `json:"assignee"`
}

// NoteRequest is the body of POST /notes.
type NoteRequest struct {
	ID     string   `json:"id"`
	CaseID string   `json:"caseId"`
	Title  string   `json:"title"`
	Body   *string  `json:"body,omitempty"`
	Tags   []string `json:"tags,omitempty"`
}

// NoteUpdateRequest is the body of PATCH /notes/{id}.
type NoteUpdateRequest struct {
	Title *string   `json:"title"`
	Body  *string   `json:"body"`
	Tags  *[]string `json:"tags"`
}

// NoteResponse renders a note.
type NoteResponse struct {
	ID     string   `json:"id"`
	CaseID string   `json:"caseId"`
	Title  string   `json:"title"`
	Body   *string  `json:"body,omitempty"`
	Tags   []string `json:"tags"`
}

// HandleCreateCase handles POST /cases.
func (h *Handler) HandleCreateCase(w http.ResponseWriter, r *http.Request) {
	var req CaseRequest
	if !h.decode(w, r, &req) {
		return
	}
	c, err := h.service.CreateCase(r.Context(), req.ID, req.Name, req.DynamicData)
	if err != nil {
		h.writeError(w, r, "create case failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toCaseResponse(c))
}

// HandleUpdateDynamicData handles PATCH /cases/{id}/dynamic-data.
func (h *Handler) HandleUpdateDynamicData(w http.ResponseWriter, r *http.Request) {
	var patch map[string]any
	if !h.decode(w, r, &patch) {
		return
	}
	c, err := h.service.UpdateCaseDynamicData(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		h.writeError(w, r, "update case dynamic data failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toCaseResponse(c))
}

// HandleCreateTransaction handles POST /transactions.
func (h *Handler) HandleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var tx models.Transaction
	if !h.decode(w, r, &tx) {
		return
	}
	if err := h.service.CreateTransaction(r.Context(), &tx); err != nil {
		h.writeError(w, r, "create transaction failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, tx)
}

// HandleAssignTransaction handles PUT /transactions/{id}/assignee.
func (h *Handler) HandleAssignTransaction(w http.ResponseWriter, r *http.Request) {
	var req AssigneeRequest
	if !h.decode(w, r, &req) {
		return
	}
	tx, err := h.service.AssignTransaction(r.Context(), chi.URLParam(r, "id"), req.Assignee)
	if err != nil {
		h.writeError(w, r, "assign transaction failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, tx)
}

// HandleCreateNote handles POST /notes.
func (h *Handler) HandleCreateNote(w http.ResponseWriter, r *http.Request) {
	var req NoteRequest
	if !h.decode(w, r, &req) {
		return
	}
	note := &models.Note{ID: req.ID, CaseID: req.CaseID, Title: req.Title, Body: req.Body, Tags: req.Tags}
	if err := h.service.CreateNote(r.Context(), note); err != nil {
		h.writeError(w, r, "create note failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toNoteResponse(note))
}

// HandleUpdateNote handles PATCH /notes/{id}.
func (h *Handler) HandleUpdateNote(w http.ResponseWriter, r *http.Request) {
	var req NoteUpdateRequest
	if !h.decode(w, r, &req) {
		return
	}
	note, err := h.service.UpdateNote(r.Context(), chi.URLParam(r, "id"), service.NoteUpdate{
		Title: req.Title,
		Body:  req.Body,
		Tags:  req.Tags,
	})
	if err != nil {
		h.writeError(w, r, "update note failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toNoteResponse(note))
}

// decode reads a JSON body keeping numbers as json.Number, so values reach
// the audit trail exactly as the client sent them.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(http.MaxBytesReader(w, r.Body, maxBodyBytes)); err != nil {
		httputil.WriteError(w, httputil.BadRequest("request body too large or unreadable"))
		return false
	}
	decoder := json.NewDecoder(&buf)
	decoder.UseNumber()
	if err := decoder.Decode(dst); err != nil {
		httputil.WriteError(w, httputil.BadRequest("invalid JSON body"))
		return false
	}
	return true
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		httputil.WriteError(w, httputil.BadRequest(err.Error()))
		return
	case errors.Is(err, sentinel.ErrNotFound):
		httputil.WriteError(w, err)
		return
	}
	ctx := r.Context()
	h.logger.ErrorContext(ctx, msg,
		"request_id", request.GetRequestID(ctx),
		"path", r.URL.Path,
		"error", err,
	)
	httputil.WriteError(w, err)
}

func toCaseResponse(c *models.Case) CaseResponse {
	resp := CaseResponse{ID: c.ID, Name: c.Name, DynamicData: map[string]any{}}
	if c.DynamicData != nil {
		resp.DynamicData = c.DynamicData.ToMap()
	}
	return resp
}

func toNoteResponse(n *models.Note) NoteResponse {
	tags := n.Tags
	if tags == nil {
		tags = []string{}
	}
	return NoteResponse{ID: n.ID, CaseID: n.CaseID, Title: n.Title, Body: n.Body, Tags: tags}
}
