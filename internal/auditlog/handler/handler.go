// Package handler exposes the audit trail over HTTP for administrators.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"casetrail/internal/auditlog/service"
	audit "casetrail/pkg/platform/audit"
	"casetrail/pkg/platform/httputil"
	"casetrail/pkg/platform/middleware/admin"
	request "casetrail/pkg/platform/middleware/request"
)

// Service lists audit events.
type Service interface {
	List(ctx context.Context, q service.Query) ([]audit.AuditEvent, error)
}

// Handler serves the admin audit endpoints.
type Handler struct {
	service    Service
	logger     *slog.Logger
	adminToken string
}

// New constructs the handler.
func New(service Service, logger *slog.Logger, adminToken string) *Handler {
	return &Handler{service: service, logger: logger, adminToken: adminToken}
}

// Register mounts the admin audit routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Route("/admin/audit", func(r chi.Router) {
		r.Use(request.RequestID)
		r.Use(admin.RequireAdminToken(h.adminToken, h.logger))
		r.Get("/events", h.HandleListEvents)
	})
}

// EventsResponse is the body of GET /admin/audit/events.
type EventsResponse struct {
	Events []audit.AuditEvent `json:"events"`
	Count  int                `json:"count"`
}

// HandleListEvents handles GET /admin/audit/events.
func (h *Handler) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)
	start := time.Now()

	q := service.Query{
		BusinessObjectType: audit.BusinessObjectType(r.URL.Query().Get("business_object_type")),
		BusinessObjectID:   r.URL.Query().Get("business_object_id"),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			httputil.WriteError(w, httputil.BadRequest("limit must be a positive integer"))
			return
		}
		q.Limit = limit
	}

	events, err := h.service.List(ctx, q)
	if err != nil {
		if errors.Is(err, service.ErrInvalidQuery) {
			httputil.WriteError(w, httputil.BadRequest(err.Error()))
			return
		}
		h.logger.ErrorContext(ctx, "list audit events failed",
			"request_id", requestID,
			"business_object_type", q.BusinessObjectType,
			"business_object_id", q.BusinessObjectID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	if events == nil {
		events = []audit.AuditEvent{}
	}

	h.logger.DebugContext(ctx, "audit events listed",
		"request_id", requestID,
		"count", len(events),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, EventsResponse{Events: events, Count: len(events)})
}
