package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kiwari-pos/fulfillment/internal/sales"
	"github.com/kiwari-pos/fulfillment/internal/service"
	"github.com/sirupsen/logrus"
)

// SalesLedger defines the ledger methods needed by sales handlers.
// Satisfied by *sales.Ledger.
type SalesLedger interface {
	GetDay(ctx context.Context, date string) (sales.DailySales, error)
	ListDays(ctx context.Context, start, end string) ([]sales.DailySales, error)
	ResetDay(ctx context.Context, date string) (sales.DailySales, error)
	ArchiveDay(ctx context.Context, date string) (sales.ArchiveResult, error)
}

// OverrideManager defines the override methods needed by sales handlers.
// Satisfied by *sales.OverrideStore.
type OverrideManager interface {
	SetOverride(ctx context.Context, date, manualRevenue string) (sales.Override, error)
	GetOverride(ctx context.Context, date string) (sales.Override, error)
	ListOverrides(ctx context.Context, start, end string) ([]sales.Override, error)
}

// SalesHandler handles daily sales and revenue override endpoints.
type SalesHandler struct {
	ledger    SalesLedger
	overrides OverrideManager
	events    Publisher
	log       logrus.FieldLogger
}

// NewSalesHandler creates a new SalesHandler. events may be nil.
func NewSalesHandler(ledger SalesLedger, overrides OverrideManager, events Publisher, log logrus.FieldLogger) *SalesHandler {
	return &SalesHandler{ledger: ledger, overrides: overrides, events: events, log: log}
}

// RegisterRoutes registers read endpoints. Expected mount point: /sales
func (h *SalesHandler) RegisterRoutes(r chi.Router) {
	r.Get("/daily", h.ListDays)
	r.Get("/daily/{date}", h.GetDay)
	r.Get("/overrides", h.ListOverrides)
	r.Get("/overrides/{date}", h.GetOverride)
}

// RegisterAdminRoutes registers admin-only endpoints. Expected mount point: /sales
func (h *SalesHandler) RegisterAdminRoutes(r chi.Router) {
	r.Post("/daily/{date}/reset", h.ResetDay)
	r.Post("/daily/{date}/archive", h.ArchiveDay)
	r.Put("/overrides/{date}", h.SetOverride)
}

type overrideRequest struct {
	ManualRevenue string `json:"manual_revenue"`
}

type archiveResponse struct {
	sales.ArchiveResult
	HasDrifted bool `json:"drifted"`
}

// GetDay handles GET /sales/daily/{date}.
func (h *SalesHandler) GetDay(w http.ResponseWriter, r *http.Request) {
	day, err := h.ledger.GetDay(r.Context(), chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, h.log, "get daily sales", err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, day)
}

// ListDays handles GET /sales/daily?start_date=&end_date=.
func (h *SalesHandler) ListDays(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	days, err := h.ledger.ListDays(r.Context(), q.Get("start_date"), q.Get("end_date"))
	if err != nil {
		writeError(w, h.log, "list daily sales", err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, days)
}

// ResetDay handles POST /sales/daily/{date}/reset.
func (h *SalesHandler) ResetDay(w http.ResponseWriter, r *http.Request) {
	day, err := h.ledger.ResetDay(r.Context(), chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, h.log, "reset daily sales", err)
		return
	}
	h.publish(day)
	writeJSON(w, h.log, http.StatusOK, day)
}

// ArchiveDay handles POST /sales/daily/{date}/archive.
func (h *SalesHandler) ArchiveDay(w http.ResponseWriter, r *http.Request) {
	res, err := h.ledger.ArchiveDay(r.Context(), chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, h.log, "archive daily sales", err)
		return
	}
	h.publish(res.DailySales)
	writeJSON(w, h.log, http.StatusOK, archiveResponse{ArchiveResult: res, HasDrifted: res.Drifted()})
}

// SetOverride handles PUT /sales/overrides/{date}.
func (h *SalesHandler) SetOverride(w http.ResponseWriter, r *http.Request) {
	var req overrideRequest
	if !decodeJSON(w, r, h.log, &req) {
		return
	}
	o, err := h.overrides.SetOverride(r.Context(), chi.URLParam(r, "date"), req.ManualRevenue)
	if err != nil {
		writeError(w, h.log, "set revenue override", err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, o)
}

// GetOverride handles GET /sales/overrides/{date}.
func (h *SalesHandler) GetOverride(w http.ResponseWriter, r *http.Request) {
	o, err := h.overrides.GetOverride(r.Context(), chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, h.log, "get revenue override", err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, o)
}

// ListOverrides handles GET /sales/overrides?start_date=&end_date=.
func (h *SalesHandler) ListOverrides(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := h.overrides.ListOverrides(r.Context(), q.Get("start_date"), q.Get("end_date"))
	if err != nil {
		writeError(w, h.log, "list revenue overrides", err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, list)
}

func (h *SalesHandler) publish(day sales.DailySales) {
	if h.events != nil {
		h.events.Publish(service.TopicSales, service.EventSalesUpdated, day)
	}
}
