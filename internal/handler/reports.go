package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/kiwari-pos/fulfillment/internal/report"
	"github.com/sirupsen/logrus"
)

// ReportBuilder defines the aggregator methods needed by report handlers.
// Satisfied by *report.Aggregator.
type ReportBuilder interface {
	Report(ctx context.Context, start, end string, applyOverrides bool) (report.Summary, error)
	Today(ctx context.Context) (report.TodaySummary, error)
}

// ReportsHandler handles report endpoints.
type ReportsHandler struct {
	reports ReportBuilder
	log     logrus.FieldLogger
}

// NewReportsHandler creates a new ReportsHandler.
func NewReportsHandler(reports ReportBuilder, log logrus.FieldLogger) *ReportsHandler {
	return &ReportsHandler{reports: reports, log: log}
}

// RegisterRoutes registers report endpoints. Expected mount point: /reports
func (h *ReportsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/summary", h.Summary)
	r.Get("/today", h.Today)
}

// Summary handles GET /reports/summary?start_date=&end_date=&overrides=true.
func (h *ReportsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("start_date") == "" || q.Get("end_date") == "" {
		writeJSON(w, h.log, http.StatusBadRequest, map[string]string{"error": "start_date and end_date are required"})
		return
	}

	applyOverrides := false
	if s := q.Get("overrides"); s != "" {
		v, err := strconv.ParseBool(s)
		if err != nil {
			writeJSON(w, h.log, http.StatusBadRequest, map[string]string{"error": "overrides must be true or false"})
			return
		}
		applyOverrides = v
	}

	summary, err := h.reports.Report(r.Context(), q.Get("start_date"), q.Get("end_date"), applyOverrides)
	if err != nil {
		writeError(w, h.log, "report summary", err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, summary)
}

// Today handles GET /reports/today.
func (h *ReportsHandler) Today(w http.ResponseWriter, r *http.Request) {
	today, err := h.reports.Today(r.Context())
	if err != nil {
		writeError(w, h.log, "today summary", err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, today)
}
