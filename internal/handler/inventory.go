package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kiwari-pos/fulfillment/internal/database"
	"github.com/kiwari-pos/fulfillment/internal/inventory"
	"github.com/kiwari-pos/fulfillment/internal/service"
	"github.com/sirupsen/logrus"
)

// InventoryLedger defines the ledger methods needed by inventory handlers.
// Satisfied by *inventory.Ledger.
type InventoryLedger interface {
	Adjust(ctx context.Context, batch []inventory.Adjustment) ([]database.MenuItemStock, error)
	AdjustStrict(ctx context.Context, batch []inventory.Adjustment) ([]database.MenuItemStock, error)
	SetAbsolute(ctx context.Context, batch []inventory.StockSetting) ([]database.MenuItemStock, error)
	Snapshot(ctx context.Context) ([]database.MenuItemStock, error)
	LowStock(ctx context.Context) ([]database.MenuItemStock, error)
	Availability(ctx context.Context) ([]inventory.Availability, error)
}

// InventoryHandler handles stock and menu availability endpoints.
type InventoryHandler struct {
	ledger InventoryLedger
	events Publisher
	log    logrus.FieldLogger
}

// NewInventoryHandler creates a new InventoryHandler. events may be nil.
func NewInventoryHandler(ledger InventoryLedger, events Publisher, log logrus.FieldLogger) *InventoryHandler {
	return &InventoryHandler{ledger: ledger, events: events, log: log}
}

// RegisterRoutes registers read and adjust endpoints at the root router.
func (h *InventoryHandler) RegisterRoutes(r chi.Router) {
	r.Get("/inventory", h.Snapshot)
	r.Get("/inventory/low-stock", h.LowStock)
	r.Post("/inventory/adjust", h.Adjust)
	r.Get("/menu/availability", h.Availability)
}

// RegisterAdminRoutes registers admin-only endpoints at the root router.
func (h *InventoryHandler) RegisterAdminRoutes(r chi.Router) {
	r.Put("/inventory/stock", h.SetStock)
}

type adjustRequest struct {
	Items  []inventory.Adjustment `json:"items"`
	Strict bool                   `json:"strict"`
}

type setStockRequest struct {
	Items []inventory.StockSetting `json:"items"`
}

// Snapshot handles GET /inventory.
func (h *InventoryHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	rows, err := h.ledger.Snapshot(r.Context())
	if err != nil {
		writeError(w, h.log, "inventory snapshot", err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, rows)
}

// LowStock handles GET /inventory/low-stock.
func (h *InventoryHandler) LowStock(w http.ResponseWriter, r *http.Request) {
	rows, err := h.ledger.LowStock(r.Context())
	if err != nil {
		writeError(w, h.log, "low stock", err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, rows)
}

// Availability handles GET /menu/availability.
func (h *InventoryHandler) Availability(w http.ResponseWriter, r *http.Request) {
	rows, err := h.ledger.Availability(r.Context())
	if err != nil {
		writeError(w, h.log, "menu availability", err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, rows)
}

// Adjust handles POST /inventory/adjust.
func (h *InventoryHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if !decodeJSON(w, r, h.log, &req) {
		return
	}
	if len(req.Items) == 0 {
		writeJSON(w, h.log, http.StatusBadRequest, map[string]string{"error": "items are required"})
		return
	}

	adjust := h.ledger.Adjust
	if req.Strict {
		adjust = h.ledger.AdjustStrict
	}
	rows, err := adjust(r.Context(), req.Items)
	if err != nil {
		writeError(w, h.log, "adjust stock", err)
		return
	}
	h.publish(rows)
	writeJSON(w, h.log, http.StatusOK, rows)
}

// SetStock handles PUT /inventory/stock.
func (h *InventoryHandler) SetStock(w http.ResponseWriter, r *http.Request) {
	var req setStockRequest
	if !decodeJSON(w, r, h.log, &req) {
		return
	}
	if len(req.Items) == 0 {
		writeJSON(w, h.log, http.StatusBadRequest, map[string]string{"error": "items are required"})
		return
	}

	rows, err := h.ledger.SetAbsolute(r.Context(), req.Items)
	if err != nil {
		writeError(w, h.log, "set stock", err)
		return
	}
	h.publish(rows)
	writeJSON(w, h.log, http.StatusOK, rows)
}

func (h *InventoryHandler) publish(rows []database.MenuItemStock) {
	if h.events != nil {
		h.events.Publish(service.TopicInventory, service.EventInventoryAdjusted, rows)
	}
}
