package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiwari-pos/fulfillment/internal/apperr"
	"github.com/kiwari-pos/fulfillment/internal/database"
	"github.com/kiwari-pos/fulfillment/internal/sales"
	"github.com/kiwari-pos/fulfillment/internal/service"
	"github.com/sirupsen/logrus"
)

// OrderTransitioner defines the service methods needed by order handlers.
// Satisfied by *service.OrderService; narrow interface for testability.
type OrderTransitioner interface {
	Transition(ctx context.Context, req service.TransitionRequest) (*service.TransitionResult, error)
}

// OrderReader defines the database methods needed by the order detail handler.
// Satisfied by *database.Queries.
type OrderReader interface {
	GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	ListOrderItems(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
}

// OrderHandler handles order endpoints.
type OrderHandler struct {
	svc   OrderTransitioner
	store OrderReader
	log   logrus.FieldLogger
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(svc OrderTransitioner, store OrderReader, log logrus.FieldLogger) *OrderHandler {
	return &OrderHandler{svc: svc, store: store, log: log}
}

// RegisterRoutes registers order endpoints. Expected mount point: /orders
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Get("/{id}", h.Get)
	r.Patch("/{id}", h.Transition)
}

// --- Request / Response types ---

type transitionRequest struct {
	Status        string                  `json:"status"`
	PaymentStatus string                  `json:"payment_status"`
	PaymentMode   string                  `json:"payment_mode"`
	Items         []transitionItemRequest `json:"items"`
	Total         string                  `json:"total"`
}

type transitionItemRequest struct {
	MenuItemID string `json:"menu_item_id"`
	Name       string `json:"name"`
	Quantity   int32  `json:"quantity"`
	UnitPrice  string `json:"unit_price"`
}

type orderResponse struct {
	ID                   uuid.UUID           `json:"id"`
	OrderNumber          string              `json:"order_number"`
	Status               string              `json:"status"`
	PaymentStatus        string              `json:"payment_status"`
	PaymentMode          *string             `json:"payment_mode"`
	Total                string              `json:"total"`
	OrderTime            time.Time           `json:"order_time"`
	FulfillmentAppliedAt *time.Time          `json:"fulfillment_applied_at"`
	UpdatedAt            time.Time           `json:"updated_at"`
	Items                []orderItemResponse `json:"items"`
}

type orderItemResponse struct {
	MenuItemID uuid.UUID `json:"menu_item_id"`
	Name       string    `json:"name"`
	Quantity   int32     `json:"quantity"`
	UnitPrice  string    `json:"unit_price"`
}

type transitionResponse struct {
	Order              orderResponse            `json:"order"`
	PreviousStatus     string                   `json:"previous_status"`
	FulfillmentApplied bool                     `json:"fulfillment_applied"`
	DailySales         *sales.DailySales        `json:"daily_sales,omitempty"`
	Stock              []database.MenuItemStock `json:"stock,omitempty"`
	Error              string                   `json:"error,omitempty"`
}

// --- Handlers ---

// Get handles GET /orders/{id}.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, h.log, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	order, err := h.store.GetOrder(r.Context(), id)
	if err != nil {
		writeError(w, h.log, "get order", apperr.FromStore("order", err))
		return
	}
	items, err := h.store.ListOrderItems(r.Context(), id)
	if err != nil {
		writeError(w, h.log, "list order items", apperr.FromStore("order items", err))
		return
	}

	writeJSON(w, h.log, http.StatusOK, toOrderResponse(order, items))
}

// Transition handles PATCH /orders/{id}. Without a status the request only
// patches payment, items or total.
func (h *OrderHandler) Transition(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if !decodeJSON(w, r, h.log, &req) {
		return
	}

	svcReq := service.TransitionRequest{
		OrderID:       chi.URLParam(r, "id"),
		Status:        req.Status,
		PaymentStatus: req.PaymentStatus,
		PaymentMode:   req.PaymentMode,
		Total:         req.Total,
	}
	if req.Items != nil {
		svcReq.Items = make([]service.TransitionItemRequest, len(req.Items))
		for i, item := range req.Items {
			svcReq.Items[i] = service.TransitionItemRequest{
				MenuItemID: item.MenuItemID,
				Name:       item.Name,
				Quantity:   item.Quantity,
				UnitPrice:  item.UnitPrice,
			}
		}
	}

	result, err := h.svc.Transition(r.Context(), svcReq)
	if err != nil && !errors.Is(err, apperr.ErrPartial) {
		writeError(w, h.log, "transition order", err)
		return
	}

	resp := transitionResponse{
		Order:              toOrderResponse(result.Order, result.Items),
		PreviousStatus:     string(result.PreviousStatus),
		FulfillmentApplied: result.FulfillmentApplied,
		DailySales:         result.Sales,
		Stock:              result.Stock,
	}
	status := http.StatusOK
	if err != nil {
		// order committed; the inventory side effect did not
		status = http.StatusMultiStatus
		resp.Error = err.Error()
	}
	writeJSON(w, h.log, status, resp)
}

// --- Helpers ---

func toOrderResponse(o database.Order, items []database.OrderItem) orderResponse {
	resp := orderResponse{
		ID:            o.ID,
		OrderNumber:   o.OrderNumber,
		Status:        string(o.Status),
		PaymentStatus: string(o.PaymentStatus),
		Total:         database.NumericToDecimal(o.Total).StringFixed(2),
		OrderTime:     o.OrderTime,
		UpdatedAt:     o.UpdatedAt,
		Items:         make([]orderItemResponse, len(items)),
	}
	if o.PaymentMode.Valid {
		mode := o.PaymentMode.String
		resp.PaymentMode = &mode
	}
	if o.FulfillmentAppliedAt.Valid {
		at := o.FulfillmentAppliedAt.Time
		resp.FulfillmentAppliedAt = &at
	}
	for i, item := range items {
		resp.Items[i] = orderItemResponse{
			MenuItemID: item.MenuItemID,
			Name:       item.Name,
			Quantity:   item.Quantity,
			UnitPrice:  database.NumericToDecimal(item.UnitPrice).StringFixed(2),
		}
	}
	return resp
}
