package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kiwari-pos/fulfillment/internal/apperr"
	"github.com/kiwari-pos/fulfillment/internal/clock"
	"github.com/kiwari-pos/fulfillment/internal/database"
	"github.com/kiwari-pos/fulfillment/internal/enum"
	"github.com/kiwari-pos/fulfillment/internal/inventory"
	"github.com/kiwari-pos/fulfillment/internal/sales"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Event types published after a transition commits.
const (
	EventOrderTransitioned = "order.transitioned"
	EventInventoryAdjusted = "inventory.adjusted"
	EventSalesUpdated      = "sales.updated"
)

// Event topics.
const (
	TopicOrders    = "orders"
	TopicInventory = "inventory"
	TopicSales     = "sales"
)

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// OrderStore defines the DB methods needed to transition orders.
// Satisfied by *database.Queries (and its WithTx variant).
type OrderStore interface {
	GetOrderForUpdate(ctx context.Context, id uuid.UUID) (database.Order, error)
	UpdateOrder(ctx context.Context, arg database.UpdateOrderParams) (database.Order, error)
	MarkFulfillmentApplied(ctx context.Context, arg database.MarkFulfillmentAppliedParams) (database.Order, error)
	ListOrderItems(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
	DeleteOrderItems(ctx context.Context, orderID uuid.UUID) error
	CreateOrderItem(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error)
}

// NewOrderStore creates an OrderStore from a DBTX (pool or tx).
// This allows the service to create store instances from transactions.
type NewOrderStore func(db database.DBTX) OrderStore

// SalesRecorder adds a served and paid order to the daily ledger inside the
// transition's transaction. Satisfied by *sales.Ledger.
type SalesRecorder interface {
	RecordServedAndPaidTx(ctx context.Context, tx pgx.Tx, date string, total decimal.Decimal) (sales.DailySales, error)
}

// StockAdjuster subtracts served quantities. Satisfied by *inventory.Ledger.
type StockAdjuster interface {
	Adjust(ctx context.Context, batch []inventory.Adjustment) ([]database.MenuItemStock, error)
	AdjustStrict(ctx context.Context, batch []inventory.Adjustment) ([]database.MenuItemStock, error)
}

// Invalidator drops cached query results by key family.
type Invalidator interface {
	Invalidate(families ...string)
}

// Publisher pushes events to dashboard subscribers.
type Publisher interface {
	Publish(topic, eventType string, payload any)
}

// TransitionRequest is the raw input for Transition. Empty fields are left
// unchanged. A nil Items slice keeps the current items; a non-nil one
// replaces them.
type TransitionRequest struct {
	OrderID       string
	Status        string
	PaymentStatus string
	PaymentMode   string
	Items         []TransitionItemRequest
	Total         string
}

// TransitionItemRequest is a single order line.
type TransitionItemRequest struct {
	MenuItemID string
	Name       string
	Quantity   int32
	UnitPrice  string
}

// TransitionResult is the committed order and the side effects applied.
type TransitionResult struct {
	Order              database.Order
	Items              []database.OrderItem
	PreviousStatus     database.OrderStatus
	FulfillmentApplied bool
	Sales              *sales.DailySales
	Stock              []database.MenuItemStock
}

// allowedTransitions defines valid status transitions.
// Key is current status, value is the set of statuses it can transition to.
// served and cancelled are terminal.
var allowedTransitions = map[database.OrderStatus][]database.OrderStatus{
	database.OrderStatusPending:   {database.OrderStatusPreparing, database.OrderStatusCancelled},
	database.OrderStatusPreparing: {database.OrderStatusReady, database.OrderStatusCancelled},
	database.OrderStatusReady:     {database.OrderStatusServed, database.OrderStatusCancelled},
}

// OrderService runs the order state machine and its ledger side effects.
type OrderService struct {
	pool        TxBeginner
	newStore    NewOrderStore
	sales       SalesRecorder
	stock       StockAdjuster
	cache       Invalidator
	events      Publisher
	clock       *clock.Clock
	log         logrus.FieldLogger
	strictStock bool
}

// Option configures an OrderService.
type Option func(*OrderService)

// WithPublisher sets the event publisher. Without one, events are dropped.
func WithPublisher(p Publisher) Option {
	return func(s *OrderService) { s.events = p }
}

// WithStrictStock makes served transitions refuse to drive stock negative
// instead of clamping.
func WithStrictStock(strict bool) Option {
	return func(s *OrderService) { s.strictStock = strict }
}

// NewOrderService creates a new OrderService.
func NewOrderService(pool TxBeginner, newStore NewOrderStore, salesLedger SalesRecorder, stock StockAdjuster, cache Invalidator, clk *clock.Clock, log logrus.FieldLogger, opts ...Option) *OrderService {
	s := &OrderService{
		pool:     pool,
		newStore: newStore,
		sales:    salesLedger,
		stock:    stock,
		cache:    cache,
		clock:    clk,
		log:      log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Transition validates the request, writes the order and, when the order
// becomes served for the first time, applies the ledger side effects.
//
// The order write, the fulfillment marker and the sales increment commit
// together. The stock subtraction runs after that commit; if it fails the
// order stays served and a *apperr.PartialError is returned alongside the
// committed result.
func (s *OrderService) Transition(ctx context.Context, req TransitionRequest) (*TransitionResult, error) {
	in, err := parseTransition(req)
	if err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, apperr.FromStore("begin tx", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	current, err := store.GetOrderForUpdate(ctx, in.orderID)
	if err != nil {
		return nil, apperr.FromStore("order", err)
	}

	next := current.Status
	if in.status != "" {
		if err := validateStatusTransition(current.Status, in.status); err != nil {
			return nil, err
		}
		next = in.status
	}

	params := database.UpdateOrderParams{
		ID:            current.ID,
		Status:        next,
		PaymentStatus: current.PaymentStatus,
		PaymentMode:   current.PaymentMode,
		Total:         current.Total,
	}
	if in.paymentStatus != "" {
		params.PaymentStatus = in.paymentStatus
	}
	if in.paymentMode != "" {
		params.PaymentMode = pgtype.Text{String: in.paymentMode, Valid: true}
	}

	if in.items != nil {
		if current.FulfillmentApplied() {
			return nil, apperr.Conflict("items of a fulfilled order cannot change")
		}
		if err := store.DeleteOrderItems(ctx, current.ID); err != nil {
			return nil, apperr.FromStore("order items", err)
		}
		itemsTotal := decimal.Zero
		for i, item := range in.items {
			item.OrderID = current.ID
			item.Position = int32(i)
			if _, err := store.CreateOrderItem(ctx, item); err != nil {
				return nil, apperr.FromStore("order items", err)
			}
			itemsTotal = itemsTotal.Add(database.NumericToDecimal(item.UnitPrice).Mul(decimal.NewFromInt32(item.Quantity)))
		}
		params.Total = database.DecimalToNumeric(itemsTotal)
	}
	if in.total != nil {
		params.Total = database.DecimalToNumeric(*in.total)
	}

	updated, err := store.UpdateOrder(ctx, params)
	if err != nil {
		return nil, apperr.FromStore("order", err)
	}

	result := &TransitionResult{PreviousStatus: current.Status}

	if in.status == database.OrderStatusServed {
		marked, err := store.MarkFulfillmentApplied(ctx, database.MarkFulfillmentAppliedParams{
			ID:        updated.ID,
			AppliedAt: s.clock.Now(),
		})
		switch {
		case err == nil:
			result.FulfillmentApplied = true
			updated = marked
		case errors.Is(err, pgx.ErrNoRows):
			// already applied by an earlier served transition
		default:
			return nil, apperr.FromStore("order", err)
		}
	}

	if result.FulfillmentApplied && updated.PaymentStatus == database.PaymentStatusPaid {
		// keyed by order day, the same day ArchiveDay recounts it under
		rec, err := s.sales.RecordServedAndPaidTx(ctx, tx, s.clock.DayOf(updated.OrderTime), database.NumericToDecimal(updated.Total))
		if err != nil {
			return nil, fmt.Errorf("record daily sales: %w", err)
		}
		result.Sales = &rec
	}

	items, err := store.ListOrderItems(ctx, updated.ID)
	if err != nil {
		return nil, apperr.FromStore("order items", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, apperr.FromStore("commit transition", err)
	}

	result.Order = updated
	result.Items = items

	logger := s.log.WithFields(logrus.Fields{
		"order_id": updated.ID,
		"from":     current.Status,
		"to":       updated.Status,
	})

	var partial error
	if result.FulfillmentApplied && len(items) > 0 {
		stock, err := s.subtractServed(ctx, items)
		if err != nil {
			logger.WithError(err).Error("inventory adjustment failed after order was served")
			partial = &apperr.PartialError{Op: "inventory adjustment", Err: err}
		} else {
			result.Stock = stock
		}
	}

	families := []string{sales.FamilyReport, sales.FamilyDashboard}
	if result.FulfillmentApplied {
		families = append(families, inventory.FamilyInventory, inventory.FamilyMenu)
	}
	s.cache.Invalidate(families...)

	s.publish(result)
	logger.WithField("fulfillment_applied", result.FulfillmentApplied).Info("order transitioned")

	return result, partial
}

func (s *OrderService) subtractServed(ctx context.Context, items []database.OrderItem) ([]database.MenuItemStock, error) {
	batch := make([]inventory.Adjustment, len(items))
	for i, item := range items {
		batch[i] = inventory.Adjustment{
			MenuItemID: item.MenuItemID.String(),
			Quantity:   fmt.Sprint(item.Quantity),
			Direction:  enum.DirectionSubtract,
		}
	}
	if s.strictStock {
		return s.stock.AdjustStrict(ctx, batch)
	}
	return s.stock.Adjust(ctx, batch)
}

func (s *OrderService) publish(result *TransitionResult) {
	if s.events == nil {
		return
	}
	s.events.Publish(TopicOrders, EventOrderTransitioned, map[string]any{
		"order_id":        result.Order.ID,
		"order_number":    result.Order.OrderNumber,
		"previous_status": result.PreviousStatus,
		"status":          result.Order.Status,
		"payment_status":  result.Order.PaymentStatus,
	})
	if result.Stock != nil {
		s.events.Publish(TopicInventory, EventInventoryAdjusted, result.Stock)
	}
	if result.Sales != nil {
		s.events.Publish(TopicSales, EventSalesUpdated, result.Sales)
	}
}

// validateStatusTransition checks if the transition from current to next is
// allowed. Repeating the current status is accepted and changes nothing.
func validateStatusTransition(current, next database.OrderStatus) error {
	if current == next {
		return nil
	}
	for _, s := range allowedTransitions[current] {
		if s == next {
			return nil
		}
	}
	return apperr.Conflict("cannot transition from %s to %s", current, next)
}

type transitionInput struct {
	orderID       uuid.UUID
	status        database.OrderStatus
	paymentStatus database.PaymentStatus
	paymentMode   string
	items         []database.CreateOrderItemParams
	total         *decimal.Decimal
}

func parseTransition(req TransitionRequest) (transitionInput, error) {
	var in transitionInput

	id, err := uuid.Parse(strings.TrimSpace(req.OrderID))
	if err != nil {
		return in, apperr.Validation("order_id", "invalid order id")
	}
	in.orderID = id

	if req.Status != "" {
		st := database.OrderStatus(req.Status)
		if !isValidOrderStatus(st) {
			return in, apperr.Validation("status", "invalid status %q", req.Status)
		}
		in.status = st
	}

	switch req.PaymentStatus {
	case "":
	case enum.PaymentStatusPending, enum.PaymentStatusPaid:
		in.paymentStatus = database.PaymentStatus(req.PaymentStatus)
	default:
		return in, apperr.Validation("payment_status", "invalid payment status %q", req.PaymentStatus)
	}

	switch req.PaymentMode {
	case "":
	case enum.PaymentModeCash, enum.PaymentModeOnline:
		in.paymentMode = req.PaymentMode
	default:
		return in, apperr.Validation("payment_mode", "invalid payment mode %q", req.PaymentMode)
	}

	if req.Items != nil {
		in.items = make([]database.CreateOrderItemParams, len(req.Items))
		for i, item := range req.Items {
			field := fmt.Sprintf("items[%d]", i)
			menuItemID, err := uuid.Parse(strings.TrimSpace(item.MenuItemID))
			if err != nil {
				return in, apperr.Validation(field+".menu_item_id", "invalid id")
			}
			if item.Quantity <= 0 {
				return in, apperr.Validation(field+".quantity", "must be > 0")
			}
			price, err := decimal.NewFromString(strings.TrimSpace(item.UnitPrice))
			if err != nil || price.IsNegative() {
				return in, apperr.Validation(field+".unit_price", "must be a non-negative decimal")
			}
			in.items[i] = database.CreateOrderItemParams{
				MenuItemID: menuItemID,
				Name:       item.Name,
				Quantity:   item.Quantity,
				UnitPrice:  database.DecimalToNumeric(price),
			}
		}
	}

	if req.Total != "" {
		total, err := decimal.NewFromString(strings.TrimSpace(req.Total))
		if err != nil || total.IsNegative() {
			return in, apperr.Validation("total", "must be a non-negative decimal")
		}
		in.total = &total
	}

	if in.status == "" && in.paymentStatus == "" && in.paymentMode == "" && in.items == nil && in.total == nil {
		return in, apperr.Validation("", "nothing to update")
	}
	return in, nil
}

func isValidOrderStatus(s database.OrderStatus) bool {
	switch s {
	case database.OrderStatusPending,
		database.OrderStatusPreparing,
		database.OrderStatusReady,
		database.OrderStatusServed,
		database.OrderStatusCancelled:
		return true
	}
	return false
}
