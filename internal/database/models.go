package database

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPreparing OrderStatus = "preparing"
	OrderStatusReady     OrderStatus = "ready"
	OrderStatusServed    OrderStatus = "served"
	OrderStatusCancelled OrderStatus = "cancelled"
)

func (e *OrderStatus) Scan(src interface{}) error {
	switch s := src.(type) {
	case []byte:
		*e = OrderStatus(s)
	case string:
		*e = OrderStatus(s)
	default:
		return fmt.Errorf("unsupported scan type for OrderStatus: %T", src)
	}
	return nil
}

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
)

func (e *PaymentStatus) Scan(src interface{}) error {
	switch s := src.(type) {
	case []byte:
		*e = PaymentStatus(s)
	case string:
		*e = PaymentStatus(s)
	default:
		return fmt.Errorf("unsupported scan type for PaymentStatus: %T", src)
	}
	return nil
}

type Order struct {
	ID                   uuid.UUID          `json:"id"`
	OrderNumber          string             `json:"order_number"`
	Status               OrderStatus        `json:"status"`
	PaymentStatus        PaymentStatus      `json:"payment_status"`
	PaymentMode          pgtype.Text        `json:"payment_mode"`
	Total                pgtype.Numeric     `json:"total"`
	OrderTime            time.Time          `json:"order_time"`
	FulfillmentAppliedAt pgtype.Timestamptz `json:"fulfillment_applied_at"`
	UpdatedAt            time.Time          `json:"updated_at"`
}

type OrderItem struct {
	OrderID    uuid.UUID      `json:"order_id"`
	Position   int32          `json:"position"`
	MenuItemID uuid.UUID      `json:"menu_item_id"`
	Name       string         `json:"name"`
	Quantity   int32          `json:"quantity"`
	UnitPrice  pgtype.Numeric `json:"unit_price"`
}

type MenuItemStock struct {
	MenuItemID        uuid.UUID          `json:"menu_item_id"`
	CurrentStock      int32              `json:"current_stock"`
	LowStockThreshold int32              `json:"low_stock_threshold"`
	LastRestocked     pgtype.Timestamptz `json:"last_restocked"`
}

type DailySale struct {
	SaleDate     pgtype.Date    `json:"sale_date"`
	TotalOrders  int32          `json:"total_orders"`
	TotalRevenue pgtype.Numeric `json:"total_revenue"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

type RevenueOverride struct {
	OverrideDate    pgtype.Date    `json:"override_date"`
	ManualRevenue   pgtype.Numeric `json:"manual_revenue"`
	OriginalRevenue pgtype.Numeric `json:"original_revenue"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// FulfillmentApplied reports whether the served side effects have run.
func (o Order) FulfillmentApplied() bool {
	return o.FulfillmentAppliedAt.Valid
}
