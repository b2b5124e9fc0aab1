package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const orderColumns = `id, order_number, status, payment_status, payment_mode, total, order_time, fulfillment_applied_at, updated_at`

func scanOrder(row interface{ Scan(...interface{}) error }) (Order, error) {
	var i Order
	err := row.Scan(
		&i.ID,
		&i.OrderNumber,
		&i.Status,
		&i.PaymentStatus,
		&i.PaymentMode,
		&i.Total,
		&i.OrderTime,
		&i.FulfillmentAppliedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getOrder = `-- name: GetOrder :one
SELECT ` + orderColumns + `
FROM orders
WHERE id = $1
`

func (q *Queries) GetOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	row := q.db.QueryRow(ctx, getOrder, id)
	return scanOrder(row)
}

const getOrderForUpdate = `-- name: GetOrderForUpdate :one
SELECT ` + orderColumns + `
FROM orders
WHERE id = $1
FOR NO KEY UPDATE
`

func (q *Queries) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (Order, error) {
	row := q.db.QueryRow(ctx, getOrderForUpdate, id)
	return scanOrder(row)
}

const updateOrder = `-- name: UpdateOrder :one
UPDATE orders
SET status = $2,
    payment_status = $3,
    payment_mode = $4,
    total = $5,
    updated_at = now()
WHERE id = $1
RETURNING ` + orderColumns

type UpdateOrderParams struct {
	ID            uuid.UUID      `json:"id"`
	Status        OrderStatus    `json:"status"`
	PaymentStatus PaymentStatus  `json:"payment_status"`
	PaymentMode   pgtype.Text    `json:"payment_mode"`
	Total         pgtype.Numeric `json:"total"`
}

func (q *Queries) UpdateOrder(ctx context.Context, arg UpdateOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, updateOrder,
		arg.ID,
		string(arg.Status),
		string(arg.PaymentStatus),
		arg.PaymentMode,
		arg.Total,
	)
	return scanOrder(row)
}

const markFulfillmentApplied = `-- name: MarkFulfillmentApplied :one
UPDATE orders
SET fulfillment_applied_at = $2
WHERE id = $1 AND fulfillment_applied_at IS NULL
RETURNING ` + orderColumns

type MarkFulfillmentAppliedParams struct {
	ID        uuid.UUID `json:"id"`
	AppliedAt time.Time `json:"applied_at"`
}

// MarkFulfillmentApplied returns pgx.ErrNoRows when the marker is already set.
func (q *Queries) MarkFulfillmentApplied(ctx context.Context, arg MarkFulfillmentAppliedParams) (Order, error) {
	row := q.db.QueryRow(ctx, markFulfillmentApplied, arg.ID, arg.AppliedAt)
	return scanOrder(row)
}

const listOrderItems = `-- name: ListOrderItems :many
SELECT order_id, position, menu_item_id, name, quantity, unit_price
FROM order_items
WHERE order_id = $1
ORDER BY position
`

func (q *Queries) ListOrderItems(ctx context.Context, orderID uuid.UUID) ([]OrderItem, error) {
	rows, err := q.db.Query(ctx, listOrderItems, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []OrderItem{}
	for rows.Next() {
		var i OrderItem
		if err := rows.Scan(
			&i.OrderID,
			&i.Position,
			&i.MenuItemID,
			&i.Name,
			&i.Quantity,
			&i.UnitPrice,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const deleteOrderItems = `-- name: DeleteOrderItems :exec
DELETE FROM order_items
WHERE order_id = $1
`

func (q *Queries) DeleteOrderItems(ctx context.Context, orderID uuid.UUID) error {
	_, err := q.db.Exec(ctx, deleteOrderItems, orderID)
	return err
}

const createOrderItem = `-- name: CreateOrderItem :one
INSERT INTO order_items (order_id, position, menu_item_id, name, quantity, unit_price)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING order_id, position, menu_item_id, name, quantity, unit_price
`

type CreateOrderItemParams struct {
	OrderID    uuid.UUID      `json:"order_id"`
	Position   int32          `json:"position"`
	MenuItemID uuid.UUID      `json:"menu_item_id"`
	Name       string         `json:"name"`
	Quantity   int32          `json:"quantity"`
	UnitPrice  pgtype.Numeric `json:"unit_price"`
}

func (q *Queries) CreateOrderItem(ctx context.Context, arg CreateOrderItemParams) (OrderItem, error) {
	row := q.db.QueryRow(ctx, createOrderItem,
		arg.OrderID,
		arg.Position,
		arg.MenuItemID,
		arg.Name,
		arg.Quantity,
		arg.UnitPrice,
	)
	var i OrderItem
	err := row.Scan(
		&i.OrderID,
		&i.Position,
		&i.MenuItemID,
		&i.Name,
		&i.Quantity,
		&i.UnitPrice,
	)
	return i, err
}
