package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const listPaidOrders = `-- name: ListPaidOrders :many
SELECT id, order_time, total
FROM orders
WHERE payment_status = 'paid'
  AND order_time >= $1 AND order_time < $2
ORDER BY order_time, id
`

type ListPaidOrdersRow struct {
	ID        uuid.UUID      `json:"id"`
	OrderTime time.Time      `json:"order_time"`
	Total     pgtype.Numeric `json:"total"`
}

func (q *Queries) ListPaidOrders(ctx context.Context, arg OrderRangeParams) ([]ListPaidOrdersRow, error) {
	rows, err := q.db.Query(ctx, listPaidOrders, arg.Start, arg.End)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []ListPaidOrdersRow{}
	for rows.Next() {
		var i ListPaidOrdersRow
		if err := rows.Scan(&i.ID, &i.OrderTime, &i.Total); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listServedOrderItems = `-- name: ListServedOrderItems :many
SELECT o.id AS order_id, o.order_time, oi.position, oi.menu_item_id, oi.name, oi.quantity
FROM orders o
JOIN order_items oi ON oi.order_id = o.id
WHERE o.status = 'served'
  AND o.order_time >= $1 AND o.order_time < $2
ORDER BY o.order_time, o.id, oi.position
`

type ListServedOrderItemsRow struct {
	OrderID    uuid.UUID `json:"order_id"`
	OrderTime  time.Time `json:"order_time"`
	Position   int32     `json:"position"`
	MenuItemID uuid.UUID `json:"menu_item_id"`
	Name       string    `json:"name"`
	Quantity   int32     `json:"quantity"`
}

func (q *Queries) ListServedOrderItems(ctx context.Context, arg OrderRangeParams) ([]ListServedOrderItemsRow, error) {
	rows, err := q.db.Query(ctx, listServedOrderItems, arg.Start, arg.End)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []ListServedOrderItemsRow{}
	for rows.Next() {
		var i ListServedOrderItemsRow
		if err := rows.Scan(
			&i.OrderID,
			&i.OrderTime,
			&i.Position,
			&i.MenuItemID,
			&i.Name,
			&i.Quantity,
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
