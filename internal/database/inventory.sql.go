package database

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const stockColumns = `menu_item_id, current_stock, low_stock_threshold, last_restocked`

func scanStock(row interface{ Scan(...interface{}) error }) (MenuItemStock, error) {
	var i MenuItemStock
	err := row.Scan(
		&i.MenuItemID,
		&i.CurrentStock,
		&i.LowStockThreshold,
		&i.LastRestocked,
	)
	return i, err
}

const adjustStock = `-- name: AdjustStock :one
UPDATE menu_item_stock
SET current_stock = GREATEST(0, current_stock + $2),
    last_restocked = $3
WHERE menu_item_id = $1
RETURNING ` + stockColumns

type AdjustStockParams struct {
	MenuItemID uuid.UUID `json:"menu_item_id"`
	Delta      int32     `json:"delta"`
	AdjustedAt time.Time `json:"adjusted_at"`
}

// AdjustStock applies a signed delta clamped at zero in a single statement.
func (q *Queries) AdjustStock(ctx context.Context, arg AdjustStockParams) (MenuItemStock, error) {
	row := q.db.QueryRow(ctx, adjustStock, arg.MenuItemID, arg.Delta, arg.AdjustedAt)
	return scanStock(row)
}

const subtractStockIfAvailable = `-- name: SubtractStockIfAvailable :one
UPDATE menu_item_stock
SET current_stock = current_stock - $2,
    last_restocked = $3
WHERE menu_item_id = $1 AND current_stock >= $2
RETURNING ` + stockColumns

type SubtractStockIfAvailableParams struct {
	MenuItemID uuid.UUID `json:"menu_item_id"`
	Quantity   int32     `json:"quantity"`
	AdjustedAt time.Time `json:"adjusted_at"`
}

// SubtractStockIfAvailable returns pgx.ErrNoRows when the item is missing or
// holds less than the requested quantity.
func (q *Queries) SubtractStockIfAvailable(ctx context.Context, arg SubtractStockIfAvailableParams) (MenuItemStock, error) {
	row := q.db.QueryRow(ctx, subtractStockIfAvailable, arg.MenuItemID, arg.Quantity, arg.AdjustedAt)
	return scanStock(row)
}

const setStock = `-- name: SetStock :one
INSERT INTO menu_item_stock (menu_item_id, current_stock, last_restocked)
VALUES ($1, GREATEST(0, $2::int), $3)
ON CONFLICT (menu_item_id) DO UPDATE
SET current_stock = EXCLUDED.current_stock,
    last_restocked = EXCLUDED.last_restocked
RETURNING ` + stockColumns

type SetStockParams struct {
	MenuItemID uuid.UUID `json:"menu_item_id"`
	Stock      int32     `json:"stock"`
	AdjustedAt time.Time `json:"adjusted_at"`
}

func (q *Queries) SetStock(ctx context.Context, arg SetStockParams) (MenuItemStock, error) {
	row := q.db.QueryRow(ctx, setStock, arg.MenuItemID, arg.Stock, arg.AdjustedAt)
	return scanStock(row)
}

const getStock = `-- name: GetStock :one
SELECT ` + stockColumns + `
FROM menu_item_stock
WHERE menu_item_id = $1
`

func (q *Queries) GetStock(ctx context.Context, menuItemID uuid.UUID) (MenuItemStock, error) {
	row := q.db.QueryRow(ctx, getStock, menuItemID)
	return scanStock(row)
}

const listStock = `-- name: ListStock :many
SELECT ` + stockColumns + `
FROM menu_item_stock
ORDER BY menu_item_id
`

func (q *Queries) ListStock(ctx context.Context) ([]MenuItemStock, error) {
	return q.queryStock(ctx, listStock)
}

const listLowStock = `-- name: ListLowStock :many
SELECT ` + stockColumns + `
FROM menu_item_stock
WHERE current_stock <= low_stock_threshold
ORDER BY current_stock, menu_item_id
`

func (q *Queries) ListLowStock(ctx context.Context) ([]MenuItemStock, error) {
	return q.queryStock(ctx, listLowStock)
}

func (q *Queries) queryStock(ctx context.Context, sql string) ([]MenuItemStock, error) {
	rows, err := q.db.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []MenuItemStock{}
	for rows.Next() {
		i, err := scanStock(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
