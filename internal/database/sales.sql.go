package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

const dailySaleColumns = `sale_date, total_orders, total_revenue, updated_at`

func scanDailySale(row interface{ Scan(...interface{}) error }) (DailySale, error) {
	var i DailySale
	err := row.Scan(
		&i.SaleDate,
		&i.TotalOrders,
		&i.TotalRevenue,
		&i.UpdatedAt,
	)
	return i, err
}

const incrementDailySales = `-- name: IncrementDailySales :one
INSERT INTO daily_sales (sale_date, total_orders, total_revenue, updated_at)
VALUES ($1, 1, $2, now())
ON CONFLICT (sale_date) DO UPDATE
SET total_orders = daily_sales.total_orders + 1,
    total_revenue = daily_sales.total_revenue + EXCLUDED.total_revenue,
    updated_at = now()
RETURNING ` + dailySaleColumns

type IncrementDailySalesParams struct {
	SaleDate pgtype.Date    `json:"sale_date"`
	Revenue  pgtype.Numeric `json:"revenue"`
}

// IncrementDailySales adds one order and its revenue to the day in a single
// upsert statement.
func (q *Queries) IncrementDailySales(ctx context.Context, arg IncrementDailySalesParams) (DailySale, error) {
	row := q.db.QueryRow(ctx, incrementDailySales, arg.SaleDate, arg.Revenue)
	return scanDailySale(row)
}

const setDailySales = `-- name: SetDailySales :one
INSERT INTO daily_sales (sale_date, total_orders, total_revenue, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (sale_date) DO UPDATE
SET total_orders = EXCLUDED.total_orders,
    total_revenue = EXCLUDED.total_revenue,
    updated_at = now()
RETURNING ` + dailySaleColumns

type SetDailySalesParams struct {
	SaleDate     pgtype.Date    `json:"sale_date"`
	TotalOrders  int32          `json:"total_orders"`
	TotalRevenue pgtype.Numeric `json:"total_revenue"`
}

func (q *Queries) SetDailySales(ctx context.Context, arg SetDailySalesParams) (DailySale, error) {
	row := q.db.QueryRow(ctx, setDailySales, arg.SaleDate, arg.TotalOrders, arg.TotalRevenue)
	return scanDailySale(row)
}

const ensureDailySales = `-- name: EnsureDailySales :exec
INSERT INTO daily_sales (sale_date)
VALUES ($1)
ON CONFLICT (sale_date) DO NOTHING
`

func (q *Queries) EnsureDailySales(ctx context.Context, saleDate pgtype.Date) error {
	_, err := q.db.Exec(ctx, ensureDailySales, saleDate)
	return err
}

const getDailySalesForUpdate = `-- name: GetDailySalesForUpdate :one
SELECT ` + dailySaleColumns + `
FROM daily_sales
WHERE sale_date = $1
FOR UPDATE
`

func (q *Queries) GetDailySalesForUpdate(ctx context.Context, saleDate pgtype.Date) (DailySale, error) {
	row := q.db.QueryRow(ctx, getDailySalesForUpdate, saleDate)
	return scanDailySale(row)
}

const getDailySales = `-- name: GetDailySales :one
SELECT ` + dailySaleColumns + `
FROM daily_sales
WHERE sale_date = $1
`

func (q *Queries) GetDailySales(ctx context.Context, saleDate pgtype.Date) (DailySale, error) {
	row := q.db.QueryRow(ctx, getDailySales, saleDate)
	return scanDailySale(row)
}

const listDailySales = `-- name: ListDailySales :many
SELECT ` + dailySaleColumns + `
FROM daily_sales
WHERE sale_date BETWEEN $1 AND $2
ORDER BY sale_date
`

type ListDailySalesParams struct {
	StartDate pgtype.Date `json:"start_date"`
	EndDate   pgtype.Date `json:"end_date"`
}

func (q *Queries) ListDailySales(ctx context.Context, arg ListDailySalesParams) ([]DailySale, error) {
	rows, err := q.db.Query(ctx, listDailySales, arg.StartDate, arg.EndDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []DailySale{}
	for rows.Next() {
		i, err := scanDailySale(rows)
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

// OrderRangeParams bounds order_time as [Start, End).
type OrderRangeParams struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type SumOrdersRow struct {
	OrderCount int64          `json:"order_count"`
	Revenue    pgtype.Numeric `json:"revenue"`
}

const sumServedPaidOrders = `-- name: SumServedPaidOrders :one
SELECT COUNT(*) AS order_count,
       COALESCE(SUM(total), 0)::numeric AS revenue
FROM orders
WHERE status = 'served'
  AND payment_status = 'paid'
  AND order_time >= $1 AND order_time < $2
`

func (q *Queries) SumServedPaidOrders(ctx context.Context, arg OrderRangeParams) (SumOrdersRow, error) {
	row := q.db.QueryRow(ctx, sumServedPaidOrders, arg.Start, arg.End)
	var i SumOrdersRow
	err := row.Scan(&i.OrderCount, &i.Revenue)
	return i, err
}

const sumPaidOrders = `-- name: SumPaidOrders :one
SELECT COUNT(*) AS order_count,
       COALESCE(SUM(total), 0)::numeric AS revenue
FROM orders
WHERE payment_status = 'paid'
  AND order_time >= $1 AND order_time < $2
`

func (q *Queries) SumPaidOrders(ctx context.Context, arg OrderRangeParams) (SumOrdersRow, error) {
	row := q.db.QueryRow(ctx, sumPaidOrders, arg.Start, arg.End)
	var i SumOrdersRow
	err := row.Scan(&i.OrderCount, &i.Revenue)
	return i, err
}
