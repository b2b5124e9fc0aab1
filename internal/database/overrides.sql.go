package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const overrideColumns = `override_date, manual_revenue, original_revenue, created_at, updated_at`

func scanOverride(row interface{ Scan(...interface{}) error }) (RevenueOverride, error) {
	var i RevenueOverride
	err := row.Scan(
		&i.OverrideDate,
		&i.ManualRevenue,
		&i.OriginalRevenue,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const upsertRevenueOverride = `-- name: UpsertRevenueOverride :one
INSERT INTO revenue_overrides (override_date, manual_revenue, original_revenue, created_at, updated_at)
VALUES ($1, $2, $3, now(), now())
ON CONFLICT (override_date) DO UPDATE
SET manual_revenue = EXCLUDED.manual_revenue,
    original_revenue = EXCLUDED.original_revenue,
    updated_at = now()
RETURNING ` + overrideColumns

type UpsertRevenueOverrideParams struct {
	OverrideDate    pgtype.Date    `json:"override_date"`
	ManualRevenue   pgtype.Numeric `json:"manual_revenue"`
	OriginalRevenue pgtype.Numeric `json:"original_revenue"`
}

func (q *Queries) UpsertRevenueOverride(ctx context.Context, arg UpsertRevenueOverrideParams) (RevenueOverride, error) {
	row := q.db.QueryRow(ctx, upsertRevenueOverride, arg.OverrideDate, arg.ManualRevenue, arg.OriginalRevenue)
	return scanOverride(row)
}

const getRevenueOverride = `-- name: GetRevenueOverride :one
SELECT ` + overrideColumns + `
FROM revenue_overrides
WHERE override_date = $1
`

func (q *Queries) GetRevenueOverride(ctx context.Context, overrideDate pgtype.Date) (RevenueOverride, error) {
	row := q.db.QueryRow(ctx, getRevenueOverride, overrideDate)
	return scanOverride(row)
}

const listRevenueOverrides = `-- name: ListRevenueOverrides :many
SELECT ` + overrideColumns + `
FROM revenue_overrides
WHERE override_date BETWEEN $1 AND $2
ORDER BY override_date
`

type ListRevenueOverridesParams struct {
	StartDate pgtype.Date `json:"start_date"`
	EndDate   pgtype.Date `json:"end_date"`
}

func (q *Queries) ListRevenueOverrides(ctx context.Context, arg ListRevenueOverridesParams) ([]RevenueOverride, error) {
	rows, err := q.db.Query(ctx, listRevenueOverrides, arg.StartDate, arg.EndDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []RevenueOverride{}
	for rows.Next() {
		i, err := scanOverride(rows)
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
