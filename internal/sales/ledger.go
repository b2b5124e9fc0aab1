// Package sales maintains the per-day order count and revenue ledger and the
// manual revenue overrides layered on top of it for historical reports.
package sales

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/kiwari-pos/fulfillment/internal/apperr"
	"github.com/kiwari-pos/fulfillment/internal/cache"
	"github.com/kiwari-pos/fulfillment/internal/clock"
	"github.com/kiwari-pos/fulfillment/internal/database"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Cache families whose contents depend on sales figures.
const (
	FamilyReport    = "report"
	FamilyDashboard = "dashboard"
)

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store defines the DB methods needed by the ledger and override store.
// Satisfied by *database.Queries.
type Store interface {
	IncrementDailySales(ctx context.Context, arg database.IncrementDailySalesParams) (database.DailySale, error)
	SetDailySales(ctx context.Context, arg database.SetDailySalesParams) (database.DailySale, error)
	EnsureDailySales(ctx context.Context, saleDate pgtype.Date) error
	GetDailySalesForUpdate(ctx context.Context, saleDate pgtype.Date) (database.DailySale, error)
	GetDailySales(ctx context.Context, saleDate pgtype.Date) (database.DailySale, error)
	ListDailySales(ctx context.Context, arg database.ListDailySalesParams) ([]database.DailySale, error)
	SumServedPaidOrders(ctx context.Context, arg database.OrderRangeParams) (database.SumOrdersRow, error)
	SumPaidOrders(ctx context.Context, arg database.OrderRangeParams) (database.SumOrdersRow, error)
	UpsertRevenueOverride(ctx context.Context, arg database.UpsertRevenueOverrideParams) (database.RevenueOverride, error)
	GetRevenueOverride(ctx context.Context, overrideDate pgtype.Date) (database.RevenueOverride, error)
	ListRevenueOverrides(ctx context.Context, arg database.ListRevenueOverridesParams) ([]database.RevenueOverride, error)
}

// NewStore creates a Store bound to a pool or transaction.
type NewStore func(db database.DBTX) Store

// DailySales is one day of the ledger.
type DailySales struct {
	Date         string          `json:"sale_date"`
	TotalOrders  int32           `json:"total_orders"`
	TotalRevenue decimal.Decimal `json:"total_revenue"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// ArchiveResult reports the recomputed day and the drift it corrected.
type ArchiveResult struct {
	DailySales
	PreviousOrders  int32           `json:"previous_orders"`
	PreviousRevenue decimal.Decimal `json:"previous_revenue"`
}

// Drifted reports whether the incremental figures disagreed with the orders.
func (r ArchiveResult) Drifted() bool {
	return r.PreviousOrders != r.TotalOrders || !r.PreviousRevenue.Equal(r.TotalRevenue)
}

// Ledger keeps DailySales in step with served and paid orders.
type Ledger struct {
	pool     TxBeginner
	store    Store
	newStore NewStore
	clock    *clock.Clock
	cache    *cache.ReadThrough
	log      logrus.FieldLogger
}

// NewLedger creates a Ledger. store runs outside transactions.
func NewLedger(pool TxBeginner, store Store, newStore NewStore, clk *clock.Clock, rt *cache.ReadThrough, log logrus.FieldLogger) *Ledger {
	return &Ledger{
		pool:     pool,
		store:    store,
		newStore: newStore,
		clock:    clk,
		cache:    rt,
		log:      log,
	}
}

// RecordServedAndPaid adds one order of the given total to date. The
// operation is a single upsert and is not idempotent: callers must ensure
// each order is recorded once.
func (l *Ledger) RecordServedAndPaid(ctx context.Context, date string, total decimal.Decimal) (DailySales, error) {
	rec, err := l.record(ctx, l.store, date, total)
	if err != nil {
		return DailySales{}, err
	}
	l.cache.Invalidate(FamilyReport, FamilyDashboard)
	return rec, nil
}

// RecordServedAndPaidTx is RecordServedAndPaid inside the caller's
// transaction. The caller invalidates caches after commit.
func (l *Ledger) RecordServedAndPaidTx(ctx context.Context, tx pgx.Tx, date string, total decimal.Decimal) (DailySales, error) {
	return l.record(ctx, l.newStore(tx), date, total)
}

func (l *Ledger) record(ctx context.Context, store Store, date string, total decimal.Decimal) (DailySales, error) {
	day, err := l.parseDate("sale_date", date)
	if err != nil {
		return DailySales{}, err
	}
	if total.IsNegative() {
		return DailySales{}, apperr.Validation("total", "must be >= 0")
	}
	row, err := store.IncrementDailySales(ctx, database.IncrementDailySalesParams{
		SaleDate: day,
		Revenue:  database.DecimalToNumeric(total),
	})
	if err != nil {
		return DailySales{}, apperr.FromStore("daily sales "+date, err)
	}
	return toDailySales(row), nil
}

// ResetDay zeroes today's record. Historical days cannot be reset; use
// ArchiveDay to correct them.
func (l *Ledger) ResetDay(ctx context.Context, date string) (DailySales, error) {
	day, err := l.parseDate("sale_date", date)
	if err != nil {
		return DailySales{}, err
	}
	if date != l.clock.Today() {
		return DailySales{}, apperr.Validation("sale_date", "only the current day (%s) can be reset", l.clock.Today())
	}
	row, err := l.store.SetDailySales(ctx, database.SetDailySalesParams{
		SaleDate:     day,
		TotalOrders:  0,
		TotalRevenue: database.DecimalToNumeric(decimal.Zero),
	})
	if err != nil {
		return DailySales{}, apperr.FromStore("daily sales "+date, err)
	}
	l.cache.Invalidate(FamilyReport, FamilyDashboard)
	l.log.WithField("sale_date", date).Warn("daily sales reset")
	return toDailySales(row), nil
}

// ArchiveDay recomputes a past day from its served and paid orders and
// overwrites the ledger record. The date row is locked for the duration, so
// a concurrent increment for the same day waits and lands on top of the
// recomputed value.
func (l *Ledger) ArchiveDay(ctx context.Context, date string) (ArchiveResult, error) {
	day, err := l.parseDate("sale_date", date)
	if err != nil {
		return ArchiveResult{}, err
	}
	if !l.clock.IsPast(date) {
		return ArchiveResult{}, apperr.Validation("sale_date", "only past days can be archived")
	}
	start, end, err := l.clock.DayRange(date)
	if err != nil {
		return ArchiveResult{}, apperr.Validation("sale_date", "invalid date")
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return ArchiveResult{}, apperr.FromStore("begin tx", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := l.newStore(tx)
	if err := store.EnsureDailySales(ctx, day); err != nil {
		return ArchiveResult{}, apperr.FromStore("daily sales "+date, err)
	}
	prev, err := store.GetDailySalesForUpdate(ctx, day)
	if err != nil {
		return ArchiveResult{}, apperr.FromStore("daily sales "+date, err)
	}
	sum, err := store.SumServedPaidOrders(ctx, database.OrderRangeParams{Start: start, End: end})
	if err != nil {
		return ArchiveResult{}, apperr.FromStore("orders", err)
	}
	row, err := store.SetDailySales(ctx, database.SetDailySalesParams{
		SaleDate:     day,
		TotalOrders:  int32(sum.OrderCount),
		TotalRevenue: sum.Revenue,
	})
	if err != nil {
		return ArchiveResult{}, apperr.FromStore("daily sales "+date, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return ArchiveResult{}, apperr.FromStore("commit archive", err)
	}

	res := ArchiveResult{
		DailySales:      toDailySales(row),
		PreviousOrders:  prev.TotalOrders,
		PreviousRevenue: database.NumericToDecimal(prev.TotalRevenue),
	}
	l.cache.Invalidate(FamilyReport, FamilyDashboard)

	entry := l.log.WithFields(logrus.Fields{
		"sale_date":     date,
		"total_orders":  res.TotalOrders,
		"total_revenue": res.TotalRevenue.StringFixed(2),
	})
	if res.Drifted() {
		entry.WithFields(logrus.Fields{
			"previous_orders":  res.PreviousOrders,
			"previous_revenue": res.PreviousRevenue.StringFixed(2),
		}).Warn("daily sales drift corrected")
	} else {
		entry.Info("daily sales archived")
	}
	return res, nil
}

// GetDay returns the ledger record for date.
func (l *Ledger) GetDay(ctx context.Context, date string) (DailySales, error) {
	day, err := l.parseDate("sale_date", date)
	if err != nil {
		return DailySales{}, err
	}
	row, err := l.store.GetDailySales(ctx, day)
	if err != nil {
		return DailySales{}, apperr.FromStore("daily sales "+date, err)
	}
	return toDailySales(row), nil
}

// ListDays returns ledger records in [start, end], both inclusive.
func (l *Ledger) ListDays(ctx context.Context, start, end string) ([]DailySales, error) {
	from, to, err := l.parseRange(start, end)
	if err != nil {
		return nil, err
	}
	rows, err := l.store.ListDailySales(ctx, database.ListDailySalesParams{StartDate: from, EndDate: to})
	if err != nil {
		return nil, apperr.FromStore("daily sales", err)
	}
	out := make([]DailySales, len(rows))
	for i, r := range rows {
		out[i] = toDailySales(r)
	}
	return out, nil
}

func (l *Ledger) parseDate(field, s string) (pgtype.Date, error) {
	return parseDate(l.clock, field, s)
}

func (l *Ledger) parseRange(start, end string) (pgtype.Date, pgtype.Date, error) {
	return parseRange(l.clock, start, end)
}

func parseDate(clk *clock.Clock, field, s string) (pgtype.Date, error) {
	if _, err := clk.ParseDay(s); err != nil {
		return pgtype.Date{}, apperr.Validation(field, "must be YYYY-MM-DD")
	}
	d, err := database.ParseDate(s)
	if err != nil {
		return pgtype.Date{}, apperr.Validation(field, "must be YYYY-MM-DD")
	}
	return d, nil
}

func parseRange(clk *clock.Clock, start, end string) (pgtype.Date, pgtype.Date, error) {
	from, err := parseDate(clk, "start_date", start)
	if err != nil {
		return pgtype.Date{}, pgtype.Date{}, err
	}
	to, err := parseDate(clk, "end_date", end)
	if err != nil {
		return pgtype.Date{}, pgtype.Date{}, err
	}
	if to.Time.Before(from.Time) {
		return pgtype.Date{}, pgtype.Date{}, apperr.Validation("end_date", "must not be before start_date")
	}
	return from, to, nil
}

func toDailySales(r database.DailySale) DailySales {
	return DailySales{
		Date:         database.FormatDate(r.SaleDate),
		TotalOrders:  r.TotalOrders,
		TotalRevenue: database.NumericToDecimal(r.TotalRevenue),
		UpdatedAt:    r.UpdatedAt,
	}
}
