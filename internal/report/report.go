// Package report builds revenue summaries and item rankings straight from
// order rows. The daily sales ledger is never read here; overrides are
// layered on historical days only when the caller asks for them.
package report

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/kiwari-pos/fulfillment/internal/apperr"
	"github.com/kiwari-pos/fulfillment/internal/cache"
	"github.com/kiwari-pos/fulfillment/internal/clock"
	"github.com/kiwari-pos/fulfillment/internal/database"
	"github.com/kiwari-pos/fulfillment/internal/sales"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// TopItemsLimit caps the item ranking.
const TopItemsLimit = 10

// Store defines the DB methods needed by the aggregator.
// Satisfied by *database.Queries.
type Store interface {
	ListPaidOrders(ctx context.Context, arg database.OrderRangeParams) ([]database.ListPaidOrdersRow, error)
	ListServedOrderItems(ctx context.Context, arg database.OrderRangeParams) ([]database.ListServedOrderItemsRow, error)
	SumPaidOrders(ctx context.Context, arg database.OrderRangeParams) (database.SumOrdersRow, error)
}

// OverrideLister reads manual revenue overrides. Satisfied by
// *sales.OverrideStore.
type OverrideLister interface {
	ListOverrides(ctx context.Context, start, end string) ([]sales.Override, error)
}

// DayBreakdown is one day of a summary. Revenue is the figure used for the
// totals: the override when overrides were requested and the day is not
// today, the computed revenue otherwise.
type DayBreakdown struct {
	Date            string           `json:"date"`
	Orders          int              `json:"orders"`
	ComputedRevenue decimal.Decimal  `json:"computed_revenue"`
	OverrideRevenue *decimal.Decimal `json:"override_revenue"`
	Revenue         decimal.Decimal  `json:"revenue"`
	Overridden      bool             `json:"overridden"`
}

// TopItem is a menu item ranked by served quantity.
type TopItem struct {
	MenuItemID uuid.UUID `json:"menu_item_id"`
	Name       string    `json:"name"`
	Quantity   int64     `json:"quantity"`
}

// Summary is the result of Report.
type Summary struct {
	StartDate        string          `json:"start_date"`
	EndDate          string          `json:"end_date"`
	OverridesApplied bool            `json:"overrides_applied"`
	TotalRevenue     decimal.Decimal `json:"total_revenue"`
	TotalOrders      int             `json:"total_orders"`
	DailyBreakdown   []DayBreakdown  `json:"daily_breakdown"`
	TopItems         []TopItem       `json:"top_items"`
}

// TodaySummary is the live figure for the current business day.
type TodaySummary struct {
	Date         string          `json:"date"`
	TotalOrders  int64           `json:"total_orders"`
	TotalRevenue decimal.Decimal `json:"total_revenue"`
}

// Aggregator computes reports and caches them by range and mode.
type Aggregator struct {
	store     Store
	overrides OverrideLister
	clock     *clock.Clock
	cache     *cache.ReadThrough
	log       logrus.FieldLogger
}

func NewAggregator(store Store, overrides OverrideLister, clk *clock.Clock, rt *cache.ReadThrough, log logrus.FieldLogger) *Aggregator {
	return &Aggregator{store: store, overrides: overrides, clock: clk, cache: rt, log: log}
}

// Report summarizes paid orders between start and end, both inclusive
// YYYY-MM-DD days.
func (a *Aggregator) Report(ctx context.Context, start, end string, applyOverrides bool) (Summary, error) {
	from, err := a.clock.ParseDay(start)
	if err != nil {
		return Summary{}, apperr.Validation("start_date", "must be YYYY-MM-DD")
	}
	to, err := a.clock.ParseDay(end)
	if err != nil {
		return Summary{}, apperr.Validation("end_date", "must be YYYY-MM-DD")
	}
	if to.Before(from) {
		return Summary{}, apperr.Validation("end_date", "must not be before start_date")
	}

	mode := "raw"
	if applyOverrides {
		mode = "override"
	}
	key := fmt.Sprintf("%s:%s:%s:%s", sales.FamilyReport, start, end, mode)
	return cache.GetOrLoad(ctx, a.cache, key, 0, func(ctx context.Context) (Summary, error) {
		return a.build(ctx, start, end, database.OrderRangeParams{Start: from, End: to.AddDate(0, 0, 1)}, applyOverrides)
	})
}

func (a *Aggregator) build(ctx context.Context, start, end string, rng database.OrderRangeParams, applyOverrides bool) (Summary, error) {
	paid, err := a.store.ListPaidOrders(ctx, rng)
	if err != nil {
		return Summary{}, apperr.FromStore("orders", err)
	}
	overrides, err := a.overrides.ListOverrides(ctx, start, end)
	if err != nil {
		return Summary{}, err
	}
	served, err := a.store.ListServedOrderItems(ctx, rng)
	if err != nil {
		return Summary{}, apperr.FromStore("order items", err)
	}

	days := map[string]*DayBreakdown{}
	day := func(date string) *DayBreakdown {
		d, ok := days[date]
		if !ok {
			d = &DayBreakdown{Date: date}
			days[date] = d
		}
		return d
	}
	for _, o := range paid {
		d := day(a.clock.DayOf(o.OrderTime))
		d.Orders++
		d.ComputedRevenue = d.ComputedRevenue.Add(database.NumericToDecimal(o.Total))
	}
	for _, o := range overrides {
		manual := o.ManualRevenue
		day(o.Date).OverrideRevenue = &manual
	}

	today := a.clock.Today()
	summary := Summary{
		StartDate:        start,
		EndDate:          end,
		OverridesApplied: applyOverrides,
		TotalRevenue:     decimal.Zero,
		DailyBreakdown:   make([]DayBreakdown, 0, len(days)),
		TopItems:         topItems(served, TopItemsLimit),
	}
	for _, d := range days {
		d.Revenue = d.ComputedRevenue
		if applyOverrides && d.OverrideRevenue != nil && d.Date != today {
			d.Revenue = *d.OverrideRevenue
			d.Overridden = true
		}
		summary.TotalRevenue = summary.TotalRevenue.Add(d.Revenue)
		summary.TotalOrders += d.Orders
		summary.DailyBreakdown = append(summary.DailyBreakdown, *d)
	}
	sort.Slice(summary.DailyBreakdown, func(i, j int) bool {
		return summary.DailyBreakdown[i].Date < summary.DailyBreakdown[j].Date
	})

	a.log.WithFields(logrus.Fields{
		"start_date": start,
		"end_date":   end,
		"overrides":  applyOverrides,
		"days":       len(summary.DailyBreakdown),
	}).Debug("report computed")
	return summary, nil
}

// topItems sums quantities per menu item in row order and returns the limit
// largest. Ties keep the order in which items were first seen.
func topItems(rows []database.ListServedOrderItemsRow, limit int) []TopItem {
	index := map[uuid.UUID]int{}
	items := []TopItem{}
	for _, r := range rows {
		i, ok := index[r.MenuItemID]
		if !ok {
			i = len(items)
			index[r.MenuItemID] = i
			items = append(items, TopItem{MenuItemID: r.MenuItemID, Name: r.Name})
		}
		items[i].Quantity += int64(r.Quantity)
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Quantity > items[j].Quantity
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items
}

// Today returns the current day's paid order count and revenue computed from
// orders. Ledger records and overrides never affect it.
func (a *Aggregator) Today(ctx context.Context) (TodaySummary, error) {
	today := a.clock.Today()
	key := sales.FamilyDashboard + ":today:" + today
	return cache.GetOrLoad(ctx, a.cache, key, time.Minute, func(ctx context.Context) (TodaySummary, error) {
		start, end, err := a.clock.DayRange(today)
		if err != nil {
			return TodaySummary{}, err
		}
		sum, err := a.store.SumPaidOrders(ctx, database.OrderRangeParams{Start: start, End: end})
		if err != nil {
			return TodaySummary{}, apperr.FromStore("orders", err)
		}
		return TodaySummary{
			Date:         today,
			TotalOrders:  sum.OrderCount,
			TotalRevenue: database.NumericToDecimal(sum.Revenue),
		}, nil
	})
}
