package sales

import (
	"context"
	"strings"
	"time"

	"github.com/kiwari-pos/fulfillment/internal/apperr"
	"github.com/kiwari-pos/fulfillment/internal/cache"
	"github.com/kiwari-pos/fulfillment/internal/clock"
	"github.com/kiwari-pos/fulfillment/internal/database"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Override replaces a day's computed revenue in override-aware reports.
// OriginalRevenue is the computed revenue captured when the override was set.
type Override struct {
	Date            string          `json:"date"`
	ManualRevenue   decimal.Decimal `json:"manual_revenue"`
	OriginalRevenue decimal.Decimal `json:"original_revenue"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// OverrideStore records manual revenue corrections. It never writes to the
// daily sales ledger.
type OverrideStore struct {
	store Store
	clock *clock.Clock
	cache *cache.ReadThrough
	log   logrus.FieldLogger
}

func NewOverrideStore(store Store, clk *clock.Clock, rt *cache.ReadThrough, log logrus.FieldLogger) *OverrideStore {
	return &OverrideStore{store: store, clock: clk, cache: rt, log: log}
}

// SetOverride upserts the override for date. The original revenue is read
// from paid orders at call time and is not refreshed later.
func (s *OverrideStore) SetOverride(ctx context.Context, date, manualRevenue string) (Override, error) {
	day, err := parseDate(s.clock, "date", date)
	if err != nil {
		return Override{}, err
	}
	if s.clock.IsFuture(date) {
		return Override{}, apperr.Validation("date", "cannot override a future day")
	}
	manual, err := decimal.NewFromString(strings.TrimSpace(manualRevenue))
	if err != nil {
		return Override{}, apperr.Validation("manual_revenue", "must be a decimal number")
	}
	if manual.IsNegative() {
		return Override{}, apperr.Validation("manual_revenue", "must be >= 0")
	}

	start, end, err := s.clock.DayRange(date)
	if err != nil {
		return Override{}, apperr.Validation("date", "invalid date")
	}
	computed, err := s.store.SumPaidOrders(ctx, database.OrderRangeParams{Start: start, End: end})
	if err != nil {
		return Override{}, apperr.FromStore("orders", err)
	}

	row, err := s.store.UpsertRevenueOverride(ctx, database.UpsertRevenueOverrideParams{
		OverrideDate:    day,
		ManualRevenue:   database.DecimalToNumeric(manual),
		OriginalRevenue: computed.Revenue,
	})
	if err != nil {
		return Override{}, apperr.FromStore("revenue override "+date, err)
	}

	s.cache.Invalidate(FamilyReport)
	o := toOverride(row)
	s.log.WithFields(logrus.Fields{
		"date":             o.Date,
		"manual_revenue":   o.ManualRevenue.StringFixed(2),
		"original_revenue": o.OriginalRevenue.StringFixed(2),
	}).Info("revenue override set")
	return o, nil
}

// GetOverride returns the override for date or an ErrNotFound error.
func (s *OverrideStore) GetOverride(ctx context.Context, date string) (Override, error) {
	day, err := parseDate(s.clock, "date", date)
	if err != nil {
		return Override{}, err
	}
	row, err := s.store.GetRevenueOverride(ctx, day)
	if err != nil {
		return Override{}, apperr.FromStore("revenue override "+date, err)
	}
	return toOverride(row), nil
}

// ListOverrides returns overrides in [start, end], both inclusive.
func (s *OverrideStore) ListOverrides(ctx context.Context, start, end string) ([]Override, error) {
	from, to, err := parseRange(s.clock, start, end)
	if err != nil {
		return nil, err
	}
	rows, err := s.store.ListRevenueOverrides(ctx, database.ListRevenueOverridesParams{StartDate: from, EndDate: to})
	if err != nil {
		return nil, apperr.FromStore("revenue overrides", err)
	}
	out := make([]Override, len(rows))
	for i, r := range rows {
		out[i] = toOverride(r)
	}
	return out, nil
}

func toOverride(r database.RevenueOverride) Override {
	return Override{
		Date:            database.FormatDate(r.OverrideDate),
		ManualRevenue:   database.NumericToDecimal(r.ManualRevenue),
		OriginalRevenue: database.NumericToDecimal(r.OriginalRevenue),
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}
