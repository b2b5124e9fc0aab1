package report

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiwari-pos/fulfillment/internal/apperr"
	"github.com/kiwari-pos/fulfillment/internal/cache"
	"github.com/kiwari-pos/fulfillment/internal/clock"
	"github.com/kiwari-pos/fulfillment/internal/database"
	"github.com/kiwari-pos/fulfillment/internal/sales"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jakarta = time.FixedZone("WIB", 7*60*60)

type mockStore struct {
	paid      []database.ListPaidOrdersRow
	served    []database.ListServedOrderItemsRow
	todaySum  database.SumOrdersRow
	paidCalls int
	lastRange database.OrderRangeParams
}

func (m *mockStore) ListPaidOrders(ctx context.Context, arg database.OrderRangeParams) ([]database.ListPaidOrdersRow, error) {
	m.paidCalls++
	m.lastRange = arg
	return m.paid, nil
}

func (m *mockStore) ListServedOrderItems(ctx context.Context, arg database.OrderRangeParams) ([]database.ListServedOrderItemsRow, error) {
	return m.served, nil
}

func (m *mockStore) SumPaidOrders(ctx context.Context, arg database.OrderRangeParams) (database.SumOrdersRow, error) {
	return m.todaySum, nil
}

type mockOverrides struct {
	list []sales.Override
}

func (m *mockOverrides) ListOverrides(ctx context.Context, start, end string) ([]sales.Override, error) {
	return m.list, nil
}

func paidOrder(at time.Time, total string) database.ListPaidOrdersRow {
	return database.ListPaidOrdersRow{ID: uuid.New(), OrderTime: at, Total: database.DecimalToNumeric(decimal.RequireFromString(total))}
}

func newAggregator(store *mockStore, overrides *mockOverrides) (*Aggregator, *cache.Cache) {
	c := cache.New(20, time.Minute)
	log, _ := test.NewNullLogger()
	// today is 2026-03-10 in Jakarta
	clk := clock.NewFixed(jakarta, time.Date(2026, 3, 10, 20, 0, 0, 0, jakarta))
	return NewAggregator(store, overrides, clk, cache.NewReadThrough(c), log), c
}

func TestReport_GroupsPaidOrdersByBusinessDay(t *testing.T) {
	store := &mockStore{paid: []database.ListPaidOrdersRow{
		paidOrder(time.Date(2026, 3, 8, 10, 0, 0, 0, jakarta), "100"),
		// 2026-03-08 18:30 UTC is 2026-03-09 01:30 in Jakarta
		paidOrder(time.Date(2026, 3, 8, 18, 30, 0, 0, time.UTC), "40"),
		paidOrder(time.Date(2026, 3, 9, 12, 0, 0, 0, jakarta), "60"),
	}}
	agg, _ := newAggregator(store, &mockOverrides{})

	s, err := agg.Report(context.Background(), "2026-03-08", "2026-03-09", false)
	require.NoError(t, err)

	require.Len(t, s.DailyBreakdown, 2)
	assert.Equal(t, "2026-03-08", s.DailyBreakdown[0].Date)
	assert.Equal(t, 1, s.DailyBreakdown[0].Orders)
	assert.Equal(t, "2026-03-09", s.DailyBreakdown[1].Date)
	assert.Equal(t, 2, s.DailyBreakdown[1].Orders)
	assert.Equal(t, "100.00", s.DailyBreakdown[1].Revenue.StringFixed(2))
	assert.Equal(t, 3, s.TotalOrders)
	assert.Equal(t, "200.00", s.TotalRevenue.StringFixed(2))

	assert.True(t, store.lastRange.Start.Equal(time.Date(2026, 3, 8, 0, 0, 0, 0, jakarta)))
	assert.True(t, store.lastRange.End.Equal(time.Date(2026, 3, 10, 0, 0, 0, 0, jakarta)))
}

func TestReport_OverridesOnlyWhenRequested(t *testing.T) {
	store := &mockStore{paid: []database.ListPaidOrdersRow{
		paidOrder(time.Date(2026, 3, 9, 12, 0, 0, 0, jakarta), "2000"),
	}}
	overrides := &mockOverrides{list: []sales.Override{
		{Date: "2026-03-09", ManualRevenue: decimal.NewFromInt(3200), OriginalRevenue: decimal.NewFromInt(2000)},
	}}
	agg, _ := newAggregator(store, overrides)
	ctx := context.Background()

	raw, err := agg.Report(ctx, "2026-03-09", "2026-03-09", false)
	require.NoError(t, err)
	require.Len(t, raw.DailyBreakdown, 1)
	assert.Equal(t, "2000.00", raw.DailyBreakdown[0].Revenue.StringFixed(2))
	assert.False(t, raw.DailyBreakdown[0].Overridden)
	require.NotNil(t, raw.DailyBreakdown[0].OverrideRevenue, "override is shown alongside")
	assert.Equal(t, "2000.00", raw.TotalRevenue.StringFixed(2))

	withOverrides, err := agg.Report(ctx, "2026-03-09", "2026-03-09", true)
	require.NoError(t, err)
	assert.Equal(t, "3200.00", withOverrides.DailyBreakdown[0].Revenue.StringFixed(2))
	assert.Equal(t, "2000.00", withOverrides.DailyBreakdown[0].ComputedRevenue.StringFixed(2))
	assert.True(t, withOverrides.DailyBreakdown[0].Overridden)
	assert.Equal(t, "3200.00", withOverrides.TotalRevenue.StringFixed(2))
}

func TestReport_OverrideIgnoredForToday(t *testing.T) {
	store := &mockStore{paid: []database.ListPaidOrdersRow{
		paidOrder(time.Date(2026, 3, 10, 9, 0, 0, 0, jakarta), "2000"),
	}}
	overrides := &mockOverrides{list: []sales.Override{
		{Date: "2026-03-10", ManualRevenue: decimal.NewFromInt(3200)},
	}}
	agg, _ := newAggregator(store, overrides)

	s, err := agg.Report(context.Background(), "2026-03-10", "2026-03-10", true)
	require.NoError(t, err)
	assert.Equal(t, "2000.00", s.TotalRevenue.StringFixed(2))
	assert.False(t, s.DailyBreakdown[0].Overridden)
}

func TestReport_OverrideOnDayWithoutOrders(t *testing.T) {
	overrides := &mockOverrides{list: []sales.Override{
		{Date: "2026-03-05", ManualRevenue: decimal.NewFromInt(750)},
	}}
	agg, _ := newAggregator(&mockStore{}, overrides)

	s, err := agg.Report(context.Background(), "2026-03-01", "2026-03-09", true)
	require.NoError(t, err)
	require.Len(t, s.DailyBreakdown, 1)
	assert.Equal(t, 0, s.DailyBreakdown[0].Orders)
	assert.Equal(t, "750.00", s.TotalRevenue.StringFixed(2))
}

func TestReport_TopItemsStableRanking(t *testing.T) {
	tea, rice, soup := uuid.New(), uuid.New(), uuid.New()
	store := &mockStore{served: []database.ListServedOrderItemsRow{
		{MenuItemID: rice, Name: "Rice", Quantity: 2},
		{MenuItemID: tea, Name: "Tea", Quantity: 3},
		{MenuItemID: soup, Name: "Soup", Quantity: 1},
		{MenuItemID: rice, Name: "Rice", Quantity: 1},
		{MenuItemID: soup, Name: "Soup", Quantity: 2},
	}}
	agg, _ := newAggregator(store, &mockOverrides{})

	s, err := agg.Report(context.Background(), "2026-03-01", "2026-03-09", false)
	require.NoError(t, err)

	require.Len(t, s.TopItems, 3)
	// all three total 3: first-encountered order is kept
	assert.Equal(t, []uuid.UUID{rice, tea, soup}, []uuid.UUID{s.TopItems[0].MenuItemID, s.TopItems[1].MenuItemID, s.TopItems[2].MenuItemID})
	assert.Equal(t, int64(3), s.TopItems[0].Quantity)
}

func TestReport_TopItemsTruncated(t *testing.T) {
	store := &mockStore{}
	for i := 0; i < 15; i++ {
		store.served = append(store.served, database.ListServedOrderItemsRow{
			MenuItemID: uuid.New(),
			Name:       fmt.Sprintf("item %d", i),
			Quantity:   int32(i + 1),
		})
	}
	agg, _ := newAggregator(store, &mockOverrides{})

	s, err := agg.Report(context.Background(), "2026-03-01", "2026-03-09", false)
	require.NoError(t, err)
	require.Len(t, s.TopItems, TopItemsLimit)
	assert.Equal(t, int64(15), s.TopItems[0].Quantity)
	assert.Equal(t, int64(6), s.TopItems[9].Quantity)
}

func TestReport_Validation(t *testing.T) {
	agg, _ := newAggregator(&mockStore{}, &mockOverrides{})
	ctx := context.Background()

	_, err := agg.Report(ctx, "yesterday", "2026-03-09", false)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = agg.Report(ctx, "2026-03-09", "2026-03-01", false)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestReport_CachedPerMode(t *testing.T) {
	store := &mockStore{}
	agg, c := newAggregator(store, &mockOverrides{})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := agg.Report(ctx, "2026-03-01", "2026-03-09", false)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, store.paidCalls)

	_, err := agg.Report(ctx, "2026-03-01", "2026-03-09", true)
	require.NoError(t, err)
	assert.Equal(t, 2, store.paidCalls)

	c.Invalidate(sales.FamilyReport)
	_, err = agg.Report(ctx, "2026-03-01", "2026-03-09", false)
	require.NoError(t, err)
	assert.Equal(t, 3, store.paidCalls)
}

func TestToday_ComputedFromOrders(t *testing.T) {
	store := &mockStore{todaySum: database.SumOrdersRow{
		OrderCount: 4,
		Revenue:    database.DecimalToNumeric(decimal.NewFromInt(2000)),
	}}
	agg, _ := newAggregator(store, &mockOverrides{list: []sales.Override{
		{Date: "2026-03-10", ManualRevenue: decimal.NewFromInt(3200)},
	}})

	today, err := agg.Today(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2026-03-10", today.Date)
	assert.Equal(t, int64(4), today.TotalOrders)
	assert.Equal(t, "2000.00", today.TotalRevenue.StringFixed(2))
}
