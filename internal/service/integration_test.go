//go:build integration

package service_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiwari-pos/fulfillment/internal/apperr"
	"github.com/kiwari-pos/fulfillment/internal/cache"
	"github.com/kiwari-pos/fulfillment/internal/clock"
	"github.com/kiwari-pos/fulfillment/internal/database"
	"github.com/kiwari-pos/fulfillment/internal/enum"
	"github.com/kiwari-pos/fulfillment/internal/inventory"
	"github.com/kiwari-pos/fulfillment/internal/report"
	"github.com/kiwari-pos/fulfillment/internal/sales"
	"github.com/kiwari-pos/fulfillment/internal/service"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

type stack struct {
	pool      *pgxpool.Pool
	clock     *clock.Clock
	stock     *inventory.Ledger
	sales     *sales.Ledger
	overrides *sales.OverrideStore
	reports   *report.Aggregator
	orders    *service.OrderService
}

func setupStack(t *testing.T) *stack {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("fulfillment_test"),
		tcpostgres.WithUsername("pos"),
		tcpostgres.WithPassword("pos"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "start postgres container")
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	// Path relative to this package directory (internal/service/).
	require.NoError(t, database.Migrate("file://../../migrations", connStr))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	log, _ := test.NewNullLogger()
	clk, err := clock.New("Asia/Jakarta")
	require.NoError(t, err)
	rt := cache.NewReadThrough(cache.New(100, time.Minute))
	queries := database.New(pool)

	s := &stack{pool: pool, clock: clk}
	s.stock = inventory.NewLedger(pool, queries, func(db database.DBTX) inventory.Store {
		return database.New(db)
	}, rt, log)
	s.sales = sales.NewLedger(pool, queries, func(db database.DBTX) sales.Store {
		return database.New(db)
	}, clk, rt, log)
	s.overrides = sales.NewOverrideStore(queries, clk, rt, log)
	s.reports = report.NewAggregator(queries, s.overrides, clk, rt, log)
	s.orders = service.NewOrderService(pool, func(db database.DBTX) service.OrderStore {
		return database.New(db)
	}, s.sales, s.stock, rt, clk, log)
	return s
}

var orderSeq int

// insertOrder writes an order row directly, bypassing the lifecycle.
func (s *stack) insertOrder(t *testing.T, status, payment, total string, at time.Time, items ...database.CreateOrderItemParams) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	orderSeq++

	var id uuid.UUID
	err := s.pool.QueryRow(ctx, `
		INSERT INTO orders (order_number, status, payment_status, total, order_time, fulfillment_applied_at)
		VALUES ($1, $2, $3, $4, $5, CASE WHEN $2 = 'served' THEN $5 END)
		RETURNING id`,
		fmt.Sprintf("IT-%04d", orderSeq), status, payment, total, at,
	).Scan(&id)
	require.NoError(t, err)

	q := database.New(s.pool)
	for i, item := range items {
		item.OrderID = id
		item.Position = int32(i)
		_, err := q.CreateOrderItem(ctx, item)
		require.NoError(t, err)
	}
	return id
}

func (s *stack) stockOf(t *testing.T, id uuid.UUID) int32 {
	t.Helper()
	row, err := database.New(s.pool).GetStock(context.Background(), id)
	require.NoError(t, err)
	return row.CurrentStock
}

func TestIntegration(t *testing.T) {
	s := setupStack(t)
	ctx := context.Background()
	today := s.clock.Today()
	yesterday := s.clock.Yesterday()

	rice, tea := uuid.New(), uuid.New()
	_, err := s.stock.SetAbsolute(ctx, []inventory.StockSetting{
		{MenuItemID: rice.String(), Stock: "10"},
		{MenuItemID: tea.String(), Stock: "4"},
	})
	require.NoError(t, err)

	t.Run("served transition applies both ledgers once", func(t *testing.T) {
		id := s.insertOrder(t, enum.OrderStatusReady, enum.PaymentStatusPaid, "0", s.clock.Now(),
			database.CreateOrderItemParams{MenuItemID: rice, Name: "Nasi Bakar", Quantity: 2, UnitPrice: database.DecimalToNumeric(decimal.NewFromInt(25000))},
			database.CreateOrderItemParams{MenuItemID: tea, Name: "Es Teh", Quantity: 1, UnitPrice: database.DecimalToNumeric(decimal.NewFromInt(5000))},
		)

		res, err := s.orders.Transition(ctx, service.TransitionRequest{OrderID: id.String(), Status: enum.OrderStatusServed, Total: "55000"})
		require.NoError(t, err)
		assert.True(t, res.FulfillmentApplied)
		require.NotNil(t, res.Sales)

		day, err := s.sales.GetDay(ctx, today)
		require.NoError(t, err)
		assert.Equal(t, int32(1), day.TotalOrders)
		assert.Equal(t, "55000.00", day.TotalRevenue.StringFixed(2))
		assert.Equal(t, int32(8), s.stockOf(t, rice))
		assert.Equal(t, int32(3), s.stockOf(t, tea))

		// replay
		res, err = s.orders.Transition(ctx, service.TransitionRequest{OrderID: id.String(), Status: enum.OrderStatusServed})
		require.NoError(t, err)
		assert.False(t, res.FulfillmentApplied)

		day, err = s.sales.GetDay(ctx, today)
		require.NoError(t, err)
		assert.Equal(t, int32(1), day.TotalOrders)
		assert.Equal(t, int32(8), s.stockOf(t, rice))

		// items are frozen once fulfilled
		_, err = s.orders.Transition(ctx, service.TransitionRequest{OrderID: id.String(), Items: []service.TransitionItemRequest{}})
		assert.ErrorIs(t, err, apperr.ErrConflict)
	})

	t.Run("concurrent increments are not lost", func(t *testing.T) {
		before, err := s.sales.GetDay(ctx, today)
		require.NoError(t, err)

		var wg sync.WaitGroup
		errs := make(chan error, 20)
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.sales.RecordServedAndPaid(ctx, today, decimal.NewFromInt(1000))
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		after, err := s.sales.GetDay(ctx, today)
		require.NoError(t, err)
		assert.Equal(t, before.TotalOrders+20, after.TotalOrders)
		assert.True(t, after.TotalRevenue.Sub(before.TotalRevenue).Equal(decimal.NewFromInt(20000)))
	})

	t.Run("subtraction clamps at zero", func(t *testing.T) {
		rows, err := s.stock.Adjust(ctx, []inventory.Adjustment{
			{MenuItemID: tea.String(), Quantity: "50", Direction: enum.DirectionSubtract},
		})
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, int32(0), rows[0].CurrentStock)
	})

	t.Run("strict subtraction commits nothing", func(t *testing.T) {
		_, err := s.stock.AdjustStrict(ctx, []inventory.Adjustment{
			{MenuItemID: rice.String(), Quantity: "1", Direction: enum.DirectionSubtract},
			{MenuItemID: tea.String(), Quantity: "1", Direction: enum.DirectionSubtract},
		})
		var stockErr *apperr.InsufficientStockError
		require.ErrorAs(t, err, &stockErr)
		assert.Equal(t, tea.String(), stockErr.MenuItemID)
		assert.Equal(t, int32(8), s.stockOf(t, rice))
	})

	t.Run("archive recounts from orders and ignores overrides", func(t *testing.T) {
		start, _, err := s.clock.DayRange(yesterday)
		require.NoError(t, err)
		noon := start.Add(12 * time.Hour)

		s.insertOrder(t, enum.OrderStatusServed, enum.PaymentStatusPaid, "30000", noon)
		s.insertOrder(t, enum.OrderStatusServed, enum.PaymentStatusPaid, "20000", noon.Add(time.Hour))
		s.insertOrder(t, enum.OrderStatusServed, enum.PaymentStatusPending, "99000", noon)
		s.insertOrder(t, enum.OrderStatusReady, enum.PaymentStatusPaid, "15000", noon)

		// drift: the ledger believes three orders were served
		for i := 0; i < 3; i++ {
			_, err := s.sales.RecordServedAndPaid(ctx, yesterday, decimal.NewFromInt(10000))
			require.NoError(t, err)
		}

		res, err := s.sales.ArchiveDay(ctx, yesterday)
		require.NoError(t, err)
		assert.True(t, res.Drifted())
		assert.Equal(t, int32(2), res.TotalOrders)
		assert.Equal(t, "50000.00", res.TotalRevenue.StringFixed(2))

		o, err := s.overrides.SetOverride(ctx, yesterday, "80000")
		require.NoError(t, err)
		// paid orders regardless of status
		assert.Equal(t, "65000.00", o.OriginalRevenue.StringFixed(2))

		again, err := s.sales.ArchiveDay(ctx, yesterday)
		require.NoError(t, err)
		assert.False(t, again.Drifted())
		assert.Equal(t, "50000.00", again.TotalRevenue.StringFixed(2))

		raw, err := s.reports.Report(ctx, yesterday, yesterday, false)
		require.NoError(t, err)
		assert.Equal(t, "65000.00", raw.TotalRevenue.StringFixed(2))

		overridden, err := s.reports.Report(ctx, yesterday, yesterday, true)
		require.NoError(t, err)
		assert.Equal(t, "80000.00", overridden.TotalRevenue.StringFixed(2))
	})

	t.Run("archive rejects today", func(t *testing.T) {
		_, err := s.sales.ArchiveDay(ctx, today)
		assert.ErrorIs(t, err, apperr.ErrValidation)
	})
}
