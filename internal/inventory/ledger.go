// Package inventory keeps per-menu-item stock counters.
//
// Subtractions clamp at zero: a deficit is silently absorbed and cannot be
// detected afterwards. Callers that need to refuse over-subtraction use
// AdjustStrict, which commits nothing when any item would go negative.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kiwari-pos/fulfillment/internal/apperr"
	"github.com/kiwari-pos/fulfillment/internal/cache"
	"github.com/kiwari-pos/fulfillment/internal/database"
	"github.com/kiwari-pos/fulfillment/internal/enum"
	"github.com/sirupsen/logrus"
)

// Cache keys and families owned by the ledger.
const (
	FamilyInventory = "inventory"
	FamilyMenu      = "menu"

	keySnapshot     = "inventory:all"
	keyLowStock     = "inventory:low"
	keyAvailability = "menu:availability"
)

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store defines the DB methods the ledger needs.
// Satisfied by *database.Queries.
type Store interface {
	AdjustStock(ctx context.Context, arg database.AdjustStockParams) (database.MenuItemStock, error)
	SubtractStockIfAvailable(ctx context.Context, arg database.SubtractStockIfAvailableParams) (database.MenuItemStock, error)
	SetStock(ctx context.Context, arg database.SetStockParams) (database.MenuItemStock, error)
	GetStock(ctx context.Context, menuItemID uuid.UUID) (database.MenuItemStock, error)
	ListStock(ctx context.Context) ([]database.MenuItemStock, error)
	ListLowStock(ctx context.Context) ([]database.MenuItemStock, error)
}

// NewStore creates a Store bound to a pool or transaction.
type NewStore func(db database.DBTX) Store

// Adjustment is one raw entry of an adjustment batch. Values arrive as
// strings and are validated together before anything is written.
type Adjustment struct {
	MenuItemID string `json:"menu_item_id"`
	Quantity   string `json:"quantity"`
	Direction  string `json:"direction"`
}

// StockSetting is one raw entry of an absolute-set batch.
type StockSetting struct {
	MenuItemID string `json:"menu_item_id"`
	Stock      string `json:"stock_quantity"`
}

// Availability is the menu-facing view of a stock row.
type Availability struct {
	MenuItemID   uuid.UUID `json:"menu_item_id"`
	CurrentStock int32     `json:"current_stock"`
	Available    bool      `json:"available"`
	LowStock     bool      `json:"low_stock"`
}

type adjustment struct {
	itemID   uuid.UUID
	quantity int32
	subtract bool
}

// Ledger applies stock adjustments in all-or-nothing batches.
type Ledger struct {
	pool     TxBeginner
	reads    Store
	newStore NewStore
	cache    *cache.ReadThrough
	log      logrus.FieldLogger
	now      func() time.Time
}

// NewLedger creates a Ledger. reads serves the cached snapshot queries.
func NewLedger(pool TxBeginner, reads Store, newStore NewStore, rt *cache.ReadThrough, log logrus.FieldLogger) *Ledger {
	return &Ledger{
		pool:     pool,
		reads:    reads,
		newStore: newStore,
		cache:    rt,
		log:      log,
		now:      time.Now,
	}
}

// WithClock overrides the timestamp source for last_restocked.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

// Adjust applies the batch with floor-at-zero subtraction. If any entry is
// malformed or references a missing item, nothing is committed.
func (l *Ledger) Adjust(ctx context.Context, batch []Adjustment) ([]database.MenuItemStock, error) {
	return l.apply(ctx, batch, false)
}

// AdjustStrict applies the batch but fails with *apperr.InsufficientStockError
// instead of clamping. Nothing is committed on failure.
func (l *Ledger) AdjustStrict(ctx context.Context, batch []Adjustment) ([]database.MenuItemStock, error) {
	return l.apply(ctx, batch, true)
}

func (l *Ledger) apply(ctx context.Context, batch []Adjustment, strict bool) ([]database.MenuItemStock, error) {
	parsed, err := parseAdjustments(batch)
	if err != nil {
		return nil, err
	}

	// Lock rows in a consistent order across concurrent batches. Duplicate
	// items keep their relative order so each step clamps independently.
	sort.SliceStable(parsed, func(i, j int) bool {
		return parsed[i].itemID.String() < parsed[j].itemID.String()
	})

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return nil, apperr.FromStore("begin tx", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := l.newStore(tx)
	at := l.now()
	results := make([]database.MenuItemStock, 0, len(parsed))
	for _, a := range parsed {
		var row database.MenuItemStock
		if a.subtract && strict {
			row, err = l.subtractStrict(ctx, store, a, at)
		} else {
			delta := a.quantity
			if a.subtract {
				delta = -delta
			}
			row, err = store.AdjustStock(ctx, database.AdjustStockParams{
				MenuItemID: a.itemID,
				Delta:      delta,
				AdjustedAt: at,
			})
			err = apperr.FromStore("menu item "+a.itemID.String(), err)
		}
		if err != nil {
			return nil, err
		}
		results = append(results, row)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, apperr.FromStore("commit adjustment", err)
	}

	l.cache.Invalidate(FamilyInventory, FamilyMenu)
	l.log.WithFields(logrus.Fields{
		"items":  len(results),
		"strict": strict,
	}).Debug("inventory adjusted")
	return results, nil
}

func (l *Ledger) subtractStrict(ctx context.Context, store Store, a adjustment, at time.Time) (database.MenuItemStock, error) {
	row, err := store.SubtractStockIfAvailable(ctx, database.SubtractStockIfAvailableParams{
		MenuItemID: a.itemID,
		Quantity:   a.quantity,
		AdjustedAt: at,
	})
	if err == nil {
		return row, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return row, apperr.FromStore("menu item "+a.itemID.String(), err)
	}
	current, err := store.GetStock(ctx, a.itemID)
	if err != nil {
		return current, apperr.FromStore("menu item "+a.itemID.String(), err)
	}
	return current, &apperr.InsufficientStockError{
		MenuItemID: a.itemID.String(),
		Available:  current.CurrentStock,
		Requested:  a.quantity,
	}
}

// SetAbsolute overwrites stock levels for manual corrections. Negative values
// are stored as zero. Items without a stock row get one.
func (l *Ledger) SetAbsolute(ctx context.Context, batch []StockSetting) ([]database.MenuItemStock, error) {
	if len(batch) == 0 {
		return nil, apperr.Validation("items", "at least one item is required")
	}
	type setting struct {
		itemID uuid.UUID
		stock  int32
	}
	parsed := make([]setting, len(batch))
	for i, s := range batch {
		id, err := parseItemID(i, s.MenuItemID)
		if err != nil {
			return nil, err
		}
		n, err := strconv.ParseInt(strings.TrimSpace(s.Stock), 10, 32)
		if err != nil {
			return nil, apperr.Validation(fmt.Sprintf("items[%d].stock_quantity", i), "must be an integer")
		}
		if n < 0 {
			n = 0
		}
		parsed[i] = setting{itemID: id, stock: int32(n)}
	}
	sort.SliceStable(parsed, func(i, j int) bool {
		return parsed[i].itemID.String() < parsed[j].itemID.String()
	})

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return nil, apperr.FromStore("begin tx", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := l.newStore(tx)
	at := l.now()
	results := make([]database.MenuItemStock, 0, len(parsed))
	for _, s := range parsed {
		row, err := store.SetStock(ctx, database.SetStockParams{
			MenuItemID: s.itemID,
			Stock:      s.stock,
			AdjustedAt: at,
		})
		if err != nil {
			return nil, apperr.FromStore("menu item "+s.itemID.String(), err)
		}
		results = append(results, row)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, apperr.FromStore("commit stock update", err)
	}

	l.cache.Invalidate(FamilyInventory, FamilyMenu)
	l.log.WithField("items", len(results)).Info("inventory set")
	return results, nil
}

// Snapshot returns every stock row.
func (l *Ledger) Snapshot(ctx context.Context) ([]database.MenuItemStock, error) {
	return cache.GetOrLoad(ctx, l.cache, keySnapshot, 0, func(ctx context.Context) ([]database.MenuItemStock, error) {
		rows, err := l.reads.ListStock(ctx)
		return rows, apperr.FromStore("inventory", err)
	})
}

// LowStock returns rows at or below their low-stock threshold.
func (l *Ledger) LowStock(ctx context.Context) ([]database.MenuItemStock, error) {
	return cache.GetOrLoad(ctx, l.cache, keyLowStock, 0, func(ctx context.Context) ([]database.MenuItemStock, error) {
		rows, err := l.reads.ListLowStock(ctx)
		return rows, apperr.FromStore("inventory", err)
	})
}

// Availability reports which menu items can currently be ordered.
func (l *Ledger) Availability(ctx context.Context) ([]Availability, error) {
	return cache.GetOrLoad(ctx, l.cache, keyAvailability, 0, func(ctx context.Context) ([]Availability, error) {
		rows, err := l.reads.ListStock(ctx)
		if err != nil {
			return nil, apperr.FromStore("inventory", err)
		}
		out := make([]Availability, len(rows))
		for i, r := range rows {
			out[i] = Availability{
				MenuItemID:   r.MenuItemID,
				CurrentStock: r.CurrentStock,
				Available:    r.CurrentStock > 0,
				LowStock:     r.CurrentStock <= r.LowStockThreshold,
			}
		}
		return out, nil
	})
}

func parseAdjustments(batch []Adjustment) ([]adjustment, error) {
	if len(batch) == 0 {
		return nil, apperr.Validation("items", "at least one item is required")
	}
	out := make([]adjustment, len(batch))
	for i, a := range batch {
		id, err := parseItemID(i, a.MenuItemID)
		if err != nil {
			return nil, err
		}
		q, err := strconv.ParseInt(strings.TrimSpace(a.Quantity), 10, 32)
		if err != nil {
			return nil, apperr.Validation(fmt.Sprintf("items[%d].quantity", i), "must be an integer")
		}
		if q < 0 {
			return nil, apperr.Validation(fmt.Sprintf("items[%d].quantity", i), "must be >= 0")
		}
		var subtract bool
		switch a.Direction {
		case enum.DirectionAdd:
		case enum.DirectionSubtract:
			subtract = true
		default:
			return nil, apperr.Validation(fmt.Sprintf("items[%d].direction", i), "must be %q or %q", enum.DirectionAdd, enum.DirectionSubtract)
		}
		out[i] = adjustment{itemID: id, quantity: int32(q), subtract: subtract}
	}
	return out, nil
}

func parseItemID(i int, raw string) (uuid.UUID, error) {
	field := fmt.Sprintf("items[%d].menu_item_id", i)
	if strings.TrimSpace(raw) == "" {
		return uuid.Nil, apperr.Validation(field, "is required")
	}
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, apperr.Validation(field, "invalid id")
	}
	return id, nil
}
