package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiwari-pos/fulfillment/internal/auth"
	"github.com/kiwari-pos/fulfillment/internal/config"
	"github.com/kiwari-pos/fulfillment/internal/database"
	"github.com/kiwari-pos/fulfillment/internal/enum"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// menuNamespace derives stable menu item ids so reseeding updates the same rows.
var menuNamespace = uuid.MustParse("6f1c7a52-3f0e-4c36-9a8e-2b0d6f4f7c11")

type menuItem struct {
	name      string
	price     string
	stock     int32
	threshold int32
}

var menu = []menuItem{
	{"Nasi Bakar Ayam", "25000", 40, 10},
	{"Nasi Bakar Cumi", "30000", 25, 8},
	{"Es Teh Manis", "5000", 100, 20},
	{"Tahu Tempe", "8000", 6, 10},
}

func menuID(name string) uuid.UUID {
	return uuid.NewSHA1(menuNamespace, []byte(name))
}

func main() {
	// CLI flags
	role := flag.String("role", enum.UserRoleAdmin, "Role of the printed development token")
	orders := flag.Int("orders", 3, "Number of pending demo orders to create")
	migrate := flag.Bool("migrate", true, "Apply migrations before seeding")
	flag.Parse()

	cfg := config.Load()
	log := cfg.NewLogger()

	if *migrate {
		if err := database.Migrate(cfg.MigrationsPath, cfg.DatabaseURL); err != nil {
			log.WithError(err).Fatal("migrate")
		}
	}

	// Connect to database
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("unable to connect to database")
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.WithError(err).Fatal("unable to ping database")
	}

	// Seed in a transaction: all demo rows or none
	tx, err := pool.Begin(ctx)
	if err != nil {
		log.WithError(err).Fatal("failed to begin transaction")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := seedStock(ctx, tx, log); err != nil {
		log.WithError(err).Fatal("failed to seed stock")
	}
	if err := seedOrders(ctx, tx, *orders, log); err != nil {
		log.WithError(err).Fatal("failed to seed orders")
	}

	if err := tx.Commit(ctx); err != nil {
		log.WithError(err).Fatal("failed to commit")
	}

	token, err := auth.GenerateToken(cfg.JWTSecret, uuid.New(), *role)
	if err != nil {
		log.WithError(err).Fatal("failed to issue token")
	}

	log.Info("seed completed successfully")
	fmt.Fprintf(os.Stdout, "%s token (valid %s):\n%s\n", *role, auth.TokenTTL, token)
}

// seedStock upserts the demo menu's stock rows.
func seedStock(ctx context.Context, tx pgx.Tx, log logrus.FieldLogger) error {
	const upsertSQL = `
		INSERT INTO menu_item_stock (menu_item_id, current_stock, low_stock_threshold, last_restocked)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (menu_item_id) DO UPDATE
		SET current_stock = EXCLUDED.current_stock,
		    low_stock_threshold = EXCLUDED.low_stock_threshold,
		    last_restocked = EXCLUDED.last_restocked
	`
	for _, m := range menu {
		if _, err := tx.Exec(ctx, upsertSQL, menuID(m.name), m.stock, m.threshold); err != nil {
			return fmt.Errorf("upsert stock %q: %w", m.name, err)
		}
		log.WithFields(logrus.Fields{"menu_item_id": menuID(m.name), "stock": m.stock}).Info("stock seeded")
	}
	return nil
}

// seedOrders creates n pending orders, each holding two menu lines.
func seedOrders(ctx context.Context, tx pgx.Tx, n int, log logrus.FieldLogger) error {
	var next int
	err := tx.QueryRow(ctx, `SELECT count(*) + 1 FROM orders`).Scan(&next)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("count orders: %w", err)
	}

	q := database.New(tx)
	for i := 0; i < n; i++ {
		lines := []menuItem{menu[i%len(menu)], menu[(i+2)%len(menu)]}
		total := decimal.Zero
		for j, l := range lines {
			total = total.Add(decimal.RequireFromString(l.price).Mul(decimal.NewFromInt(int64(j + 1))))
		}

		var orderID uuid.UUID
		number := fmt.Sprintf("DEMO-%04d", next+i)
		err := tx.QueryRow(ctx,
			`INSERT INTO orders (order_number, total) VALUES ($1, $2) RETURNING id`,
			number, database.DecimalToNumeric(total),
		).Scan(&orderID)
		if err != nil {
			return fmt.Errorf("insert order %s: %w", number, err)
		}

		for j, l := range lines {
			_, err := q.CreateOrderItem(ctx, database.CreateOrderItemParams{
				OrderID:    orderID,
				Position:   int32(j),
				MenuItemID: menuID(l.name),
				Name:       l.name,
				Quantity:   int32(j + 1),
				UnitPrice:  database.DecimalToNumeric(decimal.RequireFromString(l.price)),
			})
			if err != nil {
				return fmt.Errorf("insert items for %s: %w", number, err)
			}
		}
		log.WithFields(logrus.Fields{"order_id": orderID, "order_number": number, "total": total.StringFixed(2)}).Info("order seeded")
	}
	return nil
}
