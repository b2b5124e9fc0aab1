// Package dbtest provides transaction doubles for unit tests of components
// that open their own pgx transactions.
package dbtest

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Tx implements pgx.Tx for components that only Begin, Commit and Rollback.
// Statement methods panic so an accidental direct query fails the test.
type Tx struct {
	CommitErr error

	mu        sync.Mutex
	commits   int
	rollbacks int
}

func (m *Tx) Begin(ctx context.Context) (pgx.Tx, error) { panic("not implemented") }

func (m *Tx) Commit(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CommitErr != nil {
		return m.CommitErr
	}
	m.commits++
	return nil
}

func (m *Tx) Rollback(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollbacks++
	return nil
}

func (m *Tx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}
func (m *Tx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}
func (m *Tx) LargeObjects() pgx.LargeObjects { panic("not implemented") }
func (m *Tx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}
func (m *Tx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}
func (m *Tx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	panic("not implemented")
}
func (m *Tx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	panic("not implemented")
}
func (m *Tx) Conn() *pgx.Conn { panic("not implemented") }

// Commits returns how many times Commit succeeded.
func (m *Tx) Commits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commits
}

// Rollbacks counts Rollback calls, including the deferred ones after commit.
func (m *Tx) Rollbacks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rollbacks
}

// Beginner hands out Tx for every Begin call.
type Beginner struct {
	Tx  *Tx
	Err error

	mu     sync.Mutex
	begins int
}

// NewBeginner returns a Beginner backed by a fresh Tx.
func NewBeginner() *Beginner {
	return &Beginner{Tx: &Tx{}}
}

func (m *Beginner) Begin(ctx context.Context) (pgx.Tx, error) {
	m.mu.Lock()
	m.begins++
	m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Tx, nil
}

// Begins returns how many transactions were started.
func (m *Beginner) Begins() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.begins
}
