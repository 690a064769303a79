package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/genepanel-curator/internal/database"
)

// Store is the entity store: versioned records for panels, genes, regions,
// clinical indications and their associations, plus the append-only history
// tables. All access goes through WithTx so one top-level import operation is
// one atomic transaction.
type Store struct {
	db  *database.DB
	log *logrus.Logger
}

// New creates a store over an open database connection.
func New(db *database.DB, logger *logrus.Logger) *Store {
	return &Store{
		db:  db,
		log: logger,
	}
}

// WithTx runs fn inside a single transaction. Any error rolls back every
// entity creation, link mutation and history write fn performed; a partial
// import is never an observable state.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := s.db.SQL.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	tx := &Tx{
		tx:     sqlTx,
		engine: s.db.Engine,
		log:    s.log,
		now:    func() time.Time { return time.Now().UTC() },
	}

	if err := fn(tx); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			s.log.WithError(rbErr).Error("Failed to roll back transaction")
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Tx is one transaction's view of the store. All entity methods hang off Tx.
type Tx struct {
	tx     *sql.Tx
	engine string
	log    *logrus.Logger
	now    func() time.Time
}

// rebind converts ? placeholders to $N for the postgres engine. Queries in
// this package never embed literal question marks.
func (t *Tx) rebind(query string) string {
	if t.engine != database.EnginePostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (t *Tx) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, t.rebind(query), args...)
}

func (t *Tx) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return t.tx.QueryContext(ctx, t.rebind(query), args...)
}

func (t *Tx) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(ctx, t.rebind(query), args...)
}

// insertID executes an INSERT ... RETURNING id and scans the new row id.
// RETURNING is supported by both engines and avoids LastInsertId, which the
// pgx driver does not implement.
func (t *Tx) insertID(ctx context.Context, query string, args ...any) (int64, error) {
	var id int64
	if err := t.queryRow(ctx, query, args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// joinSymbols flattens an alias/previous symbol list for storage.
func joinSymbols(symbols []string) string {
	return strings.Join(symbols, ",")
}

// splitSymbols is the inverse of joinSymbols.
func splitSymbols(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
