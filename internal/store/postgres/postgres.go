// Package postgres implements the store.Store interface backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/alfredjeanlab/kodblock/internal/model"
	"github.com/alfredjeanlab/kodblock/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store implements store.Store backed by a PostgreSQL database.
type Store struct {
	db *sql.DB
}

// Compile-time check that Store implements store.Store.
var _ store.Store = (*Store)(nil)

// New opens a connection to the PostgreSQL database at the given URL,
// configures the connection pool, and runs any pending migrations.
func New(databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateDraft(ctx context.Context, d *model.Draft) error {
	return queryCreateDraft(ctx, s.db, d)
}

func (s *Store) GetDraft(ctx context.Context, id string) (*model.Draft, error) {
	return queryGetDraft(ctx, s.db, id)
}

func (s *Store) ListDrafts(ctx context.Context, filter model.DraftFilter) ([]*model.Draft, int, error) {
	return queryListDrafts(ctx, s.db, filter)
}

func (s *Store) UpdateDraft(ctx context.Context, d *model.Draft) error {
	return queryUpdateDraft(ctx, s.db, d)
}

func (s *Store) DeleteDraft(ctx context.Context, id string) error {
	return queryDeleteDraft(ctx, s.db, id)
}

func (s *Store) RecordEvent(ctx context.Context, e *model.Event) error {
	return queryRecordEvent(ctx, s.db, e)
}

func (s *Store) GetEvents(ctx context.Context, draftID string) ([]*model.Event, error) {
	return queryGetEvents(ctx, s.db, draftID)
}

// RunInTransaction begins a database transaction, creates a txStore that
// delegates to it, calls fn, and commits on success or rolls back on error.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	txS := &txStore{tx: tx}
	if err := fn(txS); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// txStore implements store.Store using a *sql.Tx.
type txStore struct {
	tx *sql.Tx
}

// Compile-time check that txStore implements store.Store.
var _ store.Store = (*txStore)(nil)

func (s *txStore) CreateDraft(ctx context.Context, d *model.Draft) error {
	return queryCreateDraft(ctx, s.tx, d)
}

func (s *txStore) GetDraft(ctx context.Context, id string) (*model.Draft, error) {
	return queryGetDraft(ctx, s.tx, id)
}

func (s *txStore) ListDrafts(ctx context.Context, filter model.DraftFilter) ([]*model.Draft, int, error) {
	return queryListDrafts(ctx, s.tx, filter)
}

func (s *txStore) UpdateDraft(ctx context.Context, d *model.Draft) error {
	return queryUpdateDraft(ctx, s.tx, d)
}

func (s *txStore) DeleteDraft(ctx context.Context, id string) error {
	return queryDeleteDraft(ctx, s.tx, id)
}

func (s *txStore) RecordEvent(ctx context.Context, e *model.Event) error {
	return queryRecordEvent(ctx, s.tx, e)
}

func (s *txStore) GetEvents(ctx context.Context, draftID string) ([]*model.Event, error) {
	return queryGetEvents(ctx, s.tx, draftID)
}

// RunInTransaction on a txStore reuses the existing transaction (no nesting).
func (s *txStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	return fn(s)
}

// Close is a no-op for a transaction store; the parent store owns the connection.
func (s *txStore) Close() error {
	return nil
}
