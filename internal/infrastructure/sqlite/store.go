// Package sqlite implementa los puertos de persistencia sobre SQLite (sqlx + go-sqlite3).
// Un solo escritor: la conexión única serializa las transacciones.
package sqlite

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

const currentSchemaVersion = 1

// Querier abstrae *sqlx.DB y *sqlx.Tx para que los repositorios funcionen dentro o fuera de tx.
type Querier interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// Store agrupa la conexión SQLite del ledger.
type Store struct {
	db *sqlx.DB
}

// Open crea o abre la base en path, aplica pragmas (WAL, busy_timeout, foreign_keys) y el esquema.
// Es idempotente.
func Open(path string) (*Store, error) {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	dsn := path + sep + "_busy_timeout=5000&_foreign_keys=on&_journal_mode=WAL"

	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func applySchema(db *sqlx.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	var version int
	if err := db.Get(&version, "PRAGMA user_version"); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version < currentSchemaVersion {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
	}
	return nil
}

// Close cierra la conexión.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB expone la conexión para consultas directas (tests, diagnóstico).
func (s *Store) DB() *sqlx.DB { return s.db }

// Movements repositorio de movimientos fuera de transacción.
func (s *Store) Movements() *MovementRepo { return NewMovementRepository(s.db) }

// Lots repositorio de lotes fuera de transacción.
func (s *Store) Lots() *LotRepo { return NewLotRepository(s.db) }

// Allocations repositorio de asignaciones fuera de transacción.
func (s *Store) Allocations() *AllocationRepo { return NewAllocationRepository(s.db) }

// TxRunner runner transaccional sobre esta base.
func (s *Store) TxRunner() *TxRunner { return NewTxRunner(s.db) }
