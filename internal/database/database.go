package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"smarterdog/internal/config"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrSlotTaken      = errors.New("groomer is already booked for this time")
	ErrNotCancellable = errors.New("appointment can no longer be cancelled")
	ErrInvalidInput   = errors.New("invalid input")
)

// DB is the salon datastore. Queries are built with squirrel so the same
// code runs on SQLite and PostgreSQL.
type DB struct {
	*sql.DB
	driver string
	sb     sq.StatementBuilderType
	logger *zerolog.Logger
}

// Open connects using the configured driver and applies the schema.
func Open(cfg config.DatabaseConfig, logger *zerolog.Logger) (*DB, error) {
	switch cfg.Driver {
	case DriverPostgres:
		return NewPostgresDB(cfg.Postgres, logger)
	case DriverSQLite, "":
		return NewDB(cfg.Path, logger)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// NewDB opens a SQLite database. ":memory:" gives a private in-memory store.
func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	dsn := path
	if path != ":memory:" {
		// Создаем директорию для БД, если её нет
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = "file:" + path + "?_foreign_keys=on&_busy_timeout=5000&_txlock=immediate"
	}

	conn, err := sql.Open(DriverSQLite, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		// every connection would get its own empty database
		conn.SetMaxOpenConns(1)
	}

	db := &DB{
		DB:     conn,
		driver: DriverSQLite,
		sb:     sq.StatementBuilder.PlaceholderFormat(sq.Question),
		logger: logger,
	}
	if err := db.init(); err != nil {
		conn.Close()
		return nil, err
	}

	logger.Info().Str("driver", DriverSQLite).Str("path", path).Msg("Database initialized")
	return db, nil
}

// NewPostgresDB opens a PostgreSQL database through lib/pq.
func NewPostgresDB(cfg config.PostgresConfig, logger *zerolog.Logger) (*DB, error) {
	conn, err := sql.Open(DriverPostgres, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if cfg.MaxConnections > 0 {
		conn.SetMaxOpenConns(cfg.MaxConnections)
	}

	db := &DB{
		DB:     conn,
		driver: DriverPostgres,
		sb:     sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		logger: logger,
	}
	if err := db.init(); err != nil {
		conn.Close()
		return nil, err
	}

	logger.Info().Str("driver", DriverPostgres).Str("host", cfg.Host).Str("dbname", cfg.DBName).Msg("Database initialized")
	return db, nil
}

func (db *DB) init() error {
	if err := db.Ping(context.Background()); err != nil {
		return err
	}
	if err := createTables(db.DB, db.driver); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

func (db *DB) Driver() string {
	return db.driver
}

func (db *DB) Ping(ctx context.Context) error {
	if err := db.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	return nil
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// withTx runs fn in a transaction and commits when fn returns nil.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
