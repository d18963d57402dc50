package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // Enable sqlite3 driver
	"github.com/myrjola/canonforge/internal/errors"
)

//go:embed schema.sql
var schemaDefinition string

type Database struct {
	ReadWrite *sqlx.DB
	ReadOnly  *sqlx.DB
	logger    *slog.Logger
	// scratchPath is the backing file of an in-memory database that is removed on Close.
	scratchPath string
	// stopOptimizer cancels the optimizer goroutine and optimizerDone is closed once it has exited.
	stopOptimizer context.CancelFunc
	optimizerDone chan struct{}
}

// NewDatabase connects to database and synchronizes the schema.
//
// It establishes two database connections, one for read/write operations and one for read-only operations.
// This is a best practice mentioned in https://github.com/mattn/go-sqlite3/issues/1179#issuecomment-1638083995
//
// The url parameter is the path to the SQLite database file or ":memory:" for a throwaway database.
func NewDatabase(ctx context.Context, url string, logger *slog.Logger) (*Database, error) {
	var (
		db  *Database
		err error
	)
	if db, err = connect(ctx, url, logger); err != nil {
		return nil, errors.Wrap(err, "connect")
	}

	if err = db.migrateTo(ctx, schemaDefinition); err != nil {
		return nil, errors.Join(errors.Wrap(err, "synchronize schema"), db.Close())
	}

	var optimizerCtx context.Context
	optimizerCtx, db.stopOptimizer = context.WithCancel(context.WithoutCancel(ctx))
	db.optimizerDone = make(chan struct{})
	go func() {
		defer close(db.optimizerDone)
		db.startDatabaseOptimizer(optimizerCtx)
	}()

	return db, nil
}

// connect opens the connection pools without touching the schema.
func connect(ctx context.Context, url string, logger *slog.Logger) (*Database, error) {
	var (
		err         error
		readWriteDB *sqlx.DB
		readDB      *sqlx.DB
		scratchPath string
	)

	// Parallel tests need isolated databases. A file in the temp dir keeps WAL semantics so that the read-only pool
	// sees committed writes without the table locks of shared-cache memory databases.
	if strings.Contains(url, ":memory:") {
		scratchPath = filepath.Join(os.TempDir(), fmt.Sprintf("canonforge-%s.sqlite", uuid.NewString()))
		url = scratchPath
	}
	commonConfig := strings.Join([]string{
		// Write-ahead logging enables higher performance and concurrent readers.
		"_journal_mode=wal",
		// Avoids SQLITE_BUSY errors when database is under load.
		"_busy_timeout=5000",
		// Increases performance at the cost of durability https://www.sqlite.org/pragma.html#pragma_synchronous.
		"_synchronous=normal",
		// Enables foreign key constraints.
		"_foreign_keys=on",
		// Performance enhancement by storing temporary tables indices in memory instead of files.
		"_temp_store=memory",
	}, "&")

	// The options prefixed with underscore '_' are SQLite pragmas documented at https://www.sqlite.org/pragma.html.
	// The options without leading underscore are SQLite URI parameters documented at https://www.sqlite.org/uri.html.
	readConfig := fmt.Sprintf("file:%s?mode=ro&_txlock=deferred&_query_only=true&%s", url, commonConfig)
	readWriteConfig := fmt.Sprintf("file:%s?mode=rwc&_txlock=immediate&%s", url, commonConfig)

	if readWriteDB, err = sqlx.ConnectContext(ctx, "sqlite3", readWriteConfig); err != nil {
		return nil, errors.Wrap(err, "open read-write database", slog.String("url", url))
	}

	// SQLite allows a single writer. Serializing writes in the pool avoids SQLITE_BUSY storms.
	readWriteDB.SetMaxOpenConns(1)
	readWriteDB.SetMaxIdleConns(1)
	readWriteDB.SetConnMaxLifetime(time.Hour)
	readWriteDB.SetConnMaxIdleTime(time.Hour)

	if readDB, err = sqlx.ConnectContext(ctx, "sqlite3", readConfig); err != nil {
		return nil, errors.Join(
			errors.Wrap(err, "open read database", slog.String("url", url)),
			readWriteDB.Close(),
		)
	}

	maxReadConns := 10
	readDB.SetMaxOpenConns(maxReadConns)
	readDB.SetMaxIdleConns(maxReadConns)
	readDB.SetConnMaxLifetime(time.Hour)
	readDB.SetConnMaxIdleTime(time.Hour)

	return &Database{
		ReadWrite:   readWriteDB,
		ReadOnly:    readDB,
		logger:      logger.With("source", "sqlite"),
		scratchPath: scratchPath,
	}, nil
}

// Transact runs fn inside a read-write transaction. The transaction is committed when fn returns nil and rolled back
// otherwise.
func (db *Database) Transact(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	var (
		tx  *sqlx.Tx
		err error
	)
	if tx, err = db.ReadWrite.BeginTxx(ctx, nil); err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	defer func() {
		if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
			db.logger.LogAttrs(ctx, slog.LevelError, "failed to rollback transaction",
				errors.SlogError(errors.Wrap(rollbackErr, "rollback")))
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "commit transaction")
	}
	return nil
}

// Close closes both connection pools and removes the scratch file of an in-memory database.
func (db *Database) Close() error {
	if db.stopOptimizer != nil {
		db.stopOptimizer()
		<-db.optimizerDone
	}
	err := errors.Join(db.ReadOnly.Close(), db.ReadWrite.Close())
	if db.scratchPath != "" {
		for _, suffix := range []string{"", "-wal", "-shm"} {
			if rmErr := os.Remove(db.scratchPath + suffix); rmErr != nil && !os.IsNotExist(rmErr) {
				err = errors.Join(err, rmErr)
			}
		}
	}
	if err != nil {
		return errors.Wrap(err, "close database")
	}
	return nil
}
