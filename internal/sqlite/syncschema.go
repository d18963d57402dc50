package sqlite

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/myrjola/canonforge/internal/errors"
)

// migrateTo ensures that the db schema matches the target schema definition.
//
// We employ a very simple declarative schema migration that:
//
// 1. Deletes deleted tables,
// 2. Creates new tables,
// 3. Migrates changed tables using 12-step schema migration https://www.sqlite.org/lang_altertable.html#otheralter,
// 4. Drops and recreates indexes and triggers whose definition changed.
//
// Inspired by https://david.rothlis.net/declarative-schema-migration-for-sqlite/
func (db *Database) migrateTo(ctx context.Context, schemaDefinition string) error {
	var (
		conn *sqlx.Conn
		err  error
	)
	// The pragmas and the attached schema are connection state, so the whole migration runs on one connection.
	if conn, err = db.ReadWrite.Connx(ctx); err != nil {
		return errors.Wrap(err, "reserve connection")
	}
	defer func() {
		if closeErr := conn.Close(); closeErr != nil {
			db.logger.LogAttrs(ctx, slog.LevelError, "failed to release connection",
				errors.SlogError(errors.Wrap(closeErr, "close connection")))
		}
	}()

	// Step 1: Disable foreign key validation temporarily. It is a no-op inside a transaction.
	if _, err = conn.ExecContext(ctx, "PRAGMA foreign_keys = OFF"); err != nil {
		return errors.Wrap(err, "disable foreign key validation")
	}
	// Step 12: Re-enable foreign key validation.
	defer func() {
		if _, fkErr := conn.ExecContext(context.WithoutCancel(ctx), "PRAGMA foreign_keys = ON"); fkErr != nil {
			// The connection would otherwise return to the pool without foreign key enforcement.
			_ = conn.Raw(func(any) error { return driver.ErrBadConn })
			db.logger.LogAttrs(ctx, slog.LevelError, "discarded connection without foreign key validation",
				errors.SlogError(errors.Wrap(fkErr, "re-enable foreign key validation")))
		}
	}()

	// Create schema against a temporary database so that we know what has changed.
	targetName := fmt.Sprintf("file:schema-%s?mode=memory&cache=shared", uuid.NewString())
	var target *sql.DB
	if target, err = sql.Open("sqlite3", targetName); err != nil {
		return errors.Wrap(err, "open schema target database")
	}
	defer func() {
		if closeErr := target.Close(); closeErr != nil {
			db.logger.LogAttrs(ctx, slog.LevelError, "failed to close schema target database",
				errors.SlogError(errors.Wrap(closeErr, "close schema target database")))
		}
	}()
	// Keep one connection open so the shared memory database survives until it is attached.
	target.SetMaxIdleConns(1)
	if _, err = target.ExecContext(ctx, schemaDefinition); err != nil {
		return errors.Wrap(err, "migrate schema target database")
	}
	if _, err = conn.ExecContext(ctx, "ATTACH DATABASE ? AS schemaTarget", targetName); err != nil {
		return errors.Wrap(err, "attach schema target database")
	}
	defer func() {
		if _, detachErr := conn.ExecContext(context.WithoutCancel(ctx), "DETACH DATABASE schemaTarget"); detachErr != nil {
			db.logger.LogAttrs(ctx, slog.LevelError, "failed to detach schema target database",
				errors.SlogError(errors.Wrap(detachErr, "detach")))
		}
	}()

	// Step 2: Start transaction.
	var tx *sqlx.Tx
	if tx, err = conn.BeginTxx(ctx, nil); err != nil {
		return errors.Wrap(err, "start transaction")
	}
	defer func() {
		if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
			db.logger.LogAttrs(ctx, slog.LevelError, "failed to rollback transaction",
				errors.SlogError(errors.Wrap(rollbackErr, "rollback")))
		}
	}()

	// Step 3-7 migrate tables.
	if err = db.migrateTables(ctx, tx); err != nil {
		return errors.Wrap(err, "migrate tables")
	}

	// Step 8: Recreate indexes and triggers associated with table if needed.
	// Step 9: Views are not used.
	if err = db.migrateSchemaObjects(ctx, tx); err != nil {
		return errors.Wrap(err, "migrate indexes and triggers")
	}

	// Step 10: Check foreign key constraints.
	var violations []string
	if violations, err = queryStrings(ctx, tx, `SELECT "table" FROM pragma_foreign_key_check`); err != nil {
		return errors.Wrap(err, "foreign key check")
	}
	if len(violations) > 0 {
		return errors.New("foreign key violations after migration",
			slog.String("tables", strings.Join(violations, ",")))
	}

	// Step 11: Commit transaction from step 2.
	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "commit transaction")
	}

	return nil
}

// migrateTables ensures table schema is synchronized between databases.
func (db *Database) migrateTables(ctx context.Context, tx *sqlx.Tx) error {
	var err error

	var deletedTables []string
	if deletedTables, err = queryStrings(ctx, tx, `SELECT current.name
FROM sqlite_schema AS current
LEFT JOIN schemaTarget.sqlite_schema AS target ON current.name = target.name AND current.type = target.type
WHERE current.type = 'table' AND target.type IS NULL AND current.name NOT LIKE 'sqlite_%'`); err != nil {
		return errors.Wrap(err, "query deleted tables")
	}
	for _, table := range deletedTables {
		db.logger.LogAttrs(ctx, slog.LevelInfo, "dropping table", slog.String("table", table))
		if _, err = tx.ExecContext(ctx, fmt.Sprintf("DROP TABLE %q", table)); err != nil {
			return errors.Wrap(err, "drop table", slog.String("table", table))
		}
	}

	var newTableSQLs []string
	if newTableSQLs, err = queryStrings(ctx, tx, `SELECT target.sql
FROM schemaTarget.sqlite_schema AS target
LEFT JOIN sqlite_schema AS current ON current.name = target.name AND current.type = target.type
WHERE target.type = 'table' AND current.type IS NULL AND target.name NOT LIKE 'sqlite_%'`); err != nil {
		return errors.Wrap(err, "query new tables")
	}
	for _, newTableSQL := range newTableSQLs {
		db.logger.LogAttrs(ctx, slog.LevelInfo, "creating table", slog.String("query", newTableSQL))
		if _, err = tx.ExecContext(ctx, newTableSQL); err != nil {
			return errors.Wrap(err, "create table", slog.String("query", newTableSQL))
		}
	}

	var changedTables []changedObject
	if changedTables, err = queryChangedObjects(ctx, tx, "table"); err != nil {
		return errors.Wrap(err, "query changed tables")
	}
	for _, table := range changedTables {
		db.logger.LogAttrs(ctx, slog.LevelInfo, "migrating table",
			slog.String("table", table.Name),
			slog.String("current_sql", table.CurrentSQL),
			slog.String("new_sql", table.NewSQL))

		// Step 4: Create tables according to new schema on temporary names.
		tempName := table.Name + "_migration_temp"
		tempNameSQL := strings.Replace(table.NewSQL, table.Name, tempName, 1)
		if _, err = tx.ExecContext(ctx, tempNameSQL); err != nil {
			return errors.Wrap(err, "create new table to temporary name", slog.String("query", tempNameSQL))
		}

		// Step 5: Copy common columns between tables. Column names are quoted since some are SQLite keywords.
		var commonColumns []string
		if commonColumns, err = queryStrings(ctx, tx, `SELECT '"' || target.name || '"'
FROM pragma_table_info(:table_name) AS current
JOIN pragma_table_info(:table_name, 'schemaTarget') AS target ON target.name = current.name`,
			sql.Named("table_name", table.Name)); err != nil {
			return errors.Wrap(err, "query common columns")
		}
		if len(commonColumns) > 0 {
			common := strings.Join(commonColumns, ", ")
			copySQL := fmt.Sprintf("INSERT INTO %q (%s) SELECT %s FROM %q", //nolint:gosec // names come from the schema.
				tempName, common, common, table.Name)
			if _, err = tx.ExecContext(ctx, copySQL); err != nil {
				return errors.Wrap(err, "copy data", slog.String("query", copySQL))
			}
		}

		// Step 6: Drop the old table.
		if _, err = tx.ExecContext(ctx, fmt.Sprintf("DROP TABLE %q", table.Name)); err != nil {
			return errors.Wrap(err, "drop old table", slog.String("table", table.Name))
		}

		// Step 7: Rename new table to old table's name.
		if _, err = tx.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %q RENAME TO %q", tempName, table.Name)); err != nil {
			return errors.Wrap(err, "rename new table", slog.String("table", table.Name))
		}
	}
	return nil
}

// migrateSchemaObjects synchronizes indexes and triggers. Dropping a table in step 6 drops its indexes and
// triggers too, so anything missing from the current schema is recreated here.
func (db *Database) migrateSchemaObjects(ctx context.Context, tx *sqlx.Tx) error {
	for _, objectType := range []string{"index", "trigger"} {
		var (
			stale []string
			err   error
		)
		if stale, err = queryStrings(ctx, tx, `SELECT current.name
FROM sqlite_schema AS current
LEFT JOIN schemaTarget.sqlite_schema AS target ON current.name = target.name AND current.type = target.type
WHERE current.type = :type AND current.sql IS NOT NULL
  AND (target.type IS NULL OR target.sql <> current.sql)`, sql.Named("type", objectType)); err != nil {
			return errors.Wrap(err, "query stale objects", slog.String("type", objectType))
		}
		for _, name := range stale {
			db.logger.LogAttrs(ctx, slog.LevelInfo, "dropping schema object",
				slog.String("type", objectType), slog.String("name", name))
			if _, err = tx.ExecContext(ctx, fmt.Sprintf("DROP %s %q", strings.ToUpper(objectType), name)); err != nil {
				return errors.Wrap(err, "drop schema object", slog.String("name", name))
			}
		}

		var missing []string
		if missing, err = queryStrings(ctx, tx, `SELECT target.sql
FROM schemaTarget.sqlite_schema AS target
LEFT JOIN sqlite_schema AS current ON current.name = target.name AND current.type = target.type
WHERE target.type = :type AND target.sql IS NOT NULL AND current.type IS NULL`,
			sql.Named("type", objectType)); err != nil {
			return errors.Wrap(err, "query missing objects", slog.String("type", objectType))
		}
		for _, createSQL := range missing {
			db.logger.LogAttrs(ctx, slog.LevelInfo, "creating schema object", slog.String("query", createSQL))
			if _, err = tx.ExecContext(ctx, createSQL); err != nil {
				return errors.Wrap(err, "create schema object", slog.String("query", createSQL))
			}
		}
	}
	return nil
}

// queryStrings returns the single string column of a query.
func queryStrings(ctx context.Context, tx *sqlx.Tx, query string, args ...any) ([]string, error) {
	var results []string
	if err := tx.SelectContext(ctx, &results, query, args...); err != nil {
		return nil, errors.Wrap(err, "select strings")
	}
	return results, nil
}

type changedObject struct {
	Name       string `db:"name"`
	CurrentSQL string `db:"current_sql"`
	NewSQL     string `db:"new_sql"`
}

// queryChangedObjects returns objects of the given type whose definition differs between the current and target
// schema.
func queryChangedObjects(ctx context.Context, tx *sqlx.Tx, objectType string) ([]changedObject, error) {
	var changed []changedObject
	if err := tx.SelectContext(ctx, &changed, `SELECT current.name AS name, current.sql AS current_sql,
       target.sql AS new_sql
FROM sqlite_schema AS current
JOIN schemaTarget.sqlite_schema AS target ON current.name = target.name AND current.type = target.type
WHERE current.type = ? AND current.name NOT LIKE 'sqlite_%' AND current.sql <> target.sql`, objectType); err != nil {
		return nil, errors.Wrap(err, "select changed objects", slog.String("type", objectType))
	}
	return changed, nil
}
