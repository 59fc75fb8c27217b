package migrations

import (
	"context"
	"database/sql"
	"fmt"
)

// RunSqliteMigrations applies all embedded SQLite files statement by statement.
func RunSqliteMigrations(ctx context.Context, db *sql.DB) error {
	files, contents, err := readOrdered(SqliteFS, "sqlite")
	if err != nil {
		return err
	}

	for i, file := range files {
		for _, stmt := range splitStatements(contents[i]) {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("apply migration %s: %w", file, err)
			}
		}
	}
	return nil
}
