// Package migrate applies the gazette pipeline schema with goose. The
// SQL files under db/migrations create the registry, queue, OCR,
// analysis and webhook tables the workers depend on.
package migrate

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// Dir is where the versioned SQL migrations live, relative to the
// process working directory.
const Dir = "db/migrations"

// Run brings the schema up to date. It uses a dedicated connection so
// a failed migration never poisons the store's pool; the process must
// not serve traffic against a half-migrated schema.
func Run(dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("migrate: open database: %w", err)
	}
	defer db.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("migrate: set dialect: %w", err)
	}
	if err := goose.Up(db, Dir); err != nil {
		return fmt.Errorf("migrate: apply %s: %w", Dir, err)
	}
	return nil
}
