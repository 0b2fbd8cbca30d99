package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/migrate"
)

// DefaultSchema holds the ledger tables when none is configured.
const DefaultSchema = "subkit"

const schemaPlaceholder = "{{schema}}"

//go:embed *.sql
var migrationFS embed.FS

// FS exposes the embedded SQL templates. Every {{schema}} must be replaced
// before the statements are run; Render does that.
var FS = migrationFS

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// NormalizeSchema trims s, falls back to DefaultSchema when it is empty and
// rejects anything that is not a plain SQL identifier.
func NormalizeSchema(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultSchema, nil
	}
	if !identRe.MatchString(s) {
		return "", fmt.Errorf("migrations: invalid schema name %q", s)
	}
	return s, nil
}

// Render returns the embedded migration file with schema substituted.
func Render(file, schema string) (string, error) {
	schema, err := NormalizeSchema(schema)
	if err != nil {
		return "", err
	}
	b, err := fs.ReadFile(migrationFS, file)
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(string(b), schemaPlaceholder, schema), nil
}

// ForSchema builds a bun/migrate registry whose statements target schema.
func ForSchema(schema string) (*migrate.Migrations, error) {
	schema, err := NormalizeSchema(schema)
	if err != nil {
		return nil, err
	}
	files, err := fs.Glob(migrationFS, "*.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(files)

	byName := map[string]*migrate.Migration{}
	var order []string
	for _, file := range files {
		name, comment, up, ok := splitFileName(file)
		if !ok {
			return nil, fmt.Errorf("migrations: unexpected file %q", file)
		}
		m := byName[name]
		if m == nil {
			m = &migrate.Migration{Name: name, Comment: comment}
			byName[name] = m
			order = append(order, name)
		}
		if up {
			m.Up = execFunc(file, schema)
		} else {
			m.Down = execFunc(file, schema)
		}
	}

	reg := migrate.NewMigrations()
	for _, name := range order {
		reg.Add(*byName[name])
	}
	return reg, nil
}

func execFunc(file, schema string) migrate.MigrationFunc {
	return func(ctx context.Context, db *bun.DB) error {
		q, err := Render(file, schema)
		if err != nil {
			return err
		}
		return migrate.Exec(ctx, db, strings.NewReader(q), false)
	}
}

// splitFileName parses "20260101000000_transactions.up.sql".
func splitFileName(file string) (name, comment string, up, ok bool) {
	base := strings.TrimSuffix(file, ".sql")
	switch {
	case strings.HasSuffix(base, ".up"):
		base, up = strings.TrimSuffix(base, ".up"), true
	case strings.HasSuffix(base, ".down"):
		base = strings.TrimSuffix(base, ".down")
	default:
		return "", "", false, false
	}
	name, comment, _ = strings.Cut(base, "_")
	return name, comment, up, name != ""
}

// Migrate applies pending migrations for schema to db and returns the names
// applied.
func Migrate(ctx context.Context, db *sql.DB, schema string) ([]string, error) {
	reg, err := ForSchema(schema)
	if err != nil {
		return nil, err
	}
	m := migrate.NewMigrator(bun.NewDB(db, pgdialect.New()), reg)
	if err := m.Init(ctx); err != nil {
		return nil, err
	}
	if err := m.Lock(ctx); err != nil {
		return nil, err
	}
	defer m.Unlock(ctx) //nolint:errcheck
	group, err := m.Migrate(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(group.Migrations))
	for _, mig := range group.Migrations {
		names = append(names, mig.Name)
	}
	return names, nil
}
