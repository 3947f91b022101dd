// Package migrate applies the embedded schema files to a board database.
//
// Files are named NNNN_description.sql and run in version order. The
// applied version lives in SQLite's user_version pragma.
package migrate

import (
	"database/sql"
	"embed"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
)

//go:embed sql/*.sql
var files embed.FS

type step struct {
	version int
	name    string
	body    string
}

func steps() ([]step, error) {
	names, err := files.ReadDir("sql")
	if err != nil {
		return nil, err
	}
	out := make([]step, 0, len(names))
	for _, n := range names {
		prefix, _, ok := strings.Cut(n.Name(), "_")
		v, err := strconv.Atoi(prefix)
		if !ok || err != nil || v <= 0 {
			return nil, fmt.Errorf("migration %s: name must start with a positive version", n.Name())
		}
		body, err := files.ReadFile(path.Join("sql", n.Name()))
		if err != nil {
			return nil, err
		}
		out = append(out, step{version: v, name: n.Name(), body: string(body)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	for i := 1; i < len(out); i++ {
		if out[i].version == out[i-1].version {
			return nil, fmt.Errorf("migrations %s and %s share version %d", out[i-1].name, out[i].name, out[i].version)
		}
	}
	return out, nil
}

// Migrate brings the schema up to the newest embedded version. Each file
// commits on its own, together with the version bump.
func Migrate(db *sql.DB) error {
	all, err := steps()
	if err != nil {
		return err
	}
	current, err := Current(db)
	if err != nil {
		return err
	}
	for _, s := range all {
		if s.version <= current {
			continue
		}
		if err := apply(db, s); err != nil {
			return fmt.Errorf("migration %s: %w", s.name, err)
		}
	}
	return nil
}

func apply(db *sql.DB, s step) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec(s.body); err != nil {
		return err
	}
	// PRAGMA does not take bind parameters.
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", s.version)); err != nil {
		return err
	}
	return tx.Commit()
}

// Current returns the applied schema version, 0 for a fresh database.
func Current(db *sql.DB) (int, error) {
	var v int
	if err := db.QueryRow(`PRAGMA user_version`).Scan(&v); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}
