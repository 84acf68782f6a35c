package store

import (
	"database/sql"
	"fmt"
	"io"
	"sync"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/othala-dev/orchd/internal/orchd/store/migrations"
)

// sqlDriver adapts an already-open *sql.DB to golang-migrate's
// database.Driver interface. The ncruces/go-sqlite3 driver has no
// golang-migrate integration of its own, so this package speaks the
// migrate.Driver contract directly against the connection the store
// already owns rather than opening a second one from a URL.
type sqlDriver struct {
	db *sql.DB
	mu sync.Mutex
}

func newSQLDriver(db *sql.DB) database.Driver {
	return &sqlDriver{db: db}
}

func (d *sqlDriver) Open(url string) (database.Driver, error) {
	return nil, fmt.Errorf("sqlDriver.Open is not supported; construct with newSQLDriver")
}

func (d *sqlDriver) Close() error { return nil }

// Lock and Unlock are no-ops: the daemon runs a single migration pass at
// startup against its own private sqlite file, so there is no concurrent
// migrator to race against.
func (d *sqlDriver) Lock() error   { return nil }
func (d *sqlDriver) Unlock() error { return nil }

func (d *sqlDriver) Run(migration io.Reader) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	body, err := io.ReadAll(migration)
	if err != nil {
		return fmt.Errorf("reading migration body: %w", err)
	}
	if _, err := d.db.Exec(string(body)); err != nil {
		return fmt.Errorf("executing migration: %w", err)
	}
	return nil
}

func (d *sqlDriver) SetVersion(version int, dirty bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, err := d.db.Exec(`
CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER NOT NULL, dirty BOOLEAN NOT NULL)
`); err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}
	if _, err := d.db.Exec(`DELETE FROM schema_migrations`); err != nil {
		return fmt.Errorf("clearing schema_migrations table: %w", err)
	}
	if version < 0 {
		return nil
	}
	if _, err := d.db.Exec(`INSERT INTO schema_migrations (version, dirty) VALUES (?, ?)`, version, dirty); err != nil {
		return fmt.Errorf("recording schema version %d: %w", version, err)
	}
	return nil
}

func (d *sqlDriver) Version() (int, bool, error) {
	var version int
	var dirty bool
	err := d.db.QueryRow(`SELECT version, dirty FROM schema_migrations LIMIT 1`).Scan(&version, &dirty)
	if err == sql.ErrNoRows {
		return database.NilVersion, false, nil
	}
	if err != nil {
		// schema_migrations doesn't exist yet on a brand new database.
		return database.NilVersion, false, nil
	}
	return version, dirty, nil
}

func (d *sqlDriver) Drop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	rows, err := d.db.Query(`SELECT name FROM sqlite_master WHERE type = 'table'`)
	if err != nil {
		return fmt.Errorf("listing tables to drop: %w", err)
	}
	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return fmt.Errorf("scanning table name: %w", err)
		}
		tables = append(tables, name)
	}
	rows.Close()

	for _, name := range tables {
		if _, err := d.db.Exec(fmt.Sprintf(`DROP TABLE IF EXISTS %q`, name)); err != nil {
			return fmt.Errorf("dropping table %s: %w", name, err)
		}
	}
	return nil
}

// runMigrations drives the embedded migration set up to the latest
// version against db using the golang-migrate engine.
func runMigrations(db *sql.DB) error {
	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("opening embedded migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "orchd", newSQLDriver(db))
	if err != nil {
		return fmt.Errorf("constructing migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}
