package txnstore

import (
	_ "github.com/lib/pq"           // Registers the "postgres" driver.
	_ "github.com/mattn/go-sqlite3" // Registers the "sqlite3" driver.
	"github.com/pkg/errors"
)

// Dialect captures the SQL which a Database issues on its own behalf, and
// which differs across database/sql drivers.
type Dialect struct {
	// Driver name, as registered with database/sql.
	Driver string
	// TableExists is a query taking a table name as its sole parameter, and
	// returning a count of matching tables.
	TableExists string
	// Vacuum is run after the commit of a Transaction which requested it.
	Vacuum string
	// TrimMemory is run on memory pressure, or is empty if the engine
	// offers no means of releasing cached memory.
	TrimMemory string
	// SupportsInMemory is true if the Dialect may open in-memory databases.
	SupportsInMemory bool
	// ReadsStorageClass is true if READs are run on the driver connection,
	// so that columns are read as their storage class rather than as the
	// driver's interpretation of their declared type.
	ReadsStorageClass bool
}

// SQLite is the Dialect of github.com/mattn/go-sqlite3.
var SQLite = Dialect{
	Driver:            "sqlite3",
	TableExists:       `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = $1;`,
	Vacuum:            `VACUUM;`,
	TrimMemory:        `PRAGMA shrink_memory;`,
	SupportsInMemory:  true,
	ReadsStorageClass: true,
}

// Postgres is the Dialect of github.com/lib/pq.
var Postgres = Dialect{
	Driver: "postgres",
	TableExists: `SELECT COUNT(*) FROM information_schema.tables
		WHERE table_schema = current_schema() AND table_name = $1;`,
	Vacuum: `VACUUM;`,
}

// DialectFor returns the Dialect of a database/sql driver name.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case SQLite.Driver:
		return SQLite, nil
	case Postgres.Driver:
		return Postgres, nil
	default:
		return Dialect{}, errors.Errorf("unsupported driver %q", driver)
	}
}
