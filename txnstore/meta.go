package txnstore

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
)

// MetaTable is the name of the table reserved for schema version metadata.
const MetaTable = "meta"

// metaTable tracks the schema version numbers persisted in MetaTable.
// It permits just one row.
type metaTable struct {
	// version is the schema version currently known to the session. It's the
	// version observed by the session's first INITIALIZE, as updated by any
	// subsequent MIGRATE.
	version int32
	// compatible is the minimum compatible schema version.
	compatible int32
}

// initMetaTable attaches to the MetaTable of the store, creating it if it
// doesn't yet exist. A newly created table is seeded with |version| and
// |compatible|, but the observed version of a new store is zero.
//
// Note that seeding is not atomic with respect to the first migration: for a
// time a new store has |version| in its MetaTable, even though no migration
// has run. The first MIGRATE is expected to immediately overwrite it.
func initMetaTable(ctx context.Context, tx *sql.Tx, dialect Dialect, version, compatible int32) (*metaTable, error) {
	var count int
	if err := tx.QueryRowContext(ctx, dialect.TableExists, MetaTable).Scan(&count); err != nil {
		return nil, errors.WithMessage(err, "checking for meta table")
	}

	if count == 0 {
		if _, err := tx.ExecContext(ctx, `
			CREATE TABLE `+MetaTable+` (
				id                 INTEGER PRIMARY KEY CHECK (id = 0), -- Permit just one row.
				version            INTEGER NOT NULL,
				compatible_version INTEGER NOT NULL
			);`); err != nil {
			return nil, errors.WithMessage(err, "creating meta table")
		}
	}

	var m = new(metaTable)
	var err = tx.QueryRowContext(ctx,
		`SELECT version, compatible_version FROM `+MetaTable+` WHERE id = 0;`,
	).Scan(&m.version, &m.compatible)

	if err == sql.ErrNoRows {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO `+MetaTable+` (id, version, compatible_version) VALUES (0, $1, $2);`,
			version, compatible,
		); err != nil {
			return nil, errors.WithMessage(err, "seeding meta table")
		}
		*m = metaTable{version: 0, compatible: compatible}
	} else if err != nil {
		return nil, errors.WithMessage(err, "reading meta table")
	}
	return m, nil
}

// setVersions persists |version| and |compatible| to the MetaTable.
// No check of monotonicity is made.
func (m *metaTable) setVersions(ctx context.Context, tx *sql.Tx, version, compatible int32) error {
	var res, err = tx.ExecContext(ctx,
		`UPDATE `+MetaTable+` SET version = $1, compatible_version = $2 WHERE id = 0;`,
		version, compatible)

	var n int64
	if err == nil {
		n, err = res.RowsAffected()
	}
	if err == nil && n != 1 {
		err = errors.Errorf("expected to update one meta row (updated %d)", n)
	}
	if err != nil {
		return errors.WithMessage(err, "updating meta table")
	}
	m.version, m.compatible = version, compatible
	return nil
}
