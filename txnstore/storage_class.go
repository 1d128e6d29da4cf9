package txnstore

import (
	"context"
	"database/sql"
	"database/sql/driver"

	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	pc "go.sqltxn.dev/core/protocol"
)

// queryStorageClasses runs |query| directly on the SQLite connection of
// |conn|, and reads its rows such that each column Value follows the
// storage class of the column in that row.
//
// Rows of database/sql instead carry go-sqlite3's conversions of columns
// declared as DATE, DATETIME, TIMESTAMP or BOOLEAN: integers and text become
// times, and integers become booleans. The original values can't be
// recovered from the conversion, so it's disabled. SQLiteRows.Next consults
// the declared types returned by DeclTypes, and they're cleared before the
// first row is read.
//
// The query runs within any transaction currently open on |conn|.
func queryStorageClasses(ctx context.Context, conn *sql.Conn, query string, args []interface{}, declared []pc.ColumnType) ([]pc.Record, error) {
	var records []pc.Record

	var err = conn.Raw(func(dc interface{}) error {
		var sc, ok = dc.(*sqlite3.SQLiteConn)
		if !ok {
			return errors.Errorf("expected a SQLite connection (got %T)", dc)
		}

		var named = make([]driver.NamedValue, len(args))
		for i, arg := range args {
			named[i] = driver.NamedValue{Ordinal: i + 1, Value: arg}
		}
		var rows, err = sc.QueryContext(ctx, query, named)
		if err != nil {
			return err
		}
		defer rows.Close()

		if sr, ok := rows.(*sqlite3.SQLiteRows); ok {
			var decltypes = sr.DeclTypes()
			for i := range decltypes {
				decltypes[i] = ""
			}
		}
		records, err = readRecords(driverRows{rows}, declared)
		return err
	})
	return records, err
}
