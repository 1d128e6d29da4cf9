package txnstore

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	pc "go.sqltxn.dev/core/protocol"
)

// rowCursor steps through the rows of a query result.
type rowCursor interface {
	// columns returns the names of result columns.
	columns() ([]string, error)
	// next reads the next row into |dest|, returning false when no rows remain.
	next(dest []interface{}) (bool, error)
}

// sqlRows is a rowCursor of database/sql Rows.
type sqlRows struct{ *sql.Rows }

func (r sqlRows) columns() ([]string, error) { return r.Columns() }

func (r sqlRows) next(dest []interface{}) (bool, error) {
	if !r.Next() {
		return false, r.Err()
	}
	var ptrs = make([]interface{}, len(dest))
	for i := range dest {
		ptrs[i] = &dest[i]
	}
	return true, r.Scan(ptrs...)
}

// driverRows is a rowCursor of driver Rows, which yield values exactly as
// the driver produces them.
type driverRows struct{ driver.Rows }

func (r driverRows) columns() ([]string, error) { return r.Columns(), nil }

func (r driverRows) next(dest []interface{}) (bool, error) {
	var vals = make([]driver.Value, len(dest))
	if err := r.Next(vals); err == io.EOF {
		return false, nil
	} else if err != nil {
		return false, err
	}
	for i, v := range vals {
		dest[i] = v
	}
	return true, nil
}

// readRecords steps through all rows of |cur|, building a Record of each.
func readRecords(cur rowCursor, declared []pc.ColumnType) ([]pc.Record, error) {
	var columns, err = cur.columns()
	if err != nil {
		return nil, errors.WithMessage(err, "reading result columns")
	} else if len(declared) > len(columns) {
		return nil, errors.Errorf("%d record bindings were declared, but result has %d columns",
			len(declared), len(columns))
	}

	var records = []pc.Record{}
	for {
		var raw = make([]interface{}, len(columns))
		if ok, err := cur.next(raw); err != nil {
			return nil, errors.WithMessage(err, "stepping result rows")
		} else if !ok {
			return records, nil
		}
		records = append(records, buildRecord(raw, declared))
	}
}

// buildRecord builds a Record from the |raw| column values of a row. If
// |declared| is non-empty, exactly that many leading columns are read and
// coerced to their declared types. Otherwise every column is read, and its
// Value variant follows the runtime type of the column.
func buildRecord(raw []interface{}, declared []pc.ColumnType) pc.Record {
	if len(declared) != 0 {
		var record = make(pc.Record, len(declared))
		for i, t := range declared {
			record[i] = coerceValue(raw[i], t)
		}
		return record
	}

	var record = make(pc.Record, len(raw))
	for i := range raw {
		record[i] = inferValue(raw[i])
	}
	return record
}

// inferValue maps a scanned column to a Value following its runtime type:
// integers are Int64Value, floats are DoubleValue, text and blobs are
// StringValue, and NULL is NullValue. SQLite columns are read as their
// storage class, but other drivers produce booleans and times of columns
// having those types.
func inferValue(v interface{}) pc.Value {
	switch v := v.(type) {
	case nil:
		return pc.Null
	case int64:
		return pc.Int64Value(v)
	case float64:
		return pc.DoubleValue(v)
	case string:
		return pc.StringValue(v)
	case []byte:
		return pc.StringValue(v)
	case bool:
		return pc.BoolValue(v)
	case time.Time:
		return pc.StringValue(v.Format(time.RFC3339Nano))
	default:
		return pc.StringValue(fmt.Sprint(v))
	}
}

// coerceValue converts a scanned column to the declared ColumnType.
// Conversions follow SQLite's typed column accessors: NULL reads as the
// zero value of the type, text is parsed for a leading number, and
// booleans are integers compared with zero.
func coerceValue(v interface{}, t pc.ColumnType) pc.Value {
	switch t {
	case pc.ColumnString:
		return pc.StringValue(asText(v))
	case pc.ColumnInt:
		return pc.IntValue(int32(asInt64(v)))
	case pc.ColumnInt64:
		return pc.Int64Value(asInt64(v))
	case pc.ColumnDouble:
		return pc.DoubleValue(asFloat64(v))
	case pc.ColumnBool:
		return pc.BoolValue(asInt64(v) != 0)
	default:
		panic(fmt.Sprintf("unexpected ColumnType %v", t))
	}
}

func asText(v interface{}) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case bool:
		if v {
			return "1"
		}
		return "0"
	case time.Time:
		return v.Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(v)
	}
}

func asInt64(v interface{}) int64 {
	switch v := v.(type) {
	case int64:
		return v
	case float64:
		if v >= math.MaxInt64 {
			return math.MaxInt64
		} else if v <= math.MinInt64 {
			return math.MinInt64
		}
		return int64(v)
	case bool:
		if v {
			return 1
		}
		return 0
	case string:
		return parseLeadingInt(v)
	case []byte:
		return parseLeadingInt(string(v))
	default:
		return 0
	}
}

func asFloat64(v interface{}) float64 {
	switch v := v.(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case bool:
		if v {
			return 1
		}
		return 0
	case string, []byte:
		var s = strings.TrimSpace(asText(v))
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
		return float64(parseLeadingInt(s))
	default:
		return 0
	}
}

// parseLeadingInt parses an optionally signed run of leading digits,
// returning zero if there are none.
func parseLeadingInt(s string) int64 {
	s = strings.TrimSpace(s)

	var end int
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	var i, err = strconv.ParseInt(s[:end], 10, 64)
	if err != nil {
		if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
			return i // Saturated at MaxInt64 or MinInt64.
		}
		return 0
	}
	return i
}
