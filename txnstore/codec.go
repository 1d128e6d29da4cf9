package txnstore

import (
	"fmt"

	"github.com/pkg/errors"
	pc "go.sqltxn.dev/core/protocol"
)

// bindArgs maps Bindings to positional statement arguments. Binding
// positions are zero-based, and positions not bound by any Binding are NULL.
func bindArgs(bindings []pc.Binding) ([]interface{}, error) {
	var n int
	for _, b := range bindings {
		if b.Position < 0 {
			return nil, errors.Errorf("invalid binding position %d", b.Position)
		} else if b.Position >= n {
			n = b.Position + 1
		}
	}

	var args = make([]interface{}, n)
	for _, b := range bindings {
		args[b.Position] = driverValue(b.Value)
	}
	return args, nil
}

// driverValue maps a Value to its database/sql driver.Value.
func driverValue(v pc.Value) interface{} {
	switch v := v.(type) {
	case pc.StringValue:
		return string(v)
	case pc.IntValue:
		return int64(v)
	case pc.Int64Value:
		return int64(v)
	case pc.DoubleValue:
		return float64(v)
	case pc.BoolValue:
		return bool(v)
	case pc.NullValue:
		return nil
	default:
		panic(fmt.Sprintf("unexpected Value variant %T", v))
	}
}
