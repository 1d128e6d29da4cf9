// Package protocol defines the serializable description of database work:
// Transactions composed of typed Commands, the tagged Values which are bound
// to statement parameters and read from result rows, and the Response which
// a store returns for each Transaction.
//
// Values are a closed variant over string, int32, int64, double, bool, and
// null. They encode to JSON and YAML as a single-key map naming the variant:
//
//	commands:
//	  - type: RUN
//	    sql: INSERT INTO rewards (id, amount) VALUES (?, ?)
//	    bindings:
//	      - position: 0
//	        value: {string_value: abc}
//	      - position: 1
//	        value: {double_value: 1.5}
//	  - type: READ
//	    sql: SELECT id, amount FROM rewards
//	version: 3
//	compatible_version: 1
//
// Binding positions are zero-based.
package protocol
