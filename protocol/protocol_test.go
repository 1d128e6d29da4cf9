package protocol

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	gc "gopkg.in/check.v1"
	"gopkg.in/yaml.v2"
)

// ProtocolSuite tests Transaction & Command validation cases by building
// instances broken in every conceivable way, and incrementally updating them
// until they pass validation.
type ProtocolSuite struct{}

func (s *ProtocolSuite) TestCommandValidationCases(c *gc.C) {
	var cmd = Command{
		Type:           CommandType(42),
		SQL:            "",
		Bindings:       []Binding{{Position: -1, Value: StringValue("a")}, {Position: 1}},
		RecordBindings: []ColumnType{ColumnInt64, ColumnType(12)},
	}
	c.Check(cmd.Validate(), gc.ErrorMatches, `Type: invalid CommandType \(42\)`)
	cmd.Type = CommandRead

	c.Check(cmd.Validate(), gc.ErrorMatches, `expected SQL for READ`)
	cmd.SQL = "SELECT a FROM b WHERE c = ?"

	c.Check(cmd.Validate(), gc.ErrorMatches, `Bindings\[0\]: invalid Position \(-1; expected >= 0\)`)
	cmd.Bindings[0].Position = 1

	c.Check(cmd.Validate(), gc.ErrorMatches, `Bindings\[1\]: expected Value`)
	cmd.Bindings[1].Value = Null

	c.Check(cmd.Validate(), gc.ErrorMatches, `Bindings\[1\]: duplicate Position \(1\)`)
	cmd.Bindings[1].Position = 0

	c.Check(cmd.Validate(), gc.ErrorMatches, `RecordBindings\[1\]: invalid ColumnType \(12\)`)
	cmd.RecordBindings[1] = ColumnBool

	c.Check(cmd.Validate(), gc.IsNil)

	// EXECUTE doesn't take bindings or record bindings.
	cmd.Type = CommandExecute
	c.Check(cmd.Validate(), gc.ErrorMatches, `unexpected Bindings for EXECUTE`)
	cmd.Bindings = nil
	c.Check(cmd.Validate(), gc.ErrorMatches, `unexpected RecordBindings for EXECUTE`)
	cmd.RecordBindings = nil
	c.Check(cmd.Validate(), gc.IsNil)

	// Non-statement commands don't take SQL.
	cmd.Type = CommandVacuum
	c.Check(cmd.Validate(), gc.ErrorMatches, `unexpected SQL for VACUUM`)
	cmd.SQL = ""
	c.Check(cmd.Validate(), gc.IsNil)
}

func (s *ProtocolSuite) TestTransactionValidationCases(c *gc.C) {
	var txn = Transaction{
		Version:           -1,
		CompatibleVersion: 3,
	}
	c.Check(txn.Validate(), gc.ErrorMatches, `expected at least one Command`)

	txn.Commands = []*Command{{Type: CommandInitialize}, nil}
	c.Check(txn.Validate(), gc.ErrorMatches, `Commands\[1\]: expected Command`)
	txn.Commands[1] = &Command{Type: CommandRead}

	c.Check(txn.Validate(), gc.ErrorMatches, `Commands\[1\]: expected SQL for READ`)
	txn.Commands[1].SQL = "SELECT 1"
	txn.Commands = append(txn.Commands, &Command{Type: CommandClose})

	c.Check(txn.Validate(), gc.ErrorMatches,
		`Commands\[2\]: CLOSE must be the only Command of its Transaction`)
	txn.Commands = txn.Commands[:2]

	c.Check(txn.Validate(), gc.ErrorMatches, `invalid Version \(-1; expected >= 0\)`)
	txn.Version = 2

	c.Check(txn.Validate(), gc.ErrorMatches,
		`invalid CompatibleVersion \(3; expected 0 <= CompatibleVersion <= 2\)`)
	txn.CompatibleVersion = 1

	c.Check(txn.Validate(), gc.IsNil)
	c.Check(txn.IsClose(), gc.Equals, false)

	// A sole CLOSE is valid.
	txn.Commands = []*Command{{Type: CommandClose}}
	c.Check(txn.Validate(), gc.IsNil)
	c.Check(txn.IsClose(), gc.Equals, true)
}

func (s *ProtocolSuite) TestResponseValidationCases(c *gc.C) {
	var resp = Response{
		Status: Status(99),
		Result: &Result{Value: IntValue(1), Records: []Record{}},
	}
	c.Check(resp.Validate(), gc.ErrorMatches, `Status: invalid Status \(99\)`)
	resp.Status = StatusCommandError

	c.Check(resp.Validate(), gc.ErrorMatches, `unexpected Result with Status COMMAND_ERROR`)
	resp.Status = StatusOK

	c.Check(resp.Validate(), gc.ErrorMatches, `Result: expected only one of Value or Records`)
	resp.Result.Records = nil

	c.Check(resp.Validate(), gc.IsNil)
}

func (s *ProtocolSuite) TestTransactionYAMLDecoding(c *gc.C) {
	var doc = `
commands:
  - type: INITIALIZE
  - type: RUN
    sql: INSERT INTO t (a, b, c, d, e, f) VALUES (?, ?, ?, ?, ?, ?)
    bindings:
      - {position: 0, value: {string_value: hello}}
      - {position: 1, value: {int_value: 32}}
      - {position: 2, value: {int64_value: 9007199254740993}}
      - {position: 3, value: {double_value: 1.5}}
      - {position: 4, value: {bool_value: false}}
      - {position: 5, value: {null_value: true}}
  - type: READ
    sql: SELECT a, b FROM t
    record_bindings: [STRING, INT]
  - type: VACUUM
version: 4
compatible_version: 2
`
	var txn Transaction
	c.Assert(yaml.UnmarshalStrict([]byte(doc), &txn), gc.IsNil)
	c.Check(txn.Validate(), gc.IsNil)

	c.Check(txn, gc.DeepEquals, Transaction{
		Commands: []*Command{
			{Type: CommandInitialize},
			{
				Type: CommandRun,
				SQL:  "INSERT INTO t (a, b, c, d, e, f) VALUES (?, ?, ?, ?, ?, ?)",
				Bindings: []Binding{
					{Position: 0, Value: StringValue("hello")},
					{Position: 1, Value: IntValue(32)},
					{Position: 2, Value: Int64Value(9007199254740993)},
					{Position: 3, Value: DoubleValue(1.5)},
					{Position: 4, Value: BoolValue(false)},
					{Position: 5, Value: Null},
				},
			},
			{
				Type:           CommandRead,
				SQL:            "SELECT a, b FROM t",
				RecordBindings: []ColumnType{ColumnString, ColumnInt},
			},
			{Type: CommandVacuum},
		},
		Version:           4,
		CompatibleVersion: 2,
	})

	// Round-trip through YAML encoding.
	var b, err = yaml.Marshal(&txn)
	c.Assert(err, gc.IsNil)
	var txn2 Transaction
	c.Assert(yaml.UnmarshalStrict(b, &txn2), gc.IsNil)
	c.Check(txn2, gc.DeepEquals, txn)
}

func (s *ProtocolSuite) TestValueDecodingErrors(c *gc.C) {
	var _, err = UnmarshalValueJSON([]byte(`{}`))
	c.Check(err, gc.ErrorMatches, `expected exactly one value variant \(got 0\)`)

	_, err = UnmarshalValueJSON([]byte(`{"int_value": 1, "string_value": "a"}`))
	c.Check(err, gc.ErrorMatches, `expected exactly one value variant \(got 2\)`)

	_, err = UnmarshalValueJSON([]byte(`{"null_value": false}`))
	c.Check(err, gc.ErrorMatches, `null_value must be true if present`)

	_, err = UnmarshalValueJSON([]byte(`{"int_value": 4294967296}`))
	c.Check(err, gc.NotNil) // Overflows int32.

	var b Binding
	c.Check(json.Unmarshal([]byte(`{"position": 1, "value": {}}`), &b),
		gc.ErrorMatches, `Value: expected exactly one value variant \(got 0\)`)

	var txn Transaction
	c.Check(yaml.Unmarshal([]byte("commands: [{type: FROB}]"), &txn),
		gc.ErrorMatches, `unknown CommandType \(FROB\)`)
}

func (s *ProtocolSuite) TestResponseJSONEncoding(c *gc.C) {
	var cases = []struct {
		resp Response
		json string
	}{
		{Response{Status: StatusOK, Result: ValueResult(IntValue(3))},
			`{"status":"OK","result":{"value":{"int_value":3}}}`},
		{Response{Status: StatusOK, Result: RecordsResult(nil)},
			`{"status":"OK","result":{"records":[]}}`},
		{Response{Status: StatusOK, Result: RecordsResult([]Record{
			{StringValue("a"), Int64Value(1), DoubleValue(0.5), BoolValue(true), Null},
		})},
			`{"status":"OK","result":{"records":[[{"string_value":"a"},{"int64_value":1},` +
				`{"double_value":0.5},{"bool_value":true},{"null_value":true}]]}}`},
		{Response{Status: StatusCommandError},
			`{"status":"COMMAND_ERROR"}`},
	}
	for _, tc := range cases {
		var b, err = json.Marshal(tc.resp)
		c.Check(err, gc.IsNil)
		c.Check(string(b), gc.Equals, tc.json)

		var out Response
		c.Check(json.Unmarshal(b, &out), gc.IsNil)
		c.Check(out, gc.DeepEquals, tc.resp)
	}
}

func (s *ProtocolSuite) TestFormatValue(c *gc.C) {
	c.Check(Record{
		StringValue("str"), IntValue(-3), Int64Value(1 << 40),
		DoubleValue(2.25), BoolValue(true), Null,
	}.Strings(), gc.DeepEquals, []string{
		"str", "-3", "1099511627776", "2.25", "true", "NULL",
	})
	c.Check(Int64Value(1).Kind(), gc.Equals, KindInt64)
	c.Check(Null.Kind().String(), gc.Equals, "null_value")
}

func (s *ProtocolSuite) TestTransactionIDContext(c *gc.C) {
	var _, ok = GetTransactionID(context.Background())
	c.Check(ok, gc.Equals, false)

	var id = uuid.New()
	got, ok := GetTransactionID(WithTransactionID(context.Background(), id))
	c.Check(ok, gc.Equals, true)
	c.Check(got, gc.Equals, id)
}

var _ = gc.Suite(&ProtocolSuite{})

func Test(t *testing.T) { gc.TestingT(t) }
