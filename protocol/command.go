package protocol

import (
	"encoding/json"
	"strconv"
)

// CommandType is the kind of a Command.
type CommandType int

const (
	// INITIALIZE bootstraps schema version metadata, and reports the
	// observed schema version.
	CommandInitialize CommandType = iota
	// READ runs a parameterized query and returns its rows as Records.
	CommandRead
	// EXECUTE runs parameterless SQL, and returns the affected row count.
	CommandExecute
	// RUN runs a parameterized statement, and returns the affected row count.
	CommandRun
	// MIGRATE updates the persisted schema version numbers.
	CommandMigrate
	// VACUUM requests maintenance of the store after a successful commit.
	CommandVacuum
	// CLOSE closes the store. It must be the sole Command of its Transaction.
	CommandClose
)

var commandTypeNames = map[CommandType]string{
	CommandInitialize: "INITIALIZE",
	CommandRead:       "READ",
	CommandExecute:    "EXECUTE",
	CommandRun:        "RUN",
	CommandMigrate:    "MIGRATE",
	CommandVacuum:     "VACUUM",
	CommandClose:      "CLOSE",
}

var commandTypeValues = invert(commandTypeNames)

func (t CommandType) String() string {
	if s, ok := commandTypeNames[t]; ok {
		return s
	}
	return "CommandType(" + strconv.Itoa(int(t)) + ")"
}

// Validate returns an error if the CommandType is not known.
func (t CommandType) Validate() error {
	if _, ok := commandTypeNames[t]; !ok {
		return NewValidationError("invalid CommandType (%d)", int(t))
	}
	return nil
}

// MarshalText encodes the CommandType as its name.
func (t CommandType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// UnmarshalText decodes a CommandType from its name.
func (t *CommandType) UnmarshalText(b []byte) error {
	if v, ok := commandTypeValues[string(b)]; ok {
		*t = v
		return nil
	}
	return NewValidationError("unknown CommandType (%s)", string(b))
}

// ColumnType is a declared type of a result column. Declared column types
// are a legacy means of interpreting READ results: where a Command has no
// declared types, columns are typed by the store itself.
type ColumnType int

const (
	ColumnString ColumnType = iota
	ColumnInt
	ColumnInt64
	ColumnDouble
	ColumnBool
)

var columnTypeNames = map[ColumnType]string{
	ColumnString: "STRING",
	ColumnInt:    "INT",
	ColumnInt64:  "INT64",
	ColumnDouble: "DOUBLE",
	ColumnBool:   "BOOL",
}

var columnTypeValues = invert(columnTypeNames)

func (t ColumnType) String() string {
	if s, ok := columnTypeNames[t]; ok {
		return s
	}
	return "ColumnType(" + strconv.Itoa(int(t)) + ")"
}

// Validate returns an error if the ColumnType is not known.
func (t ColumnType) Validate() error {
	if _, ok := columnTypeNames[t]; !ok {
		return NewValidationError("invalid ColumnType (%d)", int(t))
	}
	return nil
}

// MarshalText encodes the ColumnType as its name.
func (t ColumnType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// UnmarshalText decodes a ColumnType from its name.
func (t *ColumnType) UnmarshalText(b []byte) error {
	if v, ok := columnTypeValues[string(b)]; ok {
		*t = v
		return nil
	}
	return NewValidationError("unknown ColumnType (%s)", string(b))
}

// Binding binds a Value to a zero-based statement parameter Position.
type Binding struct {
	Position int
	Value    Value
}

// Validate returns an error if the Binding is not well-formed.
func (b Binding) Validate() error {
	if b.Position < 0 {
		return NewValidationError("invalid Position (%d; expected >= 0)", b.Position)
	} else if b.Value == nil {
		return NewValidationError("expected Value")
	}
	return nil
}

type bindingWire struct {
	Position int       `json:"position" yaml:"position"`
	Value    valueWire `json:"value" yaml:"value"`
}

// MarshalJSON encodes the Binding with its tagged Value.
func (b Binding) MarshalJSON() ([]byte, error) {
	return json.Marshal(bindingWire{Position: b.Position, Value: toWire(b.Value)})
}

// UnmarshalJSON decodes the Binding and its tagged Value.
func (b *Binding) UnmarshalJSON(raw []byte) error {
	var w bindingWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return err
	}
	var v, err = w.Value.toValue()
	if err != nil {
		return ExtendContext(err, "Value")
	}
	*b = Binding{Position: w.Position, Value: v}
	return nil
}

// MarshalYAML encodes the Binding with its tagged Value.
func (b Binding) MarshalYAML() (interface{}, error) {
	return bindingWire{Position: b.Position, Value: toWire(b.Value)}, nil
}

// UnmarshalYAML decodes the Binding and its tagged Value.
func (b *Binding) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var w bindingWire
	if err := unmarshal(&w); err != nil {
		return err
	}
	var v, err = w.Value.toValue()
	if err != nil {
		return ExtendContext(err, "Value")
	}
	*b = Binding{Position: w.Position, Value: v}
	return nil
}

// Command is a unit of work within a Transaction.
type Command struct {
	Type CommandType `json:"type" yaml:"type"`
	// SQL text of READ, EXECUTE, and RUN commands.
	SQL string `json:"sql,omitempty" yaml:"sql,omitempty"`
	// Bindings of READ and RUN statement parameters.
	Bindings []Binding `json:"bindings,omitempty" yaml:"bindings,omitempty"`
	// RecordBindings optionally declare the column types of READ results.
	RecordBindings []ColumnType `json:"record_bindings,omitempty" yaml:"record_bindings,omitempty"`
}

// Validate returns an error if the Command is not well-formed.
func (c *Command) Validate() error {
	if err := c.Type.Validate(); err != nil {
		return ExtendContext(err, "Type")
	}

	switch c.Type {
	case CommandRead, CommandExecute, CommandRun:
		if c.SQL == "" {
			return NewValidationError("expected SQL for %s", c.Type)
		}
	default:
		if c.SQL != "" {
			return NewValidationError("unexpected SQL for %s", c.Type)
		}
	}

	if len(c.Bindings) != 0 && c.Type != CommandRead && c.Type != CommandRun {
		return NewValidationError("unexpected Bindings for %s", c.Type)
	}
	var seen = make(map[int]struct{}, len(c.Bindings))
	for i, b := range c.Bindings {
		if err := b.Validate(); err != nil {
			return ExtendContext(ExtendContext(err, "[%d]", i), "Bindings")
		} else if _, ok := seen[b.Position]; ok {
			return ExtendContext(ExtendContext(
				NewValidationError("duplicate Position (%d)", b.Position), "[%d]", i), "Bindings")
		}
		seen[b.Position] = struct{}{}
	}

	if len(c.RecordBindings) != 0 && c.Type != CommandRead {
		return NewValidationError("unexpected RecordBindings for %s", c.Type)
	}
	for i, t := range c.RecordBindings {
		if err := t.Validate(); err != nil {
			return ExtendContext(ExtendContext(err, "[%d]", i), "RecordBindings")
		}
	}
	return nil
}

func invert[K comparable](m map[K]string) map[string]K {
	var out = make(map[string]K, len(m))
	for k, v := range m {
		out[v] = k
	}
	return out
}
