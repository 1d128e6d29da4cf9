package protocol

import (
	"encoding/json"
	"strconv"
)

// Transaction is an ordered sequence of Commands which are applied
// atomically: either the effects of every Command persist, or none do.
// CLOSE and VACUUM fall outside of the atomic envelope.
type Transaction struct {
	Commands []*Command `json:"commands" yaml:"commands"`
	// Version is the target schema version. It seeds the version metadata
	// of a new store on INITIALIZE, and is written by MIGRATE.
	Version int32 `json:"version" yaml:"version"`
	// CompatibleVersion is the minimum schema version with which Version is
	// compatible. It's handled alongside Version.
	CompatibleVersion int32 `json:"compatible_version" yaml:"compatible_version"`
}

// IsClose returns true if the Transaction is the single-command CLOSE form.
func (t *Transaction) IsClose() bool {
	return len(t.Commands) == 1 && t.Commands[0] != nil && t.Commands[0].Type == CommandClose
}

// Validate returns an error if the Transaction is not well-formed.
func (t *Transaction) Validate() error {
	if len(t.Commands) == 0 {
		return NewValidationError("expected at least one Command")
	}
	for i, c := range t.Commands {
		if c == nil {
			return ExtendContext(ExtendContext(
				NewValidationError("expected Command"), "[%d]", i), "Commands")
		} else if err := c.Validate(); err != nil {
			return ExtendContext(ExtendContext(err, "[%d]", i), "Commands")
		} else if c.Type == CommandClose && len(t.Commands) != 1 {
			return ExtendContext(ExtendContext(
				NewValidationError("CLOSE must be the only Command of its Transaction"), "[%d]", i), "Commands")
		}
	}
	if t.Version < 0 {
		return NewValidationError("invalid Version (%d; expected >= 0)", t.Version)
	} else if t.CompatibleVersion < 0 || t.CompatibleVersion > t.Version {
		return NewValidationError("invalid CompatibleVersion (%d; expected 0 <= CompatibleVersion <= %d)",
			t.CompatibleVersion, t.Version)
	}
	return nil
}

// Status of a Response.
type Status int

const (
	StatusOK Status = iota
	// The store could not be opened, or its metadata bootstrapped, or a
	// Command required an initialized store.
	StatusInitializationError
	// The atomic envelope could not begin, or could not commit.
	StatusTransactionError
	// An individual Command failed, and the Transaction was rolled back.
	StatusCommandError
	// The caller passed an invalid Transaction or Command.
	StatusResponseError
)

var statusNames = map[Status]string{
	StatusOK:                  "OK",
	StatusInitializationError: "INITIALIZATION_ERROR",
	StatusTransactionError:    "TRANSACTION_ERROR",
	StatusCommandError:        "COMMAND_ERROR",
	StatusResponseError:       "RESPONSE_ERROR",
}

var statusValues = invert(statusNames)

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return "Status(" + strconv.Itoa(int(s)) + ")"
}

// Validate returns an error if the Status is not known.
func (s Status) Validate() error {
	if _, ok := statusNames[s]; !ok {
		return NewValidationError("invalid Status (%d)", int(s))
	}
	return nil
}

// MarshalText encodes the Status as its name.
func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText decodes a Status from its name.
func (s *Status) UnmarshalText(b []byte) error {
	if v, ok := statusValues[string(b)]; ok {
		*s = v
		return nil
	}
	return NewValidationError("unknown Status (%s)", string(b))
}

// Result of a Transaction. Exactly one of Value or Records is set:
// Value by INITIALIZE (the observed schema version), EXECUTE and RUN
// (the affected row count), and Records by READ.
type Result struct {
	Value   Value    `json:"value,omitempty" yaml:"value,omitempty"`
	Records []Record `json:"records,omitempty" yaml:"records,omitempty"`
}

// ValueResult returns a Result of the Value.
func ValueResult(v Value) *Result { return &Result{Value: v} }

// RecordsResult returns a Result of the Records, which may be empty.
func RecordsResult(records []Record) *Result {
	if records == nil {
		records = []Record{}
	}
	return &Result{Records: records}
}

// IsRecords returns true if the Result holds Records rather than a Value.
func (r *Result) IsRecords() bool { return r.Value == nil }

// MarshalJSON encodes the Result. Unlike the default encoding, empty
// Records are encoded as an empty array.
func (r Result) MarshalJSON() ([]byte, error) {
	if r.Value != nil {
		return json.Marshal(struct {
			Value Value `json:"value"`
		}{r.Value})
	}
	var records = r.Records
	if records == nil {
		records = []Record{}
	}
	return json.Marshal(struct {
		Records []Record `json:"records"`
	}{records})
}

// UnmarshalJSON decodes the Result.
func (r *Result) UnmarshalJSON(b []byte) error {
	var w struct {
		Value   json.RawMessage `json:"value"`
		Records []Record        `json:"records"`
	}
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	if len(w.Value) != 0 {
		var v, err = UnmarshalValueJSON(w.Value)
		if err != nil {
			return ExtendContext(err, "Value")
		}
		*r = Result{Value: v}
		return nil
	}
	*r = *RecordsResult(w.Records)
	return nil
}

// Response to a Transaction. A Response having a non-OK Status never
// carries a Result.
type Response struct {
	Status Status  `json:"status" yaml:"status"`
	Result *Result `json:"result,omitempty" yaml:"result,omitempty"`
}

// Validate returns an error if the Response is not well-formed.
func (r *Response) Validate() error {
	if err := r.Status.Validate(); err != nil {
		return ExtendContext(err, "Status")
	} else if r.Status != StatusOK && r.Result != nil {
		return NewValidationError("unexpected Result with Status %s", r.Status)
	} else if r.Result != nil && r.Result.Value != nil && r.Result.Records != nil {
		return ExtendContext(NewValidationError("expected only one of Value or Records"), "Result")
	}
	return nil
}
