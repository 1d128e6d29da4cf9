package sqltxncmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	mbp "go.sqltxn.dev/core/mainboilerplate"
	"go.sqltxn.dev/core/pressure"
	pc "go.sqltxn.dev/core/protocol"
	"go.sqltxn.dev/core/task"
	"go.sqltxn.dev/core/txnstore"
)

const setupYAML = `
commands:
  - type: INITIALIZE
  - type: EXECUTE
    sql: CREATE TABLE kv (k TEXT PRIMARY KEY, v INTEGER)
  - type: MIGRATE
version: 3
compatible_version: 2
---
commands:
  - type: RUN
    sql: INSERT INTO kv (k, v) VALUES ($1, $2)
    bindings:
      - {position: 0, value: {string_value: answer}}
      - {position: 1, value: {int64_value: 42}}
  - type: READ
    sql: SELECT k, v FROM kv
`

func TestRunCommand(t *testing.T) {
	var out = setupTest(t, afero.NewMemMapFs())
	require.NoError(t, afero.WriteFile(Fs, "setup.yaml", []byte(setupYAML), 0644))

	var cmd = &cmdRun{OutputConfig{Format: "json"}}
	require.NoError(t, cmd.Execute([]string{"setup.yaml"}))

	var lines = decodeLines(t, out)
	require.Len(t, lines, 2)
	require.Equal(t, "setup.yaml#0", lines[0].Name)
	require.Equal(t, pc.StatusOK, lines[0].Response.Status)
	require.Equal(t, "setup.yaml#1", lines[1].Name)
	require.Equal(t, pc.Response{
		Status: pc.StatusOK,
		Result: pc.RecordsResult([]pc.Record{{pc.StringValue("answer"), pc.Int64Value(42)}}),
	}, lines[1].Response)

	// A failing transaction stops the run.
	require.NoError(t, afero.WriteFile(Fs, "dup.yaml", []byte(`
commands:
  - type: INITIALIZE
  - type: EXECUTE
    sql: INSERT INTO kv (k, v) VALUES ('answer', 1)
---
commands:
  - type: INITIALIZE
`), 0644))

	out.Reset()
	require.EqualError(t, cmd.Execute([]string{"dup.yaml"}),
		"dup.yaml#0: transaction failed (COMMAND_ERROR)")
	lines = decodeLines(t, out)
	require.Len(t, lines, 1)
	require.Equal(t, pc.Response{Status: pc.StatusCommandError}, lines[0].Response)

	// The migrated version persisted.
	out.Reset()
	require.NoError(t, afero.WriteFile(Fs, "init.yaml", []byte("commands: [{type: INITIALIZE}]\n"), 0644))
	cmd.Format = "yaml"
	require.NoError(t, cmd.Execute([]string{"init.yaml"}))
	require.Contains(t, out.String(), "status: OK")
	require.Contains(t, out.String(), "int_value: 3")
}

func TestRunCommandRejectsMalformedFiles(t *testing.T) {
	setupTest(t, afero.NewMemMapFs())
	var cmd = &cmdRun{OutputConfig{Format: "table"}}

	require.EqualError(t, cmd.Execute(nil), "expected at least one transaction file")

	var err = cmd.Execute([]string{"missing.yaml"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "opening transaction file")

	for name, content := range map[string]string{
		"unknown.yaml": "commands: [{type: INITIALIZE}]\nbogus: 1\n",
		"type.yaml":    "commands: [{type: FROB}]\n",
		"close.yaml":   "commands: [{type: INITIALIZE}, {type: CLOSE}]\n",
		"empty.yaml":   "",
	} {
		require.NoError(t, afero.WriteFile(Fs, name, []byte(content), 0644))
	}

	err = cmd.Execute([]string{"unknown.yaml"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "decoding unknown.yaml#0")

	err = cmd.Execute([]string{"type.yaml"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown CommandType (FROB)")

	require.EqualError(t, cmd.Execute([]string{"close.yaml"}),
		"validating close.yaml#0: Commands[1]: CLOSE must be the only Command of its Transaction")
	require.EqualError(t, cmd.Execute([]string{"empty.yaml"}), "empty.yaml holds no transactions")
}

func TestVersionAndVacuumCommands(t *testing.T) {
	var out = setupTest(t, afero.NewOsFs())

	require.NoError(t, (&cmdVersion{Target: 5}).Execute(nil))
	var text = out.String()
	require.Contains(t, text, "sqlite3")
	require.Contains(t, text, BaseCfg.Database.Path)
	require.Contains(t, text, "KiB")

	out.Reset()
	require.NoError(t, (&cmdVacuum{OutputConfig{Format: "json"}}).Execute(nil))
	var lines = decodeLines(t, out)
	require.Equal(t, "vacuum", lines[0].Name)
	// The store already existed, so its seeded version is observed.
	require.Equal(t, pc.Response{Status: pc.StatusOK, Result: pc.ValueResult(pc.IntValue(5))}, lines[0].Response)

	// Re-opening observes the seeded version.
	out.Reset()
	require.NoError(t, (&cmdVersion{Target: 9}).Execute(nil))
	require.Contains(t, out.String(), "5")

	// An unopenable store fails.
	BaseCfg.Database.Path = filepath.Join(BaseCfg.Database.Path, "not", "a", "dir")
	require.EqualError(t, (&cmdVersion{}).Execute(nil), "initializing store failed (INITIALIZATION_ERROR)")
}

func TestWriteResponseTable(t *testing.T) {
	var out bytes.Buffer

	require.NoError(t, writeResponse(&out, "table", "failed", &pc.Response{Status: pc.StatusTransactionError}))
	require.Equal(t, "failed: TRANSACTION_ERROR\n", out.String())

	out.Reset()
	require.NoError(t, writeResponse(&out, "table", "read", &pc.Response{
		Status: pc.StatusOK,
		Result: pc.RecordsResult([]pc.Record{
			{pc.StringValue("foo"), pc.Null},
			{pc.DoubleValue(1.5)},
		}),
	}))
	require.True(t, strings.HasPrefix(out.String(), "read: OK\n"))
	require.Contains(t, out.String(), "foo")
	require.Contains(t, out.String(), "NULL")
	require.Contains(t, out.String(), "1.5")

	var headers, rows = recordsTable([]pc.Record{{pc.IntValue(1)}, {pc.BoolValue(true), pc.Int64Value(2)}})
	require.Equal(t, []string{"#", "0", "1"}, headers)
	require.Equal(t, [][]string{{"0", "1", ""}, {"1", "true", "2"}}, rows)
}

func TestServeTasks(t *testing.T) {
	var db, err = txnstore.NewDatabase("sqlite3", filepath.Join(t.TempDir(), "serve.db"))
	require.NoError(t, err)
	var runner = txnstore.NewRunner(db)
	var monitor = pressure.NewMonitor(0, time.Second, runner.NotifyPressure)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	var base = "http://" + listener.Addr().String()

	var tasks = task.NewGroup(context.Background())
	queueServeTasks(tasks, runner, monitor.Serve, listener)
	tasks.GoRun()

	resp, err := http.Post(base+"/", "application/json",
		strings.NewReader(`{"commands": [{"type": "INITIALIZE"}], "version": 1}`))
	require.NoError(t, err)
	var body, _ = io.ReadAll(resp.Body)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"status": "OK", "result": {"value": {"int_value": 0}}}`, string(body))

	resp, err = http.Get(base + "/debug/pprof/")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusOK, resp.StatusCode)

	tasks.Cancel()
	require.NoError(t, tasks.Wait())
	require.False(t, db.IsOpen())
}

type outputLine struct {
	Name     string      `json:"name"`
	Response pc.Response `json:"response"`
}

func decodeLines(t *testing.T, out *bytes.Buffer) []outputLine {
	var dec = json.NewDecoder(bytes.NewReader(out.Bytes()))
	var lines []outputLine

	for {
		var line outputLine
		if err := dec.Decode(&line); err == io.EOF {
			return lines
		} else {
			require.NoError(t, err)
		}
		lines = append(lines, line)
	}
}

func setupTest(t *testing.T, fs afero.Fs) *bytes.Buffer {
	var origFs, origStdout, origCfg = Fs, Stdout, *BaseCfg
	var out = new(bytes.Buffer)

	Fs, Stdout = fs, out
	BaseCfg.Log = mbp.LogConfig{Level: "warn", Format: "text"}
	BaseCfg.Database = mbp.DatabaseConfig{
		Driver:          "sqlite3",
		Path:            filepath.Join(t.TempDir(), "ledger.db"),
		MemoryLimit:     "0",
		MonitorInterval: time.Second,
	}

	t.Cleanup(func() {
		Fs, Stdout, *BaseCfg = origFs, origStdout, origCfg
	})
	return out
}
