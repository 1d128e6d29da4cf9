// Package sqltxncmd implements the sub-commands of the sqltxn tool.
package sqltxncmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	mbp "go.sqltxn.dev/core/mainboilerplate"
	pc "go.sqltxn.dev/core/protocol"
	"go.sqltxn.dev/core/txnstore"
	"gopkg.in/yaml.v2"
)

// IniFilename is the name of the optional INI file configuring sqltxn.
const IniFilename = "sqltxn.ini"

var (
	// BaseCfg is configuration shared by all sub-commands.
	BaseCfg = new(struct {
		Log      mbp.LogConfig      `group:"Logging" namespace:"log" env-namespace:"LOG"`
		Database mbp.DatabaseConfig `group:"Database" namespace:"database" env-namespace:"DATABASE"`
	})
	// CommandRegistry of sqltxn sub-commands.
	CommandRegistry = mbp.NewCommandRegistry()

	// Fs from which transaction files are read, and store files are sized.
	Fs = afero.NewOsFs()
	// Stdout to which command output is written.
	Stdout io.Writer = os.Stdout
)

// OutputConfig is common configuration of commands which print Responses.
type OutputConfig struct {
	Format string `long:"format" short:"o" choice:"table" choice:"yaml" choice:"json" default:"table" description:"Output format"`
}

func startup() {
	mbp.InitLog(BaseCfg.Log)
}

func newDatabase() (*txnstore.Database, error) {
	return BaseCfg.Database.NewDatabase()
}

// writeResponse writes the named Response to |w| in the given |format|.
func writeResponse(w io.Writer, format, name string, resp *pc.Response) error {
	switch format {
	case "json":
		return json.NewEncoder(w).Encode(struct {
			Name     string       `json:"name"`
			Response *pc.Response `json:"response"`
		}{name, resp})
	case "yaml":
		var b, err = yaml.Marshal(map[string]*pc.Response{name: resp})
		if err == nil {
			_, err = w.Write(b)
		}
		return err
	default:
		return writeResponseTable(w, name, resp)
	}
}

// writeResponseTable writes the Response as a humanized table.
func writeResponseTable(w io.Writer, name string, resp *pc.Response) error {
	if _, err := fmt.Fprintf(w, "%s: %s\n", name, resp.Status); err != nil {
		return err
	} else if resp.Result == nil {
		return nil
	}

	var headers []string
	var rows [][]string
	if !resp.Result.IsRecords() {
		headers = []string{"Value", "Kind"}
		rows = [][]string{{pc.FormatValue(resp.Result.Value), resp.Result.Value.Kind().String()}}
	} else {
		headers, rows = recordsTable(resp.Result.Records)
	}

	var table = tablewriter.NewWriter(w)
	table.Header(toAny(headers)...)
	if err := table.Bulk(rows); err != nil {
		return errors.WithMessage(err, "appending rows")
	}
	return table.Render()
}

// recordsTable returns headers and rows of Records, which are numbered and
// padded to the widest Record.
func recordsTable(records []pc.Record) ([]string, [][]string) {
	var width int
	for _, r := range records {
		if len(r) > width {
			width = len(r)
		}
	}
	var headers = []string{"#"}
	for i := 0; i != width; i++ {
		headers = append(headers, strconv.Itoa(i))
	}

	var rows = make([][]string, 0, len(records))
	for i, r := range records {
		var row = append([]string{strconv.Itoa(i)}, r.Strings()...)
		for len(row) < len(headers) {
			row = append(row, "")
		}
		rows = append(rows, row)
	}
	return headers, rows
}

func toAny(s []string) []any {
	var out = make([]any, len(s))
	for i := range s {
		out[i] = s[i]
	}
	return out
}
