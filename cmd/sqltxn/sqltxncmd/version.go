package sqltxncmd

import (
	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	pc "go.sqltxn.dev/core/protocol"
	"go.sqltxn.dev/core/txnstore"
)

type cmdVersion struct {
	Target int32 `long:"target" default:"0" description:"Schema version with which a new store is seeded"`
}

func init() {
	CommandRegistry.AddCommand("", "version", "Print the schema version of the store", `
Initialize the configured store and print the schema version observed by the
initialization, alongside the versions persisted in its meta table and the
size of the store.

A store which doesn't yet exist is created, and its meta table is seeded with
the --target version. The observed version of a new store is always zero.

Example:

sqltxn version --database.path=ledger.db
`, &cmdVersion{})
}

func (cmd *cmdVersion) Execute([]string) error {
	startup()

	var db, err = newDatabase()
	if err != nil {
		return err
	}
	defer db.Destroy()

	var initResp = db.RunTransaction(&pc.Transaction{
		Commands: []*pc.Command{{Type: pc.CommandInitialize}},
		Version:  cmd.Target,
	})
	if initResp.Status != pc.StatusOK {
		return errors.Errorf("initializing store failed (%s)", initResp.Status)
	}
	var readResp = db.RunTransaction(&pc.Transaction{
		Commands: []*pc.Command{{
			Type: pc.CommandRead,
			SQL:  `SELECT version, compatible_version FROM ` + txnstore.MetaTable + ` WHERE id = 0`,
		}},
	})
	if readResp.Status != pc.StatusOK {
		return errors.Errorf("reading meta table failed (%s)", readResp.Status)
	}

	var row = []string{
		db.Dialect.Driver,
		db.Path,
		pc.FormatValue(initResp.Result.Value),
		"-",
		"-",
		storeSize(db),
	}
	if records := readResp.Result.Records; len(records) == 1 && len(records[0]) == 2 {
		row[3], row[4] = pc.FormatValue(records[0][0]), pc.FormatValue(records[0][1])
	}

	var table = tablewriter.NewWriter(Stdout)
	table.Header("Driver", "Path", "Observed", "Persisted", "Compatible", "Size")
	if err = table.Bulk([][]string{row}); err != nil {
		return errors.WithMessage(err, "appending row")
	}
	return table.Render()
}

// storeSize returns the humanized size of a SQLite store file.
func storeSize(db *txnstore.Database) string {
	if db.Dialect.Driver != txnstore.SQLite.Driver {
		return "-"
	}
	var info, err = Fs.Stat(db.Path)
	if err != nil {
		return "-"
	}
	return humanize.IBytes(uint64(info.Size()))
}
