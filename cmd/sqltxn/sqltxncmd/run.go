package sqltxncmd

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	log "github.com/sirupsen/logrus"
	pc "go.sqltxn.dev/core/protocol"
	"gopkg.in/yaml.v2"
)

type cmdRun struct {
	OutputConfig
}

func init() {
	CommandRegistry.AddCommand("", "run", "Run transactions of YAML files", `
Run transactions read from one or more YAML files against the configured store.

Each file holds one or more YAML documents, each a transaction. Transactions
are validated up front, and are then run in order within a single session of
the store: an INITIALIZE of one transaction carries over to the next. Running
stops at the first transaction which fails.

Example file:

  commands:
    - type: INITIALIZE
    - type: EXECUTE
      sql: CREATE TABLE IF NOT EXISTS kv (k TEXT PRIMARY KEY, v INTEGER)
    - type: MIGRATE
  version: 1
  compatible_version: 1
  ---
  commands:
    - type: RUN
      sql: INSERT INTO kv (k, v) VALUES ($1, $2)
      bindings:
        - {position: 0, value: {string_value: answer}}
        - {position: 1, value: {int64_value: 42}}
    - type: READ
      sql: SELECT k, v FROM kv

Examples:

# Run transactions of a file, printing results as tables:
sqltxn run --database.path=ledger.db transactions.yaml

# Run against PostgreSQL, printing results as JSON:
sqltxn run --database.driver=postgres --database.path=postgres://localhost/ledger -o json txns.yaml
`, &cmdRun{})
}

func (cmd *cmdRun) Execute(args []string) error {
	startup()

	if len(args) == 0 {
		return errors.New("expected at least one transaction file")
	}
	var names []string
	var txns []*pc.Transaction

	for _, path := range args {
		var fileTxns, err = readTransactions(Fs, path)
		if err != nil {
			return err
		}
		for i, txn := range fileTxns {
			names = append(names, fmt.Sprintf("%s#%d", path, i))
			txns = append(txns, txn)
		}
	}

	var db, err = newDatabase()
	if err != nil {
		return err
	}
	defer db.Destroy()

	for i, txn := range txns {
		var resp = db.RunTransaction(txn)
		log.WithFields(log.Fields{"name": names[i], "status": resp.Status}).Debug("ran transaction")

		if err = writeResponse(Stdout, cmd.Format, names[i], resp); err != nil {
			return errors.WithMessage(err, "writing response")
		} else if resp.Status != pc.StatusOK {
			return errors.Errorf("%s: transaction failed (%s)", names[i], resp.Status)
		}
	}
	return nil
}

// readTransactions decodes and validates each YAML document of |path|.
func readTransactions(fs afero.Fs, path string) ([]*pc.Transaction, error) {
	var f, err = fs.Open(path)
	if err != nil {
		return nil, errors.WithMessage(err, "opening transaction file")
	}
	defer f.Close()

	var dec = yaml.NewDecoder(f)
	dec.SetStrict(true)

	var out []*pc.Transaction
	for i := 0; ; i++ {
		var txn = new(pc.Transaction)
		if err = dec.Decode(txn); err == io.EOF {
			break
		} else if err != nil {
			return nil, errors.WithMessagef(err, "decoding %s#%d", path, i)
		} else if err = txn.Validate(); err != nil {
			return nil, errors.WithMessagef(err, "validating %s#%d", path, i)
		}
		out = append(out, txn)
	}
	if len(out) == 0 {
		return nil, errors.Errorf("%s holds no transactions", path)
	}
	return out, nil
}
