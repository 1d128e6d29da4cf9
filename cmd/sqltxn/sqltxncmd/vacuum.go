package sqltxncmd

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	pc "go.sqltxn.dev/core/protocol"
)

type cmdVacuum struct {
	OutputConfig
}

func init() {
	CommandRegistry.AddCommand("", "vacuum", "Compact the store", `
Initialize the configured store and then VACUUM it, releasing unused pages.

A failure to VACUUM is logged, but doesn't fail the command. Use --log.level=info
or higher verbosity to observe such failures.

Example:

sqltxn vacuum --database.path=ledger.db
`, &cmdVacuum{})
}

func (cmd *cmdVacuum) Execute([]string) error {
	startup()

	var db, err = newDatabase()
	if err != nil {
		return err
	}
	defer db.Destroy()

	var before = storeSize(db)
	var resp = db.RunTransaction(&pc.Transaction{
		Commands: []*pc.Command{
			{Type: pc.CommandInitialize},
			{Type: pc.CommandVacuum},
		},
	})
	log.WithFields(log.Fields{
		"path":   db.Path,
		"before": before,
		"after":  storeSize(db),
	}).Info("vacuumed store")

	if err = writeResponse(Stdout, cmd.Format, "vacuum", resp); err != nil {
		return errors.WithMessage(err, "writing response")
	} else if resp.Status != pc.StatusOK {
		return errors.Errorf("vacuum failed (%s)", resp.Status)
	}
	return nil
}
