package main

import (
	"github.com/jessevdk/go-flags"

	"go.sqltxn.dev/core/cmd/sqltxn/sqltxncmd"
	mbp "go.sqltxn.dev/core/mainboilerplate"
)

func main() {
	var parser = flags.NewParser(sqltxncmd.BaseCfg, flags.Default)

	parser.LongDescription = `sqltxn runs transactions of typed commands against an embedded SQLite
	or a remote PostgreSQL store, and serves them over HTTP.

	See --help pages of each sub-command for documentation and usage examples.
	Optionally configure sqltxn with a '` + sqltxncmd.IniFilename + `' file in the current working directory,
	or with '~/.config/sqltxn/` + sqltxncmd.IniFilename + `'. Use the 'print-config' sub-command to inspect
	the tool's current configuration.
	`

	mbp.AddPrintConfigCmd(parser, sqltxncmd.IniFilename)
	mbp.Must(sqltxncmd.CommandRegistry.AddCommands("", parser.Command), "could not add sub-commands")
	mbp.MustParseConfig(parser, sqltxncmd.IniFilename)
}
