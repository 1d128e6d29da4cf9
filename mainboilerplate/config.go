package mainboilerplate

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// ConfigRootEnv names an environment variable holding an additional
// directory which is searched for INI configuration.
const ConfigRootEnv = "SQLTXN_CONFIG_ROOT"

// ConfigFs is the filesystem from which INI configuration is read.
var ConfigFs = afero.NewOsFs()

// ConfigSearchPaths returns the paths at which an INI file |configName| is
// looked for, in order of preference:
//   - The current working directory.
//   - ~/.config/sqltxn (under the user's $HOME or %UserProfile% directory).
//   - $SQLTXN_CONFIG_ROOT, if set.
func ConfigSearchPaths(configName string) []string {
	var paths = []string{
		configName,
		filepath.Join(os.Getenv("HOME"), ".config", "sqltxn", configName),
		filepath.Join(os.Getenv("UserProfile"), ".config", "sqltxn", configName),
	}
	if root := os.Getenv(ConfigRootEnv); root != "" {
		paths = append(paths, filepath.Join(root, configName))
	}
	return paths
}

// ParseConfig applies the first INI file |configName| found on |fs| to the
// Parser, and then parses |args|. Options of the INI file which the Parser
// doesn't know are ignored, but unknown argument flags are not. Remaining
// positional arguments are returned.
func ParseConfig(parser *flags.Parser, fs afero.Fs, configName string, args []string) ([]string, error) {
	var origOptions = parser.Options
	parser.Options |= flags.IgnoreUnknown

	for _, path := range ConfigSearchPaths(configName) {
		var f, err = fs.Open(path)
		if os.IsNotExist(err) {
			continue
		} else if err != nil {
			parser.Options = origOptions
			return nil, errors.WithMessagef(err, "opening %s", path)
		}
		err = flags.NewIniParser(parser).Parse(f)
		_ = f.Close()

		if err != nil {
			parser.Options = origOptions
			return nil, errors.WithMessagef(err, "parsing %s", path)
		}
		log.WithField("path", path).Debug("applied INI configuration")
		break
	}

	parser.Options = origOptions
	return parser.ParseArgs(args)
}

// MustParseConfig parses configuration from an optional INI file, the
// environment, and os.Args, exiting the process on failure.
func MustParseConfig(parser *flags.Parser, configName string) {
	var _, err = ParseConfig(parser, ConfigFs, configName, os.Args[1:])
	if err == nil {
		return
	}

	var flagErr, ok = err.(*flags.Error)
	if !ok {
		Must(err, "fatal error")
	}

	switch flagErr.Type {
	case flags.ErrDuplicatedFlag, flags.ErrTag, flags.ErrInvalidTag, flags.ErrShortNameTooLong, flags.ErrMarshal:
		// The configuration struct itself is malformed.
		panic(err)
	case flags.ErrCommandRequired:
		writeUsage(parser, os.Stderr)
		os.Exit(1)
	case flags.ErrHelp:
		if parser.Options&flags.PrintErrors == 0 {
			writeUsage(parser, os.Stderr)
		}
		os.Exit(1)
	default:
		// go-flags has already described the input error.
		os.Exit(1)
	}
}

func writeUsage(parser *flags.Parser, w io.Writer) {
	_, _ = io.WriteString(w, "\n")
	parser.WriteHelp(w)
	_, _ = fmt.Fprintf(w, "\nVersion %s, built at %s.\n", Version, BuildDate)
}

// AddPrintConfigCmd adds a "print-config" command to the Parser, which
// writes the combined runtime configuration to stdout in INI format.
func AddPrintConfigCmd(parser *flags.Parser, configName string) {
	_, err := parser.AddCommand("print-config", "Print combined configuration and exit", `
print-config parses the combined configuration from `+configName+`, flags,
and environment variables, and then writes the configuration to stdout in INI format.
`, &printConfig{Parser: parser, out: os.Stdout})
	Must(err, "failed to add print-config command")
}

type printConfig struct {
	*flags.Parser `no-flag:"t"`
	out           io.Writer
}

func (p printConfig) Execute([]string) error {
	flags.NewIniParser(p.Parser).Write(p.out,
		flags.IniIncludeComments|flags.IniCommentDefaults|flags.IniIncludeDefaults)
	return nil
}
