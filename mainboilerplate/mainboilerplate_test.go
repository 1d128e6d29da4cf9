package mainboilerplate

import (
	"bytes"
	"testing"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"go.sqltxn.dev/core/pressure"
	"go.sqltxn.dev/core/txnstore"
)

type testConfig struct {
	Database DatabaseConfig `group:"Database" namespace:"database" env-namespace:"DATABASE"`
	Log      LogConfig      `group:"Logging" namespace:"log" env-namespace:"LOG"`
}

func TestParseConfigLayersINIAndArgs(t *testing.T) {
	var fs = afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "sqltxn.ini", []byte(`
[Database]
path = /var/lib/ledger.db
memory-limit = 1GiB
unknown-option = ignored

[Logging]
level = debug
`), 0644))

	var cfg testConfig
	var parser = flags.NewParser(&cfg, flags.None)

	var rest, err = ParseConfig(parser, fs, "sqltxn.ini",
		[]string{"--database.driver=postgres", "positional"})
	require.NoError(t, err)
	require.Equal(t, []string{"positional"}, rest)

	require.Equal(t, "postgres", cfg.Database.Driver)
	require.Equal(t, "/var/lib/ledger.db", cfg.Database.Path)
	require.Equal(t, 5*time.Second, cfg.Database.MonitorInterval)
	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, "text", cfg.Log.Format)

	limit, err := cfg.Database.MemoryLimitBytes()
	require.NoError(t, err)
	require.Equal(t, uint64(1<<30), limit)

	// Unknown argument flags remain an error.
	_, err = ParseConfig(flags.NewParser(&cfg, flags.None), fs, "sqltxn.ini",
		[]string{"--database.bogus"})
	require.Error(t, err)
}

func TestParseConfigWithoutINI(t *testing.T) {
	var cfg testConfig
	var _, err = ParseConfig(flags.NewParser(&cfg, flags.None), afero.NewMemMapFs(), "sqltxn.ini", nil)
	require.NoError(t, err)

	require.Equal(t, DatabaseConfig{
		Driver:          "sqlite3",
		Path:            "sqltxn.db",
		MemoryLimit:     "0",
		MonitorInterval: 5 * time.Second,
	}, cfg.Database)
	require.NoError(t, cfg.Database.Validate())
}

func TestParseConfigRejectsMalformedINI(t *testing.T) {
	var fs = afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "sqltxn.ini", []byte("[Database\n"), 0644))

	var cfg testConfig
	var _, err = ParseConfig(flags.NewParser(&cfg, flags.None), fs, "sqltxn.ini", nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "parsing sqltxn.ini")
}

func TestDatabaseConfigValidation(t *testing.T) {
	var cfg = DatabaseConfig{
		Driver:          "sqlite3",
		Path:            "ledger.db",
		MemoryLimit:     "256MiB",
		MonitorInterval: time.Second,
	}
	require.NoError(t, cfg.Validate())

	var db, err = cfg.NewDatabase()
	require.NoError(t, err)
	require.Equal(t, txnstore.SQLite, db.Dialect)
	require.Equal(t, "ledger.db", db.Path)

	monitor, err := cfg.NewMonitor(func(pressure.Level) {})
	require.NoError(t, err)
	require.Equal(t, uint64(256<<20), monitor.Limit)

	for _, tc := range []struct {
		fn     func(*DatabaseConfig)
		expect string
	}{
		{func(c *DatabaseConfig) { c.Driver = "oracle" }, `unsupported driver "oracle"`},
		{func(c *DatabaseConfig) { c.Path = "" }, "expected database path"},
		{func(c *DatabaseConfig) { c.MonitorInterval = 0 }, "invalid monitor interval (0s; expected > 0)"},
	} {
		var c = cfg
		tc.fn(&c)
		require.EqualError(t, c.Validate(), tc.expect)

		_, err = c.NewDatabase()
		require.EqualError(t, err, tc.expect)
	}

	cfg.MemoryLimit = "lots"
	require.Error(t, cfg.Validate())
	_, err = cfg.NewMonitor(nil)
	require.Error(t, err)
}

func TestCommandRegistry(t *testing.T) {
	var parser = flags.NewParser(nil, flags.None)
	var reg = NewCommandRegistry()

	reg.AddCommand("db.meta", "show", "Show meta", "", &struct{}{})
	reg.AddCommand("", "db", "Database commands", "", &struct{}{})
	reg.AddCommand("db", "meta", "Meta commands", "", &struct{}{})
	reg.AddCommand("db", "vacuum", "Vacuum", "", &struct{}{})

	require.NoError(t, reg.AddCommands("", parser.Command))

	var db = parser.Find("db")
	require.NotNil(t, db)
	require.NotNil(t, db.Find("vacuum"))
	require.NotNil(t, db.Find("meta").Find("show"))
}

func TestPrintConfigWritesINI(t *testing.T) {
	var cfg testConfig
	var parser = flags.NewParser(&cfg, flags.None)
	var out bytes.Buffer

	var _, err = parser.AddCommand("print-config", "", "", &printConfig{Parser: parser, out: &out})
	require.NoError(t, err)

	_, err = ParseConfig(parser, afero.NewMemMapFs(), "sqltxn.ini",
		[]string{"print-config", "--database.path=other.db"})
	require.NoError(t, err)
	require.Contains(t, out.String(), "[Database]")
	require.Contains(t, out.String(), "path = other.db")
}

func TestMustAndServiceConfig(t *testing.T) {
	require.NotPanics(t, func() { Must(nil, "not reached") })
	require.Panics(t, func() { Must(errors.New("whoops"), "failed", "key", "value") })

	require.Equal(t, "some-id", ServiceConfig{ID: "some-id"}.ProcessID())
	require.NotEmpty(t, ServiceConfig{}.ProcessID())
	require.Equal(t, ":8080", ServiceConfig{Port: "8080"}.ListenAddr())
	require.Equal(t, "127.0.0.1:9", ServiceConfig{Host: "127.0.0.1", Port: "9"}.ListenAddr())
}
