package mainboilerplate

import (
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"go.sqltxn.dev/core/pressure"
	"go.sqltxn.dev/core/txnstore"
)

// DatabaseConfig configures the store of a Database, and the memory Monitor
// which notifies it of pressure.
type DatabaseConfig struct {
	Driver          string        `long:"driver" env:"DRIVER" default:"sqlite3" choice:"sqlite3" choice:"postgres" description:"Driver of the store"`
	Path            string        `long:"path" env:"PATH" default:"sqltxn.db" description:"Path of a SQLite database, or a PostgreSQL connection string"`
	MemoryLimit     string        `long:"memory-limit" env:"MEMORY_LIMIT" default:"0" description:"Heap size beyond which the store is asked to release memory, eg 512MiB. Zero disables monitoring"`
	MonitorInterval time.Duration `long:"monitor-interval" env:"MONITOR_INTERVAL" default:"5s" description:"Interval at which heap size is sampled"`
}

// Validate the DatabaseConfig.
func (cfg DatabaseConfig) Validate() error {
	if _, err := txnstore.DialectFor(cfg.Driver); err != nil {
		return err
	} else if cfg.Path == "" {
		return errors.New("expected database path")
	} else if _, err = cfg.MemoryLimitBytes(); err != nil {
		return err
	} else if cfg.MonitorInterval <= 0 {
		return errors.Errorf("invalid monitor interval (%s; expected > 0)", cfg.MonitorInterval)
	}
	return nil
}

// MemoryLimitBytes parses MemoryLimit.
func (cfg DatabaseConfig) MemoryLimitBytes() (uint64, error) {
	if cfg.MemoryLimit == "" {
		return 0, nil
	}
	var n, err = humanize.ParseBytes(cfg.MemoryLimit)
	return n, errors.WithMessagef(err, "parsing memory limit %q", cfg.MemoryLimit)
}

// NewDatabase returns an unopened Database of the configuration.
func (cfg DatabaseConfig) NewDatabase() (*txnstore.Database, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return txnstore.NewDatabase(cfg.Driver, cfg.Path)
}

// NewMonitor returns a Monitor of the configured memory limit, which emits
// pressure Levels to |emit|.
func (cfg DatabaseConfig) NewMonitor(emit func(pressure.Level)) (*pressure.Monitor, error) {
	var limit, err = cfg.MemoryLimitBytes()
	if err != nil {
		return nil, err
	}
	return pressure.NewMonitor(limit, cfg.MonitorInterval, emit), nil
}
