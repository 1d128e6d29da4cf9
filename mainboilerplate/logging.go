// Package mainboilerplate holds the configuration and start-up plumbing
// shared by sqltxn programs: logging, INI and flag parsing, diagnostics,
// and construction of a Database and its memory Monitor from configuration.
package mainboilerplate

import (
	log "github.com/sirupsen/logrus"
)

// LogConfig configures handling of application log events.
type LogConfig struct {
	Level  string `long:"level" env:"LEVEL" default:"warn" choice:"trace" choice:"debug" choice:"info" choice:"warn" choice:"error" choice:"fatal" description:"Logging level"`
	Format string `long:"format" env:"FORMAT" default:"text" choice:"json" choice:"text" choice:"color" description:"Logging output format"`
}

// InitLog configures the standard logger.
func InitLog(cfg LogConfig) {
	switch cfg.Format {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	case "color":
		log.SetFormatter(&log.TextFormatter{ForceColors: true})
	default:
		log.SetFormatter(&log.TextFormatter{})
	}

	var lvl, err = log.ParseLevel(cfg.Level)
	Must(err, "unrecognized log level", "level", cfg.Level)
	log.SetLevel(lvl)
}
