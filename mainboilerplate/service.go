package mainboilerplate

import (
	"net"

	petname "github.com/dustinkirkland/golang-petname"
)

// ServiceConfig identifies and addresses a serving process.
type ServiceConfig struct {
	ID   string `long:"id" env:"ID" description:"Unique ID of this process, attached to its logs. Auto-generated if not set"`
	Host string `long:"host" env:"HOST" default:"" description:"Interface on which to listen. All interfaces are used if not set"`
	Port string `long:"port" env:"PORT" default:"8080" description:"Port on which to serve HTTP requests"`
}

// ProcessID returns the configured ID, or generates a memorable one.
func (cfg ServiceConfig) ProcessID() string {
	if cfg.ID != "" {
		return cfg.ID
	}
	return petname.Generate(2, "-")
}

// ListenAddr returns the "host:port" address on which to listen.
func (cfg ServiceConfig) ListenAddr() string {
	return net.JoinHostPort(cfg.Host, cfg.Port)
}
