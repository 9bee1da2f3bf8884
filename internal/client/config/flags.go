package config

import (
	"flag"
	"os"

	"github.com/dmitrijs2005/journalsync/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags:
//
//	-a string   address of the remote store endpoint
//	-d string   local database path
//
// The function filters os.Args to only the flags it knows about, using
// flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d"})

	fs := flag.NewFlagSet("client", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerEndpointAddr, "a", cfg.ServerEndpointAddr, "address of the remote store endpoint")
	fs.StringVar(&cfg.LocalDSN, "d", cfg.LocalDSN, "local database path")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
