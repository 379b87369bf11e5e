package config

import (
	"flag"
	"os"

	"github.com/dmitrijs2005/dlkeeper/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags:
//
//	-a string     address and port of the fulfillment endpoint
//	-s string     shared JWT secret
//	-n string     service name put into minted tokens
//	-t duration   call timeout (e.g., "45s")
//
// Only these flags are read; subcommands and their arguments are filtered
// out first with flagx.FilterArgs.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-s", "-n", "-t"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerEndpointAddr, "a", cfg.ServerEndpointAddr, "address and port to access server")
	fs.StringVar(&cfg.SecretKey, "s", cfg.SecretKey, "shared secret key")
	fs.StringVar(&cfg.ServiceName, "n", cfg.ServiceName, "service name")
	fs.DurationVar(&cfg.CallTimeout, "t", cfg.CallTimeout, "call timeout")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
