// Command pollsock talks to polling socket servers and runs one.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vinayprograms/pollsock/config"
	"github.com/vinayprograms/pollsock/logging"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "pollsock",
		Short: "Socket-style messaging over HTTP polling",
		Long: `pollsock speaks a socket-like message protocol over plain HTTP
request/response polling.

  pollsock serve                         run an echo server
  pollsock connect ws://localhost:8080/sock   send stdin lines, print replies`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Config file (default: first pollsock.toml found)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn, error")

	root.AddCommand(
		connectCmd(flags),
		serveCmd(flags),
		versionCmd(),
	)
	return root
}

// setup loads configuration and builds the stderr logger.
func setup(flags *globalFlags) (*config.Config, *logging.Logger, error) {
	var (
		cfg *config.Config
		err error
	)
	if flags.configPath != "" {
		cfg, err = config.LoadFile(flags.configPath)
	} else {
		cfg, _, err = config.Load()
	}
	if err != nil {
		return nil, nil, err
	}

	if flags.logLevel != "" {
		cfg.Client.LogLevel = flags.logLevel
		if err := cfg.Validate(); err != nil {
			return nil, nil, err
		}
	}

	log := logging.New()
	log.SetOutput(os.Stderr)
	log.SetLevel(cfg.LogLevel())
	return cfg, log, nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "pollsock %s (%s)\n", version, commit)
		},
	}
}
