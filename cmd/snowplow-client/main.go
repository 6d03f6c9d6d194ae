// Headless Snowplow Derby client: connects to an arena, mirrors its state and
// optionally plays.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
)

type rootFlags struct {
	endpoint    string
	transport   string
	envFile     string
	logFile     string
	metricsAddr string
	insecure    bool
}

func main() {
	flags := &rootFlags{}

	rootCmd := &cobra.Command{
		Use:   "snowplow-client",
		Short: "Headless client for a Snowplow Derby arena",
		Long: `snowplow-client connects to a Snowplow Derby arena server, keeps a local
mirror of every player and wall, and can join the match as a player.

Configuration comes from a .env file, SNOWPLOW_* environment variables and
flags, in increasing order of precedence.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.endpoint, "endpoint", "", "Arena URL (ws://, wss:// or https:// for WebTransport)")
	pf.StringVar(&flags.transport, "transport", "", "Transport: websocket or webtransport")
	pf.StringVar(&flags.envFile, "env-file", "", "Path to a .env file (default .env if present)")
	pf.StringVar(&flags.logFile, "log-file", "", "Also write logs to this rotating file")
	pf.StringVar(&flags.metricsAddr, "metrics-addr", "", "Serve /metrics, /healthz and /state on this address")
	pf.BoolVar(&flags.insecure, "insecure", false, "Skip TLS verification for WebTransport")

	rootCmd.AddCommand(
		spectateCmd(flags),
		playCmd(flags),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "snowplow-client %s (%s)\n", version, commit)
		},
	}
}
