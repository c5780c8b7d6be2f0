// Command oscar-inspect decodes and builds OSCAR ICBM frames and serves an
// HTTP API for doing the same.
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
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "oscar-inspect",
		Short: "Decode and build OSCAR instant message frames",
		Long: `oscar-inspect works with the ICBM frames exchanged by AIM and ICQ
clients: plain text (channel 1), rendezvous proposals (channel 2) and legacy
ICQ messages (channel 4).

Frames are read and written as hex. Messages are described as JSON.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file")

	rootCmd.AddCommand(
		decodeCmd(&configPath),
		encodeCmd(&configPath),
		serveCmd(&configPath),
		versionCmd(),
	)
	return rootCmd
}
