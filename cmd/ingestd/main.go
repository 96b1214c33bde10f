// Command ingestd is the bootstrap CLI: "serve" runs the ingestion/fan-out
// engine, "watch" is a thin WebSocket client for manual protocol
// verification.
//
// Grounded on sawpanic-cryptorun/src/cmd/cryptorun/main.go's root-command-
// with-subcommands layout; "watch" is adapted from the teacher's
// (ndrandal-feed-simulator) cmd/decoder/main.go.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "ingestd",
		Short: "Market-data ingestion and fan-out engine",
	}
	root.AddCommand(newServeCommand())
	root.AddCommand(newWatchCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
