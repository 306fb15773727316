package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/poormans/rategate/internal/probe"
)

const defaultCheckURL = "http://localhost:8080/test/api/hello"

// checkCmd uses Run, not RunE: an unreachable route is reported in the
// output and is not a CLI failure.
var checkCmd = &cobra.Command{
	Use:   "check [url]",
	Short: "Fetch a route through the gateway and print the full exchange.",
	Args:  cobra.MaximumNArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		url := defaultCheckURL
		if len(args) == 1 {
			url = args[0]
		}
		ctx, cancel := context.WithTimeout(context.Background(), reqTimeout)
		defer cancel()

		f := probe.NewFetcher(reqTimeout)
		ex, err := f.Fetch(ctx, url)
		probe.WriteReport(os.Stdout, url, ex, err)
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
