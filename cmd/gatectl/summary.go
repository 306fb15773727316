package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/poormans/rategate/internal/domain"
)

var summaryHours int

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show traffic totals for the trailing window.",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		var sum domain.Summary
		path := fmt.Sprintf("/api/admin/analytics/summary?hours=%d", summaryHours)
		if err := call(http.MethodGet, path, nil, &sum); err != nil {
			return err
		}
		return printJSON(sum)
	},
}

func init() {
	summaryCmd.Flags().IntVar(&summaryHours, "hours", 24, "window length in hours")
	rootCmd.AddCommand(summaryCmd)
}
