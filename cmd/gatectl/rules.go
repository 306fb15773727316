package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/poormans/rategate/internal/domain"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage path rules.",
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all rules.",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		var out []domain.Rule
		if err := call(http.MethodGet, "/api/admin/rules", nil, &out); err != nil {
			return err
		}
		return printJSON(out)
	},
}

var rulesGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one rule.",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		var out domain.Rule
		if err := call(http.MethodGet, "/api/admin/rules/"+args[0], nil, &out); err != nil {
			return err
		}
		return printJSON(out)
	},
}

var ruleFlags struct {
	path         string
	maxRequests  int
	windowSecs   int
	priority     int
	queue        bool
	queueSize    int
	queueDelayMS int
}

var rulesCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a rule.",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		payload := map[string]any{
			"name":                 args[0],
			"path_pattern":         ruleFlags.path,
			"max_requests":         ruleFlags.maxRequests,
			"window_seconds":       ruleFlags.windowSecs,
			"priority":             ruleFlags.priority,
			"queue_enabled":        ruleFlags.queue,
			"max_queue_size":       ruleFlags.queueSize,
			"delay_per_request_ms": ruleFlags.queueDelayMS,
		}
		var out domain.Rule
		if err := call(http.MethodPost, "/api/admin/rules", payload, &out); err != nil {
			return err
		}
		return printJSON(out)
	},
}

var rulesDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a rule.",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		if err := call(http.MethodDelete, "/api/admin/rules/"+args[0], nil, nil); err != nil {
			return err
		}
		fmt.Println("deleted", args[0])
		return nil
	},
}

var rulesRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Make the gateway reload rules and config now.",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		if err := call(http.MethodPost, "/api/admin/rules/refresh", nil, nil); err != nil {
			return err
		}
		fmt.Println("refreshed")
		return nil
	},
}

func init() {
	f := rulesCreateCmd.Flags()
	f.StringVar(&ruleFlags.path, "path", "", "path pattern, e.g. /test/api/* (required)")
	f.IntVar(&ruleFlags.maxRequests, "max", 10, "requests allowed per window")
	f.IntVar(&ruleFlags.windowSecs, "window", 60, "window length in seconds")
	f.IntVar(&ruleFlags.priority, "priority", 100, "lower wins when patterns overlap")
	f.BoolVar(&ruleFlags.queue, "queue", false, "delay overflow instead of rejecting")
	f.IntVar(&ruleFlags.queueSize, "queue-size", 0, "overflow slots before rejecting")
	f.IntVar(&ruleFlags.queueDelayMS, "queue-delay-ms", 0, "delay per queue position")
	_ = rulesCreateCmd.MarkFlagRequired("path")

	rulesCmd.AddCommand(rulesListCmd, rulesGetCmd, rulesCreateCmd, rulesDeleteCmd, rulesRefreshCmd)
	rootCmd.AddCommand(rulesCmd)
}
