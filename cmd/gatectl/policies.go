package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/poormans/rategate/internal/domain"
)

var policiesCmd = &cobra.Command{
	Use:   "policies",
	Short: "Manage token-bucket policies.",
}

var policiesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all policies.",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		var out []domain.Policy
		if err := call(http.MethodGet, "/api/admin/policies", nil, &out); err != nil {
			return err
		}
		return printJSON(out)
	},
}

var policiesGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one policy.",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		var out domain.Policy
		if err := call(http.MethodGet, "/api/admin/policies/"+args[0], nil, &out); err != nil {
			return err
		}
		return printJSON(out)
	},
}

var policyFlags struct {
	limitType  string
	rate       float64
	burst      float64
	headerName string
	cookieName string
	trustProxy bool
	desc       string
}

var policiesCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a policy.",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		payload := map[string]any{
			"name":                args[0],
			"limit_type":          policyFlags.limitType,
			"replenish_rate":      policyFlags.rate,
			"burst":               policyFlags.burst,
			"header_name":         policyFlags.headerName,
			"session_cookie_name": policyFlags.cookieName,
			"trust_proxy":         policyFlags.trustProxy,
			"description":         policyFlags.desc,
		}
		var out domain.Policy
		if err := call(http.MethodPost, "/api/admin/policies", payload, &out); err != nil {
			return err
		}
		return printJSON(out)
	},
}

var policiesDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a policy.",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		if err := call(http.MethodDelete, "/api/admin/policies/"+args[0], nil, nil); err != nil {
			return err
		}
		fmt.Println("deleted", args[0])
		return nil
	},
}

func init() {
	f := policiesCreateCmd.Flags()
	f.StringVar(&policyFlags.limitType, "type", string(domain.LimitIPBased), "IP_BASED, USER_BASED, API_KEY, SESSION_BASED or GLOBAL")
	f.Float64Var(&policyFlags.rate, "rate", 0, "tokens per second, 0 for the default")
	f.Float64Var(&policyFlags.burst, "burst", 0, "bucket capacity, 0 for the default")
	f.StringVar(&policyFlags.headerName, "header-name", "", "identity header for USER_BASED / API_KEY")
	f.StringVar(&policyFlags.cookieName, "session-cookie", "", "cookie name for SESSION_BASED")
	f.BoolVar(&policyFlags.trustProxy, "trust-proxy", false, "honor X-Forwarded-For")
	f.StringVar(&policyFlags.desc, "description", "", "free-form note")

	policiesCmd.AddCommand(policiesListCmd, policiesGetCmd, policiesCreateCmd, policiesDeleteCmd)
	rootCmd.AddCommand(policiesCmd)
}
