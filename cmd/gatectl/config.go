package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/poormans/rategate/internal/domain"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Read and write system config keys.",
}

var configGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Print all config entries, or one key's value.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		var entries []domain.ConfigEntry
		if err := call(http.MethodGet, "/api/admin/config", nil, &entries); err != nil {
			return err
		}
		if len(args) == 1 {
			for _, e := range entries {
				if e.Key == args[0] {
					fmt.Println(e.Value)
					return nil
				}
			}
			return fmt.Errorf("key %q not set", args[0])
		}
		return printJSON(entries)
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config key. The gateway picks it up immediately.",
	Args:  cobra.ExactArgs(2),
	RunE: func(_ *cobra.Command, args []string) error {
		payload := map[string]string{"value": args[1]}
		if err := call(http.MethodPost, "/api/admin/config/"+args[0], payload, nil); err != nil {
			return err
		}
		fmt.Printf("%s=%s\n", args[0], args[1])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configGetCmd, configSetCmd)
	rootCmd.AddCommand(configCmd)
}
