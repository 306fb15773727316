package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/net/websocket"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream analytics frames until interrupted.",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		base := strings.TrimRight(adminURL, "/")
		wsURL := strings.Replace(base, "http", "ws", 1) + "/ws/analytics"

		cfg, err := websocket.NewConfig(wsURL, base)
		if err != nil {
			return err
		}
		if apiKey != "" {
			cfg.Header.Set("X-API-Key", apiKey)
		}
		conn, err := websocket.DialConfig(cfg)
		if err != nil {
			return err
		}
		defer conn.Close()

		for {
			var raw json.RawMessage
			if err := websocket.JSON.Receive(conn, &raw); err != nil {
				if errors.Is(err, io.EOF) {
					return nil
				}
				return err
			}
			var buf bytes.Buffer
			if err := json.Indent(&buf, raw, "", "  "); err != nil {
				fmt.Println(string(raw))
				continue
			}
			fmt.Println(buf.String())
		}
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
