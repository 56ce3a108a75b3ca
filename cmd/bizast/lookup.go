package main

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/Rendaw/bizast/internal/record"
)

var lookupCmd = &cobra.Command{
	Use:   "lookup <name:fingerprint>",
	Short: "resolve a record by its name:fingerprint key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		recordKey := args[0]

		req, err := http.NewRequest(http.MethodGet, gatewayAddr+"/"+recordKey, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return fmt.Errorf("request to gateway: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("lookup failed: status %d", resp.StatusCode)
		}

		var rec record.Record
		if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}

		fmt.Printf("name:    %s\n", rec.Name)
		fmt.Printf("message: %s\n", rec.Message)
		fmt.Printf("version: %d\n", rec.Version)
		return nil
	},
}
