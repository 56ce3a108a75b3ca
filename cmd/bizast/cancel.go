package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <name:fingerprint>",
	Short: "stop sponsoring a record's republication",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		recordKey := args[0]

		req, err := http.NewRequest(http.MethodDelete, gatewayAddr+"/"+recordKey, nil)
		if err != nil {
			return err
		}

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return fmt.Errorf("request to gateway: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("cancel failed: status %d", resp.StatusCode)
		}

		fmt.Printf("cancelled sponsorship of %s\n", recordKey)
		return nil
	},
}
