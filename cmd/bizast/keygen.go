package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Rendaw/bizast/internal/identity"
	"github.com/Rendaw/bizast/internal/record"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "generate a new publisher identity",
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := identity.Generate()
		if err != nil {
			return err
		}
		if err := identity.Save(keyPath, id); err != nil {
			return err
		}
		fmt.Printf("identity written to %s\n", keyPath)
		fmt.Printf("fingerprint: %s\n", record.Fingerprint(id.Public))
		return nil
	},
}
