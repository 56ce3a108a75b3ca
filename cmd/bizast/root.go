package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var (
	gatewayAddr string
	keyPath     string
)

var rootCmd = &cobra.Command{
	Use:   "bizast",
	Short: "bizast client - publish and resolve signed names against a local node",
	Long: `bizast is the operator-facing client for a bizast node. It signs and
publishes resource records, resolves names, and cancels sponsorship, all
against a locally running bizastd gateway.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&gatewayAddr, "gateway", "http://127.0.0.1:62341", "bizastd gateway base URL")
	rootCmd.PersistentFlags().StringVar(&keyPath, "key", defaultKeyPath(), "path to the Ed25519 identity key")

	rootCmd.AddCommand(keygenCmd)
	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(lookupCmd)
	rootCmd.AddCommand(cancelCmd)
}

func defaultKeyPath() string {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return "bizast-identity.key"
	}
	return filepath.Join(cacheDir, "bizast", "identity.key")
}
