// Command bizast is the operator-facing CLI: generate a keypair, publish a
// record, look one up, or cancel its sponsorship against a local
// bizastd gateway.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
