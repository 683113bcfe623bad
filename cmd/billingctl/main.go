// Command billingctl runs Koinor imports and inspects sync health from a shell.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	// a local .env is optional; real deployments use the environment
	_ = godotenv.Load()

	if err := newRootCmd(defaultServices).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
