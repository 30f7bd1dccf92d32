package main

import (
	"fmt"
	"os"
)

// main hands off to the cobra command tree. Wiring lives in server.go and
// business logic in the internal service packages.
func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
