// cmd/critic/main.go
//
// This is the entry point for the critic CLI.
// Every subcommand works on the project in the current directory (or the one
// passed with --project) and keeps its state under .critic/.

package main

import (
	"errors"
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errInvalid) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
