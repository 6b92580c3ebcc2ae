// Package main provides the entry point for the shardex CLI.
package main

import (
	"fmt"
	"os"

	"github.com/Aman-CERP/shardex/cmd/shardex/cmd"
	"github.com/Aman-CERP/shardex/internal/errors"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprint(os.Stderr, errors.FormatForCLI(err))
		os.Exit(1)
	}
}
