// Package main provides the entry point for the sysopt host tuning CLI.
package main

import (
	"errors"
	"os"
)

func main() {
	if err := Execute(); err != nil {
		if !errors.Is(err, errRunFailed) {
			printError("%v", err)
		}
		os.Exit(1)
	}
}
