// Command fieldclone runs the field-cloning engine: an HTTP API for
// previewing, validating, and executing field clones between
// same-schema entities, plus backup management from the command line.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
