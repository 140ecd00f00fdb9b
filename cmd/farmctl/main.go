// Command farmctl administers the Agro Rent database from the shell.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(&rootOptions{readPassword: promptPassword}).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
