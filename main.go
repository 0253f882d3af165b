// Package main is the entry point for the tcpedit datalink rewriter.
package main

import (
	"os"

	"firestige.xyz/tcpedit/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
