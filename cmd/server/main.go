package main

import (
	"fmt"
	"os"
)

// Set at build time with -ldflags "-X main.commit=... -X main.buildTime=...".
var (
	commit    string
	buildTime string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
