package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sitekit/sitekit/pkg/sitecli"
)

func main() {
	rootCmd := sitecli.NewRootCommand()

	flag.Parse()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
