package main

import (
	"fmt"
	"os"

	"cellreport/internal/cli"

	_ "time/tzdata"
)

func main() {
	if err := cli.RootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
