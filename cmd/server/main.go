package main

import (
	"fmt"
	"os"

	"github.com/jdt2/agents-in-the-loop/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
