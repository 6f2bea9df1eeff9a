package main

import (
	"fmt"
	"os"

	"github.com/vbonduro/lifemap/internal/cli"
)

func main() {
	if err := cli.New().Execute(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
