package main

import (
	"os"

	"github.com/Iron-Ham/coeftune/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
