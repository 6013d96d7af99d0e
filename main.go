package main

import (
	"os"

	"github.com/openrp/cad/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
