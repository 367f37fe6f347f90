package main

import (
	"os"

	"github.com/kmoreau/citycab/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
