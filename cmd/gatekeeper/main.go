package main

import (
	"os"

	"github.com/MEKXH/gatekeeper/cmd/gatekeeper/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
