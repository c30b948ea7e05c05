package main

import (
	"os"

	"github.com/fleetsafety/immobilizer/cmd/admin/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
