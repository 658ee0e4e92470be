package main

import (
	"os"

	"github.com/jrsteele09/go-auth-guard/cmd/guardctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
