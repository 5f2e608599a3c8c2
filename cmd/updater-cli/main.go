package main

import (
	"os"

	"github.com/vrsandeep/mango-updater/internal/core"
)

func main() {
	if err := New(core.New).Execute(); err != nil {
		os.Exit(1)
	}
}
