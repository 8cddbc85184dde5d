package main

import (
	"os"

	"github.com/genrelay/genrelay/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
