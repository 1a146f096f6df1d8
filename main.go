package main

import (
	"os"

	"github.com/abhisek/examwatch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
