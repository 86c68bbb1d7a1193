package main

import (
	"os"

	"github.com/HarinGuptha/FlowBit-Harin/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
