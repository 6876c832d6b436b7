package main

import (
	"os"

	"github.com/joho/godotenv"

	"pairbot/cmd/pairbot/cmd"
)

func main() {
	_ = godotenv.Load()

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
