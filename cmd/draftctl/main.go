package main

import (
	"github.com/joho/godotenv"

	"github.com/cci-legal/litigation/internal/cli"
)

func main() {
	_ = godotenv.Load()
	cli.Execute()
}
