package main

import (
	"github.com/quarry-labs/quarry-cli/internal/adapters/driving/cli"
)

func main() {
	cli.Execute()
}
