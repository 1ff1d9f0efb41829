package main

import (
	"os"

	"github.com/eniac111/oct/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
