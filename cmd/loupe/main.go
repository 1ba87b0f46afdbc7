package main

import (
	"os"

	"github.com/loupe-ai/loupe/cmd/loupe/commands"
)

func main() {
	os.Exit(commands.Execute())
}
