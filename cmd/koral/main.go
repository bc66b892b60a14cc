package main

import (
	"fmt"
	"os"

	"github.com/koralvoice/koral-core/cmd/koral/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
