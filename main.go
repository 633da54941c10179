package main

import (
	"fmt"
	"os"

	"github.com/zeu5/morel/commands"
)

// main entry point to the experiments
func main() {
	// rootCommand defines the command line (persistent flags and a subcommand to run)
	rootCommand := commands.GetRootCommand()
	if err := rootCommand.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
