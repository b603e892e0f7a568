// main is the entry point of the covagg CLI.
package main

import (
	"os"

	"github.com/huangsam/covagg/cmd"
	"github.com/huangsam/covagg/internal/contract"
	"github.com/huangsam/covagg/internal/history"
)

func main() {
	err := run()
	history.CloseHistory()
	if err != nil {
		contract.Logger.Error(err)
		os.Exit(1)
	}
}

func run() error {
	defer func() {
		if err := cmd.StopProfiling(); err != nil {
			contract.LogWarn("Cannot stop profiling", err)
		}
	}()
	return cmd.Execute()
}
