package main

import (
	"errors"
	"os"

	"github.com/bianoble/glance-stream-sync/cmd/glance-stream-sync/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		var exitErr *cmd.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}
