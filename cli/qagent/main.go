package main

import (
	"os"

	qagentcmder "github.com/papercomputeco/qagent/cmd/qagent"
)

func main() {
	cmd := qagentcmder.NewQagentCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
