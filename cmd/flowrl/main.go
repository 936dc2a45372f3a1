// flowrl is the command-line FlowRL experimentation client.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/flowrl/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "flowrl:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
