// Command kiln compiles contract programs to EVM bytecode.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/kiln/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		// Commands print their own errors; anything else is a flag or
		// argument problem cobra rejected.
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(cli.ExitCommandError)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
