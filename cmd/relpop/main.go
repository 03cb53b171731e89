// Command relpop declares, loads, fetches and populates a pipeline of
// SQLite tables described in CUE.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/relpop/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	var exitErr *cli.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(cli.GetExitCode(err))
}
