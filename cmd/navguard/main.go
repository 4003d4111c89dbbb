// Command navguard runs navigation-guard scenario suites and inspects the
// guard event journal.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/navguard/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
