// Command zepid estimates causal effects with the g-formula and g-estimation.
package main

import (
	"os"

	"github.com/LiArAu/zEpid/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
