package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version is overridden at build time with -ldflags "-X github.com/inference-sim/adascale/cmd.version=..."
var version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the adascale version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("adascale", version)
	},
}
