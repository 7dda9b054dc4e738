package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version 节点版本
const Version = "0.1.0"

// VersionCmd ...
var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version info",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(Version)
	},
}
