package main

import (
	"os"
	"path/filepath"

	"github.com/tendermint/tendermint/libs/cli"

	cmd "stakebft/cmd/commands"
	cfg "stakebft/config"
	nm "stakebft/node"
)

func main() {
	rootCmd := cmd.RootCmd

	rootCmd.AddCommand(
		cmd.InitFilesCmd,
		cmd.VersionCmd,
		cli.NewCompletionCmd(rootCmd, true),
	)

	// NOTE:
	// 使用其他的签名方式或者数据库时，可以复制这个文件，替换DefaultNewNode
	nodeFunc := nm.DefaultNewNode

	// Create & start node
	rootCmd.AddCommand(
		cmd.GenNodeKeyCmd,
		cmd.GenValidatorCmd,
		cmd.ShowNodeIDCmd,
		cmd.ShowValidatorCmd,
		cmd.GenGenesisCmd,
		cmd.InspectLedgerCmd,
		cmd.NewRunNodeCmd(nodeFunc),
	)

	executor := cli.PrepareBaseCmd(rootCmd, cfg.EnvPrefix, os.ExpandEnv(filepath.Join("$HOME", cfg.DefaultDirName)))
	if err := executor.Execute(); err != nil {
		panic(err)
	}
}
