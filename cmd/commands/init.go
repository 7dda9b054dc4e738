package commands

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	tmos "github.com/tendermint/tendermint/libs/os"
	tmrand "github.com/tendermint/tendermint/libs/rand"
	"github.com/tendermint/tendermint/p2p"
	tmtime "github.com/tendermint/tendermint/types/time"

	cfg "stakebft/config"
	"stakebft/privval"
	"stakebft/types"
)

var initStake int64

// InitFilesCmd 初始化一个单验证者的节点目录
var InitFilesCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a node home with config, keys and genesis",
	RunE:  initFiles,
}

func init() {
	InitFilesCmd.Flags().Int64Var(&initStake, "stake", 100, "本节点在创世文件中的质押")
}

func initFiles(cmd *cobra.Command, args []string) error {
	return initFilesWithConfig(config)
}

func initFilesWithConfig(config *cfg.Config) error {
	configFile := filepath.Join(config.RootDir, "config", "config.toml")
	if !tmos.FileExists(configFile) {
		if err := cfg.WriteConfigFile(configFile, config); err != nil {
			return err
		}
		logger.Info("Generated config file", "path", configFile)
	}

	// private validator
	privValKeyFile := config.PrivValidatorKeyFile()
	privValStateFile := config.PrivValidatorStateFile()
	var pv *privval.FilePV
	if tmos.FileExists(privValKeyFile) {
		pv = privval.LoadFilePV(privValKeyFile, privValStateFile)
		logger.Info("Found private validator", "keyFile", privValKeyFile)
	} else {
		pv = privval.GenFilePV(privValKeyFile, privValStateFile)
		pv.Save()
		logger.Info("Generated private validator", "keyFile", privValKeyFile)
	}

	nodeKeyFile := config.NodeKeyFile()
	if tmos.FileExists(nodeKeyFile) {
		logger.Info("Found node key", "path", nodeKeyFile)
	} else {
		if _, err := p2p.LoadOrGenNodeKey(nodeKeyFile); err != nil {
			return err
		}
		logger.Info("Generated node key", "path", nodeKeyFile)
	}

	// genesis file
	genFile := config.GenesisFile()
	if tmos.FileExists(genFile) {
		logger.Info("Found genesis file", "path", genFile)
		return nil
	}
	genDoc := types.GenesisDoc{
		ChainID:     fmt.Sprintf("test-chain-%v", tmrand.Str(6)),
		GenesisTime: tmtime.Now(),
		Validators: []types.GenesisValidator{{
			Address: pv.GetAddress(),
			PubKey:  pv.Key.PubKey,
			Stake:   initStake,
		}},
	}
	if err := genDoc.ValidateAndComplete(); err != nil {
		return err
	}
	if err := genDoc.SaveAs(genFile); err != nil {
		return err
	}
	logger.Info("Generated genesis file", "path", genFile)
	return nil
}
