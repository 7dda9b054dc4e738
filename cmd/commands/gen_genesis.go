package commands

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	tmos "github.com/tendermint/tendermint/libs/os"
	tmtime "github.com/tendermint/tendermint/types/time"

	"stakebft/types"
)

var (
	chainID       string
	genValidators []string
	genLockup     time.Duration
)

// GenGenesisCmd 用给定的初始质押生成创世文件
var GenGenesisCmd = &cobra.Command{
	Use:     "gen-genesis",
	Aliases: []string{"gen_genesis"},
	Short:   "Generate a genesis file with the initial stakes",
	PreRun:  deprecateSnakeCase,
	RunE:    genGenesisFile,
}

func init() {
	GenGenesisCmd.Flags().StringVar(&chainID, "chain-id", "test-chain", "链名")
	GenGenesisCmd.Flags().StringSliceVar(&genValidators, "validator", nil,
		"初始质押，格式为address=stake，可以指定多次")
	GenGenesisCmd.Flags().DurationVar(&genLockup, "lockup", 0, "初始质押的锁定时长，0表示使用默认值")
	GenGenesisCmd.MarkFlagRequired("validator") //nolint:errcheck
}

// parseGenesisValidators 解析address=stake
func parseGenesisValidators(entries []string, lockup time.Duration) ([]types.GenesisValidator, error) {
	vals := make([]types.GenesisValidator, 0, len(entries))
	for i, entry := range entries {
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			return nil, errors.Errorf("invalid validator %q, expected address=stake", entry)
		}
		stake, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid stake of validator %q", entry)
		}
		vals = append(vals, types.GenesisValidator{
			Address:  types.Address(strings.ToUpper(strings.TrimSpace(parts[0]))),
			Stake:    stake,
			LockupMs: types.DurationMs(lockup),
			Name:     fmt.Sprintf("validator-%d", i+1),
		})
	}
	return vals, nil
}

func genGenesisFile(cmd *cobra.Command, args []string) error {
	genFile := config.GenesisFile()
	if tmos.FileExists(genFile) {
		logger.Info("Found genesis file", "path", genFile)
		return nil
	}

	vals, err := parseGenesisValidators(genValidators, genLockup)
	if err != nil {
		return err
	}
	genDoc := types.GenesisDoc{
		ChainID:     chainID,
		GenesisTime: tmtime.Now(),
		Validators:  vals,
	}
	if err := genDoc.ValidateAndComplete(); err != nil {
		return err
	}

	if err := genDoc.SaveAs(genFile); err != nil {
		return err
	}
	logger.Info("Generated genesis file", "path", genFile, "validators", len(vals))
	return nil
}
