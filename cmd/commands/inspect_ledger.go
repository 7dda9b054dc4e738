package commands

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	cfg "stakebft/config"
	"stakebft/store"
	"stakebft/types"
)

var inspectNumber int64

// InspectLedgerCmd 读取本地区块链和账本，节点运行时数据库被锁定，无法使用
var InspectLedgerCmd = &cobra.Command{
	Use:     "inspect-ledger",
	Aliases: []string{"inspect_ledger"},
	Short:   "Print the local chain tip and the consensus record of a block (node must be stopped)",
	PreRun:  deprecateSnakeCase,
	RunE:    inspectLedger,
}

func init() {
	InspectLedgerCmd.Flags().Int64Var(&inspectNumber, "number", -1, "区块高度，默认为本地链的末端")
}

func inspectLedger(cmd *cobra.Command, args []string) error {
	chain, err := store.NewBlockStore(cfg.DefaultChainDBName, config.DBDir(), logger)
	if err != nil {
		return err
	}
	defer chain.Close()
	ledger, err := store.NewKVStore(cfg.DefaultLedgerDBName, config.DBDir(), logger,
		store.WithStateWindow(config.Consensus.StateWindow),
		store.WithLockupHorizon(types.DurationMs(config.Consensus.LockupHorizon)),
	)
	if err != nil {
		return err
	}
	defer ledger.Close()

	title := color.New(color.FgCyan, color.Bold)
	title.Println("chain")
	fmt.Printf("  last block: %d\n", chain.LastBlockNumber())
	fmt.Printf("  finalized:  %d\n", chain.FinalizedNumber())

	number := inspectNumber
	if number < 0 {
		number = chain.LastBlockNumber()
	}
	block := chain.GetBlockByNumber(number)
	if block == nil {
		return fmt.Errorf("block %d not found", number)
	}
	title.Printf("block %d\n", number)
	fmt.Printf("  %v\n", block)

	record, err := ledger.ConsensusRecord(number)
	if err != nil {
		color.Yellow("  no consensus record: %v", err)
		return nil
	}
	title.Println("consensus record")
	fmt.Printf("  proposer:        %v\n", record.Proposer)
	fmt.Printf("  total at stake:  %d\n", record.TotalAtStake)
	fmt.Printf("  validators:      %v\n", record.Validators)
	fmt.Printf("  next validators: %v\n", record.NextRoundValidators)

	title.Println("qualifying deposits")
	for _, v := range ledger.QualifyingDeposits(types.NowMs()).Ordered() {
		fmt.Printf("  %v\n", v)
	}
	return nil
}
