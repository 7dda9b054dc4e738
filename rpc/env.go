package rpc

import (
	"github.com/tendermint/tendermint/libs/log"

	"stakebft/consensus"
	"stakebft/libs/metric"
	"stakebft/mempool"
	"stakebft/state"
	"stakebft/types"
)

var (
	env *Environment
)

func SetEnvironment(e *Environment) {
	env = e
}

// LedgerReader rpc只读取账本
type LedgerReader interface {
	GetValue(path string) ([]byte, error)
	GetStake(addr types.Address, now int64) int64
	QualifyingDeposits(now int64) types.ValidatorSet
	NextRoundValidators(number int64) (types.ValidatorSet, error)
}

// Environment rpc处理函数依赖的节点组件
type Environment struct {
	Mempool   mempool.Mempool
	Consensus *consensus.ConsensusState
	Chain     state.BlockStore
	Ledger    LedgerReader

	MetricSet *metric.MetricSet

	Logger log.Logger
}
