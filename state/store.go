package state

import "stakebft/types"

// BlockStore 本地已提交的区块链
type BlockStore interface {
	LastBlock() *types.Block
	LastBlockNumber() int64
	AddNewBlock(block *types.Block) bool
	GetBlockByHash(hash []byte) *types.Block
	GetBlockByNumber(number int64) *types.Block
	GetBlocksFrom(number int64, limit int) []*types.Block

	SaveFinalized(number int64) error
	FinalizedNumber() int64
}

// Ledger 质押账本，内容全部由已提交的区块推导
type Ledger interface {
	GetStake(addr types.Address, now int64) int64
	CandidateValidators(now int64) types.ValidatorSet
	NextRoundValidators(number int64) (types.ValidatorSet, error)
	ApplyBlock(block *types.Block) error
	LockupHorizon() int64
}

// TxFactory 以本地账户身份构造并签名交易
type TxFactory interface {
	GetAddress() types.Address
	CreateTransaction(txType types.TxType, ref string, body interface{}, isNonced bool) (*types.Tx, error)
}
