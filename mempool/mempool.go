package mempool

import (
	"github.com/tendermint/tendermint/p2p"

	"stakebft/types"
)

type Mempool interface {
	// CheckTx检验一个新交易是否合法，来决定能否将其加入到mempool中
	CheckTx(*types.Tx, TxInfo) error

	// GetValidTransactions 按到达顺序取出可以打包的交易，总大小不超过maxBytes
	// maxBytes为负数时不限制
	GetValidTransactions(maxBytes int64) types.Txs

	// Lock locks the mempool，更新mempool前必须lock mempool
	Lock()

	// UnLock the Mempool
	Unlock()

	// CleanUpForNewBlock 区块提交后从mempool中删去区块中的交易
	// NOTE: caller负责Lock/Unlock
	CleanUpForNewBlock(block *types.Block)

	// Flush将mempool中的所有交易和和cache清空
	Flush()

	// Size返回mempool中的交易条数
	Size() int

	// TxsBytes返回mempool所有交易的byte大小
	TxsBytes() int64
}

//--------------------------------------------------------------------------------
type PreCheckFunc func(*types.Tx) error

// TxAddedFunc 交易加入mempool后的回调，共识模块通过它收到投票交易
type TxAddedFunc func(tx *types.Tx, txInfo TxInfo)

// TxInfo are parameters that get passed when attempting to add a tx to the
// mempool.
type TxInfo struct {
	// SenderID is the internal peer ID used in the mempool to identify the
	// sender, storing 2 bytes with each tx instead of 20 bytes for the p2p.ID.
	SenderID uint16
	// SenderP2PID is the actual p2p.ID of the sender, used e.g. for logging.
	SenderP2PID p2p.ID
}
