package mock

import (
	mempl "stakebft/mempool"
	"stakebft/types"
)

// Mempool is an empty implementation of a Mempool, useful for testing.
type Mempool struct{}

var _ mempl.Mempool = Mempool{}

func (Mempool) Lock()     {}
func (Mempool) Unlock()   {}
func (Mempool) Size() int { return 0 }
func (Mempool) CheckTx(_ *types.Tx, _ mempl.TxInfo) error {
	return nil
}
func (Mempool) GetValidTransactions(_ int64) types.Txs { return types.Txs{} }
func (Mempool) CleanUpForNewBlock(_ *types.Block)       {}
func (Mempool) Flush()                                  {}
func (Mempool) TxsBytes() int64                         { return 0 }
