package mempool

import (
	"sync"

	jsoniter "github.com/json-iterator/go"
)

const MetricLabel = "MEMPOOL"

func newMemMetric() *memMetric {
	return &memMetric{}
}

type memMetric struct {
	mtx           sync.RWMutex
	TxsNum        int   `json:"txs_num"`         // mempool中所有的交易总数
	TotalTxsBytes int64 `json:"total_txs_bytes"` // 目前mempool所有的交易的大小
	RejectedTxs   int64 `json:"rejected_txs"`    // CheckTx失败的交易数
	RemovedTxs    int64 `json:"removed_txs"`     // 随区块提交删去的交易数
}

func (mm *memMetric) JSONString() string {
	mm.mtx.RLock()
	defer mm.mtx.RUnlock()
	s, _ := jsoniter.MarshalToString(mm)
	return s
}

func (mm *memMetric) MarkTxs(txsNum int, txsBytes int64) {
	mm.mtx.Lock()
	defer mm.mtx.Unlock()
	mm.TxsNum = txsNum
	mm.TotalTxsBytes = txsBytes
}

func (mm *memMetric) MarkRejected() {
	mm.mtx.Lock()
	defer mm.mtx.Unlock()
	mm.RejectedTxs++
}

func (mm *memMetric) MarkRemoved(n int) {
	mm.mtx.Lock()
	defer mm.mtx.Unlock()
	mm.RemovedTxs += int64(n)
}
