package mempool

import (
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru"
	cfg "github.com/tendermint/tendermint/config"
	"github.com/tendermint/tendermint/libs/clist"
	"github.com/tendermint/tendermint/libs/log"

	"stakebft/types"
)

func NewListMempool(config *cfg.MempoolConfig, options ...ListMempoolOption) *ListMempool {
	mem := &ListMempool{
		config:  config,
		txs:     clist.New(),
		logger:  log.NewNopLogger(),
		metrics: newMemMetric(),
	}

	if config.CacheSize > 0 {
		mem.cache = newLRUTxCache(config.CacheSize)
	} else {
		mem.cache = nopTxCache{}
	}

	for _, option := range options {
		option(mem)
	}

	return mem
}

// ListMempool 按到达顺序保存交易的双向链表
// 链表由reactor的广播routine并发读取
type ListMempool struct {
	// Atomic integers
	txsBytes int64 // total size of mempool, in bytes

	config *cfg.MempoolConfig

	updateMtx sync.RWMutex
	preCheck  PreCheckFunc
	onTxAdded []TxAddedFunc

	txs    *clist.CList
	txsMap sync.Map // tx key -> *clist.CElement

	// Keep a cache of already-seen txs.
	cache txCache

	logger  log.Logger
	metrics *memMetric
}

var _ Mempool = (*ListMempool)(nil)

type ListMempoolOption func(memppol *ListMempool)

func SetPreCheck(precheck PreCheckFunc) ListMempoolOption {
	return func(mem *ListMempool) {
		mem.preCheck = precheck
	}
}

// WithTxAddedCallback 注册交易加入mempool后的回调
func WithTxAddedCallback(cb TxAddedFunc) ListMempoolOption {
	return func(mem *ListMempool) {
		mem.onTxAdded = append(mem.onTxAdded, cb)
	}
}

func (mem *ListMempool) SetLogger(logger log.Logger) {
	mem.logger = logger
}

// AddTxAddedCallback 节点启动时共识模块在mempool之后创建，通过该方法注册
func (mem *ListMempool) AddTxAddedCallback(cb TxAddedFunc) {
	mem.updateMtx.Lock()
	defer mem.updateMtx.Unlock()
	mem.onTxAdded = append(mem.onTxAdded, cb)
}

func (mem *ListMempool) CheckTx(tx *types.Tx, txInfo TxInfo) error {
	callbacks, err := mem.checkTx(tx, txInfo)
	if err != nil {
		mem.metrics.MarkRejected()
		return err
	}

	// 回调在锁外执行，回调中可能会调用共识模块
	for _, cb := range callbacks {
		cb(tx, txInfo)
	}
	return nil
}

func (mem *ListMempool) checkTx(tx *types.Tx, txInfo TxInfo) ([]TxAddedFunc, error) {
	mem.updateMtx.RLock()
	defer mem.updateMtx.RUnlock()

	if err := tx.ValidateBasic(); err != nil {
		return nil, err
	}
	if tx.Type == types.TxValidators || tx.Type == types.TxPropose {
		return nil, ErrSystemTx
	}

	txSize := tx.ComputeSize()
	if max := int64(mem.config.MaxTxBytes); max > 0 && txSize > max {
		return nil, ErrTxTooLarge{Max: max, Actual: txSize}
	}
	if err := mem.isFull(txSize); err != nil {
		return nil, err
	}

	if mem.preCheck != nil {
		if err := mem.preCheck(tx); err != nil {
			return nil, err
		}
	}

	key := tx.Key()
	if e, ok := mem.txsMap.Load(key); ok {
		// 记录新的sender，避免再发回给它
		memTx := e.(*clist.CElement).Value.(*mempoolTx)
		memTx.senders.LoadOrStore(txInfo.SenderID, struct{}{})
		return nil, ErrTxInMap
	}
	if !mem.cache.Push(key) {
		return nil, ErrTxInCache
	}

	memTx := &mempoolTx{tx: tx}
	memTx.senders.Store(txInfo.SenderID, struct{}{})

	mem.logger.Debug("added tx", "tx", tx, "peer", txInfo.SenderP2PID)
	mem.addTx(memTx)

	return mem.onTxAdded, nil
}

func (mem *ListMempool) isFull(txSize int64) error {
	var (
		memSize  = mem.Size()
		txsBytes = mem.TxsBytes()
	)

	if memSize >= mem.config.Size || txSize+txsBytes > mem.config.MaxTxsBytes {
		return ErrMempoolIsFull{
			NumTxs:      memSize,
			MaxTxs:      mem.config.Size,
			TxsBytes:    txsBytes,
			MaxTxsBytes: mem.config.MaxTxsBytes,
		}
	}
	return nil
}

// GetValidTransactions implements Mempool
func (mem *ListMempool) GetValidTransactions(maxBytes int64) types.Txs {
	mem.updateMtx.RLock()
	defer mem.updateMtx.RUnlock()

	var totalBytes int64
	txs := make(types.Txs, 0, mem.txs.Len())
	for e := mem.txs.Front(); e != nil; e = e.Next() {
		memTx := e.Value.(*mempoolTx)
		size := memTx.tx.ComputeSize()
		if maxBytes >= 0 && totalBytes+size > maxBytes {
			break
		}
		totalBytes += size
		txs = append(txs, *memTx.tx)
	}
	return txs
}

// Lock 锁定mempool的updateMtx读写锁的写锁
func (mem *ListMempool) Lock() {
	mem.updateMtx.Lock()
}

// Unlock 释放mempool的updateMtx读写锁的写锁
func (mem *ListMempool) Unlock() {
	mem.updateMtx.Unlock()
}

// CleanUpForNewBlock implements Mempool
// 区块中的交易留在cache中，之后重复收到时直接拒绝
func (mem *ListMempool) CleanUpForNewBlock(block *types.Block) {
	removed := 0
	for i := range block.Txs {
		key := block.Txs[i].Key()
		mem.cache.Push(key)
		if e, ok := mem.txsMap.Load(key); ok {
			mem.removeTx(key, e.(*clist.CElement))
			removed++
		}
	}
	mem.metrics.MarkRemoved(removed)
	mem.metrics.MarkTxs(mem.Size(), mem.TxsBytes())
	if removed > 0 {
		mem.logger.Debug("clean up txs for new block", "number", block.Number, "removed", removed, "left", mem.Size())
	}
}

func (mem *ListMempool) Flush() {
	mem.updateMtx.Lock()
	defer mem.updateMtx.Unlock()

	mem.cache.Reset()

	for e := mem.txs.Front(); e != nil; e = e.Next() {
		mem.txs.Remove(e)
		e.DetachPrev()
	}

	mem.txsMap.Range(func(key, _ interface{}) bool {
		mem.txsMap.Delete(key)
		return true
	})
	atomic.StoreInt64(&mem.txsBytes, 0)
	mem.metrics.MarkTxs(0, 0)
}

func (mem *ListMempool) Size() int {
	return mem.txs.Len()
}

func (mem *ListMempool) TxsBytes() int64 {
	return atomic.LoadInt64(&mem.txsBytes)
}

// Metrics 注册到MetricSet中供rpc查询
func (mem *ListMempool) Metrics() *memMetric {
	return mem.metrics
}

// addTx 将tx加入到mempool的双向链表；
// 并且更新快速查询表txMap和mempool的tx总大小
func (mem *ListMempool) addTx(memTx *mempoolTx) {
	e := mem.txs.PushBack(memTx)
	mem.txsMap.Store(memTx.tx.Key(), e)
	atomic.AddInt64(&mem.txsBytes, memTx.tx.ComputeSize())
	mem.metrics.MarkTxs(mem.Size(), mem.TxsBytes())
}

func (mem *ListMempool) removeTx(key string, elem *clist.CElement) {
	mem.txs.Remove(elem)
	elem.DetachPrev()
	mem.txsMap.Delete(key)
	atomic.AddInt64(&mem.txsBytes, -elem.Value.(*mempoolTx).tx.ComputeSize())
}

func (mem *ListMempool) TxsWaitChan() <-chan struct{} {
	return mem.txs.WaitChan()
}

func (mem *ListMempool) TxsFront() *clist.CElement {
	return mem.txs.Front()
}

// ------------------------------

type txCache interface {
	Reset()
	Push(key string) bool
	Remove(key string)
}

// lruTxCache 最近见过的交易，重复的交易不会再次进入mempool
type lruTxCache struct {
	cache *lru.Cache
}

func newLRUTxCache(size int) *lruTxCache {
	cache, err := lru.New(size)
	if err != nil {
		panic(err)
	}
	return &lruTxCache{cache: cache}
}

func (c *lruTxCache) Reset() {
	c.cache.Purge()
}

// Push 已经存在时返回false
func (c *lruTxCache) Push(key string) bool {
	ok, _ := c.cache.ContainsOrAdd(key, struct{}{})
	return !ok
}

func (c *lruTxCache) Remove(key string) {
	c.cache.Remove(key)
}

type nopTxCache struct{}

func (nopTxCache) Reset()           {}
func (nopTxCache) Push(string) bool { return true }
func (nopTxCache) Remove(string)    {}

type mempoolTx struct {
	tx      *types.Tx
	senders sync.Map
}
