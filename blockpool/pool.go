package blockpool

import (
	"bytes"
	"sync"

	"github.com/google/btree"
	tmbytes "github.com/tendermint/tendermint/libs/bytes"
	"github.com/tendermint/tendermint/libs/log"

	"stakebft/libs/utils"
	"stakebft/types"
)

const (
	DefaultMaxChainDepth = 10000
	DefaultMaxBranching  = 64
)

// ChainReader 区块池需要父区块的验证者集合时，如果池中没有则从链上读取
type ChainReader interface {
	GetBlockByHash(hash []byte) *types.Block
}

// BlockPool 还没有finalize的区块、投票组成的分叉树
// 树根为本地最后一个finalized的区块
type BlockPool struct {
	mtx    sync.RWMutex
	logger log.Logger

	chain ChainReader

	hashToInfo        map[string]*BlockInfo
	hashToInvalidInfo map[string]*InvalidBlockInfo
	hashToNextSet     map[string]map[string]struct{} // parent -> children
	epochToBlock      map[int64]string
	numberToSet       map[int64]map[string]struct{}
	numbers           *btree.BTreeG[int64]
	pendingByNumber   map[int64]map[string]struct{} // 只有投票还没有区块的info

	lastFinalized     *types.Block
	longestChainTips  []string
	highestSeenNumber int64
	maxChainDepth     int
	maxBranching      int

	metrics *poolMetrics
}

type PoolOption func(*BlockPool)

func WithChainReader(chain ChainReader) PoolOption {
	return func(bp *BlockPool) {
		bp.chain = chain
	}
}

func WithMaxChainDepth(depth int) PoolOption {
	return func(bp *BlockPool) {
		if depth > 0 {
			bp.maxChainDepth = depth
		}
	}
}

func WithMaxBranching(branching int) PoolOption {
	return func(bp *BlockPool) {
		if branching > 0 {
			bp.maxBranching = branching
		}
	}
}

// NewBlockPool lastFinalized为nil时区块池为空，第一个加入的创世块成为树根
func NewBlockPool(lastFinalized *types.Block, options ...PoolOption) *BlockPool {
	bp := &BlockPool{
		logger:            log.NewNopLogger(),
		hashToInfo:        make(map[string]*BlockInfo),
		hashToInvalidInfo: make(map[string]*InvalidBlockInfo),
		hashToNextSet:     make(map[string]map[string]struct{}),
		epochToBlock:      make(map[int64]string),
		numberToSet:       make(map[int64]map[string]struct{}),
		numbers:           btree.NewOrderedG[int64](32),
		pendingByNumber:   make(map[int64]map[string]struct{}),
		longestChainTips:  make([]string, 0),
		maxChainDepth:     DefaultMaxChainDepth,
		maxBranching:      DefaultMaxBranching,
		metrics:           newPoolMetrics(),
	}

	for _, opt := range options {
		opt(bp)
	}

	if lastFinalized != nil {
		bp.setRoot(lastFinalized)
	}

	return bp
}

func (bp *BlockPool) SetLogger(logger log.Logger) {
	bp.logger = logger
}

// setRoot 树根视为已经notarized
func (bp *BlockPool) setRoot(block *types.Block) {
	hash := block.Hash.String()
	info, ok := bp.hashToInfo[hash]
	if !ok {
		info = newBlockInfo()
		bp.hashToInfo[hash] = info
	}
	info.Block = block
	info.Notarized = true

	bp.lastFinalized = block
	bp.indexBlock(block)
	// 树根之前的区块不再保留
	delete(bp.hashToNextSet, block.ParentHash.String())
	if block.Number > bp.highestSeenNumber {
		bp.highestSeenNumber = block.Number
	}
	bp.longestChainTips = []string{hash}
}

func (bp *BlockPool) indexBlock(block *types.Block) {
	hash := block.Hash.String()
	addToSet(bp.numberToSet, block.Number, hash)
	bp.numbers.ReplaceOrInsert(block.Number)
	bp.epochToBlock[block.Epoch] = hash
	if block.Number > 0 {
		parent := block.ParentHash.String()
		children, ok := bp.hashToNextSet[parent]
		if !ok {
			children = make(map[string]struct{})
			bp.hashToNextSet[parent] = children
		}
		children[hash] = struct{}{}
	}
}

// AddSeenBlock 将区块加入区块池
// 只有当该epoch已经有另外一个notarized的区块时才会拒绝
func (bp *BlockPool) AddSeenBlock(block *types.Block, proposal *types.Tx) bool {
	bp.mtx.Lock()
	defer bp.mtx.Unlock()

	if block == nil {
		return false
	}
	hash := block.Hash.String()

	if bp.lastFinalized == nil {
		if block.Number != 0 {
			bp.logger.Debug("block pool has no root yet, drop block", "block", block)
			return false
		}
		bp.setRoot(block)
		bp.metrics.seenBlocks.Inc(1)
		return true
	}

	if block.Number <= bp.lastFinalized.Number {
		if hash != bp.lastFinalized.Hash.String() {
			bp.logger.Debug("block is below the finalized root", "block", block, "root", bp.lastFinalized.Number)
		}
		return false
	}

	if claimed, ok := bp.epochToBlock[block.Epoch]; ok && claimed != hash {
		if other := bp.hashToInfo[claimed]; other != nil && other.Notarized {
			bp.logger.Error("another block is already notarized in this epoch",
				"epoch", block.Epoch, "notarized", claimed, "block", hash)
			bp.metrics.epochConflicts.Inc(1)
			return false
		}
	}

	info, ok := bp.hashToInfo[hash]
	if !ok {
		info = newBlockInfo()
		bp.hashToInfo[hash] = info
	}
	if info.Block == nil {
		info.Block = block
		info.retally()
		bp.metrics.seenBlocks.Inc(1)
		removeFromSet(bp.pendingByNumber, block.Number, hash)
	}
	if info.Proposal == nil && proposal != nil {
		info.Proposal = proposal
	}

	bp.indexBlock(block)

	bp.tryUpdateNotarized(hash)
	for child := range bp.hashToNextSet[hash] {
		bp.tryUpdateNotarized(child)
	}

	if block.Number > bp.highestSeenNumber {
		bp.highestSeenNumber = block.Number
		bp.metrics.highestSeen.Update(block.Number)
	}

	bp.logger.Debug("add seen block", "block", block, "tally", info.Tally, "notarized", info.Notarized)
	return true
}

// AddInvalidBlock 记录校验失败的区块，这些区块永远不会notarized
func (bp *BlockPool) AddInvalidBlock(block *types.Block, proposal *types.Tx) bool {
	bp.mtx.Lock()
	defer bp.mtx.Unlock()

	if block == nil {
		return false
	}
	hash := block.Hash.String()
	info, ok := bp.hashToInvalidInfo[hash]
	if !ok {
		info = newInvalidBlockInfo()
		bp.hashToInvalidInfo[hash] = info
	}
	if info.Block != nil {
		return false
	}
	info.Block = block
	info.Proposal = proposal
	bp.metrics.invalidBlocks.Inc(1)
	return true
}

// AddProposal 提案记录可能先于区块到达
func (bp *BlockPool) AddProposal(tx *types.Tx) bool {
	if tx == nil || tx.Type != types.TxPropose {
		return false
	}
	var body types.ProposeBody
	if err := tx.DecodeBody(&body); err != nil {
		bp.logger.Debug("failed to decode proposal tx", "err", err)
		return false
	}

	bp.mtx.Lock()
	defer bp.mtx.Unlock()

	if bp.lastFinalized != nil && body.Number <= bp.lastFinalized.Number {
		return false
	}
	hash := body.BlockHash.String()
	info, ok := bp.hashToInfo[hash]
	if !ok {
		info = newBlockInfo()
		bp.hashToInfo[hash] = info
		addToSet(bp.pendingByNumber, body.Number, hash)
	}
	if info.Proposal != nil {
		return false
	}
	info.Proposal = tx
	return true
}

// AddSeenVote 统计投票，同一个投票交易只计一次
// 区块还没有到达时投票先缓存在空的BlockInfo中
func (bp *BlockPool) AddSeenVote(vote *types.Vote) bool {
	if vote == nil {
		return false
	}

	bp.mtx.Lock()
	defer bp.mtx.Unlock()

	if bp.lastFinalized != nil && vote.Number <= bp.lastFinalized.Number {
		bp.logger.Debug("stale vote", "vote", vote, "root", bp.lastFinalized.Number)
		return false
	}

	if vote.IsAgainst {
		return bp.addAgainstVote(vote)
	}

	key := vote.TxHash.String()
	hash := vote.BlockHash.String()
	info, ok := bp.hashToInfo[hash]
	if !ok {
		info = newBlockInfo()
		bp.hashToInfo[hash] = info
		addToSet(bp.pendingByNumber, vote.Number, hash)
	}

	if info.hasVote(key) {
		bp.metrics.duplicateVotes.Inc(1)
		return false
	}

	bp.metrics.seenVotes.Inc(1)
	if info.addVote(key, vote) {
		bp.tryUpdateNotarized(hash)
	} else if info.Block != nil {
		bp.logger.Debug("vote not counted", "vote", vote, "expected", info.Block.Validators.StakeOf(vote.Voter))
	}
	return true
}

func (bp *BlockPool) addAgainstVote(vote *types.Vote) bool {
	key := vote.TxHash.String()
	hash := vote.BlockHash.String()
	info, ok := bp.hashToInvalidInfo[hash]
	if !ok {
		info = newInvalidBlockInfo()
		bp.hashToInvalidInfo[hash] = info
	}
	if _, ok := info.voteKeys[key]; ok {
		bp.metrics.duplicateVotes.Inc(1)
		return false
	}
	info.voteKeys[key] = struct{}{}
	info.AgainstVotes = append(info.AgainstVotes, vote)
	info.AgainstTally += vote.Stake
	bp.metrics.seenVotes.Inc(1)
	return true
}

// tryUpdateNotarized 父区块验证者集合中2/3以上的stake投票后区块notarized
func (bp *BlockPool) tryUpdateNotarized(hash string) {
	info := bp.hashToInfo[hash]
	if !info.IsResolvable() || info.Notarized {
		return
	}
	block := info.Block

	if block.Number == 0 {
		info.Notarized = true
		return
	}

	if claimed, ok := bp.epochToBlock[block.Epoch]; ok && claimed != hash {
		if other := bp.hashToInfo[claimed]; other != nil && other.Notarized {
			return
		}
	}

	parent := bp.parentOf(block)
	if parent == nil {
		// 父区块还没有到达，等区块到达后再计算
		return
	}

	total := parent.Validators.TotalStake()
	if !utils.HasSupermajority(info.Tally, total) {
		return
	}

	info.Notarized = true
	bp.epochToBlock[block.Epoch] = hash
	bp.metrics.notarizedBlocks.Inc(1)
	bp.logger.Info("block notarized", "number", block.Number, "epoch", block.Epoch, "hash", block.Hash, "tally", info.Tally, "total", total)
}

func (bp *BlockPool) parentOf(block *types.Block) *types.Block {
	if bp.lastFinalized != nil && bp.lastFinalized.Number == block.Number-1 &&
		bytes.Equal(bp.lastFinalized.Hash, block.ParentHash) {
		return bp.lastFinalized
	}
	if info := bp.hashToInfo[block.ParentHash.String()]; info.IsResolvable() {
		return info.Block
	}
	if bp.chain != nil {
		return bp.chain.GetBlockByHash(block.ParentHash)
	}
	return nil
}

// CleanUpAfterFinalization 删除finalized区块之前的所有数据，树根移动到该区块
func (bp *BlockPool) CleanUpAfterFinalization(finalized *types.Block) {
	bp.mtx.Lock()
	defer bp.mtx.Unlock()

	if finalized == nil {
		return
	}
	if bp.lastFinalized != nil && finalized.Number < bp.lastFinalized.Number {
		bp.logger.Error("finalized block goes backwards", "finalized", finalized.Number, "root", bp.lastFinalized.Number)
		return
	}

	pruned := 0
	stale := make([]int64, 0)
	bp.numbers.AscendLessThan(finalized.Number, func(number int64) bool {
		stale = append(stale, number)
		return true
	})
	for _, number := range stale {
		for hash := range bp.numberToSet[number] {
			delete(bp.hashToInfo, hash)
			delete(bp.hashToNextSet, hash)
			pruned++
		}
		delete(bp.numberToSet, number)
		bp.numbers.Delete(number)
	}

	for number, set := range bp.pendingByNumber {
		if number >= finalized.Number {
			continue
		}
		for hash := range set {
			if info := bp.hashToInfo[hash]; info != nil && info.Block == nil {
				delete(bp.hashToInfo, hash)
				pruned++
			}
		}
		delete(bp.pendingByNumber, number)
	}

	for hash, info := range bp.hashToInvalidInfo {
		if info.Block == nil || info.Block.Number < finalized.Number {
			delete(bp.hashToInvalidInfo, hash)
		}
	}

	// 分叉上被删除的区块可能有更大的epoch
	for epoch, hash := range bp.epochToBlock {
		if _, ok := bp.hashToInfo[hash]; epoch < finalized.Epoch || !ok {
			delete(bp.epochToBlock, epoch)
		}
	}

	bp.setRoot(finalized)
	bp.updateLongestChainTips()
	bp.metrics.pruned.Inc(int64(pruned))

	bp.logger.Info("block pool cleaned up", "finalized", finalized.Number, "epoch", finalized.Epoch, "pruned", pruned)
}

func (bp *BlockPool) updateLongestChainTips() {
	chains := bp.longestNotarizedChainList(bp.lastFinalized)
	tips := make([]string, 0, len(chains))
	for _, chain := range chains {
		tips = append(tips, chain[len(chain)-1].Hash.String())
	}
	bp.longestChainTips = tips
}

// ------ queries ------

func (bp *BlockPool) LastFinalized() *types.Block {
	bp.mtx.RLock()
	defer bp.mtx.RUnlock()
	return bp.lastFinalized
}

func (bp *BlockPool) HasSeenBlock(hash []byte) bool {
	bp.mtx.RLock()
	defer bp.mtx.RUnlock()

	key := hashKey(hash)
	if info := bp.hashToInfo[key]; info.IsResolvable() {
		return true
	}
	info := bp.hashToInvalidInfo[key]
	return info != nil && info.Block != nil
}

func (bp *BlockPool) GetBlockInfo(hash []byte) *BlockInfo {
	bp.mtx.RLock()
	defer bp.mtx.RUnlock()
	return bp.hashToInfo[hashKey(hash)]
}

func (bp *BlockPool) GetNotarizedBlockByHash(hash []byte) *types.Block {
	bp.mtx.RLock()
	defer bp.mtx.RUnlock()

	info := bp.hashToInfo[hashKey(hash)]
	if !info.IsResolvable() || !info.Notarized {
		return nil
	}
	return info.Block
}

func (bp *BlockPool) GetNotarizedBlockListByNumber(number int64) []*types.Block {
	bp.mtx.RLock()
	defer bp.mtx.RUnlock()

	res := make([]*types.Block, 0)
	for _, hash := range sortedKeys(bp.numberToSet[number]) {
		if info := bp.hashToInfo[hash]; info.IsResolvable() && info.Notarized {
			res = append(res, info.Block)
		}
	}
	return res
}

// GetExtendingChain 从树根到指定区块的链，区块不在树上时返回nil
func (bp *BlockPool) GetExtendingChain(hash []byte) []*types.Block {
	bp.mtx.RLock()
	defer bp.mtx.RUnlock()

	if bp.lastFinalized == nil {
		return nil
	}
	root := bp.lastFinalized.Hash.String()
	chain := make([]*types.Block, 0)
	cur := hashKey(hash)
	for i := 0; i <= bp.maxChainDepth; i++ {
		info := bp.hashToInfo[cur]
		if !info.IsResolvable() {
			return nil
		}
		chain = append(chain, info.Block)
		if cur == root {
			reverse(chain)
			return chain
		}
		cur = info.Block.ParentHash.String()
	}
	return nil
}

func (bp *BlockPool) HighestSeenBlockNumber() int64 {
	bp.mtx.RLock()
	defer bp.mtx.RUnlock()
	return bp.highestSeenNumber
}

// LongestNotarizedChainTips 最近一次清理后计算的最长链末端
func (bp *BlockPool) LongestNotarizedChainTips() []string {
	bp.mtx.RLock()
	defer bp.mtx.RUnlock()
	return append([]string(nil), bp.longestChainTips...)
}

// VotedForEpoch addr是否对该epoch的区块投过票
func (bp *BlockPool) VotedForEpoch(addr types.Address, epoch int64) bool {
	bp.mtx.RLock()
	defer bp.mtx.RUnlock()

	hash, ok := bp.epochToBlock[epoch]
	if !ok {
		return false
	}
	info := bp.hashToInfo[hash]
	return info != nil && info.votedBy(addr)
}

func (bp *BlockPool) VotedForBlock(addr types.Address, hash []byte) bool {
	bp.mtx.RLock()
	defer bp.mtx.RUnlock()

	info := bp.hashToInfo[hashKey(hash)]
	return info != nil && info.votedBy(addr)
}

// Size 区块池中已经收到区块的数量
func (bp *BlockPool) Size() int {
	bp.mtx.RLock()
	defer bp.mtx.RUnlock()

	n := 0
	for _, info := range bp.hashToInfo {
		if info.IsResolvable() {
			n++
		}
	}
	return n
}

func hashKey(hash []byte) string {
	return tmbytes.HexBytes(hash).String()
}

func addToSet(m map[int64]map[string]struct{}, key int64, hash string) {
	set, ok := m[key]
	if !ok {
		set = make(map[string]struct{})
		m[key] = set
	}
	set[hash] = struct{}{}
}

func removeFromSet(m map[int64]map[string]struct{}, key int64, hash string) {
	set, ok := m[key]
	if !ok {
		return
	}
	delete(set, hash)
	if len(set) == 0 {
		delete(m, key)
	}
}

func reverse(chain []*types.Block) {
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
}
