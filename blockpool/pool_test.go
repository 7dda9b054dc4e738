package blockpool

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/libs/log"

	"stakebft/types"
)

var testVals = types.ValidatorSet{"A": 100, "B": 100, "C": 100}

func newTestPool(t *testing.T, options ...PoolOption) (*BlockPool, *types.Block) {
	genesis := types.NewBlock(0, 0, nil, "A", nil, testVals.Copy(), 0)
	bp := NewBlockPool(nil, options...)
	bp.SetLogger(log.TestingLogger())
	require.True(t, bp.AddSeenBlock(genesis, nil))
	return bp, genesis
}

func makeBlock(parent *types.Block, epoch int64, proposer types.Address) *types.Block {
	return types.NewBlock(parent.Number+1, epoch, parent.Hash, proposer, nil, testVals.Copy(), int64(epoch)*1000)
}

func makeVote(b *types.Block, voter types.Address, stake int64) *types.Vote {
	return &types.Vote{
		BlockHash: b.Hash,
		Number:    b.Number,
		Epoch:     b.Epoch,
		Voter:     voter,
		Stake:     stake,
		TxHash:    []byte(fmt.Sprintf("%X-%s-%d", b.Hash, voter, stake)),
	}
}

// addAndNotarize 加入区块并让所有验证者投票
func addAndNotarize(t *testing.T, bp *BlockPool, b *types.Block) {
	require.True(t, bp.AddSeenBlock(b, nil))
	for _, addr := range testVals.SortedAddresses() {
		bp.AddSeenVote(makeVote(b, addr, testVals[addr]))
	}
	require.NotNil(t, bp.GetNotarizedBlockByHash(b.Hash), "block %v should be notarized", b)
}

func TestGenesisIsNotarizedRoot(t *testing.T) {
	bp, genesis := newTestPool(t)

	assert.Equal(t, genesis, bp.LastFinalized())
	assert.NotNil(t, bp.GetNotarizedBlockByHash(genesis.Hash))
	assert.True(t, bp.HasSeenBlock(genesis.Hash))
	assert.Equal(t, []string{genesis.Hash.String()}, bp.LongestNotarizedChainTips())
}

func TestNotarizationBoundary(t *testing.T) {
	bp, genesis := newTestPool(t)

	// 恰好2/3
	b := makeBlock(genesis, 1, "A")
	require.True(t, bp.AddSeenBlock(b, nil))
	bp.AddSeenVote(makeVote(b, "A", 100))
	assert.Nil(t, bp.GetNotarizedBlockByHash(b.Hash))
	bp.AddSeenVote(makeVote(b, "B", 100))
	assert.NotNil(t, bp.GetNotarizedBlockByHash(b.Hash), "200/300 should notarize")

	// 父区块的总stake为301时，200不够
	vals := types.ValidatorSet{"A": 100, "B": 100, "C": 101}
	parent := types.NewBlock(2, 2, b.Hash, "A", nil, vals, 2)
	addAndNotarize(t, bp, parent)

	child := types.NewBlock(3, 3, parent.Hash, "A", nil, testVals.Copy(), 3)
	require.True(t, bp.AddSeenBlock(child, nil))
	bp.AddSeenVote(makeVote(child, "A", 100))
	bp.AddSeenVote(makeVote(child, "B", 100))
	assert.Nil(t, bp.GetNotarizedBlockByHash(child.Hash), "200/301 should not notarize")
	bp.AddSeenVote(makeVote(child, "C", 100))
	assert.NotNil(t, bp.GetNotarizedBlockByHash(child.Hash))
}

// 父区块没有验证者时，没有投票的区块不能notarized
func TestNoNotarizationWithoutVotes(t *testing.T) {
	genesis := types.NewBlock(0, 0, nil, "A", nil, types.ValidatorSet{}, 0)
	bp := NewBlockPool(nil)
	bp.SetLogger(log.TestingLogger())
	require.True(t, bp.AddSeenBlock(genesis, nil))

	child := makeBlock(genesis, 1, "A")
	require.True(t, bp.AddSeenBlock(child, nil))
	info := bp.GetBlockInfo(child.Hash)
	require.NotNil(t, info)
	assert.Zero(t, info.Tally)
	assert.False(t, info.Notarized)
	assert.Nil(t, bp.GetNotarizedBlockByHash(child.Hash))
}

func TestVoteIdempotence(t *testing.T) {
	bp, genesis := newTestPool(t)
	b := makeBlock(genesis, 1, "A")
	require.True(t, bp.AddSeenBlock(b, nil))

	vote := makeVote(b, "A", 100)
	assert.True(t, bp.AddSeenVote(vote))
	assert.False(t, bp.AddSeenVote(vote))
	assert.False(t, bp.AddSeenVote(makeVote(b, "A", 100)), "same tx hash")

	info := bp.GetBlockInfo(b.Hash)
	assert.EqualValues(t, 100, info.Tally)
	assert.Len(t, info.Votes, 1)
	assert.True(t, bp.VotedForBlock("A", b.Hash))
	assert.True(t, bp.VotedForEpoch("A", 1))
	assert.False(t, bp.VotedForEpoch("B", 1))
}

func TestVoteWithWrongStakeIsNotCounted(t *testing.T) {
	bp, genesis := newTestPool(t)
	b := makeBlock(genesis, 1, "A")
	require.True(t, bp.AddSeenBlock(b, nil))

	bp.AddSeenVote(makeVote(b, "A", 300))
	bp.AddSeenVote(makeVote(b, "B", 0))
	bp.AddSeenVote(makeVote(b, "D", 100))
	info := bp.GetBlockInfo(b.Hash)
	assert.EqualValues(t, 0, info.Tally)
	assert.Len(t, info.Votes, 3)
	assert.False(t, info.Notarized)
}

func TestVotesBufferedUntilBlockArrives(t *testing.T) {
	bp, genesis := newTestPool(t)
	b := makeBlock(genesis, 1, "A")

	assert.True(t, bp.AddSeenVote(makeVote(b, "A", 100)))
	assert.True(t, bp.AddSeenVote(makeVote(b, "B", 100)))
	assert.True(t, bp.AddSeenVote(makeVote(b, "C", 999)))
	assert.False(t, bp.HasSeenBlock(b.Hash))
	assert.EqualValues(t, 0, bp.GetBlockInfo(b.Hash).Tally)

	require.True(t, bp.AddSeenBlock(b, nil))
	info := bp.GetBlockInfo(b.Hash)
	assert.EqualValues(t, 200, info.Tally)
	assert.True(t, info.Notarized)
}

func TestChildNotarizedWhenParentArrives(t *testing.T) {
	bp, genesis := newTestPool(t)
	b := makeBlock(genesis, 1, "A")
	c := makeBlock(b, 2, "A")

	// 子区块先到，父区块的验证者集合还不知道
	require.True(t, bp.AddSeenBlock(c, nil))
	for _, addr := range testVals.SortedAddresses() {
		bp.AddSeenVote(makeVote(c, addr, 100))
	}
	assert.Nil(t, bp.GetNotarizedBlockByHash(c.Hash))

	require.True(t, bp.AddSeenBlock(b, nil))
	assert.NotNil(t, bp.GetNotarizedBlockByHash(c.Hash))
	assert.Nil(t, bp.GetNotarizedBlockByHash(b.Hash))
}

func TestParentFromChainReader(t *testing.T) {
	genesis := types.NewBlock(0, 0, nil, "A", nil, testVals.Copy(), 0)
	b := makeBlock(genesis, 1, "A")
	c := makeBlock(b, 2, "A")
	chain := mapChain{b.Hash.String(): b}

	bp := NewBlockPool(genesis, WithChainReader(chain))
	require.True(t, bp.AddSeenBlock(c, nil))
	for _, addr := range []types.Address{"A", "B"} {
		bp.AddSeenVote(makeVote(c, addr, 100))
	}
	assert.NotNil(t, bp.GetNotarizedBlockByHash(c.Hash))
}

func TestOneNotarizedBlockPerEpoch(t *testing.T) {
	bp, genesis := newTestPool(t)
	b := makeBlock(genesis, 1, "A")
	addAndNotarize(t, bp, b)

	conflict := makeBlock(genesis, 1, "B")
	assert.False(t, bp.AddSeenBlock(conflict, nil))
	assert.False(t, bp.HasSeenBlock(conflict.Hash))

	// 该epoch的区块没有notarized时可以被替换
	c1 := makeBlock(b, 2, "A")
	c2 := makeBlock(b, 2, "B")
	require.True(t, bp.AddSeenBlock(c1, nil))
	require.True(t, bp.AddSeenBlock(c2, nil))
	for _, addr := range testVals.SortedAddresses() {
		bp.AddSeenVote(makeVote(c2, addr, 100))
	}
	for _, addr := range testVals.SortedAddresses() {
		bp.AddSeenVote(makeVote(c1, addr, 100))
	}
	assert.NotNil(t, bp.GetNotarizedBlockByHash(c2.Hash))
	assert.Nil(t, bp.GetNotarizedBlockByHash(c1.Hash), "epoch 2 already has a notarized block")
	assert.Len(t, bp.GetNotarizedBlockListByNumber(2), 1)
}

func TestBlockBelowRootIsRejected(t *testing.T) {
	bp, genesis := newTestPool(t)
	b := makeBlock(genesis, 1, "A")
	addAndNotarize(t, bp, b)
	bp.CleanUpAfterFinalization(b)

	other := makeBlock(genesis, 5, "B")
	assert.False(t, bp.AddSeenBlock(other, nil))
	assert.False(t, bp.AddSeenVote(makeVote(other, "A", 100)))
}

func TestCleanUpAfterFinalization(t *testing.T) {
	bp, genesis := newTestPool(t)
	b := makeBlock(genesis, 1, "A")
	c := makeBlock(b, 2, "A")
	d := makeBlock(c, 3, "A")
	e := makeBlock(d, 4, "A")
	fork := makeBlock(b, 5, "B")
	for _, blk := range []*types.Block{b, c, d, e, fork} {
		addAndNotarize(t, bp, blk)
	}
	// 只有投票的info
	pending := makeBlock(b, 9, "C")
	bp.AddSeenVote(makeVote(pending, "A", 100))

	bp.CleanUpAfterFinalization(d)

	assert.Equal(t, d, bp.LastFinalized())
	for _, blk := range []*types.Block{genesis, b, c, fork} {
		assert.False(t, bp.HasSeenBlock(blk.Hash), "block %v should be pruned", blk)
	}
	assert.Nil(t, bp.GetBlockInfo(pending.Hash))
	assert.Empty(t, bp.GetNotarizedBlockListByNumber(1))

	status := bp.Status()
	for _, n := range status.Numbers {
		assert.GreaterOrEqual(t, n, d.Number)
	}
	// fork的epoch比d大，但它已经被删除，不能留在epoch索引中
	for _, ep := range status.Epochs {
		assert.GreaterOrEqual(t, ep.Epoch, d.Epoch)
		assert.NotEqual(t, fork.Hash.String(), ep.Hash)
	}
	assert.Len(t, status.Epochs, 2)
	assert.Equal(t, []string{e.Hash.String()}, bp.LongestNotarizedChainTips())

	chains := bp.GetLongestNotarizedChainList(nil)
	require.Len(t, chains, 1)
	assert.Equal(t, []*types.Block{d, e}, chains[0])
	assert.Equal(t, []*types.Block{d, e}, bp.GetExtendingChain(e.Hash))
	assert.Nil(t, bp.GetExtendingChain(c.Hash))
}

func TestStatusAndTree(t *testing.T) {
	bp, genesis := newTestPool(t)
	b := makeBlock(genesis, 1, "A")
	addAndNotarize(t, bp, b)
	c := makeBlock(b, 2, "A")
	require.True(t, bp.AddSeenBlock(c, nil))

	status := bp.Status()
	assert.Equal(t, 3, status.NumBlocks)
	assert.EqualValues(t, 2, status.HighestSeenNumber)
	assert.Equal(t, []int64{0, 1, 2}, status.Numbers)
	assert.Len(t, status.Blocks, 3)
	assert.EqualValues(t, 2, bp.HighestSeenBlockNumber())

	tree := bp.TreeString()
	assert.Contains(t, tree, "#0 e0")
	assert.Contains(t, tree, "#1 e1")
	assert.Contains(t, tree, "#2 e2")

	assert.Contains(t, bp.Metrics().JSONString(), "blockpool - notarized blocks")
}

func TestInvalidBlockAndAgainstVotes(t *testing.T) {
	bp, genesis := newTestPool(t)
	b := makeBlock(genesis, 1, "A")
	assert.True(t, bp.AddInvalidBlock(b, nil))
	assert.False(t, bp.AddInvalidBlock(b, nil))

	vote := makeVote(b, "B", 100)
	vote.IsAgainst = true
	assert.True(t, bp.AddSeenVote(vote))
	assert.False(t, bp.AddSeenVote(vote))
	assert.True(t, bp.HasSeenBlock(b.Hash))
	assert.Nil(t, bp.GetNotarizedBlockByHash(b.Hash))
}

type mapChain map[string]*types.Block

func (m mapChain) GetBlockByHash(hash []byte) *types.Block {
	return m[hashKey(hash)]
}
