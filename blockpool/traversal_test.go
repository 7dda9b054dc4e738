package blockpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stakebft/types"
)

// A(0,e0) -> B(1,e1) -> C(2,e3) -> D(3,e4) -> E(4,e5)
//                  \-> F(2,e2) -> G(3,e6, 没有notarized)
func TestGetFinalizableChain(t *testing.T) {
	bp, a := newTestPool(t)
	b := makeBlock(a, 1, "A")
	c := makeBlock(b, 3, "A")
	d := makeBlock(c, 4, "A")
	e := makeBlock(d, 5, "A")
	f := makeBlock(b, 2, "B")
	g := makeBlock(f, 6, "B")

	for _, blk := range []*types.Block{b, c, d, e, f} {
		addAndNotarize(t, bp, blk)
	}
	require.True(t, bp.AddSeenBlock(g, nil))
	bp.AddSeenVote(makeVote(g, "A", 100))
	require.Nil(t, bp.GetNotarizedBlockByHash(g.Hash))

	assert.Equal(t, []*types.Block{a, b, c, d, e}, bp.GetFinalizableChain())
}

func TestFinalizableChainEmpty(t *testing.T) {
	bp, a := newTestPool(t)
	assert.Empty(t, bp.GetFinalizableChain())

	// epoch 0, 1, 3 不连续
	b := makeBlock(a, 1, "A")
	c := makeBlock(b, 3, "A")
	addAndNotarize(t, bp, b)
	addAndNotarize(t, bp, c)
	assert.Empty(t, bp.GetFinalizableChain())

	// 中间区块没有notarized
	d := makeBlock(c, 4, "A")
	e := makeBlock(d, 5, "A")
	require.True(t, bp.AddSeenBlock(d, nil))
	addAndNotarize(t, bp, e)
	assert.Empty(t, bp.GetFinalizableChain())

	for _, addr := range testVals.SortedAddresses() {
		bp.AddSeenVote(makeVote(d, addr, 100))
	}
	assert.Equal(t, []*types.Block{a, b, c, d, e}, bp.GetFinalizableChain())
}

func TestFinalizableChainIgnoresNonConsecutiveTail(t *testing.T) {
	bp, a := newTestPool(t)
	b := makeBlock(a, 1, "A")
	c := makeBlock(b, 2, "A")
	d := makeBlock(c, 7, "A")
	for _, blk := range []*types.Block{b, c, d} {
		addAndNotarize(t, bp, blk)
	}
	assert.Equal(t, []*types.Block{a, b, c}, bp.GetFinalizableChain())
}

func TestLongestNotarizedChainTies(t *testing.T) {
	bp, a := newTestPool(t)
	b := makeBlock(a, 1, "A")
	c1 := makeBlock(b, 2, "A")
	c2 := makeBlock(b, 3, "B")
	short := makeBlock(a, 4, "C")
	for _, blk := range []*types.Block{b, c1, c2, short} {
		addAndNotarize(t, bp, blk)
	}
	// 没有notarized的更长分支不参与
	d := makeBlock(c1, 5, "A")
	require.True(t, bp.AddSeenBlock(d, nil))

	chains := bp.GetLongestNotarizedChainList(nil)
	require.Len(t, chains, 2)
	tips := []*types.Block{chains[0][2], chains[1][2]}
	assert.ElementsMatch(t, []*types.Block{c1, c2}, tips)
	for _, chain := range chains {
		assert.Equal(t, []*types.Block{a, b}, chain[:2])
	}

	// 从指定区块开始
	fromB := bp.GetLongestNotarizedChainList(b)
	require.Len(t, fromB, 2)
	assert.Equal(t, b, fromB[0][0])

	// 更长的链替换之前的结果
	addAndNotarize(t, bp, d)
	chains = bp.GetLongestNotarizedChainList(nil)
	require.Len(t, chains, 1)
	assert.Equal(t, []*types.Block{a, b, c1, d}, chains[0])
}

func TestTraversalDepthCap(t *testing.T) {
	bp, a := newTestPool(t, WithMaxChainDepth(3))
	prev := a
	for i := int64(1); i <= 5; i++ {
		blk := makeBlock(prev, i, "A")
		addAndNotarize(t, bp, blk)
		prev = blk
	}

	chains := bp.GetLongestNotarizedChainList(nil)
	require.Len(t, chains, 1)
	assert.Len(t, chains[0], 3)
	assert.Len(t, bp.GetFinalizableChain(), 3)
}

func TestTraversalBranchCap(t *testing.T) {
	bp, a := newTestPool(t, WithMaxBranching(1))
	b1 := makeBlock(a, 1, "A")
	b2 := makeBlock(a, 2, "B")
	addAndNotarize(t, bp, b1)
	addAndNotarize(t, bp, b2)

	chains := bp.GetLongestNotarizedChainList(nil)
	assert.Len(t, chains, 1)
}
