package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/libs/log"
	"github.com/tendermint/tm-db/memdb"

	"stakebft/types"
)

func makeChain(t *testing.T, n int) []*types.Block {
	genDoc, pvs := testGenesis(t, 100)
	chain := []*types.Block{genDoc.Block()}
	for i := 1; i <= n; i++ {
		prev := chain[len(chain)-1]
		chain = append(chain, types.NewBlock(int64(i), int64(i), prev.Hash, pvs[0].GetAddress(),
			types.Txs{}, genDoc.ValidatorSet(), genTimeMs()+int64(i)))
	}
	return chain
}

func TestBlockStoreAppend(t *testing.T) {
	bs := NewMemBlockStore(log.TestingLogger())
	assert.EqualValues(t, -1, bs.LastBlockNumber())
	assert.Nil(t, bs.LastBlock())

	chain := makeChain(t, 3)
	// 只能从创世块开始
	assert.False(t, bs.AddNewBlock(chain[1]))
	for _, b := range chain {
		require.True(t, bs.AddNewBlock(b))
	}
	assert.EqualValues(t, 3, bs.LastBlockNumber())
	assert.Equal(t, chain[3].Hash, bs.LastBlock().Hash)

	// 重复、跳过、父区块不一致都会失败
	assert.False(t, bs.AddNewBlock(chain[3]))
	fork := types.NewBlock(4, 9, chain[2].Hash, chain[3].Proposer, types.Txs{}, chain[3].Validators, chain[3].Timestamp)
	assert.False(t, bs.AddNewBlock(fork))

	assert.Equal(t, chain[2].Hash, bs.GetBlockByNumber(2).Hash)
	assert.Equal(t, chain[1].Hash, bs.GetBlockByHash(chain[1].Hash).Hash)
	assert.Nil(t, bs.GetBlockByHash(fork.Hash))
	assert.Nil(t, bs.GetBlockByNumber(7))
}

func TestBlockStoreGetBlocksFrom(t *testing.T) {
	bs := NewMemBlockStore(log.TestingLogger())
	for _, b := range makeChain(t, 5) {
		require.True(t, bs.AddNewBlock(b))
	}

	blocks := bs.GetBlocksFrom(2, 2)
	require.Len(t, blocks, 2)
	assert.EqualValues(t, 2, blocks[0].Number)
	assert.EqualValues(t, 3, blocks[1].Number)

	assert.Len(t, bs.GetBlocksFrom(4, 100), 2)
	assert.Empty(t, bs.GetBlocksFrom(6, 100))
}

func TestBlockStoreReload(t *testing.T) {
	db := memdb.NewDB()
	bs := NewBlockStoreWithDB(db, log.TestingLogger())
	chain := makeChain(t, 2)
	for _, b := range chain {
		require.True(t, bs.AddNewBlock(b))
	}
	require.NoError(t, bs.SaveFinalized(1))
	require.NoError(t, bs.SaveFinalized(0))
	assert.EqualValues(t, 1, bs.FinalizedNumber())

	// 重新打开后从db中恢复，不经过cache
	reopened := NewBlockStoreWithDB(db, log.TestingLogger())
	assert.EqualValues(t, 2, reopened.LastBlockNumber())
	assert.EqualValues(t, 1, reopened.FinalizedNumber())
	got := reopened.GetBlockByHash(chain[2].Hash)
	require.NotNil(t, got)
	assert.Equal(t, chain[2].Hash, got.Hash)
	assert.Equal(t, chain[2].Validators, got.Validators)
	assert.NoError(t, got.ValidateBasic())
}
