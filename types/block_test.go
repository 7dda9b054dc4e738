package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tmjson "github.com/tendermint/tendermint/libs/json"
)

func newTestBlock(t *testing.T) *Block {
	vals, privs := RandValidatorSet(3, 100)
	tx, err := NewTx(TxSetValue, privs[0].GetAddress(), "/values/a", "1", NowMs())
	require.NoError(t, err)
	return NewBlock(1, 1, []byte("parent-hash"), privs[0].GetAddress(), Txs{*tx}, vals, NowMs())
}

func TestBlockHashCoversFields(t *testing.T) {
	b := newTestBlock(t)
	require.NoError(t, b.ValidateBasic())

	old := b.Hash
	b.Epoch++
	assert.Error(t, b.ValidateBasic(), "修改epoch以后hash应该失效")
	assert.NotEqual(t, old, b.ComputeHash())

	b.Epoch--
	assert.Equal(t, old, b.ComputeHash())

	b.Validators[b.Proposer] = 1
	assert.Error(t, b.ValidateBasic(), "修改验证者集合以后hash应该失效")
}

func TestBlockJSONKeepsHash(t *testing.T) {
	b := newTestBlock(t)
	bz, err := tmjson.Marshal(b)
	require.NoError(t, err)

	var decoded Block
	require.NoError(t, tmjson.Unmarshal(bz, &decoded))
	assert.NoError(t, decoded.ValidateBasic())
	assert.Equal(t, b.Hash, decoded.Hash)
	assert.True(t, b.Validators.Equal(decoded.Validators))
}

func TestGenesisBlock(t *testing.T) {
	_, privs := RandValidatorSet(2, 10)
	doc := &GenesisDoc{
		ChainID:     "test-chain",
		GenesisTime: time.Unix(1600000000, 0),
		Validators: []GenesisValidator{
			{Address: privs[0].GetAddress(), Stake: 10},
			{Address: privs[1].GetAddress(), Stake: 30},
		},
	}
	require.NoError(t, doc.ValidateAndComplete())

	g := doc.Block()
	assert.True(t, g.IsGenesis())
	assert.EqualValues(t, 0, g.Epoch)
	assert.EqualValues(t, 40, g.Validators.TotalStake())
	assert.NoError(t, g.ValidateBasic())
	assert.Equal(t, g.Hash, doc.Block().Hash, "创世块需要是确定的")
}

func TestProposalValidateBasic(t *testing.T) {
	b := newTestBlock(t)
	tx, err := NewTx(TxPropose, b.Proposer, "", ProposeBody{
		Number:    b.Number,
		Epoch:     b.Epoch,
		BlockHash: b.Hash,
	}, NowMs())
	require.NoError(t, err)

	assert.NoError(t, NewProposal(b, tx).ValidateBasic())

	wrong, err := NewTx(TxPropose, b.Proposer, "", ProposeBody{Number: b.Number, Epoch: b.Epoch + 1, BlockHash: b.Hash}, NowMs())
	require.NoError(t, err)
	assert.Error(t, NewProposal(b, wrong).ValidateBasic())

	assert.Error(t, (&Proposal{}).ValidateBasic())
}
