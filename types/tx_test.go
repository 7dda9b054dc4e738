package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTxSignAndHash(t *testing.T) {
	pv := NewMockPV()
	tx, err := NewTx(TxStake, pv.GetAddress(), "", StakeBody{Amount: 100, LockupMs: DayMs * 2}, 1000)
	require.NoError(t, err)
	require.NoError(t, tx.ValidateBasic())

	hash := tx.Hash()
	require.NoError(t, pv.SignTx(tx))
	assert.NotEmpty(t, tx.Signature)
	assert.Equal(t, hash, tx.Hash(), "签名不参与hash计算")

	pub, err := pv.GetPubKey()
	require.NoError(t, err)
	assert.True(t, pub.VerifySignature(tx.SignBytes(), tx.Signature))

	var body StakeBody
	require.NoError(t, tx.DecodeBody(&body))
	assert.EqualValues(t, 100, body.Amount)
}

func TestVoteFromTx(t *testing.T) {
	pv := NewMockPV()
	tx, err := NewTx(TxVote, pv.GetAddress(), "", VoteBody{
		BlockHash: []byte("block"),
		Number:    3,
		Epoch:     5,
		Stake:     7,
	}, NowMs())
	require.NoError(t, err)

	vote, err := VoteFromTx(tx)
	require.NoError(t, err)
	assert.Equal(t, pv.GetAddress(), vote.Voter)
	assert.EqualValues(t, 5, vote.Epoch)
	assert.EqualValues(t, 7, vote.Stake)
	assert.Equal(t, tx.Hash(), []byte(vote.TxHash))

	tx.Type = TxStake
	_, err = VoteFromTx(tx)
	assert.Error(t, err)
}

func TestTxValidateBasic(t *testing.T) {
	cases := []struct {
		name string
		tx   Tx
		ok   bool
	}{
		{"set value", Tx{Type: TxSetValue, Address: "A", Ref: "/values/x", Value: "1"}, true},
		{"set value without ref", Tx{Type: TxSetValue, Address: "A"}, false},
		{"stake without body", Tx{Type: TxStake, Address: "A"}, false},
		{"unknown type", Tx{Type: "transfer", Address: "A", Value: "{}"}, false},
		{"no address", Tx{Type: TxVote, Value: "{}"}, false},
	}
	for _, c := range cases {
		err := c.tx.ValidateBasic()
		if c.ok {
			assert.NoError(t, err, c.name)
		} else {
			assert.Error(t, err, c.name)
		}
	}
}

func TestTxsFilter(t *testing.T) {
	txs := Txs{
		{Type: TxVote, Address: "A", Value: "{}"},
		{Type: TxSetValue, Address: "A", Ref: "/a"},
		{Type: TxVote, Address: "B", Value: "{}"},
	}
	votes := txs.Filter(TxVote)
	require.Len(t, votes, 2)
	assert.Equal(t, Address("B"), votes[1].Address)
	assert.NotEmpty(t, txs.Hash())
}
