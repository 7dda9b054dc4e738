package privval

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/crypto/ed25519"

	"stakebft/types"
)

func tempPaths(t *testing.T) (string, string, func()) {
	dir, err := ioutil.TempDir("", "privval_test")
	require.NoError(t, err)
	return filepath.Join(dir, "key.json"), filepath.Join(dir, "state.json"), func() { os.RemoveAll(dir) }
}

func TestGenLoadFilePV(t *testing.T) {
	keyFile, stateFile, cleanup := tempPaths(t)
	defer cleanup()

	pv := GenFilePV(keyFile, stateFile)
	pv.Save()

	loaded := LoadFilePV(keyFile, stateFile)
	assert.Equal(t, pv.GetAddress(), loaded.GetAddress())
	pub, err := loaded.GetPubKey()
	require.NoError(t, err)
	assert.Equal(t, pv.Key.PubKey, pub)
	assert.Equal(t, types.GetAddress(pub), loaded.GetAddress())
}

func TestCreateTransaction(t *testing.T) {
	keyFile, stateFile, cleanup := tempPaths(t)
	defer cleanup()

	pv := NewFilePV(ed25519.GenPrivKey(), keyFile, stateFile)
	pv.Save()

	tx, err := pv.CreateTransaction(types.TxStake, "", &types.StakeBody{Amount: 10}, true)
	require.NoError(t, err)
	assert.EqualValues(t, 0, tx.Nonce)
	assert.Equal(t, pv.GetAddress(), tx.Address)
	assert.True(t, pv.Key.PubKey.VerifySignature(tx.SignBytes(), tx.Signature))

	vote, err := pv.CreateTransaction(types.TxVote, "", &types.VoteBody{BlockHash: []byte("h"), Stake: 1}, false)
	require.NoError(t, err)
	assert.Equal(t, types.NoNonce, vote.Nonce)

	tx, err = pv.CreateTransaction(types.TxSetValue, "/apps/a", "1", true)
	require.NoError(t, err)
	assert.EqualValues(t, 1, tx.Nonce)

	// 重启后nonce继续递增
	reloaded := LoadFilePV(keyFile, stateFile)
	tx, err = reloaded.CreateTransaction(types.TxSetValue, "/apps/a", "2", true)
	require.NoError(t, err)
	assert.EqualValues(t, 2, tx.Nonce)

	reloaded = LoadFilePVEmptyState(keyFile, stateFile)
	assert.EqualValues(t, -1, reloaded.NonceState.Nonce)
}

func TestTxFactory(t *testing.T) {
	pv := types.NewMockPV()
	f := NewTxFactory(pv)
	assert.Equal(t, pv.GetAddress(), f.GetAddress())

	for i := 0; i < 3; i++ {
		tx, err := f.CreateTransaction(types.TxSetValue, "/apps/a", "v", true)
		require.NoError(t, err)
		assert.EqualValues(t, i, tx.Nonce)
		assert.NoError(t, tx.ValidateBasic())
	}
}
