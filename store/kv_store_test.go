package store

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/libs/log"

	"stakebft/types"
)

var genTime = time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)

func genTimeMs() int64 {
	return genTime.UnixNano() / int64(time.Millisecond)
}

func testGenesis(t *testing.T, stakes ...int64) (*types.GenesisDoc, []types.PrivValidator) {
	pvs := make([]types.PrivValidator, 0, len(stakes))
	genDoc := &types.GenesisDoc{GenesisTime: genTime, ChainID: "store_test"}
	for _, stake := range stakes {
		pv := types.NewMockPV()
		pvs = append(pvs, pv)
		genDoc.Validators = append(genDoc.Validators, types.GenesisValidator{
			Address: pv.GetAddress(),
			Stake:   stake,
		})
	}
	require.NoError(t, genDoc.ValidateAndComplete())
	return genDoc, pvs
}

func TestGenesisLedger(t *testing.T) {
	genDoc, pvs := testGenesis(t, 100, 50)
	kv := NewMemKVStore(log.TestingLogger())
	assert.False(t, kv.HasGenesis())
	require.NoError(t, kv.InitGenesis(genDoc))
	assert.True(t, kv.HasGenesis())

	now := genTimeMs()
	assert.EqualValues(t, 100, kv.GetStake(pvs[0].GetAddress(), now))
	assert.EqualValues(t, 50, kv.GetStake(pvs[1].GetAddress(), now))
	assert.Equal(t, genDoc.ValidatorSet(), kv.QualifyingDeposits(now))

	// 默认锁定30天，29天后已经不满足一天的锁定期
	later := now + 29*types.DayMs + 1
	assert.Zero(t, kv.GetStake(pvs[0].GetAddress(), later))
	assert.Empty(t, kv.QualifyingDeposits(later))

	record, err := kv.ConsensusRecord(0)
	require.NoError(t, err)
	assert.EqualValues(t, 0, record.Number)
	assert.Equal(t, genDoc.Block().Hash, record.BlockHash)
	assert.Equal(t, genDoc.ValidatorSet(), record.NextRoundValidators)
	assert.EqualValues(t, 150, record.TotalAtStake)
}

func TestApplyBlock(t *testing.T) {
	genDoc, pvs := testGenesis(t, 100)
	kv := NewMemKVStore(log.TestingLogger())
	require.NoError(t, kv.InitGenesis(genDoc))
	gen := genDoc.Block()
	now := genTimeMs() + 1000

	staker := types.NewMockPV()
	stakeTx, err := types.NewTx(types.TxStake, staker.GetAddress(), "", &types.StakeBody{Amount: 30}, now)
	require.NoError(t, err)
	setTx, err := types.NewTx(types.TxSetValue, staker.GetAddress(), "/apps/test/value", "hello", now)
	require.NoError(t, err)
	badTx, err := types.NewTx(types.TxSetValue, staker.GetAddress(), "/staking/consensus/x/y/amount", "1000", now)
	require.NoError(t, err)

	next := types.ValidatorSet{pvs[0].GetAddress(): 100, staker.GetAddress(): 30}
	valsTx, err := types.NewTx(types.TxValidators, pvs[0].GetAddress(), "",
		&types.ValidatorsBody{Number: 2, Validators: next, TotalAtStake: 130}, now)
	require.NoError(t, err)

	vals := types.ValidatorSet{pvs[0].GetAddress(): 100}
	block := types.NewBlock(1, 1, gen.Hash, pvs[0].GetAddress(),
		types.Txs{*stakeTx, *setTx, *badTx, *valsTx}, vals, now)
	require.NoError(t, kv.ApplyBlock(block))

	assert.EqualValues(t, 30, kv.GetStake(staker.GetAddress(), now))
	bz, err := kv.GetValue("apps/test/value/")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(bz))
	_, err = kv.GetValue("/staking/consensus/x/y/amount")
	assert.True(t, IsNotFound(err))

	got, err := kv.NextRoundValidators(1)
	require.NoError(t, err)
	assert.Equal(t, next, got)

	// 没有validators交易时沿用区块的验证者
	block2 := types.NewBlock(2, 2, block.Hash, pvs[0].GetAddress(), types.Txs{}, next, now+1)
	require.NoError(t, kv.ApplyBlock(block2))
	got, err = kv.NextRoundValidators(2)
	require.NoError(t, err)
	assert.Equal(t, next, got)
}

func TestConsensusRecordWindow(t *testing.T) {
	genDoc, pvs := testGenesis(t, 100)
	kv := NewMemKVStore(log.TestingLogger(), WithStateWindow(3))
	require.NoError(t, kv.InitGenesis(genDoc))

	prev := genDoc.Block()
	vals := genDoc.ValidatorSet()
	for i := int64(1); i <= 4; i++ {
		b := types.NewBlock(i, i, prev.Hash, pvs[0].GetAddress(), types.Txs{}, vals, genTimeMs()+i)
		require.NoError(t, kv.ApplyBlock(b))
		prev = b
	}

	_, err := kv.ConsensusRecord(0)
	assert.True(t, IsNotFound(err))
	_, err = kv.ConsensusRecord(1)
	assert.True(t, IsNotFound(err))
	record, err := kv.ConsensusRecord(4)
	require.NoError(t, err)
	assert.Equal(t, prev.Hash, record.BlockHash)
	assert.True(t, kv.HasGenesis())
}

func TestCandidateValidators(t *testing.T) {
	genDoc, _ := testGenesis(t, 10, 30, 30, 20)
	kv := NewMemKVStore(log.TestingLogger(), WithMaxValidators(2))
	require.NoError(t, kv.InitGenesis(genDoc))

	cands := kv.CandidateValidators(genTimeMs())
	require.Equal(t, 2, cands.Size())
	for _, stake := range cands {
		assert.EqualValues(t, 30, stake)
	}
}

func TestSetValueReserved(t *testing.T) {
	kv := NewMemKVStore(log.TestingLogger())
	assert.NoError(t, kv.SetValue("/apps/a", []byte("1")))
	err := kv.SetValue("/consensus/number/0/number", []byte("1"))
	assert.Equal(t, ErrReservedPath, errors.Cause(err))

	_, err = kv.GetValue("/apps/missing")
	assert.True(t, IsNotFound(err))
}
