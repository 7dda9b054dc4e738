package rpc

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/libs/log"
	rpctypes "github.com/tendermint/tendermint/rpc/jsonrpc/types"

	"stakebft/blockpool"
	cfg "stakebft/config"
	"stakebft/consensus"
	"stakebft/libs/metric"
	mempl "stakebft/mempool"
	"stakebft/privval"
	sm "stakebft/state"
	"stakebft/store"
	"stakebft/types"
)

func setupEnv(t *testing.T) types.PrivValidator {
	config := cfg.ResetTestRoot("rpc_test")
	t.Cleanup(func() { os.RemoveAll(config.RootDir) })
	logger := log.TestingLogger()

	pv := types.NewMockPV()
	genDoc := &types.GenesisDoc{
		GenesisTime: time.Now(),
		ChainID:     "rpc_test",
		Validators:  []types.GenesisValidator{{Address: pv.GetAddress(), Stake: 100}},
	}
	require.NoError(t, genDoc.ValidateAndComplete())

	chain, ledger, err := store.NewMemStores(genDoc, logger)
	require.NoError(t, err)
	mempool := mempl.NewListMempool(config.Mempool)
	factory := privval.NewTxFactory(pv)
	blockExec := sm.NewBlockExecutor(chain, ledger, mempool, factory)
	pool := blockpool.NewBlockPool(genDoc.Block(), blockpool.WithChainReader(chain))
	cs := consensus.NewConsensusState(config.Consensus, sm.MakeGenesisState(genDoc), blockExec, pool,
		chain, ledger, mempool, factory)
	cs.SetLogger(logger)

	metricSet := metric.NewMetricSet()
	require.NoError(t, metricSet.Register(mempl.MetricLabel, mempool.Metrics()))
	require.NoError(t, metricSet.Register(consensus.MetricLabel, cs.Metrics()))

	SetEnvironment(&Environment{
		Mempool:   mempool,
		Consensus: cs,
		Chain:     chain,
		Ledger:    ledger,
		MetricSet: metricSet,
		Logger:    logger,
	})
	return pv
}

func TestConsensusRoutes(t *testing.T) {
	pv := setupEnv(t)
	ctx := &rpctypes.Context{}

	status, err := Status(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, status.Number)
	assert.Equal(t, pv.GetAddress(), status.Proposer)
	assert.EqualValues(t, 67, status.NotarizeThreshold)

	vals, err := Validators(ctx, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 0, vals.Number)
	assert.EqualValues(t, 100, vals.TotalStake)
	assert.True(t, vals.Validators.Has(pv.GetAddress()))

	tree, err := BlockPoolTree(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, tree.Tree)
	assert.EqualValues(t, 0, tree.Status.LastFinalized.Number)

	_, err = Stake(ctx, 0)
	assert.Error(t, err)
	res, err := Stake(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, pv.GetAddress(), res.Address)

	unconfirmed, err := NumUnconfirmedTxs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, unconfirmed.Count)
}

func TestChainRoutes(t *testing.T) {
	pv := setupEnv(t)
	ctx := &rpctypes.Context{}

	res, err := Block(ctx, 0)
	require.NoError(t, err)
	assert.True(t, res.Block.IsGenesis())
	assert.True(t, res.Finalized)

	_, err = Block(ctx, 5)
	assert.Error(t, err)

	stake, err := StakeOf(ctx, pv.GetAddress().String())
	require.NoError(t, err)
	assert.EqualValues(t, 100, stake.Amount)

	_, err = StakeOf(ctx, "")
	assert.Error(t, err)
}

func TestBroadcastTx(t *testing.T) {
	setupEnv(t)
	ctx := &rpctypes.Context{}

	signer := types.NewMockPV()
	tx, err := types.NewTx(types.TxSetValue, signer.GetAddress(), "/apps/test", "hello", types.NowMs())
	require.NoError(t, err)
	tx.Nonce = 0
	require.NoError(t, signer.SignTx(tx))

	res, err := BroadcastTx(ctx, tx)
	require.NoError(t, err)
	assert.EqualValues(t, tx.Hash(), res.Hash)

	_, err = BroadcastTx(ctx, tx)
	assert.Error(t, err)
	_, err = BroadcastTx(ctx, nil)
	assert.Error(t, err)

	metrics, err := JSONMetrics(ctx, "")
	require.NoError(t, err)
	assert.Contains(t, metrics.Metrics, mempl.MetricLabel)
	assert.Contains(t, metrics.Metrics, consensus.MetricLabel)

	metrics, err = JSONMetrics(ctx, mempl.MetricLabel)
	require.NoError(t, err)
	assert.Len(t, metrics.Metrics, 1)
}
