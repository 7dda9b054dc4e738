package node

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendermint/tendermint/libs/log"
	"github.com/tendermint/tendermint/p2p"

	cfg "stakebft/config"
	cstypes "stakebft/consensus/types"
	"stakebft/privval"
	"stakebft/types"
)

// 单个验证者的节点目录
func newTestRoot(t *testing.T) (*cfg.Config, *privval.FilePV, *types.GenesisDoc, *p2p.NodeKey) {
	config := cfg.ResetTestRoot("node_test")
	t.Cleanup(func() { os.RemoveAll(config.RootDir) })

	pv := privval.GenFilePV(config.PrivValidatorKeyFile(), config.PrivValidatorStateFile())
	pv.Save()
	nodeKey, err := p2p.LoadOrGenNodeKey(config.NodeKeyFile())
	require.NoError(t, err)

	genDoc := &types.GenesisDoc{
		GenesisTime: time.Now(),
		ChainID:     "node_test",
		Validators:  []types.GenesisValidator{{Address: pv.GetAddress(), Stake: 100}},
	}
	require.NoError(t, genDoc.ValidateAndComplete())
	require.NoError(t, genDoc.SaveAs(config.GenesisFile()))
	return config, pv, genDoc, nodeKey
}

func TestNodeStartStop(t *testing.T) {
	config, _, _, _ := newTestRoot(t)

	n, err := DefaultNewNode(config, log.TestingLogger())
	require.NoError(t, err)
	require.NoError(t, n.Start())

	assert.Eventually(t, func() bool {
		return n.BlockStore().LastBlockNumber() >= 3
	}, 10*time.Second, 50*time.Millisecond)

	status := n.ConsensusState().GetStatus()
	assert.Equal(t, cstypes.StatusRunning, status.State)
	assert.Contains(t, n.MetricSet().Labels(), "CONSENSUS")

	require.NoError(t, n.Stop())
}

// TestNodeRestart 重启后从本地区块链恢复状态和区块池，并继续出块
func TestNodeRestart(t *testing.T) {
	config, pv, genDoc, nodeKey := newTestRoot(t)
	logger := log.TestingLogger()

	n, err := NewNode(config, pv, nodeKey, genDoc, logger)
	require.NoError(t, err)
	require.NoError(t, n.Start())
	assert.Eventually(t, func() bool {
		return n.BlockStore().FinalizedNumber() >= 2
	}, 10*time.Second, 50*time.Millisecond)
	require.NoError(t, n.Stop())

	last := n.BlockStore().LastBlockNumber()
	finalized := n.BlockStore().FinalizedNumber()

	n, err = NewNode(config, pv, nodeKey, genDoc, logger)
	require.NoError(t, err)
	assert.EqualValues(t, finalized, n.blockPool.LastFinalized().Number)
	assert.EqualValues(t, last+1, n.ConsensusState().GetRoundState().Number)

	require.NoError(t, n.Start())
	assert.Eventually(t, func() bool {
		return n.BlockStore().LastBlockNumber() > last
	}, 10*time.Second, 50*time.Millisecond)
	require.NoError(t, n.Stop())
}

func TestSplitAndTrimEmpty(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitAndTrimEmpty(" a , ,b", ",", " "))
	assert.Empty(t, splitAndTrimEmpty("", ",", " "))
}
