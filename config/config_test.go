package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.ValidateBasic())

	cfg.SetRoot("/foo")
	assert.Equal(t, "/foo", cfg.Consensus.RootDir)
	assert.Equal(t, filepath.Join("/foo", "config", "genesis.json"), cfg.GenesisFile())
	assert.Equal(t, filepath.Join("/foo", "data"), cfg.DBDir())
}

func TestConsensusConfigValidateBasic(t *testing.T) {
	testCases := map[string]func(*ConsensusConfig){
		"proposal timeout":   func(c *ConsensusConfig) { c.ProposalTimeout = 0 },
		"transition timeout": func(c *ConsensusConfig) { c.TransitionTimeout = -1 },
		"lockup":             func(c *ConsensusConfig) { c.DefaultLockup = c.LockupHorizon },
		"target stake":       func(c *ConsensusConfig) { c.TargetStake = -1 },
		"max validators":     func(c *ConsensusConfig) { c.MaxValidators = 0 },
		"health threshold":   func(c *ConsensusConfig) { c.HealthThresholdEpoch = 0 },
		"sync batch":         func(c *ConsensusConfig) { c.SyncBatch = 0 },
		"state window":       func(c *ConsensusConfig) { c.StateWindow = 0 },
	}
	for name, modify := range testCases {
		t.Run(name, func(t *testing.T) {
			cfg := TestConsensusConfig()
			require.NoError(t, cfg.ValidateBasic())
			modify(cfg)
			assert.Error(t, cfg.ValidateBasic())
		})
	}
}

// TestConfigFileRoundTrip 写入的配置文件可以被viper读回
func TestConfigFileRoundTrip(t *testing.T) {
	cfg := ResetTestRoot("config_test")
	defer os.RemoveAll(cfg.RootDir)

	cfg.Consensus.TargetStake = 7
	cfg.P2P.PersistentPeers = "abc@127.0.0.1:26656"
	path := filepath.Join(cfg.RootDir, "config", "config.toml")
	require.NoError(t, WriteConfigFile(path, cfg))

	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	loaded := DefaultConfig()
	require.NoError(t, v.Unmarshal(loaded))
	loaded.SetRoot(cfg.RootDir)

	assert.Equal(t, 500*time.Millisecond, loaded.Consensus.ProposalTimeout)
	assert.Equal(t, 10*time.Millisecond, loaded.Consensus.TransitionTimeout)
	assert.EqualValues(t, 7, loaded.Consensus.TargetStake)
	assert.Equal(t, 10, loaded.Consensus.SyncBatch)
	assert.Equal(t, cfg.P2P.PersistentPeers, loaded.P2P.PersistentPeers)
	assert.Equal(t, cfg.RPC.ListenAddress, loaded.RPC.ListenAddress)
	require.NoError(t, loaded.ValidateBasic())
}
