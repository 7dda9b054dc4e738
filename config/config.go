package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	tmcfg "github.com/tendermint/tendermint/config"
)

const (
	// DefaultDirName 节点的默认根目录名
	DefaultDirName = ".stakebft"
	// EnvPrefix 环境变量前缀，例如STAKEBFT_CONSENSUS_TARGET_STAKE
	EnvPrefix = "STAKEBFT"

	DefaultLedgerDBName = "ledger"
	DefaultChainDBName  = "blockstore"
)

// Config 节点的全部配置
// p2p、rpc、mempool部分直接使用tendermint的配置
type Config struct {
	tmcfg.BaseConfig `mapstructure:",squash"`

	RPC       *tmcfg.RPCConfig     `mapstructure:"rpc"`
	P2P       *tmcfg.P2PConfig     `mapstructure:"p2p"`
	Mempool   *tmcfg.MempoolConfig `mapstructure:"mempool"`
	Consensus *ConsensusConfig     `mapstructure:"consensus"`
}

func DefaultConfig() *Config {
	return &Config{
		BaseConfig: tmcfg.DefaultBaseConfig(),
		RPC:        tmcfg.DefaultRPCConfig(),
		P2P:        tmcfg.DefaultP2PConfig(),
		Mempool:    tmcfg.DefaultMempoolConfig(),
		Consensus:  DefaultConsensusConfig(),
	}
}

// TestConfig 测试使用，超时时间较短
func TestConfig() *Config {
	return &Config{
		BaseConfig: tmcfg.TestBaseConfig(),
		RPC:        tmcfg.TestRPCConfig(),
		P2P:        tmcfg.TestP2PConfig(),
		Mempool:    tmcfg.TestMempoolConfig(),
		Consensus:  TestConsensusConfig(),
	}
}

// SetRoot 设置所有部分的根目录
func (cfg *Config) SetRoot(root string) *Config {
	cfg.BaseConfig.RootDir = root
	cfg.RPC.RootDir = root
	cfg.P2P.RootDir = root
	cfg.Mempool.RootDir = root
	cfg.Consensus.RootDir = root
	return cfg
}

func (cfg *Config) ValidateBasic() error {
	if err := cfg.BaseConfig.ValidateBasic(); err != nil {
		return err
	}
	if err := cfg.RPC.ValidateBasic(); err != nil {
		return errors.Wrap(err, "error in [rpc] section")
	}
	if err := cfg.P2P.ValidateBasic(); err != nil {
		return errors.Wrap(err, "error in [p2p] section")
	}
	if err := cfg.Mempool.ValidateBasic(); err != nil {
		return errors.Wrap(err, "error in [mempool] section")
	}
	if err := cfg.Consensus.ValidateBasic(); err != nil {
		return errors.Wrap(err, "error in [consensus] section")
	}
	return nil
}

//-----------------------------------------------------------------------------
// ConsensusConfig

// ConsensusConfig 共识状态机、质押和区块池的参数
type ConsensusConfig struct {
	RootDir string `mapstructure:"home"`

	// 每个round等待提案的时间，超时后round+1
	ProposalTimeout time.Duration `mapstructure:"proposal_timeout"`
	// 高度更新后第一次尝试提案前的延迟
	TransitionTimeout time.Duration `mapstructure:"transition_timeout"`

	// 质押在now+LockupHorizon之后才到期才算有效
	LockupHorizon time.Duration `mapstructure:"lockup_horizon"`
	// stake交易没有指定锁定时长时使用
	DefaultLockup time.Duration `mapstructure:"default_lockup"`
	// 启动时没有有效质押则自动质押的数量，0表示不质押
	TargetStake int64 `mapstructure:"target_stake"`

	MaxValidators int `mapstructure:"max_validators"`
	// 当前epoch与最后finalized区块的epoch相差超过该值时认为共识不健康
	HealthThresholdEpoch int64 `mapstructure:"health_threshold_epoch"`

	MaxChainDepth int   `mapstructure:"max_chain_depth"`
	MaxBranching  int   `mapstructure:"max_branching"`
	MaxBlockBytes int64 `mapstructure:"max_block_bytes"`

	// 一次同步返回的最大区块数
	SyncBatch int `mapstructure:"sync_batch"`
	// 账本中保留的共识记录个数
	StateWindow int64 `mapstructure:"state_window"`
}

func DefaultConsensusConfig() *ConsensusConfig {
	return &ConsensusConfig{
		ProposalTimeout:      10 * time.Second,
		TransitionTimeout:    100 * time.Millisecond,
		LockupHorizon:        24 * time.Hour,
		DefaultLockup:        30 * 24 * time.Hour,
		TargetStake:          0,
		MaxValidators:        100,
		HealthThresholdEpoch: 10,
		MaxChainDepth:        10000,
		MaxBranching:         64,
		MaxBlockBytes:        1024 * 1024,
		SyncBatch:            100,
		StateWindow:          10,
	}
}

func TestConsensusConfig() *ConsensusConfig {
	cfg := DefaultConsensusConfig()
	cfg.ProposalTimeout = 500 * time.Millisecond
	cfg.TransitionTimeout = 10 * time.Millisecond
	cfg.SyncBatch = 10
	return cfg
}

func (cfg *ConsensusConfig) ValidateBasic() error {
	if cfg.ProposalTimeout <= 0 {
		return errors.New("proposal_timeout must be positive")
	}
	if cfg.TransitionTimeout < 0 {
		return errors.New("transition_timeout can't be negative")
	}
	if cfg.LockupHorizon < 0 {
		return errors.New("lockup_horizon can't be negative")
	}
	if cfg.DefaultLockup <= cfg.LockupHorizon {
		return errors.New("default_lockup must be longer than lockup_horizon")
	}
	if cfg.TargetStake < 0 {
		return errors.New("target_stake can't be negative")
	}
	if cfg.MaxValidators <= 0 {
		return errors.New("max_validators must be positive")
	}
	if cfg.HealthThresholdEpoch <= 0 {
		return errors.New("health_threshold_epoch must be positive")
	}
	if cfg.SyncBatch <= 0 {
		return errors.New("sync_batch must be positive")
	}
	if cfg.StateWindow <= 0 {
		return errors.New("state_window must be positive")
	}
	return nil
}

// ResetTestRoot 在临时目录中生成配置文件，测试结束后需要删除RootDir
func ResetTestRoot(testName string) *Config {
	rootDir, err := os.MkdirTemp("", testName+"-")
	if err != nil {
		panic(err)
	}
	cfg := TestConfig().SetRoot(rootDir)
	if err := EnsureRoot(rootDir); err != nil {
		panic(err)
	}
	if err := WriteConfigFile(filepath.Join(rootDir, "config", "config.toml"), cfg); err != nil {
		panic(err)
	}
	return cfg
}
