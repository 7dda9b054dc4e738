package consensus

import (
	"stakebft/blockpool"
	cstypes "stakebft/consensus/types"
	"stakebft/libs/utils"
	"stakebft/types"
)

// Status 共识模块的对外状态
type Status struct {
	Healthy    bool                    `json:"healthy"`
	State      cstypes.ConsensusStatus `json:"state"`
	Address    types.Address           `json:"address"`
	Number     int64                   `json:"number"`
	Round      int64                   `json:"round"`
	Epoch      int64                   `json:"epoch"`
	Proposer   types.Address           `json:"proposer"`
	Validators types.ValidatorSet      `json:"validators"`
	// 目标高度的区块notarize所需的最小stake，由父区块的验证者集合决定
	NotarizeThreshold int64              `json:"notarize_threshold"`
	LastBlock         *types.BlockHeader `json:"last_block"`
	LastFinalized     *types.BlockHeader `json:"last_finalized"`
}

// RawStatus 状态以及区块池的快照，调试使用
type RawStatus struct {
	Status
	Pool       *blockpool.PoolStatus `json:"block_pool"`
	MempoolTxs int                   `json:"mempool_txs"`
}

// GetRoundState returns a copy of the internal consensus state.
func (cs *ConsensusState) GetRoundState() *cstypes.RoundState {
	cs.mtx.RLock()
	defer cs.mtx.RUnlock()
	return cs.RoundState.Copy()
}

func (cs *ConsensusState) GetStatus() *Status {
	cs.mtx.RLock()
	defer cs.mtx.RUnlock()
	return cs.status()
}

func (cs *ConsensusState) GetRawStatus() *RawStatus {
	cs.mtx.RLock()
	defer cs.mtx.RUnlock()
	return &RawStatus{
		Status:     *cs.status(),
		Pool:       cs.blockPool.Status(),
		MempoolTxs: cs.mempool.Size(),
	}
}

// IsConsensusHealthy 当前epoch与最后finalized区块的epoch相差不超过阈值
func (cs *ConsensusState) IsConsensusHealthy() bool {
	cs.mtx.RLock()
	defer cs.mtx.RUnlock()
	return cs.isHealthy()
}

func (cs *ConsensusState) isHealthy() bool {
	finalized := cs.blockPool.LastFinalized()
	if finalized == nil {
		return false
	}
	return cs.Epoch-finalized.Epoch < cs.config.HealthThresholdEpoch
}

func (cs *ConsensusState) status() *Status {
	status := &Status{
		Healthy:    cs.isHealthy(),
		State:      cs.Status,
		Address:    cs.factory.GetAddress(),
		Number:     cs.Number,
		Round:      cs.Round,
		Epoch:      cs.Epoch,
		Proposer:   cs.Proposer,
		Validators: cs.Validators.Copy(),
	}
	if parent := cs.state.LastBlock; parent != nil {
		status.NotarizeThreshold = utils.SupermajorityThreshold(parent.Validators.TotalStake())
	}
	if cs.LastBlock != nil {
		lb := *cs.LastBlock
		status.LastBlock = &lb
	}
	if finalized := cs.blockPool.LastFinalized(); finalized != nil {
		status.LastFinalized = finalized.Header()
	}
	return status
}

// Metrics 注册到MetricSet中供rpc查询
func (cs *ConsensusState) Metrics() *consensusMetric {
	return cs.metrics
}

// BlockPool rpc查询区块池使用
func (cs *ConsensusState) BlockPool() *blockpool.BlockPool {
	return cs.blockPool
}
