package types

import (
	"fmt"
	"time"

	"stakebft/types"
)

//-----------------------------------------------------------------------------
// ConsensusStatus enum type

// ConsensusStatus 共识模块的整体状态
// STARTING -> INITIALIZED -> RUNNING -> STOPPED
type ConsensusStatus string

const (
	StatusStarting    = ConsensusStatus("STARTING")    // 没有有效的质押，只同步区块
	StatusInitialized = ConsensusStatus("INITIALIZED") // 质押有效，等待启动
	StatusRunning     = ConsensusStatus("RUNNING")
	StatusStopped     = ConsensusStatus("STOPPED")
)

//-----------------------------------------------------------------------------
// RoundStepType enum type

// RoundStepType enumerates the timeouts of the consensus state machine
type RoundStepType uint8

// RoundStepType
const (
	RoundStepTransition = RoundStepType(0x01) // 高度更新后，第一次尝试提案前的短暂延迟
	RoundStepPropose    = RoundStepType(0x02) // 提案超时，超时后round+1并更换提案人
)

func (rs RoundStepType) String() string {
	switch rs {
	case RoundStepTransition:
		return "RoundStepTransition"
	case RoundStepPropose:
		return "RoundStepPropose"
	default:
		return "RoundStepUnknown"
	}
}

// RoundState 共识状态机内部的状态
// Number、Round在本地高度变化时重新计算：Number = height + 1, Round = 0
type RoundState struct {
	Number     int64              `json:"number"`
	Round      int64              `json:"round"`
	Epoch      int64              `json:"epoch"`
	Step       RoundStepType      `json:"step"`
	Status     ConsensusStatus    `json:"status"`
	Proposer   types.Address      `json:"proposer"`
	Validators types.ValidatorSet `json:"validators"` // 提案人从该集合中选出
	StartTime  time.Time          `json:"start_time"`
	LastBlock  *types.BlockHeader `json:"last_block"`
}

// TargetEpoch 父区块之后的第round个epoch
func TargetEpoch(parentEpoch, round int64) int64 {
	return parentEpoch + 1 + round
}

// Copy 返回给rpc的快照
func (rs *RoundState) Copy() *RoundState {
	cp := *rs
	cp.Validators = rs.Validators.Copy()
	if rs.LastBlock != nil {
		lb := *rs.LastBlock
		cp.LastBlock = &lb
	}
	return &cp
}

func (rs *RoundState) String() string {
	return fmt.Sprintf("RoundState{%v #%d/%d e%d %v proposer=%v}",
		rs.Status, rs.Number, rs.Round, rs.Epoch, rs.Step, rs.Proposer.Short())
}
