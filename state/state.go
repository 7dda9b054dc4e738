package state

import (
	"fmt"
	"time"

	"github.com/pkg/errors"

	"stakebft/types"
)

// MakeGenesisState 创世块之后的状态
func MakeGenesisState(genDoc *types.GenesisDoc) State {
	genBlock := genDoc.Block()
	return State{
		ChainID:             genDoc.ChainID,
		LastBlock:           genBlock,
		LastBlockTime:       genDoc.GenesisTime,
		NextValidators:      genDoc.ValidatorSet(),
		LastFinalizedNumber: 0,
	}
}

// LoadState 从本地区块链和账本恢复状态
func LoadState(chainID string, chain BlockStore, ledger Ledger) (State, error) {
	last := chain.LastBlock()
	if last == nil {
		return State{}, errors.New("empty block store")
	}
	nextVals, err := ledger.NextRoundValidators(last.Number)
	if err != nil {
		return State{}, errors.Wrapf(err, "load validators of block %d", last.Number)
	}
	finalized := chain.FinalizedNumber()
	if finalized < 0 {
		finalized = 0
	}
	return State{
		ChainID:             chainID,
		LastBlock:           last,
		LastBlockTime:       time.Unix(0, last.Timestamp*int64(time.Millisecond)),
		NextValidators:      nextVals,
		LastFinalizedNumber: finalized,
	}, nil
}

// State 本地链末端的快照，每次提交后生成新的State
type State struct {
	ChainID string

	// 最后提交的区块的信息
	LastBlock     *types.Block
	LastBlockTime time.Time // 提交的时间 - 物理时间

	// 下一个高度的验证者集合
	NextValidators types.ValidatorSet

	LastFinalizedNumber int64
}

func (state State) LastNumber() int64 {
	if state.LastBlock == nil {
		return -1
	}
	return state.LastBlock.Number
}

func (state State) IsEmpty() bool {
	return state.LastBlock == nil
}

// Copy 返回当前state的拷贝副本，区块本身不可变所以共享
func (state State) Copy() State {
	return State{
		ChainID:             state.ChainID,
		LastBlock:           state.LastBlock,
		LastBlockTime:       state.LastBlockTime,
		NextValidators:      state.NextValidators.Copy(),
		LastFinalizedNumber: state.LastFinalizedNumber,
	}
}

func (state State) String() string {
	if state.LastBlock == nil {
		return "State{empty}"
	}
	return fmt.Sprintf("State{%s #%d e%d %X vals=%d finalized=%d}",
		state.ChainID, state.LastBlock.Number, state.LastBlock.Epoch,
		[]byte(state.LastBlock.Hash), state.NextValidators.Size(), state.LastFinalizedNumber)
}
