package rpc

import (
	"github.com/pkg/errors"
	rpctypes "github.com/tendermint/tendermint/rpc/jsonrpc/types"

	"stakebft/blockpool"
	"stakebft/consensus"
	cstypes "stakebft/consensus/types"
	"stakebft/types"
)

type ResultValidators struct {
	Number     int64              `json:"number"`
	Validators types.ValidatorSet `json:"validators"`
	TotalStake int64              `json:"total_stake"`
}

type ResultBlockPoolTree struct {
	Tree   string                `json:"tree"`
	Status *blockpool.PoolStatus `json:"status"`
}

type ResultStake struct {
	Address types.Address `json:"address"`
	Amount  int64         `json:"amount"`
}

func Status(ctx *rpctypes.Context) (*consensus.Status, error) {
	return env.Consensus.GetStatus(), nil
}

func RawStatus(ctx *rpctypes.Context) (*consensus.RawStatus, error) {
	return env.Consensus.GetRawStatus(), nil
}

func RoundState(ctx *rpctypes.Context) (*cstypes.RoundState, error) {
	return env.Consensus.GetRoundState(), nil
}

// Validators 区块number之后一个高度的验证者集合，number<=0时返回当前round的验证者
func Validators(ctx *rpctypes.Context, number int64) (*ResultValidators, error) {
	var vals types.ValidatorSet
	if number <= 0 {
		rs := env.Consensus.GetRoundState()
		number, vals = rs.Number-1, rs.Validators
	} else {
		var err error
		if vals, err = env.Ledger.NextRoundValidators(number); err != nil {
			return nil, errors.Wrapf(err, "validators after block %d", number)
		}
	}
	return &ResultValidators{
		Number:     number,
		Validators: vals,
		TotalStake: vals.TotalStake(),
	}, nil
}

func BlockPoolTree(ctx *rpctypes.Context) (*ResultBlockPoolTree, error) {
	pool := env.Consensus.BlockPool()
	return &ResultBlockPoolTree{
		Tree:   pool.TreeString(),
		Status: pool.Status(),
	}, nil
}

// Stake 以本节点账户质押
func Stake(ctx *rpctypes.Context, amount int64) (*ResultStake, error) {
	if amount <= 0 {
		return nil, errors.Errorf("stake amount must be positive, got %d", amount)
	}
	if err := env.Consensus.Stake(amount); err != nil {
		return nil, err
	}
	return &ResultStake{
		Address: env.Consensus.GetStatus().Address,
		Amount:  amount,
	}, nil
}
