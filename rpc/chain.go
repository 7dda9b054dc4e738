package rpc

import (
	"github.com/pkg/errors"
	rpctypes "github.com/tendermint/tendermint/rpc/jsonrpc/types"

	"stakebft/types"
)

type ResultBlock struct {
	Block     *types.Block `json:"block"`
	Finalized bool         `json:"finalized"`
}

type ResultValue struct {
	Path  string `json:"path"`
	Value string `json:"value"`
}

// Block number<=0时返回本地链的末端
func Block(ctx *rpctypes.Context, number int64) (*ResultBlock, error) {
	var block *types.Block
	if number <= 0 {
		block = env.Chain.LastBlock()
	} else {
		block = env.Chain.GetBlockByNumber(number)
	}
	if block == nil {
		return nil, errors.Errorf("block %d not found", number)
	}
	return &ResultBlock{
		Block:     block,
		Finalized: block.Number <= env.Chain.FinalizedNumber(),
	}, nil
}

func Value(ctx *rpctypes.Context, path string) (*ResultValue, error) {
	bz, err := env.Ledger.GetValue(path)
	if err != nil {
		return nil, err
	}
	return &ResultValue{Path: path, Value: string(bz)}, nil
}

// StakeOf 账户当前符合条件的质押总额
func StakeOf(ctx *rpctypes.Context, address string) (*ResultStake, error) {
	addr := types.Address(address)
	if addr.IsEmpty() {
		return nil, errors.New("empty address")
	}
	return &ResultStake{
		Address: addr,
		Amount:  env.Ledger.GetStake(addr, types.NowMs()),
	}, nil
}
