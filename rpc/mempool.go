package rpc

import (
	"github.com/pkg/errors"
	tmbytes "github.com/tendermint/tendermint/libs/bytes"
	rpctypes "github.com/tendermint/tendermint/rpc/jsonrpc/types"

	mempl "stakebft/mempool"
	"stakebft/types"
)

type ResultBroadcastTx struct {
	Hash tmbytes.HexBytes `json:"hash"`
	Type types.TxType     `json:"type"`
}

type ResultUnconfirmedTxs struct {
	Count      int   `json:"n_txs"`
	TotalBytes int64 `json:"total_bytes"`
}

// BroadcastTx 交易进入mempool后由mempool reactor广播
func BroadcastTx(ctx *rpctypes.Context, tx *types.Tx) (*ResultBroadcastTx, error) {
	if tx == nil {
		return nil, errors.New("missing tx")
	}
	if err := env.Mempool.CheckTx(tx, mempl.TxInfo{SenderID: mempl.UnknownPeerID}); err != nil {
		return nil, err
	}
	return &ResultBroadcastTx{Hash: tx.Hash(), Type: tx.Type}, nil
}

func NumUnconfirmedTxs(ctx *rpctypes.Context) (*ResultUnconfirmedTxs, error) {
	return &ResultUnconfirmedTxs{
		Count:      env.Mempool.Size(),
		TotalBytes: env.Mempool.TxsBytes(),
	}, nil
}
