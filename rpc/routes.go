package rpc

import rpc "github.com/tendermint/tendermint/rpc/jsonrpc/server"

var Routes = map[string]*rpc.RPCFunc{
	// consensus
	"status":          rpc.NewRPCFunc(Status, ""),
	"raw_status":      rpc.NewRPCFunc(RawStatus, ""),
	"round_state":     rpc.NewRPCFunc(RoundState, ""),
	"validators":      rpc.NewRPCFunc(Validators, "number"),
	"block_pool_tree": rpc.NewRPCFunc(BlockPoolTree, ""),
	"stake":           rpc.NewRPCFunc(Stake, "amount"),

	// chain & ledger
	"block":    rpc.NewRPCFunc(Block, "number"),
	"value":    rpc.NewRPCFunc(Value, "path"),
	"stake_of": rpc.NewRPCFunc(StakeOf, "address"),

	// mempool
	"broadcast_tx":        rpc.NewRPCFunc(BroadcastTx, "tx"),
	"num_unconfirmed_txs": rpc.NewRPCFunc(NumUnconfirmedTxs, ""),

	// metrics
	"metrics": rpc.NewRPCFunc(JSONMetrics, "label"),
}
