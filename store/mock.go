package store

import (
	"github.com/tendermint/tendermint/libs/log"
	"github.com/tendermint/tm-db/memdb"

	"stakebft/types"
)

// NewMemKVStore 内存中的账本，测试使用
func NewMemKVStore(logger log.Logger, options ...KVOption) *KVStore {
	return NewKVStoreWithDB(memdb.NewDB(), logger, options...)
}

func NewMemBlockStore(logger log.Logger) *BlockStore {
	return NewBlockStoreWithDB(memdb.NewDB(), logger)
}

// NewMemStores 用创世文件初始化的内存账本和区块链
func NewMemStores(genDoc *types.GenesisDoc, logger log.Logger, options ...KVOption) (*BlockStore, *KVStore, error) {
	bs := NewMemBlockStore(logger)
	kv := NewMemKVStore(logger, options...)
	if err := kv.InitGenesis(genDoc); err != nil {
		return nil, nil, err
	}
	bs.AddNewBlock(genDoc.Block())
	return bs, kv, nil
}
