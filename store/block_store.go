package store

import (
	"bytes"
	"fmt"
	"strconv"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	tmbytes "github.com/tendermint/tendermint/libs/bytes"
	tmjson "github.com/tendermint/tendermint/libs/json"
	"github.com/tendermint/tendermint/libs/log"
	tmdb "github.com/tendermint/tm-db"
	leveldb "github.com/tendermint/tm-db/goleveldb"

	"stakebft/types"
)

const DefaultBlockCacheSize = 256

var (
	keyLastNumber      = []byte("blockStore/last")
	keyFinalizedNumber = []byte("blockStore/finalized")
)

func blockKey(hash []byte) []byte {
	return []byte("B:" + tmbytes.HexBytes(hash).String())
}

func numberKey(number int64) []byte {
	return []byte(fmt.Sprintf("H:%d", number))
}

func NewBlockStore(name, dir string, logger log.Logger) (*BlockStore, error) {
	levelDB, err := leveldb.NewDB(name, dir)
	if err != nil {
		return nil, errors.Wrapf(err, "open block db %s", name)
	}
	return NewBlockStoreWithDB(levelDB, logger), nil
}

func NewBlockStoreWithDB(db tmdb.DB, logger log.Logger) *BlockStore {
	cache, err := lru.New(DefaultBlockCacheSize)
	if err != nil {
		panic(err)
	}
	bs := &BlockStore{db: db, cache: cache, logger: logger, last: -1, finalized: -1}
	bs.last = bs.loadNumber(keyLastNumber)
	bs.finalized = bs.loadNumber(keyFinalizedNumber)
	return bs
}

// BlockStore 本地已经提交的区块链，只能在末端追加
type BlockStore struct {
	mtx   sync.RWMutex
	db    tmdb.DB
	cache *lru.Cache // hash -> *types.Block

	logger log.Logger

	last      int64
	finalized int64
}

func (bs *BlockStore) SetLogger(logger log.Logger) {
	bs.logger = logger
}

func (bs *BlockStore) Close() error {
	return bs.db.Close()
}

func (bs *BlockStore) loadNumber(key []byte) int64 {
	bz, err := bs.db.Get(key)
	if err != nil || bz == nil {
		return -1
	}
	n, err := strconv.ParseInt(string(bz), 10, 64)
	if err != nil {
		return -1
	}
	return n
}

func (bs *BlockStore) LastBlockNumber() int64 {
	bs.mtx.RLock()
	defer bs.mtx.RUnlock()
	return bs.last
}

func (bs *BlockStore) LastBlock() *types.Block {
	bs.mtx.RLock()
	defer bs.mtx.RUnlock()
	if bs.last < 0 {
		return nil
	}
	return bs.getByNumber(bs.last)
}

// AddNewBlock 区块必须是当前末端区块的下一个，否则返回false
// 创世块只能在空链上加入
func (bs *BlockStore) AddNewBlock(block *types.Block) bool {
	bs.mtx.Lock()
	defer bs.mtx.Unlock()

	if block == nil || block.Number != bs.last+1 {
		return false
	}
	if block.Number > 0 {
		tip := bs.getByNumber(bs.last)
		if tip == nil || !bytes.Equal(tip.Hash, block.ParentHash) {
			return false
		}
	}

	bz, err := tmjson.Marshal(block)
	if err != nil {
		bs.logger.Error("marshal block failed", "number", block.Number, "err", err)
		return false
	}

	batch := bs.db.NewBatch()
	defer batch.Close()
	_ = batch.Set(blockKey(block.Hash), bz)
	_ = batch.Set(numberKey(block.Number), block.Hash)
	_ = batch.Set(keyLastNumber, []byte(strconv.FormatInt(block.Number, 10)))
	if err := batch.WriteSync(); err != nil {
		bs.logger.Error("write block failed", "number", block.Number, "err", err)
		return false
	}

	bs.cache.Add(block.Hash.String(), block)
	bs.last = block.Number
	return true
}

func (bs *BlockStore) GetBlockByHash(hash []byte) *types.Block {
	bs.mtx.RLock()
	defer bs.mtx.RUnlock()
	return bs.getByHash(hash)
}

func (bs *BlockStore) GetBlockByNumber(number int64) *types.Block {
	bs.mtx.RLock()
	defer bs.mtx.RUnlock()
	return bs.getByNumber(number)
}

// GetBlocksFrom 从number开始最多limit个区块，用于同步
func (bs *BlockStore) GetBlocksFrom(number int64, limit int) []*types.Block {
	bs.mtx.RLock()
	defer bs.mtx.RUnlock()

	res := make([]*types.Block, 0)
	if number < 0 {
		number = 0
	}
	for n := number; n <= bs.last && len(res) < limit; n++ {
		block := bs.getByNumber(n)
		if block == nil {
			break
		}
		res = append(res, block)
	}
	return res
}

// SaveFinalized 记录最后finalize的高度，只会向前推进
func (bs *BlockStore) SaveFinalized(number int64) error {
	bs.mtx.Lock()
	defer bs.mtx.Unlock()

	if number <= bs.finalized {
		return nil
	}
	if err := bs.db.SetSync(keyFinalizedNumber, []byte(strconv.FormatInt(number, 10))); err != nil {
		return errors.Wrapf(err, "save finalized number %d", number)
	}
	bs.finalized = number
	return nil
}

func (bs *BlockStore) FinalizedNumber() int64 {
	bs.mtx.RLock()
	defer bs.mtx.RUnlock()
	return bs.finalized
}

func (bs *BlockStore) getByNumber(number int64) *types.Block {
	hash, err := bs.db.Get(numberKey(number))
	if err != nil || hash == nil {
		return nil
	}
	return bs.getByHash(hash)
}

func (bs *BlockStore) getByHash(hash []byte) *types.Block {
	key := tmbytes.HexBytes(hash).String()
	if v, ok := bs.cache.Get(key); ok {
		return v.(*types.Block)
	}
	bz, err := bs.db.Get(blockKey(hash))
	if err != nil || bz == nil {
		return nil
	}
	block := new(types.Block)
	if err := tmjson.Unmarshal(bz, block); err != nil {
		bs.logger.Error("decode block failed", "hash", key, "err", err)
		return nil
	}
	bs.cache.Add(key, block)
	return block
}
