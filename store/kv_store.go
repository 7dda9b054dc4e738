package store

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkg/errors"
	tmbytes "github.com/tendermint/tendermint/libs/bytes"
	tmjson "github.com/tendermint/tendermint/libs/json"
	"github.com/tendermint/tendermint/libs/log"
	tmdb "github.com/tendermint/tm-db"
	leveldb "github.com/tendermint/tm-db/goleveldb"

	"stakebft/types"
)

// 数据库中预定义的路径
const (
	PathStakingConsensus = "/staking/consensus"
	PathConsensusNumber  = "/consensus/number"

	KeyNumber              = "number"
	KeyBlockHash           = "block_hash"
	KeyValidators          = "validators"
	KeyNextRoundValidators = "next_round_validators"
	KeyProposer            = "proposer"
	KeyTotalAtStake        = "total_at_stake"
	KeyAmount              = "amount"
	KeyExpireAt            = "expire_at"

	// 共识记录只保留最近的若干个高度，按number取模覆盖
	DefaultConsensusStateWindow = 10
	DefaultMaxValidators        = 100
	DefaultLockupMs             = 30 * types.DayMs
)

var reservedPrefixes = []string{"/staking", "/consensus"}

// ConsensusRecord 每个高度提交后写入的共识信息
type ConsensusRecord struct {
	Number              int64              `json:"number"`
	BlockHash           tmbytes.HexBytes   `json:"block_hash"`
	Validators          types.ValidatorSet `json:"validators"`
	NextRoundValidators types.ValidatorSet `json:"next_round_validators"`
	Proposer            types.Address      `json:"proposer"`
	TotalAtStake        int64              `json:"total_at_stake"`
}

type KVOption func(*KVStore)

// WithLockupHorizon 质押在now+horizon之后仍有效才算数
func WithLockupHorizon(ms int64) KVOption {
	return func(kv *KVStore) {
		if ms >= 0 {
			kv.lockupHorizonMs = ms
		}
	}
}

func WithMaxValidators(n int) KVOption {
	return func(kv *KVStore) {
		if n > 0 {
			kv.maxValidators = n
		}
	}
}

func WithDefaultLockup(ms int64) KVOption {
	return func(kv *KVStore) {
		if ms > 0 {
			kv.defaultLockupMs = ms
		}
	}
}

func WithStateWindow(n int64) KVOption {
	return func(kv *KVStore) {
		if n > 0 {
			kv.stateWindow = n
		}
	}
}

func NewKVStore(name, dir string, logger log.Logger, options ...KVOption) (*KVStore, error) {
	levelDB, err := leveldb.NewDB(name, dir)
	if err != nil {
		return nil, errors.Wrapf(err, "open ledger db %s", name)
	}
	return NewKVStoreWithDB(levelDB, logger, options...), nil
}

func NewKVStoreWithDB(kvdb tmdb.DB, logger log.Logger, options ...KVOption) *KVStore {
	kv := &KVStore{
		kvDB:            kvdb,
		logger:          logger,
		lockupHorizonMs: types.DayMs,
		maxValidators:   DefaultMaxValidators,
		defaultLockupMs: DefaultLockupMs,
		stateWindow:     DefaultConsensusStateWindow,
	}
	for _, option := range options {
		option(kv)
	}
	return kv
}

// KVStore 质押账本以及按路径读写的状态数据库
// 所有内容都由已提交的区块推导出来
type KVStore struct {
	mtx  sync.RWMutex
	kvDB tmdb.DB

	logger log.Logger

	lockupHorizonMs int64
	maxValidators   int
	defaultLockupMs int64
	stateWindow     int64
}

func (kv *KVStore) SetLogger(logger log.Logger) {
	kv.logger = logger
}

func (kv *KVStore) GetDB() tmdb.DB {
	return kv.kvDB
}

func (kv *KVStore) LockupHorizon() int64 {
	return kv.lockupHorizonMs
}

func (kv *KVStore) Close() error {
	return kv.kvDB.Close()
}

// ===== 通用路径读写 =====

func (kv *KVStore) GetValue(path string) ([]byte, error) {
	bz, err := kv.kvDB.Get([]byte(normalizePath(path)))
	if err != nil {
		return nil, err
	}
	if bz == nil {
		return nil, errors.Wrap(ErrNotFound, path)
	}
	return bz, nil
}

// SetValue 直接写入一个路径，保留路径只能由区块中的交易修改
func (kv *KVStore) SetValue(path string, value []byte) error {
	path = normalizePath(path)
	if isReserved(path) {
		return errors.Wrap(ErrReservedPath, path)
	}
	return kv.kvDB.Set([]byte(path), value)
}

// ===== 质押 =====

// GetStake 地址所有有效质押的总和
func (kv *KVStore) GetStake(addr types.Address, now int64) int64 {
	var total int64
	for _, d := range kv.deposits(depositPrefix(addr)) {
		if d.Qualifies(now, kv.lockupHorizonMs) {
			total += d.Amount
		}
	}
	return total
}

// QualifyingDeposits 所有账户的有效质押，按地址汇总
func (kv *KVStore) QualifyingDeposits(now int64) types.ValidatorSet {
	res := make(types.ValidatorSet)
	for _, d := range kv.deposits(PathStakingConsensus + "/") {
		if d.Qualifies(now, kv.lockupHorizonMs) {
			res[d.Address] += d.Amount
		}
	}
	return res
}

// CandidateValidators 下一个高度的验证者：stake降序、地址升序，最多maxValidators个
func (kv *KVStore) CandidateValidators(now int64) types.ValidatorSet {
	ordered := kv.QualifyingDeposits(now).Ordered()
	if len(ordered) > kv.maxValidators {
		ordered = ordered[:kv.maxValidators]
	}
	return types.NewValidatorSet(ordered...)
}

func (kv *KVStore) deposits(prefix string) []*types.Deposit {
	kv.mtx.RLock()
	defer kv.mtx.RUnlock()

	it, err := tmdb.IteratePrefix(kv.kvDB, []byte(prefix))
	if err != nil {
		kv.logger.Error("iterate deposits failed", "prefix", prefix, "err", err)
		return nil
	}
	defer it.Close()

	values := make(map[string][]byte)
	keys := make([]string, 0)
	for ; it.Valid(); it.Next() {
		key := string(it.Key())
		values[key] = append([]byte(nil), it.Value()...)
		keys = append(keys, key)
	}

	res := make([]*types.Deposit, 0)
	for _, key := range keys {
		// /staking/consensus/<addr>/<key>/<field>
		parts := strings.Split(strings.TrimPrefix(key, PathStakingConsensus+"/"), "/")
		if len(parts) != 3 || parts[2] != KeyAmount {
			continue
		}
		d := &types.Deposit{Address: types.Address(parts[0])}
		if err := tmjson.Unmarshal(values[key], &d.Amount); err != nil {
			kv.logger.Error("bad deposit amount", "key", key, "err", err)
			continue
		}
		bz, ok := values[strings.TrimSuffix(key, KeyAmount)+KeyExpireAt]
		if !ok {
			continue
		}
		if err := tmjson.Unmarshal(bz, &d.ExpireAt); err != nil {
			kv.logger.Error("bad deposit expiry", "key", key, "err", err)
			continue
		}
		res = append(res, d)
	}
	return res
}

// ===== 共识记录 =====

func (kv *KVStore) ConsensusRecord(number int64) (*ConsensusRecord, error) {
	kv.mtx.RLock()
	defer kv.mtx.RUnlock()

	base := kv.recordPath(number)
	record := &ConsensusRecord{}
	fields := []struct {
		key string
		ptr interface{}
	}{
		{KeyNumber, &record.Number},
		{KeyBlockHash, &record.BlockHash},
		{KeyValidators, &record.Validators},
		{KeyNextRoundValidators, &record.NextRoundValidators},
		{KeyProposer, &record.Proposer},
		{KeyTotalAtStake, &record.TotalAtStake},
	}
	for _, f := range fields {
		bz, err := kv.kvDB.Get([]byte(base + "/" + f.key))
		if err != nil {
			return nil, err
		}
		if bz == nil {
			return nil, errors.Wrapf(ErrNotFound, "consensus record %d", number)
		}
		if err := tmjson.Unmarshal(bz, f.ptr); err != nil {
			return nil, errors.Wrapf(err, "decode %s of record %d", f.key, number)
		}
	}
	// 窗口中的位置已经被更新的高度覆盖
	if record.Number != number {
		return nil, errors.Wrapf(ErrNotFound, "consensus record %d (slot holds %d)", number, record.Number)
	}
	return record, nil
}

// NextRoundValidators number高度提交时记录的下一个高度的验证者集合
func (kv *KVStore) NextRoundValidators(number int64) (types.ValidatorSet, error) {
	record, err := kv.ConsensusRecord(number)
	if err != nil {
		return nil, err
	}
	return record.NextRoundValidators, nil
}

func (kv *KVStore) recordPath(number int64) string {
	return fmt.Sprintf("%s/%d", PathConsensusNumber, number%kv.stateWindow)
}

// ===== 区块 =====

// HasGenesis 账本是否已经初始化过
func (kv *KVStore) HasGenesis() bool {
	ok, err := kv.kvDB.Has([]byte(kv.recordPath(0) + "/" + KeyNumber))
	return err == nil && ok
}

// InitGenesis 写入创世验证者的质押以及0高度的共识记录
func (kv *KVStore) InitGenesis(genDoc *types.GenesisDoc) error {
	kv.mtx.Lock()
	defer kv.mtx.Unlock()

	batch := kv.kvDB.NewBatch()
	defer batch.Close()

	genTime := genDoc.GenesisTime.UnixNano() / 1e6
	for _, v := range genDoc.Validators {
		lockup := v.LockupMs
		if lockup <= 0 {
			lockup = kv.defaultLockupMs
		}
		d := &types.Deposit{Address: v.Address, Amount: v.Stake, ExpireAt: genTime + lockup}
		if err := kv.setDeposit(batch, "genesis", d); err != nil {
			return err
		}
	}

	genBlock := genDoc.Block()
	record := &ConsensusRecord{
		Number:              0,
		BlockHash:           genBlock.Hash,
		Validators:          genBlock.Validators,
		NextRoundValidators: genBlock.Validators,
		Proposer:            genBlock.Proposer,
		TotalAtStake:        genBlock.Validators.TotalStake(),
	}
	if err := kv.setRecord(batch, record); err != nil {
		return err
	}
	return batch.WriteSync()
}

// ApplyBlock 执行区块中的交易，并写入该高度的共识记录，整体在一个batch中提交
func (kv *KVStore) ApplyBlock(block *types.Block) error {
	kv.mtx.Lock()
	defer kv.mtx.Unlock()

	batch := kv.kvDB.NewBatch()
	defer batch.Close()

	nextVals := block.Validators
	for i := range block.Txs {
		tx := &block.Txs[i]
		switch tx.Type {
		case types.TxSetValue:
			path := normalizePath(tx.Ref)
			if isReserved(path) {
				kv.logger.Error("exec tx failed.", "tx", tx, "err", ErrReservedPath)
				continue
			}
			if err := batch.Set([]byte(path), []byte(tx.Value)); err != nil {
				return errors.Wrap(err, "set value")
			}
		case types.TxStake:
			var body types.StakeBody
			if err := tx.DecodeBody(&body); err != nil || body.Amount <= 0 {
				kv.logger.Error("exec tx failed.", "tx", tx, "err", err)
				continue
			}
			lockup := body.LockupMs
			if lockup <= 0 {
				lockup = kv.defaultLockupMs
			}
			d := &types.Deposit{Address: tx.Address, Amount: body.Amount, ExpireAt: tx.Timestamp + lockup}
			if err := kv.setDeposit(batch, tx.Key(), d); err != nil {
				return err
			}
		case types.TxValidators:
			var body types.ValidatorsBody
			if err := tx.DecodeBody(&body); err != nil {
				kv.logger.Error("exec tx failed.", "tx", tx, "err", err)
				continue
			}
			if body.Number == block.Number+1 && !body.Validators.IsNilOrEmpty() {
				nextVals = body.Validators
			}
		}
	}

	record := &ConsensusRecord{
		Number:              block.Number,
		BlockHash:           block.Hash,
		Validators:          block.Validators,
		NextRoundValidators: nextVals,
		Proposer:            block.Proposer,
		TotalAtStake:        block.Validators.TotalStake(),
	}
	if err := kv.setRecord(batch, record); err != nil {
		return err
	}
	if err := batch.WriteSync(); err != nil {
		return errors.Wrapf(err, "apply block %d", block.Number)
	}
	kv.logger.Debug("applied block", "number", block.Number, "txs", len(block.Txs), "next", nextVals.Size())
	return nil
}

func (kv *KVStore) setDeposit(batch tmdb.Batch, key string, d *types.Deposit) error {
	base := depositPrefix(d.Address) + key
	if err := setJSON(batch, base+"/"+KeyAmount, d.Amount); err != nil {
		return err
	}
	return setJSON(batch, base+"/"+KeyExpireAt, d.ExpireAt)
}

func (kv *KVStore) setRecord(batch tmdb.Batch, record *ConsensusRecord) error {
	base := kv.recordPath(record.Number)
	values := []struct {
		key string
		v   interface{}
	}{
		{KeyNumber, record.Number},
		{KeyBlockHash, record.BlockHash},
		{KeyValidators, record.Validators},
		{KeyNextRoundValidators, record.NextRoundValidators},
		{KeyProposer, record.Proposer},
		{KeyTotalAtStake, record.TotalAtStake},
	}
	for _, item := range values {
		if err := setJSON(batch, base+"/"+item.key, item.v); err != nil {
			return err
		}
	}
	return nil
}

func setJSON(batch tmdb.Batch, key string, v interface{}) error {
	bz, err := tmjson.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "marshal %s", key)
	}
	return batch.Set([]byte(key), bz)
}

func depositPrefix(addr types.Address) string {
	return PathStakingConsensus + "/" + string(addr) + "/"
}

func normalizePath(path string) string {
	parts := strings.Split(path, "/")
	res := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			res = append(res, p)
		}
	}
	return "/" + strings.Join(res, "/")
}

func isReserved(path string) bool {
	for _, prefix := range reservedPrefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return false
}
