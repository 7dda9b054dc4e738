package types

import (
	"errors"
	"fmt"

	"github.com/tendermint/tendermint/crypto/merkle"
	"github.com/tendermint/tendermint/crypto/tmhash"
	tmbytes "github.com/tendermint/tendermint/libs/bytes"
	tmjson "github.com/tendermint/tendermint/libs/json"
)

type TxType string

const (
	TxSetValue   = TxType("set_value")  // 写入数据库中的某个路径
	TxStake      = TxType("stake")      // 质押
	TxVote       = TxType("vote")       // 对区块的投票
	TxPropose    = TxType("propose")    // 区块的提案记录
	TxValidators = TxType("validators") // 系统交易，记录下一个高度的验证者
)

// NoNonce 不需要nonce的交易，如投票、提案
const NoNonce = int64(-1)

// Tx 所有交易统一的格式，Value中保存各个类型的具体内容(tmjson编码)
type Tx struct {
	Type      TxType           `json:"type"`
	Address   Address          `json:"address"`
	Nonce     int64            `json:"nonce"`
	Timestamp int64            `json:"timestamp"` // ms
	Ref       string           `json:"ref,omitempty"`
	Value     string           `json:"value,omitempty"`
	Signature tmbytes.HexBytes `json:"signature"`
}

// NewTx 按body构造一个未签名的交易
func NewTx(txType TxType, addr Address, ref string, body interface{}, timestamp int64) (*Tx, error) {
	tx := &Tx{
		Type:      txType,
		Address:   addr,
		Nonce:     NoNonce,
		Timestamp: timestamp,
		Ref:       ref,
	}
	if err := tx.SetBody(body); err != nil {
		return nil, err
	}
	return tx, nil
}

func (tx *Tx) SetBody(body interface{}) error {
	if body == nil {
		tx.Value = ""
		return nil
	}
	if s, ok := body.(string); ok {
		tx.Value = s
		return nil
	}
	bz, err := tmjson.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal %v tx body: %w", tx.Type, err)
	}
	tx.Value = string(bz)
	return nil
}

// DecodeBody 将Value解析到对应类型的body中
func (tx *Tx) DecodeBody(body interface{}) error {
	if tx.Value == "" {
		return fmt.Errorf("%v tx has empty value", tx.Type)
	}
	return tmjson.Unmarshal([]byte(tx.Value), body)
}

// SignBytes 签名的内容，不包含签名本身
func (tx *Tx) SignBytes() []byte {
	unsigned := *tx
	unsigned.Signature = nil
	bz, err := tmjson.Marshal(unsigned)
	if err != nil {
		panic(err)
	}
	return bz
}

func (tx *Tx) Hash() []byte {
	return tmhash.Sum(tx.SignBytes())
}

// Key mempool、投票去重使用的key
func (tx *Tx) Key() string {
	return tmbytes.HexBytes(tx.Hash()).String()
}

func (tx *Tx) ComputeSize() int64 {
	s := len(tx.Type) + len(tx.Address) + len(tx.Ref) + len(tx.Value) + len(tx.Signature)
	s += 2 * 8
	return int64(s)
}

func (tx *Tx) IsNonced() bool {
	return tx.Nonce >= 0
}

func (tx *Tx) ValidateBasic() error {
	if tx == nil {
		return errors.New("nil tx")
	}
	switch tx.Type {
	case TxSetValue:
		if tx.Ref == "" {
			return errors.New("set_value tx has empty ref")
		}
	case TxStake, TxVote, TxPropose, TxValidators:
		if tx.Value == "" {
			return fmt.Errorf("%v tx has empty value", tx.Type)
		}
	default:
		return fmt.Errorf("unknown tx type %q", tx.Type)
	}
	if tx.Address.IsEmpty() {
		return errors.New("tx has no address")
	}
	return nil
}

func (tx *Tx) String() string {
	return fmt.Sprintf("Tx{%v %v %d %X}", tx.Type, tx.Address.Short(), tx.Nonce, tmbytes.Fingerprint(tx.Hash()))
}

// ===== tx bodies =====

// StakeBody 质押，LockupMs为锁定时长
type StakeBody struct {
	Amount   int64 `json:"amount"`
	LockupMs int64 `json:"lockup_ms"`
}

type VoteBody struct {
	BlockHash tmbytes.HexBytes `json:"block_hash"`
	Number    int64            `json:"number"`
	Epoch     int64            `json:"epoch"`
	Stake     int64            `json:"stake"`
	IsAgainst bool             `json:"is_against,omitempty"`
}

// ProposeBody 提案记录，和区块一起广播
type ProposeBody struct {
	Number       int64            `json:"number"`
	Epoch        int64            `json:"epoch"`
	BlockHash    tmbytes.HexBytes `json:"block_hash"`
	ParentHash   tmbytes.HexBytes `json:"parent_hash"`
	Validators   ValidatorSet     `json:"validators"`
	TotalAtStake int64            `json:"total_at_stake"`
}

// ValidatorsBody 系统交易，记录Number高度的验证者集合
type ValidatorsBody struct {
	Number       int64        `json:"number"`
	Validators   ValidatorSet `json:"validators"`
	TotalAtStake int64        `json:"total_at_stake"`
}

// ===== tx array =====
type Txs []Tx

// 返回交易形成的merkle tree的根value
func (txs Txs) Hash() []byte {
	txBzs := make([][]byte, len(txs))
	for i := 0; i < len(txs); i++ {
		txBzs[i] = txs[i].Hash()
	}
	return merkle.HashFromByteSlices(txBzs)
}

func (txs Txs) ComputeSize() int64 {
	var dataSize int64
	for i := range txs {
		dataSize += txs[i].ComputeSize()
	}
	return dataSize
}

// Filter 返回指定类型的交易
func (txs Txs) Filter(txType TxType) []*Tx {
	res := make([]*Tx, 0)
	for i := range txs {
		if txs[i].Type == txType {
			res = append(res, &txs[i])
		}
	}
	return res
}
