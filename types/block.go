package types

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/tendermint/tendermint/crypto/merkle"
	tmbytes "github.com/tendermint/tendermint/libs/bytes"
)

// local blockchain维护的区块的基本单位
// 区块的身份由Hash决定，Hash覆盖除Hash以外的所有字段
type Block struct {
	Number     int64            `json:"number"`
	Epoch      int64            `json:"epoch"`
	Timestamp  int64            `json:"timestamp"` // ms
	ParentHash tmbytes.HexBytes `json:"parent_hash"`
	Proposer   Address          `json:"proposer"`
	Hash       tmbytes.HexBytes `json:"hash"`

	Txs        Txs          `json:"txs"`
	Validators ValidatorSet `json:"validators"` // 该高度有投票权的验证者
}

// NewBlock 生成区块并填充hash
func NewBlock(
	number, epoch int64,
	parentHash []byte,
	proposer Address,
	txs Txs,
	validators ValidatorSet,
	timestamp int64,
) *Block {
	if txs == nil {
		txs = Txs{}
	}
	b := &Block{
		Number:     number,
		Epoch:      epoch,
		Timestamp:  timestamp,
		ParentHash: parentHash,
		Proposer:   proposer,
		Txs:        txs,
		Validators: validators,
	}
	b.Hash = b.ComputeHash()
	return b
}

// ComputeHash 根据区块内容重新计算hash
func (b *Block) ComputeHash() tmbytes.HexBytes {
	return merkle.HashFromByteSlices([][]byte{
		int64Bytes(b.Number),
		int64Bytes(b.Epoch),
		int64Bytes(b.Timestamp),
		b.ParentHash,
		[]byte(b.Proposer),
		b.Txs.Hash(),
		b.Validators.Hash(),
	})
}

// 检验一个block是否合法 - 这里的合法指的是没有明确的错误
func (b *Block) ValidateBasic() error {
	if b == nil {
		return errors.New("nil block")
	}
	if b.Number < 0 || b.Epoch < 0 {
		return fmt.Errorf("negative number or epoch: %d/%d", b.Number, b.Epoch)
	}
	if len(b.Hash) == 0 {
		return errors.New("block had no hash")
	}
	if !bytes.Equal(b.Hash, b.ComputeHash()) {
		return fmt.Errorf("block hash mismatch: got %v, want %v", b.Hash, b.ComputeHash())
	}
	if b.Number > 0 {
		if len(b.ParentHash) == 0 {
			return errors.New("block had no parent hash")
		}
		if b.Proposer.IsEmpty() {
			return errors.New("block had no proposer")
		}
	}
	return b.Validators.ValidateBasic()
}

func (b *Block) IsGenesis() bool {
	return b != nil && b.Number == 0
}

func (b *Block) HashString() string {
	if b == nil {
		return ""
	}
	return b.Hash.String()
}

func (b *Block) String() string {
	if b == nil {
		return "nil-Block"
	}
	return fmt.Sprintf("Block{#%d e%d %X parent=%X txs=%d proposer=%v}",
		b.Number, b.Epoch, tmbytes.Fingerprint(b.Hash), tmbytes.Fingerprint(b.ParentHash), len(b.Txs), b.Proposer.Short())
}

// BlockHeader 状态查询使用的区块摘要
type BlockHeader struct {
	Number     int64            `json:"number"`
	Epoch      int64            `json:"epoch"`
	Hash       tmbytes.HexBytes `json:"hash"`
	ParentHash tmbytes.HexBytes `json:"parent_hash"`
	Proposer   Address          `json:"proposer"`
	Timestamp  int64            `json:"timestamp"`
}

func (b *Block) Header() *BlockHeader {
	if b == nil {
		return nil
	}
	return &BlockHeader{
		Number:     b.Number,
		Epoch:      b.Epoch,
		Hash:       b.Hash,
		ParentHash: b.ParentHash,
		Proposer:   b.Proposer,
		Timestamp:  b.Timestamp,
	}
}

func int64Bytes(v int64) []byte {
	bz := make([]byte, 8)
	binary.BigEndian.PutUint64(bz, uint64(v))
	return bz
}
