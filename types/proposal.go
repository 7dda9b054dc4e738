package types

import (
	"bytes"
	"errors"
	"fmt"
)

// Proposal 提案：区块本身以及提案人签名的提案记录
type Proposal struct {
	Block *Block `json:"block"`
	Tx    *Tx    `json:"tx"`
}

func NewProposal(block *Block, tx *Tx) *Proposal {
	return &Proposal{Block: block, Tx: tx}
}

// ValidateBasic 只检查提案内部是否自洽，不检查提案人是否正确
func (p *Proposal) ValidateBasic() error {
	if p == nil || p.Block == nil {
		return errors.New("proposal has no block")
	}
	if err := p.Block.ValidateBasic(); err != nil {
		return err
	}
	if p.Tx == nil {
		// 创世块、同步得到的区块没有提案记录
		return nil
	}
	if p.Tx.Type != TxPropose {
		return fmt.Errorf("proposal tx has wrong type %v", p.Tx.Type)
	}
	body, err := p.Body()
	if err != nil {
		return err
	}
	if !bytes.Equal(body.BlockHash, p.Block.Hash) {
		return errors.New("proposal tx does not reference the block")
	}
	if body.Number != p.Block.Number || body.Epoch != p.Block.Epoch {
		return fmt.Errorf("proposal tx number/epoch %d/%d mismatch block %d/%d",
			body.Number, body.Epoch, p.Block.Number, p.Block.Epoch)
	}
	if !p.Tx.Address.Equal(p.Block.Proposer) {
		return errors.New("proposal tx is not from the block proposer")
	}
	return nil
}

func (p *Proposal) Body() (*ProposeBody, error) {
	var body ProposeBody
	if err := p.Tx.DecodeBody(&body); err != nil {
		return nil, fmt.Errorf("decode propose body: %w", err)
	}
	return &body, nil
}

func (p *Proposal) String() string {
	if p == nil {
		return "nil-Proposal"
	}
	return fmt.Sprintf("Proposal{%v}", p.Block)
}
