package types

import (
	"errors"
	"fmt"

	tmbytes "github.com/tendermint/tendermint/libs/bytes"
)

// Vote - 从vote交易中解析出来的投票
// 同一个交易(TxHash)只会被计入一次
type Vote struct {
	BlockHash tmbytes.HexBytes `json:"block_hash"`
	Number    int64            `json:"number"`
	Epoch     int64            `json:"epoch"`
	Voter     Address          `json:"voter"`
	Stake     int64            `json:"stake"`
	IsAgainst bool             `json:"is_against"`
	TxHash    tmbytes.HexBytes `json:"tx_hash"`
}

// VoteFromTx 解析投票交易
func VoteFromTx(tx *Tx) (*Vote, error) {
	if tx == nil || tx.Type != TxVote {
		return nil, errors.New("not a vote tx")
	}
	var body VoteBody
	if err := tx.DecodeBody(&body); err != nil {
		return nil, fmt.Errorf("decode vote body: %w", err)
	}
	vote := &Vote{
		BlockHash: body.BlockHash,
		Number:    body.Number,
		Epoch:     body.Epoch,
		Voter:     tx.Address,
		Stake:     body.Stake,
		IsAgainst: body.IsAgainst,
		TxHash:    tx.Hash(),
	}
	return vote, vote.ValidateBasic()
}

func (vote *Vote) ValidateBasic() error {
	if len(vote.BlockHash) == 0 {
		return errors.New("vote has no block hash")
	}
	if vote.Voter.IsEmpty() {
		return errors.New("vote has no voter")
	}
	if len(vote.TxHash) == 0 {
		return errors.New("vote has no tx hash")
	}
	return nil
}

func (vote *Vote) String() string {
	if vote == nil {
		return "nil-Vote"
	}
	return fmt.Sprintf("Vote{%v %d/%d %X stake=%d against=%v}",
		vote.Voter.Short(), vote.Number, vote.Epoch, tmbytes.Fingerprint(vote.BlockHash), vote.Stake, vote.IsAgainst)
}
