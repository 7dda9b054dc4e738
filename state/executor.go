package state

import (
	"bytes"
	"time"

	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/libs/log"

	cstypes "stakebft/consensus/types"
	"stakebft/mempool"
	"stakebft/types"
)

type ExecutorOption func(*BlockExecutor)

// WithMaxBlockBytes 打包交易的总大小，负数表示不限制
func WithMaxBlockBytes(maxBytes int64) ExecutorOption {
	return func(exec *BlockExecutor) {
		exec.maxBlockBytes = maxBytes
	}
}

func NewBlockExecutor(
	chain BlockStore,
	ledger Ledger,
	mempool mempool.Mempool,
	factory TxFactory,
	options ...ExecutorOption,
) *BlockExecutor {
	exec := &BlockExecutor{
		chain:         chain,
		ledger:        ledger,
		mempool:       mempool,
		factory:       factory,
		logger:        log.NewNopLogger(),
		maxBlockBytes: -1,
	}
	for _, option := range options {
		option(exec)
	}
	return exec
}

// BlockExecutor 负责打包提案、验证提案和提交区块
type BlockExecutor struct {
	chain   BlockStore
	ledger  Ledger
	mempool mempool.Mempool
	factory TxFactory

	maxBlockBytes int64

	logger log.Logger
}

func (exec *BlockExecutor) SetLogger(logger log.Logger) {
	exec.logger = logger
}

// CreateProposalBlock 在state.LastBlock之后打包epoch的提案
// 交易按到达mempool的顺序打包，末尾附加记录下一个高度验证者的系统交易
func (exec *BlockExecutor) CreateProposalBlock(state State, epoch int64) (*types.Proposal, error) {
	parent := state.LastBlock
	if parent == nil {
		return nil, errors.New("no parent block")
	}
	number := parent.Number + 1
	proposer := exec.factory.GetAddress()

	timestamp := types.NowMs()
	if timestamp <= parent.Timestamp {
		timestamp = parent.Timestamp + 1
	}

	validators, err := exec.blockValidators(number, proposer, timestamp)
	if err != nil {
		return nil, err
	}

	txs := exec.mempool.GetValidTransactions(exec.maxBlockBytes)
	if next := exec.ledger.CandidateValidators(timestamp); !next.IsNilOrEmpty() {
		valsTx, err := exec.factory.CreateTransaction(types.TxValidators, "", &types.ValidatorsBody{
			Number:       number + 1,
			Validators:   next,
			TotalAtStake: next.TotalStake(),
		}, false)
		if err != nil {
			return nil, errors.Wrap(err, "create validators tx")
		}
		txs = append(txs, *valsTx)
	}

	block := types.NewBlock(number, epoch, parent.Hash, proposer, txs, validators, timestamp)

	proposeTx, err := exec.factory.CreateTransaction(types.TxPropose, "", &types.ProposeBody{
		Number:       number,
		Epoch:        epoch,
		BlockHash:    block.Hash,
		ParentHash:   parent.Hash,
		Validators:   validators,
		TotalAtStake: validators.TotalStake(),
	}, false)
	if err != nil {
		return nil, errors.Wrap(err, "create propose tx")
	}

	exec.logger.Debug("created proposal", "number", number, "epoch", epoch, "txs", len(txs), "validators", validators.Size())
	return types.NewProposal(block, proposeTx), nil
}

// blockValidators number高度有投票权的验证者
// 高度1只有提案人自己，之后使用上一个高度记录的下一轮验证者
func (exec *BlockExecutor) blockValidators(number int64, proposer types.Address, timestamp int64) (types.ValidatorSet, error) {
	if number == 1 {
		stake := exec.ledger.GetStake(proposer, timestamp)
		if stake <= 0 {
			return nil, errors.Errorf("proposer %v has no qualifying stake", proposer)
		}
		return types.ValidatorSet{proposer: stake}, nil
	}
	vals, err := exec.ledger.NextRoundValidators(number - 1)
	if err != nil {
		return nil, errors.Wrapf(err, "validators of block %d", number)
	}
	return vals, nil
}

// CheckProposal 检查提案能否接在state.LastBlock之后，没有副作用
func (exec *BlockExecutor) CheckProposal(state State, proposal *types.Proposal) error {
	if err := proposal.ValidateBasic(); err != nil {
		return errors.Wrap(ErrInvalidBlock, err.Error())
	}
	block := proposal.Block
	parent := state.LastBlock
	if parent == nil {
		return invalidBlock("no parent block")
	}

	if !bytes.Equal(block.ParentHash, parent.Hash) {
		return invalidBlock("parent hash %X does not match last block %X", []byte(block.ParentHash), []byte(parent.Hash))
	}
	if block.Number != parent.Number+1 {
		return invalidBlock("number %d does not follow %d", block.Number, parent.Number)
	}
	if block.Epoch <= parent.Epoch {
		return invalidBlock("epoch %d is not greater than parent epoch %d", block.Epoch, parent.Epoch)
	}
	if block.Timestamp <= parent.Timestamp {
		return invalidBlock("timestamp %d is not after parent %d", block.Timestamp, parent.Timestamp)
	}

	// 提案人由父区块hash和round决定
	electors, err := exec.ledger.NextRoundValidators(parent.Number)
	if err != nil {
		return errors.Wrapf(ErrInvalidBlock, "validators of block %d: %v", parent.Number, err)
	}
	round := block.Epoch - parent.Epoch - 1
	expected, ok := cstypes.SelectProposer(electors, parent.Hash, round)
	if !ok {
		return invalidBlock("no proposer for number %d round %d", block.Number, round)
	}
	if !expected.Equal(block.Proposer) {
		return invalidBlock("wrong proposer %v, expected %v", block.Proposer, expected)
	}

	validators, err := exec.blockValidators(block.Number, block.Proposer, block.Timestamp)
	if err != nil {
		return errors.Wrap(ErrInvalidBlock, err.Error())
	}
	if !validators.Equal(block.Validators) {
		return invalidBlock("validators %v do not match %v", block.Validators, validators)
	}

	if proposal.Tx != nil {
		body, err := proposal.Body()
		if err != nil {
			return errors.Wrap(ErrInvalidBlock, err.Error())
		}
		if !body.Validators.Equal(block.Validators) || body.TotalAtStake != block.Validators.TotalStake() {
			return invalidBlock("propose tx validators mismatch")
		}
	}

	return exec.checkTxs(block)
}

func (exec *BlockExecutor) checkTxs(block *types.Block) error {
	var valsTx *types.Tx
	for i := range block.Txs {
		tx := &block.Txs[i]
		if err := tx.ValidateBasic(); err != nil {
			return errors.Wrapf(ErrInvalidBlock, "tx %d: %v", i, err)
		}
		switch tx.Type {
		case types.TxPropose:
			return invalidBlock("block contains propose tx %d", i)
		case types.TxValidators:
			if valsTx != nil {
				return invalidBlock("block contains more than one validators tx")
			}
			valsTx = tx
		}
	}

	next := exec.ledger.CandidateValidators(block.Timestamp)
	if next.IsNilOrEmpty() {
		if valsTx != nil {
			return invalidBlock("unexpected validators tx")
		}
		return nil
	}
	if valsTx == nil {
		return invalidBlock("missing validators tx")
	}
	var body types.ValidatorsBody
	if err := valsTx.DecodeBody(&body); err != nil {
		return errors.Wrap(ErrInvalidBlock, err.Error())
	}
	if !valsTx.Address.Equal(block.Proposer) || body.Number != block.Number+1 || !body.Validators.Equal(next) {
		return invalidBlock("validators tx mismatch: %v", body.Validators)
	}
	return nil
}

// Commit 将区块追加到本地链，清理mempool并更新账本
// 追加失败时返回ErrCommitFailed，不重试
func (exec *BlockExecutor) Commit(state State, block *types.Block) (State, error) {
	if !exec.chain.AddNewBlock(block) {
		exec.logger.Error("failed to add block to chain", "number", block.Number, "hash", block.Hash)
		return state, errors.Wrapf(ErrCommitFailed, "add block %d", block.Number)
	}

	exec.mempool.Lock()
	exec.mempool.CleanUpForNewBlock(block)
	exec.mempool.Unlock()

	if err := exec.ledger.ApplyBlock(block); err != nil {
		exec.logger.Error("failed to apply block", "number", block.Number, "err", err)
		return state, errors.Wrapf(ErrCommitFailed, "apply block %d: %v", block.Number, err)
	}

	nextVals, err := exec.ledger.NextRoundValidators(block.Number)
	if err != nil {
		return state, errors.Wrapf(ErrCommitFailed, "next validators of %d: %v", block.Number, err)
	}

	newState := state.Copy()
	newState.LastBlock = block
	newState.LastBlockTime = time.Now()
	newState.NextValidators = nextVals

	exec.logger.Info("committed block", "number", block.Number, "epoch", block.Epoch,
		"hash", block.Hash, "txs", len(block.Txs))
	return newState, nil
}
