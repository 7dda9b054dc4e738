package consensus

import (
	"bytes"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/libs/events"
	"github.com/tendermint/tendermint/libs/log"
	"github.com/tendermint/tendermint/libs/service"
	"github.com/tendermint/tendermint/p2p"

	"stakebft/blockpool"
	cfg "stakebft/config"
	cstypes "stakebft/consensus/types"
	mempl "stakebft/mempool"
	"stakebft/slot"
	sm "stakebft/state"
	"stakebft/types"
)

const msgQueueSize = 1000

var ErrNotRunning = errors.New("consensus is not running")

// ConsensusState 共识状态机
// 所有消息和超时都在receiveRoutine中串行处理，处理函数持有mtx
type ConsensusState struct {
	service.BaseService

	config    *cfg.ConsensusConfig
	blockExec *sm.BlockExecutor
	blockPool *blockpool.BlockPool
	chain     sm.BlockStore
	ledger    sm.Ledger
	mempool   mempl.Mempool
	factory   sm.TxFactory

	mtx sync.RWMutex
	cstypes.RoundState
	state sm.State

	// 已经提案过的(number, round)，同一个round只提案一次
	proposedNumber int64
	proposedRound  int64
	lastSyncAt     time.Time

	ticker           slot.TimeoutTicker
	peerMsgQueue     chan msgInfo
	internalMsgQueue chan msgInfo

	// reactor订阅广播和同步事件
	eventSwitch events.EventSwitch

	metrics *consensusMetric

	// 测试时可以替换
	decideProposal func(number, round, epoch int64)
}

type StateOption func(*ConsensusState)

// WithTicker 替换默认的定时器，测试使用
func WithTicker(ticker slot.TimeoutTicker) StateOption {
	return func(cs *ConsensusState) {
		cs.ticker = ticker
	}
}

func NewConsensusState(
	config *cfg.ConsensusConfig,
	state sm.State,
	blockExec *sm.BlockExecutor,
	blockPool *blockpool.BlockPool,
	chain sm.BlockStore,
	ledger sm.Ledger,
	mempool mempl.Mempool,
	factory sm.TxFactory,
	options ...StateOption,
) *ConsensusState {
	cs := &ConsensusState{
		config:    config,
		blockExec: blockExec,
		blockPool: blockPool,
		chain:     chain,
		ledger:    ledger,
		mempool:   mempool,
		factory:   factory,
		RoundState: cstypes.RoundState{
			Status:     cstypes.StatusStarting,
			Validators: types.ValidatorSet{},
		},
		proposedNumber:   -1,
		proposedRound:    -1,
		ticker:           slot.NewTimeoutTicker(),
		peerMsgQueue:     make(chan msgInfo, msgQueueSize),
		internalMsgQueue: make(chan msgInfo, msgQueueSize),
		eventSwitch:      events.NewEventSwitch(),
		metrics:          newConsensusMetric(),
	}
	cs.decideProposal = cs.defaultDecideProposal
	cs.BaseService = *service.NewBaseService(nil, "CONSENSUS", cs)

	for _, opt := range options {
		opt(cs)
	}

	cs.setRoundState(state)
	return cs
}

func (cs *ConsensusState) String() string {
	return "ConsensusState"
}

func (cs *ConsensusState) SetLogger(logger log.Logger) {
	cs.BaseService.SetLogger(logger)
	cs.ticker.SetLogger(logger.With("module", "ticker"))
	cs.eventSwitch.SetLogger(logger.With("module", "events"))
}

// Init 检查本地账户的质押，决定节点是否参与共识
// 没有质押但配置了target_stake时自动提交stake交易
func (cs *ConsensusState) Init() {
	cs.mtx.Lock()
	defer cs.mtx.Unlock()
	cs.init()
}

func (cs *ConsensusState) init() {
	if cs.Status != cstypes.StatusStarting {
		return
	}
	addr := cs.factory.GetAddress()
	stake := cs.ledger.GetStake(addr, types.NowMs())
	switch {
	case stake > 0:
		cs.Logger.Info("found qualifying stake", "address", addr, "stake", stake)
	case cs.config.TargetStake > 0:
		if err := cs.stake(cs.config.TargetStake); err != nil {
			cs.Logger.Error("failed to submit stake tx", "err", err)
			return
		}
		cs.Logger.Info("submitted stake tx", "address", addr, "amount", cs.config.TargetStake)
	default:
		cs.Logger.Info("no qualifying stake, running as observer", "address", addr)
		return
	}
	cs.Status = cstypes.StatusInitialized
	cs.metrics.MarkStatus(cs.Status)
}

func (cs *ConsensusState) OnStart() error {
	if err := cs.eventSwitch.Start(); err != nil {
		return err
	}
	if err := cs.ticker.Start(); err != nil {
		return err
	}

	cs.mtx.Lock()
	cs.updateToState(cs.state)
	cs.mtx.Unlock()

	go cs.receiveRoutine()
	cs.Logger.Info("consensus receive routine started", "status", cs.GetRoundState().Status)
	return nil
}

func (cs *ConsensusState) OnStop() {
	if err := cs.ticker.Stop(); err != nil {
		cs.Logger.Error("failed trying to stop ticker", "error", err)
	}
	if err := cs.eventSwitch.Stop(); err != nil {
		cs.Logger.Error("failed trying to stop eventSwitch", "error", err)
	}

	cs.mtx.Lock()
	cs.Status = cstypes.StatusStopped
	cs.metrics.MarkStatus(cs.Status)
	cs.mtx.Unlock()
	cs.Logger.Info("consensus stopped")
}

// receiveRoutine 唯一处理消息、超时的协程
func (cs *ConsensusState) receiveRoutine() {
	for {
		select {
		case <-cs.Quit():
			cs.Logger.Debug("receiveRoutine quit")
			return

		case mi := <-cs.peerMsgQueue:
			cs.handleMsg(mi)

		case mi := <-cs.internalMsgQueue:
			cs.handleMsg(mi)

		case ti := <-cs.ticker.Chan():
			cs.handleTimeout(ti)
		}
	}
}

func (cs *ConsensusState) handleMsg(mi msgInfo) {
	cs.mtx.Lock()
	defer cs.mtx.Unlock()

	if err := mi.Msg.ValidateBasic(); err != nil {
		cs.Logger.Debug("drop invalid message", "msg", mi.Msg, "peer", mi.PeerID, "err", err)
		return
	}

	switch msg := mi.Msg.(type) {
	case *ConsensusMessage:
		cs.handleProposal(msg, mi.PeerID)
	case *VoteMessage:
		cs.addVote(msg.Vote)
	case *BlocksMessage:
		cs.handleChainSubsection(msg.Blocks, mi.PeerID)
	default:
		cs.Logger.Error("unknown msg type", "type", fmt.Sprintf("%T", msg))
	}
}

// HandleConsensusMessage 收到其他节点的共识消息
func (cs *ConsensusState) HandleConsensusMessage(msg *ConsensusMessage, peerID p2p.ID) {
	cs.sendPeerMessage(msgInfo{Msg: msg, PeerID: peerID})
}

// handleProposal 只处理目标高度的提案
// 高度落后的提案直接丢弃，高度领先说明本地落后，向对方请求缺失的区块
// 没有质押的节点(STARTING)同样检查、提交和同步区块，只是不会投票
func (cs *ConsensusState) handleProposal(msg *ConsensusMessage, peerID p2p.ID) {
	if cs.Status == cstypes.StatusStopped {
		cs.Logger.Debug("ignore proposal, consensus is stopped")
		return
	}
	if msg.Type != MsgTypePropose {
		cs.Logger.Debug("ignore consensus message", "type", msg.Type)
		return
	}

	proposal := msg.Value
	block := proposal.Block
	switch {
	case block.Number < cs.Number:
		cs.Logger.Debug("drop stale proposal", "number", block.Number, "target", cs.Number)
		return
	case block.Number > cs.Number:
		cs.Logger.Info("proposal is ahead of local chain", "number", block.Number, "target", cs.Number, "peer", peerID)
		cs.requestChainSubsection(peerID)
		return
	}

	if err := cs.blockExec.CheckProposal(cs.state, proposal); err != nil {
		cs.Logger.Info("invalid proposal", "proposal", proposal, "peer", peerID, "err", err)
		cs.blockPool.AddInvalidBlock(block, proposal.Tx)
		cs.metrics.MarkInvalidProposal()
		return
	}

	if !cs.blockPool.AddSeenBlock(block, proposal.Tx) {
		cs.Logger.Error("block pool rejected proposal, skip commit", "proposal", proposal, "peer", peerID)
		return
	}
	if err := cs.commit(block); err != nil {
		return
	}

	cs.eventSwitch.FireEvent(EventBroadcastProposal, proposal)
	cs.vote(block)
	cs.tryFinalize()
	cs.updateToState(cs.state)
}

// commit 提交区块并统计区块中的投票，失败时不重试
func (cs *ConsensusState) commit(block *types.Block) error {
	newState, err := cs.blockExec.Commit(cs.state, block)
	if err != nil {
		cs.Logger.Error("failed to commit block", "number", block.Number, "hash", block.Hash, "err", err)
		return err
	}
	cs.state = newState
	cs.metrics.MarkCommitted(block.Number)

	for _, tx := range block.Txs.Filter(types.TxVote) {
		vote, err := types.VoteFromTx(tx)
		if err != nil {
			cs.Logger.Debug("bad vote tx in block", "number", block.Number, "err", err)
			continue
		}
		cs.blockPool.AddSeenVote(vote)
	}
	return nil
}

// vote 本地账户是区块的验证者时投票
// 投票交易先计入区块池，再通过mempool广播
func (cs *ConsensusState) vote(block *types.Block) {
	addr := cs.factory.GetAddress()
	stake := block.Validators.StakeOf(addr)
	if stake <= 0 {
		return
	}
	if cs.blockPool.VotedForEpoch(addr, block.Epoch) {
		cs.Logger.Debug("already voted in this epoch", "epoch", block.Epoch)
		return
	}

	tx, err := cs.factory.CreateTransaction(types.TxVote, "", &types.VoteBody{
		BlockHash: block.Hash,
		Number:    block.Number,
		Epoch:     block.Epoch,
		Stake:     stake,
	}, false)
	if err != nil {
		cs.Logger.Error("failed to create vote tx", "err", err)
		return
	}
	vote, err := types.VoteFromTx(tx)
	if err != nil {
		cs.Logger.Error("failed to parse own vote", "err", err)
		return
	}

	cs.blockPool.AddSeenVote(vote)
	cs.metrics.MarkVoted()
	if err := cs.mempool.CheckTx(tx, mempl.TxInfo{SenderID: mempl.UnknownPeerID}); err != nil {
		cs.Logger.Debug("vote tx rejected by mempool", "vote", vote, "err", err)
	}
	cs.Logger.Debug("voted", "vote", vote)
}

// AddVote 从mempool收到的投票交易，进入receiveRoutine处理
func (cs *ConsensusState) AddVote(tx *types.Tx, _ mempl.TxInfo) {
	if tx.Type != types.TxVote {
		return
	}
	vote, err := types.VoteFromTx(tx)
	if err != nil {
		cs.Logger.Debug("bad vote tx", "tx", tx, "err", err)
		return
	}
	cs.sendInternalMessage(msgInfo{Msg: &VoteMessage{Vote: vote}})
}

func (cs *ConsensusState) addVote(vote *types.Vote) {
	if cs.blockPool.AddSeenVote(vote) {
		cs.tryFinalize()
	}
}

// tryFinalize 区块池中存在可以finalize的链时，finalize该链的倒数第二个区块
func (cs *ConsensusState) tryFinalize() {
	chain := cs.blockPool.GetFinalizableChain()
	if len(chain) < 3 {
		return
	}
	tip := chain[len(chain)-2]
	if root := cs.blockPool.LastFinalized(); root != nil && tip.Number <= root.Number {
		return
	}

	local := cs.chain.GetBlockByNumber(tip.Number)
	if local == nil || !bytes.Equal(local.Hash, tip.Hash) {
		cs.Logger.Error("finalized block is not on the local chain", "number", tip.Number, "hash", tip.Hash)
		return
	}

	cs.blockPool.CleanUpAfterFinalization(tip)
	cs.metrics.MarkFinalized(tip.Number)
	if err := cs.chain.SaveFinalized(tip.Number); err != nil {
		cs.Logger.Error("failed to save finalized number", "number", tip.Number, "err", err)
		return
	}
	cs.state.LastFinalizedNumber = tip.Number
	cs.Logger.Info("finalized block", "number", tip.Number, "epoch", tip.Epoch, "hash", tip.Hash)
}

// updateToState 本地链高度变化后进入下一个高度的round 0
// 还没有质押的节点每次提交后重新检查质押
func (cs *ConsensusState) updateToState(state sm.State) {
	if cs.Status == cstypes.StatusStarting {
		cs.init()
	}
	if cs.Status == cstypes.StatusInitialized {
		cs.Status = cstypes.StatusRunning
		cs.metrics.MarkStatus(cs.Status)
	}
	cs.setRoundState(state)
	cs.StartTime = time.Now()
	cs.metrics.MarkRound(cs.Number, cs.Round, cs.Epoch)
	cs.metrics.MarkProposer(cs.Proposer, cs.isProposer())

	if cs.Status != cstypes.StatusRunning {
		return
	}
	cs.scheduleTimeout(cs.config.TransitionTimeout, cs.Number, cs.Round, cstypes.RoundStepTransition)
}

func (cs *ConsensusState) setRoundState(state sm.State) {
	cs.state = state
	cs.Number = state.LastNumber() + 1
	cs.Round = 0
	cs.Validators = state.NextValidators
	if state.LastBlock != nil {
		cs.LastBlock = state.LastBlock.Header()
	}
	cs.decideProposer()
}

func (cs *ConsensusState) decideProposer() {
	if cs.state.LastBlock == nil {
		return
	}
	cs.Epoch = cstypes.TargetEpoch(cs.state.LastBlock.Epoch, cs.Round)
	proposer, ok := cstypes.SelectProposer(cs.Validators, cs.state.LastBlock.Hash, cs.Round)
	if !ok {
		cs.Proposer = ""
		cs.Logger.Error("no proposer for this round", "number", cs.Number, "round", cs.Round)
		return
	}
	cs.Proposer = proposer
	cs.Logger.Debug("decided proposer", "number", cs.Number, "round", cs.Round, "epoch", cs.Epoch, "proposer", proposer)
}

func (cs *ConsensusState) isProposer() bool {
	return !cs.Proposer.IsEmpty() && cs.Proposer.Equal(cs.factory.GetAddress())
}

// tryToPropose 本地账户是提案人时提案，然后重新设置提案超时
func (cs *ConsensusState) tryToPropose() {
	defer cs.scheduleTimeout(cs.config.ProposalTimeout, cs.Number, cs.Round, cstypes.RoundStepPropose)

	if cs.Status != cstypes.StatusRunning || !cs.isProposer() {
		return
	}
	if cs.proposedNumber == cs.Number && cs.proposedRound == cs.Round {
		return
	}
	cs.proposedNumber, cs.proposedRound = cs.Number, cs.Round
	cs.decideProposal(cs.Number, cs.Round, cs.Epoch)
}

// defaultDecideProposal 打包提案，通过内部队列交给handleProposal统一处理
func (cs *ConsensusState) defaultDecideProposal(number, round, epoch int64) {
	proposal, err := cs.blockExec.CreateProposalBlock(cs.state, epoch)
	if err != nil {
		cs.Logger.Error("failed to create proposal", "number", number, "round", round, "err", err)
		return
	}
	cs.metrics.MarkProposed()
	cs.Logger.Info("created proposal", "number", number, "round", round, "epoch", epoch, "hash", proposal.Block.Hash)
	cs.sendInternalMessage(msgInfo{Msg: &ConsensusMessage{Type: MsgTypePropose, Value: proposal}})
}

// handleTimeout 落后于当前(number, round)的超时直接忽略
func (cs *ConsensusState) handleTimeout(ti slot.TimeoutInfo) {
	cs.mtx.Lock()
	defer cs.mtx.Unlock()

	if ti.Number < cs.Number || (ti.Number == cs.Number && ti.Round < cs.Round) {
		cs.Logger.Debug("ignore stale timeout", "timeout", ti, "number", cs.Number, "round", cs.Round)
		return
	}

	switch ti.Step {
	case cstypes.RoundStepTransition:
		cs.tryToPropose()
	case cstypes.RoundStepPropose:
		cs.Round++
		cs.decideProposer()
		cs.metrics.MarkRound(cs.Number, cs.Round, cs.Epoch)
		cs.metrics.MarkProposer(cs.Proposer, cs.isProposer())
		cs.Logger.Info("proposal timeout, enter new round", "number", cs.Number, "round", cs.Round, "proposer", cs.Proposer)
		cs.tryToPropose()
	default:
		cs.Logger.Error("unknown timeout step", "timeout", ti)
	}
}

func (cs *ConsensusState) scheduleTimeout(duration time.Duration, number, round int64, step cstypes.RoundStepType) {
	cs.Step = step
	cs.ticker.ScheduleTimeout(slot.TimeoutInfo{Duration: duration, Number: number, Round: round, Step: step})
}

// requestChainSubsection 向peer请求本地末端之后的区块
// 一个提案超时内只请求一次
func (cs *ConsensusState) requestChainSubsection(peerID p2p.ID) {
	if time.Since(cs.lastSyncAt) < cs.config.ProposalTimeout {
		return
	}
	cs.lastSyncAt = time.Now()
	cs.metrics.MarkSyncRequest()
	cs.eventSwitch.FireEvent(EventRequestChainSubsection, &SyncRequest{
		PeerID: peerID,
		From:   cs.state.LastNumber() + 1,
	})
}

// handleChainSubsection 按高度依次检查并提交同步得到的区块
func (cs *ConsensusState) handleChainSubsection(blocks []*types.Block, peerID p2p.ID) {
	if cs.Status == cstypes.StatusStopped {
		return
	}
	sort.Slice(blocks, func(i, j int) bool { return blocks[i].Number < blocks[j].Number })

	committed := 0
	for _, block := range blocks {
		if block.Number < cs.Number {
			continue
		}
		if block.Number > cs.Number {
			break
		}
		proposal := types.NewProposal(block, nil)
		if err := cs.blockExec.CheckProposal(cs.state, proposal); err != nil {
			cs.Logger.Info("invalid block from chain subsection", "number", block.Number, "peer", peerID, "err", err)
			cs.blockPool.AddInvalidBlock(block, nil)
			break
		}
		if !cs.blockPool.AddSeenBlock(block, nil) {
			cs.Logger.Error("block pool rejected synced block", "number", block.Number, "peer", peerID)
			break
		}
		if err := cs.commit(block); err != nil {
			break
		}
		cs.Number = block.Number + 1
		committed++
	}
	if committed == 0 {
		return
	}

	cs.Logger.Info("caught up blocks", "count", committed, "number", cs.state.LastNumber(), "peer", peerID)
	cs.tryFinalize()
	cs.updateToState(cs.state)
	if len(blocks) >= cs.config.SyncBatch {
		cs.lastSyncAt = time.Time{}
		cs.requestChainSubsection(peerID)
	}
}

// Stake 以本地账户提交质押交易
func (cs *ConsensusState) Stake(amount int64) error {
	cs.mtx.Lock()
	defer cs.mtx.Unlock()
	return cs.stake(amount)
}

func (cs *ConsensusState) stake(amount int64) error {
	if amount <= 0 {
		return errors.New("stake amount must be positive")
	}
	tx, err := cs.factory.CreateTransaction(types.TxStake, "", &types.StakeBody{
		Amount:   amount,
		LockupMs: types.DurationMs(cs.config.DefaultLockup),
	}, true)
	if err != nil {
		return errors.Wrap(err, "create stake tx")
	}
	return cs.mempool.CheckTx(tx, mempl.TxInfo{SenderID: mempl.UnknownPeerID})
}

// sendInternalMessage 在receiveRoutine中调用时不能阻塞
func (cs *ConsensusState) sendInternalMessage(mi msgInfo) {
	select {
	case cs.internalMsgQueue <- mi:
	default:
		cs.Logger.Debug("internal msg queue is full; using a go-routine")
		go func() {
			select {
			case cs.internalMsgQueue <- mi:
			case <-cs.Quit():
			}
		}()
	}
}

func (cs *ConsensusState) sendPeerMessage(mi msgInfo) {
	select {
	case cs.peerMsgQueue <- mi:
	case <-cs.Quit():
	}
}

// ------ MsgInfo ------

// msgInfo 与reactor之间通信的消息格式
type msgInfo struct {
	Msg    Message
	PeerID p2p.ID
}
