package consensus

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/libs/events"
	tmjson "github.com/tendermint/tendermint/libs/json"
	"github.com/tendermint/tendermint/p2p"

	"stakebft/types"
)

const (
	ProposalChannel = byte(0x21)
	SyncChannel     = byte(0x24)

	maxMsgSize = 4 * 1048576 // 4MB，同步消息包含多个区块
)

// ------ Event ------
// reactor监听的consensus事件
const (
	EventBroadcastProposal      = "BroadcastProposal"
	EventRequestChainSubsection = "RequestChainSubsection"
)

// ------ Message ------
type Message interface {
	ValidateBasic() error
}

const MsgTypePropose = "propose"

// ConsensusMessage 共识消息 {type: "propose", value: {block, tx}}
type ConsensusMessage struct {
	Type  string          `json:"type"`
	Value *types.Proposal `json:"value"`
}

func (msg *ConsensusMessage) ValidateBasic() error {
	if msg.Type == "" {
		return errors.New("consensus message has no type")
	}
	return msg.Value.ValidateBasic()
}

func (msg *ConsensusMessage) String() string {
	return fmt.Sprintf("[%s %v]", msg.Type, msg.Value)
}

// VoteMessage 从mempool收到的投票，只在本地传递
type VoteMessage struct {
	Vote *types.Vote
}

func (msg *VoteMessage) ValidateBasic() error {
	if msg.Vote == nil {
		return errors.New("nil vote")
	}
	return msg.Vote.ValidateBasic()
}

func (msg *VoteMessage) String() string {
	return fmt.Sprintf("[Vote %v]", msg.Vote)
}

// BlocksMessage 同步得到的连续区块
type BlocksMessage struct {
	Blocks []*types.Block
}

func (msg *BlocksMessage) ValidateBasic() error {
	for _, block := range msg.Blocks {
		if block == nil {
			return errors.New("nil block")
		}
		if err := block.ValidateBasic(); err != nil {
			return err
		}
	}
	return nil
}

func (msg *BlocksMessage) String() string {
	return fmt.Sprintf("[Blocks %d]", len(msg.Blocks))
}

// SyncRequest EventRequestChainSubsection的数据，PeerID为空时向所有节点请求
type SyncRequest struct {
	PeerID p2p.ID
	From   int64
}

// syncMessage SyncChannel上的消息，请求时只有From，响应时只有Blocks
type syncMessage struct {
	From   int64          `json:"from"`
	Blocks []*types.Block `json:"blocks,omitempty"`
}

// ------- Reactor ------

// Reactor 广播提案，响应其他节点的同步请求
type Reactor struct {
	p2p.BaseReactor

	consensus *ConsensusState
}

func NewReactor(consensus *ConsensusState) *Reactor {
	conR := &Reactor{
		consensus: consensus,
	}
	conR.BaseReactor = *p2p.NewBaseReactor("Consensus", conR)
	return conR
}

func (conR *Reactor) OnStart() error {
	conR.subscribeToBroadcastEvents()
	conR.Logger.Info("Consensus Reactor started.")
	return nil
}

func (conR *Reactor) OnStop() {
	conR.consensus.eventSwitch.RemoveListener(subscriber)
}

func (conR *Reactor) GetChannels() []*p2p.ChannelDescriptor {
	return []*p2p.ChannelDescriptor{
		{
			ID:                  ProposalChannel,
			Priority:            10,
			SendQueueCapacity:   100,
			RecvMessageCapacity: maxMsgSize,
		},
		{
			ID:                  SyncChannel,
			Priority:            5,
			SendQueueCapacity:   10,
			RecvMessageCapacity: maxMsgSize,
		},
	}
}

func (conR *Reactor) AddPeer(peer p2p.Peer) {
	conR.Logger.Debug("add peer", "peer", peer.ID())
}

func (conR *Reactor) RemovePeer(peer p2p.Peer, reason interface{}) {
	conR.Logger.Debug("remove peer", "peer", peer.ID(), "reason", reason)
}

func (conR *Reactor) Receive(chID byte, src p2p.Peer, msgBytes []byte) {
	if !conR.IsRunning() {
		conR.Logger.Debug("Receive", "src", src, "chID", chID, "bytes", msgBytes)
		return
	}

	switch chID {
	case ProposalChannel:
		var msg ConsensusMessage
		if err := tmjson.Unmarshal(msgBytes, &msg); err != nil {
			conR.Logger.Error("try to unmarshal consensus message failed", "err", err, "src", src)
			conR.Switch.StopPeerForError(src, err)
			return
		}
		conR.Logger.Debug("receive consensus message", "src", src.ID(), "msg", &msg)
		conR.consensus.HandleConsensusMessage(&msg, src.ID())

	case SyncChannel:
		var msg syncMessage
		if err := tmjson.Unmarshal(msgBytes, &msg); err != nil {
			conR.Logger.Error("try to unmarshal sync message failed", "err", err, "src", src)
			conR.Switch.StopPeerForError(src, err)
			return
		}
		if len(msg.Blocks) > 0 {
			conR.consensus.sendPeerMessage(msgInfo{Msg: &BlocksMessage{Blocks: msg.Blocks}, PeerID: src.ID()})
			return
		}
		conR.respondChainSubsection(src, msg.From)

	default:
		conR.Logger.Error(fmt.Sprintf("Unknown chID %X", chID))
	}
}

// respondChainSubsection 返回本地链上From开始的区块
func (conR *Reactor) respondChainSubsection(src p2p.Peer, from int64) {
	blocks := conR.consensus.chain.GetBlocksFrom(from, conR.consensus.config.SyncBatch)
	if len(blocks) == 0 {
		return
	}
	bz, err := tmjson.Marshal(&syncMessage{From: from, Blocks: blocks})
	if err != nil {
		conR.Logger.Error("marshal sync response failed", "err", err)
		return
	}
	conR.Logger.Debug("respond chain subsection", "peer", src.ID(), "from", from, "count", len(blocks))
	src.Send(SyncChannel, bz)
}

const subscriber = "consensus-reactor"

// subscribeToBroadcastEvents 订阅consensus需要广播的消息
func (conR *Reactor) subscribeToBroadcastEvents() {
	// 提案通过检查并提交以后才会触发
	if err := conR.consensus.eventSwitch.AddListenerForEvent(subscriber, EventBroadcastProposal,
		func(data events.EventData) {
			conR.broadcastProposal(data.(*types.Proposal))
		}); err != nil {
		conR.Logger.Error("failed to subscribe proposal event", "err", err)
	}

	if err := conR.consensus.eventSwitch.AddListenerForEvent(subscriber, EventRequestChainSubsection,
		func(data events.EventData) {
			conR.requestChainSubsection(data.(*SyncRequest))
		}); err != nil {
		conR.Logger.Error("failed to subscribe sync event", "err", err)
	}
}

func (conR *Reactor) broadcastProposal(proposal *types.Proposal) {
	bz, err := tmjson.Marshal(&ConsensusMessage{Type: MsgTypePropose, Value: proposal})
	if err != nil {
		conR.Logger.Error("Marshal Proposal failed.", "err", err)
		return
	}
	conR.Logger.Debug("ready to broadcast proposal", "proposal", proposal)
	conR.Switch.Broadcast(ProposalChannel, bz)
}

func (conR *Reactor) requestChainSubsection(req *SyncRequest) {
	bz, err := tmjson.Marshal(&syncMessage{From: req.From})
	if err != nil {
		conR.Logger.Error("Marshal sync request failed.", "err", err)
		return
	}
	if peer := conR.Switch.Peers().Get(req.PeerID); peer != nil {
		peer.Send(SyncChannel, bz)
		return
	}
	conR.Switch.Broadcast(SyncChannel, bz)
}
