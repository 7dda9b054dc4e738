package mempool

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/config"
	"github.com/tendermint/tendermint/libs/clist"
	tmjson "github.com/tendermint/tendermint/libs/json"
	"github.com/tendermint/tendermint/libs/log"
	"github.com/tendermint/tendermint/p2p"

	"stakebft/types"
)

const (
	MempoolChannel = byte(0x20)

	// peer发送队列满时等待的时间
	peerRetryInterval = 100 * time.Millisecond

	defaultMaxBatchTxs = 32
)

// Reactor 在节点之间广播mempool中的交易，投票交易也走这条路径
type Reactor struct {
	p2p.BaseReactor

	config      *config.MempoolConfig
	mempool     *ListMempool
	ids         *mempoolIDs
	maxBatchTxs int
}

type ReactorOption func(*Reactor)

// WithMaxBatchTxs 一条TxsMessage中最多携带的交易数
func WithMaxBatchTxs(n int) ReactorOption {
	return func(memR *Reactor) {
		if n > 0 {
			memR.maxBatchTxs = n
		}
	}
}

func NewReactor(config *config.MempoolConfig, mempool *ListMempool, options ...ReactorOption) *Reactor {
	memR := &Reactor{
		config:      config,
		mempool:     mempool,
		ids:         newMempoolIDs(),
		maxBatchTxs: defaultMaxBatchTxs,
	}
	memR.BaseReactor = *p2p.NewBaseReactor("Mempool", memR)
	for _, option := range options {
		option(memR)
	}
	return memR
}

func (memR *Reactor) SetLogger(l log.Logger) {
	memR.Logger = l
	memR.mempool.SetLogger(l)
}

func (memR *Reactor) OnStart() error {
	if !memR.config.Broadcast {
		memR.Logger.Info("tx broadcasting is disabled")
	}
	return nil
}

func (memR *Reactor) GetChannels() []*p2p.ChannelDescriptor {
	return []*p2p.ChannelDescriptor{{
		ID:                  MempoolChannel,
		Priority:            5,
		RecvMessageCapacity: memR.maxMsgSize(),
	}}
}

// InitPeer 在AddPeer之前为peer分配id
func (memR *Reactor) InitPeer(peer p2p.Peer) p2p.Peer {
	memR.ids.ReserveForPeer(peer)
	return peer
}

func (memR *Reactor) AddPeer(peer p2p.Peer) {
	if memR.config.Broadcast {
		go memR.broadcastTxRoutine(peer)
	}
}

// RemovePeer broadcastTxRoutine通过peer.Quit()退出
func (memR *Reactor) RemovePeer(peer p2p.Peer, reason interface{}) {
	memR.ids.Reclaim(peer)
}

// Receive 收到的交易逐个CheckTx，重复的交易直接忽略
func (memR *Reactor) Receive(chID byte, src p2p.Peer, msgBytes []byte) {
	msg, err := memR.decodeMsg(msgBytes)
	if err != nil {
		memR.Logger.Error("Error decoding message", "src", src, "chId", chID, "err", err)
		memR.Switch.StopPeerForError(src, err)
		return
	}
	memR.Logger.Debug("Receive Txs", "src", src, "num", len(msg.Txs))

	txInfo := TxInfo{SenderID: memR.ids.GetForPeer(src)}
	if src != nil {
		txInfo.SenderP2PID = src.ID()
	}
	for i := range msg.Txs {
		tx := msg.Txs[i]
		switch err := memR.mempool.CheckTx(&tx, txInfo); err {
		case nil, ErrTxInMap, ErrTxInCache:
		default:
			memR.Logger.Info("Could not check tx", "tx", tx.String(), "err", err)
		}
	}
}

// broadcastTxRoutine 沿着mempool的链表向peer发送它还没有的交易，每次最多发送一批
func (memR *Reactor) broadcastTxRoutine(peer p2p.Peer) {
	peerID := memR.ids.GetForPeer(peer)
	var next *clist.CElement

	for memR.IsRunning() && peer.IsRunning() {
		if next == nil {
			select {
			case <-memR.mempool.TxsWaitChan():
				if next = memR.mempool.TxsFront(); next == nil {
					continue
				}
			case <-peer.Quit():
				return
			case <-memR.Quit():
				return
			}
		}

		batch, last := memR.collectBatch(next, peerID)
		if len(batch) > 0 {
			bz, err := encodeMsg(&TxsMessage{Txs: batch})
			if err != nil {
				memR.Logger.Error("encode txs failed", "num", len(batch), "err", err)
			} else if !peer.Send(MempoolChannel, bz) {
				time.Sleep(peerRetryInterval)
				continue
			}
		}

		// 等待last之后的新交易；last被删除时NextWaitChan也会关闭
		select {
		case <-last.NextWaitChan():
			next = last.Next()
		case <-peer.Quit():
			return
		case <-memR.Quit():
			return
		}
	}
}

// collectBatch 从e开始取出已经就绪的交易，跳过peer发来的交易，返回批次和最后访问的元素
func (memR *Reactor) collectBatch(e *clist.CElement, peerID uint16) (types.Txs, *clist.CElement) {
	var (
		batch types.Txs
		size  int64
		last  = e
	)
	for cur := e; cur != nil; cur = cur.Next() {
		memTx := cur.Value.(*mempoolTx)
		txSize := memTx.tx.ComputeSize()
		if len(batch) > 0 && (len(batch) >= memR.maxBatchTxs || size+txSize > int64(memR.config.MaxTxBytes)) {
			break
		}
		last = cur
		if _, fromPeer := memTx.senders.Load(peerID); fromPeer {
			continue
		}
		batch = append(batch, *memTx.tx)
		size += txSize
	}
	return batch, last
}

// 单个交易不超过MaxTxBytes，编码后的批次会比ComputeSize的总和略大
func (memR *Reactor) maxMsgSize() int {
	return 2*memR.config.MaxTxBytes + 1024
}

func (memR *Reactor) decodeMsg(bz []byte) (*TxsMessage, error) {
	msg := &TxsMessage{}
	if err := tmjson.Unmarshal(bz, msg); err != nil {
		return nil, errors.Wrap(err, "decode txs message")
	}
	if len(msg.Txs) == 0 {
		return nil, errors.New("empty TxsMessage")
	}
	return msg, nil
}

func encodeMsg(msg *TxsMessage) ([]byte, error) {
	return tmjson.Marshal(msg)
}

type TxsMessage struct {
	Txs types.Txs `json:"txs"`
}

func (m *TxsMessage) String() string {
	return fmt.Sprintf("[TxsMessage %d]", len(m.Txs))
}
