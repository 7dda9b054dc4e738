package mempool

import (
	"fmt"
	"math"
	"sync"

	"github.com/tendermint/tendermint/p2p"
)

const (
	// UnknownPeerID 本地提交(rpc、共识模块)的交易使用的sender id
	UnknownPeerID uint16 = 0

	maxActiveIDs = math.MaxUint16
)

// mempoolIDs 给每个peer分配一个2字节的id，mempoolTx只记录id而不是p2p.ID
type mempoolIDs struct {
	mtx    sync.RWMutex
	byPeer map[p2p.ID]uint16
	inUse  map[uint16]struct{}
	cursor uint16 // 下一次分配从这里开始找空闲id
}

func newMempoolIDs() *mempoolIDs {
	return &mempoolIDs{
		byPeer: make(map[p2p.ID]uint16),
		inUse:  map[uint16]struct{}{UnknownPeerID: {}},
		cursor: UnknownPeerID + 1,
	}
}

// ReserveForPeer id用完时panic
func (ids *mempoolIDs) ReserveForPeer(peer p2p.Peer) {
	ids.mtx.Lock()
	defer ids.mtx.Unlock()

	if len(ids.inUse) == maxActiveIDs {
		panic(fmt.Sprintf("node has maximum %d active IDs and wanted to get one more", maxActiveIDs))
	}
	for {
		if _, used := ids.inUse[ids.cursor]; !used {
			break
		}
		ids.cursor++
	}
	ids.byPeer[peer.ID()] = ids.cursor
	ids.inUse[ids.cursor] = struct{}{}
	ids.cursor++
}

func (ids *mempoolIDs) Reclaim(peer p2p.Peer) {
	ids.mtx.Lock()
	defer ids.mtx.Unlock()

	if id, ok := ids.byPeer[peer.ID()]; ok {
		delete(ids.inUse, id)
		delete(ids.byPeer, peer.ID())
	}
}

// GetForPeer 未注册的peer返回UnknownPeerID
func (ids *mempoolIDs) GetForPeer(peer p2p.Peer) uint16 {
	ids.mtx.RLock()
	defer ids.mtx.RUnlock()
	return ids.byPeer[peer.ID()]
}
