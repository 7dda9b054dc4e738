package blockpool

import (
	"fmt"

	"stakebft/types"
)

// BlockInfo 区块池中一个区块的全部信息
// 投票可能先于区块到达，此时Block为nil，投票先缓存起来
type BlockInfo struct {
	Block     *types.Block
	Proposal  *types.Tx
	Votes     []*types.Vote
	Tally     int64
	Notarized bool

	voteKeys map[string]struct{}
}

func newBlockInfo() *BlockInfo {
	return &BlockInfo{
		Votes:    make([]*types.Vote, 0),
		voteKeys: make(map[string]struct{}),
	}
}

// IsResolvable 还没有收到区块的info不能参与共识计算
func (info *BlockInfo) IsResolvable() bool {
	return info != nil && info.Block != nil
}

func (info *BlockInfo) hasVote(key string) bool {
	_, ok := info.voteKeys[key]
	return ok
}

// addVote 返回这张票是否计入了tally
func (info *BlockInfo) addVote(key string, vote *types.Vote) bool {
	info.voteKeys[key] = struct{}{}
	info.Votes = append(info.Votes, vote)
	if info.countable(vote) {
		info.Tally += vote.Stake
		return true
	}
	return false
}

// countable 只有stake大于0，并且和区块验证者集合中记录的stake一致的票才有效
func (info *BlockInfo) countable(vote *types.Vote) bool {
	if info.Block == nil || vote.Stake <= 0 {
		return false
	}
	stake, ok := info.Block.Validators[vote.Voter]
	return ok && stake == vote.Stake
}

// retally 区块到达后重新统计之前缓存的投票
func (info *BlockInfo) retally() {
	info.Tally = 0
	for _, vote := range info.Votes {
		if info.countable(vote) {
			info.Tally += vote.Stake
		}
	}
}

func (info *BlockInfo) votedBy(addr types.Address) bool {
	for _, vote := range info.Votes {
		if vote.Voter == addr {
			return true
		}
	}
	return false
}

func (info *BlockInfo) String() string {
	if info == nil {
		return "nil-BlockInfo"
	}
	return fmt.Sprintf("BlockInfo{%v votes=%d tally=%d notarized=%v}", info.Block, len(info.Votes), info.Tally, info.Notarized)
}

// InvalidBlockInfo 校验失败的区块以及反对票
type InvalidBlockInfo struct {
	Block        *types.Block
	Proposal     *types.Tx
	AgainstVotes []*types.Vote
	AgainstTally int64

	voteKeys map[string]struct{}
}

func newInvalidBlockInfo() *InvalidBlockInfo {
	return &InvalidBlockInfo{
		AgainstVotes: make([]*types.Vote, 0),
		voteKeys:     make(map[string]struct{}),
	}
}
