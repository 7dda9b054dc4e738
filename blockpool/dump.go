package blockpool

import (
	"fmt"
	"sort"

	"github.com/disiqueira/gotree/v3"
	"github.com/fatih/color"
	tmbytes "github.com/tendermint/tendermint/libs/bytes"

	"stakebft/types"
)

// PoolStatus 区块池的快照，rpc、调试使用
type PoolStatus struct {
	LastFinalized     *types.BlockHeader `json:"last_finalized"`
	HighestSeenNumber int64              `json:"highest_seen_number"`
	NumBlocks         int                `json:"num_blocks"`
	NumPendingInfos   int                `json:"num_pending_infos"`
	NumInvalidBlocks  int                `json:"num_invalid_blocks"`
	Numbers           []int64            `json:"numbers"`
	LongestChainTips  []string           `json:"longest_chain_tips"`
	Epochs            []EpochStatus      `json:"epochs"`
	Blocks            []BlockStatus      `json:"blocks"`
}

type EpochStatus struct {
	Epoch int64  `json:"epoch"`
	Hash  string `json:"hash"`
}

type BlockStatus struct {
	Number    int64  `json:"number"`
	Epoch     int64  `json:"epoch"`
	Hash      string `json:"hash"`
	Parent    string `json:"parent"`
	Votes     int    `json:"votes"`
	Tally     int64  `json:"tally"`
	Notarized bool   `json:"notarized"`
}

func (bp *BlockPool) Status() *PoolStatus {
	bp.mtx.RLock()
	defer bp.mtx.RUnlock()

	status := &PoolStatus{
		LastFinalized:     bp.lastFinalized.Header(),
		HighestSeenNumber: bp.highestSeenNumber,
		NumInvalidBlocks:  len(bp.hashToInvalidInfo),
		Numbers:           make([]int64, 0, bp.numbers.Len()),
		LongestChainTips:  append([]string(nil), bp.longestChainTips...),
		Epochs:            make([]EpochStatus, 0, len(bp.epochToBlock)),
		Blocks:            make([]BlockStatus, 0),
	}

	bp.numbers.Ascend(func(number int64) bool {
		status.Numbers = append(status.Numbers, number)
		for _, hash := range sortedKeys(bp.numberToSet[number]) {
			info := bp.hashToInfo[hash]
			if !info.IsResolvable() {
				continue
			}
			status.Blocks = append(status.Blocks, BlockStatus{
				Number:    info.Block.Number,
				Epoch:     info.Block.Epoch,
				Hash:      hash,
				Parent:    info.Block.ParentHash.String(),
				Votes:     len(info.Votes),
				Tally:     info.Tally,
				Notarized: info.Notarized,
			})
		}
		return true
	})

	for _, info := range bp.hashToInfo {
		if info.IsResolvable() {
			status.NumBlocks++
		} else {
			status.NumPendingInfos++
		}
	}

	epochs := make([]int64, 0, len(bp.epochToBlock))
	for epoch := range bp.epochToBlock {
		epochs = append(epochs, epoch)
	}
	sort.Slice(epochs, func(i, j int) bool { return epochs[i] < epochs[j] })
	for _, epoch := range epochs {
		status.Epochs = append(status.Epochs, EpochStatus{Epoch: epoch, Hash: bp.epochToBlock[epoch]})
	}

	return status
}

// TreeString 以树状文本输出区块池，notarized区块高亮
func (bp *BlockPool) TreeString() string {
	bp.mtx.RLock()
	defer bp.mtx.RUnlock()

	if bp.lastFinalized == nil {
		return gotree.New("empty block pool").Print()
	}

	type node struct {
		hash  string
		tree  gotree.Tree
		depth int
	}

	rootInfo := bp.hashToInfo[bp.lastFinalized.Hash.String()]
	tree := gotree.New(bp.label(rootInfo, true))
	stack := []node{{hash: bp.lastFinalized.Hash.String(), tree: tree, depth: 1}}

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if top.depth >= bp.maxChainDepth {
			top.tree.Add("...")
			continue
		}

		for _, child := range sortedKeys(bp.hashToNextSet[top.hash]) {
			info := bp.hashToInfo[child]
			if !info.IsResolvable() {
				continue
			}
			sub := top.tree.Add(bp.label(info, false))
			stack = append(stack, node{hash: child, tree: sub, depth: top.depth + 1})
		}
	}

	return tree.Print()
}

func (bp *BlockPool) label(info *BlockInfo, isRoot bool) string {
	if info == nil || info.Block == nil {
		return "?"
	}
	b := info.Block
	name := fmt.Sprintf("#%d e%d %X tally=%d votes=%d", b.Number, b.Epoch, tmbytes.Fingerprint(b.Hash), info.Tally, len(info.Votes))
	switch {
	case isRoot:
		return color.HiCyanString(name + " (finalized)")
	case info.Notarized:
		return color.HiGreenString(name)
	default:
		return color.New(color.Faint).Sprint(name)
	}
}
