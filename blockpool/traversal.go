package blockpool

import (
	"sort"

	"stakebft/types"
)

// 两种遍历都使用显式的栈，分叉树由其他节点构造，深度和分叉数量都要限制

type frame struct {
	hash  string
	chain []*types.Block
}

// GetLongestNotarizedChainList 从树根(或from)出发，只经过notarized区块的所有最长链
// 末端高度相同的多条链都会返回
func (bp *BlockPool) GetLongestNotarizedChainList(from *types.Block) [][]*types.Block {
	bp.mtx.RLock()
	defer bp.mtx.RUnlock()

	if from == nil {
		from = bp.lastFinalized
	}
	return bp.longestNotarizedChainList(from)
}

func (bp *BlockPool) longestNotarizedChainList(root *types.Block) [][]*types.Block {
	res := make([][]*types.Block, 0)
	if root == nil {
		return res
	}

	var best int64
	bp.walkNotarized(root, func(chain []*types.Block, isLeaf bool) {
		if !isLeaf {
			return
		}
		tip := chain[len(chain)-1].Number
		if tip > best {
			best = tip
			res = [][]*types.Block{chain}
		} else if tip == best {
			res = append(res, chain)
		}
	})
	return res
}

// GetFinalizableChain 最后三个区块的epoch连续的最长notarized链
// 没有满足条件的链时返回空
func (bp *BlockPool) GetFinalizableChain() []*types.Block {
	bp.mtx.RLock()
	defer bp.mtx.RUnlock()

	res := make([]*types.Block, 0)
	if bp.lastFinalized == nil {
		return res
	}

	bp.walkNotarized(bp.lastFinalized, func(chain []*types.Block, _ bool) {
		if len(chain) > len(res) && endsWithConsecutiveEpochs(chain) {
			res = chain
		}
	})
	if len(res) > 0 {
		bp.metrics.finalizableLength.Update(int64(len(res)))
	}
	return res
}

// walkNotarized 深度优先遍历，visit在每个节点上调用一次，chain为根到该节点的路径
func (bp *BlockPool) walkNotarized(root *types.Block, visit func(chain []*types.Block, isLeaf bool)) {
	stack := []frame{{hash: root.Hash.String(), chain: []*types.Block{root}}}
	truncated := false

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		children := bp.notarizedChildren(top.hash)
		if len(top.chain) >= bp.maxChainDepth && len(children) > 0 {
			children = nil
			truncated = true
		}
		if len(children) > bp.maxBranching {
			children = children[:bp.maxBranching]
			truncated = true
		}

		visit(top.chain, len(children) == 0)

		// 逆序入栈，保证按hash的顺序访问
		for i := len(children) - 1; i >= 0; i-- {
			child := children[i]
			chain := append(top.chain[:len(top.chain):len(top.chain)], bp.hashToInfo[child].Block)
			stack = append(stack, frame{hash: child, chain: chain})
		}
	}

	if truncated {
		bp.logger.Error("block pool traversal truncated", "root", root.Number,
			"maxDepth", bp.maxChainDepth, "maxBranching", bp.maxBranching)
	}
}

func (bp *BlockPool) notarizedChildren(hash string) []string {
	res := make([]string, 0)
	for child := range bp.hashToNextSet[hash] {
		if info := bp.hashToInfo[child]; info.IsResolvable() && info.Notarized {
			res = append(res, child)
		}
	}
	sort.Strings(res)
	return res
}

func endsWithConsecutiveEpochs(chain []*types.Block) bool {
	n := len(chain)
	if n < 3 {
		return false
	}
	return chain[n-3].Epoch+1 == chain[n-2].Epoch && chain[n-2].Epoch+1 == chain[n-1].Epoch
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
