package consensus

//
//                 +-------------------------------+
//                 |                               |(proposal timeout: round+1, new proposer)
//                 v                               |
//  +-----------+      +------------+        +-----+-----+
//  | NewNumber +----->| Transition +------->|  Propose  |
//  +-----+-----+      +------------+        +-----+-----+
//        ^                                        |
//        |                                        |(valid proposal for the target number)
//        |                                        v
//  +-----+--------------------------------------------------+
//  | Commit                                                 |
//  |  * append block to local chain, clean mempool          |
//  |  * rebroadcast proposal, vote if validator             |
//  |  * finalize the second to last block of the            |
//  |    finalizable chain in the block pool                 |
//  +--------------------------------------------------------+

//ConsensusState - 共识状态机，负责共识逻辑的推进，main goroutine
//	- RoundState - 目标高度Number、round、epoch以及该round的提案人
//	- State - 本地链末端的快照，每次提交后更新
//	- BlockExecutor - 打包提案、检查提案、提交区块
//		- BlockStore - 本地已提交的区块链
//		- KVStore - 质押账本，记录每个高度的验证者集合
//		- Mempool - 交易缓存池，投票交易也通过mempool广播
//	- BlockPool - 所有还没有finalize的区块和投票组成的分叉树，负责notarize和finalize的计算
//	- Reactor - 广播提案，处理同步请求
