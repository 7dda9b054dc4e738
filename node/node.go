package node

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"github.com/tendermint/tendermint/libs/log"
	"github.com/tendermint/tendermint/libs/service"
	"github.com/tendermint/tendermint/p2p"
	rpcserver "github.com/tendermint/tendermint/rpc/jsonrpc/server"

	"stakebft/blockpool"
	cfg "stakebft/config"
	"stakebft/consensus"
	"stakebft/libs/metric"
	mempl "stakebft/mempool"
	"stakebft/privval"
	"stakebft/rpc"
	sm "stakebft/state"
	"stakebft/store"
	"stakebft/types"
)

type Provider func(*cfg.Config, log.Logger) (*Node, error)

// Node 一个完整的共识节点：存储、mempool、共识、p2p以及rpc
type Node struct {
	service.BaseService

	// config
	config     *cfg.Config
	genesisDoc *types.GenesisDoc

	// network
	transport *p2p.MultiplexTransport
	sw        *p2p.Switch // p2p connections
	nodeInfo  p2p.NodeInfo
	nodeKey   *p2p.NodeKey // our node privkey

	// services
	chain            *store.BlockStore
	ledger           *store.KVStore
	privValidator    *privval.FilePV
	mempool          *mempl.ListMempool
	mempoolReactor   *mempl.Reactor
	blockPool        *blockpool.BlockPool
	consensusState   *consensus.ConsensusState
	consensusReactor *consensus.Reactor
	metricSet        *metric.MetricSet
	rpcListeners     []net.Listener
}

type Option func(*Node)

// DefaultNewNode 从配置目录读取节点密钥、验证者密钥和创世文件
func DefaultNewNode(config *cfg.Config, logger log.Logger) (*Node, error) {
	nodeKey, err := p2p.LoadOrGenNodeKey(config.NodeKeyFile())
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load or gen node key %s", config.NodeKeyFile())
	}
	genDoc, err := types.GenesisDocFromFile(config.GenesisFile())
	if err != nil {
		return nil, err
	}
	pv := privval.LoadOrGenFilePV(config.PrivValidatorKeyFile(), config.PrivValidatorStateFile())

	return NewNode(config, pv, nodeKey, genDoc, logger)
}

// openStores 打开区块链和账本，第一次启动时写入创世块
func openStores(config *cfg.Config, genDoc *types.GenesisDoc, logger log.Logger) (*store.BlockStore, *store.KVStore, error) {
	chain, err := store.NewBlockStore(cfg.DefaultChainDBName, config.DBDir(), logger.With("module", "blockstore"))
	if err != nil {
		return nil, nil, err
	}
	ledger, err := store.NewKVStore(cfg.DefaultLedgerDBName, config.DBDir(), logger.With("module", "ledger"),
		store.WithLockupHorizon(types.DurationMs(config.Consensus.LockupHorizon)),
		store.WithDefaultLockup(types.DurationMs(config.Consensus.DefaultLockup)),
		store.WithMaxValidators(config.Consensus.MaxValidators),
		store.WithStateWindow(config.Consensus.StateWindow),
	)
	if err != nil {
		chain.Close() //nolint:errcheck
		return nil, nil, err
	}

	if !ledger.HasGenesis() {
		if err := ledger.InitGenesis(genDoc); err != nil {
			return nil, nil, errors.Wrap(err, "init genesis")
		}
	}
	if chain.LastBlock() == nil {
		chain.AddNewBlock(genDoc.Block())
	}
	return chain, ledger, nil
}

// restoreBlockPool 树根为本地最后finalized的区块，之后已提交的区块和其中的投票重新加入区块池
func restoreBlockPool(config *cfg.ConsensusConfig, chain *store.BlockStore, logger log.Logger) (*blockpool.BlockPool, error) {
	finalized := chain.FinalizedNumber()
	if finalized < 0 {
		finalized = 0
	}
	root := chain.GetBlockByNumber(finalized)
	if root == nil {
		return nil, errors.Errorf("finalized block %d not found", finalized)
	}

	pool := blockpool.NewBlockPool(root,
		blockpool.WithChainReader(chain),
		blockpool.WithMaxChainDepth(config.MaxChainDepth),
		blockpool.WithMaxBranching(config.MaxBranching),
	)
	pool.SetLogger(logger)

	for number := finalized + 1; number <= chain.LastBlockNumber(); number++ {
		block := chain.GetBlockByNumber(number)
		if block == nil {
			break
		}
		pool.AddSeenBlock(block, nil)
		for _, tx := range block.Txs.Filter(types.TxVote) {
			if vote, err := types.VoteFromTx(tx); err == nil {
				pool.AddSeenVote(vote)
			}
		}
	}
	return pool, nil
}

func createTransport(config *cfg.Config, nodeInfo p2p.NodeInfo, nodeKey *p2p.NodeKey) *p2p.MultiplexTransport {
	var (
		mConnConfig = p2p.MConnConfig(config.P2P)
		transport   = p2p.NewMultiplexTransport(nodeInfo, *nodeKey, mConnConfig)
	)

	// Limit the number of incoming connections.
	p2p.MultiplexTransportMaxIncomingConnections(config.P2P.MaxNumInboundPeers)(transport)
	return transport
}

func createSwitch(config *cfg.Config,
	transport p2p.Transport,
	mempoolReactor *mempl.Reactor,
	consensusReactor *consensus.Reactor,
	nodeInfo p2p.NodeInfo,
	nodeKey *p2p.NodeKey,
	p2pLogger log.Logger) *p2p.Switch {

	sw := p2p.NewSwitch(
		config.P2P,
		transport,
	)
	sw.SetLogger(p2pLogger)
	sw.AddReactor("MEMPOOL", mempoolReactor)
	sw.AddReactor("CONSENSUS", consensusReactor)

	sw.SetNodeInfo(nodeInfo)
	sw.SetNodeKey(nodeKey)

	p2pLogger.Info("P2P Node ID", "ID", nodeKey.ID(), "file", config.NodeKeyFile())
	return sw
}

func NewNode(config *cfg.Config,
	pv *privval.FilePV,
	nodeKey *p2p.NodeKey,
	genDoc *types.GenesisDoc,
	logger log.Logger,
	options ...Option) (*Node, error) {

	chain, ledger, err := openStores(config, genDoc, logger)
	if err != nil {
		return nil, err
	}
	state, err := sm.LoadState(genDoc.ChainID, chain, ledger)
	if err != nil {
		return nil, err
	}
	logger.Info("loaded state", "state", state)

	// mempool
	mempool := mempl.NewListMempool(config.Mempool)
	mempool.SetLogger(logger.With("module", "mempool"))
	mempoolReactor := mempl.NewReactor(config.Mempool, mempool)
	mempoolReactor.SetLogger(logger.With("module", "mempool"))

	// consensus
	consensusLogger := logger.With("module", "consensus")
	blockExec := sm.NewBlockExecutor(chain, ledger, mempool, pv,
		sm.WithMaxBlockBytes(config.Consensus.MaxBlockBytes))
	blockExec.SetLogger(consensusLogger)

	pool, err := restoreBlockPool(config.Consensus, chain, logger.With("module", "blockpool"))
	if err != nil {
		return nil, err
	}

	consensusState := consensus.NewConsensusState(config.Consensus, state, blockExec, pool,
		chain, ledger, mempool, pv)
	consensusState.SetLogger(consensusLogger)
	mempool.AddTxAddedCallback(consensusState.AddVote)

	consensusReactor := consensus.NewReactor(consensusState)
	consensusReactor.SetLogger(consensusLogger)

	// metrics
	metricSet := metric.NewMetricSet()
	for label, item := range map[string]metric.MetricItem{
		mempl.MetricLabel:     mempool.Metrics(),
		blockpool.MetricLabel: pool.Metrics(),
		consensus.MetricLabel: consensusState.Metrics(),
	} {
		if err := metricSet.Register(label, item); err != nil {
			return nil, err
		}
	}

	// p2p
	p2pLogger := logger.With("module", "p2p")
	nodeInfo, err := makeNodeInfo(config, nodeKey, genDoc)
	if err != nil {
		return nil, err
	}
	transport := createTransport(config, nodeInfo, nodeKey)
	sw := createSwitch(config, transport, mempoolReactor, consensusReactor, nodeInfo, nodeKey, p2pLogger)

	node := &Node{
		config:     config,
		genesisDoc: genDoc,

		transport: transport,
		sw:        sw,
		nodeInfo:  nodeInfo,
		nodeKey:   nodeKey,

		chain:            chain,
		ledger:           ledger,
		privValidator:    pv,
		mempool:          mempool,
		mempoolReactor:   mempoolReactor,
		blockPool:        pool,
		consensusState:   consensusState,
		consensusReactor: consensusReactor,
		metricSet:        metricSet,
	}
	node.BaseService = *service.NewBaseService(logger, "Node", node)
	for _, option := range options {
		option(node)
	}

	return node, nil
}

func (n *Node) OnStart() error {
	// rpc先启动，共识启动过程中的状态也可以查询
	if n.config.RPC.ListenAddress != "" {
		listeners, err := n.startRPC()
		if err != nil {
			return err
		}
		n.rpcListeners = listeners
	}

	// start the transport
	addr, err := p2p.NewNetAddressString(p2p.IDAddressString(n.nodeKey.ID(), n.config.P2P.ListenAddress))
	if err != nil {
		return err
	}
	if err := n.transport.Listen(*addr); err != nil {
		return err
	}

	// start the Switch，同时启动mempool和共识的reactor
	if err := n.sw.Start(); err != nil {
		return err
	}
	if err := n.consensusState.Start(); err != nil {
		return err
	}

	err = n.sw.DialPeersAsync(splitAndTrimEmpty(n.config.P2P.PersistentPeers, ",", " "))
	if err != nil {
		return fmt.Errorf("could not dial peers from persistent_peers field: %w", err)
	}

	return nil
}

func (n *Node) OnStop() {
	n.Logger.Info("Stopping Node")

	if err := n.consensusState.Stop(); err != nil {
		n.Logger.Error("Error stopping consensus", "err", err)
	}
	if err := n.sw.Stop(); err != nil {
		n.Logger.Error("Error closing switch", "err", err)
	}
	if err := n.transport.Close(); err != nil {
		n.Logger.Error("Error closing transport", "err", err)
	}

	for _, l := range n.rpcListeners {
		n.Logger.Info("Closing rpc listener", "listener", l)
		if err := l.Close(); err != nil {
			n.Logger.Error("Error closing listener", "listener", l, "err", err)
		}
	}

	if err := n.chain.Close(); err != nil {
		n.Logger.Error("Error closing block store", "err", err)
	}
	if err := n.ledger.Close(); err != nil {
		n.Logger.Error("Error closing ledger", "err", err)
	}
}

func (n *Node) startRPC() ([]net.Listener, error) {
	rpc.SetEnvironment(&rpc.Environment{
		Mempool:   n.mempool,
		Consensus: n.consensusState,
		Chain:     n.chain,
		Ledger:    n.ledger,
		MetricSet: n.metricSet,
		Logger:    n.Logger.With("module", "rpc"),
	})

	config := rpcserver.DefaultConfig()
	config.MaxBodyBytes = n.config.RPC.MaxBodyBytes
	config.MaxHeaderBytes = n.config.RPC.MaxHeaderBytes
	config.MaxOpenConnections = n.config.RPC.MaxOpenConnections

	listenAddrs := splitAndTrimEmpty(n.config.RPC.ListenAddress, ",", " ")
	listeners := make([]net.Listener, len(listenAddrs))
	for i, listenAddr := range listenAddrs {
		mux := http.NewServeMux()
		rpcLogger := n.Logger.With("module", "rpc-server")
		wm := rpcserver.NewWebsocketManager(rpc.Routes,
			rpcserver.ReadLimit(config.MaxBodyBytes),
		)
		wm.SetLogger(rpcLogger.With("protocol", "websocket"))
		mux.HandleFunc("/websocket", wm.WebsocketHandler)
		rpcserver.RegisterRPCFuncs(mux, rpc.Routes, rpcLogger)

		listener, err := rpcserver.Listen(listenAddr, config)
		if err != nil {
			return nil, err
		}
		go func() {
			if err := rpcserver.Serve(listener, mux, rpcLogger, config); err != nil {
				n.Logger.Error("Error serving server", "err", err)
			}
		}()
		listeners[i] = listener
	}
	return listeners, nil
}

func (n *Node) Switch() *p2p.Switch {
	return n.sw
}

func (n *Node) NodeInfo() p2p.NodeInfo {
	return n.nodeInfo
}

func (n *Node) ConsensusState() *consensus.ConsensusState {
	return n.consensusState
}

func (n *Node) Mempool() mempl.Mempool {
	return n.mempool
}

func (n *Node) BlockStore() *store.BlockStore {
	return n.chain
}

func (n *Node) Ledger() *store.KVStore {
	return n.ledger
}

func (n *Node) MetricSet() *metric.MetricSet {
	return n.metricSet
}

func (n *Node) GenesisDoc() *types.GenesisDoc {
	return n.genesisDoc
}

// splitAndTrimEmpty slices s into all subslices separated by sep and returns a
// slice of the string s with all leading and trailing Unicode code points
// contained in cutset removed. If sep is empty, SplitAndTrim splits after each
// UTF-8 sequence. First part is equivalent to strings.SplitN with a count of
// -1.  also filter out empty strings, only return non-empty strings.
func splitAndTrimEmpty(s, sep, cutset string) []string {
	if s == "" {
		return []string{}
	}

	spl := strings.Split(s, sep)
	nonEmptyStrings := make([]string, 0, len(spl))
	for i := 0; i < len(spl); i++ {
		element := strings.Trim(spl[i], cutset)
		if element != "" {
			nonEmptyStrings = append(nonEmptyStrings, element)
		}
	}
	return nonEmptyStrings
}
