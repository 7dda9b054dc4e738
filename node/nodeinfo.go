package node

import (
	"github.com/tendermint/tendermint/p2p"
	"github.com/tendermint/tendermint/version"

	cfg "stakebft/config"
	"stakebft/consensus"
	mempl "stakebft/mempool"
	"stakebft/types"
)

// p2p层仍使用tendermint的DefaultNodeInfo，Network为链名，链名不同的节点无法连接
func makeNodeInfo(
	config *cfg.Config,
	nodeKey *p2p.NodeKey,
	genDoc *types.GenesisDoc,
) (p2p.NodeInfo, error) {
	nodeInfo := p2p.DefaultNodeInfo{
		ProtocolVersion: p2p.NewProtocolVersion(
			version.P2PProtocol,
			version.BlockProtocol,
			0,
		),
		DefaultNodeID: nodeKey.ID(),
		Network:       genDoc.ChainID,
		Version:       version.TMCoreSemVer,
		Channels: []byte{
			mempl.MempoolChannel,
			consensus.ProposalChannel,
			consensus.SyncChannel,
		},
		Moniker: config.Moniker,
		Other: p2p.DefaultNodeInfoOther{
			TxIndex:    "off",
			RPCAddress: config.RPC.ListenAddress,
		},
	}

	lAddr := config.P2P.ExternalAddress
	if lAddr == "" {
		lAddr = config.P2P.ListenAddress
	}
	nodeInfo.ListenAddr = lAddr

	err := nodeInfo.Validate()
	return nodeInfo, err
}
