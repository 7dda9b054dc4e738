package config

import (
	"bytes"
	"path/filepath"
	"text/template"

	tmos "github.com/tendermint/tendermint/libs/os"
)

// DefaultDirPerm is the default permissions used when creating directories.
const DefaultDirPerm = 0700

var configTemplate *template.Template

func init() {
	var err error
	if configTemplate, err = template.New("configFileTemplate").Parse(defaultConfigTemplate); err != nil {
		panic(err)
	}
}

// EnsureRoot 创建根目录以及config、data子目录
func EnsureRoot(rootDir string) error {
	for _, dir := range []string{rootDir, filepath.Join(rootDir, "config"), filepath.Join(rootDir, "data")} {
		if err := tmos.EnsureDir(dir, DefaultDirPerm); err != nil {
			return err
		}
	}
	return nil
}

// WriteConfigFile 按模板写入配置文件
func WriteConfigFile(configFilePath string, config *Config) error {
	var buffer bytes.Buffer
	if err := configTemplate.Execute(&buffer, config); err != nil {
		return err
	}
	return tmos.WriteFile(configFilePath, buffer.Bytes(), 0644)
}

const defaultConfigTemplate = `# This is a TOML config file.
# For more information, see https://github.com/toml-lang/toml

#######################################################################
###                   Main Base Config Options                      ###
#######################################################################

# A custom human readable name for this node
moniker = "{{ .BaseConfig.Moniker }}"

# Database backend: goleveldb | memdb
db_backend = "{{ .BaseConfig.DBBackend }}"

# Database directory
db_dir = "{{ js .BaseConfig.DBPath }}"

# Output level for logging, including package level options
log_level = "{{ .BaseConfig.LogLevel }}"

# Output format: 'plain' (colored text) or 'json'
log_format = "{{ .BaseConfig.LogFormat }}"

# Path to the JSON file containing the initial validator set and other meta data
genesis_file = "{{ js .BaseConfig.Genesis }}"

# Path to the JSON file containing the private key of the local account
priv_validator_key_file = "{{ js .BaseConfig.PrivValidatorKey }}"

# Path to the JSON file containing the nonce of the local account
priv_validator_state_file = "{{ js .BaseConfig.PrivValidatorState }}"

# Path to the JSON file containing the private key to use for node authentication in the p2p protocol
node_key_file = "{{ js .BaseConfig.NodeKey }}"

#######################################################################
###                 Advanced Configuration Options                  ###
#######################################################################

[rpc]

# TCP or UNIX socket address for the RPC server to listen on
laddr = "{{ .RPC.ListenAddress }}"

# A list of origins a cross-domain request can be executed from
cors_allowed_origins = [{{ range .RPC.CORSAllowedOrigins }}{{ printf "%q, " . }}{{end}}]

# Maximum number of simultaneous connections (including WebSocket).
max_open_connections = {{ .RPC.MaxOpenConnections }}

# Maximum size of request body, in bytes
max_body_bytes = {{ .RPC.MaxBodyBytes }}

[p2p]

# Address to listen for incoming connections
laddr = "{{ .P2P.ListenAddress }}"

# Address to advertise to peers for them to dial
external_address = "{{ .P2P.ExternalAddress }}"

# Comma separated list of nodes to keep persistent connections to
persistent_peers = "{{ .P2P.PersistentPeers }}"

# Maximum number of inbound peers
max_num_inbound_peers = {{ .P2P.MaxNumInboundPeers }}

# Maximum number of outbound peers to connect to, excluding persistent peers
max_num_outbound_peers = {{ .P2P.MaxNumOutboundPeers }}

# Time to wait before flushing messages out on the connection
flush_throttle_timeout = "{{ .P2P.FlushThrottleTimeout }}"

# Maximum size of a message packet payload, in bytes
max_packet_msg_payload_size = {{ .P2P.MaxPacketMsgPayloadSize }}

# Toggle to disable guard against peers connecting from the same ip.
allow_duplicate_ip = {{ .P2P.AllowDuplicateIP }}

[mempool]

broadcast = {{ .Mempool.Broadcast }}

# Maximum number of transactions in the mempool
size = {{ .Mempool.Size }}

# Limit the total size of all txs in the mempool.
max_txs_bytes = {{ .Mempool.MaxTxsBytes }}

# Size of the cache (used to filter transactions we saw earlier) in transactions
cache_size = {{ .Mempool.CacheSize }}

# Maximum size of a single transaction.
max_tx_bytes = {{ .Mempool.MaxTxBytes }}

[consensus]

# How long we wait for a proposal before moving to the next round
proposal_timeout = "{{ .Consensus.ProposalTimeout }}"

# How long we wait after a new height before the first proposal attempt
transition_timeout = "{{ .Consensus.TransitionTimeout }}"

# Deposits must stay locked at least this long to count
lockup_horizon = "{{ .Consensus.LockupHorizon }}"

# Lockup of stake transactions that don't specify one
default_lockup = "{{ .Consensus.DefaultLockup }}"

# Stake submitted on start when the local account has none (0 = observer)
target_stake = {{ .Consensus.TargetStake }}

max_validators = {{ .Consensus.MaxValidators }}
health_threshold_epoch = {{ .Consensus.HealthThresholdEpoch }}
max_chain_depth = {{ .Consensus.MaxChainDepth }}
max_branching = {{ .Consensus.MaxBranching }}
max_block_bytes = {{ .Consensus.MaxBlockBytes }}
sync_batch = {{ .Consensus.SyncBatch }}
state_window = {{ .Consensus.StateWindow }}
`
