package consensus

import (
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	cstypes "stakebft/consensus/types"
	"stakebft/libs/utils"
	"stakebft/types"
)

const MetricLabel = "CONSENSUS"

// 统计提交间隔时保留的最近区块数
const commitIntervalWindow = 100

func newConsensusMetric() *consensusMetric {
	return &consensusMetric{
		Status:        string(cstypes.StatusStarting),
		LastFinalized: -1,
	}
}

type consensusMetric struct {
	mtx sync.RWMutex

	Status         string    `json:"status"`
	Number         int64     `json:"current_number"`
	Round          int64     `json:"current_round"`
	Epoch          int64     `json:"current_epoch"`
	RoundStartTime time.Time `json:"round_start_time"`

	IsProposer      bool   `json:"is_proposer"`
	ProposerAddress string `json:"proposer_address"`

	LastCommitted    int64 `json:"last_committed"`
	LastFinalized    int64 `json:"last_finalized"`
	Proposed         int64 `json:"proposed"`
	Voted            int64 `json:"voted"`
	InvalidProposals int64 `json:"invalid_proposals"`
	SyncRequests     int64 `json:"sync_requests"`

	// 最近commitIntervalWindow个区块的提交间隔(秒)
	CommitIntervalMax    float64 `json:"commit_interval_max"`
	CommitIntervalMin    float64 `json:"commit_interval_min"`
	CommitIntervalMedian float64 `json:"commit_interval_median"`
	CommitIntervalAvg    float64 `json:"commit_interval_avg"`

	lastCommitAt time.Time
	intervals    []float64
}

func (cm *consensusMetric) JSONString() string {
	cm.mtx.RLock()
	defer cm.mtx.RUnlock()
	s, _ := jsoniter.MarshalToString(cm)
	return s
}

func (cm *consensusMetric) MarkStatus(status cstypes.ConsensusStatus) {
	cm.mtx.Lock()
	defer cm.mtx.Unlock()
	cm.Status = string(status)
}

func (cm *consensusMetric) MarkRound(number, round, epoch int64) {
	cm.mtx.Lock()
	defer cm.mtx.Unlock()
	cm.Number = number
	cm.Round = round
	cm.Epoch = epoch
	cm.RoundStartTime = time.Now()
}

func (cm *consensusMetric) MarkProposer(addr types.Address, isProposer bool) {
	cm.mtx.Lock()
	defer cm.mtx.Unlock()
	cm.ProposerAddress = addr.String()
	cm.IsProposer = isProposer
}

func (cm *consensusMetric) MarkCommitted(number int64) {
	cm.mtx.Lock()
	defer cm.mtx.Unlock()
	cm.LastCommitted = number

	now := time.Now()
	if !cm.lastCommitAt.IsZero() {
		cm.intervals = append(cm.intervals, now.Sub(cm.lastCommitAt).Seconds())
		if len(cm.intervals) > commitIntervalWindow {
			cm.intervals = cm.intervals[len(cm.intervals)-commitIntervalWindow:]
		}
		cm.CommitIntervalMax = utils.Max(cm.intervals...)
		cm.CommitIntervalMin = utils.Min(cm.intervals...)
		cm.CommitIntervalMedian = utils.Median(cm.intervals...)
		cm.CommitIntervalAvg = utils.Avg(cm.intervals...)
	}
	cm.lastCommitAt = now
}

func (cm *consensusMetric) MarkFinalized(number int64) {
	cm.mtx.Lock()
	defer cm.mtx.Unlock()
	cm.LastFinalized = number
}

func (cm *consensusMetric) MarkProposed() {
	cm.mtx.Lock()
	defer cm.mtx.Unlock()
	cm.Proposed++
}

func (cm *consensusMetric) MarkVoted() {
	cm.mtx.Lock()
	defer cm.mtx.Unlock()
	cm.Voted++
}

func (cm *consensusMetric) MarkInvalidProposal() {
	cm.mtx.Lock()
	defer cm.mtx.Unlock()
	cm.InvalidProposals++
}

func (cm *consensusMetric) MarkSyncRequest() {
	cm.mtx.Lock()
	defer cm.mtx.Unlock()
	cm.SyncRequests++
}
