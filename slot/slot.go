package slot

import (
	"fmt"
	"time"

	"github.com/tendermint/tendermint/libs/log"

	cstypes "stakebft/consensus/types"
)

// TimeoutTicker 共识状态机的定时器
// 同一时间只保留一个定时器，新的定时器会取消旧的定时器
type TimeoutTicker interface {
	Start() error
	Stop() error

	// 获取超时channel
	Chan() <-chan TimeoutInfo

	// 设置新的超时，早于当前(number, round, step)的请求会被忽略
	ScheduleTimeout(ti TimeoutInfo)

	SetLogger(logger log.Logger)
}

// TimeoutInfo internally generated timeouts which may update the state
type TimeoutInfo struct {
	Duration time.Duration         `json:"duration"`
	Number   int64                 `json:"number"`
	Round    int64                 `json:"round"`
	Step     cstypes.RoundStepType `json:"step"`
}

func (ti *TimeoutInfo) String() string {
	return fmt.Sprintf("%v ; %d/%d %v", ti.Duration, ti.Number, ti.Round, ti.Step)
}

// Before ti是否早于other
func (ti TimeoutInfo) Before(other TimeoutInfo) bool {
	if ti.Number != other.Number {
		return ti.Number < other.Number
	}
	if ti.Round != other.Round {
		return ti.Round < other.Round
	}
	return other.Step > 0 && ti.Step <= other.Step
}
