package mock

import (
	"sync"

	"github.com/tendermint/tendermint/libs/log"

	"stakebft/slot"
)

// Ticker 手动触发的定时器，测试使用
// ScheduleTimeout只记录超时信息，调用Fire后才会发送到Chan
type Ticker struct {
	mtx       sync.Mutex
	scheduled []slot.TimeoutInfo
	tockChan  chan slot.TimeoutInfo
}

var _ slot.TimeoutTicker = (*Ticker)(nil)

func NewTicker() *Ticker {
	return &Ticker{
		scheduled: make([]slot.TimeoutInfo, 0),
		tockChan:  make(chan slot.TimeoutInfo, 100),
	}
}

func (t *Ticker) Start() error { return nil }

func (t *Ticker) Stop() error { return nil }

func (t *Ticker) SetLogger(_ log.Logger) {}

func (t *Ticker) Chan() <-chan slot.TimeoutInfo { return t.tockChan }

func (t *Ticker) ScheduleTimeout(ti slot.TimeoutInfo) {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	t.scheduled = append(t.scheduled, ti)
}

// Scheduled 所有设置过的超时
func (t *Ticker) Scheduled() []slot.TimeoutInfo {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	return append([]slot.TimeoutInfo(nil), t.scheduled...)
}

// Last 最后一次设置的超时，没有时返回false
func (t *Ticker) Last() (slot.TimeoutInfo, bool) {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	if len(t.scheduled) == 0 {
		return slot.TimeoutInfo{}, false
	}
	return t.scheduled[len(t.scheduled)-1], true
}

// Fire 触发超时
func (t *Ticker) Fire(ti slot.TimeoutInfo) {
	t.tockChan <- ti
}
