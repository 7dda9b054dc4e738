package slot

import (
	"time"

	"github.com/tendermint/tendermint/libs/log"
	"github.com/tendermint/tendermint/libs/service"
)

var (
	tickTockBufferSize = 10
)

var _ TimeoutTicker = (*timeoutTicker)(nil)

// timeoutTicker wraps time.Timer,
// scheduling timeouts only for greater number/round/step
// than what it's already seen.
// Timeouts are scheduled along the tickChan,
// and fired on the tockChan.
type timeoutTicker struct {
	service.BaseService

	timer    *time.Timer
	tickChan chan TimeoutInfo // for scheduling timeouts
	tockChan chan TimeoutInfo // for notifying about them
}

// NewTimeoutTicker returns a new TimeoutTicker.
func NewTimeoutTicker() TimeoutTicker {
	tt := &timeoutTicker{
		timer:    time.NewTimer(0),
		tickChan: make(chan TimeoutInfo, tickTockBufferSize),
		tockChan: make(chan TimeoutInfo, tickTockBufferSize),
	}
	tt.BaseService = *service.NewBaseService(nil, "TimeoutTicker", tt)
	tt.stopTimer() // don't want to fire until the first scheduled timeout
	return tt
}

func (tt *timeoutTicker) SetLogger(logger log.Logger) {
	tt.BaseService.SetLogger(logger)
}

// OnStart implements service.Service. It starts the timeout routine.
func (tt *timeoutTicker) OnStart() error {
	go tt.timeoutRoutine()
	return nil
}

// OnStop implements service.Service. It stops the timeout routine.
func (tt *timeoutTicker) OnStop() {
	tt.BaseService.OnStop()
	tt.stopTimer()
}

// Chan returns a channel on which timeouts are sent.
func (tt *timeoutTicker) Chan() <-chan TimeoutInfo {
	return tt.tockChan
}

// ScheduleTimeout schedules a new timeout by sending on the internal tickChan.
// The timeoutRoutine is always available to read from tickChan, so this won't block.
// The scheduling may fail if the timeoutRoutine has already scheduled a timeout for a later number/round/step.
func (tt *timeoutTicker) ScheduleTimeout(ti TimeoutInfo) {
	tt.tickChan <- ti
}

// stop the timer and drain if necessary
func (tt *timeoutTicker) stopTimer() {
	// Stop() returns false if it was already fired or was stopped
	if !tt.timer.Stop() {
		select {
		case <-tt.timer.C:
		default:
			tt.Logger.Debug("Timer already stopped")
		}
	}
}

// send on tickChan to start a new timer.
// timers are interupted and replaced by new ticks from later steps
// timeouts of 0 on the tickChan will be immediately relayed to the tockChan
func (tt *timeoutTicker) timeoutRoutine() {
	tt.Logger.Debug("Starting timeout routine")
	var ti TimeoutInfo
	for {
		select {
		case newti := <-tt.tickChan:
			tt.Logger.Debug("Received tick", "old_ti", ti, "new_ti", newti)

			// ignore tickers for old number/round/step
			if newti.Before(ti) {
				tt.Logger.Debug("ignore stale timeout", "old_ti", ti, "new_ti", newti)
				continue
			}

			// stop the last timer
			tt.stopTimer()

			// update timeoutInfo and reset timer
			// NOTE time.Timer allows duration to be non-positive
			ti = newti
			tt.timer.Reset(ti.Duration)
			tt.Logger.Debug("Scheduled timeout", "dur", ti.Duration, "number", ti.Number, "round", ti.Round, "step", ti.Step)
		case <-tt.timer.C:
			tt.Logger.Info("Timed out", "dur", ti.Duration, "number", ti.Number, "round", ti.Round, "step", ti.Step)
			// go routine here guarantees timeoutRoutine doesn't block.
			// Determinism comes from playback in the receiveRoutine.
			// We can eliminate it by merging the timeoutRoutine into receiveRoutine
			//  and managing the timeouts ourselves with a millisecond ticker
			go func(toi TimeoutInfo) { tt.tockChan <- toi }(ti)
		case <-tt.Quit():
			return
		}
	}
}
