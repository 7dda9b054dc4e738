package types

import "time"

// 共识相关的常量(毫秒)
const (
	DayMs = int64(24 * time.Hour / time.Millisecond)
)

// NowMs 当前时间的毫秒时间戳
func NowMs() int64 {
	return time.Now().UnixNano() / int64(time.Millisecond)
}

func DurationMs(d time.Duration) int64 {
	return int64(d / time.Millisecond)
}

// Deposit 质押记录，ExpireAt(ms)之后失效
type Deposit struct {
	Address  Address `json:"address"`
	Amount   int64   `json:"amount"`
	ExpireAt int64   `json:"expire_at"`
}

// Qualifies 在now+horizon之后仍未过期的质押才有效
func (d *Deposit) Qualifies(now, horizonMs int64) bool {
	return d.Amount > 0 && d.ExpireAt > now+horizonMs
}
