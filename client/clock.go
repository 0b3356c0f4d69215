package client

import "tudeyarena/scene"

// TimeEstimator 由收到的增量时间戳估计当前服务端时间。
// 偏移量做指数平滑，输出保证单调不减。
type TimeEstimator struct {
	clock  scene.Clock
	alpha  float64
	offset float64
	primed bool
	last   int64
}

// NewTimeEstimator clock 为本地单调时钟，alpha 为平滑系数 (0,1]
func NewTimeEstimator(clock scene.Clock, alpha float64) *TimeEstimator {
	if alpha <= 0 || alpha > 1 {
		alpha = 0.1
	}
	return &TimeEstimator{clock: clock, alpha: alpha}
}

// Observe 记录一次服务端时间戳样本
func (e *TimeEstimator) Observe(serverTime int64) {
	sample := float64(serverTime - e.clock.NowMillis())
	if !e.primed {
		e.offset = sample
		e.primed = true
		return
	}
	e.offset += e.alpha * (sample - e.offset)
}

// Smoothed 当前估计的服务端时间
func (e *TimeEstimator) Smoothed() int64 {
	if !e.primed {
		return 0
	}
	now := e.clock.NowMillis() + int64(e.offset+0.5)
	if now < e.last {
		now = e.last
	}
	e.last = now
	return now
}
