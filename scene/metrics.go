package scene

import "sync/atomic"

// Metrics 场景运行期的关键指标。场景线程写入，HTTP 协程读取。
type Metrics struct {
	TickCount       int64 // Tick 次数
	TotalTickNs     int64 // Tick 累计耗时（纳秒）
	InputsAccepted  int64 // 被接受的输入帧
	InputsDuplicate int64 // 因已消费或重复被忽略的输入帧
	InputsStale     int64 // 超出回溯窗口被丢弃的输入帧
	InputsTrimmed   int64 // 客户端静默超时被清理的输入帧
	UnknownClient   int64 // 来自未知客户端的输入批次
	DeltasSent      int64 // 成功交给传输层的增量
	Baselines       int64 // 完整基线增量
	AckMisses       int64 // 确认了未保留快照的次数
	SendFailures    int64 // 传输层拒绝的增量
	QueueDiscarded  int64 // 投递到场景线程时因队列满被丢弃的输入
	ActorFaults     int64 // 被跳过的角色 Tick
}

func (m *Metrics) IncAccepted(n int)  { atomic.AddInt64(&m.InputsAccepted, int64(n)) }
func (m *Metrics) IncDuplicate(n int) { atomic.AddInt64(&m.InputsDuplicate, int64(n)) }
func (m *Metrics) IncStale()          { atomic.AddInt64(&m.InputsStale, 1) }
func (m *Metrics) IncTrimmed(n int)   { atomic.AddInt64(&m.InputsTrimmed, int64(n)) }
func (m *Metrics) IncUnknownClient()  { atomic.AddInt64(&m.UnknownClient, 1) }
func (m *Metrics) IncDeltaSent()      { atomic.AddInt64(&m.DeltasSent, 1) }
func (m *Metrics) IncBaseline()       { atomic.AddInt64(&m.Baselines, 1) }
func (m *Metrics) IncAckMiss()        { atomic.AddInt64(&m.AckMisses, 1) }
func (m *Metrics) IncSendFailure()    { atomic.AddInt64(&m.SendFailures, 1) }
func (m *Metrics) IncQueueDiscarded() { atomic.AddInt64(&m.QueueDiscarded, 1) }
func (m *Metrics) IncActorFault()     { atomic.AddInt64(&m.ActorFaults, 1) }
func (m *Metrics) AddTick(ns int64) {
	atomic.AddInt64(&m.TickCount, 1)
	atomic.AddInt64(&m.TotalTickNs, ns)
}

// Snapshot 返回只读副本，便于 HTTP 输出
func (m *Metrics) Snapshot() map[string]any {
	tick := atomic.LoadInt64(&m.TickCount)
	total := atomic.LoadInt64(&m.TotalTickNs)
	var avgMs float64
	if tick > 0 {
		avgMs = float64(total) / float64(tick) / 1e6
	}
	return map[string]any{
		"tick_count":       tick,
		"avg_tick_ms":      avgMs,
		"inputs_accepted":  atomic.LoadInt64(&m.InputsAccepted),
		"inputs_duplicate": atomic.LoadInt64(&m.InputsDuplicate),
		"inputs_stale":     atomic.LoadInt64(&m.InputsStale),
		"inputs_trimmed":   atomic.LoadInt64(&m.InputsTrimmed),
		"unknown_client":   atomic.LoadInt64(&m.UnknownClient),
		"deltas_sent":      atomic.LoadInt64(&m.DeltasSent),
		"baselines":        atomic.LoadInt64(&m.Baselines),
		"ack_misses":       atomic.LoadInt64(&m.AckMisses),
		"send_failures":    atomic.LoadInt64(&m.SendFailures),
		"queue_discarded":  atomic.LoadInt64(&m.QueueDiscarded),
		"actor_faults":     atomic.LoadInt64(&m.ActorFaults),
	}
}
