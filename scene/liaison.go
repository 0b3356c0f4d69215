package scene

import (
	"tudeyarena/space"
)

// Sink 客户端传输的发送端。实现必须不阻塞场景线程（自带队列或快速失败）。
type Sink interface {
	SendDelta(d *SceneDelta) error
}

// SinkFunc 函数适配器
type SinkFunc func(d *SceneDelta) error

func (f SinkFunc) SendDelta(d *SceneDelta) error { return f(d) }

// sentRecord 某个已发送增量时刻客户端应持有的兴趣集合
type sentRecord struct {
	timestamp int64
	actors    interestSet
}

// Liaison 每个已连接客户端一个：输入排队、确认跟踪、Ping 估计与增量下发。
// 只持有回指场景管理器的非拥有引用；只在场景线程访问。
type Liaison struct {
	mgr  *Manager
	oid  int32
	sink Sink

	inputs    inputQueue
	lastAck   int64
	missedAck int64
	lastSent  int64
	history   []sentRecord
	stale     int64

	interest space.Rect
	target   ActorID

	ping      float64
	hasPing   bool
	lastHeard int64
}

func newLiaison(m *Manager, oid int32, sink Sink) *Liaison {
	cfg := m.cfg
	return &Liaison{
		mgr:       m,
		oid:       oid,
		sink:      sink,
		inputs:    inputQueue{limit: cfg.InputQueueLimit},
		interest:  space.Around(0, 0, cfg.InterestHalfWidth, cfg.InterestHalfHeight),
		lastHeard: m.clock.NowMillis(),
	}
}

func (l *Liaison) OID() int32 { return l.oid }

// StaleInputs 因超出回溯窗口被丢弃的输入帧数
func (l *Liaison) StaleInputs() int64 { return l.stale }

// LastAck 客户端确认收到的最大增量时间戳
func (l *Liaison) LastAck() int64 { return l.lastAck }

// LastInput 最近被消费的输入帧时间戳
func (l *Liaison) LastInput() int64 { return l.inputs.consumed }

// PendingInputs 尚未消费的输入帧数量
func (l *Liaison) PendingInputs() int { return l.inputs.len() }

// Ping 当前 Ping 估计（毫秒）
func (l *Liaison) Ping() int32 { return int32(l.ping + 0.5) }

// Interest 当前兴趣矩形
func (l *Liaison) Interest() space.Rect { return l.interest }

// SetInterest 显式设置兴趣矩形，并解除对角色的绑定
func (l *Liaison) SetInterest(r space.Rect) {
	l.interest = r
	l.target = 0
}

// SetTarget 绑定摄像机到角色；每次下发前兴趣矩形以该角色为中心
func (l *Liaison) SetTarget(id ActorID) {
	l.target = id
	l.refreshInterest()
}

// Target 当前绑定的角色，0 表示未绑定
func (l *Liaison) Target() ActorID { return l.target }

// RetainedSnapshots 当前保留的已发送快照时间戳（升序）
func (l *Liaison) RetainedSnapshots() []int64 {
	out := make([]int64, len(l.history))
	for i, r := range l.history {
		out[i] = r.timestamp
	}
	return out
}

// enqueueInput 更新 Ping 与确认，并把输入帧按时间戳插入队列
func (l *Liaison) enqueueInput(ack, currentTime, smoothedTime int64, frames []InputFrame) {
	m := l.mgr
	l.lastHeard = m.clock.NowMillis()

	// 客户端还没收到任何增量时没有可用的平滑时间
	if smoothedTime > 0 {
		sample := float64(currentTime - smoothedTime)
		if sample < 0 {
			sample = 0
		}
		if !l.hasPing {
			l.ping, l.hasPing = sample, true
		} else {
			l.ping += m.cfg.PingEWMAAlpha * (sample - l.ping)
		}
	}

	if ack > l.lastSent {
		m.log.Debugw("clamped acknowledgement beyond last sent delta", "client", l.oid, "ack", ack, "sent", l.lastSent)
		ack = l.lastSent
	}
	if ack > l.lastAck {
		l.lastAck = ack
	}

	horizon := m.timestamp - m.cfg.MaxRewindMs
	accepted, dup := 0, 0
	for _, f := range frames {
		if f.Timestamp < horizon {
			l.stale++
			m.metrics.IncStale()
			m.log.Debugw("discarded stale input", "client", l.oid, "frame", f.Timestamp, "horizon", horizon, "err", ErrStaleInput)
			continue
		}
		if l.inputs.insert(f) {
			accepted++
		} else {
			dup++
		}
	}
	m.metrics.IncAccepted(accepted)
	m.metrics.IncDuplicate(dup)
}

// trimIfSilent 客户端静默超过 input_timeout 时清空其输入队列（增量流不受影响）
func (l *Liaison) trimIfSilent(now int64) {
	m := l.mgr
	if now-l.lastHeard <= m.cfg.InputTimeoutMs || l.inputs.len() == 0 {
		return
	}
	n := l.inputs.trim()
	m.metrics.IncTrimmed(n)
	m.log.Infow("trimmed input queue of silent client", "client", l.oid, "frames", n, "silentMs", now-l.lastHeard)
}

func (l *Liaison) refreshInterest() {
	if l.target == 0 {
		return
	}
	if a, ok := l.mgr.actors.Actor(l.target); ok {
		cfg := l.mgr.cfg
		l.interest = space.Around(a.X, a.Y, cfg.InterestHalfWidth, cfg.InterestHalfHeight)
	}
}

// reference 找到与 lastAck 对应的已发送快照；找不到时返回 nil（完整基线）
func (l *Liaison) reference() *sentRecord {
	if l.lastAck == 0 {
		return nil
	}
	for i := range l.history {
		if l.history[i].timestamp == l.lastAck {
			return &l.history[i]
		}
	}
	if l.missedAck != l.lastAck {
		l.missedAck = l.lastAck
		l.mgr.metrics.IncAckMiss()
		l.mgr.log.Warnw("client acknowledged a snapshot no longer retained; sending baseline",
			"client", l.oid, "ack", l.lastAck, "err", ErrAckWithoutSnapshot)
	}
	return nil
}

// evict 丢弃早于 lastAck 的快照（客户端不会再以它们为基准）
func (l *Liaison) evict() {
	drop := 0
	for drop < len(l.history) && l.history[drop].timestamp < l.lastAck {
		drop++
	}
	l.dropOldest(drop)
}

func (l *Liaison) dropOldest(n int) {
	if n <= 0 {
		return
	}
	if n > len(l.history) {
		n = len(l.history)
	}
	k := copy(l.history, l.history[n:])
	for i := k; i < len(l.history); i++ {
		l.history[i] = sentRecord{}
	}
	l.history = l.history[:k]
}

// postDelta 计算并下发本 Tick 的增量。发送失败不重试：
// 下一次增量的基准不会前移，自然携带丢失的内容。
func (l *Liaison) postDelta() {
	m := l.mgr
	l.refreshInterest()
	l.evict()

	ref := l.reference()
	var refSet interestSet
	var reference int64
	if ref != nil {
		refSet, reference = ref.actors, ref.timestamp
	}

	now := m.interestSet(l.interest)
	d := encodeDelta(now, refSet, m.effects.Intersecting(l.interest))
	d.TargetOID = l.oid
	d.SceneOID = m.oid
	d.Acknowledge = l.inputs.consumed
	d.Ping = l.Ping()
	d.Reference = reference
	d.Timestamp = m.timestamp

	kept := make(interestSet, len(now))
	for id, a := range now {
		if a != nil {
			kept[id] = a
		}
	}
	l.history = append(l.history, sentRecord{timestamp: m.timestamp, actors: kept})
	l.lastSent = m.timestamp
	if over := len(l.history) - m.cfg.MaxAckAgeTicks; over > 0 {
		l.dropOldest(over)
	}
	if reference == 0 {
		m.metrics.IncBaseline()
	}

	if err := l.sink.SendDelta(d); err != nil {
		m.metrics.IncSendFailure()
		m.log.Debugw("delta send failed", "client", l.oid, "timestamp", d.Timestamp, "err", err)
		return
	}
	m.metrics.IncDeltaSent()
}
