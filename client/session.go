package client

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"tudeyarena/scene"
)

// Session 把 Mirror、InputBuffer 与 TimeEstimator 组合成一个客户端会话。
// Receive 通常在 Conn.Run 的协程中调用，Sample/Batch 在输入采样协程中调用。
type Session struct {
	mu     sync.Mutex
	mirror *Mirror
	inputs *InputBuffer
	clock  *TimeEstimator
	log    *zap.SugaredLogger
}

func NewSession(clock scene.Clock, log *zap.SugaredLogger) *Session {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Session{
		mirror: NewMirror(),
		inputs: NewInputBuffer(0),
		clock:  NewTimeEstimator(clock, 0.1),
		log:    log,
	}
}

// Receive 应用一个下行增量
func (s *Session) Receive(d *scene.SceneDelta) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.mirror.Apply(d); err != nil {
		// 缺参考时不确认新时间戳，服务端会在确认超龄后改发基线
		if errors.Is(err, ErrMissingReference) {
			s.log.Warnw("delta dropped", "timestamp", d.Timestamp, "reference", d.Reference, "err", err)
		} else {
			s.log.Debugw("delta ignored", "timestamp", d.Timestamp, "err", err)
		}
		return
	}
	s.clock.Observe(d.Timestamp)
	s.inputs.Acknowledge(d.Acknowledge)
}

// Sample 以估计的服务端时间记录一帧输入
func (s *Session) Sample(buttons uint32, aim *scene.Vec2) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := s.clock.Smoothed()
	if ts == 0 {
		return false
	}
	return s.inputs.Record(scene.InputFrame{Timestamp: ts, Buttons: buttons, Aim: aim})
}

// Batch 组装待发送的批次（确认时间戳 + 平滑时间 + 全部未确认帧）
func (s *Session) Batch() scene.InputFrameBatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inputs.Batch(s.mirror.Ack(), s.clock.Smoothed())
}

// Actors 当前镜像中的角色快照
func (s *Session) Actors() []*scene.Actor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mirror.Actors()
}

// Actor 当前镜像中的某个角色
func (s *Session) Actor(id scene.ActorID) (*scene.Actor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mirror.Actor(id)
}

// Timestamp 最近应用的增量时间戳
func (s *Session) Timestamp() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mirror.Ack()
}
