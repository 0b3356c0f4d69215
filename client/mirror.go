// Package client 实现客户端侧的状态重建：按参考时间戳应用场景增量、
// 重发未确认的输入以及估计服务端时间。
package client

import (
	"errors"
	"fmt"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"tudeyarena/scene"
)

var (
	ErrMissingReference = errors.New("client: delta references unknown state")
	ErrOutOfOrder       = errors.New("client: delta older than current state")
	ErrSceneChanged     = errors.New("client: delta from another scene")
)

// 最多保留的历史状态数
const defaultRetain = 128

type state map[scene.ActorID]*scene.Actor

// Mirror 客户端对场景的镜像：每个收到的增量时间戳对应一份完整状态，
// 供后续以其为参考的增量使用。非并发安全。
type Mirror struct {
	sceneOID int32
	states   map[int64]state
	latest   int64
	effects  []scene.Effect
	ackTime  int64 // 服务端已消费的输入时间戳
	ping     int32
	retain   int
}

func NewMirror() *Mirror {
	return &Mirror{states: make(map[int64]state), retain: defaultRetain}
}

// Apply 应用一个增量；参考状态缺失时返回 ErrMissingReference 且不修改镜像
func (m *Mirror) Apply(d *scene.SceneDelta) error {
	if m.latest != 0 && d.SceneOID != m.sceneOID {
		return fmt.Errorf("%w: have %d, got %d", ErrSceneChanged, m.sceneOID, d.SceneOID)
	}
	if d.Timestamp <= m.latest {
		return fmt.Errorf("%w: %d <= %d", ErrOutOfOrder, d.Timestamp, m.latest)
	}
	base := state{}
	if !d.IsBaseline() {
		ref, ok := m.states[d.Reference]
		if !ok {
			return fmt.Errorf("%w: %d", ErrMissingReference, d.Reference)
		}
		base = ref
	}

	next := make(state, len(base)+len(d.Added))
	for id, a := range base {
		next[id] = a
	}
	for _, a := range d.Added {
		next[a.ID] = a.Clone()
	}
	for _, u := range d.Updated {
		prev, ok := next[u.ID]
		if !ok {
			return fmt.Errorf("%w: update for actor %d", ErrMissingReference, u.ID)
		}
		cur := prev.Clone()
		if err := u.Apply(cur); err != nil {
			return err
		}
		next[u.ID] = cur
	}
	for _, id := range d.Removed {
		delete(next, id)
	}

	m.sceneOID = d.SceneOID
	m.states[d.Timestamp] = next
	m.latest = d.Timestamp
	m.effects = d.Effects
	m.ackTime = d.Acknowledge
	m.ping = d.Ping
	m.prune(d.Reference)
	return nil
}

// prune 丢弃早于 ref 的状态：服务端确认时间单调，之后不会再引用它们
func (m *Mirror) prune(ref int64) {
	for ts := range m.states {
		if ts < ref {
			delete(m.states, ts)
		}
	}
	if over := len(m.states) - m.retain; over > 0 {
		stamps := maps.Keys(m.states)
		slices.Sort(stamps)
		for _, ts := range stamps[:over] {
			delete(m.states, ts)
		}
	}
}

// Ack 应随下一批输入上报的确认时间戳（最近收到的增量）
func (m *Mirror) Ack() int64 { return m.latest }

func (m *Mirror) SceneOID() int32         { return m.sceneOID }
func (m *Mirror) Ping() int32             { return m.ping }
func (m *Mirror) InputAck() int64         { return m.ackTime }
func (m *Mirror) Effects() []scene.Effect { return m.effects }
func (m *Mirror) Retained() int           { return len(m.states) }

// Actor 当前状态中的角色
func (m *Mirror) Actor(id scene.ActorID) (*scene.Actor, bool) {
	a, ok := m.states[m.latest][id]
	return a, ok
}

// Actors 当前状态中的全部角色，按 ID 升序
func (m *Mirror) Actors() []*scene.Actor {
	cur := m.states[m.latest]
	ids := maps.Keys(cur)
	slices.Sort(ids)
	out := make([]*scene.Actor, 0, len(ids))
	for _, id := range ids {
		out = append(out, cur[id])
	}
	return out
}
