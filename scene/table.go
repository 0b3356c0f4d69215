package scene

import (
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"tudeyarena/space"
)

// Logic 可选的逐角色模拟钩子。对传入的副本进行修改，返回 nil 时才提交；
// 返回错误（例如包装了 ErrSingularTransform）时跳过该角色本 Tick。
type Logic interface {
	Tick(a *Actor, dt int64) error
}

// LogicFunc 函数适配器
type LogicFunc func(a *Actor, dt int64) error

func (f LogicFunc) Tick(a *Actor, dt int64) error { return f(a, dt) }

type actorEntry struct {
	live   *Actor
	frozen *Actor // 上次冻结时的不可变副本，差分与快照只读它
	extent space.Rect
	elem   *space.Element
	logic  Logic
	dirty  bool
	faults int // 连续故障次数
}

// MaxConsecutiveFaults 角色逻辑连续失败达到该次数后被移除
const MaxConsecutiveFaults = 10

func (e *actorEntry) syncBounds() {
	e.elem.SetBounds(e.extent.Translate(e.live.X, e.live.Y))
}

// ActorTable 权威角色表；每个存活角色在影响力空间中恰有一个条目
type ActorTable struct {
	types   *TypeRegistry
	index   *space.HashSpace
	entries map[ActorID]*actorEntry
	lastID  ActorID
	log     *zap.SugaredLogger
}

// NewActorTable 创建角色表，index 为影响力空间
func NewActorTable(types *TypeRegistry, index *space.HashSpace, log *zap.SugaredLogger) *ActorTable {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &ActorTable{
		types:   types,
		index:   index,
		entries: make(map[ActorID]*actorEntry),
		log:     log,
	}
}

// Len 存活角色数量
func (t *ActorTable) Len() int { return len(t.entries) }

// Spawn 以新分配的 ID 创建角色。influence 是相对角色位置的影响力矩形。
func (t *ActorTable) Spawn(typ TypeID, timestamp int64, pos Vec2, rotation float64, influence space.Rect) (*Actor, error) {
	at, err := t.types.Lookup(typ)
	if err != nil {
		return nil, err
	}
	a := &Actor{
		ID:       t.lastID + 1,
		Type:     typ,
		Created:  timestamp,
		X:        pos.X,
		Y:        pos.Y,
		Rotation: rotation,
		Fields:   at.Zero(),
	}
	if err := t.Add(a, influence); err != nil {
		return nil, err
	}
	return a, nil
}

// Add 加入一个自带 ID 的角色；ID 必须从未使用过
func (t *ActorTable) Add(a *Actor, influence space.Rect) error {
	if a.ID <= t.lastID {
		return fmt.Errorf("%w: %d", ErrDuplicateActor, a.ID)
	}
	if _, err := t.types.Lookup(a.Type); err != nil {
		return err
	}
	e := &actorEntry{live: a, extent: influence, dirty: true}
	e.elem = space.NewElement(influence.Translate(a.X, a.Y), a.ID)
	if err := t.index.Add(e.elem); err != nil {
		return err
	}
	t.entries[a.ID] = e
	t.lastID = a.ID
	return nil
}

// Actor 返回存活角色的当前（可变）状态；修改请走 Mutate
func (t *ActorTable) Actor(id ActorID) (*Actor, bool) {
	e, ok := t.entries[id]
	if !ok {
		return nil, false
	}
	return e.live, true
}

// Frozen 返回最近一次冻结的快照
func (t *ActorTable) Frozen(id ActorID) (*Actor, bool) {
	e, ok := t.entries[id]
	if !ok || e.frozen == nil {
		return nil, false
	}
	return e.frozen, true
}

// Mutate 修改角色并同步其影响力空间条目
func (t *ActorTable) Mutate(id ActorID, fn func(a *Actor)) error {
	e, ok := t.entries[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownActor, id)
	}
	fn(e.live)
	e.live.ID = id
	e.dirty = true
	e.syncBounds()
	return nil
}

// SetInfluence 修改角色的相对影响力矩形
func (t *ActorTable) SetInfluence(id ActorID, influence space.Rect) error {
	e, ok := t.entries[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownActor, id)
	}
	e.extent = influence
	e.syncBounds()
	return nil
}

// SetLogic 为角色挂载模拟钩子（nil 表示移除）
func (t *ActorTable) SetLogic(id ActorID, l Logic) error {
	e, ok := t.entries[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownActor, id)
	}
	e.logic = l
	return nil
}

// Remove 销毁角色；重复删除只记录警告
func (t *ActorTable) Remove(id ActorID) bool {
	e, ok := t.entries[id]
	if !ok {
		t.log.Warnw("remove of unknown actor ignored", "actor", id)
		return false
	}
	t.index.Remove(e.elem)
	delete(t.entries, id)
	return true
}

// IDs 按升序返回存活角色 ID
func (t *ActorTable) IDs() []ActorID {
	ids := maps.Keys(t.entries)
	slices.Sort(ids)
	return ids
}

// runLogic 对挂载了钩子的角色执行一次逻辑 Tick；出错的角色被跳过
func (t *ActorTable) runLogic(dt int64, faulted func(*ActorFault)) {
	for _, id := range t.IDs() {
		e := t.entries[id]
		if e == nil || e.logic == nil {
			continue
		}
		work := e.live.Clone()
		if err := e.logic.Tick(work, dt); err != nil {
			faulted(&ActorFault{ID: id, Err: err})
			e.faults++
			if e.faults >= MaxConsecutiveFaults {
				t.log.Warnw("removed actor after repeated simulation faults", "actor", id, "faults", e.faults, "err", err)
				t.Remove(id)
			}
			continue
		}
		e.faults = 0
		work.ID = id
		e.live = work
		e.dirty = true
		e.syncBounds()
	}
}

// freeze 为本 Tick 修改过的角色生成不可变快照
func (t *ActorTable) freeze() {
	for _, e := range t.entries {
		if !e.dirty {
			continue
		}
		e.frozen = e.live.Clone()
		e.dirty = false
	}
}
