package scene

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"tudeyarena/config"
	"tudeyarena/space"
)

// ErrDuplicateClient 同一 oid 重复进入场景
var ErrDuplicateClient = errors.New("scene: client already present")

// Phase Tick 状态机：READY → TICKING → POSTING → CLEARING → READY
type Phase int32

const (
	PhaseReady Phase = iota
	PhaseTicking
	PhasePosting
	PhaseClearing
)

func (p Phase) String() string {
	switch p {
	case PhaseReady:
		return "ready"
	case PhaseTicking:
		return "ticking"
	case PhasePosting:
		return "posting"
	case PhaseClearing:
		return "clearing"
	}
	return fmt.Sprintf("phase(%d)", int32(p))
}

// Simulation 外部模拟钩子；场景管理器作为显式上下文传入
type Simulation interface {
	// ApplyInput 消费一个客户端输入帧（帧时间戳不晚于当前场景时间）
	ApplyInput(m *Manager, client int32, frame InputFrame) error
	// Step 推进世界 dt 毫秒
	Step(m *Manager, dt int64) error
}

// Options 场景管理器构造参数
type Options struct {
	OID        int32
	Name       string
	Config     config.Scene
	Clock      Clock
	Log        *zap.SugaredLogger
	Types      *TypeRegistry
	Simulation Simulation
}

// Manager 权威场景：独占时钟、角色表、效果队列、影响力空间与客户端联络器。
// 所有方法只能在场景线程上调用。
type Manager struct {
	oid   int32
	name  string
	cfg   config.Scene
	clock Clock
	log   *zap.SugaredLogger
	sim   Simulation

	types   *TypeRegistry
	index   *space.HashSpace
	actors  *ActorTable
	effects EffectQueue
	clients map[int32]*Liaison

	timestamp int64
	lastTick  int64
	phase     Phase
	metrics   Metrics

	elements []*space.Element
}

// NewManager 创建场景管理器；lastTick 以创建时刻初始化
func NewManager(opts Options) *Manager {
	if opts.Clock == nil {
		opts.Clock = NewSystemClock()
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop().Sugar()
	}
	if opts.Types == nil {
		opts.Types = NewTypeRegistry()
	}
	log := opts.Log.With("scene", opts.Name, "sceneOid", opts.OID)
	index := space.NewHashSpace(opts.Config.GridCell, opts.Config.GridLevels)
	return &Manager{
		oid:      opts.OID,
		name:     opts.Name,
		cfg:      opts.Config,
		clock:    opts.Clock,
		log:      log,
		sim:      opts.Simulation,
		types:    opts.Types,
		index:    index,
		actors:   NewActorTable(opts.Types, index, log),
		clients:  make(map[int32]*Liaison),
		lastTick: opts.Clock.NowMillis(),
	}
}

func (m *Manager) OID() int32                 { return m.oid }
func (m *Manager) Name() string               { return m.name }
func (m *Manager) Timestamp() int64           { return m.timestamp }
func (m *Manager) Phase() Phase               { return m.phase }
func (m *Manager) Config() config.Scene       { return m.cfg }
func (m *Manager) Types() *TypeRegistry       { return m.types }
func (m *Manager) Actors() *ActorTable        { return m.actors }
func (m *Manager) Space() *space.HashSpace    { return m.index }
func (m *Manager) Metrics() *Metrics          { return &m.metrics }
func (m *Manager) Log() *zap.SugaredLogger    { return m.log }
func (m *Manager) SetSimulation(s Simulation) { m.sim = s }

// Now 当前场景时间：场景时间戳 + 距上次 Tick 的墙钟时间
func (m *Manager) Now() int64 {
	return m.timestamp + (m.clock.NowMillis() - m.lastTick)
}

// SetConfig 运行期调整参数。网格参数在创建时固定，不受影响。
func (m *Manager) SetConfig(cfg config.Scene) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	cfg.GridCell, cfg.GridLevels = m.cfg.GridCell, m.cfg.GridLevels
	m.cfg = cfg
	for _, l := range m.clients {
		l.inputs.limit = cfg.InputQueueLimit
	}
	return nil
}

// Spawn 在当前场景时间创建角色
func (m *Manager) Spawn(typ TypeID, pos Vec2, rotation float64, influence space.Rect) (*Actor, error) {
	return m.actors.Spawn(typ, m.timestamp, pos, rotation, influence)
}

// Despawn 销毁角色
func (m *Manager) Despawn(id ActorID) bool {
	return m.actors.Remove(id)
}

// FireEffect 将效果加入本 Tick 的队列
func (m *Manager) FireEffect(e Effect) {
	if e.Timestamp == 0 {
		e.Timestamp = m.timestamp
	}
	m.effects.Fire(e)
}

// EffectsIn 返回本 Tick 影响力与 rect 相交的效果
func (m *Manager) EffectsIn(rect space.Rect) []Effect {
	return m.effects.Intersecting(rect)
}

// ActorsIn 返回影响力与 rect 相交的存活角色（当前状态）
func (m *Manager) ActorsIn(rect space.Rect) map[ActorID]*Actor {
	m.elements = m.index.Query(rect, m.elements[:0])
	out := make(map[ActorID]*Actor, len(m.elements))
	for _, e := range m.elements {
		id, ok := e.UserObject().(ActorID)
		if !ok {
			continue
		}
		if a, ok := m.actors.Actor(id); ok {
			out[id] = a
		}
	}
	m.clearElements()
	return out
}

// interestSet 查询影响力空间，返回 ID → 冻结快照
func (m *Manager) interestSet(rect space.Rect) interestSet {
	m.elements = m.index.Query(rect, m.elements[:0])
	set := make(interestSet, len(m.elements))
	for _, e := range m.elements {
		id, ok := e.UserObject().(ActorID)
		if !ok {
			continue
		}
		a, _ := m.actors.Frozen(id)
		set[id] = a
	}
	m.clearElements()
	return set
}

func (m *Manager) clearElements() {
	for i := range m.elements {
		m.elements[i] = nil
	}
	m.elements = m.elements[:0]
}

// Subscription 客户端在场景中的订阅句柄；由联络器的生命周期持有
type Subscription struct {
	mgr       *Manager
	oid       int32
	cancelled bool
}

func (s *Subscription) OID() int32 { return s.oid }

// Cancel 离开场景；幂等
func (s *Subscription) Cancel() {
	if s.cancelled {
		return
	}
	s.cancelled = true
	s.mgr.BodyLeft(s.oid)
}

// BodyEntered 客户端进入场景：创建联络器并返回订阅句柄
func (m *Manager) BodyEntered(oid int32, sink Sink) (*Subscription, error) {
	if _, ok := m.clients[oid]; ok {
		return nil, fmt.Errorf("%w: %d", ErrDuplicateClient, oid)
	}
	m.clients[oid] = newLiaison(m, oid, sink)
	m.log.Infow("client entered", "client", oid, "clients", len(m.clients))
	return &Subscription{mgr: m, oid: oid}, nil
}

// BodyLeft 客户端离开：立即销毁联络器及其保留的快照
func (m *Manager) BodyLeft(oid int32) bool {
	if _, ok := m.clients[oid]; !ok {
		return false
	}
	delete(m.clients, oid)
	m.log.Infow("client left", "client", oid, "clients", len(m.clients))
	return true
}

// Liaison 查找客户端联络器
func (m *Manager) Liaison(oid int32) (*Liaison, bool) {
	l, ok := m.clients[oid]
	return l, ok
}

// Clients 当前客户端数量
func (m *Manager) Clients() int { return len(m.clients) }

func (m *Manager) clientIDs() []int32 {
	ids := maps.Keys(m.clients)
	slices.Sort(ids)
	return ids
}

// EnqueueInput 接收客户端输入批次：更新 Ping、确认并排队输入帧
func (m *Manager) EnqueueInput(oid int32, acknowledge, smoothedTime int64, frames []InputFrame) error {
	l, ok := m.clients[oid]
	if !ok {
		m.metrics.IncUnknownClient()
		m.log.Warnw("received input from unknown client", "client", oid)
		return fmt.Errorf("%w: %d", ErrUnknownClient, oid)
	}
	l.enqueueInput(acknowledge, m.Now(), smoothedTime, frames)
	return nil
}

// Tick 推进一次场景：计算 Δt、消费输入、运行模拟、为每个客户端下发增量、清空效果。
// 模拟钩子的非角色级错误在 Tick 完成后合并返回。
func (m *Manager) Tick() (err error) {
	if m.phase != PhaseReady {
		return fmt.Errorf("%w in phase %v", ErrTickReentered, m.phase)
	}
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			m.effects.Clear()
			m.phase = PhaseReady
			panic(r)
		}
	}()

	m.phase = PhaseTicking
	now := m.clock.NowMillis()
	elapsed := now - m.lastTick
	if elapsed < 1 {
		// 场景时间严格递增
		elapsed = 1
	}
	m.timestamp += elapsed
	m.lastTick = now

	for _, oid := range m.clientIDs() {
		l, ok := m.clients[oid]
		if !ok {
			continue
		}
		l.trimIfSilent(now)
		for _, f := range l.inputs.drain(m.timestamp) {
			if m.sim != nil {
				err = multierr.Append(err, m.absorb(m.sim.ApplyInput(m, oid, f)))
			}
		}
	}
	if m.sim != nil {
		err = multierr.Append(err, m.absorb(m.sim.Step(m, elapsed)))
	}
	m.actors.runLogic(elapsed, m.fault)
	m.actors.freeze()

	m.phase = PhasePosting
	for _, oid := range m.clientIDs() {
		m.clients[oid].postDelta()
	}

	m.phase = PhaseClearing
	m.effects.Clear()

	m.phase = PhaseReady
	m.metrics.AddTick(time.Since(start).Nanoseconds())
	return err
}

// absorb 角色级故障在本地吸收，其余错误交给 Tick 级日志
func (m *Manager) absorb(err error) error {
	if err == nil {
		return nil
	}
	var fault *ActorFault
	if errors.As(err, &fault) {
		m.fault(fault)
		return nil
	}
	return err
}

func (m *Manager) fault(f *ActorFault) {
	m.metrics.IncActorFault()
	m.log.Warnw("skipped actor tick after simulation fault", "actor", f.ID, "err", f.Err)
}
