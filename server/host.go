package server

import (
	"errors"
	"io"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"tudeyarena/config"
	"tudeyarena/scene"
	"tudeyarena/space"
	"tudeyarena/wire"
)

// Host 一个运行中的场景：场景管理器 + 场景线程 + 竞技场模拟。
// 网络协程只通过 Post/TryPost/Call 与场景交互，场景状态只在场景线程上修改。
type Host struct {
	name  string
	mgr   *scene.Manager
	sched *scene.Scheduler
	arena *Arena
	log   *zap.SugaredLogger

	// 以下字段只在场景线程访问
	nextClient int32
	subs       map[int32]*scene.Subscription
	sinks      map[int32]scene.Sink
}

// NewHost 创建场景（尚未开始 Tick）
func NewHost(oid int32, name string, cfg config.Scene, log *zap.SugaredLogger) (*Host, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	types := scene.NewTypeRegistry()
	if err := RegisterArenaTypes(types); err != nil {
		return nil, err
	}
	arena := NewArena()
	mgr := scene.NewManager(scene.Options{
		OID:        oid,
		Name:       name,
		Config:     cfg,
		Log:        log,
		Types:      types,
		Simulation: arena,
	})
	h := &Host{
		name:  name,
		mgr:   mgr,
		arena: arena,
		log:   mgr.Log(),
		subs:  make(map[int32]*scene.Subscription),
		sinks: make(map[int32]scene.Sink),
	}
	h.sched = scene.NewScheduler(cfg.TickInterval(), 1024, mgr.Tick, h.log)
	return h, nil
}

func (h *Host) Name() string            { return h.name }
func (h *Host) OID() int32              { return h.mgr.OID() }
func (h *Host) Metrics() *scene.Metrics { return h.mgr.Metrics() }
func (h *Host) Done() <-chan struct{}   { return h.sched.Done() }
func (h *Host) Start()                  { h.sched.Start() }

// Join 客户端进入场景：创建联络器、生成角色并把摄像机绑定到该角色
func (h *Host) Join(player string, sink scene.Sink) (int32, error) {
	var oid int32
	var err error
	if cerr := h.sched.Call(func() {
		h.nextClient++
		oid = h.nextClient
		var sub *scene.Subscription
		if sub, err = h.mgr.BodyEntered(oid, sink); err != nil {
			return
		}
		var avatar scene.ActorID
		if avatar, err = h.arena.Join(h.mgr, oid, player); err != nil {
			sub.Cancel()
			return
		}
		if l, ok := h.mgr.Liaison(oid); ok {
			l.SetTarget(avatar)
		}
		h.subs[oid] = sub
		h.sinks[oid] = sink
		h.log.Infow("player joined", "client", oid, "player", player, "avatar", avatar)
	}); cerr != nil {
		return 0, cerr
	}
	return oid, err
}

// RequestLeave 请求在场景线程中移除客户端
func (h *Host) RequestLeave(oid int32) {
	err := h.sched.Post(func() {
		sub, ok := h.subs[oid]
		if !ok {
			return
		}
		sub.Cancel()
		h.arena.Leave(h.mgr, oid)
		delete(h.subs, oid)
		delete(h.sinks, oid)
	})
	if err != nil {
		h.log.Debugw("leave after scene stopped", "client", oid)
	}
}

// OnInput 入站输入批次；场景线程拥塞时丢弃，客户端会在下一批次重发未确认的帧
func (h *Host) OnInput(oid int32, b *scene.InputFrameBatch) {
	err := h.sched.TryPost(func() {
		_ = h.mgr.EnqueueInput(oid, b.Acknowledge, b.SmoothedTime, b.Frames)
	})
	if errors.Is(err, scene.ErrTaskQueueFull) {
		h.mgr.Metrics().IncQueueDiscarded()
		h.log.Warnw("scene task queue full; input batch dropped", "client", oid)
	}
}

// OnInterest 客户端显式设置兴趣区域
func (h *Host) OnInterest(oid int32, r space.Rect) {
	_ = h.sched.TryPost(func() {
		if l, ok := h.mgr.Liaison(oid); ok {
			l.SetInterest(r)
		}
	})
}

// OnMessage 分发一条已解码的上行消息
func (h *Host) OnMessage(oid int32, m *wire.ClientMessage) {
	switch m.Kind {
	case wire.KindInput:
		h.OnInput(oid, m.Batch)
	case wire.KindInterest:
		h.OnInterest(oid, *m.Interest)
	}
}

// Status 场景线程上读取的概要信息
type Status struct {
	Scene     string `json:"scene"`
	OID       int32  `json:"oid"`
	Timestamp int64  `json:"timestamp"`
	Clients   int    `json:"clients"`
	Actors    int    `json:"actors"`
}

func (h *Host) Status() (Status, error) {
	var st Status
	err := h.sched.Call(func() {
		st = Status{
			Scene:     h.name,
			OID:       h.mgr.OID(),
			Timestamp: h.mgr.Timestamp(),
			Clients:   h.mgr.Clients(),
			Actors:    h.mgr.Actors().Len(),
		}
	})
	return st, err
}

// Config 当前场景参数
func (h *Host) Config() (config.Scene, error) {
	var cfg config.Scene
	err := h.sched.Call(func() { cfg = h.mgr.Config() })
	return cfg, err
}

// UpdateConfig 在场景线程上修改参数。网格与 Tick 间隔在创建时固定。
func (h *Host) UpdateConfig(update func(*config.Scene)) (config.Scene, error) {
	var out config.Scene
	var err error
	if cerr := h.sched.Call(func() {
		cfg := h.mgr.Config()
		update(&cfg)
		if cfg.TickIntervalMs != h.mgr.Config().TickIntervalMs {
			h.log.Warnw("tick interval is fixed at creation; ignoring change", "requested", cfg.TickIntervalMs)
			cfg.TickIntervalMs = h.mgr.Config().TickIntervalMs
		}
		err = h.mgr.SetConfig(cfg)
		out = h.mgr.Config()
	}); cerr != nil {
		return out, cerr
	}
	return out, err
}

// Close 关闭所有客户端连接并停止场景线程
func (h *Host) Close() error {
	var err error
	// 未启动的场景也需要在场景线程上完成清理
	h.sched.Start()
	cerr := h.sched.Call(func() {
		for oid, sink := range h.sinks {
			if c, ok := sink.(io.Closer); ok {
				err = multierr.Append(err, c.Close())
			}
			h.subs[oid].Cancel()
		}
		h.subs = make(map[int32]*scene.Subscription)
		h.sinks = make(map[int32]scene.Sink)
	})
	if errors.Is(cerr, scene.ErrSchedulerStopped) {
		cerr = nil
	}
	h.sched.Stop()
	h.log.Infow("scene closed", "ticks", h.mgr.Metrics().TickCount)
	return multierr.Append(err, cerr)
}
