package scene

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"tudeyarena/config"
	"tudeyarena/space"
)

const pawnType TypeID = 1

type recorder struct {
	deltas []*SceneDelta
	fail   bool
}

func (r *recorder) SendDelta(d *SceneDelta) error {
	if r.fail {
		return ErrSendQueueFull
	}
	r.deltas = append(r.deltas, d)
	return nil
}

func (r *recorder) last() *SceneDelta {
	if len(r.deltas) == 0 {
		return nil
	}
	return r.deltas[len(r.deltas)-1]
}

type testSim struct {
	applied []InputFrame
	step    func(m *Manager, dt int64) error
}

func (s *testSim) ApplyInput(m *Manager, client int32, f InputFrame) error {
	s.applied = append(s.applied, f)
	return nil
}

func (s *testSim) Step(m *Manager, dt int64) error {
	if s.step != nil {
		return s.step(m, dt)
	}
	return nil
}

func newTestManager(t *testing.T, mutate ...func(*config.Scene)) (*Manager, *ManualClock, *testSim) {
	t.Helper()
	cfg := config.DefaultScene()
	for _, fn := range mutate {
		fn(&cfg)
	}
	types := NewTypeRegistry()
	require.NoError(t, types.Register(ActorType{
		ID:     pawnType,
		Name:   "pawn",
		Fields: []FieldSpec{{Name: "hp", Kind: KindInt}},
	}))
	clock := NewManualClock(0)
	sim := &testSim{}
	m := NewManager(Options{
		OID:        9,
		Name:       "test",
		Config:     cfg,
		Clock:      clock,
		Log:        zaptest.NewLogger(t).Sugar(),
		Types:      types,
		Simulation: sim,
	})
	return m, clock, sim
}

func addPawn(t *testing.T, m *Manager, id ActorID, x, y float64) {
	t.Helper()
	a := &Actor{ID: id, Type: pawnType, X: x, Y: y, Fields: []Value{Int(100)}}
	require.NoError(t, m.Actors().Add(a, space.Around(0, 0, 0.5, 0.5)))
}

func join(t *testing.T, m *Manager, oid int32, interest space.Rect) (*recorder, *Liaison) {
	t.Helper()
	rec := &recorder{}
	_, err := m.BodyEntered(oid, rec)
	require.NoError(t, err)
	l, ok := m.Liaison(oid)
	require.True(t, ok)
	l.SetInterest(interest)
	return rec, l
}

func tickAt(t *testing.T, m *Manager, clock *ManualClock, at int64) {
	t.Helper()
	clock.Set(at)
	require.NoError(t, m.Tick())
	require.Equal(t, at, m.Timestamp())
}

func TestBaselineThenFirstUpdate(t *testing.T) {
	m, clock, _ := newTestManager(t)
	addPawn(t, m, 7, 0, 0)
	rec, _ := join(t, m, 1, space.NewRect(-10, -10, 10, 10))

	tickAt(t, m, clock, 1000)
	d := rec.last()
	require.NotNil(t, d)
	assert.Equal(t, int64(0), d.Reference)
	assert.Equal(t, int64(1000), d.Timestamp)
	assert.Equal(t, int32(9), d.SceneOID)
	assert.Equal(t, int32(1), d.TargetOID)
	require.Len(t, d.Added, 1)
	assert.Equal(t, ActorID(7), d.Added[0].ID)
	assert.Equal(t, 0.0, d.Added[0].X)
	assert.Empty(t, d.Updated)
	assert.Empty(t, d.Removed)

	require.NoError(t, m.EnqueueInput(1, 1000, 1000, nil))
	require.NoError(t, m.Actors().Mutate(7, func(a *Actor) { a.X = 1 }))

	tickAt(t, m, clock, 1050)
	d = rec.last()
	assert.Equal(t, int64(1000), d.Reference)
	assert.Equal(t, int64(1050), d.Timestamp)
	assert.Empty(t, d.Added)
	assert.Empty(t, d.Removed)
	require.Len(t, d.Updated, 1)
	assert.Equal(t, ActorID(7), d.Updated[0].ID)
	assert.Equal(t, uint64(1<<FieldPosition), d.Updated[0].Mask)
	assert.Equal(t, []Value{Vector(1, 0)}, d.Updated[0].Values)
}

func TestActorLeavesInterest(t *testing.T) {
	m, clock, _ := newTestManager(t)
	addPawn(t, m, 7, 100, 0)
	rec, l := join(t, m, 1, space.NewRect(90, -10, 110, 10))

	tickAt(t, m, clock, 2000)
	require.Len(t, rec.last().Added, 1)
	require.NoError(t, m.EnqueueInput(1, 2000, 2000, nil))

	l.SetInterest(space.NewRect(-10, -10, 10, 10))
	tickAt(t, m, clock, 2050)
	d := rec.last()
	assert.Equal(t, int64(2000), d.Reference)
	assert.Equal(t, []ActorID{7}, d.Removed)
	assert.Empty(t, d.Added)
	assert.Empty(t, d.Updated)
	assert.Empty(t, d.Effects)
}

func TestEffectCulling(t *testing.T) {
	m, clock, sim := newTestManager(t)
	rec, _ := join(t, m, 1, space.NewRect(-10, -10, 10, 10))
	e1 := Effect{Type: 1, Influence: space.NewRect(0, 0, 5, 5)}
	e2 := Effect{Type: 2, Influence: space.NewRect(200, 200, 205, 205)}
	sim.step = func(m *Manager, dt int64) error {
		m.FireEffect(e1)
		m.FireEffect(e2)
		return nil
	}

	tickAt(t, m, clock, 100)
	d := rec.last()
	require.Len(t, d.Effects, 1)
	assert.Equal(t, TypeID(1), d.Effects[0].Type)
	assert.Equal(t, int64(100), d.Effects[0].Timestamp)

	// 效果只出现在触发当 Tick 的增量中
	sim.step = nil
	tickAt(t, m, clock, 150)
	assert.Empty(t, rec.last().Effects)
	assert.Empty(t, m.EffectsIn(space.NewRect(-1e6, -1e6, 1e6, 1e6)))
}

func TestLostAckPromotesToBaseline(t *testing.T) {
	m, clock, _ := newTestManager(t, func(c *config.Scene) { c.MaxAckAgeTicks = 3 })
	addPawn(t, m, 7, 0, 0)
	rec, l := join(t, m, 1, space.NewRect(-10, -10, 10, 10))

	for _, at := range []int64{500, 800, 900, 950, 1000} {
		tickAt(t, m, clock, at)
	}
	assert.Equal(t, []int64{900, 950, 1000}, l.RetainedSnapshots())

	require.NoError(t, m.EnqueueInput(1, 500, 1000, nil))
	tickAt(t, m, clock, 1050)
	d := rec.last()
	assert.Equal(t, int64(0), d.Reference)
	require.Len(t, d.Added, 1)
	assert.Equal(t, ActorID(7), d.Added[0].ID)
	assert.Empty(t, d.Removed)
	assert.Empty(t, d.Updated)
	assert.Equal(t, int64(1), m.Metrics().AckMisses)

	// 同一个失效确认只记录一次
	tickAt(t, m, clock, 1100)
	assert.Equal(t, int64(0), rec.last().Reference)
	assert.Equal(t, int64(1), m.Metrics().AckMisses)

	// 确认新的基线后恢复差分
	require.NoError(t, m.EnqueueInput(1, 1100, 1100, nil))
	tickAt(t, m, clock, 1150)
	assert.Equal(t, int64(1100), rec.last().Reference)
	assert.Empty(t, rec.last().Added)
}

func TestInputDedupBeforeConsumption(t *testing.T) {
	m, clock, sim := newTestManager(t)
	join(t, m, 1, space.NewRect(-10, -10, 10, 10))

	require.NoError(t, m.EnqueueInput(1, 0, 0, frames(100, 110, 120)))
	require.NoError(t, m.EnqueueInput(1, 0, 0, frames(110, 120, 130)))
	tickAt(t, m, clock, 200)

	assert.Equal(t, []int64{100, 110, 120, 130}, stamps(sim.applied))
	assert.Equal(t, int64(2), m.Metrics().InputsDuplicate)
}

func TestInputDedupAfterConsumption(t *testing.T) {
	m, clock, sim := newTestManager(t)
	rec, l := join(t, m, 1, space.NewRect(-10, -10, 10, 10))

	require.NoError(t, m.EnqueueInput(1, 0, 0, frames(100, 110, 120)))
	tickAt(t, m, clock, 125)
	assert.Equal(t, int64(120), rec.last().Acknowledge)

	require.NoError(t, m.EnqueueInput(1, 0, 125, frames(110, 120, 130)))
	assert.Equal(t, 1, l.PendingInputs())
	tickAt(t, m, clock, 200)

	assert.Equal(t, []int64{100, 110, 120, 130}, stamps(sim.applied))
	assert.Equal(t, int64(130), rec.last().Acknowledge)
}

func TestFramesAppliedOnlyWhenDue(t *testing.T) {
	m, clock, sim := newTestManager(t)
	_, l := join(t, m, 1, space.NewRect(-10, -10, 10, 10))

	require.NoError(t, m.EnqueueInput(1, 0, 0, frames(40, 60, 120)))
	tickAt(t, m, clock, 50)
	assert.Equal(t, []int64{40}, stamps(sim.applied))
	assert.Equal(t, 2, l.PendingInputs())
	tickAt(t, m, clock, 100)
	assert.Equal(t, []int64{40, 60}, stamps(sim.applied))
}

func TestStaleInputDiscarded(t *testing.T) {
	m, clock, sim := newTestManager(t)
	_, first := join(t, m, 1, space.NewRect(-10, -10, 10, 10))
	_, second := join(t, m, 2, space.NewRect(-10, -10, 10, 10))
	tickAt(t, m, clock, 1000)

	require.NoError(t, m.EnqueueInput(1, 0, 1000, frames(700, 760, 1010)))
	require.NoError(t, m.EnqueueInput(2, 0, 1000, frames(100, 200, 740)))
	assert.Equal(t, int64(1), first.StaleInputs())
	assert.Equal(t, int64(3), second.StaleInputs())
	assert.Equal(t, int64(4), m.Metrics().InputsStale)
	tickAt(t, m, clock, 1050)
	assert.Equal(t, []int64{760, 1010}, stamps(sim.applied))
}

func TestUnknownClientInput(t *testing.T) {
	m, _, _ := newTestManager(t)
	err := m.EnqueueInput(42, 0, 0, frames(10))
	assert.ErrorIs(t, err, ErrUnknownClient)
	assert.Equal(t, int64(1), m.Metrics().UnknownClient)
}

func TestPingSmoothing(t *testing.T) {
	m, clock, _ := newTestManager(t)
	_, l := join(t, m, 1, space.NewRect(-10, -10, 10, 10))
	tickAt(t, m, clock, 1000)

	clock.Set(1020)
	require.NoError(t, m.EnqueueInput(1, 0, 920, nil)) // 样本 100
	assert.Equal(t, int32(100), l.Ping())

	require.NoError(t, m.EnqueueInput(1, 0, 1020, nil)) // 样本 0
	assert.Equal(t, int32(90), l.Ping())
}

func TestPingIgnoresUnsetClientTime(t *testing.T) {
	m, clock, _ := newTestManager(t)
	_, l := join(t, m, 1, space.NewRect(-10, -10, 10, 10))
	tickAt(t, m, clock, 5000)

	require.NoError(t, m.EnqueueInput(1, 0, 0, frames(5010)))
	assert.Zero(t, l.Ping())
	assert.Equal(t, 1, l.PendingInputs())

	clock.Set(5040)
	require.NoError(t, m.EnqueueInput(1, 0, 5000, nil))
	assert.Equal(t, int32(40), l.Ping())
}

func TestAckBeyondLastSentIsClamped(t *testing.T) {
	m, clock, _ := newTestManager(t)
	addPawn(t, m, 7, 0, 0)
	rec, l := join(t, m, 1, space.NewRect(-10, -10, 10, 10))
	tickAt(t, m, clock, 100)

	require.NoError(t, m.EnqueueInput(1, 10_000, 100, nil))
	assert.Equal(t, int64(100), l.LastAck())

	require.NoError(t, m.Actors().Mutate(7, func(a *Actor) { a.X = 1 }))
	tickAt(t, m, clock, 150)
	d := rec.last()
	assert.Equal(t, int64(100), d.Reference)
	assert.Empty(t, d.Added)
	assert.Len(t, d.Updated, 1)
	assert.Equal(t, []int64{100, 150}, l.RetainedSnapshots())
}

func TestAckIsMonotone(t *testing.T) {
	m, clock, _ := newTestManager(t)
	_, l := join(t, m, 1, space.NewRect(-10, -10, 10, 10))
	tickAt(t, m, clock, 100)
	tickAt(t, m, clock, 150)

	require.NoError(t, m.EnqueueInput(1, 150, 150, nil))
	require.NoError(t, m.EnqueueInput(1, 100, 150, nil))
	assert.Equal(t, int64(150), l.LastAck())
}

func TestDeltaMonotonicity(t *testing.T) {
	m, clock, _ := newTestManager(t, func(c *config.Scene) { c.MaxAckAgeTicks = 4 })
	addPawn(t, m, 7, 0, 0)
	rec, _ := join(t, m, 1, space.NewRect(-10, -10, 10, 10))

	at := int64(0)
	for i := 0; i < 40; i++ {
		at += 50
		require.NoError(t, m.Actors().Mutate(7, func(a *Actor) { a.Rotation += 0.1 }))
		tickAt(t, m, clock, at)
		// 每隔几个 Tick 才确认一次，偶尔确认很旧的增量
		switch {
		case i%7 == 3:
			require.NoError(t, m.EnqueueInput(1, rec.deltas[0].Timestamp, at, nil))
		case i%3 == 0:
			require.NoError(t, m.EnqueueInput(1, rec.last().Timestamp, at, nil))
		}
	}
	for i := 1; i < len(rec.deltas); i++ {
		prev, cur := rec.deltas[i-1], rec.deltas[i]
		assert.LessOrEqual(t, cur.Reference, prev.Timestamp)
		assert.Greater(t, cur.Timestamp, prev.Timestamp)
	}
}

func TestSceneTimeStrictlyIncreasing(t *testing.T) {
	m, clock, _ := newTestManager(t)
	clock.Set(100)
	require.NoError(t, m.Tick())
	first := m.Timestamp()
	require.NoError(t, m.Tick())
	assert.Greater(t, m.Timestamp(), first)
}

func TestMissedTicksWidenDelta(t *testing.T) {
	m, clock, sim := newTestManager(t)
	var steps []int64
	sim.step = func(m *Manager, dt int64) error {
		steps = append(steps, dt)
		return nil
	}
	tickAt(t, m, clock, 50)
	tickAt(t, m, clock, 230)
	assert.Equal(t, []int64{50, 180}, steps)
}

func TestBornAndDiedInWindowOnlyEffect(t *testing.T) {
	m, clock, sim := newTestManager(t)
	rec, _ := join(t, m, 1, space.NewRect(-10, -10, 10, 10))
	sim.step = func(m *Manager, dt int64) error {
		a, err := m.Spawn(pawnType, Vec2{X: 1, Y: 1}, 0, space.Around(0, 0, 1, 1))
		if err != nil {
			return err
		}
		m.FireEffect(Effect{Type: 3, X: a.X, Y: a.Y, Influence: space.Around(a.X, a.Y, 2, 2)})
		m.Despawn(a.ID)
		return nil
	}
	tickAt(t, m, clock, 50)
	d := rec.last()
	assert.Empty(t, d.Added)
	assert.Empty(t, d.Removed)
	require.Len(t, d.Effects, 1)
	assert.Equal(t, TypeID(3), d.Effects[0].Type)
}

func TestOutAndBackInIsOnlyUpdate(t *testing.T) {
	m, clock, _ := newTestManager(t)
	addPawn(t, m, 7, 0, 0)
	rec, _ := join(t, m, 1, space.NewRect(-10, -10, 10, 10))

	tickAt(t, m, clock, 50)
	require.NoError(t, m.EnqueueInput(1, 50, 50, nil))

	require.NoError(t, m.Actors().Mutate(7, func(a *Actor) { a.X = 500 }))
	tickAt(t, m, clock, 100)
	assert.Equal(t, []ActorID{7}, rec.last().Removed)

	// 未确认 100，基准仍为 50，角色回到兴趣区
	require.NoError(t, m.Actors().Mutate(7, func(a *Actor) { a.X = 2 }))
	tickAt(t, m, clock, 150)
	d := rec.last()
	assert.Equal(t, int64(50), d.Reference)
	assert.Empty(t, d.Added)
	assert.Empty(t, d.Removed)
	require.Len(t, d.Updated, 1)
	assert.Equal(t, []Value{Vector(2, 0)}, d.Updated[0].Values)
}

func TestCrossedStateReportedAsRemoved(t *testing.T) {
	a := &Actor{ID: 7, Type: pawnType}
	b := &Actor{ID: 8, Type: pawnType}
	now := interestSet{7: nil, 8: b}
	ref := interestSet{7: a, 8: b}
	d := encodeDelta(now, ref, nil)
	assert.Equal(t, []ActorID{7}, d.Removed)
	assert.Empty(t, d.Updated)
	assert.Empty(t, d.Added)

	// 从未下发过的失效条目直接忽略
	d = encodeDelta(interestSet{9: nil}, nil, nil)
	assert.Empty(t, d.Added)
	assert.Empty(t, d.Removed)
}

func TestInterestSetDeterminism(t *testing.T) {
	m, clock, _ := newTestManager(t)
	for i := 1; i <= 20; i++ {
		addPawn(t, m, ActorID(i), float64(i*3-30), float64(i%5))
	}
	tickAt(t, m, clock, 50)
	ref := m.interestSet(space.NewRect(-20, -20, 5, 20))
	for i := 1; i <= 20; i += 2 {
		require.NoError(t, m.Actors().Mutate(ActorID(i), func(a *Actor) { a.X += 4 }))
	}
	tickAt(t, m, clock, 100)

	rect := space.NewRect(-10, -10, 10, 10)
	d1 := encodeDelta(m.interestSet(rect), ref, nil)
	d2 := encodeDelta(m.interestSet(rect), ref, nil)
	assert.Equal(t, ids(d1.Added), ids(d2.Added))
	assert.Equal(t, d1.Removed, d2.Removed)
	assert.Equal(t, d1.Updated, d2.Updated)
}

func TestTransportFailureCarriesForward(t *testing.T) {
	m, clock, _ := newTestManager(t)
	addPawn(t, m, 7, 0, 0)
	rec, _ := join(t, m, 1, space.NewRect(-10, -10, 10, 10))
	tickAt(t, m, clock, 50)
	require.NoError(t, m.EnqueueInput(1, 50, 50, nil))

	rec.fail = true
	require.NoError(t, m.Actors().Mutate(7, func(a *Actor) { a.Y = 3 }))
	tickAt(t, m, clock, 100)
	assert.Equal(t, int64(1), m.Metrics().SendFailures)

	rec.fail = false
	tickAt(t, m, clock, 150)
	d := rec.last()
	assert.Equal(t, int64(50), d.Reference)
	require.Len(t, d.Updated, 1)
	assert.Equal(t, []Value{Vector(0, 3)}, d.Updated[0].Values)
}

func TestTickReentryRejected(t *testing.T) {
	m, clock, sim := newTestManager(t)
	sim.step = func(m *Manager, dt int64) error {
		return m.Tick()
	}
	clock.Set(50)
	err := m.Tick()
	assert.ErrorIs(t, err, ErrTickReentered)
	assert.Equal(t, PhaseReady, m.Phase())
}

func TestSimulationErrorsSurfaceAfterPosting(t *testing.T) {
	m, clock, sim := newTestManager(t)
	rec, _ := join(t, m, 1, space.NewRect(-10, -10, 10, 10))
	boom := errors.New("boom")
	sim.step = func(m *Manager, dt int64) error { return boom }

	clock.Set(50)
	err := m.Tick()
	assert.ErrorIs(t, err, boom)
	assert.Len(t, rec.deltas, 1)
}

func TestActorFaultSkipsOnlyThatActor(t *testing.T) {
	m, clock, sim := newTestManager(t)
	addPawn(t, m, 7, 0, 0)
	addPawn(t, m, 8, 0, 0)
	rec, _ := join(t, m, 1, space.NewRect(-10, -10, 10, 10))

	require.NoError(t, m.Actors().SetLogic(7, LogicFunc(func(a *Actor, dt int64) error {
		a.X = 9
		return fmt.Errorf("invert: %w", ErrSingularTransform)
	})))
	require.NoError(t, m.Actors().SetLogic(8, LogicFunc(func(a *Actor, dt int64) error {
		a.X += 1
		return nil
	})))
	sim.step = func(m *Manager, dt int64) error {
		return &ActorFault{ID: 8, Err: ErrSingularTransform}
	}

	tickAt(t, m, clock, 50)
	a7, _ := m.Actors().Actor(7)
	a8, _ := m.Actors().Actor(8)
	assert.Equal(t, 0.0, a7.X)
	assert.Equal(t, 1.0, a8.X)
	assert.Equal(t, int64(2), m.Metrics().ActorFaults)
	assert.Len(t, rec.last().Added, 2)
}

func TestRepeatedFaultsRemoveActor(t *testing.T) {
	m, clock, _ := newTestManager(t)
	addPawn(t, m, 7, 0, 0)
	addPawn(t, m, 8, 0, 0)
	rec, _ := join(t, m, 1, space.NewRect(-10, -10, 10, 10))

	fail := true
	require.NoError(t, m.Actors().SetLogic(7, LogicFunc(func(a *Actor, dt int64) error {
		if fail {
			return ErrSingularTransform
		}
		return nil
	})))
	require.NoError(t, m.Actors().SetLogic(8, LogicFunc(func(a *Actor, dt int64) error {
		return ErrSingularTransform
	})))

	at := int64(0)
	step := func() {
		at += 50
		tickAt(t, m, clock, at)
		require.NoError(t, m.EnqueueInput(1, at, at, nil))
	}
	for i := 0; i < MaxConsecutiveFaults-1; i++ {
		step()
	}
	// 一次成功清零计数
	fail = false
	step()
	_, ok := m.Actors().Actor(7)
	assert.True(t, ok)
	_, ok = m.Actors().Actor(8)
	assert.False(t, ok)
	assert.Equal(t, 1, m.Space().Size())
	assert.Equal(t, []ActorID{8}, rec.last().Removed)

	fail = true
	for i := 0; i < MaxConsecutiveFaults-1; i++ {
		step()
	}
	_, ok = m.Actors().Actor(7)
	assert.True(t, ok)
	step()
	_, ok = m.Actors().Actor(7)
	assert.False(t, ok)
}

func TestSilentClientInputTrimmed(t *testing.T) {
	m, clock, _ := newTestManager(t)
	_, l := join(t, m, 1, space.NewRect(-10, -10, 10, 10))
	require.NoError(t, m.EnqueueInput(1, 0, 0, frames(60_000)))
	tickAt(t, m, clock, 50)
	assert.Equal(t, 1, l.PendingInputs())

	tickAt(t, m, clock, 10_100)
	assert.Equal(t, 0, l.PendingInputs())
	assert.Equal(t, int64(1), m.Metrics().InputsTrimmed)
}

func TestSubscriptionCancel(t *testing.T) {
	m, clock, _ := newTestManager(t)
	rec := &recorder{}
	sub, err := m.BodyEntered(1, rec)
	require.NoError(t, err)
	_, err = m.BodyEntered(1, rec)
	assert.ErrorIs(t, err, ErrDuplicateClient)

	sub.Cancel()
	sub.Cancel()
	assert.Equal(t, 0, m.Clients())
	tickAt(t, m, clock, 50)
	assert.Empty(t, rec.deltas)
	assert.ErrorIs(t, m.EnqueueInput(1, 0, 0, nil), ErrUnknownClient)
}

func TestCameraFollowsTarget(t *testing.T) {
	m, clock, _ := newTestManager(t, func(c *config.Scene) {
		c.InterestHalfWidth = 10
		c.InterestHalfHeight = 10
	})
	addPawn(t, m, 7, 0, 0)
	addPawn(t, m, 8, 100, 0)
	rec, l := join(t, m, 1, space.NewRect(0, 0, 0, 0))
	l.SetTarget(7)

	tickAt(t, m, clock, 50)
	assert.Equal(t, []ActorID{7}, ids(rec.last().Added))
	require.NoError(t, m.EnqueueInput(1, 50, 50, nil))

	require.NoError(t, m.Actors().Mutate(7, func(a *Actor) { a.X = 95 }))
	tickAt(t, m, clock, 100)
	d := rec.last()
	assert.Equal(t, []ActorID{8}, ids(d.Added))
	assert.Equal(t, space.Around(95, 0, 10, 10), l.Interest())
}

func TestSpatialIndexTracksActorPopulation(t *testing.T) {
	m, clock, sim := newTestManager(t)
	sim.step = func(m *Manager, dt int64) error {
		for i := 0; i < 3; i++ {
			if _, err := m.Spawn(pawnType, Vec2{X: float64(i * 40)}, 0, space.Around(0, 0, 8, 8)); err != nil {
				return err
			}
		}
		ids := m.Actors().IDs()
		m.Despawn(ids[0])
		return nil
	}
	for i := 1; i <= 5; i++ {
		tickAt(t, m, clock, int64(i*50))
		assert.Equal(t, m.Actors().Len(), m.Space().Size())
	}
	assert.Equal(t, 10, m.Actors().Len())
	assert.False(t, m.Despawn(1))
}

func TestSetConfigKeepsGrid(t *testing.T) {
	m, _, _ := newTestManager(t)
	cfg := m.Config()
	cfg.MaxRewindMs = 100
	cfg.GridCell = 8
	require.NoError(t, m.SetConfig(cfg))
	assert.Equal(t, int64(100), m.Config().MaxRewindMs)
	assert.Equal(t, 64.0, m.Config().GridCell)

	cfg.PingEWMAAlpha = 0
	assert.Error(t, m.SetConfig(cfg))
}

func frames(ts ...int64) []InputFrame {
	out := make([]InputFrame, len(ts))
	for i, t := range ts {
		out[i] = InputFrame{Timestamp: t, Buttons: uint32(i)}
	}
	return out
}

func stamps(fs []InputFrame) []int64 {
	out := make([]int64, len(fs))
	for i, f := range fs {
		out[i] = f.Timestamp
	}
	return out
}

func ids(actors []*Actor) []ActorID {
	out := make([]ActorID, len(actors))
	for i, a := range actors {
		out[i] = a.ID
	}
	return out
}
