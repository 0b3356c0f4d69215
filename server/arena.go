package server

import (
	"fmt"
	"math"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"tudeyarena/scene"
	"tudeyarena/space"
)

// 演示竞技场的角色与效果类型
const (
	AvatarType  scene.TypeID = 1
	BoltType    scene.TypeID = 2
	BurstEffect scene.TypeID = 1
)

// 输入帧按钮位
const (
	ButtonUp uint32 = 1 << iota
	ButtonDown
	ButtonLeft
	ButtonRight
	ButtonFire
)

// 自定义字段下标（与类型注册顺序一致）
const (
	avatarName = 0
	avatarHP   = 1

	boltOwner = 0
	boltTTL   = 1
	boltVel   = 2
)

const (
	avatarRadius   = 8
	boltRadius     = 2
	burstRadius    = 24
	boltSpeed      = 400 // 单位/秒
	boltLifetimeMs = 1500
	boltDamage     = 10
	fireCooldownMs = 250
	maxHP          = 100
)

// RegisterArenaTypes 注册竞技场使用的角色类型
func RegisterArenaTypes(r *scene.TypeRegistry) error {
	if err := r.Register(scene.ActorType{ID: AvatarType, Name: "avatar", Fields: []scene.FieldSpec{
		{Name: "name", Kind: scene.KindString},
		{Name: "hp", Kind: scene.KindInt},
	}}); err != nil {
		return err
	}
	return r.Register(scene.ActorType{ID: BoltType, Name: "bolt", Fields: []scene.FieldSpec{
		{Name: "owner", Kind: scene.KindInt},
		{Name: "ttl", Kind: scene.KindInt},
		{Name: "vel", Kind: scene.KindVec2},
	}})
}

// Arena 演示模拟：按钮驱动的角色移动、朝瞄准点发射子弹，子弹命中或到期时触发爆炸效果。
// 只在场景线程上调用。
type Arena struct {
	avatars   map[int32]scene.ActorID
	lastFired map[int32]int64
	bolts     map[scene.ActorID]int32 // 子弹 → 发射者
}

func NewArena() *Arena {
	return &Arena{
		avatars:   make(map[int32]scene.ActorID),
		lastFired: make(map[int32]int64),
		bolts:     make(map[scene.ActorID]int32),
	}
}

// Avatar 客户端对应的角色
func (a *Arena) Avatar(client int32) (scene.ActorID, bool) {
	id, ok := a.avatars[client]
	return id, ok
}

// Join 为客户端在世界中心生成角色
func (a *Arena) Join(m *scene.Manager, client int32, name string) (scene.ActorID, error) {
	if id, ok := a.avatars[client]; ok {
		return id, nil
	}
	cfg := m.Config()
	av, err := m.Spawn(AvatarType, scene.Vec2{X: cfg.WorldWidth / 2, Y: cfg.WorldHeight / 2}, 0,
		space.Around(0, 0, avatarRadius, avatarRadius))
	if err != nil {
		return 0, err
	}
	if err := m.Actors().Mutate(av.ID, func(act *scene.Actor) {
		act.SetField(avatarName, scene.String(name))
		act.SetField(avatarHP, scene.Int(maxHP))
	}); err != nil {
		return 0, err
	}
	a.avatars[client] = av.ID
	return av.ID, nil
}

// Leave 移除客户端的角色
func (a *Arena) Leave(m *scene.Manager, client int32) {
	if id, ok := a.avatars[client]; ok {
		m.Despawn(id)
		delete(a.avatars, client)
		delete(a.lastFired, client)
	}
}

// ApplyInput 每帧按按钮移动一步并裁剪到世界边界；按下 Fire 且冷却结束时发射子弹
func (a *Arena) ApplyInput(m *scene.Manager, client int32, f scene.InputFrame) error {
	id, ok := a.avatars[client]
	if !ok {
		return nil
	}
	cfg := m.Config()
	var dx, dy float64
	if f.Buttons&ButtonUp != 0 {
		dy -= cfg.Step
	}
	if f.Buttons&ButtonDown != 0 {
		dy += cfg.Step
	}
	if f.Buttons&ButtonLeft != 0 {
		dx -= cfg.Step
	}
	if f.Buttons&ButtonRight != 0 {
		dx += cfg.Step
	}
	var pos scene.Vec2
	err := m.Actors().Mutate(id, func(act *scene.Actor) {
		act.X = clamp(act.X+dx, 0, cfg.WorldWidth)
		act.Y = clamp(act.Y+dy, 0, cfg.WorldHeight)
		if f.Aim != nil && f.Aim.Finite() {
			if ax, ay := f.Aim.X-act.X, f.Aim.Y-act.Y; ax != 0 || ay != 0 {
				act.Rotation = math.Atan2(ay, ax)
			}
		}
		pos = act.Position()
	})
	if err != nil {
		return err
	}
	if f.Buttons&ButtonFire == 0 || f.Aim == nil || !f.Aim.Finite() {
		return nil
	}
	if last, ok := a.lastFired[client]; ok && f.Timestamp-last < fireCooldownMs {
		return nil
	}
	a.lastFired[client] = f.Timestamp
	return a.fire(m, client, pos, *f.Aim)
}

func (a *Arena) fire(m *scene.Manager, client int32, from, aim scene.Vec2) error {
	dx, dy := aim.X-from.X, aim.Y-from.Y
	dist := math.Hypot(dx, dy)
	if dist == 0 || math.IsInf(dist, 0) || math.IsNaN(dist) {
		return nil
	}
	bolt, err := m.Spawn(BoltType, from, math.Atan2(dy, dx), space.Around(0, 0, boltRadius, boltRadius))
	if err != nil {
		return err
	}
	vel := scene.Vector(dx/dist*boltSpeed, dy/dist*boltSpeed)
	if err := m.Actors().Mutate(bolt.ID, func(act *scene.Actor) {
		act.SetField(boltOwner, scene.Int(int64(client)))
		act.SetField(boltTTL, scene.Int(boltLifetimeMs))
		act.SetField(boltVel, vel)
	}); err != nil {
		return err
	}
	a.bolts[bolt.ID] = client
	return m.Actors().SetLogic(bolt.ID, scene.LogicFunc(moveBolt))
}

// moveBolt 子弹的逐 Tick 逻辑：匀速飞行并递减剩余寿命
func moveBolt(act *scene.Actor, dt int64) error {
	v := act.Field(boltVel).V
	if !v.Finite() {
		return fmt.Errorf("bolt velocity %+v: %w", v, scene.ErrSingularTransform)
	}
	secs := float64(dt) / 1000
	act.X += v.X * secs
	act.Y += v.Y * secs
	act.SetField(boltTTL, scene.Int(act.Field(boltTTL).I-dt))
	return nil
}

// Step 结算子弹：命中其他角色扣血，命中或到期时爆炸并销毁
func (a *Arena) Step(m *scene.Manager, dt int64) error {
	ids := maps.Keys(a.bolts)
	slices.Sort(ids)
	for _, id := range ids {
		owner := a.bolts[id]
		bolt, ok := m.Actors().Actor(id)
		if !ok {
			delete(a.bolts, id)
			continue
		}
		hit := a.hitTest(m, bolt, owner)
		if hit == 0 && bolt.Field(boltTTL).I > 0 {
			continue
		}
		if hit != 0 {
			if err := a.damage(m, hit); err != nil {
				return err
			}
		}
		m.FireEffect(scene.Effect{
			Type:      BurstEffect,
			X:         bolt.X,
			Y:         bolt.Y,
			Influence: space.Around(bolt.X, bolt.Y, burstRadius, burstRadius),
		})
		m.Despawn(id)
		delete(a.bolts, id)
	}
	return nil
}

func (a *Arena) hitTest(m *scene.Manager, bolt *scene.Actor, owner int32) scene.ActorID {
	self := a.avatars[owner]
	r := space.Around(bolt.X, bolt.Y, boltRadius, boltRadius)
	var hit scene.ActorID
	for id, act := range m.ActorsIn(r) {
		if act.Type != AvatarType || id == self {
			continue
		}
		if hit == 0 || id < hit {
			hit = id
		}
	}
	return hit
}

// damage 扣血；生命值耗尽时回到世界中心并回满
func (a *Arena) damage(m *scene.Manager, id scene.ActorID) error {
	cfg := m.Config()
	return m.Actors().Mutate(id, func(act *scene.Actor) {
		hp := act.Field(avatarHP).I - boltDamage
		if hp <= 0 {
			hp = maxHP
			act.X, act.Y = cfg.WorldWidth/2, cfg.WorldHeight/2
		}
		act.SetField(avatarHP, scene.Int(hp))
	})
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
