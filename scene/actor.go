package scene

import (
	"fmt"
	"math"
	"math/bits"
)

// ActorID 场景生命周期内唯一、永不复用的角色标识
type ActorID int64

// TypeID 角色类型判别值
type TypeID int32

// Vec2 二维向量
type Vec2 struct {
	X float64 `json:"x" msgpack:"x"`
	Y float64 `json:"y" msgpack:"y"`
}

// Finite 两个分量都不是 NaN 或无穷
func (v Vec2) Finite() bool {
	return !math.IsNaN(v.X) && !math.IsNaN(v.Y) && !math.IsInf(v.X, 0) && !math.IsInf(v.Y, 0)
}

// FieldKind 可复制字段的值类型
type FieldKind uint8

const (
	KindBool FieldKind = iota + 1
	KindInt
	KindFloat
	KindString
	KindVec2
)

func (k FieldKind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindVec2:
		return "vec2"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value 字段值（按 Kind 区分的联合体）
type Value struct {
	Kind FieldKind `json:"k" msgpack:"k"`
	B    bool      `json:"b,omitempty" msgpack:"b,omitempty"`
	I    int64     `json:"i,omitempty" msgpack:"i,omitempty"`
	F    float64   `json:"f,omitempty" msgpack:"f,omitempty"`
	S    string    `json:"s,omitempty" msgpack:"s,omitempty"`
	V    Vec2      `json:"v,omitempty" msgpack:"v,omitempty"`
}

func Bool(b bool) Value         { return Value{Kind: KindBool, B: b} }
func Int(i int64) Value         { return Value{Kind: KindInt, I: i} }
func Float(f float64) Value     { return Value{Kind: KindFloat, F: f} }
func String(s string) Value     { return Value{Kind: KindString, S: s} }
func Vector(x, y float64) Value { return Value{Kind: KindVec2, V: Vec2{X: x, Y: y}} }

// Equal 只比较 Kind 对应的分量
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindBool:
		return v.B == o.B
	case KindInt:
		return v.I == o.I
	case KindFloat:
		return v.F == o.F
	case KindString:
		return v.S == o.S
	case KindVec2:
		return v.V == o.V
	}
	return true
}

// 位置与旋转固定占据字段表的前两位
const (
	FieldPosition = 0
	FieldRotation = 1
	builtinFields = 2

	// MaxCustomFields 位掩码为 uint64
	MaxCustomFields = 64 - builtinFields
)

// FieldSpec 可复制字段声明
type FieldSpec struct {
	Name string
	Kind FieldKind
}

// ActorType 每种角色类型声明的有序字段表，复制、比较、差分都依赖它
type ActorType struct {
	ID     TypeID
	Name   string
	Fields []FieldSpec
}

// Zero 按字段表生成默认字段值
func (t *ActorType) Zero() []Value {
	out := make([]Value, len(t.Fields))
	for i, f := range t.Fields {
		out[i] = Value{Kind: f.Kind}
	}
	return out
}

// FieldIndex 按名称查找字段下标
func (t *ActorType) FieldIndex(name string) (int, bool) {
	for i, f := range t.Fields {
		if f.Name == name {
			return i, true
		}
	}
	return -1, false
}

// TypeRegistry 角色类型表
type TypeRegistry struct {
	types map[TypeID]*ActorType
}

func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{types: make(map[TypeID]*ActorType)}
}

// Register 注册角色类型；重复 ID 或字段过多时报错
func (r *TypeRegistry) Register(t ActorType) error {
	if _, ok := r.types[t.ID]; ok {
		return fmt.Errorf("actor type %d (%s) already registered", t.ID, t.Name)
	}
	if len(t.Fields) > MaxCustomFields {
		return fmt.Errorf("actor type %s declares %d fields, limit is %d", t.Name, len(t.Fields), MaxCustomFields)
	}
	for _, f := range t.Fields {
		if f.Kind < KindBool || f.Kind > KindVec2 {
			return fmt.Errorf("actor type %s field %s: invalid kind %v", t.Name, f.Name, f.Kind)
		}
	}
	fields := append([]FieldSpec(nil), t.Fields...)
	r.types[t.ID] = &ActorType{ID: t.ID, Name: t.Name, Fields: fields}
	return nil
}

// Lookup 按 ID 查找类型
func (r *TypeRegistry) Lookup(id TypeID) (*ActorType, error) {
	t, ok := r.types[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, id)
	}
	return t, nil
}

// Actor 可复制的动态状态单元
type Actor struct {
	_msgpack struct{} `msgpack:",as_array"`

	ID       ActorID `json:"id"`
	Type     TypeID  `json:"type"`
	Created  int64   `json:"created"` // 出生时的场景时间戳
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Rotation float64 `json:"rotation"`
	Fields   []Value `json:"fields,omitempty"`
}

// Clone 深拷贝（字段切片独立）
func (a *Actor) Clone() *Actor {
	c := *a
	if a.Fields != nil {
		c.Fields = append([]Value(nil), a.Fields...)
	}
	return &c
}

// Position 当前位置
func (a *Actor) Position() Vec2 { return Vec2{X: a.X, Y: a.Y} }

// Field 读取自定义字段，越界返回零值
func (a *Actor) Field(i int) Value {
	if i < 0 || i >= len(a.Fields) {
		return Value{}
	}
	return a.Fields[i]
}

// SetField 写入自定义字段
func (a *Actor) SetField(i int, v Value) {
	if i < 0 {
		return
	}
	for len(a.Fields) <= i {
		a.Fields = append(a.Fields, Value{})
	}
	a.Fields[i] = v
}

// ActorDelta 稀疏字段差分：Mask 的第 i 位表示第 i 个字段变化，
// Values 按位序稠密排列新值（位 0 位置、位 1 旋转、其余为自定义字段）
type ActorDelta struct {
	_msgpack struct{} `msgpack:",as_array"`

	ID     ActorID `json:"id"`
	Mask   uint64  `json:"mask"`
	Values []Value `json:"values"`
}

// Empty 是否无任何字段变化
func (d ActorDelta) Empty() bool { return d.Mask == 0 }

// Diff 计算 cur 相对 ref 的差分
func Diff(ref, cur *Actor) ActorDelta {
	d := ActorDelta{ID: cur.ID}
	if ref.X != cur.X || ref.Y != cur.Y {
		d.Mask |= 1 << FieldPosition
		d.Values = append(d.Values, Vector(cur.X, cur.Y))
	}
	if ref.Rotation != cur.Rotation {
		d.Mask |= 1 << FieldRotation
		d.Values = append(d.Values, Float(cur.Rotation))
	}
	for i, v := range cur.Fields {
		if i < len(ref.Fields) && ref.Fields[i].Equal(v) {
			continue
		}
		d.Mask |= 1 << uint(i+builtinFields)
		d.Values = append(d.Values, v)
	}
	return d
}

// Apply 将差分应用到 a（原地修改）
func (d ActorDelta) Apply(a *Actor) error {
	if n := bits.OnesCount64(d.Mask); n != len(d.Values) {
		return fmt.Errorf("actor %d delta: mask has %d bits but %d values", d.ID, n, len(d.Values))
	}
	next := 0
	for mask := d.Mask; mask != 0; mask &= mask - 1 {
		bit := bits.TrailingZeros64(mask)
		v := d.Values[next]
		next++
		switch bit {
		case FieldPosition:
			if v.Kind != KindVec2 {
				return fmt.Errorf("actor %d delta: position has kind %v", d.ID, v.Kind)
			}
			a.X, a.Y = v.V.X, v.V.Y
		case FieldRotation:
			if v.Kind != KindFloat {
				return fmt.Errorf("actor %d delta: rotation has kind %v", d.ID, v.Kind)
			}
			a.Rotation = v.F
		default:
			a.SetField(bit-builtinFields, v)
		}
	}
	return nil
}
