package scene

import (
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// SceneDelta 发给单个客户端的场景增量。线上按字段顺序编码为数组，
// TargetOID 只用于服务端路由，不上线。
type SceneDelta struct {
	_msgpack struct{} `msgpack:",as_array"`

	TargetOID   int32        `json:"-" msgpack:"-"`
	SceneOID    int32        `json:"sceneOid"`
	Acknowledge int64        `json:"acknowledge"` // 服务端已消费的最新输入帧时间戳
	Ping        int32        `json:"ping"`        // 毫秒
	Reference   int64        `json:"reference"`   // 差分基准时间戳，0 表示完整基线
	Timestamp   int64        `json:"timestamp"`
	Added       []*Actor     `json:"added"`
	Updated     []ActorDelta `json:"updated"`
	Removed     []ActorID    `json:"removed"`
	Effects     []Effect     `json:"effects"`
}

// IsBaseline 是否为完整基线
func (d *SceneDelta) IsBaseline() bool { return d.Reference == 0 }

// interestSet 某一时刻客户端应持有的角色：ID → 冻结快照。
// 值为 nil 表示索引命中但权威记录已不存在。
type interestSet map[ActorID]*Actor

// encodeDelta 计算 now 相对 ref 的增量内容（不填头部）。ref 为 nil 时按空集处理。
// 输出的 ID 均按升序排列，便于确定性比较。
func encodeDelta(now, ref interestSet, effects []Effect) *SceneDelta {
	d := &SceneDelta{Effects: effects}

	ids := maps.Keys(now)
	slices.Sort(ids)
	for _, id := range ids {
		cur := now[id]
		prev, known := ref[id]
		switch {
		case !known:
			// 同一窗口内出生又销毁的角色不会出现在 now 中，只有其效果会下发
			if cur != nil {
				d.Added = append(d.Added, cur)
			}
		case cur == nil:
			// 交错到达的状态：客户端持有而权威记录已消失
			d.Removed = append(d.Removed, id)
		case prev != cur:
			if delta := Diff(prev, cur); !delta.Empty() {
				d.Updated = append(d.Updated, delta)
			}
		}
	}

	gone := make([]ActorID, 0)
	for id := range ref {
		if _, ok := now[id]; !ok {
			gone = append(gone, id)
		}
	}
	slices.Sort(gone)
	d.Removed = append(d.Removed, gone...)
	slices.Sort(d.Removed)
	return d
}
