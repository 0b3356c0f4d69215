package scene

import "tudeyarena/space"

// Effect 瞬时的世界事件（爆炸、命中火花等），只出现在触发当 Tick 的增量中
type Effect struct {
	_msgpack struct{} `msgpack:",as_array"`

	Type      TypeID     `json:"type"`
	Timestamp int64      `json:"timestamp"`
	X         float64    `json:"x"`
	Y         float64    `json:"y"`
	Influence space.Rect `json:"influence"` // 用于兴趣裁剪的世界坐标矩形
	Payload   []byte     `json:"payload,omitempty"`
}

// EffectQueue 本 Tick 已触发的效果列表，Tick 结束时清空
type EffectQueue struct {
	fired []Effect
}

// Fire 追加效果
func (q *EffectQueue) Fire(e Effect) {
	q.fired = append(q.fired, e)
}

// Len 本 Tick 已触发的数量
func (q *EffectQueue) Len() int { return len(q.fired) }

// Intersecting 返回影响力矩形与 rect 相交的效果（按触发顺序）
func (q *EffectQueue) Intersecting(rect space.Rect) []Effect {
	var out []Effect
	for _, e := range q.fired {
		if e.Influence.Intersects(rect) {
			out = append(out, e)
		}
	}
	return out
}

// Clear 清空队列（保留底层数组）
func (q *EffectQueue) Clear() {
	for i := range q.fired {
		q.fired[i].Payload = nil
	}
	q.fired = q.fired[:0]
}
