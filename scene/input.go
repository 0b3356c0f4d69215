package scene

import "golang.org/x/exp/slices"

// InputFrame 客户端在某一时刻的操作采样。Timestamp 为客户端估计的服务端时间。
type InputFrame struct {
	_msgpack struct{} `msgpack:",as_array"`

	Timestamp int64  `json:"timestamp"`
	Buttons   uint32 `json:"buttons"`        // 方向/动作位掩码
	Aim       *Vec2  `json:"aim,omitempty"` // 可选瞄准点
}

// InputFrameBatch 客户端上行：确认时间戳 + 平滑时间 + 输入帧
type InputFrameBatch struct {
	_msgpack struct{} `msgpack:",as_array"`

	Acknowledge  int64        `json:"acknowledge"`
	SmoothedTime int64        `json:"smoothedTime"`
	Frames       []InputFrame `json:"frames"`
}

// inputQueue 按时间戳有序、去重的待消费输入
type inputQueue struct {
	frames   []InputFrame
	consumed int64 // 最近一次被消费的帧时间戳
	limit    int
}

// insert 插入一帧；已消费或重复的帧返回 false
func (q *inputQueue) insert(f InputFrame) bool {
	if f.Timestamp <= q.consumed {
		return false
	}
	i, found := slices.BinarySearchFunc(q.frames, f.Timestamp, cmpFrame)
	if found {
		return false
	}
	q.frames = append(q.frames, InputFrame{})
	copy(q.frames[i+1:], q.frames[i:])
	q.frames[i] = f
	// 超出上限时丢弃最旧的帧
	if q.limit > 0 && len(q.frames) > q.limit {
		drop := len(q.frames) - q.limit
		q.frames = append(q.frames[:0], q.frames[drop:]...)
	}
	return true
}

// drain 取出所有时间戳不晚于 upTo 的帧，并推进已消费时间戳
func (q *inputQueue) drain(upTo int64) []InputFrame {
	n, _ := slices.BinarySearchFunc(q.frames, upTo+1, cmpFrame)
	if n == 0 {
		return nil
	}
	out := append([]InputFrame(nil), q.frames[:n]...)
	q.frames = append(q.frames[:0], q.frames[n:]...)
	q.consumed = out[n-1].Timestamp
	return out
}

func (q *inputQueue) len() int { return len(q.frames) }

func (q *inputQueue) trim() int {
	n := len(q.frames)
	q.frames = q.frames[:0]
	return n
}

func cmpFrame(f InputFrame, ts int64) int {
	switch {
	case f.Timestamp < ts:
		return -1
	case f.Timestamp > ts:
		return 1
	}
	return 0
}
