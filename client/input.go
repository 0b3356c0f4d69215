package client

import (
	"golang.org/x/exp/slices"

	"tudeyarena/scene"
)

// InputBuffer 未被服务端确认消费的输入帧。每批次重发全部未确认帧，
// 服务端按时间戳去重，因此丢包只会推迟而不会丢失输入。
type InputBuffer struct {
	frames []scene.InputFrame
	limit  int
}

// NewInputBuffer limit 为保留帧数上限（超出时丢弃最旧的）
func NewInputBuffer(limit int) *InputBuffer {
	if limit <= 0 {
		limit = 256
	}
	return &InputBuffer{limit: limit}
}

// Record 记录新采样的帧；时间戳必须递增，否则忽略
func (b *InputBuffer) Record(f scene.InputFrame) bool {
	if n := len(b.frames); n > 0 && f.Timestamp <= b.frames[n-1].Timestamp {
		return false
	}
	b.frames = append(b.frames, f)
	if over := len(b.frames) - b.limit; over > 0 {
		b.frames = slices.Delete(b.frames, 0, over)
	}
	return true
}

// Acknowledge 丢弃服务端已消费的帧（时间戳不晚于 consumed）
func (b *InputBuffer) Acknowledge(consumed int64) {
	n, found := slices.BinarySearchFunc(b.frames, consumed, func(f scene.InputFrame, ts int64) int {
		switch {
		case f.Timestamp < ts:
			return -1
		case f.Timestamp > ts:
			return 1
		}
		return 0
	})
	if found {
		n++
	}
	if n > 0 {
		b.frames = slices.Delete(b.frames, 0, n)
	}
}

// Len 未确认帧数
func (b *InputBuffer) Len() int { return len(b.frames) }

// Batch 组装上行批次
func (b *InputBuffer) Batch(ack, smoothed int64) scene.InputFrameBatch {
	return scene.InputFrameBatch{
		Acknowledge:  ack,
		SmoothedTime: smoothed,
		Frames:       slices.Clone(b.frames),
	}
}
