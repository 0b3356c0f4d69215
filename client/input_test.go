package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"tudeyarena/scene"
)

func frameStamps(b scene.InputFrameBatch) []int64 {
	out := make([]int64, 0, len(b.Frames))
	for _, f := range b.Frames {
		out = append(out, f.Timestamp)
	}
	return out
}

func TestInputBufferRetransmitsUntilAcknowledged(t *testing.T) {
	b := NewInputBuffer(0)
	for _, ts := range []int64{10, 20, 30} {
		assert.True(t, b.Record(scene.InputFrame{Timestamp: ts}))
	}
	assert.False(t, b.Record(scene.InputFrame{Timestamp: 30}))

	batch := b.Batch(5, 31)
	assert.Equal(t, int64(5), batch.Acknowledge)
	assert.Equal(t, int64(31), batch.SmoothedTime)
	assert.Equal(t, []int64{10, 20, 30}, frameStamps(batch))

	b.Acknowledge(20)
	assert.Equal(t, []int64{30}, frameStamps(b.Batch(0, 0)))
	b.Acknowledge(25)
	assert.Equal(t, 1, b.Len())
	b.Acknowledge(99)
	assert.Zero(t, b.Len())

	// 批次是副本
	b.Record(scene.InputFrame{Timestamp: 100})
	batch = b.Batch(0, 0)
	b.Acknowledge(100)
	assert.Len(t, batch.Frames, 1)
}

func TestInputBufferLimit(t *testing.T) {
	b := NewInputBuffer(2)
	for ts := int64(1); ts <= 5; ts++ {
		b.Record(scene.InputFrame{Timestamp: ts})
	}
	assert.Equal(t, []int64{4, 5}, frameStamps(b.Batch(0, 0)))
}

func TestTimeEstimatorSmoothsAndNeverGoesBack(t *testing.T) {
	local := scene.NewManualClock(1000)
	e := NewTimeEstimator(local, 0.5)
	assert.Zero(t, e.Smoothed())

	e.Observe(5000)
	assert.Equal(t, int64(5000), e.Smoothed())
	local.Advance(100)
	assert.Equal(t, int64(5100), e.Smoothed())

	// 新样本显示服务端落后 200ms：估计只能缓慢回调，且输出不回退
	e.Observe(4900)
	assert.Equal(t, int64(5100), e.Smoothed())
	local.Advance(200)
	assert.Equal(t, int64(5200), e.Smoothed())
}

func TestSessionTracksMirrorAndInputs(t *testing.T) {
	local := scene.NewManualClock(0)
	s := NewSession(local, zaptest.NewLogger(t).Sugar())
	assert.False(t, s.Sample(1, nil))

	s.Receive(&scene.SceneDelta{SceneOID: 1, Timestamp: 50,
		Added: []*scene.Actor{{ID: 1, Type: 1, X: 2}}})
	local.Advance(10)
	require.True(t, s.Sample(1, nil))
	local.Advance(10)
	require.True(t, s.Sample(2, &scene.Vec2{X: 1}))

	batch := s.Batch()
	assert.Equal(t, int64(50), batch.Acknowledge)
	assert.Equal(t, []int64{60, 70}, frameStamps(batch))

	s.Receive(&scene.SceneDelta{SceneOID: 1, Reference: 50, Timestamp: 80, Acknowledge: 60})
	assert.Equal(t, []int64{70}, frameStamps(s.Batch()))
	assert.Equal(t, int64(80), s.Timestamp())

	// 缺少参考的增量被丢弃，确认时间戳不前移
	s.Receive(&scene.SceneDelta{SceneOID: 1, Reference: 65, Timestamp: 90, Acknowledge: 70})
	assert.Equal(t, int64(80), s.Timestamp())
	assert.Len(t, s.Actors(), 1)
}
