package scene

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Clock 单调毫秒时钟
type Clock interface {
	NowMillis() int64
}

// SystemClock 基于 time 包单调读数的时钟
type SystemClock struct {
	start time.Time
}

func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

func (c *SystemClock) NowMillis() int64 {
	return time.Since(c.start).Milliseconds()
}

// ManualClock 手动推进的时钟，测试与回放使用
type ManualClock struct {
	mu  sync.Mutex
	now int64
}

func NewManualClock(start int64) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) NowMillis() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance 前进 ms 毫秒
func (c *ManualClock) Advance(ms int64) {
	c.mu.Lock()
	c.now += ms
	c.mu.Unlock()
}

// Set 设置绝对时间
func (c *ManualClock) Set(ms int64) {
	c.mu.Lock()
	c.now = ms
	c.mu.Unlock()
}

// Scheduler 场景线程：以固定间隔调用 onTick，并在同一协程上串行执行投递的任务。
// Tick 不会重入；某次 Tick 超时后下一次立即开始（由场景时间戳吸收更大的 Δt）。
type Scheduler struct {
	interval time.Duration
	onTick   func() error
	log      *zap.SugaredLogger

	tasks chan func()
	quit  chan struct{}
	done  chan struct{}

	mu      sync.Mutex
	started bool
	stopped bool

	// 测试可替换
	newTicker func(time.Duration) (<-chan time.Time, func())
}

// NewScheduler 创建调度器；queue 为任务通道容量
func NewScheduler(interval time.Duration, queue int, onTick func() error, log *zap.SugaredLogger) *Scheduler {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if queue <= 0 {
		queue = 256
	}
	return &Scheduler{
		interval: interval,
		onTick:   onTick,
		log:      log,
		tasks:    make(chan func(), queue),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		newTicker: func(d time.Duration) (<-chan time.Time, func()) {
			t := time.NewTicker(d)
			return t.C, t.Stop
		},
	}
}

// Start 启动场景线程；重复调用无效果
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return
	}
	s.started = true
	ticks, stop := s.newTicker(s.interval)
	go s.run(ticks, stop)
}

func (s *Scheduler) run(ticks <-chan time.Time, stop func()) {
	defer close(s.done)
	defer stop()
	for {
		select {
		case <-s.quit:
			return
		case <-ticks:
			s.tick()
		case fn := <-s.tasks:
			s.exec(fn)
		}
	}
}

func (s *Scheduler) tick() {
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorw("tick panicked", "panic", r)
		}
	}()
	if err := s.onTick(); err != nil {
		s.log.Errorw("tick failed", "err", err)
	}
}

func (s *Scheduler) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorw("scene task panicked", "panic", r)
		}
	}()
	fn()
}

// Post 将任务投递到场景线程（阻塞直到入队或调度器停止）
func (s *Scheduler) Post(fn func()) error {
	select {
	case <-s.quit:
		return ErrSchedulerStopped
	default:
	}
	select {
	case s.tasks <- fn:
		return nil
	case <-s.quit:
		return ErrSchedulerStopped
	}
}

// TryPost 非阻塞投递，队列满时返回 ErrTaskQueueFull
func (s *Scheduler) TryPost(fn func()) error {
	select {
	case <-s.quit:
		return ErrSchedulerStopped
	default:
	}
	select {
	case s.tasks <- fn:
		return nil
	default:
		return ErrTaskQueueFull
	}
}

// Call 在场景线程上执行 fn 并等待其完成
func (s *Scheduler) Call(fn func()) error {
	s.mu.Lock()
	started, stopped := s.started, s.stopped
	s.mu.Unlock()
	if stopped {
		return ErrSchedulerStopped
	}
	if !started {
		// 场景线程未运行时没有人会执行任务，等待将永远阻塞
		return ErrSchedulerNotStarted
	}
	finished := make(chan struct{})
	if err := s.Post(func() {
		defer close(finished)
		fn()
	}); err != nil {
		return err
	}
	select {
	case <-finished:
		return nil
	case <-s.done:
		return ErrSchedulerStopped
	}
}

// Stop 取消调度并等待当前 Tick 结束；幂等
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		if s.started {
			<-s.done
		}
		return
	}
	s.stopped = true
	started := s.started
	close(s.quit)
	s.mu.Unlock()
	if started {
		<-s.done
	}
}

// Done 场景线程退出后关闭
func (s *Scheduler) Done() <-chan struct{} { return s.done }
