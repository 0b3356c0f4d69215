package scene

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownClient 输入来自没有联络器的客户端
	ErrUnknownClient = errors.New("scene: unknown client")
	// ErrStaleInput 输入帧时间戳超出可回溯窗口
	ErrStaleInput = errors.New("scene: stale input frame")
	// ErrAckWithoutSnapshot 客户端确认的时间戳已不在保留的快照中
	ErrAckWithoutSnapshot = errors.New("scene: acknowledged snapshot not retained")
	// ErrSingularTransform 数学层的不可逆变换，按单个角色的模拟故障处理
	ErrSingularTransform = errors.New("scene: singular transform")

	ErrDuplicateActor      = errors.New("scene: actor id already used")
	ErrUnknownActor        = errors.New("scene: unknown actor")
	ErrUnknownType         = errors.New("scene: unknown actor type")
	ErrTickReentered       = errors.New("scene: tick re-entered")
	ErrSchedulerStopped    = errors.New("scene: scheduler stopped")
	ErrSchedulerNotStarted = errors.New("scene: scheduler not started")
	ErrTaskQueueFull       = errors.New("scene: task queue full")
	// ErrSendQueueFull 传输层拒绝了本次发送；不重试，下一 Tick 自然补发
	ErrSendQueueFull = errors.New("scene: send queue full")
)

// ActorFault 单个角色的模拟故障：记录日志并跳过该角色本 Tick
type ActorFault struct {
	ID  ActorID
	Err error
}

func (f *ActorFault) Error() string {
	return fmt.Sprintf("actor %d: %v", f.ID, f.Err)
}

func (f *ActorFault) Unwrap() error { return f.Err }
