package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
	"go.uber.org/multierr"
)

// Config 进程级配置：HTTP/日志等服务参数 + 场景参数
type Config struct {
	Server Server `toml:"server" json:"server"`
	Scene  Scene  `toml:"scene" json:"scene"`
}

// Server 网络与日志相关配置
type Server struct {
	Addr         string `toml:"addr" json:"addr"`
	LogFile      string `toml:"log_file" json:"logFile"`
	LogLevel     string `toml:"log_level" json:"logLevel"`
	DefaultScene string `toml:"default_scene" json:"defaultScene"`
	SendQueue    int    `toml:"send_queue" json:"sendQueue"` // 每个连接的发送队列长度
}

// Scene 场景模拟参数（每个场景一份副本）
type Scene struct {
	TickIntervalMs     int64   `toml:"tick_interval_ms" json:"tickIntervalMs"`
	GridCell           float64 `toml:"grid_cell" json:"gridCell"`
	GridLevels         int     `toml:"grid_levels" json:"gridLevels"`
	MaxAckAgeTicks     int     `toml:"max_ack_age_ticks" json:"maxAckAgeTicks"`
	InputTimeoutMs     int64   `toml:"input_timeout_ms" json:"inputTimeoutMs"`
	MaxRewindMs        int64   `toml:"max_rewind_ms" json:"maxRewindMs"`
	PingEWMAAlpha      float64 `toml:"ping_ewma_alpha" json:"pingEwmaAlpha"`
	InputQueueLimit    int     `toml:"input_queue_limit" json:"inputQueueLimit"`
	InterestHalfWidth  float64 `toml:"interest_half_width" json:"interestHalfWidth"`
	InterestHalfHeight float64 `toml:"interest_half_height" json:"interestHalfHeight"`

	// 演示竞技场
	WorldWidth  float64 `toml:"world_width" json:"worldWidth"`
	WorldHeight float64 `toml:"world_height" json:"worldHeight"`
	Step        float64 `toml:"step" json:"step"`
}

// Default 返回默认配置（20 TPS）
func Default() Config {
	return Config{
		Server: Server{
			Addr:         ":8080",
			LogFile:      "app.log",
			LogLevel:     "debug",
			DefaultScene: "scene-1",
			SendQueue:    64,
		},
		Scene: DefaultScene(),
	}
}

// DefaultScene 返回默认场景参数
func DefaultScene() Scene {
	return Scene{
		TickIntervalMs:     50,
		GridCell:           64,
		GridLevels:         6,
		MaxAckAgeTicks:     60,
		InputTimeoutMs:     10_000,
		MaxRewindMs:        250,
		PingEWMAAlpha:      0.1,
		InputQueueLimit:    256,
		InterestHalfWidth:  320,
		InterestHalfHeight: 240,
		WorldWidth:         1000,
		WorldHeight:        1000,
		Step:               1,
	}
}

// TickInterval 以 time.Duration 表示的 Tick 间隔
func (s Scene) TickInterval() time.Duration {
	return time.Duration(s.TickIntervalMs) * time.Millisecond
}

// Load 读取 TOML 配置文件；path 为空时返回默认值。未出现的键保留默认值。
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := Decode(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Decode 在 cfg 现有值之上解码 TOML，并校验结果
func Decode(data []byte, cfg *Config) error {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return err
	}
	return cfg.Validate()
}

// Validate 校验配置取值
func (c Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr must not be empty")
	}
	if c.Server.SendQueue <= 0 {
		return fmt.Errorf("server.send_queue must be positive, got %d", c.Server.SendQueue)
	}
	return c.Scene.Validate()
}

// Validate 校验场景参数
func (s Scene) Validate() error {
	var errs []error
	if s.TickIntervalMs <= 0 {
		errs = append(errs, fmt.Errorf("tick_interval_ms must be positive, got %d", s.TickIntervalMs))
	}
	if s.GridCell <= 0 {
		errs = append(errs, fmt.Errorf("grid_cell must be positive, got %g", s.GridCell))
	}
	if s.GridLevels <= 0 {
		errs = append(errs, fmt.Errorf("grid_levels must be positive, got %d", s.GridLevels))
	}
	if s.MaxAckAgeTicks <= 0 {
		errs = append(errs, fmt.Errorf("max_ack_age_ticks must be positive, got %d", s.MaxAckAgeTicks))
	}
	if s.InputTimeoutMs <= 0 {
		errs = append(errs, fmt.Errorf("input_timeout_ms must be positive, got %d", s.InputTimeoutMs))
	}
	if s.MaxRewindMs < 0 {
		errs = append(errs, fmt.Errorf("max_rewind_ms must not be negative, got %d", s.MaxRewindMs))
	}
	if s.PingEWMAAlpha <= 0 || s.PingEWMAAlpha > 1 {
		errs = append(errs, fmt.Errorf("ping_ewma_alpha must be in (0,1], got %g", s.PingEWMAAlpha))
	}
	if s.InputQueueLimit <= 0 {
		errs = append(errs, fmt.Errorf("input_queue_limit must be positive, got %d", s.InputQueueLimit))
	}
	if s.InterestHalfWidth < 0 || s.InterestHalfHeight < 0 {
		errs = append(errs, errors.New("interest half extents must not be negative"))
	}
	if s.WorldWidth <= 0 || s.WorldHeight <= 0 {
		errs = append(errs, errors.New("world size must be positive"))
	}
	return multierr.Combine(errs...)
}
