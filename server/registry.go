package server

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"tudeyarena/config"
)

var ErrRegistryClosed = errors.New("server: registry closed")

// Registry 管理多个场景的生命周期；每个场景有独立的场景 OID 与场景线程
type Registry struct {
	cfg config.Config
	log *zap.SugaredLogger

	mu      sync.RWMutex
	hosts   map[string]*Host
	nextOID int32
	closed  bool
}

func NewRegistry(cfg config.Config, log *zap.SugaredLogger) *Registry {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Registry{cfg: cfg, log: log, hosts: make(map[string]*Host)}
}

// GetOrCreate 获取或创建场景，并确保开始 Tick
func (r *Registry) GetOrCreate(name string) (*Host, error) {
	r.mu.RLock()
	h, ok := r.hosts[name]
	r.mu.RUnlock()
	if ok {
		return h, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrRegistryClosed
	}
	if h, ok := r.hosts[name]; ok {
		return h, nil
	}
	r.nextOID++
	h, err := NewHost(r.nextOID, name, r.cfg.Scene, r.log)
	if err != nil {
		return nil, fmt.Errorf("create scene %s: %w", name, err)
	}
	r.hosts[name] = h
	h.Start()
	r.log.Infow("scene created", "scene", name, "sceneOid", h.OID())
	return h, nil
}

// Lookup 查找已存在的场景
func (r *Registry) Lookup(name string) (*Host, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.hosts[name]
	return h, ok
}

// Names 所有场景名（升序）
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := maps.Keys(r.hosts)
	r.mu.RUnlock()
	slices.Sort(names)
	return names
}

// Close 停止所有场景；之后不再创建新场景
func (r *Registry) Close() error {
	r.mu.Lock()
	r.closed = true
	hosts := r.hosts
	r.hosts = make(map[string]*Host)
	r.mu.Unlock()

	names := maps.Keys(hosts)
	slices.Sort(names)
	var err error
	for _, name := range names {
		if cerr := hosts[name].Close(); cerr != nil {
			err = multierr.Append(err, fmt.Errorf("close scene %s: %w", name, cerr))
		}
	}
	return err
}
