package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"tudeyarena/config"
	"tudeyarena/scene"
	"tudeyarena/wire"
)

func (r *Registry) sceneFor(w http.ResponseWriter, req *http.Request) (*Host, bool) {
	name := req.URL.Query().Get("scene")
	if name == "" {
		name = r.cfg.Server.DefaultScene
	}
	h, ok := r.Lookup(name)
	if !ok {
		http.Error(w, "unknown scene "+name, http.StatusNotFound)
	}
	return h, ok
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// HandleAdminConfig 提供场景参数的读取与更新（运行期调参）
// GET /admin/config?scene=scene-1  返回当前参数
// POST /admin/config?scene=scene-1 以 JSON 载荷更新部分字段，在场景线程上生效
func (r *Registry) HandleAdminConfig(w http.ResponseWriter, req *http.Request) {
	h, ok := r.sceneFor(w, req)
	if !ok {
		return
	}
	switch req.Method {
	case http.MethodGet:
		cfg, err := h.Config()
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, cfg)
	case http.MethodPost:
		var body bytes.Buffer
		if _, err := body.ReadFrom(http.MaxBytesReader(w, req.Body, 64<<10)); err != nil {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}
		var decodeErr error
		cfg, err := h.UpdateConfig(func(c *config.Scene) {
			next := *c
			dec := json.NewDecoder(&body)
			dec.DisallowUnknownFields()
			// 只覆盖载荷中出现的字段；解析失败时保持原值
			if decodeErr = dec.Decode(&next); decodeErr == nil {
				*c = next
			}
		})
		if decodeErr != nil {
			http.Error(w, "invalid json: "+decodeErr.Error(), http.StatusBadRequest)
			return
		}
		if err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, scene.ErrSchedulerStopped) {
				status = http.StatusServiceUnavailable
			}
			http.Error(w, err.Error(), status)
			return
		}
		h.log.Infow("config updated", "config", cfg)
		writeJSON(w, map[string]any{"ok": true, "config": cfg})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleMetrics 输出场景运行指标
// GET /metrics?scene=scene-1；不带 scene 时输出全部场景
func (r *Registry) HandleMetrics(w http.ResponseWriter, req *http.Request) {
	names := r.Names()
	if name := req.URL.Query().Get("scene"); name != "" {
		names = []string{name}
	}
	out := make([]map[string]any, 0, len(names))
	for _, name := range names {
		h, ok := r.Lookup(name)
		if !ok {
			http.Error(w, "unknown scene "+name, http.StatusNotFound)
			return
		}
		entry := map[string]any{
			"scene":   name,
			"oid":     h.OID(),
			"metrics": h.Metrics().Snapshot(),
		}
		if st, err := h.Status(); err == nil {
			entry["timestamp"] = st.Timestamp
			entry["clients"] = st.Clients
			entry["actors"] = st.Actors
		}
		out = append(out, entry)
	}
	writeJSON(w, out)
}

// HandleSchema 输出线上消息的 JSON Schema
func (r *Registry) HandleSchema(w http.ResponseWriter, req *http.Request) {
	b, err := wire.SchemaJSON()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/schema+json")
	_, _ = w.Write(b)
}
