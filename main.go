package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tudeyarena/config"
	"tudeyarena/server"
)

// TudeyArena 入口：加载配置，启动 HTTP + WebSocket 服务与默认场景
func main() {
	var cfgPath, addr string
	flag.StringVar(&cfgPath, "config", "", "path to a TOML config file (defaults when empty)")
	flag.StringVar(&addr, "addr", "", "server listen address, e.g. :8080 (overrides config)")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	// 使用第三方 zap 日志库写入日志文件（带滚动）
	if err := server.InitLogger(cfg.Server.LogFile, cfg.Server.LogLevel); err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer server.SyncLogger()
	log := server.Log

	registry := server.NewRegistry(cfg, log)
	// 先预创建默认场景，便于快速试跑
	if _, err := registry.GetOrCreate(cfg.Server.DefaultScene); err != nil {
		log.Errorw("default scene", "err", err)
		return
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", registry.HandleWS)
	// 管理与监控接口
	mux.HandleFunc("/admin/config", registry.HandleAdminConfig)
	mux.HandleFunc("/admin/schema", registry.HandleSchema)
	mux.HandleFunc("/metrics", registry.HandleMetrics)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: cfg.Server.Addr, Handler: mux}

	go func() {
		log.Infof("TudeyArena listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	// 优雅退出（Ctrl+C）：先停止 HTTP，再停止所有场景
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warnw("http shutdown", "err", err)
	}
	if err := registry.Close(); err != nil {
		log.Warnw("scene shutdown", "err", err)
	}
}
