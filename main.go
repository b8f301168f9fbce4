package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"minisync/config"
	"minisync/server"
)

// minisync 入口：启动 HTTP + WebSocket 服务，并初始化房间管理器
func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	// zap 日志写入 cfg.LogFile（带滚动）
	if err := server.InitLogger(cfg.LogFile, cfg.LogLevel); err != nil {
		panic(err)
	}
	defer server.SyncLogger()

	server.Configure(server.OptionsFromConfig(cfg))
	rm := server.GetRoomManager()
	// 先预创建一个默认房间，便于快速试跑
	_ = rm.GetOrCreateRoom(cfg.DefaultRoom, cfg.DefaultMode)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", server.HandleWS)
	// 前后端分离：将 / 映射到静态资源目录
	mux.Handle("/", http.FileServer(http.Dir(cfg.StaticDir)))
	// 管理与监控接口
	mux.HandleFunc("/admin/config", server.HandleAdminConfig)
	mux.HandleFunc("/admin/rooms", server.HandleRooms)
	mux.HandleFunc("/metrics", server.HandleMetrics)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: cfg.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		server.Log.Infow("minisync listening", "addr", cfg.Addr, "room", cfg.DefaultRoom, "mode", cfg.DefaultMode, "tickHz", cfg.TickHz)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			server.Log.Fatalf("listen: %v", err)
		}
	}()

	// 优雅退出（Ctrl+C）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	server.Log.Info("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		server.Log.Warnw("http shutdown", "error", err)
	}
	rm.Shutdown()
}
