package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"auto-trader/internal/notifier"
	"auto-trader/internal/scheduler"
	"auto-trader/internal/storage"
	"auto-trader/internal/strategy/database"
	"auto-trader/internal/strategy/engine"
	"auto-trader/internal/strategy/monitor"
	"auto-trader/pkg/types"
)

const shutdownTimeout = 30 * time.Second

// App 应用程序管理器
type App struct {
	config *types.Config
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	db        *database.Manager
	state     *storage.StateManager
	metrics   *monitor.Metrics
	engine    *engine.SignalEngine
	scheduler *scheduler.Scheduler
	perf      *monitor.PerformanceMonitor

	metricsServer *http.Server
}

// NewApp 创建应用程序实例并初始化各模块
func NewApp(config *types.Config) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())
	app := &App{
		config: config,
		ctx:    ctx,
		cancel: cancel,
	}

	db, err := database.NewManager(config.Database.MySQL)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.db = db
	if err := db.Health(ctx); err != nil {
		app.Close()
		return nil, fmt.Errorf("数据库健康检查失败: %w", err)
	}
	app.state = storage.NewStateManager(config.Redis)

	// 未配置钉钉时输出到控制台
	notifyService := notifier.NewDingTalkNotifier(config.DingTalk, config.Network)

	opts := []engine.Option{engine.WithRecorder(db)}
	if config.Metrics.Enabled {
		app.metrics = monitor.NewMetrics()
		opts = append(opts, engine.WithMetrics(app.metrics))
	}

	app.engine, err = engine.NewSignalEngine(config.Strategy, db, app.state, notifyService, opts...)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("创建信号引擎失败: %w", err)
	}

	app.scheduler, err = scheduler.NewScheduler(ctx, app.engine, app.state, config.Strategy.Schedule)
	if err != nil {
		app.Close()
		return nil, err
	}

	app.perf = monitor.NewPerformanceMonitor(db, app.engine, config.Monitor)
	return app, nil
}

// Start 启动调度器、性能监控和指标服务
func (app *App) Start() {
	zap.L().Info("🚀 Auto Trader 启动中...",
		zap.Strings("symbols", app.engine.Symbols()),
		zap.String("variant", app.config.Strategy.Rules.Variant),
		zap.Int("workers", app.config.Strategy.Workers))

	if app.metrics != nil {
		app.metricsServer = app.metrics.Serve(app.config.Metrics.Addr)
	}

	app.perf.Start()

	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		app.scheduler.Start()
		<-app.ctx.Done()
		app.scheduler.Stop()
	}()

	zap.L().Info("✅ Auto Trader 已启动", zap.Time("next_run", app.scheduler.NextRun()))
}

// Stop 停止应用程序
func (app *App) Stop() {
	zap.L().Info("🛑 收到停止信号，正在优雅关闭...")
	app.cancel()

	// 等待所有goroutine结束，最多等待30秒
	done := make(chan struct{})
	go func() {
		app.wg.Wait()
		app.perf.Stop()
		close(done)
	}()

	select {
	case <-done:
		zap.L().Info("✅ Auto Trader 已安全关闭")
	case <-time.After(shutdownTimeout):
		zap.L().Warn("⚠️ 强制关闭超时")
	}

	monitor.Shutdown(app.metricsServer, 5*time.Second)
	app.Close()
}

// Close 释放数据库和 Redis 连接
func (app *App) Close() {
	app.cancel()
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			zap.L().Warn("⚠️ 关闭数据库失败", zap.Error(err))
		}
	}
	if app.state != nil {
		if err := app.state.Close(); err != nil {
			zap.L().Warn("⚠️ 关闭Redis失败", zap.Error(err))
		}
	}
}

// WaitForShutdown 等待关闭信号
func (app *App) WaitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
}
