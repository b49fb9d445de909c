package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"auto-trader/internal/strategy/engine"
	"auto-trader/pkg/types"
)

// Evaluator 一轮全量评估
type Evaluator interface {
	EvaluateAll(ctx context.Context) []engine.Result
}

// StatsReporter 存储状态
type StatsReporter interface {
	Stats(ctx context.Context) map[string]interface{}
}

// Scheduler 调度器：按 cron 表达式触发全量信号评估
type Scheduler struct {
	cron      *cron.Cron
	evaluator Evaluator
	state     StatsReporter
	config    types.ScheduleConfig
	ctx       context.Context
	wg        sync.WaitGroup
}

// NewScheduler 创建调度器，cron 表达式含秒字段
func NewScheduler(ctx context.Context, evaluator Evaluator, state StatsReporter, config types.ScheduleConfig) (*Scheduler, error) {
	s := &Scheduler{
		cron:      cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		evaluator: evaluator,
		state:     state,
		config:    config,
		ctx:       ctx,
	}
	if _, err := s.cron.AddFunc(config.Cron, s.runEvaluation); err != nil {
		return nil, fmt.Errorf("注册评估任务失败 %q: %w", config.Cron, err)
	}
	return s, nil
}

// Start 启动调度器，run_on_start 时立即评估一次
func (s *Scheduler) Start() {
	s.cron.Start()
	zap.L().Info("🚀 调度器已启动",
		zap.String("cron", s.config.Cron),
		zap.Time("next_run", s.NextRun()))

	if s.config.RunOnStart {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.RunNow()
		}()
	}
}

// Stop 停止调度器并等待正在执行的任务（含启动时那一轮）结束
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.wg.Wait()
	zap.L().Info("📴 调度器已停止")
}

// RunNow 立即执行一轮评估（手动触发 / 启动时）
func (s *Scheduler) RunNow() []engine.Result {
	return s.evaluate()
}

// NextRun 下一次计划执行时间
func (s *Scheduler) NextRun() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	if !entries[0].Next.IsZero() {
		return entries[0].Next
	}
	return entries[0].Schedule.Next(time.Now())
}

func (s *Scheduler) runEvaluation() {
	s.evaluate()
}

func (s *Scheduler) evaluate() []engine.Result {
	if s.ctx.Err() != nil {
		return nil
	}
	zap.L().Info("--- 信号评估任务 ---", zap.Time("at", time.Now()))

	if s.state != nil {
		zap.L().Info("📊 存储状态", zap.Any("stats", s.state.Stats(s.ctx)))
	}

	results := s.evaluator.EvaluateAll(s.ctx)
	zap.L().Info("--- 评估任务完成 ---", zap.Time("next_run", s.NextRun()))
	return results
}
