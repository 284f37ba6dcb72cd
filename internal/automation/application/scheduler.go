package application

import (
	"context"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/wyfcoding/oiltrading/internal/automation/domain"
)

// Scheduler 定时触发器。
// 周期性加载启用的定时规则并按各自的 cron 表达式注册；
// 规则定义变化后调用 Reload 重建调度表。
type Scheduler struct {
	ruleRepo domain.RuleRepository
	rules    *RuleService

	mu   sync.Mutex
	cron *cron.Cron
}

// NewScheduler 创建并返回一个新的调度器实例。
func NewScheduler(ruleRepo domain.RuleRepository, rules *RuleService) *Scheduler {
	return &Scheduler{
		ruleRepo: ruleRepo,
		rules:    rules,
	}
}

// Start 加载定时规则并启动调度
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.Reload(ctx); err != nil {
		return err
	}
	slog.InfoContext(ctx, "rule scheduler started")
	return nil
}

// Reload 重新加载调度表。已在运行的任务执行完当前一轮后被替换。
func (s *Scheduler) Reload(ctx context.Context) error {
	rules, err := s.ruleRepo.FindEnabledByTrigger(ctx, domain.TriggerScheduled)
	if err != nil {
		return err
	}

	c := cron.New()
	for _, rule := range rules {
		ruleNo := rule.RuleNo
		if _, err := c.AddFunc(rule.Schedule, func() {
			s.fire(ruleNo)
		}); err != nil {
			slog.WarnContext(ctx, "failed to schedule rule",
				"rule_no", ruleNo, "schedule", rule.Schedule, "error", err)
			continue
		}
		slog.InfoContext(ctx, "rule scheduled", "rule_no", ruleNo, "schedule", rule.Schedule)
	}

	s.mu.Lock()
	old := s.cron
	s.cron = c
	s.mu.Unlock()

	c.Start()
	if old != nil {
		old.Stop()
	}
	return nil
}

// Stop 停止调度
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		s.cron.Stop()
		s.cron = nil
	}
}

func (s *Scheduler) fire(ruleNo string) {
	ctx := context.Background()
	if _, err := s.rules.TriggerRule(ctx, ruleNo, domain.TriggerScheduled, "scheduler"); err != nil {
		slog.ErrorContext(ctx, "scheduled rule trigger failed", "rule_no", ruleNo, "error", err)
	}
}
