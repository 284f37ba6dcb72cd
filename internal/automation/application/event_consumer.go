package application

import (
	"context"
	"errors"
	"log/slog"

	"github.com/wyfcoding/oiltrading/internal/automation/domain"
	"github.com/wyfcoding/oiltrading/pkg/mq"
)

// EventConsumer 事件触发器。
// 消费给定主题并触发监听该主题的启用规则。
type EventConsumer struct {
	consumer *mq.KafkaConsumer
	ruleRepo domain.RuleRepository
	rules    *RuleService
	topic    string
}

// NewEventConsumer 创建并返回一个新的事件触发器实例。
func NewEventConsumer(consumer *mq.KafkaConsumer, ruleRepo domain.RuleRepository, rules *RuleService, topic string) *EventConsumer {
	return &EventConsumer{
		consumer: consumer,
		ruleRepo: ruleRepo,
		rules:    rules,
		topic:    topic,
	}
}

// Run 消费循环，阻塞直到 ctx 取消
func (c *EventConsumer) Run(ctx context.Context) error {
	slog.InfoContext(ctx, "rule event consumer started", "topic", c.topic)
	for {
		msg, err := c.consumer.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			slog.ErrorContext(ctx, "failed to read event message", "topic", c.topic, "error", err)
			continue
		}
		c.handle(ctx, msg)
	}
}

func (c *EventConsumer) handle(ctx context.Context, msg *mq.Message) {
	rules, err := c.ruleRepo.FindEnabledByTrigger(ctx, domain.TriggerOnEvent)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load event rules", "error", err)
		return
	}

	for _, rule := range rules {
		if rule.EventTopic != c.topic {
			continue
		}
		if _, err := c.rules.TriggerRule(ctx, rule.RuleNo, domain.TriggerOnEvent, "event:"+msg.Key); err != nil {
			slog.ErrorContext(ctx, "event rule trigger failed",
				"rule_no", rule.RuleNo, "topic", c.topic, "error", err)
		}
	}
}
