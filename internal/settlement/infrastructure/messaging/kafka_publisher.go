// Package messaging 结算上下文的 Kafka 事件发布实现。
package messaging

import (
	"context"

	"github.com/wyfcoding/oiltrading/internal/settlement/domain"
	"github.com/wyfcoding/oiltrading/pkg/mq"
)

// kafkaEventPublisher 基于 Kafka 的领域事件发布器
type kafkaEventPublisher struct {
	producer *mq.KafkaProducer
}

// NewKafkaEventPublisher 创建并返回一个新的事件发布器实例。
func NewKafkaEventPublisher(producer *mq.KafkaProducer) domain.EventPublisher {
	return &kafkaEventPublisher{producer: producer}
}

func (p *kafkaEventPublisher) Publish(ctx context.Context, topic, key string, event any) error {
	return p.producer.SendMessage(ctx, topic, key, event)
}
