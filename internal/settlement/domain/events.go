package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Topic 常量：结算领域事件发布到的 Kafka 主题
const (
	TopicSettlementEvents = "oiltrading.settlement.events"
	TopicPaymentEvents    = "oiltrading.payment.events"
)

// BaseEvent 领域事件公共字段
type BaseEvent struct {
	EventID    string    `json:"event_id"`
	EventType  string    `json:"event_type"`
	OccurredAt time.Time `json:"occurred_at"`
}

// SettlementCreatedEvent 结算单已创建
type SettlementCreatedEvent struct {
	BaseEvent
	SettlementNo string       `json:"settlement_no"`
	ContractID   string       `json:"contract_id"`
	ContractSide ContractSide `json:"contract_side"`
	DocumentType DocumentType `json:"document_type"`
	Currency     string       `json:"currency"`
	CreatedBy    string       `json:"created_by"`
}

// SettlementCalculatedEvent 结算金额已计算
type SettlementCalculatedEvent struct {
	BaseEvent
	SettlementNo          string          `json:"settlement_no"`
	CargoValue            decimal.Decimal `json:"cargo_value"`
	TotalCharges          decimal.Decimal `json:"total_charges"`
	TotalSettlementAmount decimal.Decimal `json:"total_settlement_amount"`
	Currency              string          `json:"currency"`
}

// SettlementFinalizedEvent 结算单已定稿
type SettlementFinalizedEvent struct {
	BaseEvent
	SettlementNo          string          `json:"settlement_no"`
	ContractID            string          `json:"contract_id"`
	TotalSettlementAmount decimal.Decimal `json:"total_settlement_amount"`
	Currency              string          `json:"currency"`
	FinalizedBy           string          `json:"finalized_by"`
}

// SettlementCancelledEvent 结算单已取消
type SettlementCancelledEvent struct {
	BaseEvent
	SettlementNo string `json:"settlement_no"`
	Reason       string `json:"reason"`
	CancelledBy  string `json:"cancelled_by"`
}

// ChargeAddedEvent 费用已入账
type ChargeAddedEvent struct {
	BaseEvent
	SettlementNo string          `json:"settlement_no"`
	ChargeNo     string          `json:"charge_no"`
	ChargeType   ChargeType      `json:"charge_type"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
}

// PaymentStatusChangedEvent 付款状态已变更
type PaymentStatusChangedEvent struct {
	BaseEvent
	PaymentNo    string          `json:"payment_no"`
	SettlementNo string          `json:"settlement_no"`
	FromStatus   PaymentStatus   `json:"from_status"`
	ToStatus     PaymentStatus   `json:"to_status"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
}

// EventPublisher 领域事件发布接口，由基础设施层实现
type EventPublisher interface {
	Publish(ctx context.Context, topic, key string, event any) error
}
