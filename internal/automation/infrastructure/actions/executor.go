// Package actions 规则动作执行器：把规则动作落到结算上下文的应用服务上。
package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	automation "github.com/wyfcoding/oiltrading/internal/automation/domain"
	settlementapp "github.com/wyfcoding/oiltrading/internal/settlement/application"
	settlementdomain "github.com/wyfcoding/oiltrading/internal/settlement/domain"
	"github.com/wyfcoding/oiltrading/pkg/mq"
)

const notificationTopic = "oiltrading.notifications"

// executor 结算动作执行器
type executor struct {
	settlements *settlementapp.SettlementCommandService
	payments    *settlementapp.PaymentCommandService
	producer    *mq.KafkaProducer
}

// NewExecutor 创建并返回一个新的动作执行器实例。
func NewExecutor(
	settlements *settlementapp.SettlementCommandService,
	payments *settlementapp.PaymentCommandService,
	producer *mq.KafkaProducer,
) automation.ActionExecutor {
	return &executor{settlements: settlements, payments: payments, producer: producer}
}

// createSettlementParams CREATE_SETTLEMENT 动作参数
type createSettlementParams struct {
	ContractSide string `json:"contract_side"`
	DocumentType string `json:"document_type"`
	Currency     string `json:"currency"`
}

// addChargeParams ADD_CHARGE 动作参数
type addChargeParams struct {
	ChargeType  string `json:"charge_type"`
	Description string `json:"description"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	Reference   string `json:"reference"`
}

// notificationParams SEND_NOTIFICATION 动作参数
type notificationParams struct {
	Channel string `json:"channel"`
	Message string `json:"message"`
}

// updateStatusParams UPDATE_STATUS 动作参数
type updateStatusParams struct {
	TargetStatus string `json:"target_status"`
}

// createPaymentParams CREATE_PAYMENT 动作参数
type createPaymentParams struct {
	Direction string `json:"direction"`
	Method    string `json:"method"`
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
	DueInDays int    `json:"due_in_days"`
}

// Execute 执行单个动作。操作人统一记录为 automation。
func (e *executor) Execute(ctx context.Context, action automation.RuleAction, target automation.ActionTarget) (automation.ActionResult, error) {
	result := automation.ActionResult{ActionType: action.ActionType, TargetID: target.TargetID}

	switch action.ActionType {
	case automation.ActionCreateSettlement:
		var params createSettlementParams
		if err := json.Unmarshal([]byte(action.Parameters), &params); err != nil {
			return result, fmt.Errorf("%w: invalid CREATE_SETTLEMENT parameters: %v", automation.ErrInvariantViolation, err)
		}
		side := settlementdomain.ContractSide(params.ContractSide)
		if kind, ok := target.Facts["contract_kind"].(string); ok && params.ContractSide == "" {
			side = settlementdomain.ContractSide(kind)
		}
		dto, err := e.settlements.CreateSettlement(ctx, &settlementapp.CreateSettlementCommand{
			ContractID:   target.TargetID,
			ContractSide: side,
			DocumentType: settlementdomain.DocumentType(params.DocumentType),
			Currency:     params.Currency,
			Operator:     "automation",
		})
		if err != nil {
			return result, err
		}
		result.SettlementsCreated = 1
		result.TargetID = dto.SettlementNo
		return result, nil

	case automation.ActionAddCharge:
		var params addChargeParams
		if err := json.Unmarshal([]byte(action.Parameters), &params); err != nil {
			return result, fmt.Errorf("%w: invalid ADD_CHARGE parameters: %v", automation.ErrInvariantViolation, err)
		}
		amount, err := decimal.NewFromString(params.Amount)
		if err != nil {
			return result, fmt.Errorf("%w: invalid charge amount %q", automation.ErrInvariantViolation, params.Amount)
		}
		now := time.Now()
		_, err = e.settlements.AddCharge(ctx, &settlementapp.AddChargeCommand{
			SettlementNo: target.TargetID,
			ChargeType:   settlementdomain.ChargeType(params.ChargeType),
			Description:  params.Description,
			Amount:       amount,
			Currency:     params.Currency,
			IncurredAt:   &now,
			Reference:    params.Reference,
			Operator:     "automation",
		})
		return result, err

	case automation.ActionApproveSettlement:
		_, err := e.settlements.Approve(ctx, target.TargetID, "automation")
		return result, err

	case automation.ActionFinalizeSettlement:
		_, err := e.settlements.Finalize(ctx, target.TargetID, "automation")
		return result, err

	case automation.ActionUpdateStatus:
		var params updateStatusParams
		if err := json.Unmarshal([]byte(action.Parameters), &params); err != nil {
			return result, fmt.Errorf("%w: invalid UPDATE_STATUS parameters: %v", automation.ErrInvariantViolation, err)
		}
		var err error
		switch settlementdomain.SettlementStatus(params.TargetStatus) {
		case settlementdomain.SettlementStatusCalculated:
			_, err = e.settlements.Calculate(ctx, target.TargetID, "automation")
		case settlementdomain.SettlementStatusReviewed:
			_, err = e.settlements.Review(ctx, target.TargetID, "automation")
		case settlementdomain.SettlementStatusApproved:
			_, err = e.settlements.Approve(ctx, target.TargetID, "automation")
		default:
			err = fmt.Errorf("%w: unsupported target status %q", automation.ErrInvariantViolation, params.TargetStatus)
		}
		return result, err

	case automation.ActionCreatePayment:
		var params createPaymentParams
		if err := json.Unmarshal([]byte(action.Parameters), &params); err != nil {
			return result, fmt.Errorf("%w: invalid CREATE_PAYMENT parameters: %v", automation.ErrInvariantViolation, err)
		}
		amount, err := decimal.NewFromString(params.Amount)
		if err != nil {
			return result, fmt.Errorf("%w: invalid payment amount %q", automation.ErrInvariantViolation, params.Amount)
		}
		var dueDate *time.Time
		if params.DueInDays > 0 {
			due := time.Now().AddDate(0, 0, params.DueInDays)
			dueDate = &due
		}
		dto, err := e.payments.CreatePayment(ctx, &settlementapp.CreatePaymentCommand{
			SettlementNo: target.TargetID,
			Direction:    settlementdomain.PaymentDirection(params.Direction),
			Method:       settlementdomain.PaymentMethod(params.Method),
			Amount:       amount,
			Currency:     params.Currency,
			DueDate:      dueDate,
			Operator:     "automation",
		})
		if err != nil {
			return result, err
		}
		result.TargetID = dto.PaymentNo
		return result, nil

	case automation.ActionSendNotification:
		var params notificationParams
		if err := json.Unmarshal([]byte(action.Parameters), &params); err != nil {
			return result, fmt.Errorf("%w: invalid SEND_NOTIFICATION parameters: %v", automation.ErrInvariantViolation, err)
		}
		payload := map[string]any{
			"channel":   params.Channel,
			"message":   params.Message,
			"target_id": target.TargetID,
			"facts":     target.Facts,
			"sent_at":   time.Now(),
		}
		if err := e.producer.SendMessage(ctx, notificationTopic, target.TargetID, payload); err != nil {
			return result, fmt.Errorf("%w: failed to send notification: %v", automation.ErrExternalDependency, err)
		}
		return result, nil

	default:
		return result, fmt.Errorf("%w: unknown action type %q", automation.ErrInvariantViolation, action.ActionType)
	}
}
