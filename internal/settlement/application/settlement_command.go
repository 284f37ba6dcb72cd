package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wyfcoding/oiltrading/internal/settlement/domain"
	"github.com/wyfcoding/oiltrading/pkg/metrics"
)

// CreateSettlementCommand 创建结算单
type CreateSettlementCommand struct {
	ContractID   string
	ContractSide domain.ContractSide
	PartnerCode  string
	ProductCode  string
	DocumentType domain.DocumentType
	Currency     string
	Operator     string
}

// EnterDataCommand 录入结算数据
type EnterDataCommand struct {
	SettlementNo string
	DocumentNo   string
	DocumentDate time.Time
	QuantityMT   decimal.Decimal
	QuantityBBL  decimal.Decimal
	Operator     string
}

// ApplyPricingCommand 按事件锚定的定价窗口解析基准价并应用到结算单
type ApplyPricingCommand struct {
	SettlementNo    string
	BenchmarkID     string
	EventType       domain.PricingEventType
	EventDate       time.Time
	BeforeDays      int
	AfterDays       int
	IncludeEventDay bool
	PriceFormula    string
	Operator        string
}

// ConfirmPricingCommand 以实际事件日确认定价事件
type ConfirmPricingCommand struct {
	EventNo         string
	ActualEventDate time.Time
	PriceFormula    string
	Operator        string
}

// AddChargeCommand 追加费用
type AddChargeCommand struct {
	SettlementNo string
	ChargeType   domain.ChargeType
	Description  string
	Amount       decimal.Decimal
	Currency     string
	IncurredAt   *time.Time
	Reference    string
	Operator     string
}

// SettlementCommandService 处理结算相关的写操作。
type SettlementCommandService struct {
	repo        domain.SettlementRepository
	pricingRepo domain.PricingEventRepository
	resolver    domain.PriceResolver
	publisher   domain.EventPublisher
	metrics     *metrics.Metrics
}

func NewSettlementCommandService(
	repo domain.SettlementRepository,
	pricingRepo domain.PricingEventRepository,
	resolver domain.PriceResolver,
	publisher domain.EventPublisher,
	m *metrics.Metrics,
) *SettlementCommandService {
	return &SettlementCommandService{
		repo:        repo,
		pricingRepo: pricingRepo,
		resolver:    resolver,
		publisher:   publisher,
		metrics:     m,
	}
}

// CreateSettlement 创建结算单
func (s *SettlementCommandService) CreateSettlement(ctx context.Context, cmd *CreateSettlementCommand) (*SettlementDTO, error) {
	settlement := domain.NewSettlement(cmd.ContractID, cmd.ContractSide, cmd.DocumentType, cmd.Currency, cmd.Operator)
	settlement.PartnerCode = cmd.PartnerCode
	settlement.ProductCode = cmd.ProductCode

	if err := s.repo.Save(ctx, settlement); err != nil {
		return nil, fmt.Errorf("failed to save settlement: %w", err)
	}
	if s.metrics != nil {
		s.metrics.SettlementsCreated.Inc()
	}

	s.publish(ctx, domain.TopicSettlementEvents, settlement.SettlementNo, domain.SettlementCreatedEvent{
		BaseEvent:    newBaseEvent("settlement.created"),
		SettlementNo: settlement.SettlementNo,
		ContractID:   settlement.ContractID,
		ContractSide: settlement.ContractSide,
		DocumentType: settlement.DocumentType,
		Currency:     settlement.Currency,
		CreatedBy:    cmd.Operator,
	})

	slog.InfoContext(ctx, "settlement created",
		"settlement_no", settlement.SettlementNo, "contract_id", cmd.ContractID)
	return toSettlementDTO(settlement), nil
}

// EnterData 录入单据与数量
func (s *SettlementCommandService) EnterData(ctx context.Context, cmd *EnterDataCommand) (*SettlementDTO, error) {
	settlement, err := s.repo.FindByNo(ctx, cmd.SettlementNo)
	if err != nil {
		return nil, err
	}

	if err := settlement.UpdateActualQuantities(cmd.QuantityMT, cmd.QuantityBBL, cmd.Operator); err != nil {
		return nil, err
	}
	if err := settlement.EnterData(ctx, cmd.DocumentNo, cmd.DocumentDate, cmd.Operator); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, settlement); err != nil {
		return nil, fmt.Errorf("failed to save settlement: %w", err)
	}
	return toSettlementDTO(settlement), nil
}

// ApplyPricing 解析定价窗口内的基准均价，生成定价事件并应用到结算单。
func (s *SettlementCommandService) ApplyPricing(ctx context.Context, cmd *ApplyPricingCommand) (*SettlementDTO, error) {
	settlement, err := s.repo.FindByNo(ctx, cmd.SettlementNo)
	if err != nil {
		return nil, err
	}

	window := domain.PricingWindow{
		EventDate:       cmd.EventDate,
		BeforeDays:      cmd.BeforeDays,
		AfterDays:       cmd.AfterDays,
		IncludeEventDay: cmd.IncludeEventDay,
	}
	event, err := domain.NewPricingEvent(settlement.SettlementNo, cmd.BenchmarkID, cmd.EventType, window)
	if err != nil {
		return nil, err
	}

	dates, err := event.PricingDates()
	if err != nil {
		return nil, err
	}
	if err := s.resolveAndApply(ctx, settlement, event, dates, cmd.PriceFormula, cmd.Operator); err != nil {
		return nil, err
	}
	return toSettlementDTO(settlement), nil
}

// ConfirmPricing 以实际事件日确认定价事件：窗口重新锚定、基准价重新解析并回写结算单。
func (s *SettlementCommandService) ConfirmPricing(ctx context.Context, cmd *ConfirmPricingCommand) (*SettlementDTO, error) {
	event, err := s.pricingRepo.FindByNo(ctx, cmd.EventNo)
	if err != nil {
		return nil, err
	}
	settlement, err := s.repo.FindByNo(ctx, event.SettlementNo)
	if err != nil {
		return nil, err
	}

	// 先按重锚后的窗口取定价日，再确认；确认后事件即冻结
	dates, err := event.Window.Reanchor(cmd.ActualEventDate).PricingDates()
	if err != nil {
		return nil, err
	}
	if err := event.Confirm(cmd.ActualEventDate, cmd.Operator); err != nil {
		return nil, err
	}
	if err := s.resolveAndApply(ctx, settlement, event, dates, cmd.PriceFormula, cmd.Operator); err != nil {
		return nil, err
	}
	return toSettlementDTO(settlement), nil
}

// resolveAndApply 解析窗口均价、落盘定价事件并把均价应用到结算单
func (s *SettlementCommandService) resolveAndApply(ctx context.Context, settlement *domain.Settlement, event *domain.PricingEvent, dates []time.Time, formula, operator string) error {
	avgPrice, currency, quotedDays, err := s.resolver.ResolveAverage(ctx, event.BenchmarkID, dates)
	if err != nil {
		return fmt.Errorf("failed to resolve benchmark average: %w", err)
	}

	event.AveragePrice = avgPrice
	event.PriceCurrency = currency
	event.QuotedDays = quotedDays
	if err := s.pricingRepo.Save(ctx, event); err != nil {
		return fmt.Errorf("failed to save pricing event: %w", err)
	}

	if err := settlement.UpdateBenchmarkPrice(event.BenchmarkID, avgPrice, currency, formula, event.PeriodStart, event.PeriodEnd, operator); err != nil {
		return err
	}
	if err := s.repo.Save(ctx, settlement); err != nil {
		return fmt.Errorf("failed to save settlement: %w", err)
	}

	slog.InfoContext(ctx, "benchmark price applied",
		"settlement_no", settlement.SettlementNo,
		"benchmark_id", event.BenchmarkID,
		"average_price", avgPrice.String(),
		"quoted_days", quotedDays,
		"pricing_days", event.TotalPricingDays)
	return nil
}

// SetExchangeRate 设置结算单汇率
func (s *SettlementCommandService) SetExchangeRate(ctx context.Context, settlementNo string, rate decimal.Decimal, operator string) (*SettlementDTO, error) {
	return s.mutate(ctx, settlementNo, func(settlement *domain.Settlement) error {
		return settlement.SetExchangeRate(rate, operator)
	})
}

// SetCalculationQuantities 显式设置计算量与取值策略
func (s *SettlementCommandService) SetCalculationQuantities(ctx context.Context, settlementNo string, quantityMT, quantityBBL decimal.Decimal, mode domain.CalculationMode, operator string) (*SettlementDTO, error) {
	return s.mutate(ctx, settlementNo, func(settlement *domain.Settlement) error {
		return settlement.SetCalculationQuantities(quantityMT, quantityBBL, mode, operator)
	})
}

// SetAdjustment 设置调价金额
func (s *SettlementCommandService) SetAdjustment(ctx context.Context, settlementNo string, amount decimal.Decimal, operator string) (*SettlementDTO, error) {
	return s.mutate(ctx, settlementNo, func(settlement *domain.Settlement) error {
		return settlement.SetAdjustment(amount, operator)
	})
}

// Calculate 标记计算完成并发布金额事件
func (s *SettlementCommandService) Calculate(ctx context.Context, settlementNo, operator string) (*SettlementDTO, error) {
	dto, err := s.mutate(ctx, settlementNo, func(settlement *domain.Settlement) error {
		settlement.RecalculateAmounts()
		return settlement.MarkCalculated(ctx, operator)
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, domain.TopicSettlementEvents, settlementNo, domain.SettlementCalculatedEvent{
		BaseEvent:             newBaseEvent("settlement.calculated"),
		SettlementNo:          dto.SettlementNo,
		CargoValue:            decimal.RequireFromString(dto.CargoValue),
		TotalCharges:          decimal.RequireFromString(dto.TotalCharges),
		TotalSettlementAmount: decimal.RequireFromString(dto.TotalSettlementAmount),
		Currency:              dto.Currency,
	})
	return dto, nil
}

// Review 复核
func (s *SettlementCommandService) Review(ctx context.Context, settlementNo, operator string) (*SettlementDTO, error) {
	return s.mutate(ctx, settlementNo, func(settlement *domain.Settlement) error {
		return settlement.Review(ctx, operator)
	})
}

// Approve 审批
func (s *SettlementCommandService) Approve(ctx context.Context, settlementNo, operator string) (*SettlementDTO, error) {
	return s.mutate(ctx, settlementNo, func(settlement *domain.Settlement) error {
		return settlement.Approve(ctx, operator)
	})
}

// Finalize 定稿
func (s *SettlementCommandService) Finalize(ctx context.Context, settlementNo, operator string) (*SettlementDTO, error) {
	settlement, err := s.repo.FindByNo(ctx, settlementNo)
	if err != nil {
		return nil, err
	}
	if err := settlement.Finalize(ctx, operator); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, settlement); err != nil {
		return nil, fmt.Errorf("failed to save settlement: %w", err)
	}
	if s.metrics != nil {
		s.metrics.SettlementsFinalized.Inc()
	}

	s.publish(ctx, domain.TopicSettlementEvents, settlementNo, domain.SettlementFinalizedEvent{
		BaseEvent:             newBaseEvent("settlement.finalized"),
		SettlementNo:          settlement.SettlementNo,
		ContractID:            settlement.ContractID,
		TotalSettlementAmount: settlement.TotalSettlementAmount,
		Currency:              settlement.Currency,
		FinalizedBy:           operator,
	})

	slog.InfoContext(ctx, "settlement finalized",
		"settlement_no", settlementNo,
		"total_amount", settlement.TotalSettlementAmount.String(),
		"finalized_by", operator)
	return toSettlementDTO(settlement), nil
}

// Cancel 取消结算单
func (s *SettlementCommandService) Cancel(ctx context.Context, settlementNo, reason, operator string) (*SettlementDTO, error) {
	dto, err := s.mutate(ctx, settlementNo, func(settlement *domain.Settlement) error {
		return settlement.Cancel(ctx, reason, operator)
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, domain.TopicSettlementEvents, settlementNo, domain.SettlementCancelledEvent{
		BaseEvent:    newBaseEvent("settlement.cancelled"),
		SettlementNo: settlementNo,
		Reason:       reason,
		CancelledBy:  operator,
	})
	return dto, nil
}

// AddCharge 追加费用
func (s *SettlementCommandService) AddCharge(ctx context.Context, cmd *AddChargeCommand) (*SettlementDTO, error) {
	settlement, err := s.repo.FindByNo(ctx, cmd.SettlementNo)
	if err != nil {
		return nil, err
	}
	charge, err := settlement.AddCharge(cmd.ChargeType, cmd.Description, cmd.Amount, cmd.Currency, cmd.IncurredAt, cmd.Reference, cmd.Operator)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, settlement); err != nil {
		return nil, fmt.Errorf("failed to save settlement: %w", err)
	}

	s.publish(ctx, domain.TopicSettlementEvents, cmd.SettlementNo, domain.ChargeAddedEvent{
		BaseEvent:    newBaseEvent("settlement.charge_added"),
		SettlementNo: cmd.SettlementNo,
		ChargeNo:     charge.ChargeNo,
		ChargeType:   charge.ChargeType,
		Amount:       charge.Amount,
		Currency:     charge.Currency,
	})
	return toSettlementDTO(settlement), nil
}

// RemoveCharge 删除费用
func (s *SettlementCommandService) RemoveCharge(ctx context.Context, settlementNo, chargeNo, operator string) (*SettlementDTO, error) {
	return s.mutate(ctx, settlementNo, func(settlement *domain.Settlement) error {
		return settlement.RemoveCharge(chargeNo, operator)
	})
}

// mutate 加载、变更、保存的公共骨架
func (s *SettlementCommandService) mutate(ctx context.Context, settlementNo string, fn func(*domain.Settlement) error) (*SettlementDTO, error) {
	settlement, err := s.repo.FindByNo(ctx, settlementNo)
	if err != nil {
		return nil, err
	}
	if err := fn(settlement); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, settlement); err != nil {
		return nil, fmt.Errorf("failed to save settlement: %w", err)
	}
	return toSettlementDTO(settlement), nil
}

func (s *SettlementCommandService) publish(ctx context.Context, topic, key string, event any) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, topic, key, event); err != nil {
		slog.WarnContext(ctx, "failed to publish domain event", "topic", topic, "key", key, "error", err)
	}
}

func newBaseEvent(eventType string) domain.BaseEvent {
	return domain.BaseEvent{
		EventID:    uuid.NewString(),
		EventType:  eventType,
		OccurredAt: time.Now(),
	}
}
