package application

import (
	"time"

	"github.com/wyfcoding/oiltrading/internal/settlement/domain"
)

// SettlementDTO 结算单视图对象，金额以字符串形式输出避免精度丢失
type SettlementDTO struct {
	SettlementNo          string      `json:"settlement_no"`
	ContractID            string      `json:"contract_id"`
	ContractSide          string      `json:"contract_side"`
	PartnerCode           string      `json:"partner_code"`
	ProductCode           string      `json:"product_code"`
	DocumentType          string      `json:"document_type"`
	DocumentNo            string      `json:"document_no"`
	ActualQuantityMT      string      `json:"actual_quantity_mt"`
	CalculationQuantityMT string      `json:"calculation_quantity_mt"`
	CalculationMode       string      `json:"calculation_mode"`
	BenchmarkID           string      `json:"benchmark_id"`
	BenchmarkPrice        string      `json:"benchmark_price"`
	Currency              string      `json:"currency"`
	BenchmarkAmount       string      `json:"benchmark_amount"`
	AdjustmentAmount      string      `json:"adjustment_amount"`
	CargoValue            string      `json:"cargo_value"`
	TotalCharges          string      `json:"total_charges"`
	TotalSettlementAmount string      `json:"total_settlement_amount"`
	Status                string      `json:"status"`
	IsFinalized           bool        `json:"is_finalized"`
	FinalizedBy           string      `json:"finalized_by,omitempty"`
	FinalizedAt           int64       `json:"finalized_at,omitempty"`
	Charges               []ChargeDTO `json:"charges"`
	Version               int64       `json:"version"`
}

// ChargeDTO 费用视图对象
type ChargeDTO struct {
	ChargeNo    string `json:"charge_no"`
	ChargeType  string `json:"charge_type"`
	Description string `json:"description"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	Reference   string `json:"reference,omitempty"`
	IncurredAt  int64  `json:"incurred_at,omitempty"`
}

// PaymentDTO 付款视图对象
type PaymentDTO struct {
	PaymentNo    string `json:"payment_no"`
	SettlementNo string `json:"settlement_no"`
	Direction    string `json:"direction"`
	Method       string `json:"method"`
	Amount       string `json:"amount"`
	Currency     string `json:"currency"`
	Status       string `json:"status"`
	BankRef      string `json:"bank_reference,omitempty"`
	PayerBank    string `json:"payer_bank,omitempty"`
	PayerAccount string `json:"payer_account,omitempty"`
	PayeeBank    string `json:"payee_bank,omitempty"`
	PayeeAccount string `json:"payee_account,omitempty"`
	DueDate      int64  `json:"due_date,omitempty"`
	ValueDate    int64  `json:"value_date,omitempty"`
	FailureNote  string `json:"failure_note,omitempty"`
}

// PricingEventDTO 定价事件视图对象
type PricingEventDTO struct {
	EventNo          string `json:"event_no"`
	SettlementNo     string `json:"settlement_no"`
	BenchmarkID      string `json:"benchmark_id"`
	EventType        string `json:"event_type"`
	EventDate        string `json:"event_date"`
	BeforeDays       int    `json:"before_days"`
	AfterDays        int    `json:"after_days"`
	IncludeEventDay  bool   `json:"include_event_day"`
	PeriodStart      string `json:"period_start"`
	PeriodEnd        string `json:"period_end"`
	TotalPricingDays int    `json:"total_pricing_days"`
	AveragePrice     string `json:"average_price"`
	Currency         string `json:"currency"`
	QuotedDays       int    `json:"quoted_days"`
	IsConfirmed      bool   `json:"is_confirmed"`
	ActualEventDate  string `json:"actual_event_date,omitempty"`
}

func toSettlementDTO(agg *domain.Settlement) *SettlementDTO {
	var finalizedAt int64
	if agg.FinalizedAt != nil {
		finalizedAt = agg.FinalizedAt.Unix()
	}
	charges := make([]ChargeDTO, 0, len(agg.Charges))
	for i := range agg.Charges {
		charges = append(charges, toChargeDTO(&agg.Charges[i]))
	}
	return &SettlementDTO{
		SettlementNo:          agg.SettlementNo,
		ContractID:            agg.ContractID,
		ContractSide:          string(agg.ContractSide),
		PartnerCode:           agg.PartnerCode,
		ProductCode:           agg.ProductCode,
		DocumentType:          string(agg.DocumentType),
		DocumentNo:            agg.DocumentNo,
		ActualQuantityMT:      agg.ActualQuantityMT.String(),
		CalculationQuantityMT: agg.CalculationQuantityMT.String(),
		CalculationMode:       string(agg.CalculationMode),
		BenchmarkID:           agg.BenchmarkID,
		BenchmarkPrice:        agg.BenchmarkPrice.String(),
		Currency:              agg.Currency,
		BenchmarkAmount:       agg.BenchmarkAmount.String(),
		AdjustmentAmount:      agg.AdjustmentAmount.String(),
		CargoValue:            agg.CargoValue.String(),
		TotalCharges:          agg.TotalCharges.String(),
		TotalSettlementAmount: agg.TotalSettlementAmount.String(),
		Status:                string(agg.Status),
		IsFinalized:           agg.IsFinalized,
		FinalizedBy:           agg.FinalizedBy,
		FinalizedAt:           finalizedAt,
		Charges:               charges,
		Version:               agg.Version,
	}
}

func toChargeDTO(c *domain.SettlementCharge) ChargeDTO {
	var incurredAt int64
	if c.IncurredAt != nil {
		incurredAt = c.IncurredAt.Unix()
	}
	return ChargeDTO{
		ChargeNo:    c.ChargeNo,
		ChargeType:  string(c.ChargeType),
		Description: c.Description,
		Amount:      c.Amount.String(),
		Currency:    c.Currency,
		Reference:   c.Reference,
		IncurredAt:  incurredAt,
	}
}

func toPaymentDTO(p *domain.Payment) *PaymentDTO {
	var dueDate, valueDate int64
	if p.DueDate != nil {
		dueDate = p.DueDate.Unix()
	}
	if p.ValueDate != nil {
		valueDate = p.ValueDate.Unix()
	}
	return &PaymentDTO{
		PaymentNo:    p.PaymentNo,
		SettlementNo: p.SettlementNo,
		Direction:    string(p.Direction),
		Method:       string(p.Method),
		Amount:       p.Amount.String(),
		Currency:     p.Currency,
		Status:       string(p.Status),
		BankRef:      p.BankReference,
		PayerBank:    p.PayerBank,
		PayerAccount: p.PayerAccount,
		PayeeBank:    p.PayeeBank,
		PayeeAccount: p.PayeeAccount,
		DueDate:      dueDate,
		ValueDate:    valueDate,
		FailureNote:  p.FailureNote,
	}
}

func toPricingEventDTO(e *domain.PricingEvent) *PricingEventDTO {
	var actualDate string
	if e.ActualEventDate != nil {
		actualDate = e.ActualEventDate.Format(time.DateOnly)
	}
	return &PricingEventDTO{
		EventNo:          e.EventNo,
		SettlementNo:     e.SettlementNo,
		BenchmarkID:      e.BenchmarkID,
		EventType:        string(e.EventType),
		EventDate:        e.Window.EventDate.Format(time.DateOnly),
		BeforeDays:       e.Window.BeforeDays,
		AfterDays:        e.Window.AfterDays,
		IncludeEventDay:  e.Window.IncludeEventDay,
		PeriodStart:      e.PeriodStart.Format(time.DateOnly),
		PeriodEnd:        e.PeriodEnd.Format(time.DateOnly),
		TotalPricingDays: e.TotalPricingDays,
		AveragePrice:     e.AveragePrice.String(),
		Currency:         e.PriceCurrency,
		QuotedDays:       e.QuotedDays,
		IsConfirmed:      e.IsConfirmed,
		ActualEventDate:  actualDate,
	}
}
