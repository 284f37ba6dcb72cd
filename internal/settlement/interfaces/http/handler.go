// Package http 结算上下文的 HTTP 接口层。
package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/wyfcoding/oiltrading/internal/settlement/application"
	"github.com/wyfcoding/oiltrading/internal/settlement/domain"
)

// Handler 结算 HTTP 处理器
type Handler struct {
	commands *application.SettlementCommandService
	payments *application.PaymentCommandService
	queries  *application.SettlementQueryService
}

// NewHandler 创建并返回一个新的 Handler 实例。
func NewHandler(
	commands *application.SettlementCommandService,
	payments *application.PaymentCommandService,
	queries *application.SettlementQueryService,
) *Handler {
	return &Handler{commands: commands, payments: payments, queries: queries}
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		settlements := api.Group("/settlements")
		{
			settlements.POST("", h.CreateSettlement)
			settlements.GET("/:no", h.GetSettlement)
			settlements.POST("/:no/data", h.EnterData)
			settlements.POST("/:no/pricing", h.ApplyPricing)
			settlements.POST("/:no/calculation-quantities", h.SetCalculationQuantities)
			settlements.POST("/:no/exchange-rate", h.SetExchangeRate)
			settlements.POST("/:no/adjustment", h.SetAdjustment)
			settlements.POST("/:no/calculate", h.Calculate)
			settlements.POST("/:no/review", h.Review)
			settlements.POST("/:no/approve", h.Approve)
			settlements.POST("/:no/finalize", h.Finalize)
			settlements.POST("/:no/cancel", h.Cancel)
			settlements.POST("/:no/charges", h.AddCharge)
			settlements.DELETE("/:no/charges/:chargeNo", h.RemoveCharge)
			settlements.GET("/:no/payments", h.ListPayments)
			settlements.GET("/:no/payments/summary", h.PaymentSummary)
			settlements.GET("/:no/pricing-events", h.ListPricingEvents)
			settlements.POST("/:no/payments", h.CreatePayment)
		}
		payments := api.Group("/payments")
		{
			payments.POST("/:no/initiate", h.InitiatePayment)
			payments.POST("/:no/dispatch", h.DispatchPayment)
			payments.POST("/:no/complete", h.CompletePayment)
			payments.POST("/:no/fail", h.FailPayment)
			payments.POST("/:no/cancel", h.CancelPayment)
			payments.POST("/:no/return", h.ReturnPayment)
		}
		api.POST("/pricing-events/:eventNo/confirm", h.ConfirmPricing)
		api.GET("/contracts/:id/settlements", h.ListByContract)
	}
}

type createSettlementRequest struct {
	ContractID   string `json:"contract_id" binding:"required"`
	ContractSide string `json:"contract_side" binding:"required"`
	PartnerCode  string `json:"partner_code"`
	ProductCode  string `json:"product_code"`
	DocumentType string `json:"document_type" binding:"required"`
	Currency     string `json:"currency" binding:"required"`
	Operator     string `json:"operator" binding:"required"`
}

// CreateSettlement 创建结算单
func (h *Handler) CreateSettlement(c *gin.Context) {
	var req createSettlementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	dto, err := h.commands.CreateSettlement(c.Request.Context(), &application.CreateSettlementCommand{
		ContractID:   req.ContractID,
		ContractSide: domain.ContractSide(req.ContractSide),
		PartnerCode:  req.PartnerCode,
		ProductCode:  req.ProductCode,
		DocumentType: domain.DocumentType(req.DocumentType),
		Currency:     req.Currency,
		Operator:     req.Operator,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto)
}

// GetSettlement 查询结算单
func (h *Handler) GetSettlement(c *gin.Context) {
	dto, err := h.queries.GetSettlement(c.Request.Context(), c.Param("no"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto)
}

type enterDataRequest struct {
	DocumentNo   string `json:"document_no" binding:"required"`
	DocumentDate string `json:"document_date" binding:"required"`
	QuantityMT   string `json:"quantity_mt" binding:"required"`
	QuantityBBL  string `json:"quantity_bbl"`
	Operator     string `json:"operator" binding:"required"`
}

// EnterData 录入结算数据
func (h *Handler) EnterData(c *gin.Context) {
	var req enterDataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	docDate, err := time.Parse(time.DateOnly, req.DocumentDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid document_date, expected YYYY-MM-DD"})
		return
	}
	quantityMT, err := decimal.NewFromString(req.QuantityMT)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid quantity_mt"})
		return
	}
	quantityBBL := decimal.Zero
	if req.QuantityBBL != "" {
		if quantityBBL, err = decimal.NewFromString(req.QuantityBBL); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid quantity_bbl"})
			return
		}
	}

	dto, err := h.commands.EnterData(c.Request.Context(), &application.EnterDataCommand{
		SettlementNo: c.Param("no"),
		DocumentNo:   req.DocumentNo,
		DocumentDate: docDate,
		QuantityMT:   quantityMT,
		QuantityBBL:  quantityBBL,
		Operator:     req.Operator,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto)
}

type setCalculationQuantitiesRequest struct {
	QuantityMT  string `json:"quantity_mt" binding:"required"`
	QuantityBBL string `json:"quantity_bbl"`
	Mode        string `json:"mode" binding:"required"`
	Operator    string `json:"operator" binding:"required"`
}

// SetCalculationQuantities 显式设置计算量与取值策略
func (h *Handler) SetCalculationQuantities(c *gin.Context) {
	var req setCalculationQuantitiesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	quantityMT, err := decimal.NewFromString(req.QuantityMT)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid quantity_mt"})
		return
	}
	quantityBBL := decimal.Zero
	if req.QuantityBBL != "" {
		if quantityBBL, err = decimal.NewFromString(req.QuantityBBL); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid quantity_bbl"})
			return
		}
	}

	dto, err := h.commands.SetCalculationQuantities(c.Request.Context(), c.Param("no"),
		quantityMT, quantityBBL, domain.CalculationMode(req.Mode), req.Operator)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto)
}

type applyPricingRequest struct {
	BenchmarkID     string `json:"benchmark_id" binding:"required"`
	EventType       string `json:"event_type" binding:"required"`
	EventDate       string `json:"event_date" binding:"required"`
	BeforeDays      int    `json:"before_days"`
	AfterDays       int    `json:"after_days"`
	IncludeEventDay bool   `json:"include_event_day"`
	PriceFormula    string `json:"price_formula"`
	Operator        string `json:"operator" binding:"required"`
}

// ApplyPricing 应用事件锚定的定价窗口
func (h *Handler) ApplyPricing(c *gin.Context) {
	var req applyPricingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	eventDate, err := time.Parse(time.DateOnly, req.EventDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event_date, expected YYYY-MM-DD"})
		return
	}

	dto, err := h.commands.ApplyPricing(c.Request.Context(), &application.ApplyPricingCommand{
		SettlementNo:    c.Param("no"),
		BenchmarkID:     req.BenchmarkID,
		EventType:       domain.PricingEventType(req.EventType),
		EventDate:       eventDate,
		BeforeDays:      req.BeforeDays,
		AfterDays:       req.AfterDays,
		IncludeEventDay: req.IncludeEventDay,
		PriceFormula:    req.PriceFormula,
		Operator:        req.Operator,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto)
}

type confirmPricingRequest struct {
	ActualEventDate string `json:"actual_event_date" binding:"required"`
	PriceFormula    string `json:"price_formula"`
	Operator        string `json:"operator" binding:"required"`
}

// ConfirmPricing 以实际事件日确认定价事件
func (h *Handler) ConfirmPricing(c *gin.Context) {
	var req confirmPricingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	actualDate, err := time.Parse(time.DateOnly, req.ActualEventDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid actual_event_date, expected YYYY-MM-DD"})
		return
	}

	dto, err := h.commands.ConfirmPricing(c.Request.Context(), &application.ConfirmPricingCommand{
		EventNo:         c.Param("eventNo"),
		ActualEventDate: actualDate,
		PriceFormula:    req.PriceFormula,
		Operator:        req.Operator,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto)
}

type amountRequest struct {
	Amount   string `json:"amount" binding:"required"`
	Operator string `json:"operator" binding:"required"`
}

// SetExchangeRate 设置汇率
func (h *Handler) SetExchangeRate(c *gin.Context) {
	var req amountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rate, err := decimal.NewFromString(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
		return
	}
	dto, err := h.commands.SetExchangeRate(c.Request.Context(), c.Param("no"), rate, req.Operator)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto)
}

// SetAdjustment 设置调价金额
func (h *Handler) SetAdjustment(c *gin.Context) {
	var req amountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
		return
	}
	dto, err := h.commands.SetAdjustment(c.Request.Context(), c.Param("no"), amount, req.Operator)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto)
}

type operatorRequest struct {
	Operator string `json:"operator" binding:"required"`
}

// Calculate 计算结算金额
func (h *Handler) Calculate(c *gin.Context) {
	h.lifecycle(c, h.commands.Calculate)
}

// Review 复核
func (h *Handler) Review(c *gin.Context) {
	h.lifecycle(c, h.commands.Review)
}

// Approve 审批
func (h *Handler) Approve(c *gin.Context) {
	h.lifecycle(c, h.commands.Approve)
}

// Finalize 定稿
func (h *Handler) Finalize(c *gin.Context) {
	h.lifecycle(c, h.commands.Finalize)
}

func (h *Handler) lifecycle(c *gin.Context, fn func(ctx context.Context, settlementNo, operator string) (*application.SettlementDTO, error)) {
	var req operatorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	dto, err := fn(c.Request.Context(), c.Param("no"), req.Operator)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto)
}

type cancelRequest struct {
	Reason   string `json:"reason" binding:"required"`
	Operator string `json:"operator" binding:"required"`
}

// Cancel 取消结算单
func (h *Handler) Cancel(c *gin.Context) {
	var req cancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	dto, err := h.commands.Cancel(c.Request.Context(), c.Param("no"), req.Reason, req.Operator)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto)
}

type addChargeRequest struct {
	ChargeType  string `json:"charge_type" binding:"required"`
	Description string `json:"description"`
	Amount      string `json:"amount" binding:"required"`
	Currency    string `json:"currency" binding:"required"`
	IncurredAt  string `json:"incurred_at"`
	Reference   string `json:"reference"`
	Operator    string `json:"operator" binding:"required"`
}

// AddCharge 追加费用
func (h *Handler) AddCharge(c *gin.Context) {
	var req addChargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
		return
	}
	var incurredAt *time.Time
	if req.IncurredAt != "" {
		d, err := time.Parse(time.DateOnly, req.IncurredAt)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid incurred_at, expected YYYY-MM-DD"})
			return
		}
		incurredAt = &d
	}

	dto, err := h.commands.AddCharge(c.Request.Context(), &application.AddChargeCommand{
		SettlementNo: c.Param("no"),
		ChargeType:   domain.ChargeType(req.ChargeType),
		Description:  req.Description,
		Amount:       amount,
		Currency:     req.Currency,
		IncurredAt:   incurredAt,
		Reference:    req.Reference,
		Operator:     req.Operator,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto)
}

// RemoveCharge 删除费用
func (h *Handler) RemoveCharge(c *gin.Context) {
	operator := c.Query("operator")
	dto, err := h.commands.RemoveCharge(c.Request.Context(), c.Param("no"), c.Param("chargeNo"), operator)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto)
}

// ListByContract 查询合同下的结算单
func (h *Handler) ListByContract(c *gin.Context) {
	dtos, err := h.queries.ListByContract(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"settlements": dtos, "total": len(dtos)})
}

type createPaymentRequest struct {
	Direction    string `json:"direction" binding:"required"`
	Method       string `json:"method" binding:"required"`
	Amount       string `json:"amount" binding:"required"`
	Currency     string `json:"currency" binding:"required"`
	DueDate      string `json:"due_date"`
	PayerBank    string `json:"payer_bank"`
	PayerAccount string `json:"payer_account"`
	PayeeBank    string `json:"payee_bank"`
	PayeeAccount string `json:"payee_account"`
	Operator     string `json:"operator" binding:"required"`
}

// CreatePayment 创建付款
func (h *Handler) CreatePayment(c *gin.Context) {
	var req createPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
		return
	}
	var dueDate *time.Time
	if req.DueDate != "" {
		d, err := time.Parse(time.DateOnly, req.DueDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid due_date, expected YYYY-MM-DD"})
			return
		}
		dueDate = &d
	}

	dto, err := h.payments.CreatePayment(c.Request.Context(), &application.CreatePaymentCommand{
		SettlementNo: c.Param("no"),
		Direction:    domain.PaymentDirection(req.Direction),
		Method:       domain.PaymentMethod(req.Method),
		Amount:       amount,
		Currency:     req.Currency,
		DueDate:      dueDate,
		PayerBank:    req.PayerBank,
		PayerAccount: req.PayerAccount,
		PayeeBank:    req.PayeeBank,
		PayeeAccount: req.PayeeAccount,
		Operator:     req.Operator,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto)
}

// ListPayments 查询付款列表
func (h *Handler) ListPayments(c *gin.Context) {
	dtos, err := h.queries.ListPayments(c.Request.Context(), c.Param("no"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payments": dtos, "total": len(dtos)})
}

// PaymentSummary 付款汇总
func (h *Handler) PaymentSummary(c *gin.Context) {
	summary, err := h.queries.GetPaymentSummary(c.Request.Context(), c.Param("no"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// ListPricingEvents 查询定价事件
func (h *Handler) ListPricingEvents(c *gin.Context) {
	dtos, err := h.queries.ListPricingEvents(c.Request.Context(), c.Param("no"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pricing_events": dtos, "total": len(dtos)})
}

type paymentActionRequest struct {
	BankRef   string `json:"bank_reference"`
	ValueDate string `json:"value_date"`
	Note      string `json:"note"`
	Reason    string `json:"reason"`
	Operator  string `json:"operator" binding:"required"`
}

// InitiatePayment 发起付款
func (h *Handler) InitiatePayment(c *gin.Context) {
	var req paymentActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	dto, err := h.payments.Initiate(c.Request.Context(), c.Param("no"), req.BankRef, req.Operator)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto)
}

// DispatchPayment 资金出账
func (h *Handler) DispatchPayment(c *gin.Context) {
	var req paymentActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	dto, err := h.payments.Dispatch(c.Request.Context(), c.Param("no"), req.Operator)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto)
}

// CompletePayment 付款完成
func (h *Handler) CompletePayment(c *gin.Context) {
	var req paymentActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	valueDate := time.Now()
	if req.ValueDate != "" {
		d, err := time.Parse(time.DateOnly, req.ValueDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid value_date, expected YYYY-MM-DD"})
			return
		}
		valueDate = d
	}
	dto, err := h.payments.Complete(c.Request.Context(), c.Param("no"), valueDate, req.Operator)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto)
}

// FailPayment 付款失败
func (h *Handler) FailPayment(c *gin.Context) {
	var req paymentActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	dto, err := h.payments.Fail(c.Request.Context(), c.Param("no"), req.Note, req.Operator)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto)
}

// CancelPayment 取消付款
func (h *Handler) CancelPayment(c *gin.Context) {
	var req paymentActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	dto, err := h.payments.Cancel(c.Request.Context(), c.Param("no"), req.Reason, req.Operator)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto)
}

// ReturnPayment 付款退回
func (h *Handler) ReturnPayment(c *gin.Context) {
	var req paymentActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	dto, err := h.payments.Return(c.Request.Context(), c.Param("no"), req.Reason, req.Operator)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto)
}

// respondError 按领域错误类型映射 HTTP 状态码
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrInvariantViolation):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrIllegalStateTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrVersionConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrExternalDependency):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
