// Package http 合同匹配上下文的 HTTP 接口层。
package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/wyfcoding/oiltrading/internal/matching/application"
	"github.com/wyfcoding/oiltrading/internal/matching/domain"
)

// Handler 匹配 HTTP 处理器
type Handler struct {
	service *application.MatchingService
}

// NewHandler 创建并返回一个新的 Handler 实例。
func NewHandler(service *application.MatchingService) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		ledgers := api.Group("/matching/ledgers")
		{
			ledgers.POST("", h.CreateLedger)
			ledgers.GET("/:no", h.GetLedger)
			ledgers.POST("/:no/contracts", h.RegisterContract)
			ledgers.PUT("/:no/contracts/quantity", h.AdjustQuantity)
			ledgers.GET("/:no/position", h.GetPosition)
			ledgers.POST("/:no/matches", h.CreateMatch)
			ledgers.POST("/:no/matches/:matchNo/release", h.ReleaseMatch)
		}
		groups := api.Group("/matching/trade-groups")
		{
			groups.POST("", h.CreateTradeGroup)
			groups.GET("/:no", h.GetTradeGroup)
			groups.POST("/:no/legs", h.AddGroupLeg)
			groups.POST("/:no/close", h.CloseTradeGroup)
		}
	}
}

type createLedgerRequest struct {
	ProductCode string `json:"product_code" binding:"required"`
	Operator    string `json:"operator" binding:"required"`
}

// CreateLedger 创建匹配台账
func (h *Handler) CreateLedger(c *gin.Context) {
	var req createLedgerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ledger, err := h.service.CreateLedger(c.Request.Context(), req.ProductCode, req.Operator)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ledger)
}

// GetLedger 查询台账
func (h *Handler) GetLedger(c *gin.Context) {
	ledger, err := h.service.GetLedger(c.Request.Context(), c.Param("no"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ledger)
}

type registerContractRequest struct {
	ContractKind string `json:"contract_kind" binding:"required"`
	ContractID   string `json:"contract_id" binding:"required"`
	QuantityMT   string `json:"quantity_mt" binding:"required"`
}

// RegisterContract 登记合同
func (h *Handler) RegisterContract(c *gin.Context) {
	var req registerContractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	quantity, err := decimal.NewFromString(req.QuantityMT)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid quantity_mt"})
		return
	}
	ledger, err := h.service.RegisterContract(c.Request.Context(), &application.RegisterContractCommand{
		LedgerNo:        c.Param("no"),
		ContractKind:    domain.ContractKind(req.ContractKind),
		ContractID:      req.ContractID,
		TotalQuantityMT: quantity,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ledger)
}

// AdjustQuantity 调整合同总量
func (h *Handler) AdjustQuantity(c *gin.Context) {
	var req registerContractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	quantity, err := decimal.NewFromString(req.QuantityMT)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid quantity_mt"})
		return
	}
	ref := domain.ContractRef{Kind: domain.ContractKind(req.ContractKind), ID: req.ContractID}
	ledger, err := h.service.AdjustContractQuantity(c.Request.Context(), c.Param("no"), ref, quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ledger)
}

// GetPosition 查询合同头寸
func (h *Handler) GetPosition(c *gin.Context) {
	ref := domain.ContractRef{
		Kind: domain.ContractKind(c.Query("kind")),
		ID:   c.Query("contract_id"),
	}
	if !ref.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "kind and contract_id query params are required"})
		return
	}
	position, err := h.service.GetPosition(c.Request.Context(), c.Param("no"), ref)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"contract":     position.Ref.String(),
		"total_mt":     position.TotalQuantityMT.String(),
		"matched_mt":   position.MatchedMT.String(),
		"available_mt": position.AvailableMT.String(),
	})
}

type createMatchRequest struct {
	PurchaseContractID string `json:"purchase_contract_id" binding:"required"`
	SalesContractID    string `json:"sales_contract_id" binding:"required"`
	QuantityMT         string `json:"quantity_mt" binding:"required"`
	Operator           string `json:"operator" binding:"required"`
}

// CreateMatch 建立匹配
func (h *Handler) CreateMatch(c *gin.Context) {
	var req createMatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	quantity, err := decimal.NewFromString(req.QuantityMT)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid quantity_mt"})
		return
	}
	match, err := h.service.CreateMatch(c.Request.Context(), &application.CreateMatchCommand{
		LedgerNo:           c.Param("no"),
		PurchaseContractID: req.PurchaseContractID,
		SalesContractID:    req.SalesContractID,
		QuantityMT:         quantity,
		Operator:           req.Operator,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, match)
}

type releaseMatchRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// ReleaseMatch 解除匹配
func (h *Handler) ReleaseMatch(c *gin.Context) {
	var req releaseMatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.service.ReleaseMatch(c.Request.Context(), c.Param("no"), c.Param("matchNo"), req.Reason); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"released": true})
}

type createTradeGroupRequest struct {
	Name        string `json:"name" binding:"required"`
	ProductCode string `json:"product_code"`
	Operator    string `json:"operator" binding:"required"`
}

// CreateTradeGroup 创建贸易组
func (h *Handler) CreateTradeGroup(c *gin.Context) {
	var req createTradeGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	group, err := h.service.CreateTradeGroup(c.Request.Context(), req.Name, req.ProductCode, req.Operator)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, group)
}

// GetTradeGroup 查询贸易组，附带损益汇总
func (h *Handler) GetTradeGroup(c *gin.Context) {
	group, err := h.service.GetTradeGroup(c.Request.Context(), c.Param("no"))
	if err != nil {
		respondError(c, err)
		return
	}
	resp := gin.H{
		"group":           group,
		"purchase_amount": group.PurchaseAmount().String(),
		"sales_amount":    group.SalesAmount().String(),
		"gross_pnl":       group.GrossPnL().String(),
		"net_quantity_mt": group.NetQuantityMT().String(),
	}
	if raw := c.Query("mark_price"); raw != "" {
		mark, err := decimal.NewFromString(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid mark_price"})
			return
		}
		resp["unrealized_pnl"] = group.UnrealizedPnL(mark).String()
	}
	c.JSON(http.StatusOK, resp)
}

type addGroupLegRequest struct {
	ContractKind string `json:"contract_kind" binding:"required"`
	ContractID   string `json:"contract_id" binding:"required"`
	QuantityMT   string `json:"quantity_mt" binding:"required"`
	Amount       string `json:"amount" binding:"required"`
	Currency     string `json:"currency" binding:"required"`
}

// AddGroupLeg 向贸易组添加成员合同
func (h *Handler) AddGroupLeg(c *gin.Context) {
	var req addGroupLegRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	quantity, err := decimal.NewFromString(req.QuantityMT)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid quantity_mt"})
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
		return
	}
	ref := domain.ContractRef{Kind: domain.ContractKind(req.ContractKind), ID: req.ContractID}
	group, err := h.service.AddGroupLeg(c.Request.Context(), c.Param("no"), ref, quantity, amount, req.Currency)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, group)
}

// CloseTradeGroup 关闭贸易组
func (h *Handler) CloseTradeGroup(c *gin.Context) {
	group, err := h.service.CloseTradeGroup(c.Request.Context(), c.Param("no"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, group)
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrInvariantViolation):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrVersionConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
