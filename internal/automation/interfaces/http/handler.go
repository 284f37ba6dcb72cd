// Package http 规则自动化上下文的 HTTP 接口层。
package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/oiltrading/internal/automation/application"
	"github.com/wyfcoding/oiltrading/internal/automation/domain"
)

// Handler 规则 HTTP 处理器
type Handler struct {
	service   *application.RuleService
	scheduler *application.Scheduler
}

// NewHandler 创建并返回一个新的 Handler 实例。
func NewHandler(service *application.RuleService, scheduler *application.Scheduler) *Handler {
	return &Handler{service: service, scheduler: scheduler}
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		rules := api.Group("/rules")
		{
			rules.POST("", h.CreateRule)
			rules.GET("", h.ListRules)
			rules.GET("/:no", h.GetRule)
			rules.PUT("/:no/conditions", h.SetConditions)
			rules.PUT("/:no/actions", h.SetActions)
			rules.PUT("/:no/execution", h.UpdateExecution)
			rules.PUT("/:no/scope", h.SetScope)
			rules.POST("/:no/enable", h.EnableRule)
			rules.POST("/:no/disable", h.DisableRule)
			rules.POST("/:no/trigger", h.TriggerRule)
			rules.GET("/:no/executions", h.ListExecutions)
		}
	}
}

type createRuleRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	RuleType    string `json:"rule_type" binding:"required"`
	TriggerType string `json:"trigger_type" binding:"required"`
	Strategy    string `json:"strategy" binding:"required"`
	Scope       string `json:"scope"`
	ScopeFilter string `json:"scope_filter"`
	Schedule    string `json:"schedule"`
	EventTopic  string `json:"event_topic"`
	Operator    string `json:"operator" binding:"required"`
}

// CreateRule 创建规则
func (h *Handler) CreateRule(c *gin.Context) {
	var req createRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rule, err := h.service.CreateRule(c.Request.Context(), &application.CreateRuleCommand{
		Name:        req.Name,
		Description: req.Description,
		RuleType:    domain.RuleType(req.RuleType),
		TriggerType: domain.TriggerType(req.TriggerType),
		Strategy:    domain.ExecutionStrategy(req.Strategy),
		Scope:       domain.RuleScope(req.Scope),
		ScopeFilter: req.ScopeFilter,
		Schedule:    req.Schedule,
		EventTopic:  req.EventTopic,
		Operator:    req.Operator,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rule)
}

// ListRules 分页列出规则
func (h *Handler) ListRules(c *gin.Context) {
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	rules, total, err := h.service.ListRules(c.Request.Context(), offset, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rules": rules, "total": total})
}

// GetRule 查询规则
func (h *Handler) GetRule(c *gin.Context) {
	rule, err := h.service.GetRule(c.Request.Context(), c.Param("no"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

type conditionPayload struct {
	Field     string `json:"field" binding:"required"`
	Operator  string `json:"operator" binding:"required"`
	Value     string `json:"value"`
	LogicalOp string `json:"logical_op"`
	GroupRef  string `json:"group_ref"`
}

type setConditionsRequest struct {
	Conditions []conditionPayload `json:"conditions" binding:"required"`
	Operator   string             `json:"operator" binding:"required"`
}

// SetConditions 替换规则条件
func (h *Handler) SetConditions(c *gin.Context) {
	var req setConditionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	conditions := make([]domain.RuleCondition, 0, len(req.Conditions))
	for _, p := range req.Conditions {
		conditions = append(conditions, domain.RuleCondition{
			Field:     p.Field,
			Operator:  domain.ConditionOperator(p.Operator),
			Value:     p.Value,
			LogicalOp: domain.LogicalOperator(p.LogicalOp),
			GroupRef:  p.GroupRef,
		})
	}
	rule, err := h.service.SetConditions(c.Request.Context(), c.Param("no"), conditions, req.Operator)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

type actionPayload struct {
	ActionType    string `json:"action_type" binding:"required"`
	Parameters    string `json:"parameters"`
	StopOnFailure bool   `json:"stop_on_failure"`
}

type setActionsRequest struct {
	Actions  []actionPayload `json:"actions" binding:"required"`
	Operator string          `json:"operator" binding:"required"`
}

// SetActions 替换规则动作
func (h *Handler) SetActions(c *gin.Context) {
	var req setActionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	actions := make([]domain.RuleAction, 0, len(req.Actions))
	for _, p := range req.Actions {
		actions = append(actions, domain.RuleAction{
			ActionType:    domain.ActionType(p.ActionType),
			Parameters:    p.Parameters,
			StopOnFailure: p.StopOnFailure,
		})
	}
	rule, err := h.service.SetActions(c.Request.Context(), c.Param("no"), actions, req.Operator)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

type updateExecutionRequest struct {
	Strategy             string `json:"strategy" binding:"required"`
	GroupingDimension    string `json:"grouping_dimension"`
	MaxSettlements       int    `json:"max_settlements_per_execution"`
	MaxParallelism       int    `json:"max_parallelism"`
	ActionTimeoutSeconds int    `json:"action_timeout_seconds"`
	Operator             string `json:"operator" binding:"required"`
}

// UpdateExecution 更新执行参数
func (h *Handler) UpdateExecution(c *gin.Context) {
	var req updateExecutionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rule, err := h.service.UpdateExecution(c.Request.Context(), c.Param("no"),
		domain.ExecutionStrategy(req.Strategy), domain.GroupingDimension(req.GroupingDimension),
		req.MaxSettlements, req.MaxParallelism, req.ActionTimeoutSeconds, req.Operator)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

type setScopeRequest struct {
	Scope       string `json:"scope" binding:"required"`
	ScopeFilter string `json:"scope_filter"`
	Operator    string `json:"operator" binding:"required"`
}

// SetScope 更新规则作用域
func (h *Handler) SetScope(c *gin.Context) {
	var req setScopeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rule, err := h.service.SetScope(c.Request.Context(), c.Param("no"),
		domain.RuleScope(req.Scope), req.ScopeFilter, req.Operator)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

type operatorRequest struct {
	Operator string `json:"operator" binding:"required"`
}

// EnableRule 启用规则并刷新调度表
func (h *Handler) EnableRule(c *gin.Context) {
	var req operatorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rule, err := h.service.EnableRule(c.Request.Context(), c.Param("no"), req.Operator)
	if err != nil {
		respondError(c, err)
		return
	}
	h.reloadScheduler(c)
	c.JSON(http.StatusOK, rule)
}

// DisableRule 禁用规则并刷新调度表
func (h *Handler) DisableRule(c *gin.Context) {
	var req operatorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rule, err := h.service.DisableRule(c.Request.Context(), c.Param("no"), req.Operator)
	if err != nil {
		respondError(c, err)
		return
	}
	h.reloadScheduler(c)
	c.JSON(http.StatusOK, rule)
}

// TriggerRule 人工触发
func (h *Handler) TriggerRule(c *gin.Context) {
	var req operatorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	execution, err := h.service.TriggerRule(c.Request.Context(), c.Param("no"), domain.TriggerManual, req.Operator)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, execution)
}

// ListExecutions 查询执行历史
func (h *Handler) ListExecutions(c *gin.Context) {
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	executions, total, err := h.service.ListExecutions(c.Request.Context(), c.Param("no"), offset, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"executions": executions, "total": total})
}

func (h *Handler) reloadScheduler(c *gin.Context) {
	if h.scheduler == nil {
		return
	}
	// 调度表刷新失败不影响本次请求结果，下次规则变更或重启时会重建
	if err := h.scheduler.Reload(c.Request.Context()); err != nil {
		slog.WarnContext(c.Request.Context(), "failed to reload rule scheduler", "error", err)
	}
}

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
