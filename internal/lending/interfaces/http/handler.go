// Package http 借贷服务接口
package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	ledger "github.com/wyfcoding/yieldmarket/internal/ledger/domain"
	"github.com/wyfcoding/yieldmarket/internal/lending/application"
	"github.com/wyfcoding/yieldmarket/internal/lending/domain"
	"github.com/wyfcoding/yieldmarket/pkg/metrics"
)

type Handler struct {
	service *application.LendingService
	metrics *metrics.Metrics
}

func NewHandler(service *application.LendingService, m *metrics.Metrics) *Handler {
	return &Handler{service: service, metrics: m}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	g := r.Group("/lending")
	{
		g.POST("/strategies", h.CreateStrategy)
		g.POST("/strategies/toggle", h.ToggleStrategy)
		g.GET("/strategies", h.ListStrategies)
		g.GET("/strategies/:mint/:id", h.GetStrategy)
		g.POST("/deposits", h.Deposit)
		g.POST("/withdrawals", h.Withdraw)
		g.POST("/yield/calculate", h.CalculateYield)
		g.POST("/yield/redeem", h.Redeem)
		g.POST("/yield/reset", h.ResetYield)
		g.GET("/positions/:owner/:mint/:id", h.GetPosition)
	}
}

// statusOf 领域错误到 HTTP 状态码的映射；未识别的一律 500
func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrStrategyNotFound),
		errors.Is(err, domain.ErrPositionNotFound),
		errors.Is(err, ledger.ErrMintNotFound),
		errors.Is(err, ledger.ErrAccountNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrDuplicateStrategy):
		return http.StatusConflict
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrInvalidAPY),
		errors.Is(err, domain.ErrZeroAmount),
		errors.Is(err, domain.ErrInsufficientDepositAmount),
		errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrStrategyInactive),
		errors.Is(err, domain.ErrTooEarlyToRedeem),
		errors.Is(err, domain.ErrInsufficientYieldTokens),
		errors.Is(err, ledger.ErrInsufficientFunds),
		errors.Is(err, ledger.ErrZeroAmount):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) syncActiveGauge(c *gin.Context) {
	if count, err := h.service.CountActiveStrategies(c.Request.Context()); err == nil {
		h.metrics.StrategiesActive.Set(float64(count))
	}
}

type CreateStrategyReq struct {
	Admin        string `json:"admin" binding:"required"`
	TokenMint    string `json:"token_mint" binding:"required"`
	StrategyID   uint64 `json:"strategy_id"`
	RewardAPYBps int64  `json:"reward_apy_bps"`
	Name         string `json:"name" binding:"required"`
	Description  string `json:"description"`
}

func (h *Handler) CreateStrategy(c *gin.Context) {
	var req CreateStrategyReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	strategy, err := h.service.CreateStrategy(c.Request.Context(), application.CreateStrategyCmd{
		Admin:        req.Admin,
		TokenMint:    req.TokenMint,
		StrategyID:   req.StrategyID,
		RewardAPYBps: req.RewardAPYBps,
		Name:         req.Name,
		Description:  req.Description,
	})
	if err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}

	h.syncActiveGauge(c)
	c.JSON(http.StatusCreated, strategy)
}

type ToggleStrategyReq struct {
	Caller     string `json:"caller" binding:"required"`
	TokenMint  string `json:"token_mint" binding:"required"`
	StrategyID uint64 `json:"strategy_id"`
}

func (h *Handler) ToggleStrategy(c *gin.Context) {
	var req ToggleStrategyReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	strategy, err := h.service.ToggleStrategyStatus(c.Request.Context(), req.Caller, req.TokenMint, req.StrategyID)
	if err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}

	h.syncActiveGauge(c)
	c.JSON(http.StatusOK, strategy)
}

type AmountReq struct {
	User       string `json:"user" binding:"required"`
	TokenMint  string `json:"token_mint" binding:"required"`
	StrategyID uint64 `json:"strategy_id"`
	Amount     string `json:"amount" binding:"required"`
}

func (h *Handler) Deposit(c *gin.Context) {
	var req AmountReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
		return
	}

	position, err := h.service.Deposit(c.Request.Context(), application.DepositCmd{
		User:       req.User,
		TokenMint:  req.TokenMint,
		StrategyID: req.StrategyID,
		Amount:     amount,
	})
	if err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}

	h.metrics.DepositsTotal.Inc()
	c.JSON(http.StatusOK, position)
}

func (h *Handler) Withdraw(c *gin.Context) {
	var req AmountReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
		return
	}

	position, err := h.service.Withdraw(c.Request.Context(), application.WithdrawCmd{
		User:       req.User,
		TokenMint:  req.TokenMint,
		StrategyID: req.StrategyID,
		Amount:     amount,
	})
	if err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}

	h.metrics.WithdrawalsTotal.Inc()
	c.JSON(http.StatusOK, position)
}

type YieldReq struct {
	User       string `json:"user" binding:"required"`
	TokenMint  string `json:"token_mint" binding:"required"`
	StrategyID uint64 `json:"strategy_id"`
}

func (h *Handler) CalculateYield(c *gin.Context) {
	var req YieldReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	yieldEarned, err := h.service.CalculatePendingYield(c.Request.Context(), req.User, req.TokenMint, req.StrategyID)
	if err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"yield_earned": yieldEarned.String()})
}

type RedeemReq struct {
	User       string `json:"user" binding:"required"`
	TokenMint  string `json:"token_mint" binding:"required"`
	StrategyID uint64 `json:"strategy_id"`
	YTAmount   string `json:"yt_amount" binding:"required"`
}

func (h *Handler) Redeem(c *gin.Context) {
	var req RedeemReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ytAmount, err := decimal.NewFromString(req.YTAmount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid yt_amount"})
		return
	}

	position, err := h.service.Redeem(c.Request.Context(), application.RedeemCmd{
		User:       req.User,
		TokenMint:  req.TokenMint,
		StrategyID: req.StrategyID,
		YTAmount:   ytAmount,
	})
	if err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}

	h.metrics.RedemptionsTotal.Inc()
	c.JSON(http.StatusOK, position)
}

type ResetYieldReq struct {
	Caller     string `json:"caller" binding:"required"`
	Owner      string `json:"owner" binding:"required"`
	TokenMint  string `json:"token_mint" binding:"required"`
	StrategyID uint64 `json:"strategy_id"`
}

func (h *Handler) ResetYield(c *gin.Context) {
	var req ResetYieldReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.service.ResetUserYield(c.Request.Context(), req.Caller, req.Owner, req.TokenMint, req.StrategyID); err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}

	c.Status(http.StatusOK)
}

func (h *Handler) GetStrategy(c *gin.Context) {
	strategyID, err := strategyIDParam(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid strategy id"})
		return
	}

	strategy, err := h.service.GetStrategy(c.Request.Context(), c.Param("mint"), strategyID)
	if err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, strategy)
}

func (h *Handler) ListStrategies(c *gin.Context) {
	limit, offset := pagination(c)

	strategies, total, err := h.service.ListStrategies(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"strategies": strategies, "total": total})
}

func (h *Handler) GetPosition(c *gin.Context) {
	strategyID, err := strategyIDParam(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid strategy id"})
		return
	}

	position, err := h.service.GetPosition(c.Request.Context(), c.Param("owner"), c.Param("mint"), strategyID)
	if err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, position)
}
