// Package http 代币账本管理接口
package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/wyfcoding/yieldmarket/internal/ledger/application"
	"github.com/wyfcoding/yieldmarket/internal/ledger/domain"
)

type Handler struct {
	service *application.LedgerService
}

func NewHandler(service *application.LedgerService) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	g := r.Group("/ledger")
	{
		g.POST("/mints", h.RegisterMint)
		g.POST("/mints/issue", h.AdminMint)
		g.GET("/mints/:address", h.GetMint)
		g.GET("/balances/:mint/:owner", h.GetBalance)
		g.GET("/accounts/:address", h.GetAccount)
	}
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrMintNotFound), errors.Is(err, domain.ErrAccountNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnauthorizedMint):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrZeroAmount), errors.Is(err, domain.ErrMintMismatch):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

type RegisterMintReq struct {
	Address   string `json:"address" binding:"required"`
	Symbol    string `json:"symbol" binding:"required"`
	Decimals  int32  `json:"decimals"`
	Authority string `json:"authority" binding:"required"`
}

func (h *Handler) RegisterMint(c *gin.Context) {
	var req RegisterMintReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	mint, err := h.service.RegisterMint(c.Request.Context(), application.RegisterMintCmd{
		Address:   req.Address,
		Symbol:    req.Symbol,
		Decimals:  req.Decimals,
		Authority: req.Authority,
	})
	if err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, mint)
}

type AdminMintReq struct {
	Caller string `json:"caller" binding:"required"`
	Mint   string `json:"mint" binding:"required"`
	Owner  string `json:"owner" binding:"required"`
	Amount string `json:"amount" binding:"required"`
}

func (h *Handler) AdminMint(c *gin.Context) {
	var req AdminMintReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
		return
	}

	account, err := h.service.AdminMint(c.Request.Context(), req.Caller, req.Mint, req.Owner, amount)
	if err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, account)
}

func (h *Handler) GetMint(c *gin.Context) {
	mint, err := h.service.GetMint(c.Request.Context(), c.Param("address"))
	if err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, mint)
}

func (h *Handler) GetBalance(c *gin.Context) {
	balance, err := h.service.GetBalance(c.Request.Context(), c.Param("mint"), c.Param("owner"))
	if err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"balance": balance.String()})
}

func (h *Handler) GetAccount(c *gin.Context) {
	account, err := h.service.GetAccount(c.Request.Context(), c.Param("address"))
	if err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, account)
}
