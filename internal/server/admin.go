package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	billingdomain "github.com/smallbiznis/creditledger/internal/billing/domain"
)

type adjustBalanceRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

func (s *Server) AdjustBalance(c *gin.Context) {
	var req adjustBalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	description := strings.TrimSpace(req.Description)
	if description == "" {
		AbortWithError(c, newValidationError("description", "invalid_description", "description is required"))
		return
	}

	info, err := s.billingSvc.AdjustBalance(c.Request.Context(), billingdomain.AdjustBalanceRequest{
		UserID:      c.Param("userId"),
		Amount:      req.Amount,
		Description: description,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"billing": info})
}

func (s *Server) ReconcileAccount(c *gin.Context) {
	result, err := s.billingSvc.Reconcile(c.Request.Context(), c.Param("userId"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"reconciliation": result})
}
