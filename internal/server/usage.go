package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	usagedomain "github.com/smallbiznis/creditledger/internal/usage/domain"
)

type recordUsageRequest struct {
	Provider     string         `json:"provider"`
	ModelName    string         `json:"model_name"`
	InputTokens  int64          `json:"input_tokens"`
	OutputTokens int64          `json:"output_tokens"`
	Metadata     map[string]any `json:"metadata"`
}

func (s *Server) RecordUsage(c *gin.Context) {
	var req recordUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if provider := strings.TrimSpace(req.Provider); provider != "" {
		c.Set("usage_provider", provider)
	}

	record, err := s.billingSvc.RecordUsage(c.Request.Context(), usagedomain.RecordRequest{
		UserID:       userIDFromContext(c),
		Provider:     req.Provider,
		ModelName:    req.ModelName,
		InputTokens:  req.InputTokens,
		OutputTokens: req.OutputTokens,
		Metadata:     req.Metadata,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"usage": record})
}
