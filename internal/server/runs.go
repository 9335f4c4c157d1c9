package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	pipelinedomain "github.com/smallbiznis/retaillens/internal/pipeline/domain"
	"github.com/smallbiznis/retaillens/pkg/db/pagination"
)

func (s *Server) ListRuns(c *gin.Context) {
	var query pagination.Pagination
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	if err := query.Validate(); err != nil {
		AbortWithError(c, newValidationError("page_size", err.Error(), "page_size must be between 1 and 100"))
		return
	}

	resp, err := s.pipelineSvc.ListRuns(c.Request.Context(), pipelinedomain.ListRunsRequest{
		PageToken: query.PageToken,
		PageSize:  query.PageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":      resp.Runs,
		"page_info": resp.PageInfo,
	})
}
