package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	insightsdomain "github.com/smallbiznis/retaillens/internal/insights/domain"
)

func (s *Server) ListSales(c *gin.Context) {
	var query struct {
		rangeQuery
		Country string `form:"country"`
		Limit   string `form:"limit"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	r, err := query.dateRange()
	if err != nil {
		AbortWithError(c, err)
		return
	}
	limit, err := parseLimit(query.Limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	rows, err := s.insightsSvc.SalesOverview(c.Request.Context(), insightsdomain.SalesFilter{
		Range:   r,
		Country: strings.TrimSpace(query.Country),
		Limit:   limit,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rows})
}

func (s *Server) GetKPIs(c *gin.Context) {
	var query rangeQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	r, err := query.dateRange()
	if err != nil {
		AbortWithError(c, err)
		return
	}

	kpis, err := s.insightsSvc.KPIs(c.Request.Context(), r)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": kpis})
}

func (s *Server) ListTopProducts(c *gin.Context) {
	var query struct {
		rangeQuery
		Limit  string `form:"limit"`
		SortBy string `form:"sort_by"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	r, err := query.dateRange()
	if err != nil {
		AbortWithError(c, err)
		return
	}
	limit, err := parseLimit(query.Limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	rows, err := s.insightsSvc.TopProducts(c.Request.Context(), r, limit, strings.TrimSpace(query.SortBy))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rows})
}

func (s *Server) ListTopCountries(c *gin.Context) {
	var query struct {
		rangeQuery
		Limit string `form:"limit"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	r, err := query.dateRange()
	if err != nil {
		AbortWithError(c, err)
		return
	}
	limit, err := parseLimit(query.Limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	rows, err := s.insightsSvc.TopCountries(c.Request.Context(), r, limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rows})
}

func (s *Server) ListMonthlyRevenue(c *gin.Context) {
	var query rangeQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	r, err := query.dateRange()
	if err != nil {
		AbortWithError(c, err)
		return
	}

	rows, err := s.insightsSvc.MonthlyRevenue(c.Request.Context(), r)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rows})
}

func (s *Server) ListRevenueTrend(c *gin.Context) {
	var query struct {
		rangeQuery
		Granularity string `form:"granularity"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	r, err := query.dateRange()
	if err != nil {
		AbortWithError(c, err)
		return
	}

	rows, err := s.insightsSvc.RevenueTrend(c.Request.Context(), r, query.Granularity)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rows})
}
