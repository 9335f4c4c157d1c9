package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) GetForecast(c *gin.Context) {
	doc, err := s.artifacts.Forecast(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": doc})
}

func (s *Server) GetSegments(c *gin.Context) {
	doc, err := s.artifacts.Segmentation(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": doc})
}
