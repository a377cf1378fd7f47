package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	medagent "github.com/wilson-pinto/medical-agent-poc"
	"github.com/wilson-pinto/medical-agent-poc/pkg/api"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, api.HealthResponse{
		Service: medagent.Name,
		Version: medagent.Version,
		Status:  "healthy",
	})
}
