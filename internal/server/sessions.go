package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wilson-pinto/medical-agent-poc/internal/artifact"
	"github.com/wilson-pinto/medical-agent-poc/internal/stages"
	"github.com/wilson-pinto/medical-agent-poc/pkg/api"
)

func (s *Server) submitSession(c *gin.Context) {
	var req api.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, invalidJSON(err))
		return
	}

	// a traversal outlives a dropped client connection
	ctx := context.WithoutCancel(c.Request.Context())
	st, err := s.engine.Submit(ctx, req)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, api.NewResumeResponse(st))
}

func (s *Server) getSession(c *gin.Context) {
	id := api.SessionID(c.Param("sessionID"))
	st, err := s.engine.Get(c.Request.Context(), id)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) resumeSession(c *gin.Context) {
	var req api.ResumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, invalidJSON(err))
		return
	}

	id := api.SessionID(c.Param("sessionID"))
	if req.SessionID != "" && req.SessionID != id {
		abortWithError(c, ErrSessionMismatch)
		return
	}

	ctx := context.WithoutCancel(c.Request.Context())
	st, err := s.engine.Resume(ctx, id, req.Answers)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.NewResumeResponse(st))
}

func (s *Server) clearSession(c *gin.Context) {
	id := api.SessionID(c.Param("sessionID"))
	if err := s.engine.Clear(c.Request.Context(), id); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) getSummary(c *gin.Context) {
	if s.artifacts == nil {
		abortWithError(c, ErrNoArtifacts)
		return
	}

	id := api.SessionID(c.Param("sessionID"))
	if _, err := s.engine.Get(c.Request.Context(), id); err != nil {
		abortWithError(c, err)
		return
	}

	data, err := s.artifacts.Get(c.Request.Context(), stages.SummaryKey(id))
	if errors.Is(err, artifact.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, api.ErrorResponse{
			Error:  err.Error(),
			Status: http.StatusNotFound,
		})
		return
	}
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.Data(http.StatusOK, "text/plain; charset=utf-8", data)
}
