package web

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/yanayukhimuk/Logging/core"
	"github.com/yanayukhimuk/Logging/store"
)

// SessionController shows one session
type SessionController struct {
	repo   store.SessionRepository
	logger *core.Logger
}

func NewSessionController(repo store.SessionRepository, logger *core.Logger) *SessionController {
	return &SessionController{repo: repo, logger: logger}
}

func (s *SessionController) MountRoutes(router gin.IRouter) {
	router.GET("/session", s.Index)
	router.GET("/session/:id", s.Index)
}

// Index shows the session; without a usable id it redirects home
func (s *SessionController) Index(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.Redirect(http.StatusFound, "/")
		return
	}

	session, err := s.repo.GetByID(c.Request.Context(), uint(id))
	if errors.Is(err, store.ErrSessionNotFound) {
		c.String(http.StatusOK, "Session not found.")
		return
	}
	if err != nil {
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to load session"})
		return
	}

	s.logger.Debug("Expected message")
	c.JSON(http.StatusOK, StormSessionViewModel{
		ID:          session.ID,
		Name:        session.Name,
		DateCreated: session.DateCreated,
		IdeaCount:   len(session.Ideas),
	})
}
