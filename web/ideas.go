package web

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yanayukhimuk/Logging/core"
	"github.com/yanayukhimuk/Logging/store"
)

// IdeaDTO is the API shape of an idea
type IdeaDTO struct {
	ID          uint      `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	DateCreated time.Time `json:"dateCreated"`
}

// NewIdeaModel is the body of POST /api/ideas/create
type NewIdeaModel struct {
	SessionID   uint   `json:"sessionId" binding:"required"`
	Name        string `json:"name" binding:"required"`
	Description string `json:"description" binding:"required"`
}

// IdeasController is the ideas JSON API
type IdeasController struct {
	repo   store.SessionRepository
	logger *core.Logger
}

func NewIdeasController(repo store.SessionRepository, logger *core.Logger) *IdeasController {
	return &IdeasController{repo: repo, logger: logger}
}

func (i *IdeasController) MountRoutes(router gin.IRouter) {
	api := router.Group("/api/ideas")
	api.GET("/forsession/:id", i.ForSession)
	api.POST("/create", i.Create)
}

// ForSession lists the ideas of one session
func (i *IdeasController) ForSession(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}

	session, ok := i.session(c, uint(id))
	if !ok {
		return
	}

	ideas := make([]IdeaDTO, 0, len(session.Ideas))
	for _, idea := range session.Ideas {
		ideas = append(ideas, IdeaDTO{
			ID:          idea.ID,
			Name:        idea.Name,
			Description: idea.Description,
			DateCreated: idea.DateCreated,
		})
	}
	c.JSON(http.StatusOK, ideas)
}

// Create adds an idea to a session. An invalid model is answered with 400
// and logged at Error.
func (i *IdeasController) Create(c *gin.Context) {
	var model NewIdeaModel
	if err := c.ShouldBindJSON(&model); err != nil {
		i.logger.Error("Expected Error messages in the logs", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, ok := i.session(c, model.SessionID)
	if !ok {
		return
	}

	session.AddIdea(store.Idea{
		Name:        model.Name,
		Description: model.Description,
		DateCreated: time.Now().UTC(),
	})
	if err := i.repo.Update(c.Request.Context(), session); err != nil {
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to save idea"})
		return
	}
	c.JSON(http.StatusOK, session)
}

// session loads a session, answering 404 or 500 itself when it cannot
func (i *IdeasController) session(c *gin.Context, id uint) (*store.Session, bool) {
	session, err := i.repo.GetByID(c.Request.Context(), id)
	if errors.Is(err, store.ErrSessionNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found", "sessionId": id})
		return nil, false
	}
	if err != nil {
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to load session"})
		return nil, false
	}
	return session, true
}
