package web

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yanayukhimuk/Logging/core"
	"github.com/yanayukhimuk/Logging/store"
)

// StormSessionViewModel is one row of the session listing
type StormSessionViewModel struct {
	ID          uint      `json:"id"`
	Name        string    `json:"name"`
	DateCreated time.Time `json:"date_created"`
	IdeaCount   int       `json:"idea_count"`
}

// NewSessionModel is the form posted to create a session
type NewSessionModel struct {
	SessionName string `form:"SessionName" json:"sessionName" binding:"required"`
}

// HomeController lists and creates sessions
type HomeController struct {
	repo   store.SessionRepository
	logger *core.Logger
}

func NewHomeController(repo store.SessionRepository, logger *core.Logger) *HomeController {
	return &HomeController{repo: repo, logger: logger}
}

func (h *HomeController) MountRoutes(router gin.IRouter) {
	router.GET("/", h.Index)
	router.POST("/", h.Create)
}

// Index lists sessions
func (h *HomeController) Index(c *gin.Context) {
	sessions, err := h.listing(c)
	if err != nil {
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to list sessions"})
		return
	}

	h.logger.Info("Session list is executed")
	c.JSON(http.StatusOK, sessions)
}

// Create adds a session and redirects to the listing. An invalid model
// is answered with 400 and the current listing.
func (h *HomeController) Create(c *gin.Context) {
	var model NewSessionModel
	if err := c.ShouldBind(&model); err != nil {
		h.logger.Warn("Expected Warn messages in the logs")

		sessions, listErr := h.listing(c)
		if listErr != nil {
			_ = c.Error(listErr)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to list sessions"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"errors":   gin.H{"SessionName": "Required"},
			"sessions": sessions,
		})
		return
	}

	session := &store.Session{Name: model.SessionName, DateCreated: time.Now().UTC()}
	if err := h.repo.Add(c.Request.Context(), session); err != nil {
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
		return
	}
	c.Redirect(http.StatusFound, "/")
}

func (h *HomeController) listing(c *gin.Context) ([]StormSessionViewModel, error) {
	sessions, err := h.repo.List(c.Request.Context())
	if err != nil {
		return nil, err
	}
	models := make([]StormSessionViewModel, 0, len(sessions))
	for _, s := range sessions {
		models = append(models, StormSessionViewModel{
			ID:          s.ID,
			Name:        s.Name,
			DateCreated: s.DateCreated,
			IdeaCount:   len(s.Ideas),
		})
	}
	return models, nil
}
