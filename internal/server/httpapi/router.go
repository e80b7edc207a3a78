package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dmitrijs2005/chatgate/internal/logging"
)

// NewRouter builds the gin engine. Routes are mounted at the root and again
// under /api, where the web front-end expects them (the profile endpoint is
// /api/protected/profile there).
func NewRouter(us UserService, tokens TokenVerifier, logger logging.Logger) *gin.Engine {
	h := NewHandler(us, logger)

	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(recovery(logger), requestLogger(logger))

	mount := func(g *gin.RouterGroup, profilePath string) {
		g.POST("/register", h.Register)
		g.POST("/login", h.Login)
		g.GET(profilePath, BearerAuth(tokens), h.Profile)
	}
	mount(&r.RouterGroup, "/profile")
	mount(r.Group("/api"), "/protected/profile")

	r.GET("/healthz", h.Healthz)

	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": msgMethodNotAllowed})
	})
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": msgNotFound})
	})

	return r
}
