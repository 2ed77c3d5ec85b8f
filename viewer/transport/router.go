// Package transport is the viewer daemon's local HTTP surface: the page UI
// reports the unmute gesture and polls display state through it.
package transport

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/cimena/cinecast/internal/log"
	"github.com/cimena/cinecast/viewer"
)

type Router struct {
	observer *viewer.Observer
	engine   *gin.Engine
	logger   *log.Logger
}

func NewRouter(observer *viewer.Observer, allowedOrigins []string, logger *log.Logger) *Router {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(otelgin.Middleware("viewer-control"))

	corsCfg := cors.DefaultConfig()
	if len(allowedOrigins) > 0 {
		corsCfg.AllowOrigins = allowedOrigins
	} else {
		corsCfg.AllowAllOrigins = true
	}
	engine.Use(cors.New(corsCfg))

	r := &Router{
		observer: observer,
		engine:   engine,
		logger:   logger.Module("transport"),
	}

	r.setupRoutes()
	return r
}

func (r *Router) Handler() http.Handler {
	return r.engine
}

func (r *Router) setupRoutes() {
	r.engine.POST("/api/audio/enable", r.enableAudio)
	r.engine.GET("/api/status", r.getStatus)
	r.engine.GET("/health", r.healthCheck)
}

func (r *Router) enableAudio(c *gin.Context) {
	r.observer.EnableAudio()

	c.JSON(http.StatusOK, gin.H{
		"success": true,
	})
}

func (r *Router) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"live":           r.observer.Live(),
		"hasStartedOnce": r.observer.HasStartedOnce(),
	})
}

func (r *Router) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"service":   "viewer",
		"timestamp": time.Now().Unix(),
	})
}
