// Package transport is the broadcaster's control-plane HTTP API: the studio
// UI starts/stops the session and edits the playlist through it.
package transport

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/time/rate"

	"github.com/cimena/cinecast/broadcast"
	"github.com/cimena/cinecast/internal/errors"
	"github.com/cimena/cinecast/internal/log"
	"github.com/cimena/cinecast/internal/validation"
	"github.com/cimena/cinecast/playlist"
)

// control actions are human-paced; anything faster is a stuck client
const (
	controlRate  = rate.Limit(20)
	controlBurst = 40
)

type Router struct {
	coordinator *broadcast.Coordinator
	registry    *playlist.Registry
	thumbnails  *broadcast.ThumbnailResolver
	engine      *gin.Engine
	limiter     *rate.Limiter
	logger      *log.Logger
}

func NewRouter(
	coordinator *broadcast.Coordinator,
	registry *playlist.Registry,
	thumbnails *broadcast.ThumbnailResolver,
	allowedOrigins []string,
	logger *log.Logger,
) *Router {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(otelgin.Middleware("broadcast-control"))

	corsCfg := cors.DefaultConfig()
	if len(allowedOrigins) > 0 {
		corsCfg.AllowOrigins = allowedOrigins
	} else {
		corsCfg.AllowAllOrigins = true
	}
	engine.Use(cors.New(corsCfg))

	r := &Router{
		coordinator: coordinator,
		registry:    registry,
		thumbnails:  thumbnails,
		engine:      engine,
		limiter:     rate.NewLimiter(controlRate, controlBurst),
		logger:      logger.Module("transport"),
	}

	r.engine.Use(func(c *gin.Context) {
		r.logger.Info("Incoming request",
			log.String("method", c.Request.Method),
			log.String("url", c.Request.URL.String()))
		c.Next()
	})

	r.setupRoutes()
	return r
}

func (r *Router) Handler() http.Handler {
	return r.engine
}

func (r *Router) setupRoutes() {
	api := r.engine.Group("/api", r.rateLimit)

	api.POST("/session/start", r.startSession)
	api.POST("/session/stop", r.stopSession)
	api.GET("/session/status", r.getStatus)
	api.GET("/session/connections", r.getConnections)

	api.GET("/playlist", r.listLinks)
	api.POST("/playlist", r.addLink)
	api.DELETE("/playlist/:key", r.removeLink)

	r.engine.GET("/health", r.healthCheck)
}

func (r *Router) rateLimit(c *gin.Context) {
	if !r.limiter.Allow() {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"success": false,
			"error":   "Too many requests",
		})
		return
	}
	c.Next()
}

func (r *Router) startSession(c *gin.Context) {
	ctx := c.Request.Context()

	if err := r.coordinator.Start(ctx); err != nil {
		switch {
		case errors.Is(err, broadcast.ErrAlreadyBroadcasting),
			errors.Is(err, broadcast.ErrSessionActive):
			c.JSON(http.StatusConflict, gin.H{
				"success": false,
				"error":   err.Error(),
			})
		case errors.Is(err, broadcast.ErrCooldown):
			c.JSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"error":   err.Error(),
			})
		case errors.Is(err, broadcast.ErrEmptyPlaylist):
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error":   err.Error(),
			})
		default:
			r.logger.Error("Failed to start session", log.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error":   "Failed to start session",
			})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"session": r.coordinator.Status(),
	})
}

func (r *Router) stopSession(c *gin.Context) {
	if err := r.coordinator.Stop(c.Request.Context()); err != nil {
		r.logger.Error("Failed to stop session", log.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Failed to stop session",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
	})
}

func (r *Router) getStatus(c *gin.Context) {
	ctx := c.Request.Context()
	status := r.coordinator.Status()

	items, err := r.registry.Items(ctx)
	if err != nil {
		r.logger.Error("Failed to read playlist", log.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Failed to read playlist",
		})
		return
	}

	var thumbnail string
	if len(items) > 0 {
		thumbnail = r.thumbnails.Resolve(ctx, items[0].VideoID)
	}

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"session":       status,
		"playlistCount": len(items),
		"thumbnail":     thumbnail,
	})
}

func (r *Router) getConnections(c *gin.Context) {
	conns := r.coordinator.Connections()

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"count":       len(conns),
		"connections": conns,
	})
}

func (r *Router) listLinks(c *gin.Context) {
	items, err := r.registry.Items(c.Request.Context())
	if err != nil {
		r.logger.Error("Failed to read playlist", log.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Failed to read playlist",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"count":   len(items),
		"links":   items,
	})
}

func (r *Router) addLink(c *gin.Context) {
	var req AddLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Validation failed",
			"details": validation.FormatValidationError(err),
		})
		return
	}

	item, err := r.registry.Add(c.Request.Context(), req.Link)
	if err != nil {
		if errors.Is(err, playlist.ErrInvalidLink) {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error":   err.Error(),
			})
			return
		}
		r.logger.Error("Failed to add link", log.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Failed to add link",
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"link":    item,
	})
}

func (r *Router) removeLink(c *gin.Context) {
	var req RemoveLinkRequest
	if err := c.ShouldBindUri(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Validation failed",
			"details": validation.FormatValidationError(err),
		})
		return
	}

	if err := r.registry.Remove(c.Request.Context(), req.Key); err != nil {
		r.logger.Error("Failed to remove link", log.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Failed to remove link",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
	})
}

func (r *Router) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"service":   "broadcaster",
		"timestamp": time.Now().Unix(),
	})
}
