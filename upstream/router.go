package upstream

import (
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/imtaco/reqflow/internal/errors"
	"github.com/imtaco/reqflow/internal/jwt"
	"github.com/imtaco/reqflow/internal/log"
	"github.com/imtaco/reqflow/internal/validation"
)

// Response codes carried in the JSON envelope alongside the HTTP status.
const (
	CodeOK           = 0
	CodeUnauthorized = 401
)

// Router is a token-protected data service: clients obtain a short-lived
// token from /token and present it to /api/data.
type Router struct {
	auth   jwt.Auth
	ttl    time.Duration
	clock  clockwork.Clock
	engine *gin.Engine
	logger *log.Logger
	seq    atomic.Int64
}

func NewRouter(auth jwt.Auth, ttl time.Duration, clock clockwork.Clock, logger *log.Logger) *Router {
	if logger == nil {
		panic("logger is required")
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	// Add OpenTelemetry middleware for automatic HTTP tracing
	engine.Use(otelgin.Middleware("upstream"))

	engine.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
	}))

	r := &Router{
		auth:   auth,
		ttl:    ttl,
		clock:  clock,
		engine: engine,
		logger: logger.Module("Upstream"),
	}

	r.setupRoutes()
	return r
}

func (r *Router) Handler() http.Handler {
	return r.engine
}

func (r *Router) setupRoutes() {
	r.engine.POST("/token", r.issueToken)
	r.engine.GET("/api/data", r.getData)

	// Health check
	r.engine.GET("/health", r.healthCheck)
}

func (r *Router) issueToken(c *gin.Context) {
	var body TokenBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Validation failed",
			"details": validation.FormatValidationError(err),
		})
		return
	}

	token, err := r.auth.Sign(body.Subject, body.Scope, r.ttl)
	if err != nil {
		r.logger.Error("Failed to sign token", log.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	tokensIssued.Add(c.Request.Context(), 1)
	r.logger.Debug("Token issued", log.String("subject", body.Subject), log.Scope(body.Scope))

	c.JSON(http.StatusOK, gin.H{
		"token":     token,
		"expiresIn": int64(r.ttl / time.Second),
	})
}

func (r *Router) getData(c *gin.Context) {
	ctx := c.Request.Context()

	token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
	if !ok || token == "" {
		r.reject(c, "authorization required")
		return
	}

	payload, err := r.auth.Verify(token)
	if err != nil {
		reason := "invalid token"
		if errors.Is(err, jwt.ErrExpiredToken) {
			reason = "token expired"
		}
		r.logger.Debug("Token rejected", log.String("reason", reason), log.Error(err))
		r.reject(c, reason)
		return
	}

	seq := r.seq.Add(1)
	dataServed.Add(ctx, 1)

	c.JSON(http.StatusOK, gin.H{
		"code": CodeOK,
		"data": gin.H{
			"seq":     seq,
			"subject": payload.Subject,
			"scope":   payload.Scope,
			"at":      r.clock.Now().Unix(),
		},
	})
}

func (r *Router) reject(c *gin.Context, reason string) {
	authRejected.Add(c.Request.Context(), 1, metric.WithAttributes(attribute.String("reason", reason)))
	c.JSON(http.StatusUnauthorized, gin.H{
		"code":  CodeUnauthorized,
		"error": reason,
	})
}

func (r *Router) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": r.clock.Now().Unix(),
	})
}
