package api

import (
	"github.com/gin-gonic/gin"

	"repairscribe/internal/logging"
)

// RouterConfig holds the HTTP-level settings of the engine.
type RouterConfig struct {
	AllowedOrigins []string
	MaxBodyBytes   int64
}

// NewRouter builds the gin engine with the shared middleware chain and all
// routes registered.
func NewRouter(h *Handler, cfg RouterConfig, logger logging.Logger) *gin.Engine {
	if logger == nil {
		logger = logging.Nop()
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(RequestID())
	engine.Use(RequestLogger(logger))
	engine.Use(CORS(cfg.AllowedOrigins))
	engine.Use(MaxBodySize(cfg.MaxBodyBytes))
	h.RegisterRoutes(engine)
	return engine
}
