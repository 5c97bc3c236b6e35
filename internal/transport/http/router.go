package http

import (
	"github.com/gin-gonic/gin"
	"github.com/richardliu001/event-ingestor/internal/config"
	"go.uber.org/zap"
)

func NewRouter(ing Ingester, rel Relayer, backlog Backlog, rl config.RateLimitConfig, log *zap.SugaredLogger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware(log))
	r.Use(RateLimitMiddleware(rl.RPS, rl.Burst))
	RegisterHandlers(r, ing, rel, backlog)
	return r
}
