package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/richardliu001/event-ingestor/internal/ingest"
	"github.com/richardliu001/event-ingestor/internal/relay"
)

// Ingester streams a feed document into the store.
type Ingester interface {
	Run(ctx context.Context, r io.Reader) (ingest.Report, error)
}

// Relayer runs one relay pass.
type Relayer interface {
	RunBatch(ctx context.Context, batch int) (relay.Stats, error)
}

// Backlog counts unpublished outbox rows.
type Backlog interface {
	CountPending(ctx context.Context) (int64, error)
}

func RegisterHandlers(r *gin.Engine, ing Ingester, rel Relayer, backlog Backlog) {
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	v1 := r.Group("/v1")
	{
		v1.POST("/feeds/ingest", ingestHandler(ing))
		v1.POST("/outbox/relay", relayHandler(rel))
		v1.GET("/outbox/pending", pendingHandler(backlog))
	}
}

// ingestHandler streams the request body; the document is never buffered.
func ingestHandler(ing Ingester) gin.HandlerFunc {
	return func(c *gin.Context) {
		rep, err := ing.Run(c.Request.Context(), c.Request.Body)
		if err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "report": rep})
			return
		}
		c.JSON(http.StatusOK, rep)
	}
}

func relayHandler(rel Relayer) gin.HandlerFunc {
	return func(c *gin.Context) {
		batch := 0
		if v := c.Query("batch"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid batch"})
				return
			}
			batch = n
		}
		st, err := rel.RunBatch(c.Request.Context(), batch)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, relay.ErrLockHeld) {
				status = http.StatusConflict
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, st)
	}
}

func pendingHandler(backlog Backlog) gin.HandlerFunc {
	return func(c *gin.Context) {
		n, err := backlog.CountPending(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"pending": n})
	}
}
