package http

import (
	"errors"
	"net/http"

	"github.com/dkeye/StreamRelay/internal/app"
	"github.com/dkeye/StreamRelay/internal/core"
	"github.com/dkeye/StreamRelay/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const hookTokenHeader = "X-Hook-Token"

// hookRequest accepts JSON bodies and nginx-rtmp style form posts
// (app, name, clientid).
type hookRequest struct {
	Path        string `json:"path" form:"path"`
	App         string `json:"app" form:"app"`
	Name        string `json:"name" form:"name"`
	PublisherID string `json:"publisher_id" form:"clientid"`
}

func (r hookRequest) resolve() (domain.StreamPath, domain.PublisherID, error) {
	raw := r.Path
	if raw == "" && r.App != "" && r.Name != "" {
		raw = "/" + r.App + "/" + r.Name
	}
	path, err := domain.NewStreamPath(raw)
	if err != nil {
		return "", "", err
	}
	if r.PublisherID == "" {
		return "", "", errors.New("missing publisher id")
	}
	return path, domain.PublisherID(r.PublisherID), nil
}

// HookTokenMiddleware is a no-op when token is empty.
func HookTokenMiddleware(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}
		got := c.GetHeader(hookTokenHeader)
		if got == "" {
			got = c.Query("token")
		}
		if got != token {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid hook token"})
			return
		}
		c.Next()
	}
}

func bindHook(c *gin.Context) (domain.StreamPath, domain.PublisherID, bool) {
	var req hookRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_payload"})
		return "", "", false
	}
	path, pub, err := req.resolve()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", "", false
	}
	return path, pub, true
}

// POST /api/hooks/publish: 2xx admits the publisher, anything else rejects it
func handlePublishHook(orch *app.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		path, pub, ok := bindHook(c)
		if !ok {
			return
		}
		err := orch.OnPrePublish(path, pub)
		switch {
		case errors.Is(err, core.ErrAlreadyPublishing):
			c.JSON(http.StatusConflict, gin.H{"error": "already_publishing", "path": path})
		case errors.Is(err, app.ErrRateLimited):
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate_limited", "path": path})
		case err != nil:
			log.Error().Err(err).Str("module", "adapters.http").Str("path", string(path)).Msg("publish hook")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		default:
			c.JSON(http.StatusOK, gin.H{"status": "accepted", "path": path})
		}
	}
}

// POST /api/hooks/unpublish: stale events are accepted and ignored
func handleUnpublishHook(orch *app.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		path, pub, ok := bindHook(c)
		if !ok {
			return
		}
		orch.OnDonePublish(path, pub)
		c.JSON(http.StatusOK, gin.H{"status": "ok", "path": path})
	}
}
