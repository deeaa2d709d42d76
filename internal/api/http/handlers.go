// Package http serves the daemon's REST control surface.
package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ThuyDang88/webview/internal/engine"
	"github.com/ThuyDang88/webview/internal/infrastructure/logging"
	"github.com/ThuyDang88/webview/internal/infrastructure/monitoring"
	"github.com/ThuyDang88/webview/internal/shared/id"
	"github.com/ThuyDang88/webview/internal/views"
)

const version = "0.1.0"

// Handlers contains all control-API handlers.
type Handlers struct {
	views   *views.Manager
	log     *logging.Logger
	metrics *monitoring.Metrics
	logFile string
}

// NewHandlers creates a new handler set. logFile names the daemon's log
// file for tailing; empty disables the log endpoint.
func NewHandlers(mgr *views.Manager, log *logging.Logger, metrics *monitoring.Metrics, logFile string) *Handlers {
	return &Handlers{
		views:   mgr,
		log:     logging.OrNop(log),
		metrics: metrics,
		logFile: logFile,
	}
}

// Root handles liveness probes.
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "webviewd",
		"version": version,
	})
}

// Health handles detailed health checks.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"engine": h.views.EngineName(),
		"views":  gin.H{"active": h.views.Len()},
	})
}

// Stats serves aggregate daemon counters as JSON, a lighter read than the
// Prometheus endpoint.
func (h *Handlers) Stats(c *gin.Context) {
	if h.metrics == nil {
		c.JSON(http.StatusOK, gin.H{
			"views": gin.H{"active": h.views.Len()},
		})
		return
	}

	s := h.metrics.Snapshot()
	avg := 0.0
	if s.RequestCount > 0 {
		avg = s.TotalDuration / float64(s.RequestCount)
	}
	c.JSON(http.StatusOK, gin.H{
		"requests": gin.H{
			"total":                s.TotalRequests,
			"errors":               s.TotalErrors,
			"avg_duration_seconds": avg,
		},
		"views":   gin.H{"active": s.ActiveViews},
		"streams": gin.H{"active": s.ActiveStreams},
	})
}

// CreateView builds a view from the posted source and starts its initial
// load. The response snapshot precedes the load outcome, which arrives on
// the view's event stream.
func (h *Handlers) CreateView(c *gin.Context) {
	var req views.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entry, err := h.views.Create(c.Request.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, views.ErrCapacity):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, engine.ErrClosed):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusCreated, entry.Info())
}

// ListViews lists all live views, oldest first.
func (h *Handlers) ListViews(c *gin.Context) {
	entries := h.views.List()
	infos := make([]views.Info, 0, len(entries))
	for _, e := range entries {
		infos = append(infos, e.Info())
	}

	c.JSON(http.StatusOK, gin.H{
		"views": infos,
		"count": len(infos),
	})
}

// GetView snapshots one view.
func (h *Handlers) GetView(c *gin.Context) {
	e, ok := h.entry(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, e.Info())
}

// DeleteView closes a view and frees its slot.
func (h *Handlers) DeleteView(c *gin.Context) {
	viewID := id.ViewID(c.Param("id"))

	err := h.views.Delete(viewID)
	switch {
	case err == nil:
	case errors.Is(err, views.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "view not found"})
		return
	default:
		// The view is gone either way; the engine complained on close.
		h.log.Warn("view closed with error",
			zap.String("view_id", viewID.String()),
			zap.Error(err),
		)
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"viewId":  viewID,
	})
}

type navigateRequest struct {
	URL string `json:"url"`
}

// Navigate points a view at a new URL. The attempt is asynchronous:
// acceptance here only means the request was handed to the view, and the
// outcome arrives as stream events.
func (h *Handlers) Navigate(c *gin.Context) {
	e, ok := h.entry(c)
	if !ok {
		return
	}

	var req navigateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.URL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
		return
	}

	e.Navigate(req.URL)
	h.accepted(c, e)
}

// Back traverses one entry back in the view's history. A view with no
// back history treats this as a no-op.
func (h *Handlers) Back(c *gin.Context) {
	e, ok := h.entry(c)
	if !ok {
		return
	}
	e.Back()
	h.accepted(c, e)
}

// Forward traverses one entry forward in the view's history.
func (h *Handlers) Forward(c *gin.Context) {
	e, ok := h.entry(c)
	if !ok {
		return
	}
	e.Forward()
	h.accepted(c, e)
}

// Reload reloads the view's current page.
func (h *Handlers) Reload(c *gin.Context) {
	e, ok := h.entry(c)
	if !ok {
		return
	}
	e.Reload()
	h.accepted(c, e)
}

// Stop asks the view to stop loading. Stopping races the load by nature;
// a load that completes first wins.
func (h *Handlers) Stop(c *gin.Context) {
	e, ok := h.entry(c)
	if !ok {
		return
	}
	e.StopLoading()
	h.accepted(c, e)
}

type injectRequest struct {
	Script string `json:"script"`
}

// Inject queues script into the view's page, fire-and-forget.
func (h *Handlers) Inject(c *gin.Context) {
	e, ok := h.entry(c)
	if !ok {
		return
	}

	var req injectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Script == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "script is required"})
		return
	}

	e.Inject(req.Script)
	h.accepted(c, e)
}

type postRequest struct {
	// Data is a pointer so an explicit empty string is distinguishable
	// from an absent field.
	Data *string `json:"data"`
}

// Post delivers a host-to-page message.
func (h *Handlers) Post(c *gin.Context) {
	e, ok := h.entry(c)
	if !ok {
		return
	}

	var req postRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Data == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "data is required"})
		return
	}

	e.Post(*req.Data)
	h.accepted(c, e)
}

func (h *Handlers) entry(c *gin.Context) (*views.Entry, bool) {
	viewID := id.ViewID(c.Param("id"))
	e, ok := h.views.Get(viewID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "view not found"})
	}
	return e, ok
}

func (h *Handlers) accepted(c *gin.Context, e *views.Entry) {
	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"viewId":  e.ID(),
	})
}
