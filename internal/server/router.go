package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/mcwarden/internal/command"
	"github.com/loykin/mcwarden/internal/lifecycle"
	"github.com/loykin/mcwarden/internal/metrics"
	"github.com/loykin/mcwarden/internal/notify"
)

// Router exposes the command-and-reply channel over HTTP.
// Endpoints:
//
//	POST {basePath}/command        body: {"caller": "...", "text": "!status"}
//	GET  {basePath}/status         lifecycle state snapshot
//	GET  {basePath}/notifications  query: since=RFC3339 (optional)
//	GET  /metrics                  when metrics are enabled
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	dispatcher Dispatcher
	state      StateSource
	feed       *notify.Feed
	limiter    *callerLimiter
	basePath   string
	metrics    bool
}

type Dispatcher interface {
	Dispatch(ctx context.Context, caller, text string) command.Reply
}

type StateSource interface {
	Snapshot() lifecycle.State
}

type Options struct {
	BasePath  string
	RateLimit float64
	RateBurst int
	Metrics   bool
	Feed      *notify.Feed
}

func NewRouter(d Dispatcher, state StateSource, opts Options) *Router {
	return &Router{
		dispatcher: d,
		state:      state,
		feed:       opts.Feed,
		limiter:    newCallerLimiter(opts.RateLimit, opts.RateBurst),
		basePath:   sanitizeBase(opts.BasePath),
		metrics:    opts.Metrics,
	}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.POST("/command", r.handleCommand)
	group.GET("/status", r.handleStatus)
	group.GET("/notifications", r.handleNotifications)
	if r.metrics {
		g.GET("/metrics", gin.WrapH(metrics.Handler()))
	}
	return g
}

// NewServer wraps the router in an http.Server with conservative timeouts.
// The caller owns ListenAndServe and Shutdown.
func NewServer(addr string, r *Router) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Stop commands can wait out the nice-close window.
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
}

type errorResp struct {
	Error string `json:"error"`
}

type commandReq struct {
	Caller string `json:"caller"`
	Text   string `json:"text"`
}

// handleCommand trusts the caller field as sent. Admin checks are only as
// good as the relay in front of the API, so the listener must be reachable
// by that relay alone.
func (r *Router) handleCommand(c *gin.Context) {
	var req commandReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if !isSafeCaller(req.Caller) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "caller required: up to 64 printable characters"})
		return
	}
	if !r.limiter.Allow(req.Caller) {
		writeJSON(c, http.StatusTooManyRequests, errorResp{Error: "slow down"})
		return
	}
	writeJSON(c, http.StatusOK, r.dispatcher.Dispatch(c.Request.Context(), req.Caller, req.Text))
}

func (r *Router) handleStatus(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.state.Snapshot())
}

func (r *Router) handleNotifications(c *gin.Context) {
	if r.feed == nil {
		writeJSON(c, http.StatusOK, []notify.Notification{})
		return
	}
	var since time.Time
	if s := c.Query("since"); s != "" {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "since must be RFC3339"})
			return
		}
		since = t
	}
	writeJSON(c, http.StatusOK, r.feed.Since(since))
}
