// Package server exposes the daemon's local HTTP API: the endpoints the
// alarm surfaces, the settings panel and the CLI call into.
package server

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"

	"github.com/harrisonrobin/larkalarm/pkg/config"
	"github.com/harrisonrobin/larkalarm/pkg/messages"
)

const shutdownTimeout = 5 * time.Second

// Service is what the handlers drive. background.Service implements it.
type Service interface {
	RegisterDevice(ctx context.Context, proof string) error
	Token(ctx context.Context) (string, error)
	ForceSync(ctx context.Context) error
	Snooze(ctx context.Context, guid string) (time.Time, error)
	AlarmClosed(ctx context.Context, guid string)
	Dismiss(ctx context.Context, guid string) error
	Settings() config.Settings
	UpdateSettings(ctx context.Context, s config.Settings) error
	Status() Status
	Logout() error
}

// AlarmStatus describes one active alarm.
type AlarmStatus struct {
	GUID     string     `json:"guid"`
	Summary  string     `json:"summary"`
	Due      *time.Time `json:"due,omitempty"`
	Presence string     `json:"presence"`
	Since    time.Time  `json:"since"`
}

// Status is the daemon state shown by the settings panel.
type Status struct {
	Authorized       bool                 `json:"authorized"`
	LastSync         *time.Time           `json:"last_sync,omitempty"`
	Tasks            int                  `json:"tasks"`
	ActiveAlarms     []AlarmStatus        `json:"active_alarms"`
	Snoozed          map[string]time.Time `json:"snoozed"`
	BrowserConnected bool                 `json:"browser_connected"`
}

// Server is the local HTTP API.
type Server struct {
	svc       Service
	picker    messages.Picker
	websocket http.Handler
	logger    *log.Logger
	router    *gin.Engine
	now       func() time.Time
}

// New builds the router. websocket may be nil when the bridge backend is
// not in use.
func New(svc Service, picker messages.Picker, websocket http.Handler, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	router := gin.New()
	s := &Server{
		svc:       svc,
		picker:    picker,
		websocket: websocket,
		logger:    logger,
		router:    router,
		now:       time.Now,
	}

	router.Use(gin.Recovery(), s.requestLogger())

	// Pages
	router.GET("/alarm", s.handleAlarmPage)
	router.GET("/callback", s.handleCallback)
	router.GET("/assets/content.js", s.handleContentScript)
	if websocket != nil {
		router.GET("/ws", gin.WrapH(websocket))
	}

	// API routes
	api := router.Group("/api")

	// Overlays run inside arbitrary pages, so only the alarm callbacks
	// answer cross-origin requests.
	alarms := api.Group("/alarms/:guid", cors())
	{
		alarms.OPTIONS("/closed", preflight)
		alarms.POST("/closed", s.handleClosed)
		alarms.OPTIONS("/dismiss", preflight)
		alarms.POST("/dismiss", s.handleDismiss)
	}

	local := api.Group("", localOrigin())
	{
		local.POST("/device/register", s.handleRegister)
		local.GET("/token", s.handleToken)
		local.POST("/sync", s.handleSync)
		local.POST("/tasks/:guid/snooze", s.handleSnooze)
		local.GET("/settings", s.handleGetSettings)
		local.PUT("/settings", s.handlePutSettings)
		local.GET("/status", s.handleStatus)
		local.POST("/logout", s.handleLogout)
	}

	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("http api listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"took", time.Since(start))
	}
}

// cors lets overlays injected into arbitrary pages call back into the API.
func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		c.Next()
	}
}

func preflight(c *gin.Context) {
	c.AbortWithStatus(http.StatusNoContent)
}

// localOrigin rejects browser requests from foreign pages. Requests without
// an Origin (the CLI), from the extension, or from the daemon's own pages
// pass.
func localOrigin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !allowedOrigin(c.Request) {
			fail(c, http.StatusForbidden, errors.New("origin not allowed"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// allowedOrigin reports whether r comes from a non-browser client, an
// extension page, or a page served by this host.
func allowedOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" ||
		strings.HasPrefix(origin, "chrome-extension://") ||
		strings.HasPrefix(origin, "moz-extension://") {
		return true
	}
	u, err := url.Parse(origin)
	return err == nil && u.Host == r.Host
}
