package server

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"possale/internal/handlers/admin"
	"possale/internal/handlers/common"
	"possale/internal/handlers/inventory"
	"possale/internal/handlers/sales"
	"possale/internal/websocket"
)

// App holds shared dependencies for the application.
type App struct {
	DB     *sql.DB
	Hub    *websocket.Hub
	Log    *logrus.Logger
	Sales  *sales.Handler
	Admin  *admin.Handler
	Common *common.Handler
	Stock  *inventory.Handler

	// LoginLimit caps login attempts per client IP per LoginWindow.
	LoginLimit  int
	LoginWindow time.Duration
}

// Handler returns the routed mux wrapped in the standard middleware chain.
func (a *App) Handler() http.Handler {
	limit, window := a.LoginLimit, a.LoginWindow
	if limit <= 0 {
		limit = 10
	}
	if window <= 0 {
		window = time.Minute
	}
	return Chain(a.Routes(),
		LoggingMiddleware(a.Log),
		SecurityHeaders,
		GzipMiddleware,
		LoginRateLimit(NewRateLimiter(), limit, window),
		RequireAuth(a.DB),
	)
}
