package server

import (
	"net/http"
	"strings"

	"possale/internal/response"
)

func methodNotAllowed(w http.ResponseWriter) {
	response.ErrCode(w, "Method not allowed", "METHOD_NOT_ALLOWED", http.StatusMethodNotAllowed)
}

// Routes builds the mux. API paths are split on "/" and matched in one
// switch, as the rest of the service does.
func (a *App) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := a.DB.PingContext(r.Context()); err != nil {
			response.ErrCode(w, "database unavailable", "UNAVAILABLE", http.StatusServiceUnavailable)
			return
		}
		response.JSON(w, map[string]interface{}{"status": "ok", "stream_clients": a.Hub.ClientCount()})
	})

	// Auth routes
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == "POST" {
			a.Admin.HandleLogin(w, r)
		} else {
			methodNotAllowed(w)
		}
	})
	mux.HandleFunc("/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == "POST" {
			a.Admin.HandleLogout(w, r)
		} else {
			methodNotAllowed(w)
		}
	})
	mux.HandleFunc("/auth/me", a.Admin.HandleMe)

	mux.HandleFunc("/api/v1/", func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/api/v1/")
		path = strings.TrimSuffix(path, "/")
		parts := strings.Split(path, "/")

		switch {
		// Stock
		case path == "products" && r.Method == "GET":
			a.Stock.ListProducts(w, r)
		case path == "products" && r.Method == "POST":
			a.Stock.CreateProduct(w, r)
		case parts[0] == "products" && len(parts) == 3 && parts[2] == "batches" && r.Method == "GET":
			a.Sales.ListBatches(w, r, parts[1])
		case parts[0] == "products" && len(parts) == 3 && parts[2] == "batches" && r.Method == "POST":
			a.Stock.ReceiveBatch(w, r, parts[1])

		// Sales
		case path == "sales" && r.Method == "POST":
			a.Sales.CommitSale(w, r)
		case path == "sales/preview" && r.Method == "POST":
			a.Sales.PreviewSale(w, r)
		case path == "sales/last" && r.Method == "GET":
			a.Sales.LastSale(w, r)
		case parts[0] == "sales" && len(parts) == 3 && parts[2] == "reverse" && r.Method == "POST":
			a.Sales.ReverseSale(w, r, parts[1])
		case path == "undo-log" && r.Method == "GET":
			a.Sales.UndoLog(w, r)

		// Settings
		case path == "settings/pos" && r.Method == "GET":
			a.Admin.GetPOSSettings(w, r)
		case path == "settings/pos" && r.Method == "PUT":
			a.Admin.PutPOSSettings(w, r)

		// Audit
		case path == "audit" && r.Method == "GET":
			a.Admin.ListAudit(w, r)

		// Notifications
		case path == "notifications" && r.Method == "GET":
			a.Common.ListNotifications(w, r)
		case path == "notifications" && r.Method == "DELETE":
			a.Common.DeleteAllNotifications(w, r)
		case path == "notifications/read-all" && r.Method == "POST":
			a.Common.MarkAllNotificationsRead(w, r)
		case parts[0] == "notifications" && len(parts) == 3 && parts[2] == "read" && r.Method == "POST":
			a.Common.MarkNotificationRead(w, r, parts[1])
		case parts[0] == "notifications" && len(parts) == 2 && r.Method == "DELETE":
			a.Common.DeleteNotification(w, r, parts[1])

		// Stream
		case path == "stream-token" && r.Method == "POST":
			a.Common.IssueStreamToken(w, r)
		case path == "stream" && r.Method == "GET":
			a.Common.Stream(w, r)

		default:
			response.ErrCode(w, "not found", "NOT_FOUND", http.StatusNotFound)
		}
	})

	return mux
}
