package internal

import (
	"context"
	"database/sql"
	"embed"
	"log"
	"net/http"
	"os"
	"time"

	"nexus-inventory-api/internal/auth"
	"nexus-inventory-api/internal/config"
	"nexus-inventory-api/internal/handlers"
	"nexus-inventory-api/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed openapi
var openapiFS embed.FS

type Server struct {
	DB         *sql.DB
	Pool       *pgxpool.Pool
	Router     *chi.Mux
	JWTManager *auth.JWTManager
	Metrics    *Metrics
}

func NewServer(dsn string, cfg *config.Config) *Server {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		log.Fatal("Failed to open database connection:", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		log.Fatal("Database ping failed:", err)
	}

	// Also create a pgxpool for the catalog importer
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		log.Fatal("Failed to create pgxpool:", err)
	}

	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTExpiry)
	if err := jwtManager.ValidateConfig(); err != nil {
		log.Fatal("JWT configuration validation failed:", err)
	}

	metrics := NewMetrics()

	s := &Server{
		DB:         db,
		Pool:       pool,
		Router:     chi.NewRouter(),
		JWTManager: jwtManager,
		Metrics:    metrics,
	}

	// Public routes first, no middleware
	s.Router.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		if _, err := w.Write([]byte("ok")); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
	s.Router.Get("/dbping", func(w http.ResponseWriter, r *http.Request) {
		if err := s.DB.PingContext(r.Context()); err != nil {
			http.Error(w, "db: "+err.Error(), http.StatusServiceUnavailable)
			return
		}
		if _, err := w.Write([]byte("db: ok")); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})

	s.Router.Post("/auth/login", s.loginUser)
	s.mountDocs(s.Router)

	if os.Getenv("ENABLE_METRICS") == "true" {
		s.Router.Use(s.Metrics.Middleware())
		s.Router.Get("/metrics", s.Metrics.Handler().ServeHTTP)
	}

	s.Router.Group(func(r chi.Router) {
		r.Use(auth.AuthMiddleware(s.JWTManager))
		s.mountProtectedRoutes(r)
	})

	return s
}

// Close shuts down the server and cleans up resources
func (s *Server) Close(ctx context.Context) error {
	if s.Pool != nil {
		s.Pool.Close()
	}
	if s.DB != nil {
		return s.DB.Close()
	}
	return nil
}

// mountDocs serves the OpenAPI spec and Swagger UI
func (s *Server) mountDocs(mux *chi.Mux) {
	if os.Getenv("ENABLE_SWAGGER") != "true" {
		return
	}

	mux.HandleFunc("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		data, err := openapiFS.ReadFile("openapi/openapi.yaml")
		if err != nil {
			http.Error(w, "Failed to read OpenAPI spec", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/x-yaml")
		if _, err := w.Write(data); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})

	mux.HandleFunc("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(200)
		w.Write([]byte(`<!doctype html>
<html lang="en">
<head>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <title>Nexus Inventory API - Documentation</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5.9.0/swagger-ui.css">
    <style>
        body { margin: 0; background: #f7f7f7; }
        .swagger-ui .topbar { background: #1f2937; border-bottom: 3px solid #3b82f6; }
        .swagger-ui .topbar .download-url-wrapper { display: none; }
    </style>
</head>
<body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5.9.0/swagger-ui-bundle.js"></script>
    <script>
        window.onload = function() {
            window.ui = SwaggerUIBundle({
                url: '/openapi.yaml',
                dom_id: '#swagger-ui',
                deepLinking: true,
                presets: [
                    SwaggerUIBundle.presets.apis,
                    SwaggerUIBundle.presets.standalone
                ],
                layout: "StandaloneLayout",
                tryItOutEnabled: true
            });
        };
    </script>
</body>
</html>`))
	})
}

// mountProtectedRoutes mounts all routes that require authentication
func (s *Server) mountProtectedRoutes(r chi.Router) {
	staff := auth.MustMinRole(models.RoleStaff)
	admin := auth.MustMinRole(models.RoleAdmin)

	// Item catalog - staff manage stock, admins retire it
	r.Get("/items", s.listItems)
	r.Get("/items/low-stock", s.lowStockItems)
	r.Get("/items/out-of-stock", s.outOfStockItems)
	r.Get("/items/stats", s.itemStats)
	r.Get("/items/{id}", s.getItemByID)
	r.Post("/items", staff(http.HandlerFunc(s.createItem)).(http.HandlerFunc))
	r.Put("/items/{id}", staff(http.HandlerFunc(s.updateItem)).(http.HandlerFunc))
	r.Delete("/items/{id}", admin(http.HandlerFunc(s.deleteItem)).(http.HandlerFunc))
	r.Post("/items/{id}/status", staff(http.HandlerFunc(s.changeItemStatusHandler)).(http.HandlerFunc))

	// Borrow requests - lifecycle transitions enforce their own
	// ownership rules; route-level guards cover the staff-only verbs
	r.Get("/requests", s.listRequests)
	r.Get("/requests/stats", s.requestStats)
	r.Get("/requests/overdue", s.overdueRequests)
	r.Get("/requests/{id}", s.getRequestByID)
	r.Post("/requests", s.createRequest)
	r.Post("/requests/{id}/approve", staff(http.HandlerFunc(s.approveRequest)).(http.HandlerFunc))
	r.Post("/requests/{id}/reject", staff(http.HandlerFunc(s.rejectRequest)).(http.HandlerFunc))
	r.Post("/requests/{id}/complete", s.completeRequest)
	r.Post("/requests/{id}/cancel", s.cancelRequest)
	r.Post("/requests/{id}/return", s.returnItem)
	r.Delete("/requests/completed", staff(http.HandlerFunc(s.clearCompletedRequests)).(http.HandlerFunc))

	// Request comments
	r.Get("/requests/{id}/comments", s.listComments)
	r.Post("/requests/{id}/comments", s.createComment)

	// Notifications - always scoped to the caller
	r.Get("/notifications", s.listNotifications)
	r.Get("/notifications/unread-count", s.unreadNotificationCount)
	r.Post("/notifications/{id}/read", s.markNotificationRead)
	r.Post("/notifications/read-all", s.markAllNotificationsRead)
	r.Delete("/notifications", s.clearNotifications)

	// Overdue sweep on demand
	r.Post("/overdue/check", staff(http.HandlerFunc(s.checkOverdue)).(http.HandlerFunc))

	// Excel catalog import
	importsHandler := handlers.NewImportsHandler(s.Pool)
	r.Post("/imports/excel", staff(http.HandlerFunc(importsHandler.UploadExcel)).(http.HandlerFunc))

	// User management
	r.Get("/users", staff(http.HandlerFunc(s.listUsers)).(http.HandlerFunc))
	r.Get("/users/stats", staff(http.HandlerFunc(s.userStats)).(http.HandlerFunc))
	r.Get("/users/{id}", staff(http.HandlerFunc(s.getUser)).(http.HandlerFunc))
	r.Post("/users/{id}/role", admin(http.HandlerFunc(s.changeUserRole)).(http.HandlerFunc))
	r.Post("/users/{id}/toggle-active", admin(http.HandlerFunc(s.toggleUserStatus)).(http.HandlerFunc))
	r.Post("/users/{id}/unflag", staff(http.HandlerFunc(s.unflagUser)).(http.HandlerFunc))

	// Audit trail
	r.Get("/audit-logs", admin(http.HandlerFunc(s.listAuditLogs)).(http.HandlerFunc))

	// Self-service
	r.Get("/auth/profile", s.getUserProfile)
	r.Put("/auth/change-password", s.changePassword)
}
