package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/kiwari-pos/fulfillment/internal/config"
	"github.com/kiwari-pos/fulfillment/internal/enum"
	"github.com/kiwari-pos/fulfillment/internal/handler"
	mw "github.com/kiwari-pos/fulfillment/internal/middleware"
	"github.com/kiwari-pos/fulfillment/internal/ws"
	"github.com/sirupsen/logrus"
)

// Version is reported by /health.
const Version = "1.0.0"

// Services are the core components served over HTTP.
type Services struct {
	DB        handler.Pinger
	Cache     handler.CacheStats
	Orders    handler.OrderTransitioner
	OrderRead handler.OrderReader
	Inventory handler.InventoryLedger
	Sales     handler.SalesLedger
	Overrides handler.OverrideManager
	Reports   handler.ReportBuilder
}

// New creates a Chi router with all application routes wired up.
// Applies authentication and the admin role guard as needed.
func New(cfg *config.Config, svc Services, hub *ws.Hub, log logrus.FieldLogger) chi.Router {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	// Public routes
	r.Get("/health", handler.Health(svc.DB, svc.Cache, Version, log))

	// WebSocket route (handles auth internally via query param)
	r.Get("/ws/events", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, cfg.JWTSecret, w, r)
	})

	var events handler.Publisher
	if hub != nil {
		events = hub
	}
	orderHandler := handler.NewOrderHandler(svc.Orders, svc.OrderRead, log)
	inventoryHandler := handler.NewInventoryHandler(svc.Inventory, events, log)
	salesHandler := handler.NewSalesHandler(svc.Sales, svc.Overrides, events, log)
	reportsHandler := handler.NewReportsHandler(svc.Reports, log)

	// Protected routes (require authentication)
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))

		admin := mw.RequireRole(enum.UserRoleAdmin)

		r.Route("/orders", orderHandler.RegisterRoutes)
		r.Route("/reports", reportsHandler.RegisterRoutes)

		inventoryHandler.RegisterRoutes(r)
		r.With(admin).Group(inventoryHandler.RegisterAdminRoutes)

		r.Route("/sales", func(r chi.Router) {
			salesHandler.RegisterRoutes(r)
			r.With(admin).Group(salesHandler.RegisterAdminRoutes)
		})
	})

	log.Info("router initialized")
	return r
}
