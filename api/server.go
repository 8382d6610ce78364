/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the purchasing and sales UIs

ROUTE GROUPS:
  /api/suppliers, /api/delegations, /api/commercials, /api/product-types
  /api/products/*        Catalog
  /api/purchases         Lot registration
  /api/lots/*            Lot ledger
  /api/stock/available   Remaining stock per (product, supplier)
  /api/allocations/*     Allocation engine
  /api/reservations/*    Reservation engine
  /api/pre-reservations/* Pre-reservation resolver
  /api/views/*           Matrix and reparto rollups
  /api/audit             Audit trail
  /api/scenarios/*       Demo scenarios
  /api/health            Liveness and database ping

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/chipiona/stock-engine/stock"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		MaxAge:         300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		// Catalog routes
		named := map[string]stock.EntityKind{
			"/suppliers":     stock.KindSupplier,
			"/delegations":   stock.KindDelegation,
			"/commercials":   stock.KindCommercial,
			"/product-types": stock.KindProductType,
		}
		for path, kind := range named {
			r.Get(path, h.ListNamed(kind))
			r.Post(path, h.CreateNamed(kind))
		}
		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.ListProducts)
			r.Post("/", h.CreateProduct)
			r.Get("/{id}", h.GetProduct)
			r.Put("/{id}/stock", h.SetProductStock)
			r.Get("/{id}/suppliers", h.ProductSuppliers)
		})

		// Lot routes
		r.Post("/purchases", h.RegisterPurchase)
		r.Get("/lots", h.ListLots)
		r.Get("/lots/{id}/allocations", h.LotAllocations)
		r.Get("/stock/available", h.AvailableStock)

		// Allocation routes
		r.Route("/allocations", func(r chi.Router) {
			r.Post("/", h.Allocate)
			r.Get("/{id}", h.GetAllocation)
			r.Post("/{id}/reverse", h.ReverseAllocation)
		})

		// Reservation routes
		r.Route("/reservations", func(r chi.Router) {
			r.Get("/", h.ListReservations)
			r.Post("/", h.CreateReservation)
			r.Get("/{id}", h.GetReservation)
			r.Put("/{id}", h.EditReservation)
			r.Delete("/{id}", h.DeleteReservation)
			r.Get("/{id}/max", h.MaxEditable)
		})

		// Pre-reservation routes
		r.Route("/pre-reservations", func(r chi.Router) {
			r.Get("/", h.ListPreReservations)
			r.Post("/", h.CreatePreReservation)
			r.Get("/{id}", h.GetPreReservation)
			r.Post("/{id}/convert", h.ConvertPreReservation)
			r.Post("/{id}/cancel", h.CancelPreReservation)
			r.Get("/{id}/suppliers", h.PreReservationSuppliers)
		})

		// View routes
		r.Get("/views/matrix", h.StockMatrix)
		r.Get("/views/reparto", h.RepartoMatrix)
		r.Get("/audit", h.ListAudit)

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	return r
}
