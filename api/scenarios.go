/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for testing and demos. Each scenario creates the catalog, purchase
	lots and demand lines that exercise one feature through the real
	services, so ledger and audit stay consistent.

AVAILABLE SCENARIOS:

	fifo-basic:      Two lots of one product, older week consumed first
	multi-supplier:  Same variety from two suppliers plus a pending
	                 pre-reservation ready to split
	reservations:    Nominal stock with reservations near the quota
	closed-lots:     Exhausted old lots flagged in the stock matrix

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Create catalog (types, suppliers, delegations, commercials, products)
 3. Register purchase lots, weeks relative to the current week
 4. Optionally allocate, reserve or pre-reserve

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "multi-supplier"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handler and the domain services it holds
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/chipiona/stock-engine/prereservation"
	"github.com/chipiona/stock-engine/reservation"
	"github.com/chipiona/stock-engine/stock"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "fifo-basic",
		Name:        "FIFO Basic",
		Description: "One product, two lots of 5 in consecutive weeks",
	},
	{
		ID:          "multi-supplier",
		Name:        "Multi-Supplier",
		Description: "Same variety from two suppliers and a pending pre-reservation of 20",
	},
	{
		ID:          "reservations",
		Name:        "Reservations",
		Description: "Nominal stock of 10 with reservations close to the quota",
	},
	{
		ID:          "closed-lots",
		Name:        "Closed Lots",
		Description: "Fully allocated lots from past weeks flagged as closed",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current})
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decode(w, r, &req) {
		return
	}

	var load func(context.Context) error
	switch req.ScenarioID {
	case "fifo-basic":
		load = h.loadFIFOBasicScenario
	case "multi-supplier":
		load = h.loadMultiSupplierScenario
	case "reservations":
		load = h.loadReservationsScenario
	case "closed-lots":
		load = h.loadClosedLotsScenario
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := r.Context()
	if err := h.Store.Reset(ctx); err != nil {
		h.fail(w, r, err)
		return
	}
	h.currentScenario = ""

	if err := load(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}
	h.currentScenario = req.ScenarioID

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Store.Reset(r.Context()); err != nil {
		h.fail(w, r, err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// seed collects the ids a loader creates, stopping at the first error.
type seed struct {
	ctx context.Context
	h   *Handler
	err error
}

func (s *seed) named(kind stock.EntityKind, nombre string) int64 {
	if s.err != nil {
		return 0
	}
	ref, err := s.h.Catalog.CreateNamed(s.ctx, kind, nombre)
	s.err = err
	return ref.ID
}

func (s *seed) product(tipoID, proveedorID int64, nombre, cultivo string) int64 {
	if s.err != nil {
		return 0
	}
	p, err := s.h.Catalog.CreateProduct(s.ctx, stock.NewProduct{
		TipoID:      tipoID,
		Nombre:      nombre,
		ProveedorID: proveedorID,
		Cultivo:     cultivo,
		Vuelo:       "KL",
	})
	if err != nil {
		s.err = err
		return 0
	}
	return p.ID
}

func (s *seed) purchase(productID, proveedorID int64, cantidad int, semana stock.Week) {
	if s.err != nil {
		return
	}
	_, s.err = s.h.Ledger.RegisterPurchase(s.ctx, stock.Purchase{
		Producto:    stock.ProductRef{ID: productID},
		ProveedorID: proveedorID,
		Cantidad:    cantidad,
		Semana:      semana,
	})
}

func (s *seed) allocate(productID, proveedorID, delegacionID int64, cantidad int, semana stock.Week) {
	if s.err != nil {
		return
	}
	_, s.err = s.h.Allocator.Allocate(s.ctx, stock.AllocationRequest{
		ProductID:    productID,
		SupplierID:   proveedorID,
		DelegationID: delegacionID,
		Cantidad:     cantidad,
		Semana:       semana,
	})
}

func (s *seed) thisWeek() stock.Week { return stock.WeekOf(s.h.now()) }

func (h *Handler) loadFIFOBasicScenario(ctx context.Context) error {
	s := &seed{ctx: ctx, h: h}
	week := s.thisWeek()

	rosa := s.named(stock.KindProductType, "Rosa")
	prov := s.named(stock.KindSupplier, "Florinsa")
	s.named(stock.KindDelegation, "Madrid")
	s.named(stock.KindCommercial, "Lucía")
	freedom := s.product(rosa, prov, "Freedom", "Ecuador")

	s.purchase(freedom, prov, 5, week.AddWeeks(-1))
	s.purchase(freedom, prov, 5, week)
	return s.err
}

func (h *Handler) loadMultiSupplierScenario(ctx context.Context) error {
	s := &seed{ctx: ctx, h: h}
	week := s.thisWeek()

	rosa := s.named(stock.KindProductType, "Rosa")
	provA := s.named(stock.KindSupplier, "Florinsa")
	provB := s.named(stock.KindSupplier, "Rosaprima")
	madrid := s.named(stock.KindDelegation, "Madrid")
	s.named(stock.KindDelegation, "Sevilla")
	freedomA := s.product(rosa, provA, "Freedom", "Ecuador")
	freedomB := s.product(rosa, provB, "Freedom", "Colombia")

	s.purchase(freedomA, provA, 12, week)
	s.purchase(freedomB, provB, 6, week)
	s.purchase(freedomB, provB, 4, week.AddWeeks(1))
	if s.err != nil {
		return s.err
	}

	_, err := h.PreReservations.Create(ctx, prereservation.CreateRequest{
		DelegacionID: madrid,
		Producto:     stock.ProductRef{Nombre: "Freedom"},
		Cantidad:     20,
		Semana:       week,
	})
	return err
}

func (h *Handler) loadReservationsScenario(ctx context.Context) error {
	s := &seed{ctx: ctx, h: h}

	clavel := s.named(stock.KindProductType, "Clavel")
	prov := s.named(stock.KindSupplier, "Flores del Sur")
	lucia := s.named(stock.KindCommercial, "Lucía")
	pablo := s.named(stock.KindCommercial, "Pablo")
	moonlight := s.product(clavel, prov, "Moonlight", "Colombia")
	if s.err != nil {
		return s.err
	}
	if err := h.Catalog.SetProductStock(ctx, moonlight, 10); err != nil {
		return err
	}

	fecha := s.thisWeek().MondayDate()
	for _, line := range []struct {
		comercial int64
		cantidad  int
	}{{lucia, 5}, {pablo, 2}} {
		if _, err := h.Reservations.Create(ctx, reservation.CreateRequest{
			ComercialID: line.comercial,
			ProductoID:  moonlight,
			Cantidad:    line.cantidad,
			Fecha:       fecha,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) loadClosedLotsScenario(ctx context.Context) error {
	s := &seed{ctx: ctx, h: h}
	week := s.thisWeek()

	rosa := s.named(stock.KindProductType, "Rosa")
	prov := s.named(stock.KindSupplier, "Florinsa")
	madrid := s.named(stock.KindDelegation, "Madrid")
	sevilla := s.named(stock.KindDelegation, "Sevilla")
	explorer := s.product(rosa, prov, "Explorer", "Ecuador")

	s.purchase(explorer, prov, 8, week.AddWeeks(-3))
	s.purchase(explorer, prov, 8, week.AddWeeks(-2))
	s.purchase(explorer, prov, 10, week)
	s.allocate(explorer, prov, madrid, 10, week.AddWeeks(-3))
	s.allocate(explorer, prov, sevilla, 6, week.AddWeeks(-2))
	return s.err
}
