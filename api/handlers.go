/*
handlers.go - HTTP API handlers for the stock engine

PURPOSE:
  Exposes the allocation core and the sales services via REST API. Handles
  HTTP request/response, JSON serialization, and delegates to the domain
  services.

ENDPOINTS:
  Catalog:
    GET/POST /api/suppliers, /api/delegations, /api/commercials,
             /api/product-types
    GET/POST /api/products
    GET      /api/products/{id}
    PUT      /api/products/{id}/stock       Set nominal stock
    GET      /api/products/{id}/suppliers   Suppliers carrying the product

  Lots:
    POST   /api/purchases                   Register a purchase lot
    GET    /api/lots?producto_id=&proveedor_id=
    GET    /api/lots/{id}/allocations       Who consumed a lot
    GET    /api/stock/available?producto_id=&proveedor_id=

  Allocations:
    POST   /api/allocations                 FIFO allocation
    GET    /api/allocations/{id}
    POST   /api/allocations/{id}/reverse    Give the units back

  Reservations and pre-reservations: see handlers_sales.go

  Views:
    GET    /api/views/matrix, /api/views/reparto, /api/audit

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Store: database access (reset, health)
  - one field per domain service

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate shape (validator tags on the *Request types)
  3. Call the domain service
  4. Serialize response
  5. Map errors to status codes

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Insufficient stock, quota, split mismatch, state, idempotency
  - 500: Consistency violations and internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - handlers_sales.go: Reservation and pre-reservation handlers
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/chipiona/stock-engine/config"
	"github.com/chipiona/stock-engine/prereservation"
	"github.com/chipiona/stock-engine/reservation"
	"github.com/chipiona/stock-engine/stock"
	"github.com/chipiona/stock-engine/store/sqldb"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store           *sqldb.Store
	Catalog         *stock.Catalog
	Ledger          *stock.Ledger
	Allocator       *stock.Allocator
	Views           *stock.Views
	Reservations    *reservation.Engine
	PreReservations *prereservation.Resolver

	log      logrus.FieldLogger
	validate *validator.Validate
	now      func() time.Time

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// NewHandler wires every service on top of store. mirror receives the
// reservation offers; pass offer.Nop{} to disable it.
func NewHandler(store *sqldb.Store, mirror stock.OfferMirror, staleLotDays int, log logrus.FieldLogger) *Handler {
	alloc := stock.NewAllocator(store, log)
	return &Handler{
		Store:           store,
		Catalog:         stock.NewCatalog(store, log),
		Ledger:          stock.NewLedger(store, log),
		Allocator:       alloc,
		Views:           stock.NewViews(store, staleLotDays, log),
		Reservations:    reservation.NewEngine(store, mirror, log),
		PreReservations: prereservation.NewResolver(store, alloc, log),
		log:             log.WithField("module", "api"),
		validate:        newValidator(),
		now:             time.Now,
	}
}

func newValidator() *validator.Validate {
	v := validator.New()
	// Report fields under their JSON names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Health pings the database.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.DB().PingContext(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "Database unavailable", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "driver": h.Store.Driver()})
}

// =============================================================================
// CATALOG HANDLERS
// =============================================================================

// ListNamed lists one of the simple (id, nombre) catalogs.
func (h *Handler) ListNamed(kind stock.EntityKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		refs, err := h.Catalog.ListNamed(r.Context(), kind)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, orEmpty(refs))
	}
}

// CreateNamed registers a supplier, delegation, commercial or product type.
func (h *Handler) CreateNamed(kind stock.EntityKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateNamedRequest
		if !h.decode(w, r, &req) {
			return
		}
		ref, err := h.Catalog.CreateNamed(r.Context(), kind, req.Nombre)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, ref)
	}
}

func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.Catalog.ListProducts(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(products, toProductDTO))
}

func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	product, err := h.Catalog.GetProduct(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductDTO(*product))
}

func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req CreateProductRequest
	if !h.decode(w, r, &req) {
		return
	}
	product, err := h.Catalog.CreateProduct(r.Context(), stock.NewProduct{
		TipoID:      req.TipoID,
		Nombre:      req.Nombre,
		ProveedorID: req.ProveedorID,
		CodigoERP:   req.CodigoERP,
		Precio:      nullDecimal(req.Precio),
		Cultivo:     req.Cultivo,
		Vuelo:       req.Vuelo,
		Fecha:       req.Fecha,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProductDTO(*product))
}

// SetProductStock sets the nominal stock the reservation quota uses.
func (h *Handler) SetProductStock(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req SetStockRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.Catalog.SetProductStock(r.Context(), id, *req.Cantidad); err != nil {
		h.fail(w, r, err)
		return
	}
	product, err := h.Catalog.GetProduct(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProductDTO(*product))
}

// ProductSuppliers lists the suppliers offering a product of the same name.
func (h *Handler) ProductSuppliers(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	product, err := h.Catalog.GetProduct(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	options, err := h.Views.SupplierOptions(r.Context(), product.Nombre)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(options))
}

// =============================================================================
// LOT HANDLERS
// =============================================================================

func (h *Handler) RegisterPurchase(w http.ResponseWriter, r *http.Request) {
	var req PurchaseRequest
	if !h.decode(w, r, &req) {
		return
	}
	semana, err := stock.ResolveWeek(req.Semana, req.Fecha)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	lot, err := h.Ledger.RegisterPurchase(r.Context(), stock.Purchase{
		Producto:    stock.ProductRef{ID: req.ProductoID, Nombre: req.ProductoNombre},
		ProveedorID: req.ProveedorID,
		Cantidad:    req.Cantidad,
		Semana:      semana,
		Precio:      nullDecimal(req.Precio),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLotDTO(*lot))
}

func (h *Handler) ListLots(w http.ResponseWriter, r *http.Request) {
	productID, supplierID, ok := h.pairQuery(w, r)
	if !ok {
		return
	}
	lots, err := h.Ledger.ListLots(r.Context(), productID, supplierID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(lots, toLotDTO))
}

// LotAllocations lists the allocations that consumed from a lot.
func (h *Handler) LotAllocations(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	consumers, err := h.Ledger.LotConsumers(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(consumers, func(c stock.LotConsumer) LotConsumerDTO {
		return LotConsumerDTO{
			AsignacionID: c.AllocationID,
			Delegacion:   c.Delegacion,
			Cantidad:     c.Cantidad,
			Semana:       c.Semana.String(),
			Estado:       string(c.Estado),
			CreatedAt:    formatTime(c.CreatedAt),
		}
	}))
}

func (h *Handler) AvailableStock(w http.ResponseWriter, r *http.Request) {
	productID, supplierID, ok := h.pairQuery(w, r)
	if !ok {
		return
	}
	total, err := h.Ledger.TotalAvailable(r.Context(), productID, supplierID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"producto_id":  productID,
		"proveedor_id": supplierID,
		"disponible":   total,
	})
}

// =============================================================================
// ALLOCATION HANDLERS
// =============================================================================

// Allocate draws stock FIFO. The idempotency key may come in the body or
// in the Idempotency-Key header.
func (h *Handler) Allocate(w http.ResponseWriter, r *http.Request) {
	var req AllocateRequest
	if !h.decode(w, r, &req) {
		return
	}
	semana, err := stock.ResolveWeek(req.Semana, req.Fecha)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	key := req.IdempotencyKey
	if key == "" {
		key = r.Header.Get("Idempotency-Key")
	}
	res, err := h.Allocator.Allocate(r.Context(), stock.AllocationRequest{
		ProductID:      req.ProductoID,
		SupplierID:     req.ProveedorID,
		DelegationID:   req.DelegacionID,
		Cantidad:       req.Cantidad,
		Semana:         semana,
		IdempotencyKey: key,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAllocationResultDTO(*res))
}

func (h *Handler) GetAllocation(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	detail, err := h.Allocator.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAllocationDTO(detail.Allocation, detail.Entries))
}

// ReverseAllocation returns an allocation's units to the lots it drew from.
func (h *Handler) ReverseAllocation(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	detail, err := h.Allocator.Deallocate(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAllocationDTO(detail.Allocation, detail.Entries))
}

// =============================================================================
// VIEW HANDLERS
// =============================================================================

func (h *Handler) StockMatrix(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Views.StockMatrix(r.Context(), h.now())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(rows))
}

func (h *Handler) RepartoMatrix(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Views.RepartoMatrix(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(rows))
}

func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			h.fail(w, r, stock.Invalid("limit", "must be an integer"))
			return
		}
		limit = n
	}
	entries, err := h.Views.Audit(r.Context(), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(entries, toAuditDTO))
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = errorDetails(err)
	}
	writeJSON(w, status, resp)
}

// statusFor maps the domain error taxonomy to HTTP.
func statusFor(err error) int {
	switch {
	case stock.IsNotFound(err):
		return http.StatusNotFound
	case stock.IsConflict(err), errors.Is(err, stock.ErrSplitMismatch):
		return http.StatusConflict
	case errors.Is(err, stock.ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// errorDetails exposes the structured part of a domain error.
func errorDetails(err error) any {
	var (
		ve    *stock.ValidationError
		ins   *stock.InsufficientStockError
		quota *stock.QuotaExceededError
		split *stock.SplitMismatchError
		state *stock.StateError
	)
	switch {
	case errors.As(err, &ve):
		return ve.Fields
	case errors.As(err, &ins):
		return map[string]any{
			"producto_id":  ins.ProductID,
			"proveedor_id": ins.SupplierID,
			"proveedor":    ins.Supplier,
			"disponible":   ins.Available,
			"solicitado":   ins.Requested,
		}
	case errors.As(err, &quota):
		return map[string]any{"max": quota.Max, "solicitado": quota.Requested}
	case errors.As(err, &split):
		return map[string]any{"esperado": split.Expected, "recibido": split.Got}
	case errors.As(err, &state):
		return map[string]any{"estado": state.State}
	default:
		return err.Error()
	}
}

// fail writes err with the status its class maps to. Server-side failures
// are logged with the request id.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		config.LogError(h.log, "api", r.Method+" "+r.URL.Path,
			map[string]string{"request_id": middleware.GetReqID(r.Context())}, err)
		writeError(w, status, "Internal error", err)
		return
	}
	writeError(w, status, err.Error(), err)
}

// decode reads the JSON body into dst and runs the validator tags. It
// writes the error response itself and reports whether to continue.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return false
		}
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			rule := fe.Tag()
			if fe.Param() != "" {
				rule += "=" + fe.Param()
			}
			fields[fe.Field()] = rule
		}
		h.fail(w, r, &stock.ValidationError{Fields: fields})
		return false
	}
	return true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		h.fail(w, r, stock.Invalid("id", "must be a positive integer"))
		return 0, false
	}
	return id, true
}

// queryID reads an optional positive id from the query string; 0 if absent.
func queryID(r *http.Request, name string) (int64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		return 0, stock.Invalid(name, "must be a positive integer")
	}
	return id, nil
}

// pairQuery reads the mandatory producto_id and proveedor_id.
func (h *Handler) pairQuery(w http.ResponseWriter, r *http.Request) (int64, int64, bool) {
	fields := map[string]string{}
	productID, err := queryID(r, "producto_id")
	if err != nil || productID == 0 {
		fields["producto_id"] = "required positive integer"
	}
	supplierID, err := queryID(r, "proveedor_id")
	if err != nil || supplierID == 0 {
		fields["proveedor_id"] = "required positive integer"
	}
	if len(fields) > 0 {
		h.fail(w, r, &stock.ValidationError{Fields: fields})
		return 0, 0, false
	}
	return productID, supplierID, true
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
