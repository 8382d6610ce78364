/*
handlers_test.go - HTTP tests for the API layer

Tests for:
- Catalog and purchase registration (legacy fecha input)
- Allocation status codes: created, idempotent replay, insufficient stock
- Validation, not found and quota error bodies
- Pre-reservation split mismatch
*/
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chipiona/stock-engine/offer"
	"github.com/chipiona/stock-engine/store/sqldb"
)

type testServer struct {
	t      *testing.T
	h      *Handler
	router *chi.Mux
}

func newTestServer(t *testing.T) *testServer {
	store, err := sqldb.New(sqldb.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	log := logrus.New()
	log.SetOutput(io.Discard)

	h := NewHandler(store, offer.Nop{}, 7, log)
	return &testServer{t: t, h: h, router: NewRouter(h, []string{"*"})}
}

// do sends body as JSON and decodes the response into out when non-nil.
func (s *testServer) do(method, path string, body any, out any, headers ...string) int {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if out != nil {
		require.NoError(s.t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec.Code
}

func (s *testServer) named(path, nombre string) int64 {
	s.t.Helper()
	var ref struct {
		ID int64 `json:"id"`
	}
	require.Equal(s.t, http.StatusCreated, s.do(http.MethodPost, path, CreateNamedRequest{Nombre: nombre}, &ref))
	return ref.ID
}

// catalog seeds one Rosa Freedom from Florinsa and a Madrid delegation.
type catalog struct {
	productID, supplierID, delegationID int64
}

func (s *testServer) catalog() catalog {
	s.t.Helper()
	tipo := s.named("/api/product-types", "Rosa")
	supplier := s.named("/api/suppliers", "Florinsa")
	delegation := s.named("/api/delegations", "Madrid")

	var p ProductDTO
	code := s.do(http.MethodPost, "/api/products", CreateProductRequest{TipoID: tipo, Nombre: "Freedom", ProveedorID: supplier}, &p)
	require.Equal(s.t, http.StatusCreated, code)
	return catalog{productID: p.ID, supplierID: supplier, delegationID: delegation}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	var body map[string]string
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/health", nil, &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "sqlite3", body["driver"])
}

func TestRegisterPurchase_LegacyFecha(t *testing.T) {
	// GIVEN: A product in the catalog
	s := newTestServer(t)
	c := s.catalog()

	// WHEN: A purchase arrives with a calendar date instead of a week
	var lot LotDTO
	code := s.do(http.MethodPost, "/api/purchases", map[string]any{
		"producto_nombre": "Freedom",
		"proveedor_id":    c.supplierID,
		"cantidad":        5,
		"fecha":           "2025-03-05",
		"precio":          "0.45",
	}, &lot)

	// THEN: It is stored against the ISO week containing the date
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, c.productID, lot.ProductoID)
	assert.Equal(t, "2025-W10", lot.Semana)
	assert.Equal(t, "2025-03-03", lot.Lunes)
	assert.Equal(t, 5, lot.Disponible)
	require.NotNil(t, lot.PrecioUnitario)
	assert.Equal(t, "0.45", *lot.PrecioUnitario)

	var lots []LotDTO
	path := fmt.Sprintf("/api/lots?producto_id=%d&proveedor_id=%d", c.productID, c.supplierID)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, path, nil, &lots))
	assert.Len(t, lots, 1)
}

func TestAllocate_StatusCodes(t *testing.T) {
	// GIVEN: 5 units in week 10
	s := newTestServer(t)
	c := s.catalog()
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/purchases", PurchaseRequest{
		ProductoID: c.productID, ProveedorID: c.supplierID, Cantidad: 5, Semana: "2025-W10",
	}, nil))

	req := AllocateRequest{
		ProductoID: c.productID, ProveedorID: c.supplierID, DelegacionID: c.delegationID,
		Cantidad: 3, Semana: "2025-W10",
	}

	// WHEN: Allocating 3 with an idempotency header
	var alloc AllocationDTO
	code := s.do(http.MethodPost, "/api/allocations", req, &alloc, "Idempotency-Key", "pedido-1")
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "pedido-1", alloc.IdempotencyKey)
	require.NotNil(t, alloc.RestanteDisponible)
	assert.Equal(t, 2, *alloc.RestanteDisponible)
	assert.Len(t, alloc.Lotes, 1)

	// WHEN: The same key is replayed, THEN: conflict and nothing drawn
	var errResp ErrorResponse
	code = s.do(http.MethodPost, "/api/allocations", req, &errResp, "Idempotency-Key", "pedido-1")
	assert.Equal(t, http.StatusConflict, code)

	// WHEN: Asking for more than remains
	req.Cantidad = 10
	code = s.do(http.MethodPost, "/api/allocations", req, &errResp)
	assert.Equal(t, http.StatusConflict, code)
	details, ok := errResp.Details.(map[string]any)
	require.True(t, ok, "details: %#v", errResp.Details)
	assert.EqualValues(t, 2, details["disponible"])
	assert.EqualValues(t, 10, details["solicitado"])

	var avail map[string]any
	path := fmt.Sprintf("/api/stock/available?producto_id=%d&proveedor_id=%d", c.productID, c.supplierID)
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, path, nil, &avail))
	assert.EqualValues(t, 2, avail["disponible"])

	// WHEN: The allocation is reversed, THEN: the stock comes back
	var reversed AllocationDTO
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, fmt.Sprintf("/api/allocations/%d/reverse", alloc.ID), nil, &reversed))
	assert.Equal(t, "anulada", reversed.Estado)
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, path, nil, &avail))
	assert.EqualValues(t, 5, avail["disponible"])
}

func TestValidationErrors(t *testing.T) {
	s := newTestServer(t)

	var errResp ErrorResponse
	code := s.do(http.MethodPost, "/api/allocations", map[string]any{"cantidad": -1}, &errResp)
	assert.Equal(t, http.StatusBadRequest, code)
	details, ok := errResp.Details.(map[string]any)
	require.True(t, ok)
	assert.Contains(t, details, "producto_id")
	assert.Contains(t, details, "cantidad")

	// Malformed week
	c := s.catalog()
	code = s.do(http.MethodPost, "/api/purchases", PurchaseRequest{
		ProductoID: c.productID, ProveedorID: c.supplierID, Cantidad: 1, Semana: "2025-10",
	}, &errResp)
	assert.Equal(t, http.StatusBadRequest, code)

	// Quantity above the ceiling
	code = s.do(http.MethodPost, "/api/purchases", PurchaseRequest{
		ProductoID: c.productID, ProveedorID: c.supplierID, Cantidad: 1_000_000_001, Semana: "2025-W10",
	}, &errResp)
	assert.Equal(t, http.StatusBadRequest, code)
	details, ok = errResp.Details.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "max=1000000000", details["cantidad"])

	// Bad path id
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/api/products/abc", nil, nil))

	// Missing query pair
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/api/lots", nil, nil))
}

func TestNotFound(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/allocations/999", nil, nil))
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/products/999", nil, nil))
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodDelete, "/api/reservations/999", nil, nil))
}

func TestEditReservation_QuotaExceeded(t *testing.T) {
	// GIVEN: Nominal stock of 5 and one reservation of 3
	s := newTestServer(t)
	c := s.catalog()
	commercial := s.named("/api/commercials", "Lucía")
	nominal := 5
	require.Equal(t, http.StatusOK, s.do(http.MethodPut, fmt.Sprintf("/api/products/%d/stock", c.productID),
		SetStockRequest{Cantidad: &nominal}, nil))

	var created ReservationResultDTO
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/reservations", CreateReservationRequest{
		ComercialID: commercial, ProductoID: c.productID, Cantidad: 3, Fecha: "2025-03-10",
	}, &created))
	assert.False(t, created.OfertaSync.Attempted)
	id := created.Reserva.ID

	// WHEN: Raised to 6
	var errResp ErrorResponse
	code := s.do(http.MethodPut, fmt.Sprintf("/api/reservations/%d", id),
		EditReservationRequest{ComercialID: commercial, Cantidad: 6}, &errResp)

	// THEN: Conflict reporting the ceiling
	assert.Equal(t, http.StatusConflict, code)
	details, ok := errResp.Details.(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 5, details["max"])

	var quota map[string]any
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, fmt.Sprintf("/api/reservations/%d/max", id), nil, &quota))
	assert.EqualValues(t, 5, quota["max"])

	// Editing to exactly the ceiling by commercial name succeeds
	var edited ReservationResultDTO
	code = s.do(http.MethodPut, fmt.Sprintf("/api/reservations/%d", id),
		EditReservationRequest{ComercialNombre: "lucía", Cantidad: 5}, &edited)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 5, edited.Reserva.Cantidad)
}

func TestConvertPreReservation_SplitMismatch(t *testing.T) {
	s := newTestServer(t)
	c := s.catalog()

	var pre PreReservationDTO
	require.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/pre-reservations", CreatePreReservationRequest{
		DelegacionID: c.delegationID, ProductoNombre: "Freedom", Cantidad: 4, Semana: "2025-W10",
	}, &pre))
	assert.Equal(t, "pendiente", pre.Estado)
	assert.Equal(t, "Rosa", pre.Tipo)

	var errResp ErrorResponse
	code := s.do(http.MethodPost, fmt.Sprintf("/api/pre-reservations/%d/convert", pre.ID),
		map[string]any{"split": map[string]int{fmt.Sprint(c.supplierID): 3}}, &errResp)
	assert.Equal(t, http.StatusConflict, code)

	var got PreReservationDTO
	require.Equal(t, http.StatusOK, s.do(http.MethodGet, fmt.Sprintf("/api/pre-reservations/%d", pre.ID), nil, &got))
	assert.Equal(t, "pendiente", got.Estado)
}
