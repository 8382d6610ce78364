/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Request types carry go-playground/validator tags for shape checks
  (required, ranges, formats). Business rules (stock, quota, states) stay
  in the domain services.

WEEKS:
  Every request that takes a week accepts `semana` (YYYY-Www) or the
  legacy `fecha` (YYYY-MM-DD), converted to the week containing it.
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/chipiona/stock-engine/reservation"
	"github.com/chipiona/stock-engine/stock"
)

// =============================================================================
// REQUESTS
// =============================================================================

type CreateNamedRequest struct {
	Nombre string `json:"nombre" validate:"required,max=255"`
}

type CreateProductRequest struct {
	TipoID      int64            `json:"tipo_id" validate:"required,gt=0"`
	Nombre      string           `json:"nombre" validate:"required,max=255"`
	ProveedorID int64            `json:"proveedor_id" validate:"required,gt=0"`
	CodigoERP   string           `json:"codigo_erp" validate:"max=64"`
	Precio      *decimal.Decimal `json:"precio"`
	Cultivo     string           `json:"cultivo" validate:"max=255"`
	Vuelo       string           `json:"vuelo" validate:"max=255"`
	Fecha       string           `json:"fecha" validate:"omitempty,datetime=2006-01-02"`
}

type SetStockRequest struct {
	Cantidad *int `json:"cantidad" validate:"required,gte=0,max=1000000000"`
}

type PurchaseRequest struct {
	ProductoID     int64            `json:"producto_id" validate:"required_without=ProductoNombre,gte=0"`
	ProductoNombre string           `json:"producto_nombre" validate:"required_without=ProductoID,max=255"`
	ProveedorID    int64            `json:"proveedor_id" validate:"required,gt=0"`
	Cantidad       int              `json:"cantidad" validate:"required,gt=0,max=1000000000"`
	Semana         string           `json:"semana" validate:"required_without=Fecha"`
	Fecha          string           `json:"fecha" validate:"omitempty,datetime=2006-01-02"`
	Precio         *decimal.Decimal `json:"precio"`
}

type AllocateRequest struct {
	ProductoID     int64  `json:"producto_id" validate:"required,gt=0"`
	ProveedorID    int64  `json:"proveedor_id" validate:"required,gt=0"`
	DelegacionID   int64  `json:"delegacion_id" validate:"required,gt=0"`
	Cantidad       int    `json:"cantidad" validate:"required,gt=0,max=1000000000"`
	Semana         string `json:"semana" validate:"required_without=Fecha"`
	Fecha          string `json:"fecha" validate:"omitempty,datetime=2006-01-02"`
	IdempotencyKey string `json:"idempotency_key" validate:"max=191"`
}

type CreateReservationRequest struct {
	ComercialID int64  `json:"comercial_id" validate:"required,gt=0"`
	ProductoID  int64  `json:"producto_id" validate:"required,gt=0"`
	Cantidad    int    `json:"cantidad" validate:"required,gt=0,max=1000000000"`
	Fecha       string `json:"fecha" validate:"required,datetime=2006-01-02"`
}

type EditReservationRequest struct {
	ComercialID     int64  `json:"comercial_id" validate:"gte=0"`
	ComercialNombre string `json:"comercial_nombre" validate:"required_without=ComercialID,max=255"`
	Cantidad        int    `json:"cantidad" validate:"required,gt=0,max=1000000000"`
}

type CreatePreReservationRequest struct {
	DelegacionID   int64  `json:"delegacion_id" validate:"required,gt=0"`
	ProductoID     int64  `json:"producto_id" validate:"required_without=ProductoNombre,gte=0"`
	ProductoNombre string `json:"producto_nombre" validate:"required_without=ProductoID,max=255"`
	Cantidad       int    `json:"cantidad" validate:"required,gt=0,max=1000000000"`
	Semana         string `json:"semana" validate:"required_without=Fecha"`
	Fecha          string `json:"fecha" validate:"omitempty,datetime=2006-01-02"`
}

// ConvertRequest maps supplier id to quantity.
type ConvertRequest struct {
	Split map[int64]int `json:"split" validate:"required,min=1,dive,gt=0,max=1000000000"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// =============================================================================
// RESPONSES
// =============================================================================

type ProductDTO struct {
	ID        int64   `json:"id"`
	TipoID    int64   `json:"tipo_id,omitempty"`
	Tipo      string  `json:"tipo"`
	Nombre    string  `json:"nombre"`
	Proveedor string  `json:"proveedor"`
	CodigoERP string  `json:"codigo_erp,omitempty"`
	Precio    *string `json:"precio,omitempty"`
	Cultivo   string  `json:"cultivo,omitempty"`
	Vuelo     string  `json:"vuelo,omitempty"`
	Fecha     string  `json:"fecha,omitempty"`
	Cantidad  int     `json:"cantidad"`
	Pedido    int     `json:"pedido"`
}

type LotDTO struct {
	ID             int64   `json:"id"`
	ProductoID     int64   `json:"producto_id"`
	ProveedorID    int64   `json:"proveedor_id"`
	Semana         string  `json:"semana"`
	Lunes          string  `json:"lunes"`
	Comprada       int     `json:"cantidad_comprada"`
	Disponible     int     `json:"cantidad_disponible"`
	Consumida      int     `json:"consumida"`
	Cerrado        bool    `json:"cerrado"`
	PrecioUnitario *string `json:"precio_unitario,omitempty"`
	CreatedAt      string  `json:"created_at"`
}

type ConsumptionDTO struct {
	ID       int64 `json:"id"`
	LotID    int64 `json:"compra_id"`
	Cantidad int   `json:"cantidad"`
}

type AllocationDTO struct {
	ID             int64            `json:"id"`
	Producto       stock.NameRef    `json:"producto"`
	Proveedor      stock.NameRef    `json:"proveedor"`
	Delegacion     stock.NameRef    `json:"delegacion"`
	Cantidad       int              `json:"cantidad"`
	Semana         string           `json:"semana"`
	IdempotencyKey string           `json:"idempotency_key,omitempty"`
	PreReservaID   int64            `json:"pre_reserva_id,omitempty"`
	Estado         string           `json:"estado"`
	CreatedAt      string           `json:"created_at"`
	Lotes          []ConsumptionDTO `json:"lotes"`
	// RestanteDisponible is only set on creation.
	RestanteDisponible *int `json:"restante_disponible,omitempty"`
}

type LotConsumerDTO struct {
	AsignacionID int64         `json:"asignacion_id"`
	Delegacion   stock.NameRef `json:"delegacion"`
	Cantidad     int           `json:"cantidad"`
	Semana       string        `json:"semana"`
	Estado       string        `json:"estado"`
	CreatedAt    string        `json:"created_at"`
}

type ReservationDTO struct {
	ID           int64         `json:"id"`
	Comercial    stock.NameRef `json:"comercial"`
	Producto     stock.NameRef `json:"producto"`
	Cantidad     int           `json:"cantidad"`
	Fecha        string        `json:"fecha"`
	Semana       string        `json:"semana,omitempty"`
	OfertaID     int64         `json:"id_oferta,omitempty"`
	PreReservaID int64         `json:"pre_reserva_id,omitempty"`
	CreatedAt    string        `json:"created_at"`
}

type ReservationResultDTO struct {
	Reserva    ReservationDTO  `json:"reserva"`
	OfertaSync stock.OfferSync `json:"oferta_sync"`
}

type PreReservationDTO struct {
	ID              int64         `json:"id"`
	Delegacion      stock.NameRef `json:"delegacion"`
	Tipo            string        `json:"tipo"`
	ProductoDeseado string        `json:"producto_deseado"`
	Cantidad        int           `json:"cantidad"`
	Semana          string        `json:"semana"`
	Lunes           string        `json:"lunes"`
	Estado          string        `json:"estado"`
	CreatedAt       string        `json:"created_at"`
}

type ConvertResultDTO struct {
	PreReserva   PreReservationDTO `json:"pre_reserva"`
	Asignaciones []AllocationDTO   `json:"asignaciones"`
	Reservas     []ReservationDTO  `json:"reservas"`
}

type AuditDTO struct {
	ID        string         `json:"id"`
	Accion    string         `json:"accion"`
	Entidad   string         `json:"entidad"`
	EntidadID int64          `json:"entidad_id"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt string         `json:"created_at"`
}

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func decimalPtr(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := d.Decimal.String()
	return &s
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func toProductDTO(p stock.Product) ProductDTO {
	return ProductDTO{
		ID:        p.ID,
		TipoID:    p.TipoID,
		Tipo:      p.Tipo,
		Nombre:    p.Nombre,
		Proveedor: p.Proveedor,
		CodigoERP: p.CodigoERP,
		Precio:    decimalPtr(p.Precio),
		Cultivo:   p.Cultivo,
		Vuelo:     p.Vuelo,
		Fecha:     p.Fecha,
		Cantidad:  p.Cantidad,
		Pedido:    p.Pedido,
	}
}

func toLotDTO(l stock.Lot) LotDTO {
	return LotDTO{
		ID:             l.ID,
		ProductoID:     l.ProductID,
		ProveedorID:    l.SupplierID,
		Semana:         l.Semana.String(),
		Lunes:          l.Semana.MondayDate(),
		Comprada:       l.Comprada,
		Disponible:     l.Disponible,
		Consumida:      l.Consumed(),
		Cerrado:        l.IsClosed(),
		PrecioUnitario: decimalPtr(l.PrecioUnitario),
		CreatedAt:      formatTime(l.CreatedAt),
	}
}

func toAllocationDTO(a stock.Allocation, entries []stock.ConsumptionEntry) AllocationDTO {
	lotes := make([]ConsumptionDTO, len(entries))
	for i, e := range entries {
		lotes[i] = ConsumptionDTO{ID: e.ID, LotID: e.LotID, Cantidad: e.Cantidad}
	}
	return AllocationDTO{
		ID:             a.ID,
		Producto:       a.Producto,
		Proveedor:      a.Proveedor,
		Delegacion:     a.Delegacion,
		Cantidad:       a.Cantidad,
		Semana:         a.Semana.String(),
		IdempotencyKey: a.IdempotencyKey,
		PreReservaID:   a.PreReservaID,
		Estado:         string(a.Estado),
		CreatedAt:      formatTime(a.CreatedAt),
		Lotes:          lotes,
	}
}

func toAllocationResultDTO(res stock.AllocationResult) AllocationDTO {
	dto := toAllocationDTO(res.Allocation, res.Entries)
	remaining := res.RemainingAvailable
	dto.RestanteDisponible = &remaining
	return dto
}

func toReservationDTO(r stock.Reservation) ReservationDTO {
	dto := ReservationDTO{
		ID:           r.ID,
		Comercial:    r.Comercial,
		Producto:     r.Producto,
		Cantidad:     r.Cantidad,
		Fecha:        r.Fecha,
		OfertaID:     r.OfertaID,
		PreReservaID: r.PreReservaID,
		CreatedAt:    formatTime(r.CreatedAt),
	}
	if r.Semana != nil {
		dto.Semana = r.Semana.String()
	}
	return dto
}

func toReservationResultDTO(res *reservation.Result) ReservationResultDTO {
	return ReservationResultDTO{Reserva: toReservationDTO(res.Reservation), OfertaSync: res.Offer}
}

func toPreReservationDTO(p stock.PreReservation) PreReservationDTO {
	return PreReservationDTO{
		ID:              p.ID,
		Delegacion:      p.Delegacion,
		Tipo:            p.Tipo,
		ProductoDeseado: p.ProductoDeseado,
		Cantidad:        p.Cantidad,
		Semana:          p.Semana.String(),
		Lunes:           p.Semana.MondayDate(),
		Estado:          string(p.Estado),
		CreatedAt:       formatTime(p.CreatedAt),
	}
}

func toAuditDTO(e stock.AuditEntry) AuditDTO {
	return AuditDTO{
		ID:        e.ID,
		Accion:    string(e.Action),
		Entidad:   e.Entity,
		EntidadID: e.EntityID,
		Payload:   e.Payload,
		CreatedAt: formatTime(e.CreatedAt),
	}
}

func mapSlice[T, D any](in []T, f func(T) D) []D {
	out := make([]D, len(in))
	for i, v := range in {
		out[i] = f(v)
	}
	return out
}
