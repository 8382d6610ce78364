/*
Package stock provides the inventory allocation core.

PURPOSE:
  Tracks purchased lots per (product, supplier, week), turns requested
  quantities into allocations backed by a per-lot consumption ledger, and
  exposes the read-only rollups built from that ledger.

KEY CONCEPTS IN THIS FILE (types.go):
  - NameRef: an id plus the name it had when the row was written
  - Product, Lot, Allocation, ConsumptionEntry: ledger records
  - Reservation, PreReservation: sales-side demand records shared with the
    reservation and prereservation packages

INVARIANTS:
  1. Lot: 0 <= Disponible <= Comprada, always
  2. Lot: Comprada - Disponible == sum of its consumption entries
  3. Active allocation: Cantidad == sum of its consumption entries
  4. Annulled allocation: its entries (originals + reversals) net to zero

HISTORICAL SNAPSHOTS:
  Allocations and reservations store both the id and the name of the
  product, supplier, delegation or commercial. Renaming a supplier later
  must not rewrite history, so the name is never re-joined on read.

SEE ALSO:
  - ledger.go: purchase registration and lot queries
  - allocation.go: FIFO allocation engine
  - store.go: persistence ports
*/
package stock

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// MaxQuantity is the largest box count accepted for one purchase,
// allocation, reservation or nominal stock figure.
const MaxQuantity = 1_000_000_000

// CheckQuantity records in fields why qty is not a valid positive box count.
func CheckQuantity(fields map[string]string, name string, qty int) {
	switch {
	case qty <= 0:
		fields[name] = "must be > 0"
	case qty > MaxQuantity:
		fields[name] = fmt.Sprintf("must be <= %d", MaxQuantity)
	}
}

// =============================================================================
// IDENTIFIERS AND SNAPSHOTS
// =============================================================================

// NameRef is an entity reference frozen at write time.
type NameRef struct {
	ID   int64  `json:"id"`
	Name string `json:"nombre"`
}

// EntityKind names one of the simple (id, nombre) catalog tables.
type EntityKind string

const (
	KindSupplier    EntityKind = "proveedor"
	KindDelegation  EntityKind = "delegacion"
	KindCommercial  EntityKind = "comercial"
	KindProductType EntityKind = "tipo_producto"
)

// ProductRef identifies a product either by id or by name. When both are
// set the id wins.
type ProductRef struct {
	ID     int64
	Nombre string
}

func (r ProductRef) IsZero() bool { return r.ID <= 0 && r.Nombre == "" }

// CommercialRef identifies a commercial by id or by exact name.
type CommercialRef struct {
	ID     int64
	Nombre string
}

// =============================================================================
// CATALOG
// =============================================================================

// Product is a sellable article as offered by one canonical supplier.
//
// Proveedor holds the supplier NAME rather than an id: a flower variety is
// identified by name scoped to the supplier that grows it, and name-only
// references (pre-reservations) resolve through it.
type Product struct {
	ID        int64
	TipoID    int64
	Tipo      string
	Nombre    string
	Proveedor string
	CodigoERP string
	Precio    decimal.NullDecimal
	Cultivo   string
	Vuelo     string
	Fecha     string // YYYY-MM-DD, empty when unknown

	// Cantidad is the nominal stock figure the reservation quota uses.
	Cantidad int
	// Pedido is the running ordered total, kept equal to the sum of the
	// product's reservations.
	Pedido int
}

// =============================================================================
// LOT LEDGER
// =============================================================================

// Lot is one purchase event (compras_stock row).
type Lot struct {
	ID             int64
	ProductID      int64
	SupplierID     int64
	Semana         Week
	Comprada       int
	Disponible     int
	PrecioUnitario decimal.NullDecimal
	CreatedAt      time.Time
}

// Consumed returns the units already drawn from the lot.
func (l Lot) Consumed() int { return l.Comprada - l.Disponible }

// IsClosed reports whether the lot has been fully allocated.
func (l Lot) IsClosed() bool { return l.Disponible == 0 }

// =============================================================================
// ALLOCATIONS
// =============================================================================

type AllocationState string

const (
	AllocationActive   AllocationState = "activa"
	AllocationReversed AllocationState = "anulada"
)

// Allocation is a committed outflow of stock to a delegation.
type Allocation struct {
	ID             int64
	Producto       NameRef
	Proveedor      NameRef
	Delegacion     NameRef
	Cantidad       int
	Semana         Week
	IdempotencyKey string
	PreReservaID   int64
	Estado         AllocationState
	CreatedAt      time.Time
}

// ConsumptionEntry ties an allocation to a lot it drew from. Reversal
// entries written by Deallocate carry a negative Cantidad.
type ConsumptionEntry struct {
	ID           int64
	AllocationID int64
	LotID        int64
	Cantidad     int
}

// LotConsumer is one consumption entry seen from the lot side.
type LotConsumer struct {
	AllocationID int64
	Delegacion   NameRef
	Cantidad     int
	Semana       Week
	Estado       AllocationState
	CreatedAt    time.Time
}

// =============================================================================
// RESERVATIONS
// =============================================================================

// Reservation is a sales-side demand line against a product's stock.
type Reservation struct {
	ID           int64
	Comercial    NameRef
	Producto     NameRef
	Cantidad     int
	Fecha        string // YYYY-MM-DD
	Semana       *Week
	OfertaID     int64
	PreReservaID int64
	CreatedAt    time.Time
}

type PreReservationState string

const (
	PreReservationPending   PreReservationState = "pendiente"
	PreReservationConverted PreReservationState = "convertida"
	PreReservationCanceled  PreReservationState = "cancelada"
)

// IsTerminal reports whether no further transitions are accepted.
func (s PreReservationState) IsTerminal() bool {
	return s == PreReservationConverted || s == PreReservationCanceled
}

// PreReservation is demand not yet bound to a supplier.
type PreReservation struct {
	ID              int64
	Delegacion      NameRef
	Tipo            string
	ProductoDeseado string
	Cantidad        int
	Semana          Week
	Estado          PreReservationState
	CreatedAt       time.Time
}

// =============================================================================
// AUDIT
// =============================================================================

type AuditAction string

const (
	AuditPurchaseRegistered    AuditAction = "compra_registrada"
	AuditAllocationCreated     AuditAction = "asignacion_creada"
	AuditAllocationReversed    AuditAction = "asignacion_anulada"
	AuditReservationCreated    AuditAction = "reserva_creada"
	AuditReservationEdited     AuditAction = "reserva_editada"
	AuditReservationDeleted    AuditAction = "reserva_borrada"
	AuditPreReservationCreated AuditAction = "pre_reserva_creada"
	AuditPreReservationDone    AuditAction = "pre_reserva_convertida"
	AuditPreReservationDropped AuditAction = "pre_reserva_cancelada"
	AuditCatalogChanged        AuditAction = "catalogo_modificado"
)

// AuditEntry records which operation touched which row. Append-only.
type AuditEntry struct {
	ID        string
	Action    AuditAction
	Entity    string
	EntityID  int64
	Payload   map[string]any
	CreatedAt time.Time
}
