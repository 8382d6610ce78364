/*
store.go - Persistence ports for the allocation core

PURPOSE:
  Defines the interface between the domain logic and the database. There
  is no global connection: a Store hands out one Tx (unit of work) per
  transaction scope and the services receive it explicitly.

KEY INTERFACES:
  Store: transaction boundary (WithTx) plus non-locking reads (Read)
  Tx:    repository bound to one transaction

LOCKING CONTRACT:
  Methods taking `lock bool` acquire pessimistic row locks when called
  inside WithTx (SELECT ... FOR UPDATE on MySQL). The sqlite store
  serializes writers instead. Locks are released on commit or rollback.

ATOMICITY:
  If the WithTx callback returns an error every write made through the
  Tx is rolled back. Nothing is ever partially committed.

IMPLEMENTATIONS:
  - store/sqldb: sqlite3 (development, tests) and MySQL (production)
*/
package stock

import "context"

// =============================================================================
// STORE - Transaction boundary
// =============================================================================

// Store opens units of work.
type Store interface {
	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Tx) error) error

	// Read executes fn against a non-locking, read-only view.
	// Lock flags passed to Tx methods are ignored.
	Read(ctx context.Context, fn func(Tx) error) error
}

// =============================================================================
// TX - Unit of work
// =============================================================================

// Tx is the repository surface available inside one transaction. Lookups
// return (nil, nil) when the row does not exist; the services turn that
// into a NotFoundError with domain context.
type Tx interface {
	CatalogRepo
	LotRepo
	AllocationRepo
	ReservationRepo
	PreReservationRepo
	ViewRepo

	// AppendAudit records an audit entry in the same transaction.
	AppendAudit(ctx context.Context, entry AuditEntry) error
	ListAudit(ctx context.Context, limit int) ([]AuditEntry, error)
}

type CatalogRepo interface {
	GetNamed(ctx context.Context, kind EntityKind, id int64) (*NameRef, error)
	FindNamedByName(ctx context.Context, kind EntityKind, nombre string) (*NameRef, error)
	ListNamed(ctx context.Context, kind EntityKind) ([]NameRef, error)
	InsertNamed(ctx context.Context, kind EntityKind, nombre string) (int64, error)

	GetProduct(ctx context.Context, id int64, lock bool) (*Product, error)
	// FindProductsByName returns products whose name folds equal, id ascending.
	FindProductsByName(ctx context.Context, nombre string) ([]Product, error)
	ListProducts(ctx context.Context) ([]Product, error)
	InsertProduct(ctx context.Context, p *Product) error
	SetProductStock(ctx context.Context, id int64, cantidad int) error
}

type LotRepo interface {
	InsertLot(ctx context.Context, lot *Lot) error
	GetLot(ctx context.Context, id int64) (*Lot, error)
	// ListLots returns the lots of a (product, supplier) in FIFO order:
	// week ascending, then id ascending.
	ListLots(ctx context.Context, productID, supplierID int64, lock bool) ([]Lot, error)
	// AdjustLotAvailable adds delta to the lot's available counter. It fails
	// with ConsistencyError if the result would leave [0, purchased].
	AdjustLotAvailable(ctx context.Context, lotID int64, delta int) error
}

type AllocationRepo interface {
	// InsertAllocation fails with ErrDuplicateIdempotencyKey when the key
	// was already used.
	InsertAllocation(ctx context.Context, a *Allocation) error
	GetAllocation(ctx context.Context, id int64, lock bool) (*Allocation, error)
	IdempotencyKeyExists(ctx context.Context, key string) (bool, error)
	SetAllocationState(ctx context.Context, id int64, state AllocationState) error
	InsertConsumption(ctx context.Context, e *ConsumptionEntry) error
	ListConsumptionByAllocation(ctx context.Context, allocationID int64) ([]ConsumptionEntry, error)
	ListConsumersByLot(ctx context.Context, lotID int64) ([]LotConsumer, error)
}

type ReservationRepo interface {
	InsertReservation(ctx context.Context, r *Reservation) error
	GetReservation(ctx context.Context, id int64, lock bool) (*Reservation, error)
	UpdateReservation(ctx context.Context, r *Reservation) error
	DeleteReservation(ctx context.Context, id int64) error
	SetReservationOffer(ctx context.Context, id int64, ofertaID int64) error
	ListReservations(ctx context.Context, productID int64) ([]Reservation, error)
	// SumReservations totals a product's reservations, skipping excludeID.
	SumReservations(ctx context.Context, productID, excludeID int64) (int, error)
	// RecomputePedido stores SUM(reservas.cantidad) into productos.pedido.
	RecomputePedido(ctx context.Context, productID int64) error
	// AdjustPedido applies delta to productos.pedido, floor-clamped at zero.
	AdjustPedido(ctx context.Context, productID int64, delta int) error
}

type PreReservationRepo interface {
	InsertPreReservation(ctx context.Context, p *PreReservation) error
	GetPreReservation(ctx context.Context, id int64, lock bool) (*PreReservation, error)
	// TransitionPreReservation moves from -> to and reports whether a row
	// changed. It never touches a row not currently in `from`.
	TransitionPreReservation(ctx context.Context, id int64, from, to PreReservationState) (bool, error)
	ListPreReservations(ctx context.Context, estado PreReservationState) ([]PreReservation, error)
}

type ViewRepo interface {
	StockMatrix(ctx context.Context) ([]MatrixRow, error)
	RepartoMatrix(ctx context.Context) ([]RepartoRow, error)
	SupplierOptions(ctx context.Context, productName string) ([]SupplierOption, error)
}
