/*
allocation.go - Allocation Engine: FIFO lot consumption

PURPOSE:
  Atomically converts a requested quantity for a (product, supplier) into
  exactly one Allocation plus the consumption entries backing it.

ALGORITHM (one transaction):
  1. Lock every lot of the pair, oldest week first (ties: lowest id)
  2. Fail with InsufficientStockError if the request exceeds the total
  3. Insert the allocation row
  4. Walk the lots, draw min(available, remaining) from each, record a
     consumption entry per touched lot
  5. If the walk ends with units left over, the lock did not hold: fail
     with ConsistencyError and roll everything back

WHY FIFO BY WEEK:
  Flowers are perishable. Consuming the oldest stock first leaves the
  freshest lots available.

CONCURRENCY:
  Two allocations for the same pair serialize on the lot locks; the second
  re-reads availability after the first commits. Different pairs do not
  share locks.

REVERSAL:
  Allocations are never edited. Deallocate returns the units to the exact
  lots they came from and appends negative entries, so both ledger
  invariants keep holding with the full history preserved.

SEE ALSO:
  - ledger.go: lots and FIFO ordering
  - prereservation/resolver.go: multi-supplier conversion via AllocateTx
*/
package stock

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// =============================================================================
// REQUEST / RESULT
// =============================================================================

type AllocationRequest struct {
	ProductID      int64
	SupplierID     int64
	DelegationID   int64
	Cantidad       int
	Semana         Week
	IdempotencyKey string
	PreReservaID   int64
}

func (r AllocationRequest) validate() error {
	fields := map[string]string{}
	if r.ProductID <= 0 {
		fields["producto_id"] = "required"
	}
	if r.SupplierID <= 0 {
		fields["proveedor_id"] = "required"
	}
	if r.DelegationID <= 0 {
		fields["delegacion_id"] = "required"
	}
	CheckQuantity(fields, "cantidad", r.Cantidad)
	if r.Semana.IsZero() {
		fields["semana"] = "required (YYYY-Www)"
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

type AllocationResult struct {
	Allocation Allocation
	Entries    []ConsumptionEntry
	// RemainingAvailable is the pair's total available after this
	// allocation.
	RemainingAvailable int
}

type AllocationDetail struct {
	Allocation Allocation
	Entries    []ConsumptionEntry
}

// =============================================================================
// ALLOCATOR
// =============================================================================

type Allocator struct {
	store Store
	log   logrus.FieldLogger
}

func NewAllocator(store Store, log logrus.FieldLogger) *Allocator {
	return &Allocator{store: store, log: log.WithField("module", "allocation")}
}

// Allocate runs AllocateTx in its own transaction.
func (a *Allocator) Allocate(ctx context.Context, req AllocationRequest) (*AllocationResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	var res *AllocationResult
	err := a.store.WithTx(ctx, func(tx Tx) error {
		var err error
		res, err = a.AllocateTx(ctx, tx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	a.log.WithFields(logrus.Fields{
		"asignacion_id": res.Allocation.ID,
		"producto_id":   req.ProductID,
		"proveedor_id":  req.SupplierID,
		"delegacion_id": req.DelegationID,
		"cantidad":      req.Cantidad,
		"lotes":         len(res.Entries),
	}).Info("allocation committed")
	return res, nil
}

// AllocateTx allocates inside the caller's unit of work. Any error leaves
// the caller responsible for rolling back.
func (a *Allocator) AllocateTx(ctx context.Context, tx Tx, req AllocationRequest) (*AllocationResult, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	if req.IdempotencyKey != "" {
		exists, err := tx.IdempotencyKeyExists(ctx, req.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, ErrDuplicateIdempotencyKey
		}
	}

	product, err := RequireProduct(ctx, tx, req.ProductID, false)
	if err != nil {
		return nil, err
	}
	supplier, err := RequireNamed(ctx, tx, KindSupplier, req.SupplierID)
	if err != nil {
		return nil, err
	}
	delegation, err := RequireNamed(ctx, tx, KindDelegation, req.DelegationID)
	if err != nil {
		return nil, err
	}

	// 1. Lock the pair's lots in FIFO order.
	lots, err := tx.ListLots(ctx, req.ProductID, req.SupplierID, true)
	if err != nil {
		return nil, err
	}

	// 2. Check availability before any write.
	total := SumAvailable(lots)
	if req.Cantidad > total {
		return nil, &InsufficientStockError{
			ProductID:  req.ProductID,
			SupplierID: req.SupplierID,
			Supplier:   supplier.Name,
			Available:  total,
			Requested:  req.Cantidad,
		}
	}

	// 3. Insert the allocation row.
	alloc := Allocation{
		Producto:       NameRef{ID: product.ID, Name: product.Nombre},
		Proveedor:      *supplier,
		Delegacion:     *delegation,
		Cantidad:       req.Cantidad,
		Semana:         req.Semana,
		IdempotencyKey: req.IdempotencyKey,
		PreReservaID:   req.PreReservaID,
		Estado:         AllocationActive,
	}
	if err := tx.InsertAllocation(ctx, &alloc); err != nil {
		return nil, err
	}

	// 4. Walk the lots.
	plan, remaining := PlanFIFO(lots, req.Cantidad)

	// 5. A shortfall here means availability changed under the lock.
	if remaining > 0 {
		return nil, &ConsistencyError{
			Detail: fmt.Sprintf("lot walk left %d of %d unallocated for producto %d / proveedor %d",
				remaining, req.Cantidad, req.ProductID, req.SupplierID),
		}
	}

	entries := make([]ConsumptionEntry, 0, len(plan))
	for _, step := range plan {
		if err := tx.AdjustLotAvailable(ctx, step.LotID, -step.Cantidad); err != nil {
			return nil, err
		}
		entry := ConsumptionEntry{AllocationID: alloc.ID, LotID: step.LotID, Cantidad: step.Cantidad}
		if err := tx.InsertConsumption(ctx, &entry); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	if err := tx.AppendAudit(ctx, AuditEntry{
		Action: AuditAllocationCreated, Entity: "asignacion", EntityID: alloc.ID,
		Payload: map[string]any{
			"producto_id":   alloc.Producto.ID,
			"proveedor_id":  alloc.Proveedor.ID,
			"delegacion_id": alloc.Delegacion.ID,
			"cantidad":      alloc.Cantidad,
			"semana":        alloc.Semana.String(),
			"lotes":         len(entries),
		},
	}); err != nil {
		return nil, err
	}

	return &AllocationResult{
		Allocation:         alloc,
		Entries:            entries,
		RemainingAvailable: total - req.Cantidad,
	}, nil
}

// PlanFIFO decides how much to draw from each lot, in the order given. It
// skips empty lots and stops as soon as the quantity is covered. The
// returned remainder is non-zero only when the lots cannot cover qty.
func PlanFIFO(lots []Lot, qty int) ([]ConsumptionEntry, int) {
	remaining := qty
	var plan []ConsumptionEntry
	for _, lot := range lots {
		if remaining <= 0 {
			break
		}
		if lot.Disponible <= 0 {
			continue
		}
		take := min(lot.Disponible, remaining)
		plan = append(plan, ConsumptionEntry{LotID: lot.ID, Cantidad: take})
		remaining -= take
	}
	return plan, remaining
}

// =============================================================================
// REVERSAL
// =============================================================================

// Deallocate annuls an active allocation and gives its units back to the
// lots they were drawn from. Allocations produced by a pre-reservation
// conversion are refused with a StateError.
func (a *Allocator) Deallocate(ctx context.Context, allocationID int64) (*AllocationDetail, error) {
	var detail *AllocationDetail
	err := a.store.WithTx(ctx, func(tx Tx) error {
		alloc, err := tx.GetAllocation(ctx, allocationID, true)
		if err != nil {
			return err
		}
		if alloc == nil {
			return NotFoundID("asignacion", allocationID)
		}
		if alloc.Estado != AllocationActive {
			return &StateError{Entity: "asignacion", ID: alloc.ID, State: string(alloc.Estado), Op: "reverse"}
		}
		// A converted pre-reservation owns the allocation together with its
		// mirrored reservation; both are terminal.
		if alloc.PreReservaID != 0 {
			return &StateError{
				Entity: "asignacion", ID: alloc.ID,
				State: string(PreReservationConverted), Op: "reverse",
			}
		}

		// Same lock order as Allocate: the pair's lots first.
		if _, err := tx.ListLots(ctx, alloc.Producto.ID, alloc.Proveedor.ID, true); err != nil {
			return err
		}

		entries, err := tx.ListConsumptionByAllocation(ctx, alloc.ID)
		if err != nil {
			return err
		}
		net := map[int64]int{}
		var order []int64
		for _, e := range entries {
			if _, seen := net[e.LotID]; !seen {
				order = append(order, e.LotID)
			}
			net[e.LotID] += e.Cantidad
		}

		returned := 0
		for _, lotID := range order {
			qty := net[lotID]
			if qty == 0 {
				continue
			}
			if err := tx.AdjustLotAvailable(ctx, lotID, qty); err != nil {
				return err
			}
			reversal := ConsumptionEntry{AllocationID: alloc.ID, LotID: lotID, Cantidad: -qty}
			if err := tx.InsertConsumption(ctx, &reversal); err != nil {
				return err
			}
			entries = append(entries, reversal)
			returned += qty
		}
		if returned != alloc.Cantidad {
			return &ConsistencyError{
				Detail: fmt.Sprintf("asignacion %d has %d units in lots, expected %d", alloc.ID, returned, alloc.Cantidad),
			}
		}

		if err := tx.SetAllocationState(ctx, alloc.ID, AllocationReversed); err != nil {
			return err
		}
		alloc.Estado = AllocationReversed
		detail = &AllocationDetail{Allocation: *alloc, Entries: entries}

		return tx.AppendAudit(ctx, AuditEntry{
			Action: AuditAllocationReversed, Entity: "asignacion", EntityID: alloc.ID,
			Payload: map[string]any{"cantidad": alloc.Cantidad},
		})
	})
	if err != nil {
		return nil, err
	}
	a.log.WithFields(logrus.Fields{
		"asignacion_id": allocationID,
		"cantidad":      detail.Allocation.Cantidad,
	}).Info("allocation reversed")
	return detail, nil
}

// Get loads an allocation with its consumption entries.
func (a *Allocator) Get(ctx context.Context, allocationID int64) (*AllocationDetail, error) {
	var detail *AllocationDetail
	err := a.store.Read(ctx, func(tx Tx) error {
		alloc, err := tx.GetAllocation(ctx, allocationID, false)
		if err != nil {
			return err
		}
		if alloc == nil {
			return NotFoundID("asignacion", allocationID)
		}
		entries, err := tx.ListConsumptionByAllocation(ctx, allocationID)
		if err != nil {
			return err
		}
		detail = &AllocationDetail{Allocation: *alloc, Entries: entries}
		return nil
	})
	return detail, err
}

// EntriesTotal sums entry quantities, reversals included.
func EntriesTotal(entries []ConsumptionEntry) int {
	total := 0
	for _, e := range entries {
		total += e.Cantidad
	}
	return total
}
