/*
Package prereservation implements the Pre-Reservation Resolver.

PURPOSE:
  Holds demand that names a product but no supplier, and converts it into
  concrete allocations across one or more suppliers in one atomic step.

STATE MACHINE:
  pendiente --Convert--> convertida  (terminal)
  pendiente --Cancel---> cancelada   (terminal)

CONVERSION (one transaction):
  1. Lock the pre-reservation, require pendiente
  2. Require sum(split) == cantidad exactly
  3. For each supplier, in ascending id order:
       resolve the supplier and its product with the desired name,
       allocate through the Allocation Engine in this same transaction,
       write a mirrored reservation for reporting
  4. Recompute pedido for every touched product
  5. Mark convertida

  Any failure (unknown supplier, insufficient stock for ONE supplier)
  rolls back every allocation already made in the call.

SEE ALSO:
  - stock/allocation.go: AllocateTx
*/
package prereservation

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/chipiona/stock-engine/stock"
)

// Resolver is the pre-reservation service.
type Resolver struct {
	store stock.Store
	alloc *stock.Allocator
	log   logrus.FieldLogger
}

func NewResolver(store stock.Store, alloc *stock.Allocator, log logrus.FieldLogger) *Resolver {
	return &Resolver{store: store, alloc: alloc, log: log.WithField("module", "prereservation")}
}

// =============================================================================
// CREATE
// =============================================================================

type CreateRequest struct {
	DelegacionID int64
	Producto     stock.ProductRef
	Cantidad     int
	Semana       stock.Week
}

func (r CreateRequest) validate() error {
	fields := map[string]string{}
	if r.DelegacionID <= 0 {
		fields["delegacion_id"] = "required"
	}
	if r.Producto.IsZero() {
		fields["producto"] = "id or nombre required"
	}
	stock.CheckQuantity(fields, "cantidad", r.Cantidad)
	if r.Semana.IsZero() {
		fields["semana"] = "required (YYYY-Www)"
	}
	if len(fields) > 0 {
		return &stock.ValidationError{Fields: fields}
	}
	return nil
}

func (r *Resolver) Create(ctx context.Context, req CreateRequest) (*stock.PreReservation, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	var pre stock.PreReservation
	err := r.store.WithTx(ctx, func(tx stock.Tx) error {
		delegation, err := stock.RequireNamed(ctx, tx, stock.KindDelegation, req.DelegacionID)
		if err != nil {
			return err
		}
		product, err := resolveDescriptor(ctx, tx, req.Producto)
		if err != nil {
			return err
		}

		pre = stock.PreReservation{
			Delegacion:      *delegation,
			Tipo:            product.Tipo,
			ProductoDeseado: product.Nombre,
			Cantidad:        req.Cantidad,
			Semana:          req.Semana,
			Estado:          stock.PreReservationPending,
		}
		if err := tx.InsertPreReservation(ctx, &pre); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, stock.AuditEntry{
			Action: stock.AuditPreReservationCreated, Entity: "pre_reserva", EntityID: pre.ID,
			Payload: map[string]any{
				"delegacion_id": pre.Delegacion.ID,
				"producto":      pre.ProductoDeseado,
				"cantidad":      pre.Cantidad,
				"semana":        pre.Semana.String(),
			},
		})
	})
	if err != nil {
		return nil, err
	}

	r.log.WithFields(logrus.Fields{
		"pre_reserva_id": pre.ID,
		"producto":       pre.ProductoDeseado,
		"cantidad":       pre.Cantidad,
	}).Info("pre-reservation created")
	return &pre, nil
}

// resolveDescriptor maps a product id, or else an exact name, to the
// catalog product. With several products of that name the oldest wins:
// only its (tipo, nombre) is kept.
func resolveDescriptor(ctx context.Context, tx stock.CatalogRepo, ref stock.ProductRef) (*stock.Product, error) {
	if ref.ID > 0 {
		return stock.RequireProduct(ctx, tx, ref.ID, false)
	}
	nombre := strings.TrimSpace(ref.Nombre)
	matches, err := tx.FindProductsByName(ctx, nombre)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, &stock.NotFoundError{Entity: "producto", Key: nombre}
	}
	return &matches[0], nil
}

// =============================================================================
// CONVERT
// =============================================================================

// Split maps supplier id to the quantity sourced from that supplier.
type Split map[int64]int

// Total sums the split quantities.
func (s Split) Total() int {
	total := 0
	for _, q := range s {
		total += q
	}
	return total
}

// SupplierIDs returns the split's suppliers in ascending order.
func (s Split) SupplierIDs() []int64 {
	ids := make([]int64, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (s Split) validate() error {
	if len(s) == 0 {
		return stock.Invalid("split", "at least one supplier required")
	}
	fields := map[string]string{}
	for id, q := range s {
		if id <= 0 {
			fields["split"] = "supplier ids must be positive"
		}
		stock.CheckQuantity(fields, fmt.Sprintf("split[%d]", id), q)
	}
	if len(fields) > 0 {
		return &stock.ValidationError{Fields: fields}
	}
	return nil
}

// ConvertResult lists what one conversion materialized, in supplier order.
type ConvertResult struct {
	PreReservation stock.PreReservation
	Allocations    []stock.AllocationResult
	Reservations   []stock.Reservation
}

func (r *Resolver) Convert(ctx context.Context, id int64, split Split) (*ConvertResult, error) {
	if err := split.validate(); err != nil {
		return nil, err
	}

	var out ConvertResult
	err := r.store.WithTx(ctx, func(tx stock.Tx) error {
		out = ConvertResult{}

		pre, err := tx.GetPreReservation(ctx, id, true)
		if err != nil {
			return err
		}
		if pre == nil {
			return stock.NotFoundID("pre_reserva", id)
		}
		if pre.Estado != stock.PreReservationPending {
			return &stock.StateError{Entity: "pre_reserva", ID: pre.ID, State: string(pre.Estado), Op: "convert"}
		}
		if got := split.Total(); got != pre.Cantidad {
			return &stock.SplitMismatchError{Expected: pre.Cantidad, Got: got}
		}

		fecha := pre.Semana.MondayDate()
		semana := pre.Semana
		var touched []int64

		for _, supplierID := range split.SupplierIDs() {
			qty := split[supplierID]

			supplier, err := stock.RequireNamed(ctx, tx, stock.KindSupplier, supplierID)
			if err != nil {
				return err
			}
			product, err := stock.ResolveSupplierProduct(ctx, tx, pre.ProductoDeseado, supplier.Name)
			if err != nil {
				return err
			}

			alloc, err := r.alloc.AllocateTx(ctx, tx, stock.AllocationRequest{
				ProductID:    product.ID,
				SupplierID:   supplier.ID,
				DelegationID: pre.Delegacion.ID,
				Cantidad:     qty,
				Semana:       pre.Semana,
				PreReservaID: pre.ID,
			})
			if err != nil {
				return err
			}
			out.Allocations = append(out.Allocations, *alloc)

			res := stock.Reservation{
				Comercial:    pre.Delegacion,
				Producto:     stock.NameRef{ID: product.ID, Name: product.Nombre},
				Cantidad:     qty,
				Fecha:        fecha,
				Semana:       &semana,
				PreReservaID: pre.ID,
			}
			if err := tx.InsertReservation(ctx, &res); err != nil {
				return err
			}
			out.Reservations = append(out.Reservations, res)

			if !slices.Contains(touched, product.ID) {
				touched = append(touched, product.ID)
			}
		}

		for _, productID := range touched {
			if err := tx.RecomputePedido(ctx, productID); err != nil {
				return err
			}
		}

		ok, err := tx.TransitionPreReservation(ctx, pre.ID, stock.PreReservationPending, stock.PreReservationConverted)
		if err != nil {
			return err
		}
		if !ok {
			return &stock.ConsistencyError{Detail: fmt.Sprintf("pre_reserva %d left pendiente under lock", pre.ID)}
		}
		pre.Estado = stock.PreReservationConverted
		out.PreReservation = *pre

		return tx.AppendAudit(ctx, stock.AuditEntry{
			Action: stock.AuditPreReservationDone, Entity: "pre_reserva", EntityID: pre.ID,
			Payload: map[string]any{"split": splitPayload(split), "asignaciones": len(out.Allocations)},
		})
	})
	if err != nil {
		return nil, err
	}

	r.log.WithFields(logrus.Fields{
		"pre_reserva_id": id,
		"proveedores":    len(split),
		"cantidad":       split.Total(),
	}).Info("pre-reservation converted")
	return &out, nil
}

func splitPayload(s Split) map[string]int {
	out := make(map[string]int, len(s))
	for id, q := range s {
		out[fmt.Sprint(id)] = q
	}
	return out
}

// =============================================================================
// CANCEL
// =============================================================================

// Cancel moves a pending pre-reservation to cancelada. Nothing was ever
// consumed, so there is nothing to give back.
func (r *Resolver) Cancel(ctx context.Context, id int64) (*stock.PreReservation, error) {
	var pre *stock.PreReservation
	err := r.store.WithTx(ctx, func(tx stock.Tx) error {
		var err error
		pre, err = tx.GetPreReservation(ctx, id, true)
		if err != nil {
			return err
		}
		if pre == nil {
			return stock.NotFoundID("pre_reserva", id)
		}
		ok, err := tx.TransitionPreReservation(ctx, id, stock.PreReservationPending, stock.PreReservationCanceled)
		if err != nil {
			return err
		}
		if !ok {
			return &stock.StateError{Entity: "pre_reserva", ID: id, State: string(pre.Estado), Op: "cancel"}
		}
		pre.Estado = stock.PreReservationCanceled
		return tx.AppendAudit(ctx, stock.AuditEntry{
			Action: stock.AuditPreReservationDropped, Entity: "pre_reserva", EntityID: id,
		})
	})
	if err != nil {
		return nil, err
	}
	r.log.WithField("pre_reserva_id", id).Info("pre-reservation cancelled")
	return pre, nil
}

// =============================================================================
// READS
// =============================================================================

func (r *Resolver) Get(ctx context.Context, id int64) (*stock.PreReservation, error) {
	var pre *stock.PreReservation
	err := r.store.Read(ctx, func(tx stock.Tx) error {
		var err error
		pre, err = tx.GetPreReservation(ctx, id, false)
		if err == nil && pre == nil {
			err = stock.NotFoundID("pre_reserva", id)
		}
		return err
	})
	return pre, err
}

// List filters by estado; the empty state lists everything.
func (r *Resolver) List(ctx context.Context, estado stock.PreReservationState) ([]stock.PreReservation, error) {
	switch estado {
	case "", stock.PreReservationPending, stock.PreReservationConverted, stock.PreReservationCanceled:
	default:
		return nil, stock.Invalid("estado", fmt.Sprintf("unknown state %q", estado))
	}
	var out []stock.PreReservation
	err := r.store.Read(ctx, func(tx stock.Tx) error {
		var err error
		out, err = tx.ListPreReservations(ctx, estado)
		return err
	})
	return out, err
}

// SupplierOptions lists the suppliers a pre-reservation could be split
// across, with what each has left for the desired product.
func (r *Resolver) SupplierOptions(ctx context.Context, id int64) ([]stock.SupplierOption, error) {
	var out []stock.SupplierOption
	err := r.store.Read(ctx, func(tx stock.Tx) error {
		pre, err := tx.GetPreReservation(ctx, id, false)
		if err != nil {
			return err
		}
		if pre == nil {
			return stock.NotFoundID("pre_reserva", id)
		}
		out, err = tx.SupplierOptions(ctx, pre.ProductoDeseado)
		return err
	})
	return out, err
}
