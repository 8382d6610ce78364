/*
ledger.go - Lot Ledger: purchased quantities per (product, supplier, week)

PURPOSE:
  Records purchase events as lots and answers "how much is left" queries.
  The lot list order defined here (week ascending, then id ascending) is
  the FIFO order the allocation engine consumes in.

INVARIANTS:
  1. Comprada is set once, on insert, and never changes
  2. Disponible starts equal to Comprada and only allocations move it
  3. Lots are never deleted; closed lots (Disponible == 0) stay for audit

PRODUCT RESOLUTION:
  The purchasing UI identifies a product by name scoped to a supplier, so
  RegisterPurchase resolves (nombre, supplier name) to a concrete product.
  An explicit product id is accepted but must belong to that supplier.

SEE ALSO:
  - allocation.go: consumes lots
  - aggregation.go: stock matrix built from lots
*/
package stock

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// =============================================================================
// LEDGER
// =============================================================================

// Ledger is the purchase side of the inventory.
type Ledger struct {
	store Store
	log   logrus.FieldLogger
}

func NewLedger(store Store, log logrus.FieldLogger) *Ledger {
	return &Ledger{store: store, log: log.WithField("module", "ledger")}
}

// Purchase is the input of RegisterPurchase.
type Purchase struct {
	Producto    ProductRef
	ProveedorID int64
	Cantidad    int
	Semana      Week
	Precio      decimal.NullDecimal
}

func (p Purchase) validate() error {
	fields := map[string]string{}
	if p.Producto.IsZero() {
		fields["producto"] = "id or nombre required"
	}
	if p.ProveedorID <= 0 {
		fields["proveedor_id"] = "required"
	}
	CheckQuantity(fields, "cantidad", p.Cantidad)
	if p.Semana.IsZero() {
		fields["semana"] = "required (YYYY-Www)"
	}
	if p.Precio.Valid && p.Precio.Decimal.IsNegative() {
		fields["precio"] = "must not be negative"
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// RegisterPurchase inserts a new lot with Disponible = Comprada = Cantidad.
func (l *Ledger) RegisterPurchase(ctx context.Context, p Purchase) (*Lot, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	var lot *Lot
	err := l.store.WithTx(ctx, func(tx Tx) error {
		supplier, err := RequireNamed(ctx, tx, KindSupplier, p.ProveedorID)
		if err != nil {
			return err
		}
		product, err := resolvePurchaseProduct(ctx, tx, p.Producto, supplier)
		if err != nil {
			return err
		}

		lot = &Lot{
			ProductID:      product.ID,
			SupplierID:     supplier.ID,
			Semana:         p.Semana,
			Comprada:       p.Cantidad,
			Disponible:     p.Cantidad,
			PrecioUnitario: p.Precio,
		}
		if err := tx.InsertLot(ctx, lot); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, AuditEntry{
			Action: AuditPurchaseRegistered, Entity: "compra_stock", EntityID: lot.ID,
			Payload: map[string]any{
				"producto_id":  product.ID,
				"proveedor_id": supplier.ID,
				"cantidad":     p.Cantidad,
				"semana":       p.Semana.String(),
			},
		})
	})
	if err != nil {
		return nil, err
	}

	l.log.WithFields(logrus.Fields{
		"lot_id":       lot.ID,
		"producto_id":  lot.ProductID,
		"proveedor_id": lot.SupplierID,
		"cantidad":     lot.Comprada,
		"semana":       lot.Semana.String(),
	}).Info("purchase registered")
	return lot, nil
}

func resolvePurchaseProduct(ctx context.Context, tx CatalogRepo, ref ProductRef, supplier *NameRef) (*Product, error) {
	if ref.ID > 0 {
		product, err := RequireProduct(ctx, tx, ref.ID, false)
		if err != nil {
			return nil, err
		}
		if !SameName(product.Proveedor, supplier.Name) {
			return nil, &NotFoundError{Entity: "producto", Key: product.Nombre + " / " + supplier.Name}
		}
		return product, nil
	}
	return ResolveSupplierProduct(ctx, tx, ref.Nombre, supplier.Name)
}

// ListLots returns every lot for the pair in FIFO order, closed ones
// included.
func (l *Ledger) ListLots(ctx context.Context, productID, supplierID int64) ([]Lot, error) {
	var lots []Lot
	err := l.store.Read(ctx, func(tx Tx) error {
		var err error
		lots, err = tx.ListLots(ctx, productID, supplierID, false)
		return err
	})
	return lots, err
}

// TotalAvailable sums Disponible across the pair's lots.
func (l *Ledger) TotalAvailable(ctx context.Context, productID, supplierID int64) (int, error) {
	lots, err := l.ListLots(ctx, productID, supplierID)
	if err != nil {
		return 0, err
	}
	return SumAvailable(lots), nil
}

// GetLot loads a single lot.
func (l *Ledger) GetLot(ctx context.Context, id int64) (*Lot, error) {
	var lot *Lot
	err := l.store.Read(ctx, func(tx Tx) error {
		var err error
		lot, err = tx.GetLot(ctx, id)
		if err == nil && lot == nil {
			err = NotFoundID("compra_stock", id)
		}
		return err
	})
	return lot, err
}

// LotConsumers lists the allocations that drew from a lot, newest first.
func (l *Ledger) LotConsumers(ctx context.Context, lotID int64) ([]LotConsumer, error) {
	var out []LotConsumer
	err := l.store.Read(ctx, func(tx Tx) error {
		lot, err := tx.GetLot(ctx, lotID)
		if err != nil {
			return err
		}
		if lot == nil {
			return NotFoundID("compra_stock", lotID)
		}
		out, err = tx.ListConsumersByLot(ctx, lotID)
		return err
	})
	return out, err
}

// SumAvailable totals Disponible over lots.
func SumAvailable(lots []Lot) int {
	total := 0
	for _, lot := range lots {
		total += lot.Disponible
	}
	return total
}
