package stock

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// =============================================================================
// AGGREGATION VIEW - Read-only projections over lots and allocations
// =============================================================================

// MatrixRow is one (product, supplier, week) cell of the purchasing matrix.
type MatrixRow struct {
	Producto       NameRef `json:"producto"`
	Tipo           string  `json:"tipo"`
	Proveedor      NameRef `json:"proveedor"`
	Semana         Week    `json:"semana"`
	Comprada       int     `json:"comprada"`
	Asignada       int     `json:"asignada"`
	Disponible     int     `json:"disponible"`
	CerradaAntigua bool    `json:"cerrada_antigua"`
}

// RepartoRow is the active allocated total of a product to a delegation.
type RepartoRow struct {
	Producto   NameRef `json:"producto"`
	Delegacion NameRef `json:"delegacion"`
	Cantidad   int     `json:"cantidad"`
}

// SupplierOption is a supplier that carries a product name, with what is
// left in its lots.
type SupplierOption struct {
	Proveedor  NameRef `json:"proveedor"`
	ProductoID int64   `json:"producto_id"`
	Disponible int     `json:"disponible"`
}

type Views struct {
	store     Store
	staleDays int
	log       logrus.FieldLogger
}

// NewViews builds the view service. Lots closed for more than staleDays are
// flagged in the matrix.
func NewViews(store Store, staleDays int, log logrus.FieldLogger) *Views {
	if staleDays <= 0 {
		staleDays = 7
	}
	return &Views{store: store, staleDays: staleDays, log: log.WithField("module", "views")}
}

// StockMatrix returns purchase totals grouped by product, supplier and week.
// Rows come ordered by product name, supplier name, then newest week first.
func (v *Views) StockMatrix(ctx context.Context, now time.Time) ([]MatrixRow, error) {
	var rows []MatrixRow
	err := v.store.Read(ctx, func(tx Tx) error {
		var err error
		rows, err = tx.StockMatrix(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	cutoff := now.UTC().AddDate(0, 0, -v.staleDays)
	for i := range rows {
		rows[i].CerradaAntigua = IsStale(rows[i], cutoff)
	}
	return rows, nil
}

// IsStale reports whether a matrix cell is exhausted and its week started
// before cutoff.
func IsStale(row MatrixRow, cutoff time.Time) bool {
	return row.Disponible <= 0 && row.Semana.Monday().Before(cutoff)
}

func (v *Views) RepartoMatrix(ctx context.Context) ([]RepartoRow, error) {
	var rows []RepartoRow
	err := v.store.Read(ctx, func(tx Tx) error {
		var err error
		rows, err = tx.RepartoMatrix(ctx)
		return err
	})
	return rows, err
}

// SupplierOptions lists every supplier whose catalog has a product with
// this name.
func (v *Views) SupplierOptions(ctx context.Context, productName string) ([]SupplierOption, error) {
	if productName == "" {
		return nil, Invalid("producto", "required")
	}
	var out []SupplierOption
	err := v.store.Read(ctx, func(tx Tx) error {
		var err error
		out, err = tx.SupplierOptions(ctx, productName)
		return err
	})
	return out, err
}

// Audit returns the latest audit entries, newest first.
func (v *Views) Audit(ctx context.Context, limit int) ([]AuditEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var out []AuditEntry
	err := v.store.Read(ctx, func(tx Tx) error {
		var err error
		out, err = tx.ListAudit(ctx, limit)
		return err
	})
	return out, err
}
