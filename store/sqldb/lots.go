package sqldb

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/chipiona/stock-engine/stock"
)

// =============================================================================
// LOT LEDGER (stock.LotRepo interface)
// =============================================================================

type lotRow struct {
	ID             int64               `db:"id"`
	ProductoID     int64               `db:"producto_id"`
	ProveedorID    int64               `db:"proveedor_id"`
	Semana         string              `db:"semana"`
	Comprada       int                 `db:"cantidad_comprada"`
	Disponible     int                 `db:"cantidad_disponible"`
	PrecioUnitario decimal.NullDecimal `db:"precio_unitario"`
	CreatedAt      string              `db:"created_at"`
}

const lotColumns = `id, producto_id, proveedor_id, semana, cantidad_comprada, cantidad_disponible, precio_unitario, created_at`

func (row lotRow) toDomain() stock.Lot {
	return stock.Lot{
		ID:             row.ID,
		ProductID:      row.ProductoID,
		SupplierID:     row.ProveedorID,
		Semana:         parseWeek(row.Semana),
		Comprada:       row.Comprada,
		Disponible:     row.Disponible,
		PrecioUnitario: row.PrecioUnitario,
		CreatedAt:      parseTime(row.CreatedAt),
	}
}

func (r *txRepo) InsertLot(ctx context.Context, lot *stock.Lot) error {
	createdAt := r.timestamp()
	id, err := r.insert(ctx, `
		INSERT INTO compras_stock
		(producto_id, proveedor_id, semana, cantidad_comprada, cantidad_disponible, precio_unitario, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		lot.ProductID, lot.SupplierID, lot.Semana.String(), lot.Comprada, lot.Disponible,
		lot.PrecioUnitario, createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert lot: %w", err)
	}
	lot.ID = id
	lot.CreatedAt = parseTime(createdAt)
	return nil
}

func (r *txRepo) GetLot(ctx context.Context, id int64) (*stock.Lot, error) {
	var row lotRow
	found, err := r.get(ctx, &row, "SELECT "+lotColumns+" FROM compras_stock WHERE id = ?", id)
	if err != nil || !found {
		return nil, err
	}
	lot := row.toDomain()
	return &lot, nil
}

// ListLots relies on YYYY-Www sorting lexicographically in week order.
func (r *txRepo) ListLots(ctx context.Context, productID, supplierID int64, lock bool) ([]stock.Lot, error) {
	var rows []lotRow
	err := r.tx.SelectContext(ctx, &rows, `
		SELECT `+lotColumns+`
		FROM compras_stock
		WHERE producto_id = ? AND proveedor_id = ?
		ORDER BY semana ASC, id ASC`+r.lock(lock),
		productID, supplierID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list lots: %w", err)
	}
	lots := make([]stock.Lot, len(rows))
	for i, row := range rows {
		lots[i] = row.toDomain()
	}
	return lots, nil
}

// AdjustLotAvailable applies delta only when the result stays inside
// [0, cantidad_comprada]; otherwise no row matches.
func (r *txRepo) AdjustLotAvailable(ctx context.Context, lotID int64, delta int) error {
	if delta == 0 {
		return nil
	}
	n, err := r.exec(ctx, `
		UPDATE compras_stock
		SET cantidad_disponible = cantidad_disponible + ?
		WHERE id = ?
		  AND cantidad_disponible + ? >= 0
		  AND cantidad_disponible + ? <= cantidad_comprada`,
		delta, lotID, delta, delta,
	)
	if err != nil {
		return fmt.Errorf("failed to adjust lot %d: %w", lotID, err)
	}
	if n == 0 {
		return &stock.ConsistencyError{
			Detail: fmt.Sprintf("lot %d cannot absorb a change of %d", lotID, delta),
		}
	}
	return nil
}
