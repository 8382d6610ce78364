package sqldb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/chipiona/stock-engine/stock"
)

// =============================================================================
// ALLOCATIONS (stock.AllocationRepo interface)
// =============================================================================

type allocationRow struct {
	ID               int64          `db:"id"`
	ProductoID       int64          `db:"producto_id"`
	ProductoNombre   string         `db:"producto_nombre"`
	ProveedorID      int64          `db:"proveedor_id"`
	ProveedorNombre  string         `db:"proveedor_nombre"`
	DelegacionID     int64          `db:"delegacion_id"`
	DelegacionNombre string         `db:"delegacion_nombre"`
	Cantidad         int            `db:"cantidad"`
	Semana           string         `db:"semana"`
	IdempotencyKey   sql.NullString `db:"idempotency_key"`
	PreReservaID     sql.NullInt64  `db:"pre_reserva_id"`
	Estado           string         `db:"estado"`
	CreatedAt        string         `db:"created_at"`
}

const allocationColumns = `id, producto_id, producto_nombre, proveedor_id, proveedor_nombre,
	delegacion_id, delegacion_nombre, cantidad, semana, idempotency_key, pre_reserva_id, estado, created_at`

func (row allocationRow) toDomain() stock.Allocation {
	return stock.Allocation{
		ID:             row.ID,
		Producto:       stock.NameRef{ID: row.ProductoID, Name: row.ProductoNombre},
		Proveedor:      stock.NameRef{ID: row.ProveedorID, Name: row.ProveedorNombre},
		Delegacion:     stock.NameRef{ID: row.DelegacionID, Name: row.DelegacionNombre},
		Cantidad:       row.Cantidad,
		Semana:         parseWeek(row.Semana),
		IdempotencyKey: row.IdempotencyKey.String,
		PreReservaID:   row.PreReservaID.Int64,
		Estado:         stock.AllocationState(row.Estado),
		CreatedAt:      parseTime(row.CreatedAt),
	}
}

func (r *txRepo) InsertAllocation(ctx context.Context, a *stock.Allocation) error {
	if a.Estado == "" {
		a.Estado = stock.AllocationActive
	}
	createdAt := r.timestamp()
	id, err := r.insert(ctx, `
		INSERT INTO asignaciones
		(producto_id, producto_nombre, proveedor_id, proveedor_nombre, delegacion_id, delegacion_nombre,
		 cantidad, semana, idempotency_key, pre_reserva_id, estado, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.Producto.ID, a.Producto.Name, a.Proveedor.ID, a.Proveedor.Name,
		a.Delegacion.ID, a.Delegacion.Name, a.Cantidad, a.Semana.String(),
		nullString(a.IdempotencyKey), nullInt(a.PreReservaID), string(a.Estado), createdAt,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return stock.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to insert allocation: %w", err)
	}
	a.ID = id
	a.CreatedAt = parseTime(createdAt)
	return nil
}

func (r *txRepo) GetAllocation(ctx context.Context, id int64, lock bool) (*stock.Allocation, error) {
	var row allocationRow
	found, err := r.get(ctx, &row,
		"SELECT "+allocationColumns+" FROM asignaciones WHERE id = ?"+r.lock(lock), id)
	if err != nil || !found {
		return nil, err
	}
	a := row.toDomain()
	return &a, nil
}

func (r *txRepo) IdempotencyKeyExists(ctx context.Context, key string) (bool, error) {
	var count int
	err := r.tx.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM asignaciones WHERE idempotency_key = ?", key)
	return count > 0, err
}

func (r *txRepo) SetAllocationState(ctx context.Context, id int64, state stock.AllocationState) error {
	if _, err := r.tx.ExecContext(ctx,
		"UPDATE asignaciones SET estado = ? WHERE id = ?", string(state), id); err != nil {
		return fmt.Errorf("failed to update allocation %d: %w", id, err)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Consumption entries (append-only)
// -----------------------------------------------------------------------------

type consumptionRow struct {
	ID           int64 `db:"id"`
	AsignacionID int64 `db:"asignacion_id"`
	CompraID     int64 `db:"compra_id"`
	Cantidad     int   `db:"cantidad"`
}

func (r *txRepo) InsertConsumption(ctx context.Context, e *stock.ConsumptionEntry) error {
	id, err := r.insert(ctx,
		"INSERT INTO asignacion_lotes (asignacion_id, compra_id, cantidad, created_at) VALUES (?, ?, ?, ?)",
		e.AllocationID, e.LotID, e.Cantidad, r.timestamp(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert consumption entry: %w", err)
	}
	e.ID = id
	return nil
}

func (r *txRepo) ListConsumptionByAllocation(ctx context.Context, allocationID int64) ([]stock.ConsumptionEntry, error) {
	var rows []consumptionRow
	err := r.tx.SelectContext(ctx, &rows, `
		SELECT id, asignacion_id, compra_id, cantidad
		FROM asignacion_lotes
		WHERE asignacion_id = ?
		ORDER BY id`, allocationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list consumption entries: %w", err)
	}
	out := make([]stock.ConsumptionEntry, len(rows))
	for i, row := range rows {
		out[i] = stock.ConsumptionEntry{
			ID: row.ID, AllocationID: row.AsignacionID, LotID: row.CompraID, Cantidad: row.Cantidad,
		}
	}
	return out, nil
}

type lotConsumerRow struct {
	AsignacionID     int64  `db:"asignacion_id"`
	DelegacionID     int64  `db:"delegacion_id"`
	DelegacionNombre string `db:"delegacion_nombre"`
	Cantidad         int    `db:"cantidad"`
	Semana           string `db:"semana"`
	Estado           string `db:"estado"`
	CreatedAt        string `db:"created_at"`
}

func (r *txRepo) ListConsumersByLot(ctx context.Context, lotID int64) ([]stock.LotConsumer, error) {
	var rows []lotConsumerRow
	err := r.tx.SelectContext(ctx, &rows, `
		SELECT al.asignacion_id, a.delegacion_id, a.delegacion_nombre, al.cantidad,
		       a.semana, a.estado, al.created_at
		FROM asignacion_lotes al
		JOIN asignaciones a ON a.id = al.asignacion_id
		WHERE al.compra_id = ?
		ORDER BY al.id DESC`, lotID)
	if err != nil {
		return nil, fmt.Errorf("failed to list lot consumers: %w", err)
	}
	out := make([]stock.LotConsumer, len(rows))
	for i, row := range rows {
		out[i] = stock.LotConsumer{
			AllocationID: row.AsignacionID,
			Delegacion:   stock.NameRef{ID: row.DelegacionID, Name: row.DelegacionNombre},
			Cantidad:     row.Cantidad,
			Semana:       parseWeek(row.Semana),
			Estado:       stock.AllocationState(row.Estado),
			CreatedAt:    parseTime(row.CreatedAt),
		}
	}
	return out, nil
}
