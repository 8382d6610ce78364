package sqldb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/chipiona/stock-engine/stock"
)

// =============================================================================
// RESERVATIONS (stock.ReservationRepo interface)
// =============================================================================

type reservationRow struct {
	ID              int64          `db:"id"`
	ComercialID     int64          `db:"comercial_id"`
	ComercialNombre string         `db:"comercial_nombre"`
	ProductoID      int64          `db:"producto_id"`
	ProductoNombre  string         `db:"producto_nombre"`
	Cantidad        int            `db:"cantidad"`
	Fecha           string         `db:"fecha"`
	Semana          sql.NullString `db:"semana"`
	IDOferta        sql.NullInt64  `db:"id_oferta"`
	PreReservaID    sql.NullInt64  `db:"pre_reserva_id"`
	CreatedAt       string         `db:"created_at"`
}

const reservationColumns = `id, comercial_id, comercial_nombre, producto_id, producto_nombre,
	cantidad, fecha, semana, id_oferta, pre_reserva_id, created_at`

func (row reservationRow) toDomain() stock.Reservation {
	res := stock.Reservation{
		ID:           row.ID,
		Comercial:    stock.NameRef{ID: row.ComercialID, Name: row.ComercialNombre},
		Producto:     stock.NameRef{ID: row.ProductoID, Name: row.ProductoNombre},
		Cantidad:     row.Cantidad,
		Fecha:        row.Fecha,
		OfertaID:     row.IDOferta.Int64,
		PreReservaID: row.PreReservaID.Int64,
		CreatedAt:    parseTime(row.CreatedAt),
	}
	if row.Semana.Valid {
		w := parseWeek(row.Semana.String)
		res.Semana = &w
	}
	return res
}

func weekColumn(w *stock.Week) sql.NullString {
	if w == nil || w.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: w.String(), Valid: true}
}

func (r *txRepo) InsertReservation(ctx context.Context, res *stock.Reservation) error {
	createdAt := r.timestamp()
	id, err := r.insert(ctx, `
		INSERT INTO reservas
		(comercial_id, comercial_nombre, producto_id, producto_nombre, cantidad, fecha, semana,
		 id_oferta, pre_reserva_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.Comercial.ID, res.Comercial.Name, res.Producto.ID, res.Producto.Name,
		res.Cantidad, res.Fecha, weekColumn(res.Semana),
		nullInt(res.OfertaID), nullInt(res.PreReservaID), createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert reservation: %w", err)
	}
	res.ID = id
	res.CreatedAt = parseTime(createdAt)
	return nil
}

func (r *txRepo) GetReservation(ctx context.Context, id int64, lock bool) (*stock.Reservation, error) {
	var row reservationRow
	found, err := r.get(ctx, &row,
		"SELECT "+reservationColumns+" FROM reservas WHERE id = ?"+r.lock(lock), id)
	if err != nil || !found {
		return nil, err
	}
	res := row.toDomain()
	return &res, nil
}

// UpdateReservation rewrites the party and quantity. Product, dates and
// links never change after insert.
func (r *txRepo) UpdateReservation(ctx context.Context, res *stock.Reservation) error {
	_, err := r.tx.ExecContext(ctx, `
		UPDATE reservas SET comercial_id = ?, comercial_nombre = ?, cantidad = ?
		WHERE id = ?`,
		res.Comercial.ID, res.Comercial.Name, res.Cantidad, res.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update reservation %d: %w", res.ID, err)
	}
	return nil
}

func (r *txRepo) DeleteReservation(ctx context.Context, id int64) error {
	n, err := r.exec(ctx, "DELETE FROM reservas WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete reservation %d: %w", id, err)
	}
	if n == 0 {
		return stock.NotFoundID("reserva", id)
	}
	return nil
}

func (r *txRepo) SetReservationOffer(ctx context.Context, id int64, ofertaID int64) error {
	if _, err := r.tx.ExecContext(ctx,
		"UPDATE reservas SET id_oferta = ? WHERE id = ?", nullInt(ofertaID), id); err != nil {
		return fmt.Errorf("failed to link offer to reservation %d: %w", id, err)
	}
	return nil
}

func (r *txRepo) ListReservations(ctx context.Context, productID int64) ([]stock.Reservation, error) {
	query := "SELECT " + reservationColumns + " FROM reservas"
	var args []any
	if productID > 0 {
		query += " WHERE producto_id = ?"
		args = append(args, productID)
	}
	query += " ORDER BY id DESC"

	var rows []reservationRow
	if err := r.tx.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list reservations: %w", err)
	}
	out := make([]stock.Reservation, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

func (r *txRepo) SumReservations(ctx context.Context, productID, excludeID int64) (int, error) {
	var total int
	err := r.tx.GetContext(ctx, &total,
		"SELECT COALESCE(SUM(cantidad), 0) FROM reservas WHERE producto_id = ? AND id <> ?",
		productID, excludeID)
	if err != nil {
		return 0, fmt.Errorf("failed to sum reservations: %w", err)
	}
	return total, nil
}

func (r *txRepo) RecomputePedido(ctx context.Context, productID int64) error {
	_, err := r.tx.ExecContext(ctx, `
		UPDATE productos
		SET pedido = (SELECT COALESCE(SUM(cantidad), 0) FROM reservas WHERE producto_id = ?)
		WHERE id = ?`, productID, productID)
	if err != nil {
		return fmt.Errorf("failed to recompute pedido for product %d: %w", productID, err)
	}
	return nil
}

func (r *txRepo) AdjustPedido(ctx context.Context, productID int64, delta int) error {
	_, err := r.tx.ExecContext(ctx,
		"UPDATE productos SET pedido = "+r.d.greatest+"(pedido + ?, 0) WHERE id = ?",
		delta, productID)
	if err != nil {
		return fmt.Errorf("failed to adjust pedido for product %d: %w", productID, err)
	}
	return nil
}
