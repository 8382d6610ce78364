package sqldb

import (
	"context"
	"fmt"

	"github.com/chipiona/stock-engine/stock"
)

// =============================================================================
// PRE-RESERVATIONS (stock.PreReservationRepo interface)
// =============================================================================

type preReservationRow struct {
	ID               int64  `db:"id"`
	DelegacionID     int64  `db:"delegacion_id"`
	DelegacionNombre string `db:"delegacion_nombre"`
	Tipo             string `db:"tipo"`
	ProductoDeseado  string `db:"producto_deseado"`
	Cantidad         int    `db:"cantidad"`
	Semana           string `db:"semana"`
	Estado           string `db:"estado"`
	CreatedAt        string `db:"created_at"`
}

const preReservationColumns = `id, delegacion_id, delegacion_nombre, tipo, producto_deseado,
	cantidad, semana, estado, created_at`

func (row preReservationRow) toDomain() stock.PreReservation {
	return stock.PreReservation{
		ID:              row.ID,
		Delegacion:      stock.NameRef{ID: row.DelegacionID, Name: row.DelegacionNombre},
		Tipo:            row.Tipo,
		ProductoDeseado: row.ProductoDeseado,
		Cantidad:        row.Cantidad,
		Semana:          parseWeek(row.Semana),
		Estado:          stock.PreReservationState(row.Estado),
		CreatedAt:       parseTime(row.CreatedAt),
	}
}

func (r *txRepo) InsertPreReservation(ctx context.Context, p *stock.PreReservation) error {
	if p.Estado == "" {
		p.Estado = stock.PreReservationPending
	}
	createdAt := r.timestamp()
	id, err := r.insert(ctx, `
		INSERT INTO pre_reservas
		(delegacion_id, delegacion_nombre, tipo, producto_deseado, cantidad, semana, estado, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Delegacion.ID, p.Delegacion.Name, p.Tipo, p.ProductoDeseado,
		p.Cantidad, p.Semana.String(), string(p.Estado), createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert pre-reservation: %w", err)
	}
	p.ID = id
	p.CreatedAt = parseTime(createdAt)
	return nil
}

func (r *txRepo) GetPreReservation(ctx context.Context, id int64, lock bool) (*stock.PreReservation, error) {
	var row preReservationRow
	found, err := r.get(ctx, &row,
		"SELECT "+preReservationColumns+" FROM pre_reservas WHERE id = ?"+r.lock(lock), id)
	if err != nil || !found {
		return nil, err
	}
	p := row.toDomain()
	return &p, nil
}

// TransitionPreReservation is a compare-and-set on estado.
func (r *txRepo) TransitionPreReservation(ctx context.Context, id int64, from, to stock.PreReservationState) (bool, error) {
	n, err := r.exec(ctx,
		"UPDATE pre_reservas SET estado = ? WHERE id = ? AND estado = ?",
		string(to), id, string(from))
	if err != nil {
		return false, fmt.Errorf("failed to update pre-reservation %d: %w", id, err)
	}
	return n > 0, nil
}

func (r *txRepo) ListPreReservations(ctx context.Context, estado stock.PreReservationState) ([]stock.PreReservation, error) {
	query := "SELECT " + preReservationColumns + " FROM pre_reservas"
	var args []any
	if estado != "" {
		query += " WHERE estado = ?"
		args = append(args, string(estado))
	}
	query += " ORDER BY semana ASC, id ASC"

	var rows []preReservationRow
	if err := r.tx.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list pre-reservations: %w", err)
	}
	out := make([]stock.PreReservation, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}
