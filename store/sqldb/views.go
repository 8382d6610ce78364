package sqldb

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/chipiona/stock-engine/stock"
)

// =============================================================================
// VIEWS (stock.ViewRepo interface)
// =============================================================================

type matrixRow struct {
	ProductoID      int64  `db:"producto_id"`
	ProductoNombre  string `db:"producto_nombre"`
	Tipo            string `db:"tipo"`
	ProveedorID     int64  `db:"proveedor_id"`
	ProveedorNombre string `db:"proveedor_nombre"`
	Semana          string `db:"semana"`
	Comprada        int    `db:"comprada"`
	Asignada        int    `db:"asignada"`
	Disponible      int    `db:"disponible"`
}

// StockMatrix computes asignada from the consumption entries rather than
// from comprada - disponible, so the two can be checked against each other.
func (r *txRepo) StockMatrix(ctx context.Context) ([]stock.MatrixRow, error) {
	var rows []matrixRow
	err := r.tx.SelectContext(ctx, &rows, `
		SELECT p.id AS producto_id, p.nombre AS producto_nombre, p.tipo AS tipo,
		       pr.id AS proveedor_id, pr.nombre AS proveedor_nombre, c.semana AS semana,
		       SUM(c.cantidad_comprada) AS comprada,
		       SUM(COALESCE(al.asignada, 0)) AS asignada,
		       SUM(c.cantidad_disponible) AS disponible
		FROM compras_stock c
		JOIN productos p ON p.id = c.producto_id
		JOIN proveedores pr ON pr.id = c.proveedor_id
		LEFT JOIN (
			SELECT compra_id, SUM(cantidad) AS asignada
			FROM asignacion_lotes
			GROUP BY compra_id
		) al ON al.compra_id = c.id
		GROUP BY p.id, p.nombre, p.tipo, pr.id, pr.nombre, c.semana
		ORDER BY p.nombre ASC, pr.nombre ASC, c.semana DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to build stock matrix: %w", err)
	}
	out := make([]stock.MatrixRow, len(rows))
	for i, row := range rows {
		out[i] = stock.MatrixRow{
			Producto:   stock.NameRef{ID: row.ProductoID, Name: row.ProductoNombre},
			Tipo:       row.Tipo,
			Proveedor:  stock.NameRef{ID: row.ProveedorID, Name: row.ProveedorNombre},
			Semana:     parseWeek(row.Semana),
			Comprada:   row.Comprada,
			Asignada:   row.Asignada,
			Disponible: row.Disponible,
		}
	}
	return out, nil
}

type repartoRow struct {
	ProductoID       int64  `db:"producto_id"`
	ProductoNombre   string `db:"producto_nombre"`
	DelegacionID     int64  `db:"delegacion_id"`
	DelegacionNombre string `db:"delegacion_nombre"`
	Cantidad         int    `db:"cantidad"`
}

func (r *txRepo) RepartoMatrix(ctx context.Context) ([]stock.RepartoRow, error) {
	var rows []repartoRow
	err := r.tx.SelectContext(ctx, &rows, `
		SELECT producto_id, producto_nombre, delegacion_id, delegacion_nombre,
		       SUM(cantidad) AS cantidad
		FROM asignaciones
		WHERE estado = 'activa'
		GROUP BY producto_id, producto_nombre, delegacion_id, delegacion_nombre
		ORDER BY producto_nombre ASC, delegacion_nombre ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to build reparto matrix: %w", err)
	}
	out := make([]stock.RepartoRow, len(rows))
	for i, row := range rows {
		out[i] = stock.RepartoRow{
			Producto:   stock.NameRef{ID: row.ProductoID, Name: row.ProductoNombre},
			Delegacion: stock.NameRef{ID: row.DelegacionID, Name: row.DelegacionNombre},
			Cantidad:   row.Cantidad,
		}
	}
	return out, nil
}

type supplierOptionRow struct {
	ProveedorID     int64  `db:"proveedor_id"`
	ProveedorNombre string `db:"proveedor_nombre"`
	ProductoID      int64  `db:"producto_id"`
	Disponible      int    `db:"disponible"`
}

// SupplierOptions joins on the canonical supplier name stored in productos.
func (r *txRepo) SupplierOptions(ctx context.Context, productName string) ([]stock.SupplierOption, error) {
	var rows []supplierOptionRow
	err := r.tx.SelectContext(ctx, &rows, `
		SELECT pr.id AS proveedor_id, pr.nombre AS proveedor_nombre, p.id AS producto_id,
		       COALESCE(SUM(c.cantidad_disponible), 0) AS disponible
		FROM productos p
		JOIN proveedores pr ON pr.nombre = p.proveedor
		LEFT JOIN compras_stock c ON c.producto_id = p.id AND c.proveedor_id = pr.id
		WHERE p.nombre = ?
		GROUP BY pr.id, pr.nombre, p.id
		ORDER BY pr.id ASC, p.id ASC`, productName)
	if err != nil {
		return nil, fmt.Errorf("failed to list supplier options: %w", err)
	}
	out := make([]stock.SupplierOption, len(rows))
	for i, row := range rows {
		out[i] = stock.SupplierOption{
			Proveedor:  stock.NameRef{ID: row.ProveedorID, Name: row.ProveedorNombre},
			ProductoID: row.ProductoID,
			Disponible: row.Disponible,
		}
	}
	return out, nil
}

// =============================================================================
// AUDIT
// =============================================================================

type auditRow struct {
	ID          string `db:"id"`
	Accion      string `db:"accion"`
	Entidad     string `db:"entidad"`
	EntidadID   int64  `db:"entidad_id"`
	PayloadJSON string `db:"payload_json"`
	CreatedAt   string `db:"created_at"`
}

func (r *txRepo) AppendAudit(ctx context.Context, entry stock.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	payload, err := json.Marshal(entry.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode audit payload: %w", err)
	}
	_, err = r.tx.ExecContext(ctx, `
		INSERT INTO auditoria (id, accion, entidad, entidad_id, payload_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, string(entry.Action), entry.Entity, entry.EntityID, string(payload), r.timestamp(),
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

func (r *txRepo) ListAudit(ctx context.Context, limit int) ([]stock.AuditEntry, error) {
	var rows []auditRow
	err := r.tx.SelectContext(ctx, &rows, `
		SELECT id, accion, entidad, entidad_id, COALESCE(payload_json, '') AS payload_json, created_at
		FROM auditoria
		ORDER BY seq DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	out := make([]stock.AuditEntry, len(rows))
	for i, row := range rows {
		entry := stock.AuditEntry{
			ID:        row.ID,
			Action:    stock.AuditAction(row.Accion),
			Entity:    row.Entidad,
			EntityID:  row.EntidadID,
			CreatedAt: parseTime(row.CreatedAt),
		}
		if row.PayloadJSON != "" {
			_ = json.Unmarshal([]byte(row.PayloadJSON), &entry.Payload)
		}
		out[i] = entry
	}
	return out, nil
}
