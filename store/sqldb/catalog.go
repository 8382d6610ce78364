package sqldb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/chipiona/stock-engine/stock"
)

// =============================================================================
// CATALOG (stock.CatalogRepo interface)
// =============================================================================

var namedTables = map[stock.EntityKind]string{
	stock.KindSupplier:    "proveedores",
	stock.KindDelegation:  "delegaciones",
	stock.KindCommercial:  "comerciales",
	stock.KindProductType: "tipos_producto",
}

func tableFor(kind stock.EntityKind) (string, error) {
	table, ok := namedTables[kind]
	if !ok {
		return "", fmt.Errorf("unknown catalog kind %q", kind)
	}
	return table, nil
}

type namedRow struct {
	ID     int64  `db:"id"`
	Nombre string `db:"nombre"`
}

func (r *txRepo) GetNamed(ctx context.Context, kind stock.EntityKind, id int64) (*stock.NameRef, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	var row namedRow
	found, err := r.get(ctx, &row, "SELECT id, nombre FROM "+table+" WHERE id = ?", id)
	if err != nil || !found {
		return nil, err
	}
	return &stock.NameRef{ID: row.ID, Name: row.Nombre}, nil
}

// FindNamedByName matches case-insensitively with Unicode folding, which
// SQL LOWER() does not do on sqlite. Catalog tables are small.
func (r *txRepo) FindNamedByName(ctx context.Context, kind stock.EntityKind, nombre string) (*stock.NameRef, error) {
	all, err := r.ListNamed(ctx, kind)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if stock.SameName(all[i].Name, nombre) {
			return &all[i], nil
		}
	}
	return nil, nil
}

func (r *txRepo) ListNamed(ctx context.Context, kind stock.EntityKind) ([]stock.NameRef, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	var rows []namedRow
	if err := r.tx.SelectContext(ctx, &rows, "SELECT id, nombre FROM "+table+" ORDER BY id"); err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", table, err)
	}
	out := make([]stock.NameRef, len(rows))
	for i, row := range rows {
		out[i] = stock.NameRef{ID: row.ID, Name: row.Nombre}
	}
	return out, nil
}

func (r *txRepo) InsertNamed(ctx context.Context, kind stock.EntityKind, nombre string) (int64, error) {
	table, err := tableFor(kind)
	if err != nil {
		return 0, err
	}
	id, err := r.insert(ctx, "INSERT INTO "+table+" (nombre) VALUES (?)", nombre)
	if err != nil {
		return 0, fmt.Errorf("failed to insert into %s: %w", table, err)
	}
	return id, nil
}

// -----------------------------------------------------------------------------
// Products
// -----------------------------------------------------------------------------

type productRow struct {
	ID        int64               `db:"id"`
	TipoID    sql.NullInt64       `db:"tipo_id"`
	Tipo      string              `db:"tipo"`
	Nombre    string              `db:"nombre"`
	Proveedor string              `db:"proveedor"`
	CodigoERP sql.NullString      `db:"codigo_erp"`
	Precio    decimal.NullDecimal `db:"precio"`
	Cultivo   string              `db:"cultivo"`
	Vuelo     string              `db:"vuelo"`
	Fecha     sql.NullString      `db:"fecha"`
	Cantidad  int                 `db:"cantidad"`
	Pedido    int                 `db:"pedido"`
}

const productColumns = `id, tipo_id, tipo, nombre, proveedor, codigo_erp, precio, cultivo, vuelo, fecha, cantidad, pedido`

func (row productRow) toDomain() stock.Product {
	return stock.Product{
		ID:        row.ID,
		TipoID:    row.TipoID.Int64,
		Tipo:      row.Tipo,
		Nombre:    row.Nombre,
		Proveedor: row.Proveedor,
		CodigoERP: row.CodigoERP.String,
		Precio:    row.Precio,
		Cultivo:   row.Cultivo,
		Vuelo:     row.Vuelo,
		Fecha:     row.Fecha.String,
		Cantidad:  row.Cantidad,
		Pedido:    row.Pedido,
	}
}

func (r *txRepo) GetProduct(ctx context.Context, id int64, lock bool) (*stock.Product, error) {
	var row productRow
	found, err := r.get(ctx, &row,
		"SELECT "+productColumns+" FROM productos WHERE id = ?"+r.lock(lock), id)
	if err != nil || !found {
		return nil, err
	}
	p := row.toDomain()
	return &p, nil
}

func (r *txRepo) FindProductsByName(ctx context.Context, nombre string) ([]stock.Product, error) {
	// SQLite's LOWER only folds ASCII, so accented names are matched here.
	all, err := r.queryProducts(ctx, "SELECT "+productColumns+" FROM productos ORDER BY id")
	if err != nil {
		return nil, err
	}
	var out []stock.Product
	for _, p := range all {
		if stock.SameName(p.Nombre, nombre) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *txRepo) ListProducts(ctx context.Context) ([]stock.Product, error) {
	return r.queryProducts(ctx,
		"SELECT "+productColumns+" FROM productos ORDER BY nombre, proveedor, id")
}

func (r *txRepo) queryProducts(ctx context.Context, query string, args ...any) ([]stock.Product, error) {
	var rows []productRow
	if err := r.tx.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	out := make([]stock.Product, len(rows))
	for i, row := range rows {
		out[i] = row.toDomain()
	}
	return out, nil
}

func (r *txRepo) InsertProduct(ctx context.Context, p *stock.Product) error {
	id, err := r.insert(ctx, `
		INSERT INTO productos
		(tipo_id, tipo, nombre, proveedor, codigo_erp, precio, cultivo, vuelo, fecha, cantidad, pedido)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nullInt(p.TipoID), p.Tipo, p.Nombre, p.Proveedor, nullString(p.CodigoERP),
		p.Precio, p.Cultivo, p.Vuelo, nullString(p.Fecha), p.Cantidad, p.Pedido,
	)
	if err != nil {
		return fmt.Errorf("failed to insert product: %w", err)
	}
	p.ID = id
	return nil
}

func (r *txRepo) SetProductStock(ctx context.Context, id int64, cantidad int) error {
	if _, err := r.tx.ExecContext(ctx, "UPDATE productos SET cantidad = ? WHERE id = ?", cantidad, id); err != nil {
		return fmt.Errorf("failed to set product stock: %w", err)
	}
	return nil
}
