package stock

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// =============================================================================
// CATALOG - Suppliers, delegations, commercials, product types, products
// =============================================================================

// Catalog manages the reference data the ledger points at.
type Catalog struct {
	store Store
	log   logrus.FieldLogger
}

func NewCatalog(store Store, log logrus.FieldLogger) *Catalog {
	return &Catalog{store: store, log: log.WithField("module", "catalog")}
}

// NewProduct is the input of CreateProduct.
type NewProduct struct {
	TipoID      int64
	Nombre      string
	ProveedorID int64
	CodigoERP   string
	Precio      decimal.NullDecimal
	Cultivo     string
	Vuelo       string
	Fecha       string
}

// CreateNamed registers a supplier, delegation, commercial or product type.
func (c *Catalog) CreateNamed(ctx context.Context, kind EntityKind, nombre string) (NameRef, error) {
	nombre = strings.TrimSpace(nombre)
	if nombre == "" {
		return NameRef{}, Invalid("nombre", "required")
	}
	var ref NameRef
	err := c.store.WithTx(ctx, func(tx Tx) error {
		id, err := tx.InsertNamed(ctx, kind, nombre)
		if err != nil {
			return err
		}
		ref = NameRef{ID: id, Name: nombre}
		return tx.AppendAudit(ctx, AuditEntry{
			Action: AuditCatalogChanged, Entity: string(kind), EntityID: id,
			Payload: map[string]any{"nombre": nombre},
		})
	})
	return ref, err
}

// CreateProduct registers a product under its canonical supplier. Stock and
// ordered totals start at zero.
func (c *Catalog) CreateProduct(ctx context.Context, in NewProduct) (*Product, error) {
	in.Nombre = strings.TrimSpace(in.Nombre)
	in.CodigoERP = strings.TrimSpace(in.CodigoERP)
	fields := map[string]string{}
	if in.TipoID <= 0 {
		fields["tipo_id"] = "required"
	}
	if in.Nombre == "" {
		fields["nombre"] = "required"
	}
	if in.ProveedorID <= 0 {
		fields["proveedor_id"] = "required"
	}
	if utf8.RuneCountInString(in.CodigoERP) > 64 {
		fields["codigo_erp"] = "longer than 64 characters"
	}
	if in.Precio.Valid && in.Precio.Decimal.IsNegative() {
		fields["precio"] = "must not be negative"
	}
	if in.Fecha != "" {
		if _, err := ParseDate(in.Fecha); err != nil {
			fields["fecha"] = "must be YYYY-MM-DD"
		}
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}

	var product *Product
	err := c.store.WithTx(ctx, func(tx Tx) error {
		tipo, err := RequireNamed(ctx, tx, KindProductType, in.TipoID)
		if err != nil {
			return err
		}
		prov, err := RequireNamed(ctx, tx, KindSupplier, in.ProveedorID)
		if err != nil {
			return err
		}
		product = &Product{
			TipoID:    tipo.ID,
			Tipo:      tipo.Name,
			Nombre:    in.Nombre,
			Proveedor: prov.Name,
			CodigoERP: in.CodigoERP,
			Precio:    in.Precio,
			Cultivo:   strings.TrimSpace(in.Cultivo),
			Vuelo:     strings.TrimSpace(in.Vuelo),
			Fecha:     in.Fecha,
		}
		if err := tx.InsertProduct(ctx, product); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, AuditEntry{
			Action: AuditCatalogChanged, Entity: "producto", EntityID: product.ID,
			Payload: map[string]any{"nombre": product.Nombre, "proveedor": product.Proveedor},
		})
	})
	if err != nil {
		return nil, err
	}
	return product, nil
}

// SetProductStock sets the nominal stock figure reservations are checked
// against.
func (c *Catalog) SetProductStock(ctx context.Context, productID int64, cantidad int) error {
	if cantidad < 0 {
		return Invalid("cantidad", "must not be negative")
	}
	if cantidad > MaxQuantity {
		return Invalid("cantidad", fmt.Sprintf("must be <= %d", MaxQuantity))
	}
	return c.store.WithTx(ctx, func(tx Tx) error {
		if _, err := RequireProduct(ctx, tx, productID, true); err != nil {
			return err
		}
		if err := tx.SetProductStock(ctx, productID, cantidad); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, AuditEntry{
			Action: AuditCatalogChanged, Entity: "producto", EntityID: productID,
			Payload: map[string]any{"cantidad": cantidad},
		})
	})
}

func (c *Catalog) GetProduct(ctx context.Context, id int64) (*Product, error) {
	var p *Product
	err := c.store.Read(ctx, func(tx Tx) error {
		var err error
		p, err = RequireProduct(ctx, tx, id, false)
		return err
	})
	return p, err
}

func (c *Catalog) ListProducts(ctx context.Context) ([]Product, error) {
	var out []Product
	err := c.store.Read(ctx, func(tx Tx) error {
		var err error
		out, err = tx.ListProducts(ctx)
		return err
	})
	return out, err
}

func (c *Catalog) ListNamed(ctx context.Context, kind EntityKind) ([]NameRef, error) {
	var out []NameRef
	err := c.store.Read(ctx, func(tx Tx) error {
		var err error
		out, err = tx.ListNamed(ctx, kind)
		return err
	})
	return out, err
}

// =============================================================================
// RESOLUTION HELPERS - Shared by every service
// =============================================================================

// RequireNamed loads a catalog entity or returns a NotFoundError.
func RequireNamed(ctx context.Context, tx CatalogRepo, kind EntityKind, id int64) (*NameRef, error) {
	if id <= 0 {
		return nil, NotFoundID(string(kind), id)
	}
	ref, err := tx.GetNamed(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if ref == nil {
		return nil, NotFoundID(string(kind), id)
	}
	return ref, nil
}

// RequireProduct loads a product or returns a NotFoundError.
func RequireProduct(ctx context.Context, tx CatalogRepo, id int64, lock bool) (*Product, error) {
	if id <= 0 {
		return nil, NotFoundID("producto", id)
	}
	p, err := tx.GetProduct(ctx, id, lock)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, NotFoundID("producto", id)
	}
	return p, nil
}

// ResolveSupplierProduct finds the product named nombre whose canonical
// supplier is supplierName. Supplier names compare case-insensitively.
func ResolveSupplierProduct(ctx context.Context, tx CatalogRepo, nombre, supplierName string) (*Product, error) {
	candidates, err := tx.FindProductsByName(ctx, strings.TrimSpace(nombre))
	if err != nil {
		return nil, err
	}
	for i := range candidates {
		if SameName(candidates[i].Proveedor, supplierName) {
			return &candidates[i], nil
		}
	}
	return nil, &NotFoundError{Entity: "producto", Key: nombre + " / " + supplierName}
}
