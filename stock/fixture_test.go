package stock_test

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/chipiona/stock-engine/stock"
	"github.com/chipiona/stock-engine/store/sqldb"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type fixture struct {
	t       *testing.T
	ctx     context.Context
	store   *sqldb.Store
	catalog *stock.Catalog
	ledger  *stock.Ledger
	alloc   *stock.Allocator
	views   *stock.Views
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newFixture(t *testing.T) *fixture {
	store, err := sqldb.New(sqldb.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	log := quietLogger()
	return &fixture{
		t:       t,
		ctx:     context.Background(),
		store:   store,
		catalog: stock.NewCatalog(store, log),
		ledger:  stock.NewLedger(store, log),
		alloc:   stock.NewAllocator(store, log),
		views:   stock.NewViews(store, 7, log),
	}
}

func (f *fixture) named(kind stock.EntityKind, nombre string) int64 {
	f.t.Helper()
	ref, err := f.catalog.CreateNamed(f.ctx, kind, nombre)
	require.NoError(f.t, err)
	return ref.ID
}

func (f *fixture) product(tipoID, proveedorID int64, nombre string) int64 {
	f.t.Helper()
	p, err := f.catalog.CreateProduct(f.ctx, stock.NewProduct{TipoID: tipoID, Nombre: nombre, ProveedorID: proveedorID})
	require.NoError(f.t, err)
	return p.ID
}

func (f *fixture) purchase(productID, proveedorID int64, cantidad int, semana string) stock.Lot {
	f.t.Helper()
	lot, err := f.ledger.RegisterPurchase(f.ctx, stock.Purchase{
		Producto:    stock.ProductRef{ID: productID},
		ProveedorID: proveedorID,
		Cantidad:    cantidad,
		Semana:      stock.MustParseWeek(semana),
	})
	require.NoError(f.t, err)
	return *lot
}

func (f *fixture) lot(id int64) stock.Lot {
	f.t.Helper()
	lot, err := f.ledger.GetLot(f.ctx, id)
	require.NoError(f.t, err)
	return *lot
}

// basic is one product from one supplier, plus two delegations.
type basic struct {
	*fixture
	productID  int64
	supplierID int64
	madrid     int64
	sevilla    int64
}

func newBasic(t *testing.T) *basic {
	f := newFixture(t)
	tipo := f.named(stock.KindProductType, "Rosa")
	supplier := f.named(stock.KindSupplier, "Florinsa")
	return &basic{
		fixture:    f,
		productID:  f.product(tipo, supplier, "Freedom"),
		supplierID: supplier,
		madrid:     f.named(stock.KindDelegation, "Madrid"),
		sevilla:    f.named(stock.KindDelegation, "Sevilla"),
	}
}

func (b *basic) request(delegationID int64, cantidad int) stock.AllocationRequest {
	return stock.AllocationRequest{
		ProductID:    b.productID,
		SupplierID:   b.supplierID,
		DelegationID: delegationID,
		Cantidad:     cantidad,
		Semana:       stock.MustParseWeek("2025-W10"),
	}
}
