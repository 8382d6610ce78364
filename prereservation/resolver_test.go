package prereservation_test

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chipiona/stock-engine/prereservation"
	"github.com/chipiona/stock-engine/stock"
	"github.com/chipiona/stock-engine/store/sqldb"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type env struct {
	t        *testing.T
	ctx      context.Context
	resolver *prereservation.Resolver
	alloc    *stock.Allocator
	catalog  *stock.Catalog
	ledger   *stock.Ledger
	views    *stock.Views

	madrid    int64
	provA     int64
	provB     int64
	freedomA  int64
	freedomB  int64
	explorerB int64
}

func newEnv(t *testing.T) *env {
	store, err := sqldb.New(sqldb.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	log := logrus.New()
	log.SetOutput(io.Discard)

	alloc := stock.NewAllocator(store, log)
	e := &env{
		t:        t,
		ctx:      context.Background(),
		resolver: prereservation.NewResolver(store, alloc, log),
		alloc:    alloc,
		catalog:  stock.NewCatalog(store, log),
		ledger:   stock.NewLedger(store, log),
		views:    stock.NewViews(store, 7, log),
	}

	rosa := e.named(stock.KindProductType, "Rosa")
	e.madrid = e.named(stock.KindDelegation, "Madrid")
	e.provA = e.named(stock.KindSupplier, "Florinsa")
	e.provB = e.named(stock.KindSupplier, "Rosaprima")
	e.freedomA = e.product(rosa, e.provA, "Freedom")
	e.freedomB = e.product(rosa, e.provB, "Freedom")
	e.explorerB = e.product(rosa, e.provB, "Explorer")
	return e
}

func (e *env) named(kind stock.EntityKind, nombre string) int64 {
	ref, err := e.catalog.CreateNamed(e.ctx, kind, nombre)
	require.NoError(e.t, err)
	return ref.ID
}

func (e *env) product(tipo, prov int64, nombre string) int64 {
	p, err := e.catalog.CreateProduct(e.ctx, stock.NewProduct{TipoID: tipo, Nombre: nombre, ProveedorID: prov})
	require.NoError(e.t, err)
	return p.ID
}

func (e *env) purchase(productID, prov int64, cantidad int, semana string) {
	_, err := e.ledger.RegisterPurchase(e.ctx, stock.Purchase{
		Producto:    stock.ProductRef{ID: productID},
		ProveedorID: prov,
		Cantidad:    cantidad,
		Semana:      stock.MustParseWeek(semana),
	})
	require.NoError(e.t, err)
}

func (e *env) available(productID, prov int64) int {
	total, err := e.ledger.TotalAvailable(e.ctx, productID, prov)
	require.NoError(e.t, err)
	return total
}

func (e *env) pending(cantidad int) *stock.PreReservation {
	pre, err := e.resolver.Create(e.ctx, prereservation.CreateRequest{
		DelegacionID: e.madrid,
		Producto:     stock.ProductRef{Nombre: "Freedom"},
		Cantidad:     cantidad,
		Semana:       stock.MustParseWeek("2025-W10"),
	})
	require.NoError(e.t, err)
	return pre
}

// =============================================================================
// CREATE
// =============================================================================

func TestCreate_ResolvesDescriptor(t *testing.T) {
	e := newEnv(t)

	pre := e.pending(20)
	assert.Equal(t, stock.PreReservationPending, pre.Estado)
	assert.Equal(t, "Rosa", pre.Tipo)
	assert.Equal(t, "Freedom", pre.ProductoDeseado)
	assert.Equal(t, "Madrid", pre.Delegacion.Name)

	byID, err := e.resolver.Create(e.ctx, prereservation.CreateRequest{
		DelegacionID: e.madrid,
		Producto:     stock.ProductRef{ID: e.explorerB},
		Cantidad:     3,
		Semana:       stock.MustParseWeek("2025-W11"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Explorer", byID.ProductoDeseado)

	_, err = e.resolver.Create(e.ctx, prereservation.CreateRequest{
		DelegacionID: e.madrid,
		Producto:     stock.ProductRef{Nombre: "Vendela"},
		Cantidad:     3,
		Semana:       stock.MustParseWeek("2025-W11"),
	})
	assert.True(t, stock.IsNotFound(err))

	_, err = e.resolver.Create(e.ctx, prereservation.CreateRequest{DelegacionID: e.madrid})
	var ve *stock.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "cantidad")
	assert.Contains(t, ve.Fields, "semana")
	assert.Contains(t, ve.Fields, "producto")
}

// =============================================================================
// CONVERT
// =============================================================================

func TestConvert_SplitMustMatchExactly(t *testing.T) {
	// GIVEN: A pending pre-reservation of 20
	e := newEnv(t)
	e.purchase(e.freedomA, e.provA, 12, "2025-W10")
	e.purchase(e.freedomB, e.provB, 10, "2025-W10")
	pre := e.pending(20)

	// WHEN: The split sums to 19
	_, err := e.resolver.Convert(e.ctx, pre.ID, prereservation.Split{e.provA: 12, e.provB: 7})

	// THEN: SplitMismatch and nothing consumed
	var sm *stock.SplitMismatchError
	require.ErrorAs(t, err, &sm)
	assert.Equal(t, 20, sm.Expected)
	assert.Equal(t, 19, sm.Got)
	assert.Equal(t, 12, e.available(e.freedomA, e.provA))
	assert.Equal(t, 10, e.available(e.freedomB, e.provB))

	got, err := e.resolver.Get(e.ctx, pre.ID)
	require.NoError(t, err)
	assert.Equal(t, stock.PreReservationPending, got.Estado)
}

func TestConvert_TwoSuppliers(t *testing.T) {
	// GIVEN: A has 12, B has 6 + 4 over two weeks
	e := newEnv(t)
	e.purchase(e.freedomA, e.provA, 12, "2025-W10")
	e.purchase(e.freedomB, e.provB, 4, "2025-W11")
	e.purchase(e.freedomB, e.provB, 6, "2025-W10")
	pre := e.pending(20)

	// WHEN: Split 12 + 8
	out, err := e.resolver.Convert(e.ctx, pre.ID, prereservation.Split{e.provB: 8, e.provA: 12})
	require.NoError(t, err)

	// THEN: Converted, one allocation and one mirrored reservation per supplier
	assert.Equal(t, stock.PreReservationConverted, out.PreReservation.Estado)
	require.Len(t, out.Allocations, 2)
	require.Len(t, out.Reservations, 2)

	// Suppliers in ascending id order
	assert.Equal(t, e.provA, out.Allocations[0].Allocation.Proveedor.ID)
	assert.Equal(t, 12, out.Allocations[0].Allocation.Cantidad)
	assert.Equal(t, e.provB, out.Allocations[1].Allocation.Proveedor.ID)
	assert.Equal(t, 8, out.Allocations[1].Allocation.Cantidad)
	for _, a := range out.Allocations {
		assert.Equal(t, pre.ID, a.Allocation.PreReservaID)
		assert.Equal(t, "Madrid", a.Allocation.Delegacion.Name)
	}

	// B drained its older week first
	require.Len(t, out.Allocations[1].Entries, 2)
	assert.Equal(t, 6, out.Allocations[1].Entries[0].Cantidad)
	assert.Equal(t, 2, out.Allocations[1].Entries[1].Cantidad)

	assert.Equal(t, 0, e.available(e.freedomA, e.provA))
	assert.Equal(t, 2, e.available(e.freedomB, e.provB))

	// Mirrored reservations carry the delegation, Monday date and week
	res := out.Reservations[1]
	assert.Equal(t, e.freedomB, res.Producto.ID)
	assert.Equal(t, "Madrid", res.Comercial.Name)
	assert.Equal(t, "2025-03-03", res.Fecha)
	require.NotNil(t, res.Semana)
	assert.Equal(t, "2025-W10", res.Semana.String())

	pA, err := e.catalog.GetProduct(e.ctx, e.freedomA)
	require.NoError(t, err)
	assert.Equal(t, 12, pA.Pedido)
	pB, err := e.catalog.GetProduct(e.ctx, e.freedomB)
	require.NoError(t, err)
	assert.Equal(t, 8, pB.Pedido)

	// AND: A second conversion is refused
	_, err = e.resolver.Convert(e.ctx, pre.ID, prereservation.Split{e.provA: 20})
	var se *stock.StateError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, string(stock.PreReservationConverted), se.State)
}

func TestConvert_OneSupplierShortRollsBackAll(t *testing.T) {
	// GIVEN: A has 12, B only 5
	e := newEnv(t)
	e.purchase(e.freedomA, e.provA, 12, "2025-W10")
	e.purchase(e.freedomB, e.provB, 5, "2025-W10")
	pre := e.pending(20)

	// WHEN: Split 12 + 8
	_, err := e.resolver.Convert(e.ctx, pre.ID, prereservation.Split{e.provA: 12, e.provB: 8})

	// THEN: B's shortfall is reported and A's allocation is rolled back
	var ins *stock.InsufficientStockError
	require.ErrorAs(t, err, &ins)
	assert.Equal(t, e.provB, ins.SupplierID)
	assert.Equal(t, 5, ins.Available)
	assert.Equal(t, "Rosaprima", ins.Supplier)

	assert.Equal(t, 12, e.available(e.freedomA, e.provA))
	assert.Equal(t, 5, e.available(e.freedomB, e.provB))
	reparto, err := e.views.RepartoMatrix(e.ctx)
	require.NoError(t, err)
	assert.Empty(t, reparto)

	got, err := e.resolver.Get(e.ctx, pre.ID)
	require.NoError(t, err)
	assert.Equal(t, stock.PreReservationPending, got.Estado)
}

func TestConvert_SupplierWithoutProduct(t *testing.T) {
	e := newEnv(t)
	other := e.named(stock.KindSupplier, "Ecoflor")
	e.purchase(e.freedomA, e.provA, 12, "2025-W10")
	pre := e.pending(12)

	_, err := e.resolver.Convert(e.ctx, pre.ID, prereservation.Split{other: 12})
	assert.True(t, stock.IsNotFound(err))

	_, err = e.resolver.Convert(e.ctx, pre.ID, prereservation.Split{9999: 12})
	assert.True(t, stock.IsNotFound(err))

	assert.Equal(t, 12, e.available(e.freedomA, e.provA))
}

func TestConvert_InvalidSplit(t *testing.T) {
	e := newEnv(t)
	pre := e.pending(5)

	_, err := e.resolver.Convert(e.ctx, pre.ID, prereservation.Split{})
	assert.ErrorIs(t, err, stock.ErrInvalidInput)

	_, err = e.resolver.Convert(e.ctx, pre.ID, prereservation.Split{e.provA: 5, e.provB: 0})
	assert.ErrorIs(t, err, stock.ErrInvalidInput)

	_, err = e.resolver.Convert(e.ctx, pre.ID, prereservation.Split{-1: 5})
	assert.ErrorIs(t, err, stock.ErrInvalidInput)

	_, err = e.resolver.Convert(e.ctx, 999, prereservation.Split{e.provA: 5})
	assert.True(t, stock.IsNotFound(err))
}

func TestSplit_Helpers(t *testing.T) {
	s := prereservation.Split{9: 1, 3: 2, 5: 4}
	assert.Equal(t, 7, s.Total())
	assert.Equal(t, []int64{3, 5, 9}, s.SupplierIDs())
}

// =============================================================================
// CANCEL / READS
// =============================================================================

func TestCancel_Terminal(t *testing.T) {
	e := newEnv(t)
	e.purchase(e.freedomA, e.provA, 12, "2025-W10")
	pre := e.pending(4)

	cancelled, err := e.resolver.Cancel(e.ctx, pre.ID)
	require.NoError(t, err)
	assert.Equal(t, stock.PreReservationCanceled, cancelled.Estado)
	assert.True(t, cancelled.Estado.IsTerminal())

	_, err = e.resolver.Cancel(e.ctx, pre.ID)
	var se *stock.StateError
	require.ErrorAs(t, err, &se)

	_, err = e.resolver.Convert(e.ctx, pre.ID, prereservation.Split{e.provA: 4})
	assert.ErrorIs(t, err, stock.ErrState)
	assert.Equal(t, 12, e.available(e.freedomA, e.provA))

	_, err = e.resolver.Cancel(e.ctx, 999)
	assert.True(t, stock.IsNotFound(err))
}

func TestCancel_Converted(t *testing.T) {
	// GIVEN: A converted pre-reservation
	e := newEnv(t)
	e.purchase(e.freedomA, e.provA, 10, "2025-W10")
	pre := e.pending(10)
	_, err := e.resolver.Convert(e.ctx, pre.ID, prereservation.Split{e.provA: 10})
	require.NoError(t, err)

	// WHEN: Cancelled, THEN: refused and still converted
	_, err = e.resolver.Cancel(e.ctx, pre.ID)
	var se *stock.StateError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, string(stock.PreReservationConverted), se.State)

	got, err := e.resolver.Get(e.ctx, pre.ID)
	require.NoError(t, err)
	assert.Equal(t, stock.PreReservationConverted, got.Estado)
}

func TestConvertedAllocation_CannotBeReversed(t *testing.T) {
	// GIVEN: 10 units fully allocated by a conversion
	e := newEnv(t)
	e.purchase(e.freedomA, e.provA, 10, "2025-W10")
	pre := e.pending(10)
	out, err := e.resolver.Convert(e.ctx, pre.ID, prereservation.Split{e.provA: 10})
	require.NoError(t, err)
	require.Len(t, out.Allocations, 1)

	// WHEN: The allocation is reversed directly
	_, err = e.alloc.Deallocate(e.ctx, out.Allocations[0].Allocation.ID)

	// THEN: Refused, so stock and committed demand never overlap
	var se *stock.StateError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 0, e.available(e.freedomA, e.provA))

	detail, err := e.alloc.Get(e.ctx, out.Allocations[0].Allocation.ID)
	require.NoError(t, err)
	assert.Equal(t, stock.AllocationActive, detail.Allocation.Estado)

	p, err := e.catalog.GetProduct(e.ctx, e.freedomA)
	require.NoError(t, err)
	assert.Equal(t, 10, p.Pedido)

	got, err := e.resolver.Get(e.ctx, pre.ID)
	require.NoError(t, err)
	assert.Equal(t, stock.PreReservationConverted, got.Estado)
}

func TestList_FilterByState(t *testing.T) {
	e := newEnv(t)
	keep := e.pending(4)
	drop := e.pending(6)
	_, err := e.resolver.Cancel(e.ctx, drop.ID)
	require.NoError(t, err)

	pending, err := e.resolver.List(e.ctx, stock.PreReservationPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, keep.ID, pending[0].ID)

	all, err := e.resolver.List(e.ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = e.resolver.List(e.ctx, "borrada")
	assert.ErrorIs(t, err, stock.ErrInvalidInput)
}

func TestSupplierOptions(t *testing.T) {
	e := newEnv(t)
	e.purchase(e.freedomA, e.provA, 12, "2025-W10")
	e.purchase(e.freedomB, e.provB, 3, "2025-W10")
	pre := e.pending(15)

	options, err := e.resolver.SupplierOptions(e.ctx, pre.ID)
	require.NoError(t, err)
	require.Len(t, options, 2)
	assert.Equal(t, "Florinsa", options[0].Proveedor.Name)
	assert.Equal(t, 12, options[0].Disponible)
	assert.Equal(t, "Rosaprima", options[1].Proveedor.Name)
	assert.Equal(t, 3, options[1].Disponible)
}
