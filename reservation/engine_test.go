package reservation_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chipiona/stock-engine/offer"
	"github.com/chipiona/stock-engine/reservation"
	"github.com/chipiona/stock-engine/stock"
	"github.com/chipiona/stock-engine/store/sqldb"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// fakeMirror keeps offers in memory and can be told to fail.
type fakeMirror struct {
	mu     sync.Mutex
	nextID int64
	offers map[int64]stock.Offer
	fail   error
}

func newFakeMirror() *fakeMirror { return &fakeMirror{offers: map[int64]stock.Offer{}} }

func (m *fakeMirror) Upsert(_ context.Context, o stock.Offer) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return 0, m.fail
	}
	if o.ID == 0 {
		m.nextID++
		o.ID = m.nextID
	} else if _, ok := m.offers[o.ID]; !ok {
		return 0, stock.NotFoundID("oferta", o.ID)
	}
	m.offers[o.ID] = o
	return o.ID, nil
}

func (m *fakeMirror) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	delete(m.offers, id)
	return nil
}

type env struct {
	ctx     context.Context
	store   *sqldb.Store
	engine  *reservation.Engine
	catalog *stock.Catalog
	product int64
	lucia   int64
	pablo   int64
	mirror  *fakeMirror
}

func newEnv(t *testing.T, mirror stock.OfferMirror) *env {
	t.Helper()
	store, err := sqldb.New(sqldb.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	log := logrus.New()
	log.SetOutput(io.Discard)

	ctx := context.Background()
	catalog := stock.NewCatalog(store, log)
	tipo, err := catalog.CreateNamed(ctx, stock.KindProductType, "Clavel")
	require.NoError(t, err)
	prov, err := catalog.CreateNamed(ctx, stock.KindSupplier, "Flores del Sur")
	require.NoError(t, err)
	lucia, err := catalog.CreateNamed(ctx, stock.KindCommercial, "Lucía")
	require.NoError(t, err)
	pablo, err := catalog.CreateNamed(ctx, stock.KindCommercial, "Pablo")
	require.NoError(t, err)
	p, err := catalog.CreateProduct(ctx, stock.NewProduct{
		TipoID: tipo.ID, Nombre: "Moonlight", ProveedorID: prov.ID, Cultivo: "Colombia", Vuelo: "KL",
	})
	require.NoError(t, err)
	require.NoError(t, catalog.SetProductStock(ctx, p.ID, 10))

	e := &env{
		ctx:     ctx,
		store:   store,
		engine:  reservation.NewEngine(store, mirror, log),
		catalog: catalog,
		product: p.ID,
		lucia:   lucia.ID,
		pablo:   pablo.ID,
	}
	if fm, ok := mirror.(*fakeMirror); ok {
		e.mirror = fm
	}
	return e
}

func (e *env) create(t *testing.T, comercial int64, cantidad int) *reservation.Result {
	t.Helper()
	res, err := e.engine.Create(e.ctx, reservation.CreateRequest{
		ComercialID: comercial,
		ProductoID:  e.product,
		Cantidad:    cantidad,
		Fecha:       "2025-03-10",
	})
	require.NoError(t, err)
	return res
}

func (e *env) pedido(t *testing.T) int {
	t.Helper()
	p, err := e.catalog.GetProduct(e.ctx, e.product)
	require.NoError(t, err)
	return p.Pedido
}

// =============================================================================
// CREATE
// =============================================================================

func TestCreate_RecomputesPedidoAndMirrorsOffer(t *testing.T) {
	e := newEnv(t, newFakeMirror())

	first := e.create(t, e.lucia, 5)
	e.create(t, e.pablo, 2)

	assert.Equal(t, 7, e.pedido(t))
	assert.Equal(t, "Lucía", first.Reservation.Comercial.Name)
	assert.Equal(t, "Moonlight", first.Reservation.Producto.Name)
	assert.Nil(t, first.Reservation.Semana)

	// The offer was created and linked
	assert.True(t, first.Offer.Attempted)
	assert.True(t, first.Offer.OK)
	require.NotZero(t, first.Offer.OfferID)
	o := e.mirror.offers[first.Offer.OfferID]
	assert.Equal(t, "Clavel", o.Articulo)
	assert.Equal(t, "Moonlight", o.Variedad)
	assert.Equal(t, "2025-03-10", o.FechaExpedicion)
	assert.Equal(t, "Lucía", o.Cliente)
	assert.Equal(t, 5, o.Cajas)

	got, err := e.engine.Get(e.ctx, first.Reservation.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Offer.OfferID, got.OfertaID)
}

func TestCreate_Validation(t *testing.T) {
	e := newEnv(t, offer.Nop{})

	_, err := e.engine.Create(e.ctx, reservation.CreateRequest{ComercialID: e.lucia, ProductoID: e.product, Cantidad: 1})
	var ve *stock.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "fecha")

	_, err = e.engine.Create(e.ctx, reservation.CreateRequest{
		ComercialID: e.lucia, ProductoID: e.product, Cantidad: 1, Fecha: "10/03/2025",
	})
	assert.ErrorIs(t, err, stock.ErrInvalidInput)

	_, err = e.engine.Create(e.ctx, reservation.CreateRequest{
		ComercialID: 999, ProductoID: e.product, Cantidad: 1, Fecha: "2025-03-10",
	})
	assert.True(t, stock.IsNotFound(err))
	assert.Equal(t, 0, e.pedido(t))
}

func TestCreate_MirrorDisabled(t *testing.T) {
	// GIVEN: No offers database configured
	e := newEnv(t, offer.Nop{})

	// WHEN: Creating a reservation
	res := e.create(t, e.lucia, 3)

	// THEN: The reservation commits and the mirror reports not attempted
	assert.NotZero(t, res.Reservation.ID)
	assert.False(t, res.Offer.Attempted)
	assert.False(t, res.Offer.OK)
	assert.Equal(t, 3, e.pedido(t))
}

func TestCreate_MirrorFailureKeepsReservation(t *testing.T) {
	// GIVEN: An offers datastore that is down
	fm := newFakeMirror()
	fm.fail = errors.New("connection refused")
	e := newEnv(t, fm)

	// WHEN: Creating a reservation
	res := e.create(t, e.lucia, 4)

	// THEN: The core write stands and the failure is reported
	assert.True(t, res.Offer.Attempted)
	assert.False(t, res.Offer.OK)
	assert.Contains(t, res.Offer.Message, "connection refused")

	got, err := e.engine.Get(e.ctx, res.Reservation.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, got.Cantidad)
	assert.Zero(t, got.OfertaID)
	assert.Equal(t, 4, e.pedido(t))
}

// =============================================================================
// EDIT / QUOTA
// =============================================================================

func TestEdit_QuotaBoundary(t *testing.T) {
	// GIVEN: Stock 10, other reservations total 5, this one is 2
	e := newEnv(t, newFakeMirror())
	e.create(t, e.lucia, 5)
	mine := e.create(t, e.pablo, 2)

	q, err := e.engine.MaxEditable(e.ctx, mine.Reservation.ID)
	require.NoError(t, err)
	assert.Equal(t, reservation.Quota{Max: 5, StockTotal: 10, SumOthers: 5, Current: 2}, *q)

	// WHEN: Raising to 4, THEN: accepted
	res, err := e.engine.Edit(e.ctx, reservation.EditRequest{
		ID: mine.Reservation.ID, Comercial: stock.CommercialRef{ID: e.pablo}, Cantidad: 4,
	})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Reservation.Cantidad)
	assert.Equal(t, 9, e.pedido(t))

	// WHEN: Raising to 6, THEN: rejected with the maximum
	_, err = e.engine.Edit(e.ctx, reservation.EditRequest{
		ID: mine.Reservation.ID, Comercial: stock.CommercialRef{ID: e.pablo}, Cantidad: 6,
	})
	var qe *stock.QuotaExceededError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, 5, qe.Max)
	assert.Equal(t, 6, qe.Requested)

	// AND: Nothing changed
	got, err := e.engine.Get(e.ctx, mine.Reservation.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, got.Cantidad)
	assert.Equal(t, 9, e.pedido(t))
}

func TestEdit_ExactlyMaxAccepted(t *testing.T) {
	e := newEnv(t, offer.Nop{})
	e.create(t, e.lucia, 5)
	mine := e.create(t, e.pablo, 2)

	_, err := e.engine.Edit(e.ctx, reservation.EditRequest{
		ID: mine.Reservation.ID, Comercial: stock.CommercialRef{ID: e.pablo}, Cantidad: 5,
	})
	require.NoError(t, err)
	assert.Equal(t, 10, e.pedido(t))
}

func TestEdit_CommercialByNameAndOfferSync(t *testing.T) {
	// GIVEN: A mirrored reservation for Pablo
	e := newEnv(t, newFakeMirror())
	created := e.create(t, e.pablo, 3)

	// WHEN: Reassigning to "lucía" by name and lowering to 1
	res, err := e.engine.Edit(e.ctx, reservation.EditRequest{
		ID: created.Reservation.ID, Comercial: stock.CommercialRef{Nombre: "LUCÍA"}, Cantidad: 1,
	})
	require.NoError(t, err)

	// THEN: The commercial resolves case-insensitively and the offer follows
	assert.Equal(t, e.lucia, res.Reservation.Comercial.ID)
	assert.True(t, res.Offer.OK)
	o := e.mirror.offers[created.Offer.OfferID]
	assert.Equal(t, 1, o.Cajas)
	assert.Equal(t, -2, o.Delta)
	assert.Equal(t, "Lucía", o.Cliente)
	assert.Equal(t, 1, e.pedido(t))

	_, err = e.engine.Edit(e.ctx, reservation.EditRequest{
		ID: created.Reservation.ID, Comercial: stock.CommercialRef{Nombre: "Nadie"}, Cantidad: 1,
	})
	assert.True(t, stock.IsNotFound(err))
}

func TestEdit_NotFound(t *testing.T) {
	e := newEnv(t, offer.Nop{})
	_, err := e.engine.Edit(e.ctx, reservation.EditRequest{ID: 77, Comercial: stock.CommercialRef{ID: e.lucia}, Cantidad: 1})
	assert.True(t, stock.IsNotFound(err))

	_, err = e.engine.MaxEditable(e.ctx, 77)
	assert.True(t, stock.IsNotFound(err))
}

// =============================================================================
// DELETE
// =============================================================================

func TestDelete_AdjustsPedidoAndRemovesOffer(t *testing.T) {
	e := newEnv(t, newFakeMirror())
	keep := e.create(t, e.lucia, 5)
	gone := e.create(t, e.pablo, 2)

	res, err := e.engine.Delete(e.ctx, gone.Reservation.ID)
	require.NoError(t, err)
	assert.True(t, res.Offer.OK)
	assert.NotContains(t, e.mirror.offers, gone.Offer.OfferID)
	assert.Contains(t, e.mirror.offers, keep.Offer.OfferID)
	assert.Equal(t, 5, e.pedido(t))

	_, err = e.engine.Get(e.ctx, gone.Reservation.ID)
	assert.True(t, stock.IsNotFound(err))

	_, err = e.engine.Delete(e.ctx, gone.Reservation.ID)
	assert.True(t, stock.IsNotFound(err))
}

func TestDelete_PedidoFloorsAtZero(t *testing.T) {
	// GIVEN: pedido drifted below the reservation total
	e := newEnv(t, offer.Nop{})
	res := e.create(t, e.lucia, 5)
	_, err := e.store.DB().Exec("UPDATE productos SET pedido = 1 WHERE id = ?", e.product)
	require.NoError(t, err)

	// WHEN: Deleting the reservation of 5
	_, err = e.engine.Delete(e.ctx, res.Reservation.ID)
	require.NoError(t, err)

	// THEN: pedido clamps at zero
	assert.Equal(t, 0, e.pedido(t))
}

func TestList_FilterByProduct(t *testing.T) {
	e := newEnv(t, offer.Nop{})
	first := e.create(t, e.lucia, 1)
	second := e.create(t, e.pablo, 2)

	all, err := e.engine.List(e.ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second.Reservation.ID, all[0].ID)
	assert.Equal(t, first.Reservation.ID, all[1].ID)

	none, err := e.engine.List(e.ctx, 999)
	require.NoError(t, err)
	assert.Empty(t, none)
}
