/*
Package reservation implements the Reservation Engine.

PURPOSE:
  Manages sales-side demand lines against a product's nominal stock and
  keeps productos.pedido equal to the sum of the product's reservations.

STATE MACHINE:
  {none} --Create--> Active --Edit--> Active --Delete--> {gone}

QUOTA:
  An edit may raise a reservation up to
      max(0, product.cantidad - sum(other reservations of the product))
  The product row is locked before the sum is read, so two concurrent
  edits of sibling reservations cannot both pass the check.

OFFER MIRROR:
  Every write is mirrored into the offers datastore AFTER the core
  transaction commits. Mirror failures are logged and reported in the
  result's OfferSync; they never undo the reservation.

SEE ALSO:
  - quota.go: MaxEditable
  - stock/offer.go: OfferMirror port
*/
package reservation

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/chipiona/stock-engine/stock"
)

// Engine is the reservation service.
type Engine struct {
	store  stock.Store
	mirror stock.OfferMirror
	log    logrus.FieldLogger
}

func NewEngine(store stock.Store, mirror stock.OfferMirror, log logrus.FieldLogger) *Engine {
	return &Engine{store: store, mirror: mirror, log: log.WithField("module", "reservation")}
}

// Result is a committed reservation plus what happened to its offer.
type Result struct {
	Reservation stock.Reservation
	Offer       stock.OfferSync
}

// =============================================================================
// CREATE
// =============================================================================

type CreateRequest struct {
	ComercialID int64
	ProductoID  int64
	Cantidad    int
	// Fecha is the requested dispatch date, YYYY-MM-DD.
	Fecha string
}

func (r CreateRequest) validate() error {
	fields := map[string]string{}
	if r.ComercialID <= 0 {
		fields["comercial_id"] = "required"
	}
	if r.ProductoID <= 0 {
		fields["producto_id"] = "required"
	}
	stock.CheckQuantity(fields, "cantidad", r.Cantidad)
	if strings.TrimSpace(r.Fecha) == "" {
		fields["fecha"] = "required (YYYY-MM-DD)"
	} else if _, err := stock.ParseDate(r.Fecha); err != nil {
		fields["fecha"] = "must be YYYY-MM-DD"
	}
	if len(fields) > 0 {
		return &stock.ValidationError{Fields: fields}
	}
	return nil
}

func (e *Engine) Create(ctx context.Context, req CreateRequest) (*Result, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	var (
		res     stock.Reservation
		product *stock.Product
	)
	err := e.store.WithTx(ctx, func(tx stock.Tx) error {
		commercial, err := stock.RequireNamed(ctx, tx, stock.KindCommercial, req.ComercialID)
		if err != nil {
			return err
		}
		product, err = stock.RequireProduct(ctx, tx, req.ProductoID, true)
		if err != nil {
			return err
		}

		res = stock.Reservation{
			Comercial: *commercial,
			Producto:  stock.NameRef{ID: product.ID, Name: product.Nombre},
			Cantidad:  req.Cantidad,
			Fecha:     strings.TrimSpace(req.Fecha),
		}
		if err := tx.InsertReservation(ctx, &res); err != nil {
			return err
		}
		if err := tx.RecomputePedido(ctx, product.ID); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, stock.AuditEntry{
			Action: stock.AuditReservationCreated, Entity: "reserva", EntityID: res.ID,
			Payload: map[string]any{
				"comercial_id": res.Comercial.ID,
				"producto_id":  res.Producto.ID,
				"cantidad":     res.Cantidad,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	e.log.WithFields(logrus.Fields{
		"reserva_id":  res.ID,
		"producto_id": res.Producto.ID,
		"cantidad":    res.Cantidad,
	}).Info("reservation created")

	sync := e.mirrorCreate(ctx, &res, product)
	return &Result{Reservation: res, Offer: sync}, nil
}

// =============================================================================
// EDIT
// =============================================================================

type EditRequest struct {
	ID        int64
	Comercial stock.CommercialRef
	Cantidad  int
}

func (r EditRequest) validate() error {
	fields := map[string]string{}
	if r.ID <= 0 {
		fields["id"] = "required"
	}
	stock.CheckQuantity(fields, "cantidad", r.Cantidad)
	if r.Comercial.ID <= 0 && strings.TrimSpace(r.Comercial.Nombre) == "" {
		fields["comercial"] = "id or nombre required"
	}
	if len(fields) > 0 {
		return &stock.ValidationError{Fields: fields}
	}
	return nil
}

func (e *Engine) Edit(ctx context.Context, req EditRequest) (*Result, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	var (
		res   stock.Reservation
		delta int
	)
	err := e.store.WithTx(ctx, func(tx stock.Tx) error {
		current, err := tx.GetReservation(ctx, req.ID, true)
		if err != nil {
			return err
		}
		if current == nil {
			return stock.NotFoundID("reserva", req.ID)
		}

		quota, err := computeQuota(ctx, tx, current, true)
		if err != nil {
			return err
		}
		if req.Cantidad > quota.Max {
			return &stock.QuotaExceededError{ReservationID: current.ID, Max: quota.Max, Requested: req.Cantidad}
		}

		commercial, err := resolveCommercial(ctx, tx, req.Comercial)
		if err != nil {
			return err
		}

		res = *current
		res.Comercial = *commercial
		res.Cantidad = req.Cantidad
		if err := tx.UpdateReservation(ctx, &res); err != nil {
			return err
		}

		delta = req.Cantidad - current.Cantidad
		if delta != 0 {
			if err := tx.AdjustPedido(ctx, res.Producto.ID, delta); err != nil {
				return err
			}
		}
		return tx.AppendAudit(ctx, stock.AuditEntry{
			Action: stock.AuditReservationEdited, Entity: "reserva", EntityID: res.ID,
			Payload: map[string]any{
				"comercial_id": res.Comercial.ID,
				"cantidad":     res.Cantidad,
				"delta":        delta,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	e.log.WithFields(logrus.Fields{
		"reserva_id": res.ID,
		"cantidad":   res.Cantidad,
		"delta":      delta,
	}).Info("reservation edited")

	sync := e.mirrorSync(ctx, res, delta)
	return &Result{Reservation: res, Offer: sync}, nil
}

// resolveCommercial prefers the id; otherwise it looks the name up
// case-insensitively.
func resolveCommercial(ctx context.Context, tx stock.CatalogRepo, ref stock.CommercialRef) (*stock.NameRef, error) {
	if ref.ID > 0 {
		return stock.RequireNamed(ctx, tx, stock.KindCommercial, ref.ID)
	}
	nombre := strings.TrimSpace(ref.Nombre)
	found, err := tx.FindNamedByName(ctx, stock.KindCommercial, nombre)
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, &stock.NotFoundError{Entity: string(stock.KindCommercial), Key: nombre}
	}
	return found, nil
}

// =============================================================================
// DELETE
// =============================================================================

func (e *Engine) Delete(ctx context.Context, id int64) (*Result, error) {
	var res stock.Reservation
	err := e.store.WithTx(ctx, func(tx stock.Tx) error {
		current, err := tx.GetReservation(ctx, id, true)
		if err != nil {
			return err
		}
		if current == nil {
			return stock.NotFoundID("reserva", id)
		}
		res = *current

		if err := tx.AdjustPedido(ctx, res.Producto.ID, -res.Cantidad); err != nil {
			return err
		}
		if err := tx.DeleteReservation(ctx, res.ID); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, stock.AuditEntry{
			Action: stock.AuditReservationDeleted, Entity: "reserva", EntityID: res.ID,
			Payload: map[string]any{"producto_id": res.Producto.ID, "cantidad": res.Cantidad},
		})
	})
	if err != nil {
		return nil, err
	}

	e.log.WithFields(logrus.Fields{
		"reserva_id":  res.ID,
		"producto_id": res.Producto.ID,
	}).Info("reservation deleted")

	sync := e.mirrorDelete(ctx, res)
	return &Result{Reservation: res, Offer: sync}, nil
}

// =============================================================================
// READS
// =============================================================================

func (e *Engine) Get(ctx context.Context, id int64) (*stock.Reservation, error) {
	var res *stock.Reservation
	err := e.store.Read(ctx, func(tx stock.Tx) error {
		var err error
		res, err = tx.GetReservation(ctx, id, false)
		if err == nil && res == nil {
			err = stock.NotFoundID("reserva", id)
		}
		return err
	})
	return res, err
}

// List returns reservations newest first. productID 0 lists all.
func (e *Engine) List(ctx context.Context, productID int64) ([]stock.Reservation, error) {
	var out []stock.Reservation
	err := e.store.Read(ctx, func(tx stock.Tx) error {
		var err error
		out, err = tx.ListReservations(ctx, productID)
		return err
	})
	return out, err
}

// =============================================================================
// OFFER MIRROR
// =============================================================================

func (e *Engine) mirrorCreate(ctx context.Context, res *stock.Reservation, product *stock.Product) stock.OfferSync {
	id, err := e.mirror.Upsert(ctx, stock.Offer{
		Articulo:        product.Tipo,
		Variedad:        product.Nombre,
		Cultivo:         product.Cultivo,
		Vuelo:           product.Vuelo,
		Fecha:           product.Fecha,
		FechaExpedicion: res.Fecha,
		Cliente:         res.Comercial.Name,
		Cajas:           res.Cantidad,
	})
	if err != nil {
		return e.mirrorFailed("create", res.ID, 0, err)
	}

	// Linking the offer is a second, separate write: the reservation is
	// already committed whatever happens here.
	if err := e.store.WithTx(ctx, func(tx stock.Tx) error {
		return tx.SetReservationOffer(ctx, res.ID, id)
	}); err != nil {
		e.log.WithFields(logrus.Fields{
			"op": "link", "reserva_id": res.ID, "oferta_id": id,
		}).WithError(err).Error("offer created but not linked to reservation")
		return stock.OfferSync{Attempted: true, OK: false, OfferID: id, Message: "offer created but not linked: " + err.Error()}
	}
	res.OfertaID = id
	return stock.OfferSync{Attempted: true, OK: true, OfferID: id, Message: "offer created"}
}

func (e *Engine) mirrorSync(ctx context.Context, res stock.Reservation, delta int) stock.OfferSync {
	if res.OfertaID == 0 {
		return stock.OfferSync{Message: "no linked offer"}
	}
	_, err := e.mirror.Upsert(ctx, stock.Offer{
		ID:      res.OfertaID,
		Cliente: res.Comercial.Name,
		Cajas:   res.Cantidad,
		Delta:   delta,
	})
	if err != nil {
		return e.mirrorFailed("sync", res.ID, res.OfertaID, err)
	}
	return stock.OfferSync{Attempted: true, OK: true, OfferID: res.OfertaID, Message: "offer synced"}
}

func (e *Engine) mirrorDelete(ctx context.Context, res stock.Reservation) stock.OfferSync {
	if res.OfertaID == 0 {
		return stock.OfferSync{Message: "no linked offer"}
	}
	if err := e.mirror.Delete(ctx, res.OfertaID); err != nil {
		return e.mirrorFailed("delete", res.ID, res.OfertaID, err)
	}
	return stock.OfferSync{Attempted: true, OK: true, OfferID: res.OfertaID, Message: "offer deleted"}
}

func (e *Engine) mirrorFailed(op string, reservaID, ofertaID int64, err error) stock.OfferSync {
	if errors.Is(err, stock.ErrMirrorDisabled) {
		return stock.OfferSync{Attempted: false, OfferID: ofertaID, Message: err.Error()}
	}
	e.log.WithFields(logrus.Fields{
		"op": op, "reserva_id": reservaID, "oferta_id": ofertaID,
	}).WithError(err).Warn("offer mirror failed")
	return stock.OfferSync{Attempted: true, OK: false, OfferID: ofertaID, Message: err.Error()}
}
