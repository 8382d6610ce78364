package reservation

import (
	"context"

	"github.com/chipiona/stock-engine/stock"
)

// Quota is the headroom of one reservation.
type Quota struct {
	Max        int `json:"max"`
	StockTotal int `json:"stock_total"`
	SumOthers  int `json:"suma_otras"`
	Current    int `json:"cantidad_actual"`
}

// MaxEditable reports how far a reservation could be raised right now. It
// never writes.
func (e *Engine) MaxEditable(ctx context.Context, id int64) (*Quota, error) {
	var q *Quota
	err := e.store.Read(ctx, func(tx stock.Tx) error {
		res, err := tx.GetReservation(ctx, id, false)
		if err != nil {
			return err
		}
		if res == nil {
			return stock.NotFoundID("reserva", id)
		}
		q, err = computeQuota(ctx, tx, res, false)
		return err
	})
	return q, err
}

// computeQuota is shared by Edit (lock=true) and MaxEditable.
func computeQuota(ctx context.Context, tx stock.Tx, res *stock.Reservation, lock bool) (*Quota, error) {
	product, err := stock.RequireProduct(ctx, tx, res.Producto.ID, lock)
	if err != nil {
		return nil, err
	}
	others, err := tx.SumReservations(ctx, product.ID, res.ID)
	if err != nil {
		return nil, err
	}
	return &Quota{
		Max:        max(0, product.Cantidad-others),
		StockTotal: product.Cantidad,
		SumOthers:  others,
		Current:    res.Cantidad,
	}, nil
}
