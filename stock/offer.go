package stock

import "context"

// =============================================================================
// OFFER MIRROR - Best-effort projection into the external offers datastore
// =============================================================================

// Offer is the sellable projection of a reservation.
//
// On create (ID == 0) every field is written and Disponible starts equal
// to Cajas. On update only Cajas, Cliente and the Delta adjustment of
// Disponible apply; the adapter clamps Disponible into [0, Cajas].
type Offer struct {
	ID              int64
	Articulo        string
	Variedad        string
	Cultivo         string
	Vuelo           string
	Fecha           string
	FechaExpedicion string
	Cliente         string
	Cajas           int
	Delta           int
}

// OfferMirror keeps the offers datastore in step with reservations.
//
// Calls happen after the core transaction committed. They are best-effort:
// a failure is logged and reported in OfferSync and never undoes the core
// write. Implementations must tolerate being called again for the same
// offer.
type OfferMirror interface {
	Upsert(ctx context.Context, o Offer) (int64, error)
	Delete(ctx context.Context, id int64) error
}

// OfferSync reports what happened to the mirror, separate from the core
// result.
type OfferSync struct {
	Attempted bool   `json:"attempted"`
	OK        bool   `json:"ok"`
	OfferID   int64  `json:"oferta_id,omitempty"`
	Message   string `json:"message"`
}
