package offer

import (
	"context"

	"github.com/chipiona/stock-engine/stock"
)

// Nop is the mirror used when no offers database is configured. Every call
// fails with stock.ErrMirrorDisabled so results report "not attempted".
type Nop struct{}

var _ stock.OfferMirror = Nop{}

func (Nop) Upsert(context.Context, stock.Offer) (int64, error) { return 0, stock.ErrMirrorDisabled }

func (Nop) Delete(context.Context, int64) error { return stock.ErrMirrorDisabled }
