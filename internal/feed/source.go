package feed

import (
	"context"
	"errors"

	"guardshift/internal/models"
)

// ErrStreamClosed is returned by a Source whose stream ended without an
// error of its own while the caller still wanted it.
var ErrStreamClosed = errors.New("offer stream closed")

// Source is the authoritative change feed of newly inserted offers.
type Source interface {
	// Stream subscribes to offers inserted for personnelID. It calls live
	// once the subscription is established and deliver for every inserted
	// row, and blocks until ctx is done or the stream fails.
	Stream(ctx context.Context, personnelID string, live func(), deliver func(*models.ShiftOffer)) error
}
