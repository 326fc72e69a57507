package maps

import (
	"context"
	"errors"
)

// ErrNoResults is returned when an address resolves to nothing.
var ErrNoResults = errors.New("address not found")

// Geocoder resolves a street address to coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (*Location, error)
}

type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"formatted_address"`
	PlaceID   string  `json:"place_id"`
}
