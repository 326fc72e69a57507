package models

import (
	"time"
)

// LocationSample is one fix delivered by the device's geolocation API.
type LocationSample struct {
	Latitude  float64   `json:"latitude" bson:"latitude" validate:"min=-90,max=90"`
	Longitude float64   `json:"longitude" bson:"longitude" validate:"min=-180,max=180"`
	Accuracy  float64   `json:"accuracy" bson:"accuracy" validate:"min=0"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}

type Point struct {
	Latitude  float64 `json:"latitude" bson:"latitude"`
	Longitude float64 `json:"longitude" bson:"longitude"`
}

func (s LocationSample) Point() Point {
	return Point{Latitude: s.Latitude, Longitude: s.Longitude}
}
