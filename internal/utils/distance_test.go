package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistanceMeters(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		want, tolerance        float64
	}{
		{name: "same point", lat1: 51.5, lon1: -0.12, lat2: 51.5, lon2: -0.12, want: 0, tolerance: 1e-9},
		// One degree of latitude on a 6,371 km sphere.
		{name: "one degree north", lat1: 0, lon1: 0, lat2: 1, lon2: 0, want: 111194.93, tolerance: 0.5},
		{name: "london to paris", lat1: 51.5074, lon1: -0.1278, lat2: 48.8566, lon2: 2.3522, want: 343556, tolerance: 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DistanceMeters(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			assert.InDelta(t, tt.want, got, tt.tolerance)
		})
	}
}

func TestIsWithinRadius_Inclusive(t *testing.T) {
	d := DistanceMeters(0, 0, 0.0004, 0)

	assert.True(t, IsWithinRadius(0, 0, 0.0004, 0, d))
	assert.False(t, IsWithinRadius(0, 0, 0.0004, 0, d-0.01))
}

func TestIsValidCoordinates(t *testing.T) {
	assert.True(t, IsValidCoordinates(-90, 180))
	assert.False(t, IsValidCoordinates(90.1, 0))
	assert.False(t, IsValidCoordinates(0, -180.5))
}

func TestPhone(t *testing.T) {
	assert.Equal(t, "+447700900123", NormalizePhone("+44 (7700) 900-123"))
	assert.Equal(t, "+15551234567", NormalizePhone("1 555 123 4567"))
	assert.True(t, IsValidPhone("+44 7700 900123"))
	assert.False(t, IsValidPhone("0"))
	assert.Equal(t, "*********0123", MaskPhone("+447700900123"))
}
