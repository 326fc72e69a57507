package tracking

import (
	"errors"
	"time"

	"guardshift/internal/models"
	"guardshift/internal/utils"
)

var ErrInvalidSample = errors.New("invalid location sample")

// FilterOptions mirror the device location options: a position is only
// published once both the minimum interval and minimum distance have been
// covered since the last published one.
type FilterOptions struct {
	MinInterval time.Duration
	MinDistance float64
}

type SampleFilter struct {
	opts FilterOptions
	last *models.LocationSample
}

func NewSampleFilter(opts FilterOptions) *SampleFilter {
	return &SampleFilter{opts: opts}
}

func ValidateSample(sample models.LocationSample) error {
	if !utils.IsValidCoordinates(sample.Latitude, sample.Longitude) {
		return ErrInvalidSample
	}
	if sample.Accuracy < 0 {
		return ErrInvalidSample
	}
	return nil
}

// Allow reports whether sample should be published and, if so, records it
// as the new reference point. Out of order samples are never allowed.
func (f *SampleFilter) Allow(sample models.LocationSample) bool {
	if f.last == nil {
		f.last = &sample
		return true
	}

	elapsed := sample.Timestamp.Sub(f.last.Timestamp)
	if elapsed < 0 || elapsed < f.opts.MinInterval {
		return false
	}
	if f.opts.MinDistance > 0 {
		moved := utils.DistanceMeters(f.last.Latitude, f.last.Longitude, sample.Latitude, sample.Longitude)
		if moved < f.opts.MinDistance {
			return false
		}
	}

	f.last = &sample
	return true
}
