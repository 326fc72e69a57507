package interfaces

import "errors"

var ErrNotFound = errors.New("record not found")

// CASResult is the outcome of a conditional write. Conflict means the row
// existed but no longer matched the expected prior state, so nothing changed.
type CASResult int

const (
	CASConflict CASResult = iota
	CASApplied
)

func (r CASResult) Applied() bool {
	return r == CASApplied
}

func (r CASResult) String() string {
	if r == CASApplied {
		return "applied"
	}
	return "conflict"
}

// CASFromCount maps an affected-row count to a CASResult.
func CASFromCount(n int64) CASResult {
	if n > 0 {
		return CASApplied
	}
	return CASConflict
}
