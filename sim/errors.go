package sim

import "errors"

// ErrEndOfData is the expected control signal from Clock.Advance when the bar
// series is exhausted. It is not a failure; the driver uses it to terminate.
var ErrEndOfData = errors.New("end of data")

// ErrInsufficientMargin is reported when a fill cannot be afforded even after
// downsizing. Orders hitting it are dropped, never aborting the run.
var ErrInsufficientMargin = errors.New("insufficient margin")
