package waveq3d

import (
	"errors"
)

// Sentinel errors, declared flat at package scope the way the teacher's
// errors.go lists its TileDB error set. InvalidConfiguration errors are
// reported at construction time (spec.md §7); NearMiss and ThresholdReject
// are never returned to a caller — they are silent by design.
var ErrEmptyFrequencies = errors.New("waveq3d: frequencies must be non-empty and strictly positive")
var ErrEmptyDEFan = errors.New("waveq3d: DE fan must be non-empty")
var ErrEmptyAZFan = errors.New("waveq3d: AZ fan must be non-empty")
var ErrInvalidTimeStep = errors.New("waveq3d: time_step must be positive")
var ErrInvalidTimeMax = errors.New("waveq3d: time_maximum must be positive")
var ErrInvalidTimeRange = errors.New("waveq3d: time_minimum must be less than time_maximum")
var ErrNilProfile = errors.New("waveq3d: environment profile must not be nil")
var ErrNilSurface = errors.New("waveq3d: surface boundary must not be nil")
var ErrNilBottom = errors.New("waveq3d: bottom boundary must not be nil")
var ErrQueueClosed = errors.New("waveq3d: step called on a closed WavefrontQueue")
var ErrEnvironment = errors.New("waveq3d: environment query failed")

// WrapEnvironmentError joins cause under ErrEnvironment the way the
// teacher's cmd/main.go wraps TileDB failures with errors.Join and a
// descriptive sentinel.
func WrapEnvironmentError(cause error) error {
	if cause == nil {
		return nil
	}
	return errors.Join(ErrEnvironment, cause)
}
