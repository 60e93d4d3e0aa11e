package waveq3d

import (
	"math"

	"github.com/sixy6e/waveq3d/spreading"
)

// Eigenverb is the ensonified-patch footprint recorded at one boundary
// collision, used by BiverbCombiner to build bistatic reverberation
// contributions (spec.md §3).
type Eigenverb struct {
	Time       float64
	Position   Position
	Direction  Slowness
	Grazing    float64 // rad
	Azimuth    float64 // rad, true bearing of the major axis
	SoundSpeed float64
	Length     float64 // m, 1-sigma semi-axis, DE direction
	Width      float64 // m, 1-sigma semi-axis, AZ direction
	Power      []float64

	DE, AZ int
	Counts Counts

	Freq Frequencies
}

// EigenverbEmitter builds an Eigenverb from each collision the
// ReflectionEngine records, using the hybrid-Gaussian spreading model for
// footprint size and power (spec.md §4.6).
type EigenverbEmitter struct {
	cfg   Config
	model *spreading.Model
}

// NewEigenverbEmitter constructs an EigenverbEmitter bound to cfg.
func NewEigenverbEmitter(cfg Config) *EigenverbEmitter {
	deRad := make([]float64, cfg.RayGrid.NumDE())
	for i := range deRad {
		deRad[i] = cfg.RayGrid.DERad(i)
	}
	azRad := make([]float64, cfg.RayGrid.NumAZ())
	for j := range azRad {
		azRad[j] = cfg.RayGrid.AZRad(j)
	}
	return &EigenverbEmitter{cfg: cfg, model: spreading.New(deRad, azRad)}
}

// Emit builds the Eigenverb for collision c, taking the path length and
// counts from c itself; ws is not read. Emission is suppressed when the
// peak power is below the configured threshold.
func (e *EigenverbEmitter) Emit(ws *WaveState, c Collision) (Eigenverb, bool) {
	slantRange := c.PathLength
	widthDE := e.model.WidthDE(c.DE, slantRange, c.Grazing)
	widthAZ := e.model.WidthAZ(c.AZ, slantRange)

	power := e.model.Intensity(widthDE, widthAZ, e.cfg.Frequencies.Values(), c.SoundSpeed)

	peak := 0.0
	for _, p := range power {
		if p > peak {
			peak = p
		}
	}
	// eigenverb_threshold is a dB loss ceiling (spec.md §6); the spreading
	// model's power is linear, so compare in the dB domain. Zero disables
	// the cap, matching the MaxSurface/MaxBottom/MaxCaustic convention in
	// EigenrayExtractor.passesFilter.
	if e.cfg.EigenverbThreshold > 0 {
		peakDB := -10 * math.Log10(peak)
		if peakDB > e.cfg.EigenverbThreshold {
			return Eigenverb{}, false
		}
	}

	_, azDeg := slownessToAngles(c.Direction)
	const deg2rad = 0.017453292519943295
	verb := Eigenverb{
		Time: c.Time, Position: c.Position, Direction: c.Direction,
		Grazing: c.Grazing, Azimuth: azDeg * deg2rad, SoundSpeed: c.SoundSpeed,
		Length: widthDE, Width: widthAZ, Power: power,
		DE: c.DE, AZ: c.AZ, Counts: c.Counts, Freq: e.cfg.Frequencies,
	}
	return verb, true
}
