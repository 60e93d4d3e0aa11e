// Package spreading implements the hybrid-Gaussian ray-tube spreading-loss
// model used by EigenverbEmitter to turn a boundary collision's local ray
// geometry into a footprint width and one-way transmission intensity,
// grounded on original_source/waveq3d/spreading_hybrid_gaussian.h.
package spreading

import "math"

const (
	// SpreadingWidth is the number of wavelengths a Gaussian beam can be
	// expected to tunnel into neighboring beams (the original's
	// "2 pi lambda" minimum-width term from the GRAB model).
	SpreadingWidth = 2 * math.Pi

	// Overlap is the GRAB-style 50% overlap factor applied to cell width.
	Overlap = 2.0
)

// Model computes footprint half-widths and one-way transmission intensity
// for a ray-grid cell, given the DE/AZ angular spacing of the grid it was
// built from.
type Model struct {
	deRad []float64 // launch DE angles, radians
	azRad []float64 // launch AZ angles, radians
}

// New builds a Model from the radian DE/AZ launch angle sequences of a
// RayGrid (see waveq3d.RayGrid.DERad/AZRad).
func New(deRad, azRad []float64) *Model {
	return &Model{deRad: append([]float64(nil), deRad...), azRad: append([]float64(nil), azRad...)}
}

// cellHalfWidth returns half the angular spacing (rad) of index i in a
// monotonic angle sequence, averaging the neighbor on each side that
// exists.
func cellHalfWidth(angles []float64, i int) float64 {
	n := len(angles)
	switch {
	case n == 1:
		return 0
	case i == 0:
		return 0.5 * (angles[1] - angles[0])
	case i == n-1:
		return 0.5 * (angles[n-1] - angles[n-2])
	default:
		return 0.25 * (angles[i+1] - angles[i-1])
	}
}

// WidthDE returns the 1-sigma footprint half-width (m) in the DE direction
// at ray (i, j): the cell's angular half-width times the slant range,
// scaled by 1/sin(grazing) along the propagation direction (spec.md §4.6).
func (m *Model) WidthDE(i int, slantRange, grazing float64) float64 {
	halfAngle := cellHalfWidth(m.deRad, i)
	sinG := math.Sin(grazing)
	if sinG == 0 {
		sinG = 1e-6
	}
	return halfAngle * slantRange / sinG
}

// WidthAZ returns the 1-sigma footprint half-width (m) in the AZ direction
// at ray (i, j): the cell's angular half-width times the slant range (no
// grazing-angle foreshortening, since azimuthal spread lies in the
// boundary's tangent plane).
func (m *Model) WidthAZ(j int, slantRange float64) float64 {
	halfAngle := cellHalfWidth(m.azRad, j)
	return halfAngle * slantRange
}

// Intensity returns, per frequency, the hybrid-Gaussian one-way
// transmission intensity (linear, not dB) at the center of cell (i, j):
// the product of independent DE and AZ Gaussian contributions evaluated
// at zero offset (spec.md §4.6, grounded on spreading_hybrid_gaussian.h's
// gaussian()/intensity() combination of cell width and evanescent
// spreading terms in quadrature).
func (m *Model) Intensity(widthDE, widthAZ float64, freqHz []float64, soundSpeed float64) []float64 {
	out := make([]float64, len(freqHz))
	for f, hz := range freqHz {
		wavelength := soundSpeed / hz
		spread := SpreadingWidth * wavelength

		wDE2 := spread*spread + Overlap*Overlap*widthDE*widthDE
		wAZ2 := spread*spread + Overlap*Overlap*widthAZ*widthAZ

		ampDE := 1.0 / math.Sqrt(wDE2)
		ampAZ := 1.0 / math.Sqrt(wAZ2)
		out[f] = ampDE * ampAZ
	}
	return out
}
