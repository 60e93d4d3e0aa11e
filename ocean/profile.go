// Package ocean provides the sound-speed-profile, boundary, and
// scattering-strength implementations consumed through waveq3d's
// Profile/Boundary/VolumeLayer/Scattering facades, grounded on
// original_source/ocean and original_source/types.
package ocean

import (
	"math"

	"github.com/sixy6e/waveq3d"
	"gonum.org/v1/gonum/interp"
)

// IsovelocityProfile is a uniform sound speed everywhere: the simplest
// Profile, used by the direct-path and Lloyd's-mirror scenarios.
type IsovelocityProfile struct {
	C float64 // m/s
}

// NewIsovelocityProfile builds an IsovelocityProfile at speed c.
func NewIsovelocityProfile(c float64) *IsovelocityProfile {
	return &IsovelocityProfile{C: c}
}

func (p *IsovelocityProfile) SoundSpeed(positions []waveq3d.Position) ([]float64, []waveq3d.Slowness, error) {
	c := make([]float64, len(positions))
	grad := make([]waveq3d.Slowness, len(positions))
	for i := range positions {
		c[i] = p.C
	}
	return c, grad, nil
}

func (p *IsovelocityProfile) Attenuation(positions []waveq3d.Position, freq waveq3d.Frequencies, stepDistance []float64) ([][]float64, error) {
	return zeroAttenuation(len(positions), freq.Len()), nil
}

// MunkProfile is the canonical deep-ocean sound-speed profile (Munk 1974),
// a function of depth alone, cited by the same Jensen/Kuperman/Porter/
// Schmidt reference original_source/ocean/reflect_loss_rayleigh.h xrefs.
type MunkProfile struct {
	AxisDepth float64 // z1, m, depth of the sound-channel axis
	AxisSpeed float64 // c1, m/s, speed at the axis
	ScaleDepth float64 // B, m
	Epsilon    float64 // perturbation coefficient
}

// NewMunkProfile builds the canonical Munk profile with its textbook
// constants (axis at 1300 m, 1500 m/s, B=1300 m, eps=0.00737).
func NewMunkProfile() *MunkProfile {
	return &MunkProfile{AxisDepth: 1300, AxisSpeed: 1500, ScaleDepth: 1300, Epsilon: 0.00737}
}

func (p *MunkProfile) speedAndSlope(depth float64) (c, dcdz float64) {
	zPrime := 2 * (depth - p.AxisDepth) / p.ScaleDepth
	c = p.AxisSpeed * (1 + p.Epsilon*(zPrime-1+math.Exp(-zPrime)))
	dzPrimeDz := 2 / p.ScaleDepth
	dcdz = p.AxisSpeed * p.Epsilon * (1 - math.Exp(-zPrime)) * dzPrimeDz
	return
}

func (p *MunkProfile) SoundSpeed(positions []waveq3d.Position) ([]float64, []waveq3d.Slowness, error) {
	c := make([]float64, len(positions))
	grad := make([]waveq3d.Slowness, len(positions))
	for i, pos := range positions {
		depth := -pos.Altitude()
		speed, dcdz := p.speedAndSlope(depth)
		c[i] = speed
		// depth = -(rho - EarthRadius), so d(depth)/d(rho) = -1.
		grad[i] = waveq3d.Slowness{Rho: -dcdz}
	}
	return c, grad, nil
}

func (p *MunkProfile) Attenuation(positions []waveq3d.Position, freq waveq3d.Frequencies, stepDistance []float64) ([][]float64, error) {
	return zeroAttenuation(len(positions), freq.Len()), nil
}

// GriddedProfile is a 3-axis (depth, colatitude, longitude) sound-speed
// field, interpolated with a cubic spline along depth at each of the four
// surrounding lat/lon grid columns and combined across lat/lon with the
// same bilinear weighting original_source/types/data_grid_svp.h applies
// after its z-direction Hermite pass, used for HYCOM-like environments.
type GriddedProfile struct {
	depths []float64 // m, increasing
	thetas []float64 // rad, increasing
	phis   []float64 // rad, increasing

	columns [][]*interp.AkimaSpline // [thetaIdx][phiIdx] depth spline
}

// NewGriddedProfile builds a GriddedProfile from a depth/theta/phi axis grid
// and speed[iDepth][iTheta][iPhi] samples (m/s). Fits one depth spline per
// (theta, phi) grid column up front so queries only evaluate, not refit.
func NewGriddedProfile(depths, thetas, phis []float64, speed [][][]float64) (*GriddedProfile, error) {
	g := &GriddedProfile{
		depths: append([]float64(nil), depths...),
		thetas: append([]float64(nil), thetas...),
		phis:   append([]float64(nil), phis...),
	}
	g.columns = make([][]*interp.AkimaSpline, len(thetas))
	for jt := range thetas {
		g.columns[jt] = make([]*interp.AkimaSpline, len(phis))
		for kp := range phis {
			col := make([]float64, len(depths))
			for id := range depths {
				col[id] = speed[id][jt][kp]
			}
			sp := new(interp.AkimaSpline)
			if err := sp.Fit(depths, col); err != nil {
				return nil, waveq3d.WrapEnvironmentError(err)
			}
			g.columns[jt][kp] = sp
		}
	}
	return g, nil
}

// bracket returns the lower index of the cell of axis containing v, clamped
// to [0, len(axis)-2].
func bracket(axis []float64, v float64) int {
	lo, hi := 0, len(axis)-2
	i := 0
	for i = lo; i < hi; i++ {
		if v < axis[i+1] {
			break
		}
	}
	if i < lo {
		i = lo
	}
	if i > hi {
		i = hi
	}
	return i
}

func (g *GriddedProfile) columnAt(jt, kp int, depth float64) float64 {
	return g.columns[jt][kp].Predict(depth)
}

// bilinear mirrors data_grid_svp.h's "bi-linear contributions" block: a
// weighted combination of the four corner values, plus the partial
// derivatives with respect to x and y.
func bilinear(x1, x2, y1, y2, f11, f21, f12, f22, x, y float64) (val, dx, dy float64) {
	xd := x2 - x1
	yd := y2 - y1
	area := xd * yd
	val = (f11*(x2-x)*(y2-y) + f21*(x-x1)*(y2-y) + f12*(x2-x)*(y-y1) + f22*(x-x1)*(y-y1)) / area
	dx = (-f11*(y2-y) + f21*(y2-y) - f12*(y-y1) + f22*(y-y1)) / area
	dy = (-f11*(x2-x) - f21*(x-x1) + f12*(x2-x) + f22*(x-x1)) / area
	return
}

func (g *GriddedProfile) SoundSpeed(positions []waveq3d.Position) ([]float64, []waveq3d.Slowness, error) {
	const depthEps = 0.5 // m, central-difference step for the depth derivative

	c := make([]float64, len(positions))
	grad := make([]waveq3d.Slowness, len(positions))
	for i, pos := range positions {
		depth := -pos.Altitude()
		jt := bracket(g.thetas, pos.Theta)
		kp := bracket(g.phis, pos.Phi)

		f11 := g.columnAt(jt, kp, depth)
		f21 := g.columnAt(jt+1, kp, depth)
		f12 := g.columnAt(jt, kp+1, depth)
		f22 := g.columnAt(jt+1, kp+1, depth)
		val, dTheta, dPhi := bilinear(g.thetas[jt], g.thetas[jt+1], g.phis[kp], g.phis[kp+1], f11, f21, f12, f22, pos.Theta, pos.Phi)

		fLo11 := g.columnAt(jt, kp, depth-depthEps)
		fLo21 := g.columnAt(jt+1, kp, depth-depthEps)
		fLo12 := g.columnAt(jt, kp+1, depth-depthEps)
		fLo22 := g.columnAt(jt+1, kp+1, depth-depthEps)
		valLo, _, _ := bilinear(g.thetas[jt], g.thetas[jt+1], g.phis[kp], g.phis[kp+1], fLo11, fLo21, fLo12, fLo22, pos.Theta, pos.Phi)

		fHi11 := g.columnAt(jt, kp, depth+depthEps)
		fHi21 := g.columnAt(jt+1, kp, depth+depthEps)
		fHi12 := g.columnAt(jt, kp+1, depth+depthEps)
		fHi22 := g.columnAt(jt+1, kp+1, depth+depthEps)
		valHi, _, _ := bilinear(g.thetas[jt], g.thetas[jt+1], g.phis[kp], g.phis[kp+1], fHi11, fHi21, fHi12, fHi22, pos.Theta, pos.Phi)

		dDepth := (valHi - valLo) / (2 * depthEps)

		c[i] = val
		grad[i] = waveq3d.Slowness{Rho: -dDepth, Theta: dTheta, Phi: dPhi}
	}
	return c, grad, nil
}

func (g *GriddedProfile) Attenuation(positions []waveq3d.Position, freq waveq3d.Frequencies, stepDistance []float64) ([][]float64, error) {
	return zeroAttenuation(len(positions), freq.Len()), nil
}

func zeroAttenuation(nPos, nFreq int) [][]float64 {
	out := make([][]float64, nPos)
	for i := range out {
		out[i] = make([]float64, nFreq)
	}
	return out
}
