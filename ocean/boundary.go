package ocean

import (
	"math"

	"github.com/sixy6e/waveq3d"
	"gonum.org/v1/gonum/interp"
)

// ReflectLossModel computes the amplitude loss (dB) and phase shift (rad)
// per frequency a boundary applies at a collision, factored out of
// FlatBoundary/GriddedBoundary the way original_source/ocean/boundary_grid.h
// holds a reflect_loss_model pointer shared by every height implementation.
type ReflectLossModel interface {
	Loss(pos waveq3d.Position, freq waveq3d.Frequencies, grazing float64) (amp, phase []float64, err error)
}

// PerfectReflector is a lossless, phase-inverting boundary, the default
// surface model absent a configured sea-state loss.
type PerfectReflector struct{}

func (PerfectReflector) Loss(_ waveq3d.Position, freq waveq3d.Frequencies, _ float64) ([]float64, []float64, error) {
	return make([]float64, freq.Len()), make([]float64, freq.Len()), nil
}

// FlatBoundary is a boundary at a fixed depth with no lat/lon dependence,
// used for the flat-surface and flat-bottom scenarios. Its normal points
// into the water column, matching
// ReflectionEngine's grazingAngle/reflect usage.
type FlatBoundary struct {
	rho    float64
	normal waveq3d.Slowness
	loss   ReflectLossModel
}

// NewFlatSurface builds a flat surface at the mean earth radius (altitude
// zero), normal pointing down into the water column.
func NewFlatSurface(loss ReflectLossModel) *FlatBoundary {
	if loss == nil {
		loss = PerfectReflector{}
	}
	return &FlatBoundary{rho: waveq3d.EarthRadius, normal: waveq3d.Slowness{Rho: -1}, loss: loss}
}

// NewFlatBottom builds a flat bottom at depthM meters, normal pointing up
// into the water column.
func NewFlatBottom(depthM float64, loss ReflectLossModel) *FlatBoundary {
	if loss == nil {
		loss = NewRayleighBottom(Sand)
	}
	return &FlatBoundary{rho: waveq3d.EarthRadius - depthM, normal: waveq3d.Slowness{Rho: 1}, loss: loss}
}

func (b *FlatBoundary) Height(waveq3d.Position) (float64, waveq3d.Slowness, error) {
	return b.rho, b.normal, nil
}

func (b *FlatBoundary) ReflectLoss(pos waveq3d.Position, freq waveq3d.Frequencies, grazing float64) ([]float64, []float64, error) {
	return b.loss.Loss(pos, freq, grazing)
}

// GriddedBoundary is a bathymetry (or bathymetry-like) depth grid over
// (colatitude, longitude), interpolated with a cubic spline composed in
// both directions the way original_source/ocean/boundary_grid.h's 2-D case
// uses PCHIP in both directions, with the surface normal recovered from
// the local slope exactly as that header's height() derives it.
type GriddedBoundary struct {
	thetas []float64
	phis   []float64
	depth  [][]float64 // [thetaIdx][phiIdx], meters below mean earth radius

	rowSplines []*interp.AkimaSpline // one per theta row, fit along phi
	loss       ReflectLossModel
}

// NewGriddedBoundary builds a GriddedBoundary from a (theta, phi) axis grid
// and matching depth samples (m, positive down).
func NewGriddedBoundary(thetas, phis []float64, depthM [][]float64, loss ReflectLossModel) (*GriddedBoundary, error) {
	if loss == nil {
		loss = NewRayleighBottom(Sand)
	}
	g := &GriddedBoundary{
		thetas: append([]float64(nil), thetas...),
		phis:   append([]float64(nil), phis...),
		depth:  depthM,
		loss:   loss,
	}
	g.rowSplines = make([]*interp.AkimaSpline, len(thetas))
	for jt := range thetas {
		sp := new(interp.AkimaSpline)
		if err := sp.Fit(phis, depthM[jt]); err != nil {
			return nil, waveq3d.WrapEnvironmentError(err)
		}
		g.rowSplines[jt] = sp
	}
	return g, nil
}

// depthAt evaluates the composed cubic surface at (theta, phi): a
// phi-direction spline per row, then a theta-direction spline across rows.
func (g *GriddedBoundary) depthAt(theta, phi float64) float64 {
	vals := make([]float64, len(g.thetas))
	for jt := range g.thetas {
		vals[jt] = g.rowSplines[jt].Predict(phi)
	}
	sp := new(interp.AkimaSpline)
	_ = sp.Fit(g.thetas, vals)
	return sp.Predict(theta)
}

func (g *GriddedBoundary) Height(pos waveq3d.Position) (float64, waveq3d.Slowness, error) {
	const eps = 1e-5 // rad, central-difference step for the slope

	depth := g.depthAt(pos.Theta, pos.Phi)
	rho := waveq3d.EarthRadius - depth

	dThetaDepth := (g.depthAt(pos.Theta+eps, pos.Phi) - g.depthAt(pos.Theta-eps, pos.Phi)) / (2 * eps)
	dPhiDepth := (g.depthAt(pos.Theta, pos.Phi+eps) - g.depthAt(pos.Theta, pos.Phi-eps)) / (2 * eps)

	// gtheta/gphi are the gradient of rho (= -depth) w.r.t. theta/phi;
	// slope = tan(angle) just as boundary_grid.h computes it.
	gTheta := -dThetaDepth
	gPhi := -dPhiDepth
	t := gTheta / rho
	p := gPhi / (rho * math.Sin(pos.Theta))

	nTheta := -t / math.Sqrt(1+t*t)
	nPhi := -p / math.Sqrt(1+p*p)
	sumSq := nTheta*nTheta + nPhi*nPhi
	var nRho float64
	if sumSq < 1 {
		nRho = math.Sqrt(1 - sumSq)
	} else {
		n := math.Sqrt(sumSq)
		nTheta /= n
		nPhi /= n
		nRho = 0
	}

	// Height()'s normal above is the outward (upward) normal used by
	// original_source; ReflectionEngine expects the into-the-water
	// convention (positive rho) for a bottom boundary, which this already
	// is since nRho >= 0.
	return rho, waveq3d.Slowness{Rho: nRho, Theta: nTheta, Phi: nPhi}, nil
}

func (g *GriddedBoundary) ReflectLoss(pos waveq3d.Position, freq waveq3d.Frequencies, grazing float64) ([]float64, []float64, error) {
	return g.loss.Loss(pos, freq, grazing)
}
