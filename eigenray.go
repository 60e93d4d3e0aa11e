package waveq3d

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Eigenray is one acoustic arrival at a target: the launch/arrival angles,
// travel time, per-frequency intensity (dB loss) and phase, and the
// interaction counts of the path that produced it (spec.md §3).
type Eigenray struct {
	TargetRow, TargetCol int

	Time     float64 // s
	SourceDE float64 // deg
	SourceAZ float64 // deg
	TargetDE float64 // deg
	TargetAZ float64 // deg

	Intensity []float64 // dB loss, one per frequency, non-negative
	Phase     []float64 // rad, one per frequency

	Surface, Bottom, Caustic, Upper, Lower int
}

// ScannedEigenray pairs an Eigenray with the target indices it was found
// for, the shape WavefrontQueue.Step hands to registered listeners.
type ScannedEigenray struct {
	TargetRow, TargetCol int
	Ray                  Eigenray
}

// EigenrayExtractor locates closest-point-of-approach arrivals at each
// tracked target and refines them with a local quadratic fit (spec.md
// §4.5).
type EigenrayExtractor struct {
	cfg Config
}

// NewEigenrayExtractor constructs an EigenrayExtractor bound to cfg.
func NewEigenrayExtractor(cfg Config) *EigenrayExtractor {
	return &EigenrayExtractor{cfg: cfg}
}

// Scan finds, for every target and every ray (i, j), a CPA at curr (where
// d2 dips below both neighbors in time), refines it with a 3-variable
// quadratic fit over (time, DE, AZ), and emits an Eigenray for arrivals
// that pass the intensity and count-ceiling filters.
func (e *EigenrayExtractor) Scan(prev, curr, next *WaveState) []ScannedEigenray {
	if curr.Targets == nil {
		return nil
	}
	nDE, nAZ := curr.Grid.NumDE(), curr.Grid.NumAZ()

	var out []ScannedEigenray
	for t := range curr.Targets {
		for i := 0; i < nDE; i++ {
			for j := 0; j < nAZ; j++ {
				dPrev := prev.Distance2[i][j][t]
				dCurr := curr.Distance2[i][j][t]
				dNext := next.Distance2[i][j][t]
				if !(dPrev > dCurr && dCurr <= dNext) {
					continue
				}

				ray, ok := e.refine(prev, curr, next, i, j, t)
				if !ok {
					continue
				}
				if !e.passesFilter(ray) {
					continue
				}
				out = append(out, ScannedEigenray{
					TargetRow: curr.Targets[t].Row,
					TargetCol: curr.Targets[t].Col,
					Ray:       ray,
				})
			}
		}
	}
	return out
}

// refine fits the squared-distance field with a quadratic in (tau, di, dj)
// over the 3x3x3 neighborhood in (step, DE, AZ) around (curr, i, j),
// solves for the stationary point, clamps it to the valid sub-step/
// half-cell ranges, and interpolates the Eigenray fields there (spec.md
// §4.5 "Refinement").
func (e *EigenrayExtractor) refine(prev, curr, next *WaveState, i, j, t int) (Eigenray, bool) {
	nDE, nAZ := curr.Grid.NumDE(), curr.Grid.NumAZ()
	im, ip := clampIndex(i-1, nDE), clampIndex(i+1, nDE)
	jm, jp := clampIndex(j-1, nAZ), clampIndex(j+1, nAZ)

	dt := e.cfg.TimeStep
	// central finite differences of D(tau, di, dj) around (0,0,0) = curr.
	dTau := (next.Distance2[i][j][t] - prev.Distance2[i][j][t]) / (2 * dt)
	dTauTau := (next.Distance2[i][j][t] - 2*curr.Distance2[i][j][t] + prev.Distance2[i][j][t]) / (dt * dt)

	dDE := (curr.Distance2[ip][j][t] - curr.Distance2[im][j][t]) / 2
	dDEDE := curr.Distance2[ip][j][t] - 2*curr.Distance2[i][j][t] + curr.Distance2[im][j][t]

	dAZ := (curr.Distance2[i][jp][t] - curr.Distance2[i][jm][t]) / 2
	dAZAZ := curr.Distance2[i][jp][t] - 2*curr.Distance2[i][j][t] + curr.Distance2[i][jm][t]

	// cross terms, from the corner points of the 3x3x3 stencil.
	dTauDE := (next.Distance2[ip][j][t] - next.Distance2[im][j][t] - prev.Distance2[ip][j][t] + prev.Distance2[im][j][t]) / (4 * dt)
	dTauAZ := (next.Distance2[i][jp][t] - next.Distance2[i][jm][t] - prev.Distance2[i][jp][t] + prev.Distance2[i][jm][t]) / (4 * dt)
	dDEAZ := (curr.Distance2[ip][jp][t] - curr.Distance2[ip][jm][t] - curr.Distance2[im][jp][t] + curr.Distance2[im][jm][t]) / 4

	// Hessian H and gradient g of the quadratic D ~= D0 + g.x + 0.5 x^T H x;
	// solving H x = -g gives the stationary point.
	H := mat.NewDense(3, 3, []float64{
		dTauTau, dTauDE, dTauAZ,
		dTauDE, dDEDE, dDEAZ,
		dTauAZ, dDEAZ, dAZAZ,
	})
	g := mat.NewVecDense(3, []float64{dTau, dDE, dAZ})

	var x mat.VecDense
	if err := x.SolveVec(H, g); err != nil {
		return Eigenray{}, false
	}
	tau := clamp(-x.AtVec(0), -dt, dt)
	di := clamp(-x.AtVec(1), -0.5, 0.5)
	dj := clamp(-x.AtVec(2), -0.5, 0.5)

	// travel time is offset by tau and the source angles by (di, dj);
	// attenuation and phase are interpolated in tau only, and the target
	// angles come from curr's slowness at (i, j) without correction. The
	// strongest of curr's own ray supplies counts (spec.md: "taken from
	// the strongest path in the cell").
	timeAt := curr.T + tau

	srcDE := curr.Grid.DE[i] + angleOffset(curr.Grid.DE, i, im, ip, di)
	srcAZ := curr.Grid.AZ[j] + angleOffset(curr.Grid.AZ, j, jm, jp, dj)

	xi := curr.Slowness[i][j]
	tgtDE, tgtAZ := slownessToAngles(xi)

	F := curr.Freq.Len()
	intensity := make([]float64, F)
	phase := make([]float64, F)
	for f := 0; f < F; f++ {
		atten := lerp3(prev.Attenuation[i][j][f], curr.Attenuation[i][j][f], next.Attenuation[i][j][f], tau/dt)
		intensity[f] = atten
		ph := lerp3(prev.Phase[i][j][f], curr.Phase[i][j][f], next.Phase[i][j][f], tau/dt)
		phase[f] = wrapPhase(ph)
	}

	c := curr.Counts[i][j]
	ray := Eigenray{
		Time: timeAt, SourceDE: srcDE, SourceAZ: srcAZ,
		TargetDE: tgtDE, TargetAZ: tgtAZ,
		Intensity: intensity, Phase: phase,
		Surface: c.Surface, Bottom: c.Bottom, Caustic: c.Caustic,
		Upper: sumInts(c.Upper), Lower: sumInts(c.Lower),
	}
	return ray, true
}

// angleOffset converts a fractional grid-index offset d in [-0.5, 0.5]
// into a launch-angle delta, scaling by the local cell width on whichever
// side d points toward.
func angleOffset(angles []float64, i, im, ip int, d float64) float64 {
	if d >= 0 {
		return d * (angles[ip] - angles[i])
	}
	return d * (angles[i] - angles[im])
}

// passesFilter applies the intensity-threshold and count-ceiling gates of
// spec.md §4.5.
func (e *EigenrayExtractor) passesFilter(ray Eigenray) bool {
	belowThreshold := false
	for _, db := range ray.Intensity {
		if db < e.cfg.IntensityThreshold {
			belowThreshold = true
			break
		}
	}
	if !belowThreshold {
		return false
	}
	if e.cfg.MaxSurface > 0 && ray.Surface > e.cfg.MaxSurface {
		return false
	}
	if e.cfg.MaxBottom > 0 && ray.Bottom > e.cfg.MaxBottom {
		return false
	}
	if e.cfg.MaxCaustic > 0 && ray.Caustic > e.cfg.MaxCaustic {
		return false
	}
	if e.cfg.MaxUpper > 0 && ray.Upper > e.cfg.MaxUpper {
		return false
	}
	if e.cfg.MaxLower > 0 && ray.Lower > e.cfg.MaxLower {
		return false
	}
	return true
}

// CoherentSum combines rays (all for the same target) into one summed
// arrival by phasor addition, following the original's sum_eigenrays: the
// coherent variant includes the 2*pi*f*T carrier phase, the incoherent
// variant omits it (spec.md §4.5, grounded on
// original_source/wave_q3d/proploss.cc).
func CoherentSum(freq Frequencies, rays []Eigenray, coherent bool) (intensity, phase []float64) {
	F := freq.Len()
	intensity = make([]float64, F)
	phase = make([]float64, F)
	for f := 0; f < F; f++ {
		var re, im float64
		for _, ray := range rays {
			a := math.Pow(10, ray.Intensity[f]/-20.0)
			p := ray.Phase[f]
			if coherent {
				p = math.Mod(2*math.Pi*freq.At(f)*ray.Time+ray.Phase[f], 2*math.Pi)
			}
			re += a * math.Cos(p)
			im += a * math.Sin(p)
		}
		mag := math.Hypot(re, im)
		intensity[f] = -20.0 * math.Log10(math.Max(1e-15, mag))
		phase[f] = math.Atan2(im, re)
	}
	return intensity, phase
}

// DeadReckon reprojects eigenrays to a small displacement of one endpoint
// (source when sourceEnd is true, target otherwise). Travel time and phase
// are adjusted using the displacement's component along the ray's local
// direction at that endpoint, assuming ray angles are unchanged; intensity
// (level) is copied unchanged (spec.md
// §4.5 "Small-change reprojection"; grounded on the two-endpoint,
// sequential-reprojection shape of
// original_source/eigenrays/eigenray_collection.h's dead_reckon/
// dead_reckon_one, whose body is not present in the retrieved sources).
func DeadReckon(freq Frequencies, rays []Eigenray, displacement [3]float64, c float64, sourceEnd bool) []Eigenray {
	out := make([]Eigenray, len(rays))
	for i, ray := range rays {
		de, az := ray.SourceDE, ray.SourceAZ
		if !sourceEnd {
			de, az = ray.TargetDE, ray.TargetAZ
		}
		dir := angleDirection(de, az)
		proj := dir[0]*displacement[0] + dir[1]*displacement[1] + dir[2]*displacement[2]

		dt := proj / c
		r2 := ray
		r2.Time = ray.Time + dt

		r2.Intensity = append([]float64(nil), ray.Intensity...)
		r2.Phase = append([]float64(nil), ray.Phase...)
		for f := 0; f < freq.Len(); f++ {
			r2.Phase[f] = wrapPhase(ray.Phase[f] + 2*math.Pi*freq.At(f)*dt)
		}
		out[i] = r2
	}
	return out
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// lerp3 interpolates between (prev, curr, next) at fractional offset
// u in [-1, 1], 0 at curr.
func lerp3(prev, curr, next, u float64) float64 {
	if u >= 0 {
		return curr + u*(next-curr)
	}
	return curr + u*(curr-prev)
}

func sumInts(v []int) int {
	s := 0
	for _, x := range v {
		s += x
	}
	return s
}

// slownessToAngles recovers (DE, AZ) in degrees from a normalized slowness
// vector, inverting RayGrid.LaunchDirection's rho=sin(de),
// theta=-cos(de)cos(az), phi=cos(de)sin(az) up to a positive scale factor.
func slownessToAngles(xi Slowness) (deDeg, azDeg float64) {
	n := xi.Norm()
	if n == 0 {
		return 0, 0
	}
	rho, theta, phi := xi.Rho/n, xi.Theta/n, xi.Phi/n
	de := math.Asin(clamp(rho, -1, 1))
	az := math.Atan2(phi, -theta)
	const rad2deg = 180.0 / math.Pi
	return de * rad2deg, az * rad2deg
}

// angleDirection returns the unit (rho,theta,phi)->(x,y,z)-style direction
// implied by a (DE, AZ) pair in the same convention as RayGrid.LaunchDirection,
// used by DeadReckon to project a Cartesian displacement.
func angleDirection(deDeg, azDeg float64) [3]float64 {
	const deg2rad = math.Pi / 180.0
	de, az := deDeg*deg2rad, azDeg*deg2rad
	cosDE := math.Cos(de)
	return [3]float64{math.Sin(de), -cosDE * math.Cos(az), cosDE * math.Sin(az)}
}
