package waveq3d

import "math"

// minReflectDepth floors the penetration-depth safety term the way the
// original model's MIN_REFLECT constant keeps very shallow water from
// producing an ill-defined collision time (spec.md §4.3).
const minReflectDepth = 6.0

// Collision records one ray's boundary interaction within a step, handed to
// EigenverbEmitter after ReflectionEngine.Process returns.
type Collision struct {
	DE, AZ     int
	Interface  Interface
	Time       float64 // absolute propagation time of the collision
	Position   Position
	Direction  Slowness // post-collision (reflected, or unreflected for volume crossings) slowness
	SoundSpeed float64
	Grazing    float64 // rad
	PathLength float64
	Counts     Counts
}

// miniGrid is a reusable 1x1 RayGrid for the single-ray mini-wavefronts
// reflection_reinit builds to rebuild a ray's ring history around a
// collision (spec.md §4.3 "reflection_reinit").
var miniGrid, _ = NewRayGrid([]float64{0}, []float64{0})

// ReflectionEngine detects and processes surface, bottom, and volume-layer
// collisions within a step, localizes them with a quadratic-in-time Taylor
// fit, and rebuilds the ring history by integrating backward from the
// collision point (spec.md §4.3).
type ReflectionEngine struct {
	cfg Config
	env *Environment
}

// NewReflectionEngine constructs a ReflectionEngine bound to cfg and env.
func NewReflectionEngine(cfg Config, env *Environment) *ReflectionEngine {
	return &ReflectionEngine{cfg: cfg, env: env}
}

// Process scans every ray in q.next for a surface, bottom, or volume-layer
// collision, handling each and returning the collisions recorded this step.
func (re *ReflectionEngine) Process(q *WavefrontQueue) ([]Collision, error) {
	var collisions []Collision
	nDE, nAZ := q.curr.Grid.NumDE(), q.curr.Grid.NumAZ()

	for i := 0; i < nDE; i++ {
		for j := 0; j < nAZ; j++ {
			handled, c, err := re.trySurface(q, i, j)
			if err != nil {
				return nil, err
			}
			if !handled {
				handled, c, err = re.tryBottom(q, i, j)
				if err != nil {
					return nil, err
				}
			}
			if handled {
				collisions = append(collisions, c)
			}

			for li, layer := range re.env.Volumes {
				if c, ok, err := re.tryVolume(q, i, j, li, layer); err != nil {
					return nil, err
				} else if ok {
					collisions = append(collisions, c)
				}
			}
		}
	}
	return collisions, nil
}

// trySurface detects and, if found, processes a surface collision for ray
// (i, j). Grazing computation uses the refined post-localization direction,
// resolving the asymmetry spec.md §9 flags as a likely bug in the original.
func (re *ReflectionEngine) trySurface(q *WavefrontQueue, i, j int) (bool, Collision, error) {
	curr, next := q.curr, q.next

	rhoBoundary, normal, err := re.env.Surface.Height(curr.Position[i][j])
	if err != nil {
		return false, Collision{}, WrapEnvironmentError(err)
	}

	altCurr := curr.Position[i][j].Rho - rhoBoundary
	altNext := next.Position[i][j].Rho - rhoBoundary
	if altNext <= 0 {
		return false, Collision{}, nil
	}

	c := curr.SoundSpeed[i][j]
	xi := curr.Slowness[i][j]
	d := c * c * xi.Rho
	var dtime float64
	if d != 0 {
		dtime = -altCurr / d
	}

	pos, refinedXi, cAt := re.collisionLocation(q, i, j, dtime)
	grazing := grazingAngle(refinedXi, cAt, normal)
	if grazing <= 0 {
		return false, Collision{}, nil // NearMiss: silent
	}

	amp, phase, err := re.env.Surface.ReflectLoss(pos, re.cfg.Frequencies, grazing)
	if err != nil {
		return false, Collision{}, WrapEnvironmentError(err)
	}
	for f := 0; f < re.cfg.Frequencies.Len(); f++ {
		next.Attenuation[i][j][f] += amp[f]
		next.Phase[i][j][f] = wrapPhase(next.Phase[i][j][f] - math.Pi + orZero(phase, f))
	}

	reflected := reflect(refinedXi, normal, cAt)
	next.Counts[i][j].Surface++

	if err := re.reinitRing(q, i, j, pos, reflected, dtime); err != nil {
		return false, Collision{}, err
	}

	return true, Collision{
		DE: i, AZ: j, Interface: InterfaceSurface,
		Time: curr.T + dtime, Position: pos, Direction: reflected,
		SoundSpeed: cAt, Grazing: grazing,
		PathLength: next.PathLength[i][j], Counts: next.Counts[i][j].Clone(),
	}, nil
}

// tryBottom detects and, if found, processes a bottom collision for ray
// (i, j), following the same dot-product/normal-reflection scheme as
// trySurface so grazing angle computation is consistent across boundaries.
func (re *ReflectionEngine) tryBottom(q *WavefrontQueue, i, j int) (bool, Collision, error) {
	curr, next := q.curr, q.next

	rhoBoundary, normal, err := re.env.Bottom.Height(curr.Position[i][j])
	if err != nil {
		return false, Collision{}, WrapEnvironmentError(err)
	}

	altNext := next.Position[i][j].Rho - rhoBoundary
	if altNext > 0 {
		return false, Collision{}, nil
	}

	c := curr.SoundSpeed[i][j]
	xi := curr.Slowness[i][j]
	v := Slowness{Rho: c * c * xi.Rho, Theta: c * c * xi.Theta, Phi: c * c * xi.Phi}
	dot := normal.Rho*v.Rho + normal.Theta*v.Theta + normal.Phi*v.Phi

	// safety floor: very shallow water cannot send the collision time to
	// an ill-defined point (spec.md §4.3).
	penetration := rhoBoundary - next.Position[i][j].Rho
	maxDot := -math.Max(minReflectDepth, penetration)
	if dot >= maxDot {
		dot = maxDot
	}

	var dtime float64
	if dot != 0 {
		dtime = (rhoBoundary - curr.Position[i][j].Rho) * normal.Rho / dot
	}

	pos, refinedXi, cAt := re.collisionLocation(q, i, j, dtime)

	grazing := grazingAngle(refinedXi, cAt, normal)
	if grazing <= 0 {
		return false, Collision{}, nil // NearMiss: silent
	}

	amp, phase, err := re.env.Bottom.ReflectLoss(pos, re.cfg.Frequencies, grazing)
	if err != nil {
		return false, Collision{}, WrapEnvironmentError(err)
	}
	for f := 0; f < re.cfg.Frequencies.Len(); f++ {
		next.Attenuation[i][j][f] += amp[f]
		next.Phase[i][j][f] = wrapPhase(next.Phase[i][j][f] + orZero(phase, f))
	}

	reflected := reflect(refinedXi, normal, cAt)
	next.Counts[i][j].Bottom++

	if err := re.reinitRing(q, i, j, pos, reflected, dtime); err != nil {
		return false, Collision{}, err
	}

	return true, Collision{
		DE: i, AZ: j, Interface: InterfaceBottom,
		Time: curr.T + dtime, Position: pos, Direction: reflected,
		SoundSpeed: cAt, Grazing: grazing,
		PathLength: next.PathLength[i][j], Counts: next.Counts[i][j].Clone(),
	}, nil
}

// tryVolume detects a crossing of one face of a volume layer. Unlike
// surface/bottom, the ray is not reflected and the ring is not rebuilt —
// only the layer's upper or lower counter advances (spec.md §9: keep upper
// and lower separate per layer, never merge).
func (re *ReflectionEngine) tryVolume(q *WavefrontQueue, i, j, layerIdx int, layer VolumeLayer) (Collision, bool, error) {
	curr, next := q.curr, q.next

	rhoLayer, normal, err := layer.Height(next.Position[i][j])
	if err != nil {
		return Collision{}, false, WrapEnvironmentError(err)
	}

	d1 := rhoLayer - next.Position[i][j].Rho
	d2 := rhoLayer - curr.Position[i][j].Rho

	var iface Interface
	var fromAbove bool
	switch {
	case d1 > 0 && d2 < 0:
		iface = VolumeUpper(layer.InterfaceID())
		fromAbove = true
	case d1 < 0 && d2 > 0:
		iface = VolumeLower(layer.InterfaceID())
		fromAbove = false
	default:
		return Collision{}, false, nil
	}

	c := curr.SoundSpeed[i][j]
	xi := curr.Slowness[i][j]
	v := Slowness{Rho: c * c * xi.Rho, Theta: c * c * xi.Theta, Phi: c * c * xi.Phi}
	dot := normal.Rho*v.Rho + normal.Theta*v.Theta + normal.Phi*v.Phi

	depth := d2
	if !fromAbove {
		depth = -d2
	}
	maxDot := -math.Max(minReflectDepth, (math.Abs(depth)+math.Abs(d1)))
	if dot >= maxDot {
		dot = maxDot
	}

	var dtime float64
	if dot != 0 {
		dtime = math.Max(0, -(curr.Position[i][j].Rho-rhoLayer)*normal.Rho/dot)
	}

	pos, refinedXi, cAt := re.collisionLocation(q, i, j, dtime)
	grazing := grazingAngle(refinedXi, cAt, normal)

	if fromAbove {
		next.Counts[i][j].Upper[layerIdx]++
	} else {
		next.Counts[i][j].Lower[layerIdx]++
	}

	return Collision{
		DE: i, AZ: j, Interface: iface,
		Time: curr.T + dtime, Position: pos, Direction: refinedXi,
		SoundSpeed: cAt, Grazing: grazing,
		PathLength: next.PathLength[i][j], Counts: next.Counts[i][j].Clone(),
	}, true, nil
}

// collisionLocation computes the state at the precise collision instant
// using a centered second-order Taylor series around curr, with first and
// second derivatives estimated from the next/prev/curr ring (spec.md §4.3).
func (re *ReflectionEngine) collisionLocation(q *WavefrontQueue, i, j int, dtau float64) (Position, Slowness, float64) {
	dt := re.cfg.TimeStep
	time1 := 2 * dt
	time2 := dt * dt
	dtau2 := dtau * dtau

	curr, prev, next := q.curr, q.prev, q.next

	taylor := func(c, p, n float64) float64 {
		d1 := (n - p) / time1
		d2 := (n + p - 2*c) / time2
		return c + d1*dtau + 0.5*d2*dtau2
	}

	speed := taylor(curr.SoundSpeed[i][j], prev.SoundSpeed[i][j], next.SoundSpeed[i][j])

	pos := Position{
		Rho:   taylor(curr.Position[i][j].Rho, prev.Position[i][j].Rho, next.Position[i][j].Rho),
		Theta: taylor(curr.Position[i][j].Theta, prev.Position[i][j].Theta, next.Position[i][j].Theta),
		Phi:   taylor(curr.Position[i][j].Phi, prev.Position[i][j].Phi, next.Position[i][j].Phi),
	}

	xi := Slowness{
		Rho:   taylor(curr.Slowness[i][j].Rho, prev.Slowness[i][j].Rho, next.Slowness[i][j].Rho),
		Theta: taylor(curr.Slowness[i][j].Theta, prev.Slowness[i][j].Theta, next.Slowness[i][j].Theta),
		Phi:   taylor(curr.Slowness[i][j].Phi, prev.Slowness[i][j].Phi, next.Slowness[i][j].Phi),
	}

	return pos, xi, speed
}

// reinitRing rebuilds the four ring slots for ray (i, j) around a reflected
// collision: a fresh 1x1 mini-wavefront is seeded at (pos, reflected) and
// stepped backward/forward so the ring is again AB3-consistent (spec.md
// §4.3 "reflection_reinit").
func (re *ReflectionEngine) reinitRing(q *WavefrontQueue, i, j int, pos Position, reflected Slowness, dtime float64) error {
	seed := NewWaveState(&miniGrid, re.cfg.Frequencies, re.env, nil)
	seed.Position[0][0] = pos
	seed.Slowness[0][0] = reflected
	if err := seed.Update(); err != nil {
		return err
	}

	// seed sits at the collision instant, dtime after the step's "curr"
	// snapshot; step it back by dtime to land the corrected curr exactly
	// on that snapshot's time.
	correctedCurr, err := q.advanceRK3(seed, -dtime)
	if err != nil {
		return err
	}
	correctedPrev, err := q.advanceRK3(correctedCurr, -q.cfg.TimeStep)
	if err != nil {
		return err
	}
	correctedPast, err := q.advanceRK3(correctedPrev, -q.cfg.TimeStep)
	if err != nil {
		return err
	}
	correctedNext := q.predictAB3(correctedPast, correctedPrev, correctedCurr)
	if err := correctedNext.Update(); err != nil {
		return err
	}

	copyRaySlot(q.past, i, j, correctedPast)
	copyRaySlot(q.prev, i, j, correctedPrev)
	copyRaySlot(q.curr, i, j, correctedCurr)
	copyRaySlot(q.next, i, j, correctedNext)
	return nil
}

// copyRaySlot copies the kinematic fields (position, slowness, derivative,
// sound speed/gradient) of a 1x1 mini-wavefront into ring[i][j]. Cumulative
// scalar bookkeeping (attenuation, phase, counts, path length) is managed
// by the caller and left untouched, mirroring the original's
// reflection_copy, which likewise only copies kinematic fields.
func copyRaySlot(dst *WaveState, i, j int, src *WaveState) {
	dst.Position[i][j] = src.Position[0][0]
	dst.Slowness[i][j] = src.Slowness[0][0]
	dst.Deriv[i][j] = src.Deriv[0][0]
	dst.SoundSpeed[i][j] = src.SoundSpeed[0][0]
	dst.SoundGrad[i][j] = src.SoundGrad[0][0]
}

// reflect mirrors xi about a unit normal (R = I - 2(I.n)n) and renormalizes
// the result to ||xi|| = 1/c, guarding against drift when normal is only
// approximately unit (spec.md §4.3: "reflect direction... renormalize xi
// by 1/c").
func reflect(xi, normal Slowness, c float64) Slowness {
	dot := xi.Rho*normal.Rho + xi.Theta*normal.Theta + xi.Phi*normal.Phi
	r := Slowness{
		Rho:   xi.Rho - 2*dot*normal.Rho,
		Theta: xi.Theta - 2*dot*normal.Theta,
		Phi:   xi.Phi - 2*dot*normal.Phi,
	}
	if n := r.Norm(); n != 0 {
		scale := (1 / c) / n
		r.Rho *= scale
		r.Theta *= scale
		r.Phi *= scale
	}
	return r
}

// grazingAngle computes arcsin(-dot/c), the angle (rad) between the ray's
// propagation direction and the boundary's tangent plane, where dot is the
// normal's dot product with dr/dt = c^2*xi. Uses the refined
// post-localization direction for both surface and bottom collisions
// (spec.md §9 resolves the source's surface/bottom asymmetry this way).
func grazingAngle(xi Slowness, c float64, normal Slowness) float64 {
	v := Slowness{Rho: c * c * xi.Rho, Theta: c * c * xi.Theta, Phi: c * c * xi.Phi}
	dot := normal.Rho*v.Rho + normal.Theta*v.Theta + normal.Phi*v.Phi
	ratio := -dot / c
	if ratio > 1 {
		ratio = 1
	}
	if ratio < -1 {
		ratio = -1
	}
	return math.Asin(ratio)
}

func orZero(s []float64, i int) float64 {
	if i < len(s) {
		return s[i]
	}
	return 0
}
