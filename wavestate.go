package waveq3d

import (
	"math"

	"github.com/samber/lo"
)

// RayDerivative holds the time derivatives of position and slowness for one
// grid point, computed from the Hamiltonian ray equations (spec.md §4.1).
type RayDerivative struct {
	DPos Position // d(rho,theta,phi)/dt, stored as a Position-shaped delta
	DXi  Slowness // d(xi_rho,xi_theta,xi_phi)/dt
}

// WaveState carries one time slice of the wavefront: for every (i, j) in a
// shared RayGrid it holds position, slowness, their time derivatives, sound
// speed and gradient, cumulative attenuation/phase per frequency, path
// length, and interaction counts. A WaveState is logically immutable once
// Update has been called; callers treat it as a snapshot at time T.
type WaveState struct {
	Grid  *RayGrid
	Freq  Frequencies
	Env   *Environment
	NumUp int // number of volume layers, for Upper/Lower count sizing

	T float64 // propagation time of this snapshot

	Position [][]Position
	Slowness [][]Slowness
	Deriv    [][]RayDerivative

	SoundSpeed [][]float64
	SoundGrad  [][]Slowness

	// Attenuation[i][j] and Phase[i][j] are length-F slices, cumulative
	// over the run. Attenuation is dB (cumulative); Phase is wrapped to
	// (-pi, pi].
	Attenuation [][][]float64
	Phase       [][][]float64

	StepDistance [][]float64 // distance traveled this step
	PathLength   [][]float64 // cumulative path length

	Counts [][]Counts
	OnEdge [][]bool
	OnFold [][]bool

	// Targets and Distance2 back the CPA search of EigenrayExtractor.
	// Distance2[i][j][t] is the squared distance from grid point (i,j)
	// to Targets[t] at this time slice. Nil when no targets are tracked.
	Targets   []Target
	Distance2 [][][]float64

	// targetSinTheta caches sin(theta) per target, the same speed-up the
	// original wave_front::compute_target_distance uses to avoid a second
	// transcendental call per grid point per target.
	targetSinTheta []float64
}

// NewWaveState allocates a WaveState buffer for the given grid/frequencies/
// environment/targets. The buffer's contents are undefined until InitWave
// or a reflection reinit populates it.
func NewWaveState(grid *RayGrid, freq Frequencies, env *Environment, targets []Target) *WaveState {
	nDE, nAZ := grid.NumDE(), grid.NumAZ()
	ws := &WaveState{
		Grid:    grid,
		Freq:    freq,
		Env:     env,
		NumUp:   len(env.Volumes),
		Targets: targets,
	}
	ws.Position = make2DPosition(nDE, nAZ)
	ws.Slowness = make2DSlowness(nDE, nAZ)
	ws.Deriv = make([][]RayDerivative, nDE)
	ws.SoundSpeed = make2DFloat(nDE, nAZ)
	ws.SoundGrad = make2DSlowness(nDE, nAZ)
	ws.StepDistance = make2DFloat(nDE, nAZ)
	ws.PathLength = make2DFloat(nDE, nAZ)
	ws.OnEdge = make([][]bool, nDE)
	ws.OnFold = make([][]bool, nDE)
	ws.Counts = make([][]Counts, nDE)
	ws.Attenuation = make([][][]float64, nDE)
	ws.Phase = make([][][]float64, nDE)

	F := freq.Len()
	nUp := len(env.Volumes)
	for i := 0; i < nDE; i++ {
		ws.Deriv[i] = make([]RayDerivative, nAZ)
		ws.OnEdge[i] = make([]bool, nAZ)
		ws.OnFold[i] = make([]bool, nAZ)
		ws.Counts[i] = make([]Counts, nAZ)
		ws.Attenuation[i] = make([][]float64, nAZ)
		ws.Phase[i] = make([][]float64, nAZ)
		for j := 0; j < nAZ; j++ {
			ws.Attenuation[i][j] = make([]float64, F)
			ws.Phase[i][j] = make([]float64, F)
			ws.Counts[i][j] = Counts{Upper: make([]int, nUp), Lower: make([]int, nUp)}
		}
	}

	if len(targets) > 0 {
		ws.Distance2 = make([][][]float64, nDE)
		for i := 0; i < nDE; i++ {
			ws.Distance2[i] = make([][]float64, nAZ)
			for j := 0; j < nAZ; j++ {
				ws.Distance2[i][j] = make([]float64, len(targets))
			}
		}
		ws.targetSinTheta = make([]float64, len(targets))
		for t, tgt := range targets {
			ws.targetSinTheta[t] = math.Sin(tgt.Position.Theta)
		}
	}

	return ws
}

// InitWave sets position = source for every (i,j), and slowness from the
// unit (east,north,up) launch direction divided by the sound speed sampled
// at source.
func (ws *WaveState) InitWave(source Position) error {
	c, _, err := ws.Env.Profile.SoundSpeed([]Position{source})
	if err != nil {
		return WrapEnvironmentError(err)
	}
	c0 := c[0]

	for i := 0; i < ws.Grid.NumDE(); i++ {
		for j := 0; j < ws.Grid.NumAZ(); j++ {
			ws.Position[i][j] = source
			dRho, dTheta, dPhi := ws.Grid.LaunchDirection(i, j)
			ws.Slowness[i][j] = Slowness{Rho: dRho / c0, Theta: dTheta / c0, Phi: dPhi / c0}
		}
	}
	return nil
}

// Update queries the environment at every grid point for sound speed and
// gradient, accumulates the step's attenuation, writes the ray-equation
// derivative fields, and (if targets are present) updates squared distances
// to each target using the small-angle haversine expansion (spec.md §4.1).
func (ws *WaveState) Update() error {
	nDE, nAZ := ws.Grid.NumDE(), ws.Grid.NumAZ()
	n := nDE * nAZ
	flat := make([]Position, 0, n)
	for i := 0; i < nDE; i++ {
		flat = append(flat, ws.Position[i]...)
	}

	c, grad, err := ws.Env.Profile.SoundSpeed(flat)
	if err != nil {
		return WrapEnvironmentError(err)
	}

	k := 0
	for i := 0; i < nDE; i++ {
		for j := 0; j < nAZ; j++ {
			ws.SoundSpeed[i][j] = c[k]
			ws.SoundGrad[i][j] = grad[k]
			ws.Deriv[i][j] = rayEquations(ws.Position[i][j], ws.Slowness[i][j], c[k], grad[k])
			k++
		}
	}

	if err := ws.accumulateAttenuation(flat); err != nil {
		return err
	}

	if ws.Targets != nil {
		ws.computeTargetDistance()
	}
	return nil
}

// accumulateAttenuation queries the environment's Attenuation facade for
// the dB loss accumulated over this step's StepDistance at every grid
// point, and adds it into the cumulative per-frequency Attenuation vector
// (spec.md §4.1, §6: "attenuation(positions, frequencies, step_distance)
// -> attn[F]: additional dB attenuation accumulated over the step").
func (ws *WaveState) accumulateAttenuation(flat []Position) error {
	nDE, nAZ := ws.Grid.NumDE(), ws.Grid.NumAZ()
	dist := make([]float64, 0, len(flat))
	for i := 0; i < nDE; i++ {
		dist = append(dist, ws.StepDistance[i]...)
	}

	attn, err := ws.Env.Profile.Attenuation(flat, ws.Freq, dist)
	if err != nil {
		return WrapEnvironmentError(err)
	}

	k := 0
	F := ws.Freq.Len()
	for i := 0; i < nDE; i++ {
		for j := 0; j < nAZ; j++ {
			row := attn[k]
			for f := 0; f < F; f++ {
				ws.Attenuation[i][j][f] += row[f]
			}
			k++
		}
	}
	return nil
}

// rayEquations evaluates the Hamiltonian ray-tracing derivatives of
// spec.md §4.1 at one grid point.
func rayEquations(pos Position, xi Slowness, c float64, gradC Slowness) RayDerivative {
	rho := pos.Rho
	sinT, _ := math.Sincos(pos.Theta)
	cot := math.Cos(pos.Theta) / sinT

	c2 := c * c

	dRho := c2 * xi.Rho
	dTheta := c2 * xi.Theta / rho
	dPhi := c2 * xi.Phi / (rho * sinT)

	dXiRho := -gradC.Rho/c + (c2/rho)*(xi.Theta*xi.Theta+xi.Phi*xi.Phi)
	dXiTheta := -gradC.Theta/(c*rho) - (c2/rho)*(xi.Rho*xi.Theta-xi.Phi*xi.Phi*cot)
	dXiPhi := -gradC.Phi/(c*rho*sinT) - (c2/rho)*xi.Phi*(xi.Rho+xi.Theta*cot)

	return RayDerivative{
		DPos: Position{Rho: dRho, Theta: dTheta, Phi: dPhi},
		DXi:  Slowness{Rho: dXiRho, Theta: dXiTheta, Phi: dXiPhi},
	}
}

// computeTargetDistance updates Distance2 using the small-angle haversine
// expansion sin^2(d/2) ~= (d/2)^2, keeping the CPA inner loop free of
// transcendental calls.
func (ws *WaveState) computeTargetDistance() {
	for i := 0; i < ws.Grid.NumDE(); i++ {
		for j := 0; j < ws.Grid.NumAZ(); j++ {
			p := ws.Position[i][j]
			sinP := math.Sin(p.Theta)
			for t, tgt := range ws.Targets {
				dt := (p.Theta - tgt.Position.Theta) / 2
				dp := (p.Phi - tgt.Position.Phi) / 2
				r1, r2 := p.Rho, tgt.Position.Rho
				bracket := dt*dt + sinP*ws.targetSinTheta[t]*dp*dp
				ws.Distance2[i][j][t] = r1*r1 + r2*r2 - 2*r1*r2*(1-2*bracket)
			}
		}
	}
}

// FindEdges marks the first and last DE row as on_edge, and scans each AZ
// column for a local rho extremum in the DE direction, bracketing ray
// families (spec.md §4.1, §4.4). See edges.go for the caustic-detection
// counterpart that runs across wavefront slices.
func (ws *WaveState) FindEdges() {
	nDE, nAZ := ws.Grid.NumDE(), ws.Grid.NumAZ()
	if nDE == 1 {
		for j := 0; j < nAZ; j++ {
			ws.OnFold[0][j] = true
			ws.OnEdge[0][j] = true
		}
		return
	}
	for j := 0; j < nAZ; j++ {
		ws.OnEdge[0][j] = true
		ws.OnEdge[nDE-1][j] = true
	}
	for j := 0; j < nAZ; j++ {
		for i := 1; i < nDE-1; i++ {
			rPrev := ws.Position[i-1][j].Rho
			rCurr := ws.Position[i][j].Rho
			rNext := ws.Position[i+1][j].Rho
			isMax := rCurr >= rPrev && rCurr >= rNext
			isMin := rCurr <= rPrev && rCurr <= rNext
			if isMax || isMin {
				ws.OnFold[i][j] = true
				ws.OnEdge[i][j] = true
				// bracket whichever neighbor shares the turning behavior
				if rPrev <= rCurr == isMax {
					ws.OnEdge[i-1][j] = true
				}
				if rNext <= rCurr == isMax {
					ws.OnEdge[i+1][j] = true
				}
			}
		}
	}
}

// maxBounceCount returns the largest cumulative bounce count (surface +
// bottom) across the grid, computed with lo.Max. EdgeDetector does not
// call it; its caustic test compares per-ray counts directly.
func maxBounceCount(ws *WaveState) int {
	vals := make([]int, 0, ws.Grid.NumDE()*ws.Grid.NumAZ())
	for i := range ws.Counts {
		for j := range ws.Counts[i] {
			c := ws.Counts[i][j]
			vals = append(vals, c.Surface+c.Bottom)
		}
	}
	if len(vals) == 0 {
		return 0
	}
	return lo.Max(vals)
}

func make2DFloat(nDE, nAZ int) [][]float64 {
	out := make([][]float64, nDE)
	for i := range out {
		out[i] = make([]float64, nAZ)
	}
	return out
}

func make2DPosition(nDE, nAZ int) [][]Position {
	out := make([][]Position, nDE)
	for i := range out {
		out[i] = make([]Position, nAZ)
	}
	return out
}

func make2DSlowness(nDE, nAZ int) [][]Slowness {
	out := make([][]Slowness, nDE)
	for i := range out {
		out[i] = make([]Slowness, nAZ)
	}
	return out
}

// wrapPhase wraps a raw phase accumulator to (-pi, pi], per spec.md §8.
func wrapPhase(p float64) float64 {
	for p > math.Pi {
		p -= 2 * math.Pi
	}
	for p <= -math.Pi {
		p += 2 * math.Pi
	}
	return p
}
