package waveq3d

import "math"

// WavefrontQueue advances a fan of acoustic rays by repeatedly stepping a
// four-deep ring of WaveState snapshots {past, prev, curr, next} with an
// Adams-Bashforth-3 predictor bootstrapped by Runge-Kutta-3 (spec.md §4.2).
// It is the central orchestrator: construction, Time, Step, listener
// registration, and Close are its public surface.
type WavefrontQueue struct {
	cfg Config
	env *Environment

	past, prev, curr, next *WaveState

	reflection *ReflectionEngine
	edges      *EdgeDetector
	eigenrays  *EigenrayExtractor
	eigenverbs *EigenverbEmitter

	eigenrayListeners  []EigenrayListener
	eigenverbListeners []EigenverbListener
	wavefrontListeners []WavefrontListener

	runID string

	abort  bool
	closed bool
}

// NewWavefrontQueue constructs a propagation run: allocates the four ring
// buffers, launches the wavefront from source, and bootstraps past/prev/next
// via the RK3 procedure of spec.md §4.2.
func NewWavefrontQueue(cfg Config, env *Environment, source Position, targets []Target, runID string) (*WavefrontQueue, error) {
	if env.Profile == nil {
		return nil, ErrNilProfile
	}
	if env.Surface == nil {
		return nil, ErrNilSurface
	}
	if env.Bottom == nil {
		return nil, ErrNilBottom
	}

	q := &WavefrontQueue{
		cfg:        cfg,
		env:        env,
		reflection: NewReflectionEngine(cfg, env),
		edges:      NewEdgeDetector(cfg),
		eigenrays:  NewEigenrayExtractor(cfg),
		eigenverbs: NewEigenverbEmitter(cfg),
		runID:      runID,
	}

	curr := NewWaveState(&cfg.RayGrid, cfg.Frequencies, env, targets)
	if err := curr.InitWave(source); err != nil {
		return nil, err
	}
	curr.T = 0
	if err := curr.Update(); err != nil {
		return nil, err
	}

	prev, err := q.advanceRK3(curr, -cfg.TimeStep)
	if err != nil {
		return nil, err
	}
	prev.T = -cfg.TimeStep

	past, err := q.advanceRK3(prev, -cfg.TimeStep)
	if err != nil {
		return nil, err
	}
	past.T = -2 * cfg.TimeStep

	next := q.predictAB3(past, prev, curr)
	next.T = cfg.TimeStep
	if err := next.Update(); err != nil {
		return nil, err
	}

	q.past, q.prev, q.curr, q.next = past, prev, curr, next
	return q, nil
}

// AddEigenrayListener registers l to receive eigenrays extracted in every
// subsequent Step.
func (q *WavefrontQueue) AddEigenrayListener(l EigenrayListener) {
	q.eigenrayListeners = append(q.eigenrayListeners, l)
}

// AddEigenverbListener registers l to receive eigenverbs emitted in every
// subsequent Step.
func (q *WavefrontQueue) AddEigenverbListener(l EigenverbListener) {
	q.eigenverbListeners = append(q.eigenverbListeners, l)
}

// AddWavefrontListener registers l as an optional diagnostic sink.
func (q *WavefrontQueue) AddWavefrontListener(l WavefrontListener) {
	q.wavefrontListeners = append(q.wavefrontListeners, l)
}

// Time returns the propagation time of the current snapshot, t_curr.
func (q *WavefrontQueue) Time() float64 { return q.curr.T }

// Current returns the current wavefront snapshot, read-only by convention.
func (q *WavefrontQueue) Current() *WaveState { return q.curr }

// Abort requests that Step stop advancing after the in-progress step, if
// any, completes; the cooperative check happens at the top of the next
// Step call (spec.md §5).
func (q *WavefrontQueue) Abort() { q.abort = true }

// Close marks the queue closed; subsequent Step calls return ErrQueueClosed.
func (q *WavefrontQueue) Close() { q.closed = true }

// Step advances the wavefront by one time_step, in the order mandated by
// spec.md §4.2 and §5: predict, update environment, reflect, find edges,
// detect caustics, extract eigenrays, emit eigenverbs, rotate.
func (q *WavefrontQueue) Step() error {
	if q.closed {
		return ErrQueueClosed
	}
	if q.abort {
		return nil
	}

	next := q.next
	next.T = q.curr.T + q.cfg.TimeStep

	// 1. predictor for position and slowness from the ring's derivative
	// history, carrying forward cumulative fields from curr.
	q.predictAB3Into(next, q.past, q.prev, q.curr)

	// 2. environment sample, derivatives, target distances.
	if err := next.Update(); err != nil {
		return err
	}

	// 3. reflection handling: collisions, localization, ring reinit.
	collisions, err := q.reflection.Process(q)
	if err != nil {
		return err
	}

	// 4. edge/fold marking on the new slice.
	next.FindEdges()

	// 5. caustic detection across prev/curr/next.
	q.edges.DetectCaustics(q.prev, q.curr, q.next)

	// 6. eigenray extraction.
	rays := q.eigenrays.Scan(q.prev, q.curr, q.next)
	for _, r := range rays {
		for _, l := range q.eigenrayListeners {
			l.AddEigenray(r.TargetRow, r.TargetCol, r.Ray, q.runID)
		}
	}

	// 7. eigenverb emission, one per recorded collision.
	for _, c := range collisions {
		verb, ok := q.eigenverbs.Emit(q.next, c)
		if !ok {
			continue
		}
		for _, l := range q.eigenverbListeners {
			l.AddEigenverb(verb, c.Interface)
		}
	}

	for _, l := range q.wavefrontListeners {
		l.OnWavefront(next.T, next)
	}

	// 8. rotate the ring: past<-prev, prev<-curr, curr<-next, next<-past buffer.
	q.past, q.prev, q.curr, q.next = q.prev, q.curr, q.next, q.past

	return nil
}

// predictAB3 allocates a fresh WaveState and fills it via predictAB3Into,
// used by the bootstrap where no buffer yet exists to reuse.
func (q *WavefrontQueue) predictAB3(past, prev, curr *WaveState) *WaveState {
	next := NewWaveState(&q.cfg.RayGrid, q.cfg.Frequencies, q.env, curr.Targets)
	q.predictAB3Into(next, past, prev, curr)
	return next
}

// predictAB3Into writes the Adams-Bashforth-3 predictor of spec.md §4.2
//
//	x_{n+1} = x_n + (dt/12)(23 f_n - 16 f_{n-1} + 5 f_{n-2})
//
// for position and slowness into next, and carries forward the cumulative
// attenuation/phase/counts/path-length fields from curr.
func (q *WavefrontQueue) predictAB3Into(next, past, prev, curr *WaveState) {
	dt := q.cfg.TimeStep
	nDE, nAZ := curr.Grid.NumDE(), curr.Grid.NumAZ()
	for i := 0; i < nDE; i++ {
		for j := 0; j < nAZ; j++ {
			fn := curr.Deriv[i][j]
			fn1 := prev.Deriv[i][j]
			fn2 := past.Deriv[i][j]

			next.Position[i][j] = Position{
				Rho:   curr.Position[i][j].Rho + (dt/12)*(23*fn.DPos.Rho-16*fn1.DPos.Rho+5*fn2.DPos.Rho),
				Theta: curr.Position[i][j].Theta + (dt/12)*(23*fn.DPos.Theta-16*fn1.DPos.Theta+5*fn2.DPos.Theta),
				Phi:   curr.Position[i][j].Phi + (dt/12)*(23*fn.DPos.Phi-16*fn1.DPos.Phi+5*fn2.DPos.Phi),
			}
			next.Slowness[i][j] = Slowness{
				Rho:   curr.Slowness[i][j].Rho + (dt/12)*(23*fn.DXi.Rho-16*fn1.DXi.Rho+5*fn2.DXi.Rho),
				Theta: curr.Slowness[i][j].Theta + (dt/12)*(23*fn.DXi.Theta-16*fn1.DXi.Theta+5*fn2.DXi.Theta),
				Phi:   curr.Slowness[i][j].Phi + (dt/12)*(23*fn.DXi.Phi-16*fn1.DXi.Phi+5*fn2.DXi.Phi),
			}

			dist := distance(curr.Position[i][j], next.Position[i][j])
			next.StepDistance[i][j] = dist
			next.PathLength[i][j] = curr.PathLength[i][j] + dist
			next.Counts[i][j] = curr.Counts[i][j].Clone()

			F := curr.Freq.Len()
			next.Attenuation[i][j] = make([]float64, F)
			next.Phase[i][j] = make([]float64, F)
			copy(next.Attenuation[i][j], curr.Attenuation[i][j])
			for f := 0; f < F; f++ {
				next.Phase[i][j][f] = curr.Phase[i][j][f]
			}
		}
	}
}

// advanceRK3 integrates one grid (all of a WaveState's rays) forward by dt
// using classic third-order Runge-Kutta, querying the environment at each
// stage. A negative dt integrates backward, used by the bootstrap.
func (q *WavefrontQueue) advanceRK3(ws *WaveState, dt float64) (*WaveState, error) {
	nDE, nAZ := ws.Grid.NumDE(), ws.Grid.NumAZ()

	stage := func(pos [][]Position, xi [][]Slowness) ([][]RayDerivative, error) {
		flat := make([]Position, 0, nDE*nAZ)
		for i := 0; i < nDE; i++ {
			flat = append(flat, pos[i]...)
		}
		c, grad, err := ws.Env.Profile.SoundSpeed(flat)
		if err != nil {
			return nil, WrapEnvironmentError(err)
		}
		out := make([][]RayDerivative, nDE)
		k := 0
		for i := 0; i < nDE; i++ {
			out[i] = make([]RayDerivative, nAZ)
			for j := 0; j < nAZ; j++ {
				out[i][j] = rayEquations(pos[i][j], xi[i][j], c[k], grad[k])
				k++
			}
		}
		return out, nil
	}

	k1, err := stage(ws.Position, ws.Slowness)
	if err != nil {
		return nil, err
	}

	pos2 := make2DPosition(nDE, nAZ)
	xi2 := make2DSlowness(nDE, nAZ)
	for i := 0; i < nDE; i++ {
		for j := 0; j < nAZ; j++ {
			pos2[i][j] = addPos(ws.Position[i][j], k1[i][j].DPos, dt/2)
			xi2[i][j] = addXi(ws.Slowness[i][j], k1[i][j].DXi, dt/2)
		}
	}
	k2, err := stage(pos2, xi2)
	if err != nil {
		return nil, err
	}

	pos3 := make2DPosition(nDE, nAZ)
	xi3 := make2DSlowness(nDE, nAZ)
	for i := 0; i < nDE; i++ {
		for j := 0; j < nAZ; j++ {
			p := addPos(ws.Position[i][j], k1[i][j].DPos, -dt)
			p = addPos(p, k2[i][j].DPos, 2*dt)
			pos3[i][j] = p
			x := addXi(ws.Slowness[i][j], k1[i][j].DXi, -dt)
			x = addXi(x, k2[i][j].DXi, 2*dt)
			xi3[i][j] = x
		}
	}
	k3, err := stage(pos3, xi3)
	if err != nil {
		return nil, err
	}

	out := NewWaveState(ws.Grid, ws.Freq, ws.Env, ws.Targets)
	for i := 0; i < nDE; i++ {
		for j := 0; j < nAZ; j++ {
			p := ws.Position[i][j]
			x := ws.Slowness[i][j]
			out.Position[i][j] = Position{
				Rho:   p.Rho + (dt/6)*(k1[i][j].DPos.Rho+4*k2[i][j].DPos.Rho+k3[i][j].DPos.Rho),
				Theta: p.Theta + (dt/6)*(k1[i][j].DPos.Theta+4*k2[i][j].DPos.Theta+k3[i][j].DPos.Theta),
				Phi:   p.Phi + (dt/6)*(k1[i][j].DPos.Phi+4*k2[i][j].DPos.Phi+k3[i][j].DPos.Phi),
			}
			out.Slowness[i][j] = Slowness{
				Rho:   x.Rho + (dt/6)*(k1[i][j].DXi.Rho+4*k2[i][j].DXi.Rho+k3[i][j].DXi.Rho),
				Theta: x.Theta + (dt/6)*(k1[i][j].DXi.Theta+4*k2[i][j].DXi.Theta+k3[i][j].DXi.Theta),
				Phi:   x.Phi + (dt/6)*(k1[i][j].DXi.Phi+4*k2[i][j].DXi.Phi+k3[i][j].DXi.Phi),
			}
			out.Counts[i][j] = ws.Counts[i][j].Clone()
			stepDist := math.Abs(distance(ws.Position[i][j], out.Position[i][j]))
			out.StepDistance[i][j] = stepDist
			out.PathLength[i][j] = ws.PathLength[i][j] + stepDist
			copy(out.Attenuation[i][j], ws.Attenuation[i][j])
			copy(out.Phase[i][j], ws.Phase[i][j])
		}
	}
	if err := out.Update(); err != nil {
		return nil, err
	}
	return out, nil
}

func addPos(p Position, d Position, scale float64) Position {
	return Position{Rho: p.Rho + d.Rho*scale, Theta: p.Theta + d.Theta*scale, Phi: p.Phi + d.Phi*scale}
}

func addXi(x Slowness, d Slowness, scale float64) Slowness {
	return Slowness{Rho: x.Rho + d.Rho*scale, Theta: x.Theta + d.Theta*scale, Phi: x.Phi + d.Phi*scale}
}

// distance returns the straight-line distance (m) between two spherical
// positions, used for path-length bookkeeping and attenuation queries.
func distance(a, b Position) float64 {
	ax, ay, az := sphericalToCartesian(a)
	bx, by, bz := sphericalToCartesian(b)
	dx, dy, dz := ax-bx, ay-by, az-bz
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

func sphericalToCartesian(p Position) (x, y, z float64) {
	sinT := math.Sin(p.Theta)
	cosT := math.Cos(p.Theta)
	x = p.Rho * sinT * math.Cos(p.Phi)
	y = p.Rho * sinT * math.Sin(p.Phi)
	z = p.Rho * cosT
	return
}
