package waveq3d

import (
	"math"
	"testing"
)

// fakeProfile is a minimal isovelocity Profile plus a fixed per-step dB
// attenuation, used to exercise WaveState without depending on the ocean
// package (which imports waveq3d, so cannot be imported back from here).
type fakeProfile struct {
	c    float64
	attn float64
}

func (p fakeProfile) SoundSpeed(positions []Position) ([]float64, []Slowness, error) {
	c := make([]float64, len(positions))
	grad := make([]Slowness, len(positions))
	for i := range positions {
		c[i] = p.c
	}
	return c, grad, nil
}

func (p fakeProfile) Attenuation(positions []Position, freq Frequencies, stepDistance []float64) ([][]float64, error) {
	out := make([][]float64, len(positions))
	for i := range out {
		row := make([]float64, freq.Len())
		for f := range row {
			row[f] = p.attn
		}
		out[i] = row
	}
	return out, nil
}

func newTestEnv(c, attn float64) *Environment {
	return &Environment{Profile: fakeProfile{c: c, attn: attn}}
}

func TestRayEquationsIsovelocityZeroGradient(t *testing.T) {
	c := 1500.0
	pos := Position{Rho: EarthRadius - 1000, Theta: 1.0, Phi: 0}
	xi := Slowness{Rho: 0.1 / c, Theta: 0.2 / c, Phi: 0.3 / c}

	d := rayEquations(pos, xi, c, Slowness{})

	if math.Abs(d.DPos.Rho-c*c*xi.Rho) > 1e-9 {
		t.Fatalf("dRho = %v, want %v", d.DPos.Rho, c*c*xi.Rho)
	}
	wantTheta := c * c * xi.Theta / pos.Rho
	if math.Abs(d.DPos.Theta-wantTheta) > 1e-9 {
		t.Fatalf("dTheta = %v, want %v", d.DPos.Theta, wantTheta)
	}
	// zero gradient: dXi terms reduce to the centripetal/coriolis-like terms only.
	if d.DXi.Rho == 0 {
		t.Fatalf("dXiRho should be nonzero from the (xi_theta^2+xi_phi^2) term")
	}
}

func TestWaveStateInitWaveNormalizesSlowness(t *testing.T) {
	grid, err := NewRayGrid([]float64{-20, 0, 20}, []float64{0, 45})
	if err != nil {
		t.Fatalf("NewRayGrid: %v", err)
	}
	freq, _ := NewFrequencies([]float64{1000})
	env := newTestEnv(1500, 0)
	ws := NewWaveState(&grid, freq, env, nil)

	source := Position{Rho: EarthRadius - 500, Theta: 1.0, Phi: 0}
	if err := ws.InitWave(source); err != nil {
		t.Fatalf("InitWave: %v", err)
	}

	for i := 0; i < grid.NumDE(); i++ {
		for j := 0; j < grid.NumAZ(); j++ {
			if ws.Position[i][j] != source {
				t.Fatalf("Position[%d][%d] = %+v, want source", i, j, ws.Position[i][j])
			}
			n := ws.Slowness[i][j].Norm()
			if math.Abs(n-1/1500.0) > 1e-12 {
				t.Fatalf("||xi||[%d][%d] = %v, want %v", i, j, n, 1/1500.0)
			}
		}
	}
}

func TestWaveStateUpdateAccumulatesAttenuation(t *testing.T) {
	grid, _ := NewRayGrid([]float64{0}, []float64{0})
	freq, _ := NewFrequencies([]float64{1000})
	env := newTestEnv(1500, 2.5)
	ws := NewWaveState(&grid, freq, env, nil)
	ws.StepDistance[0][0] = 100 // pretend a step already moved the ray 100 m

	if err := ws.Update(); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if ws.Attenuation[0][0][0] != 2.5 {
		t.Fatalf("Attenuation after one Update = %v, want 2.5", ws.Attenuation[0][0][0])
	}

	if err := ws.Update(); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if ws.Attenuation[0][0][0] != 5.0 {
		t.Fatalf("Attenuation after two Updates = %v, want 5.0 (cumulative)", ws.Attenuation[0][0][0])
	}
}

func TestFindEdgesSingleDERowMarksAllEdges(t *testing.T) {
	grid, _ := NewRayGrid([]float64{0}, []float64{0, 10, 20})
	freq, _ := NewFrequencies([]float64{1000})
	env := newTestEnv(1500, 0)
	ws := NewWaveState(&grid, freq, env, nil)

	ws.FindEdges()
	for j := 0; j < grid.NumAZ(); j++ {
		if !ws.OnEdge[0][j] || !ws.OnFold[0][j] {
			t.Fatalf("column %d: OnEdge=%v OnFold=%v, want both true for a single-DE fan", j, ws.OnEdge[0][j], ws.OnFold[0][j])
		}
	}
}

func TestFindEdgesMarksFirstAndLastRow(t *testing.T) {
	grid, _ := NewRayGrid([]float64{-10, -5, 0, 5, 10}, []float64{0})
	freq, _ := NewFrequencies([]float64{1000})
	env := newTestEnv(1500, 0)
	ws := NewWaveState(&grid, freq, env, nil)
	// flat rho: every interior point ties its neighbors; only the first
	// and last rows are checked below.
	for i := 0; i < grid.NumDE(); i++ {
		ws.Position[i][0] = Position{Rho: EarthRadius - 1000}
	}

	ws.FindEdges()
	if !ws.OnEdge[0][0] || !ws.OnEdge[grid.NumDE()-1][0] {
		t.Fatalf("first/last DE row must always be on_edge")
	}
}

func TestWrapPhaseStaysInRange(t *testing.T) {
	cases := []float64{0, math.Pi, -math.Pi, 3 * math.Pi, -3 * math.Pi, 100 * math.Pi}
	for _, p := range cases {
		w := wrapPhase(p)
		if w > math.Pi || w <= -math.Pi {
			t.Fatalf("wrapPhase(%v) = %v, out of (-pi, pi]", p, w)
		}
	}
}
