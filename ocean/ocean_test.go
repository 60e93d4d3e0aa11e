package ocean

import (
	"math"
	"testing"

	"github.com/sixy6e/waveq3d"
)

func freq(hz ...float64) waveq3d.Frequencies {
	f, err := waveq3d.NewFrequencies(hz)
	if err != nil {
		panic(err)
	}
	return f
}

func TestIsovelocityProfileConstant(t *testing.T) {
	p := NewIsovelocityProfile(1500)
	positions := []waveq3d.Position{
		{Rho: waveq3d.EarthRadius - 100, Theta: 1, Phi: 0},
		{Rho: waveq3d.EarthRadius - 500, Theta: 1.1, Phi: 0.2},
	}
	c, grad, err := p.SoundSpeed(positions)
	if err != nil {
		t.Fatalf("SoundSpeed: %v", err)
	}
	for i := range c {
		if c[i] != 1500 {
			t.Fatalf("c[%d] = %v, want 1500", i, c[i])
		}
		if grad[i] != (waveq3d.Slowness{}) {
			t.Fatalf("grad[%d] = %+v, want zero", i, grad[i])
		}
	}
}

func TestMunkProfileAxisIsLocalMinimum(t *testing.T) {
	p := NewMunkProfile()
	axis := waveq3d.Position{Rho: waveq3d.EarthRadius - p.AxisDepth}
	above := waveq3d.Position{Rho: waveq3d.EarthRadius - (p.AxisDepth - 200)}
	below := waveq3d.Position{Rho: waveq3d.EarthRadius - (p.AxisDepth + 200)}

	c, _, _ := p.SoundSpeed([]waveq3d.Position{axis, above, below})
	if c[1] <= c[0] || c[2] <= c[0] {
		t.Fatalf("axis speed %v should be below both shoulders %v, %v", c[0], c[1], c[2])
	}
}

func TestFlatSurfaceHeightAndNormal(t *testing.T) {
	b := NewFlatSurface(nil)
	rho, normal, err := b.Height(waveq3d.Position{Rho: waveq3d.EarthRadius - 50})
	if err != nil {
		t.Fatalf("Height: %v", err)
	}
	if rho != waveq3d.EarthRadius {
		t.Fatalf("rho = %v, want EarthRadius", rho)
	}
	if normal.Rho >= 0 {
		t.Fatalf("surface normal.Rho = %v, want negative (into the water)", normal.Rho)
	}
}

func TestFlatBottomReflectLossPositive(t *testing.T) {
	b := NewFlatBottom(200, nil)
	amp, phase, err := b.ReflectLoss(waveq3d.Position{}, freq(300), math.Pi/6)
	if err != nil {
		t.Fatalf("ReflectLoss: %v", err)
	}
	if amp[0] <= 0 {
		t.Fatalf("amplitude loss = %v, want positive dB", amp[0])
	}
	if math.IsNaN(phase[0]) {
		t.Fatalf("phase is NaN")
	}
}

func TestRayleighBottomGrazesToNormalIncidence(t *testing.T) {
	model := NewRayleighBottom(Sand)
	f := freq(300)

	grazingAngles := []float64{0.05, math.Pi / 4, math.Pi / 2}
	var losses []float64
	for _, g := range grazingAngles {
		amp, _, err := model.Loss(waveq3d.Position{}, f, g)
		if err != nil {
			t.Fatalf("Loss: %v", err)
		}
		losses = append(losses, amp[0])
	}
	for _, l := range losses {
		if l < 0 {
			t.Fatalf("reflection loss %v should never be negative", l)
		}
	}
}

func TestGriddedBoundaryInterpolatesWithinRange(t *testing.T) {
	thetas := []float64{0.8, 0.9, 1.0, 1.1, 1.2}
	phis := []float64{-0.1, -0.05, 0, 0.05, 0.1}
	depth := make([][]float64, len(thetas))
	for i := range depth {
		depth[i] = make([]float64, len(phis))
		for j := range depth[i] {
			depth[i][j] = 200 + 10*float64(i) + 5*float64(j)
		}
	}
	g, err := NewGriddedBoundary(thetas, phis, depth, NewRayleighBottom(Clay))
	if err != nil {
		t.Fatalf("NewGriddedBoundary: %v", err)
	}
	rho, normal, err := g.Height(waveq3d.Position{Theta: 1.0, Phi: 0})
	if err != nil {
		t.Fatalf("Height: %v", err)
	}
	if rho <= waveq3d.EarthRadius-260 || rho >= waveq3d.EarthRadius-190 {
		t.Fatalf("rho = %v out of expected bathymetry range", rho)
	}
	if normal.Rho <= 0 {
		t.Fatalf("bottom normal.Rho = %v, want positive (into the water)", normal.Rho)
	}
}

func TestLambertScatteringPeaksAtNormalIncidence(t *testing.T) {
	l := NewLambertScattering(-27)
	f := freq(300)

	grazing, err := l.Strength(waveq3d.InterfaceBottom, waveq3d.Position{}, f, math.Pi/2, math.Pi/2, 0, 0)
	if err != nil {
		t.Fatalf("Strength: %v", err)
	}
	shallow, err := l.Strength(waveq3d.InterfaceBottom, waveq3d.Position{}, f, 0.05, 0.05, 0, 0)
	if err != nil {
		t.Fatalf("Strength: %v", err)
	}
	if grazing[0] <= shallow[0] {
		t.Fatalf("normal-incidence strength %v should exceed shallow-grazing strength %v", grazing[0], shallow[0])
	}
	if grazing[0] != -27 {
		t.Fatalf("normal incidence strength = %v, want exactly sigma_0 = -27", grazing[0])
	}
}
