package waveq3d

import (
	"math"
	"testing"
)

// fakeScattering is a Lambert-law-style scattering model, defined locally
// (rather than importing ocean.LambertScattering) to avoid the
// ocean->waveq3d import cycle from an internal-package test.
type fakeScattering struct {
	strengthDB float64
}

func (s fakeScattering) Strength(_ Interface, _ Position, freq Frequencies,
	grazingIn, grazingOut, _, _ float64) ([]float64, error) {
	lobe := math.Sin(grazingIn) * math.Sin(grazingOut)
	if lobe < 1e-300 {
		lobe = 1e-300
	}
	strength := s.strengthDB + 10*math.Log10(lobe)
	out := make([]float64, freq.Len())
	for i := range out {
		out[i] = strength
	}
	return out, nil
}

func testBiverbConfig(t *testing.T) Config {
	t.Helper()
	grid, _ := NewRayGrid([]float64{0}, []float64{0})
	freq, _ := NewFrequencies([]float64{3000})
	cfg, err := NewConfig(Config{
		Frequencies:        freq,
		RayGrid:            grid,
		TimeStep:           0.1,
		TimeMinimum:        0,
		TimeMaximum:        10,
		IntensityThreshold: -60, // permissive scattering-strength floor
	})
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	return cfg
}

func sampleVerb(de, az int, theta, phi, t float64) Eigenverb {
	return Eigenverb{
		Time:       t,
		Position:   Position{Rho: EarthRadius - 1000, Theta: theta, Phi: phi},
		Direction:  Slowness{Rho: 1.0 / 1500},
		Grazing:    0.5,
		Azimuth:    0,
		SoundSpeed: 1500,
		Length:     50,
		Width:      30,
		Power:      []float64{0.01},
		DE:         de, AZ: az,
		Freq: func() Frequencies { f, _ := NewFrequencies([]float64{3000}); return f }(),
	}
}

func TestBiverbCombineNearbyPairProducesResult(t *testing.T) {
	cfg := testBiverbConfig(t)
	env := &Environment{Scattering: fakeScattering{strengthDB: -20}}
	combiner := NewBiverbCombiner(cfg, env)

	theta := 1.0
	source := map[Interface][]Eigenverb{
		InterfaceBottom: {sampleVerb(3, 3, theta, 0, 1.0)},
	}
	// offset the receiver verb by a few meters: well within the footprint.
	dPhi := 2.0 / (EarthRadius * math.Sin(theta))
	receiver := map[Interface][]Eigenverb{
		InterfaceBottom: {sampleVerb(3, 3, theta, dPhi, 1.2)},
	}

	biverbs, err := combiner.Combine(source, receiver)
	if err != nil {
		t.Fatalf("Combine: %v", err)
	}
	if len(biverbs) != 1 {
		t.Fatalf("Combine returned %d biverbs, want 1", len(biverbs))
	}
	bv := biverbs[0]
	if bv.Time != 2.2 {
		t.Fatalf("Time = %v, want 2.2 (t_src+t_rcv)", bv.Time)
	}
	if bv.Duration <= 0 {
		t.Fatalf("Duration = %v, want positive", bv.Duration)
	}
	for _, p := range bv.Power {
		if p <= 0 {
			t.Fatalf("Power = %v, want all positive", bv.Power)
		}
	}
}

func TestBiverbCombineRejectsDistantPair(t *testing.T) {
	cfg := testBiverbConfig(t)
	env := &Environment{Scattering: fakeScattering{strengthDB: -20}}
	combiner := NewBiverbCombiner(cfg, env)

	theta := 1.0
	source := map[Interface][]Eigenverb{
		InterfaceBottom: {sampleVerb(3, 3, theta, 0, 1.0)},
	}
	// offset by ~50 km: far beyond any reasonable footprint/search box.
	dPhi := 50000.0 / (EarthRadius * math.Sin(theta))
	receiver := map[Interface][]Eigenverb{
		InterfaceBottom: {sampleVerb(3, 3, theta, dPhi, 1.2)},
	}

	biverbs, err := combiner.Combine(source, receiver)
	if err != nil {
		t.Fatalf("Combine: %v", err)
	}
	if len(biverbs) != 0 {
		t.Fatalf("Combine returned %d biverbs for a 50km-separated pair, want 0", len(biverbs))
	}
}

func TestBiverbCombineNoCommonInterfaceYieldsNothing(t *testing.T) {
	cfg := testBiverbConfig(t)
	env := &Environment{Scattering: fakeScattering{strengthDB: -20}}
	combiner := NewBiverbCombiner(cfg, env)

	source := map[Interface][]Eigenverb{InterfaceBottom: {sampleVerb(0, 0, 1, 0, 1)}}
	receiver := map[Interface][]Eigenverb{InterfaceSurface: {sampleVerb(0, 0, 1, 0, 1)}}

	biverbs, err := combiner.Combine(source, receiver)
	if err != nil {
		t.Fatalf("Combine: %v", err)
	}
	if len(biverbs) != 0 {
		t.Fatalf("Combine returned %d biverbs across disjoint interfaces, want 0", len(biverbs))
	}
}
