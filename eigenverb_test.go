package waveq3d

import "testing"

func newEigenverbTestConfig(t *testing.T, eigenverbThreshold float64) Config {
	t.Helper()
	grid, err := NewRayGrid([]float64{-10, 0, 10}, []float64{0, 10, 20})
	if err != nil {
		t.Fatalf("NewRayGrid: %v", err)
	}
	freq, err := NewFrequencies([]float64{3000})
	if err != nil {
		t.Fatalf("NewFrequencies: %v", err)
	}
	cfg, err := NewConfig(Config{
		Frequencies:        freq,
		RayGrid:            grid,
		TimeStep:           0.1,
		TimeMinimum:        0,
		TimeMaximum:        10,
		EigenverbThreshold: eigenverbThreshold,
	})
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	return cfg
}

func nearCollision(slantRange, grazing float64) Collision {
	return Collision{
		DE: 1, AZ: 1,
		Interface:  InterfaceBottom,
		Time:       1.0,
		Position:   Position{Rho: EarthRadius - 1000},
		Direction:  Slowness{Rho: 1.0 / 1500},
		SoundSpeed: 1500,
		Grazing:    grazing,
		PathLength: slantRange,
	}
}

func TestEigenverbEmitDisabledThresholdAlwaysEmits(t *testing.T) {
	cfg := newEigenverbTestConfig(t, 0) // disabled
	e := NewEigenverbEmitter(cfg)

	// A very long slant range spreads the footprint wide and drives power
	// toward zero; with the threshold disabled this must still emit.
	verb, ok := e.Emit(nil, nearCollision(1e9, 0.2))
	if !ok {
		t.Fatalf("Emit with EigenverbThreshold=0 suppressed an eigenverb, want always-emit")
	}
	if verb.DE != 1 || verb.AZ != 1 {
		t.Fatalf("Emit returned verb for wrong cell: %+v", verb)
	}
}

func TestEigenverbEmitSuppressesBelowThreshold(t *testing.T) {
	// A tight threshold (small allowed dB loss) rejects all but the
	// closest, least-spread collisions.
	cfg := newEigenverbTestConfig(t, 1.0)
	e := NewEigenverbEmitter(cfg)

	_, ok := e.Emit(nil, nearCollision(1e9, 0.2))
	if ok {
		t.Fatalf("Emit did not suppress a far, wide-spread collision under a tight eigenverb_threshold")
	}
}

func TestEigenverbEmitPassesCloseCollision(t *testing.T) {
	// A generous threshold and a short slant range (small, concentrated
	// footprint, high power) should pass.
	cfg := newEigenverbTestConfig(t, 300)
	e := NewEigenverbEmitter(cfg)

	verb, ok := e.Emit(nil, nearCollision(10, 0.5))
	if !ok {
		t.Fatalf("Emit suppressed a close, concentrated collision under a generous eigenverb_threshold")
	}
	if verb.Length <= 0 || verb.Width <= 0 {
		t.Fatalf("Emit returned non-positive footprint: length=%v width=%v", verb.Length, verb.Width)
	}
}
