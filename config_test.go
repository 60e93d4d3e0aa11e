package waveq3d

import "testing"

func validConfig(t *testing.T) Config {
	t.Helper()
	freq, err := NewFrequencies([]float64{1000})
	if err != nil {
		t.Fatalf("NewFrequencies: %v", err)
	}
	grid, err := NewRayGrid([]float64{-10, 0, 10}, []float64{0})
	if err != nil {
		t.Fatalf("NewRayGrid: %v", err)
	}
	return Config{
		Frequencies: freq,
		RayGrid:     grid,
		TimeStep:    0.1,
		TimeMinimum: 0,
		TimeMaximum: 10,
	}
}

func TestNewConfigAppliesDefaults(t *testing.T) {
	cfg, err := NewConfig(validConfig(t))
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	if cfg.SearchScale != DefaultSearchScale {
		t.Fatalf("SearchScale = %v, want default %v", cfg.SearchScale, DefaultSearchScale)
	}
	if cfg.DistanceThreshold != DefaultDistanceThreshold {
		t.Fatalf("DistanceThreshold = %v, want default %v", cfg.DistanceThreshold, DefaultDistanceThreshold)
	}
	if cfg.PowerThreshold != DefaultPowerThreshold {
		t.Fatalf("PowerThreshold = %v, want default %v", cfg.PowerThreshold, DefaultPowerThreshold)
	}
}

func TestNewConfigRejectsBadTimeStep(t *testing.T) {
	cfg := validConfig(t)
	cfg.TimeStep = 0
	if _, err := NewConfig(cfg); err != ErrInvalidTimeStep {
		t.Fatalf("got %v, want ErrInvalidTimeStep", err)
	}
}

func TestNewConfigRejectsBadTimeRange(t *testing.T) {
	cfg := validConfig(t)
	cfg.TimeMinimum = 10
	cfg.TimeMaximum = 10
	if _, err := NewConfig(cfg); err != ErrInvalidTimeRange {
		t.Fatalf("got %v, want ErrInvalidTimeRange", err)
	}
}

func TestNewConfigRejectsEmptyFrequencies(t *testing.T) {
	cfg := validConfig(t)
	cfg.Frequencies = Frequencies{}
	if _, err := NewConfig(cfg); err != ErrEmptyFrequencies {
		t.Fatalf("got %v, want ErrEmptyFrequencies", err)
	}
}
