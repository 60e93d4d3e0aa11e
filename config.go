package waveq3d

// Config enumerates the configuration options of spec.md §6 and their
// effects. It is validated once at construction (NewConfig); propagation
// never starts on an invalid Config (spec.md §7 InvalidConfiguration).
type Config struct {
	Frequencies Frequencies
	RayGrid     RayGrid

	TimeStep    float64 // Δt, seconds
	TimeMinimum float64 // seconds
	TimeMaximum float64 // seconds

	IntensityThreshold float64 // dB, positive; drop eigenrays with no frequency below this loss
	EigenverbThreshold float64 // dB, positive; drop eigenverbs with peak power below

	MaxBottom  int
	MaxSurface int
	MaxCaustic int
	MaxUpper   int
	MaxLower   int

	DistanceThreshold float64 // unitless; gates biverb combination, default 6
	SearchScale       float64 // unitless; biverb search box size, default ≈ 3
	PowerThreshold    float64 // linear; minimum biverb peak power to retain

	Coherent bool // controls eigenray summing
}

// Default process-wide constants for the biverb power threshold and search
// scale (spec.md §9: "treated as configuration constants initialized at
// program start; do not mutate after a propagation has started").
const (
	DefaultSearchScale       = 3.0
	DefaultDistanceThreshold = 6.0
	DefaultPowerThreshold    = 1e-30
)

// NewConfig validates cfg and returns it, or an InvalidConfiguration error.
func NewConfig(cfg Config) (Config, error) {
	if cfg.Frequencies.Len() == 0 {
		return Config{}, ErrEmptyFrequencies
	}
	if cfg.RayGrid.NumDE() == 0 {
		return Config{}, ErrEmptyDEFan
	}
	if cfg.RayGrid.NumAZ() == 0 {
		return Config{}, ErrEmptyAZFan
	}
	if cfg.TimeStep <= 0 {
		return Config{}, ErrInvalidTimeStep
	}
	if cfg.TimeMaximum <= 0 {
		return Config{}, ErrInvalidTimeMax
	}
	if cfg.TimeMinimum >= cfg.TimeMaximum {
		return Config{}, ErrInvalidTimeRange
	}
	if cfg.SearchScale <= 0 {
		cfg.SearchScale = DefaultSearchScale
	}
	if cfg.DistanceThreshold <= 0 {
		cfg.DistanceThreshold = DefaultDistanceThreshold
	}
	if cfg.PowerThreshold <= 0 {
		cfg.PowerThreshold = DefaultPowerThreshold
	}
	return cfg, nil
}
