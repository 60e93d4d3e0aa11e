package ocean

import (
	"math"

	"github.com/sixy6e/waveq3d"
)

// LambertScattering implements Lambert's law: scattering strength is
// frequency-independent and proportional to sin(grazing_in)*sin(grazing_out),
// the same frequency-independence reflect_loss_rayleigh.h notes for its own
// model, applied here to the companion scattering-strength role spec.md
// assigns BiverbCombiner's environment query.
type LambertScattering struct {
	StrengthDB float64 // sigma_0, dB (e.g. -27 for sand)
}

// NewLambertScattering builds a LambertScattering with base strength
// strengthDB (negative, e.g. -27).
func NewLambertScattering(strengthDB float64) *LambertScattering {
	return &LambertScattering{StrengthDB: strengthDB}
}

func (l *LambertScattering) Strength(_ waveq3d.Interface, _ waveq3d.Position, freq waveq3d.Frequencies,
	grazingIn, grazingOut, _, _ float64) ([]float64, error) {
	lobe := math.Sin(grazingIn) * math.Sin(grazingOut)
	if lobe < 1e-300 {
		lobe = 1e-300
	}
	strength := l.StrengthDB + 10*math.Log10(lobe)

	out := make([]float64, freq.Len())
	for k := range out {
		out[k] = strength
	}
	return out, nil
}
