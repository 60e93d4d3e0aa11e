package ocean

import (
	"math"
	"math/cmplx"

	"github.com/sixy6e/waveq3d"
)

// BottomType selects a table entry of representative geoacoustic
// properties for RayleighSandBottom, mirroring the bottom_type_enum table
// original_source/ocean/reflect_loss_rayleigh.h declares but does not
// define in the retrieved sources; the ratios below are standard
// Hamilton-style geoacoustic values, not reproduced from that table.
type BottomType int

const (
	Clay BottomType = iota
	Silt
	Sand
	Gravel
	Moraine
	Chalk
	Limestone
	Basalt
)

type bottomProps struct {
	densityRatio, speedRatio, attBottom, speedShearRatio, attShear float64
}

var bottomTable = map[BottomType]bottomProps{
	Clay:      {1.5, 1.00, 0.2, 0.00, 0.0},
	Silt:      {1.7, 1.05, 1.0, 0.00, 0.0},
	Sand:      {1.9, 1.10, 0.8, 0.00, 0.0},
	Gravel:    {2.0, 1.20, 0.6, 0.00, 0.0},
	Moraine:   {2.1, 1.30, 0.4, 0.20, 0.0},
	Chalk:     {2.2, 1.60, 0.2, 1.00, 0.0},
	Limestone: {2.4, 2.00, 0.1, 1.20, 0.0},
	Basalt:    {2.7, 2.50, 0.1, 1.60, 0.0},
}

// RayleighSandBottom models plane-wave reflection loss from a flat
// fluid-solid interface, combining compressional and shear wave impedance
// with attenuation folded in as a complex sound speed (grounded on
// original_source/ocean/reflect_loss_rayleigh.h).
type RayleighSandBottom struct {
	densityWater, speedWater              float64
	densityBottom, speedBottom, attBottom float64
	speedShear, attShear                  float64
}

// NewRayleighBottom builds a RayleighSandBottom from a generic bottom type.
func NewRayleighBottom(t BottomType) *RayleighSandBottom {
	p := bottomTable[t]
	return NewRayleighBottomRatios(p.densityRatio, p.speedRatio, p.attBottom, p.speedShearRatio, p.attShear)
}

// NewRayleighBottomRatios builds a RayleighSandBottom from impedance
// mismatch ratios, the way the header's densities/speeds constructor does:
// density and speed are ratios to water's 1000 kg/m^3 and 1500 m/s.
func NewRayleighBottomRatios(densityRatio, speedRatio, attBottom, speedShearRatio, attShear float64) *RayleighSandBottom {
	const waterDensity = 1000.0
	const waterSpeed = 1500.0
	return &RayleighSandBottom{
		densityWater:  waterDensity,
		speedWater:    waterSpeed,
		densityBottom: densityRatio * waterDensity,
		speedBottom:   speedRatio * waterSpeed,
		attBottom:     attBottom,
		speedShear:    speedShearRatio * waterSpeed,
		attShear:      attShear,
	}
}

// complexBottomSpeed folds attenuation (dB/wavelength) into the imaginary
// part of sound speed, following the header's c_b = c_rb - i*alpha_b*c_rb^2/omega.
func complexBottomSpeed(cReal, attDBPerWavelength, freqHz float64) complex128 {
	if attDBPerWavelength == 0 || cReal == 0 {
		return complex(cReal, 0)
	}
	omega := 2 * math.Pi * freqHz
	lambda := cReal / freqHz
	alpha := attDBPerWavelength / (lambda * 20 * math.Log10(math.E)) // nepers/m
	return complex(cReal, -alpha*cReal*cReal/omega)
}

// snellImpedance applies Snell's law (sin(theta_w)/c_w = sin(theta_n)/c_n)
// to find the transmitted angle in a medium of complex speed cTrans, and
// returns the resulting impedance Z = density*c/cos(theta_n).
func snellImpedance(density, sinIncident, speedIncident float64, cTrans complex128) (z, sinT, cosT complex128) {
	sinT = complex(sinIncident, 0) * cTrans / complex(speedIncident, 0)
	cosT = cmplx.Sqrt(complex(1, 0) - sinT*sinT)
	z = complex(density, 0) * cTrans / cosT
	return
}

// Loss computes the broadband reflection loss (dB) and phase change (rad)
// at the given grazing angle (rad), combining compressional and (when
// configured) shear-wave impedance in the bottom.
func (r *RayleighSandBottom) Loss(_ waveq3d.Position, freq waveq3d.Frequencies, grazing float64) ([]float64, []float64, error) {
	if grazing <= 0 {
		grazing = 1e-9
	}
	sinThetaW := math.Cos(grazing) // theta_w measured from the normal
	cosThetaW := math.Sin(grazing)

	n := freq.Len()
	amp := make([]float64, n)
	phase := make([]float64, n)
	zw := complex(r.densityWater*r.speedWater/cosThetaW, 0)

	for k := 0; k < n; k++ {
		f := freq.At(k)

		cb := complexBottomSpeed(r.speedBottom, r.attBottom, f)
		zpb, _, _ := snellImpedance(r.densityBottom, sinThetaW, r.speedWater, cb)

		zb := zpb
		if r.speedShear > 0 {
			cs := complexBottomSpeed(r.speedShear, r.attShear, f)
			zsb, sinSB, cosSB := snellImpedance(r.densityBottom, sinThetaW, r.speedWater, cs)
			sin2 := 2 * sinSB * cosSB
			cos2 := cosSB*cosSB - sinSB*sinSB
			zb = zpb*sin2*sin2 + zsb*cos2*cos2
		}

		refl := (zb - zw) / (zb + zw)
		amp[k] = -20 * math.Log10(cmplx.Abs(refl))
		phase[k] = cmplx.Phase(refl)
	}
	return amp, phase, nil
}
