package waveq3d

import (
	"math"

	"github.com/sixy6e/waveq3d/search"
)

// Biverb is a bistatic reverberation contribution from one source
// eigenverb and one receiver eigenverb meeting at a common interface
// (spec.md §3, §4.7).
type Biverb struct {
	Time     float64 // t_src + t_rcv
	Power    []float64
	Duration float64

	SourceDE, SourceAZ     float64
	ReceiverDE, ReceiverAZ float64
	DE, AZ                 int // receiver verb's grid indices

	Interface Interface

	SourceCounts, ReceiverCounts Counts
}

// BiverbCombiner pairs source-side and receiver-side eigenverb collections
// at each common interface, using a spatial index for candidate lookup and
// an analytic bivariate-Gaussian overlap to score each pair (spec.md
// §4.7).
type BiverbCombiner struct {
	cfg Config
	env *Environment
}

// NewBiverbCombiner constructs a BiverbCombiner bound to cfg and env.
func NewBiverbCombiner(cfg Config, env *Environment) *BiverbCombiner {
	return &BiverbCombiner{cfg: cfg, env: env}
}

// Combine produces every Biverb surviving the distance, scattering, and
// power-threshold gates, across all interfaces present in both source and
// receiver collections.
func (b *BiverbCombiner) Combine(source, receiver map[Interface][]Eigenverb) ([]Biverb, error) {
	var out []Biverb

	for iface, rcvVerbs := range receiver {
		srcVerbs, ok := source[iface]
		if !ok || len(srcVerbs) == 0 {
			continue
		}

		idx := search.NewIndex(0.01) // ~64 km at earth radius
		for i, v := range srcVerbs {
			idx.Insert(i, v.Position.Theta, v.Position.Phi)
		}

		for _, vr := range rcvVerbs {
			boxHalf := b.cfg.SearchScale * math.Max(vr.Length, vr.Width)
			radiusRad := boxHalf / vr.Position.Rho

			for _, id := range idx.Query(vr.Position.Theta, vr.Position.Phi, radiusRad) {
				vs := srcVerbs[id]
				bv, ok, err := b.evaluate(vs, vr, iface)
				if err != nil {
					return nil, err
				}
				if ok {
					out = append(out, bv)
				}
			}
		}
	}
	return out, nil
}

// evaluate applies the range/projection/scattering gates and, if the pair
// survives, computes the analytic bivariate-Gaussian overlap of spec.md
// §4.7 step 2d.
func (b *BiverbCombiner) evaluate(vs, vr Eigenverb, iface Interface) (Biverb, bool, error) {
	x, y := localOffset(vr.Position, vs.Position)
	rng := math.Hypot(x, y)

	threshold := b.cfg.DistanceThreshold
	if rng > threshold*math.Max(vr.Length, vr.Width) {
		return Biverb{}, false, nil
	}

	// project into receiver-local along-length (y_s) / along-width (x_s) axes.
	ySProj := x*math.Sin(vr.Azimuth) + y*math.Cos(vr.Azimuth)
	xSProj := x*math.Cos(vr.Azimuth) - y*math.Sin(vr.Azimuth)
	if math.Abs(ySProj) > threshold*vr.Length || math.Abs(xSProj) > threshold*vr.Width {
		return Biverb{}, false, nil
	}

	scatter, err := b.env.Scattering.Strength(iface, vr.Position, vr.Freq,
		vs.Grazing, vr.Grazing, vs.Azimuth, vr.Azimuth)
	if err != nil {
		return Biverb{}, false, WrapEnvironmentError(err)
	}
	anyStrong := false
	for _, s := range scatter {
		if s >= b.cfg.IntensityThreshold {
			anyStrong = true
			break
		}
	}
	if !anyStrong {
		return Biverb{}, false, nil
	}

	Ls2, Ws2 := vs.Length*vs.Length, vs.Width*vs.Width
	Lr2, Wr2 := vr.Length*vr.Length, vr.Width*vr.Width
	S, D, P := Ls2+Ws2, Ls2-Ws2, Ls2*Ws2
	Sp, Dp, Pp := Lr2+Wr2, Lr2-Wr2, Lr2*Wr2

	alpha := vs.Azimuth - vr.Azimuth
	cos2a := math.Cos(2 * alpha)
	sin2a := math.Sin(2 * alpha)

	det := 0.5 * (2*(P+Pp) + S*Sp - D*Dp*cos2a)
	if det == 0 {
		return Biverb{}, false, nil
	}

	kappa := -0.25 * (xSProj*xSProj*(S+D*cos2a+2*Lr2) +
		ySProj*ySProj*(S-D*cos2a+2*Wr2) -
		2*math.Sqrt(math.Abs(xSProj*xSProj*ySProj*ySProj))*D*sin2a) / det

	sigma2 := 0.5 * ((1/Ws2+1/Ls2) + (1/Ws2-1/Ls2)*cos2a + 2/Wr2) / (det / (P * Pp))
	if sigma2 < 0 {
		sigma2 = 0
	}
	duration := 0.5 * (math.Cos(vr.Grazing) / vr.SoundSpeed) * math.Sqrt(sigma2)

	F := vr.Freq.Len()
	power := make([]float64, F)
	factor := 0.25 * 0.5 * math.Exp(kappa) / math.Sqrt(math.Abs(det))
	peak := 0.0
	for f := 0; f < F; f++ {
		p := factor * vs.Power[f] * vr.Power[f] * math.Pow(10, scatter[f]/10)
		power[f] = p
		if p > peak {
			peak = p
		}
	}
	if peak < b.cfg.PowerThreshold {
		return Biverb{}, false, nil
	}

	srcDE, srcAZ := slownessToAngles(vs.Direction)
	rcvDE, rcvAZ := slownessToAngles(vr.Direction)

	return Biverb{
		Time: vs.Time + vr.Time, Power: power, Duration: duration,
		SourceDE: srcDE, SourceAZ: srcAZ,
		ReceiverDE: rcvDE, ReceiverAZ: rcvAZ,
		DE: vr.DE, AZ: vr.AZ, Interface: iface,
		SourceCounts: vs.Counts, ReceiverCounts: vr.Counts,
	}, true, nil
}

// localOffset returns the east/north meter offset of to relative to from,
// using the same small-angle flat-earth projection as
// WaveState.computeTargetDistance.
func localOffset(from, to Position) (east, north float64) {
	dPhi := to.Phi - from.Phi
	dTheta := to.Theta - from.Theta
	sinTheta := math.Sin(from.Theta)
	east = from.Rho * sinTheta * dPhi
	north = -from.Rho * dTheta
	return
}
