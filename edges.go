package waveq3d

import "math"

// EdgeDetector declares a caustic when a wavefront fold (from WaveState.
// FindEdges) crosses one of its unflagged neighbors between steps without
// either ray's bounce count changing (spec.md §4.4).
type EdgeDetector struct {
	cfg Config
}

// NewEdgeDetector constructs an EdgeDetector bound to cfg.
func NewEdgeDetector(cfg Config) *EdgeDetector {
	return &EdgeDetector{cfg: cfg}
}

// DetectCaustics compares curr's OnFold markers (set by FindEdges when
// curr was the previous step's next snapshot) against the neighboring
// ray's radial position to decide whether a fold has swept across it. A
// crossing with unchanged bounce counts on both rays is a caustic: next's
// caustic counter is incremented and π/2 is subtracted from the
// neighbor's phase.
func (d *EdgeDetector) DetectCaustics(prev, curr, next *WaveState) {
	nDE, nAZ := curr.Grid.NumDE(), curr.Grid.NumAZ()

	for j := 0; j < nAZ; j++ {
		for i := 1; i < nDE-1; i++ {
			if !curr.OnFold[i][j] {
				continue
			}

			for _, n := range []int{i - 1, i + 1} {
				if n < 0 || n >= nDE {
					continue
				}
				if crossed(curr, next, i, n, j) && bounceCountsUnchanged(curr, next, i, j) && bounceCountsUnchanged(curr, next, n, j) {
					next.Counts[n][j].Caustic++
					F := next.Freq.Len()
					for f := 0; f < F; f++ {
						next.Phase[n][j][f] = wrapPhase(next.Phase[n][j][f] - math.Pi/2)
					}
				}
			}
		}
	}
}

// crossed reports whether ray i's radial position swept past ray n's
// radial position between curr and next, i.e. the sign of (rho_i - rho_n)
// flipped.
func crossed(curr, next *WaveState, i, n, j int) bool {
	before := curr.Position[i][j].Rho - curr.Position[n][j].Rho
	after := next.Position[i][j].Rho - next.Position[n][j].Rho
	return (before > 0) != (after > 0)
}

func bounceCountsUnchanged(curr, next *WaveState, i, j int) bool {
	a, b := curr.Counts[i][j], next.Counts[i][j]
	return a.Surface == b.Surface && a.Bottom == b.Bottom
}
