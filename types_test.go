package waveq3d

import (
	"math"
	"testing"
)

func TestNewFrequenciesRejectsEmptyAndNonPositive(t *testing.T) {
	if _, err := NewFrequencies(nil); err != ErrEmptyFrequencies {
		t.Fatalf("empty: got %v, want ErrEmptyFrequencies", err)
	}
	if _, err := NewFrequencies([]float64{100, -5}); err != ErrEmptyFrequencies {
		t.Fatalf("negative entry: got %v, want ErrEmptyFrequencies", err)
	}
}

func TestNewFrequenciesCopiesInput(t *testing.T) {
	hz := []float64{100, 200}
	f, err := NewFrequencies(hz)
	if err != nil {
		t.Fatalf("NewFrequencies: %v", err)
	}
	hz[0] = 999
	if f.At(0) != 100 {
		t.Fatalf("f.At(0) = %v, want 100 (caller mutation leaked in)", f.At(0))
	}
	if f.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", f.Len())
	}
}

func TestNewRayGridRejectsEmptyFans(t *testing.T) {
	if _, err := NewRayGrid(nil, []float64{0}); err != ErrEmptyDEFan {
		t.Fatalf("empty DE: got %v", err)
	}
	if _, err := NewRayGrid([]float64{0}, nil); err != ErrEmptyAZFan {
		t.Fatalf("empty AZ: got %v", err)
	}
}

func TestRayGridLaunchDirectionIsUnit(t *testing.T) {
	g, err := NewRayGrid([]float64{-30, 0, 30}, []float64{0, 90, 180, 270})
	if err != nil {
		t.Fatalf("NewRayGrid: %v", err)
	}
	for i := 0; i < g.NumDE(); i++ {
		for j := 0; j < g.NumAZ(); j++ {
			rho, theta, phi := g.LaunchDirection(i, j)
			n := math.Sqrt(rho*rho + theta*theta + phi*phi)
			if math.Abs(n-1) > 1e-9 {
				t.Fatalf("LaunchDirection(%d,%d) has norm %v, want 1", i, j, n)
			}
		}
	}
}

func TestRayGridLaunchDirectionDEZeroIsHorizontal(t *testing.T) {
	g, err := NewRayGrid([]float64{0}, []float64{0})
	if err != nil {
		t.Fatalf("NewRayGrid: %v", err)
	}
	rho, _, _ := g.LaunchDirection(0, 0)
	if math.Abs(rho) > 1e-9 {
		t.Fatalf("rho component at DE=0 = %v, want 0", rho)
	}
}

func TestCountsCloneIsIndependent(t *testing.T) {
	c := Counts{Surface: 1, Upper: []int{1, 2}, Lower: []int{3, 4}}
	clone := c.Clone()
	clone.Upper[0] = 99
	if c.Upper[0] != 1 {
		t.Fatalf("Clone shares Upper backing array with original")
	}
}

func TestPositionAltitude(t *testing.T) {
	p := Position{Rho: EarthRadius - 150}
	if math.Abs(p.Altitude()+150) > 1e-9 {
		t.Fatalf("Altitude() = %v, want -150", p.Altitude())
	}
}

func TestNewPositionFromGeodeticEquator(t *testing.T) {
	p := NewPositionFromGeodetic(0, 0, 0)
	if math.Abs(p.Theta-math.Pi/2) > 1e-9 {
		t.Fatalf("equator Theta = %v, want pi/2", p.Theta)
	}
	if math.Abs(p.Rho-EarthRadius) > 1e-9 {
		t.Fatalf("zero-depth Rho = %v, want EarthRadius", p.Rho)
	}
}
