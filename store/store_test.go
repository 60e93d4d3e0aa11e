package store

import (
	"path/filepath"
	"testing"

	tiledb "github.com/TileDB-Inc/TileDB-Go"

	"github.com/sixy6e/waveq3d"
)

func newTestContext(t *testing.T) *tiledb.Context {
	t.Helper()
	cfg, err := tiledb.NewConfig()
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	defer cfg.Free()
	ctx, err := tiledb.NewContext(cfg)
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	return ctx
}

func TestEigenraySchemaBuilds(t *testing.T) {
	ctx := newTestContext(t)
	defer ctx.Free()

	schema, err := EigenraySchema(ctx, 64)
	if err != nil {
		t.Fatalf("EigenraySchema: %v", err)
	}
	defer schema.Free()
	if err := schema.Check(); err != nil {
		t.Fatalf("schema.Check: %v", err)
	}
}

func TestEigenverbSchemaBuilds(t *testing.T) {
	ctx := newTestContext(t)
	defer ctx.Free()

	schema, err := EigenverbSchema(ctx, 200)
	if err != nil {
		t.Fatalf("EigenverbSchema: %v", err)
	}
	defer schema.Free()
}

func TestBiverbSchemaBuilds(t *testing.T) {
	ctx := newTestContext(t)
	defer ctx.Free()

	schema, err := BiverbSchema(ctx, 200)
	if err != nil {
		t.Fatalf("BiverbSchema: %v", err)
	}
	defer schema.Free()
}

func TestEigenrayWriterRoundTrip(t *testing.T) {
	ctx := newTestContext(t)
	defer ctx.Free()

	uri := filepath.Join(t.TempDir(), "eigenrays")
	w, err := NewEigenrayWriter(ctx, uri, 32)
	if err != nil {
		t.Fatalf("NewEigenrayWriter: %v", err)
	}

	ray := waveq3d.Eigenray{
		Time: 12.5, SourceDE: 5, SourceAZ: 90, TargetDE: -3, TargetAZ: 270,
		Intensity: []float64{60.1, 61.2}, Phase: []float64{0.1, -0.2},
		Surface: 1, Bottom: 0, Caustic: 0,
	}
	w.AddEigenray(3, 7, ray, "run-0001")

	if err := w.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	// a second flush with nothing buffered must be a cheap no-op
	if err := w.Flush(); err != nil {
		t.Fatalf("second Flush: %v", err)
	}
}

func TestEigenverbWriterPerInterfaceArrays(t *testing.T) {
	ctx := newTestContext(t)
	defer ctx.Free()

	prefix := filepath.Join(t.TempDir(), "eigenverbs")
	w := NewEigenverbWriter(ctx, prefix, 200)

	verb := waveq3d.Eigenverb{
		Time: 4.0, Position: waveq3d.Position{Rho: waveq3d.EarthRadius, Theta: 1, Phi: 0},
		Grazing: 0.3, Azimuth: 1.2, SoundSpeed: 1500, Length: 80, Width: 40,
		Power: []float64{-60, -61}, DE: 10, AZ: 5,
		Freq: mustFreq(t, 1000, 2000),
	}
	w.AddEigenverb(verb, waveq3d.InterfaceBottom)
	w.AddEigenverb(verb, waveq3d.InterfaceSurface)

	if len(w.batches) != 2 {
		t.Fatalf("got %d interface batches, want 2", len(w.batches))
	}

	if err := w.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
}

func TestBiverbWriterBucketsByInterfaceField(t *testing.T) {
	ctx := newTestContext(t)
	defer ctx.Free()

	prefix := filepath.Join(t.TempDir(), "biverbs")
	w := NewBiverbWriter(ctx, prefix, 200)

	verb := waveq3d.Biverb{
		Time: 8.2, Duration: 0.05, Power: []float64{-70},
		SourceDE: 1, SourceAZ: 2, ReceiverDE: 3, ReceiverAZ: 4,
		DE: 1, AZ: 1, Interface: waveq3d.InterfaceBottom,
	}
	w.Add(verb)

	if b := w.batches[waveq3d.InterfaceBottom]; b == nil || len(b.DE) != 1 {
		t.Fatalf("biverb not bucketed under its Interface field")
	}

	if err := w.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
}

func mustFreq(t *testing.T, hz ...float64) waveq3d.Frequencies {
	t.Helper()
	f, err := waveq3d.NewFrequencies(hz)
	if err != nil {
		t.Fatalf("NewFrequencies: %v", err)
	}
	return f
}
