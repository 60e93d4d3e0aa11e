package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"

	tiledb "github.com/TileDB-Inc/TileDB-Go"
	"github.com/alitto/pond"
	"github.com/urfave/cli/v2"

	waveq3d "github.com/sixy6e/waveq3d"
	"github.com/sixy6e/waveq3d/ocean"
	"github.com/sixy6e/waveq3d/store"
)

// targetSpec is the on-disk shape of one propagation target, read from the
// --targets-uri JSON file.
type targetSpec struct {
	Row, Col             int
	LatDeg, LonDeg, Depth float64
}

// sourceSpec is one scenario in a --sources-uri batch file: a source
// position plus its own target list, the batch analogue of targetSpec.
type sourceSpec struct {
	LatDeg, LonDeg, Depth float64
	Targets               []targetSpec
}

func readTargets(uri string) ([]waveq3d.Target, error) {
	if uri == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(uri)
	if err != nil {
		return nil, err
	}
	var specs []targetSpec
	if err := json.Unmarshal(raw, &specs); err != nil {
		return nil, err
	}
	return toTargets(specs), nil
}

func toTargets(specs []targetSpec) []waveq3d.Target {
	targets := make([]waveq3d.Target, len(specs))
	for i, s := range specs {
		targets[i] = waveq3d.Target{
			Row:      s.Row,
			Col:      s.Col,
			Position: waveq3d.NewPositionFromGeodetic(s.LatDeg, s.LonDeg, s.Depth),
		}
	}
	return targets
}

func readSources(uri string) ([]sourceSpec, error) {
	raw, err := os.ReadFile(uri)
	if err != nil {
		return nil, err
	}
	var specs []sourceSpec
	if err := json.Unmarshal(raw, &specs); err != nil {
		return nil, err
	}
	return specs, nil
}

// degreeFan expands a min/max/step triple into the ray-grid angle fan the
// teacher's flag-driven config building would hand RayGrid, e.g.
// "-60,60,5" for de-fan.
func degreeFan(spec string) ([]float64, error) {
	parts := strings.Split(spec, ",")
	if len(parts) != 3 {
		return nil, errors.New("waveq3d: fan must be \"min,max,step\"")
	}
	var lo, hi, step float64
	if _, err := parseFloats(parts, &lo, &hi, &step); err != nil {
		return nil, err
	}
	if step <= 0 {
		return nil, errors.New("waveq3d: fan step must be positive")
	}
	var out []float64
	for v := lo; v <= hi+1e-9; v += step {
		out = append(out, v)
	}
	return out, nil
}

func parseFloats(parts []string, dst ...*float64) (int, error) {
	n := 0
	for i, p := range parts {
		if i >= len(dst) {
			break
		}
		v, err := parseFloat(p)
		if err != nil {
			return n, err
		}
		*dst[i] = v
		n++
	}
	return n, nil
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

func openTileDB(configURI string) (*tiledb.Config, *tiledb.Context, error) {
	var (
		config *tiledb.Config
		err    error
	)
	if configURI == "" {
		config, err = tiledb.NewConfig()
	} else {
		config, err = tiledb.LoadConfig(configURI)
	}
	if err != nil {
		return nil, nil, err
	}
	ctx, err := tiledb.NewContext(config)
	if err != nil {
		config.Free()
		return nil, nil, err
	}
	return config, ctx, nil
}

// buildEnvironment assembles a waveq3d.Environment from flag values,
// following the teacher's convert_gsf pattern of turning a handful of CLI
// strings into the concrete objects a run needs before any work begins.
func buildEnvironment(cCtx *cli.Context) (*waveq3d.Environment, error) {
	var profile waveq3d.Profile
	switch p := cCtx.String("profile"); p {
	case "", "isovelocity":
		profile = ocean.NewIsovelocityProfile(cCtx.Float64("sound-speed"))
	case "munk":
		profile = ocean.NewMunkProfile()
	default:
		return nil, errors.New("waveq3d: unknown --profile " + p)
	}

	var bottomLoss ocean.ReflectLossModel
	switch b := cCtx.String("bottom-type"); b {
	case "", "sand":
		bottomLoss = ocean.NewRayleighBottom(ocean.Sand)
	case "gravel":
		bottomLoss = ocean.NewRayleighBottom(ocean.Gravel)
	default:
		return nil, errors.New("waveq3d: unknown --bottom-type " + b)
	}

	env := &waveq3d.Environment{
		Profile: profile,
		Surface: ocean.NewFlatSurface(nil),
		Bottom:  ocean.NewFlatBottom(cCtx.Float64("bottom-depth"), bottomLoss),
	}
	if cCtx.Float64("scattering-db") != 0 {
		env.Scattering = ocean.NewLambertScattering(cCtx.Float64("scattering-db"))
	}
	return env, nil
}

func buildConfig(cCtx *cli.Context) (waveq3d.Config, error) {
	freqValues := make([]float64, 0)
	for _, s := range strings.Split(cCtx.String("freq-hz"), ",") {
		v, err := parseFloat(strings.TrimSpace(s))
		if err != nil {
			return waveq3d.Config{}, err
		}
		freqValues = append(freqValues, v)
	}
	freq, err := waveq3d.NewFrequencies(freqValues)
	if err != nil {
		return waveq3d.Config{}, err
	}

	deFan, err := degreeFan(cCtx.String("de-fan"))
	if err != nil {
		return waveq3d.Config{}, err
	}
	azFan, err := degreeFan(cCtx.String("az-fan"))
	if err != nil {
		return waveq3d.Config{}, err
	}
	grid, err := waveq3d.NewRayGrid(deFan, azFan)
	if err != nil {
		return waveq3d.Config{}, err
	}

	return waveq3d.NewConfig(waveq3d.Config{
		Frequencies:        freq,
		RayGrid:            grid,
		TimeStep:           cCtx.Float64("time-step"),
		TimeMinimum:        cCtx.Float64("time-min"),
		TimeMaximum:        cCtx.Float64("time-max"),
		IntensityThreshold: cCtx.Float64("intensity-threshold"),
		EigenverbThreshold: cCtx.Float64("eigenverb-threshold"),
		Coherent:           cCtx.Bool("coherent"),
	})
}

func runIDFor(cCtx *cli.Context, label string) (string, error) {
	refStr := cCtx.String("reference-time")
	if refStr == "" {
		return label, nil
	}
	ref, err := waveq3d.ParseReferenceTime(refStr)
	if err != nil {
		return "", err
	}
	return waveq3d.NewRunID(label, ref), nil
}

// propagateOne runs a single-source propagation to completion, feeding
// extracted eigenrays/eigenverbs to whichever listeners are passed in.
func propagateOne(cfg waveq3d.Config, env *waveq3d.Environment, source waveq3d.Position, targets []waveq3d.Target, runID string, eigenrayL waveq3d.EigenrayListener, eigenverbL waveq3d.EigenverbListener) error {
	q, err := waveq3d.NewWavefrontQueue(cfg, env, source, targets, runID)
	if err != nil {
		return err
	}
	if eigenrayL != nil {
		q.AddEigenrayListener(eigenrayL)
	}
	if eigenverbL != nil {
		q.AddEigenverbListener(eigenverbL)
	}
	for q.Time() < cfg.TimeMaximum {
		if err := q.Step(); err != nil {
			return err
		}
	}
	return nil
}

// propagate runs one source-to-targets scenario and persists its eigenrays
// and eigenverbs to TileDB arrays under --out-uri.
func propagate(cCtx *cli.Context) error {
	env, err := buildEnvironment(cCtx)
	if err != nil {
		return err
	}
	cfg, err := buildConfig(cCtx)
	if err != nil {
		return err
	}
	targets, err := readTargets(cCtx.String("targets-uri"))
	if err != nil {
		return err
	}
	runID, err := runIDFor(cCtx, "propagate")
	if err != nil {
		return err
	}

	_, ctx, err := openTileDB(cCtx.String("config-uri"))
	if err != nil {
		return err
	}
	defer ctx.Free()

	outURI := cCtx.String("out-uri")
	rayWriter, err := store.NewEigenrayWriter(ctx, outURI+"/eigenrays", 10000)
	if err != nil {
		return err
	}
	verbWriter := store.NewEigenverbWriter(ctx, outURI+"/eigenverbs", 10000)

	source := waveq3d.NewPositionFromGeodetic(cCtx.Float64("source-lat"), cCtx.Float64("source-lon"), cCtx.Float64("source-depth"))

	log.Println("Propagating source:", cCtx.Float64("source-lat"), cCtx.Float64("source-lon"), cCtx.Float64("source-depth"))
	if err := propagateOne(cfg, env, source, targets, runID, rayWriter, verbWriter); err != nil {
		return err
	}

	log.Println("Flushing eigenrays and eigenverbs")
	if err := rayWriter.Flush(); err != nil {
		return err
	}
	if err := verbWriter.Flush(); err != nil {
		return err
	}

	if cCtx.IsSet("receiver-lat") {
		if err := combineBistatic(cCtx, env, cfg, source, runID, ctx, outURI); err != nil {
			return err
		}
	}

	log.Println("Finished propagation")
	return nil
}

// combineBistatic propagates again from the source and then from the
// receiver position, collecting eigenverbs from each, then combines the source and receiver eigenverb sets into biverbs
// (spec.md §4.7), the bistatic-reverberation path.
func combineBistatic(cCtx *cli.Context, env *waveq3d.Environment, cfg waveq3d.Config, source waveq3d.Position, runID string, ctx *tiledb.Context, outURI string) error {
	receiver := waveq3d.NewPositionFromGeodetic(cCtx.Float64("receiver-lat"), cCtx.Float64("receiver-lon"), cCtx.Float64("receiver-depth"))

	sourceVerbs := map[waveq3d.Interface][]waveq3d.Eigenverb{}
	receiverVerbs := map[waveq3d.Interface][]waveq3d.Eigenverb{}

	collect := func(dst map[waveq3d.Interface][]waveq3d.Eigenverb) waveq3d.EigenverbListenerFunc {
		return func(verb waveq3d.Eigenverb, iface waveq3d.Interface) {
			dst[iface] = append(dst[iface], verb)
		}
	}

	log.Println("Propagating receiver:", cCtx.Float64("receiver-lat"), cCtx.Float64("receiver-lon"), cCtx.Float64("receiver-depth"))
	if err := propagateOne(cfg, env, source, nil, runID, nil, collect(sourceVerbs)); err != nil {
		return err
	}
	if err := propagateOne(cfg, env, receiver, nil, runID, nil, collect(receiverVerbs)); err != nil {
		return err
	}

	combiner := waveq3d.NewBiverbCombiner(cfg, env)
	biverbs, err := combiner.Combine(sourceVerbs, receiverVerbs)
	if err != nil {
		return err
	}

	biverbWriter := store.NewBiverbWriter(ctx, outURI+"/biverbs", 10000)
	for _, b := range biverbs {
		biverbWriter.Add(b)
	}
	log.Println("Writing biverbs:", len(biverbs))
	return biverbWriter.Flush()
}

// propagateBatch submits one WavefrontQueue run per --sources-uri entry to
// a fixed worker pool, the batch analogue of the teacher's
// convert_gsf_list/pond.New pattern in cmd/main.go, generalized from "one
// GSF file per worker" to "one propagation source per worker".
func propagateBatch(cCtx *cli.Context) error {
	env, err := buildEnvironment(cCtx)
	if err != nil {
		return err
	}
	cfg, err := buildConfig(cCtx)
	if err != nil {
		return err
	}
	sources, err := readSources(cCtx.String("sources-uri"))
	if err != nil {
		return err
	}
	runID, err := runIDFor(cCtx, "propagate-batch")
	if err != nil {
		return err
	}

	_, ctx, err := openTileDB(cCtx.String("config-uri"))
	if err != nil {
		return err
	}
	defer ctx.Free()

	outURI := cCtx.String("out-uri")
	rayWriter, err := store.NewEigenrayWriter(ctx, outURI+"/eigenrays", 10000)
	if err != nil {
		return err
	}
	verbWriter := store.NewEigenverbWriter(ctx, outURI+"/eigenverbs", 10000)

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	n := runtime.NumCPU() * 2
	pool := pond.New(n, 0, pond.MinWorkers(n), pond.Context(runCtx))

	log.Println("Number of sources to propagate:", len(sources))
	for _, s := range sources {
		s := s
		pool.Submit(func() {
			source := waveq3d.NewPositionFromGeodetic(s.LatDeg, s.LonDeg, s.Depth)
			targets := toTargets(s.Targets)
			if err := propagateOne(cfg, env, source, targets, runID, rayWriter, verbWriter); err != nil {
				log.Println("propagation error:", err)
			}
		})
	}
	pool.StopAndWait()

	log.Println("Flushing eigenrays and eigenverbs")
	if err := rayWriter.Flush(); err != nil {
		return err
	}
	return verbWriter.Flush()
}

func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "config-uri", Usage: "URI or pathname to a TileDB config file."},
		&cli.StringFlag{Name: "out-uri", Usage: "URI or pathname to an output directory.", Required: true},
		&cli.StringFlag{Name: "reference-time", Usage: "GSF-style reference time \"yyyy/ddd hh:mm:ss\" used to stamp run_id."},
		&cli.StringFlag{Name: "profile", Value: "isovelocity", Usage: "Sound-speed profile: isovelocity or munk."},
		&cli.Float64Flag{Name: "sound-speed", Value: 1500, Usage: "Sound speed (m/s) for --profile isovelocity."},
		&cli.StringFlag{Name: "bottom-type", Value: "sand", Usage: "Rayleigh bottom type: sand or gravel."},
		&cli.Float64Flag{Name: "bottom-depth", Value: 1000, Usage: "Flat bottom depth (m)."},
		&cli.Float64Flag{Name: "scattering-db", Usage: "Lambert volume scattering strength (dB), 0 disables."},
		&cli.StringFlag{Name: "freq-hz", Value: "3000", Usage: "Comma-separated frequencies (Hz)."},
		&cli.StringFlag{Name: "de-fan", Value: "-60,60,1", Usage: "Depression/elevation fan \"min,max,step\" (deg)."},
		&cli.StringFlag{Name: "az-fan", Value: "0,360,5", Usage: "Azimuth fan \"min,max,step\" (deg)."},
		&cli.Float64Flag{Name: "time-step", Value: 0.1, Usage: "Integration time step (s)."},
		&cli.Float64Flag{Name: "time-min", Value: 0, Usage: "Minimum propagation time (s)."},
		&cli.Float64Flag{Name: "time-max", Value: 30, Usage: "Maximum propagation time (s)."},
		&cli.Float64Flag{Name: "intensity-threshold", Value: waveq3d.DefaultPowerThreshold, Usage: "dB loss threshold; eigenrays with no frequency below it are dropped."},
		&cli.Float64Flag{Name: "eigenverb-threshold", Usage: "dB power threshold below which eigenverbs are dropped."},
		&cli.BoolFlag{Name: "coherent", Usage: "Sum eigenray contributions coherently."},
	}
}

func main() {
	app := &cli.App{
		Commands: []*cli.Command{
			{
				Name:  "propagate",
				Usage: "Propagate a single source to its targets.",
				Flags: append(commonFlags(),
					&cli.Float64Flag{Name: "source-lat", Required: true},
					&cli.Float64Flag{Name: "source-lon", Required: true},
					&cli.Float64Flag{Name: "source-depth"},
					&cli.StringFlag{Name: "targets-uri", Usage: "URI or pathname to a JSON target list."},
					&cli.Float64Flag{Name: "receiver-lat", Usage: "Enables bistatic biverb combination when set."},
					&cli.Float64Flag{Name: "receiver-lon"},
					&cli.Float64Flag{Name: "receiver-depth"},
				),
				Action: propagate,
			},
			{
				Name:  "propagate-batch",
				Usage: "Propagate many sources concurrently on a worker pool.",
				Flags: append(commonFlags(),
					&cli.StringFlag{Name: "sources-uri", Usage: "URI or pathname to a JSON source list.", Required: true},
				),
				Action: propagateBatch,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
