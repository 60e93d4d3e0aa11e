package store

import (
	"sync"

	tiledb "github.com/TileDB-Inc/TileDB-Go"

	"github.com/sixy6e/waveq3d"
)

// EigenrayWriter is a waveq3d.EigenrayListener that buffers extracted
// eigenrays and flushes them to a TileDB array, following the teacher's
// buffer-then-write shape in PingArrays: accumulate column slices in Go
// memory, then bind them as query buffers in one write per flush.
type EigenrayWriter struct {
	ctx   *tiledb.Context
	uri   string
	mu    sync.Mutex
	batch eigenrayBatch
}

// NewEigenrayWriter opens (creating if absent) a sparse eigenray array at
// uri (extent sets the schema's dimension tile extent) and returns a writer
// that buffers eigenrays until Flush writes them.
func NewEigenrayWriter(ctx *tiledb.Context, uri string, extent int32) (*EigenrayWriter, error) {
	schema, err := EigenraySchema(ctx, extent)
	if err != nil {
		return nil, err
	}
	// CreateArray errors when the array already exists from a prior run;
	// that is the expected steady-state case for a long-lived run
	// directory, so it is ignored rather than treated as fatal.
	_ = CreateArray(ctx, uri, schema)
	return &EigenrayWriter{ctx: ctx, uri: uri}, nil
}

// AddEigenray implements waveq3d.EigenrayListener.
func (w *EigenrayWriter) AddEigenray(targetRow, targetCol int, ray waveq3d.Eigenray, runID string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.batch.TargetRow = append(w.batch.TargetRow, int32(targetRow))
	w.batch.TargetCol = append(w.batch.TargetCol, int32(targetCol))
	w.batch.Time = append(w.batch.Time, ray.Time)
	w.batch.SourceDE = append(w.batch.SourceDE, ray.SourceDE)
	w.batch.SourceAZ = append(w.batch.SourceAZ, ray.SourceAZ)
	w.batch.TargetDE = append(w.batch.TargetDE, ray.TargetDE)
	w.batch.TargetAZ = append(w.batch.TargetAZ, ray.TargetAZ)
	w.batch.Surface = append(w.batch.Surface, int32(ray.Surface))
	w.batch.Bottom = append(w.batch.Bottom, int32(ray.Bottom))
	w.batch.Caustic = append(w.batch.Caustic, int32(ray.Caustic))
	w.batch.Intensity = append(w.batch.Intensity, ray.Intensity)
	w.batch.Phase = append(w.batch.Phase, ray.Phase)
	w.batch.Counts = append(w.batch.Counts, marshalCounts(waveq3d.Counts{
		Surface: ray.Surface, Bottom: ray.Bottom, Caustic: ray.Caustic,
		Upper: []int{ray.Upper}, Lower: []int{ray.Lower},
	}))
	w.batch.RunID = append(w.batch.RunID, []uint8(runID))
}

// Flush writes every buffered eigenray to the array and clears the buffer.
// Safe to call repeatedly (e.g. periodically during a long run) and once
// more at the end of a run.
func (w *EigenrayWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.batch.TargetRow) == 0 {
		return nil
	}
	if err := writeBatch(w.ctx, w.uri, &w.batch); err != nil {
		return err
	}
	w.batch = eigenrayBatch{}
	return nil
}

// EigenverbWriter is a waveq3d.EigenverbListener that buffers emitted
// eigenverbs per interface and flushes each interface's accumulated
// patches to its own TileDB array.
type EigenverbWriter struct {
	ctx       *tiledb.Context
	uriPrefix string
	extent    int32
	mu        sync.Mutex
	batches   map[waveq3d.Interface]*eigenverbBatch
}

// NewEigenverbWriter returns a writer that lazily creates one array per
// interface at uriPrefix+"/"+string(interface).
func NewEigenverbWriter(ctx *tiledb.Context, uriPrefix string, extent int32) *EigenverbWriter {
	return &EigenverbWriter{
		ctx: ctx, uriPrefix: uriPrefix, extent: extent,
		batches: make(map[waveq3d.Interface]*eigenverbBatch),
	}
}

func (w *EigenverbWriter) arrayURI(iface waveq3d.Interface) string {
	return w.uriPrefix + "/" + string(iface)
}

// AddEigenverb implements waveq3d.EigenverbListener.
func (w *EigenverbWriter) AddEigenverb(verb waveq3d.Eigenverb, iface waveq3d.Interface) {
	w.mu.Lock()
	defer w.mu.Unlock()

	b, ok := w.batches[iface]
	if !ok {
		b = &eigenverbBatch{}
		w.batches[iface] = b
	}
	b.DE = append(b.DE, int32(verb.DE))
	b.AZ = append(b.AZ, int32(verb.AZ))
	b.Time = append(b.Time, verb.Time)
	b.Rho = append(b.Rho, verb.Position.Rho)
	b.Theta = append(b.Theta, verb.Position.Theta)
	b.Phi = append(b.Phi, verb.Position.Phi)
	b.Grazing = append(b.Grazing, verb.Grazing)
	b.Azimuth = append(b.Azimuth, verb.Azimuth)
	b.SoundSpeed = append(b.SoundSpeed, verb.SoundSpeed)
	b.Length = append(b.Length, verb.Length)
	b.Width = append(b.Width, verb.Width)
	b.Power = append(b.Power, verb.Power)
	b.Freq = append(b.Freq, verb.Freq.Values())
	b.Counts = append(b.Counts, marshalCounts(verb.Counts))
}

// Flush writes every buffered eigenverb, per interface, to its array.
func (w *EigenverbWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for iface, b := range w.batches {
		if len(b.DE) == 0 {
			continue
		}
		uri := w.arrayURI(iface)
		schema, err := EigenverbSchema(w.ctx, w.extent)
		if err != nil {
			return err
		}
		_ = CreateArray(w.ctx, uri, schema)
		if err := writeBatch(w.ctx, uri, b); err != nil {
			return err
		}
		w.batches[iface] = &eigenverbBatch{}
	}
	return nil
}

// BiverbWriter buffers waveq3d.Biverb results per interface and flushes
// them to one TileDB array per interface, the bistatic-reverberation
// analogue of EigenverbWriter.
type BiverbWriter struct {
	ctx       *tiledb.Context
	uriPrefix string
	extent    int32
	mu        sync.Mutex
	batches   map[waveq3d.Interface]*biverbBatch
}

// NewBiverbWriter returns a writer that lazily creates one array per
// interface at uriPrefix+"/"+string(interface).
func NewBiverbWriter(ctx *tiledb.Context, uriPrefix string, extent int32) *BiverbWriter {
	return &BiverbWriter{
		ctx: ctx, uriPrefix: uriPrefix, extent: extent,
		batches: make(map[waveq3d.Interface]*biverbBatch),
	}
}

// Add records one biverb contribution, bucketed by its own Interface field.
func (w *BiverbWriter) Add(verb waveq3d.Biverb) {
	w.mu.Lock()
	defer w.mu.Unlock()

	b, ok := w.batches[verb.Interface]
	if !ok {
		b = &biverbBatch{}
		w.batches[verb.Interface] = b
	}
	b.DE = append(b.DE, int32(verb.DE))
	b.AZ = append(b.AZ, int32(verb.AZ))
	b.Time = append(b.Time, verb.Time)
	b.Duration = append(b.Duration, verb.Duration)
	b.SourceDE = append(b.SourceDE, verb.SourceDE)
	b.SourceAZ = append(b.SourceAZ, verb.SourceAZ)
	b.ReceiverDE = append(b.ReceiverDE, verb.ReceiverDE)
	b.ReceiverAZ = append(b.ReceiverAZ, verb.ReceiverAZ)
	b.Power = append(b.Power, verb.Power)
	b.SourceCounts = append(b.SourceCounts, marshalCounts(verb.SourceCounts))
	b.ReceiverCounts = append(b.ReceiverCounts, marshalCounts(verb.ReceiverCounts))
}

// Flush writes every buffered biverb, per interface, to its array.
func (w *BiverbWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for iface, b := range w.batches {
		if len(b.DE) == 0 {
			continue
		}
		uri := w.uriPrefix + "/" + string(iface)
		schema, err := BiverbSchema(w.ctx, w.extent)
		if err != nil {
			return err
		}
		_ = CreateArray(w.ctx, uri, schema)
		if err := writeBatch(w.ctx, uri, b); err != nil {
			return err
		}
		w.batches[iface] = &biverbBatch{}
	}
	return nil
}

// writeBatch opens uri for writing, binds batch's fields as query buffers,
// and submits a single unordered write, mirroring the teacher's
// (fi *FileInfo) PingArrays write sequence: open, new query, bind buffers,
// submit, finalize, close.
func writeBatch(ctx *tiledb.Context, uri string, batch any) error {
	array, err := ArrayOpen(ctx, uri, tiledb.TILEDB_WRITE)
	if err != nil {
		return err
	}
	defer array.Close()
	defer array.Free()

	query, err := tiledb.NewQuery(ctx, array)
	if err != nil {
		return err
	}
	defer query.Free()

	if err := query.SetLayout(tiledb.TILEDB_UNORDERED); err != nil {
		return err
	}
	if err := setStructFieldBuffers(query, batch); err != nil {
		return err
	}
	if err := query.Submit(); err != nil {
		return err
	}
	return query.Finalize()
}
