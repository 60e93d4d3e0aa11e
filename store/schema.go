package store

import (
	"encoding/json"
	"errors"

	tiledb "github.com/TileDB-Inc/TileDB-Go"

	"github.com/sixy6e/waveq3d"
)

// eigenrayBatch is both the schema declaration (via its struct tags, read
// by schemaAttrs) and the columnar write buffer (via setStructFieldBuffers)
// for one flush of accumulated eigenrays, mirroring the dual-purpose role
// the teacher's PingHeaders/EM4 structs play in schema.go.
type eigenrayBatch struct {
	TargetRow []int32 `tiledb:"dtype=int32,ftype=dim"`
	TargetCol []int32 `tiledb:"dtype=int32,ftype=dim"`

	Time     []float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	SourceDE []float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	SourceAZ []float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	TargetDE []float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	TargetAZ []float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`

	Surface []int32 `tiledb:"dtype=int32,ftype=attr" filters:"zstd(level=16)"`
	Bottom  []int32 `tiledb:"dtype=int32,ftype=attr" filters:"zstd(level=16)"`
	Caustic []int32 `tiledb:"dtype=int32,ftype=attr" filters:"zstd(level=16)"`

	Intensity [][]float64 `tiledb:"dtype=float64,ftype=attr,var" filters:"bysh,zstd(level=16)"`
	Phase     [][]float64 `tiledb:"dtype=float64,ftype=attr,var" filters:"bysh,zstd(level=16)"`

	// Counts serialises the per-layer Upper/Lower bounce counters, which
	// have no fixed width, to a JSON string attribute (stored as raw
	// bytes), following the teacher's json.go JsonDumps pattern for
	// awkward-shaped fields it would otherwise need a variable-length
	// sub-schema for.
	Counts [][]uint8 `tiledb:"dtype=uint8,ftype=attr,var" filters:"zstd(level=16)"`

	RunID [][]uint8 `tiledb:"dtype=uint8,ftype=attr,var" filters:"zstd(level=16)"`
}

// eigenverbBatch is the schema/write-buffer struct for one flush of
// accumulated eigenverbs at a single interface.
type eigenverbBatch struct {
	DE []int32 `tiledb:"dtype=int32,ftype=dim"`
	AZ []int32 `tiledb:"dtype=int32,ftype=dim"`

	Time       []float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	Rho        []float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	Theta      []float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	Phi        []float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	Grazing    []float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	Azimuth    []float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	SoundSpeed []float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	Length     []float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	Width      []float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`

	Power [][]float64 `tiledb:"dtype=float64,ftype=attr,var" filters:"bysh,zstd(level=16)"`
	Freq  [][]float64 `tiledb:"dtype=float64,ftype=attr,var" filters:"bysh,zstd(level=16)"`

	Counts [][]uint8 `tiledb:"dtype=uint8,ftype=attr,var" filters:"zstd(level=16)"`
}

// biverbBatch is the schema/write-buffer struct for one flush of
// accumulated biverbs at a single interface.
type biverbBatch struct {
	DE []int32 `tiledb:"dtype=int32,ftype=dim"`
	AZ []int32 `tiledb:"dtype=int32,ftype=dim"`

	Time     []float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	Duration []float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`

	SourceDE   []float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	SourceAZ   []float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	ReceiverDE []float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	ReceiverAZ []float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`

	Power [][]float64 `tiledb:"dtype=float64,ftype=attr,var" filters:"bysh,zstd(level=16)"`

	SourceCounts   [][]uint8 `tiledb:"dtype=uint8,ftype=attr,var" filters:"zstd(level=16)"`
	ReceiverCounts [][]uint8 `tiledb:"dtype=uint8,ftype=attr,var" filters:"zstd(level=16)"`
}

// gridDomain builds an int32 (dimName1, dimName2) domain spanning
// [-extent, extent], wide enough for target indices or DE/AZ grid indices,
// the same manually-built-domain shape the teacher's pingDenseSchema and
// beamSparseSchema use for their PING_ID/X/Y dimensions.
func gridDomain(ctx *tiledb.Context, dim1Name, dim2Name string, extent int32) (*tiledb.Domain, error) {
	d1, err := tiledb.NewDimension(ctx, dim1Name, tiledb.TILEDB_INT32, []int32{-extent, extent}, extent)
	if err != nil {
		return nil, err
	}
	d2, err := tiledb.NewDimension(ctx, dim2Name, tiledb.TILEDB_INT32, []int32{-extent, extent}, extent)
	if err != nil {
		return nil, err
	}
	domain, err := tiledb.NewDomain(ctx)
	if err != nil {
		return nil, err
	}
	if err := domain.AddDimensions(d1, d2); err != nil {
		return nil, err
	}
	return domain, nil
}

// newSparseSchema builds a sparse, duplicate-permitting array schema over
// domain and the attributes declared by batchProto's struct tags, the same
// AllowDups(true)-for-multiple-records-per-cell shape the teacher's
// beamSparseSchema uses for multiple soundings landing in one Hilbert cell
// (here: multiple eigenrays/eigenverbs/biverbs landing on one grid index).
func newSparseSchema(ctx *tiledb.Context, domain *tiledb.Domain, batchProto any) (*tiledb.ArraySchema, error) {
	schema, err := tiledb.NewArraySchema(ctx, tiledb.TILEDB_SPARSE)
	if err != nil {
		return nil, errors.Join(ErrCreateSchema, err)
	}
	if err := schema.SetDomain(domain); err != nil {
		return nil, errors.Join(ErrCreateSchema, err)
	}
	if err := schema.SetCellOrder(tiledb.TILEDB_HILBERT); err != nil {
		return nil, errors.Join(ErrCreateSchema, err)
	}
	if err := schema.SetTileOrder(tiledb.TILEDB_ROW_MAJOR); err != nil {
		return nil, errors.Join(ErrCreateSchema, err)
	}
	if err := schema.SetAllowsDups(true); err != nil {
		return nil, errors.Join(ErrCreateSchema, err)
	}
	if err := schemaAttrs(batchProto, schema, ctx); err != nil {
		return nil, err
	}
	if err := schema.Check(); err != nil {
		return nil, errors.Join(ErrCreateSchema, err)
	}
	return schema, nil
}

// EigenraySchema builds the array schema for an eigenray collection array,
// dimensioned by (TargetRow, TargetCol) with extent large enough to hold
// any target grid up to extent x extent.
func EigenraySchema(ctx *tiledb.Context, extent int32) (*tiledb.ArraySchema, error) {
	domain, err := gridDomain(ctx, "TargetRow", "TargetCol", extent)
	if err != nil {
		return nil, errors.Join(ErrCreateSchema, err)
	}
	return newSparseSchema(ctx, domain, &eigenrayBatch{})
}

// EigenverbSchema builds the array schema for one interface's eigenverb
// collection array, dimensioned by (DE, AZ) ray-fan index.
func EigenverbSchema(ctx *tiledb.Context, extent int32) (*tiledb.ArraySchema, error) {
	domain, err := gridDomain(ctx, "DE", "AZ", extent)
	if err != nil {
		return nil, errors.Join(ErrCreateSchema, err)
	}
	return newSparseSchema(ctx, domain, &eigenverbBatch{})
}

// BiverbSchema builds the array schema for one interface's biverb
// collection array, dimensioned by the receiver verb's (DE, AZ) index.
func BiverbSchema(ctx *tiledb.Context, extent int32) (*tiledb.ArraySchema, error) {
	domain, err := gridDomain(ctx, "DE", "AZ", extent)
	if err != nil {
		return nil, errors.Join(ErrCreateSchema, err)
	}
	return newSparseSchema(ctx, domain, &biverbBatch{})
}

// CreateArray creates a new array at uri with the given schema if one does
// not already exist there.
func CreateArray(ctx *tiledb.Context, uri string, schema *tiledb.ArraySchema) error {
	if err := tiledb.CreateArray(ctx, uri, schema); err != nil {
		return errors.Join(ErrCreateArray, err)
	}
	return nil
}

func marshalCounts(c waveq3d.Counts) []uint8 {
	b, err := json.Marshal(c)
	if err != nil {
		return []uint8("{}")
	}
	return []uint8(b)
}
