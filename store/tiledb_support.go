// Package store provides TileDB-backed persistence for eigenray,
// eigenverb, and biverb collections, adapted from the teacher's
// schema.go/tiledb.go struct-tag-driven array-schema and buffer-binding
// helpers (originally built for GSF ping/beam arrays), generalized here to
// acoustic propagation output collections.
package store

import (
	"errors"
	"reflect"
	"strconv"
	"time"

	tiledb "github.com/TileDB-Inc/TileDB-Go"
	"github.com/samber/lo"
	stgpsr "github.com/yuin/stagparser"
)

var ErrCreateAttr = errors.New("waveq3d/store: error creating tiledb attribute")
var ErrCreateSchema = errors.New("waveq3d/store: error creating tiledb schema")
var ErrCreateArray = errors.New("waveq3d/store: error creating tiledb array")
var ErrAddFilters = errors.New("waveq3d/store: error adding filter to filter list")
var ErrDims = errors.New("waveq3d/store: struct field has unsupported slice depth")
var ErrDtype = errors.New("waveq3d/store: struct field has unsupported element type")
var ErrSetBuffer = errors.New("waveq3d/store: error setting tiledb query buffer")

// ArrayOpen opens the array at uri in the given mode, exactly as the
// teacher's tiledb.go does.
func ArrayOpen(ctx *tiledb.Context, uri string, mode tiledb.QueryType) (*tiledb.Array, error) {
	array, err := tiledb.NewArray(ctx, uri)
	if err != nil {
		return nil, err
	}
	if err := array.Open(mode); err != nil {
		array.Free()
		return nil, err
	}
	return array, nil
}

// AddFilters sequentially appends compression filters to a filter pipeline.
func AddFilters(filterList *tiledb.FilterList, filters ...*tiledb.Filter) error {
	for _, f := range filters {
		if err := filterList.AddFilter(f); err != nil {
			return err
		}
	}
	return nil
}

// ZstdFilter builds a Zstandard compression filter at the given level.
func ZstdFilter(ctx *tiledb.Context, level int32) (*tiledb.Filter, error) {
	filt, err := tiledb.NewFilter(ctx, tiledb.TILEDB_FILTER_ZSTD)
	if err != nil {
		return nil, err
	}
	if err := filt.SetOption(tiledb.TILEDB_COMPRESSION_LEVEL, level); err != nil {
		filt.Free()
		return nil, err
	}
	return filt, nil
}

// AttachFilters sets the same filter pipeline on a batch of attributes.
func AttachFilters(filterList *tiledb.FilterList, attrs ...*tiledb.Attribute) error {
	for _, a := range attrs {
		if err := a.SetFilterList(filterList); err != nil {
			return err
		}
	}
	return nil
}

// CreateAttr creates a tiledb attribute with its compression pipeline,
// configured by the "tiledb"/"filters" struct tags, exactly as the
// teacher's CreateAttr does. Supported tiledb dtype tag values: int8,
// uint8, int16, uint16, int32, uint32, int64, uint64, float32, float64.
// Supported filters tag values: zstd(level=N), bysh (byteshuffle), bish
// (bitshuffle).
func CreateAttr(fieldName string, filterDefs []stgpsr.Definition, tiledbDefs map[string]stgpsr.Definition,
	schema *tiledb.ArraySchema, ctx *tiledb.Context) error {

	def, ok := tiledbDefs["dtype"]
	if !ok {
		return errors.Join(ErrCreateAttr, errors.New("dtype tag not found for "+fieldName))
	}
	dtype, _ := def.Attribute("dtype")

	var tdbType tiledb.Datatype
	switch dtype {
	case "int8":
		tdbType = tiledb.TILEDB_INT8
	case "uint8":
		tdbType = tiledb.TILEDB_UINT8
	case "int16":
		tdbType = tiledb.TILEDB_INT16
	case "uint16":
		tdbType = tiledb.TILEDB_UINT16
	case "int32":
		tdbType = tiledb.TILEDB_INT32
	case "uint32":
		tdbType = tiledb.TILEDB_UINT32
	case "int64":
		tdbType = tiledb.TILEDB_INT64
	case "uint64":
		tdbType = tiledb.TILEDB_UINT64
	case "float32":
		tdbType = tiledb.TILEDB_FLOAT32
	case "float64":
		tdbType = tiledb.TILEDB_FLOAT64
	case "datetime_ns":
		tdbType = tiledb.TILEDB_DATETIME_NS
	default:
		return errors.Join(ErrCreateAttr, errors.New("unsupported dtype: "+dtype.(string)))
	}

	attrFilters, err := tiledb.NewFilterList(ctx)
	if err != nil {
		return errors.Join(ErrCreateAttr, err)
	}
	defer attrFilters.Free()

	for _, filter := range filterDefs {
		switch filter.Name() {
		case "zstd":
			level, ok := filter.Attribute("level")
			if !ok {
				return errors.Join(ErrCreateAttr, errors.New("zstd level not defined"))
			}
			filt, err := ZstdFilter(ctx, int32(level.(int64)))
			if err != nil {
				return errors.Join(ErrCreateAttr, err)
			}
			defer filt.Free()
			if err := attrFilters.AddFilter(filt); err != nil {
				return errors.Join(ErrCreateAttr, err)
			}
		case "bish":
			filt, err := tiledb.NewFilter(ctx, tiledb.TILEDB_FILTER_BITSHUFFLE)
			if err != nil {
				return errors.Join(ErrCreateAttr, err)
			}
			defer filt.Free()
			if err := attrFilters.AddFilter(filt); err != nil {
				return errors.Join(ErrCreateAttr, err)
			}
		case "bysh":
			filt, err := tiledb.NewFilter(ctx, tiledb.TILEDB_FILTER_BYTESHUFFLE)
			if err != nil {
				return errors.Join(ErrCreateAttr, err)
			}
			defer filt.Free()
			if err := attrFilters.AddFilter(filt); err != nil {
				return errors.Join(ErrCreateAttr, err)
			}
		}
	}

	attr, err := tiledb.NewAttribute(ctx, fieldName, tdbType)
	if err != nil {
		return errors.Join(ErrCreateAttr, err)
	}
	defer attr.Free()

	_, isVar := tiledbDefs["var"]
	if isVar {
		if err := attr.SetCellValNum(tiledb.TILEDB_VAR_NUM); err != nil {
			return errors.Join(ErrCreateAttr, err)
		}
	}

	if err := AttachFilters(attrFilters, attr); err != nil {
		return errors.Join(ErrCreateAttr, err)
	}
	if err := schema.AddAttributes(attr); err != nil {
		return errors.Join(ErrCreateAttr, err)
	}

	if isVar {
		offsetFilters, err := tiledb.NewFilterList(ctx)
		if err != nil {
			return errors.Join(ErrCreateAttr, err)
		}
		ddFilt, err := tiledb.NewFilter(ctx, tiledb.TILEDB_FILTER_POSITIVE_DELTA)
		if err != nil {
			return errors.Join(ErrCreateAttr, err)
		}
		zstdFilt, err := ZstdFilter(ctx, 16)
		if err != nil {
			return errors.Join(ErrCreateAttr, err)
		}
		if err := AddFilters(offsetFilters, ddFilt, zstdFilt); err != nil {
			return errors.Join(ErrCreateAttr, err)
		}
		if err := schema.SetOffsetsFilterList(offsetFilters); err != nil {
			return errors.Join(ErrCreateAttr, err)
		}
	}

	return nil
}

// schemaAttrs walks the exported fields of t (a pointer to a zero-value
// batch struct) and adds one tiledb attribute per non-dimension field,
// exactly as the teacher's schemaAttrs does for PingHeaders/EM4.
func schemaAttrs(t any, schema *tiledb.ArraySchema, ctx *tiledb.Context) error {
	values := reflect.ValueOf(t).Elem()
	types := values.Type()
	filtDefs, _ := stgpsr.ParseStruct(t, "filters")
	tdbDefs, _ := stgpsr.ParseStruct(t, "tiledb")

	for i := 0; i < values.NumField(); i++ {
		name := types.Field(i).Name

		fieldTdbDefs := make(map[string]stgpsr.Definition)
		for _, v := range tdbDefs[name] {
			fieldTdbDefs[v.Name()] = v
		}

		def, ok := fieldTdbDefs["ftype"]
		if !ok {
			return errors.Join(ErrCreateAttr, errors.New("ftype tag not found for "+name))
		}
		ftype, _ := def.Attribute("ftype")
		if ftype == "dim" {
			continue
		}

		if err := CreateAttr(name, filtDefs[name], fieldTdbDefs, schema, ctx); err != nil {
			return err
		}
	}
	return nil
}

// sliceDimsType reports how many slice levels deep a struct field's type
// goes and the underlying scalar type, the way the teacher's helper of the
// same name does for its reflection-driven buffer binding.
func sliceDimsType(typ reflect.Type, dims *int) reflect.Type {
	if typ.Kind() == reflect.Slice {
		*dims++
		return sliceDimsType(typ.Elem(), dims)
	}
	return typ
}

// sliceOffsets computes the byte offsets TileDB needs for a column of
// variable-length cells.
func sliceOffsets[T any](s [][]T, byteSize uint64) []uint64 {
	out := make([]uint64, len(s))
	offset := uint64(0)
	for i := range s {
		out[i] = offset
		offset += uint64(len(s[i])) * byteSize
	}
	return out
}

// setStructFieldBuffers binds every exported field of t (a pointer to a
// populated batch struct) as a tiledb query data (or offsets+data) buffer,
// following the same 1D-fixed/2D-variable convention the teacher's
// function of the same name uses.
func setStructFieldBuffers(query *tiledb.Query, t any) error {
	const (
		bytesize4 = uint64(4)
		bytesize8 = uint64(8)
	)

	values := reflect.ValueOf(t).Elem()
	types := reflect.TypeOf(t).Elem()
	for i := 0; i < values.NumField(); i++ {
		fld := values.Field(i)
		typ := fld.Type()
		if !types.Field(i).IsExported() {
			continue
		}
		name := types.Field(i).Name
		dims := 0
		stype := sliceDimsType(typ, &dims)

		var err error
		switch dims {
		case 1:
			switch stype.Kind() {
			case reflect.Int32:
				_, err = query.SetDataBuffer(name, fld.Interface().([]int32))
			case reflect.Int64:
				_, err = query.SetDataBuffer(name, fld.Interface().([]int64))
			case reflect.Uint8:
				_, err = query.SetDataBuffer(name, fld.Interface().([]uint8))
			case reflect.Float64:
				_, err = query.SetDataBuffer(name, fld.Interface().([]float64))
			default:
				if stype == reflect.TypeOf(time.Time{}) {
					slc := fld.Interface().([]time.Time)
					stamps := make([]int64, len(slc))
					for j, tm := range slc {
						stamps[j] = tm.UnixNano()
					}
					_, err = query.SetDataBuffer(name, stamps)
				} else {
					return errors.Join(ErrDtype, errors.New(stype.String()))
				}
			}
		case 2:
			switch stype.Kind() {
			case reflect.Uint8:
				slc := fld.Interface().([][]uint8)
				flt := lo.Flatten(slc)
				off := sliceOffsets(slc, 1)
				if _, err = query.SetOffsetsBuffer(name, off); err != nil {
					return errors.Join(ErrSetBuffer, err, errors.New(name))
				}
				_, err = query.SetDataBuffer(name, flt)
			case reflect.Float64:
				slc := fld.Interface().([][]float64)
				flt := lo.Flatten(slc)
				off := sliceOffsets(slc, bytesize8)
				if _, err = query.SetOffsetsBuffer(name, off); err != nil {
					return errors.Join(ErrSetBuffer, err, errors.New(name))
				}
				_, err = query.SetDataBuffer(name, flt)
			case reflect.Int32:
				slc := fld.Interface().([][]int32)
				flt := lo.Flatten(slc)
				off := sliceOffsets(slc, bytesize4)
				if _, err = query.SetOffsetsBuffer(name, off); err != nil {
					return errors.Join(ErrSetBuffer, err, errors.New(name))
				}
				_, err = query.SetDataBuffer(name, flt)
			default:
				return errors.Join(ErrDtype, errors.New(stype.String()))
			}
		default:
			return errors.Join(ErrDims, errors.New(strconv.Itoa(dims)))
		}
		if err != nil {
			return errors.Join(ErrSetBuffer, err, errors.New(name))
		}
	}
	return nil
}
