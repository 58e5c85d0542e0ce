// Package cvec implements the CompressedVector binary codec: bit-packing
// prototype-typed records into length-prefixed packets and back, against
// caller-supplied source/destination buffers.
package cvec

import (
	"math"

	"github.com/e57fs/e57/e57err"
	"github.com/e57fs/e57/internal/varnum"
)

// BufferKind names the Go storage type backing one Buffer.
type BufferKind int8

const (
	BufferInt8 BufferKind = iota
	BufferInt16
	BufferInt32
	BufferInt64
	BufferUint8
	BufferUint16
	BufferUint32
	BufferUint64
	BufferFloat32
	BufferFloat64
	BufferString
)

// Buffer binds one prototype field path to caller-owned storage. Exactly
// one of the typed slices is used, selected by Kind. DoConversion permits
// lossy numeric conversions (inexact narrowing or rounding) that would
// otherwise be rejected; DoScaling permits a ScaledInteger field to be
// read from or written to a floating-point buffer holding physical-unit
// values rather than the raw stored integer.
type Buffer struct {
	Path string
	Kind BufferKind

	Int8    []int8
	Int16   []int16
	Int32   []int32
	Int64   []int64
	Uint8   []uint8
	Uint16  []uint16
	Uint32  []uint32
	Uint64  []uint64
	Float32 []float32
	Float64 []float64
	String  []string

	DoConversion bool
	DoScaling    bool
}

// Len reports the capacity of the active slice.
func (b *Buffer) Len() int {
	switch b.Kind {
	case BufferInt8:
		return len(b.Int8)
	case BufferInt16:
		return len(b.Int16)
	case BufferInt32:
		return len(b.Int32)
	case BufferInt64:
		return len(b.Int64)
	case BufferUint8:
		return len(b.Uint8)
	case BufferUint16:
		return len(b.Uint16)
	case BufferUint32:
		return len(b.Uint32)
	case BufferUint64:
		return len(b.Uint64)
	case BufferFloat32:
		return len(b.Float32)
	case BufferFloat64:
		return len(b.Float64)
	case BufferString:
		return len(b.String)
	default:
		return 0
	}
}

// IsNumeric reports whether the buffer holds a numeric type.
func (b *Buffer) IsNumeric() bool { return b.Kind != BufferString }

// GetInt reads element i as int64. Floating-point buffers always require
// an explicit scaling decision by the caller and are rejected here.
func (b *Buffer) GetInt(i int) (int64, error) {
	switch b.Kind {
	case BufferInt8:
		return varnum.WidenSigned(b.Int8[i]), nil
	case BufferInt16:
		return varnum.WidenSigned(b.Int16[i]), nil
	case BufferInt32:
		return varnum.WidenSigned(b.Int32[i]), nil
	case BufferInt64:
		return b.Int64[i], nil
	case BufferUint8:
		v, _ := varnum.WidenUnsigned(b.Uint8[i])
		return v, nil
	case BufferUint16:
		v, _ := varnum.WidenUnsigned(b.Uint16[i])
		return v, nil
	case BufferUint32:
		v, _ := varnum.WidenUnsigned(b.Uint32[i])
		return v, nil
	case BufferUint64:
		v, ok := varnum.WidenUnsigned(b.Uint64[i])
		if !ok {
			return 0, e57err.New(e57err.ValueNotRepresentable, "uint64 value exceeds int64 range")
		}
		return v, nil
	case BufferString:
		return 0, e57err.New(e57err.ExpectingNumeric, "buffer holds text")
	default:
		return 0, e57err.New(e57err.ConversionRequired, "buffer holds a float; field requires explicit scaling")
	}
}

// GetFloat reads element i as float64, widening integer buffers.
func (b *Buffer) GetFloat(i int) (float64, error) {
	switch b.Kind {
	case BufferFloat32:
		return float64(b.Float32[i]), nil
	case BufferFloat64:
		return b.Float64[i], nil
	case BufferString:
		return 0, e57err.New(e57err.ExpectingNumeric, "buffer holds text")
	default:
		v, err := b.GetInt(i)
		if err != nil {
			return 0, err
		}
		return float64(v), nil
	}
}

// GetString reads element i as a string.
func (b *Buffer) GetString(i int) (string, error) {
	if b.Kind != BufferString {
		return "", e57err.New(e57err.ExpectingUString, "buffer holds numeric data")
	}
	return b.String[i], nil
}

// SetInt writes v into element i, narrowing and reporting
// ValueNotRepresentable when the narrowing is inexact and DoConversion is
// false.
func (b *Buffer) SetInt(i int, v int64) error {
	switch b.Kind {
	case BufferInt8:
		n, ok := varnum.NarrowSigned[int8](v)
		if !ok && !b.DoConversion {
			return e57err.Newf(e57err.ValueNotRepresentable, "%d does not fit int8", v)
		}
		b.Int8[i] = n
	case BufferInt16:
		n, ok := varnum.NarrowSigned[int16](v)
		if !ok && !b.DoConversion {
			return e57err.Newf(e57err.ValueNotRepresentable, "%d does not fit int16", v)
		}
		b.Int16[i] = n
	case BufferInt32:
		n, ok := varnum.NarrowSigned[int32](v)
		if !ok && !b.DoConversion {
			return e57err.Newf(e57err.ValueNotRepresentable, "%d does not fit int32", v)
		}
		b.Int32[i] = n
	case BufferInt64:
		b.Int64[i] = v
	case BufferUint8:
		n, ok := varnum.NarrowUnsigned[uint8](v)
		if !ok && !b.DoConversion {
			return e57err.Newf(e57err.ValueNotRepresentable, "%d does not fit uint8", v)
		}
		b.Uint8[i] = n
	case BufferUint16:
		n, ok := varnum.NarrowUnsigned[uint16](v)
		if !ok && !b.DoConversion {
			return e57err.Newf(e57err.ValueNotRepresentable, "%d does not fit uint16", v)
		}
		b.Uint16[i] = n
	case BufferUint32:
		n, ok := varnum.NarrowUnsigned[uint32](v)
		if !ok && !b.DoConversion {
			return e57err.Newf(e57err.ValueNotRepresentable, "%d does not fit uint32", v)
		}
		b.Uint32[i] = n
	case BufferUint64:
		n, ok := varnum.NarrowUnsigned[uint64](v)
		if !ok && !b.DoConversion {
			return e57err.Newf(e57err.ValueNotRepresentable, "%d does not fit uint64", v)
		}
		b.Uint64[i] = n
	case BufferFloat32:
		b.Float32[i] = float32(v)
	case BufferFloat64:
		b.Float64[i] = float64(v)
	default:
		return e57err.New(e57err.ExpectingNumeric, "destination buffer holds text")
	}
	return nil
}

// SetFloat writes v into element i.
func (b *Buffer) SetFloat(i int, v float64) error {
	switch b.Kind {
	case BufferFloat64:
		b.Float64[i] = v
	case BufferFloat32:
		f, ok := varnum.NarrowFloat32(v)
		if !ok && !b.DoConversion {
			if math.Abs(v) > math.MaxFloat32 {
				return e57err.Newf(e57err.Real64TooLarge, "%v does not fit a 32 bit float", v)
			}
			return e57err.Newf(e57err.ConversionRequired, "%v is not exactly representable as a 32 bit float", v)
		}
		b.Float32[i] = f
	default:
		return e57err.New(e57err.ExpectingNumeric, "destination buffer is not floating point")
	}
	return nil
}

// SetString writes v into element i.
func (b *Buffer) SetString(i int, v string) error {
	if b.Kind != BufferString {
		return e57err.New(e57err.ExpectingUString, "destination buffer holds numeric data")
	}
	b.String[i] = v
	return nil
}
