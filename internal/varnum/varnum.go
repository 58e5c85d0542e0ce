// Package varnum holds the small numeric-representability helpers behind
// the compressed-vector codec's caller-buffer <-> storage conversions.
// Each helper answers "does this value fit exactly" for one value; the
// caller (cvec.Buffer) asks per element and consults its DoConversion flag
// when the answer is no.
package varnum

import "golang.org/x/exp/constraints"

// NarrowSigned converts v to T, reporting whether the conversion was exact.
func NarrowSigned[T constraints.Signed](v int64) (T, bool) {
	r := T(v)
	return r, int64(r) == v
}

// NarrowUnsigned converts v to T, reporting whether the conversion was
// exact (v must be representable as a non-negative T).
func NarrowUnsigned[T constraints.Unsigned](v int64) (T, bool) {
	if v < 0 {
		return 0, false
	}
	r := T(v)
	return r, int64(r) == v
}

// WidenSigned converts a signed integer of any width to int64 (always
// exact).
func WidenSigned[T constraints.Signed](v T) int64 { return int64(v) }

// WidenUnsigned converts an unsigned integer of any width to int64. It is
// inexact only for uint64 values that overflow int64.
func WidenUnsigned[T constraints.Unsigned](v T) (int64, bool) {
	if uint64(v) > 1<<63-1 {
		return 0, false
	}
	return int64(v), true
}

// NarrowFloat32 converts v to float32, reporting whether the round trip
// back to float64 reproduces v exactly.
func NarrowFloat32(v float64) (float32, bool) {
	f := float32(v)
	return f, float64(f) == v
}
