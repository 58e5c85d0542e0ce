// Package proto flattens a CompressedVector's prototype subtree into the
// ordered field list the binary codec packs records against, and
// validates (or builds a default for) the matching codecs descriptor
// vector.
package proto

import (
	"github.com/e57fs/e57/e57err"
	"github.com/e57fs/e57/internal/bitpack"
	"github.com/e57fs/e57/node"
)

// Field describes one leaf of a flattened prototype: its path relative to
// the prototype root, its variant, the bit width its storage uses (for
// Integer/ScaledInteger, derived from min/max; for Float, its precision
// width; zero for String and Blob, whose storage is not bit-packed), and
// the prototype node itself (source of bounds/scale/offset/precision).
type Field struct {
	Path string
	Kind node.Kind
	Bits int
	Node node.Node
}

// Flatten performs the depth-first traversal of root (a prototype's
// Structure) that defines the field order every record's binary packing
// follows.
func Flatten(root node.Node) ([]Field, error) {
	var fields []Field
	if err := walk(root, "", &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

func walk(n node.Node, prefix string, out *[]Field) error {
	switch n.Kind() {
	case node.KindStructure:
		sn, err := n.AsStructure()
		if err != nil {
			return err
		}
		for i := 0; i < sn.ChildCount(); i++ {
			c, err := sn.Get(i)
			if err != nil {
				return err
			}
			path := c.ElementName()
			if prefix != "" {
				path = prefix + "/" + path
			}
			if err := walk(c, path, out); err != nil {
				return err
			}
		}
		return nil
	case node.KindVector:
		return e57err.Newf(e57err.BadPrototype, "nested Vector not allowed in a prototype: %q", prefix)
	case node.KindCompressedVector:
		return e57err.Newf(e57err.BadPrototype, "nested CompressedVector not allowed in a prototype: %q", prefix)
	case node.KindInteger:
		in, _ := n.AsInteger()
		*out = append(*out, Field{Path: prefix, Kind: node.KindInteger, Bits: bitpack.BitsForRange(in.Min(), in.Max()), Node: n})
		return nil
	case node.KindScaledInteger:
		si, _ := n.AsScaledInteger()
		*out = append(*out, Field{Path: prefix, Kind: node.KindScaledInteger, Bits: bitpack.BitsForRange(si.Min(), si.Max()), Node: n})
		return nil
	case node.KindFloat:
		fl, _ := n.AsFloat()
		width := 64
		if fl.Precision() == node.Single {
			width = 32
		}
		*out = append(*out, Field{Path: prefix, Kind: node.KindFloat, Bits: width, Node: n})
		return nil
	case node.KindString:
		*out = append(*out, Field{Path: prefix, Kind: node.KindString, Node: n})
		return nil
	case node.KindBlob:
		*out = append(*out, Field{Path: prefix, Kind: node.KindBlob, Node: n})
		return nil
	default:
		return e57err.Newf(e57err.BadPrototype, "unsupported prototype node kind at %q", prefix)
	}
}

// bitPackCodec is the only codec this implementation supports: each
// field's storage width comes directly from its Integer/ScaledInteger
// bounds or Float precision.
const bitPackCodec = "bitPackCodec"

// ValidateCodecs checks that every descriptor in codecs names a known
// field path and the supported codec.
func ValidateCodecs(codecs node.VectorNode, fields []Field) error {
	known := make(map[string]bool, len(fields))
	for _, f := range fields {
		known[f.Path] = true
	}
	for i := 0; i < codecs.ChildCount(); i++ {
		c, err := codecs.Get(i)
		if err != nil {
			return err
		}
		cs, err := c.AsStructure()
		if err != nil {
			return e57err.Wrap(e57err.BadCodecs, err, "codec descriptor must be a Structure")
		}
		pathNode, err := cs.GetPath("inputPath")
		if err != nil {
			return e57err.New(e57err.BadCodecs, "codec descriptor missing inputPath")
		}
		pathStr, err := pathNode.AsString()
		if err != nil {
			return e57err.New(e57err.BadCodecs, "inputPath must be a String node")
		}
		if !known[pathStr.Value()] {
			return e57err.Newf(e57err.BadCodecs, "codec references unknown field %q", pathStr.Value())
		}
		codecNode, err := cs.GetPath("codec")
		if err != nil {
			return e57err.New(e57err.BadCodecs, "codec descriptor missing codec name")
		}
		codecStr, err := codecNode.AsString()
		if err != nil {
			return e57err.New(e57err.BadCodecs, "codec name must be a String node")
		}
		if codecStr.Value() != bitPackCodec {
			return e57err.Newf(e57err.BadCodecs, "unsupported codec %q", codecStr.Value())
		}
	}
	return nil
}

// BuildDefaultCodecs constructs a codecs Vector naming bitPackCodec for
// every field, for callers that don't need to customize codec selection.
func BuildDefaultCodecs(t *node.Tree, fields []Field) (node.VectorNode, error) {
	v := node.NewVector(t, false)
	for _, f := range fields {
		d := node.NewStructure(t)
		p := node.NewString(t, f.Path)
		c := node.NewString(t, bitPackCodec)
		if err := d.Set("inputPath", p.Node, false); err != nil {
			return node.VectorNode{}, err
		}
		if err := d.Set("codec", c.Node, false); err != nil {
			return node.VectorNode{}, err
		}
		if err := v.Append(d.Node); err != nil {
			return node.VectorNode{}, err
		}
	}
	return v, nil
}
