package proto

import (
	"testing"

	"github.com/e57fs/e57/node"
)

func buildPrototype(t *testing.T) (node.Node, *node.Tree) {
	tree := node.NewTree()
	s := node.NewStructure(tree)
	x, err := node.NewInteger(tree, 0, 0, 1023)
	if err != nil {
		t.Fatal(err)
	}
	y, err := node.NewInteger(tree, 0, -1, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Set("x", x.Node, false); err != nil {
		t.Fatal(err)
	}
	if err := s.Set("y", y.Node, false); err != nil {
		t.Fatal(err)
	}
	return s.Node, tree
}

func TestFlattenBitWidths(t *testing.T) {
	proto, _ := buildPrototype(t)
	fields, err := Flatten(proto)
	if err != nil {
		t.Fatal(err)
	}
	if len(fields) != 2 {
		t.Fatalf("got %d fields, want 2", len(fields))
	}
	if fields[0].Path != "x" || fields[0].Bits != 10 {
		t.Errorf("x: path=%q bits=%d, want path=x bits=10", fields[0].Path, fields[0].Bits)
	}
	if fields[1].Path != "y" || fields[1].Bits != 2 {
		t.Errorf("y: path=%q bits=%d, want path=y bits=2", fields[1].Path, fields[1].Bits)
	}
}

func TestFlattenDegenerateRangeUsesZeroBits(t *testing.T) {
	tree := node.NewTree()
	s := node.NewStructure(tree)
	constant, err := node.NewInteger(tree, 5, 5, 5)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Set("c", constant.Node, false); err != nil {
		t.Fatal(err)
	}
	fields, err := Flatten(s.Node)
	if err != nil {
		t.Fatal(err)
	}
	if fields[0].Bits != 0 {
		t.Errorf("degenerate [5,5] range: bits=%d, want 0", fields[0].Bits)
	}
}

func TestValidateCodecsRejectsUnknownField(t *testing.T) {
	proto, tree := buildPrototype(t)
	fields, err := Flatten(proto)
	if err != nil {
		t.Fatal(err)
	}
	codecs := node.NewVector(tree, false)
	d := node.NewStructure(tree)
	p := node.NewString(tree, "z")
	c := node.NewString(tree, "bitPackCodec")
	d.Set("inputPath", p.Node, false)
	d.Set("codec", c.Node, false)
	if err := codecs.Append(d.Node); err != nil {
		t.Fatal(err)
	}
	if err := ValidateCodecs(codecs, fields); err == nil {
		t.Error("ValidateCodecs accepted a descriptor referencing an unknown field")
	}
}

func TestBuildDefaultCodecsValidates(t *testing.T) {
	proto, tree := buildPrototype(t)
	fields, err := Flatten(proto)
	if err != nil {
		t.Fatal(err)
	}
	codecs, err := BuildDefaultCodecs(tree, fields)
	if err != nil {
		t.Fatal(err)
	}
	if err := ValidateCodecs(codecs, fields); err != nil {
		t.Errorf("ValidateCodecs rejected its own BuildDefaultCodecs output: %v", err)
	}
}
