package xmlcodec

import (
	"bytes"
	"testing"

	"github.com/e57fs/e57/node"
)

func buildSample(t *testing.T) *node.Tree {
	tree := node.NewTree()
	root, err := node.Wrap(tree, tree.Root()).AsStructure()
	if err != nil {
		t.Fatal(err)
	}

	formatName := node.NewString(tree, "ASTM E57 3D Imaging Data File")
	if err := root.Set("formatName", formatName.Node, false); err != nil {
		t.Fatal(err)
	}

	count, err := node.NewInteger(tree, 7, 0, 1023)
	if err != nil {
		t.Fatal(err)
	}
	if err := root.Set("pointCount", count.Node, false); err != nil {
		t.Fatal(err)
	}

	scaled, err := node.NewScaledInteger(tree, 25, -1000, 1000, 0.5, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := root.Set("distance", scaled.Node, false); err != nil {
		t.Fatal(err)
	}

	fl, err := node.NewFloat(tree, 3.5, node.Double, -100, 100)
	if err != nil {
		t.Fatal(err)
	}
	if err := root.Set("temperature", fl.Node, false); err != nil {
		t.Fatal(err)
	}

	vec := node.NewVector(tree, false)
	if err := root.Set("tags", vec.Node, false); err != nil {
		t.Fatal(err)
	}
	a, _ := node.NewInteger(tree, 1, 0, 255)
	b, _ := node.NewInteger(tree, 2, 0, 255)
	if err := vec.Append(a.Node); err != nil {
		t.Fatal(err)
	}
	if err := vec.Append(b.Node); err != nil {
		t.Fatal(err)
	}

	return tree
}

func TestWriteParseRoundTrip(t *testing.T) {
	tree := buildSample(t)
	root, err := node.Wrap(tree, tree.Root()).AsStructure()
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := WriteXML(&buf, root, []Namespace{{Prefix: "ext", URI: "http://example.com/ext"}}); err != nil {
		t.Fatalf("WriteXML: %v", err)
	}

	parsedTree := node.NewTree()
	if err := ParseXML(parsedTree, bytes.NewReader(buf.Bytes())); err != nil {
		t.Fatalf("ParseXML: %v\nxml was:\n%s", err, buf.String())
	}

	parsedRoot, err := node.Wrap(parsedTree, parsedTree.Root()).AsStructure()
	if err != nil {
		t.Fatal(err)
	}

	name, err := parsedRoot.GetPath("formatName")
	if err != nil {
		t.Fatal(err)
	}
	sn, err := name.AsString()
	if err != nil {
		t.Fatal(err)
	}
	if sn.Value() != "ASTM E57 3D Imaging Data File" {
		t.Errorf("formatName = %q", sn.Value())
	}

	countNode, err := parsedRoot.GetPath("pointCount")
	if err != nil {
		t.Fatal(err)
	}
	in, err := countNode.AsInteger()
	if err != nil {
		t.Fatal(err)
	}
	if in.Value() != 7 || in.Min() != 0 || in.Max() != 1023 {
		t.Errorf("pointCount round-trip mismatch: value=%d min=%d max=%d", in.Value(), in.Min(), in.Max())
	}

	distNode, err := parsedRoot.GetPath("distance")
	if err != nil {
		t.Fatal(err)
	}
	si, err := distNode.AsScaledInteger()
	if err != nil {
		t.Fatal(err)
	}
	if si.RawValue() != 25 || si.Scale() != 0.5 {
		t.Errorf("distance round-trip mismatch: raw=%d scale=%v", si.RawValue(), si.Scale())
	}

	tagsNode, err := parsedRoot.GetPath("tags")
	if err != nil {
		t.Fatal(err)
	}
	tagsVec, err := tagsNode.AsVector()
	if err != nil {
		t.Fatal(err)
	}
	if tagsVec.ChildCount() != 2 {
		t.Fatalf("tags child count = %d, want 2", tagsVec.ChildCount())
	}
	first, err := tagsVec.Get(0)
	if err != nil {
		t.Fatal(err)
	}
	firstInt, err := first.AsInteger()
	if err != nil {
		t.Fatal(err)
	}
	if firstInt.Value() != 1 {
		t.Errorf("tags[0] = %d, want 1", firstInt.Value())
	}
}
