package node

import (
	"errors"
	"testing"

	"github.com/e57fs/e57/e57err"
)

func TestStructureSetGetPath(t *testing.T) {
	tree := NewTree()
	root, err := Wrap(tree, tree.Root()).AsStructure()
	if err != nil {
		t.Fatal(err)
	}
	val, err := NewInteger(tree, 42, 0, 100)
	if err != nil {
		t.Fatal(err)
	}
	if err := root.Set("data3D/count", val.Node, true); err != nil {
		t.Fatalf("Set with autoCreate: %v", err)
	}
	got, err := root.GetPath("/data3D/count")
	if err != nil {
		t.Fatalf("GetPath: %v", err)
	}
	intNode, err := got.AsInteger()
	if err != nil {
		t.Fatal(err)
	}
	if intNode.Value() != 42 {
		t.Errorf("value = %d, want 42", intNode.Value())
	}
	if !root.IsDefined("/data3D/count") {
		t.Error("IsDefined false for a path that was just set")
	}
	if root.IsDefined("/data3D/missing") {
		t.Error("IsDefined true for an undefined path")
	}
}

func TestSetTwiceFails(t *testing.T) {
	tree := NewTree()
	root, _ := Wrap(tree, tree.Root()).AsStructure()
	a, _ := NewInteger(tree, 1, 0, 10)
	b, _ := NewInteger(tree, 2, 0, 10)
	if err := root.Set("x", a.Node, false); err != nil {
		t.Fatal(err)
	}
	err := root.Set("x", b.Node, false)
	if !errors.Is(err, e57err.New(e57err.SetTwice, "")) {
		t.Errorf("Set on existing name: got %v, want SET_TWICE", err)
	}
}

func TestAlreadyHasParent(t *testing.T) {
	tree := NewTree()
	root, _ := Wrap(tree, tree.Root()).AsStructure()
	a, _ := NewInteger(tree, 1, 0, 10)
	if err := root.Set("a", a.Node, false); err != nil {
		t.Fatal(err)
	}
	other := NewStructure(tree)
	err := other.Set("b", a.Node, false)
	if !errors.Is(err, e57err.New(e57err.AlreadyHasParent, "")) {
		t.Errorf("Set on already-parented node: got %v, want ALREADY_HAS_PARENT", err)
	}
}

func TestVectorHomogeneousViolation(t *testing.T) {
	tree := NewTree()
	vec := NewVector(tree, false)
	a, _ := NewInteger(tree, 1, 0, 10)
	s, _ := NewScaledInteger(tree, 1, 0, 10, 1, 0)
	if err := vec.Append(a.Node); err != nil {
		t.Fatal(err)
	}
	err := vec.Append(s.Node)
	if !errors.Is(err, e57err.New(e57err.HomogeneousViolation, "")) {
		t.Errorf("Append heterogeneous: got %v, want HOMOGENEOUS_VIOLATION", err)
	}
}

func TestVectorAllowHeteroPermitsMixedTypes(t *testing.T) {
	tree := NewTree()
	vec := NewVector(tree, true)
	a, _ := NewInteger(tree, 1, 0, 10)
	s, _ := NewScaledInteger(tree, 1, 0, 10, 1, 0)
	if err := vec.Append(a.Node); err != nil {
		t.Fatal(err)
	}
	if err := vec.Append(s.Node); err != nil {
		t.Errorf("Append heterogeneous in allowHetero vector: %v", err)
	}
	if vec.ChildCount() != 2 {
		t.Errorf("ChildCount = %d, want 2", vec.ChildCount())
	}
}

func TestTypeEquivalenceStructural(t *testing.T) {
	tree := NewTree()
	build := func() Node {
		s := NewStructure(tree)
		n, _ := NewInteger(tree, 0, 0, 255)
		if err := s.Set("v", n.Node, false); err != nil {
			t.Fatal(err)
		}
		return s.Node
	}
	a := build()
	b := build()
	if !a.TypeEquivalent(b) {
		t.Error("two structurally identical structures reported non-equivalent")
	}

	s3 := NewStructure(tree)
	n2, _ := NewInteger(tree, 0, 0, 4095)
	if err := s3.Set("v", n2.Node, false); err != nil {
		t.Fatal(err)
	}
	if a.TypeEquivalent(s3.Node) {
		t.Error("structures with differing integer bounds reported equivalent")
	}
}

func TestDowncastMismatch(t *testing.T) {
	tree := NewTree()
	s := NewStructure(tree)
	_, err := s.Node.AsInteger()
	if !errors.Is(err, e57err.New(e57err.BadNodeDowncast, "")) {
		t.Errorf("downcast Structure to Integer: got %v, want BAD_NODE_DOWNCAST", err)
	}
}

func TestScaledIntegerFromScaledRoundTrip(t *testing.T) {
	tree := NewTree()
	si, err := NewScaledIntegerFromScaled(tree, 12.5, 0, 100, 0.5, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got := si.ScaledValue(); got != 12.5 {
		t.Errorf("ScaledValue = %v, want 12.5", got)
	}
	if si.RawValue() != 25 {
		t.Errorf("RawValue = %d, want 25", si.RawValue())
	}
}

func TestIntegerOutOfBounds(t *testing.T) {
	tree := NewTree()
	_, err := NewInteger(tree, 200, 0, 100)
	if !errors.Is(err, e57err.New(e57err.ValueOutOfBounds, "")) {
		t.Errorf("out of range Integer: got %v, want VALUE_OUT_OF_BOUNDS", err)
	}
}

func TestCompressedVectorAttachesPrototypeAndCodecs(t *testing.T) {
	tree := NewTree()
	proto := NewStructure(tree)
	n, _ := NewInteger(tree, 0, 0, 1023)
	if err := proto.Set("x", n.Node, false); err != nil {
		t.Fatal(err)
	}
	codecs := NewVector(tree, true)
	cv, err := NewCompressedVector(tree, proto.Node, codecs)
	if err != nil {
		t.Fatal(err)
	}
	if !cv.Prototype().Equal(proto.Node) {
		t.Error("Prototype() does not return the original prototype node")
	}
	if !cv.Codecs().Node.Equal(codecs.Node) {
		t.Error("Codecs() does not return the original codecs node")
	}
	if cv.PrototypeFrozen() {
		t.Error("prototype frozen before any write")
	}
	cv.FreezePrototype()
	if !cv.PrototypeFrozen() {
		t.Error("FreezePrototype did not take effect")
	}
}

func TestCheckInvariantAcceptsWellFormedHomogeneousVector(t *testing.T) {
	tree := NewTree()
	root, _ := Wrap(tree, tree.Root()).AsStructure()
	vec := NewVector(tree, false)
	if err := root.Set("v", vec.Node, false); err != nil {
		t.Fatal(err)
	}
	a, _ := NewInteger(tree, 1, 0, 10)
	if err := vec.Append(a.Node); err != nil {
		t.Fatal(err)
	}
	if err := root.Node.CheckInvariant(true); err != nil {
		t.Errorf("CheckInvariant on a well-formed tree: %v", err)
	}
}
