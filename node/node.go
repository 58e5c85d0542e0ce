package node

import (
	"math"

	"github.com/e57fs/e57/e57err"
)

// Node is a generic handle into a Tree, equivalent to a value returned by
// any node constructor before it is downcast to its specific variant.
type Node struct {
	tree *Tree
	h    Handle
}

// Wrap returns the generic Node for h within t. Callers that already hold
// a Tree and a Handle (the XML parser driver, the root file package) use
// this to enter the typed node API.
func Wrap(t *Tree, h Handle) Node { return Node{t, h} }

// Tree returns the arena n belongs to, for callers that need to pass it on
// to further Tree-level calls.
func (n Node) Tree() *Tree { return n.tree }

// Handle returns n's raw arena handle.
func (n Node) Handle() Handle { return n.h }

// Kind reports which of the eight variants n is.
func (n Node) Kind() Kind { return n.tree.Kind(n.h) }

// IsRoot reports whether n is its file's root Structure node.
func (n Node) IsRoot() bool { return n.tree.IsRoot(n.h) }

// IsAttached reports whether n is reachable from its file's root.
func (n Node) IsAttached() bool { return n.tree.IsAttached(n.h) }

// ElementName returns n's local element name, "" if n has no parent yet.
func (n Node) ElementName() string { return n.tree.ElementName(n.h) }

// PathName returns n's absolute path from its file's root.
func (n Node) PathName() string { return n.tree.PathName(n.h) }

// Parent returns n's parent, if any.
func (n Node) Parent() (Node, bool) {
	p, ok := n.tree.Parent(n.h)
	if !ok {
		return Node{}, false
	}
	return Node{n.tree, p}, true
}

// Equal reports whether n and other address the same arena slot of the
// same tree: node identity, not structural equivalence.
func (n Node) Equal(other Node) bool { return n.tree == other.tree && n.h == other.h }

// TypeEquivalent reports whether n and other are structurally identical,
// recursively, per their variant's relevant attributes.
func (n Node) TypeEquivalent(other Node) bool {
	if n.tree != other.tree {
		return false
	}
	return n.tree.TypeEquivalent(n.h, other.h)
}

// CheckInvariant validates n's structural invariants, optionally
// recursing into descendants.
func (n Node) CheckInvariant(recurse bool) error { return n.tree.CheckInvariant(n.h, recurse) }

func sameTree(a, b Node) bool { return a.tree == b.tree }

func downcastErr(got Kind, want Kind) error {
	return e57err.Newf(e57err.BadNodeDowncast, "expected %s, got %s", want, got)
}

// AsStructure downcasts n to a StructureNode.
func (n Node) AsStructure() (StructureNode, error) {
	if n.Kind() != KindStructure {
		return StructureNode{}, downcastErr(n.Kind(), KindStructure)
	}
	return StructureNode{n}, nil
}

// AsVector downcasts n to a VectorNode.
func (n Node) AsVector() (VectorNode, error) {
	if n.Kind() != KindVector {
		return VectorNode{}, downcastErr(n.Kind(), KindVector)
	}
	return VectorNode{n}, nil
}

// AsCompressedVector downcasts n to a CompressedVectorNode.
func (n Node) AsCompressedVector() (CompressedVectorNode, error) {
	if n.Kind() != KindCompressedVector {
		return CompressedVectorNode{}, downcastErr(n.Kind(), KindCompressedVector)
	}
	return CompressedVectorNode{n}, nil
}

// AsInteger downcasts n to an IntegerNode.
func (n Node) AsInteger() (IntegerNode, error) {
	if n.Kind() != KindInteger {
		return IntegerNode{}, downcastErr(n.Kind(), KindInteger)
	}
	return IntegerNode{n}, nil
}

// AsScaledInteger downcasts n to a ScaledIntegerNode.
func (n Node) AsScaledInteger() (ScaledIntegerNode, error) {
	if n.Kind() != KindScaledInteger {
		return ScaledIntegerNode{}, downcastErr(n.Kind(), KindScaledInteger)
	}
	return ScaledIntegerNode{n}, nil
}

// AsFloat downcasts n to a FloatNode.
func (n Node) AsFloat() (FloatNode, error) {
	if n.Kind() != KindFloat {
		return FloatNode{}, downcastErr(n.Kind(), KindFloat)
	}
	return FloatNode{n}, nil
}

// AsString downcasts n to a StringNode.
func (n Node) AsString() (StringNode, error) {
	if n.Kind() != KindString {
		return StringNode{}, downcastErr(n.Kind(), KindString)
	}
	return StringNode{n}, nil
}

// AsBlob downcasts n to a BlobNode.
func (n Node) AsBlob() (BlobNode, error) {
	if n.Kind() != KindBlob {
		return BlobNode{}, downcastErr(n.Kind(), KindBlob)
	}
	return BlobNode{n}, nil
}

// ---- Structure ----

type StructureNode struct{ Node }

// NewStructure constructs an unattached Structure node within t.
func NewStructure(t *Tree) StructureNode {
	return StructureNode{Node{t, t.NewStructure()}}
}

func (s StructureNode) ChildCount() int {
	n, _ := s.tree.ChildCount(s.h)
	return n
}

func (s StructureNode) Get(index int) (Node, error) {
	h, err := s.tree.ChildAt(s.h, index)
	if err != nil {
		return Node{}, err
	}
	return Node{s.tree, h}, nil
}

func (s StructureNode) GetPath(path string) (Node, error) {
	h, err := s.tree.Resolve(s.h, path)
	if err != nil {
		return Node{}, err
	}
	return Node{s.tree, h}, nil
}

func (s StructureNode) IsDefined(path string) bool { return s.tree.IsDefined(s.h, path) }

// Set attaches child at path, auto-creating intermediate Structure nodes
// along the way when autoCreate is true.
func (s StructureNode) Set(path string, child Node, autoCreate bool) error {
	if !sameTree(s.Node, child) {
		return e57err.New(e57err.DifferentDestImageFile, path)
	}
	return s.tree.Set(s.h, path, child.h, autoCreate)
}

// ---- Vector ----

type VectorNode struct{ Node }

// NewVector constructs an unattached Vector node within t. allowHetero
// permits children of differing type; when false, Append enforces that
// every child is type-equivalent to the first.
func NewVector(t *Tree, allowHetero bool) VectorNode {
	return VectorNode{Node{t, t.NewVector(allowHetero)}}
}

func (v VectorNode) AllowHeterogeneous() bool { return v.tree.VectorAllowsHetero(v.h) }

func (v VectorNode) ChildCount() int {
	n, _ := v.tree.ChildCount(v.h)
	return n
}

func (v VectorNode) Get(index int) (Node, error) {
	h, err := v.tree.ChildAt(v.h, index)
	if err != nil {
		return Node{}, err
	}
	return Node{v.tree, h}, nil
}

func (v VectorNode) Append(child Node) error {
	if !sameTree(v.Node, child) {
		return e57err.New(e57err.DifferentDestImageFile, "")
	}
	return v.tree.Append(v.h, child.h)
}

// ---- CompressedVector ----

type CompressedVectorNode struct{ Node }

// NewCompressedVector constructs a CompressedVector node from an
// already-built prototype subtree and a Vector of codec descriptors.
// Neither prototype nor codecs may already have a parent.
func NewCompressedVector(t *Tree, prototype Node, codecs VectorNode) (CompressedVectorNode, error) {
	if prototype.tree != t || codecs.tree != t {
		return CompressedVectorNode{}, e57err.New(e57err.DifferentDestImageFile, "")
	}
	h, err := t.NewCompressedVector(prototype.h, codecs.h)
	if err != nil {
		return CompressedVectorNode{}, err
	}
	return CompressedVectorNode{Node{t, h}}, nil
}

func (c CompressedVectorNode) Prototype() Node {
	proto, _, _, _, _ := c.infoOrPanic()
	return Node{c.tree, proto}
}

func (c CompressedVectorNode) Codecs() VectorNode {
	_, codecs, _, _, _ := c.infoOrPanic()
	return VectorNode{Node{c.tree, codecs}}
}

func (c CompressedVectorNode) RecordCount() int64 {
	_, _, recordCount, _, _ := c.infoOrPanic()
	return recordCount
}

func (c CompressedVectorNode) FileOffset() int64 {
	_, _, _, fileOffset, _ := c.infoOrPanic()
	return fileOffset
}

func (c CompressedVectorNode) infoOrPanic() (prototype, codecs Handle, recordCount, fileOffset int64, err error) {
	return c.tree.CompressedVectorInfo(c.h)
}

func (c CompressedVectorNode) PrototypeFrozen() bool { return c.tree.PrototypeFrozen(c.h) }
func (c CompressedVectorNode) FreezePrototype()      { c.tree.FreezePrototype(c.h) }

func (c CompressedVectorNode) SetResult(recordCount, fileOffset int64) error {
	return c.tree.SetCompressedVectorResult(c.h, recordCount, fileOffset)
}

func (c CompressedVectorNode) MarkWriterOpen() error  { return c.tree.MarkWriterOpen(c.h) }
func (c CompressedVectorNode) MarkWriterClosed()      { c.tree.MarkWriterClosed(c.h) }
func (c CompressedVectorNode) MarkReaderOpen()        { c.tree.MarkReaderOpen(c.h) }
func (c CompressedVectorNode) MarkReaderClosed()      { c.tree.MarkReaderClosed(c.h) }

// ---- Integer ----

type IntegerNode struct{ Node }

func NewInteger(t *Tree, value, min, max int64) (IntegerNode, error) {
	h, err := t.NewInteger(value, min, max)
	if err != nil {
		return IntegerNode{}, err
	}
	return IntegerNode{Node{t, h}}, nil
}

func (n IntegerNode) Value() int64 { v, _, _, _ := n.tree.Integer(n.h); return v }
func (n IntegerNode) Min() int64   { _, lo, _, _ := n.tree.Integer(n.h); return lo }
func (n IntegerNode) Max() int64   { _, _, hi, _ := n.tree.Integer(n.h); return hi }

// ---- ScaledInteger ----

type ScaledIntegerNode struct{ Node }

// NewScaledInteger constructs a ScaledInteger node from a raw stored
// value.
func NewScaledInteger(t *Tree, raw, min, max int64, scale, offset float64) (ScaledIntegerNode, error) {
	h, err := t.NewScaledInteger(raw, min, max, scale, offset)
	if err != nil {
		return ScaledIntegerNode{}, err
	}
	return ScaledIntegerNode{Node{t, h}}, nil
}

// NewScaledIntegerFromScaled constructs a ScaledInteger node from
// already-scaled (physical-unit) bounds and value, inverting the scale
// and offset to obtain the stored raw representation.
func NewScaledIntegerFromScaled(t *Tree, scaledValue, scaledMin, scaledMax, scale, offset float64) (ScaledIntegerNode, error) {
	if scale == 0 {
		return ScaledIntegerNode{}, e57err.New(e57err.BadAPIArgument, "scale must be nonzero")
	}
	toRaw := func(v float64) int64 {
		return int64(math.Round((v - offset) / scale))
	}
	return NewScaledInteger(t, toRaw(scaledValue), toRaw(scaledMin), toRaw(scaledMax), scale, offset)
}

func (n ScaledIntegerNode) RawValue() int64 { v, _, _, _, _, _ := n.tree.ScaledInteger(n.h); return v }
func (n ScaledIntegerNode) Min() int64      { _, lo, _, _, _, _ := n.tree.ScaledInteger(n.h); return lo }
func (n ScaledIntegerNode) Max() int64      { _, _, hi, _, _, _ := n.tree.ScaledInteger(n.h); return hi }
func (n ScaledIntegerNode) Scale() float64  { _, _, _, s, _, _ := n.tree.ScaledInteger(n.h); return s }
func (n ScaledIntegerNode) Offset() float64 { _, _, _, _, o, _ := n.tree.ScaledInteger(n.h); return o }

func (n ScaledIntegerNode) ScaledValue() float64 {
	raw, _, _, scale, offset, _ := n.tree.ScaledInteger(n.h)
	return float64(raw)*scale + offset
}
func (n ScaledIntegerNode) ScaledMin() float64 {
	_, lo, _, scale, offset, _ := n.tree.ScaledInteger(n.h)
	return float64(lo)*scale + offset
}
func (n ScaledIntegerNode) ScaledMax() float64 {
	_, _, hi, scale, offset, _ := n.tree.ScaledInteger(n.h)
	return float64(hi)*scale + offset
}

// ---- Float ----

type FloatNode struct{ Node }

func NewFloat(t *Tree, value float64, precision Precision, min, max float64) (FloatNode, error) {
	h, err := t.NewFloat(value, precision, min, max)
	if err != nil {
		return FloatNode{}, err
	}
	return FloatNode{Node{t, h}}, nil
}

func (n FloatNode) Value() float64        { v, _, _, _, _ := n.tree.Float(n.h); return v }
func (n FloatNode) Min() float64          { _, lo, _, _, _ := n.tree.Float(n.h); return lo }
func (n FloatNode) Max() float64          { _, _, hi, _, _ := n.tree.Float(n.h); return hi }
func (n FloatNode) Precision() Precision  { _, _, _, p, _ := n.tree.Float(n.h); return p }

// ---- String ----

type StringNode struct{ Node }

func NewString(t *Tree, value string) StringNode {
	return StringNode{Node{t, t.NewString(value)}}
}

func (n StringNode) Value() string {
	v, _ := n.tree.String(n.h)
	return v
}

func (n StringNode) SetValue(v string) error { return n.tree.SetString(n.h, v) }

// ---- Blob ----

type BlobNode struct{ Node }

// NewBlob constructs an unattached Blob node declaring byteCount bytes of
// payload; its file location is assigned once written.
func NewBlob(t *Tree, byteCount int64) BlobNode {
	return BlobNode{Node{t, t.NewBlob(byteCount)}}
}

// NewBlobAt constructs an unattached Blob node already bound to a file
// location, for the XML parser driver reconstructing a node read back
// from a file.
func NewBlobAt(t *Tree, offset, length int64) BlobNode {
	return BlobNode{Node{t, t.NewBlobAt(offset, length)}}
}

func (n BlobNode) ByteCount() int64 {
	v, _ := n.tree.BlobLength(n.h)
	return v
}

func (n BlobNode) Location() (offset int64, ok bool) {
	off, has, _ := n.tree.BlobLocation(n.h)
	return off, has
}

func (n BlobNode) SetLocation(offset int64) error { return n.tree.SetBlobLocation(n.h, offset) }
