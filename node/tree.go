// Package node implements the heterogeneous, path-addressable node tree
// that forms an e57 file's metadata: eight tagged variants stored in a
// single arena owned by the file, addressed by integer Handle rather than
// shared pointers.
package node

import (
	"fmt"
	"strings"

	"github.com/e57fs/e57/e57err"
)

// Kind tags which of the eight node variants an item is.
type Kind int8

const (
	KindStructure Kind = iota
	KindVector
	KindCompressedVector
	KindInteger
	KindScaledInteger
	KindFloat
	KindString
	KindBlob
)

func (k Kind) String() string {
	switch k {
	case KindStructure:
		return "Structure"
	case KindVector:
		return "Vector"
	case KindCompressedVector:
		return "CompressedVector"
	case KindInteger:
		return "Integer"
	case KindScaledInteger:
		return "ScaledInteger"
	case KindFloat:
		return "Float"
	case KindString:
		return "String"
	case KindBlob:
		return "Blob"
	default:
		return "Unknown"
	}
}

// Precision is the IEEE float width of a Float node.
type Precision int8

const (
	Single Precision = iota
	Double
)

func (p Precision) String() string {
	if p == Single {
		return "single"
	}
	return "double"
}

// Handle addresses one item in a Tree's arena.
type Handle int32

const invalidHandle Handle = -1

type structPayload struct {
	order    []string
	index    map[string]int
	children []Handle
}

type vectorPayload struct {
	allowHetero bool
	children    []Handle
}

type cvecPayload struct {
	prototype   Handle
	codecs      Handle
	recordCount int64
	fileOffset  int64
	hasOffset   bool
	frozen      bool
	writerOpen  bool
	readerOpen  int
}

type integerPayload struct {
	value, min, max int64
}

type scaledPayload struct {
	raw, min, max  int64
	scale, offset  float64
}

type floatPayload struct {
	value, min, max float64
	precision       Precision
}

type stringPayload struct {
	value string
}

type blobPayload struct {
	length     int64
	fileOffset int64
	hasOffset  bool
}

type item struct {
	kind      Kind
	name      string
	hasParent bool
	parent    Handle
	attached  bool

	structure *structPayload
	vector    *vectorPayload
	cvec      *cvecPayload
	integer   *integerPayload
	scaled    *scaledPayload
	float     *floatPayload
	str       *stringPayload
	blob      *blobPayload
}

// Tree is the arena owning every node of one file's tree. The file's root
// Structure node is created automatically.
type Tree struct {
	items []item
	root  Handle
}

// NewTree returns a Tree with an empty, attached root Structure node.
func NewTree() *Tree {
	t := &Tree{}
	t.root = t.alloc(item{
		kind:      KindStructure,
		structure: &structPayload{index: map[string]int{}},
		attached:  true,
	})
	return t
}

func (t *Tree) alloc(it item) Handle {
	t.items = append(t.items, it)
	return Handle(len(t.items) - 1)
}

// Root returns the handle of the file's root Structure node.
func (t *Tree) Root() Handle { return t.root }

// Kind reports h's variant tag.
func (t *Tree) Kind(h Handle) Kind { return t.items[h].kind }

// ElementName returns h's local element name ("" if unattached/unset).
func (t *Tree) ElementName(h Handle) string { return t.items[h].name }

// Parent returns h's parent handle, if any.
func (t *Tree) Parent(h Handle) (Handle, bool) {
	it := &t.items[h]
	return it.parent, it.hasParent
}

// IsAttached reports whether h participates in the file's root-reachable
// tree.
func (t *Tree) IsAttached(h Handle) bool { return t.items[h].attached }

// IsRoot reports whether h is the tree's root.
func (t *Tree) IsRoot(h Handle) bool { return h == t.root }

// PathName walks h's ancestors to build its absolute path.
func (t *Tree) PathName(h Handle) string {
	var segs []string
	cur := h
	for {
		it := &t.items[cur]
		if !it.hasParent {
			break
		}
		segs = append(segs, it.name)
		cur = it.parent
	}
	for i, j := 0, len(segs)-1; i < j; i, j = i+1, j-1 {
		segs[i], segs[j] = segs[j], segs[i]
	}
	return "/" + strings.Join(segs, "/")
}

// ---- construction ----

// NewStructure allocates an unattached Structure node.
func (t *Tree) NewStructure() Handle {
	return t.alloc(item{kind: KindStructure, structure: &structPayload{index: map[string]int{}}})
}

// NewVector allocates an unattached Vector node.
func (t *Tree) NewVector(allowHetero bool) Handle {
	return t.alloc(item{kind: KindVector, vector: &vectorPayload{allowHetero: allowHetero}})
}

// NewInteger allocates an unattached Integer node.
func (t *Tree) NewInteger(value, min, max int64) (Handle, error) {
	if min > max || value < min || value > max {
		return invalidHandle, e57err.Newf(e57err.ValueOutOfBounds, "value %d not in [%d,%d]", value, min, max)
	}
	return t.alloc(item{kind: KindInteger, integer: &integerPayload{value, min, max}}), nil
}

// NewScaledInteger allocates an unattached ScaledInteger node from a raw
// value.
func (t *Tree) NewScaledInteger(raw, min, max int64, scale, offset float64) (Handle, error) {
	if min > max || raw < min || raw > max {
		return invalidHandle, e57err.Newf(e57err.ValueOutOfBounds, "raw %d not in [%d,%d]", raw, min, max)
	}
	if scale == 0 {
		return invalidHandle, e57err.New(e57err.BadAPIArgument, "scale must be nonzero")
	}
	return t.alloc(item{kind: KindScaledInteger, scaled: &scaledPayload{raw, min, max, scale, offset}}), nil
}

// NewFloat allocates an unattached Float node.
func (t *Tree) NewFloat(value float64, precision Precision, min, max float64) (Handle, error) {
	if min > max || value < min || value > max {
		return invalidHandle, e57err.Newf(e57err.ValueOutOfBounds, "value %v not in [%v,%v]", value, min, max)
	}
	return t.alloc(item{kind: KindFloat, float: &floatPayload{value, min, max, precision}}), nil
}

// NewString allocates an unattached String node.
func (t *Tree) NewString(value string) Handle {
	return t.alloc(item{kind: KindString, str: &stringPayload{value}})
}

// NewBlob allocates an unattached Blob node declared with byteCount bytes;
// its file location is assigned later by the blob store.
func (t *Tree) NewBlob(byteCount int64) Handle {
	return t.alloc(item{kind: KindBlob, blob: &blobPayload{length: byteCount}})
}

// NewBlobAt allocates an unattached Blob node already bound to a file
// location, for use by the XML parser driver when materializing a node
// read back from a file.
func (t *Tree) NewBlobAt(offset, length int64) Handle {
	return t.alloc(item{kind: KindBlob, blob: &blobPayload{length: length, fileOffset: offset, hasOffset: true}})
}

// NewCompressedVector allocates a CompressedVector node and attaches
// prototype and codecs as its two fixed children.
func (t *Tree) NewCompressedVector(prototype, codecs Handle) (Handle, error) {
	if t.items[prototype].hasParent {
		return invalidHandle, e57err.New(e57err.AlreadyHasParent, "prototype")
	}
	if t.items[codecs].hasParent {
		return invalidHandle, e57err.New(e57err.AlreadyHasParent, "codecs")
	}
	if t.items[codecs].kind != KindVector {
		return invalidHandle, e57err.New(e57err.BadCodecs, "codecs must be a Vector")
	}
	h := t.alloc(item{kind: KindCompressedVector, cvec: &cvecPayload{prototype: prototype, codecs: codecs}})
	t.setParent(prototype, h, "prototype")
	t.setParent(codecs, h, "codecs")
	return h, nil
}

// ---- attachment ----

func (t *Tree) setParent(child, parent Handle, name string) {
	it := &t.items[child]
	it.hasParent = true
	it.parent = parent
	it.name = name
	if t.items[parent].attached {
		t.propagateAttached(child)
	}
}

func (t *Tree) propagateAttached(h Handle) {
	it := &t.items[h]
	if it.attached {
		return
	}
	it.attached = true
	switch it.kind {
	case KindStructure:
		for _, c := range it.structure.children {
			t.propagateAttached(c)
		}
	case KindVector:
		for _, c := range it.vector.children {
			t.propagateAttached(c)
		}
	case KindCompressedVector:
		t.propagateAttached(it.cvec.prototype)
		t.propagateAttached(it.cvec.codecs)
	}
}

// Set attaches child under parent (a Structure) at path, auto-creating
// intermediate Structure nodes when autoCreate is true.
func (t *Tree) Set(parent Handle, path string, child Handle, autoCreate bool) error {
	if t.items[parent].kind != KindStructure {
		return e57err.New(e57err.BadAPIArgument, "set requires a structure node")
	}
	segs := strings.Split(path, "/")
	if len(segs) == 0 || segs[0] == "" {
		return e57err.New(e57err.BadPathName, path)
	}
	cur := parent
	for _, seg := range segs[:len(segs)-1] {
		if seg == "" {
			return e57err.New(e57err.BadPathName, path)
		}
		next, ok := t.childByName(cur, seg)
		if !ok {
			if !autoCreate {
				return e57err.Newf(e57err.PathUndefined, "intermediate segment %q", seg)
			}
			next = t.NewStructure()
			if err := t.setChild(cur, seg, next); err != nil {
				return err
			}
		}
		cur = next
	}
	last := segs[len(segs)-1]
	if last == "" {
		return e57err.New(e57err.BadPathName, path)
	}
	return t.setChild(cur, last, child)
}

func (t *Tree) setChild(parent Handle, name string, child Handle) error {
	p := &t.items[parent]
	if p.kind != KindStructure {
		return e57err.New(e57err.BadAPIArgument, "parent is not a structure")
	}
	if t.items[child].hasParent {
		return e57err.New(e57err.AlreadyHasParent, name)
	}
	if _, exists := p.structure.index[name]; exists {
		return e57err.Newf(e57err.SetTwice, "child %q already set", name)
	}
	idx := len(p.structure.order)
	p.structure.order = append(p.structure.order, name)
	p.structure.children = append(p.structure.children, child)
	p.structure.index[name] = idx
	t.setParent(child, parent, name)
	return nil
}

// vectorChildName is the element name used for every member of a Vector;
// real E57 files tag all children of a homogeneous vector identically.
const vectorChildName = "vectorChild"

// Append attaches child as the next member of a Vector, enforcing
// homogeneity when the vector disallows heterogeneous children.
func (t *Tree) Append(parent Handle, child Handle) error {
	p := &t.items[parent]
	if p.kind != KindVector {
		return e57err.New(e57err.BadAPIArgument, "append requires a vector node")
	}
	if t.items[child].hasParent {
		return e57err.New(e57err.AlreadyHasParent, "")
	}
	if !p.vector.allowHetero && len(p.vector.children) > 0 {
		if !t.TypeEquivalent(p.vector.children[0], child) {
			return e57err.New(e57err.HomogeneousViolation, "child type differs from existing children")
		}
	}
	p.vector.children = append(p.vector.children, child)
	t.setParent(child, parent, vectorChildName)
	return nil
}

// ---- lookup ----

// VectorAllowsHetero reports whether a Vector node permits children of
// differing type.
func (t *Tree) VectorAllowsHetero(h Handle) bool { return t.items[h].vector.allowHetero }

// ChildCount returns the number of children of a Structure or Vector node.
func (t *Tree) ChildCount(h Handle) (int, error) {
	it := &t.items[h]
	switch it.kind {
	case KindStructure:
		return len(it.structure.children), nil
	case KindVector:
		return len(it.vector.children), nil
	default:
		return 0, e57err.New(e57err.BadAPIArgument, "childCount requires a structure or vector node")
	}
}

// ChildAt returns the index'th child of a Structure or Vector node.
func (t *Tree) ChildAt(h Handle, index int) (Handle, error) {
	it := &t.items[h]
	var children []Handle
	switch it.kind {
	case KindStructure:
		children = it.structure.children
	case KindVector:
		children = it.vector.children
	default:
		return invalidHandle, e57err.New(e57err.BadAPIArgument, "get(index) requires a structure or vector node")
	}
	if index < 0 || index >= len(children) {
		return invalidHandle, e57err.Newf(e57err.ChildIndexOutOfBounds, "index %d, count %d", index, len(children))
	}
	return children[index], nil
}

func (t *Tree) childByName(h Handle, name string) (Handle, bool) {
	it := &t.items[h]
	switch it.kind {
	case KindStructure:
		idx, ok := it.structure.index[name]
		if !ok {
			return invalidHandle, false
		}
		return it.structure.children[idx], true
	case KindVector:
		for _, c := range it.vector.children {
			if t.items[c].name == name {
				return c, true
			}
		}
		return invalidHandle, false
	default:
		return invalidHandle, false
	}
}

// Resolve walks path starting at from (relative) or the tree root
// (absolute, leading "/").
func (t *Tree) Resolve(from Handle, path string) (Handle, error) {
	cur := from
	rest := path
	if strings.HasPrefix(path, "/") {
		cur = t.root
		rest = strings.TrimPrefix(path, "/")
	}
	if rest == "" {
		return cur, nil
	}
	for _, seg := range strings.Split(rest, "/") {
		if seg == "" {
			return invalidHandle, e57err.New(e57err.BadPathName, path)
		}
		next, ok := t.childByName(cur, seg)
		if !ok {
			return invalidHandle, e57err.Newf(e57err.PathUndefined, "undefined path %q", path)
		}
		cur = next
	}
	return cur, nil
}

// IsDefined reports whether path resolves from h without error.
func (t *Tree) IsDefined(h Handle, path string) bool {
	_, err := t.Resolve(h, path)
	return err == nil
}

// ---- type equivalence ----

// TypeEquivalent reports whether a and b are structurally identical: same
// variant and, recursively, identical relevant attributes.
func (t *Tree) TypeEquivalent(a, b Handle) bool {
	ia, ib := &t.items[a], &t.items[b]
	if ia.kind != ib.kind {
		return false
	}
	switch ia.kind {
	case KindInteger:
		return ia.integer.min == ib.integer.min && ia.integer.max == ib.integer.max
	case KindScaledInteger:
		return ia.scaled.min == ib.scaled.min && ia.scaled.max == ib.scaled.max &&
			ia.scaled.scale == ib.scaled.scale && ia.scaled.offset == ib.scaled.offset
	case KindFloat:
		return ia.float.precision == ib.float.precision && ia.float.min == ib.float.min && ia.float.max == ib.float.max
	case KindString, KindBlob:
		return true
	case KindVector:
		if ia.vector.allowHetero != ib.vector.allowHetero || len(ia.vector.children) != len(ib.vector.children) {
			return false
		}
		for i := range ia.vector.children {
			if !t.TypeEquivalent(ia.vector.children[i], ib.vector.children[i]) {
				return false
			}
		}
		return true
	case KindStructure:
		if len(ia.structure.order) != len(ib.structure.order) {
			return false
		}
		for _, name := range ia.structure.order {
			bIdx, ok := ib.structure.index[name]
			if !ok {
				return false
			}
			aChild := ia.structure.children[ia.structure.index[name]]
			if !t.TypeEquivalent(aChild, ib.structure.children[bIdx]) {
				return false
			}
		}
		return true
	case KindCompressedVector:
		return t.TypeEquivalent(ia.cvec.prototype, ib.cvec.prototype)
	default:
		return false
	}
}

// ---- numeric / leaf accessors ----

func (t *Tree) Integer(h Handle) (value, min, max int64, err error) {
	it := &t.items[h]
	if it.kind != KindInteger {
		return 0, 0, 0, e57err.New(e57err.BadNodeDowncast, "not an Integer node")
	}
	return it.integer.value, it.integer.min, it.integer.max, nil
}

func (t *Tree) ScaledInteger(h Handle) (raw, min, max int64, scale, offset float64, err error) {
	it := &t.items[h]
	if it.kind != KindScaledInteger {
		return 0, 0, 0, 0, 0, e57err.New(e57err.BadNodeDowncast, "not a ScaledInteger node")
	}
	p := it.scaled
	return p.raw, p.min, p.max, p.scale, p.offset, nil
}

func (t *Tree) Float(h Handle) (value, min, max float64, precision Precision, err error) {
	it := &t.items[h]
	if it.kind != KindFloat {
		return 0, 0, 0, 0, e57err.New(e57err.BadNodeDowncast, "not a Float node")
	}
	p := it.float
	return p.value, p.min, p.max, p.precision, nil
}

func (t *Tree) String(h Handle) (string, error) {
	it := &t.items[h]
	if it.kind != KindString {
		return "", e57err.New(e57err.BadNodeDowncast, "not a String node")
	}
	return it.str.value, nil
}

func (t *Tree) SetString(h Handle, v string) error {
	it := &t.items[h]
	if it.kind != KindString {
		return e57err.New(e57err.BadNodeDowncast, "not a String node")
	}
	it.str.value = v
	return nil
}

func (t *Tree) BlobLength(h Handle) (int64, error) {
	it := &t.items[h]
	if it.kind != KindBlob {
		return 0, e57err.New(e57err.BadNodeDowncast, "not a Blob node")
	}
	return it.blob.length, nil
}

func (t *Tree) BlobLocation(h Handle) (offset int64, ok bool, err error) {
	it := &t.items[h]
	if it.kind != KindBlob {
		return 0, false, e57err.New(e57err.BadNodeDowncast, "not a Blob node")
	}
	return it.blob.fileOffset, it.blob.hasOffset, nil
}

// SetBlobLocation records the logical file offset assigned by the blob
// store when a declared-length Blob is first written.
func (t *Tree) SetBlobLocation(h Handle, offset int64) error {
	it := &t.items[h]
	if it.kind != KindBlob {
		return e57err.New(e57err.BadNodeDowncast, "not a Blob node")
	}
	it.blob.fileOffset = offset
	it.blob.hasOffset = true
	return nil
}

// ---- CompressedVector bookkeeping ----

func (t *Tree) CompressedVectorInfo(h Handle) (prototype, codecs Handle, recordCount, fileOffset int64, err error) {
	it := &t.items[h]
	if it.kind != KindCompressedVector {
		return invalidHandle, invalidHandle, 0, 0, e57err.New(e57err.BadNodeDowncast, "not a CompressedVector node")
	}
	c := it.cvec
	return c.prototype, c.codecs, c.recordCount, c.fileOffset, nil
}

func (t *Tree) SetCompressedVectorResult(h Handle, recordCount, fileOffset int64) error {
	it := &t.items[h]
	if it.kind != KindCompressedVector {
		return e57err.New(e57err.BadNodeDowncast, "not a CompressedVector node")
	}
	it.cvec.recordCount = recordCount
	it.cvec.fileOffset = fileOffset
	it.cvec.hasOffset = true
	return nil
}

func (t *Tree) FreezePrototype(h Handle) { t.items[h].cvec.frozen = true }
func (t *Tree) PrototypeFrozen(h Handle) bool { return t.items[h].cvec.frozen }

func (t *Tree) MarkWriterOpen(h Handle) error {
	c := t.items[h].cvec
	if c.writerOpen {
		return e57err.New(e57err.TooManyWriters, "writer already open on this CompressedVector")
	}
	c.writerOpen = true
	return nil
}
func (t *Tree) MarkWriterClosed(h Handle) { t.items[h].cvec.writerOpen = false }
func (t *Tree) MarkReaderOpen(h Handle)   { t.items[h].cvec.readerOpen++ }
func (t *Tree) MarkReaderClosed(h Handle) { t.items[h].cvec.readerOpen-- }

// ---- diagnostics ----

// CheckInvariant verifies the structural invariants of the subtree rooted
// at h: parent/child back-reference consistency, numeric bounds, and, when
// doRecurse, homogeneity of every vector and the same checks on every
// descendant.
func (t *Tree) CheckInvariant(h Handle, doRecurse bool) error {
	it := &t.items[h]
	if it.hasParent {
		if !t.childPointsBack(it.parent, h) {
			return e57err.Newf(e57err.InvarianceViolation, "node %q not found among parent's children", it.name)
		}
	}
	switch it.kind {
	case KindInteger:
		if it.integer.value < it.integer.min || it.integer.value > it.integer.max {
			return e57err.New(e57err.InvarianceViolation, "integer value out of bounds")
		}
	case KindScaledInteger:
		if it.scaled.raw < it.scaled.min || it.scaled.raw > it.scaled.max {
			return e57err.New(e57err.InvarianceViolation, "scaled integer raw value out of bounds")
		}
	case KindFloat:
		if it.float.value < it.float.min || it.float.value > it.float.max {
			return e57err.New(e57err.InvarianceViolation, "float value out of bounds")
		}
	}
	if !doRecurse {
		return nil
	}
	switch it.kind {
	case KindStructure:
		for _, c := range it.structure.children {
			if err := t.CheckInvariant(c, true); err != nil {
				return err
			}
		}
	case KindVector:
		for i, c := range it.vector.children {
			if err := t.CheckInvariant(c, true); err != nil {
				return err
			}
			if !it.vector.allowHetero && i > 0 && !t.TypeEquivalent(it.vector.children[0], c) {
				return e57err.New(e57err.HomogeneousViolation, "vector children are not type-equivalent")
			}
		}
	case KindCompressedVector:
		if err := t.CheckInvariant(it.cvec.prototype, true); err != nil {
			return err
		}
		if err := t.CheckInvariant(it.cvec.codecs, true); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tree) childPointsBack(parent, child Handle) bool {
	it := &t.items[parent]
	switch it.kind {
	case KindStructure:
		for _, c := range it.structure.children {
			if c == child {
				return true
			}
		}
	case KindVector:
		for _, c := range it.vector.children {
			if c == child {
				return true
			}
		}
	case KindCompressedVector:
		return it.cvec.prototype == child || it.cvec.codecs == child
	}
	return false
}

// Dump writes a human-readable indented tree description, mirroring the
// diagnostic dump() required of every entity.
func (t *Tree) Dump(w *strings.Builder, h Handle, indent int) {
	it := &t.items[h]
	pad := strings.Repeat("  ", indent)
	switch it.kind {
	case KindStructure:
		fmt.Fprintf(w, "%sStructure %q (%d children)\n", pad, it.name, len(it.structure.children))
		for _, c := range it.structure.children {
			t.Dump(w, c, indent+1)
		}
	case KindVector:
		fmt.Fprintf(w, "%sVector %q allowHetero=%v (%d children)\n", pad, it.name, it.vector.allowHetero, len(it.vector.children))
		for _, c := range it.vector.children {
			t.Dump(w, c, indent+1)
		}
	case KindCompressedVector:
		fmt.Fprintf(w, "%sCompressedVector %q recordCount=%d fileOffset=%d\n", pad, it.name, it.cvec.recordCount, it.cvec.fileOffset)
		t.Dump(w, it.cvec.prototype, indent+1)
		t.Dump(w, it.cvec.codecs, indent+1)
	case KindInteger:
		fmt.Fprintf(w, "%sInteger %q = %d [%d,%d]\n", pad, it.name, it.integer.value, it.integer.min, it.integer.max)
	case KindScaledInteger:
		fmt.Fprintf(w, "%sScaledInteger %q = %d (scaled %v) [%d,%d] scale=%v offset=%v\n",
			pad, it.name, it.scaled.raw, float64(it.scaled.raw)*it.scaled.scale+it.scaled.offset, it.scaled.min, it.scaled.max, it.scaled.scale, it.scaled.offset)
	case KindFloat:
		fmt.Fprintf(w, "%sFloat %q = %v (%s) [%v,%v]\n", pad, it.name, it.float.value, it.float.precision, it.float.min, it.float.max)
	case KindString:
		fmt.Fprintf(w, "%sString %q = %q\n", pad, it.name, it.str.value)
	case KindBlob:
		fmt.Fprintf(w, "%sBlob %q length=%d offset=%d\n", pad, it.name, it.blob.length, it.blob.fileOffset)
	}
}
