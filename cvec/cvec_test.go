package cvec

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e57fs/e57/internal/page"
	"github.com/e57fs/e57/node"
	"github.com/e57fs/e57/proto"
)

type memBackend struct{ data []byte }

func (m *memBackend) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *memBackend) WriteAt(p []byte, off int64) (int, error) {
	end := off + int64(len(p))
	if end > int64(len(m.data)) {
		grown := make([]byte, end)
		copy(grown, m.data)
		m.data = grown
	}
	copy(m.data[off:end], p)
	return len(p), nil
}

func (m *memBackend) Truncate(size int64) error {
	grown := make([]byte, size)
	copy(grown, m.data)
	m.data = grown
	return nil
}

func (m *memBackend) Sync() error { return nil }

func buildXYPrototype(t *testing.T, tree *node.Tree) (node.Node, node.VectorNode) {
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
	fields, err := proto.Flatten(s.Node)
	if err != nil {
		t.Fatal(err)
	}
	codecs, err := proto.BuildDefaultCodecs(tree, fields)
	if err != nil {
		t.Fatal(err)
	}
	return s.Node, codecs
}

func TestWriteReadRecordsRoundTrip(t *testing.T) {
	tree := node.NewTree()
	protoNode, codecs := buildXYPrototype(t, tree)
	cv, err := node.NewCompressedVector(tree, protoNode, codecs)
	if err != nil {
		t.Fatal(err)
	}

	backend := &memBackend{}
	pf := page.OpenWriter(backend)

	xs := []int32{0, 1023, 512, 7}
	ys := []int32{-1, 0, 1, -1}
	writeBufs := []*Buffer{
		{Path: "x", Kind: BufferInt32, Int32: xs},
		{Path: "y", Kind: BufferInt32, Int32: ys},
	}
	w, err := OpenWriter(pf, cv, 0, writeBufs)
	require.NoError(t, err)
	require.NoError(t, w.WriteRecords(len(xs)))
	require.NoError(t, w.Close())
	require.NoError(t, pf.Close())

	require.Equal(t, int64(len(xs)), cv.RecordCount())

	physicalSize := int64(len(backend.data))
	rf := page.OpenReader(backend, physicalSize, page.PolicyAll)
	rf.SetLogicalLength(physicalSize)

	outX := make([]int32, len(xs))
	outY := make([]int32, len(ys))
	readBufs := []*Buffer{
		{Path: "x", Kind: BufferInt32, Int32: outX},
		{Path: "y", Kind: BufferInt32, Int32: outY},
	}
	r, err := OpenReader(rf, cv, readBufs)
	require.NoError(t, err)
	n, err := r.Read()
	require.NoError(t, err)
	require.Equal(t, len(xs), n)
	assert.Equal(t, xs, outX)
	assert.Equal(t, ys, outY)

	n2, err := r.Read()
	require.NoError(t, err)
	assert.Zero(t, n2, "Read past end of stream")
	require.NoError(t, r.Close())

	assert.Error(t, r.Seek(0), "Seek should be unimplemented")
}

func TestZeroRecordCompressedVectorWritesOnlyIndexPacket(t *testing.T) {
	tree := node.NewTree()
	protoNode, codecs := buildXYPrototype(t, tree)
	cv, err := node.NewCompressedVector(tree, protoNode, codecs)
	if err != nil {
		t.Fatal(err)
	}

	backend := &memBackend{}
	pf := page.OpenWriter(backend)
	w, err := OpenWriter(pf, cv, 0, []*Buffer{
		{Path: "x", Kind: BufferInt32},
		{Path: "y", Kind: BufferInt32},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := pf.Close(); err != nil {
		t.Fatal(err)
	}
	if cv.RecordCount() != 0 {
		t.Errorf("RecordCount = %d, want 0", cv.RecordCount())
	}
	if w.dataPacketCount != 0 {
		t.Errorf("dataPacketCount = %d, want 0", w.dataPacketCount)
	}

	physicalSize := int64(len(backend.data))
	rf := page.OpenReader(backend, physicalSize, page.PolicyAll)
	rf.SetLogicalLength(physicalSize)
	r, err := OpenReader(rf, cv, []*Buffer{
		{Path: "x", Kind: BufferInt32, Int32: make([]int32, 4)},
		{Path: "y", Kind: BufferInt32, Int32: make([]int32, 4)},
	})
	if err != nil {
		t.Fatal(err)
	}
	n, err := r.Read()
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("Read on an empty CompressedVector returned %d records, want 0", n)
	}
}

func TestIndexPacketMapsRecordNumberToDataPacketOffset(t *testing.T) {
	tree := node.NewTree()
	protoNode, codecs := buildXYPrototype(t, tree)
	cv, err := node.NewCompressedVector(tree, protoNode, codecs)
	if err != nil {
		t.Fatal(err)
	}

	backend := &memBackend{}
	pf := page.OpenWriter(backend)

	const firstBatch = 1500
	xs := make([]int32, firstBatch)
	ys := make([]int32, firstBatch)
	w, err := OpenWriter(pf, cv, 0, []*Buffer{
		{Path: "x", Kind: BufferInt32, Int32: xs},
		{Path: "y", Kind: BufferInt32, Int32: ys},
	})
	require.NoError(t, err)
	require.NoError(t, w.WriteRecords(firstBatch))
	require.NoError(t, w.flushDataPacket())
	offsetAfterFirstPacket := w.offset

	const secondBatch = 1100
	w.buffers["x"].Int32 = make([]int32, secondBatch)
	w.buffers["y"].Int32 = make([]int32, secondBatch)
	require.NoError(t, w.WriteRecords(secondBatch))
	require.NoError(t, w.Close())
	require.NoError(t, pf.Close())

	want := []indexEntry{
		{record: 0, offset: 0},
		{record: indexStride, offset: 0},
		{record: 2 * indexStride, offset: offsetAfterFirstPacket},
	}
	require.Equal(t, want, w.indexEntries)
	assert.Greater(t, offsetAfterFirstPacket, int64(0))
}

func TestScaledIntegerWithFloatBufferRequiresDoScaling(t *testing.T) {
	tree := node.NewTree()
	s := node.NewStructure(tree)
	d, err := node.NewScaledInteger(tree, 0, -2000, 2000, 0.5, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Set("distance", d.Node, false); err != nil {
		t.Fatal(err)
	}
	fields, err := proto.Flatten(s.Node)
	if err != nil {
		t.Fatal(err)
	}
	codecs, err := proto.BuildDefaultCodecs(tree, fields)
	if err != nil {
		t.Fatal(err)
	}
	cv, err := node.NewCompressedVector(tree, s.Node, codecs)
	if err != nil {
		t.Fatal(err)
	}

	backend := &memBackend{}
	pf := page.OpenWriter(backend)
	w, err := OpenWriter(pf, cv, 0, []*Buffer{
		{Path: "distance", Kind: BufferFloat64, Float64: []float64{12.5}, DoScaling: false},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.WriteRecords(1); err == nil {
		t.Error("expected WriteRecords to fail: float buffer without DoScaling against a ScaledInteger field")
	}
}
