package blob

import (
	"bytes"
	"io"
	"testing"

	"github.com/e57fs/e57/internal/page"
	"github.com/e57fs/e57/node"
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

func TestWriteNewAndReadRange(t *testing.T) {
	backend := &memBackend{}
	pf := page.OpenWriter(backend)
	store := NewStore(pf)
	tree := node.NewTree()

	b, err := WriteNew(store, tree, []byte("hello, e57 blob"))
	if err != nil {
		t.Fatal(err)
	}

	got, err := store.ReadRange(b, 7, 3)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte("e57")) {
		t.Errorf("ReadRange = %q, want %q", got, "e57")
	}
}

func TestReadRangePastLengthFails(t *testing.T) {
	backend := &memBackend{}
	pf := page.OpenWriter(backend)
	store := NewStore(pf)
	tree := node.NewTree()

	b, err := WriteNew(store, tree, []byte("short"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.ReadRange(b, 0, 100); err == nil {
		t.Error("ReadRange past the blob's declared length should fail")
	}
}

func TestWriteRangeBeforeAllocateFails(t *testing.T) {
	backend := &memBackend{}
	pf := page.OpenWriter(backend)
	store := NewStore(pf)
	tree := node.NewTree()

	b := node.NewBlob(tree, 10)
	if err := store.WriteRange(b, 0, []byte("x")); err == nil {
		t.Error("WriteRange before Allocate should fail")
	}
}
