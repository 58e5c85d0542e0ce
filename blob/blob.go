// Package blob stores and retrieves opaque Blob payloads as byte ranges
// over the checksummed paged file.
package blob

import (
	"github.com/e57fs/e57/e57err"
	"github.com/e57fs/e57/internal/page"
	"github.com/e57fs/e57/node"
)

// Store writes and reads Blob node payloads against a paged File.
type Store struct {
	file *page.File
}

// NewStore returns a Store backed by file.
func NewStore(file *page.File) *Store { return &Store{file: file} }

// Allocate reserves b.ByteCount() bytes at the current end of the file
// (logical offset file.Length()) for a Blob node declared with its total
// byte count, zero-filling the reserved region and recording its location
// on the node.
func (s *Store) Allocate(b node.BlobNode) error {
	if _, ok := b.Location(); ok {
		return e57err.New(e57err.BadAPIArgument, "blob already allocated")
	}
	offset := s.file.Length()
	if err := s.file.Write(offset, make([]byte, b.ByteCount())); err != nil {
		return err
	}
	return b.SetLocation(offset)
}

// WriteNew allocates and immediately fills a new Blob node with data,
// returning the node. Write mode only.
func WriteNew(s *Store, tree *node.Tree, data []byte) (node.BlobNode, error) {
	b := node.NewBlob(tree, int64(len(data)))
	if err := s.Allocate(b); err != nil {
		return node.BlobNode{}, err
	}
	if err := s.WriteRange(b, 0, data); err != nil {
		return node.BlobNode{}, err
	}
	return b, nil
}

// WriteRange writes data at [start, start+len(data)) within b's declared
// byte range. b must already be allocated.
func (s *Store) WriteRange(b node.BlobNode, start int64, data []byte) error {
	offset, ok := b.Location()
	if !ok {
		return e57err.New(e57err.BadAPIArgument, "blob has not been allocated a file location")
	}
	if start < 0 || start+int64(len(data)) > b.ByteCount() {
		return e57err.New(e57err.BadAPIArgument, "write range exceeds blob length")
	}
	return s.file.Write(offset+start, data)
}

// ReadRange reads n bytes at offset start within b's byte range.
func (s *Store) ReadRange(b node.BlobNode, start int64, n int) ([]byte, error) {
	offset, ok := b.Location()
	if !ok {
		return nil, e57err.New(e57err.BadAPIArgument, "blob has no file location")
	}
	if start < 0 || start+int64(n) > b.ByteCount() {
		return nil, e57err.New(e57err.BadAPIArgument, "read range exceeds blob length")
	}
	return s.file.Read(offset+start, n)
}
