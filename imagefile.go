// Package e57 is the root façade wiring the paged file, node tree, XML
// metadata codec, blob store, and compressed-vector codec into a single
// ASTM E57 image file: create, open, read, write, and close.
package e57

import (
	"bytes"
	"os"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/e57fs/e57/blob"
	"github.com/e57fs/e57/cvec"
	"github.com/e57fs/e57/e57err"
	"github.com/e57fs/e57/internal/page"
	"github.com/e57fs/e57/node"
	"github.com/e57fs/e57/xmlcodec"
)

// Namespace is a registered extension namespace declaration.
type Namespace = xmlcodec.Namespace

const (
	defaultMaxReaders = 32
	defaultMaxWriters = 4
)

// ImageFile is one open ASTM E57 file: its node tree, backing paged file,
// and blob/compressed-vector wiring.
type ImageFile struct {
	path     string
	backend  *os.File
	pageFile *page.File
	tree     *node.Tree
	blobs    *blob.Store

	writable bool
	closed   bool
	canceled bool

	nsLock sync.Mutex
	nsList []Namespace
	byPrefix map[string]string
	byURI    map[string]string

	maxWriters int64
	maxReaders int64
	writerSem  *semaphore.Weighted
	readerSem  *semaphore.Weighted
	openWriters int64
	openReaders int64
}

// CreateImageFile creates path and returns a new, writable, empty
// ImageFile: a root Structure node with no children.
func CreateImageFile(path string) (*ImageFile, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, e57err.Wrap(e57err.OpenFailed, err, path)
	}
	pf := page.OpenWriter(f)
	if err := pf.Write(0, make([]byte, headerSize)); err != nil {
		f.Close()
		return nil, err
	}
	tree := node.NewTree()
	imf := &ImageFile{
		path:        path,
		backend:     f,
		pageFile:    pf,
		tree:        tree,
		blobs:       blob.NewStore(pf),
		writable:    true,
		byPrefix:    map[string]string{},
		byURI:       map[string]string{},
		maxWriters:  defaultMaxWriters,
		maxReaders:  defaultMaxReaders,
		writerSem:   semaphore.NewWeighted(defaultMaxWriters),
		readerSem:   semaphore.NewWeighted(defaultMaxReaders),
	}
	return imf, nil
}

// OpenImageFile opens an existing file read-only under the given checksum
// verification policy, parses its header and XML metadata section, and
// returns the resulting ImageFile positioned at its root node.
func OpenImageFile(path string, policy page.Policy) (*ImageFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, e57err.Wrap(e57err.OpenFailed, err, path)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, e57err.Wrap(e57err.OpenFailed, err, path)
	}
	physicalSize := info.Size()

	pf := page.OpenReader(f, physicalSize, policy)
	headerBytes, err := pf.Read(0, headerSize)
	if err != nil {
		f.Close()
		return nil, err
	}
	h, err := decodeHeader(headerBytes)
	if err != nil {
		f.Close()
		return nil, err
	}
	if physicalSize < expectedPhysicalSize(h.logicalLength) {
		f.Close()
		return nil, e57err.Newf(e57err.BadFileLength, "physical size %d too small for logical length %d", physicalSize, h.logicalLength)
	}
	pf.SetLogicalLength(h.logicalLength)

	xmlBytes, err := pf.Read(h.xmlOffset, int(h.xmlLength))
	if err != nil {
		f.Close()
		return nil, err
	}
	tree := node.NewTree()
	if err := xmlcodec.ParseXML(tree, bytes.NewReader(xmlBytes)); err != nil {
		f.Close()
		return nil, err
	}

	imf := &ImageFile{
		path:        path,
		backend:     f,
		pageFile:    pf,
		tree:        tree,
		blobs:       blob.NewStore(pf),
		writable:    false,
		byPrefix:    map[string]string{},
		byURI:       map[string]string{},
		maxWriters:  defaultMaxWriters,
		maxReaders:  defaultMaxReaders,
		writerSem:   semaphore.NewWeighted(defaultMaxWriters),
		readerSem:   semaphore.NewWeighted(defaultMaxReaders),
	}
	return imf, nil
}

// Tree returns the file's node arena, for constructing nodes destined for
// this file (node.NewStructure(f.Tree()), etc.).
func (f *ImageFile) Tree() *node.Tree { return f.tree }

// Root returns the file's root Structure node.
func (f *ImageFile) Root() (node.StructureNode, error) {
	if f.closed {
		return node.StructureNode{}, e57err.New(e57err.ImageFileNotOpen, f.path)
	}
	return node.Wrap(f.tree, f.tree.Root()).AsStructure()
}

// IsWritable reports whether the file was opened for writing.
func (f *ImageFile) IsWritable() bool { return f.writable }

// WriterCount reports the number of currently open CompressedVectorWriters
// across this file.
func (f *ImageFile) WriterCount() int64 { return atomic.LoadInt64(&f.openWriters) }

// ReaderCount reports the number of currently open CompressedVectorReaders
// across this file.
func (f *ImageFile) ReaderCount() int64 { return atomic.LoadInt64(&f.openReaders) }

// Blobs returns the file's blob store.
func (f *ImageFile) Blobs() *blob.Store { return f.blobs }

// RegisterExtension declares a namespace prefix/URI pair to be written with
// the XML metadata section's root element.
func (f *ImageFile) RegisterExtension(prefix, uri string) error {
	f.nsLock.Lock()
	defer f.nsLock.Unlock()
	if _, dup := f.byPrefix[prefix]; dup {
		return e57err.New(e57err.DuplicateNamespacePrefix, prefix)
	}
	if _, dup := f.byURI[uri]; dup {
		return e57err.New(e57err.DuplicateNamespaceURI, uri)
	}
	f.byPrefix[prefix] = uri
	f.byURI[uri] = prefix
	f.nsList = append(f.nsList, Namespace{Prefix: prefix, URI: uri})
	return nil
}

// Extensions returns the registered namespace declarations, in
// registration order.
func (f *ImageFile) Extensions() []Namespace {
	f.nsLock.Lock()
	defer f.nsLock.Unlock()
	out := make([]Namespace, len(f.nsList))
	copy(out, f.nsList)
	return out
}

// LookupURI returns the URI registered for prefix, and whether it is
// registered at all.
func (f *ImageFile) LookupURI(prefix string) (string, bool) {
	f.nsLock.Lock()
	defer f.nsLock.Unlock()
	uri, ok := f.byPrefix[prefix]
	return uri, ok
}

// LookupPrefix returns the prefix registered for uri, and whether it is
// registered at all.
func (f *ImageFile) LookupPrefix(uri string) (string, bool) {
	f.nsLock.Lock()
	defer f.nsLock.Unlock()
	prefix, ok := f.byURI[uri]
	return prefix, ok
}

// SetMaxReaders reconfigures the maximum number of concurrently open
// CompressedVectorReaders. Fails if any reader is currently open.
func (f *ImageFile) SetMaxReaders(n int64) error {
	if atomic.LoadInt64(&f.openReaders) > 0 {
		return e57err.New(e57err.BadConfiguration, "cannot change max readers while readers are open")
	}
	f.maxReaders = n
	f.readerSem = semaphore.NewWeighted(n)
	return nil
}

// SetMaxWriters reconfigures the maximum number of concurrently open
// CompressedVectorWriters. Fails if any writer is currently open.
func (f *ImageFile) SetMaxWriters(n int64) error {
	if atomic.LoadInt64(&f.openWriters) > 0 {
		return e57err.New(e57err.BadConfiguration, "cannot change max writers while writers are open")
	}
	f.maxWriters = n
	f.writerSem = semaphore.NewWeighted(n)
	return nil
}

// VerifyChecksums re-reads every page of the file's logical byte stream.
// Each page's checksum is verified as the policy the file was opened with
// selects it: under page.PolicyAll every page is verified, under a lower
// policy only the header page, the last page and the pages the policy
// picks are.
func (f *ImageFile) VerifyChecksums() error {
	length := f.pageFile.Length()
	for off := int64(0); off < length; off += page.PayloadSize {
		n := page.PayloadSize
		if off+int64(n) > length {
			n = int(length - off)
		}
		if _, err := f.pageFile.Read(off, n); err != nil {
			return err
		}
	}
	return nil
}

// CheckInvariant validates the file's entire node tree from its root.
func (f *ImageFile) CheckInvariant() error {
	root, err := f.Root()
	if err != nil {
		return err
	}
	return root.CheckInvariant(true)
}

// OpenCompressedVectorWriter opens a writer for cv bound to buffers,
// appending its binary packets at the current end of the file. The file
// enforces a maximum number of concurrently open writers independently of
// the per-node single-writer rule enforced by the node tree itself.
func (f *ImageFile) OpenCompressedVectorWriter(cv node.CompressedVectorNode, buffers []*cvec.Buffer) (*CompressedVectorWriter, error) {
	if f.closed {
		return nil, e57err.New(e57err.ImageFileNotOpen, f.path)
	}
	if !f.writable {
		return nil, e57err.New(e57err.FileIsReadOnly, f.path)
	}
	if !f.writerSem.TryAcquire(1) {
		return nil, e57err.New(e57err.TooManyWriters, f.path)
	}
	w, err := cvec.OpenWriter(f.pageFile, cv, f.pageFile.Length(), buffers)
	if err != nil {
		f.writerSem.Release(1)
		return nil, err
	}
	atomic.AddInt64(&f.openWriters, 1)
	return &CompressedVectorWriter{Writer: w, file: f}, nil
}

// OpenCompressedVectorReader opens a reader for cv bound to buffers. The
// file enforces a maximum number of concurrently open readers (spec.md
// §3.1/§5), acquired via a weighted semaphore rather than blocking.
func (f *ImageFile) OpenCompressedVectorReader(cv node.CompressedVectorNode, buffers []*cvec.Buffer) (*CompressedVectorReader, error) {
	if f.closed {
		return nil, e57err.New(e57err.ImageFileNotOpen, f.path)
	}
	if !f.readerSem.TryAcquire(1) {
		return nil, e57err.New(e57err.TooManyReaders, f.path)
	}
	r, err := cvec.OpenReader(f.pageFile, cv, buffers)
	if err != nil {
		f.readerSem.Release(1)
		return nil, err
	}
	atomic.AddInt64(&f.openReaders, 1)
	return &CompressedVectorReader{Reader: r, file: f}, nil
}

// Close serializes the node tree to the XML metadata section, patches the
// file header with the final offsets, and flushes and syncs the file. On a
// read-only file it simply closes the backend. Close fails with Internal,
// leaving the file open, if any CompressedVectorWriter or
// CompressedVectorReader opened from it is still open; close those first.
func (f *ImageFile) Close() error {
	if f.closed {
		return nil
	}
	if atomic.LoadInt64(&f.openWriters) > 0 || atomic.LoadInt64(&f.openReaders) > 0 {
		return e57err.New(e57err.Internal, "file closed with CompressedVectorWriters or CompressedVectorReaders still open")
	}
	defer func() { f.closed = true }()

	if f.canceled {
		return f.backend.Close()
	}

	if !f.writable {
		if err := f.pageFile.Close(); err != nil {
			return err
		}
		return f.backend.Close()
	}

	root, err := node.Wrap(f.tree, f.tree.Root()).AsStructure()
	if err != nil {
		return err
	}

	xmlOffset := f.pageFile.Length()
	var xmlBuf bytes.Buffer
	if err := xmlcodec.WriteXML(&xmlBuf, root, f.Extensions()); err != nil {
		return err
	}
	if err := f.pageFile.Write(xmlOffset, xmlBuf.Bytes()); err != nil {
		return err
	}
	xmlLength := int64(xmlBuf.Len())
	logicalLength := f.pageFile.Length()

	hdr := encodeHeader(fileHeader{
		major:         majorVersion,
		minor:         minorVersion,
		logicalLength: logicalLength,
		xmlOffset:     xmlOffset,
		xmlLength:     xmlLength,
		pageSize:      page.Size,
	})
	if err := f.pageFile.Write(0, hdr); err != nil {
		return err
	}
	return f.pageFile.Close()
}

// Cancel abandons the file without writing its XML metadata section or
// finalizing its header, closing the backend as-is. The resulting on-disk
// file is not a valid E57 file.
func (f *ImageFile) Cancel() error {
	if f.closed {
		return nil
	}
	f.canceled = true
	f.closed = true
	return f.backend.Close()
}
