// Package page implements the checksummed paged file layer: a logical byte
// stream over a physical file whose fixed-size pages each carry a trailing
// CRC-32C checksum. Logical offsets never see the checksum bytes.
package page

import (
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/e57fs/e57/e57err"
)

// Size is the fixed physical page size in bytes.
const Size = 1024

// PayloadSize is the number of usable (non-checksum) bytes per page.
const PayloadSize = Size - 4

// Policy is the percentage of pages whose checksum is verified on read.
type Policy int

const (
	PolicyNone   Policy = 0
	PolicySparse Policy = 25
	PolicyHalf   Policy = 50
	PolicyAll    Policy = 100
)

// Backend is the operating-system file primitive the paged layer is built
// on. *os.File satisfies it.
type Backend interface {
	io.ReaderAt
	io.WriterAt
	Truncate(size int64) error
	Sync() error
}

var castagnoliTable = crc32.MakeTable(crc32.Castagnoli)

func checksum(payload []byte) uint32 {
	return crc32.Checksum(payload, castagnoliTable)
}

// File is the checksummed logical byte stream over a Backend.
type File struct {
	backend  Backend
	writable bool
	policy   Policy

	physicalSize int64 // write mode: bytes flushed to backend so far
	logicalLen   int64 // -1 until known (read mode, before header parsed)

	// dirty page cache: at most one page buffered for coalesced checksums.
	dirty      bool
	dirtyPage  int64
	pageBuf    [Size]byte
	pageLoaded bool // pageBuf holds the real contents of dirtyPage
}

// OpenWriter returns a File in write mode, logically empty.
func OpenWriter(backend Backend) *File {
	return &File{backend: backend, writable: true, logicalLen: 0}
}

// OpenReader returns a File in read mode. physicalSize is the backend's
// current size in bytes (the caller stats the underlying file). The
// logical length is unknown (reads are bounded only by physicalSize) until
// SetLogicalLength is called, typically right after the file header has
// been parsed.
func OpenReader(backend Backend, physicalSize int64, policy Policy) *File {
	return &File{backend: backend, writable: false, policy: policy, physicalSize: physicalSize, logicalLen: -1}
}

// SetLogicalLength records the authoritative logical length once known
// (from the file header). It enables Length() and "last page" checksum
// forcing.
func (f *File) SetLogicalLength(n int64) { f.logicalLen = n }

// Length returns the logical length, or -1 if not yet known (read mode,
// before SetLogicalLength).
func (f *File) Length() int64 { return f.logicalLen }

func pageIndex(logicalOffset int64) (idx int64, inPayload int) {
	return logicalOffset / PayloadSize, int(logicalOffset % PayloadSize)
}

func (f *File) lastPageIndex() int64 {
	if f.logicalLen <= 0 {
		return 0
	}
	idx, _ := pageIndex(f.logicalLen - 1)
	return idx
}

// forcedVerify decides whether pageIdx is always verified regardless of
// policy: the header page and the last page before EOF (spec requirement).
func (f *File) forcedVerify(pageIdx int64) bool {
	if pageIdx == 0 {
		return true
	}
	return f.logicalLen >= 0 && pageIdx == f.lastPageIndex()
}

// shouldVerify decides, for a page that isn't forced, whether the
// configured policy selects it. The decision is a deterministic function
// of the page index rather than a random draw, so repeated reads of the
// same file are reproducible.
func (f *File) shouldVerify(pageIdx int64) bool {
	if f.forcedVerify(pageIdx) {
		return true
	}
	if f.policy <= PolicyNone {
		return false
	}
	if f.policy >= PolicyAll {
		return true
	}
	bucket := (uint64(pageIdx) * 2654435761) % 100
	return bucket < uint64(f.policy)
}

// readPage loads the full physical page pageIdx, verifying its checksum
// when selected by policy, and returns its payload (PayloadSize bytes).
func (f *File) readPage(pageIdx int64) ([]byte, error) {
	if f.dirty && f.pageLoaded && f.dirtyPage == pageIdx {
		return f.pageBuf[:PayloadSize], nil
	}

	var buf [Size]byte
	physOff := pageIdx * Size
	n, err := f.backend.ReadAt(buf[:], physOff)
	if err != nil && err != io.EOF {
		return nil, e57err.Wrap(e57err.ReadFailed, err, "reading page")
	}
	if n < Size {
		// Short final page: treat missing bytes as zero, as if never written.
		for i := n; i < Size; i++ {
			buf[i] = 0
		}
	}

	if f.shouldVerify(pageIdx) {
		want := binary.BigEndian.Uint32(buf[PayloadSize:])
		got := checksum(buf[:PayloadSize])
		if want != got {
			return nil, e57err.Newf(e57err.BadChecksum, "page %d: stored checksum %08x, computed %08x", pageIdx, want, got)
		}
	}

	return buf[:PayloadSize], nil
}

// Read reads n bytes starting at logicalOffset.
func (f *File) Read(logicalOffset int64, n int) ([]byte, error) {
	if !f.writable {
		pages := (f.physicalSize + Size - 1) / Size
		if logicalOffset < 0 || logicalOffset+int64(n) > pages*PayloadSize {
			return nil, e57err.Newf(e57err.ReadFailed, "read of %d bytes at logical offset %d extends past the end of the file", n, logicalOffset)
		}
	}
	out := make([]byte, n)
	remaining := n
	readOff := logicalOffset
	pos := 0
	for remaining > 0 {
		pageIdx, inPayload := pageIndex(readOff)
		payload, err := f.readPage(pageIdx)
		if err != nil {
			return nil, err
		}
		chunk := PayloadSize - inPayload
		if chunk > remaining {
			chunk = remaining
		}
		copy(out[pos:pos+chunk], payload[inPayload:inPayload+chunk])
		pos += chunk
		readOff += int64(chunk)
		remaining -= chunk
	}
	return out, nil
}

// flushDirty writes the currently buffered dirty page to the backend,
// computing its checksum immediately before the flush.
func (f *File) flushDirty() error {
	if !f.dirty {
		return nil
	}
	binary.BigEndian.PutUint32(f.pageBuf[PayloadSize:], checksum(f.pageBuf[:PayloadSize]))
	physOff := f.dirtyPage * Size
	if _, err := f.backend.WriteAt(f.pageBuf[:], physOff); err != nil {
		return e57err.Wrap(e57err.WriteFailed, err, "flushing page")
	}
	if end := physOff + Size; end > f.physicalSize {
		f.physicalSize = end
	}
	f.dirty = false
	f.pageLoaded = false
	return nil
}

// loadForWrite brings pageIdx into the dirty-page buffer, flushing any
// previously dirty page first. Existing contents are loaded from the
// backend when the page already exists; otherwise the buffer starts zero.
func (f *File) loadForWrite(pageIdx int64) error {
	if f.dirty && f.dirtyPage == pageIdx {
		return nil
	}
	if err := f.flushDirty(); err != nil {
		return err
	}

	physOff := pageIdx * Size
	if physOff < f.physicalSize {
		n, err := f.backend.ReadAt(f.pageBuf[:], physOff)
		if err != nil && err != io.EOF {
			return e57err.Wrap(e57err.ReadFailed, err, "loading page for write")
		}
		for i := n; i < Size; i++ {
			f.pageBuf[i] = 0
		}
	} else {
		for i := range f.pageBuf {
			f.pageBuf[i] = 0
		}
	}

	f.dirtyPage = pageIdx
	f.dirty = true
	f.pageLoaded = true
	return nil
}

// Write writes data at logicalOffset. Write mode only.
func (f *File) Write(logicalOffset int64, data []byte) error {
	if !f.writable {
		return e57err.New(e57err.FileIsReadOnly, "write on read-only file")
	}

	writeOff := logicalOffset
	pos := 0
	remaining := len(data)
	for remaining > 0 {
		pageIdx, inPayload := pageIndex(writeOff)
		if err := f.loadForWrite(pageIdx); err != nil {
			return err
		}
		chunk := PayloadSize - inPayload
		if chunk > remaining {
			chunk = remaining
		}
		copy(f.pageBuf[inPayload:inPayload+chunk], data[pos:pos+chunk])
		pos += chunk
		writeOff += int64(chunk)
		remaining -= chunk
	}

	if end := logicalOffset + int64(len(data)); end > f.logicalLen {
		f.logicalLen = end
	}
	return nil
}

// Flush forces any buffered dirty page out to the backend without closing
// the file.
func (f *File) Flush() error {
	return f.flushDirty()
}

// Close flushes pending writes (write mode) and syncs the backend.
func (f *File) Close() error {
	if f.writable {
		if err := f.flushDirty(); err != nil {
			return err
		}
	}
	return f.backend.Sync()
}
