package e57

import (
	"sync/atomic"

	"github.com/e57fs/e57/cvec"
)

// CompressedVectorWriter wraps cvec.Writer, releasing this file's
// writer-count semaphore slot when closed.
type CompressedVectorWriter struct {
	*cvec.Writer
	file   *ImageFile
	closed bool
}

// Close flushes and finalizes the underlying writer and releases the
// file-level writer slot it held.
func (w *CompressedVectorWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	err := w.Writer.Close()
	atomic.AddInt64(&w.file.openWriters, -1)
	w.file.writerSem.Release(1)
	return err
}

// CompressedVectorReader wraps cvec.Reader, releasing this file's
// reader-count semaphore slot when closed.
type CompressedVectorReader struct {
	*cvec.Reader
	file   *ImageFile
	closed bool
}

// Close releases the underlying reader and the file-level reader slot it
// held.
func (r *CompressedVectorReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	err := r.Reader.Close()
	atomic.AddInt64(&r.file.openReaders, -1)
	r.file.readerSem.Release(1)
	return err
}
