package page

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/e57fs/e57/e57err"
)

// memBackend is a minimal in-memory Backend for tests.
type memBackend struct {
	data []byte
}

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
	if size <= int64(len(m.data)) {
		m.data = m.data[:size]
		return nil
	}
	grown := make([]byte, size)
	copy(grown, m.data)
	m.data = grown
	return nil
}

func (m *memBackend) Sync() error { return nil }

func TestWriteReadRoundTrip(t *testing.T) {
	backend := &memBackend{}
	f := OpenWriter(backend)
	payload := bytes.Repeat([]byte("e57"), 500) // spans multiple pages
	if err := f.Write(0, payload); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	rf := OpenReader(backend, int64(len(backend.data)), PolicyAll)
	rf.SetLogicalLength(f.Length())
	got, err := rf.Read(0, len(payload))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("round trip mismatch: got %d bytes, want %d", len(got), len(payload))
	}
}

func TestChecksumMismatchDetectedUnderPolicyAll(t *testing.T) {
	backend := &memBackend{}
	f := OpenWriter(backend)
	if err := f.Write(0, []byte("hello world")); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	backend.data[0] ^= 0xFF // corrupt a payload byte without fixing the checksum

	rf := OpenReader(backend, int64(len(backend.data)), PolicyAll)
	rf.SetLogicalLength(f.Length())
	_, err := rf.Read(0, 11)
	var e57e *e57err.Error
	if !errors.As(err, &e57e) || e57e.Code != e57err.BadChecksum {
		t.Errorf("corrupted page under PolicyAll: got %v, want BAD_CHECKSUM", err)
	}
}

func TestChecksumMismatchIgnoredUnderPolicyNoneForNonForcedPage(t *testing.T) {
	backend := &memBackend{}
	f := OpenWriter(backend)
	payload := bytes.Repeat([]byte("x"), PayloadSize*3) // at least 3 pages
	if err := f.Write(0, payload); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	// Corrupt the payload of page 1 (not the header, not necessarily the
	// last page) without fixing its checksum.
	backend.data[Size+10] ^= 0xFF

	rf := OpenReader(backend, int64(len(backend.data)), PolicyNone)
	rf.SetLogicalLength(f.Length())
	if _, err := rf.Read(PayloadSize, 10); err != nil {
		t.Errorf("PolicyNone should skip verification of a non-forced page: %v", err)
	}
}

func TestWriteOnReadOnlyFileFails(t *testing.T) {
	backend := &memBackend{}
	rf := OpenReader(backend, 0, PolicyNone)
	err := rf.Write(0, []byte("x"))
	var e57e *e57err.Error
	if !errors.As(err, &e57e) || e57e.Code != e57err.FileIsReadOnly {
		t.Errorf("write on read-only file: got %v, want FILE_IS_READ_ONLY", err)
	}
}
