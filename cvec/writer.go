package cvec

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/e57fs/e57/e57err"
	"github.com/e57fs/e57/internal/page"
	"github.com/e57fs/e57/internal/varnum"
	"github.com/e57fs/e57/node"
	"github.com/e57fs/e57/proto"
)

// indexStride is the record spacing at which the trailing index packet
// records a (record number, data packet offset) entry.
const indexStride = 1024

type indexEntry struct {
	record int64
	offset int64
}

// Writer packs records from caller-supplied Buffers into a
// CompressedVector's binary section, one data packet at a time.
type Writer struct {
	cv     node.CompressedVectorNode
	fields []proto.Field

	file   *page.File
	start  int64
	offset int64

	buffers map[string]*Buffer
	streams map[string]*fieldStream

	pendingRecords  int
	recordCount     int64
	dataPacketCount int64
	indexEntries    []indexEntry
	nextIndexRecord int64
	closed          bool
}

// OpenWriter validates buffers against cv's prototype and codecs, marks
// the prototype frozen, and returns a Writer ready to accept records
// starting at the given logical file offset. The frozen mark makes every
// later OpenWriter on cv fail with BadPrototype; node.Tree's Set and
// Append do not consult it, so the prototype subtree itself can still be
// modified.
func OpenWriter(file *page.File, cv node.CompressedVectorNode, startOffset int64, buffers []*Buffer) (*Writer, error) {
	if cv.PrototypeFrozen() {
		return nil, e57err.New(e57err.BadPrototype, "prototype already frozen by a previous writer")
	}
	if err := cv.MarkWriterOpen(); err != nil {
		return nil, err
	}

	fields, err := proto.Flatten(cv.Prototype())
	if err != nil {
		cv.MarkWriterClosed()
		return nil, err
	}
	for _, f := range fields {
		if f.Kind == node.KindBlob {
			cv.MarkWriterClosed()
			return nil, e57err.New(e57err.BadPrototype, "Blob fields are not supported inside a CompressedVector prototype")
		}
	}
	if err := proto.ValidateCodecs(cv.Codecs(), fields); err != nil {
		cv.MarkWriterClosed()
		return nil, err
	}

	bufByPath := make(map[string]*Buffer, len(buffers))
	for _, b := range buffers {
		if _, dup := bufByPath[b.Path]; dup {
			cv.MarkWriterClosed()
			return nil, e57err.Newf(e57err.BufferDuplicatePathname, "%q", b.Path)
		}
		bufByPath[b.Path] = b
	}

	capacity := -1
	for _, f := range fields {
		b, ok := bufByPath[f.Path]
		if !ok {
			cv.MarkWriterClosed()
			return nil, e57err.Newf(e57err.NoBufferForElement, "%q", f.Path)
		}
		if f.Kind == node.KindString && b.Kind != BufferString {
			cv.MarkWriterClosed()
			return nil, e57err.Newf(e57err.ExpectingUString, "%q", f.Path)
		}
		if f.Kind != node.KindString && b.Kind == BufferString {
			cv.MarkWriterClosed()
			return nil, e57err.Newf(e57err.ExpectingNumeric, "%q", f.Path)
		}
		if capacity == -1 {
			capacity = b.Len()
		} else if b.Len() != capacity {
			cv.MarkWriterClosed()
			return nil, e57err.New(e57err.BufferSizeMismatch, "")
		}
	}

	cv.FreezePrototype()

	streams := make(map[string]*fieldStream, len(fields))
	for _, f := range fields {
		streams[f.Path] = newFieldStream(f.Kind)
	}

	return &Writer{
		cv:      cv,
		fields:  fields,
		file:    file,
		start:   startOffset,
		offset:  startOffset,
		buffers: bufByPath,
		streams: streams,
	}, nil
}

// WriteRecords packs the first n elements of every bound buffer and
// appends them to the current packet, then flushes the packet once its
// estimated size has reached the packet size limit.
func (w *Writer) WriteRecords(n int) error {
	if w.closed {
		return e57err.New(e57err.WriterNotOpen, "")
	}
	for _, f := range w.fields {
		buf := w.buffers[f.Path]
		if n > buf.Len() {
			return e57err.New(e57err.BadAPIArgument, "n exceeds buffer length")
		}
		if err := encodeField(f, buf, n, w.streams[f.Path]); err != nil {
			return err
		}
	}
	w.pendingRecords += n
	w.recordCount += int64(n)

	if w.estimatedPacketSize() >= maxPacketSize-packetHeaderSize {
		return w.flushDataPacket()
	}
	return nil
}

func (w *Writer) estimatedPacketSize() int {
	total := packetHeaderSize + 2 // packet header + record count prefix
	for _, f := range w.fields {
		total += 2 + w.streams[f.Path].byteLen()
	}
	return total
}

func (w *Writer) flushDataPacket() error {
	if w.pendingRecords == 0 {
		return nil
	}
	startRecord := w.recordCount - int64(w.pendingRecords)
	packetOffset := w.offset

	var payload bytes.Buffer
	var recCount [2]byte
	binary.BigEndian.PutUint16(recCount[:], uint16(w.pendingRecords))
	payload.Write(recCount[:])
	for _, f := range w.fields {
		b := w.streams[f.Path].bytes()
		var lenPrefix [2]byte
		binary.BigEndian.PutUint16(lenPrefix[:], uint16(len(b)))
		payload.Write(lenPrefix[:])
		payload.Write(b)
	}
	next, err := writePacket(w.file, w.offset, packetData, 0, payload.Bytes())
	if err != nil {
		return err
	}
	w.offset = next
	w.dataPacketCount++

	endRecord := startRecord + int64(w.pendingRecords)
	for w.nextIndexRecord < endRecord {
		w.indexEntries = append(w.indexEntries, indexEntry{record: w.nextIndexRecord, offset: packetOffset})
		w.nextIndexRecord += indexStride
	}

	w.pendingRecords = 0
	for _, f := range w.fields {
		w.streams[f.Path].reset()
	}
	return nil
}

// Close flushes any buffered records, appends the trailing index packet,
// and records the final record count and starting offset on the
// CompressedVector node. A CompressedVector written with zero records
// still gets this index packet, with recordCount 0, no data packets, and
// no index entries.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	if err := w.flushDataPacket(); err != nil {
		return err
	}

	header := make([]byte, 20)
	binary.BigEndian.PutUint64(header[0:8], uint64(w.recordCount))
	binary.BigEndian.PutUint64(header[8:16], uint64(w.dataPacketCount))
	binary.BigEndian.PutUint32(header[16:20], uint32(len(w.indexEntries)))
	payload := bytes.NewBuffer(header)
	for _, e := range w.indexEntries {
		var entry [16]byte
		binary.BigEndian.PutUint64(entry[0:8], uint64(e.record))
		binary.BigEndian.PutUint64(entry[8:16], uint64(e.offset))
		payload.Write(entry[:])
	}

	next, err := writePacket(w.file, w.offset, packetIndex, 0, payload.Bytes())
	if err != nil {
		return err
	}
	w.offset = next
	w.closed = true
	w.cv.MarkWriterClosed()
	return w.cv.SetResult(w.recordCount, w.start)
}

func encodeField(f proto.Field, buf *Buffer, n int, fs *fieldStream) error {
	switch f.Kind {
	case node.KindInteger:
		in, _ := f.Node.AsInteger()
		lo, hi := in.Min(), in.Max()
		for i := 0; i < n; i++ {
			v, err := buf.GetInt(i)
			if err != nil {
				return err
			}
			if v < lo || v > hi {
				return e57err.Newf(e57err.ValueOutOfBounds, "%s: %d not in [%d,%d]", f.Path, v, lo, hi)
			}
			fs.bits.WriteBits(uint64(v-lo), f.Bits)
		}

	case node.KindScaledInteger:
		si, _ := f.Node.AsScaledInteger()
		lo, hi, scale, offset := si.Min(), si.Max(), si.Scale(), si.Offset()
		for i := 0; i < n; i++ {
			var raw int64
			if buf.Kind == BufferFloat32 || buf.Kind == BufferFloat64 {
				if !buf.DoScaling {
					return e57err.Newf(e57err.ConversionRequired, "%s: value requires scaling", f.Path)
				}
				fv, _ := buf.GetFloat(i)
				rf := (fv - offset) / scale
				raw = int64(math.Round(rf))
				if !buf.DoConversion && float64(raw) != rf {
					return e57err.Newf(e57err.ScaledValueNotRepresentable, "%s", f.Path)
				}
			} else {
				v, err := buf.GetInt(i)
				if err != nil {
					return err
				}
				raw = v
			}
			if raw < lo || raw > hi {
				return e57err.Newf(e57err.ValueOutOfBounds, "%s: %d not in [%d,%d]", f.Path, raw, lo, hi)
			}
			fs.bits.WriteBits(uint64(raw-lo), f.Bits)
		}

	case node.KindFloat:
		fl, _ := f.Node.AsFloat()
		lo, hi := fl.Min(), fl.Max()
		for i := 0; i < n; i++ {
			v, err := buf.GetFloat(i)
			if err != nil {
				return err
			}
			if v < lo || v > hi {
				return e57err.Newf(e57err.ValueOutOfBounds, "%s: %v not in [%v,%v]", f.Path, v, lo, hi)
			}
			if fl.Precision() == node.Single {
				f32, ok := varnum.NarrowFloat32(v)
				if !ok && !buf.DoConversion {
					if math.Abs(v) > math.MaxFloat32 {
						return e57err.Newf(e57err.Real64TooLarge, "%s", f.Path)
					}
					return e57err.Newf(e57err.ConversionRequired, "%s: %v is not exactly representable as a 32 bit float", f.Path, v)
				}
				fs.bits.WriteBits(uint64(math.Float32bits(f32)), 32)
			} else {
				fs.bits.WriteBits(math.Float64bits(v), 64)
			}
		}

	case node.KindString:
		for i := 0; i < n; i++ {
			s, err := buf.GetString(i)
			if err != nil {
				return err
			}
			data := []byte(s)
			if len(data) > 0xFFFF {
				return e57err.Newf(e57err.BadBuffer, "%s: string too long", f.Path)
			}
			var lenPrefix [2]byte
			binary.BigEndian.PutUint16(lenPrefix[:], uint16(len(data)))
			fs.raw.Write(lenPrefix[:])
			fs.raw.Write(data)
		}

	default:
		return e57err.Newf(e57err.BadPrototype, "unsupported field kind at %q", f.Path)
	}
	return nil
}
