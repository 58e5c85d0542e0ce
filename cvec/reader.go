package cvec

import (
	"encoding/binary"
	"math"

	"github.com/e57fs/e57/e57err"
	"github.com/e57fs/e57/internal/page"
	"github.com/e57fs/e57/node"
	"github.com/e57fs/e57/proto"
)

// Reader unpacks records from a CompressedVector's binary section into
// caller-supplied Buffers.
type Reader struct {
	cv     node.CompressedVectorNode
	fields []proto.Field

	file   *page.File
	offset int64

	buffers map[string]*Buffer

	totalRecords int64
	recordsRead  int64

	cursors             map[string]*decodeCursor
	recordsLeftInPacket int

	closed bool
}

// OpenReader validates buffers against cv's prototype and codecs and
// returns a Reader positioned at the start of the binary section recorded
// on cv.
func OpenReader(file *page.File, cv node.CompressedVectorNode, buffers []*Buffer) (*Reader, error) {
	cv.MarkReaderOpen()

	fields, err := proto.Flatten(cv.Prototype())
	if err != nil {
		cv.MarkReaderClosed()
		return nil, err
	}
	for _, f := range fields {
		if f.Kind == node.KindBlob {
			cv.MarkReaderClosed()
			return nil, e57err.New(e57err.BadPrototype, "Blob fields are not supported inside a CompressedVector prototype")
		}
	}
	if err := proto.ValidateCodecs(cv.Codecs(), fields); err != nil {
		cv.MarkReaderClosed()
		return nil, err
	}

	bufByPath := make(map[string]*Buffer, len(buffers))
	for _, b := range buffers {
		if _, dup := bufByPath[b.Path]; dup {
			cv.MarkReaderClosed()
			return nil, e57err.Newf(e57err.BufferDuplicatePathname, "%q", b.Path)
		}
		bufByPath[b.Path] = b
	}

	capacity := -1
	for _, f := range fields {
		b, ok := bufByPath[f.Path]
		if !ok {
			cv.MarkReaderClosed()
			return nil, e57err.Newf(e57err.NoBufferForElement, "%q", f.Path)
		}
		if f.Kind == node.KindString && b.Kind != BufferString {
			cv.MarkReaderClosed()
			return nil, e57err.Newf(e57err.ExpectingUString, "%q", f.Path)
		}
		if f.Kind != node.KindString && b.Kind == BufferString {
			cv.MarkReaderClosed()
			return nil, e57err.Newf(e57err.ExpectingNumeric, "%q", f.Path)
		}
		if capacity == -1 {
			capacity = b.Len()
		} else if b.Len() != capacity {
			cv.MarkReaderClosed()
			return nil, e57err.New(e57err.BufferSizeMismatch, "")
		}
	}

	return &Reader{
		cv:           cv,
		fields:       fields,
		file:         file,
		offset:       cv.FileOffset(),
		buffers:      bufByPath,
		totalRecords: cv.RecordCount(),
	}, nil
}

func (r *Reader) bufferCapacity() int {
	if len(r.fields) == 0 {
		return 0
	}
	return r.buffers[r.fields[0].Path].Len()
}

// Read decodes up to one buffer's capacity worth of records and returns
// how many were filled; it returns 0, nil at the end of the stream.
func (r *Reader) Read() (int, error) {
	if r.closed {
		return 0, e57err.New(e57err.ReaderNotOpen, "")
	}
	capacity := r.bufferCapacity()
	n := 0
	for n < capacity && r.recordsRead < r.totalRecords {
		if r.recordsLeftInPacket == 0 {
			if err := r.loadNextPacket(); err != nil {
				return n, err
			}
			continue
		}
		batch := r.recordsLeftInPacket
		if room := capacity - n; batch > room {
			batch = room
		}
		if remaining := r.totalRecords - r.recordsRead; int64(batch) > remaining {
			batch = int(remaining)
		}
		if err := r.decodeInto(n, batch); err != nil {
			return n, err
		}
		n += batch
		r.recordsLeftInPacket -= batch
		r.recordsRead += int64(batch)
	}
	return n, nil
}

func (r *Reader) loadNextPacket() error {
	for {
		typ, payload, next, err := readPacket(r.file, r.offset)
		if err != nil {
			return err
		}
		r.offset = next
		switch typ {
		case packetIgnored, packetIndex:
			continue
		case packetData:
			if len(payload) < 2 {
				return e57err.New(e57err.BadCVPacket, "data packet missing record count prefix")
			}
			recordsInPacket := int(binary.BigEndian.Uint16(payload[0:2]))
			pos := 2
			cursors := make(map[string]*decodeCursor, len(r.fields))
			for _, f := range r.fields {
				if pos+2 > len(payload) {
					return e57err.New(e57err.BadCVPacket, "truncated field stream length")
				}
				flen := int(binary.BigEndian.Uint16(payload[pos : pos+2]))
				pos += 2
				if pos+flen > len(payload) {
					return e57err.New(e57err.BadCVPacket, "truncated field stream")
				}
				cursors[f.Path] = newDecodeCursor(f.Kind == node.KindString, payload[pos:pos+flen])
				pos += flen
			}
			r.cursors = cursors
			r.recordsLeftInPacket = recordsInPacket
			return nil
		default:
			return e57err.Newf(e57err.BadCVPacket, "unknown packet type %d", typ)
		}
	}
}

func (r *Reader) decodeInto(destOffset, batch int) error {
	for _, f := range r.fields {
		buf := r.buffers[f.Path]
		cur := r.cursors[f.Path]
		switch f.Kind {
		case node.KindInteger:
			in, _ := f.Node.AsInteger()
			lo := in.Min()
			for i := 0; i < batch; i++ {
				v := lo + int64(cur.bits.ReadBits(f.Bits))
				if err := buf.SetInt(destOffset+i, v); err != nil {
					return err
				}
			}
		case node.KindScaledInteger:
			si, _ := f.Node.AsScaledInteger()
			lo, scale, offset := si.Min(), si.Scale(), si.Offset()
			for i := 0; i < batch; i++ {
				raw := lo + int64(cur.bits.ReadBits(f.Bits))
				if buf.Kind == BufferFloat32 || buf.Kind == BufferFloat64 {
					if !buf.DoScaling {
						return e57err.Newf(e57err.ConversionRequired, "%s: value requires scaling", f.Path)
					}
					if err := buf.SetFloat(destOffset+i, float64(raw)*scale+offset); err != nil {
						return err
					}
				} else {
					if err := buf.SetInt(destOffset+i, raw); err != nil {
						return err
					}
				}
			}
		case node.KindFloat:
			fl, _ := f.Node.AsFloat()
			for i := 0; i < batch; i++ {
				var v float64
				if fl.Precision() == node.Single {
					v = float64(math.Float32frombits(uint32(cur.bits.ReadBits(32))))
				} else {
					v = math.Float64frombits(cur.bits.ReadBits(64))
				}
				if err := buf.SetFloat(destOffset+i, v); err != nil {
					return err
				}
			}
		case node.KindString:
			for i := 0; i < batch; i++ {
				s, err := cur.nextString()
				if err != nil {
					return err
				}
				if err := buf.SetString(destOffset+i, s); err != nil {
					return err
				}
			}
		default:
			return e57err.Newf(e57err.BadPrototype, "unsupported field kind at %q", f.Path)
		}
	}
	return nil
}

// Seek is not implemented: this codec only supports forward sequential
// reads of a CompressedVector's records.
func (r *Reader) Seek(recordIndex int64) error {
	return e57err.New(e57err.NotImplemented, "CompressedVectorReader.Seek")
}

// Close releases the reader slot tracked on the CompressedVector node.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.cv.MarkReaderClosed()
	return nil
}
