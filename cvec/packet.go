package cvec

import (
	"bytes"
	"encoding/binary"

	"github.com/e57fs/e57/e57err"
	"github.com/e57fs/e57/internal/bitpack"
	"github.com/e57fs/e57/internal/page"
	"github.com/e57fs/e57/node"
)

// packetType tags the three kinds of packet that may appear in a
// CompressedVector's binary section.
type packetType byte

const (
	packetIndex   packetType = 0
	packetData    packetType = 1
	packetIgnored packetType = 2
)

const (
	packetHeaderSize = 4
	maxPacketSize    = 1<<16 - 1 // packets must fit in the 16 bit logical_length field
)

// writePacket frames payload as [1B type][1B flags][2B total length][payload]
// and writes it at offset, returning the offset just past the packet.
func writePacket(f *page.File, offset int64, typ packetType, flags byte, payload []byte) (int64, error) {
	total := packetHeaderSize + len(payload)
	if total > maxPacketSize {
		return 0, e57err.Newf(e57err.BadCVPacket, "packet size %d exceeds the %d byte limit", total, maxPacketSize)
	}
	buf := make([]byte, total)
	buf[0] = byte(typ)
	buf[1] = flags
	binary.BigEndian.PutUint16(buf[2:4], uint16(total))
	copy(buf[4:], payload)
	if err := f.Write(offset, buf); err != nil {
		return 0, err
	}
	return offset + int64(total), nil
}

// readPacket reads the packet at offset and returns its type and payload
// (the header is stripped), along with the offset just past the packet.
func readPacket(f *page.File, offset int64) (typ packetType, payload []byte, next int64, err error) {
	hdr, err := f.Read(offset, packetHeaderSize)
	if err != nil {
		return 0, nil, 0, err
	}
	total := int(binary.BigEndian.Uint16(hdr[2:4]))
	if total < packetHeaderSize {
		return 0, nil, 0, e57err.Newf(e57err.BadCVPacket, "packet length %d smaller than its own header", total)
	}
	full, err := f.Read(offset, total)
	if err != nil {
		return 0, nil, 0, err
	}
	return packetType(full[0]), full[packetHeaderSize:], offset + int64(total), nil
}

// fieldStream accumulates one prototype field's packed records: a tight
// bitstream for numeric variants, or a sequence of length-prefixed UTF-8
// strings for String fields.
type fieldStream struct {
	numeric bool
	bits    *bitpack.Writer
	raw     bytes.Buffer
}

func newFieldStream(kind node.Kind) *fieldStream {
	if kind == node.KindString {
		return &fieldStream{}
	}
	return &fieldStream{numeric: true, bits: bitpack.NewWriter()}
}

func (fs *fieldStream) byteLen() int {
	if fs.numeric {
		return len(fs.bits.Bytes())
	}
	return fs.raw.Len()
}

func (fs *fieldStream) bytes() []byte {
	if fs.numeric {
		return fs.bits.Bytes()
	}
	return fs.raw.Bytes()
}

func (fs *fieldStream) reset() {
	if fs.numeric {
		fs.bits.Reset()
	} else {
		fs.raw.Reset()
	}
}

// decodeCursor reads back one fieldStream's packed bytes during Read.
type decodeCursor struct {
	isString bool
	bits     *bitpack.Reader
	raw      []byte
	pos      int
}

func newDecodeCursor(isString bool, data []byte) *decodeCursor {
	c := &decodeCursor{isString: isString, raw: data}
	if !isString {
		c.bits = bitpack.NewReader(data)
	}
	return c
}

func (c *decodeCursor) nextString() (string, error) {
	if c.pos+2 > len(c.raw) {
		return "", e57err.New(e57err.BadCVPacket, "truncated string field")
	}
	n := int(binary.BigEndian.Uint16(c.raw[c.pos : c.pos+2]))
	c.pos += 2
	if c.pos+n > len(c.raw) {
		return "", e57err.New(e57err.BadCVPacket, "truncated string field")
	}
	s := string(c.raw[c.pos : c.pos+n])
	c.pos += n
	return s, nil
}
