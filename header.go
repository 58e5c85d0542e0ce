package e57

import (
	"encoding/binary"

	"github.com/e57fs/e57/e57err"
	"github.com/e57fs/e57/internal/page"
)

const (
	headerSize    = 48
	fileSignature = "ASTM-E57"
	majorVersion  = 1
	minorVersion  = 0
)

type fileHeader struct {
	major, minor                          uint32
	logicalLength, xmlOffset, xmlLength   int64
	pageSize                              int64
}

func encodeHeader(h fileHeader) []byte {
	buf := make([]byte, headerSize)
	copy(buf[0:8], fileSignature)
	binary.BigEndian.PutUint32(buf[8:12], h.major)
	binary.BigEndian.PutUint32(buf[12:16], h.minor)
	binary.BigEndian.PutUint64(buf[16:24], uint64(h.logicalLength))
	binary.BigEndian.PutUint64(buf[24:32], uint64(h.xmlOffset))
	binary.BigEndian.PutUint64(buf[32:40], uint64(h.xmlLength))
	binary.BigEndian.PutUint64(buf[40:48], uint64(h.pageSize))
	return buf
}

func decodeHeader(buf []byte) (fileHeader, error) {
	if len(buf) < headerSize {
		return fileHeader{}, e57err.New(e57err.BadFileSignature, "header truncated")
	}
	if string(buf[0:8]) != fileSignature {
		return fileHeader{}, e57err.Newf(e57err.BadFileSignature, "got %q", buf[0:8])
	}
	h := fileHeader{
		major:         binary.BigEndian.Uint32(buf[8:12]),
		minor:         binary.BigEndian.Uint32(buf[12:16]),
		logicalLength: int64(binary.BigEndian.Uint64(buf[16:24])),
		xmlOffset:     int64(binary.BigEndian.Uint64(buf[24:32])),
		xmlLength:     int64(binary.BigEndian.Uint64(buf[32:40])),
		pageSize:      int64(binary.BigEndian.Uint64(buf[40:48])),
	}
	if h.major != majorVersion {
		return fileHeader{}, e57err.Newf(e57err.UnknownFileVersion, "major version %d, want %d", h.major, majorVersion)
	}
	if h.pageSize != page.Size {
		return fileHeader{}, e57err.Newf(e57err.UnknownFileVersion, "page size %d, want %d", h.pageSize, page.Size)
	}
	return h, nil
}

func expectedPhysicalSize(logicalLength int64) int64 {
	pages := (logicalLength + page.PayloadSize - 1) / page.PayloadSize
	if pages == 0 {
		pages = 1
	}
	return pages * page.Size
}
