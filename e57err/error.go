// Package e57err defines the uniform failure mechanism used across the
// e57 module: a numeric error kind, a wrapped cause, a free-form context
// string, and the source site where the error was raised.
package e57err

import (
	"fmt"
	"io"
	"runtime"
)

// Code identifies the kind of failure. The set mirrors the ASTM E57
// foundation API's error codes.
type Code int

const (
	BadCVHeader Code = iota + 1
	BadCVPacket
	ChildIndexOutOfBounds
	SetTwice
	HomogeneousViolation
	ValueNotRepresentable
	ScaledValueNotRepresentable
	Real64TooLarge
	ExpectingNumeric
	ExpectingUString
	Internal
	BadXMLFormat
	XMLParser
	BadAPIArgument
	FileIsReadOnly
	BadChecksum
	OpenFailed
	CloseFailed
	ReadFailed
	WriteFailed
	LseekFailed
	PathUndefined
	BadBuffer
	NoBufferForElement
	BufferSizeMismatch
	BufferDuplicatePathname
	BadFileSignature
	UnknownFileVersion
	BadFileLength
	XMLParserInit
	DuplicateNamespacePrefix
	DuplicateNamespaceURI
	BadPrototype
	BadCodecs
	ValueOutOfBounds
	ConversionRequired
	BadPathName
	NotImplemented
	BadNodeDowncast
	WriterNotOpen
	ReaderNotOpen
	NodeUnattached
	AlreadyHasParent
	DifferentDestImageFile
	ImageFileNotOpen
	BuffersNotCompatible
	TooManyWriters
	TooManyReaders
	BadConfiguration
	InvarianceViolation
)

var codeStrings = map[Code]string{
	BadCVHeader:                  "a CompressedVector binary header was bad",
	BadCVPacket:                  "a CompressedVector binary packet was bad",
	ChildIndexOutOfBounds:        "a numerical index identifying a child was out of bounds",
	SetTwice:                     "attempted to set an existing child element to a new value",
	HomogeneousViolation:         "attempted to add a node that would make a homogeneous vector's children heterogeneous",
	ValueNotRepresentable:        "a value could not be represented in the requested type",
	ScaledValueNotRepresentable:  "after scaling, the result could not be represented in the requested type",
	Real64TooLarge:               "a 64 bit IEEE float was too large to store in a 32 bit IEEE float",
	ExpectingNumeric:             "expecting numeric representation in buffer, found string",
	ExpectingUString:             "expecting string representation in buffer, found numeric",
	Internal:                     "an unrecoverable inconsistent internal state was detected",
	BadXMLFormat:                 "an E57 primitive was not encoded in XML correctly",
	XMLParser:                    "XML was not well formed",
	BadAPIArgument:               "bad API function argument",
	FileIsReadOnly:               "can't modify a read-only file",
	BadChecksum:                  "checksum mismatch, file is corrupted",
	OpenFailed:                   "open failed",
	CloseFailed:                  "close failed",
	ReadFailed:                   "read failed",
	WriteFailed:                  "write failed",
	LseekFailed:                  "seek failed",
	PathUndefined:                "path well formed but not defined",
	BadBuffer:                    "bad source/destination buffer",
	NoBufferForElement:           "no buffer specified for a prototype element",
	BufferSizeMismatch:           "buffers do not all have the same capacity",
	BufferDuplicatePathname:      "duplicate pathname among buffers",
	BadFileSignature:             "file signature not \"ASTM-E57\"",
	UnknownFileVersion:           "incompatible file version",
	BadFileLength:                "size in file header does not match actual file length",
	XMLParserInit:                "XML parser failed to initialize",
	DuplicateNamespacePrefix:     "namespace prefix already defined",
	DuplicateNamespaceURI:        "namespace URI already defined",
	BadPrototype:                 "bad prototype in CompressedVector",
	BadCodecs:                    "bad codecs in CompressedVector",
	ValueOutOfBounds:             "element value out of min/max bounds",
	ConversionRequired:           "conversion required to assign element value, but not requested",
	BadPathName:                  "path name is not well formed",
	NotImplemented:               "functionality not implemented",
	BadNodeDowncast:              "bad downcast from Node to a specific node type",
	WriterNotOpen:                "CompressedVectorWriter is no longer open",
	ReaderNotOpen:                "CompressedVectorReader is no longer open",
	NodeUnattached:               "node is not yet attached to the tree",
	AlreadyHasParent:             "node already has a parent",
	DifferentDestImageFile:       "nodes were constructed against different files",
	ImageFileNotOpen:             "file is no longer open",
	BuffersNotCompatible:         "buffers not compatible with previously given ones",
	TooManyWriters:               "too many open CompressedVectorWriters for this file",
	TooManyReaders:               "too many open CompressedVectorReaders for this file",
	BadConfiguration:             "bad configuration string",
	InvarianceViolation:          "invariant violated",
}

// CodeString returns a human-readable description of code.
func CodeString(code Code) string {
	if s, ok := codeStrings[code]; ok {
		return s
	}
	return "unknown error code"
}

// Site identifies where an Error was raised.
type Site struct {
	File string
	Line int
	Func string
}

// Error is the single failure type produced by this module.
type Error struct {
	Code    Code
	Err     error
	Context string
	Site    Site
}

func captureSite(skip int) Site {
	pc, file, line, ok := runtime.Caller(skip)
	if !ok {
		return Site{}
	}
	fn := runtime.FuncForPC(pc)
	name := ""
	if fn != nil {
		name = fn.Name()
	}
	return Site{File: file, Line: line, Func: name}
}

// New creates an Error with no wrapped cause.
func New(code Code, context string) *Error {
	return &Error{Code: code, Context: context, Site: captureSite(2)}
}

// Newf creates an Error with a formatted context string.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Context: fmt.Sprintf(format, args...), Site: captureSite(2)}
}

// Wrap creates an Error that carries err as its cause.
func Wrap(code Code, err error, context string) *Error {
	return &Error{Code: code, Err: err, Context: context, Site: captureSite(2)}
}

func (e *Error) Error() string {
	msg := CodeString(e.Code)
	if e.Context != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Context)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap exposes the wrapped cause, if any, to errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Report writes a formatted description of err to w, including the source
// site when err is (or wraps) an *Error.
func Report(w io.Writer, err error) {
	var e *Error
	for cur := err; cur != nil; {
		if asErr, ok := cur.(*Error); ok {
			e = asErr
			break
		}
		u, ok := cur.(interface{ Unwrap() error })
		if !ok {
			break
		}
		cur = u.Unwrap()
	}
	if e == nil {
		fmt.Fprintf(w, "error: %v\n", err)
		return
	}
	fmt.Fprintf(w, "error %d (%s): %s\n", e.Code, CodeString(e.Code), e.Context)
	if e.Err != nil {
		fmt.Fprintf(w, "  caused by: %v\n", e.Err)
	}
	if e.Site.File != "" {
		fmt.Fprintf(w, "  at %s:%d (%s)\n", e.Site.File, e.Site.Line, e.Site.Func)
	}
}
