package e57

import "github.com/e57fs/e57/e57err"

// VersionInfo describes the ASTM E57 version this library writes and the
// highest version it can read.
type VersionInfo struct {
	Major          int
	Minor          int
	LibraryVersion string
}

// Version returns the library's supported ASTM E57 format version.
func Version() VersionInfo {
	return VersionInfo{Major: majorVersion, Minor: minorVersion, LibraryVersion: "e57fs/e57 0.1"}
}

// ErrorCodeToString returns the human-readable description of code.
func ErrorCodeToString(code e57err.Code) string { return e57err.CodeString(code) }
