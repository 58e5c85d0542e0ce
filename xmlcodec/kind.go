// Package xmlcodec serializes a node tree to the XML metadata section and
// parses it back, driven off encoding/xml's token stream the way a
// SAX-style event source would be consumed.
package xmlcodec

import "github.com/e57fs/e57/node"

func typeAttr(k node.Kind) string {
	switch k {
	case node.KindStructure:
		return "Structure"
	case node.KindVector:
		return "Vector"
	case node.KindCompressedVector:
		return "CompressedVector"
	case node.KindInteger:
		return "Integer"
	case node.KindScaledInteger:
		return "ScaledInteger"
	case node.KindFloat:
		return "Float"
	case node.KindString:
		return "String"
	case node.KindBlob:
		return "Blob"
	default:
		return "Unknown"
	}
}

func kindFromAttr(s string) (node.Kind, bool) {
	switch s {
	case "Structure":
		return node.KindStructure, true
	case "Vector":
		return node.KindVector, true
	case "CompressedVector":
		return node.KindCompressedVector, true
	case "Integer":
		return node.KindInteger, true
	case "ScaledInteger":
		return node.KindScaledInteger, true
	case "Float":
		return node.KindFloat, true
	case "String":
		return node.KindString, true
	case "Blob":
		return node.KindBlob, true
	default:
		return 0, false
	}
}

// Namespace is one xmlns:prefix="uri" declaration carried on the e57Root
// element.
type Namespace struct {
	Prefix string
	URI    string
}
