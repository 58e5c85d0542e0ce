package xmlcodec

import (
	"encoding/xml"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/e57fs/e57/e57err"
	"github.com/e57fs/e57/node"
)

// childSlot is one materialized child awaiting attachment to its parent
// frame, in document order.
type childSlot struct {
	name string
	n    node.Node
}

// frame is a partially-built element, equivalent to the original parser's
// per-element parse descriptor: it accumulates attributes, text content,
// and already-materialized children until its end tag is seen.
type frame struct {
	elementName string
	kind        node.Kind
	attrs       map[string]string
	text        strings.Builder
	children    []childSlot
}

// ParseXML reads the XML metadata section from r and attaches the parsed
// tree onto t's existing root Structure node.
func ParseXML(t *node.Tree, r io.Reader) error {
	rootStruct, err := node.Wrap(t, t.Root()).AsStructure()
	if err != nil {
		return err
	}

	dec := xml.NewDecoder(r)
	var stack []*frame

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return e57err.Wrap(e57err.XMLParser, err, "tokenizing XML section")
		}

		switch tt := tok.(type) {
		case xml.StartElement:
			f := &frame{elementName: tt.Name.Local, attrs: map[string]string{}}
			for _, a := range tt.Attr {
				f.attrs[a.Name.Local] = a.Value
			}
			if kind, ok := kindFromAttr(f.attrs["type"]); ok {
				f.kind = kind
			} else if tt.Name.Local != "e57Root" {
				return e57err.Newf(e57err.BadXMLFormat, "element %q missing a recognized type attribute", tt.Name.Local)
			}
			stack = append(stack, f)

		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].text.Write(tt)
			}

		case xml.EndElement:
			if len(stack) == 0 {
				return e57err.New(e57err.BadXMLFormat, "unbalanced end element")
			}
			f := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			if len(stack) == 0 {
				for _, c := range f.children {
					if err := rootStruct.Set(c.name, c.n, false); err != nil {
						return err
					}
				}
				continue
			}

			n, err := materialize(t, f)
			if err != nil {
				return err
			}
			parent := stack[len(stack)-1]
			parent.children = append(parent.children, childSlot{name: f.elementName, n: n})
		}
	}

	return nil
}

func materialize(t *node.Tree, f *frame) (node.Node, error) {
	switch f.kind {
	case node.KindStructure:
		s := node.NewStructure(t)
		for _, c := range f.children {
			if err := s.Set(c.name, c.n, false); err != nil {
				return node.Node{}, err
			}
		}
		return s.Node, nil

	case node.KindVector:
		allowHetero := parseBool(f.attrs["allowHeterogeneousChildren"])
		v := node.NewVector(t, allowHetero)
		for _, c := range f.children {
			if err := v.Append(c.n); err != nil {
				return node.Node{}, err
			}
		}
		return v.Node, nil

	case node.KindCompressedVector:
		var prototype, codecs *node.Node
		for i := range f.children {
			switch f.children[i].name {
			case "prototype":
				prototype = &f.children[i].n
			case "codecs":
				codecs = &f.children[i].n
			}
		}
		if prototype == nil {
			return node.Node{}, e57err.New(e57err.BadPrototype, "CompressedVector missing prototype element")
		}
		if codecs == nil {
			return node.Node{}, e57err.New(e57err.BadCodecs, "CompressedVector missing codecs element")
		}
		codecsVec, err := codecs.AsVector()
		if err != nil {
			return node.Node{}, err
		}
		cv, err := node.NewCompressedVector(t, *prototype, codecsVec)
		if err != nil {
			return node.Node{}, err
		}
		recordCount := parseInt64Default(f.attrs["recordCount"], 0)
		fileOffset := parseInt64Default(f.attrs["fileOffset"], 0)
		if err := cv.SetResult(recordCount, fileOffset); err != nil {
			return node.Node{}, err
		}
		return cv.Node, nil

	case node.KindInteger:
		min := parseInt64Default(f.attrs["minimum"], math.MinInt64)
		max := parseInt64Default(f.attrs["maximum"], math.MaxInt64)
		value, err := strconv.ParseInt(strings.TrimSpace(f.text.String()), 10, 64)
		if err != nil {
			return node.Node{}, e57err.Wrap(e57err.BadXMLFormat, err, "Integer value")
		}
		in, err := node.NewInteger(t, value, min, max)
		return in.Node, err

	case node.KindScaledInteger:
		min := parseInt64Default(f.attrs["minimum"], math.MinInt64)
		max := parseInt64Default(f.attrs["maximum"], math.MaxInt64)
		scale := parseFloatDefault(f.attrs["scale"], 1.0)
		offset := parseFloatDefault(f.attrs["offset"], 0.0)
		raw, err := strconv.ParseInt(strings.TrimSpace(f.text.String()), 10, 64)
		if err != nil {
			return node.Node{}, e57err.Wrap(e57err.BadXMLFormat, err, "ScaledInteger value")
		}
		si, err := node.NewScaledInteger(t, raw, min, max, scale, offset)
		return si.Node, err

	case node.KindFloat:
		precision := node.Double
		if f.attrs["precision"] == "single" {
			precision = node.Single
		}
		min := parseFloatDefault(f.attrs["minimum"], -math.MaxFloat64)
		max := parseFloatDefault(f.attrs["maximum"], math.MaxFloat64)
		value, err := strconv.ParseFloat(strings.TrimSpace(f.text.String()), 64)
		if err != nil {
			return node.Node{}, e57err.Wrap(e57err.BadXMLFormat, err, "Float value")
		}
		fl, err := node.NewFloat(t, value, precision, min, max)
		return fl.Node, err

	case node.KindString:
		return node.NewString(t, f.text.String()).Node, nil

	case node.KindBlob:
		offset := parseInt64Default(f.attrs["fileOffset"], 0)
		length := parseInt64Default(f.attrs["length"], 0)
		return node.NewBlobAt(t, offset, length).Node, nil

	default:
		return node.Node{}, e57err.Newf(e57err.BadXMLFormat, "element %q has unknown type", f.elementName)
	}
}

func parseBool(s string) bool {
	return s == "1" || strings.EqualFold(s, "true")
}

func parseInt64Default(s string, def int64) int64 {
	if s == "" {
		return def
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return def
	}
	return v
}

func parseFloatDefault(s string, def float64) float64 {
	if s == "" {
		return def
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return v
}
