package xmlcodec

import (
	"encoding/xml"
	"io"
	"strconv"

	"github.com/e57fs/e57/e57err"
	"github.com/e57fs/e57/internal/varnum"
	"github.com/e57fs/e57/node"
)

// WriteXML serializes root as the <e57Root> element, with the given
// namespace declarations attached, to w.
func WriteXML(w io.Writer, root node.StructureNode, namespaces []Namespace) error {
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")

	attrs := []xml.Attr{{Name: xml.Name{Local: "xmlns"}, Value: "http://www.astm.org/COMMIT/E57/2010-e57-v1.0"}}
	for _, ns := range namespaces {
		attrs = append(attrs, xml.Attr{Name: xml.Name{Local: "xmlns:" + ns.Prefix}, Value: ns.URI})
	}
	attrs = append(attrs, xml.Attr{Name: xml.Name{Local: "type"}, Value: typeAttr(node.KindStructure)})

	start := xml.StartElement{Name: xml.Name{Local: "e57Root"}, Attr: attrs}
	if err := enc.EncodeToken(start); err != nil {
		return e57err.Wrap(e57err.BadXMLFormat, err, "writing e57Root start")
	}
	if err := writeChildren(enc, root.Node); err != nil {
		return err
	}
	if err := enc.EncodeToken(start.End()); err != nil {
		return e57err.Wrap(e57err.BadXMLFormat, err, "writing e57Root end")
	}
	return enc.Flush()
}

func writeChildren(enc *xml.Encoder, parent node.Node) error {
	switch parent.Kind() {
	case node.KindStructure:
		sn, err := parent.AsStructure()
		if err != nil {
			return err
		}
		for i := 0; i < sn.ChildCount(); i++ {
			child, err := sn.Get(i)
			if err != nil {
				return err
			}
			if err := writeNode(enc, child, child.ElementName()); err != nil {
				return err
			}
		}
	case node.KindVector:
		vn, err := parent.AsVector()
		if err != nil {
			return err
		}
		for i := 0; i < vn.ChildCount(); i++ {
			child, err := vn.Get(i)
			if err != nil {
				return err
			}
			if err := writeNode(enc, child, child.ElementName()); err != nil {
				return err
			}
		}
	}
	return nil
}

func boolAttr(v bool) string {
	if v {
		return "true"
	}
	return "false"
}

func writeNode(enc *xml.Encoder, n node.Node, name string) error {
	switch n.Kind() {
	case node.KindStructure:
		sn, _ := n.AsStructure()
		start := xml.StartElement{Name: xml.Name{Local: name}, Attr: []xml.Attr{
			{Name: xml.Name{Local: "type"}, Value: typeAttr(node.KindStructure)},
		}}
		if err := enc.EncodeToken(start); err != nil {
			return e57err.Wrap(e57err.BadXMLFormat, err, name)
		}
		if err := writeChildren(enc, sn.Node); err != nil {
			return err
		}
		return encodeEnd(enc, start, name)

	case node.KindVector:
		vn, _ := n.AsVector()
		start := xml.StartElement{Name: xml.Name{Local: name}, Attr: []xml.Attr{
			{Name: xml.Name{Local: "type"}, Value: typeAttr(node.KindVector)},
			{Name: xml.Name{Local: "allowHeterogeneousChildren"}, Value: boolAttr(vn.AllowHeterogeneous())},
		}}
		if err := enc.EncodeToken(start); err != nil {
			return e57err.Wrap(e57err.BadXMLFormat, err, name)
		}
		if err := writeChildren(enc, vn.Node); err != nil {
			return err
		}
		return encodeEnd(enc, start, name)

	case node.KindCompressedVector:
		cv, _ := n.AsCompressedVector()
		start := xml.StartElement{Name: xml.Name{Local: name}, Attr: []xml.Attr{
			{Name: xml.Name{Local: "type"}, Value: typeAttr(node.KindCompressedVector)},
			{Name: xml.Name{Local: "recordCount"}, Value: strconv.FormatInt(cv.RecordCount(), 10)},
			{Name: xml.Name{Local: "fileOffset"}, Value: strconv.FormatInt(cv.FileOffset(), 10)},
		}}
		if err := enc.EncodeToken(start); err != nil {
			return e57err.Wrap(e57err.BadXMLFormat, err, name)
		}
		if err := writeNode(enc, cv.Prototype(), "prototype"); err != nil {
			return err
		}
		if err := writeNode(enc, cv.Codecs().Node, "codecs"); err != nil {
			return err
		}
		return encodeEnd(enc, start, name)

	case node.KindInteger:
		in, _ := n.AsInteger()
		start := xml.StartElement{Name: xml.Name{Local: name}, Attr: []xml.Attr{
			{Name: xml.Name{Local: "type"}, Value: typeAttr(node.KindInteger)},
			{Name: xml.Name{Local: "minimum"}, Value: strconv.FormatInt(in.Min(), 10)},
			{Name: xml.Name{Local: "maximum"}, Value: strconv.FormatInt(in.Max(), 10)},
		}}
		return writeLeaf(enc, start, name, strconv.FormatInt(in.Value(), 10))

	case node.KindScaledInteger:
		si, _ := n.AsScaledInteger()
		attrs := []xml.Attr{
			{Name: xml.Name{Local: "type"}, Value: typeAttr(node.KindScaledInteger)},
			{Name: xml.Name{Local: "minimum"}, Value: strconv.FormatInt(si.Min(), 10)},
			{Name: xml.Name{Local: "maximum"}, Value: strconv.FormatInt(si.Max(), 10)},
		}
		if si.Scale() != 1.0 {
			attrs = append(attrs, xml.Attr{Name: xml.Name{Local: "scale"}, Value: strconv.FormatFloat(si.Scale(), 'g', -1, 64)})
		}
		if si.Offset() != 0.0 {
			attrs = append(attrs, xml.Attr{Name: xml.Name{Local: "offset"}, Value: strconv.FormatFloat(si.Offset(), 'g', -1, 64)})
		}
		start := xml.StartElement{Name: xml.Name{Local: name}, Attr: attrs}
		return writeLeaf(enc, start, name, strconv.FormatInt(si.RawValue(), 10))

	case node.KindFloat:
		fl, _ := n.AsFloat()
		precisionStr := "double"
		if fl.Precision() == node.Single {
			precisionStr = "single"
		}
		start := xml.StartElement{Name: xml.Name{Local: name}, Attr: []xml.Attr{
			{Name: xml.Name{Local: "type"}, Value: typeAttr(node.KindFloat)},
			{Name: xml.Name{Local: "precision"}, Value: precisionStr},
			{Name: xml.Name{Local: "minimum"}, Value: formatFloat(fl.Min(), fl.Precision())},
			{Name: xml.Name{Local: "maximum"}, Value: formatFloat(fl.Max(), fl.Precision())},
		}}
		return writeLeaf(enc, start, name, formatFloat(fl.Value(), fl.Precision()))

	case node.KindString:
		sn, _ := n.AsString()
		start := xml.StartElement{Name: xml.Name{Local: name}, Attr: []xml.Attr{
			{Name: xml.Name{Local: "type"}, Value: typeAttr(node.KindString)},
		}}
		return writeLeaf(enc, start, name, sn.Value())

	case node.KindBlob:
		bn, _ := n.AsBlob()
		offset, _ := bn.Location()
		start := xml.StartElement{Name: xml.Name{Local: name}, Attr: []xml.Attr{
			{Name: xml.Name{Local: "type"}, Value: typeAttr(node.KindBlob)},
			{Name: xml.Name{Local: "fileOffset"}, Value: strconv.FormatInt(offset, 10)},
			{Name: xml.Name{Local: "length"}, Value: strconv.FormatInt(bn.ByteCount(), 10)},
		}}
		if err := enc.EncodeToken(start); err != nil {
			return e57err.Wrap(e57err.BadXMLFormat, err, name)
		}
		return encodeEnd(enc, start, name)

	default:
		return e57err.Newf(e57err.Internal, "unhandled node kind %v", n.Kind())
	}
}

func writeLeaf(enc *xml.Encoder, start xml.StartElement, name, text string) error {
	if err := enc.EncodeToken(start); err != nil {
		return e57err.Wrap(e57err.BadXMLFormat, err, name)
	}
	if err := enc.EncodeToken(xml.CharData(text)); err != nil {
		return e57err.Wrap(e57err.BadXMLFormat, err, name)
	}
	return encodeEnd(enc, start, name)
}

func encodeEnd(enc *xml.Encoder, start xml.StartElement, name string) error {
	if err := enc.EncodeToken(start.End()); err != nil {
		return e57err.Wrap(e57err.BadXMLFormat, err, name)
	}
	return nil
}

func formatFloat(v float64, precision node.Precision) string {
	if precision == node.Single {
		if f32, ok := varnum.NarrowFloat32(v); ok {
			return strconv.FormatFloat(float64(f32), 'g', -1, 32)
		}
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
