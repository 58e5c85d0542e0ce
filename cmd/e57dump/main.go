// Command e57dump opens an E57 file read-only, verifies every page's
// checksum, and prints its node tree either as indented text or, with
// -json, as structured JSON.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-json"

	"github.com/e57fs/e57"
	"github.com/e57fs/e57/e57err"
	"github.com/e57fs/e57/internal/page"
	"github.com/e57fs/e57/node"
)

var jsonOutput = flag.Bool("json", false, "dump the node tree as JSON instead of indented text")

func main() {
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: e57dump [-json] <file.e57>")
		os.Exit(2)
	}
	path := flag.Arg(0)

	imf, err := e57.OpenImageFile(path, page.PolicyAll)
	if err != nil {
		e57err.Report(os.Stderr, err)
		os.Exit(1)
	}
	defer imf.Close()

	if err := imf.VerifyChecksums(); err != nil {
		e57err.Report(os.Stderr, err)
		os.Exit(1)
	}

	root, err := imf.Root()
	if err != nil {
		e57err.Report(os.Stderr, err)
		os.Exit(1)
	}

	if *jsonOutput {
		out, err := json.MarshalIndent(toJSON(root.Node), "", "  ")
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(string(out))
		return
	}

	var sb strings.Builder
	root.Tree().Dump(&sb, root.Handle(), 0)
	fmt.Print(sb.String())
}

func toJSON(n node.Node) any {
	switch n.Kind() {
	case node.KindStructure:
		sn, err := n.AsStructure()
		if err != nil {
			return nil
		}
		children := map[string]any{}
		for i := 0; i < sn.ChildCount(); i++ {
			c, err := sn.Get(i)
			if err != nil {
				continue
			}
			children[c.ElementName()] = toJSON(c)
		}
		return map[string]any{"type": "Structure", "children": children}

	case node.KindVector:
		vn, err := n.AsVector()
		if err != nil {
			return nil
		}
		items := make([]any, 0, vn.ChildCount())
		for i := 0; i < vn.ChildCount(); i++ {
			c, err := vn.Get(i)
			if err != nil {
				continue
			}
			items = append(items, toJSON(c))
		}
		return map[string]any{
			"type":                       "Vector",
			"allowHeterogeneousChildren": vn.AllowHeterogeneous(),
			"children":                   items,
		}

	case node.KindCompressedVector:
		cv, err := n.AsCompressedVector()
		if err != nil {
			return nil
		}
		return map[string]any{
			"type":        "CompressedVector",
			"recordCount": cv.RecordCount(),
			"fileOffset":  cv.FileOffset(),
			"prototype":   toJSON(cv.Prototype()),
			"codecs":      toJSON(cv.Codecs().Node),
		}

	case node.KindInteger:
		in, err := n.AsInteger()
		if err != nil {
			return nil
		}
		return map[string]any{"type": "Integer", "value": in.Value(), "minimum": in.Min(), "maximum": in.Max()}

	case node.KindScaledInteger:
		si, err := n.AsScaledInteger()
		if err != nil {
			return nil
		}
		return map[string]any{
			"type":        "ScaledInteger",
			"rawValue":    si.RawValue(),
			"scaledValue": si.ScaledValue(),
			"minimum":     si.Min(),
			"maximum":     si.Max(),
			"scale":       si.Scale(),
			"offset":      si.Offset(),
		}

	case node.KindFloat:
		fl, err := n.AsFloat()
		if err != nil {
			return nil
		}
		return map[string]any{
			"type":      "Float",
			"value":     fl.Value(),
			"minimum":   fl.Min(),
			"maximum":   fl.Max(),
			"precision": fl.Precision().String(),
		}

	case node.KindString:
		sn, err := n.AsString()
		if err != nil {
			return nil
		}
		return map[string]any{"type": "String", "value": sn.Value()}

	case node.KindBlob:
		bn, err := n.AsBlob()
		if err != nil {
			return nil
		}
		offset, _ := bn.Location()
		return map[string]any{"type": "Blob", "fileOffset": offset, "length": bn.ByteCount()}

	default:
		return nil
	}
}
