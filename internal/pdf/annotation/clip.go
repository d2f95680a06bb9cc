package annotation

import (
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/a3tai/mcp-pdf-composer/internal/pdf/cos"
)

// signatureKeys carry the signature value and its locking rules. The widget
// appearance is kept so the page still shows where the signature was.
var signatureKeys = []string{"V", "SV", "Lock"}

// IsSignatureField reports whether dict is a signature field, looking up the
// field type through the /Parent chain when it is inherited
func IsSignatureField(doc *cos.Document, dict types.Dict) bool {
	visited := map[int]bool{}
	for current := dict; current != nil; {
		if ft, ok := doc.Name(current["FT"]); ok {
			return ft == "Sig"
		}
		parent := current["Parent"]
		objNr, ok := cos.ObjNr(parent)
		if !ok || visited[objNr] {
			return false
		}
		visited[objNr] = true
		next, err := doc.Dict(parent)
		if err != nil {
			return false
		}
		current = next
	}
	return false
}

// ClipSignature removes the signature value from a destination field or
// widget dictionary. It returns true when something was removed.
func ClipSignature(dict types.Dict) bool {
	clipped := false
	for _, key := range signatureKeys {
		if _, ok := dict[key]; ok {
			delete(dict, key)
			clipped = true
		}
	}
	return clipped
}

// ClipSignatures clears the signature values copied onto destination widgets
// of signature fields and returns how many widgets were clipped. Signatures
// cannot stay valid once their pages move to another document.
func (p *Processor) ClipSignatures() (int, error) {
	src := p.copier.Source()
	dst := p.copier.Destination()

	clipped := 0
	for _, objNr := range p.annots.Keys() {
		srcDict, err := src.Dict(cos.Ref(objNr))
		if err != nil {
			return clipped, err
		}
		if subtype, _ := src.Name(srcDict["Subtype"]); subtype != "Widget" {
			continue
		}
		if !IsSignatureField(src, srcDict) {
			continue
		}

		dstRef, _ := p.annots.Lookup(objNr)
		dstDict, err := dst.Dict(dstRef)
		if err != nil {
			return clipped, err
		}
		if dstDict != nil && ClipSignature(dstDict) {
			clipped++
		}
	}
	if clipped > 0 {
		p.logger.Info("signature values removed from widgets", "count", clipped)
	}
	return clipped, nil
}
