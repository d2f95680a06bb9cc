package cos

import (
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	pdferrors "github.com/a3tai/mcp-pdf-composer/internal/pdf/errors"
)

// InheritableKeys are the page attributes a page may take from its ancestors
var InheritableKeys = []string{"Resources", "MediaBox", "CropBox", "Rotate"}

// Page is a page dictionary together with its reference
type Page struct {
	Number int
	Ref    types.IndirectRef
	Dict   types.Dict
	// Inherited holds ancestor values for the InheritableKeys the page lacks
	Inherited types.Dict
}

// ObjNr returns the page's object number, its identity within the document
func (p *Page) ObjNr() int {
	return int(p.Ref.ObjectNumber)
}

// PageCount returns the number of pages
func (d *Document) PageCount() int {
	return d.ctx.PageCount
}

func (d *Document) pagesRoot() (types.Dict, types.IndirectRef, error) {
	catalog, err := d.Catalog()
	if err != nil {
		return nil, types.IndirectRef{}, err
	}
	ref, ok := catalog["Pages"].(types.IndirectRef)
	if !ok {
		return nil, types.IndirectRef{}, pdferrors.NewPDFError(pdferrors.ErrorTypeMalformedObject, "catalog has no page tree reference")
	}
	root, err := d.Dict(ref)
	if err != nil {
		return nil, types.IndirectRef{}, err
	}
	if root == nil {
		return nil, types.IndirectRef{}, pdferrors.NewPDFError(pdferrors.ErrorTypeMissingObject, "page tree root is missing")
	}
	return root, ref, nil
}

// Page returns the 1-based page n, materializing inherited attributes
func (d *Document) Page(n int) (*Page, error) {
	if n < 1 || n > d.PageCount() {
		return nil, pdferrors.NewPDFErrorWithContext(pdferrors.ErrorTypePageNotFound, "page out of range",
			fmt.Sprintf("page %d of %d", n, d.PageCount())).WithPage(n)
	}

	node, rootRef, err := d.pagesRoot()
	if err != nil {
		return nil, err
	}

	inherited := types.Dict{}
	visited := map[int]bool{int(rootRef.ObjectNumber): true}
	remaining := n

	for {
		for _, key := range InheritableKeys {
			if v, ok := node[key]; ok {
				inherited[key] = v
			}
		}

		kids, err := d.Array(node["Kids"])
		if err != nil {
			return nil, err
		}

		var next types.Dict
		for _, kid := range kids {
			ref, ok := kid.(types.IndirectRef)
			if !ok {
				continue
			}
			objNr := int(ref.ObjectNumber)
			if visited[objNr] {
				return nil, pdferrors.NewPDFError(pdferrors.ErrorTypeMalformedObject, "cycle in page tree").WithObject(objNr)
			}

			kidDict, err := d.Dict(ref)
			if err != nil {
				return nil, err
			}
			if kidDict == nil {
				continue
			}

			if d.TypeOf(kidDict) == "Pages" || kidDict["Kids"] != nil {
				count, _ := d.Int(kidDict["Count"])
				if remaining <= count {
					visited[objNr] = true
					next = kidDict
					break
				}
				remaining -= count
				continue
			}

			if remaining == 1 {
				page := &Page{Number: n, Ref: ref, Dict: kidDict, Inherited: types.Dict{}}
				for key, v := range inherited {
					if _, own := kidDict[key]; !own {
						page.Inherited[key] = v
					}
				}
				return page, nil
			}
			remaining--
		}

		if next == nil {
			return nil, pdferrors.NewPDFErrorWithContext(pdferrors.ErrorTypePageNotFound, "page not found in page tree",
				fmt.Sprintf("page %d", n)).WithPage(n)
		}
		node = next
	}
}

// Pages returns every page in document order
func (d *Document) Pages() ([]*Page, error) {
	pages := make([]*Page, 0, d.PageCount())
	for n := 1; n <= d.PageCount(); n++ {
		page, err := d.Page(n)
		if err != nil {
			return nil, err
		}
		pages = append(pages, page)
	}
	return pages, nil
}

// AppendPage stores dict at ref and appends it as the last kid of the page tree root
func (d *Document) AppendPage(ref types.IndirectRef, dict types.Dict) error {
	root, rootRef, err := d.pagesRoot()
	if err != nil {
		return err
	}

	dict["Type"] = types.Name("Page")
	dict["Parent"] = rootRef
	if err := d.Set(ref, dict); err != nil {
		return err
	}

	kids, err := d.Array(root["Kids"])
	if err != nil {
		return err
	}
	kids = append(kids, ref)
	if kidsRef, ok := root["Kids"].(types.IndirectRef); ok {
		if err := d.Set(kidsRef, kids); err != nil {
			return err
		}
	} else {
		root["Kids"] = kids
	}

	count, _ := d.Int(root["Count"])
	root["Count"] = types.Integer(count + 1)
	d.ctx.PageCount++
	return nil
}
