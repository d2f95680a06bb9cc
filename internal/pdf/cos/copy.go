package cos

import (
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/a3tai/mcp-pdf-composer/internal/pdf/lookup"
)

// PageExcludedKeys are not carried over when a page is imported
var PageExcludedKeys = []string{"Parent", "Annots", "B", "StructParents"}

// Copier transfers objects from a source document into a destination
// document. Every source object is copied at most once; later references to
// it resolve to the same destination object. References to pages resolve
// through the page table and become null for pages that were not imported.
// References to page tree nodes and the catalog always become null.
type Copier struct {
	src, dst *Document
	objects  *lookup.Table[int, types.IndirectRef]
	pages    *lookup.Table[int, types.IndirectRef]
}

// NewCopier creates a copier from src into dst
func NewCopier(src, dst *Document) *Copier {
	return &Copier{
		src:     src,
		dst:     dst,
		objects: lookup.New[int, types.IndirectRef](),
		pages:   lookup.New[int, types.IndirectRef](),
	}
}

// Source returns the document objects are read from
func (c *Copier) Source() *Document { return c.src }

// Destination returns the document objects are written to
func (c *Copier) Destination() *Document { return c.dst }

// Pages maps source page object numbers to imported destination pages
func (c *Copier) Pages() *lookup.Table[int, types.IndirectRef] { return c.pages }

// Objects maps source object numbers to their destination copies
func (c *Copier) Objects() *lookup.Table[int, types.IndirectRef] { return c.objects }

// Reset forgets every mapping and points the copier at a new destination
func (c *Copier) Reset(dst *Document) {
	c.dst = dst
	c.objects.Clear()
	c.pages.Clear()
}

// Copy returns the destination counterpart of obj
func (c *Copier) Copy(obj types.Object) (types.Object, error) {
	switch v := obj.(type) {
	case types.IndirectRef:
		return c.copyRef(v)
	case *types.IndirectRef:
		if v == nil {
			return nil, nil
		}
		return c.copyRef(*v)
	case types.Dict:
		return c.CopyDict(v)
	case types.Array:
		out := make(types.Array, 0, len(v))
		for _, item := range v {
			copied, err := c.Copy(item)
			if err != nil {
				return nil, err
			}
			out = append(out, copied)
		}
		return out, nil
	case types.StreamDict:
		return c.copyStream(v)
	case *types.StreamDict:
		if v == nil {
			return nil, nil
		}
		return c.copyStream(*v)
	default:
		// scalars are immutable values
		return obj, nil
	}
}

// CopyDict copies a direct dictionary, leaving out the excluded keys.
// Entries whose value resolves to null are dropped.
func (c *Copier) CopyDict(dict types.Dict, exclude ...string) (types.Dict, error) {
	skip := make(map[string]bool, len(exclude))
	for _, key := range exclude {
		skip[key] = true
	}

	out := types.Dict{}
	for key, val := range dict {
		if skip[key] {
			continue
		}
		copied, err := c.Copy(val)
		if err != nil {
			return nil, fmt.Errorf("copying /%s: %w", key, err)
		}
		if copied == nil {
			continue
		}
		out[key] = copied
	}
	return out, nil
}

func (c *Copier) copyStream(sd types.StreamDict) (types.Object, error) {
	dict, err := c.CopyDict(sd.Dict, "Length")
	if err != nil {
		return nil, err
	}
	raw := sd.Raw
	if raw == nil && sd.Content != nil {
		if err := sd.Encode(); err != nil {
			return nil, fmt.Errorf("encoding stream: %w", err)
		}
		raw = sd.Raw
	}
	length := int64(len(raw))
	dict["Length"] = types.Integer(len(raw))
	return types.StreamDict{
		Dict:           dict,
		StreamLength:   &length,
		FilterPipeline: sd.FilterPipeline,
		Raw:            raw,
		Content:        sd.Content,
		IsPageContent:  sd.IsPageContent,
	}, nil
}

func (c *Copier) copyRef(ref types.IndirectRef) (types.Object, error) {
	objNr := int(ref.ObjectNumber)
	if dst, ok := c.pages.Lookup(objNr); ok {
		return dst, nil
	}
	if dst, ok := c.objects.Lookup(objNr); ok {
		return dst, nil
	}

	val, err := c.src.Resolve(ref)
	if err != nil {
		return nil, err
	}
	if val == nil {
		return nil, nil
	}

	if dict, ok := val.(types.Dict); ok {
		switch c.src.TypeOf(dict) {
		case "Page", "Pages", "Catalog":
			return nil, nil
		}
	}

	dst, err := c.dst.Alloc()
	if err != nil {
		return nil, err
	}
	if err := c.objects.Add(objNr, dst); err != nil {
		return nil, err
	}

	copied, err := c.Copy(val)
	if err != nil {
		return nil, fmt.Errorf("copying object %d: %w", objNr, err)
	}
	if err := c.dst.Set(dst, copied); err != nil {
		return nil, err
	}
	return dst, nil
}

// CopyAs copies the source object ref into the already allocated destination
// slot dst and records the mapping, so later references resolve to dst.
func (c *Copier) CopyAs(ref types.IndirectRef, dst types.IndirectRef, exclude ...string) (types.Dict, error) {
	objNr := int(ref.ObjectNumber)
	if err := c.objects.Add(objNr, dst); err != nil {
		return nil, err
	}
	dict, err := c.src.Dict(ref)
	if err != nil {
		return nil, err
	}
	if dict == nil {
		return nil, nil
	}
	copied, err := c.CopyDict(dict, exclude...)
	if err != nil {
		return nil, fmt.Errorf("copying object %d: %w", objNr, err)
	}
	if err := c.dst.Set(dst, copied); err != nil {
		return nil, err
	}
	return copied, nil
}

// ImportPage copies page into the destination, appends it to the destination
// page tree and records the mapping in the page table. Inherited attributes
// are materialized on the copy. Importing an already imported page returns
// the existing destination page.
func (c *Copier) ImportPage(page *Page) (types.IndirectRef, error) {
	if dst, ok := c.pages.Lookup(page.ObjNr()); ok {
		return dst, nil
	}

	dst, err := c.dst.Alloc()
	if err != nil {
		return types.IndirectRef{}, err
	}
	// recorded first so self references (e.g. /P of an annotation) resolve
	if err := c.pages.Add(page.ObjNr(), dst); err != nil {
		return types.IndirectRef{}, err
	}

	dict, err := c.CopyDict(page.Dict, PageExcludedKeys...)
	if err != nil {
		return types.IndirectRef{}, fmt.Errorf("importing page %d: %w", page.Number, err)
	}
	for key, val := range page.Inherited {
		copied, err := c.Copy(val)
		if err != nil {
			return types.IndirectRef{}, fmt.Errorf("importing inherited /%s of page %d: %w", key, page.Number, err)
		}
		if copied != nil {
			dict[key] = copied
		}
	}

	if err := c.dst.AppendPage(dst, dict); err != nil {
		return types.IndirectRef{}, err
	}
	return dst, nil
}
