// Package costest builds small in-memory documents for tests.
package costest

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/mcp-pdf-composer/internal/pdf/cos"
)

// Builder creates objects in a fresh document, failing the test on error
type Builder struct {
	t   testing.TB
	Doc *cos.Document

	fonts     types.Dict
	resources types.IndirectRef
	fields    types.Array
}

// New creates a builder over an empty document. Pages created by the builder
// share one resource dictionary holding the fonts F1 and F2.
func New(t testing.TB) *Builder {
	t.Helper()
	doc, err := cos.New()
	require.NoError(t, err)

	b := &Builder{t: t, Doc: doc}
	b.fonts = types.Dict{
		"F1": b.Add(Font("Helvetica")),
		"F2": b.Add(Font("Courier")),
	}
	b.resources = b.Add(types.Dict{"Font": b.fonts})
	return b
}

// Font returns a standard Type1 font dictionary
func Font(base string) types.Dict {
	return types.Dict{
		"Type":     types.Name("Font"),
		"Subtype":  types.Name("Type1"),
		"BaseFont": types.Name(base),
	}
}

// Add stores obj as a new indirect object
func (b *Builder) Add(obj types.Object) types.IndirectRef {
	b.t.Helper()
	ref, err := b.Doc.Add(obj)
	require.NoError(b.t, err)
	return ref
}

// Set replaces the object at ref
func (b *Builder) Set(ref types.IndirectRef, obj types.Object) {
	b.t.Helper()
	require.NoError(b.t, b.Doc.Set(ref, obj))
}

// Dict resolves ref as a dictionary
func (b *Builder) Dict(obj types.Object) types.Dict {
	b.t.Helper()
	d, err := b.Doc.Dict(obj)
	require.NoError(b.t, err)
	return d
}

// SharedResources returns the resource dictionary all builder pages point at
func (b *Builder) SharedResources() types.IndirectRef {
	return b.resources
}

// Stream stores an unfiltered stream
func (b *Builder) Stream(dict types.Dict, content string) types.IndirectRef {
	b.t.Helper()
	return b.Add(cos.NewStream(dict, []byte(content)))
}

// Page appends a page whose content shows its label using font F1
func (b *Builder) Page(label string) types.IndirectRef {
	b.t.Helper()
	content := b.Stream(nil, fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", label))
	return b.PageWith(types.Dict{
		"MediaBox":  types.Array{types.Integer(0), types.Integer(0), types.Integer(612), types.Integer(792)},
		"Resources": b.resources,
		"Contents":  content,
	})
}

// PageWith appends a page built from dict
func (b *Builder) PageWith(dict types.Dict) types.IndirectRef {
	b.t.Helper()
	ref, err := b.Doc.Alloc()
	require.NoError(b.t, err)
	require.NoError(b.t, b.Doc.AppendPage(ref, dict))
	return ref
}

// Pages appends n labelled pages "Page 1" ... "Page n"
func (b *Builder) Pages(n int) []types.IndirectRef {
	b.t.Helper()
	refs := make([]types.IndirectRef, 0, n)
	for i := 1; i <= n; i++ {
		refs = append(refs, b.Page(fmt.Sprintf("Page %d", i)))
	}
	return refs
}

// Annotate adds annot to the /Annots of page and returns its reference
func (b *Builder) Annotate(page types.IndirectRef, annot types.Dict) types.IndirectRef {
	b.t.Helper()
	if _, ok := annot["Type"]; !ok {
		annot["Type"] = types.Name("Annot")
	}
	if _, ok := annot["P"]; !ok {
		annot["P"] = page
	}
	if _, ok := annot["Rect"]; !ok {
		annot["Rect"] = Rect(100, 100, 200, 120)
	}
	ref := b.Add(annot)

	pageDict := b.Dict(page)
	annots, _ := pageDict["Annots"].(types.Array)
	pageDict["Annots"] = append(annots, ref)
	return ref
}

// Rect builds a rectangle array
func Rect(llx, lly, urx, ury int) types.Array {
	return types.Array{types.Integer(llx), types.Integer(lly), types.Integer(urx), types.Integer(ury)}
}

// Link adds a link annotation on page pointing at target
func (b *Builder) Link(page, target types.IndirectRef) types.IndirectRef {
	b.t.Helper()
	return b.Annotate(page, types.Dict{
		"Subtype": types.Name("Link"),
		"Dest":    types.Array{target, types.Name("Fit")},
	})
}

// Appearance stores a normal appearance stream drawing a box
func (b *Builder) Appearance(width, height int) types.IndirectRef {
	b.t.Helper()
	return b.Stream(types.Dict{
		"Type":      types.Name("XObject"),
		"Subtype":   types.Name("Form"),
		"BBox":      Rect(0, 0, width, height),
		"Resources": types.Dict{"Font": types.Dict{"F1": b.fonts["F1"]}},
	}, "/Tx BMC BT /F1 10 Tf 2 4 Td (value) Tj ET EMC")
}

// Widget adds a widget annotation to page without any field keys
func (b *Builder) Widget(page types.IndirectRef) types.IndirectRef {
	b.t.Helper()
	return b.Annotate(page, types.Dict{
		"Subtype": types.Name("Widget"),
		"Rect":    Rect(100, 600, 300, 620),
		"AP":      types.Dict{"N": b.Appearance(200, 20)},
		"F":       types.Integer(4),
	})
}

// TextField adds a terminal text field whose field and widget dictionaries
// are merged, placed on page. It is not registered in the form; see Fields.
func (b *Builder) TextField(name string, page types.IndirectRef) types.IndirectRef {
	b.t.Helper()
	ref := b.Widget(page)
	d := b.Dict(ref)
	d["FT"] = types.Name("Tx")
	d["T"] = cos.EncodeText(name)
	d["V"] = types.StringLiteral("value")
	d["DA"] = types.StringLiteral("/F1 10 Tf 0 g")
	return ref
}

// SignatureField adds a terminal signature field with a signature value
func (b *Builder) SignatureField(name string, page types.IndirectRef) types.IndirectRef {
	b.t.Helper()
	ref := b.Widget(page)
	d := b.Dict(ref)
	d["FT"] = types.Name("Sig")
	d["T"] = cos.EncodeText(name)
	d["V"] = b.Add(types.Dict{
		"Type":     types.Name("Sig"),
		"Filter":   types.Name("Adobe.PPKLite"),
		"Contents": types.HexLiteral("00"),
	})
	d["Lock"] = b.Add(types.Dict{"Type": types.Name("SigFieldLock")})
	return ref
}

// Group creates a non-terminal field owning kids and sets their /Parent
func (b *Builder) Group(name string, kids ...types.IndirectRef) types.IndirectRef {
	b.t.Helper()
	arr := make(types.Array, 0, len(kids))
	for _, kid := range kids {
		arr = append(arr, kid)
	}
	ref := b.Add(types.Dict{"T": cos.EncodeText(name), "Kids": arr})
	for _, kid := range kids {
		b.Dict(kid)["Parent"] = ref
	}
	return ref
}

// MultiWidgetField creates a terminal field whose widgets are separate kids
func (b *Builder) MultiWidgetField(name string, pages ...types.IndirectRef) (field types.IndirectRef, widgets []types.IndirectRef) {
	b.t.Helper()
	for _, page := range pages {
		widgets = append(widgets, b.Widget(page))
	}
	kids := make(types.Array, 0, len(widgets))
	for _, w := range widgets {
		kids = append(kids, w)
	}
	field = b.Add(types.Dict{
		"FT":   types.Name("Tx"),
		"T":    cos.EncodeText(name),
		"V":    types.StringLiteral("shared"),
		"Kids": kids,
	})
	for _, w := range widgets {
		b.Dict(w)["Parent"] = field
	}
	return field, widgets
}

// Fields installs an /AcroForm with the given root fields
func (b *Builder) Fields(roots ...types.IndirectRef) types.Dict {
	b.t.Helper()
	for _, r := range roots {
		b.fields = append(b.fields, r)
	}
	form := types.Dict{
		"Fields": b.fields,
		"DA":     types.StringLiteral("/Helv 0 Tf 0 g"),
		"DR":     types.Dict{"Font": types.Dict{"Helv": b.fonts["F1"]}},
	}
	catalog, err := b.Doc.Catalog()
	require.NoError(b.t, err)
	catalog["AcroForm"] = form
	return form
}

// OutlineItem describes one bookmark
type OutlineItem struct {
	Title    string
	Page     *types.IndirectRef
	Named    string
	Closed   bool
	Children []OutlineItem
}

// At targets page ref
func At(ref types.IndirectRef) *types.IndirectRef {
	return &ref
}

// Outline installs an outline tree built from items
func (b *Builder) Outline(items ...OutlineItem) types.IndirectRef {
	b.t.Helper()
	root := b.Add(types.Dict{"Type": types.Name("Outlines")})
	first, last, count := b.outlineLevel(root, items)
	rootDict := b.Dict(root)
	if first != nil {
		rootDict["First"] = *first
		rootDict["Last"] = *last
		rootDict["Count"] = types.Integer(count)
	}
	catalog, err := b.Doc.Catalog()
	require.NoError(b.t, err)
	catalog["Outlines"] = root
	return root
}

func (b *Builder) outlineLevel(parent types.IndirectRef, items []OutlineItem) (first, last *types.IndirectRef, visible int) {
	var prev *types.IndirectRef
	for _, item := range items {
		d := types.Dict{
			"Title":  cos.EncodeText(item.Title),
			"Parent": parent,
		}
		if item.Page != nil {
			d["Dest"] = types.Array{*item.Page, types.Name("Fit")}
		}
		if item.Named != "" {
			d["Dest"] = types.Name(item.Named)
		}
		ref := b.Add(d)
		if prev != nil {
			b.Dict(*prev)["Next"] = ref
			d["Prev"] = *prev
		} else {
			r := ref
			first = &r
		}
		r := ref
		prev = &r
		visible++

		if len(item.Children) > 0 {
			cf, cl, cc := b.outlineLevel(ref, item.Children)
			d["First"] = *cf
			d["Last"] = *cl
			if item.Closed {
				d["Count"] = types.Integer(-cc)
			} else {
				d["Count"] = types.Integer(cc)
				visible += cc
			}
		}
	}
	return first, prev, visible
}

// NamedDest registers name in the catalog /Dests dictionary
func (b *Builder) NamedDest(name string, page types.IndirectRef) {
	b.t.Helper()
	catalog, err := b.Doc.Catalog()
	require.NoError(b.t, err)
	dests, _ := catalog["Dests"].(types.Dict)
	if dests == nil {
		dests = types.Dict{}
		catalog["Dests"] = dests
	}
	dests[name] = types.Array{page, types.Name("Fit")}
}

// Bytes serializes the document
func (b *Builder) Bytes() []byte {
	b.t.Helper()
	data, err := b.Doc.Bytes()
	require.NoError(b.t, err)
	return data
}

// Reopen serializes the document and reads it back
func (b *Builder) Reopen() *cos.Document {
	b.t.Helper()
	doc, err := cos.OpenReader(bytes.NewReader(b.Bytes()), "reopened")
	require.NoError(b.t, err)
	return doc
}
