package annotation

import (
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/mcp-pdf-composer/internal/pdf/cos"
	"github.com/a3tai/mcp-pdf-composer/internal/pdf/cos/costest"
)

func importPages(t *testing.T, src *cos.Document, numbers ...int) *cos.Copier {
	t.Helper()
	dst, err := cos.New()
	require.NoError(t, err)
	copier := cos.NewCopier(src, dst)
	for _, n := range numbers {
		page, err := src.Page(n)
		require.NoError(t, err)
		_, err = copier.ImportPage(page)
		require.NoError(t, err)
	}
	return copier
}

func destAnnots(t *testing.T, copier *cos.Copier, n int) []types.Dict {
	t.Helper()
	dst := copier.Destination()
	page, err := dst.Page(n)
	require.NoError(t, err)
	arr, err := dst.Array(page.Dict["Annots"])
	require.NoError(t, err)
	var out []types.Dict
	for _, a := range arr {
		d, err := dst.Dict(a)
		require.NoError(t, err)
		out = append(out, d)
	}
	return out
}

func TestProcess_RewritesPageReference(t *testing.T) {
	b := costest.New(t)
	pages := b.Pages(2)
	widget := b.Widget(pages[1])

	copier := importPages(t, b.Doc, 2)
	table, err := NewProcessor(copier).Process()
	require.NoError(t, err)

	dstWidget, ok := table.Lookup(int(widget.ObjectNumber))
	require.True(t, ok)

	dstPage, _ := copier.Pages().Lookup(int(pages[1].ObjectNumber))
	d, err := copier.Destination().Dict(dstWidget)
	require.NoError(t, err)
	assert.Equal(t, dstPage, d["P"])
	assert.Contains(t, d, "AP")

	annots := destAnnots(t, copier, 1)
	require.Len(t, annots, 1)
}

func TestProcess_Links(t *testing.T) {
	b := costest.New(t)
	pages := b.Pages(3)
	kept := b.Link(pages[0], pages[2])
	b.Link(pages[0], pages[1])
	b.Annotate(pages[0], types.Dict{
		"Subtype": types.Name("Link"),
		"A":       types.Dict{"S": types.Name("URI"), "URI": types.StringLiteral("https://example.com")},
	})

	copier := importPages(t, b.Doc, 1, 3)
	p := NewProcessor(copier)
	table, err := p.Process()
	require.NoError(t, err)

	assert.Equal(t, 1, p.Dropped(), "link to page 2 is dropped")
	assert.Equal(t, 2, table.Len())

	dstLink, ok := table.Lookup(int(kept.ObjectNumber))
	require.True(t, ok)
	d, err := copier.Destination().Dict(dstLink)
	require.NoError(t, err)

	dstTarget, _ := copier.Pages().Lookup(int(pages[2].ObjectNumber))
	dest, ok := d["Dest"].(types.Array)
	require.True(t, ok)
	assert.Equal(t, dstTarget, dest[0])

	annots := destAnnots(t, copier, 1)
	require.Len(t, annots, 2)
	assert.Contains(t, annots[1], "A", "URI action is copied as is")
}

func TestProcess_NamedDestinationLinkBecomesExplicit(t *testing.T) {
	b := costest.New(t)
	pages := b.Pages(2)
	b.NamedDest("target", pages[1])
	link := b.Annotate(pages[0], types.Dict{
		"Subtype": types.Name("Link"),
		"A":       types.Dict{"S": types.Name("GoTo"), "D": types.Name("target")},
	})

	copier := importPages(t, b.Doc, 1, 2)
	table, err := NewProcessor(copier).Process()
	require.NoError(t, err)

	ref, ok := table.Lookup(int(link.ObjectNumber))
	require.True(t, ok)
	d, err := copier.Destination().Dict(ref)
	require.NoError(t, err)
	action := d["A"].(types.Dict)
	dest := action["D"].(types.Array)

	dstTarget, _ := copier.Pages().Lookup(int(pages[1].ObjectNumber))
	assert.Equal(t, dstTarget, dest[0])
}

func TestProcess_RelinksPopupAndReplies(t *testing.T) {
	b := costest.New(t)
	pages := b.Pages(1)
	text := b.Annotate(pages[0], types.Dict{"Subtype": types.Name("Text"), "Contents": types.StringLiteral("note")})
	popup := b.Annotate(pages[0], types.Dict{"Subtype": types.Name("Popup"), "Parent": text})
	b.Dict(text)["Popup"] = popup
	reply := b.Annotate(pages[0], types.Dict{"Subtype": types.Name("Text"), "IRT": text})

	copier := importPages(t, b.Doc, 1)
	table, err := NewProcessor(copier).Process()
	require.NoError(t, err)

	dst := copier.Destination()
	dstText, _ := table.Lookup(int(text.ObjectNumber))
	dstPopup, _ := table.Lookup(int(popup.ObjectNumber))
	dstReply, _ := table.Lookup(int(reply.ObjectNumber))

	textDict, err := dst.Dict(dstText)
	require.NoError(t, err)
	popupDict, err := dst.Dict(dstPopup)
	require.NoError(t, err)
	replyDict, err := dst.Dict(dstReply)
	require.NoError(t, err)

	assert.Equal(t, dstPopup, textDict["Popup"])
	assert.Equal(t, dstText, popupDict["Parent"])
	assert.Equal(t, dstText, replyDict["IRT"])
}

func TestProcess_EachPageOnce(t *testing.T) {
	b := costest.New(t)
	pages := b.Pages(2)
	b.Widget(pages[0])
	b.Widget(pages[1])

	copier := importPages(t, b.Doc, 1)
	p := NewProcessor(copier)
	_, err := p.Process()
	require.NoError(t, err)
	_, err = p.Process()
	require.NoError(t, err)
	assert.Equal(t, 1, p.Lookup().Len())
	assert.Len(t, destAnnots(t, copier, 1), 1)

	page, err := b.Doc.Page(2)
	require.NoError(t, err)
	_, err = copier.ImportPage(page)
	require.NoError(t, err)
	_, err = p.Process()
	require.NoError(t, err)
	assert.Equal(t, 2, p.Lookup().Len())

	p.Reset()
	assert.Zero(t, p.Lookup().Len())
}

func TestClipSignatures(t *testing.T) {
	b := costest.New(t)
	pages := b.Pages(1)
	sig := b.SignatureField("signature", pages[0])
	text := b.TextField("name", pages[0])

	groupWidget := b.Widget(pages[0])
	parent := b.Add(types.Dict{"FT": types.Name("Sig"), "T": types.StringLiteral("inherited"), "Kids": types.Array{groupWidget}})
	b.Dict(groupWidget)["Parent"] = parent
	b.Dict(groupWidget)["V"] = types.StringLiteral("stale")

	copier := importPages(t, b.Doc, 1)
	p := NewProcessor(copier)
	table, err := p.Process()
	require.NoError(t, err)

	n, err := p.ClipSignatures()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	dst := copier.Destination()
	sigRef, _ := table.Lookup(int(sig.ObjectNumber))
	sigDict, err := dst.Dict(sigRef)
	require.NoError(t, err)
	assert.NotContains(t, sigDict, "V")
	assert.NotContains(t, sigDict, "Lock")
	assert.Contains(t, sigDict, "AP", "appearance is kept")

	textRef, _ := table.Lookup(int(text.ObjectNumber))
	textDict, err := dst.Dict(textRef)
	require.NoError(t, err)
	assert.Contains(t, textDict, "V", "only signature fields are clipped")
}

func TestIsSignatureField(t *testing.T) {
	b := costest.New(t)
	pages := b.Pages(1)
	w := b.Widget(pages[0])
	assert.False(t, IsSignatureField(b.Doc, b.Dict(w)))

	parent := b.Add(types.Dict{"FT": types.Name("Sig"), "Kids": types.Array{w}})
	b.Dict(w)["Parent"] = parent
	assert.True(t, IsSignatureField(b.Doc, b.Dict(w)))

	// a parent chain looping back on itself terminates
	b.Dict(parent)["Parent"] = w
	delete(b.Dict(parent), "FT")
	assert.False(t, IsSignatureField(b.Doc, b.Dict(w)))
}
