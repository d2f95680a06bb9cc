package optimize

import (
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/mcp-pdf-composer/internal/pdf/cos/costest"
)

func TestScanContent(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		fonts    []string
		xobjects []string
	}{
		{
			name:    "text",
			content: "BT /F1 12 Tf (Hello) Tj ET",
			fonts:   []string{"F1"},
		},
		{
			name:     "xobject",
			content:  "q 1 0 0 1 0 0 cm /Im0 Do Q",
			xobjects: []string{"Im0"},
		},
		{
			name:    "names inside strings and comments are ignored",
			content: "% /F9 1 Tf\nBT (/F8 1 Tf) Tj /F1 9 Tf ET",
			fonts:   []string{"F1"},
		},
		{
			name:    "escaped parenthesis in string",
			content: `BT (a \) /F7 1 Tf) Tj /F2 10 Tf ET`,
			fonts:   []string{"F2"},
		},
		{
			name:    "hex escaped name",
			content: "BT /F#31 10 Tf ET",
			fonts:   []string{"F1"},
		},
		{
			name:     "inline image data is skipped",
			content:  "BI /W 1 /H 1 /BPC 8 /CS /G ID \x00/F5 1 Tf\x01 EI /X1 Do",
			xobjects: []string{"X1"},
		},
		{
			name:    "marked content with property dictionary",
			content: "/OC << /Type /OCMD >> BDC BT /F3 8 Tf ET EMC",
			fonts:   []string{"F3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := scanContent([]byte(tt.content))
			assert.ElementsMatch(t, tt.fonts, keys(u.fonts))
			assert.ElementsMatch(t, tt.xobjects, keys(u.xobjects))
		})
	}
}

func keys(m map[string]bool) []string {
	var out []string
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestDeduplicateResources(t *testing.T) {
	b := costest.New(t)
	pages := b.Pages(2)
	o := New(b.Doc)

	for _, p := range pages {
		require.NoError(t, o.DeduplicateResources(p))
	}

	res1 := b.Dict(b.Dict(pages[0])["Resources"])
	res2 := b.Dict(b.Dict(pages[1])["Resources"])
	fonts1 := res1["Font"].(types.Dict)
	fonts2 := res2["Font"].(types.Dict)

	delete(fonts1, "F2")
	assert.Contains(t, fonts2, "F2", "pages must not alias font maps")

	shared := b.Dict(b.SharedResources())
	assert.Contains(t, shared["Font"].(types.Dict), "F2", "source resources stay untouched")
}

func TestDeduplicateResources_PageWithoutResources(t *testing.T) {
	b := costest.New(t)
	page := b.PageWith(types.Dict{})

	require.NoError(t, New(b.Doc).DeduplicateResources(page))
	assert.NotContains(t, b.Dict(page), "Resources")
}

func TestOptimize_RemovesUnusedFonts(t *testing.T) {
	b := costest.New(t)
	pages := b.Pages(2)

	require.NoError(t, New(b.Doc).Optimize(pages))

	for _, p := range pages {
		res := b.Dict(b.Dict(p)["Resources"])
		fonts := b.Dict(res["Font"])
		assert.Contains(t, fonts, "F1")
		assert.NotContains(t, fonts, "F2")
	}
}

func TestOptimize_FormWithoutResourcesContributesToCaller(t *testing.T) {
	b := costest.New(t)
	form := b.Stream(types.Dict{
		"Type":    types.Name("XObject"),
		"Subtype": types.Name("Form"),
		"BBox":    costest.Rect(0, 0, 10, 10),
	}, "BT /F2 8 Tf (x) Tj ET")
	unused := b.Stream(types.Dict{
		"Type":    types.Name("XObject"),
		"Subtype": types.Name("Form"),
		"BBox":    costest.Rect(0, 0, 10, 10),
	}, "")

	page := b.PageWith(types.Dict{
		"Resources": types.Dict{
			"Font":    types.Dict{"F1": b.Add(costest.Font("Helvetica")), "F2": b.Add(costest.Font("Courier"))},
			"XObject": types.Dict{"Fm1": form, "Fm2": unused},
		},
		"Contents": b.Stream(nil, "q /Fm1 Do Q"),
	})

	require.NoError(t, New(b.Doc).Optimize([]types.IndirectRef{page}))

	res := b.Dict(b.Dict(page)["Resources"])
	assert.Equal(t, []string{"F2"}, keys(toSet(b.Dict(res["Font"]))))
	assert.Equal(t, []string{"Fm1"}, keys(toSet(b.Dict(res["XObject"]))))
}

func TestOptimize_FormWithOwnResources(t *testing.T) {
	b := costest.New(t)
	formRes := b.Add(types.Dict{
		"Font": types.Dict{"A": b.Add(costest.Font("Times-Roman")), "B": b.Add(costest.Font("Symbol"))},
	})
	form := b.Stream(types.Dict{
		"Type":      types.Name("XObject"),
		"Subtype":   types.Name("Form"),
		"BBox":      costest.Rect(0, 0, 10, 10),
		"Resources": formRes,
	}, "BT /A 8 Tf (x) Tj ET")

	page := b.PageWith(types.Dict{
		"Resources": types.Dict{"XObject": types.Dict{"Fm1": form}},
		"Contents":  b.Stream(nil, "/Fm1 Do"),
	})

	require.NoError(t, New(b.Doc).Optimize([]types.IndirectRef{page}))

	fonts := b.Dict(b.Dict(formRes)["Font"])
	assert.Contains(t, fonts, "A")
	assert.NotContains(t, fonts, "B")
}

func TestOptimize_AppearanceStreamsKeepTheirFonts(t *testing.T) {
	b := costest.New(t)
	page := b.Page("with widget")
	b.Widget(page)

	require.NoError(t, New(b.Doc).Optimize([]types.IndirectRef{page}))

	widget := b.Dict(b.Dict(page)["Annots"].(types.Array)[0])
	ap := b.Dict(widget["AP"])
	sd, err := b.Doc.Stream(ap["N"])
	require.NoError(t, err)
	fonts := b.Dict(b.Dict(sd.Dict["Resources"])["Font"])
	assert.Contains(t, fonts, "F1")
}

func toSet(d types.Dict) map[string]bool {
	out := map[string]bool{}
	for k := range d {
		out[k] = true
	}
	return out
}
