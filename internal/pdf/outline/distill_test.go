package outline

import (
	"fmt"
	"strings"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/mcp-pdf-composer/internal/pdf/cos"
	"github.com/a3tai/mcp-pdf-composer/internal/pdf/cos/costest"
)

// entry is a flattened outline item: depth, title and 1-based target page (0 = none)
type entry struct {
	depth int
	title string
	page  int
	count int
}

func flatten(t *testing.T, doc *cos.Document) []entry {
	t.Helper()
	catalog, err := doc.Catalog()
	require.NoError(t, err)
	root, err := doc.Dict(catalog["Outlines"])
	require.NoError(t, err)
	if root == nil {
		return nil
	}

	pageNumbers := map[int]int{}
	pages, err := doc.Pages()
	require.NoError(t, err)
	for _, p := range pages {
		pageNumbers[p.ObjNr()] = p.Number
	}

	var out []entry
	var walk func(first types.Object, depth int)
	walk = func(first types.Object, depth int) {
		for cur := first; cur != nil; {
			d, err := doc.Dict(cur)
			require.NoError(t, err)
			title, _ := doc.Text(d["Title"])
			e := entry{depth: depth, title: title}
			if dest, ok := doc.Destination(d["Dest"]); ok {
				objNr, _ := cos.DestinationPage(dest)
				e.page = pageNumbers[objNr]
			}
			e.count, _ = doc.Int(d["Count"])
			out = append(out, e)
			walk(d["First"], depth+1)
			cur = d["Next"]
		}
	}
	walk(root["First"], 0)
	return out
}

func sourceWithOutline(t *testing.T) (*costest.Builder, []types.IndirectRef) {
	b := costest.New(t)
	pages := b.Pages(4)
	b.NamedDest("appendix", pages[3])
	b.Outline(
		costest.OutlineItem{Title: "Intro", Page: costest.At(pages[0])},
		costest.OutlineItem{Title: "Part I", Children: []costest.OutlineItem{
			{Title: "Chapter 1", Page: costest.At(pages[1])},
			{Title: "Chapter 2", Page: costest.At(pages[2])},
		}},
		costest.OutlineItem{Title: "Part II", Closed: true, Page: costest.At(pages[2]), Children: []costest.OutlineItem{
			{Title: "Appendix", Named: "appendix"},
		}},
	)
	return b, pages
}

func extract(t *testing.T, src *cos.Document, numbers ...int) *cos.Copier {
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

func TestDistill_AllPagesIsIsomorphic(t *testing.T) {
	b, _ := sourceWithOutline(t)
	copier := extract(t, b.Doc, 1, 2, 3, 4)

	n, err := NewDistiller(copier).Run()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	want := []entry{
		{0, "Intro", 1, 0},
		{0, "Part I", 0, 2},
		{1, "Chapter 1", 2, 0},
		{1, "Chapter 2", 3, 0},
		{0, "Part II", 3, -1},
		{1, "Appendix", 4, 0},
	}
	assert.Equal(t, flatten(t, b.Doc), flatten(t, copier.Destination()))
	assert.Equal(t, want, flatten(t, copier.Destination()))
}

func TestDistill_KeepsOnlyAncestorsOfRetainedTargets(t *testing.T) {
	b, _ := sourceWithOutline(t)
	copier := extract(t, b.Doc, 2)

	_, err := NewDistiller(copier).Run()
	require.NoError(t, err)

	assert.Equal(t, []entry{
		{0, "Part I", 0, 1},
		{1, "Chapter 1", 1, 0},
	}, flatten(t, copier.Destination()))
}

func TestDistill_NamedDestinationResolved(t *testing.T) {
	b, _ := sourceWithOutline(t)
	copier := extract(t, b.Doc, 4)

	_, err := NewDistiller(copier).Run()
	require.NoError(t, err)

	got := flatten(t, copier.Destination())
	require.Len(t, got, 2)
	assert.Equal(t, entry{0, "Part II", 0, -1}, got[0], "Part II survives as ancestor without target")
	assert.Equal(t, entry{1, "Appendix", 1, 0}, got[1])
}

func TestDistill_NoSurvivorsWritesNothing(t *testing.T) {
	b := costest.New(t)
	pages := b.Pages(2)
	b.Outline(costest.OutlineItem{Title: "Second", Page: costest.At(pages[1])})

	copier := extract(t, b.Doc, 1)
	n, err := NewDistiller(copier).Run()
	require.NoError(t, err)
	assert.Zero(t, n)

	catalog, err := copier.Destination().Catalog()
	require.NoError(t, err)
	assert.NotContains(t, catalog, "Outlines")
}

func TestDistill_GoToActionAndLoop(t *testing.T) {
	b := costest.New(t)
	pages := b.Pages(1)
	root := b.Outline(costest.OutlineItem{Title: "Action", Page: costest.At(pages[0])})

	item := b.Dict(b.Dict(root)["First"])
	delete(item, "Dest")
	item["A"] = types.Dict{"S": types.Name("GoTo"), "D": types.Array{pages[0], types.Name("Fit")}}
	item["Next"] = b.Dict(root)["First"]

	copier := extract(t, b.Doc, 1)
	_, err := NewDistiller(copier).Run()
	require.NoError(t, err)
	assert.Equal(t, []entry{{0, "Action", 1, 0}}, flatten(t, copier.Destination()))
}

func TestAttach_AppendsToExistingOutline(t *testing.T) {
	first, _ := sourceWithOutline(t)
	second := costest.New(t)
	pages := second.Pages(1)
	second.Outline(costest.OutlineItem{Title: "Other", Page: costest.At(pages[0])})

	copier := extract(t, first.Doc, 1)
	_, err := NewDistiller(copier).Run()
	require.NoError(t, err)

	other := cos.NewCopier(second.Doc, copier.Destination())
	page, err := second.Doc.Page(1)
	require.NoError(t, err)
	_, err = other.ImportPage(page)
	require.NoError(t, err)
	_, err = NewDistiller(other).Run()
	require.NoError(t, err)

	var titles []string
	for _, e := range flatten(t, copier.Destination()) {
		titles = append(titles, fmt.Sprintf("%s@%d", e.title, e.page))
	}
	assert.Equal(t, "Intro@1,Other@2", strings.Join(titles, ","))

	catalog, err := copier.Destination().Catalog()
	require.NoError(t, err)
	count, _ := copier.Destination().Int(dictOf(t, copier.Destination(), catalog["Outlines"])["Count"])
	assert.Equal(t, 2, count)
}

func dictOf(t *testing.T, doc *cos.Document, obj types.Object) types.Dict {
	t.Helper()
	d, err := doc.Dict(obj)
	require.NoError(t, err)
	return d
}
