package job

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/mcp-pdf-composer/internal/pdf/cos"
	"github.com/a3tai/mcp-pdf-composer/internal/pdf/cos/costest"
	pdferrors "github.com/a3tai/mcp-pdf-composer/internal/pdf/errors"
	"github.com/a3tai/mcp-pdf-composer/internal/pdf/extract"
)

// writeSource stores a document of n pages with a text field "name" on its
// first page
func writeSource(t *testing.T, fs afero.Fs, path string, n int) {
	t.Helper()
	b := costest.New(t)
	pages := b.Pages(n)
	b.Fields(b.TextField("name", pages[0]))
	require.NoError(t, afero.WriteFile(fs, path, b.Bytes(), 0o644))
}

func newFixture(t *testing.T) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	writeSource(t, fs, "/in/a.pdf", 3)
	writeSource(t, fs, "/in/b.pdf", 2)
	return fs
}

func TestRunner_Compose(t *testing.T) {
	fs := newFixture(t)
	var progress [][2]int
	r := NewRunner(fs, WithProgress(func(done, total int) {
		progress = append(progress, [2]int{done, total})
	}))

	report, err := r.Run(context.Background(), &Job{
		Output: "/out/merged.pdf",
		Policy: "merge_renaming",
		Sources: []Source{
			{Path: "/in/a.pdf", Pages: []int{3, 1}},
			{Path: "/in/b.pdf"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 4, report.Pages)
	assert.Equal(t, [][2]int{{1, 4}, {2, 4}, {3, 4}, {4, 4}}, progress)
	assert.True(t, report.Form)
	assert.Equal(t, 2, report.Fields, "the second field is renamed, not merged")
	require.Len(t, report.Sources, 2)
	assert.Equal(t, 2, report.Sources[0].Requested)
	assert.True(t, report.Sources[1].Form)
	assert.Empty(t, report.Warnings)

	out, err := cos.OpenFs(fs, "/out/merged.pdf")
	require.NoError(t, err)
	assert.Equal(t, 4, out.PageCount())
	catalog, err := out.Catalog()
	require.NoError(t, err)
	form, err := out.Dict(catalog["AcroForm"])
	require.NoError(t, err)
	fields, err := out.Array(form["Fields"])
	require.NoError(t, err)
	require.Len(t, fields, 2)
	second, err := out.Dict(fields[1])
	require.NoError(t, err)
	name, _ := out.Text(second["T"])
	assert.Regexp(t, regexp.MustCompile(`^name.+$`), name)

	encoded, err := report.JSON()
	require.NoError(t, err)
	assert.Contains(t, string(encoded), `"policy": "merge_renaming"`)
}

func TestRunner_DiscardPolicy(t *testing.T) {
	fs := newFixture(t)
	report, err := NewRunner(fs).Run(context.Background(), &Job{
		Output:  "/out/plain.pdf",
		Sources: []Source{{Path: "/in/a.pdf", Ranges: "2-"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Pages)
	assert.False(t, report.Form)
	assert.Equal(t, "discard", report.Policy)
}

func TestRunner_OptimizeKeepsAnnotationResources(t *testing.T) {
	fs := afero.NewMemMapFs()
	b := costest.New(t)
	page := b.Page("stamped")
	// the stamp has no resources of its own and draws with the page font F2
	stamp := b.Stream(types.Dict{
		"Type":    types.Name("XObject"),
		"Subtype": types.Name("Form"),
		"BBox":    costest.Rect(0, 0, 100, 20),
	}, "BT /F2 10 Tf (ok) Tj ET")
	b.Annotate(page, types.Dict{"Subtype": types.Name("Stamp"), "AP": types.Dict{"N": stamp}})
	require.NoError(t, afero.WriteFile(fs, "/in/stamped.pdf", b.Bytes(), 0o644))

	_, err := NewRunner(fs).Run(context.Background(), &Job{
		Output:   "/out/stamped.pdf",
		Optimize: true,
		Sources:  []Source{{Path: "/in/stamped.pdf"}},
	})
	require.NoError(t, err)

	out, err := cos.OpenFs(fs, "/out/stamped.pdf")
	require.NoError(t, err)
	p, err := out.Page(1)
	require.NoError(t, err)
	require.Contains(t, p.Dict, "Annots")
	resources, err := out.Dict(p.Dict["Resources"])
	require.NoError(t, err)
	fonts, err := out.Dict(resources["Font"])
	require.NoError(t, err)
	assert.Contains(t, fonts, "F1", "used by the page content")
	assert.Contains(t, fonts, "F2", "used by the annotation appearance")
}

func TestRunner_MissingPageIsWarning(t *testing.T) {
	fs := newFixture(t)
	report, err := NewRunner(fs).Run(context.Background(), &Job{
		Output:  "/out/x.pdf",
		Sources: []Source{{Path: "/in/b.pdf", Pages: []int{1, 9}}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Pages)
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "Page 9 was skipped")
}

func TestRunner_NoPages(t *testing.T) {
	fs := newFixture(t)
	_, err := NewRunner(fs).Run(context.Background(), &Job{
		Output:  "/out/none.pdf",
		Sources: []Source{{Path: "/in/b.pdf", Pages: []int{7}}},
	})
	assert.ErrorIs(t, err, extract.ErrNoPages)
	exists, _ := afero.Exists(fs, "/out/none.pdf")
	assert.False(t, exists)
}

func TestRunner_Cancelled(t *testing.T) {
	fs := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewRunner(fs).Run(ctx, &Job{Output: "/out/c.pdf", Sources: []Source{{Path: "/in/a.pdf"}}})
	require.Error(t, err)
	assert.True(t, pdferrors.IsCancelled(err))
	exists, _ := afero.Exists(fs, "/out/c.pdf")
	assert.False(t, exists, "nothing is written for a cancelled job")
}

func TestRunner_CancelledMidway(t *testing.T) {
	fs := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	r := NewRunner(fs, WithProgress(func(done, _ int) {
		if done == 2 {
			cancel()
		}
	}))

	_, err := r.Run(ctx, &Job{Output: "/out/c.pdf", Sources: []Source{{Path: "/in/a.pdf"}}})
	assert.ErrorIs(t, err, context.Canceled)
	exists, _ := afero.Exists(fs, "/out/c.pdf")
	assert.False(t, exists)
}

func TestRunner_Limits(t *testing.T) {
	fs := newFixture(t)

	denied := errors.New("outside configured directories")
	r := NewRunner(fs, WithResolver(func(path string) (string, error) {
		if path == "/etc/x.pdf" {
			return "", denied
		}
		return path, nil
	}))
	_, err := r.Run(context.Background(), &Job{Output: "/out/x.pdf", Sources: []Source{{Path: "/etc/x.pdf"}}})
	assert.ErrorIs(t, err, denied)

	_, err = NewRunner(fs, WithMaxFileSize(10)).Run(context.Background(),
		&Job{Output: "/out/x.pdf", Sources: []Source{{Path: "/in/a.pdf"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "file too large")

	_, err = NewRunner(fs).Run(context.Background(), &Job{Output: "/out/x.pdf"})
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}
