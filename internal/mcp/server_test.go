package mcp

import (
	"context"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/mcp-pdf-composer/internal/config"
	"github.com/a3tai/mcp-pdf-composer/internal/descriptions"
	"github.com/a3tai/mcp-pdf-composer/internal/pdf"
	"github.com/a3tai/mcp-pdf-composer/internal/pdf/cos/costest"
)

func newTestServer(t *testing.T) (*Server, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	for _, name := range []string{"/in/a.pdf", "/in/b.pdf"} {
		b := costest.New(t)
		pages := b.Pages(2)
		b.Fields(b.TextField("name", pages[0]))
		require.NoError(t, afero.WriteFile(fs, name, b.Bytes(), 0o644))
	}
	require.NoError(t, fs.MkdirAll("/out", 0o755))

	cfg := config.DefaultConfig()
	cfg.PDFDirectory = "/in"
	cfg.OutputDirectory = "/out"

	service, err := pdf.NewService(cfg.MaxFileSize, cfg.PDFDirectory, cfg.Output(), pdf.WithFs(fs))
	require.NoError(t, err)
	s, err := NewServer(cfg, service, nil)
	require.NoError(t, err)
	return s, fs
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func extractTextFromResult(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", result.Content[0])
	return text.Text
}

func TestNewServer(t *testing.T) {
	_, err := NewServer(nil, nil, nil)
	assert.Error(t, err)

	_, err = NewServer(config.DefaultConfig(), nil, nil)
	assert.Error(t, err)

	s, _ := newTestServer(t)
	names := make([]string, 0, len(s.tools))
	for _, tool := range s.tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, descriptions.GetAllToolNames(), names)
	for _, tool := range s.tools {
		assert.NotEmpty(t, tool.Description, tool.Name)
	}
}

func TestHandleExtractPages(t *testing.T) {
	s, fs := newTestServer(t)

	result, err := s.handleExtractPages(context.Background(), callRequest("pdf_extract_pages", map[string]any{
		"path":            "a.pdf",
		"pages":           []any{float64(2), float64(1)},
		"output":          "reordered.pdf",
		"policy":          "discard",
		"discard_outline": true,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, extractTextFromResult(t, result))

	text := extractTextFromResult(t, result)
	assert.Contains(t, text, "Wrote 2 pages to /out/reordered.pdf (policy discard)")
	assert.Contains(t, text, `"output": "/out/reordered.pdf"`)

	exists, err := afero.Exists(fs, "/out/reordered.pdf")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestHandleExtractPages_Errors(t *testing.T) {
	s, _ := newTestServer(t)

	tests := []struct {
		name string
		args map[string]any
	}{
		{"missing path", map[string]any{}},
		{"bad pages", map[string]any{"path": "a.pdf", "pages": []any{"x"}}},
		{"bad policy", map[string]any{"path": "a.pdf", "policy": "keep"}},
		{"outside directory", map[string]any{"path": "../etc/passwd.pdf"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := s.handleExtractPages(context.Background(), callRequest("pdf_extract_pages", tt.args))
			require.NoError(t, err)
			assert.True(t, result.IsError)
		})
	}
}

func TestHandleMergeForms(t *testing.T) {
	s, _ := newTestServer(t)

	result, err := s.handleMergeForms(context.Background(), callRequest("pdf_merge_forms", map[string]any{
		"paths": []any{"a.pdf", "b.pdf"},
	}))
	require.NoError(t, err)
	text := extractTextFromResult(t, result)
	require.False(t, result.IsError, text)
	assert.Contains(t, text, "Wrote 4 pages to /out/merged.pdf (policy merge_renaming)")
	assert.Contains(t, text, "Form fields: 2")

	result, err = s.handleMergeForms(context.Background(), callRequest("pdf_merge_forms", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleCompose(t *testing.T) {
	s, _ := newTestServer(t)

	job := `
output: composed.pdf
policy: merge
sources:
  - path: a.pdf
    ranges: "2-"
  - path: b.pdf
    pages: [1]
`
	result, err := s.handleCompose(context.Background(), callRequest("pdf_compose", map[string]any{"job": job}))
	require.NoError(t, err)
	text := extractTextFromResult(t, result)
	require.False(t, result.IsError, text)
	assert.Contains(t, text, "Wrote 2 pages to /out/composed.pdf (policy merge)")

	result, err = s.handleCompose(context.Background(), callRequest("pdf_compose", map[string]any{"job": "sources: 3"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, extractTextFromResult(t, result), "invalid job")
}

func TestHandlePDFValidateFile(t *testing.T) {
	s, fs := newTestServer(t)
	require.NoError(t, afero.WriteFile(fs, "/in/broken.pdf", []byte("not a pdf"), 0o644))

	result, err := s.handlePDFValidateFile(context.Background(), callRequest("pdf_validate_file", map[string]any{"path": "a.pdf"}))
	require.NoError(t, err)
	text := extractTextFromResult(t, result)
	assert.Contains(t, text, "is valid and readable")
	assert.Contains(t, text, "Pages: 2")
	assert.Contains(t, text, "Form: true")

	result, err = s.handlePDFValidateFile(context.Background(), callRequest("pdf_validate_file", map[string]any{"path": "broken.pdf"}))
	require.NoError(t, err)
	assert.Contains(t, extractTextFromResult(t, result), "PDF validation failed")
}

func TestHandlePDFServerInfo(t *testing.T) {
	s, _ := newTestServer(t)

	result, err := s.handlePDFServerInfo(context.Background(), callRequest("pdf_server_info", nil))
	require.NoError(t, err)
	text := extractTextFromResult(t, result)
	assert.Contains(t, text, "mcp-pdf-composer")
	assert.Contains(t, text, "Source Directory: /in")
	assert.Contains(t, text, "Output Directory: /out")
	assert.Contains(t, text, "a.pdf")
	assert.Contains(t, text, "pdf_compose")
}

func TestProgress_WithoutToken(t *testing.T) {
	s, _ := newTestServer(t)
	assert.Nil(t, s.progress(context.Background(), callRequest("pdf_compose", nil)))

	req := callRequest("pdf_compose", nil)
	req.Params.Meta = &mcp.Meta{ProgressToken: "token"}
	assert.Nil(t, s.progress(context.Background(), req), "no server in context")
}

func TestIntSlice(t *testing.T) {
	pages, err := intSlice([]any{float64(3), "4", 5})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4, 5}, pages)

	pages, err = intSlice(nil)
	require.NoError(t, err)
	assert.Nil(t, pages)

	_, err = intSlice([]any{"three"})
	assert.Error(t, err)
}

func TestOptionalBool(t *testing.T) {
	assert.Nil(t, optionalBool(nil))
	require.NotNil(t, optionalBool(true))
	assert.True(t, *optionalBool(true))
	assert.False(t, *optionalBool("false"))
}
