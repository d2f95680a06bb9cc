package verify

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/mcp-pdf-composer/internal/pdf/cos/costest"
)

func TestValidator_ValidateFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	b := costest.New(t)
	pages := b.Pages(3)
	b.Fields(b.TextField("name", pages[0]))
	require.NoError(t, afero.WriteFile(fs, "/docs/form.pdf", b.Bytes(), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/docs/empty.pdf", nil, 0o644))
	require.NoError(t, afero.WriteFile(fs, "/docs/notes.txt", []byte("hello"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/docs/junk.pdf", []byte("%PDF-1.7\nnot really"), 0o644))

	v := NewValidator(fs, 1024*1024)

	result := v.ValidateFile("/docs/form.pdf")
	require.True(t, result.Valid, result.Message)
	assert.Equal(t, 3, result.Pages)
	assert.True(t, result.Form)
	assert.False(t, result.Encrypted)
	assert.NotEmpty(t, result.Version)
	assert.True(t, v.IsValidPDF("/docs/form.pdf"))

	tests := []struct {
		path    string
		message string
	}{
		{"", "path cannot be empty"},
		{"/docs/missing.pdf", "file does not exist"},
		{"/docs", "path is a directory"},
		{"/docs/notes.txt", "file is not a PDF"},
		{"/docs/empty.pdf", "file is empty"},
		{"/docs/junk.pdf", "invalid PDF file"},
	}
	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			result := v.ValidateFile(tt.path)
			assert.False(t, result.Valid)
			assert.Equal(t, tt.path, result.Path)
			assert.Contains(t, result.Message, tt.message)
		})
	}

	small := NewValidator(fs, 10)
	assert.Contains(t, small.ValidateFile("/docs/form.pdf").Message, "file too large")
}

func TestValidator_PageText(t *testing.T) {
	fs := afero.NewMemMapFs()
	b := costest.New(t)
	b.Pages(2)
	require.NoError(t, afero.WriteFile(fs, "/a.pdf", b.Bytes(), 0o644))

	v := NewValidator(fs, 0)
	text, err := v.PageText("/a.pdf", 2)
	require.NoError(t, err)
	assert.Contains(t, text, "Page 2")

	_, err = v.PageText("/a.pdf", 3)
	assert.Error(t, err)
}
