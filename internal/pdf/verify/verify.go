// Package verify checks written documents by reading them back with a
// second, independent PDF reader.
package verify

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/spf13/afero"

	"github.com/a3tai/mcp-pdf-composer/internal/pdf/cos"
)

// Result describes a validated file
type Result struct {
	Path      string `json:"path"`
	Valid     bool   `json:"valid"`
	Message   string `json:"message,omitempty"`
	Size      int64  `json:"size"`
	Pages     int    `json:"pages"`
	Version   string `json:"version,omitempty"`
	Form      bool   `json:"form"`
	Encrypted bool   `json:"encrypted"`
}

// Validator handles PDF file validation
type Validator struct {
	fs          afero.Fs
	maxFileSize int64
}

// NewValidator creates a validator reading from fs
func NewValidator(fs afero.Fs, maxFileSize int64) *Validator {
	return &Validator{fs: fs, maxFileSize: maxFileSize}
}

// ValidateFile validates path. Problems with the file are reported in the
// result, never as an error.
func (v *Validator) ValidateFile(path string) *Result {
	result := &Result{Path: path}
	if err := v.validate(path, result); err != nil {
		result.Message = err.Error()
		return result
	}
	result.Valid = true
	return result
}

// IsValidPDF performs a quick check to see if a file is a valid PDF
func (v *Validator) IsValidPDF(path string) bool {
	return v.validate(path, &Result{}) == nil
}

func (v *Validator) validate(path string, result *Result) error {
	if path == "" {
		return fmt.Errorf("path cannot be empty")
	}

	info, err := v.fs.Stat(path)
	if err != nil {
		if exists, _ := afero.Exists(v.fs, path); !exists {
			return fmt.Errorf("file does not exist: %s", path)
		}
		return fmt.Errorf("cannot access file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("path is a directory, not a file: %s", path)
	}
	if !strings.EqualFold(filepath.Ext(path), ".pdf") {
		return fmt.Errorf("file is not a PDF: %s", path)
	}
	result.Size = info.Size()
	if info.Size() == 0 {
		return fmt.Errorf("file is empty: %s", path)
	}
	if v.maxFileSize > 0 && info.Size() > v.maxFileSize {
		return fmt.Errorf("file too large: %d bytes (max: %d bytes)", info.Size(), v.maxFileSize)
	}

	pages, err := v.countPages(path, info.Size())
	if err != nil {
		return fmt.Errorf("invalid PDF file: %w", err)
	}
	result.Pages = pages

	doc, err := cos.OpenFs(v.fs, path)
	if err != nil {
		return fmt.Errorf("invalid PDF file: %w", err)
	}
	if doc.PageCount() != pages {
		return fmt.Errorf("page tree is inconsistent: %d pages, %d reachable", doc.PageCount(), pages)
	}
	result.Version = doc.Version()
	_, result.Encrypted = doc.Permissions()
	if catalog, err := doc.Catalog(); err == nil {
		_, result.Form = catalog["AcroForm"]
	}
	return nil
}

// countPages reads the page tree with the ledongthuc reader
func (v *Validator) countPages(path string, size int64) (n int, err error) {
	f, err := v.fs.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	// the reader panics on some malformed cross reference tables
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unreadable document: %v", r)
		}
	}()

	r, err := pdf.NewReader(f, size)
	if err != nil {
		return 0, err
	}
	return r.NumPage(), nil
}

// PageText returns the plain text of a 1-based page
func (v *Validator) PageText(path string, page int) (text string, err error) {
	info, err := v.fs.Stat(path)
	if err != nil {
		return "", err
	}
	f, err := v.fs.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unreadable page %d: %v", page, r)
		}
	}()

	r, err := pdf.NewReader(f, info.Size())
	if err != nil {
		return "", err
	}
	if page < 1 || page > r.NumPage() {
		return "", fmt.Errorf("page %d out of range [1, %d]", page, r.NumPage())
	}
	p := r.Page(page)
	if p.V.IsNull() {
		return "", fmt.Errorf("page %d is missing", page)
	}
	return p.GetPlainText(nil)
}
