// Package cos adapts the pdfcpu object model to the composition components:
// opening and creating documents, page access, object allocation, reference
// resolution, cross-document copying and serialization.
package cos

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/spf13/afero"

	pdferrors "github.com/a3tai/mcp-pdf-composer/internal/pdf/errors"
)

// Document owns one pdfcpu context. Object identity inside a document is the
// object number of its xref table.
type Document struct {
	ctx  *model.Context
	name string
}

func readConfiguration() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// OpenFs reads a document from fs
func OpenFs(fs afero.Fs, path string) (*Document, error) {
	file, err := fs.Open(path)
	if err != nil {
		return nil, pdferrors.WrapError(pdferrors.ErrorTypeIO, "failed to open PDF file", err).WithFile(path)
	}
	defer file.Close()

	doc, err := OpenReader(file, filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// OpenReader reads a document from rs. name is only used in messages.
func OpenReader(rs io.ReadSeeker, name string) (*Document, error) {
	ctx, err := api.ReadContext(rs, readConfiguration())
	if err != nil {
		return nil, pdferrors.WrapError(pdferrors.ErrorTypeMalformedObject, "failed to read PDF context", err)
	}

	if err := ctx.EnsurePageCount(); err != nil {
		return nil, pdferrors.WrapError(pdferrors.ErrorTypeMalformedObject, "failed to ensure page count", err)
	}

	return &Document{ctx: ctx, name: name}, nil
}

// New creates an empty document: a catalog and a page tree root without kids.
func New() (*Document, error) {
	doc, err := OpenReader(bytes.NewReader(emptyDocument()), "destination")
	if err != nil {
		return nil, fmt.Errorf("failed to create empty document: %w", err)
	}
	return doc, nil
}

// emptyDocument renders the smallest document pdfcpu accepts, with a correct
// cross-reference section.
func emptyDocument() []byte {
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [] /Count 0 >>",
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.7\n")

	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)

	return buf.Bytes()
}

// DisplayName identifies the document in messages
func (d *Document) DisplayName() string {
	return d.name
}

// Context exposes the underlying pdfcpu context
func (d *Document) Context() *model.Context {
	return d.ctx
}

// Catalog returns the document catalog
func (d *Document) Catalog() (types.Dict, error) {
	catalog, err := d.ctx.Catalog()
	if err != nil {
		return nil, pdferrors.WrapError(pdferrors.ErrorTypeMissingObject, "failed to get catalog", err)
	}
	return catalog, nil
}

// SetVersion sets the header version used on write, e.g. "1.7"
func (d *Document) SetVersion(version string) error {
	v, err := model.PDFVersion(version)
	if err != nil {
		return fmt.Errorf("invalid PDF version %q: %w", version, err)
	}
	d.ctx.HeaderVersion = &v
	if d.ctx.RootVersion != nil {
		d.ctx.RootVersion = &v
	}
	return nil
}

// SetCompress toggles object and cross-reference streams on write
func (d *Document) SetCompress(compress bool) {
	d.ctx.WriteObjectStream = compress
	d.ctx.WriteXRefStream = compress
}

// Write serializes the document. Objects unreachable from the catalog are not written.
func (d *Document) Write(w io.Writer) error {
	if err := api.WriteContext(d.ctx, w); err != nil {
		return pdferrors.WrapError(pdferrors.ErrorTypeIO, "failed to write PDF", err)
	}
	return nil
}

// WriteFile serializes the document to path on fs, creating parent directories
func (d *Document) WriteFile(fs afero.Fs, path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return pdferrors.WrapError(pdferrors.ErrorTypeIO, "failed to create output directory", err).WithFile(path)
		}
	}

	var buf bytes.Buffer
	if err := d.Write(&buf); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	if err := afero.WriteFile(fs, path, buf.Bytes(), 0o644); err != nil {
		return pdferrors.WrapError(pdferrors.ErrorTypeIO, "failed to write output file", err).WithFile(path)
	}
	return nil
}

// Bytes serializes the document into memory
func (d *Document) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := d.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Version returns the PDF version the document declares, e.g. "1.7"
func (d *Document) Version() string {
	return d.ctx.XRefTable.Version().String()
}

// Permissions returns the /P access permissions of an encrypted document.
// ok is false for documents without encryption.
func (d *Document) Permissions() (perms int32, ok bool) {
	if d.ctx.E == nil {
		return 0, false
	}
	return int32(d.ctx.E.P), true
}
