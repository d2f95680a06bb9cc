// Package extract copies a subset of the pages of one document into a
// destination document, together with their annotations, the relevant part
// of the outline and optimized resources.
package extract

import (
	stderrors "errors"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/spf13/afero"

	"github.com/a3tai/mcp-pdf-composer/internal/logging"
	"github.com/a3tai/mcp-pdf-composer/internal/pdf/annotation"
	"github.com/a3tai/mcp-pdf-composer/internal/pdf/cos"
	pdferrors "github.com/a3tai/mcp-pdf-composer/internal/pdf/errors"
	"github.com/a3tai/mcp-pdf-composer/internal/pdf/optimize"
	"github.com/a3tai/mcp-pdf-composer/internal/pdf/outline"
)

// ErrNoPages is returned by Save when no page was retained
var ErrNoPages = stderrors.New("no pages retained, nothing to save")

// ErrClosed is returned when an operation runs on a closed extractor
var ErrClosed = stderrors.New("extractor is closed")

// catalogKeys are carried from the original catalog into a new destination
var catalogKeys = []string{"ViewerPreferences", "PageLayout", "PageMode", "Lang"}

// TaskMetadata is the calling task: cancellation, progress and warnings
type TaskMetadata interface {
	StopIfCancelled() error
	StepsCompleted(done, total int)
	Warn(err *pdferrors.PDFError)
}

// Extractor retains pages of an original document into a destination
// document. It is not safe for concurrent use.
type Extractor struct {
	origin *cos.Document
	logger logging.Logger

	// shared is a destination owned by the caller, e.g. when composing
	// several sources into one document
	shared *cos.Document

	destination *cos.Document
	copier      *cos.Copier
	annotations *annotation.Processor
	// outlined is set once the outline was distilled into the destination
	outlined bool
	closed   bool
}

// Option configures an Extractor
type Option func(*Extractor)

// WithLogger sets the logger
func WithLogger(logger logging.Logger) Option {
	return func(e *Extractor) {
		e.logger = logger
	}
}

// WithDestination retains pages into doc instead of a new document. The
// extractor does not take ownership of doc.
func WithDestination(doc *cos.Document) Option {
	return func(e *Extractor) {
		e.shared = doc
	}
}

// New creates an extractor over origin
func New(origin *cos.Document, opts ...Option) (*Extractor, error) {
	e := &Extractor{origin: origin, logger: logging.Nop()}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("source", origin.DisplayName())
	if err := e.init(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Extractor) init() error {
	dst := e.shared
	if dst == nil {
		var err error
		if dst, err = cos.New(); err != nil {
			return err
		}
	}
	e.destination = dst
	e.copier = cos.NewCopier(e.origin, dst)
	e.annotations = annotation.NewProcessor(e.copier, annotation.WithLogger(e.logger))
	e.outlined = false
	e.closed = false

	if e.shared == nil {
		return e.initialiseBasedOn()
	}
	return nil
}

// initialiseBasedOn gives a new destination the version and viewer settings of the original
func (e *Extractor) initialiseBasedOn() error {
	if err := e.destination.SetVersion(e.origin.Version()); err != nil {
		e.logger.Debug("keeping default version", "error", err)
	}

	src, err := e.origin.Catalog()
	if err != nil {
		return err
	}
	dst, err := e.destination.Catalog()
	if err != nil {
		return err
	}
	for _, key := range catalogKeys {
		val, ok := src[key]
		if !ok {
			continue
		}
		copied, err := e.copier.Copy(val)
		if err != nil {
			return fmt.Errorf("copying catalog /%s: %w", key, err)
		}
		if copied != nil {
			dst[key] = copied
		}
	}
	return nil
}

// Retain imports the 1-based page of the original document. A page that
// does not exist is reported as a task warning and skipped.
func (e *Extractor) Retain(page int, meta TaskMetadata) error {
	if e.closed {
		return ErrClosed
	}

	p, err := e.origin.Page(page)
	if err != nil {
		if pdferrors.TypeOf(err) != pdferrors.ErrorTypePageNotFound {
			return fmt.Errorf("reading page %d: %w", page, err)
		}
		warning := fmt.Sprintf("Page %d was skipped, could not be processed", page)
		meta.Warn(pdferrors.NewPDFError(pdferrors.ErrorTypePageNotFound, warning).
			WithPage(page).WithFile(e.origin.DisplayName()))
		e.logger.Warn(warning, "error", err)
		return nil
	}

	if _, err := e.copier.ImportPage(p); err != nil {
		return fmt.Errorf("importing page %d: %w", page, err)
	}
	e.logger.Debug("imported page", "page", page)
	return nil
}

// RetainPages imports pages in the given order. Cancellation is checked
// before each page and progress reported after it. Repeated page numbers are
// retained once.
func (e *Extractor) RetainPages(pages []int, meta TaskMetadata) error {
	unique := make([]int, 0, len(pages))
	seen := make(map[int]bool, len(pages))
	for _, p := range pages {
		if !seen[p] {
			seen[p] = true
			unique = append(unique, p)
		}
	}

	for i, page := range unique {
		if err := meta.StopIfCancelled(); err != nil {
			return err
		}
		if err := e.Retain(page, meta); err != nil {
			return err
		}
		meta.StepsCompleted(i+1, len(unique))
	}
	return nil
}

// Retained returns the number of pages retained so far
func (e *Extractor) Retained() int {
	return e.copier.Pages().Len()
}

// RetainedPages returns the destination pages in retention order
func (e *Extractor) RetainedPages() []types.IndirectRef {
	return e.copier.Pages().Values()
}

// Optimize gives every retained page its own resource dictionaries and
// drops the resources their content does not use
func (e *Extractor) Optimize() error {
	if e.closed {
		return ErrClosed
	}
	e.logger.Debug("optimizing document")
	return optimize.New(e.destination, optimize.WithLogger(e.logger)).Optimize(e.RetainedPages())
}

// Annotations copies the annotations of the retained pages and returns the
// table mapping source annotations to their copies
func (e *Extractor) Annotations() (*annotation.Table, error) {
	if e.closed {
		return nil, ErrClosed
	}
	return e.annotations.Process()
}

// Finalize prepares the destination for writing: it distills the outline
// unless discarded, processes annotations and clears signature values. The
// outline is distilled once per session, later calls leave it as is.
func (e *Extractor) Finalize(discardOutline bool) error {
	if e.closed {
		return ErrClosed
	}

	if !discardOutline && !e.outlined {
		items, err := outline.NewDistiller(e.copier, outline.WithLogger(e.logger)).Run()
		if err != nil {
			return fmt.Errorf("creating outline: %w", err)
		}
		e.outlined = true
		e.logger.Debug("outline created", "items", items)
	}

	if _, err := e.annotations.Process(); err != nil {
		return fmt.Errorf("processing annotations: %w", err)
	}
	if _, err := e.annotations.ClipSignatures(); err != nil {
		e.logger.Warn("failed to clip signatures", "error",
			pdferrors.WrapError(pdferrors.ErrorTypeSignatureClip, "signature clip failed", err))
	}
	return nil
}

// Save finalizes the destination and writes it to path on fs
func (e *Extractor) Save(fs afero.Fs, path string, discardOutline bool) error {
	if e.closed {
		return ErrClosed
	}
	if e.Retained() == 0 {
		return ErrNoPages
	}
	if err := e.Finalize(discardOutline); err != nil {
		return err
	}
	if err := e.destination.WriteFile(fs, path); err != nil {
		return err
	}
	e.logger.Info("document saved", "path", path, "pages", e.Retained())
	return nil
}

// SetVersion sets the version the destination is written with
func (e *Extractor) SetVersion(version string) error {
	if e.closed {
		return ErrClosed
	}
	return e.destination.SetVersion(version)
}

// SetCompress toggles object stream compression of the destination
func (e *Extractor) SetCompress(compress bool) {
	if e.closed {
		return
	}
	e.destination.SetCompress(compress)
}

// Origin returns the document pages are retained from
func (e *Extractor) Origin() *cos.Document {
	return e.origin
}

// Destination returns the document being built, nil once closed
func (e *Extractor) Destination() *cos.Document {
	return e.destination
}

// Copier returns the copier holding the page and object tables
func (e *Extractor) Copier() *cos.Copier {
	return e.copier
}

// Reset discards everything retained and starts over against the same
// original document
func (e *Extractor) Reset() error {
	if err := e.Close(); err != nil {
		return err
	}
	return e.init()
}

// Close releases the destination and clears the lookup tables. Calling it
// more than once is a no-op.
func (e *Extractor) Close() error {
	if e.closed {
		return nil
	}
	e.annotations.Reset()
	e.copier.Reset(nil)
	e.destination = nil
	e.closed = true
	return nil
}
