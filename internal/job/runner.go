package job

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/multierr"

	"github.com/a3tai/mcp-pdf-composer/internal/logging"
	"github.com/a3tai/mcp-pdf-composer/internal/pdf/acroform"
	"github.com/a3tai/mcp-pdf-composer/internal/pdf/cos"
	pdferrors "github.com/a3tai/mcp-pdf-composer/internal/pdf/errors"
	"github.com/a3tai/mcp-pdf-composer/internal/pdf/extract"
	"github.com/a3tai/mcp-pdf-composer/internal/pdf/pagerange"
	"github.com/a3tai/mcp-pdf-composer/internal/pdf/security"
	"github.com/a3tai/mcp-pdf-composer/internal/task"
)

// Runner executes jobs against a file system
type Runner struct {
	fs          afero.Fs
	logger      logging.Logger
	resolve     func(path string) (string, error)
	progress    task.ProgressFunc
	maxFileSize int64
}

// Option configures a Runner
type Option func(*Runner)

// WithLogger sets the logger
func WithLogger(logger logging.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithResolver maps job paths to file system paths, rejecting those that
// are not allowed
func WithResolver(resolve func(path string) (string, error)) Option {
	return func(r *Runner) {
		r.resolve = resolve
	}
}

// WithProgress reports retained pages over all sources
func WithProgress(fn task.ProgressFunc) Option {
	return func(r *Runner) {
		r.progress = fn
	}
}

// WithMaxFileSize rejects sources larger than size bytes
func WithMaxFileSize(size int64) Option {
	return func(r *Runner) {
		r.maxFileSize = size
	}
}

// NewRunner creates a runner reading and writing on fs
func NewRunner(fs afero.Fs, opts ...Option) *Runner {
	r := &Runner{
		fs:      fs,
		logger:  logging.Nop(),
		resolve: func(path string) (string, error) { return path, nil },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// source is an opened source document and the pages taken from it
type source struct {
	path  string
	doc   *cos.Document
	pages []int
}

// offsetProgress reports the progress of one source as part of the whole job
type offsetProgress struct {
	*task.Metadata
	offset, total int
}

func (p offsetProgress) StepsCompleted(done, _ int) {
	p.Metadata.StepsCompleted(p.offset+done, p.total)
}

// Run composes the job output. The output is written once, after every
// source was retained; nothing is written when the job fails or is
// cancelled through ctx.
func (r *Runner) Run(ctx context.Context, j *Job) (report *Report, err error) {
	if err := Validate(j); err != nil {
		return nil, err
	}
	policy, err := acroform.ParsePolicy(j.Policy)
	if err != nil {
		return nil, err
	}
	output, err := r.resolve(j.Output)
	if err != nil {
		return nil, fmt.Errorf("output %s: %w", j.Output, err)
	}

	meta := task.New(ctx, task.WithLogger(r.logger), task.WithProgress(r.progress))
	sources, err := r.open(j, meta)
	if err != nil {
		return nil, err
	}

	dst, err := cos.New()
	if err != nil {
		return nil, err
	}
	dst.SetCompress(j.compress())

	merger := acroform.NewMerger(policy, dst, acroform.WithLogger(r.logger))
	report = &Report{Output: output, Policy: policy.String()}

	var extractors []*extract.Extractor
	defer func() {
		for _, e := range extractors {
			err = multierr.Append(err, e.Close())
		}
	}()

	total := 0
	for _, s := range sources {
		total += len(s.pages)
	}

	done := 0
	for _, s := range sources {
		e, err := extract.New(s.doc, extract.WithDestination(dst), extract.WithLogger(r.logger))
		if err != nil {
			return nil, err
		}
		extractors = append(extractors, e)

		if err := e.RetainPages(s.pages, offsetProgress{Metadata: meta, offset: done, total: total}); err != nil {
			return nil, err
		}
		done += len(s.pages)

		sr, err := r.finish(e, j, merger)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s.path, err)
		}
		sr.Path = s.path
		sr.Requested = len(s.pages)
		report.Sources = append(report.Sources, sr)
		report.Pages += sr.Retained
	}

	if report.Pages == 0 {
		return nil, extract.ErrNoPages
	}

	if err := merger.Attach(); err != nil {
		return nil, fmt.Errorf("attaching form: %w", err)
	}
	if err := dst.SetVersion(r.version(j, sources)); err != nil {
		return nil, err
	}
	if err := dst.WriteFile(r.fs, output); err != nil {
		return nil, err
	}

	report.Form = merger.HasForm()
	report.Fields = merger.Tree().Len()
	report.Version = dst.Version()
	report.Warnings = append(meta.Warnings(), merger.Warnings()...)
	r.logger.Info("composition written", "output", output, "pages", report.Pages,
		"sources", len(sources), "warnings", len(report.Warnings))
	return report, nil
}

// open reads every source and resolves its page selection before anything
// is retained, so progress totals are known up front
func (r *Runner) open(j *Job, meta *task.Metadata) ([]source, error) {
	sources := make([]source, 0, len(j.Sources))
	for _, s := range j.Sources {
		if err := meta.StopIfCancelled(); err != nil {
			return nil, err
		}
		path, err := r.resolve(s.Path)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", s.Path, err)
		}
		if err := r.checkSize(path); err != nil {
			return nil, err
		}
		doc, err := cos.OpenFs(r.fs, path)
		if err != nil {
			return nil, err
		}
		r.checkPermissions(doc, meta)

		pages, err := selectPages(s, doc.PageCount())
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", s.Path, err)
		}
		sources = append(sources, source{path: path, doc: doc, pages: pages})
	}
	return sources, nil
}

func (r *Runner) checkSize(path string) error {
	if r.maxFileSize <= 0 {
		return nil
	}
	info, err := r.fs.Stat(path)
	if err != nil {
		return pdferrors.WrapError(pdferrors.ErrorTypeIO, "cannot access source", err).WithFile(path)
	}
	if info.Size() > r.maxFileSize {
		return pdferrors.NewPDFError(pdferrors.ErrorTypeIO,
			fmt.Sprintf("file too large: %d bytes (max: %d bytes)", info.Size(), r.maxFileSize)).WithFile(path)
	}
	return nil
}

// checkPermissions warns when an encrypted source does not grant the
// operations a composition performs
func (r *Runner) checkPermissions(doc *cos.Document, meta *task.Metadata) {
	perms, ok := doc.Permissions()
	if !ok {
		return
	}
	if denied := security.NewPermissions(perms).Denied(); len(denied) > 0 {
		meta.Warn(pdferrors.NewPDFError(pdferrors.ErrorTypeRestricted,
			"Document restricts "+strings.Join(denied, ", ")).WithFile(doc.DisplayName()))
	}
}

// selectPages lists the pages of a source in selection order, once each
func selectPages(s Source, pageCount int) ([]int, error) {
	pages := append([]int(nil), s.Pages...)
	if s.Ranges != "" {
		ranges, err := pagerange.Parse(s.Ranges)
		if err != nil {
			return nil, err
		}
		pages = append(pages, pagerange.Expand(ranges, pageCount)...)
	}
	if len(s.Pages) == 0 && s.Ranges == "" {
		pages = pagerange.Expand([]pagerange.PageRange{{Start: 1}}, pageCount)
	}

	unique := pages[:0]
	seen := make(map[int]bool, len(pages))
	for _, p := range pages {
		if !seen[p] {
			seen[p] = true
			unique = append(unique, p)
		}
	}
	return unique, nil
}

// finish completes one source: resources, outline, annotations and form
func (r *Runner) finish(e *extract.Extractor, j *Job, merger *acroform.Merger) (SourceReport, error) {
	sr := SourceReport{Retained: e.Retained(), Version: e.Origin().Version()}
	if sr.Retained == 0 {
		return sr, nil
	}

	if err := e.Finalize(j.DiscardOutline); err != nil {
		return sr, err
	}
	// after Finalize, so appearance streams of the copied annotations count
	// as resource users
	if j.Optimize {
		if err := e.Optimize(); err != nil {
			return sr, fmt.Errorf("optimizing: %w", err)
		}
	}

	form, err := acroform.FormOf(e.Copier())
	if err != nil {
		return sr, err
	}
	sr.Form = form != nil
	annotations, err := e.Annotations()
	if err != nil {
		return sr, err
	}
	if err := merger.MergeForm(form, annotations); err != nil {
		return sr, fmt.Errorf("merging form: %w", err)
	}
	return sr, nil
}

// version is the requested version or else the highest source version
func (r *Runner) version(j *Job, sources []source) string {
	if j.Version != "" {
		return j.Version
	}
	version := "1.4"
	for _, s := range sources {
		if v := s.doc.Version(); v > version {
			version = v
		}
	}
	return version
}
