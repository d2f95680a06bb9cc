package pdf

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/a3tai/mcp-pdf-composer/internal/job"
	"github.com/a3tai/mcp-pdf-composer/internal/logging"
	"github.com/a3tai/mcp-pdf-composer/internal/pdf/acroform"
	"github.com/a3tai/mcp-pdf-composer/internal/pdf/security"
	"github.com/a3tai/mcp-pdf-composer/internal/pdf/verify"
	"github.com/a3tai/mcp-pdf-composer/internal/task"
)

// maxListedFiles bounds the directory listing of PDFServerInfo
const maxListedFiles = 100

// Defaults are applied to requests that leave an option unset
type Defaults struct {
	Policy         acroform.Policy
	DiscardOutline bool
	Optimize       bool
	Compress       bool
}

// Service handles composition requests: it confines paths to the configured
// directories, runs jobs and verifies what they write
type Service struct {
	fs          afero.Fs
	logger      logging.Logger
	maxFileSize int64
	defaults    Defaults
	progress    task.ProgressFunc

	sources   *security.PathValidator
	outputs   *security.PathValidator
	validator *verify.Validator
}

// ServiceOption configures a Service
type ServiceOption func(*Service)

// WithFs replaces the local file system
func WithFs(fs afero.Fs) ServiceOption {
	return func(s *Service) {
		s.fs = fs
	}
}

// WithLogger sets the logger
func WithLogger(logger logging.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithDefaults sets the options applied to requests
func WithDefaults(d Defaults) ServiceOption {
	return func(s *Service) {
		s.defaults = d
	}
}

// WithProgress receives page progress of every job
func WithProgress(fn task.ProgressFunc) ServiceOption {
	return func(s *Service) {
		s.progress = fn
	}
}

// NewService creates a service reading sources below sourceDirectory and
// writing below outputDirectory. An empty outputDirectory writes next to
// the sources.
func NewService(maxFileSize int64, sourceDirectory, outputDirectory string, opts ...ServiceOption) (*Service, error) {
	if outputDirectory == "" {
		outputDirectory = sourceDirectory
	}
	sources, err := security.NewPathValidator(sourceDirectory, outputDirectory)
	if err != nil {
		return nil, fmt.Errorf("failed to create path validator: %w", err)
	}
	outputs, err := security.NewPathValidator(outputDirectory)
	if err != nil {
		return nil, fmt.Errorf("failed to create path validator: %w", err)
	}

	s := &Service{
		fs:          afero.NewOsFs(),
		logger:      logging.Nop(),
		maxFileSize: maxFileSize,
		defaults:    Defaults{Policy: acroform.MergeRenamingExisting, Compress: true},
		sources:     sources,
		outputs:     outputs,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.validator = verify.NewValidator(s.fs, maxFileSize)
	return s, nil
}

// ExtractPages writes the selected pages of one document to a new document
func (s *Service) ExtractPages(ctx context.Context, req PDFExtractPagesRequest) (*PDFComposeResult, error) {
	output := req.Output
	if output == "" {
		base := strings.TrimSuffix(filepath.Base(req.Path), filepath.Ext(req.Path))
		output = base + "_extract.pdf"
	}
	return s.run(ctx, &job.Job{
		Output:         output,
		Policy:         s.policy(req.Policy),
		DiscardOutline: orDefault(req.DiscardOutline, s.defaults.DiscardOutline),
		Optimize:       orDefault(req.Optimize, s.defaults.Optimize),
		Sources:        []job.Source{{Path: req.Path, Pages: req.Pages, Ranges: req.Ranges}},
	}, req.Progress)
}

// MergeForms concatenates documents into one, merging their forms
func (s *Service) MergeForms(ctx context.Context, req PDFMergeFormsRequest) (*PDFComposeResult, error) {
	if len(req.Paths) == 0 {
		return nil, errors.New("at least one path is required")
	}
	output := req.Output
	if output == "" {
		output = "merged.pdf"
	}
	sources := make([]job.Source, 0, len(req.Paths))
	for _, p := range req.Paths {
		sources = append(sources, job.Source{Path: p})
	}
	return s.run(ctx, &job.Job{
		Output:         output,
		Policy:         s.policy(req.Policy),
		DiscardOutline: orDefault(req.DiscardOutline, s.defaults.DiscardOutline),
		Optimize:       orDefault(req.Optimize, s.defaults.Optimize),
		Sources:        sources,
	}, req.Progress)
}

// Compose runs a job document. Options the document leaves out take the
// service defaults, except the policy: a job without one discards forms.
func (s *Service) Compose(ctx context.Context, req PDFComposeRequest) (*PDFComposeResult, error) {
	j, err := job.Decode(strings.NewReader(req.Job))
	if err != nil {
		return nil, err
	}
	return s.run(ctx, j, req.Progress)
}

// PDFValidateFile performs validation on a PDF file
func (s *Service) PDFValidateFile(req PDFValidateFileRequest) (*verify.Result, error) {
	path, err := s.sources.Resolve(req.Path)
	if err != nil {
		return nil, fmt.Errorf("security validation failed: %w", err)
	}
	return s.validator.ValidateFile(path), nil
}

// run executes j. progress receives page progress, the service wide sink
// when nil.
func (s *Service) run(ctx context.Context, j *job.Job, progress task.ProgressFunc) (*PDFComposeResult, error) {
	output, err := s.outputs.Resolve(j.Output)
	if err != nil {
		return nil, fmt.Errorf("security validation failed: %w", err)
	}
	j.Output = output
	if j.Compress == nil {
		compress := s.defaults.Compress
		j.Compress = &compress
	}

	if progress == nil {
		progress = s.progress
	}
	runner := job.NewRunner(s.fs,
		job.WithLogger(s.logger),
		job.WithResolver(s.resolveSource),
		job.WithMaxFileSize(s.maxFileSize),
		job.WithProgress(progress),
	)
	started := time.Now()
	report, err := runner.Run(ctx, j)
	if err != nil {
		return nil, err
	}
	s.logger.Info("job finished", "output", report.Output, "pages", report.Pages,
		"elapsed", time.Since(started).Round(time.Millisecond))

	result := &PDFComposeResult{Report: report, Validation: s.validator.ValidateFile(report.Output)}
	if !result.Validation.Valid {
		s.logger.Warn("written document failed validation", "output", report.Output,
			"message", result.Validation.Message)
	}
	return result, nil
}

func (s *Service) resolveSource(path string) (string, error) {
	resolved, err := s.sources.Resolve(path)
	if err != nil {
		return "", fmt.Errorf("security validation failed: %w", err)
	}
	return resolved, nil
}

func (s *Service) policy(requested string) string {
	if requested != "" {
		return requested
	}
	return s.defaults.Policy.String()
}

func orDefault(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

// GetMaxFileSize returns the maximum file size limit
func (s *Service) GetMaxFileSize() int64 {
	return s.maxFileSize
}

// PDFServerInfo describes the server, its tools and the documents available
func (s *Service) PDFServerInfo(_ PDFServerInfoRequest, serverName, version string, tools []ToolInfo) (*PDFServerInfoResult, error) {
	files, truncated, err := s.listDocuments(maxListedFiles)
	if err != nil {
		s.logger.Warn("listing source directory failed", "error", err)
	}
	return &PDFServerInfoResult{
		ServerName:        serverName,
		Version:           version,
		SourceDirectory:   s.sources.Root(),
		OutputDirectory:   s.outputs.Root(),
		MaxFileSize:       s.maxFileSize,
		DefaultPolicy:     s.defaults.Policy.String(),
		Policies:          []string{"discard", "merge", "merge_renaming", "flatten"},
		AvailableTools:    tools,
		DirectoryContents: files,
		Truncated:         truncated,
	}, nil
}

// listDocuments walks the source directory for PDF files, up to limit
func (s *Service) listDocuments(limit int) (files []FileInfo, truncated bool, err error) {
	files = []FileInfo{}
	errLimit := errors.New("limit reached")
	err = afero.Walk(s.fs, s.sources.Root(), func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return nil //nolint:nilerr // unreadable entries are skipped
		}
		if info.IsDir() {
			if path != s.sources.Root() && strings.HasPrefix(info.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.EqualFold(filepath.Ext(path), ".pdf") {
			return nil
		}
		if len(files) == limit {
			truncated = true
			return errLimit
		}
		files = append(files, FileInfo{
			Path:         path,
			Name:         info.Name(),
			Size:         info.Size(),
			ModifiedTime: info.ModTime().Format(time.RFC3339),
		})
		return nil
	})
	if errors.Is(err, errLimit) {
		err = nil
	}
	return files, truncated, err
}
