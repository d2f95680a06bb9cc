// Package task carries the per-operation collaborators of the composition
// components: cooperative cancellation, progress notification and warnings.
package task

import (
	"context"

	"github.com/a3tai/mcp-pdf-composer/internal/logging"
	pdferrors "github.com/a3tai/mcp-pdf-composer/internal/pdf/errors"
)

// ProgressFunc receives the number of completed steps out of total
type ProgressFunc func(done, total int)

// Metadata is owned by one running task. It is not safe for concurrent use.
type Metadata struct {
	ctx      context.Context
	logger   logging.Logger
	progress ProgressFunc
	warnings *pdferrors.ErrorCollection

	done, total int
}

// Option configures Metadata
type Option func(*Metadata)

// WithProgress registers a progress sink
func WithProgress(fn ProgressFunc) Option {
	return func(m *Metadata) {
		m.progress = fn
	}
}

// WithLogger logs warnings and progress as they are reported
func WithLogger(logger logging.Logger) Option {
	return func(m *Metadata) {
		m.logger = logger
	}
}

// WithSource names the file warnings refer to
func WithSource(path string) Option {
	return func(m *Metadata) {
		m.warnings.FilePath = path
	}
}

// New creates task metadata bound to ctx. Cancelling ctx cancels the task at
// its next check.
func New(ctx context.Context, opts ...Option) *Metadata {
	if ctx == nil {
		ctx = context.Background()
	}
	m := &Metadata{
		ctx:      ctx,
		logger:   logging.Nop(),
		warnings: pdferrors.NewErrorCollection(""),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Context returns the context the task runs under
func (m *Metadata) Context() context.Context {
	return m.ctx
}

// StopIfCancelled returns the task cancellation error once the context is done
func (m *Metadata) StopIfCancelled() error {
	if err := m.ctx.Err(); err != nil {
		return pdferrors.WrapError(pdferrors.ErrorTypeTaskCancelled, "task cancelled", err)
	}
	return nil
}

// StepsCompleted reports progress
func (m *Metadata) StepsCompleted(done, total int) {
	m.done, m.total = done, total
	m.logger.Debug("progress", "done", done, "total", total)
	if m.progress != nil {
		m.progress(done, total)
	}
}

// Progress returns the last reported progress
func (m *Metadata) Progress() (done, total int) {
	return m.done, m.total
}

// Warn records a non-fatal problem
func (m *Metadata) Warn(err *pdferrors.PDFError) {
	m.logger.Warn(err.Message, "type", err.Type.String(), "context", err.Context)
	m.warnings.Add(err)
}

// Warnings returns the warning messages recorded so far
func (m *Metadata) Warnings() []string {
	return m.warnings.WarningMessages()
}

// Errors returns every recorded problem
func (m *Metadata) Errors() *pdferrors.ErrorCollection {
	return m.warnings
}
