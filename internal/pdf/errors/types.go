package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// PDFError represents a classified failure raised while composing PDF documents
type PDFError struct {
	Type        ErrorType `json:"type"`
	Message     string    `json:"message"`
	Context     string    `json:"context,omitempty"`
	ObjectNum   int       `json:"object_num,omitempty"`
	Recoverable bool      `json:"recoverable"`
	Timestamp   time.Time `json:"timestamp"`
	FilePath    string    `json:"file_path,omitempty"`
	PageNumber  int       `json:"page_number,omitempty"`
	Err         error     `json:"-"`
}

// ErrorType represents the categories of composition errors
type ErrorType int

const (
	ErrorTypeUnknown ErrorType = iota
	ErrorTypeMalformedObject
	ErrorTypeMissingObject
	ErrorTypePageNotFound
	ErrorTypeInvalidForm
	ErrorTypeFieldConflict
	ErrorTypeFlattenFailed
	ErrorTypeSignatureClip
	ErrorTypeUnsupportedFeature
	ErrorTypeInvariantViolation
	ErrorTypeTaskCancelled
	ErrorTypeIO
	ErrorTypeRestricted
)

// ErrorSeverity indicates how critical an error is
type ErrorSeverity int

const (
	SeverityInfo ErrorSeverity = iota
	SeverityWarning
	SeverityError
	SeverityFatal
)

// Error implements the error interface
func (e *PDFError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Type.String(), e.Message)
	if e.Context != "" {
		msg += ": " + e.Context
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the wrapped cause
func (e *PDFError) Unwrap() error {
	return e.Err
}

// Is matches another PDFError of the same type, so sentinel comparisons work with errors.Is
func (e *PDFError) Is(target error) bool {
	t, ok := target.(*PDFError)
	if !ok {
		return false
	}
	return t.Type == e.Type && t.Message == ""
}

// String returns a string representation of the ErrorType
func (et ErrorType) String() string {
	switch et {
	case ErrorTypeMalformedObject:
		return "MALFORMED_OBJECT"
	case ErrorTypeMissingObject:
		return "MISSING_OBJECT"
	case ErrorTypePageNotFound:
		return "PAGE_NOT_FOUND"
	case ErrorTypeInvalidForm:
		return "INVALID_FORM"
	case ErrorTypeFieldConflict:
		return "FIELD_CONFLICT"
	case ErrorTypeFlattenFailed:
		return "FLATTEN_FAILED"
	case ErrorTypeSignatureClip:
		return "SIGNATURE_CLIP"
	case ErrorTypeUnsupportedFeature:
		return "UNSUPPORTED_FEATURE"
	case ErrorTypeInvariantViolation:
		return "INVARIANT_VIOLATION"
	case ErrorTypeTaskCancelled:
		return "TASK_CANCELLED"
	case ErrorTypeIO:
		return "IO"
	case ErrorTypeRestricted:
		return "RESTRICTED"
	default:
		return "UNKNOWN"
	}
}

// GetSeverity returns the severity level for a given error type
func (et ErrorType) GetSeverity() ErrorSeverity {
	switch et {
	case ErrorTypePageNotFound, ErrorTypeFieldConflict, ErrorTypeUnsupportedFeature:
		return SeverityWarning
	case ErrorTypeFlattenFailed, ErrorTypeSignatureClip, ErrorTypeRestricted:
		return SeverityWarning
	case ErrorTypeTaskCancelled, ErrorTypeInvariantViolation:
		return SeverityFatal
	default:
		return SeverityError
	}
}

// IsRecoverable determines if an error type lets the current operation continue
func (et ErrorType) IsRecoverable() bool {
	switch et {
	case ErrorTypePageNotFound, ErrorTypeFieldConflict, ErrorTypeUnsupportedFeature:
		return true
	case ErrorTypeFlattenFailed, ErrorTypeSignatureClip, ErrorTypeRestricted:
		return true
	default:
		return false
	}
}

// NewPDFError creates a new PDFError
func NewPDFError(errorType ErrorType, message string) *PDFError {
	return &PDFError{
		Type:        errorType,
		Message:     message,
		Recoverable: errorType.IsRecoverable(),
		Timestamp:   time.Now(),
	}
}

// NewPDFErrorWithContext creates a new PDFError with additional context
func NewPDFErrorWithContext(errorType ErrorType, message, context string) *PDFError {
	e := NewPDFError(errorType, message)
	e.Context = context
	return e
}

// WrapError wraps a standard error as a PDFError
func WrapError(errorType ErrorType, message string, err error) *PDFError {
	e := NewPDFError(errorType, message)
	e.Err = err
	return e
}

// WithContext adds context to an existing PDFError
func (e *PDFError) WithContext(context string) *PDFError {
	e.Context = context
	return e
}

// WithObject adds the object number the error refers to
func (e *PDFError) WithObject(objNum int) *PDFError {
	e.ObjectNum = objNum
	return e
}

// WithFile adds file path information to an existing PDFError
func (e *PDFError) WithFile(filePath string) *PDFError {
	e.FilePath = filePath
	return e
}

// WithPage adds page number information to an existing PDFError
func (e *PDFError) WithPage(pageNumber int) *PDFError {
	e.PageNumber = pageNumber
	return e
}

// GetSeverity returns the severity of this specific error
func (e *PDFError) GetSeverity() ErrorSeverity {
	return e.Type.GetSeverity()
}

// IsCritical returns true if this error must stop the overall task
func (e *PDFError) IsCritical() bool {
	return e.GetSeverity() == SeverityFatal
}

// ErrTaskCancelled is the distinguished cancellation condition
var ErrTaskCancelled = &PDFError{Type: ErrorTypeTaskCancelled}

// ErrInvariantViolation matches any invariant violation
var ErrInvariantViolation = &PDFError{Type: ErrorTypeInvariantViolation}

// IsCancelled reports whether err is, or wraps, a task cancellation
func IsCancelled(err error) bool {
	return stderrors.Is(err, ErrTaskCancelled)
}

// IsInvariantViolation reports whether err is, or wraps, an invariant violation
func IsInvariantViolation(err error) bool {
	return stderrors.Is(err, ErrInvariantViolation)
}

// TypeOf returns the ErrorType of the first PDFError in err's chain
func TypeOf(err error) ErrorType {
	var pdfErr *PDFError
	if stderrors.As(err, &pdfErr) {
		return pdfErr.Type
	}
	return ErrorTypeUnknown
}

// ErrorCollection accumulates errors and warnings raised during one task
type ErrorCollection struct {
	Errors   []*PDFError `json:"errors"`
	Warnings []*PDFError `json:"warnings"`
	FilePath string      `json:"file_path,omitempty"`
}

// NewErrorCollection creates a new error collection
func NewErrorCollection(filePath string) *ErrorCollection {
	return &ErrorCollection{
		Errors:   make([]*PDFError, 0),
		Warnings: make([]*PDFError, 0),
		FilePath: filePath,
	}
}

// Add adds an error to the appropriate collection based on severity
func (ec *ErrorCollection) Add(err *PDFError) {
	if err.FilePath == "" && ec.FilePath != "" {
		err.FilePath = ec.FilePath
	}

	severity := err.GetSeverity()
	if severity == SeverityWarning || severity == SeverityInfo {
		ec.Warnings = append(ec.Warnings, err)
	} else {
		ec.Errors = append(ec.Errors, err)
	}
}

// HasCriticalErrors returns true if any critical errors exist
func (ec *ErrorCollection) HasCriticalErrors() bool {
	for _, err := range ec.Errors {
		if err.IsCritical() {
			return true
		}
	}
	return false
}

// WarningMessages returns the warning messages in the order they were raised
func (ec *ErrorCollection) WarningMessages() []string {
	messages := make([]string, 0, len(ec.Warnings))
	for _, w := range ec.Warnings {
		if w.Context != "" {
			messages = append(messages, w.Message+": "+w.Context)
			continue
		}
		messages = append(messages, w.Message)
	}
	return messages
}

// Count returns the total number of errors and warnings
func (ec *ErrorCollection) Count() (errors, warnings int) {
	return len(ec.Errors), len(ec.Warnings)
}

// Summary returns a text summary of all errors and warnings
func (ec *ErrorCollection) Summary() string {
	errorCount, warningCount := ec.Count()
	if errorCount == 0 && warningCount == 0 {
		return "No errors or warnings"
	}

	summary := fmt.Sprintf("Found %d error(s) and %d warning(s)", errorCount, warningCount)

	if ec.HasCriticalErrors() {
		summary += " (including critical errors)"
	}

	return summary
}
