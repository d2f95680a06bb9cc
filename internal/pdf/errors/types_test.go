package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPDFError_ErrorString(t *testing.T) {
	err := NewPDFErrorWithContext(ErrorTypePageNotFound, "page skipped", "page 7").WithPage(7)
	assert.Equal(t, "[PAGE_NOT_FOUND] page skipped: page 7", err.Error())
	assert.True(t, err.Recoverable)
	assert.Equal(t, 7, err.PageNumber)
}

func TestIsCancelled(t *testing.T) {
	cancelled := WrapError(ErrorTypeTaskCancelled, "task cancelled", fmt.Errorf("context canceled"))
	wrapped := fmt.Errorf("retaining page 3: %w", cancelled)

	assert.True(t, IsCancelled(cancelled))
	assert.True(t, IsCancelled(wrapped))
	assert.False(t, IsCancelled(stderrors.New("boom")))
	assert.False(t, IsCancelled(NewPDFError(ErrorTypeIO, "write failed")))
	assert.Equal(t, ErrorTypeTaskCancelled, TypeOf(wrapped))
}

func TestIsInvariantViolation(t *testing.T) {
	err := fmt.Errorf("lookup: %w", NewPDFError(ErrorTypeInvariantViolation, "conflicting mapping"))
	assert.True(t, IsInvariantViolation(err))
	assert.False(t, IsCancelled(err))
}

func TestErrorType_Classification(t *testing.T) {
	tests := []struct {
		errorType   ErrorType
		severity    ErrorSeverity
		recoverable bool
	}{
		{ErrorTypePageNotFound, SeverityWarning, true},
		{ErrorTypeFieldConflict, SeverityWarning, true},
		{ErrorTypeFlattenFailed, SeverityWarning, true},
		{ErrorTypeTaskCancelled, SeverityFatal, false},
		{ErrorTypeInvariantViolation, SeverityFatal, false},
		{ErrorTypeIO, SeverityError, false},
	}

	for _, tt := range tests {
		t.Run(tt.errorType.String(), func(t *testing.T) {
			assert.Equal(t, tt.severity, tt.errorType.GetSeverity())
			assert.Equal(t, tt.recoverable, tt.errorType.IsRecoverable())
		})
	}
}

func TestErrorCollection(t *testing.T) {
	ec := NewErrorCollection("/tmp/in.pdf")
	assert.Equal(t, "No errors or warnings", ec.Summary())

	ec.Add(NewPDFError(ErrorTypePageNotFound, "Page 9 was skipped, could not be processed"))
	ec.Add(NewPDFError(ErrorTypeInvariantViolation, "conflicting mapping"))

	errs, warnings := ec.Count()
	assert.Equal(t, 1, errs)
	assert.Equal(t, 1, warnings)
	assert.True(t, ec.HasCriticalErrors())
	assert.Equal(t, []string{"Page 9 was skipped, could not be processed"}, ec.WarningMessages())
	assert.Equal(t, "/tmp/in.pdf", ec.Warnings[0].FilePath)
	assert.Contains(t, ec.Summary(), "including critical errors")
}
