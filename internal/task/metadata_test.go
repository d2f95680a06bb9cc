package task

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pdferrors "github.com/a3tai/mcp-pdf-composer/internal/pdf/errors"
)

func TestStopIfCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := New(ctx)

	require.NoError(t, m.StopIfCancelled())

	cancel()
	err := m.StopIfCancelled()
	require.Error(t, err)
	assert.True(t, pdferrors.IsCancelled(err))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew_NilContext(t *testing.T) {
	//nolint:staticcheck // nil is accepted and means background
	m := New(nil)
	assert.NoError(t, m.StopIfCancelled())
	assert.NotNil(t, m.Context())
}

func TestStepsCompleted(t *testing.T) {
	var got [][2]int
	m := New(context.Background(), WithProgress(func(done, total int) {
		got = append(got, [2]int{done, total})
	}))

	m.StepsCompleted(1, 2)
	m.StepsCompleted(2, 2)

	assert.Equal(t, [][2]int{{1, 2}, {2, 2}}, got)
	done, total := m.Progress()
	assert.Equal(t, 2, done)
	assert.Equal(t, 2, total)
}

func TestWarn(t *testing.T) {
	m := New(context.Background(), WithSource("in.pdf"))
	m.Warn(pdferrors.NewPDFError(pdferrors.ErrorTypePageNotFound, "Page 9 was skipped, could not be processed"))

	assert.Equal(t, []string{"Page 9 was skipped, could not be processed"}, m.Warnings())
	errs, warnings := m.Errors().Count()
	assert.Zero(t, errs)
	assert.Equal(t, 1, warnings)
	assert.Equal(t, "in.pdf", m.Errors().Warnings[0].FilePath)
}
