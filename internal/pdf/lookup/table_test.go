package lookup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pdferrors "github.com/a3tai/mcp-pdf-composer/internal/pdf/errors"
)

func TestTable_AddAndLookup(t *testing.T) {
	table := New[int, string]()

	require.NoError(t, table.Add(12, "dst-40"))
	require.NoError(t, table.Add(7, "dst-41"))

	dst, ok := table.Lookup(12)
	assert.True(t, ok)
	assert.Equal(t, "dst-40", dst)

	_, ok = table.Lookup(99)
	assert.False(t, ok)
	assert.True(t, table.Has(7))
	assert.False(t, table.Has(8))
	assert.Equal(t, 2, table.Len())
}

func TestTable_IdempotentReAdd(t *testing.T) {
	table := New[int, int]()
	require.NoError(t, table.Add(1, 10))
	require.NoError(t, table.Add(1, 10))
	assert.Equal(t, 1, table.Len())
}

func TestTable_ConflictingAddIsInvariantViolation(t *testing.T) {
	table := New[int, int]()
	require.NoError(t, table.Add(1, 10))

	err := table.Add(1, 11)
	require.Error(t, err)
	assert.True(t, pdferrors.IsInvariantViolation(err))

	dst, _ := table.Lookup(1)
	assert.Equal(t, 10, dst, "existing entry must not be overwritten")
}

func TestTable_InsertionOrder(t *testing.T) {
	table := New[int, int]()
	for _, k := range []int{5, 3, 9, 1} {
		require.NoError(t, table.Add(k, k*100))
	}

	assert.Equal(t, []int{5, 3, 9, 1}, table.Keys())
	assert.Equal(t, []int{500, 300, 900, 100}, table.Values())
}

func TestTable_IdentityNotStructure(t *testing.T) {
	type node struct{ objNr int }
	table := New[node, int]()

	// same content, different identity
	require.NoError(t, table.Add(node{objNr: 4}, 1))
	require.NoError(t, table.Add(node{objNr: 5}, 1))
	assert.Equal(t, 2, table.Len())
}

func TestTable_Clear(t *testing.T) {
	table := New[int, int]()
	require.NoError(t, table.Add(1, 2))
	table.Clear()

	assert.Equal(t, 0, table.Len())
	assert.False(t, table.Has(1))
	require.NoError(t, table.Add(1, 3), "cleared table accepts a new mapping")
}
