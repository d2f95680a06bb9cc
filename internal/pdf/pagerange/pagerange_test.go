package pagerange

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		selection string
		want      []PageRange
	}{
		{"4", []PageRange{{4, 4}}},
		{"1-3, 5", []PageRange{{1, 3}, {5, 5}}},
		{"9-", []PageRange{{9, 0}}},
		{"7,2-2,", []PageRange{{7, 7}, {2, 2}}},
	}
	for _, tt := range tests {
		t.Run(tt.selection, func(t *testing.T) {
			got, err := Parse(tt.selection)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, bad := range []string{"", " , ", "0", "a-3", "5-2", "-3"} {
		_, err := Parse(bad)
		assert.Error(t, err, bad)
	}
}

func TestExpand(t *testing.T) {
	ranges, err := Parse("5,1-3,2-4,9-")
	require.NoError(t, err)

	assert.Equal(t, []int{5, 1, 2, 3, 4, 9, 10}, Expand(ranges, 10), "selection order is kept")
	assert.Equal(t, []int{5, 1, 2, 3, 4}, Expand(ranges, 5), "ranges are clamped to the document")
	assert.Empty(t, Expand([]PageRange{{Start: 8, End: 9}}, 5))
}

func TestString(t *testing.T) {
	assert.Equal(t, "3", PageRange{3, 3}.String())
	assert.Equal(t, "2-6", PageRange{2, 6}.String())
	assert.Equal(t, "9-", PageRange{9, 0}.String())
}
