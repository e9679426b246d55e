package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursor_RoundTrip(t *testing.T) {
	cursor := EncodeCursor(42)
	require.NotEmpty(t, cursor)

	id, err := DecodeCursor(cursor)

	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
}

func TestEncodeCursor_NonPositive(t *testing.T) {
	assert.Equal(t, "", EncodeCursor(0))
	assert.Equal(t, "", EncodeCursor(-3))
}

func TestDecodeCursor_Empty(t *testing.T) {
	id, err := DecodeCursor("")

	assert.NoError(t, err)
	assert.Equal(t, int64(0), id)
}

func TestDecodeCursor_Invalid(t *testing.T) {
	for _, c := range []string{"%%%", "aGVsbG8", EncodeCursor(1) + "x"} {
		_, err := DecodeCursor(c)
		assert.ErrorIs(t, err, ErrInvalidCursor, c)
	}
}

func TestPage(t *testing.T) {
	id := func(v int64) int64 { return v }

	full := Page([]int64{1, 2, 3}, 2, id)
	assert.Equal(t, []int64{1, 2}, full.Items)
	assert.True(t, full.HasMore)
	next, err := DecodeCursor(full.Cursor)
	require.NoError(t, err)
	assert.Equal(t, int64(2), next)

	last := Page([]int64{3}, 2, id)
	assert.Equal(t, []int64{3}, last.Items)
	assert.False(t, last.HasMore)
	assert.Empty(t, last.Cursor)

	unbounded := Page([]int64{1, 2, 3}, 0, id)
	assert.Len(t, unbounded.Items, 3)
}
