package feed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/readowl/realtime/pkg/errcode"
)

func TestCursorRoundTrip(t *testing.T) {
	original := Cursor{CreatedAt: 1724659200123, Id: 987654321}
	decoded, err := DecodeCursor(original.Encode())
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}

func TestDecodeCursorEmptyMeansFirstPage(t *testing.T) {
	cur, err := DecodeCursor("")
	require.NoError(t, err)
	assert.True(t, cur.IsZero())
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	for _, s := range []string{
		"!!!not-base64!!!",
		"aGVsbG8",          // decodes but has no separator
		"MTIzOmFiYw",       // "123:abc" non-numeric id
		"LTE6NQ",           // "-1:5" negative timestamp
		"MDow",             // "0:0" zero values
	} {
		_, err := DecodeCursor(s)
		assert.ErrorIs(t, err, errcode.ErrInvalidCursor, s)
	}
}
