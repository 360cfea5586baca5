package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVarint_RoundTrip(t *testing.T) {
	cases := []uint64{0, 1, 63, 64, 16383, 16384, 1073741823, 1073741824, maxVarint8}

	for _, v := range cases {
		buf := AppendVarint(nil, v)
		got, err := ReadVarint(bytes.NewReader(buf))
		require.NoError(t, err)
		assert.Equal(t, v, got, "value %d", v)
	}
}

func TestVarint_LengthMatchesQUICShape(t *testing.T) {
	assert.Len(t, AppendVarint(nil, 0), 1)
	assert.Len(t, AppendVarint(nil, maxVarint1), 1)
	assert.Len(t, AppendVarint(nil, maxVarint1+1), 2)
	assert.Len(t, AppendVarint(nil, maxVarint2), 2)
	assert.Len(t, AppendVarint(nil, maxVarint2+1), 4)
	assert.Len(t, AppendVarint(nil, maxVarint4), 4)
	assert.Len(t, AppendVarint(nil, maxVarint4+1), 8)
}

func TestString_RoundTrip(t *testing.T) {
	buf := AppendString(nil, "live/video")
	got, err := ReadString(bytes.NewReader(buf))
	require.NoError(t, err)
	assert.Equal(t, "live/video", got)
}

func TestOptionalUint64_RoundTrip(t *testing.T) {
	var none *uint64
	buf := appendOptionalUint64(nil, none)
	got, err := readOptionalUint64(bytes.NewReader(buf))
	require.NoError(t, err)
	assert.Nil(t, got)

	v := uint64(42)
	buf = appendOptionalUint64(nil, &v)
	got, err = readOptionalUint64(bytes.NewReader(buf))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, v, *got)
}
