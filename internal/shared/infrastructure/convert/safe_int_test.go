package convert

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntToUint32(t *testing.T) {
	v, err := IntToUint32(5)
	require.NoError(t, err)
	assert.Equal(t, uint32(5), v)

	_, err = IntToUint32(-1)
	assert.ErrorContains(t, err, "integer overflow")

	_, err = IntToUint32(math.MaxUint32 + 1)
	assert.Error(t, err)
}

func TestIntToInt32(t *testing.T) {
	v, err := IntToInt32(10)
	require.NoError(t, err)
	assert.Equal(t, int32(10), v)

	_, err = IntToInt32(math.MaxInt32 + 1)
	assert.Error(t, err)
	_, err = IntToInt32(math.MinInt32 - 1)
	assert.Error(t, err)
}
