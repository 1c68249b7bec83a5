package common

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateRandByteArray(t *testing.T) {
	size := 32
	data1 := GenerateRandByteArray(size)
	data2 := GenerateRandByteArray(size)
	require.Len(t, data1, size)
	require.Len(t, data2, size)
	require.NotEqual(t, data1, data2)
}

func TestMakeRandHexString(t *testing.T) {
	s1, err := MakeRandHexString(16)
	require.NoError(t, err)
	require.Len(t, s1, 32)

	s2, err := MakeRandHexString(16)
	require.NoError(t, err)
	require.NotEqual(t, s1, s2)
}

func TestWipeByteArray(t *testing.T) {
	b := []byte{1, 2, 3}
	WipeByteArray(b)
	require.Equal(t, []byte{0, 0, 0}, b)

	// nil must not panic
	WipeByteArray(nil)
}
