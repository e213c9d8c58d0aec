package gccphat

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRing(t *testing.T) {
	r := newRing(4)
	_, ok := r.at(0)
	require.False(t, ok)

	r.push([]float32{1, 2, 3})
	v, ok := r.at(2)
	require.True(t, ok)
	require.Equal(t, 3.0, v)

	r.push([]float32{4, 5, 6})
	_, ok = r.at(1)
	require.False(t, ok, "overwritten")
	v, ok = r.at(2)
	require.True(t, ok)
	require.Equal(t, 3.0, v)
	v, ok = r.at(5)
	require.True(t, ok)
	require.Equal(t, 6.0, v)
	_, ok = r.at(6)
	require.False(t, ok)
	_, ok = r.at(-1)
	require.False(t, ok)
}
