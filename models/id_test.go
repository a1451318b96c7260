package models

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHandle(t *testing.T) {
	h := NewHandle(7, 3)
	require.Equal(t, uint32(7), h.Index())
	require.Equal(t, uint32(3), h.Generation())
	require.Equal(t, "7:3", h.String())
}

func TestParseHandle(t *testing.T) {
	h, err := ParseHandle("7:3")
	require.NoError(t, err)
	require.Equal(t, NewHandle(7, 3), h)

	h, err = ParseHandle("4294967295:0")
	require.NoError(t, err)
	require.Equal(t, uint32(math.MaxUint32), h.Index())

	invalid := []string{
		"",
		"7",
		"3:1xyz",
		"x3:1",
		":1",
		"3:",
		"1:2:3",
		"-1:2",
		" 1:2",
		"4294967296:1",
	}

	for _, s := range invalid {
		t.Run(s, func(t *testing.T) {
			h, err := ParseHandle(s)
			require.Error(t, err)
			require.Equal(t, InvalidHandle, h)
		})
	}
}

func TestHandleGeneratorNew(t *testing.T) {
	t.Run("returns a new handle", func(t *testing.T) {
		var gen HandleGenerator

		for i := 1; i <= 5; i++ {
			h := gen.New()
			require.Equal(t, uint32(i), h.Index())
			require.Equal(t, uint32(1), h.Generation())
			require.NotEqual(t, InvalidHandle, h)
		}
	})

	t.Run("reuses a released slot with a new generation", func(t *testing.T) {
		var gen HandleGenerator

		var handles []Handle
		for i := 1; i <= 5; i++ {
			handles = append(handles, gen.New())
		}

		require.True(t, gen.Release(handles[1]))
		h := gen.New()
		require.Equal(t, uint32(2), h.Index())
		require.Equal(t, uint32(2), h.Generation())
		require.NotEqual(t, handles[1], h)
	})
}

func TestHandleGeneratorRelease(t *testing.T) {
	var gen HandleGenerator

	h := gen.New()
	require.True(t, gen.IsLive(h))

	require.True(t, gen.Release(h))
	require.False(t, gen.IsLive(h))
	require.False(t, gen.Release(h))

	require.False(t, gen.Release(InvalidHandle))
	require.False(t, gen.Release(NewHandle(42, 1)))
}
