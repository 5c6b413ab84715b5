package genfiles

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	gen := New(dir, 3)

	paths, err := gen.Generate()
	require.NoError(t, err)
	require.Len(t, paths, 3)

	for i, path := range paths {
		assert.Equal(t, filepath.Join(dir, "file_"+string(rune('1'+i))+".bin"), path)

		stat, err := os.Stat(path)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, stat.Size(), int64(5*1024), "smallest size class is 5 KB")
	}
}

func TestRandomSizeWithinBounds(t *testing.T) {
	gen := New(t.TempDir(), 1)

	for i := 0; i < 1000; i++ {
		size := gen.randomSize()
		assert.GreaterOrEqual(t, size, int64(5*1024))
		assert.LessOrEqual(t, size, int64(100*1024*1024))
	}
}
