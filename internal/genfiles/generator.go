// Package genfiles produces random test files for exercising concurrent
// transfers.
package genfiles

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
)

// Generator writes numbered files of randomized size into a folder.
// Sizes fall into three classes: small (5-100 KB), medium (100 KB-10 MB)
// and large (10-100 MB).
type Generator struct {
	dir   string
	count int
	rng   *rand.Rand
}

// New creates a generator writing count files into dir
func New(dir string, count int) *Generator {
	return &Generator{
		dir:   dir,
		count: count,
		rng:   rand.New(rand.NewSource(rand.Int63())),
	}
}

// Generate creates the files and returns their paths. Files are extended to
// their target size rather than filled, so large files stay cheap to create.
func (g *Generator) Generate() ([]string, error) {
	if err := os.MkdirAll(g.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create folder %s: %w", g.dir, err)
	}

	bar := progressbar.Default(int64(g.count), "generating")
	paths := make([]string, 0, g.count)

	for i := 1; i <= g.count; i++ {
		path := filepath.Join(g.dir, fmt.Sprintf("file_%d.bin", i))
		size := g.randomSize()

		if err := createFileOfSize(path, size); err != nil {
			return nil, fmt.Errorf("failed to generate %s: %w", path, err)
		}

		paths = append(paths, path)
		bar.Add(1)
	}

	logrus.WithFields(logrus.Fields{
		"dir":   g.dir,
		"count": g.count,
	}).Info("All files generated")
	return paths, nil
}

// randomSize picks a size in bytes from one of three size classes.
func (g *Generator) randomSize() int64 {
	var sizeKB int64
	switch g.rng.Intn(3) {
	case 0: // small: 5 KB to 100 KB
		sizeKB = 5 + int64(g.rng.Intn(96))
	case 1: // medium: 100 KB to 10 MB
		sizeKB = 100 + int64(g.rng.Intn(10*1024-100))
	default: // large: 10 MB to 100 MB
		sizeKB = 10*1024 + int64(g.rng.Intn(90*1024))
	}
	return sizeKB * 1024
}

func createFileOfSize(path string, size int64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := f.Truncate(size); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
