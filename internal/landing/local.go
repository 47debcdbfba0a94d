package landing

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// LocalStore serves landed files from a directory tree laid out as
// <root>/<dataset>/<file>.
type LocalStore struct {
	root string
}

// NewLocalStore creates a store rooted at dir.
func NewLocalStore(dir string) *LocalStore {
	return &LocalStore{root: dir}
}

func (s *LocalStore) ListNewObjects(ctx context.Context, dataset string, since time.Time) ([]Object, error) {
	dir := filepath.Join(s.root, dataset)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list landing directory %s: %w", dir, err)
	}

	var objects []Object
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", entry.Name(), err)
		}
		if !info.ModTime().After(since) {
			continue
		}
		objects = append(objects, Object{
			Dataset:      dataset,
			Key:          entry.Name(),
			Size:         info.Size(),
			LastModified: info.ModTime(),
		})
	}

	sort.Slice(objects, func(i, j int) bool {
		return objects[i].LastModified.Before(objects[j].LastModified)
	})
	return objects, nil
}

func (s *LocalStore) Read(ctx context.Context, obj Object) (io.ReadCloser, error) {
	path := filepath.Join(s.root, obj.Dataset, obj.Key)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open landed file %s: %w", path, err)
	}
	return f, nil
}
