package file

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// collection stores one JSON document per entity under root/name.
type collection[T any] struct {
	dir string
}

func newCollection[T any](root, name string) collection[T] {
	return collection[T]{dir: filepath.Join(root, name)}
}

func (c collection[T]) path(id string) string {
	return filepath.Join(c.dir, filepath.Base(filepath.Clean(id))+".json")
}

// read returns nil, nil when the document does not exist.
func (c collection[T]) read(id string) (*T, error) {
	body, err := os.ReadFile(c.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to read %s: %w", c.path(id), err)
	}

	var value T

	err = json.Unmarshal(body, &value)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", c.path(id), err)
	}

	return &value, nil
}

func (c collection[T]) write(id string, value *T) error {
	err := os.MkdirAll(c.dir, 0750)
	if err != nil {
		return fmt.Errorf("failed to create directory %s: %w", c.dir, err)
	}

	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", id, err)
	}

	return os.WriteFile(c.path(id), data, 0600)
}

func (c collection[T]) all() ([]*T, error) {
	entries, err := fs.Glob(os.DirFS(c.dir), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", c.dir, err)
	}

	values := make([]*T, 0, len(entries))

	for _, entry := range entries {
		value, err := c.read(strings.TrimSuffix(entry, ".json"))
		if err != nil {
			return nil, err
		}

		if value != nil {
			values = append(values, value)
		}
	}

	return values, nil
}

// remove reports whether a document was deleted.
func (c collection[T]) remove(id string) (bool, error) {
	err := os.Remove(c.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}

		return false, fmt.Errorf("failed to delete %s: %w", id, err)
	}

	return true, nil
}
