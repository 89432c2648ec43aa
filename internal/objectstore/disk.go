package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Disk stores objects as files under a root directory.
type Disk struct {
	root string
}

func NewDisk(root string) (*Disk, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating object dir: %w", err)
	}
	return &Disk{root: root}, nil
}

func (d *Disk) Upload(ctx context.Context, name string, r io.Reader) (string, error) {
	path, err := d.resolve(name)
	if err != nil {
		return "", err
	}

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating object file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("writing object: %w", err)
	}
	return name, nil
}

func (d *Disk) Download(ctx context.Context, path string) ([]byte, error) {
	full, err := d.resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("reading object %s: %w", path, err)
	}
	return data, nil
}

func (d *Disk) Delete(ctx context.Context, paths []string) error {
	for _, p := range paths {
		full, err := d.resolve(p)
		if err != nil {
			return err
		}
		if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("deleting object %s: %w", p, err)
		}
	}
	return nil
}

// resolve joins name under the root and rejects anything that escapes it.
func (d *Disk) resolve(name string) (string, error) {
	if name == "" {
		return "", errors.New("empty object name")
	}
	full := filepath.Join(d.root, filepath.Clean("/"+name))
	if !strings.HasPrefix(full, d.root+string(filepath.Separator)) {
		return "", fmt.Errorf("object name escapes store root: %s", name)
	}
	return full, nil
}
