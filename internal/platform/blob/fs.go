package blob

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Filesystem implements Store on the local filesystem. Keys map to relative
// paths under the root; a `.meta` sidecar carries the content type. Not safe
// for concurrent writers beyond per-file creation, which is all the evidence
// flow needs.
type Filesystem struct {
	root string
}

// NewFilesystem returns a filesystem-backed store rooted at path, creating
// the root if needed.
func NewFilesystem(root string) (*Filesystem, error) {
	if root == "" {
		root = "./data/evidence"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Filesystem{root: root}, nil
}

func (s *Filesystem) Driver() Driver { return DriverFilesystem }

type fsMeta struct {
	ContentType string `json:"content_type,omitempty"`
	Size        int64  `json:"size"`
}

// sanitizeKey forbids traversal and absolute paths so keys cannot escape the
// root.
func sanitizeKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("empty key")
	}
	if strings.Contains(key, "..") || strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("invalid key %q", key)
	}
	clean := filepath.ToSlash(filepath.Clean(key))
	if strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return clean, nil
}

func (s *Filesystem) paths(key string) (dataPath, metaPath string, err error) {
	k, err := sanitizeKey(key)
	if err != nil {
		return "", "", err
	}
	dataPath = filepath.Join(s.root, k)
	return dataPath, dataPath + ".meta", nil
}

func (s *Filesystem) Put(_ context.Context, key string, r io.Reader, contentType string) (Info, error) {
	dataPath, metaPath, err := s.paths(key)
	if err != nil {
		return Info{}, err
	}
	if _, err := os.Stat(dataPath); err == nil {
		return Info{}, ErrExists
	}
	if err := os.MkdirAll(filepath.Dir(dataPath), 0o755); err != nil {
		return Info{}, err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dataPath), ".tmp-*")
	if err != nil {
		return Info{}, err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	size, err := io.Copy(tmp, r)
	if err != nil {
		_ = tmp.Close()
		return Info{}, err
	}
	if err := tmp.Close(); err != nil {
		return Info{}, err
	}
	if err := os.Rename(tmp.Name(), dataPath); err != nil {
		return Info{}, err
	}

	meta, _ := json.Marshal(fsMeta{ContentType: contentType, Size: size})
	if err := os.WriteFile(metaPath, meta, 0o644); err != nil {
		return Info{}, err
	}

	return s.Head(context.Background(), key)
}

func (s *Filesystem) Get(ctx context.Context, key string) (Info, io.ReadCloser, error) {
	info, err := s.Head(ctx, key)
	if err != nil {
		return Info{}, nil, err
	}
	dataPath, _, err := s.paths(key)
	if err != nil {
		return Info{}, nil, err
	}
	f, err := os.Open(dataPath)
	if err != nil {
		return Info{}, nil, ErrNotFound
	}
	return info, f, nil
}

func (s *Filesystem) Head(_ context.Context, key string) (Info, error) {
	dataPath, metaPath, err := s.paths(key)
	if err != nil {
		return Info{}, err
	}
	stat, err := os.Stat(dataPath)
	if err != nil {
		return Info{}, ErrNotFound
	}

	var meta fsMeta
	if raw, err := os.ReadFile(metaPath); err == nil {
		_ = json.Unmarshal(raw, &meta)
	}

	return Info{
		Key:          key,
		Size:         stat.Size(),
		ContentType:  meta.ContentType,
		LastModified: stat.ModTime().UTC(),
	}, nil
}

func (s *Filesystem) Delete(_ context.Context, key string) (bool, error) {
	dataPath, metaPath, err := s.paths(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(dataPath); err != nil {
		return false, nil
	}
	if err := os.Remove(dataPath); err != nil {
		return false, err
	}
	_ = os.Remove(metaPath)
	return true, nil
}
