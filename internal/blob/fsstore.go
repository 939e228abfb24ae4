package blob

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
)

// FSStore keeps thumbnails as plain files under a single directory,
// named by owner id so a re-download overwrites rather than leaks.
type FSStore struct {
	dir string
	hc  *http.Client
}

var _ Store = (*FSStore)(nil)

// NewFSStore creates the directory if needed and returns a store over it.
func NewFSStore(dir string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return &FSStore{dir: dir, hc: http.DefaultClient}, nil
}

func (s *FSStore) Store(ctx context.Context, ownerID, remoteURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, remoteURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := s.hc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch thumbnail: %s", resp.Status)
	}

	ext := path.Ext(remoteURL)
	if ext == "" || len(ext) > 5 {
		ext = ".img"
	}
	dst := filepath.Join(s.dir, ownerID+ext)

	f, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		_ = f.Close()
		_ = os.Remove(dst)
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return dst, nil
}

func (s *FSStore) Delete(localRef string) error {
	if localRef == "" {
		return nil
	}
	err := os.Remove(localRef)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *FSStore) Exists(localRef string) bool {
	if localRef == "" {
		return false
	}
	_, err := os.Stat(localRef)
	return err == nil
}
