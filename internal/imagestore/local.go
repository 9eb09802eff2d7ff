package imagestore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

type localConfig struct {
	Dir       string `json:"dir"`
	PublicURL string `json:"public_url"`
}

type localStore struct {
	dir       string
	publicURL string
}

func init() {
	Register("local", createLocalStore)
}

func createLocalStore(args interface{}) (Store, error) {
	cfg := &localConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	if cfg.Dir == "" {
		return nil, fmt.Errorf("local image store dir is required")
	}
	return &localStore{dir: cfg.Dir, publicURL: cfg.PublicURL}, nil
}

func (s *localStore) Type() string {
	return "local"
}

func (s *localStore) URL(name, baseURL string) string {
	if s.publicURL != "" {
		return strings.TrimSuffix(s.publicURL, "/") + "/" + name
	}
	return strings.TrimSuffix(baseURL, "/") + "/images/" + name
}

func (s *localStore) Save(ctx context.Context, name string, r io.Reader) error {
	_ = ctx
	if err := validName(name); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	out, err := os.Create(filepath.Join(s.dir, name))
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, r)
	return err
}

func (s *localStore) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	_ = ctx
	if err := validName(name); err != nil {
		return nil, err
	}
	return os.Open(filepath.Join(s.dir, name))
}
