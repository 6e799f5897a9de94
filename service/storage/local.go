package storage

import (
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/xerrors"
)

type localService struct {
	folder string
}

// NewLocal keeps evidence files in a folder on local disk.
func NewLocal(folder string) IService {
	return &localService{
		folder: folder,
	}
}

func (svc *localService) StoreFile(name string, data []byte) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", xerrors.Errorf("invalid evidence file name %q", name)
	}

	if err := os.MkdirAll(svc.folder, 0o755); err != nil {
		return "", xerrors.Errorf("creating evidence folder: %w", err)
	}

	path := filepath.Join(svc.folder, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", xerrors.Errorf("writing evidence %s: %w", name, err)
	}
	return path, nil
}
