package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"IPOPulse/internal/domain/errs"
	"IPOPulse/internal/domain/models"
	"IPOPulse/internal/domain/repository"
)

// FileStorage keeps one JSON document per key under dir/namespace/key.json.
// Writes go to a temp file in the target directory and are renamed into
// place, so readers observe either the old or the new document.
type FileStorage struct {
	dir    string
	source string
	now    func() time.Time
}

func NewFileStorage(dir, source string) (repository.Storage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &FileStorage{dir: dir, source: source, now: time.Now}, nil
}

func (s *FileStorage) path(namespace, key string) string {
	return filepath.Join(s.dir, namespace, filepath.FromSlash(key)+".json")
}

func (s *FileStorage) Save(ctx context.Context, namespace, key string, payload interface{}) error {
	const op = "storage.file.Save"
	if err := validateKey(op, namespace, key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	doc, err := newDocument(s.source, payload, s.now())
	if err != nil {
		return errs.E(errs.KindInvalid, op, err)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("%s: encode document: %w", op, err)
	}

	target := s.path(namespace, key)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("%s: mkdir: %w", op, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".tmp-*")
	if err != nil {
		return fmt.Errorf("%s: create temp: %w", op, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%s: write: %w", op, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("%s: sync: %w", op, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%s: close: %w", op, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		return fmt.Errorf("%s: rename: %w", op, err)
	}
	return nil
}

func (s *FileStorage) Load(ctx context.Context, namespace, key string, maxAge time.Duration) (*models.Document, error) {
	const op = "storage.file.Load"
	if err := validateKey(op, namespace, key); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path(namespace, key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errs.Newf(errs.KindNotFound, op, "%s/%s", namespace, key)
		}
		return nil, fmt.Errorf("%s: read: %w", op, err)
	}

	var doc models.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errs.E(errs.KindMalformed, op, err)
	}
	if expired(&doc, maxAge, s.now()) {
		return nil, errs.Newf(errs.KindNotFound, op, "%s/%s older than %s", namespace, key, maxAge)
	}
	return &doc, nil
}
