// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// FileExt is the extension of result files.
const FileExt = ".results"

var tracer = otel.Tracer("interopscan.storage")

// FileStore keeps one result file per pass in a directory.
//
// Thread Safety: Safe for concurrent use across different passes. Writes to
// the same pass race only on which complete file wins.
type FileStore struct {
	dir string
}

// NewFileStore returns a store rooted at dir, creating it if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("storage: directory must not be empty")
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("storage: create %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the store directory.
func (s *FileStore) Dir() string { return s.dir }

// Path returns the file that holds pass's results.
func (s *FileStore) Path(pass string) string {
	return filepath.Join(s.dir, pass+FileExt)
}

// Load reads the snapshot for pass.
func (s *FileStore) Load(ctx context.Context, pass string) (*Snapshot, error) {
	_, span := tracer.Start(ctx, "storage.FileStore.Load",
		trace.WithAttributes(attribute.String("pass", pass)))
	defer span.End()

	if !validPassName.MatchString(pass) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPassName, pass)
	}
	data, err := os.ReadFile(s.Path(pass))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("storage: read %s: %w", pass, err)
	}
	snap, err := Unmarshal(data)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return snap, nil
}

// Save writes the snapshot atomically: temp file, fsync, rename.
func (s *FileStore) Save(ctx context.Context, snap *Snapshot) error {
	_, span := tracer.Start(ctx, "storage.FileStore.Save",
		trace.WithAttributes(
			attribute.String("pass", snap.Pass),
			attribute.Int("lines", len(snap.Lines)),
		))
	defer span.End()

	data, err := snap.Marshal()
	if err != nil {
		return err
	}
	if err := writeAtomic(s.Path(snap.Pass), data); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// Close is a no-op.
func (s *FileStore) Close() error { return nil }

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".results-*.tmp")
	if err != nil {
		return fmt.Errorf("storage: create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("storage: write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("storage: sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("storage: rename %s: %w", path, err)
	}
	success = true
	return nil
}
