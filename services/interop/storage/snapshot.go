// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package storage persists pass result sets between runs.
//
// A result set is stored as a Snapshot: a small header followed by the
// pass's result lines. The header carries the format version, the pass
// name, a fingerprint of the inputs that produced the lines, and a checksum
// of the body. Readers treat any header mismatch as "nothing cached".
//
// Two backends exist: FileStore writes one text file per pass (these files
// double as the run's output for downstream generators), and BadgerStore
// keeps snapshots in an embedded key-value store.
package storage

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/zeebo/xxh3"
	"golang.org/x/mod/semver"
)

// FormatVersion is the snapshot format version (semver). Snapshots with a
// different major version are rejected.
const FormatVersion = "v1.0.0"

const magic = "interopscan-results"

// validPassName restricts pass names to characters safe in file names and keys.
var validPassName = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

var (
	// ErrNotFound indicates nothing is stored for the pass.
	ErrNotFound = errors.New("storage: no stored results")

	// ErrCorrupt indicates a snapshot failed to parse or verify.
	ErrCorrupt = errors.New("storage: snapshot corrupt")

	// ErrVersionMismatch indicates an incompatible snapshot format.
	ErrVersionMismatch = errors.New("storage: snapshot version mismatch")

	// ErrInvalidPassName indicates a pass name unusable as a key.
	ErrInvalidPassName = errors.New("storage: invalid pass name")
)

// Store loads and saves snapshots.
type Store interface {
	// Load returns the snapshot for pass, or ErrNotFound.
	Load(ctx context.Context, pass string) (*Snapshot, error)

	// Save replaces the snapshot for snap.Pass.
	Save(ctx context.Context, snap *Snapshot) error

	// Close releases the backend.
	Close() error
}

// Snapshot is one persisted result set.
type Snapshot struct {
	Pass        string
	Version     string
	Fingerprint string
	Lines       []string
}

// NewSnapshot returns a snapshot at the current format version.
func NewSnapshot(pass, fingerprint string, lines []string) *Snapshot {
	return &Snapshot{
		Pass:        pass,
		Version:     FormatVersion,
		Fingerprint: fingerprint,
		Lines:       lines,
	}
}

// Marshal renders the snapshot as text.
func (s *Snapshot) Marshal() ([]byte, error) {
	if !validPassName.MatchString(s.Pass) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPassName, s.Pass)
	}
	body := s.body()

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# %s %s\n", magic, s.version())
	fmt.Fprintf(&buf, "# pass: %s\n", s.Pass)
	fmt.Fprintf(&buf, "# fingerprint: %s\n", s.Fingerprint)
	fmt.Fprintf(&buf, "# checksum: %s\n", checksum(body))
	buf.Write(body)
	return buf.Bytes(), nil
}

func (s *Snapshot) version() string {
	if s.Version == "" {
		return FormatVersion
	}
	return s.Version
}

func (s *Snapshot) body() []byte {
	var buf bytes.Buffer
	for _, line := range s.Lines {
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// Unmarshal parses and verifies a snapshot.
//
// Description:
//
//	Reads the header, rejects incompatible versions, and verifies the body
//	checksum. Unknown header keys are ignored.
//
// Outputs:
//
//	*Snapshot - The parsed snapshot.
//	error - ErrCorrupt or ErrVersionMismatch.
func Unmarshal(data []byte) (*Snapshot, error) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	if !sc.Scan() {
		return nil, fmt.Errorf("%w: empty snapshot", ErrCorrupt)
	}
	first := strings.Fields(strings.TrimPrefix(sc.Text(), "#"))
	if len(first) != 2 || first[0] != magic {
		return nil, fmt.Errorf("%w: missing %s header", ErrCorrupt, magic)
	}
	snap := &Snapshot{Version: first[1]}
	if !Compatible(snap.Version) {
		return nil, fmt.Errorf("%w: %s (want %s)", ErrVersionMismatch, snap.Version, semver.Major(FormatVersion))
	}

	var sum string
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "# ") {
			snap.Lines = append(snap.Lines, line)
			break
		}
		key, value, ok := strings.Cut(strings.TrimPrefix(line, "# "), ": ")
		if !ok {
			return nil, fmt.Errorf("%w: bad header line %q", ErrCorrupt, line)
		}
		switch key {
		case "pass":
			snap.Pass = value
		case "fingerprint":
			snap.Fingerprint = value
		case "checksum":
			sum = value
		}
	}
	for sc.Scan() {
		snap.Lines = append(snap.Lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	if snap.Pass == "" {
		return nil, fmt.Errorf("%w: missing pass name", ErrCorrupt)
	}
	if got := checksum(snap.body()); sum != got {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}
	return snap, nil
}

// Compatible reports whether a snapshot version can be read.
func Compatible(version string) bool {
	return semver.IsValid(version) && semver.Major(version) == semver.Major(FormatVersion)
}

func checksum(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// Fingerprint hashes the inputs of a run. Each part is length-prefixed so
// that moving bytes between parts changes the result.
func Fingerprint(parts ...[]byte) string {
	h := xxh3.New()
	var size [8]byte
	for _, p := range parts {
		binary.LittleEndian.PutUint64(size[:], uint64(len(p)))
		h.Write(size[:])
		h.Write(p)
	}
	return fmt.Sprintf("%016x", h.Sum64())
}
