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

	"github.com/dgraph-io/badger/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/interopscan/services/interop/storage/kv"
)

const keyPrefix = "results/"

// BadgerStore keeps snapshots in an embedded BadgerDB under "results/<pass>".
//
// Thread Safety: Safe for concurrent use.
type BadgerStore struct {
	db *kv.DB
}

// OpenBadgerStore opens the database described by cfg.
func OpenBadgerStore(cfg kv.Config) (*BadgerStore, error) {
	db, err := kv.Open(cfg)
	if err != nil {
		return nil, err
	}
	return &BadgerStore{db: db}, nil
}

// Load reads the snapshot for pass.
func (s *BadgerStore) Load(ctx context.Context, pass string) (*Snapshot, error) {
	ctx, span := tracer.Start(ctx, "storage.BadgerStore.Load",
		trace.WithAttributes(attribute.String("pass", pass)))
	defer span.End()

	if !validPassName.MatchString(pass) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPassName, pass)
	}

	var data []byte
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + pass))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("storage: load %s: %w", pass, err)
	}
	return Unmarshal(data)
}

// Save stores the snapshot, replacing any previous one.
func (s *BadgerStore) Save(ctx context.Context, snap *Snapshot) error {
	ctx, span := tracer.Start(ctx, "storage.BadgerStore.Save",
		trace.WithAttributes(attribute.String("pass", snap.Pass)))
	defer span.End()

	data, err := snap.Marshal()
	if err != nil {
		return err
	}
	err = s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+snap.Pass), data)
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("storage: save %s: %w", snap.Pass, err)
	}
	return nil
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
