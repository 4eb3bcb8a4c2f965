// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/AleutianAI/interopscan/pkg/logging"
	"github.com/AleutianAI/interopscan/services/interop/config"
	"github.com/AleutianAI/interopscan/services/interop/decl"
	"github.com/AleutianAI/interopscan/services/interop/engine"
	"github.com/AleutianAI/interopscan/services/interop/index"
	"github.com/AleutianAI/interopscan/services/interop/storage"
	"github.com/AleutianAI/interopscan/services/interop/telemetry"
)

var errNoUniverse = errors.New("--universe is required")

// session holds what lives for the whole invocation: configuration,
// logger and telemetry.
type session struct {
	cfg      *config.Config
	logger   *logging.Logger
	shutdown func(context.Context) error
}

func (a *app) openSession(ctx context.Context) (*session, error) {
	if a.flags.universe == "" {
		return nil, errNoUniverse
	}
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	format := logging.FormatAuto
	if cfg.Logging.JSON {
		format = logging.FormatJSON
	}
	logger := logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Logging.Dir,
		Service: "interopscan",
		Format:  format,
		Output:  a.stderr,
	})

	shutdown, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName:    "interopscan",
		ServiceVersion: version,
		Traces:         cfg.Telemetry.Traces,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Metrics:        cfg.Telemetry.Metrics,
		MetricsFile:    cfg.Telemetry.MetricsFile,
		Output:         a.stderr,
	})
	if err != nil {
		logger.Close()
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	return &session{cfg: cfg, logger: logger, shutdown: shutdown}, nil
}

// loadConfig reads the config file and applies the logging flag overrides.
func (a *app) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(a.flags.configPath, a.flags.envFile)
	if err != nil {
		return nil, err
	}
	if a.flags.logLevel != "" {
		cfg.Logging.Level = a.flags.logLevel
	}
	if a.flags.jsonLogs {
		cfg.Logging.JSON = true
	}
	return cfg, nil
}

// reload replaces the session's config with a fresh read. Logging and
// telemetry keep the settings they were opened with.
func (s *session) reload(a *app) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	s.cfg = cfg
	return nil
}

func (s *session) close(ctx context.Context) error {
	err := s.shutdown(ctx)
	if cerr := s.logger.Close(); cerr != nil {
		err = errors.Join(err, cerr)
	}
	return err
}

// analyze loads the universe and runs every pass over it.
func (s *session) analyze(ctx context.Context, universePath string) (*engine.Results, error) {
	logger := s.logger.Slog()
	data, err := os.ReadFile(universePath)
	if err != nil {
		return nil, fmt.Errorf("reading universe: %w", err)
	}
	u, err := decl.Load(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", universePath, err)
	}
	idx, err := index.New(u, index.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	special, err := s.cfg.SpecialCasesYAML()
	if err != nil {
		return nil, err
	}
	store, err := engine.OpenStore(s.cfg.Cache, logger)
	if err != nil {
		return nil, err
	}
	if store != nil {
		defer func() {
			if err := store.Close(); err != nil {
				logger.Warn("closing result cache", slog.String("error", err.Error()))
			}
		}()
	}

	return engine.Analyze(ctx, idx, engine.Options{
		SpecialCases: s.cfg.SpecialCases,
		Store:        store,
		Fingerprint:  storage.Fingerprint(data, special),
		Logger:       logger,
	})
}

// withSession opens a session, runs fn and always closes the session.
func (a *app) withSession(ctx context.Context, fn func(*session) error) (err error) {
	s, err := a.openSession(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.close(context.WithoutCancel(ctx)); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()
	return fn(s)
}
