// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	jsdispatch "github.com/buke/js-dispatch"
	"github.com/buke/js-dispatch/config"
	"github.com/buke/js-dispatch/store"
)

type appOptions struct {
	host            string
	queueSize       uint32
	shutdownTimeout time.Duration
}

// app owns the registry and the stores opened for one configuration.
type app struct {
	cfg      *config.Config
	registry *jsdispatch.Registry
	stores   map[string]*store.DB // By path; shared between servers
	logger   *slog.Logger
}

func newApp(path string, logger *slog.Logger, opts appOptions) (*app, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	defaultEngine, err := newEngineFactory(config.EngineGoja, nil)
	if err != nil {
		return nil, err
	}
	registry, err := jsdispatch.NewRegistry(
		jsdispatch.WithEngine(defaultEngine),
		jsdispatch.WithLogger(logger),
		jsdispatch.WithHost(opts.host),
		jsdispatch.WithQueueSize(opts.queueSize),
		jsdispatch.WithShutdownTimeout(opts.shutdownTimeout),
	)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:      cfg,
		registry: registry,
		stores:   make(map[string]*store.DB),
		logger:   logger,
	}, nil
}

// start starts every configured server in document order. The first
// failure is returned; servers already started stay up until close.
func (a *app) start() error {
	for _, s := range a.cfg.Servers {
		var bucket *store.Bucket
		if s.Store != "" {
			db, err := a.openStore(s.Store)
			if err != nil {
				return fmt.Errorf("server on port %d: %w", s.Port, err)
			}
			if bucket, err = db.Bucket(s.Bucket); err != nil {
				return fmt.Errorf("server on port %d: %w", s.Port, err)
			}
		}

		factory, err := newEngineFactory(s.Engine, bucket)
		if err != nil {
			return fmt.Errorf("server on port %d: %w", s.Port, err)
		}
		if err := a.registry.Start(s.Port, s.Routes, jsdispatch.WithServerEngine(factory)); err != nil {
			return fmt.Errorf("server on port %d: %w", s.Port, err)
		}
		a.logger.Info("Server configured",
			"port", s.Port,
			"engine", s.Engine,
			"routes", s.Routes.Names(),
			"store", s.Store)
	}
	return nil
}

func (a *app) openStore(path string) (*store.DB, error) {
	if db, ok := a.stores[path]; ok {
		return db, nil
	}
	db, err := store.Open(path)
	if err != nil {
		return nil, err
	}
	a.stores[path] = db
	return db, nil
}

// close stops all servers, then closes the stores they used.
func (a *app) close(ctx context.Context) error {
	err := a.registry.Shutdown(ctx)
	for path, db := range a.stores {
		if cerr := db.Close(); cerr != nil {
			a.logger.Error("Failed to close store",
				"path", path,
				"error", cerr)
			err = errors.Join(err, cerr)
		}
		delete(a.stores, path)
	}
	return err
}
