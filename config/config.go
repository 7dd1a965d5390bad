// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

// Package config loads server definitions from YAML or TOML files.
//
// A file lists servers, each with a port, an engine name, an optional KV
// store and an ordered mapping from route name to handler source. String
// sources are JavaScript (a function literal or an expression); any other
// value is served as a constant.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	jsdispatch "github.com/buke/js-dispatch"
	"github.com/buke/js-dispatch/store"
)

// Engine names accepted in configuration files.
const (
	EngineGoja    = "goja"
	EngineQuickJS = "quickjs"
	EngineV8      = "v8"
)

// Config is a parsed configuration file.
type Config struct {
	Path    string    // Absolute path of the source file, empty when parsed from memory
	Servers []*Server // In document order
}

// Server describes one server instance.
type Server struct {
	Port   int
	Engine string // One of the Engine* names; defaults to goja
	Store  string // SQLite file for the script KV store; empty disables it
	Bucket string // Store bucket; defaults to "port-<Port>"
	Routes jsdispatch.Routes
}

// ValidationError aggregates configuration problems.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return "config: invalid configuration"
	}
	var b strings.Builder
	b.WriteString("config validation failed:")
	for _, issue := range e.Issues {
		b.WriteString("\n- ")
		b.WriteString(issue)
	}
	return b.String()
}

// Load reads a configuration file, choosing the format by extension.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config: empty path")
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config: resolve %s: %w", path, err)
	}
	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", absPath, err)
	}

	var cfg *Config
	switch ext := strings.ToLower(filepath.Ext(absPath)); ext {
	case ".yaml", ".yml":
		cfg, err = ParseYAML(data)
	case ".toml":
		cfg, err = ParseTOML(data)
	default:
		return nil, fmt.Errorf("config: unsupported file extension %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", absPath, err)
	}
	cfg.Path = absPath
	for _, s := range cfg.Servers {
		if s.Store != "" && s.Store != store.MemoryPath && !filepath.IsAbs(s.Store) {
			s.Store = filepath.Join(filepath.Dir(absPath), s.Store)
		}
	}
	return cfg, nil
}

// routeEntry is one route as read from a file, before classification.
type routeEntry struct {
	name   string
	source any
}

func buildRoutes(entries []routeEntry) (jsdispatch.Routes, error) {
	routes := make(jsdispatch.Routes, 0, len(entries))
	for _, entry := range entries {
		src, err := jsdispatch.SourceOf(entry.source)
		if err != nil {
			return nil, fmt.Errorf("route %q: %w", entry.name, err)
		}
		routes = append(routes, jsdispatch.Route{Name: entry.name, Source: src})
	}
	return routes, nil
}

// normalize applies defaults and validates the whole configuration.
func (c *Config) normalize() error {
	var errs ValidationError
	if len(c.Servers) == 0 {
		errs.Issues = append(errs.Issues, "at least one server must be defined")
	}
	ports := make(map[int]bool, len(c.Servers))
	for i, s := range c.Servers {
		if s.Port < 1 || s.Port > 65535 {
			errs.Issues = append(errs.Issues, fmt.Sprintf("servers[%d]: port %d out of range", i, s.Port))
		} else if ports[s.Port] {
			errs.Issues = append(errs.Issues, fmt.Sprintf("servers[%d]: port %d defined twice", i, s.Port))
		}
		ports[s.Port] = true

		s.Engine = strings.ToLower(strings.TrimSpace(s.Engine))
		switch s.Engine {
		case "":
			s.Engine = EngineGoja
		case EngineGoja, EngineQuickJS, EngineV8:
		default:
			errs.Issues = append(errs.Issues, fmt.Sprintf("servers[%d]: unknown engine %q", i, s.Engine))
		}

		s.Store = strings.TrimSpace(s.Store)
		if s.Store != "" && s.Engine != EngineGoja {
			errs.Issues = append(errs.Issues, fmt.Sprintf("servers[%d]: store requires the %s engine", i, EngineGoja))
		}
		if s.Bucket == "" {
			s.Bucket = "port-" + strconv.Itoa(s.Port)
		}

		if err := s.Routes.Validate(); err != nil {
			errs.Issues = append(errs.Issues, fmt.Sprintf("servers[%d]: %v", i, err))
		}
	}
	if len(errs.Issues) > 0 {
		return &errs
	}
	return nil
}

// IsValidationError reports whether err carries configuration issues.
func IsValidationError(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}
