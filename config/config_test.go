// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"

	jsdispatch "github.com/buke/js-dispatch"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
servers:
  - port: 8080
    store: data/kv.sqlite3
    routes:
      zeta: 42
      hello: |
        function () { return "hi"; }
      sum: 1 + 2
      tags: [a, b]
  - port: 8081
    engine: QuickJS
    bucket: shared
    routes:
      ratio: 0.5
      meta: {name: x, on: true}
`

const sampleTOML = `
[[server]]
port = 8080
store = "data/kv.sqlite3"

[server.routes]
zeta = 42
hello = 'function () { return "hi"; }'
sum = "1 + 2"
tags = ["a", "b"]

[[server]]
port = 8081
engine = "quickjs"
bucket = "shared"

[server.routes]
ratio = 0.5
meta = { name = "x", on = true }
`

func requireSample(t *testing.T, cfg *Config) {
	t.Helper()
	require.Len(t, cfg.Servers, 2)

	first := cfg.Servers[0]
	require.Equal(t, 8080, first.Port)
	require.Equal(t, EngineGoja, first.Engine)
	require.Equal(t, "port-8080", first.Bucket)
	require.Equal(t, []string{"zeta", "hello", "sum", "tags"}, first.Routes.Names())

	require.Equal(t, jsdispatch.SourceConstant, first.Routes[0].Source.Kind())
	require.Equal(t, jsdispatch.SourceFunction, first.Routes[1].Source.Kind())
	require.Equal(t, jsdispatch.SourceExpression, first.Routes[2].Source.Kind())
	require.Equal(t, "1 + 2", first.Routes[2].Source.Text())
	require.Equal(t, jsdispatch.SourceConstant, first.Routes[3].Source.Kind())

	second := cfg.Servers[1]
	require.Equal(t, 8081, second.Port)
	require.Equal(t, EngineQuickJS, second.Engine)
	require.Equal(t, "shared", second.Bucket)
	require.Empty(t, second.Store)
	require.Equal(t, []string{"ratio", "meta"}, second.Routes.Names())
}

func TestParseYAML(t *testing.T) {
	cfg, err := ParseYAML([]byte(sampleYAML))
	require.NoError(t, err)
	requireSample(t, cfg)
	require.Equal(t, "data/kv.sqlite3", cfg.Servers[0].Store)
}

func TestParseTOML(t *testing.T) {
	cfg, err := ParseTOML([]byte(sampleTOML))
	require.NoError(t, err)
	requireSample(t, cfg)
	require.Equal(t, "data/kv.sqlite3", cfg.Servers[0].Store)
}

func TestParseYAML_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"empty", "", "document is empty"},
		{"unknown field", "servers:\n  - port: 1\n    timeout: 5\n", "timeout"},
		{"routes not mapping", "servers:\n  - port: 1\n    routes: [a]\n", "routes must be a mapping"},
		{"no servers", "servers: []\n", "at least one server"},
		{"bad port", "servers:\n  - port: 70000\n", "out of range"},
		{"duplicate port", "servers:\n  - port: 9000\n  - port: 9000\n", "defined twice"},
		{"unknown engine", "servers:\n  - port: 9000\n    engine: lua\n", `unknown engine "lua"`},
		{"duplicate route", "servers:\n  - port: 9000\n    routes:\n      a: 1\n      a: 2\n", "duplicate route"},
		{"bad route name", "servers:\n  - port: 9000\n    routes:\n      a/b: 1\n", "invalid route name"},
		{"store without goja", "servers:\n  - port: 9000\n    engine: v8\n    store: kv.db\n", "store requires the goja engine"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseYAML([]byte(tt.doc))
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseTOML_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"syntax", "[[server]\n", "parse toml"},
		{"unknown key", "[[server]]\nport = 1\ntimeout = 5\n", "unknown keys: server.timeout"},
		{"no servers", "", "at least one server"},
		{"datetime route", "[[server]]\nport = 9000\n[server.routes]\nwhen = 1979-05-27T07:32:00Z\n", `route "when"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTOML([]byte(tt.doc))
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidationError(t *testing.T) {
	_, err := ParseYAML([]byte("servers:\n  - port: 0\n    engine: lua\n"))
	require.Error(t, err)
	require.True(t, IsValidationError(err))
	verr := err.(*ValidationError)
	require.Len(t, verr.Issues, 2)

	require.Equal(t, "config: invalid configuration", (&ValidationError{}).Error())
	require.False(t, IsValidationError(os.ErrNotExist))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "servers.yml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(sampleYAML), 0644))
	cfg, err := Load(yamlPath)
	require.NoError(t, err)
	require.Equal(t, yamlPath, cfg.Path)
	requireSample(t, cfg)
	// Relative store paths resolve against the config directory.
	require.Equal(t, filepath.Join(dir, "data", "kv.sqlite3"), cfg.Servers[0].Store)

	tomlPath := filepath.Join(dir, "servers.toml")
	require.NoError(t, os.WriteFile(tomlPath, []byte(sampleTOML), 0644))
	cfg, err = Load(tomlPath)
	require.NoError(t, err)
	requireSample(t, cfg)
	require.Equal(t, filepath.Join(dir, "data", "kv.sqlite3"), cfg.Servers[0].Store)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load("")
	require.Error(t, err)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)

	jsonPath := filepath.Join(dir, "servers.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte("{}"), 0644))
	_, err = Load(jsonPath)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported file extension")

	badPath := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(badPath, []byte("servers: [\n"), 0644))
	_, err = Load(badPath)
	require.Error(t, err)
	require.Contains(t, err.Error(), badPath)
}
