// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

type tomlFile struct {
	Server []tomlServer `toml:"server"`
}

type tomlServer struct {
	Port   int            `toml:"port"`
	Engine string         `toml:"engine"`
	Store  string         `toml:"store"`
	Bucket string         `toml:"bucket"`
	Routes map[string]any `toml:"routes"`
}

// ParseTOML parses a TOML configuration document. Servers are declared as
// [[server]] array tables with a [server.routes] table each.
func ParseTOML(data []byte) (*Config, error) {
	var raw tomlFile
	md, err := toml.Decode(string(data), &raw)
	if err != nil {
		return nil, fmt.Errorf("parse toml: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			// Route values are free-form.
			if len(k) > 2 && k[0] == "server" && k[1] == "routes" {
				continue
			}
			keys = append(keys, k.String())
		}
		if len(keys) > 0 {
			return nil, fmt.Errorf("parse toml: unknown keys: %s", strings.Join(keys, ", "))
		}
	}

	order := routeOrder(md, len(raw.Server))
	cfg := &Config{Servers: make([]*Server, 0, len(raw.Server))}
	for i, s := range raw.Server {
		entries := make([]routeEntry, 0, len(s.Routes))
		seen := make(map[string]bool, len(s.Routes))
		for _, name := range order[i] {
			if source, ok := s.Routes[name]; ok && !seen[name] {
				entries = append(entries, routeEntry{name: name, source: source})
				seen[name] = true
			}
		}
		// Anything the metadata did not place goes last, sorted.
		rest := make([]string, 0)
		for name := range s.Routes {
			if !seen[name] {
				rest = append(rest, name)
			}
		}
		sort.Strings(rest)
		for _, name := range rest {
			entries = append(entries, routeEntry{name: name, source: s.Routes[name]})
		}
		routes, err := buildRoutes(entries)
		if err != nil {
			return nil, fmt.Errorf("servers[%d]: %w", i, err)
		}
		cfg.Servers = append(cfg.Servers, &Server{
			Port:   s.Port,
			Engine: s.Engine,
			Store:  s.Store,
			Bucket: s.Bucket,
			Routes: routes,
		})
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// routeOrder recovers the document order of route names per server. Decoded
// TOML tables are Go maps, so the order is read from the metadata keys: each
// [[server]] header opens the next server.
func routeOrder(md toml.MetaData, servers int) [][]string {
	order := make([][]string, servers)
	current := -1
	for _, key := range md.Keys() {
		switch {
		case len(key) == 1 && key[0] == "server":
			current++
		case len(key) == 3 && key[0] == "server" && key[1] == "routes":
			if current >= 0 && current < servers {
				order[current] = append(order[current], key[2])
			}
		}
	}
	return order
}
