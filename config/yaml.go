// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

type yamlFile struct {
	Servers []yamlServer `yaml:"servers"`
}

type yamlServer struct {
	Port   int      `yaml:"port"`
	Engine string   `yaml:"engine"`
	Store  string   `yaml:"store"`
	Bucket string   `yaml:"bucket"`
	Routes routeMap `yaml:"routes"`
}

// routeMap keeps routes in document order.
type routeMap struct {
	items []routeEntry
}

func (rm *routeMap) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == 0 || (value.Kind == yaml.ScalarNode && value.Tag == "!!null") {
		rm.items = nil
		return nil
	}
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("routes must be a mapping")
	}
	items := make([]routeEntry, 0, len(value.Content)/2)
	for i := 0; i < len(value.Content); i += 2 {
		keyNode := value.Content[i]
		valueNode := value.Content[i+1]

		var key string
		if err := keyNode.Decode(&key); err != nil {
			return err
		}
		key = strings.TrimSpace(key)

		var source any
		if err := valueNode.Decode(&source); err != nil {
			return fmt.Errorf("route %q: %w", key, err)
		}
		items = append(items, routeEntry{name: key, source: source})
	}
	rm.items = items
	return nil
}

// ParseYAML parses a YAML configuration document.
func ParseYAML(data []byte) (*Config, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	var raw yamlFile
	if err := decoder.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("document is empty")
		}
		return nil, fmt.Errorf("parse yaml: %w", err)
	}

	cfg := &Config{Servers: make([]*Server, 0, len(raw.Servers))}
	for i, s := range raw.Servers {
		routes, err := buildRoutes(s.Routes.items)
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
