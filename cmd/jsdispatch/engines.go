// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"sort"

	jsdispatch "github.com/buke/js-dispatch"
	"github.com/buke/js-dispatch/config"
	gojaengine "github.com/buke/js-dispatch/engines/goja"
	"github.com/buke/js-dispatch/store"
)

// engineBuilder creates the factory for one server. bucket is nil when the
// server has no store.
type engineBuilder func(bucket *store.Bucket) jsdispatch.EngineFactory

// engineBuilders maps configuration engine names to builders. Engines that
// need cgo register themselves from build-tagged files.
var engineBuilders = map[string]engineBuilder{
	config.EngineGoja: func(bucket *store.Bucket) jsdispatch.EngineFactory {
		opts := []jsdispatch.EngineOption{gojaengine.WithEnableConsole()}
		if bucket != nil {
			opts = append(opts, gojaengine.WithStore(bucket))
		}
		return gojaengine.NewFactory(opts...)
	},
}

func newEngineFactory(name string, bucket *store.Bucket) (jsdispatch.EngineFactory, error) {
	build, ok := engineBuilders[name]
	if !ok {
		return nil, fmt.Errorf("engine %q is not available in this build", name)
	}
	if bucket != nil && name != config.EngineGoja {
		return nil, fmt.Errorf("engine %q does not support a store", name)
	}
	return build(bucket), nil
}

func availableEngines() []string {
	names := make([]string, 0, len(engineBuilders))
	for name := range engineBuilders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
