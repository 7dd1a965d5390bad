//go:build cgo

// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package main

import (
	jsdispatch "github.com/buke/js-dispatch"
	"github.com/buke/js-dispatch/config"
	quickjsengine "github.com/buke/js-dispatch/engines/quickjs-go"
	"github.com/buke/js-dispatch/store"
)

func init() {
	engineBuilders[config.EngineQuickJS] = func(*store.Bucket) jsdispatch.EngineFactory {
		return quickjsengine.NewFactory(quickjsengine.WithCanBlock(true))
	}
}
