//go:build cgo && !windows

// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package main

import (
	jsdispatch "github.com/buke/js-dispatch"
	"github.com/buke/js-dispatch/config"
	v8engine "github.com/buke/js-dispatch/engines/v8go"
	"github.com/buke/js-dispatch/store"
)

func init() {
	engineBuilders[config.EngineV8] = func(*store.Bucket) jsdispatch.EngineFactory {
		return v8engine.NewFactory()
	}
}
