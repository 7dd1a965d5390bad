//go:build !windows

// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package v8engine

import (
	"fmt"

	jsdispatch "github.com/buke/js-dispatch"
)

// EngineOption holds specific configurations for the V8 engine.
type EngineOption struct {
	CustomBridge bool // Whether the default bridge script was replaced
}

// WithBridgeScript overrides the script that converts handler results.
// It must evaluate to a function taking one value and returning its JSON text.
func WithBridgeScript(script string) jsdispatch.EngineOption {
	return func(engine jsdispatch.Engine) error {
		e, ok := engine.(*Engine)
		if !ok {
			return fmt.Errorf("invalid engine type for WithBridgeScript")
		}
		if script == "" {
			return fmt.Errorf("bridge script cannot be empty")
		}
		e.BridgeScript = script
		e.Option.CustomBridge = true
		return nil
	}
}
