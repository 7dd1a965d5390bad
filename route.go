// Copyright 2025 Brian Wang <wangbuke@gmail.com>
// SPDX-License-Identifier: Apache-2.0

package jsdispatch

import (
	"fmt"
	"strings"
	"unicode"
)

// SourceKind classifies a handler source.
type SourceKind int

const (
	SourceConstant   SourceKind = iota // A value returned unchanged on every call
	SourceInvocable                    // A Go function invoked on every call
	SourceFunction                     // JavaScript function literal, compiled once
	SourceExpression                   // JavaScript expression, evaluated once
)

// String returns the string representation of a SourceKind.
func (k SourceKind) String() string {
	switch k {
	case SourceConstant:
		return "constant"
	case SourceInvocable:
		return "invocable"
	case SourceFunction:
		return "function"
	case SourceExpression:
		return "expression"
	default:
		return "unknown"
	}
}

// HandlerSource describes how a route handler is produced. The variant is
// fixed when the source is constructed; nothing is re-parsed per request.
type HandlerSource struct {
	kind  SourceKind
	fn    HandlerFunc
	text  string
	value Value
}

// Func wraps a Go function as an invocable handler source.
func Func(fn func() (any, error)) HandlerSource {
	return HandlerSource{kind: SourceInvocable, fn: fn}
}

// Script classifies JavaScript source text. Text starting with the function
// keyword is compiled as a function; any other text is evaluated once as an
// expression whose value the route returns.
func Script(src string) HandlerSource {
	if isFunctionLiteral(src) {
		return HandlerSource{kind: SourceFunction, text: src}
	}
	return HandlerSource{kind: SourceExpression, text: src}
}

// Const wraps a value as a handler source.
func Const(v Value) HandlerSource {
	return HandlerSource{kind: SourceConstant, value: v}
}

// SourceOf classifies loosely typed configuration input: a HandlerSource is
// used as is, Go functions become invocables, strings are classified with
// Script, and any other data is converted with FromNative into a constant.
func SourceOf(x any) (HandlerSource, error) {
	switch src := x.(type) {
	case HandlerSource:
		return src, nil
	case HandlerFunc:
		return Func(src), nil
	case func() (any, error):
		return Func(src), nil
	case func() any:
		return Func(func() (any, error) { return src(), nil }), nil
	case string:
		return Script(src), nil
	}
	v, err := FromNative(x)
	if err != nil {
		return HandlerSource{}, err
	}
	return Const(v), nil
}

func (s HandlerSource) Kind() SourceKind { return s.kind }

// Text returns the script text of function and expression sources.
func (s HandlerSource) Text() string { return s.text }

func isFunctionLiteral(src string) bool {
	text := strings.TrimLeftFunc(src, unicode.IsSpace)
	if rest, ok := strings.CutPrefix(text, "async"); ok && rest != "" && unicode.IsSpace(rune(rest[0])) {
		text = strings.TrimLeftFunc(rest, unicode.IsSpace)
	}
	rest, ok := strings.CutPrefix(text, "function")
	if !ok || rest == "" {
		return false
	}
	c := rune(rest[0])
	return c == '(' || c == '*' || unicode.IsSpace(c)
}

// Route binds a name, served at GET /api/<name>, to a handler source.
type Route struct {
	Name   string
	Source HandlerSource
}

// Routes is an ordered route configuration.
type Routes []Route

// Names returns the route names in configuration order.
func (rs Routes) Names() []string {
	names := make([]string, len(rs))
	for i, r := range rs {
		names[i] = r.Name
	}
	return names
}

// Validate checks route names without compiling anything.
func (rs Routes) Validate() error {
	seen := make(map[string]struct{}, len(rs))
	for _, r := range rs {
		if r.Name == "" || r.Name == "." || r.Name == ".." || strings.ContainsAny(r.Name, "/?#") {
			return &CompileError{Route: r.Name, Err: ErrInvalidRouteName}
		}
		if _, dup := seen[r.Name]; dup {
			return &CompileError{Route: r.Name, Err: ErrDuplicateRoute}
		}
		seen[r.Name] = struct{}{}
	}
	return nil
}

// routeTable maps route names to compiled handlers. It belongs to exactly
// one worker.
type routeTable map[string]Handler

// buildRouteTable compiles every route with engine. The first failure is
// returned as a *CompileError and no table is produced.
func buildRouteTable(engine Engine, routes Routes) (routeTable, error) {
	if err := routes.Validate(); err != nil {
		return nil, err
	}
	table := make(routeTable, len(routes))
	for _, r := range routes {
		h, err := compileRoute(engine, r)
		if err != nil {
			return nil, &CompileError{Route: r.Name, Err: err}
		}
		table[r.Name] = h
	}
	return table, nil
}

func compileRoute(engine Engine, r Route) (Handler, error) {
	switch r.Source.kind {
	case SourceConstant:
		return constHandler{value: r.Source.value}, nil
	case SourceInvocable:
		if r.Source.fn == nil {
			return nil, fmt.Errorf("nil handler function")
		}
		return r.Source.fn, nil
	case SourceFunction:
		return engine.CompileFunction(r.Name, r.Source.text)
	case SourceExpression:
		v, err := engine.Evaluate(r.Name, r.Source.text)
		if err != nil {
			return nil, err
		}
		return constHandler{value: v}, nil
	}
	return nil, fmt.Errorf("unknown handler source kind %d", r.Source.kind)
}
