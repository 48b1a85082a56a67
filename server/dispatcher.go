// File: server/dispatcher.go
// Package server
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"strings"
	"sync"

	"github.com/momentics/hioload-socket/api"
	"github.com/momentics/hioload-socket/control"
)

type commandEntry struct {
	name    string
	handler api.CommandHandler
	filters []api.CommandFilter
}

// commandState is implemented by sessions that track the running command.
type commandState interface {
	setCurrentCommand(name string)
	setPrevCommand(name string)
}

// Dispatcher resolves packages to command handlers by case-insensitive name.
// The table is meant to be filled before the server starts; lookups take a
// read lock only.
type Dispatcher struct {
	mu       sync.RWMutex
	commands map[string]*commandEntry
	global   []api.CommandFilter
	unknown  func(s api.Session, pkg api.Package)

	metrics *control.Metrics
	server  string
}

// NewDispatcher creates an empty dispatcher that answers unknown commands
// with "Unknown command: <name>".
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		commands: make(map[string]*commandEntry),
		unknown:  defaultUnknownCommand,
	}
}

func defaultUnknownCommand(s api.Session, pkg api.Package) {
	_ = s.SendString("Unknown command: " + pkg.Key())
}

// Register binds name to h, replacing an earlier registration.
func (d *Dispatcher) Register(name string, h api.CommandHandler) {
	d.RegisterFiltered(name, h)
}

// RegisterFunc is Register for plain functions.
func (d *Dispatcher) RegisterFunc(name string, fn func(s api.Session, pkg api.Package) error) {
	d.RegisterFiltered(name, api.CommandFunc(fn))
}

// RegisterFiltered binds name to h with filters that run only around h,
// after the global filters.
func (d *Dispatcher) RegisterFiltered(name string, h api.CommandHandler, filters ...api.CommandFilter) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.commands[strings.ToLower(name)] = &commandEntry{name: name, handler: h, filters: filters}
}

// Use appends filters that run around every command.
func (d *Dispatcher) Use(filters ...api.CommandFilter) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.global = append(d.global, filters...)
}

// OnUnknownCommand replaces the unknown command reply.
func (d *Dispatcher) OnUnknownCommand(fn func(s api.Session, pkg api.Package)) {
	if fn == nil {
		fn = defaultUnknownCommand
	}
	d.mu.Lock()
	d.unknown = fn
	d.mu.Unlock()
}

// Lookup returns the handler registered for name.
func (d *Dispatcher) Lookup(name string) (api.CommandHandler, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.commands[strings.ToLower(name)]
	if !ok {
		return nil, false
	}
	return e.handler, true
}

// Commands returns the registered command names.
func (d *Dispatcher) Commands() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.commands))
	for _, e := range d.commands {
		names = append(names, e.name)
	}
	return names
}

// Dispatch executes pkg on s. Handler errors and panics are not recovered
// here; they belong to the session receive loop.
func (d *Dispatcher) Dispatch(s api.Session, pkg api.Package) error {
	name := pkg.Key()
	d.mu.RLock()
	e, ok := d.commands[strings.ToLower(name)]
	unknown := d.unknown
	global := d.global
	d.mu.RUnlock()

	if !ok {
		d.metrics.UnknownCommand(d.server)
		unknown(s, pkg)
		return nil
	}

	if cs, ok := s.(commandState); ok {
		cs.setCurrentCommand(name)
		defer cs.setPrevCommand(name)
	}

	filters := global
	if len(e.filters) > 0 {
		filters = append(append([]api.CommandFilter(nil), global...), e.filters...)
	}
	ctx := &api.CommandContext{Session: s, Package: pkg, Name: e.name, Values: map[string]any{}}
	for _, f := range filters {
		f.OnCommandExecuting(ctx)
	}
	skipped := ctx.Cancel || !s.Connected()
	completed := skipped
	// Executed filters also run while a handler panic unwinds.
	defer func() {
		for i := len(filters) - 1; i >= 0; i-- {
			filters[i].OnCommandExecuted(ctx)
		}
		status := commandStatus(ctx.Err, skipped)
		if !completed {
			status = "panic"
		}
		d.metrics.Command(d.server, e.name, status)
	}()
	if !skipped {
		ctx.Err = e.handler.Execute(s, pkg)
		completed = true
	}
	return ctx.Err
}

func commandStatus(err error, skipped bool) string {
	switch {
	case skipped:
		return "skipped"
	case err != nil:
		return "error"
	default:
		return "ok"
	}
}
