// Package api
// Author: momentics <momentics@gmail.com>
//
// Command handler and command filter contracts.

package api

// CommandHandler executes one command against a session.
type CommandHandler interface {
	Execute(s Session, p Package) error
}

// CommandFunc adapts a plain function to CommandHandler.
type CommandFunc func(s Session, p Package) error

// Execute calls f.
func (f CommandFunc) Execute(s Session, p Package) error {
	return f(s, p)
}

// CommandContext is passed to command filters around one execution.
type CommandContext struct {
	Session Session
	Package Package
	Name    string
	// Cancel set by OnCommandExecuting skips the handler.
	Cancel bool
	// Err is the handler error, visible to OnCommandExecuted.
	Err error
	// Values lets filters pass state from executing to executed.
	Values map[string]any
}

// CommandFilter runs around command execution.
type CommandFilter interface {
	OnCommandExecuting(ctx *CommandContext)
	OnCommandExecuted(ctx *CommandContext)
}
