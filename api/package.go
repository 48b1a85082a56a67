// File: api/package.go
// Package api
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package values produced by receive filters and consumed by the dispatcher.

package api

// Package is one parsed application-level unit. Key is never empty for a
// package returned by a receive filter.
type Package interface {
	Key() string
}

// StringPackage is a text package split into a key, the raw body and
// whitespace separated parameters.
type StringPackage struct {
	Name       string
	Body       string
	Parameters []string
}

// Key returns the command name.
func (p *StringPackage) Key() string { return p.Name }

// Param returns the i-th parameter or "" when absent.
func (p *StringPackage) Param(i int) string {
	if i < 0 || i >= len(p.Parameters) {
		return ""
	}
	return p.Parameters[i]
}

// BinaryPackage carries an opaque body.
type BinaryPackage struct {
	Name string
	Body []byte
}

// Key returns the command name.
func (p *BinaryPackage) Key() string { return p.Name }

// HeaderPackage carries a fixed header next to its body.
type HeaderPackage struct {
	Name   string
	Header []byte
	Body   []byte
}

// Key returns the command name.
func (p *HeaderPackage) Key() string { return p.Name }

// SessionKeyed is implemented by packages that carry the identity key of the
// session they belong to (UDP session-key protocols).
type SessionKeyed interface {
	Package
	SessionKey() string
}
