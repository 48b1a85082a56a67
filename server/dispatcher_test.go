// Copyright 2025 momentics@gmail.com
// Licensed under the Apache License, Version 2.0.

package server

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-socket/api"
	"github.com/momentics/hioload-socket/internal/session"
)

type fakeSession struct {
	sent      []string
	connected bool
	current   string
	prev      string
	items     *session.Items
}

func newFakeSession() *fakeSession {
	return &fakeSession{connected: true, items: session.NewItems()}
}

func (f *fakeSession) ID() string { return "fake" }
func (f *fakeSession) IdentityKey() string { return "fake" }
func (f *fakeSession) LocalAddr() net.Addr { return nil }
func (f *fakeSession) RemoteAddr() net.Addr { return nil }
func (f *fakeSession) StartTime() time.Time { return time.Time{} }
func (f *fakeSession) LastActiveTime() time.Time { return time.Time{} }
func (f *fakeSession) Status() api.SessionStatus { return api.StatusHealthy }
func (f *fakeSession) SecureMode() api.SecureMode { return api.SecureNone }
func (f *fakeSession) CurrentCommand() string { return f.current }
func (f *fakeSession) PrevCommand() string { return f.prev }
func (f *fakeSession) Items() api.ItemBag { return f.items }
func (f *fakeSession) Send(b []byte) error { f.sent = append(f.sent, string(b)); return nil }
func (f *fakeSession) SendString(s string) error { f.sent = append(f.sent, s); return nil }
func (f *fakeSession) Close(api.CloseReason) { f.connected = false }
func (f *fakeSession) SetNextFilter(api.ReceiveFilter) {}
func (f *fakeSession) Connected() bool { return f.connected }
func (f *fakeSession) setCurrentCommand(name string) { f.current = name }
func (f *fakeSession) setPrevCommand(name string) { f.prev = name }

type recordingFilter struct {
	name   string
	log    *[]string
	cancel bool
	close  bool
}

func (r recordingFilter) OnCommandExecuting(ctx *api.CommandContext) {
	*r.log = append(*r.log, r.name+">")
	if r.cancel {
		ctx.Cancel = true
	}
	if r.close {
		ctx.Session.Close(api.CloseServerClosing)
	}
}

func (r recordingFilter) OnCommandExecuted(ctx *api.CommandContext) {
	*r.log = append(*r.log, "<"+r.name)
}

func TestDispatchIsCaseInsensitive(t *testing.T) {
	d := NewDispatcher()
	d.RegisterFunc("Echo", func(s api.Session, p api.Package) error {
		return s.SendString(p.(*api.StringPackage).Body)
	})

	s := newFakeSession()
	require.NoError(t, d.Dispatch(s, &api.StringPackage{Name: "ECHO", Body: "hi"}))
	require.NoError(t, d.Dispatch(s, &api.StringPackage{Name: "echo", Body: "there"}))
	assert.Equal(t, []string{"hi", "there"}, s.sent)

	_, ok := d.Lookup("eCHo")
	assert.True(t, ok)
	assert.Equal(t, []string{"Echo"}, d.Commands())
}

func TestDispatchUnknownCommand(t *testing.T) {
	d := NewDispatcher()
	s := newFakeSession()
	require.NoError(t, d.Dispatch(s, &api.StringPackage{Name: "NOPE"}))
	assert.Equal(t, []string{"Unknown command: NOPE"}, s.sent)

	d.OnUnknownCommand(func(s api.Session, p api.Package) { _ = s.SendString("? " + p.Key()) })
	require.NoError(t, d.Dispatch(s, &api.StringPackage{Name: "NOPE"}))
	assert.Equal(t, "? NOPE", s.sent[1])
}

func TestDispatchTracksCommandsEvenOnPanic(t *testing.T) {
	d := NewDispatcher()
	d.RegisterFunc("FIRST", func(api.Session, api.Package) error { return nil })
	d.RegisterFunc("BOOM", func(s api.Session, _ api.Package) error {
		assert.Equal(t, "BOOM", s.CurrentCommand())
		assert.Equal(t, "FIRST", s.PrevCommand())
		panic("boom")
	})

	s := newFakeSession()
	require.NoError(t, d.Dispatch(s, &api.StringPackage{Name: "FIRST"}))
	assert.PanicsWithValue(t, "boom", func() {
		_ = d.Dispatch(s, &api.StringPackage{Name: "BOOM"})
	}, "dispatcher must not swallow handler panics")
	assert.Equal(t, "BOOM", s.CurrentCommand())
	assert.Equal(t, "BOOM", s.PrevCommand())
}

func TestDispatchFilterChain(t *testing.T) {
	var log []string
	d := NewDispatcher()
	d.Use(recordingFilter{name: "g", log: &log})
	d.RegisterFiltered("RUN", api.CommandFunc(func(api.Session, api.Package) error {
		log = append(log, "run")
		return errors.New("failed")
	}), recordingFilter{name: "c", log: &log})

	err := d.Dispatch(newFakeSession(), &api.StringPackage{Name: "RUN"})
	assert.EqualError(t, err, "failed")
	assert.Equal(t, []string{"g>", "c>", "run", "<c", "<g"}, log)
}

func TestDispatchSkipsHandlerWhenCancelledOrClosed(t *testing.T) {
	ran := false
	handler := api.CommandFunc(func(api.Session, api.Package) error { ran = true; return nil })

	var log []string
	d := NewDispatcher()
	d.RegisterFiltered("CANCEL", handler, recordingFilter{name: "x", log: &log, cancel: true})
	d.RegisterFiltered("CLOSE", handler, recordingFilter{name: "y", log: &log, close: true})

	require.NoError(t, d.Dispatch(newFakeSession(), &api.StringPackage{Name: "CANCEL"}))
	s := newFakeSession()
	require.NoError(t, d.Dispatch(s, &api.StringPackage{Name: "CLOSE"}))
	assert.False(t, ran)
	assert.False(t, s.Connected())
	assert.Equal(t, []string{"x>", "<x", "y>", "<y"}, log)
}
