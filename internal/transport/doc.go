// Package transport
// Author: momentics <momentics@gmail.com>
//
// Socket engines behind the server: a stream listener with sync
// (goroutine per session) and async (shared executor, pooled buffers, queued
// sends) session modes, and a datagram listener that synthesizes sessions
// from endpoints or payload keys. The application side plugs in through Host
// and Handler.
package transport
