// Package pool
// Author: momentics <momentics@gmail.com>
//
// Pre-allocated receive slots for the asynchronous socket engine. A slot is
// taken when a connection is accepted and returned once its session closed
// and its read loop exited; sockets themselves are never pooled.
package pool
