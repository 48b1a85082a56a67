// File: internal/concurrency/doc.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Concurrency primitives for hioload-socket. The Executor is the shared pool
// on which the asynchronous engine runs receive completions, so that framing
// and command dispatch never occupy the goroutine blocked on socket I/O.
package concurrency
