// Package control
// Author: momentics <momentics@gmail.com>
//
// Runtime observability for socket servers: Prometheus collectors for
// sessions, commands and idle sweeps, named debug probes, and the HTTP status
// endpoint serving both next to a health check.
package control
