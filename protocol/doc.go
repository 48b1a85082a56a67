// Package protocol
// Author: momentics <momentics@gmail.com>
//
// Receive filters framing socket byte streams into packages:
//   - terminator and begin/end mark framing with match progress kept across reads
//   - splitter-count, fixed-size and fixed-header framing
//   - HTTP header plus Content-Length body through a chained body filter
//   - session-keyed UDP datagrams
//
// Every filter buffers the incomplete package it is working on, yields at most
// one package per call and is reset after each package.
package protocol
