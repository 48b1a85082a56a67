// Package api
// Author: momentics <momentics@gmail.com>
//
// Contracts shared by every layer of hioload-socket:
//   - Package values and the ReceiveFilter framing contract
//   - the Session view handed to command handlers
//   - close reasons, session status and secure modes
//   - command handlers and command filters
//   - sentinel and structured errors
package api
