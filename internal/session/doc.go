// Package session
// Author: momentics <momentics@gmail.com>
//
// Session table primitives: the sharded live table mutated on accept and
// close, the immutable snapshot used for enumeration, and the item bag
// carried by every session.
package session
