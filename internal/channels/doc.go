// Package channels implements the node's channel table and the crypto selection that sits on top of it.
//
// A node owns at most MaxChannels channels. Each one binds a pre-shared key and a name to a role
// (primary, secondary or disabled). Packets on the air carry only an 8-bit hash of name and key,
// so the receive path hands that hash to a Selector, which walks the table for the slot that
// produced it and arms the crypto engine with that slot's key.
//
// The Table is the single owner of channel state. It is created once at boot from a Persister
// (or InitDefaults when nothing valid is stored), mutated only through its methods, and written
// back after every change. Callers always receive copies.
package channels
