// Package cryptoengine implements the channel cipher: AES-CTR keyed by the channel PSK,
// with a per-packet nonce built from the sender node number and packet id.
//
// The armed key is held in locked, guarded memory and wiped on re-arm and Close.
package cryptoengine
