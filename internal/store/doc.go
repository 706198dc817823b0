// Package store persists the channel table.
//
// The table is written as a protobuf ChannelFile message (wire compatible with the radio
// firmware) under a single key in a Badger database. Every save is one transaction, so a
// crash leaves either the old or the new file.
package store
