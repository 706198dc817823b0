// Package lora holds the read-only regulatory region and modem preset tables of the node.
//
// The channel table consumes these values for two things only: the human readable name of a
// channel that has no configured name, and the frequency slot written into the default channel.
// Nothing here selects or validates the radio configuration itself.
package lora
