// Package mesh frames and unframes over-the-air packets. It is the glue between the radio
// and the channel selector: transmit arms the outgoing channel key and stamps its hash into
// the header, receive finds the channel whose key turns the payload into a valid Data message.
package mesh
