package channels

// xorHash folds a byte string into a single byte.
func xorHash(p []byte) uint8 {
	var h uint8
	for _, b := range p {
		h ^= b
	}
	return h
}

// GenerateHash returns the over-the-air identifier for a channel: the XOR fold of the
// resolved name combined with the XOR fold of the effective key. The result is in 0..255.
func GenerateHash(name string, key Key) int16 {
	h := xorHash([]byte(name))
	h ^= xorHash(key.Bytes)
	return int16(h)
}
