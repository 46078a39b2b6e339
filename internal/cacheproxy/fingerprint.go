package cacheproxy

// Fingerprint is the cache key: the raw request bytes received from the
// client, up to and including the header terminator. A Go string is an
// immutable byte sequence, so using it directly as a map key gives the
// byte-exact equality the cache requires without an intermediate hash that
// could hide a collision.
type Fingerprint string

// NewFingerprint copies raw into a Fingerprint. The caller's buffer is free
// to be reused or mutated afterward.
func NewFingerprint(raw []byte) Fingerprint {
	return Fingerprint(raw)
}

// Len reports the byte length of the fingerprint, used in entry-cost
// accounting.
func (f Fingerprint) Len() int {
	return len(f)
}
