package common

// WipeByteArray zeroes b. Nil is allowed.
func WipeByteArray(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
