package diskkv

import "encoding/binary"

// packValue appends a trailing 8-byte little-endian Unix-second expiry to
// value: TTL is encoded in-value as a trailing timestamp so expiry can be
// inspected without a separate read. expiresAtUnix == 0 means no expiry.
func packValue(value string, expiresAtUnix int64) []byte {
	out := make([]byte, len(value)+8)
	copy(out, value)
	binary.LittleEndian.PutUint64(out[len(value):], uint64(expiresAtUnix))
	return out
}

// unpackValue splits a packed value back into its payload and expiry.
func unpackValue(raw []byte) (value string, expiresAtUnix int64) {
	if len(raw) < 8 {
		return string(raw), 0
	}
	n := len(raw) - 8
	expiresAtUnix = int64(binary.LittleEndian.Uint64(raw[n:]))
	return string(raw[:n]), expiresAtUnix
}
