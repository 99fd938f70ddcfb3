// Package gatt holds the attribute-level types shared by the profile
// registry, the stack adapters and the event dispatcher: UUIDs, permission
// masks, attribute descriptors, handle ranges and stack status codes.
package gatt

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// baseUUID is the Bluetooth Base UUID (0000xxxx-0000-1000-8000-00805F9B34FB)
// that 16- and 32-bit UUIDs are aliases into.
var baseUUID = uuid.MustParse("00000000-0000-1000-8000-00805f9b34fb")

// A UUID is a 16-, 32- or 128-bit Bluetooth UUID. The zero value is invalid.
// UUIDs are comparable and may be used as map keys.
type UUID struct {
	n int      // significant bytes: 2, 4 or 16
	b [16]byte // big-endian
}

// UUID16 returns a 16-bit UUID.
func UUID16(v uint16) UUID {
	u := UUID{n: 2}
	binary.BigEndian.PutUint16(u.b[:], v)
	return u
}

// UUID32 returns a 32-bit UUID.
func UUID32(v uint32) UUID {
	u := UUID{n: 4}
	binary.BigEndian.PutUint32(u.b[:], v)
	return u
}

// UUID128 returns a 128-bit UUID.
func UUID128(v uuid.UUID) UUID {
	return UUID{n: 16, b: v}
}

// ParseUUID parses a UUID. Four hex digits yield a 16-bit UUID, eight a
// 32-bit one; anything else is parsed as a 128-bit UUID with or without
// dashes. An optional 0x prefix is accepted for the short forms.
func ParseUUID(s string) (UUID, error) {
	t := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	switch len(t) {
	case 4:
		b, err := hex.DecodeString(t)
		if err != nil {
			return UUID{}, fmt.Errorf("gatt: invalid uuid %q: %w", s, err)
		}
		return UUID16(binary.BigEndian.Uint16(b)), nil
	case 8:
		b, err := hex.DecodeString(t)
		if err != nil {
			return UUID{}, fmt.Errorf("gatt: invalid uuid %q: %w", s, err)
		}
		return UUID32(binary.BigEndian.Uint32(b)), nil
	}
	v, err := uuid.Parse(s)
	if err != nil {
		return UUID{}, fmt.Errorf("gatt: invalid uuid %q: %w", s, err)
	}
	return UUID128(v), nil
}

// MustParseUUID parses a UUID or panics.
func MustParseUUID(s string) UUID {
	u, err := ParseUUID(s)
	if err != nil {
		panic(err)
	}
	return u
}

// UUIDFromLE builds a UUID from its little-endian wire form, as found in
// advertising payloads and attribute values.
func UUIDFromLE(b []byte) (UUID, error) {
	switch len(b) {
	case 2, 4, 16:
	default:
		return UUID{}, fmt.Errorf("gatt: invalid uuid length %d", len(b))
	}
	u := UUID{n: len(b)}
	for i := range b {
		u.b[i] = b[len(b)-1-i]
	}
	return u, nil
}

// Len returns the UUID length in bytes: 2, 4 or 16.
func (u UUID) Len() int { return u.n }

// IsZero reports whether u is the invalid zero UUID.
func (u UUID) IsZero() bool { return u.n == 0 }

// Bytes returns the big-endian representation.
func (u UUID) Bytes() []byte {
	b := make([]byte, u.n)
	copy(b, u.b[:u.n])
	return b
}

// LE returns the little-endian (wire) representation.
func (u UUID) LE() []byte {
	b := make([]byte, u.n)
	for i := 0; i < u.n; i++ {
		b[i] = u.b[u.n-1-i]
	}
	return b
}

// Uint16 returns the value of a 16-bit UUID, and false for longer ones.
func (u UUID) Uint16() (uint16, bool) {
	if u.n != 2 {
		return 0, false
	}
	return binary.BigEndian.Uint16(u.b[:]), true
}

// Full returns the 128-bit form, expanding short UUIDs with the Bluetooth
// Base UUID.
func (u UUID) Full() uuid.UUID {
	switch u.n {
	case 2:
		full := baseUUID
		copy(full[2:4], u.b[:2])
		return full
	case 4:
		full := baseUUID
		copy(full[0:4], u.b[:4])
		return full
	}
	return uuid.UUID(u.b)
}

// Equal reports whether u and v denote the same UUID, comparing short
// UUIDs against their 128-bit expansion.
func (u UUID) Equal(v UUID) bool {
	if u.n == v.n {
		return u == v
	}
	if u.IsZero() || v.IsZero() {
		return false
	}
	return u.Full() == v.Full()
}

func (u UUID) String() string {
	switch u.n {
	case 0:
		return "<invalid>"
	case 2, 4:
		return hex.EncodeToString(u.b[:u.n])
	}
	return uuid.UUID(u.b).String()
}
