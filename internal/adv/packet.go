// Package adv owns the advertising side of the peripheral: the AD payload
// codec, advertising parameters and the advertising state machine that
// sequences payload configuration and (re)starts advertising.
package adv

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/chaz8081/gatt-peripheral/internal/gatt"
)

// MaxPayloadLen is the maximum allowed advertising and scan response
// payload length (legacy advertising PDU).
const MaxPayloadLen = 31

// ErrPayloadTooLong is the error returned when an advertising or scan
// response payload is too long.
var ErrPayloadTooLong = errors.New("adv: max payload length is 31")

// advertising data field types
const (
	TypeFlags            = 0x01 // Flags
	TypeSomeUUID16       = 0x02 // Incomplete List of 16-bit Service Class UUIDs
	TypeAllUUID16        = 0x03 // Complete List of 16-bit Service Class UUIDs
	TypeSomeUUID32       = 0x04 // Incomplete List of 32-bit Service Class UUIDs
	TypeAllUUID32        = 0x05 // Complete List of 32-bit Service Class UUIDs
	TypeSomeUUID128      = 0x06 // Incomplete List of 128-bit Service Class UUIDs
	TypeAllUUID128       = 0x07 // Complete List of 128-bit Service Class UUIDs
	TypeShortName        = 0x08 // Shortened Local Name
	TypeCompleteName     = 0x09 // Complete Local Name
	TypeTxPower          = 0x0A // Tx Power Level
	TypeClassOfDevice    = 0x0D // Class of Device
	TypeSlaveConnInt     = 0x12 // Slave Connection Interval Range
	TypeServiceSol16     = 0x14 // List of 16-bit Service Solicitation UUIDs
	TypeServiceSol128    = 0x15 // List of 128-bit Service Solicitation UUIDs
	TypeServiceData16    = 0x16 // Service Data - 16-bit UUID
	TypeAppearance       = 0x19 // Appearance
	TypeAdvInterval      = 0x1A // Advertising Interval
	TypeLERole           = 0x1C // LE Role
	TypeServiceData32    = 0x20 // Service Data - 32-bit UUID
	TypeServiceData128   = 0x21 // Service Data - 128-bit UUID
	TypeManufacturerData = 0xFF // Manufacturer Specific Data
)

// flag bits
const (
	FlagLimitedDiscoverable = 1 << iota // LE Limited Discoverable Mode
	FlagGeneralDiscoverable             // LE General Discoverable Mode
	FlagLEOnly                          // BR/EDR Not Supported
	FlagBothController                  // Simultaneous LE and BR/EDR (Controller)
	FlagBothHost                        // Simultaneous LE and BR/EDR (Host)
)

// A Structure is one length-prefixed AD structure: len, type, data...
// where len counts the type byte plus the data.
type Structure struct {
	Type byte
	Data []byte
}

// Parse splits a payload into its AD structures. A zero length byte ends
// the payload (the remainder is padding). Parse fails on truncated
// structures and on payloads longer than MaxPayloadLen.
func Parse(b []byte) ([]Structure, error) {
	if len(b) > MaxPayloadLen {
		return nil, ErrPayloadTooLong
	}
	var ss []Structure
	for len(b) > 0 {
		l := int(b[0])
		if l == 0 {
			break
		}
		if len(b) < 1+l {
			return nil, fmt.Errorf("adv: truncated structure: length %d, %d bytes remaining", l, len(b)-1)
		}
		d := make([]byte, l-1)
		copy(d, b[2:1+l])
		ss = append(ss, Structure{Type: b[1], Data: d})
		b = b[1+l:]
	}
	return ss, nil
}

// Validate reports whether b is a well-formed payload.
func Validate(b []byte) error {
	_, err := Parse(b)
	return err
}

// Fields are the decoded contents of a payload. Zero values are absent
// fields: Flags of 0, nil TxPower and Appearance, empty names and lists.
type Fields struct {
	Flags            byte
	TxPower          *int8
	ServiceUUIDs     []gatt.UUID
	Appearance       *uint16
	LocalName        string
	ShortName        bool // LocalName was (or must be) sent shortened
	ManufacturerData []byte
}

// Int8 returns a pointer to v, for Fields.TxPower.
func Int8(v int8) *int8 { return &v }

// Uint16 returns a pointer to v, for Fields.Appearance.
func Uint16(v uint16) *uint16 { return &v }

// packet accumulates AD structures.
type packet struct {
	data []byte
}

// appendField appends a BLE advertising packet field.
func (p *packet) appendField(typ byte, data []byte) {
	// A field consists of len, typ, data.
	// Len is 1 byte for typ plus len(data).
	p.data = append(p.data, byte(len(data)+1))
	p.data = append(p.data, typ)
	p.data = append(p.data, data...)
}

// avail returns the room left for the data of one more field.
func (p *packet) avail() int {
	return MaxPayloadLen - len(p.data) - 2
}

// Encode serializes f in a fixed order: flags, TX power, service UUID
// lists (16, 32, then 128-bit), appearance, local name, manufacturer data.
// A name that does not fit is truncated and sent as a shortened name;
// Encode fails with ErrPayloadTooLong if anything else does not fit.
func (f Fields) Encode() ([]byte, error) {
	p := new(packet)
	if f.Flags != 0 {
		p.appendField(TypeFlags, []byte{f.Flags})
	}
	if f.TxPower != nil {
		p.appendField(TypeTxPower, []byte{byte(*f.TxPower)})
	}

	var u16, u32, u128 []byte
	for _, u := range f.ServiceUUIDs {
		switch u.Len() {
		case 2:
			u16 = append(u16, u.LE()...)
		case 4:
			u32 = append(u32, u.LE()...)
		case 16:
			u128 = append(u128, u.LE()...)
		default:
			return nil, fmt.Errorf("adv: invalid service uuid %s", u)
		}
	}
	for _, l := range []struct {
		typ  byte
		data []byte
	}{{TypeAllUUID16, u16}, {TypeAllUUID32, u32}, {TypeAllUUID128, u128}} {
		if len(l.data) == 0 {
			continue
		}
		if len(l.data) > p.avail() {
			return nil, ErrPayloadTooLong
		}
		p.appendField(l.typ, l.data)
	}

	if f.Appearance != nil {
		if p.avail() < 2 {
			return nil, ErrPayloadTooLong
		}
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], *f.Appearance)
		p.appendField(TypeAppearance, b[:])
	}

	// Manufacturer data is placed last but must not be squeezed out by
	// the name, so reserve its room first.
	reserve := 0
	if len(f.ManufacturerData) > 0 {
		reserve = len(f.ManufacturerData) + 2
	}

	if f.LocalName != "" {
		name := f.LocalName
		typ := byte(TypeCompleteName)
		if f.ShortName {
			typ = TypeShortName
		}
		if max := p.avail() - reserve; len(name) > max {
			// cut on a rune boundary
			for max > 0 && !utf8.RuneStart(name[max]) {
				max--
			}
			if max <= 0 {
				return nil, ErrPayloadTooLong
			}
			name = name[:max]
			typ = TypeShortName
		}
		p.appendField(typ, []byte(name))
	}

	if len(f.ManufacturerData) > 0 {
		if len(f.ManufacturerData) > p.avail() {
			return nil, ErrPayloadTooLong
		}
		p.appendField(TypeManufacturerData, f.ManufacturerData)
	}
	return p.data, nil
}

// Decode parses a payload into Fields. Unknown structures are skipped.
func Decode(b []byte) (Fields, error) {
	ss, err := Parse(b)
	if err != nil {
		return Fields{}, err
	}
	var f Fields
	for _, s := range ss {
		d := s.Data
		switch s.Type {
		case TypeFlags:
			if len(d) != 1 {
				return Fields{}, fmt.Errorf("adv: flags field has %d bytes", len(d))
			}
			f.Flags = d[0]
		case TypeTxPower:
			if len(d) != 1 {
				return Fields{}, fmt.Errorf("adv: tx power field has %d bytes", len(d))
			}
			f.TxPower = Int8(int8(d[0]))
		case TypeSomeUUID16, TypeAllUUID16:
			if f.ServiceUUIDs, err = uuidList(f.ServiceUUIDs, d, 2); err != nil {
				return Fields{}, err
			}
		case TypeSomeUUID32, TypeAllUUID32:
			if f.ServiceUUIDs, err = uuidList(f.ServiceUUIDs, d, 4); err != nil {
				return Fields{}, err
			}
		case TypeSomeUUID128, TypeAllUUID128:
			if f.ServiceUUIDs, err = uuidList(f.ServiceUUIDs, d, 16); err != nil {
				return Fields{}, err
			}
		case TypeAppearance:
			switch len(d) {
			case 1:
				f.Appearance = Uint16(uint16(d[0]))
			case 2:
				f.Appearance = Uint16(binary.LittleEndian.Uint16(d))
			default:
				return Fields{}, fmt.Errorf("adv: appearance field has %d bytes", len(d))
			}
		case TypeShortName:
			f.LocalName = string(d)
			f.ShortName = true
		case TypeCompleteName:
			f.LocalName = string(d)
			f.ShortName = false
		case TypeManufacturerData:
			f.ManufacturerData = d
		}
	}
	return f, nil
}

func uuidList(u []gatt.UUID, d []byte, w int) ([]gatt.UUID, error) {
	if len(d)%w != 0 {
		return nil, fmt.Errorf("adv: %d-bit uuid list has %d bytes", w*8, len(d))
	}
	for len(d) > 0 {
		id, err := gatt.UUIDFromLE(d[:w])
		if err != nil {
			return nil, err
		}
		u = append(u, id)
		d = d[w:]
	}
	return u, nil
}

// TypeName returns a human-readable name for an AD type.
func TypeName(t byte) string {
	switch t {
	case TypeFlags:
		return "flags"
	case TypeSomeUUID16, TypeAllUUID16:
		return "uuid16"
	case TypeSomeUUID32, TypeAllUUID32:
		return "uuid32"
	case TypeSomeUUID128, TypeAllUUID128:
		return "uuid128"
	case TypeShortName:
		return "short name"
	case TypeCompleteName:
		return "complete name"
	case TypeTxPower:
		return "tx power"
	case TypeAppearance:
		return "appearance"
	case TypeManufacturerData:
		return "manufacturer data"
	}
	return fmt.Sprintf("type 0x%02x", t)
}
