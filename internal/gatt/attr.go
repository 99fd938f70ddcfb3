package gatt

import "fmt"

// Perm is an attribute permission mask.
type Perm uint16

const (
	PermRead            Perm = 1 << 0
	PermReadEncrypted   Perm = 1 << 1
	PermReadEncMITM     Perm = 1 << 2
	PermWrite           Perm = 1 << 4
	PermWriteEncrypted  Perm = 1 << 5
	PermWriteEncMITM    Perm = 1 << 6
	PermWriteSigned     Perm = 1 << 7
	PermWriteSignedMITM Perm = 1 << 8
)

// Readable reports whether any read permission is set.
func (p Perm) Readable() bool { return p&(PermRead|PermReadEncrypted|PermReadEncMITM) != 0 }

// Writable reports whether any write permission is set.
func (p Perm) Writable() bool {
	return p&(PermWrite|PermWriteEncrypted|PermWriteEncMITM|PermWriteSigned|PermWriteSignedMITM) != 0
}

// Do not re-order the bit flags below; they follow the Bluetooth Core
// characteristic properties layout.

// Prop is a characteristic property bit field, as carried in the value of
// a characteristic declaration.
type Prop uint8

const (
	PropBroadcast Prop = 1 << iota
	PropRead
	PropWriteNR
	PropWrite
	PropNotify
	PropIndicate
	PropAuthSignedWrite
	PropExtended
)

// Kind classifies an attribute by its type UUID.
type Kind int

const (
	KindValue Kind = iota
	KindService
	KindCharacteristic
	KindInclude
	KindDescriptor
)

func (k Kind) String() string {
	switch k {
	case KindService:
		return "service"
	case KindCharacteristic:
		return "characteristic"
	case KindInclude:
		return "include"
	case KindDescriptor:
		return "descriptor"
	}
	return "value"
}

// An Attribute describes one entry of an attribute table: a service
// declaration, a characteristic declaration or a characteristic value.
// The current length is len(Value) and must never exceed MaxLen.
type Attribute struct {
	UUID   UUID
	Perm   Perm
	MaxLen int
	Value  []byte

	// AutoRsp makes the stack answer reads and acknowledge writes from the
	// stored value. When false the request is routed to the profile.
	AutoRsp bool
}

// Kind returns the attribute's kind, derived from its type UUID.
func (a Attribute) Kind() Kind {
	switch {
	case a.UUID.Equal(PrimaryServiceUUID), a.UUID.Equal(SecondaryServiceUUID):
		return KindService
	case a.UUID.Equal(CharacteristicUUID):
		return KindCharacteristic
	case a.UUID.Equal(IncludeUUID):
		return KindInclude
	case a.UUID.Equal(ClientCharacteristicConfigUUID), a.UUID.Equal(ServerCharacteristicConfigUUID):
		return KindDescriptor
	}
	return KindValue
}

// Len returns the current value length.
func (a Attribute) Len() int { return len(a.Value) }

// Validate checks that the attribute has a UUID and its value fits in MaxLen.
func (a Attribute) Validate() error {
	if a.UUID.IsZero() {
		return fmt.Errorf("gatt: attribute has no uuid")
	}
	if a.MaxLen < 0 {
		return fmt.Errorf("gatt: attribute %s: negative max length", a.UUID)
	}
	if len(a.Value) > a.MaxLen {
		return fmt.Errorf("gatt: attribute %s: length %d exceeds max %d", a.UUID, len(a.Value), a.MaxLen)
	}
	return nil
}

// Clone returns a copy of a that shares no memory with it.
func (a Attribute) Clone() Attribute {
	if a.Value != nil {
		v := make([]byte, len(a.Value))
		copy(v, a.Value)
		a.Value = v
	}
	return a
}

// CloneTable deep-copies an attribute table.
func CloneTable(tt []Attribute) []Attribute {
	if tt == nil {
		return nil
	}
	out := make([]Attribute, len(tt))
	for i, a := range tt {
		out[i] = a.Clone()
	}
	return out
}

// ServiceDecl returns a primary service declaration whose value is svc.
func ServiceDecl(svc UUID) Attribute {
	v := svc.LE()
	return Attribute{
		UUID:    PrimaryServiceUUID,
		Perm:    PermRead,
		MaxLen:  len(v),
		Value:   v,
		AutoRsp: true,
	}
}

// CharDecl returns a characteristic declaration carrying props.
func CharDecl(props Prop) Attribute {
	return Attribute{
		UUID:    CharacteristicUUID,
		Perm:    PermRead,
		MaxLen:  1,
		Value:   []byte{byte(props)},
		AutoRsp: true,
	}
}

// CharValue returns a characteristic value attribute with a zeroed buffer
// of maxLen bytes.
func CharValue(u UUID, perm Perm, maxLen int, autoRsp bool) Attribute {
	return Attribute{
		UUID:    u,
		Perm:    perm,
		MaxLen:  maxLen,
		Value:   make([]byte, maxLen),
		AutoRsp: autoRsp,
	}
}

// DefaultValueLen is the buffer size of the default characteristic value.
const DefaultValueLen = 20

// DefaultTable returns the three-record table exposed by the default
// profile: a primary service declaration for svc, a read/write
// characteristic declaration and a 20-byte Digital Output value.
// Each call returns fresh storage.
func DefaultTable(svc UUID) []Attribute {
	return []Attribute{
		ServiceDecl(svc),
		CharDecl(PropRead | PropWrite),
		CharValue(DigitalOutputUUID, PermRead|PermWrite, DefaultValueLen, true),
	}
}

// ServiceUUIDOf returns the service UUID carried by a service declaration.
func ServiceUUIDOf(decl Attribute) (UUID, error) {
	if decl.Kind() != KindService {
		return UUID{}, fmt.Errorf("gatt: %s is not a service declaration", decl.UUID)
	}
	return UUIDFromLE(decl.Value)
}
