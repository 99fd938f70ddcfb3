package gatt

// Assigned numbers from the Bluetooth specification.

var (
	GAPServiceUUID  = UUID16(0x1800)
	GATTServiceUUID = UUID16(0x1801)

	PrimaryServiceUUID   = UUID16(0x2800)
	SecondaryServiceUUID = UUID16(0x2801)
	IncludeUUID          = UUID16(0x2802)
	CharacteristicUUID   = UUID16(0x2803)

	ClientCharacteristicConfigUUID = UUID16(0x2902)
	ServerCharacteristicConfigUUID = UUID16(0x2903)

	DeviceNameUUID = UUID16(0x2A00)
	AppearanceUUID = UUID16(0x2A01)

	// DigitalOutputUUID is the characteristic exposed by the default table.
	DigitalOutputUUID = UUID16(0x2A57)
)

// Appearance values (GAP appearance characteristic / AD type 0x19).
const (
	AppearanceUnknown         uint16 = 0x0000
	AppearanceGenericPhone    uint16 = 0x0040
	AppearanceGenericComputer uint16 = 0x0080
	AppearanceGenericTag      uint16 = 0x0200
	AppearanceGenericSensor   uint16 = 0x0540
)

// DefaultMTU is the ATT MTU of a link before any exchange.
const DefaultMTU = 23

// MaxMTU is the largest local MTU the stack accepts.
const MaxMTU = 517
