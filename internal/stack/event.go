package stack

import (
	"fmt"

	"github.com/chaz8081/gatt-peripheral/internal/gatt"
)

// An Event is a completion or indication delivered by the stack.
type Event interface {
	Name() string
}

// Registered reports the outcome of RegisterApp.
type Registered struct {
	AppID  uint16
	Iface  gatt.Interface
	Status gatt.Status
}

// AttrTableCreated reports the outcome of CreateAttrTable. Handles holds one
// handle per submitted attribute, in order.
type AttrTableCreated struct {
	Iface       gatt.Interface
	Status      gatt.Status
	ServiceUUID gatt.UUID
	InstID      uint8
	Handles     []uint16
}

// ServiceStarted reports the outcome of StartService.
type ServiceStarted struct {
	Iface         gatt.Interface
	Status        gatt.Status
	ServiceHandle uint16
}

// Connected reports a new link from a central.
type Connected struct {
	Iface  gatt.Interface
	ConnID uint16
	Remote string
}

// Disconnected reports the loss of a link.
type Disconnected struct {
	Iface  gatt.Interface
	ConnID uint16
	Remote string
	Reason uint8
}

// Read is a read request from a central.
type Read struct {
	Iface   gatt.Interface
	ConnID  uint16
	TransID uint32
	Handle  uint16
	Offset  uint16
	IsLong  bool
	NeedRsp bool
}

// Write is a write request from a central.
type Write struct {
	Iface   gatt.Interface
	ConnID  uint16
	TransID uint32
	Handle  uint16
	Offset  uint16
	Value   []byte
	IsPrep  bool
	NeedRsp bool
}

// ExecWrite commits or cancels queued prepared writes.
type ExecWrite struct {
	Iface   gatt.Interface
	ConnID  uint16
	TransID uint32
	Commit  bool
}

// MTUChanged reports the MTU negotiated on a link.
type MTUChanged struct {
	Iface  gatt.Interface
	ConnID uint16
	MTU    uint16
}

// AdvDataSet completes ConfigAdvDataRaw.
type AdvDataSet struct{ Status gatt.Status }

// ScanRspSet completes ConfigScanRspDataRaw.
type ScanRspSet struct{ Status gatt.Status }

// AdvStarted completes StartAdvertising.
type AdvStarted struct{ Status gatt.Status }

// AdvStopped completes StopAdvertising.
type AdvStopped struct{ Status gatt.Status }

// ConnParamsUpdated reports new connection parameters. Intervals are in
// 1.25 ms units, the timeout in 10 ms units.
type ConnParamsUpdated struct {
	Remote   string
	Status   gatt.Status
	MinInt   uint16
	MaxInt   uint16
	Latency  uint16
	Interval uint16
	Timeout  uint16
}

// PacketLengthSet reports the data length negotiated on a link.
type PacketLengthSet struct {
	Status gatt.Status
	RxLen  uint16
	TxLen  uint16
}

// SecurityKind identifies a security manager indication.
type SecurityKind uint8

const (
	SecurityRequest SecurityKind = iota
	SecurityPasskeyNotify
	SecurityPasskeyRequest
	SecurityNumericCompare
	SecurityOOBRequest
	SecurityKeyExchange
	SecurityAuthComplete
)

var securityNames = [...]string{
	SecurityRequest:        "security request",
	SecurityPasskeyNotify:  "passkey notify",
	SecurityPasskeyRequest: "passkey request",
	SecurityNumericCompare: "numeric comparison",
	SecurityOOBRequest:     "oob request",
	SecurityKeyExchange:    "key exchange",
	SecurityAuthComplete:   "auth complete",
}

func (k SecurityKind) String() string {
	if int(k) < len(securityNames) {
		return securityNames[k]
	}
	return fmt.Sprintf("SecurityKind(%d)", uint8(k))
}

// Security is a security manager indication. It is observed, not handled.
type Security struct {
	Kind    SecurityKind
	Remote  string
	Passkey uint32
	Success bool
}

// Unknown is an event the control plane does not model.
type Unknown struct {
	Code int
}

func (Registered) Name() string        { return "register" }
func (AttrTableCreated) Name() string  { return "create attr table" }
func (ServiceStarted) Name() string    { return "start service" }
func (Connected) Name() string         { return "connect" }
func (Disconnected) Name() string      { return "disconnect" }
func (Read) Name() string              { return "read" }
func (Write) Name() string             { return "write" }
func (ExecWrite) Name() string         { return "exec write" }
func (MTUChanged) Name() string        { return "mtu" }
func (AdvDataSet) Name() string        { return "adv data set" }
func (ScanRspSet) Name() string        { return "scan rsp set" }
func (AdvStarted) Name() string        { return "adv start" }
func (AdvStopped) Name() string        { return "adv stop" }
func (ConnParamsUpdated) Name() string { return "conn params update" }
func (PacketLengthSet) Name() string   { return "packet length set" }
func (Security) Name() string          { return "security" }
func (e Unknown) Name() string         { return fmt.Sprintf("unknown(%d)", e.Code) }
