package gatt

import (
	"errors"
	"fmt"
)

// Status is a completion status reported by the stack in an event, or
// returned to a central in a response. Values below 0x80 are ATT error
// codes; the rest are host-stack codes.
type Status uint8

const (
	StatusOK                  Status = 0x00
	StatusInvalidHandle       Status = 0x01
	StatusReadNotPermitted    Status = 0x02
	StatusWriteNotPermitted   Status = 0x03
	StatusInvalidPDU          Status = 0x04
	StatusInsufAuthentication Status = 0x05
	StatusRequestNotSupported Status = 0x06
	StatusInvalidOffset       Status = 0x07
	StatusInsufAuthorization  Status = 0x08
	StatusPrepareQueueFull    Status = 0x09
	StatusNotFound            Status = 0x0a
	StatusNotLong             Status = 0x0b
	StatusInsufKeySize        Status = 0x0c
	StatusInvalidAttrLen      Status = 0x0d
	StatusUnlikely            Status = 0x0e
	StatusInsufEncryption     Status = 0x0f
	StatusUnsupportedGrpType  Status = 0x10
	StatusInsufResource       Status = 0x11

	StatusNoResources   Status = 0x80
	StatusInternalError Status = 0x81
	StatusWrongState    Status = 0x82
	StatusDBFull        Status = 0x83
	StatusBusy          Status = 0x84
	StatusGenericError  Status = 0x85
	StatusIllegalParam  Status = 0x87
)

var statusNames = map[Status]string{
	StatusOK:                  "ok",
	StatusInvalidHandle:       "invalid handle",
	StatusReadNotPermitted:    "read not permitted",
	StatusWriteNotPermitted:   "write not permitted",
	StatusInvalidPDU:          "invalid pdu",
	StatusInsufAuthentication: "insufficient authentication",
	StatusRequestNotSupported: "request not supported",
	StatusInvalidOffset:       "invalid offset",
	StatusInsufAuthorization:  "insufficient authorization",
	StatusPrepareQueueFull:    "prepare queue full",
	StatusNotFound:            "attribute not found",
	StatusNotLong:             "attribute not long",
	StatusInsufKeySize:        "insufficient key size",
	StatusInvalidAttrLen:      "invalid attribute value length",
	StatusUnlikely:            "unlikely error",
	StatusInsufEncryption:     "insufficient encryption",
	StatusUnsupportedGrpType:  "unsupported group type",
	StatusInsufResource:       "insufficient resources",
	StatusNoResources:         "no resources",
	StatusInternalError:       "internal error",
	StatusWrongState:          "wrong state",
	StatusDBFull:              "database full",
	StatusBusy:                "busy",
	StatusGenericError:        "error",
	StatusIllegalParam:        "illegal parameter",
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("status(0x%02x)", uint8(s))
}

// OK reports whether s is StatusOK.
func (s Status) OK() bool { return s == StatusOK }

// ErrStackRejected is matched (via errors.Is) by every error describing a
// request the stack refused, either synchronously or in a completion event.
var ErrStackRejected = errors.New("stack rejected request")

// A StatusError reports a non-success status for a stack operation.
type StatusError struct {
	Op     string
	Status Status
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gatt: %s: %s", e.Op, e.Status)
}

func (e *StatusError) Is(target error) bool { return target == ErrStackRejected }

// Rejected returns a *StatusError for op, or nil when s is StatusOK.
func Rejected(op string, s Status) error {
	if s.OK() {
		return nil
	}
	return &StatusError{Op: op, Status: s}
}

// Interface identifies a registered application on the stack. It is
// assigned by the stack in the registration event.
type Interface uint8

// InterfaceNone marks a profile whose registration has not been confirmed.
const InterfaceNone Interface = 0xff
