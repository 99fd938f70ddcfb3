//go:build !linux

package tinygo

import (
	"errors"
	"log/slog"

	"github.com/chaz8081/gatt-peripheral/internal/adv"
	"github.com/chaz8081/gatt-peripheral/internal/gatt"
	"github.com/chaz8081/gatt-peripheral/internal/stack"
)

// ErrUnsupported is returned by every request on platforms without a
// peripheral-capable backend.
var ErrUnsupported = errors.New("tinygo: gatt server is only supported on linux")

var _ stack.Stack = (*Stack)(nil)

// Stack is a stub on non-Linux platforms: Init fails, so the server never
// gets past startup.
type Stack struct{}

// New returns the stub stack.
func New(id string, log *slog.Logger) *Stack {
	if log == nil {
		log = slog.Default()
	}
	log.Warn("[STACK] gatt server is only supported on linux")
	return &Stack{}
}

func (*Stack) Init() error { return ErrUnsupported }
func (*Stack) Enable() error { return ErrUnsupported }
func (*Stack) Disable() error { return nil }
func (*Stack) Deinit() error { return nil }
func (*Stack) SetEventSink(stack.Sink) {}
func (*Stack) SetDeviceName(string) error { return ErrUnsupported }
func (*Stack) SetLocalMTU(uint16) error { return ErrUnsupported }
func (*Stack) ConfigAdvDataRaw([]byte) error { return ErrUnsupported }
func (*Stack) ConfigScanRspDataRaw([]byte) error { return ErrUnsupported }
func (*Stack) StartAdvertising(adv.Params) error { return ErrUnsupported }
func (*Stack) StopAdvertising() error { return ErrUnsupported }
func (*Stack) RegisterApp(uint16) error { return ErrUnsupported }
func (*Stack) CreateAttrTable(gatt.Interface, []gatt.Attribute, uint8) error { return ErrUnsupported }
func (*Stack) StartService(uint16) error { return ErrUnsupported }
func (*Stack) SendResponse(stack.Response) error { return ErrUnsupported }
