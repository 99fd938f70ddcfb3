// Package stack defines the boundary between the control plane and the
// radio: the lifecycle of the controller and host stack, the requests the
// control plane issues, and the events the stack delivers in reply.
//
// Requests are asynchronous. A nil error from a request means the stack
// accepted it; the outcome arrives later as an Event posted to the Sink.
package stack

import (
	"github.com/chaz8081/gatt-peripheral/internal/adv"
	"github.com/chaz8081/gatt-peripheral/internal/gatt"
)

// Lifecycle is a collaborator brought up once at startup and torn down in
// reverse order on exit.
type Lifecycle interface {
	Init() error
	Enable() error
	Disable() error
	Deinit() error
}

// Sink receives stack events. Post must not block; implementations queue.
type Sink interface {
	Post(ev Event)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(ev Event)

func (f SinkFunc) Post(ev Event) { f(ev) }

// Stack is the host stack as seen by the control plane.
type Stack interface {
	Lifecycle
	adv.Radio
	gatt.TableCreator

	// SetEventSink installs the receiver of GAP and GATT server events.
	// It is called once, before any request.
	SetEventSink(s Sink)

	SetDeviceName(name string) error
	SetLocalMTU(mtu uint16) error

	// RegisterApp registers an application; the Registered event carries
	// the interface assigned to it.
	RegisterApp(appID uint16) error
	StartService(serviceHandle uint16) error
	SendResponse(r Response) error
}

// Response answers a read or write that was not auto-responded.
type Response struct {
	Iface   gatt.Interface
	ConnID  uint16
	TransID uint32
	Handle  uint16
	Status  gatt.Status
	Value   []byte
}
