// Package profile holds the service profiles exposed by the server and the
// fixed-capacity registry that assigns their application identifiers.
package profile

import (
	"errors"
	"fmt"

	"github.com/chaz8081/gatt-peripheral/internal/gatt"
	"github.com/chaz8081/gatt-peripheral/internal/stack"
)

// State is the per-profile lifecycle state.
type State int

const (
	Unregistered State = iota
	Registered
	TableBuilt
	ServiceStarted
	Failed
)

func (s State) String() string {
	switch s {
	case Unregistered:
		return "unregistered"
	case Registered:
		return "registered"
	case TableBuilt:
		return "table-built"
	case ServiceStarted:
		return "service-started"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ServiceID identifies the service a profile exposes.
type ServiceID struct {
	IsPrimary  bool
	UUID       gatt.UUID
	InstanceID uint8
}

// Reply is a profile's answer to a read or write the stack did not answer
// itself. The zero Reply is success with an empty value.
type Reply struct {
	Status gatt.Status
	Value  []byte
}

// Callback receives the events routed to a profile. It runs on the server
// loop; the returned Reply is only used for reads and writes that need a
// response.
type Callback func(p *Profile, ev stack.Event) Reply

// Profile is one exposed service.
type Profile struct {
	AppID         uint16
	Name          string
	Iface         gatt.Interface
	ServiceID     ServiceID
	ServiceHandle uint16
	Perm          gatt.Perm
	Table         []gatt.Attribute
	Callback      Callback

	Handles gatt.HandleRange
	State   State
	Err     error // why the profile is Failed

	requested bool
}

// New returns a primary-service profile with the default three-record
// attribute table for svc.
func New(name string, svc gatt.UUID) *Profile {
	return &Profile{
		Name:      name,
		Iface:     gatt.InterfaceNone,
		ServiceID: ServiceID{IsPrimary: true, UUID: svc},
		Perm:      gatt.PermRead | gatt.PermWrite,
		Table:     gatt.DefaultTable(svc),
	}
}

// Validate checks the parts of a profile the caller provides.
func (p *Profile) Validate() error {
	if p.Name == "" {
		return errors.New("profile: name is required")
	}
	if p.ServiceID.UUID.IsZero() {
		return fmt.Errorf("profile %q: service uuid is required", p.Name)
	}
	if len(p.Table) == 0 {
		return fmt.Errorf("profile %q: attribute table is empty", p.Name)
	}
	for i, a := range p.Table {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("profile %q: attribute %d: %w", p.Name, i, err)
		}
	}
	return nil
}

// Clone returns a deep copy. The attribute table and its value buffers are
// not shared with p.
func (p *Profile) Clone() *Profile {
	cp := *p
	cp.Table = gatt.CloneTable(p.Table)
	return &cp
}

// Active reports whether the profile's service is running.
func (p *Profile) Active() bool { return p.State == ServiceStarted }

// Attribute returns the attribute at handle h.
func (p *Profile) Attribute(h uint16) (*gatt.Attribute, bool) {
	i, ok := p.Handles.Index(h)
	if !ok || i >= len(p.Table) {
		return nil, false
	}
	return &p.Table[i], true
}

// ErrTransition is returned when an event does not fit the profile state.
var ErrTransition = errors.New("profile: invalid state transition")

func (p *Profile) expect(s State, to State) error {
	if p.State != s {
		return fmt.Errorf("%w: %s -> %s from %s", ErrTransition, s, to, p.State)
	}
	return nil
}

// MarkRegistered records the interface assigned by the stack.
func (p *Profile) MarkRegistered(iface gatt.Interface) error {
	if err := p.expect(Unregistered, Registered); err != nil {
		return err
	}
	p.Iface = iface
	p.State = Registered
	return nil
}

// MarkTableBuilt records the handles of the attribute table. The first
// handle is the service handle.
func (p *Profile) MarkTableBuilt(r gatt.HandleRange) error {
	if err := p.expect(Registered, TableBuilt); err != nil {
		return err
	}
	p.Handles = r
	p.State = TableBuilt
	return nil
}

// MarkStarted records the running service handle.
func (p *Profile) MarkStarted(serviceHandle uint16) error {
	if err := p.expect(TableBuilt, ServiceStarted); err != nil {
		return err
	}
	p.ServiceHandle = serviceHandle
	p.State = ServiceStarted
	return nil
}

func (p *Profile) detach() {
	p.Iface = gatt.InterfaceNone
	p.ServiceHandle = 0
	p.Handles = gatt.HandleRange{}
	p.State = Unregistered
	p.Err = nil
	p.requested = false
}

// Fail leaves the profile registered but inactive.
func (p *Profile) Fail(err error) {
	p.State = Failed
	p.Err = err
}
