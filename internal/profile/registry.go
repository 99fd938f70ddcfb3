package profile

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/chaz8081/gatt-peripheral/internal/gatt"
)

// AppIDBase is the application identifier given to the first profile.
const AppIDBase uint16 = 0x55

// DefaultCapacity is the number of profiles a registry holds by default.
const DefaultCapacity = 5

// ErrCapacityExceeded is returned by Register when the registry is full.
var ErrCapacityExceeded = errors.New("profile: registry capacity exceeded")

// Registry is a bounded, append-only table of profiles. Identifiers are
// assigned sequentially and never reused.
//
// Registry is not safe for concurrent use; the server loop owns it.
type Registry struct {
	profiles []*Profile
	next     uint16
	current  *Profile
	log      *slog.Logger
}

// NewRegistry returns an empty registry holding up to capacity profiles.
// A capacity below one uses DefaultCapacity.
func NewRegistry(capacity int, log *slog.Logger) *Registry {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		profiles: make([]*Profile, 0, capacity),
		next:     AppIDBase,
		log:      log,
	}
}

// Register stores a private copy of p and returns its application
// identifier. The caller's profile is not modified.
func (r *Registry) Register(p *Profile) (uint16, error) {
	if p == nil {
		return 0, errors.New("profile: nil profile")
	}
	if len(r.profiles) == cap(r.profiles) {
		return 0, fmt.Errorf("%w: %d profiles", ErrCapacityExceeded, cap(r.profiles))
	}
	if err := p.Validate(); err != nil {
		return 0, err
	}

	cp := p.Clone()
	cp.AppID = r.next
	cp.detach()
	r.next++

	r.profiles = append(r.profiles, cp)
	r.current = cp
	r.log.Info("[REGISTRY] profile registered", "name", cp.Name, "app_id", cp.AppID, "count", len(r.profiles))
	return cp.AppID, nil
}

// FindByAppID returns the profile registered under id.
func (r *Registry) FindByAppID(id uint16) (*Profile, bool) {
	for _, p := range r.profiles {
		if p.AppID == id {
			return p, true
		}
	}
	return nil, false
}

// FindByInterface returns the profile the stack knows as iface.
func (r *Registry) FindByInterface(iface gatt.Interface) (*Profile, bool) {
	if iface == gatt.InterfaceNone {
		return nil, false
	}
	for _, p := range r.profiles {
		if p.Iface == iface {
			return p, true
		}
	}
	return nil, false
}

// FindByHandle returns the profile whose attribute table contains h.
func (r *Registry) FindByHandle(h uint16) (*Profile, bool) {
	for _, p := range r.profiles {
		if p.Handles.Contains(h) {
			return p, true
		}
	}
	return nil, false
}

// Pending returns the profiles whose stack registration has not been
// requested yet, in registration order.
func (r *Registry) Pending() []*Profile {
	var pp []*Profile
	for _, p := range r.profiles {
		if !p.requested {
			pp = append(pp, p)
		}
	}
	return pp
}

// Detach forgets everything the stack assigned to the registered profiles
// so that a later startup registers them again. Application identifiers
// are kept.
func (r *Registry) Detach() {
	for _, p := range r.profiles {
		p.detach()
	}
}

// SetRequested records that stack registration was requested for p.
func (r *Registry) SetRequested(p *Profile) { p.requested = true }

// All returns the registered profiles in registration order. The slice is
// a copy; the profiles are not.
func (r *Registry) All() []*Profile {
	return append([]*Profile(nil), r.profiles...)
}

// Len returns the number of registered profiles.
func (r *Registry) Len() int { return len(r.profiles) }

// Cap returns the registry capacity.
func (r *Registry) Cap() int { return cap(r.profiles) }

// Current returns the most recently registered profile, or nil.
func (r *Registry) Current() *Profile { return r.current }
