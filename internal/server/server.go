// Package server is the GATT server control plane. A Server owns the
// profile registry, the advertising state machine and the connection
// session, and mutates them only from its run loop: stack events and
// application calls are queued on one mailbox and handled in order.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/chaz8081/gatt-peripheral/internal/adv"
	"github.com/chaz8081/gatt-peripheral/internal/diag"
	"github.com/chaz8081/gatt-peripheral/internal/gatt"
	"github.com/chaz8081/gatt-peripheral/internal/profile"
	"github.com/chaz8081/gatt-peripheral/internal/stack"
)

var (
	// ErrLifecycle is returned by Init when a startup step fails.
	ErrLifecycle = errors.New("server: startup failed")
	// ErrInvalidState is returned for calls made in the wrong lifecycle
	// state, such as Deinit before Init.
	ErrInvalidState = errors.New("server: invalid state")
)

// DefaultLocalMTU is the MTU requested from the stack during startup.
const DefaultLocalMTU = 500

// DefaultProfileName names the profile registered by New.
const DefaultProfileName = "Default Profile"

// Options configures a Server.
type Options struct {
	DeviceName  string
	ServiceUUID gatt.UUID
	Bonding     bool // informational; security is not negotiated here
	MaxProfiles int
	LocalMTU    uint16
	Advertising adv.Config

	// DefaultProfile replaces the profile built from ServiceUUID.
	DefaultProfile *profile.Profile
}

// Validate checks the options.
func (o Options) Validate() error {
	if o.DeviceName == "" {
		return errors.New("server: device name is required")
	}
	if o.ServiceUUID.IsZero() && o.DefaultProfile == nil {
		return errors.New("server: service uuid is required")
	}
	if err := o.Advertising.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

// startup steps, in order; teardown walks them backwards
type step int

const (
	stepControllerInit step = iota
	stepControllerEnable
	stepStackInit
	stepStackEnable
	stepGATTS
	stepGAP
	stepGATT
	numSteps
)

var stepNames = [numSteps]string{
	stepControllerInit:   "controller init",
	stepControllerEnable: "controller enable",
	stepStackInit:        "stack init",
	stepStackEnable:      "stack enable",
	stepGATTS:            "gatts init",
	stepGAP:              "gap init",
	stepGATT:             "gatt init",
}

func (s step) String() string { return stepNames[s] }

// Server is the GATT server control plane.
type Server struct {
	ctrl stack.Lifecycle
	host stack.Stack
	opts Options
	log  *slog.Logger
	now  func() time.Time

	mbox    *mailbox
	running atomic.Bool
	events  atomic.Uint64

	// owned by the run loop
	reg     *profile.Registry
	adv     *adv.Advertiser
	builder *gatt.Builder
	session *Session
	done    int // startup steps completed
	inited  bool
	enabled bool // stack accepts registrations
}

var _ stack.Sink = (*Server)(nil)

// New returns a Server driving host, with ctrl as the radio controller, and
// registers the default profile. ctrl may be nil when the host stack
// manages the controller itself.
func New(ctrl stack.Lifecycle, host stack.Stack, opts Options, log *slog.Logger) (*Server, error) {
	if host == nil {
		panic("server: New called with nil stack")
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	if opts.LocalMTU == 0 {
		opts.LocalMTU = DefaultLocalMTU
	}
	if ctrl == nil {
		ctrl = nopLifecycle{}
	}

	s := &Server{
		ctrl:    ctrl,
		host:    host,
		opts:    opts,
		log:     log,
		now:     time.Now,
		mbox:    newMailbox(),
		reg:     profile.NewRegistry(opts.MaxProfiles, log.With("component", "registry")),
		adv:     adv.New(host, opts.Advertising, log.With("component", "gap")),
		builder: gatt.NewBuilder(host, log.With("component", "gatts")),
	}

	def := opts.DefaultProfile
	if def == nil {
		def = profile.New(DefaultProfileName, opts.ServiceUUID)
	}
	if _, err := s.reg.Register(def); err != nil {
		return nil, fmt.Errorf("server: default profile: %w", err)
	}
	return s, nil
}

type nopLifecycle struct{}

func (nopLifecycle) Init() error    { return nil }
func (nopLifecycle) Enable() error  { return nil }
func (nopLifecycle) Disable() error { return nil }
func (nopLifecycle) Deinit() error  { return nil }

// Post queues a stack event. It never blocks and is safe for concurrent use.
func (s *Server) Post(ev stack.Event) {
	s.mbox.push(ev)
}

// Run handles queued events and calls until ctx is done. Init, Deinit,
// AddProfile, Snapshot and Sync need Run to be running.
func (s *Server) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.New("server: already running")
	}
	defer s.running.Store(false)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.mbox.ready():
		}
		for _, item := range s.mbox.drain() {
			switch v := item.(type) {
			case func():
				v()
			case stack.Event:
				s.events.Add(1)
				s.dispatch(v)
			}
		}
	}
}

// do runs fn on the loop and waits for it. If ctx ends first, fn may still
// run later.
func (s *Server) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	s.mbox.push(func() {
		fn()
		close(done)
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sync waits until the mailbox is empty, including events posted while
// earlier ones were handled.
func (s *Server) Sync(ctx context.Context) error {
	for {
		var idle bool
		if err := s.do(ctx, func() { idle = s.mbox.len() == 0 }); err != nil {
			return err
		}
		if idle {
			return nil
		}
	}
}

// Init brings up the controller and the stack, configures GAP and GATT, and
// requests registration of every profile added so far. It stops at the
// first failing step and returns ErrLifecycle; steps already completed are
// undone by Deinit.
func (s *Server) Init(ctx context.Context) error {
	var err error
	if derr := s.do(ctx, func() { err = s.init() }); derr != nil {
		return derr
	}
	return err
}

func (s *Server) init() error {
	if s.inited {
		return fmt.Errorf("%w: already initialized", ErrInvalidState)
	}
	s.inited = true

	steps := [numSteps]func() error{
		stepControllerInit:   s.ctrl.Init,
		stepControllerEnable: s.ctrl.Enable,
		stepStackInit:        s.host.Init,
		stepStackEnable:      s.host.Enable,
		stepGATTS:            s.initGATTS,
		stepGAP:              s.initGAP,
		stepGATT:             s.initGATT,
	}
	for i, run := range steps {
		st := step(i)
		if err := run(); err != nil {
			s.log.Error("[BLE] startup failed", "step", st.String(), "error", err)
			return fmt.Errorf("%w: %s: %w", ErrLifecycle, st, err)
		}
		s.done = i + 1
		s.log.Debug("[BLE] startup step done", "step", st.String())
	}

	s.enabled = true
	for _, p := range s.reg.Pending() {
		s.requestRegistration(p)
	}
	s.log.Info("[BLE] gatt server initialized", "device_name", s.opts.DeviceName, "profiles", s.reg.Len(), "bonding", s.opts.Bonding)
	return nil
}

func (s *Server) initGATTS() error {
	s.host.SetEventSink(s)
	return nil
}

func (s *Server) initGAP() error {
	if err := s.host.SetDeviceName(s.opts.DeviceName); err != nil {
		return fmt.Errorf("set device name: %w", err)
	}
	return s.adv.Begin()
}

func (s *Server) initGATT() error {
	if err := s.host.SetLocalMTU(s.opts.LocalMTU); err != nil {
		return fmt.Errorf("set local mtu %d: %w", s.opts.LocalMTU, err)
	}
	return nil
}

func (s *Server) requestRegistration(p *profile.Profile) {
	s.reg.SetRequested(p)
	if err := s.host.RegisterApp(p.AppID); err != nil {
		p.Fail(fmt.Errorf("register app: %w: %w", gatt.ErrStackRejected, err))
		s.log.Error("[GATTS] app registration failed", "name", p.Name, "app_id", p.AppID, "error", err)
		return
	}
	s.log.Debug("[GATTS] app registration requested", "name", p.Name, "app_id", p.AppID)
}

// Deinit tears down, in reverse order, every startup step Init completed.
// Failures are logged and joined; teardown continues past them.
func (s *Server) Deinit(ctx context.Context) error {
	var err error
	if derr := s.do(ctx, func() { err = s.deinit() }); derr != nil {
		return derr
	}
	return err
}

func (s *Server) deinit() error {
	if !s.inited {
		return fmt.Errorf("%w: deinit before init", ErrInvalidState)
	}

	var errs []error
	undo := func(name string, fn func() error) {
		if err := fn(); err != nil {
			s.log.Warn("[BLE] teardown step failed", "step", name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if s.done > int(stepGAP) {
		undo("stop advertising", s.adv.Stop)
	}
	if s.done > int(stepStackEnable) {
		undo("stack disable", s.host.Disable)
	}
	if s.done > int(stepStackInit) {
		undo("stack deinit", s.host.Deinit)
	}
	if s.done > int(stepControllerEnable) {
		undo("controller disable", s.ctrl.Disable)
	}
	if s.done > int(stepControllerInit) {
		undo("controller deinit", s.ctrl.Deinit)
	}

	s.adv.Reset()
	s.reg.Detach()
	s.inited = false
	s.enabled = false
	s.done = 0
	s.session = nil
	s.log.Info("[BLE] gatt server deinitialized")
	return errors.Join(errs...)
}

// AddProfile registers a copy of p. If the stack is already up, its
// registration is requested at once; otherwise it is requested by Init.
// A full registry yields profile.ErrCapacityExceeded.
func (s *Server) AddProfile(ctx context.Context, p *profile.Profile) error {
	var err error
	if derr := s.do(ctx, func() { err = s.addProfile(p) }); derr != nil {
		return derr
	}
	return err
}

func (s *Server) addProfile(p *profile.Profile) error {
	id, err := s.reg.Register(p)
	if err != nil {
		s.log.Warn("[BLE] add profile rejected", "error", err)
		return err
	}
	if s.enabled {
		stored, _ := s.reg.FindByAppID(id)
		s.requestRegistration(stored)
	}
	return nil
}

// Snapshot returns the current state for diagnostics.
func (s *Server) Snapshot(ctx context.Context) (diag.Snapshot, error) {
	var snap diag.Snapshot
	if err := s.do(ctx, func() { snap = s.snapshot() }); err != nil {
		return diag.Snapshot{}, err
	}
	return snap, nil
}

func (s *Server) snapshot() diag.Snapshot {
	snap := diag.Snapshot{
		DeviceName: s.opts.DeviceName,
		Capacity:   s.reg.Cap(),
		AdvState:   s.adv.State().String(),
		AdvStarts:  s.adv.Starts(),
		Restarts:   s.adv.Restarts(),
		Events:     s.events.Load(),
		TakenAt:    s.now(),
	}
	if cur := s.reg.Current(); cur != nil {
		snap.Current = cur.Name
	}
	for _, p := range s.reg.All() {
		dp := diag.Profile{
			AppID:         p.AppID,
			Name:          p.Name,
			Iface:         -1,
			State:         p.State.String(),
			ServiceUUID:   p.ServiceID.UUID.String(),
			ServiceHandle: p.ServiceHandle,
		}
		if p.Iface != gatt.InterfaceNone {
			dp.Iface = int(p.Iface)
		}
		if !p.Handles.IsZero() {
			dp.Handles = p.Handles.String()
		}
		if p.Err != nil {
			dp.Error = p.Err.Error()
		}
		snap.Profiles = append(snap.Profiles, dp)
	}
	if s.session != nil {
		snap.Session = &diag.Session{
			ConnID:      s.session.ConnID,
			MTU:         s.session.MTU,
			Remote:      s.session.Remote,
			ConnectedAt: s.session.ConnectedAt,
		}
	}
	return snap
}
