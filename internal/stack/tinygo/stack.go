//go:build linux

// Package tinygo implements stack.Stack on tinygo.org/x/bluetooth, which on
// Linux drives BlueZ over D-Bus.
//
// The library answers most requests synchronously; this adapter turns each
// result into the completion event the control plane waits for, so the
// server sees the same request/event protocol as on an asynchronous stack.
// Reads are always answered by the library from the stored value.
package tinygo

import (
	"fmt"
	"log/slog"
	"sync"

	"tinygo.org/x/bluetooth"

	"github.com/chaz8081/gatt-peripheral/internal/adv"
	"github.com/chaz8081/gatt-peripheral/internal/gatt"
	"github.com/chaz8081/gatt-peripheral/internal/stack"
)

// firstHandle is where synthesized attribute handles start.
const firstHandle uint16 = 0x0028

// service is an attribute table created on the stack but not yet (or
// already) added to the adapter.
type service struct {
	iface   gatt.Interface
	uuid    gatt.UUID
	table   []gatt.Attribute
	handles []uint16
	chars   []*bluetooth.Characteristic // by table index; nil for declarations
	started bool
}

var _ stack.Stack = (*Stack)(nil)

// Stack is a stack.Stack backed by a tinygo bluetooth adapter.
type Stack struct {
	adapter *bluetooth.Adapter
	log     *slog.Logger

	mu         sync.Mutex
	sink       stack.Sink
	advert     *bluetooth.Advertisement
	name       string
	advData    adv.Fields
	scanRsp    adv.Fields
	nextIface  gatt.Interface
	nextHandle uint16
	services   map[uint16]*service // by service handle
	connID     uint16
}

// New returns a Stack for the named adapter ("hci0"); an empty id uses the
// default adapter.
func New(id string, log *slog.Logger) *Stack {
	if log == nil {
		log = slog.Default()
	}
	a := bluetooth.DefaultAdapter
	if id != "" {
		a = bluetooth.NewAdapter(id)
	}
	return &Stack{
		adapter:    a,
		log:        log,
		nextHandle: firstHandle,
		services:   make(map[uint16]*service),
	}
}

func (s *Stack) SetEventSink(sink stack.Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink = sink
}

func (s *Stack) post(ev stack.Event) {
	s.mu.Lock()
	sink := s.sink
	s.mu.Unlock()
	if sink == nil {
		s.log.Warn("[STACK] event dropped, no sink", "event", ev.Name())
		return
	}
	sink.Post(ev)
}

func (s *Stack) Init() error { return nil }

func (s *Stack) Enable() error {
	if err := s.adapter.Enable(); err != nil {
		return fmt.Errorf("tinygo: enable adapter: %w", err)
	}
	s.advert = s.adapter.DefaultAdvertisement()

	s.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		remote := device.Address.String()
		s.mu.Lock()
		if connected {
			s.connID++
		}
		id := s.connID
		s.mu.Unlock()

		if connected {
			s.post(stack.Connected{Iface: gatt.InterfaceNone, ConnID: id, Remote: remote})
			return
		}
		s.post(stack.Disconnected{Iface: gatt.InterfaceNone, ConnID: id, Remote: remote})
	})
	return nil
}

func (s *Stack) Disable() error {
	if s.advert == nil {
		return nil
	}
	if err := s.advert.Stop(); err != nil {
		s.log.Debug("[STACK] stop advertising on disable", "error", err)
	}
	return nil
}

func (s *Stack) Deinit() error { return nil }

func (s *Stack) SetDeviceName(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.name = name
	return nil
}

// SetLocalMTU is accepted and ignored: BlueZ negotiates the ATT MTU itself.
func (s *Stack) SetLocalMTU(mtu uint16) error {
	s.log.Debug("[STACK] local mtu left to bluez", "mtu", mtu)
	return nil
}

func (s *Stack) ConfigAdvDataRaw(data []byte) error {
	f, err := adv.Decode(data)
	if err != nil {
		return fmt.Errorf("tinygo: advertising data: %w", err)
	}
	s.mu.Lock()
	s.advData = f
	s.mu.Unlock()
	s.post(stack.AdvDataSet{Status: gatt.StatusOK})
	return nil
}

func (s *Stack) ConfigScanRspDataRaw(data []byte) error {
	f, err := adv.Decode(data)
	if err != nil {
		return fmt.Errorf("tinygo: scan response data: %w", err)
	}
	s.mu.Lock()
	s.scanRsp = f
	s.mu.Unlock()
	s.post(stack.ScanRspSet{Status: gatt.StatusOK})
	return nil
}

func (s *Stack) StartAdvertising(p adv.Params) error {
	if s.advert == nil {
		return fmt.Errorf("tinygo: start advertising: adapter not enabled")
	}
	s.mu.Lock()
	opts := advertisementOptions(s.name, s.advData, s.scanRsp, p)
	s.mu.Unlock()

	if err := s.advert.Configure(opts); err != nil {
		return fmt.Errorf("tinygo: configure advertisement: %w", err)
	}
	status := gatt.StatusOK
	if err := s.advert.Start(); err != nil {
		s.log.Warn("[STACK] advertisement start failed", "error", err)
		status = gatt.StatusGenericError
	}
	s.post(stack.AdvStarted{Status: status})
	return nil
}

func (s *Stack) StopAdvertising() error {
	if s.advert == nil {
		return fmt.Errorf("tinygo: stop advertising: adapter not enabled")
	}
	status := gatt.StatusOK
	if err := s.advert.Stop(); err != nil {
		s.log.Warn("[STACK] advertisement stop failed", "error", err)
		status = gatt.StatusGenericError
	}
	s.post(stack.AdvStopped{Status: status})
	return nil
}

func (s *Stack) RegisterApp(appID uint16) error {
	s.mu.Lock()
	iface := s.nextIface
	s.nextIface++
	s.mu.Unlock()
	s.post(stack.Registered{AppID: appID, Iface: iface, Status: gatt.StatusOK})
	return nil
}

// CreateAttrTable assigns one handle per attribute. The service is added to
// the adapter when it is started.
func (s *Stack) CreateAttrTable(iface gatt.Interface, table []gatt.Attribute, instID uint8) error {
	svc, err := gatt.ServiceUUIDOf(firstOrZero(table))
	if err != nil {
		s.log.Warn("[STACK] rejecting attribute table", "error", err)
		s.post(stack.AttrTableCreated{Iface: iface, Status: gatt.StatusIllegalParam, InstID: instID})
		return nil
	}

	s.mu.Lock()
	handles := make([]uint16, len(table))
	for i := range table {
		handles[i] = s.nextHandle
		s.nextHandle++
	}
	s.services[handles[0]] = &service{
		iface:   iface,
		uuid:    svc,
		table:   gatt.CloneTable(table),
		handles: handles,
		chars:   make([]*bluetooth.Characteristic, len(table)),
	}
	s.mu.Unlock()

	s.post(stack.AttrTableCreated{
		Iface:       iface,
		Status:      gatt.StatusOK,
		ServiceUUID: svc,
		InstID:      instID,
		Handles:     append([]uint16(nil), handles...),
	})
	return nil
}

func firstOrZero(table []gatt.Attribute) gatt.Attribute {
	if len(table) == 0 {
		return gatt.Attribute{}
	}
	return table[0]
}

func (s *Stack) StartService(serviceHandle uint16) error {
	s.mu.Lock()
	svc, ok := s.services[serviceHandle]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("tinygo: start service: unknown service handle %d", serviceHandle)
	}
	if svc.started {
		return fmt.Errorf("tinygo: start service: service %d already started", serviceHandle)
	}

	bs := bluetooth.Service{UUID: toUUID(svc.uuid)}
	for _, c := range characteristics(svc.table) {
		char := new(bluetooth.Characteristic)
		svc.chars[c.value] = char
		handle := svc.handles[c.value]
		bs.Characteristics = append(bs.Characteristics, bluetooth.CharacteristicConfig{
			Handle:     char,
			UUID:       toUUID(svc.table[c.value].UUID),
			Value:      append([]byte(nil), svc.table[c.value].Value...),
			Flags:      toPermissions(c.props),
			WriteEvent: s.writeHandler(svc.iface, handle),
		})
	}

	status := gatt.StatusOK
	if err := s.adapter.AddService(&bs); err != nil {
		s.log.Error("[STACK] add service failed", "uuid", svc.uuid, "error", err)
		status = gatt.StatusGenericError
	} else {
		s.mu.Lock()
		svc.started = true
		s.mu.Unlock()
	}
	s.post(stack.ServiceStarted{Iface: svc.iface, Status: status, ServiceHandle: serviceHandle})
	return nil
}

func (s *Stack) writeHandler(iface gatt.Interface, handle uint16) func(bluetooth.Connection, int, []byte) {
	return func(_ bluetooth.Connection, offset int, value []byte) {
		s.mu.Lock()
		id := s.connID
		s.mu.Unlock()
		s.post(stack.Write{
			Iface:  iface,
			ConnID: id,
			Handle: handle,
			Offset: uint16(offset),
			Value:  append([]byte(nil), value...),
		})
	}
}

// SendResponse stores a non-empty response value as the characteristic's
// new value; the library has already acknowledged the request.
func (s *Stack) SendResponse(r stack.Response) error {
	if len(r.Value) == 0 {
		return nil
	}
	s.mu.Lock()
	var char *bluetooth.Characteristic
	for _, svc := range s.services {
		for i, h := range svc.handles {
			if h == r.Handle {
				char = svc.chars[i]
			}
		}
	}
	s.mu.Unlock()
	if char == nil {
		return fmt.Errorf("tinygo: send response: handle %d has no characteristic", r.Handle)
	}
	if _, err := char.Write(r.Value); err != nil {
		return fmt.Errorf("tinygo: send response: %w", err)
	}
	return nil
}
