package server

import (
	"sync"

	"github.com/chaz8081/gatt-peripheral/internal/adv"
	"github.com/chaz8081/gatt-peripheral/internal/gatt"
	"github.com/chaz8081/gatt-peripheral/internal/stack"
)

// recorder keeps the order of requests across the controller and the stack
// and fails the ones named in fail.
type recorder struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
}

func newRecorder() *recorder {
	return &recorder{fail: make(map[string]error)}
}

func (r *recorder) record(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, name)
	return r.fail[name]
}

func (r *recorder) failOn(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail[name] = err
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func (r *recorder) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c == name {
			n++
		}
	}
	return n
}

// mockController simulates the radio controller.
type mockController struct{ r *recorder }

func (c *mockController) Init() error    { return c.r.record("ctrl.init") }
func (c *mockController) Enable() error  { return c.r.record("ctrl.enable") }
func (c *mockController) Disable() error { return c.r.record("ctrl.disable") }
func (c *mockController) Deinit() error  { return c.r.record("ctrl.deinit") }

type tableCall struct {
	iface  gatt.Interface
	table  []gatt.Attribute
	instID uint8
}

// mockStack records requests. It never posts events by itself; tests post
// the completions they want to exercise.
type mockStack struct {
	r *recorder

	mu         sync.Mutex
	sink       stack.Sink
	name       string
	mtu        uint16
	advData    []byte
	scanRsp    []byte
	registered []uint16
	tables     []tableCall
	started    []uint16
	responses  []stack.Response
}

var _ stack.Stack = (*mockStack)(nil)

func (m *mockStack) Init() error    { return m.r.record("stack.init") }
func (m *mockStack) Enable() error  { return m.r.record("stack.enable") }
func (m *mockStack) Disable() error { return m.r.record("stack.disable") }
func (m *mockStack) Deinit() error  { return m.r.record("stack.deinit") }

func (m *mockStack) SetEventSink(s stack.Sink) {
	m.r.record("sink")
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sink = s
}

func (m *mockStack) SetDeviceName(name string) error {
	m.mu.Lock()
	m.name = name
	m.mu.Unlock()
	return m.r.record("name")
}

func (m *mockStack) SetLocalMTU(mtu uint16) error {
	m.mu.Lock()
	m.mtu = mtu
	m.mu.Unlock()
	return m.r.record("mtu")
}

func (m *mockStack) ConfigAdvDataRaw(data []byte) error {
	m.mu.Lock()
	m.advData = append([]byte(nil), data...)
	m.mu.Unlock()
	return m.r.record("adv")
}

func (m *mockStack) ConfigScanRspDataRaw(data []byte) error {
	m.mu.Lock()
	m.scanRsp = append([]byte(nil), data...)
	m.mu.Unlock()
	return m.r.record("rsp")
}

func (m *mockStack) StartAdvertising(p adv.Params) error { return m.r.record("adv.start") }
func (m *mockStack) StopAdvertising() error              { return m.r.record("adv.stop") }

func (m *mockStack) RegisterApp(appID uint16) error {
	m.mu.Lock()
	m.registered = append(m.registered, appID)
	m.mu.Unlock()
	return m.r.record("register")
}

func (m *mockStack) CreateAttrTable(iface gatt.Interface, table []gatt.Attribute, instID uint8) error {
	m.mu.Lock()
	m.tables = append(m.tables, tableCall{iface: iface, table: gatt.CloneTable(table), instID: instID})
	m.mu.Unlock()
	return m.r.record("table")
}

func (m *mockStack) StartService(handle uint16) error {
	m.mu.Lock()
	m.started = append(m.started, handle)
	m.mu.Unlock()
	return m.r.record("start_service")
}

func (m *mockStack) SendResponse(r stack.Response) error {
	m.mu.Lock()
	m.responses = append(m.responses, r)
	m.mu.Unlock()
	return m.r.record("response")
}

func (m *mockStack) tableCalls() []tableCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]tableCall(nil), m.tables...)
}

func (m *mockStack) startedServices() []uint16 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]uint16(nil), m.started...)
}

func (m *mockStack) registeredApps() []uint16 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]uint16(nil), m.registered...)
}

func (m *mockStack) sentResponses() []stack.Response {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]stack.Response(nil), m.responses...)
}
