// Package bluez brings the Bluetooth controller up and down through BlueZ's
// org.bluez.Adapter1 D-Bus interface.
package bluez

import (
	"fmt"
	"log/slog"
	"strings"

	dbus "github.com/godbus/dbus/v5"

	"github.com/chaz8081/gatt-peripheral/internal/stack"
)

const (
	bluezService = "org.bluez"
	adapterIface = "org.bluez.Adapter1"
	propsIface   = "org.freedesktop.DBus.Properties"
)

// DefaultAdapter is the adapter used when none is configured.
const DefaultAdapter = "hci0"

// properties reads and writes Adapter1 properties.
type properties interface {
	Get(name string) (dbus.Variant, error)
	Set(name string, value dbus.Variant) error
}

// adapterProps implements properties on a D-Bus object.
type adapterProps struct {
	obj dbus.BusObject
}

func (p adapterProps) Get(name string) (dbus.Variant, error) {
	var v dbus.Variant
	if err := p.obj.Call(propsIface+".Get", 0, adapterIface, name).Store(&v); err != nil {
		return dbus.Variant{}, err
	}
	return v, nil
}

func (p adapterProps) Set(name string, value dbus.Variant) error {
	return p.obj.Call(propsIface+".Set", 0, adapterIface, name, value).Err
}

// Controller powers a BlueZ adapter. Enable switches it on if needed and
// Disable switches it back off only if Enable did.
type Controller struct {
	adapter string
	log     *slog.Logger

	props       properties
	release     func() error // closes the bus connection
	poweredByUs bool
}

var _ stack.Lifecycle = (*Controller)(nil)

// New returns a Controller for the named adapter, e.g. "hci0".
func New(adapter string, log *slog.Logger) *Controller {
	if adapter == "" {
		adapter = DefaultAdapter
	}
	if log == nil {
		log = slog.Default()
	}
	return &Controller{adapter: adapter, log: log}
}

// Path returns the adapter's object path.
func (c *Controller) Path() dbus.ObjectPath {
	return dbus.ObjectPath("/org/bluez/" + strings.TrimPrefix(c.adapter, "/org/bluez/"))
}

// Init connects to the system bus and checks that the adapter exists.
func (c *Controller) Init() error {
	if c.props != nil {
		return nil
	}
	bus, err := dbus.ConnectSystemBus()
	if err != nil {
		return fmt.Errorf("bluez: connect system bus: %w", err)
	}
	return c.attach(adapterProps{obj: bus.Object(bluezService, c.Path())}, bus.Close)
}

// attach adopts an adapter connection. If the adapter cannot be read the
// connection is released again.
func (c *Controller) attach(props properties, release func() error) error {
	c.props = props
	c.release = release
	if err := c.checkAdapter(); err != nil {
		if cerr := c.Deinit(); cerr != nil {
			c.log.Warn("[BLUEZ] close system bus failed", "error", cerr)
		}
		return err
	}
	return nil
}

func (c *Controller) checkAdapter() error {
	addr, err := c.Address()
	if err != nil {
		return fmt.Errorf("bluez: adapter %s: %w", c.adapter, err)
	}
	c.log.Info("[BLUEZ] controller found", "adapter", c.adapter, "address", addr)
	return nil
}

// Address returns the adapter's public address.
func (c *Controller) Address() (string, error) {
	v, err := c.props.Get("Address")
	if err != nil {
		return "", err
	}
	s, ok := v.Value().(string)
	if !ok {
		return "", fmt.Errorf("bluez: Address has type %s", v.Signature())
	}
	return s, nil
}

// Powered reports whether the adapter is on.
func (c *Controller) Powered() (bool, error) {
	v, err := c.props.Get("Powered")
	if err != nil {
		return false, fmt.Errorf("bluez: get Powered: %w", err)
	}
	on, ok := v.Value().(bool)
	if !ok {
		return false, fmt.Errorf("bluez: Powered has type %s", v.Signature())
	}
	return on, nil
}

func (c *Controller) setPowered(on bool) error {
	if err := c.props.Set("Powered", dbus.MakeVariant(on)); err != nil {
		return fmt.Errorf("bluez: set Powered=%v: %w", on, err)
	}
	return nil
}

// Enable powers the adapter on.
func (c *Controller) Enable() error {
	on, err := c.Powered()
	if err != nil {
		return err
	}
	if on {
		c.log.Debug("[BLUEZ] controller already powered", "adapter", c.adapter)
		return nil
	}
	if err := c.setPowered(true); err != nil {
		return err
	}
	c.poweredByUs = true
	c.log.Info("[BLUEZ] controller powered on", "adapter", c.adapter)
	return nil
}

// Disable powers the adapter off if Enable powered it on.
func (c *Controller) Disable() error {
	if !c.poweredByUs {
		return nil
	}
	if err := c.setPowered(false); err != nil {
		return err
	}
	c.poweredByUs = false
	c.log.Info("[BLUEZ] controller powered off", "adapter", c.adapter)
	return nil
}

// Deinit releases the bus connection.
func (c *Controller) Deinit() error {
	c.props = nil
	if c.release == nil {
		return nil
	}
	err := c.release()
	c.release = nil
	return err
}
