package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/chaz8081/gatt-peripheral/internal/adv"
	"github.com/chaz8081/gatt-peripheral/internal/gatt"
)

// Config holds all application configuration.
type Config struct {
	DeviceName  string            `yaml:"device_name"`
	ServiceUUID string            `yaml:"service_uuid"`
	Bonding     bool              `yaml:"bonding"`
	StartFlag   uint8             `yaml:"start_flag"` // reserved, advertised as manufacturer data when set
	EndFlag     uint8             `yaml:"end_flag"`
	Adapter     string            `yaml:"adapter"` // BlueZ adapter, e.g. "hci0"
	MaxProfiles int               `yaml:"max_profiles"`
	LocalMTU    uint16            `yaml:"local_mtu"`
	Advertising AdvertisingConfig `yaml:"advertising"`
	LogLevel    string            `yaml:"log_level"`
}

// AdvertisingConfig holds the advertising payload and parameter settings.
type AdvertisingConfig struct {
	TxPower     int8   `yaml:"tx_power"`   // dBm
	Appearance  uint16 `yaml:"appearance"` // GAP appearance value
	ScanRspUUID string `yaml:"scan_rsp_uuid"`
	IntervalMin uint16 `yaml:"interval_min"` // 0.625 ms units
	IntervalMax uint16 `yaml:"interval_max"` // 0.625 ms units
	Type        string `yaml:"type"`          // "ind", "direct_ind_high", "scan_ind", "nonconn_ind" or "direct_ind_low"
	OwnAddrType string `yaml:"own_addr_type"` // "public", "random", "rpa_public" or "rpa_random"
	Channels    []int  `yaml:"channels"`      // subset of 37, 38, 39
	Filter      string `yaml:"filter"`        // "scan_any_con_any", "scan_white_con_any", "scan_any_con_white" or "scan_white_con_white"
}

// manufacturerID is the Bluetooth SIG company id reserved for testing. The
// start and end flags are advertised behind it.
const manufacturerID = 0xFFFF

var pduTypes = map[string]adv.PDU{
	"ind":             adv.PDUInd,
	"direct_ind_high": adv.PDUDirectIndHigh,
	"scan_ind":        adv.PDUScanInd,
	"nonconn_ind":     adv.PDUNonConnInd,
	"direct_ind_low":  adv.PDUDirectIndLow,
}

var addrTypes = map[string]adv.AddrType{
	"public":     adv.AddrPublic,
	"random":     adv.AddrRandom,
	"rpa_public": adv.AddrRPAPublic,
	"rpa_random": adv.AddrRPARandom,
}

var filterPolicies = map[string]adv.FilterPolicy{
	"scan_any_con_any":     adv.FilterScanAnyConAny,
	"scan_white_con_any":   adv.FilterScanWhiteConAny,
	"scan_any_con_white":   adv.FilterScanAnyConWhite,
	"scan_white_con_white": adv.FilterScanWhiteConWhite,
}

var channels = map[int]adv.ChannelMap{
	37: adv.Chan37,
	38: adv.Chan38,
	39: adv.Chan39,
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "gatt-peripheral")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		DeviceName:  "Auto-Airfryer",
		ServiceUUID: "ED58",
		Adapter:     "hci0",
		MaxProfiles: 5,
		LocalMTU:    500,
		Advertising: AdvertisingConfig{
			TxPower:     -21,
			Appearance:  0x0080, // generic computer
			ScanRspUUID: "FF00",
			IntervalMin: 0x20,
			IntervalMax: 0x40,
			Type:        "ind",
			OwnAddrType: "public",
			Channels:    []int{37, 38, 39},
			Filter:      "scan_any_con_any",
		},
		LogLevel: "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults. A leading tilde (~) in path is expanded to the user's
// home directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(expandTilde(path))
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.DeviceName == "" {
		return fmt.Errorf("device_name must not be empty")
	}
	if len(c.DeviceName) > 29 {
		return fmt.Errorf("device_name must be at most 29 bytes, got %d", len(c.DeviceName))
	}

	if _, err := gatt.ParseUUID(c.ServiceUUID); err != nil {
		return fmt.Errorf("service_uuid: %w", err)
	}

	if c.MaxProfiles <= 0 {
		return fmt.Errorf("max_profiles must be > 0")
	}

	if c.LocalMTU != 0 && (c.LocalMTU < gatt.DefaultMTU || c.LocalMTU > gatt.MaxMTU) {
		return fmt.Errorf("local_mtu must be between %d and %d, got %d", gatt.DefaultMTU, gatt.MaxMTU, c.LocalMTU)
	}

	if _, err := c.advParams(); err != nil {
		return err
	}
	if c.Advertising.ScanRspUUID != "" {
		if _, err := gatt.ParseUUID(c.Advertising.ScanRspUUID); err != nil {
			return fmt.Errorf("advertising.scan_rsp_uuid: %w", err)
		}
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// Service returns the parsed primary service UUID.
func (c *Config) Service() (gatt.UUID, error) {
	return gatt.ParseUUID(c.ServiceUUID)
}

// AdvConfig builds the advertising payloads and parameters: flags, TX
// power, the service UUID, appearance and the device name in the
// advertising data, and the scan response UUID in the scan response.
func (c *Config) AdvConfig() (adv.Config, error) {
	svc, err := c.Service()
	if err != nil {
		return adv.Config{}, fmt.Errorf("service_uuid: %w", err)
	}
	p, err := c.advParams()
	if err != nil {
		return adv.Config{}, err
	}

	flags := byte(adv.FlagGeneralDiscoverable | adv.FlagLEOnly)
	data := adv.Fields{
		Flags:        flags,
		TxPower:      adv.Int8(c.Advertising.TxPower),
		ServiceUUIDs: []gatt.UUID{svc},
		Appearance:   adv.Uint16(c.Advertising.Appearance),
		LocalName:    c.DeviceName,
	}
	if c.StartFlag != 0 || c.EndFlag != 0 {
		data.ManufacturerData = []byte{manufacturerID & 0xff, manufacturerID >> 8, c.StartFlag, c.EndFlag}
	}

	rsp := adv.Fields{
		Flags:   flags,
		TxPower: adv.Int8(c.Advertising.TxPower),
	}
	if c.Advertising.ScanRspUUID != "" {
		u, err := gatt.ParseUUID(c.Advertising.ScanRspUUID)
		if err != nil {
			return adv.Config{}, fmt.Errorf("advertising.scan_rsp_uuid: %w", err)
		}
		rsp.ServiceUUIDs = []gatt.UUID{u}
	}

	return adv.NewConfig(data, rsp, p)
}

func (c *Config) advParams() (adv.Params, error) {
	a := c.Advertising
	p := adv.Params{
		IntervalMin: a.IntervalMin,
		IntervalMax: a.IntervalMax,
	}

	var ok bool
	if p.Type, ok = pduTypes[a.Type]; !ok {
		return adv.Params{}, fmt.Errorf("advertising.type: unknown type %q", a.Type)
	}
	if p.OwnAddrType, ok = addrTypes[a.OwnAddrType]; !ok {
		return adv.Params{}, fmt.Errorf("advertising.own_addr_type: unknown type %q", a.OwnAddrType)
	}
	if p.FilterPolicy, ok = filterPolicies[a.Filter]; !ok {
		return adv.Params{}, fmt.Errorf("advertising.filter: unknown policy %q", a.Filter)
	}
	for _, ch := range a.Channels {
		m, ok := channels[ch]
		if !ok {
			return adv.Params{}, fmt.Errorf("advertising.channels: %d is not an advertising channel", ch)
		}
		p.ChannelMap |= m
	}

	if err := p.Validate(); err != nil {
		return adv.Params{}, fmt.Errorf("advertising: %w", err)
	}
	return p, nil
}

// ParseLogLevel maps a config log level to a slog.Level. Unknown values
// default to info.
func ParseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

const defaultHeader = `# gatt-peripheral configuration
#
# device_name is advertised as the complete local name. service_uuid is the
# primary service of the default profile (4, 8 or 32 hex digits).
# start_flag and end_flag are reserved bytes; when either is non-zero they
# are advertised as manufacturer data.
`

// WriteDefault writes the default config to DefaultConfigPath and returns
// the path. If a config file already exists it is left untouched and
// WriteDefault returns ("", nil).
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if path == "config.yaml" {
		return "", errors.New("cannot determine home directory")
	}
	if _, err := os.Stat(path); err == nil {
		return "", nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("checking %s: %w", path, err)
	}

	body, err := yaml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}
	if err := os.WriteFile(path, append([]byte(defaultHeader+"\n"), body...), 0644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
