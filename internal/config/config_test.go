package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/chaz8081/gatt-peripheral/internal/adv"
	"github.com/chaz8081/gatt-peripheral/internal/gatt"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.DeviceName != "Auto-Airfryer" {
		t.Errorf("DeviceName = %q, want %q", cfg.DeviceName, "Auto-Airfryer")
	}
	if cfg.ServiceUUID != "ED58" {
		t.Errorf("ServiceUUID = %q, want %q", cfg.ServiceUUID, "ED58")
	}
	if cfg.MaxProfiles != 5 {
		t.Errorf("MaxProfiles = %d, want 5", cfg.MaxProfiles)
	}
	if cfg.LocalMTU != 500 {
		t.Errorf("LocalMTU = %d, want 500", cfg.LocalMTU)
	}
	if cfg.Bonding {
		t.Error("Bonding should default to false")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default().Validate() error = %v", err)
	}
}

func TestLoad(t *testing.T) {
	yamlContent := `
device_name: Test-Device
service_uuid: "0xABCD"
bonding: true
start_flag: 0xAA
end_flag: 0x55
adapter: hci1
max_profiles: 3
local_mtu: 247
advertising:
  tx_power: 0
  interval_min: 0x100
  interval_max: 0x200
  type: scan_ind
  channels: [37, 39]
log_level: debug
`
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	if cfg.DeviceName != "Test-Device" {
		t.Errorf("DeviceName = %q, want %q", cfg.DeviceName, "Test-Device")
	}
	if svc, _ := cfg.Service(); svc != gatt.UUID16(0xABCD) {
		t.Errorf("Service() = %s, want abcd", svc)
	}
	if !cfg.Bonding {
		t.Error("Bonding = false, want true")
	}
	if cfg.StartFlag != 0xAA || cfg.EndFlag != 0x55 {
		t.Errorf("flags = %#x/%#x, want 0xaa/0x55", cfg.StartFlag, cfg.EndFlag)
	}
	if cfg.Adapter != "hci1" {
		t.Errorf("Adapter = %q, want %q", cfg.Adapter, "hci1")
	}
	if cfg.MaxProfiles != 3 {
		t.Errorf("MaxProfiles = %d, want 3", cfg.MaxProfiles)
	}
	if cfg.LocalMTU != 247 {
		t.Errorf("LocalMTU = %d, want 247", cfg.LocalMTU)
	}
	if cfg.Advertising.TxPower != 0 {
		t.Errorf("Advertising.TxPower = %d, want 0", cfg.Advertising.TxPower)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}

	// fields absent from the file keep their defaults
	if cfg.Advertising.ScanRspUUID != "FF00" {
		t.Errorf("Advertising.ScanRspUUID = %q, want default FF00", cfg.Advertising.ScanRspUUID)
	}
	if cfg.Advertising.Filter != "scan_any_con_any" {
		t.Errorf("Advertising.Filter = %q, want default", cfg.Advertising.Filter)
	}

	ac, err := cfg.AdvConfig()
	if err != nil {
		t.Fatalf("AdvConfig() error = %v", err)
	}
	want := adv.Params{
		IntervalMin:  0x100,
		IntervalMax:  0x200,
		Type:         adv.PDUScanInd,
		OwnAddrType:  adv.AddrPublic,
		ChannelMap:   adv.Chan37 | adv.Chan39,
		FilterPolicy: adv.FilterScanAnyConAny,
	}
	if ac.Params != want {
		t.Errorf("Params = %+v, want %+v", ac.Params, want)
	}
}

func TestLoadExpandsTilde(t *testing.T) {
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	if err := os.WriteFile(filepath.Join(tmpHome, "gatt.yaml"), []byte("device_name: Tilde\n"), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load("~/gatt.yaml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DeviceName != "Tilde" {
		t.Errorf("DeviceName = %q, want %q", cfg.DeviceName, "Tilde")
	}
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("Load() should return error for nonexistent file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("device_name: [unterminated\n"), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	if _, err := Load(cfgPath); err == nil {
		t.Error("Load() should return error for invalid YAML")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"valid default", func(c *Config) {}, false},
		{"empty device name", func(c *Config) { c.DeviceName = "" }, true},
		{"device name too long", func(c *Config) { c.DeviceName = strings.Repeat("x", 30) }, true},
		{"128-bit service uuid", func(c *Config) { c.ServiceUUID = "6e400001-b5a3-f393-e0a9-e50e24dcca9e" }, false},
		{"bad service uuid", func(c *Config) { c.ServiceUUID = "xyz" }, true},
		{"empty service uuid", func(c *Config) { c.ServiceUUID = "" }, true},
		{"zero max profiles", func(c *Config) { c.MaxProfiles = 0 }, true},
		{"mtu unset", func(c *Config) { c.LocalMTU = 0 }, false},
		{"mtu too small", func(c *Config) { c.LocalMTU = 22 }, true},
		{"mtu too large", func(c *Config) { c.LocalMTU = 600 }, true},
		{"bad scan rsp uuid", func(c *Config) { c.Advertising.ScanRspUUID = "nope" }, true},
		{"no scan rsp uuid", func(c *Config) { c.Advertising.ScanRspUUID = "" }, false},
		{"interval too small", func(c *Config) { c.Advertising.IntervalMin = 0x10 }, true},
		{"interval inverted", func(c *Config) { c.Advertising.IntervalMin, c.Advertising.IntervalMax = 0x80, 0x40 }, true},
		{"unknown adv type", func(c *Config) { c.Advertising.Type = "burst" }, true},
		{"unknown addr type", func(c *Config) { c.Advertising.OwnAddrType = "static" }, true},
		{"unknown filter", func(c *Config) { c.Advertising.Filter = "none" }, true},
		{"bad channel", func(c *Config) { c.Advertising.Channels = []int{36} }, true},
		{"no channels", func(c *Config) { c.Advertising.Channels = nil }, true},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAdvConfigDefault(t *testing.T) {
	ac, err := Default().AdvConfig()
	if err != nil {
		t.Fatalf("AdvConfig() error = %v", err)
	}

	wantData := append([]byte{
		0x02, 0x01, 0x06,
		0x02, 0x0A, 0xEB,
		0x03, 0x03, 0x58, 0xED,
		0x03, 0x19, 0x80, 0x00,
		0x0E, 0x09,
	}, "Auto-Airfryer"...)
	if !bytes.Equal(ac.AdvData, wantData) {
		t.Errorf("AdvData = % x\nwant      % x", ac.AdvData, wantData)
	}

	wantRsp := []byte{
		0x02, 0x01, 0x06,
		0x02, 0x0A, 0xEB,
		0x03, 0x03, 0x00, 0xFF,
	}
	if !bytes.Equal(ac.ScanRsp, wantRsp) {
		t.Errorf("ScanRsp = % x, want % x", ac.ScanRsp, wantRsp)
	}
	if ac.Params != adv.DefaultParams() {
		t.Errorf("Params = %+v, want defaults", ac.Params)
	}
}

func TestAdvConfigFlagsAsManufacturerData(t *testing.T) {
	cfg := Default()
	cfg.StartFlag = 0xAA
	cfg.EndFlag = 0x55

	ac, err := cfg.AdvConfig()
	if err != nil {
		t.Fatalf("AdvConfig() error = %v", err)
	}
	if len(ac.AdvData) > adv.MaxPayloadLen {
		t.Fatalf("AdvData is %d bytes, want at most %d", len(ac.AdvData), adv.MaxPayloadLen)
	}

	f, err := adv.Decode(ac.AdvData)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if want := []byte{0xFF, 0xFF, 0xAA, 0x55}; !bytes.Equal(f.ManufacturerData, want) {
		t.Errorf("ManufacturerData = % x, want % x", f.ManufacturerData, want)
	}
	if f.LocalName == "" || !strings.HasPrefix("Auto-Airfryer", f.LocalName) {
		t.Errorf("LocalName = %q, want a prefix of the device name", f.LocalName)
	}
}

func TestAdvConfigNoFlagsNoManufacturerData(t *testing.T) {
	ac, err := Default().AdvConfig()
	if err != nil {
		t.Fatal(err)
	}
	f, err := adv.Decode(ac.AdvData)
	if err != nil {
		t.Fatal(err)
	}
	if f.ManufacturerData != nil {
		t.Errorf("ManufacturerData = % x, want none", f.ManufacturerData)
	}
}

func TestWriteDefault_CreatesFile(t *testing.T) {
	// Use a temp dir as fake home to avoid touching real config
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	path, err := WriteDefault()
	if err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}

	expectedPath := filepath.Join(tmpHome, ".config", "gatt-peripheral", "config.yaml")
	if path != expectedPath {
		t.Errorf("WriteDefault() path = %q, want %q", path, expectedPath)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read written config: %v", err)
	}
	if !strings.HasPrefix(string(data), "# gatt-peripheral") {
		t.Error("written config should start with header comment")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("written config is not valid YAML: %v", err)
	}
	if cfg.DeviceName != "Auto-Airfryer" {
		t.Errorf("written config DeviceName = %q, want %q", cfg.DeviceName, "Auto-Airfryer")
	}
	if len(cfg.Advertising.Channels) != 3 {
		t.Errorf("written config Advertising.Channels = %v, want 3 channels", cfg.Advertising.Channels)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("written config does not validate: %v", err)
	}
}

func TestWriteDefault_NoOpIfExists(t *testing.T) {
	tmpHome := t.TempDir()
	t.Setenv("HOME", tmpHome)

	configDir := filepath.Join(tmpHome, ".config", "gatt-peripheral")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}
	existingContent := []byte("device_name: Custom\n")
	configPath := filepath.Join(configDir, "config.yaml")
	if err := os.WriteFile(configPath, existingContent, 0644); err != nil {
		t.Fatalf("failed to write existing config: %v", err)
	}

	path, err := WriteDefault()
	if err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}
	if path != "" {
		t.Errorf("WriteDefault() path = %q, want empty string for existing file", path)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("failed to read config: %v", err)
	}
	if string(data) != string(existingContent) {
		t.Error("WriteDefault() should not overwrite existing config file")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo}, // defaults to info
		{"", slog.LevelInfo},        // defaults to info
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := ParseLogLevel(tt.input)
			if got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
