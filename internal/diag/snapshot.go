// Package diag renders a point-in-time view of the server for logs and the
// -status flag. Snapshots are encoded as protobuf Struct values so they can
// be emitted as canonical JSON.
package diag

import (
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// Profile describes one registered profile.
type Profile struct {
	AppID         uint16
	Name          string
	Iface         int // -1 until registered
	State         string
	ServiceUUID   string
	ServiceHandle uint16
	Handles       string
	Error         string
}

// Session describes the active link.
type Session struct {
	ConnID      uint16
	MTU         uint16
	Remote      string
	ConnectedAt time.Time
}

// Snapshot is the state of the server.
type Snapshot struct {
	DeviceName string
	Profiles   []Profile
	Capacity   int
	Current    string // most recently registered profile
	AdvState   string
	AdvStarts  int
	Restarts   int
	Session    *Session
	Events     uint64
	TakenAt    time.Time
}

func (p Profile) fields() map[string]any {
	m := map[string]any{
		"app_id":         int64(p.AppID),
		"name":           p.Name,
		"state":          p.State,
		"service_uuid":   p.ServiceUUID,
		"service_handle": int64(p.ServiceHandle),
	}
	if p.Iface >= 0 {
		m["gatts_if"] = int64(p.Iface)
	}
	if p.Handles != "" {
		m["handles"] = p.Handles
	}
	if p.Error != "" {
		m["error"] = p.Error
	}
	return m
}

func (s Snapshot) fields() map[string]any {
	profiles := make([]any, len(s.Profiles))
	for i, p := range s.Profiles {
		profiles[i] = p.fields()
	}
	m := map[string]any{
		"device_name": s.DeviceName,
		"profiles":    profiles,
		"capacity":    int64(s.Capacity),
		"advertising": map[string]any{
			"state":    s.AdvState,
			"starts":   int64(s.AdvStarts),
			"restarts": int64(s.Restarts),
		},
		"events": float64(s.Events),
	}
	if s.Current != "" {
		m["current_profile"] = s.Current
	}
	if !s.TakenAt.IsZero() {
		m["taken_at"] = s.TakenAt.UTC().Format(time.RFC3339)
	}
	if s.Session != nil {
		m["session"] = map[string]any{
			"conn_id":      int64(s.Session.ConnID),
			"mtu":          int64(s.Session.MTU),
			"remote":       s.Session.Remote,
			"connected_at": s.Session.ConnectedAt.UTC().Format(time.RFC3339),
		}
	}
	return m
}

// Struct converts the snapshot to a protobuf Struct.
func (s Snapshot) Struct() (*structpb.Struct, error) {
	st, err := structpb.NewStruct(s.fields())
	if err != nil {
		return nil, fmt.Errorf("diag: build struct: %w", err)
	}
	return st, nil
}

// JSON encodes the snapshot as indented JSON.
func (s Snapshot) JSON() ([]byte, error) {
	st, err := s.Struct()
	if err != nil {
		return nil, err
	}
	b, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("diag: marshal: %w", err)
	}
	return b, nil
}

// LogValue implements slog.LogValuer with a compact summary.
func (s Snapshot) LogValue() slog.Value {
	active := 0
	for _, p := range s.Profiles {
		if p.State == "service-started" {
			active++
		}
	}
	attrs := []slog.Attr{
		slog.Int("profiles", len(s.Profiles)),
		slog.Int("active", active),
		slog.String("adv", s.AdvState),
		slog.Int("restarts", s.Restarts),
	}
	if s.Session != nil {
		attrs = append(attrs, slog.Int("conn_id", int(s.Session.ConnID)), slog.Int("mtu", int(s.Session.MTU)))
	}
	return slog.GroupValue(attrs...)
}
