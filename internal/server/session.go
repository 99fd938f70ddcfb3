package server

import (
	"time"

	"github.com/chaz8081/gatt-peripheral/internal/gatt"
)

// Session is the active link from a central. There is at most one.
type Session struct {
	ConnID      uint16
	MTU         uint16
	Remote      string
	ConnectedAt time.Time

	prep *gatt.PrepareQueue // prepared writes awaiting execute
}

func newSession(connID uint16, remote string, now time.Time) *Session {
	return &Session{
		ConnID:      connID,
		MTU:         gatt.DefaultMTU,
		Remote:      remote,
		ConnectedAt: now,
		prep:        gatt.NewPrepareQueue(0),
	}
}

// Uptime returns how long the link has been up at now.
func (s *Session) Uptime(now time.Time) time.Duration {
	return now.Sub(s.ConnectedAt)
}
