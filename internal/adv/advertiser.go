package adv

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/chaz8081/gatt-peripheral/internal/gatt"
)

// Radio is the part of the stack that advertises. Every call is a request:
// a nil error means it was accepted and a completion event will follow.
type Radio interface {
	ConfigAdvDataRaw(data []byte) error
	ConfigScanRspDataRaw(data []byte) error
	StartAdvertising(p Params) error
	StopAdvertising() error
}

// State is the advertising lifecycle state.
type State int

const (
	Idle State = iota
	AdvDataPending
	AdvDataSet
	ScanRspPending
	ScanRspSet
	Advertising
	Stopped
)

var stateNames = [...]string{
	Idle:           "idle",
	AdvDataPending: "adv-data-pending",
	AdvDataSet:     "adv-data-set",
	ScanRspPending: "scan-rsp-pending",
	ScanRspSet:     "scan-rsp-set",
	Advertising:    "advertising",
	Stopped:        "stopped",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ErrBusy is returned by Begin when a configuration handshake is already
// under way or done.
var ErrBusy = errors.New("adv: advertising already configured")

// Advertiser sequences payload configuration and advertising starts:
// advertising data first, then the scan response, then start. Each step is
// taken only after the previous one is confirmed.
//
// Advertiser is not safe for concurrent use; it is owned by the server
// loop that also delivers its completion events.
type Advertiser struct {
	radio    Radio
	cfg      Config
	state    State
	restarts int
	starts   int
	log      *slog.Logger
}

// New returns an idle Advertiser for cfg. A nil log uses slog.Default.
func New(radio Radio, cfg Config, log *slog.Logger) *Advertiser {
	if log == nil {
		log = slog.Default()
	}
	return &Advertiser{radio: radio, cfg: cfg, log: log}
}

// State returns the current state.
func (a *Advertiser) State() State { return a.state }

// Config returns the advertising configuration.
func (a *Advertiser) Config() Config { return a.cfg }

// Restarts returns how many times advertising was restarted after a
// disconnect.
func (a *Advertiser) Restarts() int { return a.restarts }

// Starts returns how many start requests were issued.
func (a *Advertiser) Starts() int { return a.starts }

// Begin submits the advertising payload. It is only valid while idle.
func (a *Advertiser) Begin() error {
	if a.state != Idle {
		return fmt.Errorf("%w (state %s)", ErrBusy, a.state)
	}
	if err := a.radio.ConfigAdvDataRaw(a.cfg.AdvData); err != nil {
		return fmt.Errorf("adv: config adv data: %w: %w", gatt.ErrStackRejected, err)
	}
	a.state = AdvDataPending
	a.log.Debug("[GAP] advertising data submitted", "len", len(a.cfg.AdvData))
	return nil
}

// OnAdvDataSet handles the advertising data completion. On success the scan
// response is submitted; on failure the advertiser returns to idle.
func (a *Advertiser) OnAdvDataSet(s gatt.Status) {
	if a.state != AdvDataPending {
		a.log.Warn("[GAP] unexpected adv data set event", "state", a.state, "status", s)
		return
	}
	if !s.OK() {
		a.log.Error("[GAP] advertising data set failed", "status", s)
		a.state = Idle
		return
	}
	a.state = AdvDataSet
	if err := a.radio.ConfigScanRspDataRaw(a.cfg.ScanRsp); err != nil {
		a.log.Error("[GAP] config scan response data failed", "error", err)
		return
	}
	a.state = ScanRspPending
}

// OnScanRspSet handles the scan response completion. On success
// advertising is started.
func (a *Advertiser) OnScanRspSet(s gatt.Status) {
	if a.state != ScanRspPending {
		a.log.Warn("[GAP] unexpected scan rsp set event", "state", a.state, "status", s)
		return
	}
	if !s.OK() {
		a.log.Error("[GAP] scan response data set failed", "status", s)
		a.state = AdvDataSet
		return
	}
	a.state = ScanRspSet
	a.start()
}

// OnStartComplete handles the advertising start completion.
func (a *Advertiser) OnStartComplete(s gatt.Status) {
	if !s.OK() {
		a.log.Error("[GAP] advertising start failed", "status", s)
		if a.state == Advertising {
			a.state = Stopped
		}
		return
	}
	a.log.Info("[GAP] advertising started")
}

// Stop requests advertising to stop.
func (a *Advertiser) Stop() error {
	if a.state != Advertising {
		return nil
	}
	if err := a.radio.StopAdvertising(); err != nil {
		return fmt.Errorf("adv: stop advertising: %w: %w", gatt.ErrStackRejected, err)
	}
	return nil
}

// OnStopComplete handles the advertising stop completion.
func (a *Advertiser) OnStopComplete(s gatt.Status) {
	if !s.OK() {
		a.log.Error("[GAP] advertising stop failed", "status", s)
		return
	}
	a.state = Stopped
	a.log.Info("[GAP] advertising stopped")
}

// Restart re-issues a start with the stored parameters, as done after
// every disconnect. A failed start is logged and not retried. While a
// payload confirmation is still outstanding nothing is issued: the
// handshake starts advertising itself once the scan response is set.
func (a *Advertiser) Restart() {
	a.restarts++
	if a.state == AdvDataPending || a.state == ScanRspPending {
		a.log.Debug("[GAP] restart deferred to payload handshake", "state", a.state)
		return
	}
	a.state = Stopped
	a.start()
}

// Reset returns the advertiser to idle so that Begin can submit the
// payload again. Counters are kept.
func (a *Advertiser) Reset() { a.state = Idle }

func (a *Advertiser) start() {
	a.starts++
	if err := a.radio.StartAdvertising(a.cfg.Params); err != nil {
		a.log.Warn("[GAP] start advertising failed", "error", err)
		a.state = Stopped
		return
	}
	a.state = Advertising
}
