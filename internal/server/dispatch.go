package server

import (
	"encoding/hex"
	"fmt"

	"github.com/chaz8081/gatt-peripheral/internal/gatt"
	"github.com/chaz8081/gatt-peripheral/internal/profile"
	"github.com/chaz8081/gatt-peripheral/internal/stack"
)

// dispatch routes one stack event. It runs on the loop.
func (s *Server) dispatch(ev stack.Event) {
	switch e := ev.(type) {
	case stack.Registered:
		s.onRegister(e)
	case stack.AttrTableCreated:
		s.onAttrTableCreated(e)
	case stack.ServiceStarted:
		s.onServiceStarted(e)
	case stack.Connected:
		s.onConnect(e)
	case stack.Disconnected:
		s.onDisconnect(e)
	case stack.MTUChanged:
		s.onMTU(e)
	case stack.Read:
		s.onRead(e)
	case stack.Write:
		s.onWrite(e)
	case stack.ExecWrite:
		s.onExecWrite(e)

	case stack.AdvDataSet:
		s.adv.OnAdvDataSet(e.Status)
	case stack.ScanRspSet:
		s.adv.OnScanRspSet(e.Status)
	case stack.AdvStarted:
		s.adv.OnStartComplete(e.Status)
	case stack.AdvStopped:
		s.adv.OnStopComplete(e.Status)

	case stack.ConnParamsUpdated:
		s.log.Info("[GAP] connection params updated",
			"status", e.Status, "remote", e.Remote,
			"min_int", e.MinInt, "max_int", e.MaxInt,
			"conn_int", e.Interval, "latency", e.Latency, "timeout", e.Timeout)
	case stack.PacketLengthSet:
		s.log.Info("[GAP] packet length set", "status", e.Status, "rx_len", e.RxLen, "tx_len", e.TxLen)
	case stack.Security:
		s.log.Info("[GAP] security event ignored", "kind", e.Kind, "remote", e.Remote, "success", e.Success)

	default:
		s.log.Debug("[BLE] unhandled event", "event", ev.Name())
	}
}

// notify hands ev to the profile's callback.
func (s *Server) notify(p *profile.Profile, ev stack.Event) profile.Reply {
	if p.Callback == nil {
		return profile.Reply{}
	}
	return p.Callback(p, ev)
}

// notifyAll hands a link event to every profile it concerns: the one
// registered as iface, or all registered profiles when iface is none.
func (s *Server) notifyAll(iface gatt.Interface, ev stack.Event) {
	for _, p := range s.reg.All() {
		if p.Iface == gatt.InterfaceNone {
			continue
		}
		if iface == gatt.InterfaceNone || iface == p.Iface {
			s.notify(p, ev)
		}
	}
}

func (s *Server) onRegister(e stack.Registered) {
	p, ok := s.reg.FindByAppID(e.AppID)
	if !ok {
		s.log.Warn("[GATTS] registration for unknown app", "app_id", e.AppID, "gatts_if", e.Iface)
		return
	}
	s.log.Info("[GATTS] app registered", "name", p.Name, "app_id", e.AppID, "gatts_if", e.Iface, "status", e.Status)

	if !e.Status.OK() {
		p.Fail(gatt.Rejected("register app", e.Status))
		s.log.Error("[GATTS] app registration rejected", "name", p.Name, "status", e.Status)
		s.notify(p, e)
		return
	}
	if err := p.MarkRegistered(e.Iface); err != nil {
		s.log.Warn("[GATTS] duplicate registration event", "name", p.Name, "error", err)
		return
	}
	if err := s.builder.Build(p.Iface, p.Table, p.ServiceID.InstanceID); err != nil {
		p.Fail(err)
		s.log.Error("[GATTS] create attribute table failed", "name", p.Name, "error", err)
	}
	s.notify(p, e)
}

func (s *Server) onAttrTableCreated(e stack.AttrTableCreated) {
	p, ok := s.reg.FindByInterface(e.Iface)
	if !ok {
		s.log.Warn("[GATTS] attribute table for unknown interface", "gatts_if", e.Iface, "status", e.Status)
		return
	}
	s.log.Info("[GATTS] attribute table created", "name", p.Name, "status", e.Status, "num_handles", len(e.Handles))

	r, err := s.builder.Complete(e.Status, e.Handles, len(p.Table))
	if err != nil {
		p.Fail(err)
		s.log.Error("[GATTS] attribute table creation failed", "name", p.Name, "error", err)
		s.notify(p, e)
		return
	}
	if err := p.MarkTableBuilt(r); err != nil {
		s.log.Warn("[GATTS] unexpected attribute table event", "name", p.Name, "error", err)
		return
	}
	if err := s.host.StartService(r.Service()); err != nil {
		p.Fail(fmt.Errorf("start service: %w: %w", gatt.ErrStackRejected, err))
		s.log.Error("[GATTS] start service failed", "name", p.Name, "handle", r.Service(), "error", err)
	} else {
		s.log.Info("[GATTS] starting service", "name", p.Name, "handle", r.Service())
	}
	s.notify(p, e)
}

func (s *Server) onServiceStarted(e stack.ServiceStarted) {
	p, ok := s.reg.FindByInterface(e.Iface)
	if !ok {
		p, ok = s.reg.FindByHandle(e.ServiceHandle)
	}
	if !ok {
		s.log.Warn("[GATTS] service start for unknown profile", "gatts_if", e.Iface, "handle", e.ServiceHandle)
		return
	}
	if err := gatt.Rejected("start service", e.Status); err != nil {
		p.Fail(err)
		s.log.Error("[GATTS] service start failed", "name", p.Name, "status", e.Status)
		s.notify(p, e)
		return
	}
	if err := p.MarkStarted(e.ServiceHandle); err != nil {
		s.log.Warn("[GATTS] unexpected service start event", "name", p.Name, "error", err)
		return
	}
	s.log.Info("[GATTS] service started", "name", p.Name, "handle", e.ServiceHandle)
	s.notify(p, e)
}

func (s *Server) onConnect(e stack.Connected) {
	if s.session != nil {
		s.log.Warn("[GATTS] new connection replaces active session", "old_conn_id", s.session.ConnID, "conn_id", e.ConnID)
	}
	s.session = newSession(e.ConnID, e.Remote, s.now())
	s.log.Info("[GATTS] connection established", "conn_id", e.ConnID, "remote", e.Remote)
	s.notifyAll(e.Iface, e)
}

// onDisconnect restarts advertising, once per event. The session is only
// dropped when the event names its connection.
func (s *Server) onDisconnect(e stack.Disconnected) {
	if s.session == nil || s.session.ConnID != e.ConnID {
		s.log.Warn("[GATTS] disconnect for unknown connection", "conn_id", e.ConnID)
	} else {
		s.log.Info("[GATTS] disconnected, restart advertising",
			"conn_id", e.ConnID, "reason", e.Reason, "uptime", s.session.Uptime(s.now()))
		s.session = nil
	}
	s.notifyAll(e.Iface, e)
	s.adv.Restart()
}

func (s *Server) onMTU(e stack.MTUChanged) {
	if s.session == nil || s.session.ConnID != e.ConnID {
		s.log.Warn("[GATTS] mtu for unknown connection", "conn_id", e.ConnID, "mtu", e.MTU)
		return
	}
	s.session.MTU = e.MTU
	s.log.Info("[GATTS] mtu exchanged", "conn_id", e.ConnID, "mtu", e.MTU)
}

// target resolves the profile and attribute a read or write addresses.
func (s *Server) target(iface gatt.Interface, handle uint16) (*profile.Profile, *gatt.Attribute) {
	p, ok := s.reg.FindByInterface(iface)
	if !ok || !p.Handles.Contains(handle) {
		p, ok = s.reg.FindByHandle(handle)
	}
	if !ok {
		return nil, nil
	}
	a, _ := p.Attribute(handle)
	return p, a
}

// mtu returns the MTU of connID, or the default for an unknown link.
func (s *Server) mtu(connID uint16) uint16 {
	if s.session != nil && s.session.ConnID == connID {
		return s.session.MTU
	}
	return gatt.DefaultMTU
}

// onRead serves the part of the callback's value at the read offset.
func (s *Server) onRead(e stack.Read) {
	p, a := s.target(e.Iface, e.Handle)
	s.log.Info("[GATTS] read", "conn_id", e.ConnID, "handle", e.Handle, "offset", e.Offset)
	if a == nil {
		s.log.Warn("[GATTS] read of unknown handle", "handle", e.Handle)
		s.respond(e.Iface, e.ConnID, e.TransID, e.Handle, e.NeedRsp, profile.Reply{Status: gatt.StatusInvalidHandle})
		return
	}
	if a.AutoRsp {
		return
	}
	r := s.notify(p, e)
	if r.Status.OK() {
		r.Value, r.Status = gatt.ReadBlob(r.Value, e.Offset, s.mtu(e.ConnID))
	}
	s.respond(p.Iface, e.ConnID, e.TransID, e.Handle, e.NeedRsp, r)
}

func (s *Server) onWrite(e stack.Write) {
	p, a := s.target(e.Iface, e.Handle)
	s.log.Info("[GATTS] write", "conn_id", e.ConnID, "handle", e.Handle, "len", len(e.Value), "value", hex.EncodeToString(e.Value))
	if a == nil {
		s.log.Warn("[GATTS] write to unknown handle", "handle", e.Handle)
		s.respond(e.Iface, e.ConnID, e.TransID, e.Handle, e.NeedRsp, profile.Reply{Status: gatt.StatusInvalidHandle})
		return
	}
	if a.AutoRsp {
		return
	}
	if e.IsPrep {
		s.onPrepareWrite(p, e)
		return
	}
	s.respond(p.Iface, e.ConnID, e.TransID, e.Handle, e.NeedRsp, s.notify(p, e))
}

// onPrepareWrite queues a long write on the session. The response echoes
// the value back to the central.
func (s *Server) onPrepareWrite(p *profile.Profile, e stack.Write) {
	st := gatt.StatusUnlikely
	if s.session != nil && s.session.ConnID == e.ConnID {
		st = s.session.prep.Add(e.Handle, e.Offset, e.Value)
	}
	if !st.OK() {
		s.log.Warn("[GATTS] prepare write rejected", "conn_id", e.ConnID, "handle", e.Handle, "status", st)
	}
	s.respond(p.Iface, e.ConnID, e.TransID, e.Handle, e.NeedRsp, profile.Reply{Status: st, Value: e.Value})
}

// onExecWrite delivers the assembled prepared writes to their profiles as
// plain writes, or drops them on cancel.
func (s *Server) onExecWrite(e stack.ExecWrite) {
	s.log.Info("[GATTS] execute write", "conn_id", e.ConnID, "commit", e.Commit)
	st := gatt.StatusOK
	if s.session != nil && s.session.ConnID == e.ConnID {
		if e.Commit {
			st = s.commitPrepared(e)
		} else {
			s.session.prep.Cancel()
		}
	}
	if p, ok := s.reg.FindByInterface(e.Iface); ok {
		s.notify(p, e)
	}
	s.respond(e.Iface, e.ConnID, e.TransID, 0, true, profile.Reply{Status: st})
}

// commitPrepared resolves every assembled value before delivering any, so
// an unknown handle fails the batch without applying part of it.
func (s *Server) commitPrepared(e stack.ExecWrite) gatt.Status {
	values, st := s.session.prep.Execute()
	if !st.OK() {
		s.log.Warn("[GATTS] execute write failed", "conn_id", e.ConnID, "status", st)
		return st
	}
	owners := make([]*profile.Profile, len(values))
	for i, v := range values {
		p, a := s.target(e.Iface, v.Handle)
		if a == nil {
			s.log.Warn("[GATTS] execute write to unknown handle", "conn_id", e.ConnID, "handle", v.Handle)
			return gatt.StatusInvalidHandle
		}
		owners[i] = p
	}
	for i, v := range values {
		p := owners[i]
		s.log.Info("[GATTS] long write", "conn_id", e.ConnID, "handle", v.Handle, "len", len(v.Value), "value", hex.EncodeToString(v.Value))
		w := stack.Write{Iface: p.Iface, ConnID: e.ConnID, TransID: e.TransID, Handle: v.Handle, Value: v.Value}
		if r := s.notify(p, w); !r.Status.OK() {
			st = r.Status
		}
	}
	return st
}

func (s *Server) respond(iface gatt.Interface, connID uint16, transID uint32, handle uint16, need bool, r profile.Reply) {
	if !need {
		return
	}
	err := s.host.SendResponse(stack.Response{
		Iface:   iface,
		ConnID:  connID,
		TransID: transID,
		Handle:  handle,
		Status:  r.Status,
		Value:   r.Value,
	})
	if err != nil {
		s.log.Error("[GATTS] send response failed", "conn_id", connID, "handle", handle, "error", err)
	}
}
