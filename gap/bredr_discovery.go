package gap

import (
	"github.com/corvidlabs/bthost"
	"github.com/corvidlabs/bthost/dispatch"
	"github.com/corvidlabs/bthost/hci"
	"github.com/corvidlabs/bthost/hci/cmd"
	"github.com/corvidlabs/bthost/hci/evt"
)

// General Inquiry Access Code (GIAC) and the default inquiry length
// (N * 1.28 s).
var giacLAP = [3]byte{0x33, 0x8b, 0x9e}

const inquiryLengthDefault = 0x08

type inquiryState int

const (
	inquiryIdle inquiryState = iota
	inquiryStarting
	inquiryActive
)

type discoverableState int

const (
	discoverableOff discoverableState = iota
	discoverablePending
	discoverableOn
)

// BrEdrDiscoverySession is a client handle on the shared inquiry
// procedure. Inquiry keeps (re)starting while at least one session is
// alive; Close deregisters the session.
type BrEdrDiscoverySession struct {
	mgr      *BrEdrDiscoveryManager
	resultCb func(*Peer)
	errorCb  func()
	closed   bool
}

// OnResult sets the callback receiving each discovered or refreshed
// peer. The *Peer is only valid for the duration of the call.
func (s *BrEdrDiscoverySession) OnResult(fn func(*Peer)) { s.resultCb = fn }

// OnError sets the callback fired when the underlying inquiry fails.
func (s *BrEdrDiscoverySession) OnError(fn func()) { s.errorCb = fn }

func (s *BrEdrDiscoverySession) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.mgr.removeSession(s)
}

// BrEdrDiscoverableSession holds inquiry-scan (discoverable) mode on
// while alive.
type BrEdrDiscoverableSession struct {
	mgr    *BrEdrDiscoveryManager
	closed bool
}

func (s *BrEdrDiscoverableSession) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.mgr.removeDiscoverableSession(s)
}

// BrEdrDiscoveryManager reference-counts discovery and discoverable
// sessions over one shared Inquiry procedure and the inquiry-scan
// enable bit.
type BrEdrDiscoveryManager struct {
	q     dispatch.Queue
	ch    hci.CommandChannel
	cache *PeerCache

	state    inquiryState
	sessions map[*BrEdrDiscoverySession]struct{}
	pending  []func(*BrEdrDiscoverySession, error)

	nameRequests map[bthost.PeerID]struct{}

	discState    discoverableState
	discSessions map[*BrEdrDiscoverableSession]struct{}
	discPending  []func(*BrEdrDiscoverableSession, error)

	handlerIDs []hci.HandlerID
	logger     bthost.Logger
}

func NewBrEdrDiscoveryManager(q dispatch.Queue, ch hci.CommandChannel, cache *PeerCache) *BrEdrDiscoveryManager {
	m := &BrEdrDiscoveryManager{
		q:            q,
		ch:           ch,
		cache:        cache,
		sessions:     make(map[*BrEdrDiscoverySession]struct{}),
		nameRequests: make(map[bthost.PeerID]struct{}),
		discSessions: make(map[*BrEdrDiscoverableSession]struct{}),
		logger:       bthost.GetLogger().ChildLogger(map[string]interface{}{"component": "gap.bredr"}),
	}
	m.handlerIDs = append(m.handlerIDs,
		ch.AddEventHandler(evt.InquiryResultCode, q, m.onInquiryResult),
		ch.AddEventHandler(evt.InquiryResultWithRSSICode, q, m.onInquiryResultWithRSSI),
		ch.AddEventHandler(evt.ExtendedInquiryResultCode, q, m.onExtendedInquiryResult),
	)
	return m
}

// Close deregisters event handlers and fails all sessions.
func (m *BrEdrDiscoveryManager) Close() {
	for _, id := range m.handlerIDs {
		m.ch.RemoveEventHandler(id)
	}
	m.invalidateSessions()
}

// RequestDiscovery hands back a discovery session. With inquiry already
// running the callback fires synchronously; while a start is in flight
// it queues; otherwise the Inquiry command is issued and all queued
// callbacks resolve when the controller acknowledges it.
func (m *BrEdrDiscoveryManager) RequestDiscovery(cb func(*BrEdrDiscoverySession, error)) {
	switch m.state {
	case inquiryActive:
		cb(m.addSession(), nil)
	case inquiryStarting:
		m.pending = append(m.pending, cb)
	default:
		m.pending = append(m.pending, cb)
		m.startInquiry()
	}
}

func (m *BrEdrDiscoveryManager) startInquiry() {
	m.state = inquiryStarting
	err := m.ch.SendExclusiveCommand(
		&cmd.Inquiry{LAP: giacLAP, InquiryLength: inquiryLengthDefault},
		m.q,
		m.onInquiryEvent,
		hci.EventSpec{Code: evt.InquiryCompleteCode},
		evt.RemoteNameRequestCompleteCode,
	)
	if err != nil {
		m.q.Post(func() { m.failPending(err) })
	}
}

func (m *BrEdrDiscoveryManager) onInquiryEvent(res hci.CommandResult) {
	switch res.EventCode {
	case evt.CommandStatusCode:
		if res.Status != 0 {
			m.failPending(res.Err())
			return
		}
		m.state = inquiryActive
		pending := m.pending
		m.pending = nil
		for _, cb := range pending {
			cb(m.addSession(), nil)
		}

	case evt.InquiryCompleteCode:
		if res.Status != 0 {
			m.invalidateSessions()
			return
		}
		// natural end of one inquiry round: keep discovering while
		// sessions remain
		m.state = inquiryIdle
		if len(m.sessions) > 0 {
			m.startInquiry()
		}
	}
}

func (m *BrEdrDiscoveryManager) failPending(err error) {
	m.state = inquiryIdle
	pending := m.pending
	m.pending = nil
	for _, cb := range pending {
		cb(nil, err)
	}
}

// invalidateSessions notifies every session of failure and clears them.
func (m *BrEdrDiscoveryManager) invalidateSessions() {
	m.state = inquiryIdle
	sessions := m.sessions
	m.sessions = make(map[*BrEdrDiscoverySession]struct{})
	for s := range sessions {
		s.closed = true
		if s.errorCb != nil {
			s.errorCb()
		}
	}
}

func (m *BrEdrDiscoveryManager) addSession() *BrEdrDiscoverySession {
	s := &BrEdrDiscoverySession{mgr: m}
	m.sessions[s] = struct{}{}
	return s
}

// removeSession drops a session. The in-flight inquiry round, if any,
// always runs to completion; it just stops being restarted once no
// sessions remain.
func (m *BrEdrDiscoveryManager) removeSession(s *BrEdrDiscoverySession) {
	delete(m.sessions, s)
}

func (m *BrEdrDiscoveryManager) onInquiryResult(payload []byte) {
	e := evt.InquiryResult(payload)
	for i := 0; i < int(e.NumResponses()); i++ {
		addr := bthost.AddrFromWire(bthost.AddrBrEdr, e.BDADDR(i))
		m.peerFound(addr, RSSIInvalid, e.ClassOfDevice(i), e.ClockOffset(i), "")
	}
}

func (m *BrEdrDiscoveryManager) onInquiryResultWithRSSI(payload []byte) {
	e := evt.InquiryResultWithRSSI(payload)
	for i := 0; i < int(e.NumResponses()); i++ {
		addr := bthost.AddrFromWire(bthost.AddrBrEdr, e.BDADDR(i))
		m.peerFound(addr, e.RSSI(i), e.ClassOfDevice(i), 0, "")
	}
}

func (m *BrEdrDiscoveryManager) onExtendedInquiryResult(payload []byte) {
	e := evt.ExtendedInquiryResult(payload)
	addr := bthost.AddrFromWire(bthost.AddrBrEdr, e.BDADDR())
	name, _ := parseEIRName(e.ExtendedInquiryResponse())
	m.peerFound(addr, e.RSSI(), e.ClassOfDevice(), 0, name)
}

// peerFound merges one inquiry response into the cache and fans the
// peer out to all live sessions. A name carried in the result (EIR)
// is recorded first so no remote name request goes out for it.
func (m *BrEdrDiscoveryManager) peerFound(addr bthost.DeviceAddr, rssi int8, class [3]byte, clockOffset uint16, name string) {
	peer := m.cache.FindByAddress(addr)
	if peer == nil {
		peer = m.cache.NewPeer(addr, true)
	}
	if peer == nil {
		m.logger.Error("inquiry result for uninsertable address ", addr.String())
		return
	}
	peer.MutBrEdr().SetInquiryData(rssi, class, clockOffset)
	if name != "" {
		peer.SetName(name)
	}

	id := peer.ID()
	for s := range m.sessions {
		if s.resultCb != nil {
			s.resultCb(peer)
		}
	}
	if peer.Name() == "" {
		m.requestPeerName(id, addr, clockOffset)
	}
}

// requestPeerName issues a Remote Name Request, deduplicated per peer
// while one is in flight.
func (m *BrEdrDiscoveryManager) requestPeerName(id bthost.PeerID, addr bthost.DeviceAddr, clockOffset uint16) {
	if _, inFlight := m.nameRequests[id]; inFlight {
		return
	}
	m.nameRequests[id] = struct{}{}

	err := m.ch.SendExclusiveCommand(
		&cmd.RemoteNameRequest{BDADDR: addr.WireBytes(), ClockOffset: clockOffset},
		m.q,
		func(res hci.CommandResult) {
			if res.EventCode == evt.CommandStatusCode {
				if res.Status != 0 {
					delete(m.nameRequests, id)
				}
				return
			}
			delete(m.nameRequests, id)
			if res.Status != 0 {
				return
			}
			e := evt.RemoteNameRequestComplete(res.Payload)
			if peer := m.cache.FindByID(id); peer != nil {
				peer.SetName(e.RemoteName())
			}
		},
		hci.EventSpec{Code: evt.RemoteNameRequestCompleteCode},
		evt.InquiryCompleteCode,
	)
	if err != nil {
		delete(m.nameRequests, id)
	}
}

// RequestDiscoverable hands back a session holding inquiry-scan mode
// on. Concurrent requests while the scan-enable round trip is pending
// coalesce into one read/write.
func (m *BrEdrDiscoveryManager) RequestDiscoverable(cb func(*BrEdrDiscoverableSession, error)) {
	switch m.discState {
	case discoverableOn:
		cb(m.addDiscoverableSession(), nil)
	case discoverablePending:
		m.discPending = append(m.discPending, cb)
	default:
		m.discState = discoverablePending
		m.discPending = append(m.discPending, cb)
		m.setInquiryScan(true)
	}
}

func (m *BrEdrDiscoveryManager) addDiscoverableSession() *BrEdrDiscoverableSession {
	s := &BrEdrDiscoverableSession{mgr: m}
	m.discSessions[s] = struct{}{}
	return s
}

func (m *BrEdrDiscoveryManager) removeDiscoverableSession(s *BrEdrDiscoverableSession) {
	delete(m.discSessions, s)
	if len(m.discSessions) == 0 && m.discState == discoverableOn {
		m.discState = discoverablePending
		m.setInquiryScan(false)
	}
}

// setInquiryScan reads the scan-enable bitmask and conditionally
// writes it with the inquiry-scan bit set or cleared.
func (m *BrEdrDiscoveryManager) setInquiryScan(enable bool) {
	err := m.ch.SendCommand(&cmd.ReadScanEnable{}, m.q, func(res hci.CommandResult) {
		if res.Status != 0 {
			m.failDiscoverable(res.Err())
			return
		}
		var rp cmd.ReadScanEnableRP
		if err := rp.Unmarshal(res.Payload); err != nil {
			m.failDiscoverable(err)
			return
		}
		want := rp.ScanEnable
		if enable {
			want |= hci.ScanEnableInquiry
		} else {
			want &^= hci.ScanEnableInquiry
		}
		if want == rp.ScanEnable {
			m.inquiryScanDone(enable, nil)
			return
		}
		err := m.ch.SendCommand(&cmd.WriteScanEnable{ScanEnable: want}, m.q, func(res hci.CommandResult) {
			m.inquiryScanDone(enable, res.Err())
		})
		if err != nil {
			m.failDiscoverable(err)
		}
	})
	if err != nil {
		m.q.Post(func() { m.failDiscoverable(err) })
	}
}

func (m *BrEdrDiscoveryManager) inquiryScanDone(enabled bool, err error) {
	if err != nil {
		m.failDiscoverable(err)
		return
	}
	if !enabled {
		m.discState = discoverableOff
		// sessions created while the disable round trip was pending
		if len(m.discPending) > 0 {
			m.discState = discoverablePending
			m.setInquiryScan(true)
		}
		return
	}
	m.discState = discoverableOn
	pending := m.discPending
	m.discPending = nil
	for _, cb := range pending {
		cb(m.addDiscoverableSession(), nil)
	}
}

func (m *BrEdrDiscoveryManager) failDiscoverable(err error) {
	m.discState = discoverableOff
	pending := m.discPending
	m.discPending = nil
	for _, cb := range pending {
		cb(nil, err)
	}
}

// parseEIRName extracts a shortened or complete local name from an EIR
// data block.
func parseEIRName(eir []byte) (string, bool) {
	for len(eir) >= 2 {
		l := int(eir[0])
		if l == 0 || l+1 > len(eir) {
			break
		}
		typ := eir[1]
		data := eir[2 : l+1]
		if typ == 0x08 || typ == 0x09 { // shortened / complete local name
			return string(data), true
		}
		eir = eir[l+1:]
	}
	return "", false
}
