package gap

import (
	"time"

	"github.com/pkg/errors"

	"github.com/corvidlabs/bthost"
	"github.com/corvidlabs/bthost/dispatch"
	"github.com/corvidlabs/bthost/hci"
	"github.com/corvidlabs/bthost/hci/cmd"
	"github.com/corvidlabs/bthost/hci/evt"
)

type ScanState int

const (
	ScanIdle ScanState = iota
	ScanInitiating
	ScanActive
	ScanPassive
	ScanStopping
)

func (s ScanState) String() string {
	switch s {
	case ScanIdle:
		return "Idle"
	case ScanInitiating:
		return "Initiating"
	case ScanActive:
		return "ActiveScanning"
	case ScanPassive:
		return "PassiveScanning"
	case ScanStopping:
		return "Stopping"
	}
	return "Unknown"
}

// ScanResult is one delivered discovery result. ScanResponse marks
// results carried by a SCAN_RSP PDU.
type ScanResult struct {
	PeerID       bthost.PeerID
	Address      bthost.DeviceAddr
	Connectable  bool
	ScanResponse bool
	RSSI         int8
	Data         []byte
}

// ScanDelegate receives scan results on the scanner's queue.
type ScanDelegate interface {
	OnPeerFound(ScanResult)
	// OnDirectedAdvertisement fires for ADV_DIRECT_IND reports; these
	// never carry AD payload and bypass the result buffering.
	OnDirectedAdvertisement(addr bthost.DeviceAddr)
}

// ScanOptions parameterize one StartScan call.
type ScanOptions struct {
	Active   bool
	Interval uint16
	Window   uint16
	// Period bounds a scan; zero means scan until StopScan. Under
	// active scanning a pending result whose scan response never
	// arrived is flushed when the period elapses.
	Period time.Duration
}

type pendingScanResult struct {
	result ScanResult
}

// LowEnergyScanner drives legacy LE scanning. Under active scanning a
// scannable advertisement is held back per address until its SCAN_RSP
// arrives; both are then delivered as separate results.
type LowEnergyScanner struct {
	q     dispatch.Queue
	ch    hci.CommandChannel
	cache *PeerCache
	seq   *hci.Sequencer

	state    ScanState
	delegate ScanDelegate
	active   bool

	pending     map[bthost.DeviceAddr]*pendingScanResult
	periodTimer *dispatch.Timer

	advHandler hci.HandlerID
	logger     bthost.Logger
}

func NewLowEnergyScanner(q dispatch.Queue, ch hci.CommandChannel, cache *PeerCache) *LowEnergyScanner {
	s := &LowEnergyScanner{
		q:       q,
		ch:      ch,
		cache:   cache,
		seq:     hci.NewSequencer(ch, q),
		pending: make(map[bthost.DeviceAddr]*pendingScanResult),
		logger:  bthost.GetLogger().ChildLogger(map[string]interface{}{"component": "gap.scanner"}),
	}
	s.advHandler = ch.AddLEMetaHandler(evt.LEAdvertisingReportSubCode, q, s.onAdvertisingReport)
	return s
}

func (s *LowEnergyScanner) Close() {
	s.ch.RemoveEventHandler(s.advHandler)
}

func (s *LowEnergyScanner) State() ScanState { return s.state }

// StartScan brings the controller into scanning. It is rejected from
// any state but Idle. cb reports the outcome of the enable sequence.
func (s *LowEnergyScanner) StartScan(opt ScanOptions, delegate ScanDelegate, cb func(error)) {
	if s.state != ScanIdle {
		st := s.state
		s.q.Post(func() { cb(errors.Errorf("can't start scan from state %v", st)) })
		return
	}
	s.state = ScanInitiating
	s.delegate = delegate
	s.active = opt.Active

	scanType := uint8(0x00) // passive
	if opt.Active {
		scanType = 0x01
	}
	interval, window := opt.Interval, opt.Window
	if interval == 0 {
		interval = 0x0010
	}
	if window == 0 || window > interval {
		window = interval
	}

	s.seq.QueueCommand(&cmd.LESetScanParameters{
		LEScanType:     scanType,
		LEScanInterval: interval,
		LEScanWindow:   window,
	}, nil, true)
	s.seq.QueueCommand(&cmd.LESetScanEnable{LEScanEnable: 0x01}, nil, true)
	s.seq.RunCommands(func(err error) {
		if err != nil {
			s.state = ScanIdle
			s.delegate = nil
			cb(err)
			return
		}
		if s.active {
			s.state = ScanActive
		} else {
			s.state = ScanPassive
		}
		if opt.Period > 0 {
			s.periodTimer = s.q.PostDelayed(opt.Period, s.onPeriodTimeout)
		}
		cb(nil)
	})
}

// StopScan disables scanning and flushes held-back results.
func (s *LowEnergyScanner) StopScan(cb func(error)) {
	if s.state != ScanActive && s.state != ScanPassive {
		st := s.state
		s.q.Post(func() { cb(errors.Errorf("can't stop scan from state %v", st)) })
		return
	}
	s.stopInternal(cb)
}

func (s *LowEnergyScanner) stopInternal(cb func(error)) {
	s.state = ScanStopping
	s.cancelPeriodTimer()
	s.flushPending()
	err := s.ch.SendCommand(&cmd.LESetScanEnable{LEScanEnable: 0x00}, s.q, func(res hci.CommandResult) {
		s.state = ScanIdle
		s.delegate = nil
		if cb != nil {
			cb(res.Err())
		}
	})
	if err != nil {
		s.q.Post(func() {
			s.state = ScanIdle
			s.delegate = nil
			if cb != nil {
				cb(err)
			}
		})
	}
}

func (s *LowEnergyScanner) onPeriodTimeout() {
	s.periodTimer = nil
	if s.state != ScanActive && s.state != ScanPassive {
		return
	}
	s.stopInternal(nil)
}

func (s *LowEnergyScanner) cancelPeriodTimer() {
	if s.periodTimer != nil {
		s.periodTimer.Cancel()
		s.periodTimer = nil
	}
}

// flushPending delivers every held-back result as-is.
func (s *LowEnergyScanner) flushPending() {
	for addr, p := range s.pending {
		delete(s.pending, addr)
		s.deliver(p.result)
	}
}

func (s *LowEnergyScanner) onAdvertisingReport(payload []byte) {
	if s.state != ScanActive && s.state != ScanPassive {
		return
	}
	e := evt.LEAdvertisingReport(payload)
	for i := 0; i < int(e.NumReports()); i++ {
		s.handleReport(e, i)
	}
}

func (s *LowEnergyScanner) handleReport(e evt.LEAdvertisingReport, i int) {
	addr := leAddr(e.AddressType(i), e.Address(i))

	if e.EventType(i) == evt.AdvTypeAdvDirectInd {
		if s.delegate != nil {
			s.delegate.OnDirectedAdvertisement(addr)
		}
		return
	}

	peer := s.cache.FindByAddress(addr)
	connectable := e.EventType(i) == evt.AdvTypeAdvInd
	if peer == nil {
		peer = s.cache.NewPeer(addr, connectable)
	}
	if peer == nil {
		s.logger.Error("advertising report for uninsertable address ", addr.String())
		return
	}

	data := e.Data(i)
	rssi := e.RSSI(i)

	if e.EventType(i) == evt.AdvTypeScanRsp {
		// SCAN_RSP releases the held-back advertisement first, then
		// goes out as its own result.
		if p, ok := s.pending[addr]; ok {
			delete(s.pending, addr)
			s.deliver(p.result)
		}
		peer.MutLE().SetAdvertisingData(rssi, data)
		s.deliver(ScanResult{
			PeerID:       peer.ID(),
			Address:      addr,
			Connectable:  false,
			ScanResponse: true,
			RSSI:         rssi,
			Data:         append([]byte(nil), data...),
		})
		return
	}

	peer.MutLE().SetAdvertisingData(rssi, data)
	res := ScanResult{
		PeerID:      peer.ID(),
		Address:     addr,
		Connectable: connectable,
		RSSI:        rssi,
		Data:        append([]byte(nil), data...),
	}

	scannable := e.EventType(i) == evt.AdvTypeAdvInd || e.EventType(i) == evt.AdvTypeAdvScanInd
	if s.state == ScanActive && scannable {
		// hold for the matching SCAN_RSP; a newer advertisement
		// replaces a stale held-back one
		if p, ok := s.pending[addr]; ok {
			s.deliver(p.result)
		}
		s.pending[addr] = &pendingScanResult{result: res}
		return
	}
	s.deliver(res)
}

func (s *LowEnergyScanner) deliver(r ScanResult) {
	if s.delegate != nil {
		s.delegate.OnPeerFound(r)
	}
}

// leAddr maps an HCI advertising address type to a DeviceAddr.
func leAddr(addrType uint8, wire [6]byte) bthost.DeviceAddr {
	kind := bthost.AddrLEPublic
	if addrType == 0x01 {
		kind = bthost.AddrLERandom
	}
	return bthost.AddrFromWire(kind, wire)
}
