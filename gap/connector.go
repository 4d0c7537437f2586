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

// ErrConnectionCanceled reports a connection attempt torn down by
// Cancel or connector destruction before it completed.
var ErrConnectionCanceled = errors.New("connection attempt canceled")

type ConnectorState int

const (
	ConnectorIdle ConnectorState = iota
	ConnectorStartingScanning
	ConnectorScanning
	ConnectorConnecting
	ConnectorInterrogating
	ConnectorAwaitingDisconnect
	ConnectorPauseBeforeRetry
	ConnectorComplete
	ConnectorFailed
)

func (s ConnectorState) String() string {
	switch s {
	case ConnectorIdle:
		return "Idle"
	case ConnectorStartingScanning:
		return "StartingScanning"
	case ConnectorScanning:
		return "Scanning"
	case ConnectorConnecting:
		return "Connecting"
	case ConnectorInterrogating:
		return "Interrogating"
	case ConnectorAwaitingDisconnect:
		return "AwaitingDisconnectForRetry"
	case ConnectorPauseBeforeRetry:
		return "PauseBeforeRetry"
	case ConnectorComplete:
		return "Complete"
	case ConnectorFailed:
		return "Failed"
	}
	return "Unknown"
}

// Retry policy for connections failing with "connection failed to be
// established" (0x3E): 3 attempts total, backoff 2 s doubling.
const (
	maxConnectionAttempts = 3
	retryBackoffBase      = 2 * time.Second
)

// Connection request parameters (1.25 ms units for intervals, 10 ms
// units for the supervision timeout).
const (
	connScanInterval   = 0x0060
	connScanWindow     = 0x0030
	connIntervalMin    = 0x0018
	connIntervalMax    = 0x0028
	connSupervisionTmo = 0x00C8
)

// ConnectResult delivers the connector's single outcome.
type ConnectResult func(*Connection, error)

// LowEnergyConnector establishes one LE link to one peer and
// interrogates it. Non-auto-connect outbound attempts scan for the
// target first; inbound connectors start from an established link and
// go straight to interrogation. The result callback fires exactly once.
type LowEnergyConnector struct {
	q     dispatch.Queue
	ch    hci.CommandChannel
	cache *PeerCache

	peerID   bthost.PeerID
	peerAddr bthost.DeviceAddr
	local    bthost.DeviceAddr
	auto     bool
	inbound  bool

	state        ConnectorState
	attempt      int
	conn         *Connection
	interrogator *Interrogator
	scanSeq      *hci.Sequencer
	resultCb     ConnectResult

	retryTimer    *dispatch.Timer
	advHandler    hci.HandlerID
	discHandler   hci.HandlerID
	handlersAdded bool

	logger bthost.Logger
}

// CreateOutboundConnector prepares a connector for peer id. With
// autoConnect the scan phase is skipped and the connection request is
// issued immediately on Start.
func CreateOutboundConnector(q dispatch.Queue, ch hci.CommandChannel, cache *PeerCache, id bthost.PeerID, local bthost.DeviceAddr, autoConnect bool, cb ConnectResult) (*LowEnergyConnector, error) {
	peer := cache.FindByID(id)
	if peer == nil {
		return nil, errors.Errorf("unknown peer %s", id)
	}
	if !peer.Address().IsLE() {
		return nil, errors.Errorf("peer %s is not an LE peer", id)
	}
	return &LowEnergyConnector{
		q:        q,
		ch:       ch,
		cache:    cache,
		peerID:   id,
		peerAddr: peer.Address(),
		local:    local,
		auto:     autoConnect,
		resultCb: cb,
		logger:   bthost.GetLogger().ChildLogger(map[string]interface{}{"component": "gap.connector"}),
	}, nil
}

// CreateInboundConnector wraps an already-established slave link and
// interrogates the peer.
func CreateInboundConnector(q dispatch.Queue, ch hci.CommandChannel, cache *PeerCache, id bthost.PeerID, conn *Connection, cb ConnectResult) *LowEnergyConnector {
	return &LowEnergyConnector{
		q:        q,
		ch:       ch,
		cache:    cache,
		peerID:   id,
		peerAddr: conn.PeerAddress(),
		local:    conn.LocalAddress(),
		inbound:  true,
		conn:     conn,
		resultCb: cb,
		logger:   bthost.GetLogger().ChildLogger(map[string]interface{}{"component": "gap.connector"}),
	}
}

func (c *LowEnergyConnector) State() ConnectorState { return c.state }

// Start kicks off the attempt. Calling it twice is an error reported
// through the result callback.
func (c *LowEnergyConnector) Start() {
	if c.state != ConnectorIdle || c.resultCb == nil {
		return
	}
	c.attempt = 1
	c.addHandlers()

	if peer := c.cache.FindByID(c.peerID); peer != nil {
		peer.MutLE().SetConnectionState(ConnectionStateInitializing)
	}

	if c.inbound {
		c.state = ConnectorInterrogating
		c.interrogate()
		return
	}
	if c.auto {
		c.requestConnection()
		return
	}
	c.startScan()
}

func (c *LowEnergyConnector) addHandlers() {
	if c.handlersAdded {
		return
	}
	c.handlersAdded = true
	c.advHandler = c.ch.AddLEMetaHandler(evt.LEAdvertisingReportSubCode, c.q, c.onAdvertisingReport)
	c.discHandler = c.ch.AddEventHandler(evt.DisconnectionCompleteCode, c.q, c.onDisconnectionComplete)
}

func (c *LowEnergyConnector) removeHandlers() {
	if !c.handlersAdded {
		return
	}
	c.handlersAdded = false
	c.ch.RemoveEventHandler(c.advHandler)
	c.ch.RemoveEventHandler(c.discHandler)
}

// startScan runs a private passive scan until the target is seen.
func (c *LowEnergyConnector) startScan() {
	c.state = ConnectorStartingScanning
	seq := hci.NewSequencer(c.ch, c.q)
	c.scanSeq = seq
	seq.QueueCommand(&cmd.LESetScanParameters{
		LEScanType:     0x00,
		LEScanInterval: connScanInterval,
		LEScanWindow:   connScanWindow,
	}, nil, true)
	seq.QueueCommand(&cmd.LESetScanEnable{LEScanEnable: 0x01}, nil, true)
	seq.RunCommands(func(err error) {
		c.scanSeq = nil
		if c.finished() {
			return
		}
		if err != nil {
			c.fail(err)
			return
		}
		c.state = ConnectorScanning
	})
}

func (c *LowEnergyConnector) onAdvertisingReport(payload []byte) {
	if c.state != ConnectorScanning {
		return
	}
	e := evt.LEAdvertisingReport(payload)
	for i := 0; i < int(e.NumReports()); i++ {
		if e.EventType(i) == evt.AdvTypeScanRsp {
			continue
		}
		addr := leAddr(e.AddressType(i), e.Address(i))
		if c.matchesTarget(addr) {
			c.stopScanThenConnect()
			return
		}
	}
}

// matchesTarget also accepts an RPA resolving to the target's identity.
func (c *LowEnergyConnector) matchesTarget(addr bthost.DeviceAddr) bool {
	if addr == c.peerAddr {
		return true
	}
	peer := c.cache.FindByAddress(addr)
	return peer != nil && peer.ID() == c.peerID
}

func (c *LowEnergyConnector) stopScanThenConnect() {
	c.state = ConnectorConnecting
	err := c.ch.SendCommand(&cmd.LESetScanEnable{LEScanEnable: 0x00}, c.q, func(res hci.CommandResult) {
		if c.finished() || c.state != ConnectorConnecting {
			return
		}
		if err := res.Err(); err != nil {
			c.fail(err)
			return
		}
		c.requestConnection()
	})
	if err != nil {
		c.q.Post(func() { c.fail(err) })
	}
}

func (c *LowEnergyConnector) requestConnection() {
	c.state = ConnectorConnecting
	peerAddrType := uint8(0x00)
	if c.peerAddr.Kind == bthost.AddrLERandom {
		peerAddrType = 0x01
	}
	ownAddrType := uint8(0x00)
	if c.local.Kind == bthost.AddrLERandom {
		ownAddrType = 0x01
	}
	err := c.ch.SendExclusiveCommand(
		&cmd.LECreateConnection{
			LEScanInterval:     connScanInterval,
			LEScanWindow:       connScanWindow,
			PeerAddressType:    peerAddrType,
			PeerAddress:        c.peerAddr.WireBytes(),
			OwnAddressType:     ownAddrType,
			ConnIntervalMin:    connIntervalMin,
			ConnIntervalMax:    connIntervalMax,
			SupervisionTimeout: connSupervisionTmo,
		},
		c.q,
		c.onCreateConnection,
		hci.EventSpec{Code: evt.LEMetaCode, Sub: evt.LEConnectionCompleteSubCode},
	)
	if err != nil {
		c.q.Post(func() { c.fail(err) })
	}
}

func (c *LowEnergyConnector) onCreateConnection(res hci.CommandResult) {
	if c.finished() {
		return
	}
	if res.EventCode == evt.CommandStatusCode {
		if res.Status != 0 {
			c.fail(res.Err())
		}
		return
	}
	if res.Status != 0 {
		c.maybeRetry(hci.ErrCommand(res.Status))
		return
	}
	e := evt.LEConnectionComplete(res.Payload)
	c.conn = NewConnection(c.ch, c.q, e.ConnectionHandle(), c.local, c.peerAddr)
	if peer := c.cache.FindByID(c.peerID); peer != nil {
		peer.MutLE().SetConnectionState(ConnectionStateConnected)
	}
	c.state = ConnectorInterrogating
	c.interrogate()
}

func (c *LowEnergyConnector) interrogate() {
	c.interrogator = NewInterrogator(c.q, c.ch, c.cache)
	c.interrogator.Start(c.peerID, c.conn, func(err error) {
		if c.finished() || c.state != ConnectorInterrogating {
			return
		}
		if err == nil {
			c.succeed()
			return
		}
		if err == hci.ErrConnFailedToEstablish {
			// the link is going down; the disconnect event drives the
			// retry from here
			c.state = ConnectorAwaitingDisconnect
			return
		}
		conn := c.conn
		c.conn = nil
		c.fail(err)
		if conn != nil {
			conn.Close()
		}
	})
}

func (c *LowEnergyConnector) onDisconnectionComplete(payload []byte) {
	e := evt.DisconnectionComplete(payload)
	if c.conn == nil || e.ConnectionHandle() != c.conn.Handle() || e.Status() != 0 {
		return
	}

	switch c.state {
	case ConnectorInterrogating:
		if hci.ErrCommand(e.Reason()) != hci.ErrConnFailedToEstablish {
			return
		}
		c.interrogator.Cancel()
		fallthrough
	case ConnectorAwaitingDisconnect:
		c.conn = nil
		c.markPeerDisconnected()
		c.maybeRetry(hci.ErrConnFailedToEstablish)
	}
}

// maybeRetry schedules another attempt for a 0x3E failure while the
// attempt budget lasts; anything else is terminal.
func (c *LowEnergyConnector) maybeRetry(cause error) {
	if cause != hci.ErrConnFailedToEstablish || c.attempt >= maxConnectionAttempts {
		c.fail(cause)
		return
	}
	delay := retryBackoffBase << (c.attempt - 1)
	c.attempt++
	c.state = ConnectorPauseBeforeRetry
	c.logger.Info("connection failed to establish, retrying in ", delay)
	c.retryTimer = c.q.PostDelayed(delay, func() {
		c.retryTimer = nil
		if c.finished() || c.state != ConnectorPauseBeforeRetry {
			return
		}
		c.requestConnection()
	})
}

func (c *LowEnergyConnector) markPeerDisconnected() {
	if peer := c.cache.FindByID(c.peerID); peer != nil {
		peer.MutLE().SetConnectionState(ConnectionStateNotConnected)
	}
}

// Cancel aborts the attempt in a state-dependent way. It is a no-op
// once the connector completed or failed.
func (c *LowEnergyConnector) Cancel() {
	switch c.state {
	case ConnectorStartingScanning, ConnectorScanning:
		if c.scanSeq != nil {
			c.scanSeq.Cancel()
			c.scanSeq = nil
		}
		c.ch.SendCommand(&cmd.LESetScanEnable{LEScanEnable: 0x00}, c.q, nil)
	case ConnectorConnecting:
		c.ch.SendCommand(&cmd.LECreateConnectionCancel{}, c.q, nil)
	case ConnectorInterrogating:
		c.interrogator.Cancel()
		if c.conn != nil {
			c.conn.Close()
			c.conn = nil
		}
	case ConnectorAwaitingDisconnect, ConnectorPauseBeforeRetry:
		if c.retryTimer != nil {
			c.retryTimer.Cancel()
			c.retryTimer = nil
		}
	default:
		return
	}
	c.markPeerDisconnected()
	c.fail(ErrConnectionCanceled)
}

// Close tears the connector down; a result that never fired is
// synthesized as a cancellation.
func (c *LowEnergyConnector) Close() {
	if !c.finished() {
		c.Cancel()
	}
	// Cancel is a no-op for a connector that never started
	if !c.finished() {
		c.fail(ErrConnectionCanceled)
	}
	c.removeHandlers()
}

func (c *LowEnergyConnector) finished() bool {
	return c.state == ConnectorComplete || c.state == ConnectorFailed
}

func (c *LowEnergyConnector) succeed() {
	c.state = ConnectorComplete
	c.removeHandlers()
	cb := c.resultCb
	c.resultCb = nil
	conn := c.conn
	if cb != nil {
		cb(conn, nil)
	}
}

func (c *LowEnergyConnector) fail(err error) {
	if c.finished() {
		return
	}
	c.state = ConnectorFailed
	c.removeHandlers()
	if c.retryTimer != nil {
		c.retryTimer.Cancel()
		c.retryTimer = nil
	}
	cb := c.resultCb
	c.resultCb = nil
	if cb != nil {
		cb(nil, err)
	}
}
