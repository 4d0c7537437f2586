package gap

import (
	"github.com/pkg/errors"

	"github.com/corvidlabs/bthost"
	"github.com/corvidlabs/bthost/dispatch"
	"github.com/corvidlabs/bthost/hci"
	"github.com/corvidlabs/bthost/hci/cmd"
	"github.com/corvidlabs/bthost/hci/evt"
)

// Legacy advertising payload and interval limits.
const (
	AdvDataMaxLength = 31

	AdvIntervalMin = 0x0020
	AdvIntervalMax = 0x4000
)

// ConnectCallback receives the inbound slave connection while
// advertising was connectable.
type ConnectCallback func(*Connection)

// LowEnergyAdvertiser drives the controller's single legacy
// advertising slot.
type LowEnergyAdvertiser struct {
	q   dispatch.Queue
	ch  hci.CommandChannel
	seq *hci.Sequencer

	advertising bool
	enabling    bool
	address     bthost.DeviceAddr
	connectCb   ConnectCallback

	connHandler hci.HandlerID
	logger      bthost.Logger
}

func NewLowEnergyAdvertiser(q dispatch.Queue, ch hci.CommandChannel) *LowEnergyAdvertiser {
	a := &LowEnergyAdvertiser{
		q:      q,
		ch:     ch,
		seq:    hci.NewSequencer(ch, q),
		logger: bthost.GetLogger().ChildLogger(map[string]interface{}{"component": "gap.advertiser"}),
	}
	a.connHandler = ch.AddLEMetaHandler(evt.LEConnectionCompleteSubCode, q, a.onConnectionComplete)
	return a
}

func (a *LowEnergyAdvertiser) Close() {
	a.ch.RemoveEventHandler(a.connHandler)
}

func (a *LowEnergyAdvertiser) Advertising() bool { return a.advertising || a.enabling }

// StartAdvertising configures and enables advertising under addr. A
// second call under the same address reconfigures in place; a call
// under a different address while the slot is taken is rejected, as are
// anonymous advertising and oversized payloads. statusCb reports the
// outcome of the enable sequence.
func (a *LowEnergyAdvertiser) StartAdvertising(addr bthost.DeviceAddr, data, scanRsp []byte, connectCb ConnectCallback, interval uint16, anonymous bool, statusCb func(error)) {
	if anonymous {
		a.q.Post(func() { statusCb(errors.New("anonymous advertising not supported")) })
		return
	}
	if len(data) > AdvDataMaxLength || len(scanRsp) > AdvDataMaxLength {
		a.q.Post(func() { statusCb(errors.Errorf("advertising payload exceeds %d bytes", AdvDataMaxLength)) })
		return
	}
	if (a.advertising || a.enabling) && a.address != addr {
		a.q.Post(func() { statusCb(errors.New("advertising slot in use by another address")) })
		return
	}
	if !a.seq.IsReady() {
		a.q.Post(func() { statusCb(errors.New("advertising state change already in progress")) })
		return
	}

	if interval < AdvIntervalMin {
		interval = AdvIntervalMin
	}
	if interval > AdvIntervalMax {
		interval = AdvIntervalMax
	}

	connectable := connectCb != nil
	advType := uint8(0x03) // ADV_NONCONN_IND
	switch {
	case connectable:
		advType = 0x00 // ADV_IND
	case len(scanRsp) > 0:
		advType = 0x02 // ADV_SCAN_IND
	}
	ownAddrType := uint8(0x00)
	if addr.Kind == bthost.AddrLERandom {
		ownAddrType = 0x01
	}

	a.enabling = true
	a.address = addr
	a.connectCb = connectCb

	// reconfiguring a live slot requires a disable first
	if a.advertising {
		a.seq.QueueCommand(&cmd.LESetAdvertiseEnable{AdvertisingEnable: 0x00}, nil, true)
	}
	a.seq.QueueCommand(&cmd.LESetAdvertisingParameters{
		AdvertisingIntervalMin: interval,
		AdvertisingIntervalMax: interval,
		AdvertisingType:        advType,
		OwnAddressType:         ownAddrType,
		AdvertisingChannelMap:  0x07,
	}, nil, true)
	a.seq.QueueCommand(advDataCommand(data), nil, false)
	a.seq.QueueCommand(scanRspCommand(scanRsp), nil, false)
	a.seq.QueueCommand(&cmd.LESetAdvertiseEnable{AdvertisingEnable: 0x01}, nil, true)
	a.seq.RunCommands(func(err error) {
		a.enabling = false
		if err != nil {
			a.advertising = false
			a.connectCb = nil
			statusCb(err)
			return
		}
		a.advertising = true
		statusCb(nil)
	})
}

// StopAdvertising disables the slot if addr is the advertised address;
// a non-matching address is a no-op. Both data buffers are cleared so a
// later enable can't leak stale payload.
func (a *LowEnergyAdvertiser) StopAdvertising(addr bthost.DeviceAddr) {
	if (!a.advertising && !a.enabling) || a.address != addr {
		return
	}
	a.stopInternal()
}

func (a *LowEnergyAdvertiser) stopInternal() {
	if !a.seq.IsReady() {
		a.seq.Cancel()
	}
	a.advertising = false
	a.enabling = false
	a.connectCb = nil

	a.seq.QueueCommand(&cmd.LESetAdvertiseEnable{AdvertisingEnable: 0x00}, nil, true)
	a.seq.QueueCommand(advDataCommand(nil), nil, false)
	a.seq.QueueCommand(scanRspCommand(nil), nil, false)
	a.seq.RunCommands(func(err error) {
		if err != nil {
			a.logger.Error("failed to disable advertising: ", err)
		}
	})
}

// onConnectionComplete routes an inbound slave connection to the
// registered callback exactly once and stops advertising.
func (a *LowEnergyAdvertiser) onConnectionComplete(payload []byte) {
	e := evt.LEConnectionComplete(payload)
	if e.Role() != hci.RoleSlave || e.Status() != 0 {
		return
	}
	cb := a.connectCb
	if cb == nil {
		return
	}
	a.connectCb = nil
	a.advertising = false
	a.enabling = false

	peerAddr := leAddr(e.PeerAddressType(), e.PeerAddress())
	conn := NewConnection(a.ch, a.q, e.ConnectionHandle(), a.address, peerAddr)
	cb(conn)
}

func advDataCommand(data []byte) *cmd.LESetAdvertisingData {
	c := &cmd.LESetAdvertisingData{AdvertisingDataLength: uint8(len(data))}
	copy(c.AdvertisingData[:], data)
	return c
}

func scanRspCommand(data []byte) *cmd.LESetScanResponseData {
	c := &cmd.LESetScanResponseData{ScanResponseDataLength: uint8(len(data))}
	copy(c.ScanResponseData[:], data)
	return c
}
