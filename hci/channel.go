package hci

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/corvidlabs/bthost"
	"github.com/corvidlabs/bthost/dispatch"
	"github.com/corvidlabs/bthost/hci/evt"
)

type pendingCmd struct {
	op int
	q  dispatch.Queue
	cb CommandCallback
}

type exclusiveState struct {
	pendingCmd
	complete EventSpec
	excluded []uint8
}

type exclusiveReq struct {
	c        Command
	q        dispatch.Queue
	cb       CommandCallback
	complete EventSpec
	excluded []uint8
}

type eventSub struct {
	id   HandlerID
	code uint8
	sub  uint8
	le   bool
	q    dispatch.Queue
	fn   EventHandler
}

// Channel drives an HCI command/event transport and implements
// CommandChannel. One command per opcode may be outstanding; controller
// flow control follows NumHCICommandPackets.
type Channel struct {
	transport transport
	skt       io.ReadWriteCloser

	chCmdBufs chan []byte
	muSent    sync.Mutex
	sent      map[int]*pendingCmd

	exclusive *exclusiveState
	exclWait  []*exclusiveReq

	muSub sync.Mutex
	subs  map[HandlerID]*eventSub

	muClose   sync.Mutex
	done      chan struct{}
	sktRxChan chan []byte
	err       error

	logger bthost.Logger
}

// NewChannel returns an unopened channel; call Init after setting a
// transport through the options.
func NewChannel(opts ...Option) (*Channel, error) {
	ch := &Channel{
		chCmdBufs: make(chan []byte, chCmdBufChanSize),
		sent:      make(map[int]*pendingCmd),
		subs:      make(map[HandlerID]*eventSub),
		done:      make(chan struct{}),
		sktRxChan: make(chan []byte, 16),
		logger:    bthost.GetLogger().ChildLogger(map[string]interface{}{"component": "hci"}),
	}
	for _, opt := range opts {
		if err := opt(ch); err != nil {
			return nil, errors.Wrap(err, "can't set options")
		}
	}
	return ch, nil
}

// Init opens the transport and starts the receive loops.
func (ch *Channel) Init() error {
	if ch.skt == nil {
		skt, err := getTransport(ch.transport)
		if err != nil {
			return err
		}
		ch.skt = skt
	}
	ch.setAllowedCommands(1)
	go ch.sktReadLoop()
	go ch.sktProcessLoop()
	return nil
}

func (ch *Channel) Close() error {
	ch.muClose.Lock()
	defer ch.muClose.Unlock()

	select {
	case <-ch.done:
	default:
		close(ch.done)
		if ch.skt != nil {
			return ch.skt.Close()
		}
	}
	return nil
}

func (ch *Channel) isOpen() bool {
	select {
	case <-ch.done:
		return false
	default:
		return true
	}
}

// SendCommand issues c and delivers its Command Complete (or failing
// Command Status) to cb on q.
func (ch *Channel) SendCommand(c Command, q dispatch.Queue, cb CommandCallback) error {
	return ch.sendCmd(c, &pendingCmd{op: c.OpCode(), q: q, cb: cb})
}

// SendExclusiveCommand issues a command whose completion arrives as a
// later event. Conflicting exclusive commands queue behind it.
func (ch *Channel) SendExclusiveCommand(c Command, q dispatch.Queue, cb CommandCallback, complete EventSpec, excluded ...uint8) error {
	ch.muSent.Lock()
	if ch.exclusive != nil && ch.exclusiveConflicts(complete, excluded) {
		ch.exclWait = append(ch.exclWait, &exclusiveReq{c: c, q: q, cb: cb, complete: complete, excluded: excluded})
		ch.muSent.Unlock()
		return nil
	}
	ch.exclusive = &exclusiveState{
		pendingCmd: pendingCmd{op: c.OpCode(), q: q, cb: cb},
		complete:   complete,
		excluded:   excluded,
	}
	ch.muSent.Unlock()

	err := ch.sendCmd(c, &pendingCmd{op: c.OpCode(), q: q, cb: cb})
	if err != nil {
		ch.muSent.Lock()
		ch.exclusive = nil
		ch.muSent.Unlock()
		ch.drainExclusiveWaiters()
	}
	return err
}

// exclusiveConflicts reports whether a new exclusive command with the
// given completion would race the one outstanding. Callers hold muSent.
func (ch *Channel) exclusiveConflicts(complete EventSpec, excluded []uint8) bool {
	cur := ch.exclusive
	if cur.complete.Code == complete.Code && cur.complete.Sub == complete.Sub {
		return true
	}
	for _, x := range excluded {
		if cur.complete.Code == x {
			return true
		}
	}
	for _, x := range cur.excluded {
		if complete.Code == x {
			return true
		}
	}
	return false
}

func (ch *Channel) sendCmd(c Command, p *pendingCmd) error {
	if !ch.isOpen() {
		return fmt.Errorf("hci closed")
	}

	ch.muSent.Lock()
	if _, ok := ch.sent[c.OpCode()]; ok {
		ch.muSent.Unlock()
		return fmt.Errorf("command with opcode 0x%04x pending", c.OpCode())
	}
	ch.sent[c.OpCode()] = p
	ch.muSent.Unlock()

	var b []byte
	select {
	case <-ch.done:
		ch.unsent(c.OpCode())
		return fmt.Errorf("hci closed")
	case b = <-ch.chCmdBufs:
	case <-time.After(chCmdBufTimeout):
		ch.unsent(c.OpCode())
		return fmt.Errorf("command buffer timeout")
	}

	b[0] = pktTypeCommand
	b[1] = byte(c.OpCode())
	b[2] = byte(c.OpCode() >> 8)
	b[3] = byte(c.Len())
	if err := c.Marshal(b[4:]); err != nil {
		ch.unsent(c.OpCode())
		return errors.Wrap(err, "marshal cmd")
	}

	if n, err := ch.skt.Write(b[:4+c.Len()]); err != nil {
		ch.unsent(c.OpCode())
		return errors.Wrap(err, "send cmd")
	} else if n != 4+c.Len() {
		ch.unsent(c.OpCode())
		return fmt.Errorf("short write: %v != %v", n, 4+c.Len())
	}
	return nil
}

func (ch *Channel) unsent(op int) {
	ch.muSent.Lock()
	delete(ch.sent, op)
	ch.muSent.Unlock()
}

// AddEventHandler subscribes fn to an event code; its calls are posted
// to q.
func (ch *Channel) AddEventHandler(code uint8, q dispatch.Queue, fn EventHandler) HandlerID {
	return ch.addSub(&eventSub{id: HandlerID(uuid.NewString()), code: code, q: q, fn: fn})
}

// AddLEMetaHandler subscribes fn to an LE meta subevent.
func (ch *Channel) AddLEMetaHandler(sub uint8, q dispatch.Queue, fn EventHandler) HandlerID {
	return ch.addSub(&eventSub{id: HandlerID(uuid.NewString()), code: evt.LEMetaCode, sub: sub, le: true, q: q, fn: fn})
}

func (ch *Channel) addSub(s *eventSub) HandlerID {
	ch.muSub.Lock()
	ch.subs[s.id] = s
	ch.muSub.Unlock()
	return s.id
}

func (ch *Channel) RemoveEventHandler(id HandlerID) {
	ch.muSub.Lock()
	delete(ch.subs, id)
	ch.muSub.Unlock()
}

func (ch *Channel) sktReadLoop() {
	defer close(ch.sktRxChan)

	b := make([]byte, 4096)
	for {
		n, err := ch.skt.Read(b)
		switch {
		case n == 0 && err == nil:
			// read timeout
			select {
			case <-ch.done:
				return
			default:
				continue
			}
		case err == io.EOF:
			ch.err = err
			return
		case err != nil:
			ch.err = fmt.Errorf("skt read error: %v", err)
			return
		default:
			p := make([]byte, n)
			copy(p, b)
			ch.sktRxChan <- p
		}
	}
}

func (ch *Channel) sktProcessLoop() {
	for {
		var p []byte
		var ok bool
		select {
		case <-ch.done:
			return
		case p, ok = <-ch.sktRxChan:
			if !ok {
				return
			}
		}
		if err := ch.handlePkt(p); err != nil {
			ch.logger.Error("pkt: ", err)
		}
	}
}

func (ch *Channel) handlePkt(b []byte) error {
	if len(b) < 1 {
		return fmt.Errorf("empty packet")
	}
	t, b := b[0], b[1:]
	switch t {
	case pktTypeEvent:
		return ch.handleEvt(b)
	case pktTypeACLData:
		// data plane is not this layer's concern
		return nil
	case pktTypeVendor:
		return nil
	default:
		return fmt.Errorf("unsupported packet type 0x%02x", t)
	}
}

func (ch *Channel) handleEvt(b []byte) error {
	if len(b) < 2 {
		return fmt.Errorf("truncated event: % X", b)
	}
	code, plen := b[0], int(b[1])
	payload := b[2:]
	if plen != len(payload) {
		return fmt.Errorf("invalid event length: % X", b)
	}

	switch code {
	case evt.CommandCompleteCode:
		return ch.handleCommandComplete(payload)
	case evt.CommandStatusCode:
		return ch.handleCommandStatus(payload)
	}

	ch.completeExclusive(code, payload)
	ch.fanout(code, payload)
	return nil
}

func (ch *Channel) handleCommandComplete(b []byte) error {
	e := evt.CommandComplete(b)
	ch.setAllowedCommands(int(e.NumHCICommandPackets()))

	op := int(e.CommandOpcode())
	if op == 0x0000 { // NOP, flow control only
		return nil
	}

	ch.muSent.Lock()
	p, found := ch.sent[op]
	delete(ch.sent, op)
	ch.muSent.Unlock()
	if !found {
		return fmt.Errorf("command complete without matching send: opcode 0x%04x", op)
	}

	rp := e.ReturnParameters()
	res := CommandResult{EventCode: evt.CommandCompleteCode, Payload: rp}
	if len(rp) > 0 {
		res.Status = rp[0]
	}
	ch.deliver(p, res)
	return nil
}

func (ch *Channel) handleCommandStatus(b []byte) error {
	e := evt.CommandStatus(b)
	ch.setAllowedCommands(int(e.NumHCICommandPackets()))

	op := int(e.CommandOpcode())
	ch.muSent.Lock()
	p, found := ch.sent[op]
	delete(ch.sent, op)
	failedExclusive := found && ch.exclusive != nil && ch.exclusive.op == op && e.Status() != 0
	if failedExclusive {
		ch.exclusive = nil
	}
	ch.muSent.Unlock()
	if !found {
		return fmt.Errorf("command status without matching send: opcode 0x%04x", op)
	}

	ch.deliver(p, CommandResult{EventCode: evt.CommandStatusCode, Status: e.Status()})
	if failedExclusive {
		ch.drainExclusiveWaiters()
	}
	return nil
}

// completeExclusive finishes the outstanding exclusive command if this
// event is its completion.
func (ch *Channel) completeExclusive(code uint8, payload []byte) {
	var sub uint8
	if code == evt.LEMetaCode && len(payload) > 0 {
		sub = payload[0]
	}

	ch.muSent.Lock()
	cur := ch.exclusive
	if cur == nil || !cur.complete.matches(code, sub) {
		ch.muSent.Unlock()
		return
	}
	ch.exclusive = nil
	ch.muSent.Unlock()

	res := CommandResult{EventCode: code, SubCode: sub, Payload: payload}
	switch {
	case code == evt.LEMetaCode && len(payload) > 1:
		res.Status = payload[1]
	case len(payload) > 0:
		res.Status = payload[0]
	}
	ch.deliver(&cur.pendingCmd, res)
	ch.drainExclusiveWaiters()
}

// drainExclusiveWaiters re-issues held-back exclusive commands now that
// the blocking one is gone.
func (ch *Channel) drainExclusiveWaiters() {
	for {
		ch.muSent.Lock()
		if ch.exclusive != nil || len(ch.exclWait) == 0 {
			ch.muSent.Unlock()
			return
		}
		next := ch.exclWait[0]
		ch.exclWait = ch.exclWait[1:]
		ch.muSent.Unlock()

		if err := ch.SendExclusiveCommand(next.c, next.q, next.cb, next.complete, next.excluded...); err != nil {
			ch.logger.Error("queued exclusive command: ", err)
			// the waiter has no synchronous return path; its callback
			// must still see the failure
			if cb := next.cb; cb != nil {
				next.q.Post(func() {
					cb(CommandResult{EventCode: evt.CommandStatusCode, Status: uint8(ErrUnspecified)})
				})
			}
		} else {
			return
		}
	}
}

func (ch *Channel) fanout(code uint8, payload []byte) {
	var sub uint8
	if code == evt.LEMetaCode && len(payload) > 0 {
		sub = payload[0]
	}

	ch.muSub.Lock()
	var targets []*eventSub
	for _, s := range ch.subs {
		if s.code != code {
			continue
		}
		if s.le && s.sub != sub {
			continue
		}
		targets = append(targets, s)
	}
	ch.muSub.Unlock()

	for _, s := range targets {
		fn, p := s.fn, payload
		s.q.Post(func() { fn(p) })
	}
}

func (ch *Channel) deliver(p *pendingCmd, res CommandResult) {
	cb := p.cb
	if cb == nil {
		return
	}
	p.q.Post(func() { cb(res) })
}

func (ch *Channel) setAllowedCommands(n int) {
	if n > chCmdBufChanSize {
		n = chCmdBufChanSize
	}
	for len(ch.chCmdBufs) < n {
		select {
		case <-ch.done:
			return
		case ch.chCmdBufs <- make([]byte, chCmdBufElementSize):
		default:
			return
		}
	}
}
