// Package hcitest provides a scripted CommandChannel for driving the
// GAP state machines in tests. Commands are recorded instead of hitting
// a controller; the test completes them explicitly and injects events.
// All callbacks are posted to the queues the callers supplied, so a
// dispatchtest.Queue gives full control over execution order.
package hcitest

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/corvidlabs/bthost/dispatch"
	"github.com/corvidlabs/bthost/hci"
	"github.com/corvidlabs/bthost/hci/evt"
)

// SentCommand records one issued command with its marshaled parameters.
type SentCommand struct {
	OpCode int
	Params []byte
}

type pending struct {
	op        int
	q         dispatch.Queue
	cb        hci.CommandCallback
	exclusive bool
	complete  hci.EventSpec
}

type sub struct {
	id   hci.HandlerID
	code uint8
	subC uint8
	le   bool
	q    dispatch.Queue
	fn   hci.EventHandler
}

// Channel implements hci.CommandChannel against scripted responses.
type Channel struct {
	mu      sync.Mutex
	sentLog []SentCommand
	pending []*pending
	subs    map[hci.HandlerID]*sub
	closed  bool
}

func NewChannel() *Channel {
	return &Channel{subs: make(map[hci.HandlerID]*sub)}
}

func (t *Channel) SendCommand(c hci.Command, q dispatch.Queue, cb hci.CommandCallback) error {
	return t.record(c, &pending{op: c.OpCode(), q: q, cb: cb})
}

func (t *Channel) SendExclusiveCommand(c hci.Command, q dispatch.Queue, cb hci.CommandCallback, complete hci.EventSpec, excluded ...uint8) error {
	return t.record(c, &pending{op: c.OpCode(), q: q, cb: cb, exclusive: true, complete: complete})
}

func (t *Channel) record(c hci.Command, p *pending) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return fmt.Errorf("hci closed")
	}
	b := make([]byte, c.Len())
	if err := c.Marshal(b); err != nil {
		return err
	}
	t.sentLog = append(t.sentLog, SentCommand{OpCode: c.OpCode(), Params: b})
	t.pending = append(t.pending, p)
	return nil
}

func (t *Channel) AddEventHandler(code uint8, q dispatch.Queue, fn hci.EventHandler) hci.HandlerID {
	return t.addSub(&sub{id: hci.HandlerID(uuid.NewString()), code: code, q: q, fn: fn})
}

func (t *Channel) AddLEMetaHandler(subCode uint8, q dispatch.Queue, fn hci.EventHandler) hci.HandlerID {
	return t.addSub(&sub{id: hci.HandlerID(uuid.NewString()), code: evt.LEMetaCode, subC: subCode, le: true, q: q, fn: fn})
}

func (t *Channel) addSub(s *sub) hci.HandlerID {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subs[s.id] = s
	return s.id
}

func (t *Channel) RemoveEventHandler(id hci.HandlerID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.subs, id)
}

func (t *Channel) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

// Sent returns the log of issued commands.
func (t *Channel) Sent() []SentCommand {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]SentCommand, len(t.sentLog))
	copy(out, t.sentLog)
	return out
}

// SentOpCodes returns only opcodes, convenient for assertions.
func (t *Channel) SentOpCodes() []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]int, len(t.sentLog))
	for i, s := range t.sentLog {
		out[i] = s.OpCode
	}
	return out
}

// CountSent returns how many commands with op were issued.
func (t *Channel) CountSent(op int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, s := range t.sentLog {
		if s.OpCode == op {
			n++
		}
	}
	return n
}

// ClearSent drops the command log (pending callbacks are kept).
func (t *Channel) ClearSent() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sentLog = nil
}

// CompleteCommand delivers a Command Complete for the oldest pending
// command with op. params excludes the status byte.
func (t *Channel) CompleteCommand(op int, status uint8, params ...byte) {
	p := t.take(op)
	if p == nil {
		panic(fmt.Sprintf("hcitest: no pending command 0x%04x", op))
	}
	payload := append([]byte{status}, params...)
	res := hci.CommandResult{EventCode: evt.CommandCompleteCode, Status: status, Payload: payload}
	if cb := p.cb; cb != nil {
		p.q.Post(func() { cb(res) })
	}
}

// StatusCommand delivers a Command Status. For a failing status on an
// exclusive command this settles it; a zero status leaves its
// completion to CompleteExclusive.
func (t *Channel) StatusCommand(op int, status uint8) {
	t.mu.Lock()
	var p *pending
	for _, e := range t.pending {
		if e.op == op {
			p = e
			break
		}
	}
	if p != nil && (!p.exclusive || status != 0) {
		t.remove(p)
	}
	t.mu.Unlock()
	if p == nil {
		panic(fmt.Sprintf("hcitest: no pending command 0x%04x", op))
	}
	res := hci.CommandResult{EventCode: evt.CommandStatusCode, Status: status}
	if cb := p.cb; cb != nil {
		p.q.Post(func() { cb(res) })
	}
}

// CompleteExclusive finishes the oldest exclusive command matching the
// event with the full event parameter block (for LE meta events the
// subevent code leads the payload).
func (t *Channel) CompleteExclusive(code uint8, payload []byte) {
	var subC uint8
	if code == evt.LEMetaCode && len(payload) > 0 {
		subC = payload[0]
	}

	t.mu.Lock()
	var p *pending
	for _, e := range t.pending {
		if e.exclusive && e.complete.Code == code && (code != evt.LEMetaCode || e.complete.Sub == subC) {
			p = e
			break
		}
	}
	if p != nil {
		t.remove(p)
	}
	t.mu.Unlock()
	if p == nil {
		panic(fmt.Sprintf("hcitest: no pending exclusive command for event 0x%02x", code))
	}

	res := hci.CommandResult{EventCode: code, SubCode: subC, Payload: payload}
	switch {
	case code == evt.LEMetaCode && len(payload) > 1:
		res.Status = payload[1]
	case len(payload) > 0:
		res.Status = payload[0]
	}
	if cb := p.cb; cb != nil {
		p.q.Post(func() { cb(res) })
	}
}

// InjectEvent fans an event out to registered handlers.
func (t *Channel) InjectEvent(code uint8, payload []byte) {
	t.fanout(code, 0, false, payload)
}

// InjectLEMeta fans out an LE meta event; payload starts with the
// subevent code.
func (t *Channel) InjectLEMeta(payload []byte) {
	var subC uint8
	if len(payload) > 0 {
		subC = payload[0]
	}
	t.fanout(evt.LEMetaCode, subC, true, payload)
}

func (t *Channel) fanout(code, subC uint8, le bool, payload []byte) {
	t.mu.Lock()
	var targets []*sub
	for _, s := range t.subs {
		if s.code != code {
			continue
		}
		if s.le && s.subC != subC {
			continue
		}
		targets = append(targets, s)
	}
	t.mu.Unlock()
	for _, s := range targets {
		fn := s.fn
		s.q.Post(func() { fn(payload) })
	}
}

// PendingCount reports commands waiting for a scripted response.
func (t *Channel) PendingCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

func (t *Channel) take(op int) *pending {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range t.pending {
		if e.op == op {
			t.remove(e)
			return e
		}
	}
	return nil
}

// remove expects mu held.
func (t *Channel) remove(p *pending) {
	for i, e := range t.pending {
		if e == p {
			t.pending = append(t.pending[:i], t.pending[i+1:]...)
			return
		}
	}
}
