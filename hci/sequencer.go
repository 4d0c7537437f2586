package hci

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/corvidlabs/bthost/dispatch"
	"github.com/corvidlabs/bthost/hci/evt"
)

// ErrSequenceCanceled reports a Cancel() on a running sequencer.
var ErrSequenceCanceled = errors.New("command sequence canceled")

type seqEntry struct {
	c         Command
	cb        CommandCallback
	exclusive bool
	complete  EventSpec
	excluded  []uint8
}

// Sequencer runs a queued batch of commands with partial ordering: a
// command queued with wait=true starts strictly after everything queued
// before it completed; wait=false lets it run concurrently with the
// batch it joins. On the first failure, not-yet-sent commands are
// abandoned; commands already on the wire still complete to their own
// callbacks. All callbacks run on the sequencer's queue.
type Sequencer struct {
	ch CommandChannel
	q  dispatch.Queue

	batches [][]*seqEntry

	running  bool
	gen      int
	runCb    func(error)
	batchIdx int
	inFlight int
	failure  error
}

func NewSequencer(ch CommandChannel, q dispatch.Queue) *Sequencer {
	return &Sequencer{ch: ch, q: q}
}

// QueueCommand appends c. cb may be nil; it receives the command's own
// completion regardless of how the sequence ends.
func (s *Sequencer) QueueCommand(c Command, cb CommandCallback, wait bool) {
	s.queue(&seqEntry{c: c, cb: cb}, wait)
}

// QueueExclusiveCommand appends a command completed by a later event.
func (s *Sequencer) QueueExclusiveCommand(c Command, cb CommandCallback, wait bool, complete EventSpec, excluded ...uint8) {
	s.queue(&seqEntry{c: c, cb: cb, exclusive: true, complete: complete, excluded: excluded}, wait)
}

func (s *Sequencer) queue(e *seqEntry, wait bool) {
	if wait || len(s.batches) == 0 {
		s.batches = append(s.batches, []*seqEntry{e})
		return
	}
	last := len(s.batches) - 1
	s.batches[last] = append(s.batches[last], e)
}

// IsReady reports whether a new sequence may be queued and run.
func (s *Sequencer) IsReady() bool {
	return !s.running
}

// HasQueuedCommands reports whether anything is queued but not yet run.
func (s *Sequencer) HasQueuedCommands() bool {
	return len(s.batches) > 0
}

// RunCommands issues the queued commands. cb fires exactly once with
// nil, the first command failure, or ErrSequenceCanceled.
func (s *Sequencer) RunCommands(cb func(error)) {
	if s.running {
		s.q.Post(func() { cb(fmt.Errorf("sequence already running")) })
		return
	}
	if len(s.batches) == 0 {
		s.q.Post(func() { cb(nil) })
		return
	}
	s.running = true
	s.runCb = cb
	s.batchIdx = 0
	s.failure = nil
	s.sendBatch()
}

// Cancel abandons the in-flight sequence and resets the sequencer to
// ready. Commands already sent still complete and notify their own
// callbacks.
func (s *Sequencer) Cancel() {
	if !s.running {
		s.batches = nil
		return
	}
	cb := s.runCb
	s.reset()
	s.q.Post(func() { cb(ErrSequenceCanceled) })
}

func (s *Sequencer) reset() {
	s.running = false
	s.runCb = nil
	s.batches = nil
	s.inFlight = 0
	s.gen++
}

func (s *Sequencer) sendBatch() {
	batch := s.batches[s.batchIdx]
	gen := s.gen
	s.inFlight = len(batch)

	for _, e := range batch {
		entry := e
		done := func(res CommandResult) {
			// the entry's own callback always fires, even after a
			// cancel or an unrelated failure
			if entry.cb != nil {
				entry.cb(res)
			}
			s.commandDone(gen, res)
		}

		var err error
		if entry.exclusive {
			err = s.ch.SendExclusiveCommand(entry.c, s.q, s.exclusiveDone(gen, entry), entry.complete, entry.excluded...)
		} else {
			err = s.ch.SendCommand(entry.c, s.q, done)
		}
		if err != nil {
			s.q.Post(func() { s.sendFailed(gen, err) })
		}
	}
}

// exclusiveDone filters out the intermediate Command Status of an
// exclusive command so only its completion event settles the entry.
func (s *Sequencer) exclusiveDone(gen int, entry *seqEntry) CommandCallback {
	return func(res CommandResult) {
		if res.EventCode == evt.CommandStatusCode && res.Status == 0 {
			// successful Command Status, wait for the completion event
			return
		}
		if entry.cb != nil {
			entry.cb(res)
		}
		s.commandDone(gen, res)
	}
}

func (s *Sequencer) sendFailed(gen int, err error) {
	if gen != s.gen || !s.running {
		return
	}
	s.finish(err)
}

func (s *Sequencer) commandDone(gen int, res CommandResult) {
	if gen != s.gen || !s.running {
		return
	}
	if res.Status != 0 && s.failure == nil {
		s.failure = ErrCommand(res.Status)
	}
	s.inFlight--
	if s.inFlight > 0 {
		return
	}
	if s.failure != nil {
		s.finish(s.failure)
		return
	}
	s.batchIdx++
	if s.batchIdx >= len(s.batches) {
		s.finish(nil)
		return
	}
	s.sendBatch()
}

func (s *Sequencer) finish(err error) {
	cb := s.runCb
	s.reset()
	s.q.Post(func() { cb(err) })
}
