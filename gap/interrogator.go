package gap

import (
	"github.com/corvidlabs/bthost"
	"github.com/corvidlabs/bthost/dispatch"
	"github.com/corvidlabs/bthost/hci"
	"github.com/corvidlabs/bthost/hci/cmd"
	"github.com/corvidlabs/bthost/hci/evt"
)

// Interrogator reads a freshly connected LE peer's version information
// and, when not already cached, its supported feature set. Both reads
// are queued in one non-blocking batch; the callback reports the
// aggregate outcome.
type Interrogator struct {
	q     dispatch.Queue
	ch    hci.CommandChannel
	cache *PeerCache

	seq      *hci.Sequencer
	canceled bool
	logger   bthost.Logger
}

func NewInterrogator(q dispatch.Queue, ch hci.CommandChannel, cache *PeerCache) *Interrogator {
	return &Interrogator{
		q:      q,
		ch:     ch,
		cache:  cache,
		logger: bthost.GetLogger().ChildLogger(map[string]interface{}{"component": "gap.interrogator"}),
	}
}

// Start interrogates the peer over conn. cb fires once with nil or the
// first failing command's error, unless Cancel suppressed it.
func (i *Interrogator) Start(id bthost.PeerID, conn *Connection, cb func(error)) {
	i.seq = hci.NewSequencer(i.ch, i.q)
	i.canceled = false
	handle := conn.Handle()

	i.seq.QueueExclusiveCommand(
		&cmd.ReadRemoteVersionInformation{ConnectionHandle: handle},
		func(res hci.CommandResult) { i.onVersion(id, res) },
		true,
		hci.EventSpec{Code: evt.ReadRemoteVersionInformationCompleteCode},
	)

	peer := i.cache.FindByID(id)
	if peer == nil || !peer.MutLE().FeaturesKnown() {
		i.seq.QueueExclusiveCommand(
			&cmd.LEReadRemoteFeatures{ConnectionHandle: handle},
			func(res hci.CommandResult) { i.onFeatures(id, res) },
			false,
			hci.EventSpec{Code: evt.LEMetaCode, Sub: evt.LEReadRemoteFeaturesCompleteSubCode},
		)
	}

	i.seq.RunCommands(func(err error) {
		if i.canceled {
			return
		}
		cb(err)
	})
}

// Cancel abandons a running interrogation without invoking its
// callback. In-flight reads still complete and update the cache.
func (i *Interrogator) Cancel() {
	if i.seq == nil || i.seq.IsReady() {
		return
	}
	i.canceled = true
	i.seq.Cancel()
}

func (i *Interrogator) onVersion(id bthost.PeerID, res hci.CommandResult) {
	if res.Status != 0 {
		return
	}
	e := evt.ReadRemoteVersionInformationComplete(res.Payload)
	if peer := i.cache.FindByID(id); peer != nil {
		peer.SetVersionInfo(e.Version(), e.ManufacturerName(), e.Subversion())
	}
}

func (i *Interrogator) onFeatures(id bthost.PeerID, res hci.CommandResult) {
	if res.Status != 0 {
		return
	}
	e := evt.LEReadRemoteFeaturesComplete(res.Payload)
	if peer := i.cache.FindByID(id); peer != nil {
		peer.MutLE().SetFeatures(e.LEFeatures())
	}
}
