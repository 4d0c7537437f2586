package gap

import (
	"time"

	"github.com/corvidlabs/bthost"
	"github.com/corvidlabs/bthost/dispatch"
)

// DefaultPeerExpiry is how long a temporary peer survives without any
// mutation before the cache drops it.
const DefaultPeerExpiry = 60 * time.Second

// PeerCache owns every Peer. It is the single source of truth for peer
// existence: only cache methods construct or destroy peers, and all
// other components re-resolve by PeerID rather than holding a *Peer
// across dispatcher turns.
type PeerCache struct {
	q dispatch.Queue

	peers      map[bthost.PeerID]*peerRecord
	addressMap map[bthost.DeviceAddr]bthost.PeerID
	irl        *IdentityResolvingList

	expiry time.Duration

	updatedCbs []func(*Peer)
	removedCbs []func(bthost.PeerID)
	bondedCbs  []func(BondData)

	logger bthost.Logger
}

type peerRecord struct {
	peer        *Peer
	expiryTimer *dispatch.Timer
}

func NewPeerCache(q dispatch.Queue) *PeerCache {
	return &PeerCache{
		q:          q,
		peers:      make(map[bthost.PeerID]*peerRecord),
		addressMap: make(map[bthost.DeviceAddr]bthost.PeerID),
		irl:        NewIdentityResolvingList(),
		expiry:     DefaultPeerExpiry,
		logger:     bthost.GetLogger().ChildLogger(map[string]interface{}{"component": "gap.cache"}),
	}
}

// SetPeerExpiry overrides the temporary-peer idle timeout.
func (c *PeerCache) SetPeerExpiry(d time.Duration) { c.expiry = d }

// OnPeerUpdated registers fn for peer creation and mutation.
func (c *PeerCache) OnPeerUpdated(fn func(*Peer)) { c.updatedCbs = append(c.updatedCbs, fn) }

// OnPeerRemoved registers fn for peer removal (expiry or explicit).
func (c *PeerCache) OnPeerRemoved(fn func(bthost.PeerID)) { c.removedCbs = append(c.removedCbs, fn) }

// OnPeerBonded registers fn to receive bond material for persistence.
func (c *PeerCache) OnPeerBonded(fn func(BondData)) { c.bondedCbs = append(c.bondedCbs, fn) }

// NewPeer creates a temporary peer for address. Returns nil if the
// address, its resolved identity, or its cross-technology alias already
// maps to a peer.
func (c *PeerCache) NewPeer(address bthost.DeviceAddr, connectable bool) *Peer {
	if c.findIDByAddress(address) != "" {
		return nil
	}
	p := c.insertPeer(address, connectable)
	c.notifyUpdated(p)
	return p
}

func (c *PeerCache) insertPeer(address bthost.DeviceAddr, connectable bool) *Peer {
	id := bthost.NewPeerID()
	var p *Peer
	p = newPeer(id, address, connectable, func() {
		c.updateExpiry(id)
		c.notifyUpdated(p)
	}, func() {
		c.makeDualMode(id)
	})
	c.peers[id] = &peerRecord{peer: p}
	c.addressMap[address] = id
	c.updateExpiry(id)
	return p
}

// AddBondedPeer restores a bonded peer from the bond store without
// firing the bonded notification. Fails if the mandatory key material
// for the address's technology is missing or the address is taken.
func (c *PeerCache) AddBondedPeer(bd BondData) bool {
	if c.findIDByAddress(bd.Address) != "" {
		return false
	}
	if bd.Address.IsLE() {
		if !bd.LE.hasKeys() {
			return false
		}
	} else if bd.BrEdr == nil {
		return false
	}

	p := c.insertPeer(bd.Address, true)
	p.name = bd.Name
	if bd.LE != nil {
		p.MutLE().bond = bd.LE
		p.identityKnown = true
		if bd.LE.IRK != nil {
			identity := p.address
			if bd.LE.IdentityAddress != nil {
				identity = *bd.LE.IdentityAddress
			}
			c.irl.Register(identity, bd.LE.IRK.Value)
		}
	}
	if bd.BrEdr != nil {
		p.MutBrEdr().linkKey = &bd.BrEdr.LinkKey
	}
	p.temporary = false
	c.updateExpiry(p.id)
	c.notifyUpdated(p)
	return true
}

// StoreLowEnergyBond attaches pairing output to a known peer, marks it
// bonded, updates the address map when an identity address is revealed,
// and registers the IRK for RPA resolution. The bonded notification
// hands the record to the external bond store.
func (c *PeerCache) StoreLowEnergyBond(id bthost.PeerID, bond LowEnergyBondData) bool {
	rec, ok := c.peers[id]
	if !ok {
		return false
	}
	if !bond.hasKeys() {
		return false
	}
	p := rec.peer

	if bond.IdentityAddress != nil && *bond.IdentityAddress != p.address {
		identity := *bond.IdentityAddress
		if other := c.findIDByAddress(identity); other != "" && other != id {
			c.logger.Error("identity address collides with another peer: ", identity.String())
			return false
		}
		delete(c.addressMap, p.address)
		p.address = identity
		c.addressMap[identity] = id
	}

	p.MutLE().SetBondData(bond)
	if bond.IRK != nil {
		c.irl.Register(p.address, bond.IRK.Value)
	}
	c.updateExpiry(id)
	c.notifyBonded(p)
	return true
}

// StoreBrEdrBond attaches a link key to the peer with the given
// address (the LE alias is accepted for dual-mode peers).
func (c *PeerCache) StoreBrEdrBond(address bthost.DeviceAddr, linkKey Key) bool {
	id := c.findIDByAddress(address)
	if id == "" {
		return false
	}
	p := c.peers[id].peer
	p.MutBrEdr().SetBondData(linkKey)
	c.updateExpiry(id)
	c.notifyBonded(p)
	return true
}

// FindByID returns the live peer with id, or nil.
func (c *PeerCache) FindByID(id bthost.PeerID) *Peer {
	if rec, ok := c.peers[id]; ok {
		return rec.peer
	}
	return nil
}

// FindByAddress resolves RPAs through the identity resolving list and
// falls back to the cross-technology alias before giving up.
func (c *PeerCache) FindByAddress(address bthost.DeviceAddr) *Peer {
	if id := c.findIDByAddress(address); id != "" {
		return c.peers[id].peer
	}
	return nil
}

func (c *PeerCache) findIDByAddress(address bthost.DeviceAddr) bthost.PeerID {
	if identity, ok := c.irl.Resolve(address); ok {
		address = identity
	}
	if id, ok := c.addressMap[address]; ok {
		return id
	}
	if alias, ok := address.Alias(); ok {
		if id, ok := c.addressMap[alias]; ok {
			return id
		}
	}
	return ""
}

// RemoveDisconnectedPeer removes a peer that is not connected on any
// technology. Removing an unknown id succeeds trivially; a connected
// peer is left in place and false is returned.
func (c *PeerCache) RemoveDisconnectedPeer(id bthost.PeerID) bool {
	rec, ok := c.peers[id]
	if !ok {
		return true
	}
	if rec.peer.Connected() {
		return false
	}
	c.removePeer(id)
	return true
}

// PeerCount reports the number of live peers.
func (c *PeerCache) PeerCount() int { return len(c.peers) }

// ForEach visits every live peer. The callback must not mutate the
// cache.
func (c *PeerCache) ForEach(fn func(*Peer)) {
	for _, rec := range c.peers {
		fn(rec.peer)
	}
}

func (c *PeerCache) removePeer(id bthost.PeerID) {
	rec, ok := c.peers[id]
	if !ok {
		return
	}
	if rec.expiryTimer != nil {
		rec.expiryTimer.Cancel()
	}
	for addr, mapped := range c.addressMap {
		if mapped == id {
			delete(c.addressMap, addr)
		}
	}
	delete(c.peers, id)
	for _, fn := range c.removedCbs {
		fn(id)
	}
}

// makeDualMode registers the other technology's identity address as an
// alias for the peer. A second alias that already maps elsewhere is an
// index corruption and panics.
func (c *PeerCache) makeDualMode(id bthost.PeerID) {
	rec, ok := c.peers[id]
	if !ok {
		return
	}
	p := rec.peer
	alias, ok := p.address.Alias()
	if !ok {
		return
	}
	if mapped, exists := c.addressMap[alias]; exists {
		if mapped != id {
			panic("gap: dual-mode alias address already maps to a different peer")
		}
	} else {
		c.addressMap[alias] = id
	}
	c.notifyUpdated(p)
}

// updateExpiry cancels and reschedules the idle-expiry timer; bonded
// and otherwise non-temporary peers never expire.
func (c *PeerCache) updateExpiry(id bthost.PeerID) {
	rec, ok := c.peers[id]
	if !ok {
		return
	}
	if rec.expiryTimer != nil {
		rec.expiryTimer.Cancel()
		rec.expiryTimer = nil
	}
	if !rec.peer.temporary {
		return
	}
	rec.expiryTimer = c.q.PostDelayed(c.expiry, func() {
		cur, ok := c.peers[id]
		if !ok || !cur.peer.temporary {
			return
		}
		c.logger.Debug("expiring temporary peer ", id.String())
		c.removePeer(id)
	})
}

func (c *PeerCache) notifyUpdated(p *Peer) {
	for _, fn := range c.updatedCbs {
		fn(p)
	}
}

func (c *PeerCache) notifyBonded(p *Peer) {
	bd := BondData{ID: p.id, Address: p.address, Name: p.name}
	if p.le != nil && p.le.bond != nil {
		bd.LE = p.le.bond
	}
	if p.bredr != nil && p.bredr.linkKey != nil {
		bd.BrEdr = &BrEdrBondData{LinkKey: *p.bredr.linkKey}
	}
	for _, fn := range c.bondedCbs {
		fn(bd)
	}
	c.notifyUpdated(p)
}
