package gap

import (
	"github.com/corvidlabs/bthost"
)

// ConnectionState of one technology's link to a peer.
type ConnectionState int

const (
	ConnectionStateNotConnected ConnectionState = iota
	ConnectionStateInitializing
	ConnectionStateConnected
)

func (s ConnectionState) String() string {
	switch s {
	case ConnectionStateNotConnected:
		return "not connected"
	case ConnectionStateInitializing:
		return "initializing"
	case ConnectionStateConnected:
		return "connected"
	}
	return "unknown"
}

// TechnologyType classifies which transports a peer has been observed
// on. It only ever widens to DualMode, never narrows back.
type TechnologyType int

const (
	TechnologyLowEnergy TechnologyType = iota
	TechnologyClassic
	TechnologyDualMode
)

func (t TechnologyType) String() string {
	switch t {
	case TechnologyLowEnergy:
		return "le"
	case TechnologyClassic:
		return "classic"
	case TechnologyDualMode:
		return "dual-mode"
	}
	return "unknown"
}

// RSSIInvalid marks an unknown RSSI.
const RSSIInvalid int8 = 127

// Peer is everything known about a remote device. Peers are created
// and destroyed only by PeerCache; all mutation goes through the
// sub-record setters, which route back into the cache so expiry and
// listener notification stay consistent.
type Peer struct {
	id            bthost.PeerID
	address       bthost.DeviceAddr
	identityKnown bool
	connectable   bool
	temporary     bool
	name          string
	rssi          int8

	lmpVersion      uint8
	lmpManufacturer uint16
	lmpSubversion   uint16
	lmpFeatures     uint64
	versionKnown    bool

	technology TechnologyType

	le    *LowEnergyData
	bredr *BrEdrData

	// cache hooks; see PeerCache.insertPeer
	updated       func()
	dualModeAdded func()
}

func newPeer(id bthost.PeerID, address bthost.DeviceAddr, connectable bool, updated, dualModeAdded func()) *Peer {
	tech := TechnologyClassic
	if address.IsLE() {
		tech = TechnologyLowEnergy
	}
	return &Peer{
		id:          id,
		address:     address,
		connectable: connectable,
		temporary:   true,
		rssi:        RSSIInvalid,
		// an address that can't rotate identifies the device
		identityKnown: !address.IsLE() || !address.IsResolvablePrivate() && !address.IsNonResolvablePrivate(),
		technology:    tech,
		updated:       updated,
		dualModeAdded: dualModeAdded,
	}
}

func (p *Peer) ID() bthost.PeerID          { return p.id }
func (p *Peer) Address() bthost.DeviceAddr { return p.address }
func (p *Peer) IdentityKnown() bool        { return p.identityKnown }
func (p *Peer) Connectable() bool          { return p.connectable }
func (p *Peer) Temporary() bool            { return p.temporary }
func (p *Peer) Name() string               { return p.name }
func (p *Peer) RSSI() int8                 { return p.rssi }
func (p *Peer) Technology() TechnologyType { return p.technology }

// LE returns the LE sub-record, nil if the peer has never been seen
// over LE.
func (p *Peer) LE() *LowEnergyData { return p.le }

// BrEdr returns the BR/EDR sub-record, nil if never seen over BR/EDR.
func (p *Peer) BrEdr() *BrEdrData { return p.bredr }

// MutLE returns the LE sub-record, creating it (and promoting a
// Classic peer to dual-mode on its first LE sighting).
func (p *Peer) MutLE() *LowEnergyData {
	if p.le == nil {
		p.le = &LowEnergyData{peer: p}
		if p.technology == TechnologyClassic {
			p.makeDualMode()
		}
	}
	return p.le
}

// MutBrEdr returns the BR/EDR sub-record, creating it (and promoting an
// LE peer to dual-mode on its first BR/EDR sighting).
func (p *Peer) MutBrEdr() *BrEdrData {
	if p.bredr == nil {
		p.bredr = &BrEdrData{peer: p}
		if p.technology == TechnologyLowEnergy {
			p.makeDualMode()
		}
	}
	return p.bredr
}

func (p *Peer) makeDualMode() {
	if p.technology == TechnologyDualMode {
		return
	}
	p.technology = TechnologyDualMode
	if p.dualModeAdded != nil {
		p.dualModeAdded()
	}
}

// Bonded reports whether any technology holds bond material.
func (p *Peer) Bonded() bool {
	if p.le != nil && p.le.Bonded() {
		return true
	}
	if p.bredr != nil && p.bredr.Bonded() {
		return true
	}
	return false
}

// Connected reports whether any technology's link is up or being
// brought up.
func (p *Peer) Connected() bool {
	if p.le != nil && p.le.ConnectionState() != ConnectionStateNotConnected {
		return true
	}
	if p.bredr != nil && p.bredr.ConnectionState() != ConnectionStateNotConnected {
		return true
	}
	return false
}

// SetName records the device name (remote name request, EIR, or AD).
func (p *Peer) SetName(name string) {
	if p.name == name {
		return
	}
	p.name = name
	p.touch()
}

// SetVersionInfo records the remote LMP/link-layer version triple.
func (p *Peer) SetVersionInfo(version uint8, manufacturer, subversion uint16) {
	p.lmpVersion = version
	p.lmpManufacturer = manufacturer
	p.lmpSubversion = subversion
	p.versionKnown = true
	p.touch()
}

// VersionKnown reports whether interrogation stored version info.
func (p *Peer) VersionKnown() bool { return p.versionKnown }

func (p *Peer) Version() (version uint8, manufacturer, subversion uint16) {
	return p.lmpVersion, p.lmpManufacturer, p.lmpSubversion
}

func (p *Peer) setRSSI(rssi int8) {
	if rssi != RSSIInvalid {
		p.rssi = rssi
	}
}

// tryMakeNonTemporary pins the peer in the cache; connecting or
// bonding calls this.
func (p *Peer) tryMakeNonTemporary() {
	p.temporary = false
}

// touch routes a mutation back through the cache: reschedule expiry and
// notify listeners.
func (p *Peer) touch() {
	if p.updated != nil {
		p.updated()
	}
}

// LowEnergyData is the LE sub-record.
type LowEnergyData struct {
	peer *Peer

	connState ConnectionState
	advData   []byte
	bond      *LowEnergyBondData

	features      uint64
	featuresKnown bool
}

func (d *LowEnergyData) ConnectionState() ConnectionState { return d.connState }
func (d *LowEnergyData) AdvertisingData() []byte          { return d.advData }
func (d *LowEnergyData) Bonded() bool                     { return d.bond != nil }
func (d *LowEnergyData) BondData() *LowEnergyBondData     { return d.bond }
func (d *LowEnergyData) FeaturesKnown() bool              { return d.featuresKnown }
func (d *LowEnergyData) Features() uint64                 { return d.features }

// SetConnectionState drives the temporary flag alongside the link
// state: a connected peer pins itself in the cache; on disconnect an
// identity-less (privacy-using) peer reverts to temporary.
func (d *LowEnergyData) SetConnectionState(s ConnectionState) {
	if d.connState == s {
		return
	}
	d.connState = s
	switch s {
	case ConnectionStateConnected, ConnectionStateInitializing:
		d.peer.tryMakeNonTemporary()
	case ConnectionStateNotConnected:
		if !d.peer.identityKnown {
			d.peer.temporary = true
		}
	}
	d.peer.touch()
}

// SetAdvertisingData merges a fresh advertisement into the record.
func (d *LowEnergyData) SetAdvertisingData(rssi int8, data []byte) {
	d.advData = append(d.advData[:0], data...)
	d.peer.setRSSI(rssi)
	d.peer.touch()
}

// SetBondData attaches LE bond material; the peer stops being
// temporary and its identity is considered known.
func (d *LowEnergyData) SetBondData(bond LowEnergyBondData) {
	d.bond = &bond
	d.peer.identityKnown = true
	d.peer.tryMakeNonTemporary()
	d.peer.touch()
}

// SetFeatures records the remote LE feature set from interrogation.
func (d *LowEnergyData) SetFeatures(f uint64) {
	d.features = f
	d.featuresKnown = true
	d.peer.touch()
}

// BrEdrData is the BR/EDR sub-record.
type BrEdrData struct {
	peer *Peer

	connState   ConnectionState
	class       [3]byte
	classKnown  bool
	clockOffset uint16
	linkKey     *Key
}

func (d *BrEdrData) ConnectionState() ConnectionState { return d.connState }
func (d *BrEdrData) Bonded() bool                     { return d.linkKey != nil }
func (d *BrEdrData) LinkKey() *Key                    { return d.linkKey }

func (d *BrEdrData) ClassOfDevice() ([3]byte, bool) {
	return d.class, d.classKnown
}

// SetConnectionState mirrors the LE rule; BR/EDR addresses are fixed,
// so the peer never reverts to temporary here.
func (d *BrEdrData) SetConnectionState(s ConnectionState) {
	if d.connState == s {
		return
	}
	d.connState = s
	if s != ConnectionStateNotConnected {
		d.peer.tryMakeNonTemporary()
	}
	d.peer.touch()
}

// SetInquiryData merges one inquiry result into the record.
func (d *BrEdrData) SetInquiryData(rssi int8, class [3]byte, clockOffset uint16) {
	d.class = class
	d.classKnown = true
	d.clockOffset = clockOffset
	d.peer.setRSSI(rssi)
	d.peer.touch()
}

// SetBondData attaches the link key; the peer stops being temporary.
func (d *BrEdrData) SetBondData(linkKey Key) {
	d.linkKey = &linkKey
	d.peer.tryMakeNonTemporary()
	d.peer.touch()
}
