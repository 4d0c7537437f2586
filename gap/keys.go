package gap

import "github.com/corvidlabs/bthost"

// SecurityProperties describe how a key was generated.
type SecurityProperties struct {
	Authenticated     bool
	SecureConnections bool
	EncryptionKeySize uint8
}

// Key is 128-bit key material plus its security properties.
type Key struct {
	Security SecurityProperties
	Value    [16]byte
}

// LTK is an LE Long Term Key with its legacy-pairing companions.
type LTK struct {
	Key
	EDiv uint16
	Rand uint64
}

// LowEnergyBondData is the LE key material produced by pairing. The
// Security Manager hands it in; this core only stores it.
type LowEnergyBondData struct {
	// IdentityAddress, when set, is the peer's public or static
	// identity behind any resolvable private address it advertises.
	IdentityAddress *bthost.DeviceAddr

	PeerLTK  *LTK
	LocalLTK *LTK
	IRK      *Key
	CSRK     *Key
}

// hasKeys reports whether the mandatory material for an LE bond is
// present: at least one LTK or a CSRK.
func (d *LowEnergyBondData) hasKeys() bool {
	return d != nil && (d.PeerLTK != nil || d.LocalLTK != nil || d.CSRK != nil)
}

// BrEdrBondData is the BR/EDR link key.
type BrEdrBondData struct {
	LinkKey Key
}

// BondData is the full bonding record handed to the external bond
// store when a peer bonds, and back to AddBondedPeer on restore.
type BondData struct {
	ID      bthost.PeerID
	Address bthost.DeviceAddr
	Name    string
	LE      *LowEnergyBondData
	BrEdr   *BrEdrBondData
}
