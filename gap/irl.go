package gap

import (
	"crypto/aes"

	"github.com/corvidlabs/bthost"
)

// IdentityResolvingList maps identity addresses to IRKs and resolves
// scanned resolvable private addresses back to the identity that
// generated them [Vol 6, Part B, 1.3.2.2].
type IdentityResolvingList struct {
	irks map[bthost.DeviceAddr][16]byte
}

func NewIdentityResolvingList() *IdentityResolvingList {
	return &IdentityResolvingList{irks: make(map[bthost.DeviceAddr][16]byte)}
}

// Register associates identity with irk, replacing any previous entry.
func (l *IdentityResolvingList) Register(identity bthost.DeviceAddr, irk [16]byte) {
	l.irks[identity] = irk
}

func (l *IdentityResolvingList) Remove(identity bthost.DeviceAddr) {
	delete(l.irks, identity)
}

// Resolve returns the identity address behind rpa, if any registered
// IRK reproduces its hash.
func (l *IdentityResolvingList) Resolve(rpa bthost.DeviceAddr) (bthost.DeviceAddr, bool) {
	if !rpa.IsResolvablePrivate() {
		return bthost.DeviceAddr{}, false
	}
	// MSB-first storage: prand is the top 3 bytes, hash the bottom 3
	var prand, hash [3]byte
	copy(prand[:], rpa.MAC[0:3])
	copy(hash[:], rpa.MAC[3:6])

	for identity, irk := range l.irks {
		if ah(irk, prand) == hash {
			return identity, true
		}
	}
	return bthost.DeviceAddr{}, false
}

// ah is the random address hash function [Vol 3, Part H, 2.2.2]:
// AES-128 of the zero-padded 24-bit prand, truncated to 24 bits.
func ah(irk [16]byte, prand [3]byte) [3]byte {
	block, err := aes.NewCipher(irk[:])
	if err != nil {
		// aes.NewCipher only fails on bad key length
		panic(err)
	}
	var in, out [16]byte
	copy(in[13:], prand[:])
	block.Encrypt(out[:], in[:])

	var hash [3]byte
	copy(hash[:], out[13:])
	return hash
}
