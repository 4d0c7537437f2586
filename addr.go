package bthost

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// AddrKind tags a DeviceAddr with the transport/addressing scheme it
// belongs to. BR/EDR and LE public addresses share the 48-bit space;
// LE random addresses carry privacy semantics in their top bits.
type AddrKind uint8

const (
	AddrBrEdr AddrKind = iota
	AddrLEPublic
	AddrLERandom
	AddrLEAnonymous
)

func (k AddrKind) String() string {
	switch k {
	case AddrBrEdr:
		return "bredr"
	case AddrLEPublic:
		return "le-public"
	case AddrLERandom:
		return "le-random"
	case AddrLEAnonymous:
		return "le-anonymous"
	}
	return fmt.Sprintf("addr-kind(%d)", uint8(k))
}

// DeviceAddr is a 48-bit device address plus its kind. It is an
// immutable value type, comparable and usable as a map key. MAC is
// stored most-significant byte first (the printed order); HCI carries
// addresses least-significant byte first, see WireBytes/AddrFromWire.
type DeviceAddr struct {
	Kind AddrKind
	MAC  [6]byte
}

// NewDeviceAddr builds an address from big-endian bytes.
func NewDeviceAddr(kind AddrKind, mac [6]byte) DeviceAddr {
	return DeviceAddr{Kind: kind, MAC: mac}
}

// AddrFromWire builds an address from the little-endian byte order used
// on the HCI wire.
func AddrFromWire(kind AddrKind, b [6]byte) DeviceAddr {
	var mac [6]byte
	for i := 0; i < 6; i++ {
		mac[i] = b[5-i]
	}
	return DeviceAddr{Kind: kind, MAC: mac}
}

// ParseAddr parses "aa:bb:cc:dd:ee:ff" (case-insensitive).
func ParseAddr(kind AddrKind, s string) (DeviceAddr, error) {
	hexStr := strings.Replace(strings.ToLower(s), ":", "", -1)
	out, err := hex.DecodeString(hexStr)
	if err != nil {
		return DeviceAddr{}, err
	}
	if len(out) != 6 {
		return DeviceAddr{}, fmt.Errorf("invalid address %q", s)
	}
	var mac [6]byte
	copy(mac[:], out)
	return DeviceAddr{Kind: kind, MAC: mac}, nil
}

// WireBytes returns the address in HCI wire order (LSB first).
func (a DeviceAddr) WireBytes() [6]byte {
	var b [6]byte
	for i := 0; i < 6; i++ {
		b[i] = a.MAC[5-i]
	}
	return b
}

// ParseAddrKind is the inverse of AddrKind.String.
func ParseAddrKind(s string) (AddrKind, error) {
	switch s {
	case "bredr":
		return AddrBrEdr, nil
	case "le-public":
		return AddrLEPublic, nil
	case "le-random":
		return AddrLERandom, nil
	case "le-anonymous":
		return AddrLEAnonymous, nil
	}
	return 0, fmt.Errorf("invalid address kind %q", s)
}

// MACString returns only the colon-separated hex form, without the
// kind, suitable for ParseAddr.
func (a DeviceAddr) MACString() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x",
		a.MAC[0], a.MAC[1], a.MAC[2], a.MAC[3], a.MAC[4], a.MAC[5])
}

func (a DeviceAddr) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x (%s)",
		a.MAC[0], a.MAC[1], a.MAC[2], a.MAC[3], a.MAC[4], a.MAC[5], a.Kind)
}

// IsResolvablePrivate reports whether this is an LE resolvable private
// address (top two bits of the MSB are 0b01).
func (a DeviceAddr) IsResolvablePrivate() bool {
	return a.Kind == AddrLERandom && a.MAC[0]&0xc0 == 0x40
}

// IsNonResolvablePrivate reports whether this is an LE non-resolvable
// private address (top two bits 0b00).
func (a DeviceAddr) IsNonResolvablePrivate() bool {
	return a.Kind == AddrLERandom && a.MAC[0]&0xc0 == 0x00
}

// IsStaticRandom reports whether this is an LE static random address
// (top two bits 0b11).
func (a DeviceAddr) IsStaticRandom() bool {
	return a.Kind == AddrLERandom && a.MAC[0]&0xc0 == 0xc0
}

// IsLE reports whether the address belongs to the LE transport.
func (a DeviceAddr) IsLE() bool {
	return a.Kind == AddrLEPublic || a.Kind == AddrLERandom || a.Kind == AddrLEAnonymous
}

// Alias returns the same 48-bit value under the other technology's
// public addressing (BR/EDR <-> LE public) and whether such an alias
// exists for this kind.
func (a DeviceAddr) Alias() (DeviceAddr, bool) {
	switch a.Kind {
	case AddrBrEdr:
		return DeviceAddr{Kind: AddrLEPublic, MAC: a.MAC}, true
	case AddrLEPublic:
		return DeviceAddr{Kind: AddrBrEdr, MAC: a.MAC}, true
	}
	return DeviceAddr{}, false
}
