package bthost

import "testing"

func TestRandomAddressClassification(t *testing.T) {
	// exactly one class must hold for every possible top-bit pattern
	for msb := 0; msb < 256; msb++ {
		a := DeviceAddr{Kind: AddrLERandom, MAC: [6]byte{byte(msb), 0x11, 0x22, 0x33, 0x44, 0x55}}
		n := 0
		if a.IsResolvablePrivate() {
			n++
		}
		if a.IsNonResolvablePrivate() {
			n++
		}
		if a.IsStaticRandom() {
			n++
		}
		switch msb & 0xc0 {
		case 0x40, 0x00, 0xc0:
			if n != 1 {
				t.Fatalf("msb 0x%02x: %d classes hold, want 1", msb, n)
			}
		default: // 0x80 is reserved
			if n != 0 {
				t.Fatalf("msb 0x%02x: %d classes hold, want 0", msb, n)
			}
		}
	}
}

func TestClassificationOnlyForRandom(t *testing.T) {
	for _, kind := range []AddrKind{AddrBrEdr, AddrLEPublic, AddrLEAnonymous} {
		a := DeviceAddr{Kind: kind, MAC: [6]byte{0x40, 0, 0, 0, 0, 1}}
		if a.IsResolvablePrivate() || a.IsNonResolvablePrivate() || a.IsStaticRandom() {
			t.Fatalf("%v claims a random-address class", kind)
		}
	}
}

func TestWireByteOrder(t *testing.T) {
	a := DeviceAddr{Kind: AddrLEPublic, MAC: [6]byte{0x11, 0x22, 0x33, 0x44, 0x55, 0x66}}
	w := a.WireBytes()
	if w != [6]byte{0x66, 0x55, 0x44, 0x33, 0x22, 0x11} {
		t.Fatalf("wire bytes %x", w)
	}
	if AddrFromWire(AddrLEPublic, w) != a {
		t.Fatalf("wire roundtrip mismatch")
	}
}

func TestAlias(t *testing.T) {
	mac := [6]byte{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}

	br := DeviceAddr{Kind: AddrBrEdr, MAC: mac}
	alias, ok := br.Alias()
	if !ok || alias.Kind != AddrLEPublic || alias.MAC != mac {
		t.Fatalf("bredr alias = %v, %v", alias, ok)
	}
	back, ok := alias.Alias()
	if !ok || back != br {
		t.Fatalf("alias not symmetric: %v", back)
	}

	if _, ok := (DeviceAddr{Kind: AddrLERandom, MAC: mac}).Alias(); ok {
		t.Fatal("random address must not alias")
	}
}

func TestParseAddr(t *testing.T) {
	a, err := ParseAddr(AddrBrEdr, "AA:bb:CC:dd:EE:01")
	if err != nil {
		t.Fatal(err)
	}
	if a.MAC != [6]byte{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0x01} {
		t.Fatalf("parsed %x", a.MAC)
	}
	if a.MACString() != "aa:bb:cc:dd:ee:01" {
		t.Fatalf("mac string %q", a.MACString())
	}
	if _, err := ParseAddr(AddrBrEdr, "aa:bb:cc"); err == nil {
		t.Fatal("short address must not parse")
	}
	if _, err := ParseAddr(AddrBrEdr, "zz:bb:cc:dd:ee:01"); err == nil {
		t.Fatal("non-hex address must not parse")
	}
}

func TestParseAddrKindRoundtrip(t *testing.T) {
	for _, kind := range []AddrKind{AddrBrEdr, AddrLEPublic, AddrLERandom, AddrLEAnonymous} {
		got, err := ParseAddrKind(kind.String())
		if err != nil || got != kind {
			t.Fatalf("kind %v roundtrip: %v, %v", kind, got, err)
		}
	}
	if _, err := ParseAddrKind("classic"); err == nil {
		t.Fatal("unknown kind must not parse")
	}
}
