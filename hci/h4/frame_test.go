package h4

import (
	"bytes"
	"testing"
)

func collect(out chan []byte) [][]byte {
	var got [][]byte
	for {
		select {
		case b := <-out:
			got = append(got, b)
		default:
			return got
		}
	}
}

func TestAssemblerWholeEventPacket(t *testing.T) {
	out := make(chan []byte, 4)
	a := newAssembler(out)

	pkt := []byte{0x04, 0x0e, 0x04, 0x01, 0x01, 0x10, 0x00}
	a.add(pkt)

	got := collect(out)
	if len(got) != 1 {
		t.Fatalf("expected 1 packet, got %d", len(got))
	}
	if !bytes.Equal(got[0], pkt) {
		t.Fatalf("packet mismatch: % x", got[0])
	}
}

func TestAssemblerSplitAcrossReads(t *testing.T) {
	out := make(chan []byte, 4)
	a := newAssembler(out)

	pkt := []byte{0x04, 0x0e, 0x04, 0x01, 0x01, 0x10, 0x00}
	a.add(pkt[:2])
	if got := collect(out); len(got) != 0 {
		t.Fatalf("packet delivered before complete: %d", len(got))
	}
	a.add(pkt[2:5])
	a.add(pkt[5:])

	got := collect(out)
	if len(got) != 1 || !bytes.Equal(got[0], pkt) {
		t.Fatalf("expected reassembled packet, got %v", got)
	}
}

func TestAssemblerTwoPacketsOneRead(t *testing.T) {
	out := make(chan []byte, 4)
	a := newAssembler(out)

	p1 := []byte{0x04, 0x0f, 0x04, 0x00, 0x01, 0x0d, 0x20}
	p2 := []byte{0x02, 0x40, 0x00, 0x02, 0x00, 0xaa, 0xbb}
	a.add(append(append([]byte{}, p1...), p2...))

	got := collect(out)
	if len(got) != 2 {
		t.Fatalf("expected 2 packets, got %d", len(got))
	}
	if !bytes.Equal(got[0], p1) || !bytes.Equal(got[1], p2) {
		t.Fatalf("packets mismatch: % x / % x", got[0], got[1])
	}
}

func TestAssemblerResyncsOnGarbage(t *testing.T) {
	out := make(chan []byte, 4)
	a := newAssembler(out)

	pkt := []byte{0x04, 0x0e, 0x04, 0x01, 0x01, 0x10, 0x00}
	a.add(append([]byte{0x00, 0xff, 0x55}, pkt...))

	got := collect(out)
	if len(got) != 1 || !bytes.Equal(got[0], pkt) {
		t.Fatalf("expected resync to packet start, got %v", got)
	}
}

func TestAssemblerACLLength(t *testing.T) {
	out := make(chan []byte, 4)
	a := newAssembler(out)

	// 5 byte header + 3 byte payload
	pkt := []byte{0x02, 0x40, 0x20, 0x03, 0x00, 0x01, 0x02, 0x03}
	a.add(pkt[:4])
	a.add(pkt[4:])

	got := collect(out)
	if len(got) != 1 || !bytes.Equal(got[0], pkt) {
		t.Fatalf("expected acl packet, got %v", got)
	}
}
