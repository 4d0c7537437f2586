package h4

import (
	"time"
)

const (
	pktTypeEvent   = 0x04
	pktTypeACLData = 0x02

	frameTimeout = 500 * time.Millisecond
)

// assembler reassembles H4 packets out of an arbitrary UART byte
// stream. Complete packets (type byte included) go to out. A partial
// frame older than frameTimeout is discarded.
type assembler struct {
	b        []byte
	deadline time.Time
	out      chan []byte
}

func newAssembler(out chan []byte) *assembler {
	return &assembler{b: make([]byte, 0, 512), out: out}
}

func (a *assembler) add(b []byte) {
	if len(b) == 0 {
		return
	}
	if len(a.b) > 0 && !a.deadline.IsZero() && time.Now().After(a.deadline) {
		a.reset()
	}

	if len(a.b) == 0 {
		// resync on a packet-type byte
		i := 0
		for ; i < len(b); i++ {
			if b[i] == pktTypeEvent || b[i] == pktTypeACLData {
				break
			}
		}
		if i == len(b) {
			return
		}
		b = b[i:]
		a.deadline = time.Now().Add(frameTimeout)
	}
	a.b = append(a.b, b...)

	for {
		n, ok := a.frameLen()
		if !ok || len(a.b) < n {
			return
		}
		out := make([]byte, n)
		copy(out, a.b[:n])
		a.out <- out

		rem := a.b[n:]
		a.reset()
		if len(rem) > 0 {
			a.add(rem)
		}
		return
	}
}

// frameLen returns the total length of the packet at the head of the
// buffer once enough header bytes are present.
func (a *assembler) frameLen() (int, bool) {
	if len(a.b) == 0 {
		return 0, false
	}
	switch a.b[0] {
	case pktTypeEvent:
		if len(a.b) < 3 {
			return 0, false
		}
		return 3 + int(a.b[2]), true
	case pktTypeACLData:
		if len(a.b) < 5 {
			return 0, false
		}
		return 5 + (int(a.b[3]) | int(a.b[4])<<8), true
	default:
		a.reset()
		return 0, false
	}
}

func (a *assembler) reset() {
	a.b = a.b[:0]
	a.deadline = time.Time{}
}
