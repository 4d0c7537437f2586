// Package h4 frames HCI traffic over a UART using the H4 protocol and
// exposes it as an io.ReadWriteCloser delivering one packet per Read.
package h4

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/jacobsa/go-serial/serial"
	"github.com/pkg/errors"
)

const rxQueueSize = 64

type h4 struct {
	sp  io.ReadWriteCloser
	rmu sync.Mutex
	wmu sync.Mutex
	cmu sync.Mutex

	rxQueue chan []byte
	done    chan struct{}
}

// DefaultSerialOptions returns UART settings suitable for most H4
// controllers; set PortName before opening.
func DefaultSerialOptions() serial.OpenOptions {
	return serial.OpenOptions{
		BaudRate:              115200,
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       0,
		InterCharacterTimeout: 100,
	}
}

// NewSerial opens an H4 transport over the UART described by opts.
func NewSerial(opts serial.OpenOptions) (io.ReadWriteCloser, error) {
	// required for the framing read loop to see short reads
	opts.MinimumReadSize = 0
	if opts.InterCharacterTimeout == 0 {
		opts.InterCharacterTimeout = 100
	}

	sp, err := serial.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "can't open serial port")
	}

	h := &h4{
		sp:      sp,
		rxQueue: make(chan []byte, rxQueueSize),
		done:    make(chan struct{}),
	}
	go h.rxLoop()
	return h, nil
}

// Read returns one complete H4 packet, or (0, nil) on timeout so the
// caller can poll for shutdown.
func (h *h4) Read(p []byte) (int, error) {
	if !h.isOpen() {
		return 0, io.EOF
	}

	h.rmu.Lock()
	defer h.rmu.Unlock()

	select {
	case <-h.done:
		return 0, io.EOF
	case b := <-h.rxQueue:
		if len(p) < len(b) {
			return 0, fmt.Errorf("buffer too small: %v < %v", len(p), len(b))
		}
		return copy(p, b), nil
	case <-time.After(time.Second):
		return 0, nil
	}
}

func (h *h4) Write(p []byte) (int, error) {
	if !h.isOpen() {
		return 0, io.EOF
	}
	h.wmu.Lock()
	defer h.wmu.Unlock()
	n, err := h.sp.Write(p)
	return n, errors.Wrap(err, "can't write h4")
}

func (h *h4) Close() error {
	h.cmu.Lock()
	defer h.cmu.Unlock()

	select {
	case <-h.done:
		return nil
	default:
		close(h.done)
		err := h.sp.Close()
		return errors.Wrap(err, "can't close h4")
	}
}

func (h *h4) isOpen() bool {
	select {
	case <-h.done:
		return false
	default:
		return h.sp != nil
	}
}

func (h *h4) rxLoop() {
	a := newAssembler(h.rxQueue)
	tmp := make([]byte, 512)
	for {
		select {
		case <-h.done:
			return
		default:
		}

		n, err := h.sp.Read(tmp)
		if err != nil || n == 0 {
			continue
		}
		a.add(tmp[:n])
	}
}
