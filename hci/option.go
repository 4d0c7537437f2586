package hci

import (
	"io"

	"github.com/corvidlabs/bthost"
)

// Option configures a Channel before Init.
type Option func(*Channel) error

// OptTransportHCISocket selects the Linux HCI user-channel socket for
// device id (-1 for the first available device).
func OptTransportHCISocket(id int) Option {
	return func(ch *Channel) error {
		ch.transport = transport{hci: &transportHci{id}}
		return nil
	}
}

// OptTransportH4Uart selects an H4 UART at path.
func OptTransportH4Uart(path string) Option {
	return func(ch *Channel) error {
		ch.transport = transport{h4uart: &transportH4Uart{path}}
		return nil
	}
}

// OptTransportReadWriter supplies a pre-opened transport.
func OptTransportReadWriter(rw io.ReadWriteCloser) Option {
	return func(ch *Channel) error {
		ch.skt = rw
		return nil
	}
}

// OptLogger overrides the channel's logger.
func OptLogger(l bthost.Logger) Option {
	return func(ch *Channel) error {
		ch.logger = l
		return nil
	}
}
