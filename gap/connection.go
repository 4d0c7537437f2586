package gap

import (
	"github.com/corvidlabs/bthost"
	"github.com/corvidlabs/bthost/dispatch"
	"github.com/corvidlabs/bthost/hci"
	"github.com/corvidlabs/bthost/hci/cmd"
)

// Connection is an established LE link. It does not own the peer; hold
// the PeerID and re-resolve through the cache when needed.
type Connection struct {
	ch     hci.CommandChannel
	q      dispatch.Queue
	handle uint16
	local  bthost.DeviceAddr
	peer   bthost.DeviceAddr
	closed bool
}

func NewConnection(ch hci.CommandChannel, q dispatch.Queue, handle uint16, local, peer bthost.DeviceAddr) *Connection {
	return &Connection{ch: ch, q: q, handle: handle, local: local, peer: peer}
}

func (c *Connection) Handle() uint16                  { return c.handle }
func (c *Connection) LocalAddress() bthost.DeviceAddr { return c.local }
func (c *Connection) PeerAddress() bthost.DeviceAddr  { return c.peer }

// Close requests link teardown. The Disconnection Complete event, not
// this call, is what marks the peer disconnected.
func (c *Connection) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.ch.SendCommand(&cmd.Disconnect{
		ConnectionHandle: c.handle,
		Reason:           uint8(hci.ErrRemoteUser),
	}, c.q, nil)
}
